// Package archivepath implements string-level normalization for archive
// paths. The archive lives on an SMB mount, so paths arrive in a mix of
// backslash and forward-slash forms, sometimes with a UNC //server/share
// prefix. Two normalizations exist and must not be confused:
//
//   - Canonical: forward slashes, UNC prefix preserved, original case
//     retained. This is the user-visible form stored in the catalog.
//   - Identity key: lowercased canonical with the leading "//" stripped,
//     hashed to derive the stable file ID.
//
// All functions here operate on strings only; none touch the filesystem.
package archivepath

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// fileIDHexLen is the length of the hex-encoded stable file ID.
const fileIDHexLen = 16

// Canonical converts a path to its canonical stored form: backslashes
// become forward slashes, Unicode is NFC-normalized, and a UNC prefix
// (//server/share) is preserved. Case is retained because archive paths
// double as user-visible labels.
func Canonical(path string) string {
	if path == "" {
		return ""
	}

	return norm.NFC.String(strings.ReplaceAll(path, "\\", "/"))
}

// IdentityKey returns the lowercased canonical path with the leading "//"
// stripped. Two spellings of the same archive location (drive letter case,
// backslash form) produce the same key.
func IdentityKey(path string) string {
	key := strings.ToLower(Canonical(path))

	return strings.TrimPrefix(key, "//")
}

// FileID derives the stable 16-hex-digit file ID from a path. The ID is
// assigned at first observation and never changes afterward; renames keep
// the original ID because the catalog rewrites path in place.
func FileID(path string) string {
	sum := sha256.Sum256([]byte(IdentityKey(path)))

	return hex.EncodeToString(sum[:])[:fileIDHexLen]
}

// Basename returns the final path component of the canonical form.
func Basename(path string) string {
	canonical := Canonical(path)
	if canonical == "" {
		return ""
	}

	if idx := strings.LastIndex(canonical, "/"); idx >= 0 {
		return canonical[idx+1:]
	}

	return canonical
}

// Ext returns the lowercased extension of path, with or without the
// leading dot. Returns "" when the filename has no extension.
func Ext(path string, withDot bool) string {
	name := Basename(path)

	idx := strings.LastIndex(name, ".")
	if idx < 0 || idx == len(name)-1 {
		return ""
	}

	ext := strings.ToLower(name[idx+1:])
	if withDot {
		return "." + ext
	}

	return ext
}

// Join combines path fragments with forward slashes, skipping empty
// fragments and trimming redundant separators.
func Join(parts ...string) string {
	joined := make([]string, 0, len(parts))

	for _, part := range parts {
		if part == "" {
			continue
		}

		trimmed := strings.Trim(Canonical(part), "/")
		if trimmed != "" {
			joined = append(joined, trimmed)
		}
	}

	return strings.Join(joined, "/")
}

// RelativeTo extracts the portion of fullPath after the marker directory
// ("ARCHIVE" by convention). When the marker is absent the final path
// component is returned, matching how the catalog labels stray files.
func RelativeTo(fullPath, marker string) string {
	canonical := Canonical(fullPath)
	needle := "/" + marker + "/"

	if idx := strings.Index(canonical, needle); idx >= 0 {
		return strings.Trim(canonical[idx+len(needle):], "/")
	}

	if idx := strings.LastIndex(canonical, "/"); idx >= 0 {
		return canonical[idx+1:]
	}

	return canonical
}

// BuildUNC assembles a forward-slash UNC path from a server, a share, and
// optional trailing fragments: //server/share/part/...
func BuildUNC(server, share string, parts ...string) string {
	base := "//" + server + "/" + share

	tail := Join(parts...)
	if tail == "" {
		return base
	}

	return base + "/" + tail
}
