package tracker

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/cespare/xxhash/v2"
)

// ErrNotReadable marks identities that could not be computed because the
// file was locked, gone, or otherwise unreadable. Callers must treat it
// as "identity unknown", never as file absence.
var ErrNotReadable = errors.New("tracker: file not readable")

// Identity is the (header hash, size) pair that recognizes a file across
// renames. Hash is the 64-bit xxHash of the leading header bytes in hex;
// two files are the same only when both hash and size match, so identical
// codec headers on re-encodes stay distinct.
type Identity struct {
	Hash string
	Size int64
}

// ComputeIdentity stats and reads up to headerBytes of the file at the
// given filesystem path. The archive holds files of tens of GiB, so the
// hash covers the header only; it is an identity fingerprint, not a
// checksum.
func ComputeIdentity(path string, headerBytes int64) (Identity, error) {
	info, err := os.Stat(path)
	if err != nil {
		return Identity{}, fmt.Errorf("%w: stat %s: %v", ErrNotReadable, path, err)
	}

	f, err := os.Open(path)
	if err != nil {
		return Identity{}, fmt.Errorf("%w: open %s: %v", ErrNotReadable, path, err)
	}
	defer f.Close()

	h := xxhash.New()

	if _, err := io.Copy(h, io.LimitReader(f, headerBytes)); err != nil {
		return Identity{}, fmt.Errorf("%w: read %s: %v", ErrNotReadable, path, err)
	}

	return Identity{
		Hash: fmt.Sprintf("%016x", h.Sum64()),
		Size: info.Size(),
	}, nil
}
