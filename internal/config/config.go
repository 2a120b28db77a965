// Package config implements configuration loading for the archive tracker.
// The effective configuration is built once at startup by layering four
// sources in fixed precedence order: defaults -> TOML config file ->
// environment variables -> CLI flags. Components receive the final Config
// by reference and never mutate it.
package config

import (
	"time"
)

// Default values. Paths follow the production NAS layout; everything is
// overridable per environment.
// DefaultConfigPath is probed when no config file is named explicitly.
// A missing file is not an error; the tracker runs on defaults.
const DefaultConfigPath = "tracker.toml"

const (
	DefaultDBPath       = "data/output/archive.db"
	DefaultNASPath      = "Z:/GGPNAs/ARCHIVE"
	DefaultPollInterval = 30 * time.Second
	DefaultDebounce     = 5 * time.Second
	DefaultReconcile    = 30 * time.Minute
	DefaultHashSizeKB   = 512
	DefaultWatchMode    = WatchModePoll
)

// Watch mode selectors for the filesystem observer.
const (
	// WatchModePoll diffs periodic directory walks. Required for SMB
	// mounts, where kernel notification is unreliable.
	WatchModePoll = "poll"
	// WatchModeNative uses inotify/FSEvents via fsnotify. An optimization
	// for local mounts only.
	WatchModeNative = "native"
)

// defaultVideoExtensions is the archive's media extension set.
func defaultVideoExtensions() []string {
	return []string{".mp4", ".mkv", ".mov", ".avi", ".mxf", ".ts", ".m2ts"}
}

// FileConfig is the TOML file representation. Durations are strings
// ("30s", "5m") so the file reads naturally; they are parsed into the
// resolved Config during Resolve.
type FileConfig struct {
	DBPath            string   `toml:"db_path"`
	NASPath           string   `toml:"nas_path"`
	PollInterval      string   `toml:"poll_interval"`
	Debounce          string   `toml:"debounce"`
	ReconcileInterval string   `toml:"reconcile_interval"`
	HashSizeKB        int      `toml:"hash_size_kb"`
	VideoExtensions   []string `toml:"video_extensions"`
	WatchMode         string   `toml:"watch_mode"`
	Logging           Logging  `toml:"logging"`
}

// Logging controls log output behavior.
type Logging struct {
	Level  string `toml:"level"`  // debug, info, warn, error
	Format string `toml:"format"` // text, json, auto
}

// Config is the immutable resolved configuration.
type Config struct {
	DBPath            string
	NASPath           string
	PollInterval      time.Duration
	Debounce          time.Duration
	ReconcileInterval time.Duration
	HashSizeKB        int
	VideoExtensions   []string
	WatchMode         string
	LogLevel          string
	LogFormat         string
}

// DefaultFileConfig returns a FileConfig populated with all defaults.
func DefaultFileConfig() *FileConfig {
	return &FileConfig{
		DBPath:            DefaultDBPath,
		NASPath:           DefaultNASPath,
		PollInterval:      DefaultPollInterval.String(),
		Debounce:          DefaultDebounce.String(),
		ReconcileInterval: DefaultReconcile.String(),
		HashSizeKB:        DefaultHashSizeKB,
		VideoExtensions:   defaultVideoExtensions(),
		WatchMode:         DefaultWatchMode,
		Logging:           Logging{Level: "info", Format: "auto"},
	}
}

// CLIOverrides holds values from CLI flags. Pointer fields distinguish
// "not specified" (nil) from "explicitly set to the zero value" — passing
// --poll-interval 0 should fail validation, not silently fall back.
type CLIOverrides struct {
	ConfigPath   string
	DBPath       string
	NASPath      string
	PollInterval *int // seconds
	Debounce     *int // seconds
	WatchMode    string
}

// VideoExtensionSet returns the configured extensions as a lookup set.
// Extensions are stored lowercased with the leading dot.
func (c *Config) VideoExtensionSet() map[string]bool {
	set := make(map[string]bool, len(c.VideoExtensions))

	for _, ext := range c.VideoExtensions {
		set[ext] = true
	}

	return set
}
