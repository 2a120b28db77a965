package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

// Load reads and parses a TOML config file. Unknown keys are fatal —
// silently ignoring a typo in a config file leads to hard-to-debug
// behavior, so the loader refuses instead.
func Load(path string) (*FileConfig, error) {
	cfg := DefaultFileConfig()

	md, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return nil, fmt.Errorf("config: parsing %s: %w", path, err)
	}

	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}

		return nil, fmt.Errorf("config: unknown keys in %s: %s", path, strings.Join(keys, ", "))
	}

	return cfg, nil
}

// LoadOrDefault reads a TOML config file if it exists, otherwise returns
// defaults. The tracker runs without a config file in the common case.
func LoadOrDefault(path string) (*FileConfig, error) {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return DefaultFileConfig(), nil
	}

	return Load(path)
}

// Resolve builds the effective Config from the override chain:
// defaults -> config file -> environment -> CLI flags.
func Resolve(env EnvOverrides, cli CLIOverrides) (*Config, error) {
	cfgPath := ""
	if env.ConfigPath != "" {
		cfgPath = env.ConfigPath
	}

	if cli.ConfigPath != "" {
		cfgPath = cli.ConfigPath
	}

	var (
		file *FileConfig
		err  error
	)

	if cfgPath != "" {
		file, err = Load(cfgPath)
	} else {
		file, err = LoadOrDefault(DefaultConfigPath)
	}

	if err != nil {
		return nil, err
	}

	cfg, err := resolveFile(file)
	if err != nil {
		return nil, err
	}

	if err := applyEnv(cfg, env); err != nil {
		return nil, err
	}

	applyCLI(cfg, cli)

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("config: validation: %w", err)
	}

	return cfg, nil
}

// resolveFile parses the string-typed file fields into the resolved Config.
func resolveFile(file *FileConfig) (*Config, error) {
	cfg := &Config{
		DBPath:     file.DBPath,
		NASPath:    file.NASPath,
		HashSizeKB: file.HashSizeKB,
		WatchMode:  file.WatchMode,
		LogLevel:   file.Logging.Level,
		LogFormat:  file.Logging.Format,
	}

	for _, d := range []struct {
		name string
		raw  string
		dst  *time.Duration
	}{
		{"poll_interval", file.PollInterval, &cfg.PollInterval},
		{"debounce", file.Debounce, &cfg.Debounce},
		{"reconcile_interval", file.ReconcileInterval, &cfg.ReconcileInterval},
	} {
		parsed, err := time.ParseDuration(d.raw)
		if err != nil {
			return nil, fmt.Errorf("config: parsing %s %q: %w", d.name, d.raw, err)
		}

		*d.dst = parsed
	}

	cfg.VideoExtensions = make([]string, 0, len(file.VideoExtensions))
	for _, ext := range file.VideoExtensions {
		ext = strings.ToLower(strings.TrimSpace(ext))
		if ext != "" && !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}

		if ext != "" {
			cfg.VideoExtensions = append(cfg.VideoExtensions, ext)
		}
	}

	return cfg, nil
}

// applyEnv layers environment overrides over the file-derived config.
func applyEnv(cfg *Config, env EnvOverrides) error {
	if env.DBPath != "" {
		cfg.DBPath = env.DBPath
	}

	if env.NASPath != "" {
		cfg.NASPath = env.NASPath
	}

	if env.PollInterval != "" {
		secs, err := strconv.Atoi(env.PollInterval)
		if err != nil {
			return fmt.Errorf("config: parsing %s=%q: %w", EnvPollInterval, env.PollInterval, err)
		}

		cfg.PollInterval = time.Duration(secs) * time.Second
	}

	return nil
}

// applyCLI layers CLI flag overrides; flags always win.
func applyCLI(cfg *Config, cli CLIOverrides) {
	if cli.DBPath != "" {
		cfg.DBPath = cli.DBPath
	}

	if cli.NASPath != "" {
		cfg.NASPath = cli.NASPath
	}

	if cli.PollInterval != nil {
		cfg.PollInterval = time.Duration(*cli.PollInterval) * time.Second
	}

	if cli.Debounce != nil {
		cfg.Debounce = time.Duration(*cli.Debounce) * time.Second
	}

	if cli.WatchMode != "" {
		cfg.WatchMode = cli.WatchMode
	}
}

// validate checks the fully-resolved config. All errors are reported in
// one pass so the user fixes everything at once.
func validate(cfg *Config) error {
	var errs []error

	if cfg.DBPath == "" {
		errs = append(errs, errors.New("db_path must not be empty"))
	}

	if cfg.NASPath == "" {
		errs = append(errs, errors.New("nas_path must not be empty"))
	}

	if cfg.PollInterval <= 0 {
		errs = append(errs, fmt.Errorf("poll_interval must be positive, got %s", cfg.PollInterval))
	}

	if cfg.Debounce <= 0 {
		errs = append(errs, fmt.Errorf("debounce must be positive, got %s", cfg.Debounce))
	}

	if cfg.ReconcileInterval <= 0 {
		errs = append(errs, fmt.Errorf("reconcile_interval must be positive, got %s", cfg.ReconcileInterval))
	}

	if cfg.HashSizeKB <= 0 {
		errs = append(errs, fmt.Errorf("hash_size_kb must be positive, got %d", cfg.HashSizeKB))
	}

	if len(cfg.VideoExtensions) == 0 {
		errs = append(errs, errors.New("video_extensions must not be empty"))
	}

	if cfg.WatchMode != WatchModePoll && cfg.WatchMode != WatchModeNative {
		errs = append(errs, fmt.Errorf("watch_mode must be %q or %q, got %q",
			WatchModePoll, WatchModeNative, cfg.WatchMode))
	}

	switch cfg.LogLevel {
	case "", "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("logging.level must be debug/info/warn/error, got %q", cfg.LogLevel))
	}

	switch cfg.LogFormat {
	case "", "text", "json", "auto":
	default:
		errs = append(errs, fmt.Errorf("logging.format must be text/json/auto, got %q", cfg.LogFormat))
	}

	return errors.Join(errs...)
}
