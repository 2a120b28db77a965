package config

import "os"

// Environment variable names. These predate the TOML config file (the
// original deployment was configured entirely via environment) and stay
// supported for compatibility with existing service units.
const (
	EnvDBPath       = "ARCHIVE_DB"
	EnvNASPath      = "NAS_PATH"
	EnvPollInterval = "POLL_INTERVAL" // integer seconds
	EnvConfigPath   = "TRACKER_CONFIG"
)

// EnvOverrides holds raw values read from the environment. PollInterval
// stays a string here; Resolve parses and validates it.
type EnvOverrides struct {
	DBPath       string
	NASPath      string
	PollInterval string
	ConfigPath   string
}

// ReadEnvOverrides reads the tracker environment variables. It does not
// validate; empty strings mean "not set".
func ReadEnvOverrides() EnvOverrides {
	return EnvOverrides{
		DBPath:       os.Getenv(EnvDBPath),
		NASPath:      os.Getenv(EnvNASPath),
		PollInterval: os.Getenv(EnvPollInterval),
		ConfigPath:   os.Getenv(EnvConfigPath),
	}
}
