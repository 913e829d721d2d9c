package config

import "os"

// Environment variable names for overrides.
const (
	EnvConfig = "RAMMINGEN_CONFIG"
	EnvToken  = "RAMMINGEN_TOKEN"
)

// EnvOverrides holds values derived from environment variables. This does
// not modify a Config; callers apply the relevant fields themselves.
type EnvOverrides struct {
	ConfigPath string // RAMMINGEN_CONFIG: override config file path
	Token      string // RAMMINGEN_TOKEN: override the bearer token
}

// ReadEnvOverrides reads the environment and returns any overrides found.
func ReadEnvOverrides() EnvOverrides {
	return EnvOverrides{
		ConfigPath: os.Getenv(EnvConfig),
		Token:      os.Getenv(EnvToken),
	}
}

// CLIOverrides holds values derived from command-line flags, the
// highest-priority layer of the override chain.
type CLIOverrides struct {
	ConfigPath string
	Token      string
}
