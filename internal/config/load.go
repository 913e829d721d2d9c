package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
)

// Load reads and parses a JSON5 config file and validates it:
// normalize comments/trailing
// commas, decode onto DefaultConfig's zero values so unset fields retain
// their defaults, then Validate.
func Load(path string, logger *slog.Logger) (*Config, error) {
	if logger == nil {
		logger = slog.Default()
	}

	logger.Debug("loading config file", "path", path)

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: reading %s: %w", path, err)
	}

	cfg := DefaultConfig()

	if err := json.Unmarshal(stripJSON5Comments(data), cfg); err != nil {
		return nil, fmt.Errorf("config: parsing %s: %w", path, err)
	}

	if cfg.LocalDBPath == "" {
		cfg.LocalDBPath = DefaultLocalDBPath()
	}

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("config: validating %s: %w", path, err)
	}

	logger.Debug("config file parsed successfully", "path", path, "mount_points", len(cfg.MountPoints))

	return cfg, nil
}

// LoadOrDefault reads a config file if it exists. It returns an error (not
// silently a bare-default config) when the file is missing, since
// rammingen has no usable zero-config default — a server URL, token,
// encryption key, and at least one mount point are always required.
func LoadOrDefault(path string, logger *slog.Logger) (*Config, error) {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("config: no config file at %s (set RAMMINGEN_CONFIG or pass --config)", path)
	}

	return Load(path, logger)
}

// Resolve applies the three-layer path/token override chain and loads the
// resulting config.
func Resolve(env EnvOverrides, cli CLIOverrides, logger *slog.Logger) (*Config, error) {
	path := ResolveConfigPath(env, cli)

	cfg, err := LoadOrDefault(path, logger)
	if err != nil {
		return nil, err
	}

	if cli.Token != "" {
		cfg.Token = cli.Token
	} else if env.Token != "" {
		cfg.Token = env.Token
	}

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	return cfg, nil
}
