package config

import (
	"fmt"
	"time"

	"github.com/quasiyoke/rammingen/internal/cryptoengine"
	"github.com/quasiyoke/rammingen/internal/pathutil"
)

// Validate checks cfg for the fields a sync run cannot proceed without,
// returning the first problem found.
func Validate(cfg *Config) error {
	if cfg.ServerURL == "" {
		return fmt.Errorf("config: server_url is required")
	}

	if cfg.Token == "" {
		return fmt.Errorf("config: token is required")
	}

	if cfg.Salt == "" {
		return fmt.Errorf("config: salt is required")
	}

	if cfg.EncryptionKey == "" {
		return fmt.Errorf("config: encryption_key is required")
	}

	if _, err := cryptoengine.ParseMasterKey(cfg.EncryptionKey); err != nil {
		return fmt.Errorf("config: encryption_key: %w", err)
	}

	if len(cfg.MountPoints) == 0 {
		return fmt.Errorf("config: at least one entry in mount_points is required")
	}

	for i, mp := range cfg.MountPoints {
		if err := validateMountPoint(mp); err != nil {
			return fmt.Errorf("config: mount_points[%d]: %w", i, err)
		}
	}

	if err := validateRules(cfg.AlwaysExclude); err != nil {
		return fmt.Errorf("config: always_exclude: %w", err)
	}

	if cfg.Network.ConnectTimeout != "" {
		if _, err := time.ParseDuration(cfg.Network.ConnectTimeout); err != nil {
			return fmt.Errorf("config: network.connect_timeout: %w", err)
		}
	}

	if cfg.Network.RequestTimeout != "" {
		if _, err := time.ParseDuration(cfg.Network.RequestTimeout); err != nil {
			return fmt.Errorf("config: network.request_timeout: %w", err)
		}
	}

	switch cfg.Logging.LogLevel {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("config: logging.log_level %q is not one of debug/info/warn/error", cfg.Logging.LogLevel)
	}

	return nil
}

func validateMountPoint(mp MountPointConfig) error {
	if mp.LocalPath == "" {
		return fmt.Errorf("local_path is required")
	}

	if mp.ArchivePath == "" {
		return fmt.Errorf("archive_path is required")
	}

	if _, err := pathutil.ParseArchivePath(mp.ArchivePath); err != nil {
		return fmt.Errorf("archive_path: %w", err)
	}

	return validateRules(mp.Exclude)
}

func validateRules(rules []RuleConfig) error {
	for i, r := range rules {
		if err := validateRule(r); err != nil {
			return fmt.Errorf("[%d]: %w", i, err)
		}
	}

	return nil
}

func validateRule(r RuleConfig) error {
	set := 0

	for _, v := range []string{r.NameEquals, r.NameMatches, r.PathEquals, r.PathMatches} {
		if v != "" {
			set++
		}
	}

	if set != 1 {
		return fmt.Errorf("exactly one of name_equals/name_matches/path_equals/path_matches must be set, got %d", set)
	}

	return nil
}
