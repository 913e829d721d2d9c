// Package config loads and validates rammingen's on-disk configuration:
// server credentials, the shared encryption key, and the set of mount
// points to keep in sync. Configuration is JSON5 on disk —
// a thin comment/trailing-comma-stripping pass in front of
// encoding/json — decoded then validated, scoped to rammingen's
// single-archive, multi-mount-point model.
package config

// RuleConfig is the on-disk form of a rules.Rule. Exactly one field is
// set; which one decides the rule kind, mirroring the tagged-sum rule
// engine itself rather than adding a separate "type" discriminator.
type RuleConfig struct {
	NameEquals  string `json:"name_equals,omitempty"`
	NameMatches string `json:"name_matches,omitempty"`
	PathEquals  string `json:"path_equals,omitempty"`
	PathMatches string `json:"path_matches,omitempty"`
}

// MountPointConfig is the on-disk form of a syncengine.MountPoint.
type MountPointConfig struct {
	LocalPath   string       `json:"local_path"`
	ArchivePath string       `json:"archive_path"`
	Exclude     []RuleConfig `json:"exclude,omitempty"`
}

// LoggingConfig controls log output, trimmed to the one knob
// rammingen's ambient logging actually reads.
type LoggingConfig struct {
	LogLevel string `json:"log_level,omitempty"`
}

// NetworkConfig holds the RPC client's HTTP transport timeouts.
// ConnectTimeout bounds dialing for every RPC; RequestTimeout is
// validated and defaulted but no request applies it.
type NetworkConfig struct {
	ConnectTimeout string `json:"connect_timeout,omitempty"`
	RequestTimeout string `json:"request_timeout,omitempty"`
}

// Config is rammingen's full on-disk configuration.
type Config struct {
	ServerURL     string             `json:"server_url"`
	Token         string             `json:"token"`
	EncryptionKey string             `json:"encryption_key"`
	Salt          string             `json:"salt"`
	LocalDBPath   string             `json:"local_db_path,omitempty"`
	AlwaysExclude []RuleConfig       `json:"always_exclude,omitempty"`
	MountPoints   []MountPointConfig `json:"mount_points"`
	Logging       LoggingConfig      `json:"logging,omitempty"`
	Network       NetworkConfig      `json:"network,omitempty"`
}
