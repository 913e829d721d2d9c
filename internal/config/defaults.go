package config

// Default values for configuration options, layer 0 of the
// CLI flag > environment variable > config file > default override chain.
const (
	defaultLogLevel      = "info"
	defaultConnectTimeout = "10s"
	defaultRequestTimeout = "60s"
)

// DefaultConfig returns a Config populated with default values for every
// field Load doesn't require the file to set. Required fields
// (ServerURL, Token, EncryptionKey, Salt, MountPoints) are left zero;
// Validate rejects them if the file didn't supply one.
func DefaultConfig() *Config {
	return &Config{
		Logging: LoggingConfig{LogLevel: defaultLogLevel},
		Network: NetworkConfig{
			ConnectTimeout: defaultConnectTimeout,
			RequestTimeout: defaultRequestTimeout,
		},
	}
}
