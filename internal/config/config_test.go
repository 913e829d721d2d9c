package config

import (
	"encoding/base64"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func validConfigJSON5(t *testing.T, localPath string) string {
	t.Helper()

	var key [64]byte
	for i := range key {
		key[i] = byte(i)
	}

	encoded := base64.RawURLEncoding.EncodeToString(key[:])

	return `{
  // server connection
  "server_url": "https://archive.example.com",
  "token": "s3cr3t",
  "encryption_key": "` + encoded + `",
  "salt": "test-salt",
  "mount_points": [
    {
      "local_path": "` + localPath + `",
      "archive_path": "ar:/docs",
      "exclude": [
        { "name_matches": "^\\." },
      ],
    },
  ],
}
`
}

func TestLoadParsesJSON5CommentsAndTrailingCommas(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json5")

	require.NoError(t, os.WriteFile(path, []byte(validConfigJSON5(t, dir)), 0o600))

	cfg, err := Load(path, testLogger())
	require.NoError(t, err)

	assert.Equal(t, "https://archive.example.com", cfg.ServerURL)
	assert.Equal(t, "s3cr3t", cfg.Token)
	require.Len(t, cfg.MountPoints, 1)
	assert.Equal(t, "ar:/docs", cfg.MountPoints[0].ArchivePath)
	require.Len(t, cfg.MountPoints[0].Exclude, 1)
	assert.Equal(t, `^\.`, cfg.MountPoints[0].Exclude[0].NameMatches)
	assert.NotEmpty(t, cfg.LocalDBPath, "LocalDBPath defaults when omitted")
}

func TestLoadRejectsMissingRequiredFields(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json5")

	require.NoError(t, os.WriteFile(path, []byte(`{"server_url": "https://x"}`), 0o600))

	_, err := Load(path, testLogger())
	require.Error(t, err)
}

func TestValidateRejectsMalformedEncryptionKey(t *testing.T) {
	cfg := &Config{
		ServerURL:     "https://x",
		Token:         "t",
		Salt:          "s",
		EncryptionKey: "not-base64!!",
		MountPoints:   []MountPointConfig{{LocalPath: "/tmp", ArchivePath: "ar:/a"}},
	}

	err := Validate(cfg)
	assert.Error(t, err)
}

func TestValidateRejectsRuleWithNoPredicateSet(t *testing.T) {
	dir := t.TempDir()

	cfg := &Config{
		ServerURL:     "https://x",
		Token:         "t",
		Salt:          "s",
		EncryptionKey: validKey(),
		MountPoints: []MountPointConfig{
			{LocalPath: dir, ArchivePath: "ar:/a", Exclude: []RuleConfig{{}}},
		},
	}

	err := Validate(cfg)
	assert.Error(t, err)
}

func TestResolvePrefersCLITokenOverEnvOverConfigFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json5")
	require.NoError(t, os.WriteFile(path, []byte(validConfigJSON5(t, dir)), 0o600))

	cfg, err := Resolve(
		EnvOverrides{ConfigPath: path, Token: "env-token"},
		CLIOverrides{Token: "cli-token"},
		testLogger(),
	)
	require.NoError(t, err)
	assert.Equal(t, "cli-token", cfg.Token)
}

func validKey() string {
	var key [64]byte
	return base64.RawURLEncoding.EncodeToString(key[:])
}
