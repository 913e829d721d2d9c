package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quasiyoke/rammingen/internal/pathutil"
)

// TestBuildMountsAppliesAlwaysExcludeToEveryMount covers the reload path
// (sync --watch's SIGHUP handler calls BuildMounts directly, without
// touching the shadow index or RPC client BuildCtx also wires).
func TestBuildMountsAppliesAlwaysExcludeToEveryMount(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json5")

	require.NoError(t, os.WriteFile(path, []byte(validConfigJSON5(t, dir)), 0o600))

	cfg, err := Load(path, testLogger())
	require.NoError(t, err)

	// A name without a leading dot, so the mount's own `^\.` rule cannot
	// be what excludes it.
	cfg.AlwaysExclude = []RuleConfig{{NameEquals: "Thumbs.db"}}

	mounts, err := BuildMounts(cfg)
	require.NoError(t, err)
	require.Len(t, mounts, 1)

	excluded, err := pathutil.Sanitize(filepath.Join(dir, "Thumbs.db"))
	require.NoError(t, err)

	assert.True(t, mounts[0].Rules.IsExcluded(excluded))
}

func TestBuildMountsRejectsBadExcludeRule(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json5")

	require.NoError(t, os.WriteFile(path, []byte(validConfigJSON5(t, dir)), 0o600))

	cfg, err := Load(path, testLogger())
	require.NoError(t, err)

	cfg.MountPoints[0].Exclude = []RuleConfig{{NameMatches: "("}}

	_, err = BuildMounts(cfg)
	require.Error(t, err)
}
