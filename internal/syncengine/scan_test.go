package syncengine

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quasiyoke/rammingen/internal/rules"
	"github.com/quasiyoke/rammingen/internal/shadowindex"
)

func TestScanLocalDetectsAdded(t *testing.T) {
	dir := t.TempDir()
	mount := testMount(t, dir, "ar:/root")
	e := testEngine(t)

	writeFile(t, filepath.Join(dir, "a.txt"), "hello")

	changes, err := e.ScanLocal(context.Background(), mount)
	require.NoError(t, err)

	assert.Equal(t, []string{filepath.Join(dir, "a.txt")}, changes.Added)
	assert.Empty(t, changes.Modified)
	assert.Empty(t, changes.Removed)
}

func TestScanLocalDetectsModifiedViaHash(t *testing.T) {
	dir := t.TempDir()
	mount := testMount(t, dir, "ar:/root")
	e := testEngine(t)
	ctx := context.Background()

	path := filepath.Join(dir, "a.txt")
	writeFile(t, path, "version one")

	info, err := os.Stat(path)
	require.NoError(t, err)

	require.NoError(t, e.ctx.Store.Put(ctx, path, shadowindex.ShadowRecord{
		Kind:         shadowindex.KindFilePresent,
		ContentHash:  []byte("stale-hash-value-000000000000000"),
		OriginalSize: info.Size(),
		// An older mtime breaks the signature match, so the file is hashed.
		ModifiedAt: info.ModTime().UnixMicro() - 1_000_000,
	}))

	changes, err := e.ScanLocal(ctx, mount)
	require.NoError(t, err)

	assert.Empty(t, changes.Added)
	assert.Empty(t, changes.Removed)
	assert.Equal(t, []string{path}, changes.Modified, "content hash differs from the stale shadow record even though size matches")
}

func TestScanLocalUnchangedWhenSignatureAndHashMatch(t *testing.T) {
	dir := t.TempDir()
	mount := testMount(t, dir, "ar:/root")
	e := testEngine(t)
	ctx := context.Background()

	path := filepath.Join(dir, "a.txt")
	writeFile(t, path, "stable content")

	info, err := os.Stat(path)
	require.NoError(t, err)

	f, err := os.Open(path)
	require.NoError(t, err)

	hash, err := e.ctx.Crypto.HashContent(f)
	require.NoError(t, err)
	f.Close()

	require.NoError(t, e.ctx.Store.Put(ctx, path, shadowindex.ShadowRecord{
		Kind:         shadowindex.KindFilePresent,
		ContentHash:  hash[:],
		OriginalSize: info.Size(),
		ModifiedAt:   info.ModTime().UnixMicro(),
	}))

	changes, err := e.ScanLocal(ctx, mount)
	require.NoError(t, err)

	assert.Empty(t, changes.Added)
	assert.Empty(t, changes.Modified)
	assert.Empty(t, changes.Removed)
}

func TestScanLocalDetectsRemoved(t *testing.T) {
	dir := t.TempDir()
	mount := testMount(t, dir, "ar:/root")
	e := testEngine(t)
	ctx := context.Background()

	gone := filepath.Join(dir, "gone.txt")
	require.NoError(t, e.ctx.Store.Put(ctx, gone, shadowindex.ShadowRecord{Kind: shadowindex.KindFilePresent}))

	changes, err := e.ScanLocal(ctx, mount)
	require.NoError(t, err)

	assert.Equal(t, []string{gone}, changes.Removed)
}

func TestScanLocalHonorsExcludeRules(t *testing.T) {
	dir := t.TempDir()
	e := testEngine(t)

	nameMatches, err := rules.NameMatches(`^ignored`)
	require.NoError(t, err)

	mount := testMount(t, dir, "ar:/root")
	mount.Rules = rules.New([]rules.Rule{nameMatches})

	writeFile(t, filepath.Join(dir, "ignored_file.txt"), "x")
	writeFile(t, filepath.Join(dir, "kept.txt"), "y")

	changes, err := e.ScanLocal(context.Background(), mount)
	require.NoError(t, err)

	assert.Equal(t, []string{filepath.Join(dir, "kept.txt")}, changes.Added)
}
