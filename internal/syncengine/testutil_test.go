package syncengine

import (
	"context"
	"crypto/rand"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/quasiyoke/rammingen/internal/cryptoengine"
	"github.com/quasiyoke/rammingen/internal/pathutil"
	"github.com/quasiyoke/rammingen/internal/progress"
	"github.com/quasiyoke/rammingen/internal/rules"
	"github.com/quasiyoke/rammingen/internal/shadowindex"
	"github.com/quasiyoke/rammingen/pkg/sourceid"
)

func testCrypto(t *testing.T) *cryptoengine.Engine {
	t.Helper()

	var key cryptoengine.MasterKey
	_, err := rand.Read(key[:])
	require.NoError(t, err)

	e, err := cryptoengine.New(key, "test-salt")
	require.NoError(t, err)

	return e
}

func testStore(t *testing.T) *shadowindex.Store {
	t.Helper()

	s, err := shadowindex.Open(context.Background(), filepath.Join(t.TempDir(), "shadow.db"), nil)
	require.NoError(t, err)

	t.Cleanup(func() { s.Close() })

	return s
}

func testEngine(t *testing.T, mounts ...MountPoint) *Engine {
	t.Helper()

	return New(&Ctx{
		Store:    testStore(t),
		RPC:      nil,
		Crypto:   testCrypto(t),
		SourceID: sourceid.New(),
		Progress: progress.New(io.Discard),
		Logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
		Mounts:   mounts,
	})
}

func testMount(t *testing.T, localDir string, archiveRoot string) MountPoint {
	t.Helper()

	lp, err := pathutil.Sanitize(localDir)
	require.NoError(t, err)

	ap, err := pathutil.ParseArchivePath(archiveRoot)
	require.NoError(t, err)

	return MountPoint{LocalPath: lp, ArchivePath: ap, Rules: rules.New()}
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()

	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}
