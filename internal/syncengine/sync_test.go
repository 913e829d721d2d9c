package syncengine

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quasiyoke/rammingen/internal/pathutil"
	"github.com/quasiyoke/rammingen/internal/progress"
	"github.com/quasiyoke/rammingen/internal/rpcclient"
	"github.com/quasiyoke/rammingen/internal/wire"
	"github.com/quasiyoke/rammingen/pkg/sourceid"
)

// fakeArchiveServer is a minimal in-memory stand-in for the eight server
// RPCs, just enough to drive a round trip through two independent clients
// sharing one crypto engine (same master key and salt, required
// for cross-client dedup).
type fakeArchiveServer struct {
	mu      sync.Mutex
	entries []*wire.Entry
	content map[string][]byte
}

func newFakeArchiveServer() *httptest.Server {
	s := &fakeArchiveServer{content: make(map[string][]byte)}

	mux := http.NewServeMux()

	mux.HandleFunc("/entries", func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			after, _ := strconv.ParseInt(r.URL.Query().Get("after"), 10, 64)

			s.mu.Lock()
			defer s.mu.Unlock()

			for _, e := range s.entries {
				if e.RecordedAt > after {
					_ = wire.EncodeEntry(w, e)
				}
			}
		case http.MethodPost:
			e, err := wire.DecodeEntry(prefixLengthBody(r))
			if err != nil {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}

			s.mu.Lock()
			e.RecordedAt = int64(len(s.entries) + 1)
			s.entries = append(s.entries, e)
			recordedAt := e.RecordedAt
			s.mu.Unlock()

			fmt.Fprintf(w, "%d", recordedAt)
		}
	})

	mux.HandleFunc("/move", func(w http.ResponseWriter, r *http.Request) {
		s.appendMutation(w, r, wire.KindFilePresent, "new")
	})

	mux.HandleFunc("/remove", func(w http.ResponseWriter, r *http.Request) {
		s.appendMutation(w, r, wire.KindAbsent, "path")
	})

	mux.HandleFunc("/reset", func(w http.ResponseWriter, r *http.Request) {
		s.appendMutation(w, r, wire.KindFilePresent, "path")
	})

	mux.HandleFunc("/content/", func(w http.ResponseWriter, r *http.Request) {
		hash := strings.TrimPrefix(r.URL.Path, "/content/")

		s.mu.Lock()
		defer s.mu.Unlock()

		switch r.Method {
		case http.MethodHead:
			if _, ok := s.content[hash]; !ok {
				w.WriteHeader(http.StatusNotFound)
			}
		case http.MethodPut:
			body, _ := io.ReadAll(r.Body)
			s.content[hash] = body
		case http.MethodGet:
			body, ok := s.content[hash]
			if !ok {
				w.WriteHeader(http.StatusNotFound)
				return
			}

			w.Write(body)
		}
	})

	return httptest.NewServer(mux)
}

// appendMutation backs the fake server's /move, /remove, and /reset
// endpoints: each appends exactly one new Entry for pathField and reports
// it in the entries_appended count, matching the real server's contract
// that move/remove/reset append rather than rewrite history.
func (s *fakeArchiveServer) appendMutation(w http.ResponseWriter, r *http.Request, kind wire.Kind, pathField string) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	s.mu.Lock()
	e := &wire.Entry{
		Path:       r.Form.Get(pathField),
		RecordedAt: int64(len(s.entries) + 1),
		Kind:       kind,
	}
	s.entries = append(s.entries, e)
	s.mu.Unlock()

	fmt.Fprintf(w, `{"entries_appended": 1}`)
}

// prefixLengthBody adapts an http.Request's body (already the full
// length-prefixed frame AddEntry sent) for wire.DecodeEntry.
func prefixLengthBody(r *http.Request) io.Reader {
	return r.Body
}

func newTestClient(t *testing.T, baseURL string) *rpcclient.Client {
	t.Helper()

	return rpcclient.New(baseURL, "test-token", nil, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

// TestSyncRoundTripsBetweenTwoClients covers the round-trip property:
// client A uploads a tree, client B (fresh shadow index, same
// crypto key/salt) syncs and materializes byte-identical content.
func TestSyncRoundTripsBetweenTwoClients(t *testing.T) {
	srv := newFakeArchiveServer()
	defer srv.Close()

	crypto := testCrypto(t)

	dirA := t.TempDir()
	writeFile(t, filepath.Join(dirA, "docs", "report.pdf"), "plaintext body")

	mountA := MountPoint{
		LocalPath:   sanitizeT(t, dirA),
		ArchivePath: mustArchivePath(t, "ar:/my_files"),
	}

	engineA := New(&Ctx{
		Store:    testStore(t),
		RPC:      newTestClient(t, srv.URL),
		Crypto:   crypto,
		SourceID: sourceid.New(),
		Progress: progress.New(io.Discard),
		Logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
		Mounts:   []MountPoint{mountA},
	})

	require.NoError(t, engineA.Sync(context.Background(), false))

	dirB := t.TempDir()
	mountB := MountPoint{
		LocalPath:   sanitizeT(t, dirB),
		ArchivePath: mustArchivePath(t, "ar:/my_files"),
	}

	engineB := New(&Ctx{
		Store:    testStore(t),
		RPC:      newTestClient(t, srv.URL),
		Crypto:   crypto,
		SourceID: sourceid.New(),
		Progress: progress.New(io.Discard),
		Logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
		Mounts:   []MountPoint{mountB},
	})

	require.NoError(t, engineB.Sync(context.Background(), false))

	got, err := os.ReadFile(filepath.Join(dirB, "docs", "report.pdf"))
	require.NoError(t, err)
	assert.Equal(t, "plaintext body", string(got))
}

func mustArchivePath(t *testing.T, s string) pathutil.ArchivePath {
	t.Helper()

	p, err := pathutil.ParseArchivePath(s)
	require.NoError(t, err)

	return p
}

// TestSyncDryRunTouchesNothing confirms DryRun reports actions without
// mutating the filesystem, the shadow index, or issuing AddEntry/
// UploadContent.
func TestSyncDryRunTouchesNothing(t *testing.T) {
	srv := newFakeArchiveServer()
	defer srv.Close()

	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "a.txt"), "hello")

	mount := MountPoint{LocalPath: sanitizeT(t, dir), ArchivePath: mustArchivePath(t, "ar:/root")}

	e := New(&Ctx{
		Store:    testStore(t),
		RPC:      newTestClient(t, srv.URL),
		Crypto:   testCrypto(t),
		SourceID: sourceid.New(),
		Progress: progress.New(io.Discard),
		Logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
		Mounts:   []MountPoint{mount},
	})

	require.NoError(t, e.Sync(context.Background(), true))

	_, found, err := e.ctx.Store.Get(context.Background(), filepath.Join(dir, "a.txt"))
	require.NoError(t, err)
	assert.False(t, found, "dry run must not write shadow records")

	events := e.ctx.Progress.Events()
	require.NotEmpty(t, events)

	for _, ev := range events {
		assert.Contains(t, ev.Detail, "dry-run")
	}
}
