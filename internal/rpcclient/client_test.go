package rpcclient

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quasiyoke/rammingen/internal/cryptoengine"
	"github.com/quasiyoke/rammingen/internal/wire"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()

	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	c := New(srv.URL, "test-token", nil, nil)
	c.sleepFunc = func(context.Context, time.Duration) error { return nil } // no real sleeping in tests

	return c
}

func TestAuthorizationHeaderSent(t *testing.T) {
	var gotAuth string

	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		w.WriteHeader(http.StatusOK)
	})

	_, err := c.HasContent(context.Background(), cryptoengine.ContentHash{})
	require.NoError(t, err)
	assert.Equal(t, "Bearer test-token", gotAuth)
}

func TestGetNewEntriesStreamsFrames(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		for i := range 3 {
			e := &wire.Entry{Path: "ar:/x", RecordedAt: int64(i + 1), Kind: wire.KindAbsent}
			require.NoError(t, wire.EncodeEntry(w, e))
		}
	})

	var got []int64

	err := c.GetNewEntries(context.Background(), 0, func(e *wire.Entry) error {
		got = append(got, e.RecordedAt)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 2, 3}, got)
}

func TestAddEntryParsesRecordedAt(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)

		_, err = wire.DecodeEntry(bytes.NewReader(body))
		require.NoError(t, err)

		w.Write([]byte("7"))
	})

	recordedAt, err := c.AddEntry(context.Background(), &wire.Entry{Path: "ar:/a", Kind: wire.KindAbsent})
	require.NoError(t, err)
	assert.Equal(t, int64(7), recordedAt)
}

func TestHasContentFalseOn404(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	ok, err := c.HasContent(context.Background(), cryptoengine.ContentHash{})
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRetriesOn500ThenSucceeds(t *testing.T) {
	var calls int

	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}

		w.WriteHeader(http.StatusOK)
	})

	ok, err := c.HasContent(context.Background(), cryptoengine.ContentHash{})
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 3, calls)
}

func Test400NotRetried(t *testing.T) {
	var calls int

	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusBadRequest)
	})

	_, err := c.HasContent(context.Background(), cryptoengine.ContentHash{})
	require.Error(t, err)
	assert.Equal(t, 1, calls)

	var coreErr *CoreError
	require.ErrorAs(t, err, &coreErr)
	assert.Equal(t, KindUserInput, coreErr.Kind)
}

func TestMovePathDecodesStats(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "ar:/a", r.FormValue("old"))
		assert.Equal(t, "ar:/b", r.FormValue("new"))

		json.NewEncoder(w).Encode(Stats{EntriesAppended: 2})
	})

	stats, err := c.MovePath(context.Background(), "ar:/a", "ar:/b")
	require.NoError(t, err)
	assert.Equal(t, int64(2), stats.EntriesAppended)
}
