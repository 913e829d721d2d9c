package syncengine

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/quasiyoke/rammingen/internal/shadowindex"
	"github.com/quasiyoke/rammingen/internal/wire"
)

// PullUpdates fetches every Entry with recorded_at > last_pulled from the
// server and commits them to the local remote-view cache, advancing the
// watermark only once the whole page is durably applied. On any failure partway through the stream, nothing is
// committed — the next PullUpdates call starts from the old watermark
// and re-fetches, which is safe because ApplyRemoteEntries's upsert
// ignores any cached entry with an equal or newer recorded_at.
func (e *Engine) PullUpdates(ctx context.Context) error {
	after, err := e.ctx.Store.GetLastPulledRecordedAt(ctx)
	if err != nil {
		return NewCoreError(KindIO, fmt.Errorf("syncengine: reading pull watermark: %w", err))
	}

	var (
		buffered []shadowindex.RemoteEntry
		maxSeen  = after
	)

	err = e.ctx.RPC.GetNewEntries(ctx, after, func(wireEntry *wire.Entry) error {
		re := toRemoteEntry(wireEntry)
		buffered = append(buffered, re)

		if re.RecordedAt > maxSeen {
			maxSeen = re.RecordedAt
		}

		return nil
	})
	if err != nil {
		return NewCoreError(Classify(err), fmt.Errorf("syncengine: pull_updates: fetching entries: %w", err))
	}

	if len(buffered) == 0 {
		return nil
	}

	if err := e.ctx.Store.ApplyRemoteEntries(ctx, buffered, maxSeen); err != nil {
		return NewCoreError(KindIO, fmt.Errorf("syncengine: pull_updates: committing entries: %w", err))
	}

	e.ctx.Logger.Debug("pull_updates applied entries",
		slog.Int("count", len(buffered)), slog.Int64("watermark", maxSeen))

	return nil
}

func toRemoteEntry(w *wire.Entry) shadowindex.RemoteEntry {
	return shadowindex.RemoteEntry{
		EncryptedPath: w.Path,
		RecordedAt:    w.RecordedAt,
		SourceID:      w.SourceID,
		Kind:          shadowindex.Kind(w.Kind),
		ContentHash:   append([]byte(nil), w.ContentHash[:]...),
		EncryptedSize: w.EncryptedSize,
		OriginalSize:  w.OriginalSize,
		ModifiedAt:    w.ModifiedAt,
		UnixMode:      w.UnixMode,
	}
}
