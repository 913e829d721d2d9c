package syncengine

import (
	"context"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/quasiyoke/rammingen/internal/cryptoengine"
	"github.com/quasiyoke/rammingen/internal/pathutil"
	"github.com/quasiyoke/rammingen/internal/progress"
	"github.com/quasiyoke/rammingen/internal/shadowindex"
	"github.com/quasiyoke/rammingen/internal/wire"
)

func microsToTime(us int64) time.Time {
	return time.UnixMicro(us)
}

// resolvedPath is one archive path's state as of a particular instant,
// paired with the local path it materializes to.
type resolvedPath struct {
	local pathutil.SanitizedLocalPath
	entry *wire.Entry
}

// fetchHistory streams the server's full Entry log and groups it by
// encrypted path, ascending by recorded_at (GetNewEntries's contract).
// download_version and history both need the full per-path history, not
// just the shadow index's latest-state cache, so they replay the log
// directly rather than reading remote_entries.
func (e *Engine) fetchHistory(ctx context.Context, archivePrefix pathutil.ArchivePath) (map[string][]*wire.Entry, error) {
	prefixStr := archivePrefix.String()
	byPath := make(map[string][]*wire.Entry)

	err := e.ctx.RPC.GetNewEntries(ctx, 0, func(entry *wire.Entry) error {
		if entry.Path != prefixStr && !strings.HasPrefix(entry.Path, prefixStr+"/") {
			return nil
		}

		byPath[entry.Path] = append(byPath[entry.Path], entry)

		return nil
	})
	if err != nil {
		return nil, NewCoreError(Classify(err), fmt.Errorf("syncengine: fetching archive history: %w", err))
	}

	return byPath, nil
}

// resolveAsOf picks, for each encrypted path, the latest Entry with
// recorded_at <= asOf.
func resolveAsOf(byPath map[string][]*wire.Entry, asOf int64) map[string]*wire.Entry {
	out := make(map[string]*wire.Entry, len(byPath))

	for path, entries := range byPath {
		var latest *wire.Entry

		for _, e := range entries {
			if e.RecordedAt > asOf {
				break
			}

			latest = e
		}

		if latest != nil {
			out[path] = latest
		}
	}

	return out
}

// DownloadLatest materializes the current state of archivePrefix's
// subtree into localRoot.
func (e *Engine) DownloadLatest(ctx context.Context, archivePrefix pathutil.ArchivePath, localRoot pathutil.SanitizedLocalPath) error {
	return e.download(ctx, archivePrefix, localRoot, math.MaxInt64)
}

// DownloadVersion materializes archivePrefix's subtree as it stood at
// recordedAt, a point-in-time restore.
func (e *Engine) DownloadVersion(ctx context.Context, archivePrefix pathutil.ArchivePath, localRoot pathutil.SanitizedLocalPath, recordedAt int64) error {
	return e.download(ctx, archivePrefix, localRoot, recordedAt)
}

func (e *Engine) download(ctx context.Context, archivePrefix pathutil.ArchivePath, localRoot pathutil.SanitizedLocalPath, asOf int64) error {
	if asOf == math.MaxInt64 {
		if err := e.PullUpdates(ctx); err != nil {
			return err
		}
	}

	byPath, err := e.fetchHistory(ctx, archivePrefix)
	if err != nil {
		return err
	}

	resolved := resolveAsOf(byPath, asOf)

	mount := MountPoint{LocalPath: localRoot, ArchivePath: archivePrefix}

	var dirs, files, absents []resolvedPath

	for _, entry := range resolved {
		local, err := decryptToLocal(e.ctx.Crypto, mount, entry.Path)
		if err != nil {
			e.report(progress.EventError, entry.Path, err.Error())
			continue
		}

		rp := resolvedPath{local: local, entry: entry}

		switch entry.Kind {
		case wire.KindDirectoryPresent:
			dirs = append(dirs, rp)
		case wire.KindFilePresent:
			files = append(files, rp)
		case wire.KindAbsent:
			absents = append(absents, rp)
		}
	}

	sort.Slice(dirs, func(i, j int) bool { return depthOf(dirs[i].local) < depthOf(dirs[j].local) })

	if err := os.MkdirAll(localRoot.String(), 0o755); err != nil {
		return NewCoreError(KindIO, fmt.Errorf("syncengine: download: creating root %s: %w", localRoot.String(), err))
	}

	for _, d := range dirs {
		if err := e.materializeDirectory(ctx, d); err != nil {
			e.report(progress.EventError, d.local.String(), err.Error())
		}
	}

	for _, f := range files {
		if err := e.materializeFile(ctx, f); err != nil {
			e.report(progress.EventError, f.local.String(), err.Error())
		}
	}

	sort.Slice(absents, func(i, j int) bool { return depthOf(absents[i].local) > depthOf(absents[j].local) })

	for _, a := range absents {
		e.materializeAbsent(a)
	}

	return nil
}

func depthOf(p pathutil.SanitizedLocalPath) int {
	return strings.Count(filepath.ToSlash(p.String()), "/")
}

func (e *Engine) materializeDirectory(ctx context.Context, d resolvedPath) error {
	if err := os.MkdirAll(d.local.String(), 0o755); err != nil {
		return fmt.Errorf("creating directory: %w", err)
	}

	if d.entry.UnixMode != nil {
		os.Chmod(d.local.String(), os.FileMode(*d.entry.UnixMode))
	}

	var modifiedAt int64
	if d.entry.ModifiedAt != nil {
		modifiedAt = *d.entry.ModifiedAt
	}

	return e.ctx.Store.Put(ctx, d.local.String(), shadowindex.ShadowRecord{
		Kind:                      shadowindex.KindDirectoryPresent,
		ModifiedAt:                modifiedAt,
		UnixMode:                  d.entry.UnixMode,
		LastSeenArchiveRecordedAt: d.entry.RecordedAt,
	})
}

// materializeFile streams the decrypted content to a temporary sibling
// and atomically renames it into place, so a crash mid-download never
// leaves a partially-written file at the real path.
func (e *Engine) materializeFile(ctx context.Context, f resolvedPath) error {
	if err := os.MkdirAll(filepath.Dir(f.local.String()), 0o755); err != nil {
		return fmt.Errorf("creating parent directory: %w", err)
	}

	body, err := e.ctx.RPC.DownloadContent(ctx, f.entry.ContentHash)
	if err != nil {
		return fmt.Errorf("fetching content: %w", err)
	}
	defer body.Close()

	tmp, err := os.CreateTemp(filepath.Dir(f.local.String()), ".rammingen-download-*")
	if err != nil {
		return fmt.Errorf("creating staging file: %w", err)
	}

	tmpPath := tmp.Name()

	if err := e.ctx.Crypto.DecryptStream(tmp, body); err != nil {
		tmp.Close()
		os.Remove(tmpPath)

		return fmt.Errorf("%w", NewCoreError(KindIntegrity, err))
	}

	tmp.Close()

	if f.entry.UnixMode != nil {
		os.Chmod(tmpPath, os.FileMode(*f.entry.UnixMode))
	}

	if f.entry.ModifiedAt != nil {
		t := microsToTime(*f.entry.ModifiedAt)
		os.Chtimes(tmpPath, t, t)
	}

	if err := os.Rename(tmpPath, f.local.String()); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("finalizing %s: %w", f.local.String(), err)
	}

	var modifiedAt int64
	if f.entry.ModifiedAt != nil {
		modifiedAt = *f.entry.ModifiedAt
	}

	if err := e.ctx.Store.Put(ctx, f.local.String(), shadowindex.ShadowRecord{
		Kind:                      shadowindex.KindFilePresent,
		ContentHash:               append([]byte(nil), f.entry.ContentHash[:]...),
		OriginalSize:              f.entry.OriginalSize,
		ModifiedAt:                modifiedAt,
		UnixMode:                  f.entry.UnixMode,
		LastSeenArchiveRecordedAt: f.entry.RecordedAt,
	}); err != nil {
		return fmt.Errorf("updating shadow record: %w", err)
	}

	e.ctx.Progress.AddBytesRecv(f.entry.EncryptedSize)
	e.report(progress.EventDownloaded, f.local.String(), cryptoengine.ContentHash(f.entry.ContentHash).String())

	return nil
}

func (e *Engine) materializeAbsent(a resolvedPath) {
	if err := os.RemoveAll(a.local.String()); err != nil && !os.IsNotExist(err) {
		e.report(progress.EventError, a.local.String(), err.Error())
		return
	}

	if err := e.ctx.Store.Delete(context.Background(), a.local.String()); err != nil {
		e.report(progress.EventError, a.local.String(), err.Error())
		return
	}

	e.report(progress.EventDeleted, a.local.String(), "")
}
