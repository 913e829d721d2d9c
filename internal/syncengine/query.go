package syncengine

import (
	"context"
	"fmt"
	"os"

	"github.com/quasiyoke/rammingen/internal/pathutil"
	"github.com/quasiyoke/rammingen/internal/progress"
	"github.com/quasiyoke/rammingen/internal/rpcclient"
	"github.com/quasiyoke/rammingen/internal/shadowindex"
)

// findMount returns the configured mount point whose ArchivePath is a
// prefix of (or equal to) target, the one move/remove/reset/ls/history
// use to translate between plaintext and encrypted archive paths. Those
// commands operate purely in archive space; only the configured mounts
// know which archive subtree maps to which crypto context.
func (e *Engine) findMount(target pathutil.ArchivePath) (MountPoint, error) {
	for _, m := range e.ctx.Mounts {
		if target.Equal(m.ArchivePath) || target.StartsWith(m.ArchivePath) {
			return m, nil
		}
	}

	return MountPoint{}, NewCoreError(KindUserInput, fmt.Errorf("syncengine: %s is not under any configured mount's archive path", target.String()))
}

// encryptArchivePath translates a plaintext archive path into its wire
// EncryptedArchivePath form, encrypting only the segments below the
// owning mount's archive root.
func (e *Engine) encryptArchivePath(target pathutil.ArchivePath) (MountPoint, string, error) {
	mount, err := e.findMount(target)
	if err != nil {
		return MountPoint{}, "", err
	}

	rel, err := target.RelativeTo(mount.ArchivePath)
	if err != nil {
		return MountPoint{}, "", NewCoreError(KindUserInput, fmt.Errorf("syncengine: %w", err))
	}

	archive := mount.ArchivePath

	for _, seg := range rel {
		enc, err := e.ctx.Crypto.EncryptSegment(seg)
		if err != nil {
			return MountPoint{}, "", fmt.Errorf("syncengine: encrypting path segment %q: %w", seg, err)
		}

		archive, err = archive.Join(enc)
		if err != nil {
			return MountPoint{}, "", fmt.Errorf("syncengine: joining encrypted segment: %w", err)
		}
	}

	return mount, archive.String(), nil
}

// decryptArchivePath reverses encryptArchivePath given the owning mount.
func (e *Engine) decryptArchivePath(mount MountPoint, encrypted string) (pathutil.ArchivePath, error) {
	ap, err := pathutil.ParseArchivePath(encrypted)
	if err != nil {
		return pathutil.ArchivePath{}, fmt.Errorf("syncengine: parsing archive path %q: %w", encrypted, err)
	}

	rel, err := ap.RelativeTo(mount.ArchivePath)
	if err != nil {
		return pathutil.ArchivePath{}, fmt.Errorf("syncengine: %w", err)
	}

	out := mount.ArchivePath

	for _, seg := range rel {
		plain, err := e.ctx.Crypto.DecryptSegment(seg)
		if err != nil {
			return pathutil.ArchivePath{}, fmt.Errorf("%w", NewCoreError(KindIntegrity, fmt.Errorf("decrypting segment %q: %w", seg, err)))
		}

		out, err = out.Join(plain)
		if err != nil {
			return pathutil.ArchivePath{}, fmt.Errorf("syncengine: joining decrypted segment: %w", err)
		}
	}

	return out, nil
}

// Move renames oldPath to newPath in the archive.
func (e *Engine) Move(ctx context.Context, oldPath, newPath pathutil.ArchivePath) (rpcclient.Stats, error) {
	_, oldEnc, err := e.encryptArchivePath(oldPath)
	if err != nil {
		return rpcclient.Stats{}, err
	}

	_, newEnc, err := e.encryptArchivePath(newPath)
	if err != nil {
		return rpcclient.Stats{}, err
	}

	stats, err := e.ctx.RPC.MovePath(ctx, oldEnc, newEnc)
	if err != nil {
		return rpcclient.Stats{}, NewCoreError(Classify(err), err)
	}

	return stats, nil
}

// Remove tombstones path in the archive.
func (e *Engine) Remove(ctx context.Context, path pathutil.ArchivePath) (rpcclient.Stats, error) {
	_, enc, err := e.encryptArchivePath(path)
	if err != nil {
		return rpcclient.Stats{}, err
	}

	stats, err := e.ctx.RPC.RemovePath(ctx, enc)
	if err != nil {
		return rpcclient.Stats{}, NewCoreError(Classify(err), err)
	}

	return stats, nil
}

// Reset appends Entries restoring path's state as of recordedAt, without
// rewriting history.
func (e *Engine) Reset(ctx context.Context, path pathutil.ArchivePath, recordedAt int64) (rpcclient.Stats, error) {
	_, enc, err := e.encryptArchivePath(path)
	if err != nil {
		return rpcclient.Stats{}, err
	}

	stats, err := e.ctx.RPC.ResetVersion(ctx, enc, recordedAt)
	if err != nil {
		return rpcclient.Stats{}, NewCoreError(Classify(err), err)
	}

	return stats, nil
}

// ListedEntry is one row of an `ls` result: a decrypted archive path
// paired with the cached remote state the shadow index last pulled for
// it.
type ListedEntry struct {
	Path  pathutil.ArchivePath
	Entry shadowindex.RemoteEntry
}

// ListArchive reports prefix's descendants as of the shadow index's last
// pull. It does not fetch new Entries itself; callers
// that want a fully current listing should PullUpdates first. Absent
// (tombstoned) entries are included only when includeDeleted is set.
func (e *Engine) ListArchive(ctx context.Context, prefix pathutil.ArchivePath) ([]ListedEntry, error) {
	return e.listArchive(ctx, prefix, false)
}

// ListArchiveIncludingDeleted is ListArchive with tombstoned entries
// included (`ls --deleted`).
func (e *Engine) ListArchiveIncludingDeleted(ctx context.Context, prefix pathutil.ArchivePath) ([]ListedEntry, error) {
	return e.listArchive(ctx, prefix, true)
}

func (e *Engine) listArchive(ctx context.Context, prefix pathutil.ArchivePath, includeDeleted bool) ([]ListedEntry, error) {
	mount, err := e.findMount(prefix)
	if err != nil {
		return nil, err
	}

	_, encPrefix, err := e.encryptArchivePath(prefix)
	if err != nil {
		return nil, err
	}

	remotes, err := e.ctx.Store.ListRemoteDescendants(ctx, encPrefix)
	if err != nil {
		return nil, NewCoreError(KindIO, fmt.Errorf("syncengine: listing %s: %w", prefix.String(), err))
	}

	out := make([]ListedEntry, 0, len(remotes))

	for _, re := range remotes {
		if re.Kind == shadowindex.KindAbsent && !includeDeleted {
			continue
		}

		plain, err := e.decryptArchivePath(mount, re.EncryptedPath)
		if err != nil {
			e.report(progress.EventError, re.EncryptedPath, err.Error())
			continue
		}

		out = append(out, ListedEntry{Path: plain, Entry: re})
	}

	return out, nil
}

// HistoryRecord is one line of an `history` result: a decrypted archive
// path's state as of one logged Entry.
type HistoryRecord struct {
	Path       pathutil.ArchivePath
	RecordedAt int64
	Kind       shadowindex.Kind
}

// History replays the server's full Entry log for prefix's subtree and
// returns every logged state change in ascending recorded_at order.
func (e *Engine) History(ctx context.Context, prefix pathutil.ArchivePath) ([]HistoryRecord, error) {
	mount, err := e.findMount(prefix)
	if err != nil {
		return nil, err
	}

	byPath, err := e.fetchHistory(ctx, prefix)
	if err != nil {
		return nil, err
	}

	var out []HistoryRecord

	for _, entries := range byPath {
		for _, entry := range entries {
			plain, err := e.decryptArchivePath(mount, entry.Path)
			if err != nil {
				e.report(progress.EventError, entry.Path, err.Error())
				continue
			}

			out = append(out, HistoryRecord{
				Path:       plain,
				RecordedAt: entry.RecordedAt,
				Kind:       shadowindex.Kind(entry.Kind),
			})
		}
	}

	sortHistoryRecords(out)

	return out, nil
}

func sortHistoryRecords(recs []HistoryRecord) {
	for i := 1; i < len(recs); i++ {
		for j := i; j > 0 && recs[j].RecordedAt < recs[j-1].RecordedAt; j-- {
			recs[j], recs[j-1] = recs[j-1], recs[j]
		}
	}
}

// StatusReport is `local-status`'s result: whether the shadow index
// agrees with the path's on-disk state.
type StatusReport struct {
	LocalPath string
	Found     bool
	Record    shadowindex.ShadowRecord
	Matches   bool
}

// LocalStatus reports the shadow record for localPath and whether its
// recorded signature (size, mtime and, when recorded, mode) still matches
// the file on disk. The file's content is not re-hashed.
func (e *Engine) LocalStatus(ctx context.Context, localPath pathutil.SanitizedLocalPath) (StatusReport, error) {
	rec, found, err := e.ctx.Store.Get(ctx, localPath.String())
	if err != nil {
		return StatusReport{}, NewCoreError(KindIO, fmt.Errorf("syncengine: reading shadow record for %s: %w", localPath.String(), err))
	}

	if !found {
		return StatusReport{LocalPath: localPath.String(), Found: false}, nil
	}

	if rec.Kind != shadowindex.KindFilePresent {
		return StatusReport{LocalPath: localPath.String(), Found: true, Record: rec, Matches: true}, nil
	}

	sig, err := computeLocalSignature(localPath.String())
	if err != nil {
		return StatusReport{LocalPath: localPath.String(), Found: true, Record: rec, Matches: false}, nil
	}

	return StatusReport{
		LocalPath: localPath.String(),
		Found:     true,
		Record:    rec,
		Matches:   signatureMatches(sig, rec),
	}, nil
}

// computeLocalSignature stats path and builds the cheap signature
// scan_local compares against a ShadowRecord, for
// single-path lookups outside a full tree walk.
func computeLocalSignature(path string) (localSignature, error) {
	info, err := os.Stat(path)
	if err != nil {
		return localSignature{}, err
	}

	return localSignature{
		size:     info.Size(),
		modified: info.ModTime().UnixMicro(),
		mode:     uint32(info.Mode().Perm()),
	}, nil
}
