package syncengine

import (
	"context"
	"fmt"
	"sort"

	"github.com/quasiyoke/rammingen/internal/pathutil"
	"github.com/quasiyoke/rammingen/internal/progress"
	"github.com/quasiyoke/rammingen/internal/shadowindex"
	"github.com/quasiyoke/rammingen/internal/wire"
)

// Sync runs two-way synchronization across every
// configured mount: pull_updates, then per mount scan_local → reconcile →
// execute. dryRun reports every action that would be taken without
// touching the filesystem, the shadow records, or issuing any mutating
// RPC; pull_updates still runs and refreshes the cached remote view.
func (e *Engine) Sync(ctx context.Context, dryRun bool) error {
	if err := e.PullUpdates(ctx); err != nil {
		return err
	}

	for _, mount := range e.ctx.Mounts {
		if err := e.syncMount(ctx, mount, dryRun); err != nil {
			return err
		}
	}

	return nil
}

func (e *Engine) syncMount(ctx context.Context, mount MountPoint, dryRun bool) error {
	local, err := e.ScanLocal(ctx, mount)
	if err != nil {
		return err
	}

	plan, err := e.reconcile(ctx, mount, local)
	if err != nil {
		return err
	}

	return e.executePlan(ctx, mount, plan, dryRun)
}

// executePlan carries out every planItem's classification. Creates run
// parents-before-children, deletes children-before-parents; remote-applied directories precede remote-applied
// files, which precede remote-applied deletions (mirroring Download's
// ordering).
func (e *Engine) executePlan(ctx context.Context, mount MountPoint, plan []planItem, dryRun bool) error {
	var uploads, localDeletes, remoteApplies []planItem

	for _, item := range plan {
		switch item.kind {
		case localOnlyChange:
			if item.localChange == localRemoved {
				localDeletes = append(localDeletes, item)
			} else {
				uploads = append(uploads, item)
			}
		case remoteOnlyChange:
			remoteApplies = append(remoteApplies, item)
		case bothChanged:
			remoteApplies = append(remoteApplies, item)

			if !dryRun {
				if err := e.recordConflict(ctx, item); err != nil {
					e.ctx.Logger.Warn("sync: failed to record conflict", "path", item.localPath, "error", err)
				}
			}

			e.report(progress.EventConflict, item.localPath, "remote version wins")
		case agreeAndEqual:
			if !dryRun && item.hasRemote {
				e.touchLastSeen(ctx, item)
			}
		}
	}

	sort.Slice(uploads, func(i, j int) bool { return uploads[i].depth < uploads[j].depth })
	sort.Slice(localDeletes, func(i, j int) bool { return localDeletes[i].depth > localDeletes[j].depth })

	dirApplies, fileApplies, absentApplies := splitByKind(remoteApplies)

	sort.Slice(dirApplies, func(i, j int) bool { return dirApplies[i].depth < dirApplies[j].depth })
	sort.Slice(absentApplies, func(i, j int) bool { return absentApplies[i].depth > absentApplies[j].depth })

	if dryRun {
		e.logPlan(uploads, localDeletes, dirApplies, fileApplies, absentApplies)
		return nil
	}

	for _, item := range uploads {
		lp, err := pathutil.Sanitize(item.localPath)
		if err != nil {
			e.report(progress.EventError, item.localPath, err.Error())
			continue
		}

		if _, err := e.uploadPath(ctx, mount, lp); err != nil {
			e.report(progress.EventError, item.localPath, err.Error())
			return err
		}
	}

	for _, item := range localDeletes {
		if err := e.uploadLocalDeletion(ctx, mount, item); err != nil {
			e.report(progress.EventError, item.localPath, err.Error())
			return err
		}
	}

	for _, item := range append(dirApplies, append(fileApplies, absentApplies...)...) {
		if err := e.applyRemote(ctx, item); err != nil {
			e.report(progress.EventError, item.localPath, err.Error())
		}
	}

	return nil
}

func splitByKind(items []planItem) (dirs, files, absents []planItem) {
	for _, item := range items {
		if !item.hasRemote {
			continue
		}

		switch item.remote.Kind {
		case shadowindex.KindDirectoryPresent:
			dirs = append(dirs, item)
		case shadowindex.KindFilePresent:
			files = append(files, item)
		case shadowindex.KindAbsent:
			absents = append(absents, item)
		}
	}

	return dirs, files, absents
}

// uploadLocalDeletion appends an Absent Entry for a path that disappeared
// from the filesystem since the last scan, then drops its ShadowRecord.
func (e *Engine) uploadLocalDeletion(ctx context.Context, mount MountPoint, item planItem) error {
	lp, err := pathutil.Sanitize(item.localPath)
	if err != nil {
		return NewCoreError(KindUserInput, err)
	}

	archivePath, err := encryptRelative(e.ctx.Crypto, mount, lp)
	if err != nil {
		return NewCoreError(KindUserInput, err)
	}

	entry := &wire.Entry{
		Path:     archivePath,
		SourceID: e.ctx.SourceID.Bytes(),
		Kind:     wire.KindAbsent,
	}

	if _, err := e.ctx.RPC.AddEntry(ctx, entry); err != nil {
		return NewCoreError(Classify(err), fmt.Errorf("syncengine: recording local deletion of %s: %w", item.localPath, err))
	}

	if err := e.ctx.Store.Delete(ctx, item.localPath); err != nil {
		return NewCoreError(KindIO, fmt.Errorf("syncengine: clearing shadow record for %s: %w", item.localPath, err))
	}

	e.report(progress.EventDeleted, item.localPath, "")

	return nil
}

// applyRemote materializes a single RemoteOnlyChange or BothChanged item
// locally: create/overwrite for Present kinds, remove for Absent.
func (e *Engine) applyRemote(ctx context.Context, item planItem) error {
	lp, err := pathutil.Sanitize(item.localPath)
	if err != nil {
		return NewCoreError(KindUserInput, err)
	}

	entry := remoteEntryToWire(item.remote)
	rp := resolvedPath{local: lp, entry: entry}

	switch item.remote.Kind {
	case shadowindex.KindDirectoryPresent:
		return e.materializeDirectory(ctx, rp)
	case shadowindex.KindFilePresent:
		return e.materializeFile(ctx, rp)
	case shadowindex.KindAbsent:
		e.materializeAbsent(rp)
		return nil
	}

	return nil
}

func remoteEntryToWire(re shadowindex.RemoteEntry) *wire.Entry {
	e := &wire.Entry{
		Path:          re.EncryptedPath,
		RecordedAt:    re.RecordedAt,
		SourceID:      re.SourceID,
		Kind:          wire.Kind(re.Kind),
		EncryptedSize: re.EncryptedSize,
		OriginalSize:  re.OriginalSize,
		ModifiedAt:    re.ModifiedAt,
		UnixMode:      re.UnixMode,
	}

	copy(e.ContentHash[:], re.ContentHash)

	return e
}

func (e *Engine) recordConflict(ctx context.Context, item planItem) error {
	localHash, _, _ := e.ctx.Store.Get(ctx, item.localPath)

	_, err := e.ctx.Store.RecordConflict(ctx, shadowindex.Conflict{
		LocalPath:         item.localPath,
		DetectedAt:        item.remote.RecordedAt,
		LocalContentHash:  localHash.ContentHash,
		RemoteContentHash: item.remote.ContentHash,
	})

	return err
}

func (e *Engine) touchLastSeen(ctx context.Context, item planItem) {
	rec, found, err := e.ctx.Store.Get(ctx, item.localPath)
	if err != nil || !found {
		return
	}

	rec.LastSeenArchiveRecordedAt = item.remote.RecordedAt

	if err := e.ctx.Store.Put(ctx, item.localPath, rec); err != nil {
		e.ctx.Logger.Warn("sync: failed to advance last-seen watermark", "path", item.localPath, "error", err)
	}
}

func (e *Engine) logPlan(uploads, localDeletes, dirApplies, fileApplies, absentApplies []planItem) {
	for _, item := range uploads {
		e.report(progress.EventUploaded, item.localPath, "dry-run: would upload")
	}

	for _, item := range localDeletes {
		e.report(progress.EventDeleted, item.localPath, "dry-run: would record deletion")
	}

	for _, item := range append(dirApplies, append(fileApplies, absentApplies...)...) {
		e.report(progress.EventDownloaded, item.localPath, "dry-run: would apply remote state")
	}
}
