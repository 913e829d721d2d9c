package syncengine

import (
	"context"
	"fmt"
	"strings"

	"github.com/quasiyoke/rammingen/internal/shadowindex"
)

// changeKind is the four-way classification of a path during
// reconciliation.
type changeKind int

const (
	agreeAndEqual changeKind = iota
	localOnlyChange
	remoteOnlyChange
	bothChanged
)

// localChangeKind distinguishes which of scan_local's three sets a path
// fell into, when it fell into any.
type localChangeKind int

const (
	localUnchanged localChangeKind = iota
	localAdded
	localModified
	localRemoved
)

// planItem is one path's reconciliation outcome plus enough context to
// execute it without re-querying the shadow index.
type planItem struct {
	localPath   string
	kind        changeKind
	localChange localChangeKind
	remote      shadowindex.RemoteEntry
	hasRemote   bool
	depth       int
}

// reconcile compares mount's local changes against the cached remote view
// of its archive subtree and classifies every path into one of those kinds.
func (e *Engine) reconcile(ctx context.Context, mount MountPoint, local LocalChanges) ([]planItem, error) {
	localStatus := make(map[string]localChangeKind, len(local.Added)+len(local.Modified)+len(local.Removed))

	for _, p := range local.Added {
		localStatus[p] = localAdded
	}

	for _, p := range local.Modified {
		localStatus[p] = localModified
	}

	for _, p := range local.Removed {
		localStatus[p] = localRemoved
	}

	remoteEntries, err := e.ctx.Store.ListRemoteDescendants(ctx, mount.ArchivePath.String())
	if err != nil {
		return nil, NewCoreError(KindIO, fmt.Errorf("syncengine: reconcile: reading remote view: %w", err))
	}

	remoteByLocal := make(map[string]shadowindex.RemoteEntry, len(remoteEntries))

	for _, re := range remoteEntries {
		lp, err := decryptToLocal(e.ctx.Crypto, mount, re.EncryptedPath)
		if err != nil {
			e.ctx.Logger.Warn("reconcile: cannot decrypt cached remote path, skipping", "encrypted_path", re.EncryptedPath, "error", err)
			continue
		}

		remoteByLocal[lp.String()] = re
	}

	allPaths := make(map[string]struct{}, len(localStatus)+len(remoteByLocal))
	for p := range localStatus {
		allPaths[p] = struct{}{}
	}

	for p := range remoteByLocal {
		allPaths[p] = struct{}{}
	}

	plan := make([]planItem, 0, len(allPaths))

	for p := range allPaths {
		rec, knownShadow, err := e.ctx.Store.Get(ctx, p)
		if err != nil {
			return nil, NewCoreError(KindIO, fmt.Errorf("syncengine: reconcile: reading shadow record for %s: %w", p, err))
		}

		remote, hasRemote := remoteByLocal[p]
		localChange := localStatus[p]

		var lastSeen int64
		if knownShadow {
			lastSeen = rec.LastSeenArchiveRecordedAt
		}

		remoteChanged := hasRemote && remote.RecordedAt > lastSeen
		localChanged := localChange != localUnchanged

		item := planItem{
			localPath:   p,
			localChange: localChange,
			remote:      remote,
			hasRemote:   hasRemote,
			depth:       strings.Count(p, "/"),
		}

		switch {
		case localChanged && remoteChanged:
			item.kind = bothChanged
		case localChanged:
			item.kind = localOnlyChange
		case remoteChanged:
			item.kind = remoteOnlyChange
		default:
			item.kind = agreeAndEqual
		}

		plan = append(plan, item)
	}

	return plan, nil
}
