package syncengine

import (
	"bytes"
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"

	"golang.org/x/sync/errgroup"

	"github.com/quasiyoke/rammingen/internal/pathutil"
	"github.com/quasiyoke/rammingen/internal/shadowindex"
)

// LocalChanges is scan_local's result: three disjoint
// sets of local paths, relative to the mount root by nothing more than
// their full SanitizedLocalPath string.
type LocalChanges struct {
	Added    []string
	Modified []string
	Removed  []string
}

// localSignature is the cheap (size, mtime, unix_mode) signature checked
// before falling back to a content hash.
type localSignature struct {
	size     int64
	modified int64 // microseconds since epoch
	mode     uint32
}

// ScanLocal walks mount's directory, honoring mount.Rules, and classifies
// every visited (and every previously-shadowed) path into added,
// modified, or removed.
func (e *Engine) ScanLocal(ctx context.Context, mount MountPoint) (LocalChanges, error) {
	root := mount.LocalPath.String()

	seen := make(map[string]localSignature)

	walkErr := filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}

			e.ctx.Logger.Warn("scan_local: walk error", "path", p, "error", err)
			return nil // IoError per-path is non-fatal
		}

		sanitized, sErr := pathutil.Sanitize(p)
		if sErr != nil {
			e.ctx.Logger.Warn("scan_local: cannot sanitize path", "path", p, "error", sErr)
			return nil
		}

		if mount.Rules.IsExcluded(sanitized) {
			if d.IsDir() {
				return filepath.SkipDir
			}

			return nil
		}

		if d.IsDir() {
			return nil
		}

		info, infoErr := d.Info()
		if infoErr != nil {
			e.ctx.Logger.Warn("scan_local: stat failed", "path", p, "error", infoErr)
			return nil
		}

		sig := localSignature{
			size:     info.Size(),
			modified: info.ModTime().UnixMicro(),
			mode:     uint32(info.Mode().Perm()),
		}

		seen[sanitized.String()] = sig

		return nil
	})
	if walkErr != nil {
		return LocalChanges{}, NewCoreError(KindIO, fmt.Errorf("syncengine: scan_local: walking %s: %w", root, walkErr))
	}

	shadowed, err := e.ctx.Store.IterDescendants(ctx, root)
	if err != nil {
		return LocalChanges{}, NewCoreError(KindIO, fmt.Errorf("syncengine: scan_local: reading shadow index: %w", err))
	}

	shadowByPath := make(map[string]shadowindex.ShadowRecord, len(shadowed))
	for _, s := range shadowed {
		shadowByPath[s.LocalPath] = s.Record
	}

	var changes LocalChanges

	// Paths needing a content hash: present on disk, present in shadow,
	// but signature doesn't match exactly. Computed concurrently with a
	// bounded fan-out to avoid fd exhaustion.
	var toHash []string

	for p, sig := range seen {
		rec, known := shadowByPath[p]
		if !known {
			changes.Added = append(changes.Added, p)
			continue
		}

		if signatureMatches(sig, rec) {
			continue
		}

		toHash = append(toHash, p)
	}

	modified, err := e.hashAndCompare(ctx, toHash, shadowByPath)
	if err != nil {
		return LocalChanges{}, err
	}

	changes.Modified = modified

	for p := range shadowByPath {
		if _, stillPresent := seen[p]; !stillPresent {
			sanitized, sErr := pathutil.Sanitize(p)
			if sErr == nil && mount.Rules.IsExcluded(sanitized) {
				continue
			}

			changes.Removed = append(changes.Removed, p)
		}
	}

	sort.Strings(changes.Added)
	sort.Strings(changes.Modified)
	sort.Strings(changes.Removed)

	return changes, nil
}

func signatureMatches(sig localSignature, rec shadowindex.ShadowRecord) bool {
	if rec.OriginalSize != sig.size || rec.ModifiedAt != sig.modified {
		return false
	}

	if rec.UnixMode != nil && *rec.UnixMode != sig.mode {
		return false
	}

	return true
}

func (e *Engine) hashAndCompare(ctx context.Context, paths []string, shadowByPath map[string]shadowindex.ShadowRecord) ([]string, error) {
	if len(paths) == 0 {
		return nil, nil
	}

	results := make([]bool, len(paths)) // true = content actually changed

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(scanFanOut)

	for i, p := range paths {
		g.Go(func() error {
			f, err := os.Open(p)
			if err != nil {
				if os.IsNotExist(err) {
					return nil // vanished between walk and hash; treated as unchanged here, removal handled separately
				}

				return NewCoreError(KindIO, fmt.Errorf("syncengine: opening %s for hashing: %w", p, err))
			}
			defer f.Close()

			hash, err := e.ctx.Crypto.HashContent(f)
			if err != nil {
				return NewCoreError(KindIntegrity, fmt.Errorf("syncengine: hashing %s: %w", p, err))
			}

			results[i] = !bytes.Equal(hash[:], shadowByPath[p].ContentHash)

			return nil
		})

		_ = gctx
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	var modified []string

	for i, p := range paths {
		if results[i] {
			modified = append(modified, p)
		}
	}

	return modified, nil
}
