package syncengine

import (
	"context"
	"fmt"
	"io"
	"os"
	"sort"

	"golang.org/x/sync/errgroup"

	"github.com/quasiyoke/rammingen/internal/cryptoengine"
	"github.com/quasiyoke/rammingen/internal/pathutil"
	"github.com/quasiyoke/rammingen/internal/progress"
	"github.com/quasiyoke/rammingen/internal/shadowindex"
	"github.com/quasiyoke/rammingen/internal/wire"
)

// UploadTree force-uploads every non-excluded path under localRoot into
// mount's archive namespace (the CLI `upload` command),
// walking parents before children so server-side directory invariants
// hold.
func (e *Engine) UploadTree(ctx context.Context, mount MountPoint, localRoot pathutil.SanitizedLocalPath) error {
	changes, err := e.ScanLocal(ctx, MountPoint{LocalPath: localRoot, ArchivePath: mount.ArchivePath, Rules: mount.Rules})
	if err != nil {
		return err
	}

	paths := append(append([]string{}, changes.Added...), changes.Modified...)

	shadowed, err := e.ctx.Store.IterDescendants(ctx, localRoot.String())
	if err != nil {
		return NewCoreError(KindIO, fmt.Errorf("syncengine: upload_tree: reading shadow index: %w", err))
	}

	for _, s := range shadowed {
		if _, isRemoved := indexOf(changes.Removed, s.LocalPath); !isRemoved {
			paths = append(paths, s.LocalPath)
		}
	}

	paths = dedupeStrings(paths)
	sort.Strings(paths) // ascending depth-friendly, parents sort before children lexicographically

	for _, p := range paths {
		lp, err := pathutil.Sanitize(p)
		if err != nil {
			e.report(progress.EventError, p, err.Error())
			continue
		}

		if _, err := e.uploadPath(ctx, mount, lp); err != nil {
			e.report(progress.EventError, p, err.Error())
			return err
		}
	}

	return nil
}

func indexOf(haystack []string, needle string) (int, bool) {
	for i, s := range haystack {
		if s == needle {
			return i, true
		}
	}

	return 0, false
}

func dedupeStrings(in []string) []string {
	seen := make(map[string]struct{}, len(in))

	out := make([]string, 0, len(in))

	for _, s := range in {
		if _, ok := seen[s]; ok {
			continue
		}

		seen[s] = struct{}{}
		out = append(out, s)
	}

	return out
}

// uploadPath executes the upload procedure for a single
// path: directories become a DirectoryPresent Entry, files are
// hashed, deduplicated against the server's chunk store, streamed up if
// absent, and recorded with a FilePresent Entry. Returns the
// server-assigned recorded_at.
func (e *Engine) uploadPath(ctx context.Context, mount MountPoint, local pathutil.SanitizedLocalPath) (int64, error) {
	info, err := os.Lstat(local.String())
	if err != nil {
		return 0, NewCoreError(KindIO, fmt.Errorf("syncengine: upload: stat %s: %w", local.String(), err))
	}

	archivePath, err := encryptRelative(e.ctx.Crypto, mount, local)
	if err != nil {
		return 0, NewCoreError(KindUserInput, err)
	}

	modifiedAt := info.ModTime().UnixMicro()
	unixMode := uint32(info.Mode().Perm())

	if info.IsDir() {
		entry := &wire.Entry{
			Path:       archivePath,
			SourceID:   e.ctx.SourceID.Bytes(),
			Kind:       wire.KindDirectoryPresent,
			ModifiedAt: &modifiedAt,
			UnixMode:   &unixMode,
		}

		recordedAt, err := e.ctx.RPC.AddEntry(ctx, entry)
		if err != nil {
			return 0, NewCoreError(Classify(err), fmt.Errorf("syncengine: upload: recording directory %s: %w", local.String(), err))
		}

		if err := e.ctx.Store.Put(ctx, local.String(), shadowindex.ShadowRecord{
			Kind:                      shadowindex.KindDirectoryPresent,
			OriginalSize:              0,
			ModifiedAt:                modifiedAt,
			UnixMode:                  &unixMode,
			LastSeenArchiveRecordedAt: recordedAt,
		}); err != nil {
			return 0, NewCoreError(KindIO, fmt.Errorf("syncengine: upload: updating shadow record for %s: %w", local.String(), err))
		}

		e.report(progress.EventUploaded, local.String(), "directory")

		return recordedAt, nil
	}

	f, err := os.Open(local.String())
	if err != nil {
		return 0, NewCoreError(KindIO, fmt.Errorf("syncengine: upload: opening %s: %w", local.String(), err))
	}

	hash, err := e.ctx.Crypto.HashContent(f)
	f.Close()

	if err != nil {
		return 0, NewCoreError(KindIntegrity, fmt.Errorf("syncengine: upload: hashing %s: %w", local.String(), err))
	}

	has, err := e.ctx.RPC.HasContent(ctx, hash)
	if err != nil {
		return 0, NewCoreError(Classify(err), fmt.Errorf("syncengine: upload: checking content %s: %w", hash.String(), err))
	}

	var encryptedSize int64

	if !has {
		encryptedSize, err = e.uploadContent(ctx, local, hash)
		if err != nil {
			return 0, err
		}
	}

	entry := &wire.Entry{
		Path:          archivePath,
		SourceID:      e.ctx.SourceID.Bytes(),
		Kind:          wire.KindFilePresent,
		ContentHash:   hash,
		EncryptedSize: encryptedSize,
		OriginalSize:  info.Size(),
		ModifiedAt:    &modifiedAt,
		UnixMode:      &unixMode,
	}

	recordedAt, err := e.ctx.RPC.AddEntry(ctx, entry)
	if err != nil {
		return 0, NewCoreError(Classify(err), fmt.Errorf("syncengine: upload: recording file %s: %w", local.String(), err))
	}

	if err := e.ctx.Store.Put(ctx, local.String(), shadowindex.ShadowRecord{
		Kind:                      shadowindex.KindFilePresent,
		ContentHash:               append([]byte(nil), hash[:]...),
		OriginalSize:              info.Size(),
		ModifiedAt:                modifiedAt,
		UnixMode:                  &unixMode,
		LastSeenArchiveRecordedAt: recordedAt,
	}); err != nil {
		return 0, NewCoreError(KindIO, fmt.Errorf("syncengine: upload: updating shadow record for %s: %w", local.String(), err))
	}

	e.ctx.Progress.AddBytesSent(encryptedSize)
	e.report(progress.EventUploaded, local.String(), hash.String())

	return recordedAt, nil
}

// uploadContent streams local's plaintext through chunked-encryption and
// up to the server, via a spilled-to-disk temp file so a retried request
// (internal/rpcclient.Client.doRetry) can re-read the body from the
// beginning instead of a single-shot pipe.
func (e *Engine) uploadContent(ctx context.Context, local pathutil.SanitizedLocalPath, hash cryptoengine.ContentHash) (int64, error) {
	tmp, err := os.CreateTemp("", "rammingen-upload-*")
	if err != nil {
		return 0, NewCoreError(KindIO, fmt.Errorf("syncengine: upload: creating staging file: %w", err))
	}

	tmpPath := tmp.Name()

	defer os.Remove(tmpPath)

	src, err := os.Open(local.String())
	if err != nil {
		tmp.Close()
		return 0, NewCoreError(KindIO, fmt.Errorf("syncengine: upload: opening %s: %w", local.String(), err))
	}

	encErr := e.ctx.Crypto.EncryptStream(tmp, src)
	src.Close()
	tmp.Close()

	if encErr != nil {
		return 0, NewCoreError(KindIntegrity, fmt.Errorf("syncengine: upload: encrypting %s: %w", local.String(), encErr))
	}

	st, err := os.Stat(tmpPath)
	if err != nil {
		return 0, NewCoreError(KindIO, fmt.Errorf("syncengine: upload: staging file stat: %w", err))
	}

	newBody := func() (io.Reader, error) {
		return os.Open(tmpPath)
	}

	if err := e.ctx.RPC.UploadContent(ctx, hash, newBody, st.Size()); err != nil {
		return 0, NewCoreError(Classify(err), fmt.Errorf("syncengine: upload: uploading content %s: %w", hash.String(), err))
	}

	return st.Size(), nil
}

func (e *Engine) report(kind progress.EventKind, path, detail string) {
	if e.ctx.Progress == nil {
		return
	}

	e.ctx.Progress.Report(progress.Event{Kind: kind, LocalPath: path, Detail: detail})
}

// uploadMany runs uploadPath over paths with bounded concurrency.
func (e *Engine) uploadMany(ctx context.Context, mount MountPoint, paths []string) error {
	g, _ := errgroup.WithContext(ctx)
	g.SetLimit(transferConcurrency)

	for _, p := range paths {
		g.Go(func() error {
			lp, err := pathutil.Sanitize(p)
			if err != nil {
				e.report(progress.EventError, p, err.Error())
				return nil
			}

			if _, err := e.uploadPath(ctx, mount, lp); err != nil {
				e.report(progress.EventError, p, err.Error())
				return err
			}

			return nil
		})
	}

	return g.Wait()
}
