package main

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"

	"github.com/quasiyoke/rammingen/internal/config"
)

// safetyScanInterval is how often --watch re-syncs on a timer even without
// an fsnotify event, catching anything the watcher missed (a watch added
// after a directory was created and then immediately populated, platform
// event-coalescing, and similar gaps).
const safetyScanInterval = 5 * time.Minute

// watchDebounce delays a triggered sync slightly so a burst of fsnotify
// events (e.g. an editor's save-via-rename) collapses into one sync run.
const watchDebounce = 500 * time.Millisecond

func newSyncCmd() *cobra.Command {
	var dryRun bool
	var watch bool

	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Two-way sync of all configured mounts",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cc := mustCLIContext(cmd.Context())
			defer cc.Close()

			if !watch {
				return cc.Engine.Sync(cmd.Context(), dryRun)
			}

			return runWatch(cmd.Context(), cc, dryRun)
		},
	}

	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "preview sync actions without executing")
	cmd.Flags().BoolVar(&watch, "watch", false, "run continuously, syncing again whenever a watched mount changes")

	return cmd
}

// runWatch runs sync once, then keeps re-running it whenever fsnotify
// reports a change under a configured mount's local root, until the
// process receives SIGINT/SIGTERM. Only one --watch may run against a
// given data directory at a time, enforced with a PID file lock.
func runWatch(ctx context.Context, cc *CLIContext, dryRun bool) error {
	pidPath := filepath.Join(filepath.Dir(cc.Cfg.LocalDBPath), "sync-watch.pid")

	cleanup, err := writePIDFile(pidPath)
	if err != nil {
		return err
	}
	defer cleanup()

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("sync --watch: creating filesystem watcher: %w", err)
	}
	defer watcher.Close()

	for _, mount := range cc.Engine.Mounts() {
		if err := addWatchesRecursive(watcher, mount.LocalPath.String()); err != nil {
			return fmt.Errorf("sync --watch: watching %s: %w", mount.LocalPath.String(), err)
		}
	}

	ctx = shutdownContext(ctx, cc.Logger)

	if err := cc.Engine.Sync(ctx, dryRun); err != nil {
		return err
	}

	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)

	return watchLoop(ctx, cc, watcher, hup, dryRun)
}

// watchLoop is the daemon's event loop. A SIGHUP (sent by "rammingen
// reload", via sendSIGHUP against this process's PID file) re-reads the
// config file and applies any changed mount points and exclude rules
// without restarting the process; it does not reopen the shadow index, RPC
// client, or crypto engine, so a changed server_url/token/encryption_key
// requires a restart.
func watchLoop(ctx context.Context, cc *CLIContext, watcher *fsnotify.Watcher, hup <-chan os.Signal, dryRun bool) error {
	var debounce *time.Timer
	defer func() {
		if debounce != nil {
			debounce.Stop()
		}
	}()

	trigger := make(chan struct{}, 1)
	safetyTicker := time.NewTicker(safetyScanInterval)
	defer safetyTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case <-hup:
			if err := reloadMounts(cc, watcher); err != nil {
				cc.Logger.Warn("sync --watch: config reload failed, keeping previous mounts", "error", err)
				continue
			}

			if err := cc.Engine.Sync(ctx, dryRun); err != nil {
				cc.Logger.Warn("sync --watch: post-reload sync failed", "error", err)
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}

			cc.Logger.Warn("sync --watch: watcher error", "error", err)

		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}

			if ev.Has(fsnotify.Create) {
				if info, statErr := os.Stat(ev.Name); statErr == nil && info.IsDir() {
					if addErr := watcher.Add(ev.Name); addErr != nil {
						cc.Logger.Warn("sync --watch: failed to watch new directory", "path", ev.Name, "error", addErr)
					}
				}
			}

			if debounce == nil {
				debounce = time.AfterFunc(watchDebounce, func() {
					select {
					case trigger <- struct{}{}:
					default:
					}
				})
			} else {
				debounce.Reset(watchDebounce)
			}

		case <-safetyTicker.C:
			if err := cc.Engine.Sync(ctx, dryRun); err != nil {
				cc.Logger.Warn("sync --watch: safety-scan sync failed", "error", err)
			}

		case <-trigger:
			if err := cc.Engine.Sync(ctx, dryRun); err != nil {
				cc.Logger.Warn("sync --watch: triggered sync failed", "error", err)
			}
		}
	}
}

// reloadMounts re-resolves the config file (same CLI/env override chain
// loadConfig used at startup) and swaps the engine's mount points for the
// freshly parsed ones, then re-registers fsnotify watches for all of them.
// Watches on a mount removed from the config are left in place rather than
// torn down; they stop producing anything actionable once Engine.Mounts no
// longer includes that path, since watchLoop resolves trigger events
// against the current mount list at sync time, not the watcher's own state.
func reloadMounts(cc *CLIContext, watcher *fsnotify.Watcher) error {
	cli := config.CLIOverrides{ConfigPath: flagConfigPath, Token: flagToken}
	env := config.ReadEnvOverrides()

	cfg, err := config.Resolve(env, cli, cc.Logger)
	if err != nil {
		return fmt.Errorf("reloading config: %w", err)
	}

	mounts, err := config.BuildMounts(cfg)
	if err != nil {
		return fmt.Errorf("reloading config: %w", err)
	}

	cc.Engine.SetMounts(mounts)
	cc.Cfg = cfg

	for _, mount := range mounts {
		if err := addWatchesRecursive(watcher, mount.LocalPath.String()); err != nil {
			return fmt.Errorf("reloading config: watching %s: %w", mount.LocalPath.String(), err)
		}
	}

	cc.Logger.Info("sync --watch: config reloaded", "mount_points", len(mounts))

	return nil
}

// addWatchesRecursive walks root and adds an fsnotify watch on every
// directory; fsnotify only watches the directories it's told about, not
// their future subtrees, so new directories are picked up as Create
// events arrive (see watchLoop).
func addWatchesRecursive(watcher *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}

		if !d.IsDir() {
			return nil
		}

		return watcher.Add(path)
	})
}
