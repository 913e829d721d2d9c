package config

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/quasiyoke/rammingen/internal/cryptoengine"
	"github.com/quasiyoke/rammingen/internal/pathutil"
	"github.com/quasiyoke/rammingen/internal/progress"
	"github.com/quasiyoke/rammingen/internal/rpcclient"
	"github.com/quasiyoke/rammingen/internal/rules"
	"github.com/quasiyoke/rammingen/internal/shadowindex"
	"github.com/quasiyoke/rammingen/internal/syncengine"
	"github.com/quasiyoke/rammingen/pkg/sourceid"
)

// BuildCtx wires a validated Config into a ready-to-use syncengine.Ctx:
// the crypto engine, the bearer-token RPC client, the shadow index, this
// machine's persisted source ID, and every configured mount point.
// Callers own the returned Ctx's Store and must Close it when done.
// progressOut may be nil; syncengine.New substitutes a discarding one.
func BuildCtx(ctx context.Context, cfg *Config, logger *slog.Logger, progressOut *progress.Collaborator) (*syncengine.Ctx, error) {
	key, err := cryptoengine.ParseMasterKey(cfg.EncryptionKey)
	if err != nil {
		return nil, fmt.Errorf("config: encryption_key: %w", err)
	}

	crypto, err := cryptoengine.New(key, cfg.Salt)
	if err != nil {
		return nil, fmt.Errorf("config: building crypto engine: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(cfg.LocalDBPath), 0o700); err != nil {
		return nil, fmt.Errorf("config: creating data directory for %s: %w", cfg.LocalDBPath, err)
	}

	store, err := shadowindex.Open(ctx, cfg.LocalDBPath, logger)
	if err != nil {
		return nil, fmt.Errorf("config: opening shadow index %s: %w", cfg.LocalDBPath, err)
	}

	httpClient, err := buildHTTPClient(cfg.Network)
	if err != nil {
		store.Close()
		return nil, err
	}

	rpc := rpcclient.New(cfg.ServerURL, cfg.Token, httpClient, logger)

	sourceIDPath := filepath.Join(filepath.Dir(cfg.LocalDBPath), "source_id")

	id, err := sourceid.LoadOrCreate(sourceIDPath)
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("config: resolving source id: %w", err)
	}

	mounts, err := BuildMounts(cfg)
	if err != nil {
		store.Close()
		return nil, err
	}

	return &syncengine.Ctx{
		Store:    store,
		RPC:      rpc,
		Crypto:   crypto,
		SourceID: id,
		Progress: progressOut,
		Logger:   logger,
		Mounts:   mounts,
	}, nil
}

// buildHTTPClient constructs the transport the RPC client runs over.
// doRetry/streaming bodies bound individual requests via context rather
// than a client-wide request timeout, so only the dial (connect) phase
// gets a fixed timeout here.
func buildHTTPClient(net_ NetworkConfig) (*http.Client, error) {
	connectTimeout := 10 * time.Second

	if net_.ConnectTimeout != "" {
		d, err := time.ParseDuration(net_.ConnectTimeout)
		if err != nil {
			return nil, fmt.Errorf("network.connect_timeout: %w", err)
		}

		connectTimeout = d
	}

	dialer := &net.Dialer{Timeout: connectTimeout}

	return &http.Client{
		Transport: &http.Transport{DialContext: dialer.DialContext},
	}, nil
}

// BuildMounts resolves cfg's mount points and always_exclude rules into
// engine-ready MountPoints, independent of any other part of BuildCtx. A
// running sync --watch daemon reloading its config on SIGHUP calls this
// directly to rebuild Engine.Mounts without reopening the shadow index, RPC
// client, or crypto engine.
func BuildMounts(cfg *Config) ([]syncengine.MountPoint, error) {
	globalRules, err := buildRuleList(cfg.AlwaysExclude)
	if err != nil {
		return nil, fmt.Errorf("config: always_exclude: %w", err)
	}

	mounts := make([]syncengine.MountPoint, 0, len(cfg.MountPoints))

	for i, mp := range cfg.MountPoints {
		mount, err := buildMountPoint(mp, globalRules)
		if err != nil {
			return nil, fmt.Errorf("config: mount_points[%d]: %w", i, err)
		}

		mounts = append(mounts, mount)
	}

	return mounts, nil
}

func buildMountPoint(mp MountPointConfig, global []rules.Rule) (syncengine.MountPoint, error) {
	localPath, err := pathutil.Sanitize(mp.LocalPath)
	if err != nil {
		return syncengine.MountPoint{}, fmt.Errorf("local_path: %w", err)
	}

	archivePath, err := pathutil.ParseArchivePath(mp.ArchivePath)
	if err != nil {
		return syncengine.MountPoint{}, fmt.Errorf("archive_path: %w", err)
	}

	mountRules, err := buildRuleList(mp.Exclude)
	if err != nil {
		return syncengine.MountPoint{}, fmt.Errorf("exclude: %w", err)
	}

	return syncengine.MountPoint{
		LocalPath:   localPath,
		ArchivePath: archivePath,
		Rules:       rules.New(global, mountRules),
	}, nil
}

func buildRuleList(cfgRules []RuleConfig) ([]rules.Rule, error) {
	out := make([]rules.Rule, 0, len(cfgRules))

	for _, rc := range cfgRules {
		r, err := ruleFromConfig(rc)
		if err != nil {
			return nil, err
		}

		out = append(out, r)
	}

	return out, nil
}

func ruleFromConfig(rc RuleConfig) (rules.Rule, error) {
	switch {
	case rc.NameEquals != "":
		return rules.NameEquals(rc.NameEquals), nil
	case rc.NameMatches != "":
		return rules.NameMatches(rc.NameMatches)
	case rc.PathEquals != "":
		return rules.PathEquals(rc.PathEquals), nil
	case rc.PathMatches != "":
		return rules.PathMatches(rc.PathMatches)
	default:
		return rules.Rule{}, fmt.Errorf("rule has none of name_equals/name_matches/path_equals/path_matches set")
	}
}
