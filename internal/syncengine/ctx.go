package syncengine

import (
	"log/slog"

	"github.com/quasiyoke/rammingen/internal/cryptoengine"
	"github.com/quasiyoke/rammingen/internal/progress"
	"github.com/quasiyoke/rammingen/internal/rpcclient"
	"github.com/quasiyoke/rammingen/internal/shadowindex"
	"github.com/quasiyoke/rammingen/pkg/sourceid"
)

// Scan fan-out and transfer concurrency bounds.
const (
	scanFanOut         = 8
	transferConcurrency = 4
)

// Ctx bundles the collaborators every sync operation needs: the shadow
// index, the RPC client, the crypto engine, this client's identity, and
// the external progress collaborator. The Sync Engine holds it by shared
// ownership; sub-tasks borrow it read-only.
type Ctx struct {
	Store    *shadowindex.Store
	RPC      *rpcclient.Client
	Crypto   *cryptoengine.Engine
	SourceID sourceid.ID
	Progress *progress.Collaborator
	Logger   *slog.Logger
	Mounts   []MountPoint
}

// Engine is the Sync Engine, the orchestrator for
// pull_updates, scan_local, sync, upload, and download.
type Engine struct {
	ctx *Ctx
}

// Mounts returns the engine's configured mount points, for CLI commands
// that need to resolve an arbitrary archive path against them (upload,
// move, remove, reset, ls, history).
func (e *Engine) Mounts() []MountPoint {
	return e.ctx.Mounts
}

// SetMounts replaces the engine's mount points, for a config reload against
// a running sync --watch daemon. Not safe to call concurrently with Sync;
// callers must serialize the two (watchLoop does this by handling both from
// the same select loop).
func (e *Engine) SetMounts(mounts []MountPoint) {
	e.ctx.Mounts = mounts
}

// New constructs an Engine over ctx.
func New(ctx *Ctx) *Engine {
	if ctx.Logger == nil {
		ctx.Logger = slog.Default()
	}

	if ctx.Progress == nil {
		ctx.Progress = progress.New(nil)
	}

	return &Engine{ctx: ctx}
}
