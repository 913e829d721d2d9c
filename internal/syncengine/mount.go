// Package syncengine implements Component E: pull_updates,
// scan_local, sync, upload, and download, orchestrated against a Ctx
// bundling configuration, the RPC client, the crypto engine, and the
// shadow index.
package syncengine

import (
	"github.com/quasiyoke/rammingen/internal/pathutil"
	"github.com/quasiyoke/rammingen/internal/rules"
)

// MountPoint pairs a local directory with an archive subpath that
// participate in sync.
type MountPoint struct {
	LocalPath   pathutil.SanitizedLocalPath
	ArchivePath pathutil.ArchivePath
	Rules       *rules.Rules
}
