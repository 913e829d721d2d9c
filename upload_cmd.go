package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/quasiyoke/rammingen/internal/pathutil"
	"github.com/quasiyoke/rammingen/internal/rules"
	"github.com/quasiyoke/rammingen/internal/syncengine"
)

func newUploadCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "upload <local_path> <archive_path>",
		Short: "Force-upload a local subtree into the archive",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cc := mustCLIContext(cmd.Context())
			defer cc.Close()

			local, err := pathutil.Sanitize(args[0])
			if err != nil {
				return fmt.Errorf("local_path: %w", err)
			}

			archive, err := pathutil.ParseArchivePath(args[1])
			if err != nil {
				return fmt.Errorf("archive_path: %w", err)
			}

			mount := syncengine.MountPoint{
				LocalPath:   local,
				ArchivePath: archive,
				Rules:       rulesFor(cc.Engine, archive),
			}

			return cc.Engine.UploadTree(cmd.Context(), mount, local)
		},
	}

	return cmd
}

// rulesFor reuses a configured mount's exclude rules when target falls
// under one, so a forced upload still respects always_exclude/exclude
// for that subtree. Outside any configured mount, no rules apply.
func rulesFor(e *syncengine.Engine, target pathutil.ArchivePath) *rules.Rules {
	for _, m := range e.Mounts() {
		if target.Equal(m.ArchivePath) || target.StartsWith(m.ArchivePath) {
			return m.Rules
		}
	}

	return rules.New()
}
