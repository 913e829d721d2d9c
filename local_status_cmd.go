package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/quasiyoke/rammingen/internal/pathutil"
	"github.com/quasiyoke/rammingen/internal/shadowindex"
)

func newLocalStatusCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "local-status <local_path>",
		Short: "Report shadow index vs filesystem diff for a path",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cc := mustCLIContext(cmd.Context())
			defer cc.Close()

			local, err := pathutil.Sanitize(args[0])
			if err != nil {
				return fmt.Errorf("local_path: %w", err)
			}

			status, err := cc.Engine.LocalStatus(cmd.Context(), local)
			if err != nil {
				return err
			}

			if !status.Found {
				fmt.Printf("%s: not tracked in the shadow index\n", status.LocalPath)
				return nil
			}

			kindName := "file"
			if status.Record.Kind == shadowindex.KindDirectoryPresent {
				kindName = "directory"
			}

			if status.Matches {
				fmt.Printf("%s: in sync (%s, last seen at %s)\n", status.LocalPath, kindName, formatMicros(status.Record.LastSeenArchiveRecordedAt))
			} else {
				fmt.Printf("%s: modified locally since last sync (%s)\n", status.LocalPath, kindName)
			}

			return nil
		},
	}

	return cmd
}
