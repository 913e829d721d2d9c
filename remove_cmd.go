package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/quasiyoke/rammingen/internal/pathutil"
)

func newRemoveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "remove <archive_path>",
		Short: "Tombstone a path in the archive",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cc := mustCLIContext(cmd.Context())
			defer cc.Close()

			target, err := pathutil.ParseArchivePath(args[0])
			if err != nil {
				return fmt.Errorf("archive_path: %w", err)
			}

			stats, err := cc.Engine.Remove(cmd.Context(), target)
			if err != nil {
				return err
			}

			fmt.Printf("removed %s (%d entries appended)\n", target.String(), stats.EntriesAppended)

			return nil
		},
	}

	return cmd
}
