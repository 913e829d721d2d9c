package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/quasiyoke/rammingen/internal/pathutil"
)

func newMoveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "move <old_archive_path> <new_archive_path>",
		Short: "Rename a path in the archive",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cc := mustCLIContext(cmd.Context())
			defer cc.Close()

			oldPath, err := pathutil.ParseArchivePath(args[0])
			if err != nil {
				return fmt.Errorf("old_archive_path: %w", err)
			}

			newPath, err := pathutil.ParseArchivePath(args[1])
			if err != nil {
				return fmt.Errorf("new_archive_path: %w", err)
			}

			stats, err := cc.Engine.Move(cmd.Context(), oldPath, newPath)
			if err != nil {
				return err
			}

			fmt.Printf("moved %s -> %s (%d entries appended)\n", oldPath.String(), newPath.String(), stats.EntriesAppended)

			return nil
		},
	}

	return cmd
}
