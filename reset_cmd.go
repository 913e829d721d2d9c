package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/quasiyoke/rammingen/internal/pathutil"
)

func newResetCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reset <archive_path> <version>",
		Short: "Append entries restoring a prior state",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cc := mustCLIContext(cmd.Context())
			defer cc.Close()

			target, err := pathutil.ParseArchivePath(args[0])
			if err != nil {
				return fmt.Errorf("archive_path: %w", err)
			}

			recordedAt, err := parseTimeSpec(args[1])
			if err != nil {
				return fmt.Errorf("version: %w", err)
			}

			stats, err := cc.Engine.Reset(cmd.Context(), target, recordedAt)
			if err != nil {
				return err
			}

			fmt.Printf("reset %s to %s (%d entries appended)\n", target.String(), formatMicros(recordedAt), stats.EntriesAppended)

			return nil
		},
	}

	return cmd
}
