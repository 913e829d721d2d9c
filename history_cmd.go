package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/quasiyoke/rammingen/internal/pathutil"
	"github.com/quasiyoke/rammingen/internal/shadowindex"
)

func newHistoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history <archive_path> <time_spec>",
		Short: "Show the Entry log for a path",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cc := mustCLIContext(cmd.Context())
			defer cc.Close()

			target, err := pathutil.ParseArchivePath(args[0])
			if err != nil {
				return fmt.Errorf("archive_path: %w", err)
			}

			// time_spec bounds how far back the log is shown; a recorded_at
			// greater than it is omitted, mirroring download's --version cutoff.
			asOf, err := parseTimeSpec(args[1])
			if err != nil {
				return fmt.Errorf("time_spec: %w", err)
			}

			records, err := cc.Engine.History(cmd.Context(), target)
			if err != nil {
				return err
			}

			rows := make([][]string, 0, len(records))

			for _, r := range records {
				if r.RecordedAt > asOf {
					continue
				}

				kind := "file"

				switch r.Kind {
				case shadowindex.KindDirectoryPresent:
					kind = "dir"
				case shadowindex.KindAbsent:
					kind = "deleted"
				}

				rows = append(rows, []string{formatMicros(r.RecordedAt), kind, r.Path.String()})
			}

			printTable(os.Stdout, []string{"RECORDED_AT", "KIND", "PATH"}, rows)

			return nil
		},
	}

	return cmd
}
