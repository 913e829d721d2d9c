package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/quasiyoke/rammingen/internal/pathutil"
	"github.com/quasiyoke/rammingen/internal/shadowindex"
	"github.com/quasiyoke/rammingen/internal/syncengine"
)

func newLsCmd() *cobra.Command {
	var deleted bool

	cmd := &cobra.Command{
		Use:   "ls <archive_path>",
		Short: "List archive entries under a path",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cc := mustCLIContext(cmd.Context())
			defer cc.Close()

			prefix, err := pathutil.ParseArchivePath(args[0])
			if err != nil {
				return fmt.Errorf("archive_path: %w", err)
			}

			if err := cc.Engine.PullUpdates(cmd.Context()); err != nil {
				return err
			}

			var listed []syncengine.ListedEntry

			if deleted {
				listed, err = cc.Engine.ListArchiveIncludingDeleted(cmd.Context(), prefix)
			} else {
				listed, err = cc.Engine.ListArchive(cmd.Context(), prefix)
			}

			if err != nil {
				return err
			}

			printListed(listed)

			return nil
		},
	}

	cmd.Flags().BoolVar(&deleted, "deleted", false, "include tombstoned entries")

	return cmd
}

func printListed(listed []syncengine.ListedEntry) {
	rows := make([][]string, 0, len(listed))

	for _, le := range listed {
		kind := "file"
		size := formatSize(le.Entry.OriginalSize)

		switch le.Entry.Kind {
		case shadowindex.KindDirectoryPresent:
			kind = "dir"
			size = "-"
		case shadowindex.KindAbsent:
			kind = "deleted"
			size = "-"
		}

		rows = append(rows, []string{le.Path.String(), kind, size, formatMicros(le.Entry.RecordedAt)})
	}

	printTable(os.Stdout, []string{"PATH", "KIND", "SIZE", "RECORDED_AT"}, rows)
}
