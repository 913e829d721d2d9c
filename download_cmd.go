package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/quasiyoke/rammingen/internal/pathutil"
)

func newDownloadCmd() *cobra.Command {
	var versionSpec string

	cmd := &cobra.Command{
		Use:   "download <archive_path> <local_path>",
		Short: "Materialize a remote subtree locally",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cc := mustCLIContext(cmd.Context())
			defer cc.Close()

			archive, err := pathutil.ParseArchivePath(args[0])
			if err != nil {
				return fmt.Errorf("archive_path: %w", err)
			}

			local, err := pathutil.Sanitize(args[1])
			if err != nil {
				return fmt.Errorf("local_path: %w", err)
			}

			if versionSpec == "" {
				return cc.Engine.DownloadLatest(cmd.Context(), archive, local)
			}

			recordedAt, err := parseTimeSpec(versionSpec)
			if err != nil {
				return fmt.Errorf("--version: %w", err)
			}

			return cc.Engine.DownloadVersion(cmd.Context(), archive, local, recordedAt)
		},
	}

	cmd.Flags().StringVar(&versionSpec, "version", "", "point-in-time timestamp (RFC3339 or Unix seconds); omit for the latest state")

	return cmd
}
