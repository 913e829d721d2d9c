package main

import (
	"path/filepath"

	"github.com/spf13/cobra"
)

func newReloadCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reload",
		Short: "Tell a running sync --watch daemon to re-read its config file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cc := mustCLIContext(cmd.Context())
			defer cc.Close()

			pidPath := filepath.Join(filepath.Dir(cc.Cfg.LocalDBPath), "sync-watch.pid")

			if err := sendSIGHUP(pidPath); err != nil {
				return err
			}

			cc.Logger.Info("reload signal sent")

			return nil
		},
	}
}
