package main

import (
	"github.com/spf13/cobra"

	gsync "gomarks/internal/sync"
)

// newBackgroundSyncCmd creates a hidden command that runs sync in background.
// It is spawned as a separate process after each local write so the CLI can exit immediately.
func newBackgroundSyncCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:    gsync.BackgroundCommand,
		Hidden: true,
		Short:  "Internal command for background sync (do not call directly)",
		Args:   cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.loadConfig()
			if err != nil {
				return err
			}
			// failures are in the background log; the parent is gone
			_ = gsync.RunBackgroundSyncInProcess(cfg)
			return nil
		},
	}
}
