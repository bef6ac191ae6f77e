package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"gomarks/internal/app"
	"gomarks/internal/operations"
)

// newSyncCmd creates the sync command with all subcommands
func newSyncCmd(opts *rootOptions) *cobra.Command {
	syncCmd := &cobra.Command{
		Use:   "sync",
		Short: "Synchronize with the authority",
		Long: `Push local changes to the authority and pull changes from other devices.

A cycle pushes pending entities in chunks, marks what the authority
acknowledged as synced and schedules retries for what failed. It then pulls
everything that changed since the last successful sync; the newer copy wins.

Examples:
  gomarks sync                 # Perform sync
  gomarks sync status          # Show sync status
  gomarks sync status --probe  # Also check that the authority is reachable
  gomarks sync queue           # Show entities waiting for a retry
  gomarks sync queue clear     # Drop scheduled retries`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withApp(func(ctx context.Context, a *app.App) error {
				result, err := operations.RunSync(ctx, a)
				if result != nil {
					if perr := operations.PrintSyncResult(cmd.OutOrStdout(), opts.format, result); perr != nil {
						return perr
					}
				}
				return err
			})
		},
	}

	syncCmd.AddCommand(newSyncStatusCmd(opts))
	syncCmd.AddCommand(newSyncQueueCmd(opts))

	return syncCmd
}

// newSyncStatusCmd creates the 'sync status' command
func newSyncStatusCmd(opts *rootOptions) *cobra.Command {
	var probe bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show sync status",
		Long: `Display the current synchronization state:
- Entities per sync state (pending, syncing, synced, error)
- Parked entities that ran out of retries
- Scheduled retries
- Last successful sync
- Online/offline status (with --probe)`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withApp(func(ctx context.Context, a *app.App) error {
				view, err := operations.Status(ctx, a, probe)
				if err != nil {
					return err
				}
				return operations.PrintStatus(cmd.OutOrStdout(), opts.format, view)
			})
		},
	}

	cmd.Flags().BoolVar(&probe, "probe", false, "check whether the authority is reachable")

	return cmd
}

// newSyncQueueCmd creates the 'sync queue' command
func newSyncQueueCmd(opts *rootOptions) *cobra.Command {
	queueCmd := &cobra.Command{
		Use:   "queue",
		Short: "Show entities waiting for a retry",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withApp(func(ctx context.Context, a *app.App) error {
				entries, err := operations.Queue(ctx, a)
				if err != nil {
					return err
				}
				return operations.PrintQueue(cmd.OutOrStdout(), opts.format, entries, time.Now())
			})
		},
	}

	queueCmd.AddCommand(&cobra.Command{
		Use:   "clear",
		Short: "Drop every scheduled retry",
		Long: `Drop every scheduled retry.

The affected entities keep their state and are collected again by the
next sync.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withApp(func(ctx context.Context, a *app.App) error {
				n, err := operations.ClearQueue(ctx, a)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Cleared %d retry entries\n", n)
				return nil
			})
		},
	})

	return queueCmd
}
