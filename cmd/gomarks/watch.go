package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	backendsync "gomarks/backend/sync"
	"gomarks/internal/cli"
	gsync "gomarks/internal/sync"
	"gomarks/internal/utils"
)

const watchShutdownTimeout = 10 * time.Second

func newWatchCmd(opts *rootOptions) *cobra.Command {
	var metricsAddr string

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Keep syncing while the authority is reachable",
		Long: `Run sync cycles on the sync.auto_sync_interval_ms schedule and show their
results. Cycles are skipped while the authority is unreachable and resume
as soon as it answers again.

Keys: s syncs now, q quits.

With --metrics-addr the sync metrics are served for Prometheus at /metrics.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := opts.openApp()
			if err != nil {
				return err
			}
			defer a.Shutdown()

			engine, err := a.Engine()
			if err != nil {
				return err
			}

			// the view owns the terminal, so cycle logs go to the background log
			var logOut io.Writer = io.Discard
			if bg, err := utils.NewBackgroundLogger(a.Config().Log.BackgroundFile); err == nil {
				defer bg.Close()
				logOut = bg.Writer()
			}
			logger := log.New(logOut, "[Watch] ", log.LstdFlags)

			interval := a.Config().Sync.AutoSyncInterval()
			coordinator, err := gsync.NewSyncCoordinator(engine.Manager, engine.Client, interval, logger)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			if metricsAddr != "" {
				srv := &http.Server{Addr: metricsAddr, Handler: promhttp.Handler(), ReadHeaderTimeout: 5 * time.Second}
				go func() {
					if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
						logger.Printf("Metrics server failed: %v", err)
					}
				}()
				defer srv.Close()
			}

			model := cli.NewWatchModel(interval, coordinator.IsOnline, func() { coordinator.TriggerSync(ctx) })
			program := cli.NewWatchProgram(model)
			coordinator.OnResult(func(r *backendsync.SyncResult) {
				program.Send(cli.ResultMsg{Result: r})
			})

			go func() {
				<-ctx.Done()
				program.Quit()
			}()

			coordinator.Start(ctx)
			_, runErr := program.Run()
			stop()
			if err := coordinator.Shutdown(watchShutdownTimeout); err != nil {
				utils.Warnf("%v", err)
			}
			if runErr != nil {
				return fmt.Errorf("watch view failed: %w", runErr)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address (e.g. :9090)")

	return cmd
}
