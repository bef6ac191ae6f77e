package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"gomarks/backend/authority"
	"gomarks/internal/logger"
)

func newServeCmd(opts *rootOptions) *cobra.Command {
	var addr, dataDir string
	var inMemory bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run a sync authority",
		Long: `Run the authority that clients push to and pull from.

Records are kept per owner in a Badger database under server.data_dir.
When server.token is set every request must carry it as a bearer token.

Examples:
  gomarks serve                      # Listen on server.addr
  gomarks serve --addr :9000
  gomarks serve --in-memory          # Throwaway authority for testing`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.loadConfig()
			if err != nil {
				return err
			}
			log := logger.New(logger.Config{
				Writer: os.Stderr,
				Format: cfg.Server.LogFormat,
				Level:  logger.ParseLevel(cfg.Server.LogLevel),
			})

			if addr == "" {
				addr = cfg.Server.Addr
			}
			if !inMemory && dataDir == "" {
				if dataDir, err = cfg.ServerDataDir(); err != nil {
					return err
				}
			}
			if inMemory {
				dataDir = ""
			}

			store, err := authority.OpenStore(dataDir, log)
			if err != nil {
				return err
			}
			defer store.Close()

			if cfg.Server.Token == "" {
				log.Warn("server.token is empty; accepting unauthenticated requests")
			}
			server := authority.NewServer(authority.NewService(store, log), cfg.Server.Token, log)

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return server.ListenAndServe(ctx, addr)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default server.addr)")
	cmd.Flags().StringVar(&dataDir, "data-dir", "", "database directory (default server.data_dir)")
	cmd.Flags().BoolVar(&inMemory, "in-memory", false, "keep records in memory only")

	return cmd
}
