package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"gomarks/internal/app"
	"gomarks/internal/cache"
	"gomarks/internal/cli"
	"gomarks/internal/config"
	"gomarks/internal/utils"
)

// rootOptions holds the persistent flags and how commands get their config
type rootOptions struct {
	configPath string
	verbose    bool
	format     string

	loadConfig func() (*config.Config, error)
}

func defaultLoadConfig() (*config.Config, error) {
	return config.GetConfig(), nil
}

// openApp loads the config and opens the local store
func (o *rootOptions) openApp() (*app.App, error) {
	cfg, err := o.loadConfig()
	if err != nil {
		return nil, err
	}
	path, err := config.GetConfigPath()
	if err != nil {
		return nil, err
	}
	return app.New(cfg, path)
}

// withApp runs fn against an open app and shuts it down afterwards
func (o *rootOptions) withApp(fn func(ctx context.Context, a *app.App) error) error {
	a, err := o.openApp()
	if err != nil {
		return err
	}
	defer a.Shutdown()
	return fn(context.Background(), a)
}

// completionNames returns collection and tag names, from the cache when it is fresh
func (o *rootOptions) completionNames() (*cache.Names, error) {
	cfg, err := o.loadConfig()
	if err != nil {
		return nil, err
	}
	return cache.LoadWithFallback(cfg.OwnerID, func() (*cache.Names, error) {
		a, err := o.openApp()
		if err != nil {
			return nil, err
		}
		defer a.Shutdown()
		collections, err := a.CollectionNames()
		if err != nil {
			return nil, err
		}
		tags, err := a.TagNames()
		if err != nil {
			return nil, err
		}
		return &cache.Names{Collections: collections, Tags: tags}, nil
	})
}

func (o *rootOptions) collectionCompletion() func(*cobra.Command, []string, string) ([]string, cobra.ShellCompDirective) {
	return cli.NameCompletion(func() ([]string, error) {
		names, err := o.completionNames()
		if err != nil {
			return nil, err
		}
		return names.Collections, nil
	})
}

func (o *rootOptions) tagCompletion() func(*cobra.Command, []string, string) ([]string, cobra.ShellCompDirective) {
	return cli.NameCompletion(func() ([]string, error) {
		names, err := o.completionNames()
		if err != nil {
			return nil, err
		}
		return names.Tags, nil
	})
}

func newRootCmd(loadConfig func() (*config.Config, error)) *cobra.Command {
	opts := &rootOptions{loadConfig: loadConfig}

	rootCmd := &cobra.Command{
		Use:   "gomarks",
		Short: "Offline-first bookmarks, notes and colors with sync",
		Long: `gomarks keeps bookmarks, text notes and colors in a local database and
syncs them with a gomarks authority when one is reachable.

Every change is saved locally first. 'gomarks sync' pushes pending changes
and pulls what other devices wrote; with sync.auto_sync enabled this happens
in the background after each change.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if cmd.Flags().Changed("config") {
				config.SetCustomConfigPath(opts.configPath)
			}
			utils.SetVerboseMode(opts.verbose)
		},
	}

	rootCmd.PersistentFlags().StringVar(&opts.configPath, "config", "", "config file or directory (default is the user config dir)")
	rootCmd.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "enable debug logging")
	rootCmd.PersistentFlags().StringVarP(&opts.format, "format", "o", utils.FormatText, "output format: text, json or yaml")

	rootCmd.AddCommand(newItemCmd(opts))
	rootCmd.AddCommand(newCollectionCmd(opts))
	rootCmd.AddCommand(newTagCmd(opts))
	rootCmd.AddCommand(newSyncCmd(opts))
	rootCmd.AddCommand(newWatchCmd(opts))
	rootCmd.AddCommand(newCredentialsCmd(opts))
	rootCmd.AddCommand(newServeCmd(opts))
	rootCmd.AddCommand(newBackgroundSyncCmd(opts))

	return rootCmd
}

func main() {
	if err := newRootCmd(defaultLoadConfig).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
