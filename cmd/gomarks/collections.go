package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"gomarks/internal/app"
	"gomarks/internal/operations"
)

func newCollectionCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "collection",
		Aliases: []string{"collections", "col"},
		Short:   "Manage collections",
		Long: `Collections group items. Every owner has one default collection
("Unsorted") that cannot be renamed or removed; removing another
collection moves its items there.

Examples:
  gomarks collection add Reading
  gomarks collection list
  gomarks collection rename Reading "Read later"
  gomarks collection rm "Read later"`,
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "add <name>",
		Short: "Create a collection",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withApp(func(ctx context.Context, a *app.App) error {
				c, err := operations.AddCollection(ctx, a, args[0])
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Created collection %s (%s)\n", c.Name, c.ID)
				return nil
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List collections with item counts",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withApp(func(ctx context.Context, a *app.App) error {
				views, err := operations.ListCollections(ctx, a)
				if err != nil {
					return err
				}
				return operations.PrintCollections(cmd.OutOrStdout(), opts.format, views)
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:               "rename <collection> <new-name>",
		Short:             "Rename a collection",
		Args:              cobra.ExactArgs(2),
		ValidArgsFunction: firstArgCompletion(opts.collectionCompletion()),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withApp(func(ctx context.Context, a *app.App) error {
				c, err := operations.RenameCollection(ctx, a, args[0], args[1])
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Renamed collection to %s\n", c.Name)
				return nil
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:               "rm <collection>",
		Aliases:           []string{"remove", "delete"},
		Short:             "Remove a collection, moving its items to the default collection",
		Args:              cobra.ExactArgs(1),
		ValidArgsFunction: firstArgCompletion(opts.collectionCompletion()),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withApp(func(ctx context.Context, a *app.App) error {
				c, err := operations.RemoveCollection(ctx, a, args[0])
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Removed collection %s\n", c.Name)
				return nil
			})
		},
	})

	return cmd
}

type completionFunc = func(*cobra.Command, []string, string) ([]string, cobra.ShellCompDirective)

// firstArgCompletion applies complete to the first positional argument only
func firstArgCompletion(complete completionFunc) completionFunc {
	return func(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
		if len(args) > 0 {
			return nil, cobra.ShellCompDirectiveNoFileComp
		}
		return complete(cmd, args, toComplete)
	}
}
