package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"gomarks/internal/app"
	"gomarks/internal/operations"
)

func newTagCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "tag",
		Aliases: []string{"tags"},
		Short:   "Manage tags",
		Long: `Tags label items. Names are matched case-insensitively through their slug,
so "Go Lang" and "go-lang" are the same tag.

Examples:
  gomarks tag add "Go Lang"
  gomarks tag list
  gomarks tag rename go-lang golang
  gomarks tag rm golang`,
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "add <name>",
		Short: "Create a tag",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withApp(func(ctx context.Context, a *app.App) error {
				tg, err := operations.AddTag(ctx, a, args[0])
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Created tag %s (%s)\n", tg.Name, tg.Slug)
				return nil
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List tags",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withApp(func(ctx context.Context, a *app.App) error {
				tags, err := operations.ListTags(ctx, a)
				if err != nil {
					return err
				}
				return operations.PrintTags(cmd.OutOrStdout(), opts.format, tags)
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:               "rename <tag> <new-name>",
		Short:             "Rename a tag",
		Args:              cobra.ExactArgs(2),
		ValidArgsFunction: firstArgCompletion(opts.tagCompletion()),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withApp(func(ctx context.Context, a *app.App) error {
				tg, err := operations.RenameTag(ctx, a, args[0], args[1])
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Renamed tag to %s (%s)\n", tg.Name, tg.Slug)
				return nil
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:               "rm <tag>",
		Aliases:           []string{"remove", "delete"},
		Short:             "Remove a tag from every item and delete it",
		Args:              cobra.ExactArgs(1),
		ValidArgsFunction: firstArgCompletion(opts.tagCompletion()),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withApp(func(ctx context.Context, a *app.App) error {
				tg, err := operations.RemoveTag(ctx, a, args[0])
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Removed tag %s\n", tg.Name)
				return nil
			})
		},
	})

	return cmd
}
