package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"gomarks/backend"
	"gomarks/internal/app"
	"gomarks/internal/operations"
)

// newItemCmd creates the item command with all subcommands
func newItemCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "item",
		Aliases: []string{"items", "i"},
		Short:   "Manage bookmarks, notes and colors",
		Long: `Add, list, edit and remove items.

Items are referenced by id or by any unique prefix of it, as shown in
'gomarks item list'.

Examples:
  gomarks item add bookmark https://go.dev --title "Go" --tag lang
  gomarks item add text "remember the milk" -c Home
  gomarks item add color "#ff8800"
  gomarks item list -c Work --tag lang
  gomarks item edit 1f3a --title "Go website"
  gomarks item move 1f3a Reading
  gomarks item rm 1f3a`,
	}

	cmd.AddCommand(newItemAddCmd(opts))
	cmd.AddCommand(newItemListCmd(opts))
	cmd.AddCommand(newItemShowCmd(opts))
	cmd.AddCommand(newItemEditCmd(opts))
	cmd.AddCommand(newItemMoveCmd(opts))
	cmd.AddCommand(newItemRemoveCmd(opts))
	cmd.AddCommand(newItemTagCmd(opts))
	cmd.AddCommand(newItemUntagCmd(opts))

	return cmd
}

func newItemAddCmd(opts *rootOptions) *cobra.Command {
	var add operations.AddItemOptions

	cmd := &cobra.Command{
		Use:   "add <bookmark|text|color> <url|content|color>",
		Short: "Add an item",
		Args:  cobra.ExactArgs(2),
		ValidArgsFunction: func(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
			if len(args) == 0 {
				return []string{"bookmark", "text", "color"}, cobra.ShellCompDirectiveNoFileComp
			}
			return nil, cobra.ShellCompDirectiveNoFileComp
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			kind, err := operations.ParseKind(args[0])
			if err != nil {
				return err
			}
			add.Kind = string(kind)
			switch kind {
			case backend.KindBookmark:
				add.URL = args[1]
			case backend.KindColor:
				add.Color = args[1]
			default:
				add.Content = args[1]
			}
			return opts.withApp(func(ctx context.Context, a *app.App) error {
				it, err := operations.AddItem(ctx, a, add)
				if err != nil {
					return err
				}
				view, err := operations.GetItem(ctx, a, it.ID)
				if err != nil {
					return err
				}
				return operations.PrintItem(cmd.OutOrStdout(), opts.format, view)
			})
		},
	}

	cmd.Flags().StringVarP(&add.Title, "title", "t", "", "item title")
	cmd.Flags().StringVarP(&add.Collection, "collection", "c", "", "collection name or id (default collection if empty)")
	cmd.Flags().StringSliceVar(&add.Tags, "tag", nil, "tag to apply (repeatable)")
	_ = cmd.RegisterFlagCompletionFunc("collection", opts.collectionCompletion())
	_ = cmd.RegisterFlagCompletionFunc("tag", opts.tagCompletion())

	return cmd
}

func newItemListCmd(opts *rootOptions) *cobra.Command {
	var list operations.ListItemsOptions

	cmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List items",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withApp(func(ctx context.Context, a *app.App) error {
				views, err := operations.ListItems(ctx, a, list)
				if err != nil {
					return err
				}
				return operations.PrintItems(cmd.OutOrStdout(), opts.format, views)
			})
		},
	}

	cmd.Flags().StringVarP(&list.Collection, "collection", "c", "", "only items in this collection")
	cmd.Flags().StringVar(&list.Tag, "tag", "", "only items with this tag")
	cmd.Flags().StringVarP(&list.Kind, "kind", "k", "", "only items of this kind")
	_ = cmd.RegisterFlagCompletionFunc("collection", opts.collectionCompletion())
	_ = cmd.RegisterFlagCompletionFunc("tag", opts.tagCompletion())

	return cmd
}

func newItemShowCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Show one item",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withApp(func(ctx context.Context, a *app.App) error {
				view, err := operations.GetItem(ctx, a, args[0])
				if err != nil {
					return err
				}
				return operations.PrintItem(cmd.OutOrStdout(), opts.format, view)
			})
		},
	}
}

func newItemEditCmd(opts *rootOptions) *cobra.Command {
	var title, url, content, color string

	cmd := &cobra.Command{
		Use:   "edit <id>",
		Short: "Change an item's title, url, content or color",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var edit operations.ItemEdit
			flags := cmd.Flags()
			if flags.Changed("title") {
				edit.Title = &title
			}
			if flags.Changed("url") {
				edit.URL = &url
			}
			if flags.Changed("content") {
				edit.Content = &content
			}
			if flags.Changed("color") {
				edit.Color = &color
			}
			return opts.withApp(func(ctx context.Context, a *app.App) error {
				it, err := operations.EditItem(ctx, a, args[0], edit)
				if err != nil {
					return err
				}
				view, err := operations.GetItem(ctx, a, it.ID)
				if err != nil {
					return err
				}
				return operations.PrintItem(cmd.OutOrStdout(), opts.format, view)
			})
		},
	}

	cmd.Flags().StringVarP(&title, "title", "t", "", "new title")
	cmd.Flags().StringVar(&url, "url", "", "new url")
	cmd.Flags().StringVar(&content, "content", "", "new content")
	cmd.Flags().StringVar(&color, "color", "", "new color (#rgb or #rrggbb)")

	return cmd
}

func newItemMoveCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "move <id> <collection>",
		Short: "Move an item to another collection",
		Args:  cobra.ExactArgs(2),
		ValidArgsFunction: func(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
			if len(args) == 1 {
				return opts.collectionCompletion()(cmd, args, toComplete)
			}
			return nil, cobra.ShellCompDirectiveNoFileComp
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withApp(func(ctx context.Context, a *app.App) error {
				it, err := operations.MoveItem(ctx, a, args[0], args[1])
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Moved %s to %s\n", it.ID, args[1])
				return nil
			})
		},
	}
}

func newItemRemoveCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:     "rm <id>",
		Aliases: []string{"remove", "delete"},
		Short:   "Remove an item",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withApp(func(ctx context.Context, a *app.App) error {
				it, err := operations.RemoveItem(ctx, a, args[0])
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Removed %s\n", it.ID)
				return nil
			})
		},
	}
}

func newItemTagCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "tag <id> <tag>...",
		Short: "Tag an item, creating tags as needed",
		Args:  cobra.MinimumNArgs(2),
		ValidArgsFunction: func(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
			if len(args) >= 1 {
				return opts.tagCompletion()(cmd, args, toComplete)
			}
			return nil, cobra.ShellCompDirectiveNoFileComp
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withApp(func(ctx context.Context, a *app.App) error {
				tags, err := operations.TagItem(ctx, a, args[0], args[1:])
				if err != nil {
					return err
				}
				return operations.PrintTags(cmd.OutOrStdout(), opts.format, tags)
			})
		},
	}
}

func newItemUntagCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "untag <id> <tag>...",
		Short: "Remove tags from an item",
		Args:  cobra.MinimumNArgs(2),
		ValidArgsFunction: func(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
			if len(args) >= 1 {
				return opts.tagCompletion()(cmd, args, toComplete)
			}
			return nil, cobra.ShellCompDirectiveNoFileComp
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withApp(func(ctx context.Context, a *app.App) error {
				tags, err := operations.UntagItem(ctx, a, args[0], args[1:])
				if err != nil {
					return err
				}
				return operations.PrintTags(cmd.OutOrStdout(), opts.format, tags)
			})
		},
	}
}
