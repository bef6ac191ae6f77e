// Package operations implements the item, collection and tag commands on top
// of the local store. Every write leaves the affected entities pending sync.
package operations

import (
	"context"
	"fmt"
	"io"
	"strings"

	"gomarks/backend"
	"gomarks/backend/sqlite"
	"gomarks/internal/app"
	"gomarks/internal/cli"
	"gomarks/internal/utils"
)

// AddItemOptions describes a new item as given on the command line
type AddItemOptions struct {
	Kind       string
	Title      string
	URL        string
	Content    string
	Color      string
	Collection string // name or id; empty means the default collection
	Tags       []string
}

// ItemEdit changes the fields that are non-nil
type ItemEdit struct {
	Title   *string
	URL     *string
	Content *string
	Color   *string
}

// ListItemsOptions narrows an item listing
type ListItemsOptions struct {
	Collection string
	Tag        string
	Kind       string
}

// ItemView is an item with its resolved collection name and tags, for output
type ItemView struct {
	backend.Item
	CollectionName string        `json:"collectionName,omitempty"`
	Tags           []backend.Tag `json:"tags,omitempty"`
}

// ParseKind validates a kind flag
func ParseKind(kind string) (backend.ItemKind, error) {
	k, err := backend.ParseItemKind(strings.ToLower(strings.TrimSpace(kind)))
	if err != nil {
		return "", utils.ErrInvalidKind(kind, []string{
			string(backend.KindBookmark), string(backend.KindColor), string(backend.KindText),
		})
	}
	return k, nil
}

func validateFields(kind backend.ItemKind, url, color *string) error {
	if url != nil && (*url != "" || kind == backend.KindBookmark) {
		if err := utils.ValidateURL(strings.TrimSpace(*url)); err != nil {
			return err
		}
	}
	if color != nil && (*color != "" || kind == backend.KindColor) {
		if err := utils.ValidateColor(strings.TrimSpace(*color)); err != nil {
			return err
		}
	}
	return nil
}

// AddItem creates an item, files it and applies its tags
func AddItem(ctx context.Context, a *app.App, opts AddItemOptions) (*backend.Item, error) {
	kind, err := ParseKind(opts.Kind)
	if err != nil {
		return nil, err
	}
	if err := validateFields(kind, &opts.URL, &opts.Color); err != nil {
		return nil, err
	}

	in := sqlite.ItemInput{
		Kind:    kind,
		Title:   opts.Title,
		URL:     opts.URL,
		Content: opts.Content,
		Color:   opts.Color,
	}
	if opts.Collection != "" {
		c, err := a.ResolveCollection(ctx, opts.Collection)
		if err != nil {
			return nil, err
		}
		in.CollectionID = c.ID
	}

	store := a.Store()
	it, err := store.CreateItem(ctx, in)
	if err != nil {
		return nil, err
	}
	for _, name := range opts.Tags {
		if strings.TrimSpace(name) == "" {
			continue
		}
		if _, err := store.TagItem(ctx, it.ID, name); err != nil {
			return nil, fmt.Errorf("item %s created but tagging %q failed: %w", it.ID, name, err)
		}
	}

	utils.Debugf("created %s item %s", it.Kind, it.ID)
	a.AfterWrite()
	return store.GetItem(ctx, it.ID)
}

// EditItem changes an item's display fields
func EditItem(ctx context.Context, a *app.App, ref string, edit ItemEdit) (*backend.Item, error) {
	it, err := a.ResolveItem(ctx, ref)
	if err != nil {
		return nil, err
	}
	if edit.Title == nil && edit.URL == nil && edit.Content == nil && edit.Color == nil {
		return nil, fmt.Errorf("%w: nothing to change", backend.ErrInvalidInput)
	}
	if err := validateFields(it.Kind, edit.URL, edit.Color); err != nil {
		return nil, err
	}

	updated, err := a.Store().UpdateItem(ctx, it.ID, sqlite.ItemUpdate{
		Title:   edit.Title,
		URL:     edit.URL,
		Content: edit.Content,
		Color:   edit.Color,
	})
	if err != nil {
		return nil, err
	}
	a.AfterWrite()
	return updated, nil
}

// MoveItem files an item under another collection
func MoveItem(ctx context.Context, a *app.App, ref, collection string) (*backend.Item, error) {
	it, err := a.ResolveItem(ctx, ref)
	if err != nil {
		return nil, err
	}
	c, err := a.ResolveCollection(ctx, collection)
	if err != nil {
		return nil, err
	}
	if it.CollectionID == c.ID {
		return it, nil
	}
	moved, err := a.Store().MoveItem(ctx, it.ID, c.ID)
	if err != nil {
		return nil, err
	}
	a.AfterWrite()
	return moved, nil
}

// RemoveItem soft-deletes an item; the deletion reaches the authority on the next sync
func RemoveItem(ctx context.Context, a *app.App, ref string) (*backend.Item, error) {
	it, err := a.ResolveItem(ctx, ref)
	if err != nil {
		return nil, err
	}
	if err := a.Store().DeleteItem(ctx, it.ID); err != nil {
		return nil, err
	}
	a.AfterWrite()
	return it, nil
}

// TagItem links tags to an item, creating tags that do not exist yet
func TagItem(ctx context.Context, a *app.App, ref string, names []string) ([]backend.Tag, error) {
	it, err := a.ResolveItem(ctx, ref)
	if err != nil {
		return nil, err
	}
	for _, name := range names {
		if _, err := a.Store().TagItem(ctx, it.ID, name); err != nil {
			return nil, fmt.Errorf("failed to tag %s with %q: %w", it.ID, name, err)
		}
	}
	a.AfterWrite()
	return a.Store().TagsForItem(ctx, it.ID)
}

// UntagItem removes tags from an item
func UntagItem(ctx context.Context, a *app.App, ref string, names []string) ([]backend.Tag, error) {
	it, err := a.ResolveItem(ctx, ref)
	if err != nil {
		return nil, err
	}
	for _, name := range names {
		if err := a.Store().UntagItem(ctx, it.ID, name); err != nil {
			return nil, utils.ErrTagNotFound(name, err)
		}
	}
	a.AfterWrite()
	return a.Store().TagsForItem(ctx, it.ID)
}

// ListItems returns live items with their collection names and tags
func ListItems(ctx context.Context, a *app.App, opts ListItemsOptions) ([]ItemView, error) {
	var filter sqlite.ItemFilter
	if opts.Collection != "" {
		c, err := a.ResolveCollection(ctx, opts.Collection)
		if err != nil {
			return nil, err
		}
		filter.CollectionID = c.ID
	}
	if opts.Tag != "" {
		tg, err := a.ResolveTag(ctx, opts.Tag)
		if err != nil {
			return nil, err
		}
		filter.TagID = tg.ID
	}
	if opts.Kind != "" {
		kind, err := ParseKind(opts.Kind)
		if err != nil {
			return nil, err
		}
		filter.Kind = kind
	}

	store := a.Store()
	items, err := store.ListItems(ctx, filter)
	if err != nil {
		return nil, err
	}
	names, err := collectionNames(ctx, store)
	if err != nil {
		return nil, err
	}

	views := make([]ItemView, len(items))
	for i, it := range items {
		tags, err := store.TagsForItem(ctx, it.ID)
		if err != nil {
			return nil, err
		}
		views[i] = ItemView{Item: it, CollectionName: names[it.CollectionID], Tags: tags}
	}
	return views, nil
}

// GetItem resolves one item with its collection name and tags
func GetItem(ctx context.Context, a *app.App, ref string) (*ItemView, error) {
	it, err := a.ResolveItem(ctx, ref)
	if err != nil {
		return nil, err
	}
	names, err := collectionNames(ctx, a.Store())
	if err != nil {
		return nil, err
	}
	tags, err := a.Store().TagsForItem(ctx, it.ID)
	if err != nil {
		return nil, err
	}
	return &ItemView{Item: *it, CollectionName: names[it.CollectionID], Tags: tags}, nil
}

// PrintItems writes views to w in format
func PrintItems(w io.Writer, format string, views []ItemView) error {
	if format != utils.FormatText && format != "" {
		return utils.WriteFormatted(w, format, views)
	}
	items := make([]backend.Item, len(views))
	names := make(map[string]string)
	tags := make(map[string][]backend.Tag)
	for i, v := range views {
		items[i] = v.Item
		names[v.CollectionID] = v.CollectionName
		tags[v.ID] = v.Tags
	}
	cli.ShowItems(w, items, names, tags)
	return nil
}

// PrintItem writes one view to w in format
func PrintItem(w io.Writer, format string, v *ItemView) error {
	if format != utils.FormatText && format != "" {
		return utils.WriteFormatted(w, format, v)
	}
	cli.ShowItem(w, v.Item, v.CollectionName, v.Tags)
	return nil
}

func collectionNames(ctx context.Context, store *sqlite.Store) (map[string]string, error) {
	collections, err := store.ListCollections(ctx)
	if err != nil {
		return nil, err
	}
	names := make(map[string]string, len(collections))
	for _, c := range collections {
		names[c.ID] = c.Name
	}
	return names, nil
}
