package operations

import (
	"context"
	"errors"
	"io"

	"gomarks/backend"
	"gomarks/backend/sqlite"
	"gomarks/internal/app"
	"gomarks/internal/cli"
	"gomarks/internal/utils"
)

// CollectionView is a collection with its live item count, for output
type CollectionView struct {
	backend.Collection
	Items int `json:"items"`
}

// AddCollection creates a collection
func AddCollection(ctx context.Context, a *app.App, name string) (*backend.Collection, error) {
	c, err := a.Store().CreateCollection(ctx, name)
	if err != nil {
		return nil, err
	}
	a.AfterWrite()
	return c, nil
}

// RenameCollection renames a collection. The default collection keeps its name.
func RenameCollection(ctx context.Context, a *app.App, ref, name string) (*backend.Collection, error) {
	c, err := a.ResolveCollection(ctx, ref)
	if err != nil {
		return nil, err
	}
	renamed, err := a.Store().RenameCollection(ctx, c.ID, name)
	if err != nil {
		return nil, defaultCollectionHint(err)
	}
	a.AfterWrite()
	return renamed, nil
}

// RemoveCollection soft-deletes a collection; its items move to the default collection
func RemoveCollection(ctx context.Context, a *app.App, ref string) (*backend.Collection, error) {
	c, err := a.ResolveCollection(ctx, ref)
	if err != nil {
		return nil, err
	}
	if err := a.Store().DeleteCollection(ctx, c.ID); err != nil {
		return nil, defaultCollectionHint(err)
	}
	a.AfterWrite()
	return c, nil
}

// ListCollections returns live collections, default first, with item counts
func ListCollections(ctx context.Context, a *app.App) ([]CollectionView, error) {
	store := a.Store()
	if _, err := store.EnsureDefaultCollection(ctx); err != nil {
		return nil, err
	}
	collections, err := store.ListCollections(ctx)
	if err != nil {
		return nil, err
	}
	items, err := store.ListItems(ctx, sqlite.ItemFilter{})
	if err != nil {
		return nil, err
	}
	counts := make(map[string]int)
	for _, it := range items {
		counts[it.CollectionID]++
	}

	views := make([]CollectionView, len(collections))
	for i, c := range collections {
		views[i] = CollectionView{Collection: c, Items: counts[c.ID]}
	}
	return views, nil
}

// PrintCollections writes views to w in format
func PrintCollections(w io.Writer, format string, views []CollectionView) error {
	if format != utils.FormatText && format != "" {
		return utils.WriteFormatted(w, format, views)
	}
	collections := make([]backend.Collection, len(views))
	counts := make(map[string]int)
	for i, v := range views {
		collections[i] = v.Collection
		counts[v.ID] = v.Items
	}
	cli.ShowCollections(w, collections, counts)
	return nil
}

func defaultCollectionHint(err error) error {
	if errors.Is(err, backend.ErrDefaultCollection) {
		return utils.WrapWithSuggestion(err, "Items without a collection land in the default collection, so it always exists")
	}
	return err
}
