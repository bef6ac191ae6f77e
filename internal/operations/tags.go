package operations

import (
	"context"
	"errors"
	"io"

	"gomarks/backend"
	"gomarks/internal/app"
	"gomarks/internal/cli"
	"gomarks/internal/utils"
)

// AddTag creates a tag
func AddTag(ctx context.Context, a *app.App, name string) (*backend.Tag, error) {
	tg, err := a.Store().CreateTag(ctx, name)
	if err != nil {
		return nil, tagExistsHint(err)
	}
	a.AfterWrite()
	return tg, nil
}

// RenameTag renames a tag; its slug follows the new name
func RenameTag(ctx context.Context, a *app.App, ref, name string) (*backend.Tag, error) {
	tg, err := a.ResolveTag(ctx, ref)
	if err != nil {
		return nil, err
	}
	renamed, err := a.Store().RenameTag(ctx, tg.ID, name)
	if err != nil {
		return nil, tagExistsHint(err)
	}
	a.AfterWrite()
	return renamed, nil
}

// RemoveTag soft-deletes a tag and unlinks it from every item
func RemoveTag(ctx context.Context, a *app.App, ref string) (*backend.Tag, error) {
	tg, err := a.ResolveTag(ctx, ref)
	if err != nil {
		return nil, err
	}
	if err := a.Store().DeleteTag(ctx, tg.ID); err != nil {
		return nil, err
	}
	a.AfterWrite()
	return tg, nil
}

// ListTags returns live tags ordered by slug
func ListTags(ctx context.Context, a *app.App) ([]backend.Tag, error) {
	return a.Store().ListTags(ctx)
}

// PrintTags writes tags to w in format
func PrintTags(w io.Writer, format string, tags []backend.Tag) error {
	if format != utils.FormatText && format != "" {
		return utils.WriteFormatted(w, format, tags)
	}
	cli.ShowTags(w, tags)
	return nil
}

func tagExistsHint(err error) error {
	if errors.Is(err, backend.ErrTagExists) {
		return utils.WrapWithSuggestion(err, "Tag names are compared by slug; run 'gomarks tag list' to see existing tags")
	}
	return err
}
