package utils

import (
	"fmt"
	"strings"
)

// ErrorWithSuggestion wraps an error with a hint on how to fix it
type ErrorWithSuggestion struct {
	Err        error
	Suggestion string
}

// Error implements the error interface
func (e *ErrorWithSuggestion) Error() string {
	if e.Suggestion != "" {
		return fmt.Sprintf("%v\n\nSuggestion: %s", e.Err, e.Suggestion)
	}
	return e.Err.Error()
}

// Unwrap allows errors.Is and errors.As to work
func (e *ErrorWithSuggestion) Unwrap() error {
	return e.Err
}

// ErrItemNotFound creates an error when no item has the given id
func ErrItemNotFound(id string, cause error) error {
	return &ErrorWithSuggestion{
		Err:        fmt.Errorf("item %s: %w", id, cause),
		Suggestion: "Run 'gomarks item list' to see item ids",
	}
}

// ErrCollectionNotFound creates an error when a collection id or name is unknown
func ErrCollectionNotFound(ref string, cause error) error {
	return &ErrorWithSuggestion{
		Err:        fmt.Errorf("collection %q: %w", ref, cause),
		Suggestion: "Run 'gomarks collection list' to see available collections",
	}
}

// ErrTagNotFound creates an error when a tag name is unknown
func ErrTagNotFound(name string, cause error) error {
	return &ErrorWithSuggestion{
		Err:        fmt.Errorf("tag %q: %w", name, cause),
		Suggestion: "Run 'gomarks tag list' to see existing tags",
	}
}

// ErrSyncNotEnabled creates an error when sync is requested but disabled
func ErrSyncNotEnabled() error {
	return &ErrorWithSuggestion{
		Err:        fmt.Errorf("sync is not enabled in configuration"),
		Suggestion: "Set 'sync.enabled: true' and 'remote.base_url' in ~/.config/gomarks/config.yaml",
	}
}

// ErrRemoteOffline creates an error when the authority cannot be reached
func ErrRemoteOffline(url, reason string) error {
	suggestion := "Check your internet connection and try again"
	switch {
	case strings.Contains(reason, "no such host"):
		suggestion = "Check remote.base_url and your DNS settings"
	case strings.Contains(reason, "refused"):
		suggestion = "Check that the authority is running ('gomarks serve')"
	case strings.Contains(reason, "timeout") || strings.Contains(reason, "deadline"):
		suggestion = "The authority may be slow or unreachable. Try again later"
	}
	return &ErrorWithSuggestion{
		Err:        fmt.Errorf("authority at %s is offline: %s", url, reason),
		Suggestion: suggestion,
	}
}

// ErrCredentialsNotFound creates an error when no token is stored for the owner
func ErrCredentialsNotFound(owner string) error {
	return &ErrorWithSuggestion{
		Err:        fmt.Errorf("no token found for owner %s", owner),
		Suggestion: "Store one with 'gomarks credentials set' or export GOMARKS_TOKEN",
	}
}

// ErrAuthenticationFailed creates an error when the authority refuses the token
func ErrAuthenticationFailed(url string) error {
	return &ErrorWithSuggestion{
		Err:        fmt.Errorf("authentication failed for %s", url),
		Suggestion: "Check the stored token with 'gomarks credentials get' and replace it if needed",
	}
}

// ErrInvalidConfig creates an error for an invalid configuration field
func ErrInvalidConfig(field string, reason string) error {
	return &ErrorWithSuggestion{
		Err:        fmt.Errorf("invalid configuration for '%s': %s", field, reason),
		Suggestion: fmt.Sprintf("Check ~/.config/gomarks/config.yaml and fix the '%s' field", field),
	}
}

// ErrInvalidKind creates an error for an unknown item kind
func ErrInvalidKind(kind string, valid []string) error {
	return &ErrorWithSuggestion{
		Err:        fmt.Errorf("invalid item kind: %s", kind),
		Suggestion: fmt.Sprintf("Valid kinds: %s", strings.Join(valid, ", ")),
	}
}

// WrapWithSuggestion wraps an existing error with a suggestion
func WrapWithSuggestion(err error, suggestion string) error {
	if err == nil {
		return nil
	}
	return &ErrorWithSuggestion{
		Err:        err,
		Suggestion: suggestion,
	}
}
