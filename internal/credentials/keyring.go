package credentials

import (
	"errors"
	"fmt"
	"net/url"

	"github.com/zalando/go-keyring"
)

// KeyringServicePrefix is the prefix for all gomarks keyring entries
const KeyringServicePrefix = "gomarks"

// ErrNotFound means no token is stored for the owner and authority
var ErrNotFound = errors.New("credentials not found")

// serviceName scopes keyring entries to one authority host
func serviceName(baseURL string) string {
	host := baseURL
	if u, err := url.Parse(baseURL); err == nil && u.Host != "" {
		host = u.Host
	}
	return fmt.Sprintf("%s-%s", KeyringServicePrefix, host)
}

// Set stores the owner's token for the authority at baseURL
func Set(baseURL, ownerID, token string) error {
	if baseURL == "" {
		return fmt.Errorf("remote base url cannot be empty")
	}
	if ownerID == "" {
		return fmt.Errorf("owner id cannot be empty")
	}
	if token == "" {
		return fmt.Errorf("token cannot be empty")
	}
	if err := keyring.Set(serviceName(baseURL), ownerID, token); err != nil {
		return fmt.Errorf("failed to store token in keyring: %w", err)
	}
	return nil
}

// Get retrieves the owner's token for the authority at baseURL
func Get(baseURL, ownerID string) (string, error) {
	if baseURL == "" || ownerID == "" {
		return "", fmt.Errorf("remote base url and owner id are required")
	}
	token, err := keyring.Get(serviceName(baseURL), ownerID)
	if errors.Is(err, keyring.ErrNotFound) {
		return "", fmt.Errorf("%w in keyring for %s (owner %s)", ErrNotFound, baseURL, ownerID)
	}
	if err != nil {
		return "", fmt.Errorf("failed to read token from keyring: %w", err)
	}
	return token, nil
}

// Delete removes the owner's token for the authority at baseURL
func Delete(baseURL, ownerID string) error {
	if baseURL == "" || ownerID == "" {
		return fmt.Errorf("remote base url and owner id are required")
	}
	err := keyring.Delete(serviceName(baseURL), ownerID)
	if errors.Is(err, keyring.ErrNotFound) {
		return fmt.Errorf("%w in keyring for %s (owner %s)", ErrNotFound, baseURL, ownerID)
	}
	if err != nil {
		return fmt.Errorf("failed to delete token from keyring: %w", err)
	}
	return nil
}

// IsAvailable reports whether the OS keyring can be reached
func IsAvailable() bool {
	_, err := keyring.Get(KeyringServicePrefix+"-keyring-test", "test")
	return err == nil || errors.Is(err, keyring.ErrNotFound)
}
