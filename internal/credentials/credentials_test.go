package credentials

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zalando/go-keyring"
)

const testURL = "http://authority.local:8420"

func TestServiceName(t *testing.T) {
	tests := []struct {
		baseURL string
		want    string
	}{
		{"http://authority.local:8420", "gomarks-authority.local:8420"},
		{"https://sync.example.com/base", "gomarks-sync.example.com"},
		{"plain-host", "gomarks-plain-host"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, serviceName(tt.baseURL), tt.baseURL)
	}
}

func TestKeyringRoundTrip(t *testing.T) {
	keyring.MockInit()

	require.NoError(t, Set(testURL, "owner-1", "s3cret"))
	token, err := Get(testURL, "owner-1")
	require.NoError(t, err)
	assert.Equal(t, "s3cret", token)

	require.NoError(t, Delete(testURL, "owner-1"))
	_, err = Get(testURL, "owner-1")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, Delete(testURL, "owner-1"), ErrNotFound)
}

func TestSetValidation(t *testing.T) {
	keyring.MockInit()
	tests := []struct {
		name                  string
		baseURL, owner, token string
	}{
		{"no url", "", "o", "t"},
		{"no owner", testURL, "", "t"},
		{"no token", testURL, "o", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Error(t, Set(tt.baseURL, tt.owner, tt.token))
		})
	}
}

func TestResolverPriority(t *testing.T) {
	keyring.MockInit()
	dir := t.TempDir()
	dotenv := filepath.Join(dir, ".env")
	r := &Resolver{DotEnvPath: dotenv}
	t.Setenv(EnvToken, "")

	// Nothing configured
	creds, err := r.Resolve(testURL, "owner-1")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Equal(t, SourceNone, creds.Source)

	// .env file
	require.NoError(t, os.WriteFile(dotenv, []byte("GOMARKS_TOKEN=from-dotenv\n"), 0600))
	creds, err = r.Resolve(testURL, "owner-1")
	require.NoError(t, err)
	assert.Equal(t, SourceDotEnv, creds.Source)
	assert.Equal(t, "from-dotenv", creds.Token)
	assert.Empty(t, os.Getenv(EnvToken), "reading .env must not change the environment")

	// Environment beats .env
	t.Setenv(EnvToken, "from-env")
	creds, err = r.Resolve(testURL, "owner-1")
	require.NoError(t, err)
	assert.Equal(t, SourceEnv, creds.Source)

	// Keyring beats both
	require.NoError(t, Set(testURL, "owner-1", "from-keyring"))
	creds, err = r.Resolve(testURL, "owner-1")
	require.NoError(t, err)
	assert.Equal(t, SourceKeyring, creds.Source)
	assert.Equal(t, "from-keyring", creds.Token)
}
