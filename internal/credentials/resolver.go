package credentials

import (
	"fmt"
)

// Source indicates where a token was found
type Source string

const (
	SourceKeyring Source = "keyring"
	SourceEnv     Source = "env"
	SourceDotEnv  Source = "dotenv"
	SourceNone    Source = "none"
)

// Credentials is a resolved token
type Credentials struct {
	Token  string
	Source Source
}

// Resolver finds the authority token. Priority: keyring, environment, .env file.
type Resolver struct {
	DotEnvPath string // empty means ./.env
}

// NewResolver creates a new credential resolver
func NewResolver() *Resolver {
	return &Resolver{}
}

// Resolve returns the token for ownerID at baseURL. An authority without a token
// configured is valid, so callers may treat ErrNotFound as "send no token".
func (r *Resolver) Resolve(baseURL, ownerID string) (*Credentials, error) {
	if baseURL != "" && ownerID != "" && IsAvailable() {
		if token, err := Get(baseURL, ownerID); err == nil {
			return &Credentials{Token: token, Source: SourceKeyring}, nil
		}
	}

	if token := GetToken(); token != "" {
		return &Credentials{Token: token, Source: SourceEnv}, nil
	}

	token, err := GetDotEnvToken(r.DotEnvPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", r.dotEnvPath(), err)
	}
	if token != "" {
		return &Credentials{Token: token, Source: SourceDotEnv}, nil
	}

	return &Credentials{Source: SourceNone}, fmt.Errorf("%w for owner %s (tried: keyring, %s, %s)",
		ErrNotFound, ownerID, EnvToken, r.dotEnvPath())
}

func (r *Resolver) dotEnvPath() string {
	if r.DotEnvPath == "" {
		return DotEnvFile
	}
	return r.DotEnvPath
}
