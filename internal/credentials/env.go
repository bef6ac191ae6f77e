package credentials

import (
	"errors"
	"os"
	"strings"

	"github.com/joho/godotenv"
)

const (
	// EnvToken holds the bearer token for the authority
	EnvToken = "GOMARKS_TOKEN"

	// DotEnvFile is read from the working directory when present
	DotEnvFile = ".env"
)

// GetToken returns the token from the environment
func GetToken() string {
	return strings.TrimSpace(os.Getenv(EnvToken))
}

// GetDotEnvToken returns the token from a .env file without touching the process environment.
// A missing file yields "" and no error.
func GetDotEnvToken(path string) (string, error) {
	if path == "" {
		path = DotEnvFile
	}
	values, err := godotenv.Read(path)
	if errors.Is(err, os.ErrNotExist) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(values[EnvToken]), nil
}
