package config

import (
	"fmt"
	"os"
	"strings"
)

// SecretFileError reports an unreadable *_FILE secret. It never carries
// file content.
type SecretFileError struct {
	Env  string
	Path string
	Err  error
}

func (e *SecretFileError) Error() string {
	return fmt.Sprintf("failed to read secret from %s=%s: %v", e.Env, e.Path, e.Err)
}

func (e *SecretFileError) Unwrap() error { return e.Err }

// ResolveSecret reads envName using the *_FILE convention: when
// envName_FILE names a file, its trimmed content takes precedence.
// Returns empty string if neither is set.
func ResolveSecret(envName string) (string, error) {
	fileEnv := envName + "_FILE"
	path := os.Getenv(fileEnv)
	if path == "" {
		return os.Getenv(envName), nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return "", &SecretFileError{Env: fileEnv, Path: path, Err: err}
	}
	return strings.TrimSpace(string(b)), nil
}

// EnvOr returns the value of envName, or def when it is unset or empty.
func EnvOr(envName, def string) string {
	if v := os.Getenv(envName); v != "" {
		return v
	}
	return def
}
