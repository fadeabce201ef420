package secrets

import (
	"os"
	"path/filepath"
	"strings"

	apperrors "github.com/barnabee/barnabee/pkg/errors"
)

// Store hands out secrets by name. The core never persists secret values
// itself; a missing required secret is a configuration error, never a
// silent fallback.
type Store interface {
	Get(name string) ([]byte, error)
}

// EnvStore reads secrets from environment variables with a fixed prefix:
// "home_token" becomes BARNABEE_SECRET_HOME_TOKEN.
type EnvStore struct {
	prefix string
}

// NewEnvStore creates an env-backed store. An empty prefix defaults to
// BARNABEE_SECRET_.
func NewEnvStore(prefix string) *EnvStore {
	if prefix == "" {
		prefix = "BARNABEE_SECRET_"
	}
	return &EnvStore{prefix: prefix}
}

func (s *EnvStore) Get(name string) ([]byte, error) {
	key := s.prefix + strings.ToUpper(strings.ReplaceAll(name, "-", "_"))
	value, ok := os.LookupEnv(key)
	if !ok || value == "" {
		return nil, apperrors.NewNotFound("secret not set: " + key)
	}
	return []byte(value), nil
}

// FileStore reads secrets from files under one directory, the layout
// container orchestrators mount secrets with. Values are trimmed of a
// trailing newline.
type FileStore struct {
	dir string
}

// NewFileStore creates a directory-backed store.
func NewFileStore(dir string) *FileStore {
	return &FileStore{dir: dir}
}

func (s *FileStore) Get(name string) ([]byte, error) {
	data, err := os.ReadFile(filepath.Join(s.dir, name))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, apperrors.NewNotFound("secret file missing: " + name)
		}
		return nil, apperrors.NewPermanent("read secret "+name, err)
	}
	return []byte(strings.TrimRight(string(data), "\n")), nil
}

// Chain tries stores in order and returns the first hit.
type Chain []Store

func (c Chain) Get(name string) ([]byte, error) {
	var lastErr error
	for _, s := range c {
		value, err := s.Get(name)
		if err == nil {
			return value, nil
		}
		lastErr = err
	}
	if lastErr == nil {
		lastErr = apperrors.NewNotFound("secret not found: " + name)
	}
	return nil, lastErr
}
