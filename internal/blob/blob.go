// Package blob stores generated and uploaded media under deterministic keys.
// Keys follow encounters/{id}/{kind}/{name}, so a re-run of the enhancement
// pipeline overwrites its own previous output instead of duplicating it.
package blob

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"spectral/internal/services"
)

// Store is write-once-per-key object storage. Put is last-write-wins for the
// same key, which keeps duplicate pipeline processing safe.
type Store interface {
	// Put writes data under key and returns the key back.
	Put(ctx context.Context, key string, data []byte, contentType string) (string, error)
	// Exists reports whether key holds an object.
	Exists(ctx context.Context, key string) (bool, error)
	// URL returns the public address for a stored key.
	URL(key string) string
}

// EncounterKey builds the canonical object key for an encounter asset.
// kind is one of "uploads", "illustrations", "narration".
func EncounterKey(encounterID, kind, name string) string {
	return fmt.Sprintf("encounters/%s/%s/%s", encounterID, kind, name)
}

// FileStore keeps objects on the local filesystem under a root directory,
// mirroring keys as relative paths. Served publicly via a CDN or static file
// layer pointed at the same root.
type FileStore struct {
	root    string
	baseURL string
}

// NewFileStore roots a FileStore at dir. baseURL prefixes the values returned
// by URL; when empty, URL returns the bare key.
func NewFileStore(dir, baseURL string) (*FileStore, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, fmt.Errorf("blob store root is empty")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create blob root: %w", err)
	}
	return &FileStore{root: dir, baseURL: strings.TrimRight(baseURL, "/")}, nil
}

// Put writes the object, creating parent directories as needed. The write
// goes through a temp file and rename so readers never observe a partial
// object.
func (s *FileStore) Put(ctx context.Context, key string, data []byte, contentType string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	path, err := s.keyPath(key)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("create blob directory: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".blob-*")
	if err != nil {
		return "", fmt.Errorf("create temp object: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return "", fmt.Errorf("write object: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return "", fmt.Errorf("close object: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return "", fmt.Errorf("publish object: %w", err)
	}
	return key, nil
}

// Exists reports whether the key resolves to a regular file.
func (s *FileStore) Exists(ctx context.Context, key string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	path, err := s.keyPath(key)
	if err != nil {
		return false, err
	}
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("stat object: %w", err)
	}
	return info.Mode().IsRegular(), nil
}

// URL returns the public address for key.
func (s *FileStore) URL(key string) string {
	if s.baseURL == "" {
		return key
	}
	return s.baseURL + "/" + key
}

// Open returns the stored bytes for a key, for tests and local serving.
func (s *FileStore) Open(key string) ([]byte, error) {
	path, err := s.keyPath(key)
	if err != nil {
		return nil, err
	}
	return os.ReadFile(path)
}

func (s *FileStore) keyPath(key string) (string, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return "", services.Wrap(services.ErrValidation, "blob", "key-path", "object key is empty", nil)
	}
	cleaned := filepath.Clean(filepath.FromSlash(key))
	if cleaned == "." || strings.HasPrefix(cleaned, "..") || filepath.IsAbs(cleaned) {
		return "", services.Wrap(services.ErrValidation, "blob", "key-path", fmt.Sprintf("object key %q escapes the store root", key), nil)
	}
	return filepath.Join(s.root, cleaned), nil
}
