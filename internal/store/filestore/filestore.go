// Package filestore is a KV backend that keeps one JSON file per key in a
// private directory. Single-user, no locking; fine for a local client.
package filestore

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/Makepad-fr/tada/internal/store"
)

const fileExt = ".json"

// Store implements store.KV on the filesystem.
type Store struct {
	dir string
}

// New returns a Store rooted at dir. The directory is created lazily on the
// first write.
func New(dir string) *Store {
	return &Store{dir: dir}
}

// Dir returns the directory holding the key files.
func (s *Store) Dir() string { return s.dir }

// Path returns the file backing key.
func (s *Store) Path(key string) string {
	return filepath.Join(s.dir, key+fileExt)
}

func (s *Store) Get(_ context.Context, key string) ([]byte, error) {
	if err := store.ValidateKey(key); err != nil {
		return nil, err
	}
	b, err := os.ReadFile(s.Path(key))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("read file: %w", err)
	}
	return b, nil
}

func (s *Store) Put(_ context.Context, key string, value []byte) error {
	if err := store.ValidateKey(key); err != nil {
		return err
	}
	// owner-only, the values hold bearer tokens
	if err := os.MkdirAll(s.dir, 0o700); err != nil {
		return fmt.Errorf("mkdir: %w", err)
	}
	tmp, err := os.CreateTemp(s.dir, key+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp: %w", err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(value); err != nil {
		tmp.Close()
		return fmt.Errorf("write file: %w", err)
	}
	if err := tmp.Chmod(0o600); err != nil {
		tmp.Close()
		return fmt.Errorf("chmod: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.Path(key)); err != nil {
		return fmt.Errorf("rename: %w", err)
	}
	return nil
}

func (s *Store) Delete(_ context.Context, key string) error {
	if err := store.ValidateKey(key); err != nil {
		return err
	}
	if err := os.Remove(s.Path(key)); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("remove: %w", err)
	}
	return nil
}

// Close is a no-op; files are not held open.
func (s *Store) Close() error { return nil }
