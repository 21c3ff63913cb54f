// Package store defines the durable key-value storage used to keep state
// between runs. Backends live in subpackages.
package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ErrNotFound is returned by Get when the key has never been written or has
// been deleted.
var ErrNotFound = errors.New("key not found")

// KV is a durable key-value store.
type KV interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Put(ctx context.Context, key string, value []byte) error
	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error
	Close() error
}

// ValidateKey rejects keys that cannot be stored as a single file name.
func ValidateKey(key string) error {
	if key == "" {
		return fmt.Errorf("empty key")
	}
	if strings.ContainsAny(key, `/\`) || key == "." || key == ".." {
		return fmt.Errorf("invalid key %q", key)
	}
	return nil
}
