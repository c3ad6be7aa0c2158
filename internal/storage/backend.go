// Package storage persists the watcher's state artifacts as opaque blobs.
// The cache and dedup stores encode themselves; a Backend only reads and
// replaces whole documents.
package storage

import (
	"context"
	"errors"
	"fmt"
)

// ErrNotFound is returned by Read when the artifact has never been written.
var ErrNotFound = errors.New("storage: artifact not found")

// Backend reads and atomically replaces named artifacts.
type Backend interface {
	Read(ctx context.Context, key string) ([]byte, error)
	Write(ctx context.Context, key string, data []byte) error
	Close() error
}

// CorruptError reports an artifact that exists but could not be read or decoded.
// Callers fall back to empty state when they see it.
type CorruptError struct {
	Key string
	Err error
}

func (e *CorruptError) Error() string {
	return fmt.Sprintf("state %q unreadable, starting empty: %v", e.Key, e.Err)
}

func (e *CorruptError) Unwrap() error { return e.Err }
