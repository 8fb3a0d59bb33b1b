// Package kvstore provides named-blob persistence for component state, with
// file and Redis backed implementations.
package kvstore

import (
	"context"
	"errors"
)

// ErrNotFound is returned by Load when no value exists under the name.
// It is distinct from an operation failure.
var ErrNotFound = errors.New("kvstore: not found")

// Store persists named blobs. Implementations must make Save atomic with
// respect to Load: a reader sees either the old value or the new one, never a
// partial write.
type Store interface {
	Load(ctx context.Context, name string) ([]byte, error)
	Save(ctx context.Context, name string, value []byte) error
}
