// Package sessionstore persists serialized chat session state blobs keyed by
// a caller-chosen session key.
//
// The SDK never writes to a store itself: when and how often state is
// persisted is the caller's decision. These implementations exist so
// applications (and the bundled CLI) do not have to reinvent the plumbing.
package sessionstore

import (
	"context"

	"github.com/pkg/errors"
)

// ErrNotFound is returned by Load when no state is stored under a key.
var ErrNotFound = errors.New("session state not found")

// Store persists opaque session state blobs.
type Store interface {
	Save(ctx context.Context, key string, state []byte) error
	Load(ctx context.Context, key string) ([]byte, error)
	Delete(ctx context.Context, key string) error
	Close() error
}
