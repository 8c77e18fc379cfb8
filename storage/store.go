package storage

import (
	"context"
	"os"
)

// ErrNotFound is returned when a blob does not exist. It maps to
// os.ErrNotExist so file and object backends report misses alike.
var ErrNotFound = os.ErrNotExist

// Store keeps named immutable blobs, such as checkpoint archives
type Store interface {
	// Put writes a blob, replacing any previous blob of the same name
	Put(ctx context.Context, name string, data []byte) error
	// Get reads a whole blob; a missing blob gives an error matching ErrNotFound
	Get(ctx context.Context, name string) ([]byte, error)
	// List returns the names starting with prefix, sorted
	List(ctx context.Context, prefix string) ([]string, error)
}
