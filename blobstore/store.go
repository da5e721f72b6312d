package blobstore

import (
	"context"
	"os"
	"strings"
)

// ErrNotFound is returned when a blob does not exist.
//
// Implementations should return an error that satisfies `errors.Is(err, ErrNotFound)`.
// The default maps to `os.ErrNotExist`.
var ErrNotFound = os.ErrNotExist

// BlobStore stores small immutable objects by name. Flushed records are
// written as one blob each.
//
// Implementations must be safe for concurrent use.
type BlobStore interface {
	// Put writes a blob, replacing any existing blob with the same name.
	// Readers observe either the old or the new content, never a mix.
	Put(ctx context.Context, name string, data []byte) error
	// Get returns the content of a blob or ErrNotFound.
	Get(ctx context.Context, name string) ([]byte, error)
	// Delete removes a blob. Deleting a missing blob is not an error.
	Delete(ctx context.Context, name string) error
	// List returns the sorted names of all blobs starting with prefix.
	List(ctx context.Context, prefix string) ([]string, error)
}

// hasPrefix reports whether name matches a List prefix. The empty prefix
// matches everything.
func hasPrefix(name, prefix string) bool {
	return prefix == "" || strings.HasPrefix(name, prefix)
}
