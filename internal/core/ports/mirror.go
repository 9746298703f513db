package ports

import (
	"context"
	"io"
)

// MirrorStorage is the byte-oriented transport behind every mirror.
//
//go:generate go run go.uber.org/mock/mockgen -source=mirror.go -destination=mocks/mock_mirror.go -package=mocks
type MirrorStorage interface {
	// Get opens the object at url. Missing objects return domain.ErrNotFound.
	Get(ctx context.Context, url string) (io.ReadCloser, error)
	// Put uploads the local file to url, replacing any existing object.
	Put(ctx context.Context, localPath, url string) error
	// Exists reports whether an object is present at url.
	Exists(ctx context.Context, url string) (bool, error)
	// List returns the keys below prefix, relative to it, recursively.
	List(ctx context.Context, prefix string) ([]string, error)
	// Delete removes the object at url. Missing objects are not an error.
	Delete(ctx context.Context, url string) error
}
