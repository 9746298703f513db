// Package mirror implements ports.MirrorStorage for local, HTTP, and S3 mirrors.
package mirror

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"sync"

	"go.trai.ch/bincache/internal/core/domain"
	"go.trai.ch/bincache/internal/core/ports"
	"go.trai.ch/zerr"
)

var _ ports.MirrorStorage = (*Router)(nil)

// Router dispatches storage calls to a backend chosen by URL scheme.
// Bare paths and file:// URLs go to the local backend, http(s):// to the
// HTTP backend, and s3:// to the S3 backend.
type Router struct {
	local *FileStorage
	web   *HTTPStorage

	mu        sync.Mutex
	s3        *S3Storage
	newS3Func func(ctx context.Context) (*S3Storage, error)
}

// RouterOption configures a Router.
type RouterOption func(*Router)

// WithHTTPClient sets the client used for http(s) mirrors.
func WithHTTPClient(c *http.Client) RouterOption {
	return func(r *Router) {
		r.web = NewHTTPStorage(c)
	}
}

// WithS3Storage sets the backend used for s3 mirrors.
func WithS3Storage(s *S3Storage) RouterOption {
	return func(r *Router) {
		r.s3 = s
	}
}

// NewRouter creates a Router. The S3 client is created on first use.
func NewRouter(opts ...RouterOption) *Router {
	r := &Router{
		local:     NewFileStorage(),
		web:       NewHTTPStorage(http.DefaultClient),
		newS3Func: NewS3StorageFromEnv,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Get opens the object at rawURL.
func (r *Router) Get(ctx context.Context, rawURL string) (io.ReadCloser, error) {
	b, err := r.backend(ctx, rawURL)
	if err != nil {
		return nil, err
	}
	return b.Get(ctx, rawURL)
}

// Put uploads localPath to rawURL.
func (r *Router) Put(ctx context.Context, localPath, rawURL string) error {
	b, err := r.backend(ctx, rawURL)
	if err != nil {
		return err
	}
	return b.Put(ctx, localPath, rawURL)
}

// Exists reports whether rawURL is present.
func (r *Router) Exists(ctx context.Context, rawURL string) (bool, error) {
	b, err := r.backend(ctx, rawURL)
	if err != nil {
		return false, err
	}
	return b.Exists(ctx, rawURL)
}

// List returns the keys below prefix.
func (r *Router) List(ctx context.Context, prefix string) ([]string, error) {
	b, err := r.backend(ctx, prefix)
	if err != nil {
		return nil, err
	}
	return b.List(ctx, prefix)
}

// Delete removes rawURL.
func (r *Router) Delete(ctx context.Context, rawURL string) error {
	b, err := r.backend(ctx, rawURL)
	if err != nil {
		return err
	}
	return b.Delete(ctx, rawURL)
}

func (r *Router) backend(ctx context.Context, rawURL string) (ports.MirrorStorage, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, zerr.With(zerr.Wrap(domain.ErrUnsupportedScheme, "malformed mirror url"), "url", rawURL)
	}

	// Single letter schemes are Windows drive letters.
	if len(u.Scheme) <= 1 || u.Scheme == "file" {
		return r.local, nil
	}

	switch u.Scheme {
	case "http", "https":
		return r.web, nil
	case "s3":
		return r.s3Backend(ctx)
	default:
		return nil, zerr.With(zerr.Wrap(domain.ErrUnsupportedScheme, "no storage backend"), "url", rawURL)
	}
}

func (r *Router) s3Backend(ctx context.Context) (*S3Storage, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.s3 != nil {
		return r.s3, nil
	}
	s, err := r.newS3Func(ctx)
	if err != nil {
		return nil, err
	}
	r.s3 = s
	return s, nil
}
