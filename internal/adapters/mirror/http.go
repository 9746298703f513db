package mirror

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"slices"
	"strings"

	"go.trai.ch/bincache/internal/core/domain"
	"go.trai.ch/zerr"
	"golang.org/x/net/html"
)

// HTTPStorage serves mirrors over plain HTTP(S). Listing follows the
// anchors of directory index pages.
type HTTPStorage struct {
	client *http.Client
}

// NewHTTPStorage creates an HTTPStorage using client.
func NewHTTPStorage(client *http.Client) *HTTPStorage {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPStorage{client: client}
}

// Get downloads rawURL.
func (s *HTTPStorage) Get(ctx context.Context, rawURL string) (io.ReadCloser, error) {
	resp, err := s.do(ctx, http.MethodGet, rawURL, nil, 0)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode == http.StatusNotFound {
		_ = resp.Body.Close()
		return nil, zerr.With(zerr.Wrap(domain.ErrNotFound, "object missing"), "url", rawURL)
	}
	if err := statusError(resp, rawURL); err != nil {
		_ = resp.Body.Close()
		return nil, err
	}
	return resp.Body, nil
}

// Put uploads localPath with a PUT request.
func (s *HTTPStorage) Put(ctx context.Context, localPath, rawURL string) error {
	//nolint:gosec // Source is a file produced by this process
	f, err := os.Open(localPath)
	if err != nil {
		return zerr.With(zerr.Wrap(err, domain.ErrFileOpenFailed.Error()), "path", localPath)
	}
	defer func() { _ = f.Close() }()

	info, err := f.Stat()
	if err != nil {
		return zerr.With(zerr.Wrap(err, domain.ErrFileOpenFailed.Error()), "path", localPath)
	}

	resp, err := s.do(ctx, http.MethodPut, rawURL, f, info.Size())
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()
	return statusError(resp, rawURL)
}

// Exists issues a HEAD request for rawURL.
func (s *HTTPStorage) Exists(ctx context.Context, rawURL string) (bool, error) {
	resp, err := s.do(ctx, http.MethodHead, rawURL, nil, 0)
	if err != nil {
		return false, err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode == http.StatusNotFound {
		return false, nil
	}
	if err := statusError(resp, rawURL); err != nil {
		return false, err
	}
	return true, nil
}

// List crawls the index pages below prefix and returns the linked files
// relative to it. Links leaving prefix are ignored.
func (s *HTTPStorage) List(ctx context.Context, prefix string) ([]string, error) {
	base, err := url.Parse(strings.TrimSuffix(prefix, "/") + "/")
	if err != nil {
		return nil, zerr.With(zerr.Wrap(domain.ErrUnsupportedScheme, "malformed mirror url"), "url", prefix)
	}

	seen := map[string]bool{}
	var keys []string
	pending := []*url.URL{base}

	for len(pending) > 0 {
		page := pending[0]
		pending = pending[1:]
		if seen[page.String()] {
			continue
		}
		seen[page.String()] = true

		links, err := s.links(ctx, page)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) && page == base {
				return nil, nil
			}
			return nil, err
		}

		for _, link := range links {
			target := page.ResolveReference(link)
			target.RawQuery, target.Fragment = "", ""
			if target.Host != base.Host || !strings.HasPrefix(target.Path, base.Path) {
				continue
			}
			rel := strings.TrimPrefix(target.Path, base.Path)
			if rel == "" {
				continue
			}
			if strings.HasSuffix(rel, "/") {
				pending = append(pending, target)
				continue
			}
			if !slices.Contains(keys, rel) {
				keys = append(keys, rel)
			}
		}
	}

	slices.Sort(keys)
	return keys, nil
}

// Delete issues a DELETE request. A missing object is not an error.
func (s *HTTPStorage) Delete(ctx context.Context, rawURL string) error {
	resp, err := s.do(ctx, http.MethodDelete, rawURL, nil, 0)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode == http.StatusNotFound {
		return nil
	}
	return statusError(resp, rawURL)
}

func (s *HTTPStorage) links(ctx context.Context, page *url.URL) ([]*url.URL, error) {
	body, err := s.Get(ctx, page.String())
	if err != nil {
		return nil, err
	}
	defer func() { _ = body.Close() }()

	doc, err := html.Parse(body)
	if err != nil {
		return nil, zerr.With(zerr.Wrap(err, domain.ErrStoreReadFailed.Error()), "url", page.String())
	}

	var out []*url.URL
	for n := range doc.Descendants() {
		if n.Type != html.ElementNode || n.Data != "a" {
			continue
		}
		for _, attr := range n.Attr {
			if attr.Key != "href" {
				continue
			}
			if u, err := url.Parse(attr.Val); err == nil {
				out = append(out, u)
			}
		}
	}
	return out, nil
}

func (s *HTTPStorage) do(ctx context.Context, method, rawURL string, body io.Reader, size int64) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, rawURL, body)
	if err != nil {
		return nil, zerr.With(zerr.Wrap(domain.ErrUnsupportedScheme, "malformed mirror url"), "url", rawURL)
	}
	if body != nil {
		req.ContentLength = size
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, zerr.With(errors.Join(domain.ErrMirrorUnreachable, err), "url", rawURL)
	}
	return resp, nil
}

func statusError(resp *http.Response, rawURL string) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	cause := fmt.Errorf("%s %s", resp.Request.Method, resp.Status)
	return zerr.With(errors.Join(domain.ErrMirrorUnreachable, cause), "url", rawURL)
}
