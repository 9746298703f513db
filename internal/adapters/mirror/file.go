package mirror

import (
	"context"
	"errors"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"slices"

	"go.trai.ch/bincache/internal/core/domain"
	"go.trai.ch/zerr"
)

// FileStorage serves mirrors that live on a local or mounted filesystem.
type FileStorage struct{}

// NewFileStorage creates a new FileStorage.
func NewFileStorage() *FileStorage {
	return &FileStorage{}
}

// Get opens the file behind rawURL.
func (s *FileStorage) Get(_ context.Context, rawURL string) (io.ReadCloser, error) {
	path, err := localPath(rawURL)
	if err != nil {
		return nil, err
	}
	//nolint:gosec // Mirror paths come from configuration
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, zerr.With(zerr.Wrap(domain.ErrNotFound, "object missing"), "url", rawURL)
		}
		return nil, zerr.With(zerr.Wrap(err, domain.ErrFileOpenFailed.Error()), "path", path)
	}
	return f, nil
}

// Put copies localPath to rawURL through a temp file and rename.
func (s *FileStorage) Put(_ context.Context, localPathName, rawURL string) error {
	dst, err := localPath(rawURL)
	if err != nil {
		return err
	}
	//nolint:gosec // Source is a file produced by this process
	src, err := os.Open(localPathName)
	if err != nil {
		return zerr.With(zerr.Wrap(err, domain.ErrFileOpenFailed.Error()), "path", localPathName)
	}
	defer func() { _ = src.Close() }()

	if err := os.MkdirAll(filepath.Dir(dst), domain.DirPerm); err != nil {
		return zerr.With(zerr.Wrap(err, domain.ErrStoreWriteFailed.Error()), "path", dst)
	}

	tmp, err := os.CreateTemp(filepath.Dir(dst), ".put-*")
	if err != nil {
		return zerr.With(zerr.Wrap(err, domain.ErrStoreWriteFailed.Error()), "path", dst)
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }()

	if _, err := io.Copy(tmp, src); err != nil {
		_ = tmp.Close()
		return zerr.With(zerr.Wrap(err, domain.ErrStoreWriteFailed.Error()), "path", dst)
	}
	if err := tmp.Close(); err != nil {
		return zerr.With(zerr.Wrap(err, domain.ErrStoreWriteFailed.Error()), "path", dst)
	}
	if err := os.Chmod(tmpName, domain.FilePerm); err != nil {
		return zerr.With(zerr.Wrap(err, domain.ErrStoreWriteFailed.Error()), "path", dst)
	}
	if err := os.Rename(tmpName, dst); err != nil {
		return zerr.With(zerr.Wrap(err, domain.ErrStoreWriteFailed.Error()), "path", dst)
	}
	return nil
}

// Exists reports whether the file behind rawURL exists.
func (s *FileStorage) Exists(_ context.Context, rawURL string) (bool, error) {
	path, err := localPath(rawURL)
	if err != nil {
		return false, err
	}
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		return false, zerr.With(zerr.Wrap(err, domain.ErrStoreReadFailed.Error()), "path", path)
	}
	return true, nil
}

// List walks the directory behind prefix. A missing directory is empty.
func (s *FileStorage) List(_ context.Context, prefix string) ([]string, error) {
	root, err := localPath(prefix)
	if err != nil {
		return nil, err
	}

	var keys []string
	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			if errors.Is(walkErr, fs.ErrNotExist) && path == root {
				return filepath.SkipDir
			}
			return walkErr
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		keys = append(keys, filepath.ToSlash(rel))
		return nil
	})
	if err != nil {
		return nil, zerr.With(zerr.Wrap(err, domain.ErrStoreReadFailed.Error()), "path", root)
	}

	slices.Sort(keys)
	return keys, nil
}

// Delete removes the file behind rawURL.
func (s *FileStorage) Delete(_ context.Context, rawURL string) error {
	path, err := localPath(rawURL)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return zerr.With(zerr.Wrap(err, domain.ErrStoreWriteFailed.Error()), "path", path)
	}
	return nil
}

func localPath(rawURL string) (string, error) {
	path, ok := domain.LocalPath(rawURL)
	if !ok {
		return "", zerr.With(zerr.Wrap(domain.ErrUnsupportedScheme, "no storage backend"), "url", rawURL)
	}
	return path, nil
}
