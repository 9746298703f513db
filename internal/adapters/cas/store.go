// Package cas stores the index of indices and the cached mirror index blobs.
package cas

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"go.trai.ch/bincache/internal/core/domain"
	"go.trai.ch/bincache/internal/core/ports"
	"go.trai.ch/zerr"
)

var _ ports.IndexStore = (*Store)(nil)

// contents is the on-disk form of the index of indices. Digest covers the
// canonical JSON encoding of Entries.
type contents struct {
	Entries map[string]domain.MirrorIndexEntry `json:"entries"`
	Digest  string                             `json:"digest"`
}

// Store implements ports.IndexStore in a single directory.
type Store struct {
	root string
}

// NewStore creates a Store rooted at dir. The directory is created on first write.
func NewStore(dir string) *Store {
	return &Store{root: dir}
}

// Root returns the directory holding the cache.
func (s *Store) Root() string {
	return s.root
}

// LoadContents reads the index of indices.
func (s *Store) LoadContents() (map[string]domain.MirrorIndexEntry, error) {
	path := filepath.Join(s.root, domain.ContentsFileName)
	//nolint:gosec // Path is constructed from the configured cache root
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return map[string]domain.MirrorIndexEntry{}, nil
		}
		return nil, zerr.With(zerr.Wrap(err, domain.ErrStoreReadFailed.Error()), "path", path)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return map[string]domain.MirrorIndexEntry{}, nil
	}

	var c contents
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, zerr.With(zerr.Wrap(domain.ErrCacheCorruption, "index of indices is not valid JSON"), "path", path)
	}
	if c.Entries == nil {
		c.Entries = map[string]domain.MirrorIndexEntry{}
	}

	digest, err := entriesDigest(c.Entries)
	if err != nil {
		return nil, err
	}
	if digest != c.Digest {
		return nil, zerr.With(zerr.Wrap(domain.ErrCacheCorruption, "index of indices failed its self-check"), "path", path)
	}

	return c.Entries, nil
}

// SaveContents atomically replaces the index of indices.
func (s *Store) SaveContents(entries map[string]domain.MirrorIndexEntry) error {
	if entries == nil {
		entries = map[string]domain.MirrorIndexEntry{}
	}
	digest, err := entriesDigest(entries)
	if err != nil {
		return err
	}

	data, err := json.MarshalIndent(contents{Entries: entries, Digest: digest}, "", "  ")
	if err != nil {
		return zerr.Wrap(err, domain.ErrStoreMarshalFailed.Error())
	}

	path := filepath.Join(s.root, domain.ContentsFileName)
	if err := atomicWriteFile(path, data); err != nil {
		return zerr.With(zerr.Wrap(err, domain.ErrStoreWriteFailed.Error()), "path", path)
	}
	return nil
}

// WriteIndex stores an index blob named after its hash.
func (s *Store) WriteIndex(hash string, data []byte) (string, error) {
	name := domain.IndexBlobName(hash)
	path := filepath.Join(s.root, name)
	if err := atomicWriteFile(path, data); err != nil {
		return "", zerr.With(zerr.Wrap(err, domain.ErrStoreWriteFailed.Error()), "path", path)
	}
	return name, nil
}

// ReadIndex reads a blob and verifies its sha256 against expectedHash.
// Missing or mismatching blobs are reported as domain.ErrCacheCorruption.
func (s *Store) ReadIndex(name, expectedHash string) ([]byte, error) {
	path, err := s.blobPath(name)
	if err != nil {
		return nil, err
	}

	//nolint:gosec // Path is validated to stay inside the cache root
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, zerr.With(zerr.Wrap(domain.ErrCacheCorruption, "cached index is missing"), "path", path)
		}
		return nil, zerr.With(zerr.Wrap(err, domain.ErrStoreReadFailed.Error()), "path", path)
	}

	sum := sha256.Sum256(data)
	if hex.EncodeToString(sum[:]) != expectedHash {
		return nil, zerr.With(zerr.Wrap(domain.ErrCacheCorruption, "cached index does not match its hash"), "path", path)
	}
	return data, nil
}

// RemoveIndex deletes a blob. Missing blobs are ignored.
func (s *Store) RemoveIndex(name string) error {
	path, err := s.blobPath(name)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return zerr.With(zerr.Wrap(err, domain.ErrStoreWriteFailed.Error()), "path", path)
	}
	return nil
}

func (s *Store) blobPath(name string) (string, error) {
	if name == "" || strings.ContainsAny(name, `/\`) || name == "." || name == ".." {
		return "", zerr.With(zerr.Wrap(domain.ErrCacheCorruption, "invalid cached index name"), "name", name)
	}
	return filepath.Join(s.root, name), nil
}

func entriesDigest(entries map[string]domain.MirrorIndexEntry) (string, error) {
	data, err := json.Marshal(entries)
	if err != nil {
		return "", zerr.Wrap(err, domain.ErrStoreMarshalFailed.Error())
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}

// atomicWriteFile writes data to a temp file in the target directory and renames it into place.
func atomicWriteFile(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, domain.DirPerm); err != nil {
		return err
	}

	tmpFile, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmpFile.Name()

	defer func() {
		if _, statErr := os.Stat(tmpName); statErr == nil {
			_ = os.Remove(tmpName)
		}
	}()

	if _, err := tmpFile.Write(data); err != nil {
		_ = tmpFile.Close()
		return err
	}

	if err := tmpFile.Sync(); err != nil {
		_ = tmpFile.Close()
		return err
	}

	if err := tmpFile.Close(); err != nil {
		return err
	}

	if err := os.Chmod(tmpName, domain.FilePerm); err != nil {
		return err
	}

	return os.Rename(tmpName, path)
}
