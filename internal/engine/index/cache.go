// Package index maintains the local cache of mirror package indexes.
package index

import (
	"context"
	"errors"
	"fmt"
	"io"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"go.trai.ch/bincache/internal/core/domain"
	"go.trai.ch/bincache/internal/core/ports"
	"go.trai.ch/zerr"
)

// Cache is the local cache of mirror indexes. It must be opened before use
// and closed afterwards; only UpdateLocalIndexCache persists its state.
type Cache struct {
	store   ports.IndexStore
	storage ports.MirrorStorage
	hasher  ports.Hasher
	dbs     ports.SpecDBFactory
	logger  ports.Logger

	open    bool
	entries map[string]domain.MirrorIndexEntry
	records *domain.SpecRecords
}

// NewCache creates a closed Cache.
func NewCache(
	store ports.IndexStore,
	storage ports.MirrorStorage,
	hasher ports.Hasher,
	dbs ports.SpecDBFactory,
	logger ports.Logger,
) *Cache {
	return &Cache{
		store:   store,
		storage: storage,
		hasher:  hasher,
		dbs:     dbs,
		logger:  logger,
		records: domain.NewSpecRecords(),
	}
}

// Open loads the index of indices. A corrupt index of indices is discarded
// so every mirror gets refetched.
func (c *Cache) Open() error {
	entries, err := c.store.LoadContents()
	if err != nil {
		if !errors.Is(err, domain.ErrCacheCorruption) {
			return err
		}
		c.logger.Warn("local index cache failed its integrity check, refetching every mirror index")
		entries = map[string]domain.MirrorIndexEntry{}
	}
	c.entries = entries
	c.open = true
	return nil
}

// Close ends the cache lifecycle. Unsaved changes are dropped.
func (c *Cache) Close() error {
	c.open = false
	c.entries = nil
	return nil
}

// Entries returns a copy of the cached mirror entries.
func (c *Cache) Entries() map[string]domain.MirrorIndexEntry {
	return maps.Clone(c.entries)
}

// Records returns the spec records derived by the last RegenerateSpecCache.
func (c *Cache) Records() *domain.SpecRecords {
	return c.records
}

// FetchAndCacheIndex refreshes the cached index of mirrorURL. It reports
// false without fetching the index when the published hash equals
// expectedHash. The previous entry is kept on failure.
func (c *Cache) FetchAndCacheIndex(ctx context.Context, mirrorURL, expectedHash string) (bool, error) {
	if err := c.checkOpen(); err != nil {
		return false, err
	}

	hashURL := domain.BuildCacheURL(mirrorURL, domain.IndexHashFileName)
	published, err := c.read(ctx, hashURL)
	if err != nil {
		c.logger.Debug(fmt.Sprintf("unable to read index hash %s", hashURL))
	}
	publishedHash := strings.TrimSpace(string(published))
	if expectedHash != "" && publishedHash == expectedHash {
		c.logger.Debug(fmt.Sprintf("cached index for %s is up to date", mirrorURL))
		return false, nil
	}

	indexURL := domain.BuildCacheURL(mirrorURL, domain.IndexFileName)
	data, err := c.read(ctx, indexURL)
	if err != nil {
		return false, zerr.With(err, "mirror", mirrorURL)
	}

	computed := c.hasher.HashBytes(data)
	if computed != publishedHash {
		err := zerr.With(zerr.With(zerr.With(zerr.Wrap(domain.ErrIndexTransmissionError, "index hash mismatch"),
			"mirror", mirrorURL), "computed", computed), "published", publishedHash)
		c.logger.Warn(fmt.Sprintf("computed index hash %s does not match published %q for %s", computed, publishedHash, mirrorURL))
		return false, err
	}

	name, err := c.store.WriteIndex(computed, data)
	if err != nil {
		return false, err
	}
	old, had := c.entries[mirrorURL]
	c.entries[mirrorURL] = domain.MirrorIndexEntry{IndexHash: computed, IndexPath: name}
	if had && old.IndexPath != name {
		c.release(old.IndexPath)
	}
	return true, nil
}

// UpdateLocalIndexCache reconciles the cache with the configured mirrors and
// persists the result. Fetch failures are logged and leave the last known
// good entry in place; only a failure to persist is returned.
func (c *Cache) UpdateLocalIndexCache(ctx context.Context, configured []string) error {
	if err := c.checkOpen(); err != nil {
		return err
	}

	for _, m := range slices.Sorted(maps.Keys(c.entries)) {
		entry := c.entries[m]
		if !slices.Contains(configured, m) {
			delete(c.entries, m)
			c.release(entry.IndexPath)
			continue
		}

		expected := entry.IndexHash
		if _, err := c.store.ReadIndex(entry.IndexPath, entry.IndexHash); err != nil {
			c.logger.Warn(fmt.Sprintf("cached index for %s is corrupt, refetching", m))
			expected = ""
		}
		if _, err := c.FetchAndCacheIndex(ctx, m, expected); err != nil {
			c.logger.Warn(fmt.Sprintf("failed to refresh index of %s, keeping the cached copy", m))
		}
	}

	for _, m := range configured {
		if _, ok := c.entries[m]; ok {
			continue
		}
		if _, err := c.FetchAndCacheIndex(ctx, m, ""); err != nil {
			c.logger.Warn(fmt.Sprintf("failed to fetch index of %s", m))
		}
	}

	return c.store.SaveContents(c.entries)
}

// RegenerateSpecCache replays every cached index into a scratch database
// and rebuilds the spec records from it. A corrupt blob is refetched once.
func (c *Cache) RegenerateSpecCache(ctx context.Context) (*domain.SpecRecords, error) {
	if err := c.checkOpen(); err != nil {
		return nil, err
	}

	records := domain.NewSpecRecords()
	for _, m := range slices.Sorted(maps.Keys(c.entries)) {
		recs, err := c.mirrorRecords(ctx, m)
		if err != nil {
			c.logger.Warn(fmt.Sprintf("skipping index of %s: %v", m, err))
			continue
		}
		records.Merge(recs...)
	}
	c.records = records
	return records, nil
}

func (c *Cache) mirrorRecords(ctx context.Context, mirrorURL string) ([]domain.SpecRecord, error) {
	entry := c.entries[mirrorURL]
	data, err := c.store.ReadIndex(entry.IndexPath, entry.IndexHash)
	if errors.Is(err, domain.ErrCacheCorruption) {
		c.logger.Warn(fmt.Sprintf("cached index for %s is corrupt, refetching", mirrorURL))
		if _, ferr := c.FetchAndCacheIndex(ctx, mirrorURL, ""); ferr != nil {
			return nil, ferr
		}
		entry = c.entries[mirrorURL]
		data, err = c.store.ReadIndex(entry.IndexPath, entry.IndexHash)
	}
	if err != nil {
		return nil, err
	}

	doc, err := domain.ParseIndexDocument(data)
	if err != nil {
		return nil, zerr.With(zerr.Wrap(domain.ErrCacheCorruption, err.Error()), "mirror", mirrorURL)
	}

	stored, err := c.replay(ctx, doc.Records())
	if err != nil {
		return nil, err
	}

	out := make([]domain.SpecRecord, 0, len(stored))
	for _, r := range stored {
		s, err := domain.SpecFromNodes(r.Spec)
		if err != nil {
			c.logger.Warn(fmt.Sprintf("skipping unreadable spec %s in index of %s", r.Hash(), mirrorURL))
			continue
		}
		out = append(out, domain.SpecRecord{MirrorURL: mirrorURL, Spec: s})
	}
	return out, nil
}

// replay loads records into a fresh scratch database and reads them back.
func (c *Cache) replay(ctx context.Context, records []domain.IndexRecord) (out []domain.IndexRecord, err error) {
	scratch, err := os.MkdirTemp("", "bincache-db-*")
	if err != nil {
		return nil, zerr.Wrap(err, domain.ErrSpecDBFailed.Error())
	}
	defer func() { _ = os.RemoveAll(scratch) }()

	db, err := c.dbs.Open(filepath.Join(scratch, "db"))
	if err != nil {
		return nil, err
	}
	defer func() {
		if cerr := db.Close(); err == nil && cerr != nil {
			err = cerr
		}
	}()

	for _, r := range records {
		if err := db.Put(ctx, r); err != nil {
			return nil, err
		}
	}
	return db.Records(ctx)
}

func (c *Cache) read(ctx context.Context, url string) ([]byte, error) {
	rc, err := c.storage.Get(ctx, url)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rc.Close() }()

	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, zerr.With(withKind(domain.ErrMirrorUnreachable, err), "path", url)
	}
	return data, nil
}

// release removes a cached blob unless another mirror still refers to it.
// Mirrors publishing identical indexes share one blob.
func (c *Cache) release(name string) {
	for _, e := range c.entries {
		if e.IndexPath == name {
			return
		}
	}
	if err := c.store.RemoveIndex(name); err != nil {
		c.logger.Warn(fmt.Sprintf("failed to remove cached index %s", name))
	}
}

func (c *Cache) checkOpen() error {
	if !c.open {
		return domain.ErrCacheClosed
	}
	return nil
}

// withKind keeps sentinel in the errors.Is chain of err.
func withKind(sentinel, err error) error {
	if errors.Is(err, sentinel) {
		return err
	}
	return errors.Join(sentinel, err)
}
