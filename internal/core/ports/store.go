package ports

import "go.trai.ch/bincache/internal/core/domain"

// IndexStore persists the index of indices and the cached mirror index blobs.
type IndexStore interface {
	// LoadContents reads the index of indices. An absent or empty file yields
	// an empty map. A failed self-check returns domain.ErrCacheCorruption.
	LoadContents() (map[string]domain.MirrorIndexEntry, error)

	// SaveContents atomically replaces the index of indices.
	SaveContents(entries map[string]domain.MirrorIndexEntry) error

	// WriteIndex stores an index blob and returns its file name.
	WriteIndex(hash string, data []byte) (string, error)

	// ReadIndex reads an index blob and checks it against expectedHash.
	ReadIndex(name, expectedHash string) ([]byte, error)

	// RemoveIndex deletes an index blob. Missing blobs are ignored.
	RemoveIndex(name string) error
}
