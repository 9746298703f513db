package ports

import (
	"context"

	"go.trai.ch/bincache/internal/core/domain"
)

// SpecDB is a scratch embedded database of index records.
type SpecDB interface {
	// Put stores a record under its root hash, replacing any previous one.
	Put(ctx context.Context, record domain.IndexRecord) error
	// Records returns every stored record ordered by hash.
	Records(ctx context.Context) ([]domain.IndexRecord, error)
	// Close releases the database.
	Close() error
}

// SpecDBFactory opens scratch spec databases.
type SpecDBFactory interface {
	// Open creates or opens a database in dir.
	Open(dir string) (SpecDB, error)
}
