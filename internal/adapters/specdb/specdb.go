// Package specdb provides the scratch embedded database used to replay
// mirror indexes into spec records.
package specdb

import (
	"context"
	"encoding/json"
	"slices"
	"strings"

	"github.com/ipfs/go-datastore"
	"github.com/ipfs/go-datastore/query"
	leveldb "github.com/ipfs/go-ds-leveldb"
	"go.trai.ch/bincache/internal/core/domain"
	"go.trai.ch/bincache/internal/core/ports"
	"go.trai.ch/zerr"
)

const recordPrefix = "/specs"

var (
	_ ports.SpecDB        = (*DB)(nil)
	_ ports.SpecDBFactory = (*Factory)(nil)
)

// Factory opens LevelDB backed spec databases.
type Factory struct{}

// NewFactory creates a new Factory.
func NewFactory() *Factory {
	return &Factory{}
}

// Open creates or opens a database in dir.
func (f *Factory) Open(dir string) (ports.SpecDB, error) {
	ds, err := leveldb.NewDatastore(dir, nil)
	if err != nil {
		return nil, zerr.With(zerr.Wrap(err, domain.ErrSpecDBFailed.Error()), "path", dir)
	}
	return &DB{ds: ds}, nil
}

// DB stores index records keyed by root dag hash.
type DB struct {
	ds *leveldb.Datastore
}

// Put stores a record under its root hash, replacing any previous one.
func (db *DB) Put(ctx context.Context, record domain.IndexRecord) error {
	hash := record.Hash()
	if hash == "" {
		return zerr.Wrap(domain.ErrInvalidSpec, "index record has no root hash")
	}

	value, err := json.Marshal(record)
	if err != nil {
		return zerr.Wrap(err, domain.ErrStoreMarshalFailed.Error())
	}

	if err := db.ds.Put(ctx, datastore.NewKey(recordPrefix).ChildString(hash), value); err != nil {
		return zerr.With(zerr.Wrap(err, domain.ErrSpecDBFailed.Error()), "hash", hash)
	}
	return nil
}

// Records returns every stored record ordered by hash.
func (db *DB) Records(ctx context.Context) ([]domain.IndexRecord, error) {
	results, err := db.ds.Query(ctx, query.Query{Prefix: recordPrefix})
	if err != nil {
		return nil, zerr.Wrap(err, domain.ErrSpecDBFailed.Error())
	}
	defer func() { _ = results.Close() }()

	var records []domain.IndexRecord
	for r := range results.Next() {
		if r.Error != nil {
			return nil, zerr.Wrap(r.Error, domain.ErrSpecDBFailed.Error())
		}
		var rec domain.IndexRecord
		if err := json.Unmarshal(r.Value, &rec); err != nil {
			return nil, zerr.With(zerr.Wrap(domain.ErrCacheCorruption, "undecodable spec record"), "key", r.Key)
		}
		records = append(records, rec)
	}

	slices.SortFunc(records, func(a, b domain.IndexRecord) int {
		return strings.Compare(a.Hash(), b.Hash())
	})
	return records, nil
}

// Close releases the database.
func (db *DB) Close() error {
	return db.ds.Close()
}
