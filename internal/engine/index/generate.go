package index

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/hashicorp/go-multierror"
	"go.trai.ch/bincache/internal/core/domain"
	"go.trai.ch/zerr"
)

// GeneratePackageIndex rebuilds the index of mirrorURL from the spec files it
// publishes and pushes index.json followed by its hash sidecar. Spec files
// that cannot be read are reported and left out.
func (c *Cache) GeneratePackageIndex(ctx context.Context, mirrorURL string) error {
	keys, err := c.storage.List(ctx, domain.BuildCacheURL(mirrorURL))
	if err != nil {
		return zerr.With(err, "mirror", mirrorURL)
	}

	var (
		records []domain.IndexRecord
		skipped *multierror.Error
	)
	for _, key := range keys {
		if strings.Contains(key, "/") || !strings.HasSuffix(key, domain.SpecExt) {
			continue
		}
		rec, err := c.specRecord(ctx, domain.BuildCacheURL(mirrorURL, key))
		if err != nil {
			skipped = multierror.Append(skipped, err)
			continue
		}
		records = append(records, rec)
	}
	if err := skipped.ErrorOrNil(); err != nil {
		c.logger.Warn(fmt.Sprintf("skipped %d unreadable spec files on %s: %v", len(skipped.Errors), mirrorURL, err))
	}

	stored, err := c.replay(ctx, records)
	if err != nil {
		return err
	}
	data, err := domain.NewIndexDocument(stored).Marshal()
	if err != nil {
		return zerr.Wrap(err, domain.ErrStoreMarshalFailed.Error())
	}

	scratch, err := os.MkdirTemp("", "bincache-index-*")
	if err != nil {
		return zerr.Wrap(err, domain.ErrStoreWriteFailed.Error())
	}
	defer func() { _ = os.RemoveAll(scratch) }()

	indexFile := filepath.Join(scratch, domain.IndexFileName)
	hashFile := filepath.Join(scratch, domain.IndexHashFileName)
	if err := os.WriteFile(indexFile, data, domain.FilePerm); err != nil {
		return zerr.With(zerr.Wrap(err, domain.ErrStoreWriteFailed.Error()), "path", indexFile)
	}
	if err := os.WriteFile(hashFile, []byte(c.hasher.HashBytes(data)), domain.FilePerm); err != nil {
		return zerr.With(zerr.Wrap(err, domain.ErrStoreWriteFailed.Error()), "path", hashFile)
	}

	for _, f := range []string{indexFile, hashFile} {
		dst := domain.BuildCacheURL(mirrorURL, filepath.Base(f))
		if err := c.storage.Put(ctx, f, dst); err != nil {
			return zerr.With(zerr.With(err, "mirror", mirrorURL), "path", dst)
		}
	}
	c.logger.Info(fmt.Sprintf("generated index of %d specs for %s", len(stored), mirrorURL))
	return nil
}

func (c *Cache) specRecord(ctx context.Context, url string) (domain.IndexRecord, error) {
	data, err := c.read(ctx, url)
	if err != nil {
		return domain.IndexRecord{}, err
	}
	doc, err := domain.ParseSpecDocument(data)
	if err != nil {
		return domain.IndexRecord{}, zerr.With(err, "path", url)
	}
	if _, err := doc.Root(); err != nil {
		return domain.IndexRecord{}, zerr.With(err, "path", url)
	}
	return domain.IndexRecord{Spec: doc.Spec}, nil
}
