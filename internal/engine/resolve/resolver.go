// Package resolve answers which mirrors host an archive for a spec and
// whether published archives are stale.
package resolve

import (
	"context"
	"fmt"
	"io"

	"go.trai.ch/bincache/internal/core/domain"
	"go.trai.ch/bincache/internal/core/ports"
	"go.trai.ch/zerr"
	"golang.org/x/sync/errgroup"
)

const defaultCheckLimit = 4

// IndexSource provides the spec records derived from the mirror indexes.
type IndexSource interface {
	UpdateLocalIndexCache(ctx context.Context, mirrors []string) error
	RegenerateSpecCache(ctx context.Context) (*domain.SpecRecords, error)
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithCheckLimit bounds how many mirrors CheckSpecsAgainstMirrors probes at once.
func WithCheckLimit(n int) Option {
	return func(r *Resolver) {
		if n > 0 {
			r.limit = n
		}
	}
}

// Resolver locates archives for specs on the configured mirrors.
type Resolver struct {
	source  IndexSource
	storage ports.MirrorStorage
	logger  ports.Logger
	mirrors []string
	limit   int

	loaded  bool
	records *domain.SpecRecords
}

// NewResolver creates a Resolver over the given mirror fetch URLs.
func NewResolver(source IndexSource, storage ports.MirrorStorage, logger ports.Logger, mirrors []string, opts ...Option) *Resolver {
	r := &Resolver{
		source:  source,
		storage: storage,
		logger:  logger,
		mirrors: mirrors,
		limit:   defaultCheckLimit,
		records: domain.NewSpecRecords(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Find returns the mirrors hosting an archive for s. With exactFullHash only
// archives recording the same full hash match. Specs missing from the indexes
// are probed for directly and remembered.
func (r *Resolver) Find(ctx context.Context, s *domain.Spec, exactFullHash bool) ([]domain.SpecRecord, error) {
	if !r.loaded {
		if err := r.refresh(ctx); err != nil {
			return nil, err
		}
	}

	fullHash := ""
	if exactFullHash {
		fullHash = s.FullHash()
	}
	if found := r.records.Find(s.DAGHash(), fullHash); len(found) > 0 {
		return found, nil
	}

	var hits []domain.SpecRecord
	for _, m := range r.mirrors {
		doc, err := r.fetchSpec(ctx, m, s)
		if err != nil {
			r.logger.Debug(fmt.Sprintf("no archive for %s on %s", s.ShortSpec(), m))
			continue
		}
		remote, err := doc.Root()
		if err != nil {
			r.logger.Warn(fmt.Sprintf("unreadable spec file for %s on %s", s.ShortSpec(), m))
			continue
		}
		if remote.DAGHash() != s.DAGHash() {
			continue
		}
		if exactFullHash && remote.FullHash() != fullHash {
			continue
		}
		hits = append(hits, domain.SpecRecord{MirrorURL: m, Spec: remote})
	}
	r.records.Merge(hits...)
	return hits, nil
}

// NeedsRebuild reports whether the archive of s on mirrorURL records a
// different full hash than s. Errors reading the remote spec file yield
// rebuildOnErrors.
func (r *Resolver) NeedsRebuild(ctx context.Context, s *domain.Spec, mirrorURL string, rebuildOnErrors bool) bool {
	doc, err := r.fetchSpec(ctx, mirrorURL, s)
	if err != nil {
		r.logger.Debug(fmt.Sprintf("cannot read spec file of %s on %s: %v", s.ShortSpec(), mirrorURL, err))
		return rebuildOnErrors
	}

	remote := doc.FullHash
	if remote == "" {
		remote = doc.Spec[0].FullHash
	}
	if remote == "" {
		return true
	}
	return remote != s.FullHash()
}

// Specs lists every spec known from the mirror indexes. The indexes are
// refreshed on first use or when refresh is set.
func (r *Resolver) Specs(ctx context.Context, refresh bool) ([]*domain.Spec, error) {
	if refresh || !r.loaded {
		if err := r.refresh(ctx); err != nil {
			return nil, err
		}
	}
	return r.records.Specs(), nil
}

// CheckSpecsAgainstMirrors reports, per mirror, the specs whose published
// archive is missing or stale. Mirrors with nothing to rebuild are absent.
func (r *Resolver) CheckSpecsAgainstMirrors(
	ctx context.Context,
	specs []*domain.Spec,
	mirrors []domain.Mirror,
	rebuildOnErrors bool,
) (domain.RebuildReport, error) {
	results := make([][]domain.RebuildSpec, len(mirrors))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(r.limit)
	for i, m := range mirrors {
		g.Go(func() error {
			r.logger.Debug(fmt.Sprintf("checking for built specs at %s", m.FetchURL))
			for _, s := range specs {
				if err := ctx.Err(); err != nil {
					return err
				}
				if r.NeedsRebuild(ctx, s, m.FetchURL, rebuildOnErrors) {
					results[i] = append(results[i], domain.RebuildSpec{ShortSpec: s.ShortSpec(), Hash: s.DAGHash()})
				}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	report := domain.RebuildReport{}
	for i, m := range mirrors {
		if len(results[i]) == 0 {
			continue
		}
		report[m.FetchURL] = &domain.MirrorRebuilds{
			MirrorName:   m.Name,
			MirrorURL:    m.FetchURL,
			RebuildSpecs: results[i],
		}
	}
	return report, nil
}

func (r *Resolver) refresh(ctx context.Context) error {
	if err := r.source.UpdateLocalIndexCache(ctx, r.mirrors); err != nil {
		return err
	}
	records, err := r.source.RegenerateSpecCache(ctx)
	if err != nil {
		return err
	}
	r.records = records
	r.loaded = true
	return nil
}

func (r *Resolver) fetchSpec(ctx context.Context, mirrorURL string, s *domain.Spec) (*domain.SpecDocument, error) {
	url := domain.BuildCacheURL(mirrorURL, domain.SpecFilePath(s))
	rc, err := r.storage.Get(ctx, url)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rc.Close() }()

	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, zerr.With(zerr.Wrap(err, domain.ErrMirrorUnreachable.Error()), "path", url)
	}
	doc, err := domain.ParseSpecDocument(data)
	if err != nil {
		return nil, zerr.With(zerr.With(err, "mirror", mirrorURL), "path", url)
	}
	return doc, nil
}
