package app

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"go.trai.ch/bincache/internal/core/domain"
	"go.trai.ch/zerr"
)

// List returns every spec published in the mirror indexes.
func (a *App) List(ctx context.Context, refresh bool) ([]*domain.Spec, error) {
	var specs []*domain.Spec
	err := a.run(ctx, "list", func(ctx context.Context, s *session) error {
		var err error
		specs, err = s.resolver.Specs(ctx, refresh)
		return err
	})
	return specs, err
}

// CheckOptions configuration for the Check method.
type CheckOptions struct {
	// Mirrors are mirror names or URLs. Empty checks every configured mirror.
	Mirrors         []string
	RebuildOnErrors bool
	// OutputFile receives the JSON rebuild report when set.
	OutputFile string
}

// Check reports the spec files whose archive is missing or stale on the
// mirrors. It returns domain.ErrRebuildRequired alongside a non-empty report.
func (a *App) Check(ctx context.Context, specFiles []string, opts CheckOptions) (domain.RebuildReport, error) {
	var report domain.RebuildReport
	err := a.run(ctx, "check", func(ctx context.Context, s *session) error {
		specs, err := readSpecs(specFiles)
		if err != nil {
			return err
		}
		mirrors, err := s.fetchMirrors(opts.Mirrors)
		if err != nil {
			return err
		}

		report, err = s.resolver.CheckSpecsAgainstMirrors(ctx, specs, mirrors, opts.RebuildOnErrors)
		if err != nil {
			return err
		}

		if opts.OutputFile != "" {
			data, err := json.Marshal(report)
			if err != nil {
				return zerr.Wrap(err, domain.ErrStoreMarshalFailed.Error())
			}
			if err := os.WriteFile(opts.OutputFile, data, domain.FilePerm); err != nil {
				return zerr.With(zerr.Wrap(err, domain.ErrStoreWriteFailed.Error()), "path", opts.OutputFile)
			}
		}

		if report.NeedsRebuild() {
			return zerr.With(zerr.Wrap(domain.ErrRebuildRequired, "specs are missing or stale"), "mirrors", len(report))
		}
		return nil
	})
	return report, err
}

// Name returns the archive base name of a spec file.
func (a *App) Name(specFile string) (string, error) {
	s, err := readSpec(specFile)
	if err != nil {
		return "", err
	}
	return domain.ArchiveBaseName(s), nil
}

// Download fetches the archive of a spec file from the first mirror hosting
// it into dir and returns the downloaded path.
func (a *App) Download(ctx context.Context, specFile, dir string) (string, error) {
	var path string
	err := a.run(ctx, "download", func(ctx context.Context, s *session) error {
		spec, err := readSpec(specFile)
		if err != nil {
			return err
		}
		records, err := s.resolver.Find(ctx, spec, false)
		if err != nil {
			return err
		}
		for _, rec := range records {
			path, err = s.installer.Fetch(ctx, spec, rec.MirrorURL, dir)
			if err == nil {
				a.logger.Info(fmt.Sprintf("downloaded %s from %s", spec.ShortSpec(), rec.MirrorURL))
				return nil
			}
			a.logger.Warn(fmt.Sprintf("failed to fetch %s from %s", spec.ShortSpec(), rec.MirrorURL))
		}
		return zerr.With(zerr.Wrap(domain.ErrArchiveNotFound, "cannot download"), "spec", spec.ShortSpec())
	})
	return path, err
}
