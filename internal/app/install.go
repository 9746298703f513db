package app

import (
	"context"
	"errors"
	"fmt"
	"os"

	"go.trai.ch/bincache/internal/core/domain"
	"go.trai.ch/bincache/internal/engine/bindist"
	"go.trai.ch/zerr"
)

// InstallOptions configuration for the Install method.
type InstallOptions struct {
	Force     bool
	Unsigned  bool
	AllowRoot bool
}

// Install installs every spec file from the mirrors, link and run
// dependencies first. Prefixes that already exist are skipped, except the
// requested specs themselves when Force is set.
func (a *App) Install(ctx context.Context, specFiles []string, opts InstallOptions) error {
	return a.run(ctx, "install", func(ctx context.Context, s *session) error {
		specs, err := readSpecs(specFiles)
		if err != nil {
			return err
		}

		done := make(map[string]bool)
		for _, root := range specs {
			for _, spec := range append(root.RuntimeDependencies(), root) {
				if done[spec.DAGHash()] {
					continue
				}
				done[spec.DAGHash()] = true

				requested := spec == root
				if !requested || !opts.Force {
					if _, err := os.Stat(s.cfg.Layout().PathFor(spec)); err == nil {
						a.logger.Debug(fmt.Sprintf("%s is already installed", spec.ShortSpec()))
						continue
					}
				}

				iopts := bindist.InstallOptions{Force: requested && opts.Force, Unsigned: opts.Unsigned, AllowRoot: opts.AllowRoot}
				if err := a.installOne(ctx, s, spec, iopts); err != nil {
					return err
				}
			}
		}
		return nil
	})
}

// installOne fetches spec from the first mirror that serves it and installs it.
func (a *App) installOne(ctx context.Context, s *session, spec *domain.Spec, opts bindist.InstallOptions) error {
	records, err := s.resolver.Find(ctx, spec, false)
	if err != nil {
		return err
	}
	if len(records) == 0 {
		return zerr.With(zerr.Wrap(domain.ErrArchiveNotFound, "cannot install"), "spec", spec.ShortSpec())
	}

	var fetchErr error
	for _, rec := range records {
		archive, err := s.installer.Fetch(ctx, spec, rec.MirrorURL, s.stageDir)
		if err != nil {
			a.logger.Warn(fmt.Sprintf("failed to fetch %s from %s", spec.ShortSpec(), rec.MirrorURL))
			fetchErr = errors.Join(fetchErr, err)
			continue
		}
		err = s.installer.Install(ctx, spec, archive, opts)
		_ = os.Remove(archive)
		if err != nil {
			return err
		}
		a.logger.Info(fmt.Sprintf("installed %s from %s", spec.ShortSpec(), rec.MirrorURL))
		return nil
	}
	return fetchErr
}
