package app

import (
	"context"
	"fmt"

	"go.trai.ch/bincache/internal/engine/bindist"
)

// CreateOptions configuration for the Create method.
type CreateOptions struct {
	// Mirror is a configured mirror name or a URL. Empty selects the first mirror.
	Mirror       string
	Force        bool
	Relative     bool
	Unsigned     bool
	AllowRoot    bool
	Key          string
	RebuildIndex bool
}

// Create packages the installed prefix of every spec file and publishes the
// archives. The mirror index is rebuilt once, after the last archive.
func (a *App) Create(ctx context.Context, specFiles []string, opts CreateOptions) error {
	return a.run(ctx, "create", func(ctx context.Context, s *session) error {
		specs, err := readSpecs(specFiles)
		if err != nil {
			return err
		}
		target, err := s.pushTarget(opts.Mirror)
		if err != nil {
			return err
		}

		key := opts.Key
		if key == "" {
			key = s.cfg.Signing.Key
		}
		for i, spec := range specs {
			err := s.builder.Build(ctx, bindist.BuildRequest{Spec: spec}, target.PushTarget(), bindist.BuildOptions{
				Force:           opts.Force,
				Relative:        opts.Relative,
				Unsigned:        opts.Unsigned,
				AllowRoot:       opts.AllowRoot,
				Key:             key,
				RegenerateIndex: opts.RebuildIndex && i == len(specs)-1,
			})
			if err != nil {
				return err
			}
		}
		a.logger.Info(fmt.Sprintf("created %d archives on %s", len(specs), target.PushTarget()))
		return nil
	})
}

// Index regenerates the package index of a mirror from its spec files.
func (a *App) Index(ctx context.Context, mirror string) error {
	return a.run(ctx, "index", func(ctx context.Context, s *session) error {
		target, err := s.pushTarget(mirror)
		if err != nil {
			return err
		}
		return s.cache.GeneratePackageIndex(ctx, target.PushTarget())
	})
}
