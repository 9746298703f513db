// Package app implements the application layer for bincache.
package app

import (
	"context"
	"os"
	"path/filepath"

	"go.trai.ch/bincache/internal/adapters/cas"     //nolint:depguard // Wired in app layer
	"go.trai.ch/bincache/internal/adapters/signing" //nolint:depguard // Wired in app layer
	"go.trai.ch/bincache/internal/core/domain"
	"go.trai.ch/bincache/internal/core/ports"
	"go.trai.ch/bincache/internal/engine/bindist"
	"go.trai.ch/bincache/internal/engine/index"
	"go.trai.ch/bincache/internal/engine/relocate"
	"go.trai.ch/bincache/internal/engine/resolve"
	"go.trai.ch/zerr"
)

// App represents the main application logic.
type App struct {
	configLoader ports.ConfigLoader
	logger       ports.Logger
	tracer       ports.Tracer
	storage      ports.MirrorStorage
	archiver     ports.Archiver
	hasher       ports.Hasher
	walker       ports.Walker
	dbs          ports.SpecDBFactory

	configPath string
}

// New creates a new App instance.
func New(
	loader ports.ConfigLoader,
	log ports.Logger,
	tracer ports.Tracer,
	storage ports.MirrorStorage,
	archiver ports.Archiver,
	hasher ports.Hasher,
	walker ports.Walker,
	dbs ports.SpecDBFactory,
) *App {
	return &App{
		configLoader: loader,
		logger:       log,
		tracer:       tracer,
		storage:      storage,
		archiver:     archiver,
		hasher:       hasher,
		walker:       walker,
		dbs:          dbs,
	}
}

// WithConfigPath sets an explicit configuration file.
func (a *App) WithConfigPath(path string) *App {
	a.configPath = path
	return a
}

// Settings are the global command line settings.
type Settings struct {
	ConfigPath string
	Verbose    bool
	JSON       bool
}

// Configure applies settings. An empty config path keeps the current one.
// Logging options take effect when the logger supports them.
func (a *App) Configure(s Settings) {
	if s.ConfigPath != "" {
		a.configPath = s.ConfigPath
	}
	if l, ok := a.logger.(interface{ SetVerbose(bool) }); ok {
		l.SetVerbose(s.Verbose)
	}
	if l, ok := a.logger.(interface{ SetJSON(bool) }); ok {
		l.SetJSON(s.JSON)
	}
}

// session holds the per-operation engines built from the configuration.
type session struct {
	cfg       *domain.Config
	cache     *index.Cache
	resolver  *resolve.Resolver
	builder   *bindist.Builder
	installer *bindist.Installer
	signer    ports.Signer
	stageDir  string
}

func (a *App) open() (*session, error) {
	cfg, err := a.configLoader.Load(a.configPath)
	if err != nil {
		return nil, zerr.Wrap(err, "failed to load configuration")
	}

	stage := filepath.Join(cfg.CacheRoot, domain.StageDirName)
	if err := os.MkdirAll(stage, domain.DirPerm); err != nil {
		return nil, zerr.With(zerr.Wrap(err, domain.ErrStoreWriteFailed.Error()), "path", stage)
	}

	signer := signing.NewKeyring(cfg.Signing.PublicKeyring, cfg.Signing.SecretKeyring)

	store := cas.NewStore(filepath.Join(cfg.CacheRoot, domain.IndicesDirName))
	cache := index.NewCache(store, a.storage, a.hasher, a.dbs, a.logger)
	if err := cache.Open(); err != nil {
		return nil, err
	}

	deps := bindist.Deps{
		Layout:     cfg.Layout(),
		ToolRoot:   cfg.ToolRoot,
		Storage:    a.storage,
		Archiver:   a.archiver,
		Hasher:     a.hasher,
		Walker:     a.walker,
		Relocator:  relocate.NewEngine(a.logger),
		Logger:     a.logger,
		Signer:     signer,
		ScratchDir: stage,
	}

	return &session{
		cfg:       cfg,
		cache:     cache,
		resolver:  resolve.NewResolver(cache, a.storage, a.logger, cfg.MirrorURLs()),
		builder:   bindist.NewBuilder(deps, cache),
		installer: bindist.NewInstaller(deps),
		signer:    signer,
		stageDir:  stage,
	}, nil
}

func (s *session) Close() error {
	return s.cache.Close()
}

// run opens a session and executes fn inside a span named op.
func (a *App) run(ctx context.Context, op string, fn func(ctx context.Context, s *session) error) (err error) {
	ctx, span := a.tracer.Start(ctx, op)
	defer func() {
		if err != nil {
			span.RecordError(err)
		}
		span.End()
	}()

	s, err := a.open()
	if err != nil {
		return err
	}
	defer func() {
		if cerr := s.Close(); err == nil {
			err = cerr
		}
	}()

	return fn(ctx, s)
}

// pushTarget resolves the mirror archives are published to. An empty name
// selects the first configured mirror.
func (s *session) pushTarget(name string) (domain.Mirror, error) {
	if name != "" {
		return s.cfg.FindMirror(name), nil
	}
	if len(s.cfg.Mirrors) == 0 {
		return domain.Mirror{}, zerr.Wrap(domain.ErrNoMirrors, "pass --mirror or configure one")
	}
	return s.cfg.Mirrors[0], nil
}

// fetchMirrors resolves mirror names or URLs. None selects every configured mirror.
func (s *session) fetchMirrors(names []string) ([]domain.Mirror, error) {
	if len(names) == 0 {
		if len(s.cfg.Mirrors) == 0 {
			return nil, zerr.Wrap(domain.ErrNoMirrors, "pass --mirror or configure one")
		}
		return s.cfg.Mirrors, nil
	}
	out := make([]domain.Mirror, 0, len(names))
	for _, n := range names {
		out = append(out, s.cfg.FindMirror(n))
	}
	return out, nil
}

// readSpec loads the root spec of a spec document on disk.
func readSpec(path string) (*domain.Spec, error) {
	//nolint:gosec // Spec files are passed by the user
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, zerr.With(zerr.Wrap(err, domain.ErrFileOpenFailed.Error()), "path", path)
	}
	doc, err := domain.ParseSpecDocument(data)
	if err != nil {
		return nil, zerr.With(err, "path", path)
	}
	s, err := doc.Root()
	if err != nil {
		return nil, zerr.With(err, "path", path)
	}
	return s, nil
}

func readSpecs(paths []string) ([]*domain.Spec, error) {
	specs := make([]*domain.Spec, 0, len(paths))
	for _, p := range paths {
		s, err := readSpec(p)
		if err != nil {
			return nil, err
		}
		specs = append(specs, s)
	}
	return specs, nil
}
