package app

import (
	"context"

	"github.com/grindlemire/graft"
	"go.trai.ch/bincache/internal/adapters/config"    //nolint:depguard // Wired in app layer
	"go.trai.ch/bincache/internal/adapters/fs"        //nolint:depguard // Wired in app layer
	"go.trai.ch/bincache/internal/adapters/logger"    //nolint:depguard // Wired in app layer
	"go.trai.ch/bincache/internal/adapters/mirror"    //nolint:depguard // Wired in app layer
	"go.trai.ch/bincache/internal/adapters/specdb"    //nolint:depguard // Wired in app layer
	"go.trai.ch/bincache/internal/adapters/tarball"   //nolint:depguard // Wired in app layer
	"go.trai.ch/bincache/internal/adapters/telemetry" //nolint:depguard // Wired in app layer
	"go.trai.ch/bincache/internal/core/ports"
)

const (
	// AppNodeID is the unique identifier for the main App Graft node.
	AppNodeID graft.ID = "app.main"
	// ComponentsNodeID is the unique identifier for the App components Graft node.
	ComponentsNodeID graft.ID = "app.components"
)

// Components contains all the initialized application components.
type Components struct {
	App    *App
	Logger ports.Logger
	Tracer ports.Tracer
}

func init() {
	graft.Register(graft.Node[*App]{
		ID:        AppNodeID,
		Cacheable: true,
		DependsOn: []graft.ID{
			config.NodeID,
			logger.NodeID,
			telemetry.TracerNodeID,
			mirror.NodeID,
			tarball.NodeID,
			fs.HasherNodeID,
			fs.WalkerNodeID,
			specdb.NodeID,
		},
		Run: runAppNode,
	})

	graft.Register(graft.Node[*Components]{
		ID:        ComponentsNodeID,
		Cacheable: true,
		DependsOn: []graft.ID{
			AppNodeID,
			logger.NodeID,
			telemetry.TracerNodeID,
		},
		Run: func(ctx context.Context) (*Components, error) {
			a, err := graft.Dep[*App](ctx)
			if err != nil {
				return nil, err
			}
			log, err := graft.Dep[ports.Logger](ctx)
			if err != nil {
				return nil, err
			}
			tracer, err := graft.Dep[ports.Tracer](ctx)
			if err != nil {
				return nil, err
			}
			return &Components{App: a, Logger: log, Tracer: tracer}, nil
		},
	})
}

func runAppNode(ctx context.Context) (*App, error) {
	loader, err := graft.Dep[ports.ConfigLoader](ctx)
	if err != nil {
		return nil, err
	}
	log, err := graft.Dep[ports.Logger](ctx)
	if err != nil {
		return nil, err
	}
	tracer, err := graft.Dep[ports.Tracer](ctx)
	if err != nil {
		return nil, err
	}
	storage, err := graft.Dep[ports.MirrorStorage](ctx)
	if err != nil {
		return nil, err
	}
	archiver, err := graft.Dep[ports.Archiver](ctx)
	if err != nil {
		return nil, err
	}
	hasher, err := graft.Dep[ports.Hasher](ctx)
	if err != nil {
		return nil, err
	}
	walker, err := graft.Dep[ports.Walker](ctx)
	if err != nil {
		return nil, err
	}
	dbs, err := graft.Dep[ports.SpecDBFactory](ctx)
	if err != nil {
		return nil, err
	}
	return New(loader, log, tracer, storage, archiver, hasher, walker, dbs), nil
}
