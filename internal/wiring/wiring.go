// Package wiring registers all Graft nodes for the application.
package wiring

import (
	// Register adapter nodes.
	_ "go.trai.ch/bincache/internal/adapters/config"
	_ "go.trai.ch/bincache/internal/adapters/fs"
	_ "go.trai.ch/bincache/internal/adapters/logger"
	_ "go.trai.ch/bincache/internal/adapters/mirror"
	_ "go.trai.ch/bincache/internal/adapters/specdb"
	_ "go.trai.ch/bincache/internal/adapters/tarball"
	_ "go.trai.ch/bincache/internal/adapters/telemetry"
	// Register app nodes.
	_ "go.trai.ch/bincache/internal/app"
)
