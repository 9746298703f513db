// Package main is the entry point for bincache.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/grindlemire/graft"
	"go.trai.ch/bincache/cmd/bincache/commands"
	"go.trai.ch/bincache/internal/app"
	"go.trai.ch/bincache/internal/core/domain"
	_ "go.trai.ch/bincache/internal/wiring"
)

// Exit codes.
const (
	exitOK = iota
	exitFailure
	exitRebuildRequired
	exitChecksum
	exitSignature
	exitNetwork
)

// ComponentProvider is a function that returns the application components.
type ComponentProvider func(context.Context) (*app.Components, func(), error)

func main() {
	os.Exit(run(context.Background(), os.Args[1:], os.Stderr, func(ctx context.Context) (*app.Components, func(), error) {
		c, _, err := graft.ExecuteFor[*app.Components](ctx)
		if err != nil {
			return nil, nil, err
		}
		return c, func() { _ = c.Tracer.Shutdown(context.Background()) }, nil
	}))
}

func run(
	ctx context.Context,
	args []string,
	stderr io.Writer,
	provider ComponentProvider,
	opts ...func(*app.App),
) int {
	ctx, cancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	components, cleanup, err := provider(ctx)
	if err != nil {
		// The logger is not available when initialization fails.
		_, _ = fmt.Fprintln(stderr, "Error: "+err.Error())
		return exitFailure
	}
	defer cleanup()

	for _, opt := range opts {
		opt(components.App)
	}

	cli := commands.New(components.App)
	cli.SetArgs(args)
	cli.SetOutput(os.Stdout, stderr)

	if err := cli.Execute(ctx); err != nil {
		code := exitCode(err)
		if code != exitRebuildRequired {
			components.Logger.Error(err)
		}
		return code
	}
	return exitOK
}

func exitCode(err error) int {
	switch {
	case errors.Is(err, domain.ErrRebuildRequired):
		return exitRebuildRequired
	case errors.Is(err, domain.ErrChecksumMismatch):
		return exitChecksum
	case errors.Is(err, domain.ErrSignatureInvalid), errors.Is(err, domain.ErrSignatureMissing):
		return exitSignature
	case errors.Is(err, domain.ErrMirrorUnreachable), errors.Is(err, domain.ErrIndexTransmissionError):
		return exitNetwork
	default:
		return exitFailure
	}
}
