// Package app provides the ingest API application.
package app

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/kart-io/chunkflow/cmd/ingest-api/app/options"
	"github.com/kart-io/chunkflow/internal/apiserver"
	"github.com/kart-io/chunkflow/pkg/infra/app"
)

// commandDesc is the description of the command.
const commandDesc = `chunkflow ingest API

The HTTP entry point of the document ingestion pipeline.

This server provides:
  - Document upload into object storage and the file-process queue
  - Chunk, tag and chunk component CRUD
  - Similarity search over chunk and component embeddings
  - Liveness and readiness probes`

// NewApp creates and returns a new App object with default parameters.
func NewApp() *app.App {
	opts := options.NewServerOptions()
	return app.NewApp(
		app.WithName(apiserver.Name),
		app.WithDescription(commandDesc),
		app.WithOptions(opts),
		app.WithEnvPrefix("chunkflow"),
		app.WithRunFunc(run(opts)),
	)
}

func run(opts *options.ServerOptions) app.RunFunc {
	return func() error {
		cfg, err := opts.Config()
		if err != nil {
			return fmt.Errorf("failed to load configuration: %w", err)
		}

		ctx := setupSignalContext()

		server, err := cfg.NewServer(ctx)
		if err != nil {
			return fmt.Errorf("failed to create server: %w", err)
		}
		return server.Run(ctx)
	}
}

// setupSignalContext returns a context that is cancelled on SIGINT or
// SIGTERM. A second signal exits immediately.
func setupSignalContext() context.Context {
	ctx, cancel := context.WithCancel(context.Background())
	c := make(chan os.Signal, 2)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-c
		cancel()
		<-c
		os.Exit(1)
	}()
	return ctx
}
