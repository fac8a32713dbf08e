// Package app provides the ingest worker application.
package app

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/kart-io/chunkflow/cmd/ingest-worker/app/options"
	"github.com/kart-io/chunkflow/internal/worker"
	"github.com/kart-io/chunkflow/pkg/infra/app"
)

const commandDesc = `chunkflow ingest worker

Consumes the document pipeline queues.

Roles (--pipeline.roles):
  router       routes uploads from file_process to a parser queue
  pdf-parser   extracts markdown from PDFs
  docx-parser  extracts markdown from Word documents
  xlsx-parser  sends spreadsheets to the external parser
  chunking     splits markdown, embeds chunks and stores them`

// NewApp creates and returns a new App object with default parameters.
func NewApp() *app.App {
	opts := options.NewWorkerOptions()
	return app.NewApp(
		app.WithName(worker.Name),
		app.WithDescription(commandDesc),
		app.WithOptions(opts),
		app.WithEnvPrefix("chunkflow"),
		app.WithRunFunc(run(opts)),
	)
}

func run(opts *options.WorkerOptions) app.RunFunc {
	return func() error {
		cfg, err := opts.Config()
		if err != nil {
			return fmt.Errorf("failed to load configuration: %w", err)
		}

		ctx := setupSignalContext()

		server, err := cfg.NewServer(ctx)
		if err != nil {
			return fmt.Errorf("failed to create worker: %w", err)
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
