package bootstrap

import (
	"context"
	"fmt"

	"github.com/kart-io/logger"

	logopts "github.com/kart-io/chunkflow/pkg/options/logger"
)

// LoggingInitializer configures the global logger.
type LoggingInitializer struct {
	opts       *logopts.Options
	appName    string
	appVersion string
}

// NewLoggingInitializer creates a new LoggingInitializer.
func NewLoggingInitializer(opts *logopts.Options, appName, appVersion string) *LoggingInitializer {
	return &LoggingInitializer{
		opts:       opts,
		appName:    appName,
		appVersion: appVersion,
	}
}

// Name returns the name of the initializer.
func (li *LoggingInitializer) Name() string {
	return "logging"
}

// Dependencies returns nil: logging runs first.
func (li *LoggingInitializer) Dependencies() []string {
	return nil
}

// Initialize initializes the logging system.
func (li *LoggingInitializer) Initialize(context.Context) error {
	if err := li.opts.WithService(li.appName, li.appVersion).Complete(); err != nil {
		return err
	}
	if err := li.opts.Init(); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}

	logger.Infow("Starting chunkflow service",
		"app", li.appName,
		"version", li.appVersion,
	)
	return nil
}

// Shutdown flushes buffered log entries.
func (li *LoggingInitializer) Shutdown(context.Context) error {
	_ = logger.Flush()
	return nil
}
