package bootstrap

import (
	"context"
	"fmt"

	"github.com/kart-io/logger"

	"github.com/kart-io/chunkflow/pkg/infra/tracing"
	tracingopts "github.com/kart-io/chunkflow/pkg/options/tracing"
)

// TracingInitializer installs the OpenTelemetry tracer provider.
type TracingInitializer struct {
	opts     *tracingopts.Options
	provider *tracing.Provider
}

// NewTracingInitializer creates a new TracingInitializer.
func NewTracingInitializer(opts *tracingopts.Options) *TracingInitializer {
	return &TracingInitializer{opts: opts}
}

// Name returns the name of the initializer.
func (ti *TracingInitializer) Name() string {
	return "tracing"
}

// Dependencies returns the names of initializers this one depends on.
func (ti *TracingInitializer) Dependencies() []string {
	return []string{"logging"}
}

// Initialize creates the provider. Disabled tracing installs nothing.
func (ti *TracingInitializer) Initialize(ctx context.Context) error {
	provider, err := tracing.NewProvider(ctx, ti.opts)
	if err != nil {
		return fmt.Errorf("failed to initialize tracing: %w", err)
	}
	ti.provider = provider

	if ti.opts.Enabled {
		logger.Infow("Tracing enabled",
			"exporter", string(ti.opts.ExporterType),
			"endpoint", ti.opts.Endpoint,
			"sampler", string(ti.opts.SamplerType),
		)
	}
	return nil
}

// Shutdown flushes pending spans.
func (ti *TracingInitializer) Shutdown(ctx context.Context) error {
	if ti.provider == nil {
		return nil
	}
	return ti.provider.Shutdown(ctx)
}
