package bootstrap

import (
	"context"
	"fmt"

	"github.com/kart-io/logger"
	utilerrors "k8s.io/apimachinery/pkg/util/errors"

	"github.com/kart-io/chunkflow/pkg/component/postgres"
	"github.com/kart-io/chunkflow/pkg/component/rabbitmq"
	"github.com/kart-io/chunkflow/pkg/component/redis"
	blobopts "github.com/kart-io/chunkflow/pkg/options/blob"
	logopts "github.com/kart-io/chunkflow/pkg/options/logger"
	tracingopts "github.com/kart-io/chunkflow/pkg/options/tracing"
)

// Options selects which subsystems are opened. A nil option skips that
// subsystem.
type Options struct {
	AppName    string
	AppVersion string

	Log      *logopts.Options
	Tracing  *tracingopts.Options
	Postgres *postgres.Options
	Redis    *redis.Options
	RabbitMQ *rabbitmq.Options
	Blob     *blobopts.Options
}

// Bootstrapper runs initializers in dependency order and shuts them down
// in reverse.
type Bootstrapper struct {
	initializers []Initializer
	shutdowners  []Shutdowner
	ds           *Datasources
}

// New builds the initializer set for opts.
func New(opts *Options) *Bootstrapper {
	ds := NewDatasources()
	b := &Bootstrapper{ds: ds}

	if opts.Log != nil {
		b.Add(NewLoggingInitializer(opts.Log, opts.AppName, opts.AppVersion))
	}
	if opts.Tracing != nil {
		opts.Tracing.ServiceName = opts.AppName
		opts.Tracing.ServiceVersion = opts.AppVersion
		b.Add(NewTracingInitializer(opts.Tracing))
	}
	if opts.Postgres != nil {
		b.Add(NewPostgresInitializer(opts.Postgres, ds))
	}
	if opts.Redis != nil {
		b.Add(NewRedisInitializer(opts.Redis, ds))
	}
	if opts.RabbitMQ != nil {
		b.Add(NewRabbitMQInitializer(opts.RabbitMQ, ds))
	}
	if opts.Blob != nil {
		b.Add(NewBlobInitializer(opts.Blob, ds))
	}
	return b
}

// Add registers an extra initializer.
func (b *Bootstrapper) Add(init Initializer) {
	b.initializers = append(b.initializers, init)
}

// Datasources returns the backends opened by Initialize.
func (b *Bootstrapper) Datasources() *Datasources {
	return b.ds
}

// Initialize runs every initializer. On failure the ones that already ran
// are shut down before the error is returned.
func (b *Bootstrapper) Initialize(ctx context.Context) error {
	ordered, err := ResolveDependencies(b.initializers)
	if err != nil {
		return err
	}

	for _, init := range ordered {
		logger.Infof("Initializing %s...", init.Name())
		if err := init.Initialize(ctx); err != nil {
			_ = b.Shutdown(context.WithoutCancel(ctx))
			return fmt.Errorf("failed to initialize %s: %w", init.Name(), err)
		}
		if s, ok := init.(Shutdowner); ok {
			b.shutdowners = append(b.shutdowners, s)
		}
	}
	return nil
}

// Shutdown closes the datasources, then the remaining subsystems in
// reverse order of initialization.
func (b *Bootstrapper) Shutdown(ctx context.Context) error {
	errs := []error{}
	if err := b.ds.Shutdown(ctx); err != nil {
		errs = append(errs, err)
	}
	for i := len(b.shutdowners) - 1; i >= 0; i-- {
		if err := b.shutdowners[i].Shutdown(ctx); err != nil {
			logger.Errorw("Error during shutdown", "error", err.Error())
			errs = append(errs, err)
		}
	}
	b.shutdowners = nil
	return utilerrors.NewAggregate(errs)
}
