// Package options contains flags and options for initializing the ingest worker.
package options

import (
	"fmt"

	utilerrors "k8s.io/apimachinery/pkg/util/errors"

	"github.com/kart-io/chunkflow/internal/worker"
	cliflag "github.com/kart-io/chunkflow/pkg/infra/app/cliflag"
	blobopts "github.com/kart-io/chunkflow/pkg/options/blob"
	llmopts "github.com/kart-io/chunkflow/pkg/options/llm"
	logopts "github.com/kart-io/chunkflow/pkg/options/logger"
	pipelineopts "github.com/kart-io/chunkflow/pkg/options/pipeline"
	postgresopts "github.com/kart-io/chunkflow/pkg/options/postgres"
	rabbitmqopts "github.com/kart-io/chunkflow/pkg/options/rabbitmq"
	redisopts "github.com/kart-io/chunkflow/pkg/options/redis"
	tracingopts "github.com/kart-io/chunkflow/pkg/options/tracing"
)

// WorkerOptions contains the configuration options for the worker.
type WorkerOptions struct {
	// PipelineOptions selects roles and sizes the consumers.
	PipelineOptions *pipelineopts.Options `json:"pipeline" mapstructure:"pipeline"`

	// LLMOptions configures the embedding providers.
	LLMOptions *llmopts.Options `json:"llm" mapstructure:"llm"`

	// LogOptions contains logger configuration.
	LogOptions *logopts.Options `json:"log" mapstructure:"log"`

	// TracingOptions contains OpenTelemetry configuration.
	TracingOptions *tracingopts.Options `json:"tracing" mapstructure:"tracing"`

	// PostgresOptions contains the chunk store connection.
	PostgresOptions *postgresopts.Options `json:"postgres" mapstructure:"postgres"`

	// RedisOptions contains the embedding and search cache connection.
	RedisOptions *redisopts.Options `json:"redis" mapstructure:"redis"`

	// RabbitMQOptions contains the broker connection.
	RabbitMQOptions *rabbitmqopts.Options `json:"rabbitmq" mapstructure:"rabbitmq"`

	// BlobOptions contains the object storage backend.
	BlobOptions *blobopts.Options `json:"blob" mapstructure:"blob"`
}

// NewWorkerOptions creates a WorkerOptions instance with default values.
func NewWorkerOptions() *WorkerOptions {
	return &WorkerOptions{
		PipelineOptions: pipelineopts.NewOptions(),
		LLMOptions:      llmopts.NewOptions(),
		LogOptions:      logopts.NewOptions(),
		TracingOptions:  tracingopts.NewOptions(),
		PostgresOptions: postgresopts.NewOptions(),
		RedisOptions:    redisopts.NewOptions(),
		RabbitMQOptions: rabbitmqopts.NewOptions(),
		BlobOptions:     blobopts.NewOptions(),
	}
}

// Flags returns flags for the worker by section name.
func (o *WorkerOptions) Flags() (fss cliflag.NamedFlagSets) {
	o.PipelineOptions.AddFlags(fss.FlagSet("pipeline"))
	o.LLMOptions.AddFlags(fss.FlagSet("llm"))
	o.LogOptions.AddFlags(fss.FlagSet("log"))
	o.TracingOptions.AddFlags(fss.FlagSet("tracing"))
	o.PostgresOptions.AddFlags(fss.FlagSet("postgres"))
	o.RedisOptions.AddFlags(fss.FlagSet("redis"))
	o.RabbitMQOptions.AddFlags(fss.FlagSet("rabbitmq"))
	o.BlobOptions.AddFlags(fss.FlagSet("blob"))
	return fss
}

// Complete completes all the required options.
func (o *WorkerOptions) Complete() error {
	completers := []struct {
		name string
		fn   func() error
	}{
		{"pipeline", o.PipelineOptions.Complete},
		{"llm", o.LLMOptions.Complete},
		{"log", o.LogOptions.Complete},
		{"tracing", o.TracingOptions.Complete},
		{"postgres", o.PostgresOptions.Complete},
		{"redis", o.RedisOptions.Complete},
		{"rabbitmq", o.RabbitMQOptions.Complete},
		{"blob", o.BlobOptions.Complete},
	}
	for _, c := range completers {
		if err := c.fn(); err != nil {
			return fmt.Errorf("%s: %w", c.name, err)
		}
	}
	return nil
}

// Validate checks whether the options in WorkerOptions are valid. Embedding
// providers are only checked when the chunking role runs.
func (o *WorkerOptions) Validate() error {
	errs := []error{
		o.PipelineOptions.Validate(),
		o.LogOptions.Validate(),
		o.TracingOptions.Validate(),
		o.PostgresOptions.Validate(),
		o.RedisOptions.Validate(),
		o.RabbitMQOptions.Validate(),
		o.BlobOptions.Validate(),
	}
	if o.PipelineOptions.HasRole(pipelineopts.RoleChunking) {
		errs = append(errs, o.LLMOptions.Validate())
	}
	return utilerrors.NewAggregate(errs)
}

// Config builds a worker.Config based on WorkerOptions.
func (o *WorkerOptions) Config() (*worker.Config, error) {
	return &worker.Config{
		PipelineOptions: o.PipelineOptions,
		LLMOptions:      o.LLMOptions,
		LogOptions:      o.LogOptions,
		TracingOptions:  o.TracingOptions,
		PostgresOptions: o.PostgresOptions,
		RedisOptions:    o.RedisOptions,
		RabbitMQOptions: o.RabbitMQOptions,
		BlobOptions:     o.BlobOptions,
	}, nil
}
