// Package options contains flags and options for initializing the ingest API.
package options

import (
	"fmt"

	utilerrors "k8s.io/apimachinery/pkg/util/errors"

	"github.com/kart-io/chunkflow/internal/apiserver"
	cliflag "github.com/kart-io/chunkflow/pkg/infra/app/cliflag"
	blobopts "github.com/kart-io/chunkflow/pkg/options/blob"
	llmopts "github.com/kart-io/chunkflow/pkg/options/llm"
	logopts "github.com/kart-io/chunkflow/pkg/options/logger"
	postgresopts "github.com/kart-io/chunkflow/pkg/options/postgres"
	rabbitmqopts "github.com/kart-io/chunkflow/pkg/options/rabbitmq"
	redisopts "github.com/kart-io/chunkflow/pkg/options/redis"
	httpopts "github.com/kart-io/chunkflow/pkg/options/server/http"
	tracingopts "github.com/kart-io/chunkflow/pkg/options/tracing"
)

// ServerOptions contains the configuration options for the server.
type ServerOptions struct {
	// HTTPOptions contains HTTP server configuration.
	HTTPOptions *httpopts.Options `json:"http" mapstructure:"http"`

	// LogOptions contains logger configuration.
	LogOptions *logopts.Options `json:"log" mapstructure:"log"`

	// TracingOptions contains OpenTelemetry configuration.
	TracingOptions *tracingopts.Options `json:"tracing" mapstructure:"tracing"`

	// PostgresOptions contains the chunk store connection.
	PostgresOptions *postgresopts.Options `json:"postgres" mapstructure:"postgres"`

	// RedisOptions contains the search cache connection.
	RedisOptions *redisopts.Options `json:"redis" mapstructure:"redis"`

	// RabbitMQOptions contains the broker connection.
	RabbitMQOptions *rabbitmqopts.Options `json:"rabbitmq" mapstructure:"rabbitmq"`

	// BlobOptions contains the object storage backend.
	BlobOptions *blobopts.Options `json:"blob" mapstructure:"blob"`

	// LLMOptions configures the query embedder. Only the chunk provider is
	// used; queries must land in the chunk embedding space.
	LLMOptions *llmopts.Options `json:"llm" mapstructure:"llm"`
}

// NewServerOptions creates a ServerOptions instance with default values.
func NewServerOptions() *ServerOptions {
	return &ServerOptions{
		HTTPOptions:     httpopts.NewOptions(),
		LogOptions:      logopts.NewOptions(),
		TracingOptions:  tracingopts.NewOptions(),
		PostgresOptions: postgresopts.NewOptions(),
		RedisOptions:    redisopts.NewOptions(),
		RabbitMQOptions: rabbitmqopts.NewOptions(),
		BlobOptions:     blobopts.NewOptions(),
		LLMOptions:      llmopts.NewOptions(),
	}
}

// Flags returns flags for a specific server by section name.
func (o *ServerOptions) Flags() (fss cliflag.NamedFlagSets) {
	o.HTTPOptions.AddFlags(fss.FlagSet("http"))
	o.LogOptions.AddFlags(fss.FlagSet("log"))
	o.TracingOptions.AddFlags(fss.FlagSet("tracing"))
	o.PostgresOptions.AddFlags(fss.FlagSet("postgres"))
	o.RedisOptions.AddFlags(fss.FlagSet("redis"))
	o.RabbitMQOptions.AddFlags(fss.FlagSet("rabbitmq"))
	o.BlobOptions.AddFlags(fss.FlagSet("blob"))
	o.LLMOptions.AddFlags(fss.FlagSet("llm"))
	return fss
}

// Complete completes all the required options.
func (o *ServerOptions) Complete() error {
	completers := []struct {
		name string
		fn   func() error
	}{
		{"http", o.HTTPOptions.Complete},
		{"log", o.LogOptions.Complete},
		{"tracing", o.TracingOptions.Complete},
		{"postgres", o.PostgresOptions.Complete},
		{"redis", o.RedisOptions.Complete},
		{"rabbitmq", o.RabbitMQOptions.Complete},
		{"blob", o.BlobOptions.Complete},
		{"llm", o.LLMOptions.Complete},
	}
	for _, c := range completers {
		if err := c.fn(); err != nil {
			return fmt.Errorf("%s: %w", c.name, err)
		}
	}
	return nil
}

// Validate checks whether the options in ServerOptions are valid.
func (o *ServerOptions) Validate() error {
	return utilerrors.NewAggregate([]error{
		o.HTTPOptions.Validate(),
		o.LogOptions.Validate(),
		o.TracingOptions.Validate(),
		o.PostgresOptions.Validate(),
		o.RedisOptions.Validate(),
		o.RabbitMQOptions.Validate(),
		o.BlobOptions.Validate(),
		o.LLMOptions.Validate(),
	})
}

// Config builds an apiserver.Config based on ServerOptions.
func (o *ServerOptions) Config() (*apiserver.Config, error) {
	return &apiserver.Config{
		HTTPOptions:     o.HTTPOptions,
		LogOptions:      o.LogOptions,
		TracingOptions:  o.TracingOptions,
		PostgresOptions: o.PostgresOptions,
		RedisOptions:    o.RedisOptions,
		RabbitMQOptions: o.RabbitMQOptions,
		BlobOptions:     o.BlobOptions,
		LLMOptions:      o.LLMOptions,
	}, nil
}
