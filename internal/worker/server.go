package worker

import (
	"context"
	"fmt"
	"os"

	"github.com/kart-io/logger"

	"github.com/kart-io/chunkflow/internal/biz"
	"github.com/kart-io/chunkflow/internal/bootstrap"
	"github.com/kart-io/chunkflow/internal/pipeline"
	"github.com/kart-io/chunkflow/internal/store"
	"github.com/kart-io/chunkflow/pkg/infra/app"
	blobopts "github.com/kart-io/chunkflow/pkg/options/blob"
	llmopts "github.com/kart-io/chunkflow/pkg/options/llm"
	logopts "github.com/kart-io/chunkflow/pkg/options/logger"
	pipelineopts "github.com/kart-io/chunkflow/pkg/options/pipeline"
	postgresopts "github.com/kart-io/chunkflow/pkg/options/postgres"
	rabbitmqopts "github.com/kart-io/chunkflow/pkg/options/rabbitmq"
	redisopts "github.com/kart-io/chunkflow/pkg/options/redis"
	tracingopts "github.com/kart-io/chunkflow/pkg/options/tracing"
)

// Name is the name of the application.
const Name = "chunkflow-worker"

// Config contains application-related configurations.
type Config struct {
	PipelineOptions *pipelineopts.Options
	LLMOptions      *llmopts.Options
	LogOptions      *logopts.Options
	TracingOptions  *tracingopts.Options
	PostgresOptions *postgresopts.Options
	RedisOptions    *redisopts.Options
	RabbitMQOptions *rabbitmqopts.Options
	BlobOptions     *blobopts.Options
}

// Server is a worker process: its backends and its consume loops.
type Server struct {
	cfg    *Config
	boot   *bootstrap.Bootstrapper
	worker *Worker
}

// NewServer opens the backends, declares the queue topology and plans the
// consume loops for the configured roles.
func (cfg *Config) NewServer(ctx context.Context) (*Server, error) {
	printBanner(cfg)

	boot := bootstrap.New(&bootstrap.Options{
		AppName:    Name,
		AppVersion: app.GetVersion(),
		Log:        cfg.LogOptions,
		Tracing:    cfg.TracingOptions,
		Postgres:   cfg.PostgresOptions,
		Redis:      cfg.RedisOptions,
		RabbitMQ:   cfg.RabbitMQOptions,
		Blob:       cfg.BlobOptions,
	})
	if err := boot.Initialize(ctx); err != nil {
		return nil, err
	}
	fail := func(err error) (*Server, error) {
		_ = boot.Shutdown(context.WithoutCancel(ctx))
		return nil, err
	}
	ds := boot.Datasources()

	if err := pipeline.DeclareTopology(ctx, ds.Broker); err != nil {
		return fail(fmt.Errorf("failed to declare queues: %w", err))
	}

	factory, err := store.GetFactory(ds.Postgres)
	if err != nil {
		return fail(err)
	}

	deps := &Dependencies{
		Store:       factory,
		Blobs:       ds.Blobs,
		Broker:      ds.Broker,
		Invalidator: biz.NewSearchCacheFromOptions(ds.RedisClient(), cfg.RedisOptions),
		TagPrefix:   consumerTagPrefix(),
	}
	if cfg.PipelineOptions.HasRole(pipelineopts.RoleChunking) {
		keyPrefix := cfg.RedisOptions.KeyPrefix
		if deps.ChunkEmbeddings, err = bootstrap.NewEmbeddingProvider(cfg.LLMOptions.Chunk, cfg.LLMOptions, ds.RedisClient(), keyPrefix); err != nil {
			return fail(err)
		}
		if cfg.LLMOptions.ComponentsEnabled {
			if deps.ComponentEmbeddings, err = bootstrap.NewEmbeddingProvider(cfg.LLMOptions.Component, cfg.LLMOptions, ds.RedisClient(), keyPrefix); err != nil {
				return fail(err)
			}
		}
	}

	w, err := New(cfg.PipelineOptions, cfg.LLMOptions, deps)
	if err != nil {
		return fail(err)
	}

	logger.Infow("Worker is ready", "roles", cfg.PipelineOptions.Roles, "consumers", len(w.Loops()))
	return &Server{cfg: cfg, boot: boot, worker: w}, nil
}

// Run consumes until ctx is cancelled or a consumer fails, then closes
// the backends.
func (s *Server) Run(ctx context.Context) error {
	runErr := s.worker.Run(ctx)
	if runErr != nil {
		logger.Errorw("Worker stopped with error", "error", runErr.Error())
	} else {
		logger.Info("Shutting down worker...")
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cfg.PipelineOptions.ShutdownTimeout)
	defer cancel()
	if err := s.boot.Shutdown(shutdownCtx); err != nil && runErr == nil {
		runErr = err
	}
	return runErr
}

func consumerTagPrefix() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		return "chunkflow"
	}
	return "chunkflow-" + host
}

func printBanner(cfg *Config) {
	fmt.Println("===========================================")
	fmt.Println("  chunkflow ingest worker")
	fmt.Println("===========================================")
	fmt.Printf("Version: %s\n", app.GetVersion())
	fmt.Printf("Roles: %v\n", cfg.PipelineOptions.Roles)
	fmt.Printf("Postgres: %s\n", cfg.PostgresOptions.String())
	fmt.Printf("RabbitMQ: %s:%d\n", cfg.RabbitMQOptions.Host, cfg.RabbitMQOptions.Port)
	if cfg.PipelineOptions.HasRole(pipelineopts.RoleChunking) {
		fmt.Printf("Embeddings: %s/%s\n", cfg.LLMOptions.Chunk.Provider, cfg.LLMOptions.Chunk.Model)
	}
	fmt.Println("-------------------------------------------")
	fmt.Println("Press Ctrl+C to gracefully shutdown")
	fmt.Println()
}
