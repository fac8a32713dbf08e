// Package apiserver provides the ingest API server: uploads, documents,
// chunks, tags and components over HTTP.
package apiserver

import (
	"context"
	stderrors "errors"
	"fmt"
	"net"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/kart-io/logger"

	"github.com/kart-io/chunkflow/internal/apiserver/handler"
	"github.com/kart-io/chunkflow/internal/apiserver/router"
	"github.com/kart-io/chunkflow/internal/biz"
	"github.com/kart-io/chunkflow/internal/bootstrap"
	"github.com/kart-io/chunkflow/internal/pipeline"
	"github.com/kart-io/chunkflow/internal/store"
	"github.com/kart-io/chunkflow/pkg/blob"
	"github.com/kart-io/chunkflow/pkg/component/rabbitmq"
	"github.com/kart-io/chunkflow/pkg/infra/app"
	"github.com/kart-io/chunkflow/pkg/llm"
	blobopts "github.com/kart-io/chunkflow/pkg/options/blob"
	llmopts "github.com/kart-io/chunkflow/pkg/options/llm"
	logopts "github.com/kart-io/chunkflow/pkg/options/logger"
	postgresopts "github.com/kart-io/chunkflow/pkg/options/postgres"
	rabbitmqopts "github.com/kart-io/chunkflow/pkg/options/rabbitmq"
	redisopts "github.com/kart-io/chunkflow/pkg/options/redis"
	httpopts "github.com/kart-io/chunkflow/pkg/options/server/http"
	tracingopts "github.com/kart-io/chunkflow/pkg/options/tracing"
)

// Name is the name of the application.
const Name = "chunkflow-api"

// Config contains application-related configurations.
type Config struct {
	HTTPOptions     *httpopts.Options
	LogOptions      *logopts.Options
	TracingOptions  *tracingopts.Options
	PostgresOptions *postgresopts.Options
	RedisOptions    *redisopts.Options
	RabbitMQOptions *rabbitmqopts.Options
	BlobOptions     *blobopts.Options
	LLMOptions      *llmopts.Options
}

// Dependencies are the collaborators the HTTP layer is built on.
type Dependencies struct {
	Store   store.Factory
	Blobs   blob.Store
	Broker  rabbitmq.Broker
	Cache   *biz.SearchCache
	Health  handler.HealthChecker
	Limits  router.Limits
	GinMode string

	// Embedder serves POST /chunks/search/query. Nil answers it with
	// ErrServiceUnavailable.
	Embedder llm.EmbeddingProvider
}

// NewEngine builds the services, handlers and routes over deps.
func NewEngine(deps *Dependencies) *gin.Engine {
	if deps.GinMode != "" {
		gin.SetMode(deps.GinMode)
	}
	chunks := biz.NewChunkService(deps.Store, deps.Cache).WithEmbedder(deps.Embedder)
	tags := biz.NewTagService(deps.Store, deps.Cache)
	components := biz.NewComponentService(deps.Store, deps.Cache)
	documents := biz.NewDocumentService(deps.Store, deps.Blobs, deps.Broker, deps.Cache, deps.Limits.Upload)

	return router.New(&router.Handlers{
		Chunk:     handler.NewChunkHandler(chunks),
		Tag:       handler.NewTagHandler(tags),
		Component: handler.NewComponentHandler(components),
		Document:  handler.NewDocumentHandler(documents),
		Health:    handler.NewHealthHandler(deps.Health),
	}, deps.Limits)
}

// Server represents the API server.
type Server struct {
	cfg  *Config
	boot *bootstrap.Bootstrapper
	srv  *http.Server
}

// NewServer opens the backends, declares the queue topology and builds the
// HTTP server.
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
	ds := boot.Datasources()

	if err := pipeline.DeclareTopology(ctx, ds.Broker); err != nil {
		_ = boot.Shutdown(context.WithoutCancel(ctx))
		return nil, fmt.Errorf("failed to declare queues: %w", err)
	}

	factory, err := store.GetFactory(ds.Postgres)
	if err != nil {
		_ = boot.Shutdown(context.WithoutCancel(ctx))
		return nil, err
	}

	embedder, err := bootstrap.NewEmbeddingProvider(cfg.LLMOptions.Chunk, cfg.LLMOptions, ds.RedisClient(), cfg.RedisOptions.KeyPrefix)
	if err != nil {
		_ = boot.Shutdown(context.WithoutCancel(ctx))
		return nil, err
	}

	engine := NewEngine(&Dependencies{
		Store:    factory,
		Blobs:    ds.Blobs,
		Broker:   ds.Broker,
		Cache:    biz.NewSearchCacheFromOptions(ds.RedisClient(), cfg.RedisOptions),
		Embedder: embedder,
		Health:   ds.Manager,
		Limits: router.Limits{
			Body:   cfg.HTTPOptions.BodyLimit,
			Upload: cfg.HTTPOptions.MaxUploadSize,
		},
		GinMode: cfg.HTTPOptions.Mode,
	})

	logger.Info("API service is ready")
	return &Server{
		cfg:  cfg,
		boot: boot,
		srv: &http.Server{
			Addr:         cfg.HTTPOptions.Addr,
			Handler:      engine,
			ReadTimeout:  cfg.HTTPOptions.ReadTimeout,
			WriteTimeout: cfg.HTTPOptions.WriteTimeout,
			IdleTimeout:  cfg.HTTPOptions.IdleTimeout,
			BaseContext:  func(net.Listener) context.Context { return ctx },
		},
	}, nil
}

// Run serves until ctx is cancelled, then drains in-flight requests and
// closes the backends.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		logger.Infow("HTTP server listening", "addr", s.srv.Addr)
		if err := s.srv.ListenAndServe(); err != nil && !stderrors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	var serveErr error
	select {
	case <-ctx.Done():
		logger.Info("Shutting down HTTP server...")
	case serveErr = <-errCh:
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cfg.HTTPOptions.ShutdownTimeout)
	defer cancel()
	if err := s.srv.Shutdown(shutdownCtx); err != nil {
		logger.Errorw("HTTP server shutdown failed", "error", err.Error())
	}
	if err := s.boot.Shutdown(shutdownCtx); err != nil && serveErr == nil {
		serveErr = err
	}
	return serveErr
}

func printBanner(cfg *Config) {
	fmt.Println("===========================================")
	fmt.Println("  chunkflow ingest API")
	fmt.Println("===========================================")
	fmt.Printf("Version: %s\n", app.GetVersion())
	fmt.Printf("HTTP: %s (max upload %d bytes)\n", cfg.HTTPOptions.Addr, cfg.HTTPOptions.MaxUploadSize)
	fmt.Printf("Postgres: %s\n", cfg.PostgresOptions.String())
	fmt.Printf("Blob: %s (bucket=%s)\n", cfg.BlobOptions.Backend, cfg.BlobOptions.Bucket)
	fmt.Printf("Query embedder: %s/%s\n", cfg.LLMOptions.Chunk.Provider, cfg.LLMOptions.Chunk.Model)
	if cfg.RedisOptions.Enabled {
		fmt.Printf("Search cache: %s (ttl=%s)\n", cfg.RedisOptions.Addr(), cfg.RedisOptions.CacheTTL)
	}
	fmt.Println("-------------------------------------------")
	fmt.Println("Press Ctrl+C to gracefully shutdown")
	fmt.Println()
}
