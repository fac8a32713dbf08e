// Package worker runs the pipeline roles of an ingest worker process: the
// file-process router, the parser consumers and the chunking consumer.
//
// Every consume loop runs as a long-lived task on an ants consumer pool.
// An errgroup ties the loops together so that a broker that gives up
// reconnecting stops the whole process.
package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/kart-io/logger"
	"golang.org/x/sync/errgroup"

	"github.com/kart-io/chunkflow/internal/model"
	"github.com/kart-io/chunkflow/internal/pipeline"
	"github.com/kart-io/chunkflow/internal/pipeline/chunking"
	"github.com/kart-io/chunkflow/internal/pipeline/filetype"
	"github.com/kart-io/chunkflow/internal/pipeline/gateway"
	"github.com/kart-io/chunkflow/internal/pipeline/parser"
	"github.com/kart-io/chunkflow/internal/store"
	"github.com/kart-io/chunkflow/pkg/blob"
	"github.com/kart-io/chunkflow/pkg/component/rabbitmq"
	"github.com/kart-io/chunkflow/pkg/infra/pool"
	"github.com/kart-io/chunkflow/pkg/llm"
	llmopts "github.com/kart-io/chunkflow/pkg/options/llm"
	pipelineopts "github.com/kart-io/chunkflow/pkg/options/pipeline"
)

// Pool names registered on the worker's pool manager.
const (
	consumerPoolName  = "consumers"
	embeddingPoolName = "embeddings"
)

// Runner is a consume loop bound to one queue. Run blocks until ctx is
// done, returning nil, or until the broker gives up.
type Runner interface {
	Run(ctx context.Context, consumerTag string) error
}

// Loop is one consumer instance of a role.
type Loop struct {
	Role   string
	Queue  string
	Tag    string
	Runner Runner
}

// Dependencies are the collaborators the consumers are built on.
type Dependencies struct {
	Store  store.Factory
	Blobs  blob.Store
	Broker rabbitmq.Broker

	// ChunkEmbeddings is required when the chunking role runs.
	ChunkEmbeddings llm.EmbeddingProvider
	// ComponentEmbeddings is optional; nil disables chunk components.
	ComponentEmbeddings llm.EmbeddingProvider
	// Invalidator clears cached search results after chunks are written.
	Invalidator chunking.Invalidator

	// TagPrefix prefixes every consumer tag, e.g. the host name.
	TagPrefix string
}

// Worker owns the consume loops and the pools they run on.
type Worker struct {
	loops           []Loop
	pools           *pool.Manager
	shutdownTimeout time.Duration
}

// New builds one Loop per configured role instance and registers the
// consumer and embedding pools.
func New(opts *pipelineopts.Options, llmOpts *llmopts.Options, deps *Dependencies) (*Worker, error) {
	pools := pool.NewManager()
	w := &Worker{pools: pools, shutdownTimeout: opts.ShutdownTimeout}

	status := pipeline.StoreStatus{Documents: deps.Store.Documents()}
	prefix := deps.TagPrefix
	if prefix == "" {
		prefix = "chunkflow"
	}
	add := func(role, queue string, instances int, r Runner) {
		for i := range instances {
			w.loops = append(w.loops, Loop{
				Role:   role,
				Queue:  queue,
				Tag:    fmt.Sprintf("%s-%s-%d", prefix, role, i),
				Runner: r,
			})
		}
	}

	if opts.HasRole(pipelineopts.RoleRouter) {
		add(pipelineopts.RoleRouter, filetype.FileProcessQueue, opts.RouterInstances, gateway.NewRouter(deps.Broker))
	}

	parserRoles := map[string]string{
		filetype.PDFParserQueue:  pipelineopts.RolePDFParser,
		filetype.DOCXParserQueue: pipelineopts.RoleDOCXParser,
		filetype.XLSXParserQueue: pipelineopts.RoleXLSXParser,
	}
	var registry *parser.Registry
	for _, queue := range filetype.ParserQueues() {
		role := parserRoles[queue]
		if !opts.HasRole(role) {
			continue
		}
		if registry == nil {
			registry = parser.NewDefaultRegistry(opts)
		}
		add(role, queue, opts.ParserInstances, parser.NewConsumer(queue, deps.Broker, deps.Blobs, status, registry))
	}

	if opts.HasRole(pipelineopts.RoleChunking) {
		consumer, err := w.chunkingConsumer(opts, llmOpts, deps)
		if err != nil {
			return nil, err
		}
		add(pipelineopts.RoleChunking, filetype.ChunkingQueue, opts.ChunkingInstances, consumer)
	}

	if len(w.loops) == 0 {
		return nil, fmt.Errorf("no consumers configured for roles %v", opts.Roles)
	}
	if err := pools.Register(consumerPoolName, pool.ConsumerPool, pool.ConsumerPoolConfig(len(w.loops))); err != nil {
		return nil, err
	}
	return w, nil
}

func (w *Worker) chunkingConsumer(opts *pipelineopts.Options, llmOpts *llmopts.Options, deps *Dependencies) (*chunking.Consumer, error) {
	if deps.ChunkEmbeddings == nil {
		return nil, fmt.Errorf("chunking role requires a chunk embedding provider")
	}
	if llmOpts.Chunk.Dimensions != model.ChunkEmbeddingDim {
		return nil, fmt.Errorf("llm.chunk.dimensions is %d, the chunk store expects %d", llmOpts.Chunk.Dimensions, model.ChunkEmbeddingDim)
	}

	if err := w.pools.Register(embeddingPoolName, pool.EmbeddingPool, pool.EmbeddingPoolConfig(llmOpts.Concurrency)); err != nil {
		return nil, err
	}
	embeddings, err := w.pools.Get(embeddingPoolName)
	if err != nil {
		return nil, err
	}

	chunks := chunking.NewEmbedder(deps.ChunkEmbeddings, model.ChunkEmbeddingDim, llmOpts.Chunk.BatchSize, embeddings)
	var components *chunking.Embedder
	if deps.ComponentEmbeddings != nil {
		if llmOpts.Component.Dimensions != model.ComponentEmbeddingDim {
			return nil, fmt.Errorf("llm.component.dimensions is %d, the chunk store expects %d", llmOpts.Component.Dimensions, model.ComponentEmbeddingDim)
		}
		components = chunking.NewEmbedder(deps.ComponentEmbeddings, model.ComponentEmbeddingDim, llmOpts.Component.BatchSize, embeddings)
	}

	splitter := chunking.NewSplitter(opts.MaxChunkSize, opts.ChunkOverlap, opts.MaxComponentSize)
	consumer := chunking.NewConsumer(deps.Broker, deps.Blobs, deps.Store, splitter, chunks, components)
	if deps.Invalidator != nil {
		consumer = consumer.WithInvalidator(deps.Invalidator)
	}
	return consumer, nil
}

// Loops returns the planned consume loops.
func (w *Worker) Loops() []Loop {
	return w.loops
}

// Stats reports the pool counters by pool name.
func (w *Worker) Stats() map[string]pool.Stats {
	return w.pools.Stats()
}

// Run starts every loop and blocks until ctx is done or a loop fails.
// The first failure cancels the remaining loops. Pools are released
// before Run returns.
func (w *Worker) Run(ctx context.Context) error {
	defer func() {
		for name, st := range w.pools.Stats() {
			logger.Infow("Pool stats", "pool", name, "completed", st.CompletedTasks, "panics", st.PanicRecovered)
		}
		if err := w.pools.ReleaseAllTimeout(w.shutdownTimeout); err != nil {
			logger.Warnw("Releasing worker pools timed out", "error", err.Error())
		}
	}()

	consumers, err := w.pools.Get(consumerPoolName)
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, l := range w.loops {
		g.Go(func() error {
			done := make(chan error, 1)
			err := consumers.Submit(func() {
				defer func() {
					if r := recover(); r != nil {
						done <- fmt.Errorf("panic: %v", r)
					}
				}()
				done <- l.Runner.Run(gctx, l.Tag)
			})
			if err != nil {
				return fmt.Errorf("start %s consumer %s: %w", l.Role, l.Tag, err)
			}

			logger.Infow("Consumer started", "role", l.Role, "queue", l.Queue, "tag", l.Tag)
			if err := <-done; err != nil {
				logger.Errorw("Consumer stopped", "role", l.Role, "queue", l.Queue, "tag", l.Tag, "error", err.Error())
				return fmt.Errorf("%s consumer %s: %w", l.Role, l.Tag, err)
			}
			logger.Infow("Consumer stopped", "role", l.Role, "queue", l.Queue, "tag", l.Tag)
			return nil
		})
	}
	return g.Wait()
}
