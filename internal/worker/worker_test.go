package worker

import (
	"context"
	stderrors "errors"
	"slices"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kart-io/chunkflow/internal/model"
	"github.com/kart-io/chunkflow/internal/pipeline"
	"github.com/kart-io/chunkflow/internal/pipeline/filetype"
	"github.com/kart-io/chunkflow/internal/pipeline/message"
	"github.com/kart-io/chunkflow/internal/store/memory"
	"github.com/kart-io/chunkflow/pkg/blob/local"
	"github.com/kart-io/chunkflow/pkg/component/rabbitmq"
	"github.com/kart-io/chunkflow/pkg/infra/pool"
	llmopts "github.com/kart-io/chunkflow/pkg/options/llm"
	pipelineopts "github.com/kart-io/chunkflow/pkg/options/pipeline"
)

type staticProvider struct{ dims int }

func (p staticProvider) Name() string { return "static" }

func (p staticProvider) Embed(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = make([]float32, p.dims)
		out[i][0] = 1
	}
	return out, nil
}

func (p staticProvider) EmbedSingle(ctx context.Context, text string) ([]float32, error) {
	vecs, err := p.Embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

type workerFixture struct {
	broker *rabbitmq.MemoryBroker
	store  *memory.Store
	deps   *Dependencies
}

func newWorkerFixture(t *testing.T) *workerFixture {
	t.Helper()
	broker := rabbitmq.NewMemoryBroker(2)
	require.NoError(t, pipeline.DeclareTopology(context.Background(), broker))

	blobs, err := local.New(t.TempDir(), "docs", "")
	require.NoError(t, err)

	st := memory.New()
	return &workerFixture{
		broker: broker,
		store:  st,
		deps: &Dependencies{
			Store:           st,
			Blobs:           blobs,
			Broker:          broker,
			ChunkEmbeddings: staticProvider{dims: model.ChunkEmbeddingDim},
			TagPrefix:       "test",
		},
	}
}

func pipelineOptions(roles ...string) *pipelineopts.Options {
	opts := pipelineopts.NewOptions()
	if len(roles) > 0 {
		opts.Roles = roles
	}
	opts.ShutdownTimeout = time.Second
	return opts
}

func TestNewPlansLoopsPerRole(t *testing.T) {
	f := newWorkerFixture(t)
	opts := pipelineOptions()
	opts.RouterInstances = 2

	w, err := New(opts, llmopts.NewOptions(), f.deps)
	require.NoError(t, err)

	byRole := map[string]int{}
	tags := make([]string, 0, len(w.Loops()))
	for _, l := range w.Loops() {
		byRole[l.Role]++
		tags = append(tags, l.Tag)
	}
	assert.Equal(t, map[string]int{
		pipelineopts.RoleRouter:     2,
		pipelineopts.RolePDFParser:  1,
		pipelineopts.RoleDOCXParser: 1,
		pipelineopts.RoleXLSXParser: 1,
		pipelineopts.RoleChunking:   1,
	}, byRole)
	assert.Contains(t, tags, "test-router-1")

	slices.Sort(tags)
	assert.Len(t, slices.Compact(tags), len(w.Loops()))

	stats := w.Stats()
	assert.Equal(t, len(w.Loops()), stats[consumerPoolName].Capacity)
	assert.Contains(t, stats, embeddingPoolName)
}

func TestNewRejectsInvalidSetups(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*pipelineopts.Options, *llmopts.Options, *Dependencies)
		want   string
	}{
		{
			name: "chunking without provider",
			mutate: func(_ *pipelineopts.Options, _ *llmopts.Options, d *Dependencies) {
				d.ChunkEmbeddings = nil
			},
			want: "requires a chunk embedding provider",
		},
		{
			name: "chunk dimension mismatch",
			mutate: func(_ *pipelineopts.Options, l *llmopts.Options, _ *Dependencies) {
				l.Chunk.Dimensions = 768
			},
			want: "llm.chunk.dimensions is 768",
		},
		{
			name: "component dimension mismatch",
			mutate: func(_ *pipelineopts.Options, l *llmopts.Options, d *Dependencies) {
				d.ComponentEmbeddings = staticProvider{dims: 512}
				l.Component.Dimensions = 512
			},
			want: "llm.component.dimensions is 512",
		},
		{
			name: "no roles",
			mutate: func(p *pipelineopts.Options, _ *llmopts.Options, _ *Dependencies) {
				p.Roles = []string{}
			},
			want: "no consumers configured",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newWorkerFixture(t)
			opts, llm := pipelineOptions(), llmopts.NewOptions()
			tt.mutate(opts, llm, f.deps)

			_, err := New(opts, llm, f.deps)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestRunRoutesUntilCancelled(t *testing.T) {
	f := newWorkerFixture(t)
	w, err := New(pipelineOptions(pipelineopts.RoleRouter), llmopts.NewOptions(), f.deps)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	doc := &model.Document{UserID: "alice", Filename: "a.pdf", MimeType: "application/pdf", Path: "uploads/alice/a.pdf"}
	require.NoError(t, f.store.Documents().Create(ctx, doc))
	require.NoError(t, f.broker.Publish(ctx, filetype.FileProcessQueue, &message.FileProcessMessage{
		Version:    message.CurrentVersion,
		Username:   "alice",
		Filename:   doc.Filename,
		S3Key:      doc.Path,
		UploadedAt: time.Now().UTC(),
		FileType:   "pdf",
		DocumentID: doc.ID,
	}, message.PublishOptions()))

	assert.Eventually(t, func() bool {
		return f.broker.Len(filetype.PDFParserQueue) == 1
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not stop")
	}
}

type runnerFunc func(ctx context.Context, tag string) error

func (f runnerFunc) Run(ctx context.Context, tag string) error { return f(ctx, tag) }

func newLoopWorker(t *testing.T, loops ...Loop) *Worker {
	t.Helper()
	pools := pool.NewManager()
	require.NoError(t, pools.Register(consumerPoolName, pool.ConsumerPool, pool.ConsumerPoolConfig(len(loops))))
	return &Worker{loops: loops, pools: pools, shutdownTimeout: time.Second}
}

func TestRunStopsAllLoopsOnFailure(t *testing.T) {
	var stopped atomic.Bool
	blocking := runnerFunc(func(ctx context.Context, _ string) error {
		<-ctx.Done()
		stopped.Store(true)
		return nil
	})
	failing := runnerFunc(func(context.Context, string) error {
		return stderrors.New("broker gave up")
	})

	w := newLoopWorker(t,
		Loop{Role: "chunking", Tag: "c-0", Runner: blocking},
		Loop{Role: "router", Tag: "r-0", Runner: failing},
	)
	err := w.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "router consumer r-0: broker gave up")
	assert.True(t, stopped.Load())
}

func TestRunReportsPanickingLoop(t *testing.T) {
	w := newLoopWorker(t, Loop{Role: "router", Tag: "r-0", Runner: runnerFunc(func(context.Context, string) error {
		panic("boom")
	})})
	err := w.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "panic: boom")
}
