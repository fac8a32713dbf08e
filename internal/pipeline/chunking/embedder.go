package chunking

import (
	"context"
	stderrors "errors"
	"sync"

	"github.com/kart-io/chunkflow/pkg/errors"
	"github.com/kart-io/chunkflow/pkg/infra/pool"
	"github.com/kart-io/chunkflow/pkg/llm"
)

// Embedder 分批调用 Embedding 供应商，批次在 ants 池中并发执行。
type Embedder struct {
	provider  llm.EmbeddingProvider
	dims      int
	batchSize int
	workers   *pool.Pool
}

// NewEmbedder 创建向量化器。workers 为 nil 时按顺序执行批次。
func NewEmbedder(provider llm.EmbeddingProvider, dims, batchSize int, workers *pool.Pool) *Embedder {
	if batchSize <= 0 {
		batchSize = 16
	}
	return &Embedder{
		provider:  provider,
		dims:      dims,
		batchSize: batchSize,
		workers:   workers,
	}
}

// Name 返回供应商名称。
func (e *Embedder) Name() string { return e.provider.Name() }

// Embed 为所有文本生成向量，结果与输入一一对应。任一批次失败则整体失败。
func (e *Embedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	if e.workers == nil || len(texts) <= e.batchSize {
		vecs, err := llm.EmbedBatched(ctx, e.provider, texts, e.batchSize)
		if err != nil {
			return nil, embeddingFailure(err)
		}
		return vecs, llm.CheckDimensions(vecs, e.dims)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	out := make([][]float32, len(texts))
	var (
		wg       sync.WaitGroup
		once     sync.Once
		firstErr error
	)
	fail := func(err error) {
		once.Do(func() {
			firstErr = err
			cancel()
		})
	}

	for start := 0; start < len(texts); start += e.batchSize {
		end := min(start+e.batchSize, len(texts))
		wg.Add(1)
		err := e.workers.Submit(func() {
			defer wg.Done()
			if ctx.Err() != nil {
				return
			}
			vecs, err := llm.EmbedBatched(ctx, e.provider, texts[start:end], e.batchSize)
			if err != nil {
				fail(err)
				return
			}
			copy(out[start:end], vecs)
		})
		if err != nil {
			wg.Done()
			fail(errors.ErrEmbeddingFailure.WithMessage("embedding pool rejected batch").WithCause(err))
			break
		}
	}
	wg.Wait()

	if firstErr != nil {
		return nil, embeddingFailure(firstErr)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return out, llm.CheckDimensions(out, e.dims)
}

func embeddingFailure(err error) error {
	if stderrors.Is(err, context.Canceled) || stderrors.Is(err, context.DeadlineExceeded) {
		return err
	}
	var e *errors.Errno
	if stderrors.As(err, &e) {
		return err
	}
	return errors.ErrEmbeddingFailure.WithCause(err)
}
