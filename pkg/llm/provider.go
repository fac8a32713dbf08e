// Package llm 提供统一的 Embedding 供应商抽象层。
// 分块向量与组件向量可以使用不同供应商的模型。
package llm

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/kart-io/chunkflow/pkg/errors"
)

// EmbeddingProvider 定义 Embedding 供应商接口。
type EmbeddingProvider interface {
	// Embed 为多个文本生成向量嵌入，结果与输入一一对应。
	Embed(ctx context.Context, texts []string) ([][]float32, error)

	// EmbedSingle 为单个文本生成向量嵌入。
	EmbedSingle(ctx context.Context, text string) ([]float32, error)

	// Name 返回供应商名称。
	Name() string
}

// EmbeddingProviderFactory Embedding 供应商工厂函数类型。
type EmbeddingProviderFactory func(config map[string]any) (EmbeddingProvider, error)

var registry = struct {
	mu        sync.RWMutex
	factories map[string]EmbeddingProviderFactory
}{factories: make(map[string]EmbeddingProviderFactory)}

// RegisterEmbeddingProvider 注册 Embedding 供应商工厂。
func RegisterEmbeddingProvider(name string, factory EmbeddingProviderFactory) {
	registry.mu.Lock()
	defer registry.mu.Unlock()
	registry.factories[name] = factory
}

// NewEmbeddingProvider 根据名称创建 Embedding 供应商实例。
func NewEmbeddingProvider(name string, config map[string]any) (EmbeddingProvider, error) {
	registry.mu.RLock()
	factory, ok := registry.factories[name]
	registry.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("unknown embedding provider: %s", name)
	}
	return factory(config)
}

// ListProviders 列出所有已注册的供应商名称。
func ListProviders() []string {
	registry.mu.RLock()
	defer registry.mu.RUnlock()

	names := make([]string, 0, len(registry.factories))
	for name := range registry.factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// CheckDimensions verifies every vector has dims components. Providers that
// silently truncate or pad would otherwise fail at insert time.
func CheckDimensions(vectors [][]float32, dims int) error {
	for i, v := range vectors {
		if len(v) != dims {
			return errors.ErrInvalidEmbedding.WithMessagef("embedding %d has %d dimensions, want %d", i, len(v), dims)
		}
	}
	return nil
}

// EmbedBatched embeds texts in batches of at most size, preserving order.
func EmbedBatched(ctx context.Context, p EmbeddingProvider, texts []string, size int) ([][]float32, error) {
	if size <= 0 {
		size = len(texts)
	}
	out := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += size {
		end := min(start+size, len(texts))
		vecs, err := p.Embed(ctx, texts[start:end])
		if err != nil {
			return nil, err
		}
		if len(vecs) != end-start {
			return nil, errors.ErrEmbeddingFailure.WithMessagef("provider %s returned %d embeddings for %d texts", p.Name(), len(vecs), end-start)
		}
		out = append(out, vecs...)
	}
	return out, nil
}
