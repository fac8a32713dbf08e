package resilience

import (
	"context"
	"errors"
	"net"

	"github.com/kart-io/chunkflow/pkg/llm"
	cferrors "github.com/kart-io/chunkflow/pkg/errors"
	"github.com/kart-io/chunkflow/pkg/utils/httpclient"
)

// EmbeddingProvider wraps a provider with retry and a circuit breaker.
// Every failure is reported as ErrEmbeddingFailure.
type EmbeddingProvider struct {
	provider llm.EmbeddingProvider
	retry    *RetryConfig
	cb       *CircuitBreaker
}

var _ llm.EmbeddingProvider = (*EmbeddingProvider)(nil)

// NewEmbeddingProvider 创建带韧性功能的 Embedding Provider。
func NewEmbeddingProvider(provider llm.EmbeddingProvider, retryConfig *RetryConfig, cbConfig *CircuitBreakerConfig) *EmbeddingProvider {
	if retryConfig == nil {
		retryConfig = DefaultRetryConfig()
	}
	return &EmbeddingProvider{
		provider: provider,
		retry:    retryConfig,
		cb:       NewCircuitBreaker(provider.Name(), cbConfig),
	}
}

// Embed 为多个文本生成向量嵌入（带重试和熔断）。
func (r *EmbeddingProvider) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	var result [][]float32
	err := RetryWithCircuitBreaker(ctx, r.retry, r.cb, func() error {
		var err error
		result, err = r.provider.Embed(ctx, texts)
		return err
	})
	if err != nil {
		return nil, r.wrap(err)
	}
	return result, nil
}

// EmbedSingle 为单个文本生成向量嵌入（带重试和熔断）。
func (r *EmbeddingProvider) EmbedSingle(ctx context.Context, text string) ([]float32, error) {
	var result []float32
	err := RetryWithCircuitBreaker(ctx, r.retry, r.cb, func() error {
		var err error
		result, err = r.provider.EmbedSingle(ctx, text)
		return err
	})
	if err != nil {
		return nil, r.wrap(err)
	}
	return result, nil
}

func (r *EmbeddingProvider) wrap(err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return cferrors.ErrEmbeddingFailure.WithMessagef("embedding via %s failed", r.provider.Name()).WithCause(err)
}

// Name 返回供应商名称。
func (r *EmbeddingProvider) Name() string {
	return r.provider.Name()
}

// CircuitBreaker 获取熔断器实例（用于监控）。
func (r *EmbeddingProvider) CircuitBreaker() *CircuitBreaker {
	return r.cb
}

// IsRetryableError 判断错误是否可重试。
func IsRetryableError(err error) bool {
	if err == nil {
		return false
	}

	// 熔断器打开、上下文取消都不重试
	if errors.Is(err, ErrCircuitBreakerOpen) ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	var statusErr *httpclient.StatusError
	if errors.As(err, &statusErr) {
		return statusErr.Temporary()
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}

	return false
}
