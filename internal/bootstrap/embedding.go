package bootstrap

import (
	"fmt"

	goredis "github.com/redis/go-redis/v9"

	"github.com/kart-io/chunkflow/pkg/llm"
	_ "github.com/kart-io/chunkflow/pkg/llm/ollama"
	_ "github.com/kart-io/chunkflow/pkg/llm/openai"
	"github.com/kart-io/chunkflow/pkg/llm/resilience"
	llmopts "github.com/kart-io/chunkflow/pkg/options/llm"
)

// NewEmbeddingProvider builds the embedding stack for one provider:
// the registered provider, wrapped in retry and a circuit breaker, behind
// the Redis vector cache. A nil cache client disables caching.
func NewEmbeddingProvider(opts *llmopts.ProviderOptions, shared *llmopts.Options, cache goredis.UniversalClient, keyPrefix string) (llm.EmbeddingProvider, error) {
	base, err := llm.NewEmbeddingProvider(opts.Provider, opts.ToConfigMap())
	if err != nil {
		return nil, fmt.Errorf("embedding provider %s: %w", opts.Provider, err)
	}

	resilient := resilience.NewEmbeddingProvider(base, resilience.DefaultRetryConfig(), &resilience.CircuitBreakerConfig{
		MaxFailures:      shared.CircuitMaxFailures,
		Timeout:          shared.CircuitTimeout,
		HalfOpenMaxCalls: 1,
	})

	return llm.NewCachedEmbeddingProvider(resilient, cache, llm.EmbeddingCacheConfig{
		TTL:       shared.CacheTTL,
		KeyPrefix: keyPrefix,
	}), nil
}
