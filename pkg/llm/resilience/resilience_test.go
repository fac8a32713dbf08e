package resilience

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	cferrors "github.com/kart-io/chunkflow/pkg/errors"
	"github.com/kart-io/chunkflow/pkg/utils/httpclient"
)

var errTest = errors.New("test error")

func fastRetry(attempts int) *RetryConfig {
	return &RetryConfig{
		MaxAttempts:  attempts,
		InitialDelay: time.Millisecond,
		MaxDelay:     10 * time.Millisecond,
		Multiplier:   2,
		Retryable:    func(error) bool { return true },
	}
}

func TestCircuitBreaker_OpenOnMaxFailures(t *testing.T) {
	cb := NewCircuitBreaker("t", &CircuitBreakerConfig{MaxFailures: 3, Timeout: time.Second, HalfOpenMaxCalls: 1})
	assert.Equal(t, StateClosed, cb.State())

	for i := 0; i < 3; i++ {
		assert.Error(t, cb.Execute(func() error { return errTest }))
	}
	assert.Equal(t, StateOpen, cb.State())

	// 熔断器打开后，应拒绝新请求
	called := false
	err := cb.Execute(func() error { called = true; return nil })
	assert.ErrorIs(t, err, ErrCircuitBreakerOpen)
	assert.False(t, called)
}

func TestCircuitBreaker_SuccessResetsFailures(t *testing.T) {
	cb := NewCircuitBreaker("t", &CircuitBreakerConfig{MaxFailures: 2, Timeout: time.Second, HalfOpenMaxCalls: 1})
	_ = cb.Execute(func() error { return errTest })
	require.NoError(t, cb.Execute(func() error { return nil }))
	_ = cb.Execute(func() error { return errTest })
	assert.Equal(t, StateClosed, cb.State())
}

func TestCircuitBreaker_HalfOpen(t *testing.T) {
	now := time.Now()
	cb := NewCircuitBreaker("t", &CircuitBreakerConfig{MaxFailures: 1, Timeout: time.Minute, HalfOpenMaxCalls: 1})
	cb.now = func() time.Time { return now }

	_ = cb.Execute(func() error { return errTest })
	assert.Equal(t, StateOpen, cb.State())

	now = now.Add(2 * time.Minute)
	_ = cb.Execute(func() error { return errTest })
	assert.Equal(t, StateOpen, cb.State(), "a failed probe re-opens")

	now = now.Add(2 * time.Minute)
	require.NoError(t, cb.Execute(func() error { return nil }))
	assert.Equal(t, StateClosed, cb.State())
}

func TestCircuitBreaker_CancellationNotCounted(t *testing.T) {
	cb := NewCircuitBreaker("t", &CircuitBreakerConfig{MaxFailures: 1, Timeout: time.Minute, HalfOpenMaxCalls: 1})
	_ = cb.Execute(func() error { return context.Canceled })
	assert.Equal(t, StateClosed, cb.State())
	assert.Zero(t, cb.Stats().Failures)
}

func TestCircuitBreaker_ResetAndStats(t *testing.T) {
	cb := NewCircuitBreaker("t", nil)
	for i := 0; i < 5; i++ {
		_ = cb.Execute(func() error { return errTest })
	}
	stats := cb.Stats()
	assert.Equal(t, "open", stats.State)
	assert.Equal(t, 5, stats.Failures)

	cb.Reset()
	assert.Equal(t, StateClosed, cb.State())
	require.NoError(t, cb.Execute(func() error { return nil }))
}

func TestRetryWithBackoff_EventualSuccess(t *testing.T) {
	calls := 0
	err := RetryWithBackoff(context.Background(), fastRetry(3), func() error {
		calls++
		if calls < 3 {
			return errTest
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestRetryWithBackoff_Exhausted(t *testing.T) {
	calls := 0
	err := RetryWithBackoff(context.Background(), fastRetry(3), func() error {
		calls++
		return errTest
	})
	assert.ErrorIs(t, err, errTest)
	assert.Equal(t, 3, calls)
}

func TestRetryWithBackoff_NonRetryable(t *testing.T) {
	cfg := fastRetry(5)
	cfg.Retryable = func(error) bool { return false }
	calls := 0
	err := RetryWithBackoff(context.Background(), cfg, func() error {
		calls++
		return errTest
	})
	assert.ErrorIs(t, err, errTest)
	assert.Equal(t, 1, calls)
}

func TestIsRetryableError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"breaker open", ErrCircuitBreakerOpen, false},
		{"canceled", context.Canceled, false},
		{"503", &httpclient.StatusError{StatusCode: http.StatusServiceUnavailable}, true},
		{"429 wrapped", fmt.Errorf("embed: %w", &httpclient.StatusError{StatusCode: http.StatusTooManyRequests}), true},
		{"400", &httpclient.StatusError{StatusCode: http.StatusBadRequest}, false},
		{"plain", errTest, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsRetryableError(tt.err))
		})
	}
}

type flakyProvider struct {
	failures int
	calls    int
}

func (f *flakyProvider) Name() string { return "flaky" }

func (f *flakyProvider) Embed(_ context.Context, texts []string) ([][]float32, error) {
	f.calls++
	if f.calls <= f.failures {
		return nil, &httpclient.StatusError{StatusCode: http.StatusBadGateway}
	}
	out := make([][]float32, len(texts))
	for i := range out {
		out[i] = []float32{1}
	}
	return out, nil
}

func (f *flakyProvider) EmbedSingle(ctx context.Context, text string) ([]float32, error) {
	v, err := f.Embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return v[0], nil
}

func TestEmbeddingProviderRetriesTransientFailures(t *testing.T) {
	inner := &flakyProvider{failures: 2}
	cfg := fastRetry(3)
	cfg.Retryable = IsRetryableError
	p := NewEmbeddingProvider(inner, cfg, nil)

	v, err := p.EmbedSingle(context.Background(), "x")
	require.NoError(t, err)
	assert.Equal(t, []float32{1}, v)
	assert.Equal(t, 3, inner.calls)
	assert.Equal(t, "flaky", p.Name())
}

func TestEmbeddingProviderWrapsFailure(t *testing.T) {
	inner := &flakyProvider{failures: 100}
	p := NewEmbeddingProvider(inner, fastRetry(2), &CircuitBreakerConfig{MaxFailures: 10, Timeout: time.Minute, HalfOpenMaxCalls: 1})

	_, err := p.Embed(context.Background(), []string{"x"})
	require.Error(t, err)
	assert.ErrorIs(t, err, cferrors.ErrEmbeddingFailure)
	var se *httpclient.StatusError
	assert.True(t, errors.As(err, &se))
}
