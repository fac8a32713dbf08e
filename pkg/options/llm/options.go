// Package llm provides embedding provider configuration options.
package llm

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/pflag"
	utilerrors "k8s.io/apimachinery/pkg/util/errors"

	"github.com/kart-io/chunkflow/pkg/options"
)

var (
	_ options.IOptions = (*ProviderOptions)(nil)
	_ options.IOptions = (*Options)(nil)
)

// ProviderOptions 定义 Embedding 供应商配置。
type ProviderOptions struct {
	// Provider 供应商名称（ollama, openai）。
	Provider string `json:"provider" mapstructure:"provider"`

	// BaseURL API 基础地址。
	BaseURL string `json:"base-url" mapstructure:"base-url"`

	// APIKey API 密钥（OpenAI 等需要）。
	APIKey string `json:"-" mapstructure:"api-key"`

	// Model 使用的模型名称。
	Model string `json:"model" mapstructure:"model"`

	// Dimensions 期望的向量维度，写库前校验。
	Dimensions int `json:"dimensions" mapstructure:"dimensions"`

	// Timeout 请求超时时间。
	Timeout time.Duration `json:"timeout" mapstructure:"timeout"`

	// MaxRetries 单次调用内的重试次数。
	MaxRetries int `json:"max-retries" mapstructure:"max-retries"`

	// BatchSize 每次请求的最大文本数。
	BatchSize int `json:"batch-size" mapstructure:"batch-size"`

	// Organization 组织 ID（OpenAI 可选）。
	Organization string `json:"organization" mapstructure:"organization"`
}

// NewProviderOptions 创建默认 Embedding 供应商配置。
func NewProviderOptions(model string, dims int) *ProviderOptions {
	return &ProviderOptions{
		Provider:   "ollama",
		BaseURL:    "http://localhost:11434",
		Model:      model,
		Dimensions: dims,
		Timeout:    120 * time.Second,
		MaxRetries: 3,
		BatchSize:  16,
	}
}

// ToConfigMap 转换为配置 map，用于供应商工厂。
func (o *ProviderOptions) ToConfigMap() map[string]any {
	return map[string]any{
		"base_url":     o.BaseURL,
		"api_key":      o.APIKey,
		"embed_model":  o.Model,
		"dimensions":   o.Dimensions,
		"timeout":      o.Timeout,
		"max_retries":  o.MaxRetries,
		"organization": o.Organization,
	}
}

// AddFlags adds flags for the provider to the specified FlagSet.
func (o *ProviderOptions) AddFlags(fs *pflag.FlagSet, prefixes ...string) {
	p := options.Join(prefixes...)
	fs.StringVar(&o.Provider, p+"provider", o.Provider, "Embedding provider (ollama, openai).")
	fs.StringVar(&o.BaseURL, p+"base-url", o.BaseURL, "Embedding API base URL.")
	fs.StringVar(&o.APIKey, p+"api-key", o.APIKey, "Embedding API key (prefer LLM_API_KEY env var).")
	fs.StringVar(&o.Model, p+"model", o.Model, "Embedding model name.")
	fs.IntVar(&o.Dimensions, p+"dimensions", o.Dimensions, "Expected embedding dimensionality.")
	fs.DurationVar(&o.Timeout, p+"timeout", o.Timeout, "Embedding request timeout.")
	fs.IntVar(&o.MaxRetries, p+"max-retries", o.MaxRetries, "Retries per embedding call.")
	fs.IntVar(&o.BatchSize, p+"batch-size", o.BatchSize, "Texts per embedding request.")
	fs.StringVar(&o.Organization, p+"organization", o.Organization, "Organization ID (optional).")
}

// Validate validates the provider options.
func (o *ProviderOptions) Validate() error {
	if o == nil {
		return nil
	}

	var errs []error
	if o.Provider == "" {
		errs = append(errs, fmt.Errorf("provider is required"))
	}
	if o.BaseURL == "" {
		errs = append(errs, fmt.Errorf("base-url is required"))
	}
	if o.Model == "" {
		errs = append(errs, fmt.Errorf("model is required"))
	}
	// OpenAI 供应商需要 API key
	if o.Provider == "openai" && o.APIKey == "" {
		errs = append(errs, fmt.Errorf("api-key is required for openai provider"))
	}
	if o.Dimensions <= 0 {
		errs = append(errs, fmt.Errorf("dimensions must be positive"))
	}
	if o.Timeout <= 0 {
		errs = append(errs, fmt.Errorf("timeout must be positive"))
	}
	if o.BatchSize <= 0 {
		errs = append(errs, fmt.Errorf("batch-size must be positive"))
	}
	return utilerrors.NewAggregate(errs)
}

// Complete completes the provider options with defaults.
func (o *ProviderOptions) Complete() error {
	if o.APIKey == "" {
		o.APIKey = os.Getenv("LLM_API_KEY")
	}
	if o.MaxRetries < 0 {
		o.MaxRetries = 0
	}
	return nil
}

// Options groups the chunk embedder, the optional component embedder and
// the shared resilience settings.
type Options struct {
	Chunk     *ProviderOptions `json:"chunk" mapstructure:"chunk"`
	Component *ProviderOptions `json:"component" mapstructure:"component"`

	// ComponentsEnabled 为每个分块额外生成段落级组件向量。
	ComponentsEnabled bool `json:"components-enabled" mapstructure:"components-enabled"`

	// Concurrency 并发 Embedding 请求数（ants 池容量）。
	Concurrency int `json:"concurrency" mapstructure:"concurrency"`

	// CircuitMaxFailures 触发熔断的连续失败次数。
	CircuitMaxFailures int `json:"circuit-max-failures" mapstructure:"circuit-max-failures"`

	// CircuitTimeout 熔断打开后的冷却时间。
	CircuitTimeout time.Duration `json:"circuit-timeout" mapstructure:"circuit-timeout"`

	// CacheTTL Redis Embedding 缓存时间，0 表示不缓存。
	CacheTTL time.Duration `json:"cache-ttl" mapstructure:"cache-ttl"`
}

// NewOptions creates default embedding options: a 1536-d chunk embedder and
// a 1024-d component embedder.
func NewOptions() *Options {
	return &Options{
		Chunk:              NewProviderOptions("nomic-embed-text", 1536),
		Component:          NewProviderOptions("mxbai-embed-large", 1024),
		Concurrency:        4,
		CircuitMaxFailures: 5,
		CircuitTimeout:     60 * time.Second,
		CacheTTL:           24 * time.Hour,
	}
}

// AddFlags adds flags for embedding options to the specified FlagSet.
func (o *Options) AddFlags(fs *pflag.FlagSet, prefixes ...string) {
	p := options.Join(prefixes...) + "llm."
	o.Chunk.AddFlags(fs, p+"chunk")
	o.Component.AddFlags(fs, p+"component")
	fs.BoolVar(&o.ComponentsEnabled, p+"components-enabled", o.ComponentsEnabled, "Embed paragraph-level chunk components.")
	fs.IntVar(&o.Concurrency, p+"concurrency", o.Concurrency, "Concurrent embedding requests.")
	fs.IntVar(&o.CircuitMaxFailures, p+"circuit-max-failures", o.CircuitMaxFailures, "Consecutive failures that open the circuit breaker.")
	fs.DurationVar(&o.CircuitTimeout, p+"circuit-timeout", o.CircuitTimeout, "Circuit breaker cool-down.")
	fs.DurationVar(&o.CacheTTL, p+"cache-ttl", o.CacheTTL, "Embedding cache TTL in Redis, 0 disables.")
}

// Complete completes both providers.
func (o *Options) Complete() error {
	if err := o.Chunk.Complete(); err != nil {
		return err
	}
	return o.Component.Complete()
}

// Validate validates the embedding options.
func (o *Options) Validate() error {
	var errs []error
	if err := o.Chunk.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("llm.chunk: %w", err))
	}
	if o.ComponentsEnabled {
		if err := o.Component.Validate(); err != nil {
			errs = append(errs, fmt.Errorf("llm.component: %w", err))
		}
	}
	if o.Concurrency < 1 {
		errs = append(errs, fmt.Errorf("llm.concurrency must be >= 1"))
	}
	if o.CircuitMaxFailures < 1 {
		errs = append(errs, fmt.Errorf("llm.circuit-max-failures must be >= 1"))
	}
	return utilerrors.NewAggregate(errs)
}
