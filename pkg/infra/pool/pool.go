package pool

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/kart-io/logger"
	"github.com/panjf2000/ants/v2"
)

// Type defines the type of worker pool.
type Type string

const (
	// DefaultPool 默认通用池
	DefaultPool Type = "default"
	// HealthCheckPool 健康检查专用池
	HealthCheckPool Type = "health-check"
	// ConsumerPool 队列消费者池，每个任务是一个长期运行的消费循环
	ConsumerPool Type = "consumer"
	// EmbeddingPool 向量化请求池，限制对嵌入服务的并发
	EmbeddingPool Type = "embedding"
)

// Config defines the configuration for the worker pool.
type Config struct {
	// Capacity 池容量（最大并发 goroutine 数）
	Capacity int
	// ExpiryDuration goroutine 空闲过期时间
	ExpiryDuration time.Duration
	// PreAlloc 是否预分配内存
	PreAlloc bool
	// Nonblocking 池满时提交立即返回 ErrPoolOverload
	Nonblocking bool
	// MaxBlockingTasks 当 Nonblocking=false 时，最大等待任务数（0 表示无限制）
	MaxBlockingTasks int
	// PanicHandler 恐慌处理函数
	PanicHandler func(any)
}

// Validate checks the pool configuration.
func (c *Config) Validate() error {
	if c.Capacity <= 0 {
		return fmt.Errorf("%w: capacity must be > 0", ErrInvalidPoolConfig)
	}
	if c.MaxBlockingTasks < 0 {
		return fmt.Errorf("%w: max blocking tasks must be >= 0", ErrInvalidPoolConfig)
	}
	return nil
}

// DefaultPoolConfig 返回默认池配置
func DefaultPoolConfig() *Config {
	return &Config{
		Capacity:       1000,
		ExpiryDuration: 10 * time.Second,
	}
}

// HealthCheckPoolConfig 返回健康检查池配置
func HealthCheckPoolConfig() *Config {
	return &Config{
		Capacity:         16,
		ExpiryDuration:   30 * time.Second,
		PreAlloc:         true,
		Nonblocking:      true,
		MaxBlockingTasks: 10,
	}
}

// ConsumerPoolConfig 返回消费者池配置。消费循环不会过期，容量需覆盖所有实例。
func ConsumerPoolConfig(instances int) *Config {
	return &Config{
		Capacity:       instances,
		ExpiryDuration: time.Minute,
		Nonblocking:    true,
	}
}

// EmbeddingPoolConfig 返回向量化池配置
func EmbeddingPoolConfig(concurrency int) *Config {
	return &Config{
		Capacity:       concurrency,
		ExpiryDuration: 30 * time.Second,
	}
}

// Pool represents a worker pool.
type Pool struct {
	name     string
	typ      Type
	pool     *ants.Pool
	config   *Config
	stats    poolStatsCounter
	closed   atomic.Bool
	closedMu sync.Mutex
}

type poolStatsCounter struct {
	submitted atomic.Int64
	completed atomic.Int64
	rejected  atomic.Int64
	panics    atomic.Int64
	waitNs    atomic.Int64
}

// Stats contains statistics about the worker pool.
type Stats struct {
	Name           string        `json:"name"`
	Type           Type          `json:"type"`
	Capacity       int           `json:"capacity"`
	Running        int           `json:"running"`
	Waiting        int           `json:"waiting"`
	SubmittedTasks int64         `json:"submitted_tasks"`
	CompletedTasks int64         `json:"completed_tasks"`
	RejectedTasks  int64         `json:"rejected_tasks"`
	PanicRecovered int64         `json:"panic_recovered"`
	AvgWait        time.Duration `json:"avg_wait"`
}

// NewPool creates a new worker pool with the given configuration.
func NewPool(name string, typ Type, config *Config) (*Pool, error) {
	if config == nil {
		config = DefaultPoolConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}

	p := &Pool{
		name:   name,
		typ:    typ,
		config: config,
	}

	ap, err := ants.NewPool(config.Capacity, p.antsOptions()...)
	if err != nil {
		return nil, fmt.Errorf("创建 ants 池失败: %w", err)
	}
	p.pool = ap

	logger.Infow("Worker pool created",
		"name", name,
		"type", typ,
		"capacity", config.Capacity,
	)

	return p, nil
}

func (p *Pool) antsOptions() []ants.Option {
	handler := p.config.PanicHandler
	if handler == nil {
		handler = func(r any) {
			logger.Errorw("Worker panic recovered", "pool", p.name, "panic", r)
		}
	}
	return []ants.Option{
		ants.WithExpiryDuration(p.config.ExpiryDuration),
		ants.WithPreAlloc(p.config.PreAlloc),
		ants.WithNonblocking(p.config.Nonblocking),
		ants.WithMaxBlockingTasks(p.config.MaxBlockingTasks),
		ants.WithPanicHandler(func(r any) {
			p.stats.panics.Add(1)
			handler(r)
		}),
	}
}

// Name 返回池名称
func (p *Pool) Name() string {
	return p.name
}

// Type 返回池类型
func (p *Pool) Type() Type {
	return p.typ
}

// Cap 返回池容量
func (p *Pool) Cap() int {
	return p.pool.Cap()
}

// Running 返回正在运行的 goroutine 数量
func (p *Pool) Running() int {
	return p.pool.Running()
}

// Submit 提交任务到池中执行
func (p *Pool) Submit(task func()) error {
	if p.closed.Load() {
		return ErrPoolClosed
	}

	queued := time.Now()
	p.stats.submitted.Add(1)
	err := p.pool.Submit(func() {
		p.stats.waitNs.Add(int64(time.Since(queued)))
		task()
		p.stats.completed.Add(1)
	})
	if err != nil {
		p.stats.submitted.Add(-1)
		if errors.Is(err, ants.ErrPoolOverload) {
			p.stats.rejected.Add(1)
			return ErrPoolOverload
		}
		if errors.Is(err, ants.ErrPoolClosed) {
			return ErrPoolClosed
		}
		return err
	}
	return nil
}

// SubmitWithContext 提交带上下文的任务；任务开始前上下文已取消则跳过
func (p *Pool) SubmitWithContext(ctx context.Context, task func()) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return p.Submit(func() {
		if ctx.Err() != nil {
			return
		}
		task()
	})
}

// Release 关闭池并释放资源
func (p *Pool) Release() {
	p.closedMu.Lock()
	defer p.closedMu.Unlock()

	if p.closed.Swap(true) {
		return
	}
	p.pool.Release()
	logger.Infow("Worker pool released", "name", p.name)
}

// ReleaseTimeout 等待运行中的任务结束，直到超时
func (p *Pool) ReleaseTimeout(timeout time.Duration) error {
	p.closedMu.Lock()
	defer p.closedMu.Unlock()

	if p.closed.Swap(true) {
		return nil
	}
	return p.pool.ReleaseTimeout(timeout)
}

// Tune 动态调整池容量
func (p *Pool) Tune(size int) {
	p.pool.Tune(size)
	p.config.Capacity = size
	logger.Infow("Worker pool tuned", "name", p.name, "capacity", size)
}

// Stats 返回池统计信息快照
func (p *Pool) Stats() Stats {
	s := Stats{
		Name:           p.name,
		Type:           p.typ,
		Capacity:       p.pool.Cap(),
		Running:        p.pool.Running(),
		Waiting:        p.pool.Waiting(),
		SubmittedTasks: p.stats.submitted.Load(),
		CompletedTasks: p.stats.completed.Load(),
		RejectedTasks:  p.stats.rejected.Load(),
		PanicRecovered: p.stats.panics.Load(),
	}
	if s.SubmittedTasks > 0 {
		s.AvgWait = time.Duration(p.stats.waitNs.Load() / s.SubmittedTasks)
	}
	return s
}
