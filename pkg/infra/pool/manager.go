package pool

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	utilerrors "k8s.io/apimachinery/pkg/util/errors"
)

// Manager 池管理器，管理多个命名池
type Manager struct {
	mu     sync.RWMutex
	pools  map[string]*Pool
	closed atomic.Bool
}

// NewManager 创建新的池管理器
func NewManager() *Manager {
	return &Manager{
		pools: make(map[string]*Pool),
	}
}

// Register 注册新池
func (m *Manager) Register(name string, typ Type, config *Config) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed.Load() {
		return ErrPoolClosed
	}
	if _, exists := m.pools[name]; exists {
		return fmt.Errorf("%w: %s", ErrPoolAlreadyExists, name)
	}

	p, err := NewPool(name, typ, config)
	if err != nil {
		return err
	}
	m.pools[name] = p
	return nil
}

// RegisterWithType 使用类型名作为池名注册
func (m *Manager) RegisterWithType(typ Type, config *Config) error {
	return m.Register(string(typ), typ, config)
}

// Get 获取指定名称的池
func (m *Manager) Get(name string) (*Pool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed.Load() {
		return nil, ErrPoolClosed
	}
	p, exists := m.pools[name]
	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrPoolNotFound, name)
	}
	return p, nil
}

// GetByType 获取预定义类型的池
func (m *Manager) GetByType(typ Type) (*Pool, error) {
	return m.Get(string(typ))
}

// Submit 提交任务到指定池
func (m *Manager) Submit(name string, task func()) error {
	p, err := m.Get(name)
	if err != nil {
		return err
	}
	return p.Submit(task)
}

// SubmitWithContext 提交带上下文的任务到指定池
func (m *Manager) SubmitWithContext(ctx context.Context, name string, task func()) error {
	p, err := m.Get(name)
	if err != nil {
		return err
	}
	return p.SubmitWithContext(ctx, task)
}

// List 返回所有已注册的池名称（已排序）
func (m *Manager) List() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	names := make([]string, 0, len(m.pools))
	for name := range m.pools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Stats 返回所有池的统计信息
func (m *Manager) Stats() map[string]Stats {
	m.mu.RLock()
	defer m.mu.RUnlock()

	stats := make(map[string]Stats, len(m.pools))
	for name, p := range m.pools {
		stats[name] = p.Stats()
	}
	return stats
}

// Release 释放指定池
func (m *Manager) Release(name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, exists := m.pools[name]
	if !exists {
		return fmt.Errorf("%w: %s", ErrPoolNotFound, name)
	}
	p.Release()
	delete(m.pools, name)
	return nil
}

// ReleaseAll 释放所有池
func (m *Manager) ReleaseAll() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.closed.Store(true)
	for _, p := range m.pools {
		p.Release()
	}
	m.pools = make(map[string]*Pool)
}

// ReleaseAllTimeout 带超时释放所有池，汇总每个池的超时错误
func (m *Manager) ReleaseAllTimeout(timeout time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.closed.Store(true)
	var errs []error
	for name, p := range m.pools {
		if err := p.ReleaseTimeout(timeout); err != nil {
			errs = append(errs, fmt.Errorf("释放池 '%s' 超时: %w", name, err))
		}
	}
	m.pools = make(map[string]*Pool)
	return utilerrors.NewAggregate(errs)
}
