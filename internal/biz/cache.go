package biz

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/kart-io/logger"
	goredis "github.com/redis/go-redis/v9"

	redisopts "github.com/kart-io/chunkflow/pkg/options/redis"
	"github.com/kart-io/chunkflow/pkg/utils/json"
)

// SearchCacheConfig 搜索结果缓存配置。
type SearchCacheConfig struct {
	// Enabled 是否启用缓存。
	Enabled bool
	// TTL 缓存过期时间。
	TTL time.Duration
	// KeyPrefix 缓存键前缀。
	KeyPrefix string
}

// DefaultSearchCacheConfig 返回默认搜索缓存配置。
func DefaultSearchCacheConfig() *SearchCacheConfig {
	return &SearchCacheConfig{
		Enabled:   false,
		TTL:       5 * time.Minute,
		KeyPrefix: "chunkflow:search:",
	}
}

// SearchCache 缓存搜索结果。任何分块、组件或标签写入都会按前缀清空缓存，
// 因此读到的结果不会比最近一次写入更旧。Redis 故障只会退化为未命中。
type SearchCache struct {
	redis  goredis.UniversalClient
	config *SearchCacheConfig
}

// NewSearchCache 创建搜索缓存。redis 为 nil 时缓存关闭。
func NewSearchCache(redis goredis.UniversalClient, config *SearchCacheConfig) *SearchCache {
	if config == nil {
		config = DefaultSearchCacheConfig()
	}
	return &SearchCache{
		redis:  redis,
		config: config,
	}
}

// NewSearchCacheFromOptions 按 Redis 配置创建搜索缓存，键前缀为
// KeyPrefix + "search:"。client 为 nil 时缓存关闭。
func NewSearchCacheFromOptions(client goredis.UniversalClient, opts *redisopts.Options) *SearchCache {
	if client == nil || opts == nil || !opts.Enabled {
		return NewSearchCache(nil, nil)
	}
	return NewSearchCache(client, &SearchCacheConfig{
		Enabled:   true,
		TTL:       opts.CacheTTL,
		KeyPrefix: opts.KeyPrefix + "search:",
	})
}

func (c *SearchCache) enabled() bool {
	return c != nil && c.config.Enabled && c.redis != nil && c.config.TTL > 0
}

// key 基于查询类型和查询体生成缓存键（SHA256）。
func (c *SearchCache) key(kind string, query any) (string, error) {
	data, err := json.Marshal(query)
	if err != nil {
		return "", err
	}
	hash := sha256.Sum256(append([]byte(kind+":"), data...))
	return c.config.KeyPrefix + kind + ":" + hex.EncodeToString(hash[:]), nil
}

// Get 读取缓存，命中时解码到 out 并返回 true。
func (c *SearchCache) Get(ctx context.Context, kind string, query, out any) bool {
	if !c.enabled() {
		return false
	}
	key, err := c.key(kind, query)
	if err != nil {
		return false
	}

	data, err := c.redis.Get(ctx, key).Bytes()
	if err != nil {
		if err != goredis.Nil {
			logger.Warnw("failed to get from search cache", "error", err.Error(), "key", key)
		}
		return false
	}
	if err := json.Unmarshal(data, out); err != nil {
		logger.Warnw("failed to unmarshal cached search result", "error", err.Error(), "key", key)
		_ = c.redis.Del(ctx, key).Err()
		return false
	}
	logger.Debugw("search cache hit", "kind", kind, "key", key)
	return true
}

// Set 写入缓存，失败只记录日志。
func (c *SearchCache) Set(ctx context.Context, kind string, query, result any) {
	if !c.enabled() {
		return
	}
	key, err := c.key(kind, query)
	if err != nil {
		return
	}
	data, err := json.Marshal(result)
	if err != nil {
		logger.Warnw("failed to marshal search result for caching", "error", err.Error())
		return
	}
	if err := c.redis.Set(ctx, key, data, c.config.TTL).Err(); err != nil {
		logger.Warnw("failed to set search cache", "error", err.Error(), "key", key)
	}
}

// Invalidate 清除所有搜索缓存，返回删除的键数。
func (c *SearchCache) Invalidate(ctx context.Context) int {
	if !c.enabled() {
		return 0
	}

	deleted := 0
	iter := c.redis.Scan(ctx, 0, c.config.KeyPrefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		if err := c.redis.Del(ctx, iter.Val()).Err(); err != nil {
			logger.Warnw("failed to delete search cache key", "error", err.Error(), "key", iter.Val())
			continue
		}
		deleted++
	}
	if err := iter.Err(); err != nil {
		logger.Warnw("error during search cache scan", "error", err.Error())
	}
	if deleted > 0 {
		logger.Debugw("invalidated search cache", "deleted_count", deleted)
	}
	return deleted
}
