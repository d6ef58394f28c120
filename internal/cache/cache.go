// 包 cache：结果缓存。Redis 为跨进程共享层（带熔断），LRU 为进程内热点层，Chain 组合两者；
// 所有实现在后端不可用时按未命中处理，不向上抛错
package cache

import (
	"context"
	"errors"
	"time"

	"gsm-api/internal/logger"
	"gsm-api/internal/metrics"

	"github.com/redis/go-redis/v9"
	gobreaker "github.com/sony/gobreaker/v2"
)

// Redis 键前缀：服务与命令行工具共用，导入或回收后按前缀清空
const (
	LSMPrefix = "gsm:lsm:"
	AOIPrefix = "gsm:aoi:"
)

// Cache：字节值缓存；Flush 返回删除的键数
type Cache interface {
	Enabled() bool
	Get(ctx context.Context, key string) ([]byte, bool)
	Set(ctx context.Context, key string, val []byte, ttl time.Duration)
	Flush(ctx context.Context) int64
}

var (
	_ Cache = (*Redis)(nil)
	_ Cache = (*LRU)(nil)
	_ Cache = (*Chain)(nil)
)

// Redis：键统一加 prefix；nil 客户端表示禁用
type Redis struct {
	rc     *redis.Client
	prefix string
	cb     *gobreaker.CircuitBreaker[[]byte]
}

// New：rc 为 nil 时返回的缓存恒未命中
// 约束：连续 5 次失败熔断 10s，期间不再访问 Redis
func New(rc *redis.Client, prefix string) *Redis {
	c := &Redis{rc: rc, prefix: prefix}
	c.cb = gobreaker.NewCircuitBreaker[[]byte](gobreaker.Settings{
		Name:        "redis:" + prefix,
		MaxRequests: 1,
		Interval:    30 * time.Second,
		Timeout:     10 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, redis.Nil)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.L().Warn("cache_breaker_state", "name", name, "from", from.String(), "to", to.String())
		},
	})
	return c
}

// Enabled：是否配置了 Redis
func (c *Redis) Enabled() bool { return c != nil && c.rc != nil }

// Get：命中返回 (值, true)
func (c *Redis) Get(ctx context.Context, key string) ([]byte, bool) {
	if !c.Enabled() {
		return nil, false
	}
	b, err := c.cb.Execute(func() ([]byte, error) {
		return c.rc.Get(ctx, c.prefix+key).Bytes()
	})
	switch {
	case err == nil:
		metrics.CacheHits.WithLabelValues(c.prefix).Inc()
		return b, true
	case errors.Is(err, redis.Nil):
	default:
		logger.L().Debug("cache_get_error", "key", c.prefix+key, "err", err)
	}
	metrics.CacheMisses.WithLabelValues(c.prefix).Inc()
	return nil, false
}

// Set：写失败只记录日志
func (c *Redis) Set(ctx context.Context, key string, val []byte, ttl time.Duration) {
	if !c.Enabled() {
		return
	}
	_, err := c.cb.Execute(func() ([]byte, error) {
		return nil, c.rc.Set(ctx, c.prefix+key, val, ttl).Err()
	})
	if err != nil {
		logger.L().Debug("cache_set_error", "key", c.prefix+key, "err", err)
	}
}

// Flush：删除 prefix 下的全部键，返回删除数
func (c *Redis) Flush(ctx context.Context) int64 {
	if !c.Enabled() {
		return 0
	}
	var n int64
	iter := c.rc.Scan(ctx, 0, c.prefix+"*", 500).Iterator()
	batch := make([]string, 0, 500)
	del := func() {
		if len(batch) == 0 {
			return
		}
		if d, err := c.rc.Del(ctx, batch...).Result(); err == nil {
			n += d
		}
		batch = batch[:0]
	}
	for iter.Next(ctx) {
		batch = append(batch, iter.Val())
		if len(batch) == cap(batch) {
			del()
		}
	}
	del()
	if err := iter.Err(); err != nil {
		logger.L().Warn("cache_flush_error", "prefix", c.prefix, "err", err)
	}
	logger.L().Debug("cache_flush", "prefix", c.prefix, "deleted", n)
	return n
}
