package cache

import (
	"context"
	"time"
)

// Chain：按顺序查询各层，首个命中即返回并回填更靠前的层；写入与清空作用于全部层
// nil 或未启用的层被跳过
type Chain struct {
	tiers []Cache
	fill  time.Duration
}

// NewChain：fill 为下层命中后回填上层的时长
func NewChain(fill time.Duration, tiers ...Cache) *Chain {
	c := &Chain{fill: fill}
	for _, t := range tiers {
		if t != nil && t.Enabled() {
			c.tiers = append(c.tiers, t)
		}
	}
	return c
}

func (c *Chain) Enabled() bool { return c != nil && len(c.tiers) > 0 }

func (c *Chain) Get(ctx context.Context, key string) ([]byte, bool) {
	if c == nil {
		return nil, false
	}
	for i, t := range c.tiers {
		if b, ok := t.Get(ctx, key); ok {
			for _, up := range c.tiers[:i] {
				up.Set(ctx, key, b, c.fill)
			}
			return b, true
		}
	}
	return nil, false
}

func (c *Chain) Set(ctx context.Context, key string, val []byte, ttl time.Duration) {
	if c == nil {
		return
	}
	for _, t := range c.tiers {
		t.Set(ctx, key, val, ttl)
	}
}

func (c *Chain) Flush(ctx context.Context) int64 {
	if c == nil {
		return 0
	}
	var n int64
	for _, t := range c.tiers {
		n += t.Flush(ctx)
	}
	return n
}
