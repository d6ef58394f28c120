package cache

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
)

// unreachable：指向无人监听端口的客户端
func unreachable() *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 50 * time.Millisecond,
		MaxRetries:  -1,
	})
}

func TestDisabled(t *testing.T) {
	t.Parallel()
	c := New(nil, "lsm:")
	assert.False(t, c.Enabled())
	c.Set(context.Background(), "k", []byte("v"), time.Minute)
	_, ok := c.Get(context.Background(), "k")
	assert.False(t, ok)
	assert.Zero(t, c.Flush(context.Background()))

	var nilCache *Redis
	assert.False(t, nilCache.Enabled())
}

func TestUnreachableFallsBackToMiss(t *testing.T) {
	t.Parallel()
	rc := unreachable()
	defer rc.Close()
	c := New(rc, "aoi:")
	ctx := context.Background()
	for i := 0; i < 8; i++ {
		c.Set(ctx, "k", []byte("v"), time.Minute)
		_, ok := c.Get(ctx, "k")
		assert.False(t, ok)
	}
}
