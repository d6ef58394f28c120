package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLRUEviction(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	c := NewLRU(2, time.Minute)
	c.Set(ctx, "a", []byte("1"), time.Minute)
	c.Set(ctx, "b", []byte("2"), time.Minute)
	_, ok := c.Get(ctx, "a")
	require.True(t, ok)
	c.Set(ctx, "c", []byte("3"), time.Minute)

	_, ok = c.Get(ctx, "b")
	assert.False(t, ok, "least recently used key evicted")
	v, ok := c.Get(ctx, "a")
	assert.True(t, ok)
	assert.Equal(t, []byte("1"), v)
	assert.Equal(t, 2, c.Len())
}

func TestLRUExpiry(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	c := NewLRU(8, 10*time.Second)
	c.now = func() time.Time { return now }

	c.Set(ctx, "k", []byte("v"), time.Hour)
	now = now.Add(9 * time.Second)
	_, ok := c.Get(ctx, "k")
	assert.True(t, ok)
	now = now.Add(2 * time.Second)
	_, ok = c.Get(ctx, "k")
	assert.False(t, ok, "capped by maxTTL")
	assert.Zero(t, c.Len())
}

func TestLRUDisabledAndFlush(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	off := NewLRU(0, time.Minute)
	assert.False(t, off.Enabled())
	off.Set(ctx, "k", []byte("v"), time.Minute)
	_, ok := off.Get(ctx, "k")
	assert.False(t, ok)

	c := NewLRU(4, time.Minute)
	c.Set(ctx, "a", []byte("1"), time.Minute)
	c.Set(ctx, "b", []byte("2"), time.Minute)
	assert.Equal(t, int64(2), c.Flush(ctx))
	_, ok = c.Get(ctx, "a")
	assert.False(t, ok)
}

func TestChainBackfill(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	l1 := NewLRU(4, time.Minute)
	l2 := NewLRU(4, time.Hour)
	ch := NewChain(30*time.Second, l1, New(nil, "x:"), l2)
	require.True(t, ch.Enabled())
	assert.Len(t, ch.tiers, 2, "disabled tiers skipped")

	l2.Set(ctx, "k", []byte("v"), time.Hour)
	v, ok := ch.Get(ctx, "k")
	require.True(t, ok)
	assert.Equal(t, []byte("v"), v)
	v, ok = l1.Get(ctx, "k")
	assert.True(t, ok, "backfilled into upper tier")
	assert.Equal(t, []byte("v"), v)

	ch.Set(ctx, "j", []byte("w"), time.Minute)
	assert.Equal(t, 2, l1.Len())
	assert.Equal(t, int64(4), ch.Flush(ctx))

	assert.False(t, NewChain(time.Minute, New(nil, "x:"), NewLRU(0, 0)).Enabled())
}
