package store

import (
	"context"
	"time"

	"gsm-api/internal/cache"
	"gsm-api/internal/sky"

	"github.com/goccy/go-json"
)

// CachedTiles：切片登记的 Redis 读穿缓存
// 约束：命中时不回写数据库，last_accessed/hits 仅在未命中时刷新；
// ttl 必须远小于登记保留时长，否则缓存中的登记可能已被回收
type CachedTiles struct {
	TileIndex
	c   *cache.Redis
	ttl time.Duration
}

func NewCachedTiles(inner TileIndex, c *cache.Redis, ttl time.Duration) *CachedTiles {
	return &CachedTiles{TileIndex: inner, c: c, ttl: ttl}
}

func (t *CachedTiles) get(ctx context.Context, tile uint64) (AOI, bool) {
	b, ok := t.c.Get(ctx, sky.TileToken(tile))
	if !ok {
		return AOI{}, false
	}
	var a AOI
	if err := json.Unmarshal(b, &a); err != nil || a.Tile != tile {
		return AOI{}, false
	}
	return a, true
}

func (t *CachedTiles) put(ctx context.Context, a AOI) {
	if t.ttl <= 0 {
		return
	}
	if b, err := json.Marshal(a); err == nil {
		t.c.Set(ctx, sky.TileToken(a.Tile), b, t.ttl)
	}
}

func (t *CachedTiles) Register(ctx context.Context, tile uint64) (AOI, error) {
	if a, ok := t.get(ctx, tile); ok {
		return a, nil
	}
	a, err := t.TileIndex.Register(ctx, tile)
	if err != nil {
		return AOI{}, err
	}
	t.put(ctx, a)
	return a, nil
}

// RegisterAll：仅未命中的切片下发到底层存储
func (t *CachedTiles) RegisterAll(ctx context.Context, tiles []uint64) ([]AOI, error) {
	out := make([]AOI, len(tiles))
	var missIdx []int
	var miss []uint64
	for i, tile := range tiles {
		if a, ok := t.get(ctx, tile); ok {
			out[i] = a
			continue
		}
		missIdx = append(missIdx, i)
		miss = append(miss, tile)
	}
	if len(miss) == 0 {
		return out, nil
	}
	got, err := t.TileIndex.RegisterAll(ctx, miss)
	if err != nil {
		return nil, err
	}
	for j, a := range got {
		out[missIdx[j]] = a
		t.put(ctx, a)
	}
	return out, nil
}

// Prune：回收后清空缓存，避免返回已删除的登记
func (t *CachedTiles) Prune(ctx context.Context, olderThan time.Time) (int64, error) {
	n, err := t.TileIndex.Prune(ctx, olderThan)
	if err != nil {
		return n, err
	}
	t.c.Flush(ctx)
	return n, nil
}
