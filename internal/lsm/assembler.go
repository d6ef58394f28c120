package lsm

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gsm-api/internal/cache"
	"gsm-api/internal/logger"
	"gsm-api/internal/metrics"
	"gsm-api/internal/sky"
	"gsm-api/internal/store"

	"github.com/goccy/go-json"
)

// Options：可选协作者；零值表示不统计、不缓存
type Options struct {
	Stats    store.Stats
	Cache    cache.Cache
	CacheTTL time.Duration
}

// Assembler：无状态，唯一的共享可变资源是 TileIndex 中的切片登记
type Assembler struct {
	tiler *sky.Tiler
	tiles store.TileIndex
	opts  Options
}

func NewAssembler(tiler *sky.Tiler, tiles store.TileIndex, opts Options) *Assembler {
	return &Assembler{tiler: tiler, tiles: tiles, opts: opts}
}

// Build：组装本地天空模型
// 异常：区域非法返回包装 sky.ErrInvalidRegion 的错误；存储错误原样包装上抛，不重试、不返回部分结果
func (a *Assembler) Build(ctx context.Context, req Request) (*Model, error) {
	start := time.Now()
	m, err := a.build(ctx, req)
	metrics.LSMDurationMs.Observe(float64(time.Since(start).Milliseconds()))
	switch {
	case err == nil:
		metrics.LSMRequestsTotal.WithLabelValues("ok").Inc()
	case errors.Is(err, sky.ErrInvalidRegion):
		metrics.LSMRequestsTotal.WithLabelValues("invalid").Inc()
	default:
		metrics.LSMRequestsTotal.WithLabelValues("error").Inc()
	}
	return m, err
}

func (a *Assembler) build(ctx context.Context, req Request) (*Model, error) {
	box, region, err := req.resolve()
	if err != nil {
		return nil, err
	}
	key := cacheKey(a.tiler.Level(), box, req.Filter)
	if a.cacheEnabled() {
		if b, ok := a.opts.Cache.Get(ctx, key); ok {
			var m Model
			if err := json.Unmarshal(b, &m); err == nil {
				// 缓存命中时仍回显本次请求的区域
				m.Region = region
				logger.L().Debug("lsm_cache_hit", "key", key, "count", m.Count)
				a.record(ctx, m.Count)
				return &m, nil
			}
		}
	}

	tiles, err := a.tiler.TilesForBox(box)
	if err != nil {
		return nil, err
	}
	metrics.LSMTiles.Observe(float64(len(tiles)))
	aois, err := a.tiles.RegisterAll(ctx, tiles)
	if err != nil {
		return nil, fmt.Errorf("register %d tiles: %w", len(tiles), err)
	}
	ids := make([]int64, len(aois))
	for i, x := range aois {
		ids[i] = x.ID
	}
	sources, err := a.tiles.SourcesWithin(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("sources within %d tiles: %w", len(ids), err)
	}

	m := &Model{Region: region, Sources: make([]SourceView, 0, len(sources))}
	for _, s := range sources {
		if req.Filter.Match(s) {
			m.Sources = append(m.Sources, View(s))
		}
	}
	m.Count = len(m.Sources)
	metrics.LSMSources.Observe(float64(m.Count))
	logger.L().Info("lsm_build_done", "ra", region.RA, "dec", region.Dec, "tiles", len(tiles), "count", m.Count)

	if a.cacheEnabled() && a.opts.CacheTTL > 0 {
		if b, err := json.Marshal(m); err == nil {
			a.opts.Cache.Set(ctx, key, b, a.opts.CacheTTL)
		}
	}
	a.record(ctx, m.Count)
	return m, nil
}

func (a *Assembler) cacheEnabled() bool {
	return a.opts.Cache != nil && a.opts.Cache.Enabled()
}

// record：统计失败不影响本次请求
func (a *Assembler) record(ctx context.Context, count int) {
	if a.opts.Stats == nil {
		return
	}
	if err := a.opts.Stats.IncrStats(ctx, count); err != nil {
		logger.L().Warn("lsm_stats_error", "err", err)
	}
}

// Invalidate：星表变化后清空结果缓存
func (a *Assembler) Invalidate(ctx context.Context) {
	if !a.cacheEnabled() {
		return
	}
	if n := a.opts.Cache.Flush(ctx); n > 0 {
		logger.L().Info("lsm_cache_invalidated", "deleted", n)
	}
}
