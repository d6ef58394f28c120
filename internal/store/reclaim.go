package store

import (
	"context"
	"time"

	"gsm-api/internal/logger"
	"gsm-api/internal/metrics"
)

// PruneOnce：删除 retention 之前最后访问的登记
func PruneOnce(ctx context.Context, idx TileIndex, retention time.Duration, now time.Time) (int64, error) {
	n, err := idx.Prune(ctx, now.Add(-retention))
	if err != nil {
		logger.L().Error("aoi_prune_error", "err", err)
		return 0, err
	}
	metrics.AOIPrunedTotal.Add(float64(n))
	logger.L().Info("aoi_prune_done", "deleted", n, "retention", retention.String())
	return n, nil
}

// StartReclaimer：按 interval 周期回收，ctx 取消后退出；retention<=0 时不启动
func StartReclaimer(ctx context.Context, idx TileIndex, retention, interval time.Duration) {
	if retention <= 0 || interval <= 0 {
		logger.L().Info("aoi_reclaimer_disabled")
		return
	}
	go func() {
		tk := time.NewTicker(interval)
		defer tk.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case now := <-tk.C:
				_, _ = PruneOnce(ctx, idx, retention, now)
			}
		}
	}()
	logger.L().Info("aoi_reclaimer_started", "retention", retention.String(), "interval", interval.String())
}
