package main

import (
	"context"
	"flag"
	"os"
	"time"

	"github.com/joho/godotenv"

	"gsm-api/internal/cache"
	"gsm-api/internal/config"
	"gsm-api/internal/logger"
	"gsm-api/internal/store"
	"gsm-api/internal/utils"
)

// 切片登记回收：删除最后访问早于保留窗口的 AOI
// 背景：每次本地天空模型请求都会登记切片，服务内回收器关闭时由定时任务调用本工具。
// 约束：保留窗口默认取 AOI_RETENTION_H；必须为正数，避免误删全部登记。
func main() {
	_ = godotenv.Load(".env")
	l := logger.Setup()
	cfg, err := config.Load()
	if err != nil {
		l.Error("config_error", "err", err)
		os.Exit(1)
	}
	retention := flag.Duration("retention", cfg.AOIRetention, "delete tiles not accessed within this window")
	flag.Parse()
	if *retention <= 0 {
		l.Error("aoi_prune_retention_invalid", "retention", retention.String())
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()
	db, err := utils.OpenPostgres(ctx, cfg.Postgres)
	if err != nil {
		l.Error("db_open_error", "err", err)
		os.Exit(1)
	}
	defer db.Close()
	// 服务端以 Redis 缓存切片登记时，回收后需同时清空，避免缓存指向已删除的登记
	var idx store.TileIndex = store.AttachDB(db)
	if rc := utils.OpenRedis(ctx, cfg.Redis); rc != nil {
		defer rc.Close()
		idx = store.NewCachedTiles(idx, cache.New(rc, cache.AOIPrefix), cfg.LSMCacheTTL)
	}
	if _, err := store.PruneOnce(ctx, idx, *retention, time.Now()); err != nil {
		os.Exit(1)
	}
}
