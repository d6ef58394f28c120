// 程序入口：仅负责读取配置、初始化依赖并启动服务；API 注册在 internal/api 以便扩展
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"gsm-api/internal/api"
	"gsm-api/internal/cache"
	"gsm-api/internal/config"
	"gsm-api/internal/health"
	"gsm-api/internal/ingest"
	"gsm-api/internal/logger"
	"gsm-api/internal/lsm"
	"gsm-api/internal/metrics"
	"gsm-api/internal/middleware"
	"gsm-api/internal/migrate"
	"gsm-api/internal/sky"
	"gsm-api/internal/store"
	"gsm-api/internal/utils"
)

const localCacheTTL = 30 * time.Second

func main() {
	_ = godotenv.Load(".env")
	_ = godotenv.Load(filepath.Join("data", "env", ".env"))
	l := logger.Setup()
	l.Debug("log_init_ok")

	cfg, err := config.Load()
	if err != nil {
		l.Error("config_error", "err", err)
		os.Exit(1)
	}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := utils.OpenPostgres(ctx, cfg.Postgres)
	if err != nil {
		l.Error("db_open_error", "err", err)
		os.Exit(1)
	}
	defer db.Close()
	l.Info("db_open_ok")
	if err := migrate.EnsureSchema(db); err != nil {
		l.Error("schema_error", "err", err)
		os.Exit(1)
	}
	st := store.AttachDB(db)

	rc := utils.OpenRedis(ctx, cfg.Redis)
	if rc == nil {
		l.Info("redis_disabled")
	} else {
		defer rc.Close()
	}
	// 进程内层只保留短时间，其他副本导入后的陈旧窗口以此为上限
	lsmCache := cache.NewChain(localCacheTTL,
		cache.NewLRU(cfg.LSMLocalCacheSize, localCacheTTL),
		cache.New(rc, cache.LSMPrefix))
	var tiles store.TileIndex = st
	if rc != nil && cfg.LSMCacheTTL > 0 {
		tiles = store.NewCachedTiles(st, cache.New(rc, cache.AOIPrefix), cfg.LSMCacheTTL)
	}

	tiler, err := sky.NewTiler(cfg.TileLevel, cfg.MaxTiles)
	if err != nil {
		l.Error("tiler_error", "err", err)
		os.Exit(1)
	}
	asm := lsm.NewAssembler(tiler, tiles, lsm.Options{Stats: st, Cache: lsmCache, CacheTTL: cfg.LSMCacheTTL})
	l.Info("lsm_ready", "level", tiler.Level(), "max_tiles", cfg.MaxTiles, "cache", lsmCache.Enabled())

	store.StartReclaimer(ctx, tiles, cfg.AOIRetention, cfg.AOIPruneInterval)

	hm := health.NewManager(10 * time.Second)
	hm.Register(health.Func("postgres", db.PingContext))
	if rc != nil {
		hm.Register(health.Func("redis", func(ctx context.Context) error { return rc.Ping(ctx).Err() }))
	}
	hm.Start(ctx)

	deps := api.Deps{Assembler: asm, Catalog: st, Stats: st, Health: hm}
	if ing := startIngest(ctx, cfg, st, asm); ing != nil {
		deps.Reloader = ing
	}

	mux := http.NewServeMux()
	mux.Handle(cfg.APIBase+"/", http.StripPrefix(cfg.APIBase, api.BuildRoutes(deps)))
	mux.Handle(cfg.APIBase+"/metrics", metrics.Handler())

	var handler http.Handler = mux
	if cfg.RateLimitEnabled {
		handler = middleware.NewRateLimiter(cfg.RateLimitQPS, cfg.RateLimitBurst).Wrap(handler)
		l.Info("rate_limit_enabled", "qps", cfg.RateLimitQPS, "burst", cfg.RateLimitBurst)
	}
	handler = logger.AccessMiddleware(l)(handler)
	handler = middleware.RequestID(handler)

	s := &http.Server{Addr: cfg.Addr, Handler: handler, ReadHeaderTimeout: 10 * time.Second}
	go func() {
		<-ctx.Done()
		sctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		l.Info("shutdown_begin")
		if err := s.Shutdown(sctx); err != nil {
			l.Error("shutdown_error", "err", err)
		}
	}()

	if cfg.TLS.Enable {
		if err := utils.EnsureSelfSignedCert(cfg.TLS.CertPath, cfg.TLS.KeyPath, "gsm-api.local"); err != nil {
			l.Error("tls_cert_error", "err", err)
			os.Exit(1)
		}
		l.Info("listening_tls", "addr", cfg.Addr, "cert", cfg.TLS.CertPath)
		err = s.ListenAndServeTLS(cfg.TLS.CertPath, cfg.TLS.KeyPath)
	} else {
		l.Info("listening", "addr", cfg.Addr)
		err = s.ListenAndServe()
	}
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		l.Error("listen_error", "err", err)
		os.Exit(1)
	}
	l.Info("shutdown_done")
}

// startIngest：加载星表定义并启动目录监听与每周重扫；无定义文件时返回 nil
func startIngest(ctx context.Context, cfg *config.Config, w store.CatalogWriter, asm *lsm.Assembler) *ingest.Ingester {
	l := logger.L()
	defs, err := config.LoadCatalogs(cfg.CatalogConfig)
	if err != nil {
		l.Warn("catalog_config_unavailable", "path", cfg.CatalogConfig, "err", err)
		return nil
	}
	ing := ingest.New(w, defs, cfg.CatalogDir, ingest.Options{OnDone: asm.Invalidate})
	l.Info("catalog_config_ok", "catalogs", len(defs), "dir", cfg.CatalogDir)

	if cfg.CatalogWatch {
		wt, err := ingest.NewWatcher(ing, ingest.DefaultSettle)
		if err != nil {
			l.Error("catalog_watch_error", "err", err)
		} else if err := wt.Watch(ctx, cfg.CatalogDir); err != nil {
			l.Error("catalog_watch_error", "dir", cfg.CatalogDir, "err", err)
		}
	}
	loc, _ := time.LoadLocation(cfg.IngestTZ)
	ingest.StartWeekly(ctx, loc, cfg.IngestWeekday, cfg.IngestHour, ing.Reload)
	return ing
}
