// 星表导入工具：按星表定义把 CSV 文件或目录写入 PostgreSQL
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/fatih/color"
	"github.com/joho/godotenv"

	"gsm-api/internal/cache"
	"gsm-api/internal/config"
	"gsm-api/internal/ingest"
	"gsm-api/internal/logger"
	"gsm-api/internal/migrate"
	"gsm-api/internal/store"
	"gsm-api/internal/utils"
)

// 约束：-file 与 -dir 二选一，均为空时扫描 CATALOG_DIR；
// 已导入的望远镜默认跳过，-overwrite 时重新导入（同名点源仍跳过）
func main() {
	_ = godotenv.Load(".env")
	_ = godotenv.Load(filepath.Join("data", "env", ".env"))
	l := logger.Setup()

	cfg, err := config.Load()
	if err != nil {
		l.Error("config_error", "err", err)
		os.Exit(1)
	}
	file := flag.String("file", "", "single catalog file to ingest")
	dir := flag.String("dir", cfg.CatalogDir, "directory of catalog files")
	defsPath := flag.String("config", cfg.CatalogConfig, "catalog definition JSON")
	overwrite := flag.Bool("overwrite", false, "re-ingest telescopes already marked as ingested")
	batch := flag.Int("batch", ingest.DefaultBatchSize, "rows per transaction")
	flag.Parse()

	defs, err := config.LoadCatalogs(*defsPath)
	if err != nil {
		l.Error("catalog_config_error", "err", err)
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
	if err := migrate.EnsureSchema(db); err != nil {
		l.Error("schema_error", "err", err)
		os.Exit(1)
	}
	opts := ingest.Options{BatchSize: *batch}
	// 运行中的服务共享 Redis 结果缓存，导入后清空以免继续返回旧的天空模型
	if rc := utils.OpenRedis(ctx, cfg.Redis); rc != nil {
		defer rc.Close()
		opts.OnDone = ingest.InvalidateCache(cache.New(rc, cache.LSMPrefix))
	} else {
		l.Info("redis_disabled")
	}
	ing := ingest.New(store.AttachDB(db), defs, *dir, opts)

	var results []ingest.Result
	if *file != "" {
		var res ingest.Result
		res, err = ing.IngestFile(ctx, *file, *overwrite)
		results = append(results, res)
	} else {
		results, err = ing.IngestDir(ctx, *dir, *overwrite)
	}
	printSummary(results)
	if err != nil {
		l.Error("ingest_failed", "err", err)
		os.Exit(1)
	}
}

// printSummary：每个望远镜一行的导入汇总，输出到 stdout
func printSummary(results []ingest.Result) {
	ok := color.New(color.FgGreen, color.Bold).SprintFunc()
	skip := color.New(color.FgYellow).SprintFunc()
	warn := color.New(color.FgRed).SprintFunc()
	for _, r := range results {
		if r.AlreadyIngested {
			fmt.Printf("%-12s %s\n", r.Telescope, skip("already ingested (use -overwrite)"))
			continue
		}
		invalid := fmt.Sprint(r.Invalid)
		if r.Invalid > 0 {
			invalid = warn(invalid)
		}
		fmt.Printf("%-12s inserted=%s duplicates=%d invalid=%s run=%s\n",
			r.Telescope, ok(r.Inserted), r.Duplicates, invalid, r.RunID)
	}
}
