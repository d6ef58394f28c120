// 包 ingest：星表 CSV 导入、目录监听与每周定时重扫，作为离线数据通道
package ingest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"gsm-api/internal/cache"
	"gsm-api/internal/config"
	"gsm-api/internal/logger"
	"gsm-api/internal/metrics"
	"gsm-api/internal/store"
)

// DefaultBatchSize：每批提交的行数
const DefaultBatchSize = 5000

// progressEvery：每处理多少行输出一次进度
const progressEvery = 100

// ErrNoDefinition：文件不属于任何已配置的星表
var ErrNoDefinition = errors.New("no catalog definition matches file")

// CalculatePercentage：dividend/divisor 的百分比，保留两位小数；divisor 为 0 时返回 0
func CalculatePercentage(dividend, divisor float64) float64 {
	if divisor == 0 {
		return 0
	}
	return math.Round(dividend/divisor*100*100) / 100
}

// Options：导入器参数
type Options struct {
	// BatchSize：<=0 时使用 DefaultBatchSize
	BatchSize int
	// OnDone：有新数据写入后调用（如清空本地天空模型缓存）
	OnDone func(ctx context.Context)
}

// InvalidateCache：导入写入新点源后清空 c，作为 Options.OnDone；c 未启用时返回 nil
// 约束：独立运行的导入工具不持有 Assembler，直接清空共享的结果缓存
func InvalidateCache(c cache.Cache) func(ctx context.Context) {
	if c == nil || !c.Enabled() {
		return nil
	}
	return func(ctx context.Context) {
		n := c.Flush(ctx)
		logger.L().Info("ingest_cache_invalidated", "deleted", n)
	}
}

// Ingester：按星表定义把 CSV 写入 CatalogWriter
// 同一时刻只运行一个导入，监听、定时与手动重扫共用
type Ingester struct {
	w      store.CatalogWriter
	defs   []config.CatalogDefinition
	dir    string
	batch  int
	onDone func(ctx context.Context)
	mu     sync.Mutex
}

func New(w store.CatalogWriter, defs []config.CatalogDefinition, dir string, opts Options) *Ingester {
	if opts.BatchSize <= 0 {
		opts.BatchSize = DefaultBatchSize
	}
	return &Ingester{w: w, defs: defs, dir: dir, batch: opts.BatchSize, onDone: opts.OnDone}
}

// Result：一次星表导入的结果
type Result struct {
	RunID     string
	Telescope string
	Files     []string
	Inserted  int
	// Duplicates：同一望远镜下已存在同名点源而跳过的行
	Duplicates int
	// Invalid：缺少名称或坐标非法而跳过的行
	Invalid int
	// AlreadyIngested：望远镜已导入且未要求覆盖，未读取任何文件
	AlreadyIngested bool
}

// Definition：按文件名查找星表定义
func (i *Ingester) Definition(path string) (config.CatalogDefinition, bool) {
	for _, d := range i.defs {
		if d.Matches(path) {
			return d, true
		}
	}
	return config.CatalogDefinition{}, false
}

// IngestFile：导入单个文件
func (i *Ingester) IngestFile(ctx context.Context, path string, overwrite bool) (Result, error) {
	def, ok := i.Definition(path)
	if !ok {
		return Result{}, fmt.Errorf("%s: %w", filepath.Base(path), ErrNoDefinition)
	}
	return i.IngestCatalog(ctx, def, []string{path}, overwrite)
}

// IngestDir：扫描目录并按星表分组导入；单个星表失败不影响其余星表，错误合并返回
func (i *Ingester) IngestDir(ctx context.Context, dir string, overwrite bool) ([]Result, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	files := make(map[string][]string)
	for _, e := range entries {
		if e.IsDir() || !strings.EqualFold(filepath.Ext(e.Name()), ".csv") {
			continue
		}
		p := filepath.Join(dir, e.Name())
		def, ok := i.Definition(p)
		if !ok {
			logger.L().Warn("ingest_unmatched_file", "file", e.Name())
			continue
		}
		files[def.Name] = append(files[def.Name], p)
	}
	var (
		out  []Result
		errs []error
	)
	for _, def := range i.defs {
		paths := files[def.Name]
		if len(paths) == 0 {
			continue
		}
		sort.Strings(paths)
		res, err := i.IngestCatalog(ctx, def, paths, overwrite)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", def.Name, err))
			if ctx.Err() != nil {
				break
			}
			continue
		}
		out = append(out, res)
	}
	return out, errors.Join(errs...)
}

// Reload：重扫配置的星表目录，不覆盖已导入的望远镜
func (i *Ingester) Reload(ctx context.Context) {
	l := logger.L()
	l.Info("ingest_reload_start", "dir", i.dir)
	res, err := i.IngestDir(ctx, i.dir, false)
	if err != nil {
		l.Error("ingest_reload_error", "err", err)
	}
	l.Info("ingest_reload_done", "catalogs", len(res))
}

// IngestCatalog：导入一个望远镜的全部文件
// 流程：加载或创建望远镜（已导入则跳过）→ 频段 → 分批写入 → 标记已导入 → 记录导入批次
func (i *Ingester) IngestCatalog(ctx context.Context, def config.CatalogDefinition, paths []string, overwrite bool) (Result, error) {
	i.mu.Lock()
	defer i.mu.Unlock()

	l := logger.L().With("telescope", def.Name)
	res := Result{RunID: uuid.NewString(), Telescope: def.Name}
	for _, p := range paths {
		res.Files = append(res.Files, filepath.Base(p))
	}
	tel, err := i.w.LoadOrCreateTelescope(ctx, store.Telescope{
		Name:         def.Name,
		FrequencyMin: def.FrequencyMin,
		FrequencyMax: def.FrequencyMax,
	}, overwrite)
	if err != nil {
		return res, err
	}
	if tel.Ingested {
		l.Info("ingest_skip_ingested")
		res.AlreadyIngested = true
		return res, nil
	}

	start := time.Now()
	l.Info("ingest_start", "run_id", res.RunID, "files", res.Files)
	err = i.ingest(ctx, def, tel.ID, paths, &res)
	if err == nil {
		err = i.w.MarkIngested(ctx, tel.ID)
	}
	elapsed := time.Since(start)
	metrics.IngestDurationMs.WithLabelValues(def.Name).Observe(float64(elapsed.Milliseconds()))

	run := store.IngestRun{
		ID:         res.RunID,
		Telescope:  def.Name,
		File:       strings.Join(res.Files, ","),
		StartedAt:  start,
		FinishedAt: time.Now(),
		Inserted:   int64(res.Inserted),
		Skipped:    int64(res.Duplicates + res.Invalid),
		Status:     "done",
	}
	if err != nil {
		run.Status, run.Error = "failed", err.Error()
	}
	// 取消后仍需落库
	if rerr := i.w.RecordIngestRun(context.WithoutCancel(ctx), run); rerr != nil {
		l.Error("ingest_run_record_error", "err", rerr)
	}
	if res.Inserted > 0 && i.onDone != nil {
		i.onDone(context.WithoutCancel(ctx))
	}
	if err != nil {
		l.Error("ingest_error", "run_id", res.RunID, "err", err, "inserted", res.Inserted)
		return res, err
	}
	l.Info("ingest_done", "run_id", res.RunID, "inserted", res.Inserted,
		"duplicates", res.Duplicates, "invalid", res.Invalid, "ms", elapsed.Milliseconds())
	return res, nil
}

func (i *Ingester) ingest(ctx context.Context, def config.CatalogDefinition, telID int64, paths []string, res *Result) error {
	bands, err := i.w.LoadOrCreateBands(ctx, telID, def.Bands)
	if err != nil {
		return err
	}
	for _, p := range paths {
		if err := i.ingestFile(ctx, def, telID, p, bands, res); err != nil {
			return fmt.Errorf("%s: %w", filepath.Base(p), err)
		}
	}
	return nil
}

func (i *Ingester) ingestFile(ctx context.Context, def config.CatalogDefinition, telID int64, path string, bands map[float64]store.Band, res *Result) error {
	l := logger.L().With("telescope", def.Name, "file", filepath.Base(path))
	rr, err := openRows(path, def.HeadingAlias, def.HeadingMissing)
	if err != nil {
		return err
	}
	defer rr.Close()

	batch := make([]store.SourceRecord, 0, i.batch)
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		ins, dup, err := i.w.WriteBatch(ctx, telID, batch)
		if err != nil {
			return err
		}
		res.Inserted += ins
		res.Duplicates += dup
		metrics.IngestSourcesTotal.WithLabelValues(def.Name, "inserted").Add(float64(ins))
		metrics.IngestSourcesTotal.WithLabelValues(def.Name, "duplicate").Add(float64(dup))
		batch = batch[:0]
		return nil
	}

	rows := 0
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		row, err := rr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return err
		}
		rows++
		if rows%progressEvery == 0 {
			l.Debug("ingest_progress", "rows", rows, "pct", rr.Progress())
		}
		rec, err := buildRecord(def, row, bands)
		if err != nil {
			res.Invalid++
			metrics.IngestSourcesTotal.WithLabelValues(def.Name, "invalid").Inc()
			l.Warn("ingest_row_skipped", "line", rr.Line(), "err", err)
			continue
		}
		batch = append(batch, rec)
		if len(batch) >= i.batch {
			if err := flush(); err != nil {
				return err
			}
		}
	}
	if err := flush(); err != nil {
		return err
	}
	l.Info("ingest_file_done", "rows", rows, "pct", 100.0)
	return nil
}
