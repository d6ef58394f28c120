package ingest

import (
	"context"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"gsm-api/internal/logger"
)

// DefaultSettle：文件最后一次写入后等待多久再导入
const DefaultSettle = 2 * time.Second

// Watcher：监听星表目录，新增或改写的 .csv 在静默 settle 后导入
type Watcher struct {
	ing    *Ingester
	fw     *fsnotify.Watcher
	settle time.Duration

	mu      sync.Mutex
	pending map[string]*time.Timer
	queue   chan string
}

func NewWatcher(ing *Ingester, settle time.Duration) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if settle <= 0 {
		settle = DefaultSettle
	}
	return &Watcher{
		ing:     ing,
		fw:      fw,
		settle:  settle,
		pending: make(map[string]*time.Timer),
		queue:   make(chan string, 64),
	}, nil
}

// Watch：开始监听 dir，ctx 取消后停止并关闭底层 watcher
func (w *Watcher) Watch(ctx context.Context, dir string) error {
	if err := w.fw.Add(dir); err != nil {
		w.fw.Close()
		return err
	}
	l := logger.L().With("dir", dir)
	l.Info("catalog_watch_start")
	go w.worker(ctx)
	go func() {
		defer w.fw.Close()
		for {
			select {
			case <-ctx.Done():
				w.stopTimers()
				return
			case ev, ok := <-w.fw.Events:
				if !ok {
					return
				}
				if !strings.EqualFold(filepath.Ext(ev.Name), ".csv") {
					continue
				}
				if ev.Op&(fsnotify.Create|fsnotify.Write) == 0 {
					continue
				}
				w.schedule(ev.Name)
			case err, ok := <-w.fw.Errors:
				if !ok {
					return
				}
				l.Error("catalog_watch_error", "err", err)
			}
		}
	}()
	return nil
}

// schedule：同一文件的连续事件合并为一次导入
func (w *Watcher) schedule(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if t, ok := w.pending[path]; ok {
		t.Reset(w.settle)
		return
	}
	w.pending[path] = time.AfterFunc(w.settle, func() {
		w.mu.Lock()
		delete(w.pending, path)
		w.mu.Unlock()
		select {
		case w.queue <- path:
		default:
			logger.L().Warn("catalog_watch_queue_full", "file", filepath.Base(path))
		}
	})
}

func (w *Watcher) stopTimers() {
	w.mu.Lock()
	defer w.mu.Unlock()
	for p, t := range w.pending {
		t.Stop()
		delete(w.pending, p)
	}
}

func (w *Watcher) worker(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case p := <-w.queue:
			res, err := w.ing.IngestFile(ctx, p, false)
			if err != nil {
				logger.L().Error("catalog_watch_ingest_error", "file", filepath.Base(p), "err", err)
				continue
			}
			logger.L().Info("catalog_watch_ingested", "file", filepath.Base(p),
				"inserted", res.Inserted, "already_ingested", res.AlreadyIngested)
		}
	}
}
