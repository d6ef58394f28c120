package ingest

import (
	"context"
	"time"

	"gsm-api/internal/logger"
)

// nextWeekdayAt：计算下一次 weekday 指定小时的时间点（严格晚于 now）
// 约束：基于 loc 时区与整点 hour；不支持分钟级
func nextWeekdayAt(now time.Time, loc *time.Location, weekday time.Weekday, hour int) time.Time {
	now = now.In(loc)
	for i := 0; i <= 7; i++ {
		d := now.AddDate(0, 0, i)
		if d.Weekday() != weekday {
			continue
		}
		t := time.Date(d.Year(), d.Month(), d.Day(), hour, 0, 0, 0, loc)
		if t.After(now) {
			return t
		}
	}
	d := now.AddDate(0, 0, 7)
	return time.Date(d.Year(), d.Month(), d.Day(), hour, 0, 0, 0, loc)
}

// StartWeekly：每周 weekday 的 hour 点在 loc 时区运行 job
// 错误由 job 自行记录，任务继续调度；ctx 取消后退出
func StartWeekly(ctx context.Context, loc *time.Location, weekday time.Weekday, hour int, job func(ctx context.Context)) {
	l := logger.L()
	next := nextWeekdayAt(time.Now(), loc, weekday, hour)
	l.Info("ingest_schedule", "next", next)
	go func() {
		t := time.NewTimer(time.Until(next))
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
			}
			l.Info("ingest_scheduled_run", "at", next)
			job(ctx)
			next = nextWeekdayAt(time.Now(), loc, weekday, hour)
			t.Reset(time.Until(next))
		}
	}()
}
