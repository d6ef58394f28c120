// 包 health：依赖健康检查（PostgreSQL、Redis 等），周期心跳并对外提供汇总状态
package health

import (
	"context"
	"sort"
	"sync"
	"time"

	"gsm-api/internal/logger"
	"gsm-api/internal/metrics"
)

// Check：被检查的依赖
type Check interface {
	Name() string
	Heartbeat(ctx context.Context) error
}

type funcCheck struct {
	name string
	fn   func(ctx context.Context) error
}

func (f funcCheck) Name() string                        { return f.name }
func (f funcCheck) Heartbeat(ctx context.Context) error { return f.fn(ctx) }

// Func：以函数构造 Check
func Func(name string, fn func(ctx context.Context) error) Check {
	return funcCheck{name: name, fn: fn}
}

// Status：某依赖最近一次心跳的结果
type Status struct {
	Name    string    `json:"name"`
	Healthy bool      `json:"healthy"`
	Last    time.Time `json:"last"`
	Error   string    `json:"error,omitempty"`
}

// Manager：负责注册与心跳；注册时视为健康，之后以心跳结果为准
// 约束：心跳串行执行，单次超时 timeout；状态读写线程安全
type Manager struct {
	mu         sync.RWMutex
	cs         map[string]Check
	st         map[string]Status
	hbInterval time.Duration
	timeout    time.Duration
}

// NewManager：interval<=0 时取 10s
func NewManager(interval time.Duration) *Manager {
	if interval <= 0 {
		interval = 10 * time.Second
	}
	return &Manager{
		cs:         make(map[string]Check),
		st:         make(map[string]Status),
		hbInterval: interval,
		timeout:    2 * time.Second,
	}
}

func (m *Manager) Register(c Check) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cs[c.Name()] = c
	m.st[c.Name()] = Status{Name: c.Name(), Healthy: true, Last: time.Now()}
	metrics.ComponentUp.WithLabelValues(c.Name()).Set(1)
	logger.L().Info("health_check_registered", "name", c.Name())
}

// Start：立即执行一次心跳，之后按周期执行；ctx 取消时停止
func (m *Manager) Start(ctx context.Context) {
	m.Beat(ctx)
	t := time.NewTicker(m.hbInterval)
	go func() {
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				m.Beat(ctx)
			}
		}
	}()
}

// Beat：对全部依赖执行一次心跳
func (m *Manager) Beat(ctx context.Context) {
	m.mu.RLock()
	cs := make([]Check, 0, len(m.cs))
	for _, c := range m.cs {
		cs = append(cs, c)
	}
	m.mu.RUnlock()

	for _, c := range cs {
		hctx, cancel := context.WithTimeout(ctx, m.timeout)
		err := c.Heartbeat(hctx)
		cancel()
		s := Status{Name: c.Name(), Healthy: err == nil, Last: time.Now()}
		if err != nil {
			s.Error = err.Error()
			logger.L().Warn("health_heartbeat_fail", "name", c.Name(), "err", err)
			metrics.HeartbeatTotal.WithLabelValues(c.Name(), "fail").Inc()
			metrics.ComponentUp.WithLabelValues(c.Name()).Set(0)
		} else {
			logger.L().Debug("health_heartbeat_ok", "name", c.Name())
			metrics.HeartbeatTotal.WithLabelValues(c.Name(), "ok").Inc()
			metrics.ComponentUp.WithLabelValues(c.Name()).Set(1)
		}
		m.mu.Lock()
		m.st[c.Name()] = s
		m.mu.Unlock()
	}
}

// Statuses：按名称排序的全部状态
func (m *Manager) Statuses() []Status {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Status, 0, len(m.st))
	for _, s := range m.st {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Healthy：全部依赖健康
func (m *Manager) Healthy() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, s := range m.st {
		if !s.Healthy {
			return false
		}
	}
	return true
}
