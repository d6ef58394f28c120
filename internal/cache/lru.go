package cache

import (
	"container/list"
	"context"
	"sync"
	"time"

	"gsm-api/internal/metrics"
)

// LRU：进程内缓存，容量满时淘汰最久未用的键
// 约束：条目有效期取 Set 的 ttl 与 maxTTL 中较小者，多副本部署时以此限制各进程的陈旧窗口
type LRU struct {
	mu     sync.Mutex
	cap    int
	maxTTL time.Duration
	lst    *list.List
	dict   map[string]*list.Element
	now    func() time.Time
}

type entry struct {
	k   string
	v   []byte
	exp time.Time
}

// NewLRU：capacity<=0 时返回 nil（禁用）
func NewLRU(capacity int, maxTTL time.Duration) *LRU {
	if capacity <= 0 {
		return nil
	}
	return &LRU{cap: capacity, maxTTL: maxTTL, lst: list.New(), dict: make(map[string]*list.Element), now: time.Now}
}

func (c *LRU) Enabled() bool { return c != nil }

func (c *LRU) Get(_ context.Context, k string) ([]byte, bool) {
	if c == nil {
		return nil, false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := c.dict[k]; ok {
		it := e.Value.(entry)
		if c.now().Before(it.exp) {
			c.lst.MoveToFront(e)
			metrics.CacheHits.WithLabelValues("local").Inc()
			return it.v, true
		}
		c.lst.Remove(e)
		delete(c.dict, k)
	}
	metrics.CacheMisses.WithLabelValues("local").Inc()
	return nil, false
}

func (c *LRU) Set(_ context.Context, k string, v []byte, ttl time.Duration) {
	if c == nil {
		return
	}
	if c.maxTTL > 0 && (ttl <= 0 || ttl > c.maxTTL) {
		ttl = c.maxTTL
	}
	if ttl <= 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	it := entry{k: k, v: v, exp: c.now().Add(ttl)}
	if e, ok := c.dict[k]; ok {
		e.Value = it
		c.lst.MoveToFront(e)
		return
	}
	c.dict[k] = c.lst.PushFront(it)
	for c.lst.Len() > c.cap {
		back := c.lst.Back()
		delete(c.dict, back.Value.(entry).k)
		c.lst.Remove(back)
	}
}

func (c *LRU) Flush(context.Context) int64 {
	if c == nil {
		return 0
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	n := int64(c.lst.Len())
	c.lst.Init()
	c.dict = make(map[string]*list.Element)
	return n
}

// Len：当前条目数（含已过期未清理的）
func (c *LRU) Len() int {
	if c == nil {
		return 0
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lst.Len()
}
