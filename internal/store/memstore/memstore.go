// 包 memstore：store 接口的内存实现，用于测试与无数据库的本地运行。
// 点源按位置索引有序保存，切片包含查询为区间二分查找
package memstore

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"gsm-api/internal/logger"
	"gsm-api/internal/sky"
	"gsm-api/internal/store"
)

type Store struct {
	mu sync.RWMutex

	sources []store.Source // id 升序
	byPos   []int          // sources 下标，按 Position 升序
	names   map[int64]map[string]bool

	telescopes map[string]*store.Telescope
	bands      map[int64]map[float64]store.Band
	wide       map[int64]store.WideBandData
	narrow     map[int64][]store.NarrowBandData

	aois     map[uint64]*store.AOI
	aoiTiles map[int64]uint64

	totals store.Totals
	daily  map[string][2]int64
	runs   map[string]store.IngestRun

	nextID int64
	now    func() time.Time
}

var (
	_ store.TileIndex     = (*Store)(nil)
	_ store.Catalog       = (*Store)(nil)
	_ store.CatalogWriter = (*Store)(nil)
	_ store.Stats         = (*Store)(nil)
)

func New() *Store {
	return &Store{
		names:      map[int64]map[string]bool{},
		telescopes: map[string]*store.Telescope{},
		bands:      map[int64]map[float64]store.Band{},
		wide:       map[int64]store.WideBandData{},
		narrow:     map[int64][]store.NarrowBandData{},
		aois:       map[uint64]*store.AOI{},
		aoiTiles:   map[int64]uint64{},
		daily:      map[string][2]int64{},
		runs:       map[string]store.IngestRun{},
		now:        time.Now,
	}
}

// SetClock：替换时间源（测试 Prune 用）
func (s *Store) SetClock(now func() time.Time) {
	s.mu.Lock()
	s.now = now
	s.mu.Unlock()
}

func (s *Store) id() int64 {
	s.nextID++
	return s.nextID
}

// AddSource：直接写入一个点源；Position 为 0 时按 RA/Dec 计算
func (s *Store) AddSource(src store.Source) (store.Source, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if src.Telescope == "" {
		src.Telescope = "default"
	}
	t := s.telescope(src.Telescope)
	src.TelescopeID = t.ID
	if _, ok := s.insertSource(src); !ok {
		return store.Source{}, fmt.Errorf("source %q already exists for %s", src.Name, src.Telescope)
	}
	return s.sources[len(s.sources)-1], nil
}

func (s *Store) telescope(name string) *store.Telescope {
	t, ok := s.telescopes[name]
	if !ok {
		t = &store.Telescope{ID: s.id(), Name: name}
		s.telescopes[name] = t
	}
	return t
}

// insertSource：调用方持有写锁
func (s *Store) insertSource(src store.Source) (int64, bool) {
	if s.names[src.TelescopeID] == nil {
		s.names[src.TelescopeID] = map[string]bool{}
	}
	if src.Name != "" && s.names[src.TelescopeID][src.Name] {
		return 0, false
	}
	if src.Position == 0 {
		src.Position = sky.PositionIndex(sky.Position{RA: src.RA, Dec: src.Dec})
	}
	src.ID = s.id()
	s.names[src.TelescopeID][src.Name] = true
	s.sources = append(s.sources, src)
	idx := len(s.sources) - 1
	at := sort.Search(len(s.byPos), func(i int) bool { return s.sources[s.byPos[i]].Position > src.Position })
	s.byPos = append(s.byPos, 0)
	copy(s.byPos[at+1:], s.byPos[at:])
	s.byPos[at] = idx
	return src.ID, true
}

func (s *Store) Register(ctx context.Context, tile uint64) (store.AOI, error) {
	if sky.TileLevel(tile) < 0 {
		return store.AOI{}, fmt.Errorf("register tile %d: invalid cell id: %w", tile, store.ErrStorageUnavailable)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.register(tile), nil
}

func (s *Store) register(tile uint64) store.AOI {
	now := s.now()
	if a, ok := s.aois[tile]; ok {
		a.LastAccessed = now
		a.Hits++
		return *a
	}
	lo, hi := sky.TileRange(tile)
	a := &store.AOI{ID: s.id(), Tile: tile, Level: sky.TileLevel(tile), RangeMin: lo, RangeMax: hi, CreatedAt: now, LastAccessed: now, Hits: 1}
	s.aois[tile] = a
	s.aoiTiles[a.ID] = tile
	return *a
}

func (s *Store) RegisterAll(ctx context.Context, tiles []uint64) ([]store.AOI, error) {
	for _, t := range tiles {
		if sky.TileLevel(t) < 0 {
			return nil, fmt.Errorf("register tile %d: invalid cell id: %w", t, store.ErrStorageUnavailable)
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]store.AOI, 0, len(tiles))
	for _, t := range tiles {
		out = append(out, s.register(t))
	}
	return out, nil
}

// SourcesWithin：每个登记区间在 byPos 上二分定位起点后顺序扫描
func (s *Store) SourcesWithin(ctx context.Context, aoiIDs []int64) ([]store.Source, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	hit := map[int]struct{}{}
	for _, id := range aoiIDs {
		tile, ok := s.aoiTiles[id]
		if !ok {
			continue
		}
		a := s.aois[tile]
		i := sort.Search(len(s.byPos), func(i int) bool { return s.sources[s.byPos[i]].Position >= a.RangeMin })
		for ; i < len(s.byPos) && s.sources[s.byPos[i]].Position <= a.RangeMax; i++ {
			hit[s.byPos[i]] = struct{}{}
		}
	}
	idx := make([]int, 0, len(hit))
	for i := range hit {
		idx = append(idx, i)
	}
	sort.Ints(idx)
	out := make([]store.Source, 0, len(idx))
	for _, i := range idx {
		out = append(out, s.sources[i])
	}
	logger.L().Debug("mem_sources_within", "aois", len(aoiIDs), "sources", len(out))
	return out, nil
}

func (s *Store) Prune(ctx context.Context, olderThan time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for tile, a := range s.aois {
		if a.LastAccessed.Before(olderThan) {
			delete(s.aoiTiles, a.ID)
			delete(s.aois, tile)
			n++
		}
	}
	return n, nil
}

// AOIs：当前登记数
func (s *Store) AOIs() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.aois)
}

func (s *Store) Find(ctx context.Context, c store.Criteria) ([]store.Source, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := []store.Source{}
	for _, src := range s.sources {
		if c.Match(src) {
			out = append(out, src)
		}
	}
	return out, nil
}

func (s *Store) All(ctx context.Context) ([]store.Source, error) {
	return s.Find(ctx, store.Criteria{})
}
