package memstore

import (
	"context"
	"fmt"

	"gsm-api/internal/store"
)

func (s *Store) LoadOrCreateTelescope(ctx context.Context, t store.Telescope, overwrite bool) (store.Telescope, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.telescopes[t.Name]
	if !ok {
		cur = &store.Telescope{ID: s.id(), Name: t.Name, FrequencyMin: t.FrequencyMin, FrequencyMax: t.FrequencyMax}
		s.telescopes[t.Name] = cur
	} else if overwrite {
		cur.Ingested = false
	}
	return *cur, nil
}

func (s *Store) MarkIngested(ctx context.Context, telescopeID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range s.telescopes {
		if t.ID == telescopeID {
			t.Ingested = true
			return nil
		}
	}
	return fmt.Errorf("mark ingested: telescope %d not found", telescopeID)
}

func (s *Store) LoadOrCreateBands(ctx context.Context, telescopeID int64, centres []float64) (map[float64]store.Band, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.bands[telescopeID] == nil {
		s.bands[telescopeID] = map[float64]store.Band{}
	}
	out := make(map[float64]store.Band, len(centres))
	for _, c := range centres {
		b, ok := s.bands[telescopeID][c]
		if !ok {
			b = store.Band{ID: s.id(), TelescopeID: telescopeID, Centre: c}
			s.bands[telescopeID][c] = b
		}
		out[c] = b
	}
	return out, nil
}

func (s *Store) WriteBatch(ctx context.Context, telescopeID int64, recs []store.SourceRecord) (inserted, skipped int, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	name := ""
	for _, t := range s.telescopes {
		if t.ID == telescopeID {
			name = t.Name
		}
	}
	if name == "" {
		return 0, 0, fmt.Errorf("write batch: telescope %d not found", telescopeID)
	}
	for _, r := range recs {
		src := r.Source
		src.TelescopeID, src.Telescope = telescopeID, name
		id, ok := s.insertSource(src)
		if !ok {
			skipped++
			continue
		}
		if r.Wide != nil {
			s.wide[id] = *r.Wide
		}
		if len(r.Narrow) > 0 {
			s.narrow[id] = append([]store.NarrowBandData(nil), r.Narrow...)
		}
		inserted++
	}
	return inserted, skipped, nil
}

func (s *Store) RecordIngestRun(ctx context.Context, run store.IngestRun) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.runs[run.ID] = run
	return nil
}

// IngestRun：按 id 读取导入记录
func (s *Store) IngestRun(id string) (store.IngestRun, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.runs[id]
	return r, ok
}

// Measurements：某点源的宽带与窄带数据
func (s *Store) Measurements(sourceID int64) (*store.WideBandData, []store.NarrowBandData) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var w *store.WideBandData
	if v, ok := s.wide[sourceID]; ok {
		w = &v
	}
	return w, s.narrow[sourceID]
}

// Telescope：按名称读取
func (s *Store) Telescope(name string) (store.Telescope, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.telescopes[name]
	if !ok {
		return store.Telescope{}, false
	}
	return *t, true
}

func (s *Store) IncrStats(ctx context.Context, sources int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	day := s.now().Format("2006-01-02")
	d := s.daily[day]
	d[0]++
	d[1] += int64(sources)
	s.daily[day] = d
	s.totals.Total++
	s.totals.TotalSources += int64(sources)
	return nil
}

func (s *Store) GetTotals(ctx context.Context) (*store.Totals, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t := s.totals
	d := s.daily[s.now().Format("2006-01-02")]
	t.Today, t.TodaySources = d[0], d[1]
	return &t, nil
}
