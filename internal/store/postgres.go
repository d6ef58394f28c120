package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"gsm-api/internal/logger"
	"gsm-api/internal/metrics"
	"gsm-api/internal/sky"

	"github.com/lib/pq"
)

// Postgres：PostgreSQL 实现，持有连接池
// 约束：uint64 单元 id 以 int64 位模式存为 BIGINT；同一切片范围不跨面，区间比较保持有序
type Postgres struct {
	db *sql.DB
}

func AttachDB(db *sql.DB) *Postgres { return &Postgres{db: db} }

// Close：关闭连接池
func (s *Postgres) Close() error { return s.db.Close() }

func (s *Postgres) DB() *sql.DB { return s.db }

// unavailable：驱动错误统一包装为 ErrStorageUnavailable
func unavailable(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, ErrStorageUnavailable, err)
}

// conflict：唯一冲突、序列化失败与死锁视为可重试的登记冲突
func conflict(err error) bool {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) {
		return false
	}
	switch pqErr.Code {
	case "23505", "40001", "40P01":
		return true
	}
	return false
}

const aoiCols = "id, tile, level, range_min, range_max, created_at, last_accessed, hits"

func scanAOI(sc interface{ Scan(...any) error }) (AOI, error) {
	var a AOI
	var tile, lo, hi int64
	if err := sc.Scan(&a.ID, &tile, &a.Level, &lo, &hi, &a.CreatedAt, &a.LastAccessed, &a.Hits); err != nil {
		return AOI{}, err
	}
	a.Tile, a.RangeMin, a.RangeMax = uint64(tile), uint64(lo), uint64(hi)
	return a, nil
}

// Register：INSERT … ON CONFLICT DO UPDATE … RETURNING，并发登记同一切片只产生一行
func (s *Postgres) Register(ctx context.Context, tile uint64) (AOI, error) {
	lo, hi := sky.TileRange(tile)
	row := s.db.QueryRowContext(ctx, `INSERT INTO aois(tile, level, range_min, range_max)
        VALUES($1, $2, $3, $4)
        ON CONFLICT (tile) DO UPDATE SET last_accessed=now(), hits=aois.hits+1
        RETURNING `+aoiCols, int64(tile), sky.TileLevel(tile), int64(lo), int64(hi))
	a, err := scanAOI(row)
	if err != nil {
		if conflict(err) {
			return AOI{}, fmt.Errorf("register tile %s: %w", sky.TileToken(tile), ErrTileConflict)
		}
		return AOI{}, unavailable("register tile", err)
	}
	metrics.TilesRegisteredTotal.Inc()
	return a, nil
}

// RegisterAll：单条语句批量登记；tiles 需已去重（同一语句不能两次更新同一行）
func (s *Postgres) RegisterAll(ctx context.Context, tiles []uint64) ([]AOI, error) {
	if len(tiles) == 0 {
		return nil, nil
	}
	ids := make([]int64, len(tiles))
	levels := make([]int64, len(tiles))
	los := make([]int64, len(tiles))
	his := make([]int64, len(tiles))
	for i, t := range tiles {
		lo, hi := sky.TileRange(t)
		ids[i], levels[i], los[i], his[i] = int64(t), int64(sky.TileLevel(t)), int64(lo), int64(hi)
	}
	rows, err := s.db.QueryContext(ctx, `INSERT INTO aois(tile, level, range_min, range_max)
        SELECT * FROM unnest($1::bigint[], $2::smallint[], $3::bigint[], $4::bigint[])
        ON CONFLICT (tile) DO UPDATE SET last_accessed=now(), hits=aois.hits+1
        RETURNING `+aoiCols, pq.Array(ids), pq.Array(levels), pq.Array(los), pq.Array(his))
	if err != nil {
		if conflict(err) {
			return nil, fmt.Errorf("register %d tiles: %w", len(tiles), ErrTileConflict)
		}
		return nil, unavailable("register tiles", err)
	}
	defer rows.Close()
	byTile := make(map[uint64]AOI, len(tiles))
	for rows.Next() {
		a, err := scanAOI(rows)
		if err != nil {
			return nil, unavailable("scan aoi", err)
		}
		byTile[a.Tile] = a
	}
	if err := rows.Err(); err != nil {
		if conflict(err) {
			return nil, fmt.Errorf("register %d tiles: %w", len(tiles), ErrTileConflict)
		}
		return nil, unavailable("register tiles", err)
	}
	out := make([]AOI, 0, len(tiles))
	for _, t := range tiles {
		a, ok := byTile[t]
		if !ok {
			return nil, fmt.Errorf("register tile %s: %w", sky.TileToken(t), ErrTileConflict)
		}
		out = append(out, a)
	}
	metrics.TilesRegisteredTotal.Add(float64(len(out)))
	logger.L().Debug("db_register_tiles", "tiles", len(out))
	return out, nil
}

const sourceCols = `s.id, s.name, s.telescope_id, t.name, s.ra_deg, s.ra_error, s.dec_deg, s.dec_error, s.cell_id,
    s.major_axis, s.major_axis_error, s.minor_axis, s.minor_axis_error, s.position_angle, s.position_angle_error,
    s.flux_wide, s.flux_wide_error, s.fov`

func scanSources(rows *sql.Rows) ([]Source, error) {
	defer rows.Close()
	out := []Source{}
	for rows.Next() {
		var src Source
		var cell int64
		if err := rows.Scan(&src.ID, &src.Name, &src.TelescopeID, &src.Telescope, &src.RA, &src.RAError, &src.Dec, &src.DecError, &cell,
			&src.MajorAxis, &src.MajorAxisError, &src.MinorAxis, &src.MinorAxisError, &src.PositionAngle, &src.PositionAngleError,
			&src.FluxWide, &src.FluxWideError, &src.FOV); err != nil {
			return nil, err
		}
		src.Position = uint64(cell)
		// 不同层级的登记可能重叠，按 id 有序去重
		if n := len(out); n > 0 && out[n-1].ID == src.ID {
			continue
		}
		out = append(out, src)
	}
	return out, rows.Err()
}

// SourcesWithin：cell_id 落在登记区间内的点源（cell_id 上有索引）
func (s *Postgres) SourcesWithin(ctx context.Context, aoiIDs []int64) ([]Source, error) {
	if len(aoiIDs) == 0 {
		return []Source{}, nil
	}
	rows, err := s.db.QueryContext(ctx, `SELECT `+sourceCols+`
        FROM aois a
        JOIN sources s ON s.cell_id BETWEEN a.range_min AND a.range_max
        JOIN telescopes t ON t.id = s.telescope_id
        WHERE a.id = ANY($1)
        ORDER BY s.id`, pq.Array(aoiIDs))
	if err != nil {
		return nil, unavailable("sources within", err)
	}
	out, err := scanSources(rows)
	if err != nil {
		return nil, unavailable("sources within", err)
	}
	logger.L().Debug("db_sources_within", "aois", len(aoiIDs), "sources", len(out))
	return out, nil
}

// Prune：删除长期未访问的登记
func (s *Postgres) Prune(ctx context.Context, olderThan time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, "DELETE FROM aois WHERE last_accessed < $1", olderThan)
	if err != nil {
		return 0, unavailable("prune aois", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

// Find：非 nil 条件逐个拼接为等值 AND；无条件时返回全部
func (s *Postgres) Find(ctx context.Context, c Criteria) ([]Source, error) {
	var where []string
	var args []any
	add := func(col string, v any) {
		args = append(args, v)
		where = append(where, col+"=$"+strconv.Itoa(len(args)))
	}
	if c.RA != nil {
		add("s.ra_deg", *c.RA)
	}
	if c.Dec != nil {
		add("s.dec_deg", *c.Dec)
	}
	if c.FluxWide != nil {
		add("s.flux_wide", *c.FluxWide)
	}
	if c.Telescope != nil {
		add("t.name", *c.Telescope)
	}
	if c.FOV != nil {
		add("s.fov", *c.FOV)
	}
	q := `SELECT ` + sourceCols + ` FROM sources s JOIN telescopes t ON t.id = s.telescope_id`
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}
	q += " ORDER BY s.id"
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, unavailable("find sources", err)
	}
	out, err := scanSources(rows)
	if err != nil {
		return nil, unavailable("find sources", err)
	}
	logger.L().Debug("db_find_sources", "filters", len(where), "sources", len(out))
	return out, nil
}

// All：整个星表
func (s *Postgres) All(ctx context.Context) ([]Source, error) { return s.Find(ctx, Criteria{}) }

// IncrStats：递增累计与当日的查询次数、返回点源数
func (s *Postgres) IncrStats(ctx context.Context, sources int) error {
	if _, err := s.db.ExecContext(ctx, "UPDATE lsm_stats_total SET total_queries=total_queries+1, total_sources=total_sources+$1 WHERE id=1", sources); err != nil {
		return unavailable("incr stats", err)
	}
	if _, err := s.db.ExecContext(ctx, `INSERT INTO lsm_stats_daily(day, queries, sources) VALUES(current_date, 1, $1)
        ON CONFLICT (day) DO UPDATE SET queries=lsm_stats_daily.queries+1, sources=lsm_stats_daily.sources+EXCLUDED.sources`, sources); err != nil {
		return unavailable("incr stats", err)
	}
	logger.L().Debug("stats_incr", "sources", sources)
	return nil
}

// GetTotals：当日尚无记录时当日计数为 0
func (s *Postgres) GetTotals(ctx context.Context) (*Totals, error) {
	var t Totals
	if err := s.db.QueryRowContext(ctx, "SELECT total_queries, total_sources FROM lsm_stats_total WHERE id=1").Scan(&t.Total, &t.TotalSources); err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, unavailable("get totals", err)
	}
	err := s.db.QueryRowContext(ctx, "SELECT queries, sources FROM lsm_stats_daily WHERE day=current_date").Scan(&t.Today, &t.TodaySources)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, unavailable("get totals", err)
	}
	logger.L().Debug("stats_totals", "total", t.Total, "today", t.Today)
	return &t, nil
}
