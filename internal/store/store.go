// 包 store：切片登记（AOI）与星表数据访问层。
// PostgreSQL 为生产实现，memstore 为内存实现，CachedTiles 为 Redis 读穿缓存装饰
package store

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrTileConflict：并发登记同一切片未能收敛，可安全重试
	ErrTileConflict = errors.New("tile registration conflict")
	// ErrStorageUnavailable：底层存储故障，原始错误同时被包装
	ErrStorageUnavailable = errors.New("storage unavailable")
)

// AOI：已登记的切片（area of interest）
// RangeMin/RangeMax 为切片覆盖的叶子单元 id 闭区间
type AOI struct {
	ID           int64     `json:"id"`
	Tile         uint64    `json:"tile"`
	Level        int       `json:"level"`
	RangeMin     uint64    `json:"range_min"`
	RangeMax     uint64    `json:"range_max"`
	CreatedAt    time.Time `json:"created_at"`
	LastAccessed time.Time `json:"last_accessed"`
	Hits         int64     `json:"hits"`
}

// Source：星表中的点源
// Position 为入库时由 RA/Dec 计算的叶子单元 id，之后不再变化
type Source struct {
	ID                 int64   `json:"id"`
	Name               string  `json:"name"`
	TelescopeID        int64   `json:"telescope_id"`
	Telescope          string  `json:"telescope"`
	RA                 float64 `json:"ra"`
	RAError            float64 `json:"ra_error"`
	Dec                float64 `json:"dec"`
	DecError           float64 `json:"dec_error"`
	Position           uint64  `json:"position"`
	MajorAxis          float64 `json:"major_axis"`
	MajorAxisError     float64 `json:"major_axis_error"`
	MinorAxis          float64 `json:"minor_axis"`
	MinorAxisError     float64 `json:"minor_axis_error"`
	PositionAngle      float64 `json:"position_angle"`
	PositionAngleError float64 `json:"position_angle_error"`
	FluxWide           float64 `json:"flux_wide"`
	FluxWideError      float64 `json:"flux_wide_error"`
	FOV                float64 `json:"fov"`
}

type Telescope struct {
	ID           int64   `json:"id"`
	Name         string  `json:"name"`
	FrequencyMin float64 `json:"frequency_min"`
	FrequencyMax float64 `json:"frequency_max"`
	Ingested     bool    `json:"ingested"`
}

type Band struct {
	ID          int64   `json:"id"`
	TelescopeID int64   `json:"telescope_id"`
	Centre      float64 `json:"centre"`
	Width       float64 `json:"width"`
}

// WideBandData：宽带拟合参数；缺失列为 nil
type WideBandData struct {
	Bck                *float64
	LocalRMS           *float64
	IntFlux            *float64
	IntFluxError       *float64
	ResidMean          *float64
	ResidSD            *float64
	AbsFluxPctError    *float64
	FitFluxPctError    *float64
	APSF               *float64
	BPSF               *float64
	PAPSF              *float64
	SpectralIndex      *float64
	SpectralIndexError *float64
}

// NarrowBandData：单个窄带的测量值；缺失列为 nil
type NarrowBandData struct {
	BandID       int64
	Bck          *float64
	LocalRMS     *float64
	IntFlux      *float64
	IntFluxError *float64
	ResidMean    *float64
	ResidSD      *float64
	APSF         *float64
	BPSF         *float64
	PAPSF        *float64
	A            *float64
	B            *float64
	PA           *float64
	Flux         *float64
	FluxError    *float64
}

// SourceRecord：一行星表数据（点源及其宽带/窄带测量）
type SourceRecord struct {
	Source Source
	Wide   *WideBandData
	Narrow []NarrowBandData
}

// Criteria：等值过滤条件，nil 字段不参与过滤，非 nil 字段之间为 AND
type Criteria struct {
	RA        *float64
	Dec       *float64
	FluxWide  *float64
	Telescope *string
	FOV       *float64
}

// Empty：无任何过滤条件
func (c Criteria) Empty() bool {
	return c.RA == nil && c.Dec == nil && c.FluxWide == nil && c.Telescope == nil && c.FOV == nil
}

// Match：内存实现使用的等值判断
func (c Criteria) Match(s Source) bool {
	if c.RA != nil && s.RA != *c.RA {
		return false
	}
	if c.Dec != nil && s.Dec != *c.Dec {
		return false
	}
	if c.FluxWide != nil && s.FluxWide != *c.FluxWide {
		return false
	}
	if c.Telescope != nil && s.Telescope != *c.Telescope {
		return false
	}
	if c.FOV != nil && s.FOV != *c.FOV {
		return false
	}
	return true
}

// Totals：本地天空模型查询统计
type Totals struct {
	Total        int64 `json:"total"`
	Today        int64 `json:"today"`
	TotalSources int64 `json:"total_sources"`
	TodaySources int64 `json:"today_sources"`
}

// IngestRun：一次文件导入的记录
type IngestRun struct {
	ID         string
	Telescope  string
	File       string
	StartedAt  time.Time
	FinishedAt time.Time
	Inserted   int64
	Skipped    int64
	Status     string
	Error      string
}

// TileIndex：切片登记与包含关系连接
type TileIndex interface {
	// Register：幂等登记；已存在时刷新 last_accessed 并累加 hits
	Register(ctx context.Context, tile uint64) (AOI, error)
	// RegisterAll：批量 Register，结果与 tiles 一一对应
	RegisterAll(ctx context.Context, tiles []uint64) ([]AOI, error)
	// SourcesWithin：位置索引落在任一切片范围内的点源，按 id 升序且不重复
	SourcesWithin(ctx context.Context, aoiIDs []int64) ([]Source, error)
	// Prune：删除 olderThan 之前未再访问的登记，返回删除数
	Prune(ctx context.Context, olderThan time.Time) (int64, error)
}

// Catalog：星表读取
type Catalog interface {
	Find(ctx context.Context, c Criteria) ([]Source, error)
	All(ctx context.Context) ([]Source, error)
}

// CatalogWriter：导入侧写入
type CatalogWriter interface {
	// LoadOrCreateTelescope：按名称加载或创建；overwrite 时清除已导入标记。
	// 返回的 Ingested=true 表示该星表已导入完成，调用方应跳过
	LoadOrCreateTelescope(ctx context.Context, t Telescope, overwrite bool) (Telescope, error)
	MarkIngested(ctx context.Context, telescopeID int64) error
	// LoadOrCreateBands：按中心频率加载或创建，返回 centre→Band
	LoadOrCreateBands(ctx context.Context, telescopeID int64, centres []float64) (map[float64]Band, error)
	// WriteBatch：单事务写入；同一望远镜下同名点源跳过，返回 (写入数, 跳过数)
	WriteBatch(ctx context.Context, telescopeID int64, recs []SourceRecord) (inserted, skipped int, err error)
	RecordIngestRun(ctx context.Context, run IngestRun) error
}

// Stats：查询计数
type Stats interface {
	IncrStats(ctx context.Context, sources int) error
	GetTotals(ctx context.Context) (*Totals, error)
}
