package sky

import (
	"fmt"
	"sort"

	"github.com/golang/geo/s2"
)

const (
	// MaxLevel：S2 叶子层级
	MaxLevel = 30
	// DefaultLevel：默认切片层级，单元边长约 0.3°
	DefaultLevel = 8
	// DefaultMaxTiles：单次请求在配置层级下的切片数上限，超出时改用更粗层级
	DefaultMaxTiles = 20000
)

// Tiler：将天区分解为同一层级的 S2 单元集合（默认配置层级，大天区时更粗）
// 约束：输出去重且升序；与边界相交或相切的单元一律纳入（宁多勿漏）
type Tiler struct {
	level    int
	maxTiles int
	coverer  *s2.RegionCoverer
}

// NewTiler：level ∈ [0,30]；maxTiles<=0 时取默认值
func NewTiler(level, maxTiles int) (*Tiler, error) {
	if level < 0 || level > MaxLevel {
		return nil, fmt.Errorf("tile level must be in [0, %d], got %d", MaxLevel, level)
	}
	if maxTiles <= 0 {
		maxTiles = DefaultMaxTiles
	}
	return &Tiler{
		level:    level,
		maxTiles: maxTiles,
		coverer:  &s2.RegionCoverer{MinLevel: level, MaxLevel: level, LevelMod: 1, MaxCells: maxTiles},
	}, nil
}

// Level：切片层级
func (t *Tiler) Level() int { return t.level }

// TilesForPolygon：角点围成的球面多边形（≥3 个不同角点，可无序）
func (t *Tiler) TilesForPolygon(corners []Position) ([]uint64, error) {
	loop, err := polygonLoop(corners)
	if err != nil {
		return nil, err
	}
	return t.cover(loop, corners), nil
}

// TilesForBox：等 RA / 等 Dec 边界的矩形，支持跨 0° 回绕
func (t *Tiler) TilesForBox(b Box) ([]uint64, error) {
	if err := b.Validate(); err != nil {
		return nil, err
	}
	anchors := b.Corners()
	if b.DecMax >= 90 {
		anchors = append(anchors, Position{RA: 0, Dec: 90})
	}
	if b.DecMin <= -90 {
		anchors = append(anchors, Position{RA: 0, Dec: -90})
	}
	return t.cover(b.Rect(), anchors), nil
}

// cover：anchors 为区域顶点（及触及的极点），与其共顶点的单元强制纳入；
// 顶点恰在单元公共边界上时叶子归属可能落到仅与区域相切的单元
// 约束：配置层级下超过 maxTiles 时逐级改用更粗的层级，结果仍是完整覆盖（仅更宽松）；第 0 层总是返回
func (t *Tiler) cover(region s2.Region, anchors []Position) []uint64 {
	for level := t.level; level > 0; level-- {
		if t.estimate(region, level) > t.maxTiles {
			continue
		}
		if out := t.coverAt(region, anchors, level); len(out) <= t.maxTiles {
			return out
		}
	}
	return t.coverAt(region, anchors, 0)
}

func (t *Tiler) coverAt(region s2.Region, anchors []Position, level int) []uint64 {
	coverer := t.coverer
	if level != t.level {
		coverer = &s2.RegionCoverer{MinLevel: level, MaxLevel: level, LevelMod: 1, MaxCells: t.maxTiles}
	}
	covering := coverer.Covering(region)
	seen := make(map[s2.CellID]struct{}, len(covering))
	out := make([]uint64, 0, len(covering))
	add := func(id s2.CellID) {
		if _, ok := seen[id]; ok {
			return
		}
		seen[id] = struct{}{}
		out = append(out, uint64(id))
	}
	for _, id := range covering {
		switch {
		case id.Level() == level:
			add(id)
		case id.Level() > level:
			add(id.Parent(level))
		default:
			for c := id.ChildBeginAtLevel(level); c != id.ChildEndAtLevel(level); c = c.Next() {
				add(c)
			}
		}
	}
	for _, a := range anchors {
		leaf := s2.CellID(PositionIndex(a))
		if level >= MaxLevel {
			add(leaf)
			continue
		}
		// 极点附近不同 RA 的浮点误差会使叶子落入相邻象限，顶点处取全部共顶点单元
		for _, n := range leaf.VertexNeighbors(level) {
			add(n)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// estimate：按包围矩形面积粗估 level 层单元数，避免对整天区类请求展开数十万单元
func (t *Tiler) estimate(region s2.Region, level int) int {
	area := region.RectBound().Area()
	cell := s2.AvgAreaMetric.Value(level)
	if cell <= 0 {
		return 0
	}
	// 包围盒大于实际区域，按 1/4 折算后仍超限才视为超限
	return int(area / cell / 4)
}

// PositionIndex：坐标对应的叶子单元 id，入库时计算并作为可索引位置
func PositionIndex(p Position) uint64 {
	return uint64(s2.CellIDFromLatLng(p.LatLng()))
}

// TileOf：坐标所在的 level 层切片
func TileOf(p Position, level int) uint64 {
	return uint64(s2.CellIDFromLatLng(p.LatLng()).Parent(level))
}

// TileRange：切片覆盖的叶子单元 id 闭区间
func TileRange(tile uint64) (lo, hi uint64) {
	id := s2.CellID(tile)
	return uint64(id.RangeMin()), uint64(id.RangeMax())
}

// Contains：位置索引是否位于切片内
func Contains(tile, position uint64) bool {
	lo, hi := TileRange(tile)
	return position >= lo && position <= hi
}

// TileLevel：切片层级；非法 id 返回 -1
func TileLevel(tile uint64) int {
	id := s2.CellID(tile)
	if !id.IsValid() {
		return -1
	}
	return id.Level()
}

// TileCenter：切片中心坐标
func TileCenter(tile uint64) Position {
	return PositionFromLatLng(s2.CellID(tile).LatLng())
}

// TileToken：切片的紧凑文本表示（日志与缓存键）
func TileToken(tile uint64) string { return s2.CellID(tile).ToToken() }
