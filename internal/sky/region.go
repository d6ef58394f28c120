package sky

import (
	"fmt"
	"math"
	"sort"

	"github.com/golang/geo/r1"
	"github.com/golang/geo/r3"
	"github.com/golang/geo/s1"
	"github.com/golang/geo/s2"
)

// Box：RA/Dec 矩形（边为等 RA / 等 Dec 线）
// 约束：RA 取 [0,360]，RAMin > RAMax 表示回绕；RAMin=0 且 RAMax=360 表示整圈
type Box struct {
	RAMin  float64 `json:"ra_min"`
	RAMax  float64 `json:"ra_max"`
	DecMin float64 `json:"dec_min"`
	DecMax float64 `json:"dec_max"`
}

// NewBox：由两组边界构造矩形；Dec 两端可乱序
func NewBox(ra, dec [2]float64) (Box, error) {
	b := Box{RAMin: ra[0], RAMax: ra[1], DecMin: math.Min(dec[0], dec[1]), DecMax: math.Max(dec[0], dec[1])}
	return b, b.Validate()
}

// BoxFromRange：视场推导的范围转矩形，Dec 截断到极点
func BoxFromRange(r Range) Box {
	return Box{
		RAMin:  r.RAMin,
		RAMax:  r.RAMax,
		DecMin: math.Max(-90, r.DecMin),
		DecMax: math.Min(90, r.DecMax),
	}
}

// FullRA：RA 覆盖整圈
func (b Box) FullRA() bool { return b.RAMin == 0 && b.RAMax == 360 }

// Validate：检查越界与退化
func (b Box) Validate() error {
	for _, v := range []float64{b.RAMin, b.RAMax} {
		if math.IsNaN(v) || v < 0 || v > 360 {
			return fmt.Errorf("%w: right ascension (RA) bound must be in [0, 360] degrees, got %v", ErrInvalidRegion, v)
		}
	}
	for _, v := range []float64{b.DecMin, b.DecMax} {
		if math.IsNaN(v) || v < -90 || v > 90 {
			return fmt.Errorf("%w: declination (Dec) bound must be in [-90, 90] degrees, got %v", ErrInvalidRegion, v)
		}
	}
	if !b.FullRA() && NormalizeRA(b.RAMin) == NormalizeRA(b.RAMax) {
		return fmt.Errorf("%w: degenerate region, RA bounds coincide at %v", ErrInvalidRegion, b.RAMin)
	}
	if b.DecMin >= b.DecMax {
		return fmt.Errorf("%w: degenerate region, Dec bounds coincide at %v", ErrInvalidRegion, b.DecMin)
	}
	return nil
}

// Corners：逆时针四角（RA 递增方向为东）
func (b Box) Corners() []Position {
	ra0, ra1 := NormalizeRA(b.RAMin), NormalizeRA(b.RAMax)
	return []Position{
		{RA: ra0, Dec: b.DecMin},
		{RA: ra1, Dec: b.DecMin},
		{RA: ra1, Dec: b.DecMax},
		{RA: ra0, Dec: b.DecMax},
	}
}

// Rect：转换为 S2 经纬矩形；经度区间 lo>hi 时由 s1 视为跨 180° 的反向区间
func (b Box) Rect() s2.Rect {
	lat := r1.Interval{Lo: b.DecMin * math.Pi / 180, Hi: b.DecMax * math.Pi / 180}
	if b.FullRA() {
		return s2.Rect{Lat: lat, Lng: s1.FullInterval()}
	}
	return s2.Rect{Lat: lat, Lng: s1.IntervalFromEndpoints(signedLng(b.RAMin), signedLng(b.RAMax))}
}

// Contains：点是否落在矩形内（含边界）
func (b Box) Contains(p Position) bool { return b.Rect().ContainsLatLng(p.LatLng()) }

// distinctCorners：去除重复角点（1e-9 度容差），保持原顺序
func distinctCorners(corners []Position) []Position {
	const eps = 1e-9
	out := make([]Position, 0, len(corners))
	for _, c := range corners {
		dup := false
		for _, o := range out {
			if samePoint(c, o, eps) {
				dup = true
				break
			}
		}
		if !dup {
			out = append(out, c)
		}
	}
	return out
}

// samePoint：极点上 RA 无意义，任意 RA 视为同一点
func samePoint(a, b Position, eps float64) bool {
	if math.Abs(a.Dec-b.Dec) > eps {
		return false
	}
	if math.Abs(math.Abs(a.Dec)-90) <= eps {
		return true
	}
	d := math.Abs(NormalizeRA(a.RA) - NormalizeRA(b.RA))
	return d <= eps || 360-d <= eps
}

// polygonLoop：角点构造球面环；取面积较小的一侧为内部
func polygonLoop(corners []Position) (*s2.Loop, error) {
	for _, c := range corners {
		if _, err := NewPosition(NormalizeRA(c.RA), c.Dec); err != nil {
			return nil, err
		}
	}
	uniq := distinctCorners(corners)
	if len(uniq) < 3 {
		return nil, fmt.Errorf("%w: degenerate polygon, need at least 3 distinct corners, got %d", ErrInvalidRegion, len(uniq))
	}
	pts := make([]s2.Point, len(uniq))
	for i, c := range uniq {
		pts[i] = c.point()
	}
	// 角点无序（边自交）时按绕质心方位角重排
	if selfIntersects(pts) {
		pts = sortAroundCentroid(pts)
		if selfIntersects(pts) {
			return nil, fmt.Errorf("%w: polygon edges cross each other", ErrInvalidRegion)
		}
	}
	loop := s2.LoopFromPoints(pts)
	if err := loop.Validate(); err != nil {
		return nil, fmt.Errorf("%w: degenerate polygon: %v", ErrInvalidRegion, err)
	}
	loop.Normalize()
	if loop.Area() < 1e-18 {
		return nil, fmt.Errorf("%w: degenerate polygon, corners enclose no area", ErrInvalidRegion)
	}
	return loop, nil
}

// selfIntersects：任意两条不相邻的边相交
func selfIntersects(pts []s2.Point) bool {
	n := len(pts)
	for i := 0; i < n; i++ {
		a, b := pts[i], pts[(i+1)%n]
		for j := i + 1; j < n; j++ {
			if j == i+1 || (i == 0 && j == n-1) {
				continue
			}
			c, d := pts[j], pts[(j+1)%n]
			if s2.CrossingSign(a, b, c, d) == s2.Cross {
				return true
			}
		}
	}
	return false
}

// sortAroundCentroid：在质心切平面内按方位角排序
func sortAroundCentroid(pts []s2.Point) []s2.Point {
	var sum r3.Vector
	for _, p := range pts {
		sum = sum.Add(p.Vector)
	}
	c := sum.Normalize()
	ref := c.Ortho()
	east := c.Cross(ref).Normalize()
	out := append([]s2.Point(nil), pts...)
	angle := func(p s2.Point) float64 {
		return math.Atan2(p.Vector.Dot(east), p.Vector.Dot(ref))
	}
	sort.Slice(out, func(i, j int) bool { return angle(out[i]) < angle(out[j]) })
	return out
}
