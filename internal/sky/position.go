package sky

import (
	"fmt"
	"math"

	"github.com/golang/geo/s2"
)

// Position：天球坐标（度），RA ∈ [0,360)，Dec ∈ [-90,90]
type Position struct {
	RA  float64 `json:"ra"`
	Dec float64 `json:"dec"`
}

// NewPosition：校验并构造坐标
// 约束：RA=360 视为越界（与 0 重复）；NaN 一律拒绝
func NewPosition(ra, dec float64) (Position, error) {
	if math.IsNaN(ra) || ra < 0 || ra >= 360 {
		return Position{}, fmt.Errorf("%w: right ascension (RA) must be in [0, 360) degrees, got %v", ErrInvalidRegion, ra)
	}
	if math.IsNaN(dec) || dec < -90 || dec > 90 {
		return Position{}, fmt.Errorf("%w: declination (Dec) must be in [-90, 90] degrees, got %v", ErrInvalidRegion, dec)
	}
	return Position{RA: ra, Dec: dec}, nil
}

// LatLng：RA 映射为经度、Dec 映射为纬度
func (p Position) LatLng() s2.LatLng { return s2.LatLngFromDegrees(p.Dec, p.RA) }

func (p Position) point() s2.Point { return s2.PointFromLatLng(p.LatLng()) }

// PositionFromLatLng：经度折回 [0,360) 作为 RA
func PositionFromLatLng(ll s2.LatLng) Position {
	return Position{RA: NormalizeRA(ll.Lng.Degrees()), Dec: ll.Lat.Degrees()}
}

// NormalizeRA：任意角度折回 [0,360)
func NormalizeRA(ra float64) float64 {
	v := math.Mod(ra, 360)
	if v < 0 {
		v += 360
	}
	// -1e-15 之类的取模结果加 360 后会舍入成 360
	if v >= 360 {
		v = 0
	}
	return v
}

// signedLng：RA 转换为 (-180,180] 的经度（弧度），供 s1.Interval 使用
func signedLng(ra float64) float64 {
	v := NormalizeRA(ra)
	if v > 180 {
		v -= 360
	}
	return v * math.Pi / 180
}
