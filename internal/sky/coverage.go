package sky

import (
	"fmt"
	"math"
)

// Range：矩形天区边界（度）
// 约束：RAMin > RAMax 表示跨越 0° 的回绕区间，不是空区间；Dec 不做回绕与截断
type Range struct {
	RAMin  float64 `json:"ra_min"`
	RAMax  float64 `json:"ra_max"`
	DecMin float64 `json:"dec_min"`
	DecMax float64 `json:"dec_max"`
}

// Wraps：RA 区间是否跨越 0°
func (r Range) Wraps() bool { return r.RAMin > r.RAMax }

// CoverageRange：按中心点与视场直径计算外接 RA/Dec 范围
// 约束：fov 与坐标同为度；Dec 不做极区投影修正（近极区视场会被高估或低估，保持现状）
func CoverageRange(ra, dec, fov float64) (Range, error) {
	if math.IsNaN(fov) || fov <= 0 {
		return Range{}, fmt.Errorf("%w: field of view must be a positive value, got %v", ErrInvalidRegion, fov)
	}
	if _, err := NewPosition(ra, dec); err != nil {
		return Range{}, err
	}
	radius := fov / 2.0
	return Range{
		RAMin:  NormalizeRA(ra - radius),
		RAMax:  NormalizeRA(ra + radius),
		DecMin: dec - radius,
		DecMax: dec + radius,
	}, nil
}

// ArcminToDegrees：角分转度
func ArcminToDegrees(arcmin float64) float64 { return arcmin / 60.0 }

// ArcminToRadians：角分转弧度
func ArcminToRadians(arcmin float64) float64 { return arcmin * math.Pi / (180 * 60) }
