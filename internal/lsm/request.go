// 包 lsm：本地天空模型组装。区域 → 切片 → 登记 → 包含连接 → 打包
package lsm

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"gsm-api/internal/sky"
	"gsm-api/internal/store"
)

// Request：RA/Dec 边界，或中心点 + 视场（Center 非 nil 时忽略 RA/Dec）
type Request struct {
	RA     [2]float64
	Dec    [2]float64
	Center *sky.Position
	FOV    float64
	// FOVUnit：deg（默认）或 arcmin
	FOVUnit string
	// Filter：对区域内点源再做等值过滤
	Filter store.Criteria
}

// Region：模型中回显的请求区域
type Region struct {
	RA  [2]float64 `json:"ra"`
	Dec [2]float64 `json:"dec"`
}

// fovDegrees：视场换算为度
func (r Request) fovDegrees() (float64, error) {
	switch strings.ToLower(r.FOVUnit) {
	case "", "deg", "degree", "degrees":
		return r.FOV, nil
	case "arcmin":
		return sky.ArcminToDegrees(r.FOV), nil
	}
	return 0, fmt.Errorf("%w: unknown field of view unit %q", sky.ErrInvalidRegion, r.FOVUnit)
}

// resolve：得到用于切片的矩形与回显区域
// 约束：中心点 + 视场推导的 Dec 越过极点时只在切片时截断，回显保持原值；
// 视场 ≥ 360° 时 RA 取整圈
func (r Request) resolve() (sky.Box, Region, error) {
	if r.Center == nil {
		b, err := sky.NewBox(r.RA, r.Dec)
		if err != nil {
			return sky.Box{}, Region{}, err
		}
		return b, Region{RA: r.RA, Dec: r.Dec}, nil
	}
	fov, err := r.fovDegrees()
	if err != nil {
		return sky.Box{}, Region{}, err
	}
	rng, err := sky.CoverageRange(r.Center.RA, r.Center.Dec, fov)
	if err != nil {
		return sky.Box{}, Region{}, err
	}
	region := Region{RA: [2]float64{rng.RAMin, rng.RAMax}, Dec: [2]float64{rng.DecMin, rng.DecMax}}
	b := sky.BoxFromRange(rng)
	if fov >= 360 {
		b.RAMin, b.RAMax = 0, 360
	}
	if err := b.Validate(); err != nil {
		return sky.Box{}, Region{}, err
	}
	return b, region, nil
}

// cacheKey：层级 + 矩形 + 过滤条件，浮点按 1e-9 度取整
func cacheKey(level int, b sky.Box, f store.Criteria) string {
	var sb strings.Builder
	sb.WriteString(strconv.Itoa(level))
	for _, v := range []float64{b.RAMin, b.RAMax, b.DecMin, b.DecMax} {
		sb.WriteByte(':')
		sb.WriteString(strconv.FormatFloat(math.Round(v*1e9)/1e9, 'f', -1, 64))
	}
	opt := func(name string, v *float64) {
		if v != nil {
			sb.WriteString(":" + name + "=" + strconv.FormatFloat(*v, 'g', -1, 64))
		}
	}
	opt("ra", f.RA)
	opt("dec", f.Dec)
	opt("flux_wide", f.FluxWide)
	opt("fov", f.FOV)
	if f.Telescope != nil {
		sb.WriteString(":telescope=" + strconv.Quote(*f.Telescope))
	}
	return sb.String()
}
