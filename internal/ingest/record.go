package ingest

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"gsm-api/internal/config"
	"gsm-api/internal/sky"
	"gsm-api/internal/store"
)

// num：解析数值列；空值、缺列、非数值与 NaN/Inf 均视为缺失
func num(row map[string]string, col string) *float64 {
	v, ok := row[col]
	if !ok {
		return nil
	}
	v = strings.TrimSpace(v)
	if v == "" {
		return nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return nil
	}
	return &f
}

func val(p *float64) float64 {
	if p == nil {
		return 0
	}
	return *p
}

// bandSuffix：窄带列名后缀，中心频率不足三位时左补 0（76 → 076）
func bandSuffix(centre float64) string {
	s := strconv.FormatFloat(centre, 'f', -1, 64)
	if len(s) < 3 {
		s = strings.Repeat("0", 3-len(s)) + s
	}
	return s
}

// buildRecord：由一行星表数据构造入库记录
// 名称与 RA/Dec 为必填，位置非法时返回 sky.ErrInvalidRegion
func buildRecord(def config.CatalogDefinition, row map[string]string, bands map[float64]store.Band) (store.SourceRecord, error) {
	name := strings.TrimSpace(row[def.SourceColumn])
	if name == "" {
		return store.SourceRecord{}, fmt.Errorf("missing %s", def.SourceColumn)
	}
	ra, dec := num(row, def.RAColumn), num(row, def.DecColumn)
	if ra == nil || dec == nil {
		return store.SourceRecord{}, fmt.Errorf("source %s: %w: missing position", name, sky.ErrInvalidRegion)
	}
	pos, err := sky.NewPosition(*ra, *dec)
	if err != nil {
		return store.SourceRecord{}, fmt.Errorf("source %s: %w", name, err)
	}
	rec := store.SourceRecord{Source: store.Source{
		Name:               name,
		RA:                 pos.RA,
		RAError:            val(num(row, "e_"+def.RAColumn)),
		Dec:                pos.Dec,
		DecError:           val(num(row, "e_"+def.DecColumn)),
		Position:           sky.PositionIndex(pos),
		MajorAxis:          val(num(row, "awide")),
		MajorAxisError:     val(num(row, "e_awide")),
		MinorAxis:          val(num(row, "bwide")),
		MinorAxisError:     val(num(row, "e_bwide")),
		PositionAngle:      val(num(row, "pawide")),
		PositionAngleError: val(num(row, "e_pawide")),
		FluxWide:           val(num(row, "Fpwide")),
		FluxWideError:      val(num(row, "eabsFpct")),
		FOV:                def.FOV,
	}}
	if def.Wideband {
		rec.Wide = &store.WideBandData{
			Bck:                num(row, "bckwide"),
			LocalRMS:           num(row, "lrmswide"),
			IntFlux:            num(row, "Fintwide"),
			IntFluxError:       num(row, "e_Fintwide"),
			ResidMean:          num(row, "resmwide"),
			ResidSD:            num(row, "resstdwide"),
			AbsFluxPctError:    num(row, "e_Fpwide"),
			FitFluxPctError:    num(row, "efitFpct"),
			APSF:               num(row, "psfawide"),
			BPSF:               num(row, "psfbwide"),
			PAPSF:              num(row, "psfPAwide"),
			SpectralIndex:      num(row, "alpha"),
			SpectralIndexError: num(row, "e_alpha"),
		}
	}
	for _, c := range def.Bands {
		b, ok := bands[c]
		if !ok {
			continue
		}
		sfx := bandSuffix(c)
		rec.Narrow = append(rec.Narrow, store.NarrowBandData{
			BandID:       b.ID,
			Bck:          num(row, "bck"+sfx),
			LocalRMS:     num(row, "lrms"+sfx),
			IntFlux:      num(row, "Fint"+sfx),
			IntFluxError: num(row, "e_Fint"+sfx),
			ResidMean:    num(row, "resm"+sfx),
			ResidSD:      num(row, "resstd"+sfx),
			APSF:         num(row, "psfa"+sfx),
			BPSF:         num(row, "psfb"+sfx),
			PAPSF:        num(row, "psfPA"+sfx),
			A:            num(row, "a"+sfx),
			B:            num(row, "b"+sfx),
			PA:           num(row, "pa"+sfx),
			Flux:         num(row, "Fp"+sfx),
			FluxError:    num(row, "e_Fp"+sfx),
		})
	}
	return rec, nil
}
