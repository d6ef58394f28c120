package lsm

import (
	"bufio"
	"io"

	"gsm-api/internal/store"

	"github.com/goccy/go-json"
)

// SourceView：点源对外的序列化视图
type SourceView struct {
	Name               string  `json:"name"`
	Telescope          string  `json:"telescope"`
	RA                 float64 `json:"ra"`
	RAError            float64 `json:"ra_error"`
	Dec                float64 `json:"dec"`
	DecError           float64 `json:"dec_error"`
	MajorAxis          float64 `json:"major_axis"`
	MajorAxisError     float64 `json:"major_axis_error"`
	MinorAxis          float64 `json:"minor_axis"`
	MinorAxisError     float64 `json:"minor_axis_error"`
	PositionAngle      float64 `json:"position_angle"`
	PositionAngleError float64 `json:"position_angle_error"`
	FluxWide           float64 `json:"flux_wide"`
	FluxWideError      float64 `json:"flux_wide_error"`
}

func View(s store.Source) SourceView {
	return SourceView{
		Name:               s.Name,
		Telescope:          s.Telescope,
		RA:                 s.RA,
		RAError:            s.RAError,
		Dec:                s.Dec,
		DecError:           s.DecError,
		MajorAxis:          s.MajorAxis,
		MajorAxisError:     s.MajorAxisError,
		MinorAxis:          s.MinorAxis,
		MinorAxisError:     s.MinorAxisError,
		PositionAngle:      s.PositionAngle,
		PositionAngleError: s.PositionAngleError,
		FluxWide:           s.FluxWide,
		FluxWideError:      s.FluxWideError,
	}
}

// Model：本地天空模型
type Model struct {
	Region  Region       `json:"region"`
	Count   int          `json:"count"`
	Sources []SourceView `json:"sources"`
}

type flusher interface{ Flush() }

// Stream：事件流输出。依次为 region、每个点源一条 source、最后 end（携带 count）；
// w 实现 Flush 时每条事件后刷出
func (m *Model) Stream(w io.Writer) error {
	bw := bufio.NewWriter(w)
	f, _ := w.(flusher)
	emit := func(event string, v any) error {
		b, err := json.Marshal(v)
		if err != nil {
			return err
		}
		if _, err := bw.WriteString("event: " + event + "\ndata: "); err != nil {
			return err
		}
		if _, err := bw.Write(b); err != nil {
			return err
		}
		if _, err := bw.WriteString("\n\n"); err != nil {
			return err
		}
		if f != nil {
			if err := bw.Flush(); err != nil {
				return err
			}
			f.Flush()
		}
		return nil
	}
	if err := emit("region", m.Region); err != nil {
		return err
	}
	for i := range m.Sources {
		if err := emit("source", &m.Sources[i]); err != nil {
			return err
		}
	}
	if err := emit("end", map[string]int{"count": m.Count}); err != nil {
		return err
	}
	return bw.Flush()
}
