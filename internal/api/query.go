package api

import (
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"gsm-api/internal/lsm"
	"gsm-api/internal/sky"
	"gsm-api/internal/store"
)

var errBadQuery = errors.New("bad query")

// queryValues：按 & 切分查询串，保留值中的分号（ra=a;b）；
// url.ParseQuery 会丢弃含分号的键值对
func queryValues(raw string) url.Values {
	v := url.Values{}
	for _, kv := range strings.Split(raw, "&") {
		if kv == "" {
			continue
		}
		k, val, _ := strings.Cut(kv, "=")
		k, err := url.QueryUnescape(k)
		if err != nil {
			continue
		}
		val, err = url.QueryUnescape(val)
		if err != nil {
			continue
		}
		v.Add(k, val)
	}
	return v
}

func parseFloat(q url.Values, key string) (*float64, error) {
	s := strings.TrimSpace(q.Get(key))
	if s == "" {
		return nil, nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: %s=%q is not a number", errBadQuery, key, s)
	}
	return &v, nil
}

// parseCriteria：ra/dec/flux_wide/fov 为数值，telescope 为字符串；缺省键不参与过滤
func parseCriteria(q url.Values) (store.Criteria, error) {
	var c store.Criteria
	var err error
	if c.RA, err = parseFloat(q, "ra"); err != nil {
		return c, err
	}
	if c.Dec, err = parseFloat(q, "dec"); err != nil {
		return c, err
	}
	if c.FluxWide, err = parseFloat(q, "flux_wide"); err != nil {
		return c, err
	}
	if c.FOV, err = parseFloat(q, "fov"); err != nil {
		return c, err
	}
	if t := strings.TrimSpace(q.Get("telescope")); t != "" {
		c.Telescope = &t
	}
	return c, nil
}

// splitPair：a;b 形式（也接受逗号）
func splitPair(key, s string) ([]float64, error) {
	parts := strings.FieldsFunc(s, func(r rune) bool { return r == ';' || r == ',' })
	out := make([]float64, 0, len(parts))
	for _, p := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return nil, fmt.Errorf("%w: %s=%q is not a number", errBadQuery, key, p)
		}
		out = append(out, v)
	}
	return out, nil
}

// parseLSMRequest：ra=a;b&dec=c;d 为矩形；ra=x&dec=y&fov=f 为中心点 + 视场。
// telescope、flux_wide 作为区域内的附加过滤
func parseLSMRequest(q url.Values) (lsm.Request, error) {
	var req lsm.Request
	ra, err := splitPair("ra", q.Get("ra"))
	if err != nil {
		return req, err
	}
	dec, err := splitPair("dec", q.Get("dec"))
	if err != nil {
		return req, err
	}
	fov, err := parseFloat(q, "fov")
	if err != nil {
		return req, err
	}
	switch {
	case len(ra) == 2 && len(dec) == 2:
		req.RA = [2]float64{ra[0], ra[1]}
		req.Dec = [2]float64{dec[0], dec[1]}
	case len(ra) == 1 && len(dec) == 1:
		if fov == nil {
			return req, fmt.Errorf("%w: fov is required with a single ra/dec position", sky.ErrInvalidRegion)
		}
		p, err := sky.NewPosition(ra[0], dec[0])
		if err != nil {
			return req, err
		}
		req.Center = &p
		req.FOV = *fov
		req.FOVUnit = q.Get("fov_unit")
	default:
		return req, fmt.Errorf("%w: ra and dec must both be a;b bounds or both single values", sky.ErrInvalidRegion)
	}
	if req.Filter.FluxWide, err = parseFloat(q, "flux_wide"); err != nil {
		return req, err
	}
	if t := strings.TrimSpace(q.Get("telescope")); t != "" {
		req.Filter.Telescope = &t
	}
	return req, nil
}
