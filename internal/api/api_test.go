package api

import (
	"bufio"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"gsm-api/internal/health"
	"gsm-api/internal/lsm"
	"gsm-api/internal/sky"
	"gsm-api/internal/store"
	"gsm-api/internal/store/memstore"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type reloadCounter struct{ n atomic.Int32 }

func (r *reloadCounter) Reload(context.Context) { r.n.Add(1) }

func newServer(t *testing.T) (*httptest.Server, *reloadCounter) {
	t.Helper()
	mem := memstore.New()
	for _, s := range []store.Source{
		{Name: "a", RA: 10, Dec: 10, FluxWide: 1.5, Telescope: "MWA"},
		{Name: "b", RA: 10.5, Dec: 10.5, FluxWide: 2, Telescope: "MWA"},
		{Name: "c", RA: 90, Dec: 10, FluxWide: 1.5, Telescope: "ASKAP"},
	} {
		_, err := mem.AddSource(s)
		require.NoError(t, err)
	}
	tiler, err := sky.NewTiler(8, 0)
	require.NoError(t, err)
	rl := &reloadCounter{}
	srv := httptest.NewServer(BuildRoutes(Deps{
		Assembler: lsm.NewAssembler(tiler, mem, lsm.Options{Stats: mem}),
		Catalog:   mem,
		Stats:     mem,
		Reloader:  rl,
	}))
	t.Cleanup(srv.Close)
	return srv, rl
}

func get(t *testing.T, srv *httptest.Server, path string) *http.Response {
	t.Helper()
	resp, err := http.Get(srv.URL + path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func TestPing(t *testing.T) {
	t.Parallel()
	srv, _ := newServer(t)
	resp := get(t, srv, "/ping")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	var body map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "live", body["ping"])
}

func TestSourcesAndSearch(t *testing.T) {
	t.Parallel()
	srv, _ := newServer(t)

	var all []store.Source
	require.NoError(t, json.NewDecoder(get(t, srv, "/sources").Body).Decode(&all))
	assert.Len(t, all, 3)

	var found []store.Source
	resp := get(t, srv, "/sources/search?flux_wide=1.5&telescope=MWA")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&found))
	require.Len(t, found, 1)
	assert.Equal(t, "a", found[0].Name)

	resp = get(t, srv, "/sources/search?ra=1")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body := readAll(t, resp)
	assert.Equal(t, "[]", strings.TrimSpace(body))

	resp = get(t, srv, "/sources/search?ra=abc")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func readAll(t *testing.T, resp *http.Response) string {
	t.Helper()
	var sb strings.Builder
	sc := bufio.NewScanner(resp.Body)
	for sc.Scan() {
		sb.WriteString(sc.Text())
		sb.WriteByte('\n')
	}
	require.NoError(t, sc.Err())
	return sb.String()
}

// events：解析事件流为 (event, data) 列表
func events(t *testing.T, body string) [][2]string {
	t.Helper()
	var out [][2]string
	for _, block := range strings.Split(strings.TrimSpace(body), "\n\n") {
		lines := strings.SplitN(block, "\n", 2)
		require.Len(t, lines, 2, block)
		out = append(out, [2]string{strings.TrimPrefix(lines[0], "event: "), strings.TrimPrefix(lines[1], "data: ")})
	}
	return out
}

func TestLocalSkyModel(t *testing.T) {
	t.Parallel()
	srv, _ := newServer(t)
	resp := get(t, srv, "/local_sky_model?ra="+url.QueryEscape("9;11")+"&dec="+url.QueryEscape("9;11")+"&telescope=MWA&fov=2")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	ev := events(t, readAll(t, resp))
	require.Len(t, ev, 4)
	assert.Equal(t, "region", ev[0][0])
	assert.JSONEq(t, `{"ra":[9,11],"dec":[9,11]}`, ev[0][1])
	assert.Equal(t, "source", ev[1][0])
	assert.Equal(t, "source", ev[2][0])
	assert.Equal(t, [2]string{"end", `{"count":2}`}, ev[3])
}

func TestLocalSkyModelCentre(t *testing.T) {
	t.Parallel()
	srv, _ := newServer(t)
	resp := get(t, srv, "/local_sky_model?ra=10&dec=10&fov=60&fov_unit=arcmin")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	ev := events(t, readAll(t, resp))
	assert.Equal(t, [2]string{"end", `{"count":2}`}, ev[len(ev)-1])
}

func TestLocalSkyModelBadRequest(t *testing.T) {
	t.Parallel()
	srv, _ := newServer(t)
	for _, q := range []string{
		"ra=9;11&dec=9;91",
		"ra=10&dec=10",
		"ra=10&dec=10&fov=0",
		"ra=9;11&dec=10",
		"ra=x;11&dec=9;11",
		"",
	} {
		t.Run(q, func(t *testing.T) {
			resp := get(t, srv, "/local_sky_model?"+q)
			assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
			var body errorBody
			require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
			assert.NotEmpty(t, body.Error)
		})
	}
}

func TestStatsAndReload(t *testing.T) {
	t.Parallel()
	srv, rl := newServer(t)
	get(t, srv, "/local_sky_model?ra=9;11&dec=9;11")

	var tot store.Totals
	require.NoError(t, json.NewDecoder(get(t, srv, "/stats").Body).Decode(&tot))
	assert.Equal(t, int64(1), tot.Total)
	assert.Equal(t, int64(2), tot.TotalSources)

	resp := get(t, srv, "/datastore/reload")
	assert.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Eventually(t, func() bool { return rl.n.Load() == 1 }, time.Second, 5*time.Millisecond)
}

func TestWriteErrorStatus(t *testing.T) {
	t.Parallel()
	cases := []struct {
		err  error
		want int
	}{
		{sky.ErrInvalidRegion, http.StatusBadRequest},
		{errBadQuery, http.StatusBadRequest},
		{store.ErrTileConflict, http.StatusConflict},
		{store.ErrStorageUnavailable, http.StatusInternalServerError},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		rec := httptest.NewRecorder()
		writeError(rec, httptest.NewRequest(http.MethodGet, "/", nil), tc.err)
		assert.Equal(t, tc.want, rec.Code, tc.err.Error())
	}
}

func TestQueryValues(t *testing.T) {
	t.Parallel()
	v := queryValues("ra=9;11&dec=9%3B11&telescope=MWA+LOW&&bad=%zz")
	assert.Equal(t, "9;11", v.Get("ra"))
	assert.Equal(t, "9;11", v.Get("dec"))
	assert.Equal(t, "MWA LOW", v.Get("telescope"))
	assert.False(t, v.Has("bad"))
}

func TestParseLSMRequest(t *testing.T) {
	t.Parallel()
	req, err := parseLSMRequest(url.Values{"ra": {"358;2"}, "dec": {"-1,1"}, "flux_wide": {"0.5"}})
	require.NoError(t, err)
	assert.Equal(t, [2]float64{358, 2}, req.RA)
	assert.Equal(t, [2]float64{-1, 1}, req.Dec)
	assert.Nil(t, req.Center)
	require.NotNil(t, req.Filter.FluxWide)
	assert.Equal(t, 0.5, *req.Filter.FluxWide)

	req, err = parseLSMRequest(url.Values{"ra": {"120.5"}, "dec": {"30.2"}, "fov": {"10"}})
	require.NoError(t, err)
	require.NotNil(t, req.Center)
	assert.Equal(t, sky.Position{RA: 120.5, Dec: 30.2}, *req.Center)
	assert.Equal(t, 10.0, req.FOV)
}

func TestHealth(t *testing.T) {
	var down atomic.Bool
	hm := health.NewManager(0)
	hm.Register(health.Func("postgres", func(context.Context) error {
		if down.Load() {
			return errors.New("dial tcp: refused")
		}
		return nil
	}))
	srv := httptest.NewServer(BuildRoutes(Deps{Health: hm}))
	t.Cleanup(srv.Close)

	resp := get(t, srv, "/health")
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	down.Store(true)
	hm.Beat(context.Background())
	resp = get(t, srv, "/health")
	require.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	var body struct {
		Status     string `json:"status"`
		Components []struct {
			Name    string `json:"name"`
			Healthy bool   `json:"healthy"`
		} `json:"components"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "degraded", body.Status)
	require.Len(t, body.Components, 1)
	assert.False(t, body.Components[0].Healthy)
}
