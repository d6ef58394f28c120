// 包 api：HTTP 路由（chi），在主入口挂载到 API_BASE 前缀下
package api

import (
	"context"
	"errors"
	"net/http"

	"gsm-api/internal/health"
	"gsm-api/internal/logger"
	"gsm-api/internal/lsm"
	"gsm-api/internal/sky"
	"gsm-api/internal/store"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/goccy/go-json"
)

// Reloader：后台重扫星表目录
type Reloader interface {
	Reload(ctx context.Context)
}

// Deps：路由依赖；Stats、Reloader、Health 可为 nil
type Deps struct {
	Assembler *lsm.Assembler
	Catalog   store.Catalog
	Stats     store.Stats
	Reloader  Reloader
	Health    *health.Manager
}

// BuildRoutes：返回挂载用的路由器
func BuildRoutes(d Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.Recoverer)
	h := &handlers{d: d}
	r.Get("/ping", h.ping)
	r.Get("/health", h.health)
	r.Get("/sources", h.sources)
	r.Get("/sources/search", h.search)
	r.Get("/local_sky_model", h.localSkyModel)
	r.Get("/stats", h.stats)
	r.Get("/datastore/reload", h.reload)
	return r
}

type handlers struct {
	d Deps
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.L().Debug("http_encode_error", "err", err)
	}
}

type errorBody struct {
	Error string `json:"error"`
}

// writeError：区域非法 400，登记冲突 409（可重试），其余 500
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, sky.ErrInvalidRegion), errors.Is(err, errBadQuery):
		status = http.StatusBadRequest
	case errors.Is(err, store.ErrTileConflict):
		status = http.StatusConflict
	}
	msg := err.Error()
	if status == http.StatusInternalServerError {
		logger.L().Error("http_request_error", "path", r.URL.Path, "request_id", logger.RequestID(r.Context()), "err", err)
		msg = "internal error"
	}
	writeJSON(w, status, errorBody{Error: msg})
}
