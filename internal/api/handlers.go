package api

import (
	"context"
	"net/http"
	"time"

	"gsm-api/internal/health"
	"gsm-api/internal/logger"
	"gsm-api/internal/metrics"
)

func (h *handlers) ping(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"ping": "live"})
}

type healthBody struct {
	Status     string          `json:"status"`
	Components []health.Status `json:"components"`
}

// health：任一依赖心跳失败时返回 503
func (h *handlers) health(w http.ResponseWriter, r *http.Request) {
	if h.d.Health == nil {
		writeJSON(w, http.StatusOK, healthBody{Status: "ok", Components: []health.Status{}})
		return
	}
	body := healthBody{Status: "ok", Components: h.d.Health.Statuses()}
	status := http.StatusOK
	if !h.d.Health.Healthy() {
		body.Status, status = "degraded", http.StatusServiceUnavailable
	}
	writeJSON(w, status, body)
}

func (h *handlers) sources(w http.ResponseWriter, r *http.Request) {
	all, err := h.d.Catalog.All(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, all)
}

// search：等值过滤，与区域查询是两种不同的操作
func (h *handlers) search(w http.ResponseWriter, r *http.Request) {
	c, err := parseCriteria(queryValues(r.URL.RawQuery))
	if err != nil {
		writeError(w, r, err)
		return
	}
	metrics.SearchRequestsTotal.Inc()
	out, err := h.d.Catalog.Find(r.Context(), c)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

// localSkyModel：以 text/event-stream 输出；区域错误在写出任何事件前以 JSON 返回
func (h *handlers) localSkyModel(w http.ResponseWriter, r *http.Request) {
	req, err := parseLSMRequest(queryValues(r.URL.RawQuery))
	if err != nil {
		writeError(w, r, err)
		return
	}
	m, err := h.d.Assembler.Build(r.Context(), req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)
	if err := m.Stream(w); err != nil {
		logger.L().Debug("lsm_stream_error", "err", err)
	}
}

func (h *handlers) stats(w http.ResponseWriter, r *http.Request) {
	if h.d.Stats == nil {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	t, err := h.d.Stats.GetTotals(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

// reload：异步触发，立即返回 201
func (h *handlers) reload(w http.ResponseWriter, r *http.Request) {
	if h.d.Reloader == nil {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Hour)
		defer cancel()
		h.d.Reloader.Reload(ctx)
	}()
	writeJSON(w, http.StatusCreated, map[string]string{"status": "Reload started"})
}
