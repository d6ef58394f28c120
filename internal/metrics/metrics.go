// 包 metrics：Prometheus 指标，进程启动时注册到默认注册表
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var msBuckets = []float64{1, 5, 10, 20, 50, 100, 200, 500, 1000, 5000}

var (
	LSMRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "gsm_lsm_requests_total",
		Help: "Local sky model requests by outcome",
	}, []string{"outcome"})
	LSMDurationMs = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "gsm_lsm_duration_ms",
		Help:    "Local sky model build duration in milliseconds",
		Buckets: msBuckets,
	})
	LSMTiles = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "gsm_lsm_tiles",
		Help:    "Tiles covering the requested region",
		Buckets: prometheus.ExponentialBuckets(1, 4, 8),
	})
	LSMSources = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "gsm_lsm_sources",
		Help:    "Sources returned per local sky model",
		Buckets: prometheus.ExponentialBuckets(1, 10, 7),
	})
	CacheHits = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "gsm_cache_hits_total",
		Help: "Redis cache hits by key prefix",
	}, []string{"prefix"})
	CacheMisses = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "gsm_cache_misses_total",
		Help: "Redis cache misses by key prefix",
	}, []string{"prefix"})
	TilesRegisteredTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "gsm_tiles_registered_total",
		Help: "Tile registrations (including repeats)",
	})
	AOIPrunedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "gsm_aoi_pruned_total",
		Help: "Tile registrations removed by the reclaimer",
	})
	SearchRequestsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "gsm_search_requests_total",
		Help: "Catalog criteria searches",
	})
	IngestSourcesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "gsm_ingest_sources_total",
		Help: "Catalog rows processed by ingest, by result",
	}, []string{"telescope", "result"})
	IngestDurationMs = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "gsm_ingest_duration_ms",
		Help:    "Catalog file ingest duration in milliseconds",
		Buckets: prometheus.ExponentialBuckets(100, 4, 8),
	}, []string{"telescope"})
	RateLimitedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "gsm_rate_limited_total",
		Help: "Requests rejected by the rate limiter",
	})
	HeartbeatTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "gsm_heartbeat_total",
		Help: "Dependency heartbeats by result",
	}, []string{"component", "result"})
	ComponentUp = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "gsm_component_up",
		Help: "1 when the last heartbeat of a dependency succeeded",
	}, []string{"component"})
)

func init() {
	prometheus.MustRegister(LSMRequestsTotal)
	prometheus.MustRegister(LSMDurationMs)
	prometheus.MustRegister(LSMTiles)
	prometheus.MustRegister(LSMSources)
	prometheus.MustRegister(CacheHits)
	prometheus.MustRegister(CacheMisses)
	prometheus.MustRegister(TilesRegisteredTotal)
	prometheus.MustRegister(AOIPrunedTotal)
	prometheus.MustRegister(SearchRequestsTotal)
	prometheus.MustRegister(IngestSourcesTotal)
	prometheus.MustRegister(IngestDurationMs)
	prometheus.MustRegister(RateLimitedTotal)
	prometheus.MustRegister(HeartbeatTotal)
	prometheus.MustRegister(ComponentUp)
}

// Handler：/metrics
func Handler() http.Handler { return promhttp.Handler() }
