package metrics

import (
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
)

// Search pipeline Prometheus metrics.
var (
	SearchDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "profdex",
			Name:      "search_duration_seconds",
			Help:      "End-to-end search duration in seconds",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		},
		[]string{"source"}, // vector / fallback / none
	)

	SearchFallbackTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "profdex",
			Name:      "search_fallback_total",
			Help:      "Searches served by the substring fallback path",
		},
		[]string{"reason"}, // empty / unavailable
	)

	SearchDegradedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "profdex",
			Name:      "search_degraded_total",
			Help:      "Searches returned with degraded completeness",
		},
	)

	RerankChunksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "profdex",
			Name:      "rerank_chunks_total",
			Help:      "Rerank chunk outcomes",
		},
		[]string{"outcome"}, // ok / failed / timeout
	)

	RewriteTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "profdex",
			Name:      "rewrite_total",
			Help:      "Query rewrite outcomes",
		},
		[]string{"outcome"}, // rewritten / fallback
	)

	GenerationRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "profdex",
			Name:      "generation_requests_total",
			Help:      "Total number of chat completion requests",
		},
		[]string{"model", "status"},
	)

	GenerationRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "profdex",
			Name:      "generation_request_duration_seconds",
			Help:      "Chat completion request duration in seconds",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		},
		[]string{"model"},
	)

	RerankWorkersRunning = prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Namespace: "profdex",
			Name:      "rerank_workers_running",
			Help:      "Live rerank pool workers, busy or not yet expired",
		},
		func() float64 {
			if f := runningWorkers.Load(); f != nil {
				return float64((*f)())
			}
			return 0
		},
	)
)

var runningWorkers atomic.Pointer[func() int]

// ObserveWorkerPool makes RerankWorkersRunning report running() on every scrape.
func ObserveWorkerPool(running func() int) {
	runningWorkers.Store(&running)
}

var searchMetricsRegistered bool

// RegisterSearchMetrics registers Prometheus search pipeline metrics. Must be called once from main.
func RegisterSearchMetrics() {
	if searchMetricsRegistered {
		return
	}
	prometheus.MustRegister(SearchDuration)
	prometheus.MustRegister(SearchFallbackTotal)
	prometheus.MustRegister(SearchDegradedTotal)
	prometheus.MustRegister(RerankChunksTotal)
	prometheus.MustRegister(RewriteTotal)
	prometheus.MustRegister(GenerationRequestsTotal)
	prometheus.MustRegister(GenerationRequestDuration)
	prometheus.MustRegister(RerankWorkersRunning)
	searchMetricsRegistered = true
}
