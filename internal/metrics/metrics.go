// Package metrics defines the Prometheus collectors for sync cycles and the authority's HTTP layer.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "gomarks"

// Label names
const (
	LabelMethod  = "method"
	LabelPath    = "path"
	LabelStatus  = "status"
	LabelOutcome = "outcome"
	LabelKind    = "kind"
)

// Cycle outcomes
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)

var syncLatencyBuckets = []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10, 30}

// Sync metrics
var (
	SyncCyclesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sync_cycles_total",
			Help:      "Total number of sync cycles by outcome",
		},
		[]string{LabelOutcome},
	)

	SyncCycleDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "sync_cycle_duration_seconds",
			Help:      "Duration of sync cycles in seconds",
			Buckets:   syncLatencyBuckets,
		},
	)

	SyncEntitiesPushed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sync_entities_pushed_total",
			Help:      "Entities acknowledged by the authority, by kind",
		},
		[]string{LabelKind},
	)

	SyncEntitiesPulled = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sync_entities_pulled_total",
			Help:      "Entities written locally from pulled authority state",
		},
	)

	SyncChunksFailed = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sync_chunks_failed_total",
			Help:      "Chunks whose transmission failed",
		},
	)

	SyncRetriesDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sync_retries_dropped_total",
			Help:      "Retry entries abandoned after exhausting their attempts",
		},
	)

	SyncPending = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sync_pending_entities",
			Help:      "Entities waiting to be pushed",
		},
	)
)

// HTTP metrics
var (
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{LabelMethod, LabelPath, LabelStatus},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{LabelMethod, LabelPath},
	)
)

// Cycle is what a finished sync cycle reports
type Cycle struct {
	Success      bool
	Duration     time.Duration
	Pushed       map[string]int
	Pulled       int
	FailedChunks int
	Dropped      int
	Pending      int
}

// RecordCycle updates the sync collectors for one cycle
func RecordCycle(c Cycle) {
	outcome := OutcomeSuccess
	if !c.Success {
		outcome = OutcomeFailure
	}
	SyncCyclesTotal.WithLabelValues(outcome).Inc()
	SyncCycleDuration.Observe(c.Duration.Seconds())
	for kind, n := range c.Pushed {
		if n > 0 {
			SyncEntitiesPushed.WithLabelValues(kind).Add(float64(n))
		}
	}
	SyncEntitiesPulled.Add(float64(c.Pulled))
	SyncChunksFailed.Add(float64(c.FailedChunks))
	SyncRetriesDropped.Add(float64(c.Dropped))
	SyncPending.Set(float64(c.Pending))
}

type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// Middleware collects HTTP request metrics. Paths are recorded by route pattern.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(rw, r)

		path := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if pattern := rctx.RoutePattern(); pattern != "" {
				path = pattern
			}
		}
		HTTPRequestsTotal.WithLabelValues(r.Method, path, strconv.Itoa(rw.statusCode)).Inc()
		HTTPRequestDuration.WithLabelValues(r.Method, path).Observe(time.Since(start).Seconds())
	})
}
