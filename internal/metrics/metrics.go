// Package metrics exposes Prometheus collectors for the crashd server.
package metrics

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	httpRequestsTotal          *prometheus.CounterVec
	httpRequestDurationSeconds *prometheus.HistogramVec
	submissionsTotal           *prometheus.CounterVec
	regroupRunsTotal           *prometheus.CounterVec
	groupsMovedTotal           prometheus.Counter
	todoListSize               prometheus.Gauge

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		httpRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "crashd_http_requests_total",
				Help: "Total number of HTTP requests, labeled by method and code.",
			},
			[]string{"method", "code"},
		)

		httpRequestDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "crashd_http_request_duration_seconds",
				Help:    "Histogram of HTTP request latencies, labeled by method and route.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
			},
			[]string{"method", "route"},
		)

		submissionsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "crashd_symbolication_submissions_total",
				Help: "Total symbolication result submissions, labeled by outcome.",
			},
			[]string{"outcome"},
		)

		regroupRunsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "crashd_regroup_runs_total",
				Help: "Total regroup batch runs, labeled by outcome.",
			},
			[]string{"outcome"},
		)

		groupsMovedTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "crashd_regroup_crashes_moved_total",
				Help: "Total crash reports moved to a different group by regrouping.",
			},
		)

		todoListSize = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "crashd_symbolication_todo_size",
				Help: "Number of crash ids on the most recently served todo list.",
			},
		)
	})
}

// Handler returns the /metrics endpoint handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Middleware records request counts and latencies per chi route pattern.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if httpRequestsTotal == nil {
			next.ServeHTTP(w, r)
			return
		}

		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		route := chi.RouteContext(r.Context()).RoutePattern()
		if route == "" {
			route = "unmatched"
		}
		httpRequestsTotal.WithLabelValues(r.Method, strconv.Itoa(rec.status)).Inc()
		httpRequestDurationSeconds.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// ObserveSubmission counts one symbolication submission outcome.
func ObserveSubmission(outcome string) {
	if submissionsTotal != nil {
		submissionsTotal.WithLabelValues(outcome).Inc()
	}
}

// ObserveRegroup counts one regroup run and the crashes it moved.
func ObserveRegroup(outcome string, moved int) {
	if regroupRunsTotal != nil {
		regroupRunsTotal.WithLabelValues(outcome).Inc()
		groupsMovedTotal.Add(float64(moved))
	}
}

// SetTodoSize records the size of the last served todo list.
func SetTodoSize(n int) {
	if todoListSize != nil {
		todoListSize.Set(float64(n))
	}
}
