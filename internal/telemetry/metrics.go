// Package telemetry exposes prometheus metrics for both runtime roles.
package telemetry

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	httpReqs = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"route", "method", "status"},
	)
	httpDur = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"route", "method"},
	)

	// PublishTotal counts snapshot publishes per environment and outcome.
	PublishTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "config_publish_total",
		Help: "Snapshot publish attempts by environment and outcome",
	}, []string{"environment", "outcome"})

	// InstalledConfigVersion is the snapshot version currently installed
	// per environment on a decision node.
	InstalledConfigVersion = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "config_installed_version",
		Help: "Installed config snapshot version per environment",
	}, []string{"environment"})

	// PollErrors counts failed poll ticks per environment.
	PollErrors = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "config_poll_errors_total",
		Help: "Failed config poll ticks per environment",
	}, []string{"environment"})
)

var registered = false

// Init registers all metrics. Safe to call once per process.
func Init() {
	if registered {
		return
	}
	registered = true
	prometheus.MustRegister(httpReqs, httpDur, PublishTotal, InstalledConfigVersion, PollErrors)
}

// Handler returns the /metrics endpoint handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Middleware records request counts and latencies labelled by chi route
// pattern.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		route := r.URL.Path
		if rc := chi.RouteContext(r.Context()); rc != nil && rc.RoutePattern() != "" {
			route = rc.RoutePattern()
		}

		start := time.Now()
		ww := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(ww, r)

		httpReqs.WithLabelValues(route, r.Method, strconv.Itoa(ww.status)).Inc()
		httpDur.WithLabelValues(route, r.Method).Observe(time.Since(start).Seconds())
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

func (w *statusWriter) Flush() {
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}
