// Package metrics exposes Prometheus collectors for the supervisor.
package metrics

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	workerStartsTotal          *prometheus.CounterVec
	workerExitsTotal           *prometheus.CounterVec
	logLinesTotal              *prometheus.CounterVec
	overlayMessagesTotal       prometheus.Counter
	streamSubscribers          *prometheus.GaugeVec
	httpRequestsTotal          *prometheus.CounterVec
	httpRequestDurationSeconds *prometheus.HistogramVec

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times. Observe helpers are no-ops
// until Init runs.
func Init() {
	once.Do(func() {
		workerStartsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tagrelay_worker_starts_total",
				Help: "Total number of worker processes started, labeled by mode.",
			},
			[]string{"mode"},
		)

		workerExitsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tagrelay_worker_exits_total",
				Help: "Total number of worker process exits, labeled by outcome.",
			},
			[]string{"outcome"},
		)

		logLinesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tagrelay_log_lines_total",
				Help: "Total number of log lines broadcast, labeled by source stream.",
			},
			[]string{"stream"},
		)

		overlayMessagesTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "tagrelay_overlay_messages_total",
				Help: "Total number of overlay messages accepted.",
			},
		)

		streamSubscribers = promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "tagrelay_stream_subscribers",
				Help: "Number of connected event-stream subscribers, labeled by channel.",
			},
			[]string{"channel"},
		)

		httpRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests, labeled by method and code.",
			},
			[]string{"method", "code"},
		)

		httpRequestDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Histogram of HTTP request latencies, labeled by method and route.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
			},
			[]string{"method", "route"},
		)
	})
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveWorkerStart counts a worker launch in the given mode.
func ObserveWorkerStart(mode string) {
	if workerStartsTotal == nil {
		return
	}
	workerStartsTotal.WithLabelValues(mode).Inc()
}

// ObserveWorkerExit counts a worker exit. outcome is "clean", "error" or "signal".
func ObserveWorkerExit(outcome string) {
	if workerExitsTotal == nil {
		return
	}
	workerExitsTotal.WithLabelValues(outcome).Inc()
}

// ObserveLogLine counts one broadcast log line from stream.
func ObserveLogLine(stream string) {
	if logLinesTotal == nil {
		return
	}
	logLinesTotal.WithLabelValues(stream).Inc()
}

// ObserveOverlayMessage counts one accepted overlay message.
func ObserveOverlayMessage() {
	if overlayMessagesTotal == nil {
		return
	}
	overlayMessagesTotal.Inc()
}

// SetSubscribers records the subscriber count for channel.
func SetSubscribers(channel string, n int) {
	if streamSubscribers == nil {
		return
	}
	streamSubscribers.WithLabelValues(channel).Set(float64(n))
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	if httpRequestsTotal == nil {
		return
	}
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}
