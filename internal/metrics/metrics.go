// Package metrics exposes Prometheus collectors for the monitor.
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
	cyclesTotal                *prometheus.CounterVec
	cycleDurationSeconds       prometheus.Histogram
	recordsExtracted           prometheus.Gauge
	newRecordsTotal            prometheus.Counter
	notificationsTotal         *prometheus.CounterVec
	seenWritesTotal            *prometheus.CounterVec
	seenIDs                    prometheus.Gauge
	fetchBytesTotal            prometheus.Counter
	pacingDelaySeconds         prometheus.Histogram
	httpRequestsTotal          *prometheus.CounterVec
	httpRequestDurationSeconds *prometheus.HistogramVec

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		cyclesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "stockwatch_cycles_total",
				Help: "Total number of poll cycles, labeled by result.",
			},
			[]string{"result"},
		)

		cycleDurationSeconds = promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "stockwatch_cycle_duration_seconds",
				Help:    "Histogram of poll cycle durations including notification pacing.",
				Buckets: []float64{0.5, 1, 2, 5, 10, 30, 60, 120},
			},
		)

		recordsExtracted = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "stockwatch_records_extracted",
				Help: "Number of announcements extracted by the most recent cycle.",
			},
		)

		newRecordsTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "stockwatch_new_records_total",
				Help: "Total number of announcements not present in the seen set when extracted.",
			},
		)

		notificationsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "stockwatch_notifications_total",
				Help: "Total number of notification attempts, labeled by result.",
			},
			[]string{"result"},
		)

		seenWritesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "stockwatch_seen_writes_total",
				Help: "Total number of seen-set persist attempts, labeled by result.",
			},
			[]string{"result"},
		)

		seenIDs = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "stockwatch_seen_ids",
				Help: "Number of IDs held in the in-memory seen set.",
			},
		)

		fetchBytesTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "stockwatch_fetch_bytes_total",
				Help: "Total number of bytes fetched from the source page.",
			},
		)

		pacingDelaySeconds = promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "stockwatch_pacing_delay_seconds",
				Help:    "Histogram of time spent waiting between notifications.",
				Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5},
			},
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
	Init()
	return promhttp.Handler()
}

// ObserveCycle records the result and duration of a finished poll cycle.
func ObserveCycle(result string, extracted, fresh int, duration time.Duration) {
	Init()
	cyclesTotal.WithLabelValues(result).Inc()
	cycleDurationSeconds.Observe(duration.Seconds())
	recordsExtracted.Set(float64(extracted))
	if fresh > 0 {
		newRecordsTotal.Add(float64(fresh))
	}
}

// ObserveNotification counts one notification attempt.
func ObserveNotification(delivered bool) {
	Init()
	result := "delivered"
	if !delivered {
		result = "failed"
	}
	notificationsTotal.WithLabelValues(result).Inc()
}

// ObserveSeenWrite counts one seen-set persist attempt and tracks its size.
func ObserveSeenWrite(size int, err error) {
	Init()
	if err != nil {
		seenWritesTotal.WithLabelValues("error").Inc()
		return
	}
	seenWritesTotal.WithLabelValues("ok").Inc()
	seenIDs.Set(float64(size))
}

// SetSeenIDs sets the seen-set size gauge, used after the initial load.
func SetSeenIDs(size int) {
	Init()
	seenIDs.Set(float64(size))
}

// ObserveFetch adds the size of a fetched page body.
func ObserveFetch(bytesFetched int) {
	Init()
	if bytesFetched > 0 {
		fetchBytesTotal.Add(float64(bytesFetched))
	}
}

// ObservePacingDelay records how long a notification waited for its slot.
func ObservePacingDelay(d time.Duration) {
	Init()
	pacingDelaySeconds.Observe(d.Seconds())
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	Init()
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}
