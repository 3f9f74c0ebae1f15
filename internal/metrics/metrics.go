// Package metrics exposes Prometheus instrumentation for the SMS job
// pipeline: job runs, DuckDB script timing, event publication and the
// memoizing caches.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// JobRuns counts job runs by outcome ("ok", "error", "skipped", "locked").
	JobRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sms_job_runs_total",
			Help: "Total number of SMS job runs by outcome",
		},
		[]string{"outcome"},
	)

	ScriptDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "duckdb_script_duration_seconds",
			Help:    "Duration of DuckDB scripts in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation"},
	)

	EventsPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sms_events_published_total",
			Help: "Total number of events published by sink",
		},
		[]string{"sink"},
	)

	PublishWindows = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sms_publish_windows_total",
			Help: "Total number of publication windows by result",
		},
		[]string{"result"},
	)

	CacheLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "memo_cache_lookups_total",
			Help: "Memoizing cache lookups by cache name and result",
		},
		[]string{"cache", "result"},
	)

	SMSSent = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sms_messages_sent_total",
			Help: "SMS messages handed to the provider by result",
		},
		[]string{"result"},
	)
)

// RecordJobRun increments the job run counter.
func RecordJobRun(outcome string) {
	JobRuns.WithLabelValues(outcome).Inc()
}

// ObserveScript records how long a DuckDB script took.
func ObserveScript(operation string, start time.Time) {
	ScriptDuration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
}

// RecordPublished adds n events to the published counter for a sink.
func RecordPublished(sink string, n int) {
	EventsPublished.WithLabelValues(sink).Add(float64(n))
}

// RecordWindow counts a publication window.
func RecordWindow(result string) {
	PublishWindows.WithLabelValues(result).Inc()
}

// RecordCacheLookup counts a memo cache hit or miss.
func RecordCacheLookup(cache string, hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	CacheLookups.WithLabelValues(cache, result).Inc()
}

// RecordSMS counts messages handed to the SMS provider.
func RecordSMS(result string, n int) {
	SMSSent.WithLabelValues(result).Add(float64(n))
}
