package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	instance *Metrics
	once     sync.Once
)

// Metrics holds Prometheus metrics for the refresh engine.
type Metrics struct {
	CyclesTotal        *prometheus.CounterVec
	CycleDuration      prometheus.Histogram
	GroupErrorsTotal   prometheus.Counter
	NotificationsTotal *prometheus.CounterVec
	PersistErrorsTotal prometheus.Counter
	SnapshotVersion    prometheus.Gauge
	SpamListSize       prometheus.Gauge
	ExtractionRetries  *prometheus.CounterVec
}

// GetMetrics returns the metrics singleton.
func GetMetrics() *Metrics {
	once.Do(func() {
		instance = newMetrics()
	})
	return instance
}

func newMetrics() *Metrics {
	m := &Metrics{}

	m.CyclesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "timetable_cycles_total",
			Help: "Total number of refresh cycles by outcome",
		},
		[]string{"outcome"},
	)

	m.CycleDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "timetable_cycle_duration_seconds",
			Help:    "Duration of refresh cycles",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 12),
		},
	)

	m.GroupErrorsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "timetable_group_errors_total",
			Help: "Total number of groups skipped because of normalization errors",
		},
	)

	m.NotificationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "timetable_notifications_total",
			Help: "Total number of notification messages by result",
		},
		[]string{"result"},
	)

	m.PersistErrorsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "timetable_state_persist_errors_total",
			Help: "Total number of failed state file writes",
		},
	)

	m.SnapshotVersion = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "timetable_snapshot_version",
			Help: "Version of the committed timetable snapshot",
		},
	)

	m.SpamListSize = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "timetable_spam_list_size",
			Help: "Number of users currently in the spam list",
		},
	)

	m.ExtractionRetries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "timetable_extraction_retries_total",
			Help: "Total number of retried source requests",
		},
		[]string{"source"},
	)

	return m
}
