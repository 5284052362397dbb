package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// SnapshotsTotal counts archive creations by kind (operator, pre_restore) and result.
	SnapshotsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sitecalm_snapshots_total",
			Help: "Total number of snapshot archives created",
		},
		[]string{"kind", "result"},
	)

	SnapshotDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "sitecalm_snapshot_duration_seconds",
			Help:    "Time spent creating snapshot archives",
			Buckets: prometheus.ExponentialBuckets(0.5, 2, 12),
		},
		[]string{"kind"},
	)

	RestoresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sitecalm_restores_total",
			Help: "Total number of restore runs by mode and result",
		},
		[]string{"mode", "result"},
	)

	// StepDuration tracks external post-restore commands.
	StepDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "sitecalm_step_duration_seconds",
			Help:    "Duration of external post-restore steps",
			Buckets: prometheus.ExponentialBuckets(0.25, 2, 14),
		},
		[]string{"step", "status"},
	)

	RoundRobinTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sitecalm_round_robin_requests_total",
			Help: "Round-robin selections by outcome",
		},
		[]string{"outcome"},
	)

	CursorBreakerState = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "sitecalm_cursor_breaker_state",
			Help: "Cursor store circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
	)

	OffsiteUploadsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sitecalm_offsite_operations_total",
			Help: "Offsite replication operations by operation and result",
		},
		[]string{"operation", "result"},
	)

	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sitecalm_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "sitecalm_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)
)

func Result(err error) string {
	if err != nil {
		return "failure"
	}
	return "success"
}
