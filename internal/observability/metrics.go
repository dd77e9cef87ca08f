package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	operationDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "verve",
		Subsystem: "engine",
		Name:      "operation_duration_seconds",
		Help:      "Duration of track analytics operations.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"operation", "outcome"})
	pointsRemovedCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "verve",
		Subsystem: "engine",
		Name:      "points_removed_total",
		Help:      "Track points dropped by the noise filter.",
	})
	pointsSkippedCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "verve",
		Subsystem: "engine",
		Name:      "points_skipped_total",
		Help:      "Malformed or duplicate track points skipped during cleaning.",
	}, []string{"reason"})
	trackReplacedGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "verve",
		Subsystem: "persistence",
		Name:      "last_track_replaced_timestamp_seconds",
		Help:      "Unix timestamp of the most recent cleaned track replacement.",
	})
)

func init() {
	prometheus.MustRegister(operationDuration, pointsRemovedCounter, pointsSkippedCounter, trackReplacedGauge)
}

// ObserveOperation records how long an engine operation took and whether it failed.
func ObserveOperation(operation string, started time.Time, err error) {
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	operationDuration.WithLabelValues(operation, outcome).Observe(time.Since(started).Seconds())
}

// RecordCleaning counts the points removed and skipped by one cleaning run.
func RecordCleaning(removed int, skippedReasons []string) {
	if removed > 0 {
		pointsRemovedCounter.Add(float64(removed))
	}
	for _, reason := range skippedReasons {
		pointsSkippedCounter.WithLabelValues(reason).Inc()
	}
}

// RecordTrackReplaced updates the replacement watermark gauge.
func RecordTrackReplaced(ts time.Time) {
	if ts.IsZero() {
		return
	}
	trackReplacedGauge.Set(float64(ts.Unix()))
}
