package outbox

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
)

// Outcomes of one dead-letter replay attempt.
const (
	dlqOutcomeRequeued    = "requeued"
	dlqOutcomeRetry       = "retry_scheduled"
	dlqOutcomeQuarantined = "quarantined"
)

var (
	dlqReplayCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "verve",
		Subsystem: "dlq",
		Name:      "track_event_replays_total",
		Help:      "Dead-lettered track events handled by the replay loop, by outcome.",
	}, []string{"topic", "event_type", "outcome"})

	dlqPendingGauge = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "verve",
		Subsystem: "dlq",
		Name:      "track_events_pending",
		Help:      "Dead-lettered track events still eligible for replay, by topic.",
	}, []string{"topic"})

	dlqQuarantinedGauge = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "verve",
		Subsystem: "dlq",
		Name:      "track_events_quarantined",
		Help:      "Dead-lettered track events parked after exhausting retries, by topic.",
	}, []string{"topic"})
)

func init() {
	prometheus.MustRegister(dlqReplayCounter, dlqPendingGauge, dlqQuarantinedGauge)
}

func recordDLQOutcome(entry dlqEntry, outcome string) {
	dlqReplayCounter.WithLabelValues(entry.Topic, entry.EventType, outcome).Inc()
}

// dlqBacklog is the dead-letter state of one topic.
type dlqBacklog struct {
	Topic       string
	Pending     int
	Quarantined int
}

// setDLQBacklog replaces the per-topic gauges so drained topics drop out.
func setDLQBacklog(backlog []dlqBacklog) {
	dlqPendingGauge.Reset()
	dlqQuarantinedGauge.Reset()
	for _, b := range backlog {
		dlqPendingGauge.WithLabelValues(b.Topic).Set(float64(b.Pending))
		dlqQuarantinedGauge.WithLabelValues(b.Topic).Set(float64(b.Quarantined))
	}
}

func refreshDLQBacklog(ctx context.Context, pool *pgxpool.Pool) {
	rows, err := pool.Query(ctx, `SELECT topic,
	        COUNT(*) FILTER (WHERE quarantined_at IS NULL),
	        COUNT(*) FILTER (WHERE quarantined_at IS NOT NULL)
	   FROM outbox_dlq
	  GROUP BY topic`)
	if err != nil {
		return
	}
	defer rows.Close()

	var backlog []dlqBacklog
	for rows.Next() {
		var b dlqBacklog
		if err := rows.Scan(&b.Topic, &b.Pending, &b.Quarantined); err != nil {
			return
		}
		backlog = append(backlog, b)
	}
	if rows.Err() != nil {
		return
	}
	setDLQBacklog(backlog)
}
