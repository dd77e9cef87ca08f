package outbox

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"example.com/verve/internal/events"
)

func TestRecordDLQOutcomeLabelsByOutcome(t *testing.T) {
	entry := dlqEntry{Topic: events.TrackEventsTopic, EventType: events.TrackCleanedType}
	retry := dlqReplayCounter.WithLabelValues(entry.Topic, entry.EventType, dlqOutcomeRetry)
	quarantined := dlqReplayCounter.WithLabelValues(entry.Topic, entry.EventType, dlqOutcomeQuarantined)
	beforeRetry, beforeQuarantined := testutil.ToFloat64(retry), testutil.ToFloat64(quarantined)

	recordDLQOutcome(entry, dlqOutcomeRetry)
	recordDLQOutcome(entry, dlqOutcomeRetry)
	recordDLQOutcome(entry, dlqOutcomeQuarantined)

	require.Equal(t, beforeRetry+2, testutil.ToFloat64(retry))
	require.Equal(t, beforeQuarantined+1, testutil.ToFloat64(quarantined))
}

func TestSetDLQBacklogDropsDrainedTopics(t *testing.T) {
	setDLQBacklog([]dlqBacklog{
		{Topic: events.TrackEventsTopic, Pending: 3, Quarantined: 1},
		{Topic: events.TrackUploadedTopic, Pending: 2},
	})
	require.Equal(t, 2, testutil.CollectAndCount(dlqPendingGauge))
	require.Equal(t, 3.0, testutil.ToFloat64(dlqPendingGauge.WithLabelValues(events.TrackEventsTopic)))
	require.Equal(t, 1.0, testutil.ToFloat64(dlqQuarantinedGauge.WithLabelValues(events.TrackEventsTopic)))

	setDLQBacklog([]dlqBacklog{{Topic: events.TrackUploadedTopic, Pending: 1}})
	require.Equal(t, 1, testutil.CollectAndCount(dlqPendingGauge))
	require.Equal(t, 1.0, testutil.ToFloat64(dlqPendingGauge.WithLabelValues(events.TrackUploadedTopic)))

	setDLQBacklog(nil)
	require.Zero(t, testutil.CollectAndCount(dlqPendingGauge))
}
