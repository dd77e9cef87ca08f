// Package events defines the payloads exchanged over Kafka.
package events

import "time"

const (
	// TrackUploadedType is consumed to trigger cleaning of a freshly ingested track.
	TrackUploadedType = "activity.track_uploaded"
	// TrackCleanedType is emitted after a cleaned track replaced the stored one.
	TrackCleanedType = "activity.track_cleaned"

	TrackUploadedTopic = "activity_track_uploaded"
	TrackEventsTopic   = "activity_track_events"
)

// TrackUploaded announces that raw points of an activity were persisted.
type TrackUploaded struct {
	ActivityID string    `json:"activity_id"`
	UserID     string    `json:"user_id"`
	UploadedAt time.Time `json:"uploaded_at,omitempty"`
}

// TrackCleaned reports the outcome of a track replacement.
type TrackCleaned struct {
	ActivityID string    `json:"activity_id"`
	UserID     string    `json:"user_id"`
	PointCount int       `json:"point_count"`
	Distance   *float64  `json:"distance"`
	DurationS  float64   `json:"duration_s"`
	CleanedAt  time.Time `json:"cleaned_at"`
}
