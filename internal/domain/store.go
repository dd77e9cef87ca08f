package domain

import "context"

// TrackStore is the point/activity persistence contract used by the engine.
// Implementations must scope every call to userID and report foreign
// activities exactly like missing ones.
type TrackStore interface {
	// ActivityTrack returns the activity and its points ordered by segment and time.
	ActivityTrack(ctx context.Context, userID, activityID string) (*Activity, []TrackPoint, error)
	// ReplaceTrack atomically swaps the point set and the activity summary.
	ReplaceTrack(ctx context.Context, activity Activity, points []TrackPoint) error
	// ListActivities returns the user's activities ordered by start descending.
	ListActivities(ctx context.Context, userID string, filter ActivityFilter) ([]Activity, error)
	// TrackPoints returns the points of the given activities keyed by activity id.
	TrackPoints(ctx context.Context, userID string, activityIDs []string) (map[string][]TrackPoint, error)
}

// LocationStore reads the user's location catalog.
type LocationStore interface {
	ListLocations(ctx context.Context, userID string, filter LocationFilter) ([]Location, error)
}
