// Package memory provides an in-process track store for local development
// and tests.
package memory

import (
	"context"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"example.com/verve/internal/domain"
)

// Store keeps activities, points and locations in memory. Track
// replacements swap the whole point slice under the write lock, so readers
// see either the old or the new set.
type Store struct {
	mu         sync.RWMutex
	activities map[string]domain.Activity
	points     map[string][]domain.TrackPoint
	locations  map[string]domain.Location
	replaced   []string
}

// NewStore constructs an empty Store.
func NewStore() *Store {
	return &Store{
		activities: make(map[string]domain.Activity),
		points:     make(map[string][]domain.TrackPoint),
		locations:  make(map[string]domain.Location),
	}
}

// PutActivity stores an activity and its raw points, assigning ids when missing.
func (s *Store) PutActivity(ctx context.Context, activity domain.Activity, points []domain.TrackPoint) (domain.Activity, error) {
	if strings.TrimSpace(activity.UserID) == "" {
		return domain.Activity{}, domain.ErrMissingIdentity
	}
	if strings.TrimSpace(activity.ID) == "" {
		activity.ID = uuid.NewString()
	}
	if activity.UpdatedAt.IsZero() {
		activity.UpdatedAt = time.Now().UTC()
	}
	stored := make([]domain.TrackPoint, len(points))
	for i, p := range points {
		p.ActivityID = activity.ID
		p.UserID = activity.UserID
		if p.ID == 0 {
			p.ID = int64(i + 1)
		}
		stored[i] = p
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.activities[activity.ID] = activity
	s.points[activity.ID] = stored
	return activity, nil
}

// PutLocation stores a location, assigning an id when missing.
func (s *Store) PutLocation(ctx context.Context, location domain.Location) (domain.Location, error) {
	if strings.TrimSpace(location.UserID) == "" {
		return domain.Location{}, domain.ErrMissingIdentity
	}
	if strings.TrimSpace(location.ID) == "" {
		location.ID = uuid.NewString()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.locations[location.ID] = location
	return location, nil
}

// ActivityTrack implements domain.TrackStore.
func (s *Store) ActivityTrack(ctx context.Context, userID, activityID string) (*domain.Activity, []domain.TrackPoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	activity, ok := s.activities[activityID]
	if !ok || activity.UserID != userID {
		return nil, nil, domain.ErrActivityNotFound
	}
	points := ordered(s.points[activityID])
	return &activity, points, nil
}

// ReplaceTrack implements domain.TrackStore.
func (s *Store) ReplaceTrack(ctx context.Context, activity domain.Activity, points []domain.TrackPoint) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	replacement := slices.Clone(points)

	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.activities[activity.ID]
	if !ok || current.UserID != activity.UserID {
		return domain.ErrActivityNotFound
	}
	s.activities[activity.ID] = activity
	s.points[activity.ID] = replacement
	s.replaced = append(s.replaced, activity.ID)
	return nil
}

// Replacements returns the activity ids in the order their tracks were replaced.
func (s *Store) Replacements() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.replaced)
}

// ListActivities implements domain.TrackStore.
func (s *Store) ListActivities(ctx context.Context, userID string, filter domain.ActivityFilter) ([]domain.Activity, error) {
	s.mu.RLock()
	out := make([]domain.Activity, 0)
	for _, a := range s.activities {
		if a.UserID == userID && filter.Matches(a) {
			out = append(out, a)
		}
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if !out[i].Start.Equal(out[j].Start) {
			return out[i].Start.After(out[j].Start)
		}
		return out[i].ID < out[j].ID
	})
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

// TrackPoints implements domain.TrackStore.
func (s *Store) TrackPoints(ctx context.Context, userID string, activityIDs []string) (map[string][]domain.TrackPoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string][]domain.TrackPoint, len(activityIDs))
	for _, id := range activityIDs {
		a, ok := s.activities[id]
		if !ok || a.UserID != userID {
			continue
		}
		out[id] = ordered(s.points[id])
	}
	return out, nil
}

// ListLocations implements domain.LocationStore.
func (s *Store) ListLocations(ctx context.Context, userID string, filter domain.LocationFilter) ([]domain.Location, error) {
	s.mu.RLock()
	out := make([]domain.Location, 0)
	for _, l := range s.locations {
		if l.UserID == userID && filter.Matches(l) {
			out = append(out, l)
		}
	}
	s.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func ordered(points []domain.TrackPoint) []domain.TrackPoint {
	out := slices.Clone(points)
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].SegmentID != out[j].SegmentID {
			return out[i].SegmentID < out[j].SegmentID
		}
		return out[i].Time.Before(out[j].Time)
	})
	return out
}
