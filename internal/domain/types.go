// Package domain defines the data model shared by the track analytics engine.
package domain

import (
	"math"
	"time"
)

// Coordinate is a WGS84 position in decimal degrees.
type Coordinate struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// Valid reports whether the coordinate is finite and within WGS84 bounds.
func (c Coordinate) Valid() bool {
	if math.IsNaN(c.Lat) || math.IsNaN(c.Lon) || math.IsInf(c.Lat, 0) || math.IsInf(c.Lon, 0) {
		return false
	}
	return c.Lat >= -90 && c.Lat <= 90 && c.Lon >= -180 && c.Lon <= 180
}

// TrackPoint is one timestamped position/sensor sample belonging to an activity.
// The derived fields are owned by the cleaner and are replaced as a whole set.
type TrackPoint struct {
	ID         int64
	ActivityID string
	UserID     string
	SegmentID  int
	Time       time.Time
	Coordinate Coordinate
	Elevation  *float64
	Heartrate  *int
	Cadence    *int
	Power      *int

	DistanceFromPrevious *float64 // metres
	TimeFromPrevious     *float64 // seconds
	CumulativeDistance   *float64 // metres
	CumulativeTime       *float64 // seconds
	Speed                *float64 // m/s
}

// ClearDerived drops every derived value from the point.
func (p *TrackPoint) ClearDerived() {
	p.DistanceFromPrevious = nil
	p.TimeFromPrevious = nil
	p.CumulativeDistance = nil
	p.CumulativeTime = nil
	p.Speed = nil
}

// Activity is the persisted activity record together with its track summary.
type Activity struct {
	ID             string
	UserID         string
	Name           string
	TypeID         int
	SubTypeID      *int
	Start          time.Time
	Duration       time.Duration
	MovingDuration *time.Duration
	Distance       *float64 // metres, nil for non-distance activity types
	ElevationGain  *float64
	ElevationLoss  *float64
	AvgSpeed       *float64
	MaxSpeed       *float64
	AvgPower       *float64
	MaxPower       *float64
	AvgHeartrate   *float64
	MaxHeartrate   *float64
	UpdatedAt      time.Time
}

// Location is a user-managed point of interest.
type Location struct {
	ID          string
	UserID      string
	Name        string
	Description string
	TypeID      *int
	SubTypeID   *int
	Coordinate  Coordinate
}

// ActivityFilter narrows the activities considered by an operation.
// Zero values mean "no restriction".
type ActivityFilter struct {
	IDs       []string
	TypeID    *int
	SubTypeID *int
	From      time.Time // inclusive
	To        time.Time // exclusive
	Limit     int
}

// Matches reports whether the activity passes the filter.
func (f ActivityFilter) Matches(a Activity) bool {
	if len(f.IDs) > 0 {
		found := false
		for _, id := range f.IDs {
			if id == a.ID {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if f.TypeID != nil && a.TypeID != *f.TypeID {
		return false
	}
	if f.SubTypeID != nil && (a.SubTypeID == nil || *a.SubTypeID != *f.SubTypeID) {
		return false
	}
	if !f.From.IsZero() && a.Start.Before(f.From) {
		return false
	}
	if !f.To.IsZero() && !a.Start.Before(f.To) {
		return false
	}
	return true
}

// LocationFilter narrows the location catalog by type and sub-type.
type LocationFilter struct {
	TypeID    *int
	SubTypeID *int
}

// Matches reports whether the location passes the filter.
func (f LocationFilter) Matches(l Location) bool {
	if f.TypeID != nil && (l.TypeID == nil || *l.TypeID != *f.TypeID) {
		return false
	}
	if f.SubTypeID != nil && (l.SubTypeID == nil || *l.SubTypeID != *f.SubTypeID) {
		return false
	}
	return true
}

// Float returns a pointer to v.
func Float(v float64) *float64 { return &v }

// Int returns a pointer to v.
func Int(v int) *int { return &v }
