// Package matching joins track points with coordinates and location
// catalogs by nearest-point distance.
package matching

import (
	"math"
	"sort"

	"example.com/verve/internal/domain"
	"example.com/verve/internal/geo"
)

// DefaultRadius is the proximity threshold in metres used when none is given.
const DefaultRadius = 50.0

// Track is an activity together with its cleaned points.
type Track struct {
	Activity domain.Activity
	Points   []domain.TrackPoint
}

// PointMatch is an activity that passed within the radius of a coordinate.
type PointMatch struct {
	ActivityID string `json:"activity_id"`
	PointCount int    `json:"point_count"`
}

// LocationMatch is a location visited by an activity.
type LocationMatch struct {
	LocationID  string  `json:"location_id"`
	ActivityID  string  `json:"activity_id"`
	MinDistance float64 `json:"min_distance"`
	PointCount  int     `json:"point_count"`
}

func validRadius(field string, r float64) error {
	if math.IsNaN(r) || math.IsInf(r, 0) || r <= 0 {
		return domain.Invalid(field, "must be positive")
	}
	return nil
}

// MatchPoint returns every activity of userID with at least one point
// within radius metres of c, ordered by point count descending.
func MatchPoint(userID string, c domain.Coordinate, radius float64, tracks []Track) ([]PointMatch, error) {
	if userID == "" {
		return nil, domain.ErrMissingIdentity
	}
	if !c.Valid() {
		return nil, domain.Invalid("coordinate", "invalid coordinate %v,%v", c.Lat, c.Lon)
	}
	if err := validRadius("radius", radius); err != nil {
		return nil, err
	}

	bound := geo.BoundAround(c, radius)
	var out []PointMatch
	for _, t := range tracks {
		if t.Activity.UserID != userID {
			continue
		}
		count := 0
		for _, p := range t.Points {
			if p.UserID != userID || !bound.Contains(p.Coordinate) {
				continue
			}
			if geo.Distance(c, p.Coordinate) <= radius {
				count++
			}
		}
		if count > 0 {
			out = append(out, PointMatch{ActivityID: t.Activity.ID, PointCount: count})
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].PointCount != out[j].PointCount {
			return out[i].PointCount > out[j].PointCount
		}
		return out[i].ActivityID < out[j].ActivityID
	})
	return out, nil
}

// MatchLocations pairs every location with the activities whose nearest
// point lies within threshold metres. Locations, activities and points
// only meet when they belong to userID.
func MatchLocations(userID string, locations []domain.Location, tracks []Track, threshold float64) ([]LocationMatch, error) {
	if userID == "" {
		return nil, domain.ErrMissingIdentity
	}
	if err := validRadius("threshold", threshold); err != nil {
		return nil, err
	}

	var out []LocationMatch
	for _, loc := range locations {
		if loc.UserID != userID || !loc.Coordinate.Valid() {
			continue
		}
		bound := geo.BoundAround(loc.Coordinate, threshold)
		for _, t := range tracks {
			if t.Activity.UserID != loc.UserID {
				continue
			}
			minDistance := math.Inf(1)
			count := 0
			for _, p := range t.Points {
				if p.UserID != loc.UserID || !bound.Contains(p.Coordinate) {
					continue
				}
				d := geo.Distance(loc.Coordinate, p.Coordinate)
				if d < minDistance {
					minDistance = d
				}
				if d <= threshold {
					count++
				}
			}
			if minDistance <= threshold {
				out = append(out, LocationMatch{
					LocationID:  loc.ID,
					ActivityID:  t.Activity.ID,
					MinDistance: minDistance,
					PointCount:  count,
				})
			}
		}
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.LocationID != b.LocationID {
			return a.LocationID < b.LocationID
		}
		if a.MinDistance != b.MinDistance {
			return a.MinDistance < b.MinDistance
		}
		return a.ActivityID < b.ActivityID
	})
	return out, nil
}
