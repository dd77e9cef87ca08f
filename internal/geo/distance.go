// Package geo provides the great-circle distance and planar projection
// primitives used by the track analytics components.
package geo

import (
	"math"

	"github.com/paulmach/orb"
	orbgeo "github.com/paulmach/orb/geo"

	"example.com/verve/internal/domain"
)

// Point converts a coordinate into an orb point (lon, lat order).
func Point(c domain.Coordinate) orb.Point {
	return orb.Point{c.Lon, c.Lat}
}

// Distance returns the haversine distance between a and b in metres.
func Distance(a, b domain.Coordinate) float64 {
	return orbgeo.DistanceHaversine(Point(a), Point(b))
}

// Bound is a lat/lon rectangle used to prefilter candidates before the
// exact distance is computed.
type Bound struct {
	MinLat, MaxLat float64
	MinLon, MaxLon float64
}

// BoundAround returns a rectangle guaranteed to contain every coordinate
// within radius metres of c.
func BoundAround(c domain.Coordinate, radius float64) Bound {
	dLat := radius / orb.EarthRadius * 180 / math.Pi
	// Pad slightly so haversine rounding never excludes a boundary point.
	dLat *= 1.01
	b := Bound{MinLat: c.Lat - dLat, MaxLat: c.Lat + dLat, MinLon: -180, MaxLon: 180}
	cos := math.Cos(math.Max(math.Abs(c.Lat)+dLat, 0) * math.Pi / 180)
	if b.MaxLat < 90 && b.MinLat > -90 && cos > 1e-9 {
		dLon := dLat / cos
		if dLon < 180 {
			b.MinLon = c.Lon - dLon
			b.MaxLon = c.Lon + dLon
		}
	}
	return b
}

// Contains reports whether c lies inside b, handling antimeridian wrap.
func (b Bound) Contains(c domain.Coordinate) bool {
	if c.Lat < b.MinLat || c.Lat > b.MaxLat {
		return false
	}
	if b.MinLon <= -180 && b.MaxLon >= 180 {
		return true
	}
	lon := c.Lon
	if b.MinLon < -180 && lon > 0 {
		lon -= 360
	}
	if b.MaxLon > 180 && lon < 0 {
		lon += 360
	}
	return lon >= b.MinLon && lon <= b.MaxLon
}
