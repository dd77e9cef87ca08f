package geo

import (
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/project"

	"example.com/verve/internal/domain"
)

// Projector maps geographic coordinates onto a plane and back.
type Projector interface {
	Forward(c domain.Coordinate) (x, y float64)
	Inverse(x, y float64) domain.Coordinate
}

// MaxMercatorLat is the latitude at which web mercator tiles end.
const MaxMercatorLat = 85.05112878

// WebMercator projects WGS84 coordinates to spherical mercator metres.
// Latitudes beyond MaxMercatorLat are clamped to it.
type WebMercator struct{}

func (WebMercator) Forward(c domain.Coordinate) (float64, float64) {
	c.Lat = math.Max(-MaxMercatorLat, math.Min(MaxMercatorLat, c.Lat))
	p := project.WGS84.ToMercator(Point(c))
	return p.X(), p.Y()
}

func (WebMercator) Inverse(x, y float64) domain.Coordinate {
	p := project.Mercator.ToWGS84(orb.Point{x, y})
	return domain.Coordinate{Lat: p.Lat(), Lon: p.Lon()}
}

// Planar treats coordinates as plane positions (x = Lon, y = Lat).
type Planar struct{}

func (Planar) Forward(c domain.Coordinate) (float64, float64) { return c.Lon, c.Lat }

func (Planar) Inverse(x, y float64) domain.Coordinate {
	return domain.Coordinate{Lat: y, Lon: x}
}
