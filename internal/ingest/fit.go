// Package ingest decodes FIT and GPX recordings into raw track points.
package ingest

import (
	"errors"
	"fmt"
	"io"
	"math"

	"github.com/tormoder/fit"

	"example.com/verve/internal/domain"
)

// ErrNoRecords is returned when a file decodes but carries no samples.
var ErrNoRecords = errors.New("file contains no track records")

// DecodeFIT reads an activity FIT file. Records without a position keep an
// invalid coordinate so the cleaner can report them; every point lands in
// segment 0.
func DecodeFIT(r io.Reader) ([]domain.TrackPoint, error) {
	decoded, err := fit.Decode(r)
	if err != nil {
		return nil, fmt.Errorf("decode FIT file: %w", err)
	}
	activity, err := decoded.Activity()
	if err != nil {
		return nil, fmt.Errorf("activity FIT expected: %w", err)
	}
	if len(activity.Records) == 0 {
		return nil, ErrNoRecords
	}

	points := make([]domain.TrackPoint, 0, len(activity.Records))
	for _, rec := range activity.Records {
		if rec == nil {
			continue
		}
		points = append(points, fitPoint(rec))
	}
	return points, nil
}

func fitPoint(rec *fit.RecordMsg) domain.TrackPoint {
	p := domain.TrackPoint{
		Time:       rec.Timestamp.UTC(),
		Coordinate: domain.Coordinate{Lat: math.NaN(), Lon: math.NaN()},
	}
	if !rec.PositionLat.Invalid() && !rec.PositionLong.Invalid() {
		p.Coordinate = domain.Coordinate{Lat: rec.PositionLat.Degrees(), Lon: rec.PositionLong.Degrees()}
	}
	if alt := rec.GetEnhancedAltitudeScaled(); isFinite(alt) {
		p.Elevation = domain.Float(alt)
	} else if alt := rec.GetAltitudeScaled(); isFinite(alt) {
		p.Elevation = domain.Float(alt)
	}
	if rec.HeartRate != math.MaxUint8 {
		p.Heartrate = domain.Int(int(rec.HeartRate))
	}
	if rec.Cadence != math.MaxUint8 {
		p.Cadence = domain.Int(int(rec.Cadence))
	}
	if rec.Power != math.MaxUint16 {
		p.Power = domain.Int(int(rec.Power))
	}
	return p
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
