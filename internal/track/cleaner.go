// Package track cleans raw activity tracks and derives per-point and
// activity-level metrics from the cleaned sequence.
package track

import (
	"math"
	"sort"

	"example.com/verve/internal/domain"
	"example.com/verve/internal/geo"
)

// DuplicatePolicy decides what happens to repeated timestamps inside a segment.
type DuplicatePolicy string

const (
	DuplicateReject    DuplicatePolicy = "reject"
	DuplicateKeepFirst DuplicatePolicy = "keep_first"
)

// NoiseReference selects which predecessor the noise distance is measured against.
type NoiseReference string

const (
	// ReferenceSurvivor measures against the last retained point of the segment.
	ReferenceSurvivor NoiseReference = "survivor"
	// ReferenceOriginal measures against the immediate predecessor in the validated input.
	ReferenceOriginal NoiseReference = "original"
)

// Options configures Clean and Summarize.
type Options struct {
	MinDistance float64 // metres
	Duplicates  DuplicatePolicy
	Reference   NoiseReference
	MovingSpeed float64 // m/s
}

// DefaultOptions returns the cleaning settings used when nothing is configured.
func DefaultOptions() Options {
	return Options{
		MinDistance: 1,
		Duplicates:  DuplicateKeepFirst,
		Reference:   ReferenceSurvivor,
		MovingSpeed: 0.5,
	}
}

// Validate checks the option values.
func (o Options) Validate() error {
	if math.IsNaN(o.MinDistance) || math.IsInf(o.MinDistance, 0) || o.MinDistance < 0 {
		return domain.Invalid("min_distance", "must be a finite value >= 0")
	}
	switch o.Duplicates {
	case DuplicateReject, DuplicateKeepFirst:
	default:
		return domain.Invalid("duplicate_policy", "unknown policy %q", o.Duplicates)
	}
	switch o.Reference {
	case ReferenceSurvivor, ReferenceOriginal:
	default:
		return domain.Invalid("noise_reference", "unknown reference %q", o.Reference)
	}
	if math.IsNaN(o.MovingSpeed) || o.MovingSpeed < 0 {
		return domain.Invalid("moving_speed", "must be >= 0")
	}
	return nil
}

// SkippedPoint reports an input point that was rejected during cleaning.
type SkippedPoint struct {
	Index   int    `json:"index"`
	PointID int64  `json:"point_id"`
	Reason  string `json:"reason"`
}

// CleanResult is the outcome of Clean.
type CleanResult struct {
	Points  []domain.TrackPoint
	Removed int
	Skipped []SkippedPoint
}

type indexedPoint struct {
	index int
	point domain.TrackPoint
}

// Clean orders, validates, deduplicates and noise-filters one activity's
// points, then recomputes distance and elapsed time against the surviving
// predecessor of every point. The input slice is not modified.
func Clean(points []domain.TrackPoint, opts Options) (CleanResult, error) {
	if err := opts.Validate(); err != nil {
		return CleanResult{}, err
	}
	if len(points) == 0 {
		return CleanResult{}, domain.Invalid("points", "empty point set")
	}

	var result CleanResult
	valid := make([]indexedPoint, 0, len(points))
	for i, p := range points {
		if reason := malformed(p); reason != "" {
			result.Skipped = append(result.Skipped, SkippedPoint{Index: i, PointID: p.ID, Reason: reason})
			continue
		}
		valid = append(valid, indexedPoint{index: i, point: p})
	}
	sort.SliceStable(valid, func(i, j int) bool {
		a, b := valid[i].point, valid[j].point
		if a.SegmentID != b.SegmentID {
			return a.SegmentID < b.SegmentID
		}
		return a.Time.Before(b.Time)
	})

	deduped := valid[:0:0]
	for i, ip := range valid {
		if i > 0 {
			prev := valid[i-1].point
			if prev.SegmentID == ip.point.SegmentID && prev.Time.Equal(ip.point.Time) {
				if opts.Duplicates == DuplicateReject {
					return CleanResult{}, domain.Invalid("points", "duplicate timestamp %s in segment %d at index %d",
						ip.point.Time.Format("2006-01-02T15:04:05.999Z07:00"), ip.point.SegmentID, ip.index)
				}
				result.Skipped = append(result.Skipped, SkippedPoint{Index: ip.index, PointID: ip.point.ID, Reason: "duplicate timestamp"})
				continue
			}
		}
		deduped = append(deduped, ip)
	}
	if len(deduped) == 0 {
		return CleanResult{}, domain.Invalid("points", "no valid points after filtering")
	}
	sort.SliceStable(result.Skipped, func(i, j int) bool { return result.Skipped[i].Index < result.Skipped[j].Index })

	out := make([]domain.TrackPoint, 0, len(deduped))
	for i := range deduped {
		p := deduped[i].point
		p.ClearDerived()
		if i == 0 || deduped[i-1].point.SegmentID != p.SegmentID {
			out = append(out, p)
			continue
		}
		survivor := out[len(out)-1]
		ref := survivor.Coordinate
		if opts.Reference == ReferenceOriginal {
			ref = deduped[i-1].point.Coordinate
		}
		if geo.Distance(ref, p.Coordinate) < opts.MinDistance {
			result.Removed++
			continue
		}
		d := geo.Distance(survivor.Coordinate, p.Coordinate)
		dt := p.Time.Sub(survivor.Time).Seconds()
		p.DistanceFromPrevious = &d
		p.TimeFromPrevious = &dt
		out = append(out, p)
	}
	result.Points = out
	return result, nil
}

func malformed(p domain.TrackPoint) string {
	switch {
	case !p.Coordinate.Valid():
		return "invalid coordinate"
	case p.Time.IsZero():
		return "missing timestamp"
	case p.Elevation != nil && (math.IsNaN(*p.Elevation) || math.IsInf(*p.Elevation, 0)):
		return "invalid elevation"
	case p.Power != nil && *p.Power < 0:
		return "negative power"
	case p.Heartrate != nil && *p.Heartrate < 0:
		return "negative heartrate"
	case p.Cadence != nil && *p.Cadence < 0:
		return "negative cadence"
	}
	return ""
}
