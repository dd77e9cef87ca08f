package track

import (
	"time"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"example.com/verve/internal/domain"
)

// Derive fills speed and the cumulative distance/time of cleaned points in
// place. Cumulative sums run across all segments; nil increments add nothing.
func Derive(points []domain.TrackPoint) {
	var distance, elapsed float64
	for i := range points {
		p := &points[i]
		p.Speed = nil
		if p.DistanceFromPrevious != nil {
			distance += *p.DistanceFromPrevious
		}
		if p.TimeFromPrevious != nil {
			elapsed += *p.TimeFromPrevious
			if p.DistanceFromPrevious != nil && *p.TimeFromPrevious > 0 {
				v := *p.DistanceFromPrevious / *p.TimeFromPrevious
				p.Speed = &v
			}
		}
		d, t := distance, elapsed
		p.CumulativeDistance = &d
		p.CumulativeTime = &t
	}
}

// Summarize recomputes every summary field of activity from the derived
// points. Fields without a defined value are nil.
func Summarize(activity domain.Activity, points []domain.TrackPoint, movingSpeed float64) domain.Activity {
	a := activity
	a.Duration = 0
	a.MovingDuration = nil
	a.Distance = nil
	a.ElevationGain, a.ElevationLoss = nil, nil
	a.AvgSpeed, a.MaxSpeed = nil, nil
	a.AvgPower, a.MaxPower = nil, nil
	a.AvgHeartrate, a.MaxHeartrate = nil, nil
	if len(points) == 0 {
		return a
	}

	first, last := points[0].Time, points[0].Time
	var speeds, powers, heartrates []float64
	var moving time.Duration
	var hasMoving, hasIncrement bool
	var gain, loss float64
	var hasElevation bool
	for i, p := range points {
		if p.Time.Before(first) {
			first = p.Time
		}
		if p.Time.After(last) {
			last = p.Time
		}
		if p.DistanceFromPrevious != nil {
			hasIncrement = true
		}
		if p.Speed != nil {
			speeds = append(speeds, *p.Speed)
			hasMoving = true
			if *p.Speed >= movingSpeed && p.TimeFromPrevious != nil {
				moving += time.Duration(*p.TimeFromPrevious * float64(time.Second))
			}
		}
		if p.Power != nil {
			powers = append(powers, float64(*p.Power))
		}
		if p.Heartrate != nil {
			heartrates = append(heartrates, float64(*p.Heartrate))
		}
		if i > 0 && p.TimeFromPrevious != nil && p.Elevation != nil && points[i-1].Elevation != nil {
			hasElevation = true
			delta := *p.Elevation - *points[i-1].Elevation
			if delta > 0 {
				gain += delta
			} else {
				loss -= delta
			}
		}
	}

	if a.Start.IsZero() {
		a.Start = first
	}
	a.Duration = last.Sub(first)
	if hasMoving {
		a.MovingDuration = &moving
	}
	if hasIncrement && points[len(points)-1].CumulativeDistance != nil {
		a.Distance = domain.Float(*points[len(points)-1].CumulativeDistance)
	}
	if hasElevation {
		a.ElevationGain = domain.Float(gain)
		a.ElevationLoss = domain.Float(loss)
	}
	a.AvgSpeed, a.MaxSpeed = meanMax(speeds)
	a.AvgPower, a.MaxPower = meanMax(powers)
	a.AvgHeartrate, a.MaxHeartrate = meanMax(heartrates)
	return a
}

func meanMax(values []float64) (*float64, *float64) {
	if len(values) == 0 {
		return nil, nil
	}
	return domain.Float(stat.Mean(values, nil)), domain.Float(floats.Max(values))
}
