// Package powercurve ranks the best trailing-window average power of an
// activity for a set of target durations.
package powercurve

import (
	"context"
	"sort"
	"sync"
	"time"

	"gonum.org/v1/gonum/stat"

	"example.com/verve/internal/domain"
)

// DefaultTopK is the number of windows reported per duration when unset.
const DefaultTopK = 3

// DefaultDurations are the target durations used when none are requested.
var DefaultDurations = []time.Duration{
	1 * time.Minute,
	2 * time.Minute,
	5 * time.Minute,
	10 * time.Minute,
	20 * time.Minute,
	30 * time.Minute,
	60 * time.Minute,
}

// Window is one trailing window ending at an anchor point.
type Window struct {
	PointID    int64     `json:"point_id"`
	AnchorTime time.Time `json:"anchor_time"`
	Average    float64   `json:"average"`
}

// Curve holds the top ranked windows for one duration.
type Curve struct {
	Duration  time.Duration `json:"duration"`
	Windows   []Window      `json:"windows"`
	MeanOfTop *float64      `json:"mean_of_top"`
}

type sample struct {
	id    int64
	at    time.Time
	watts int64
}

// Compute returns one curve per duration in request order. Every duration
// is evaluated on its own goroutine over the same read-only samples.
func Compute(ctx context.Context, points []domain.TrackPoint, durations []time.Duration, topK int) ([]Curve, error) {
	if len(durations) == 0 {
		durations = DefaultDurations
	}
	for _, d := range durations {
		if d <= 0 {
			return nil, domain.Invalid("duration", "must be positive, got %s", d)
		}
	}
	if topK <= 0 {
		return nil, domain.Invalid("top", "must be positive, got %d", topK)
	}

	samples := make([]sample, 0, len(points))
	for _, p := range points {
		if p.Power == nil {
			continue
		}
		samples = append(samples, sample{id: p.ID, at: p.Time, watts: int64(*p.Power)})
	}
	sort.SliceStable(samples, func(i, j int) bool {
		if !samples[i].at.Equal(samples[j].at) {
			return samples[i].at.Before(samples[j].at)
		}
		return samples[i].id < samples[j].id
	})

	curves := make([]Curve, len(durations))
	var wg sync.WaitGroup
	for i, d := range durations {
		wg.Add(1)
		go func(i int, d time.Duration) {
			defer wg.Done()
			curves[i] = rank(windows(samples, d), d, topK)
		}(i, d)
	}
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return curves, nil
}

// windows computes the average of every window [anchor-d, anchor] with a
// running sum; the trailing edge only ever moves forward.
func windows(samples []sample, d time.Duration) []Window {
	out := make([]Window, 0, len(samples))
	var sum int64
	left := 0
	for right, s := range samples {
		sum += s.watts
		start := s.at.Add(-d)
		for samples[left].at.Before(start) {
			sum -= samples[left].watts
			left++
		}
		out = append(out, Window{
			PointID:    s.id,
			AnchorTime: s.at,
			Average:    float64(sum) / float64(right-left+1),
		})
	}
	return out
}

func rank(all []Window, d time.Duration, topK int) Curve {
	sort.Slice(all, func(i, j int) bool {
		a, b := all[i], all[j]
		if a.Average != b.Average {
			return a.Average > b.Average
		}
		if !a.AnchorTime.Equal(b.AnchorTime) {
			return a.AnchorTime.Before(b.AnchorTime)
		}
		return a.PointID < b.PointID
	})
	if len(all) > topK {
		all = all[:topK]
	}
	curve := Curve{Duration: d, Windows: all}
	if len(all) > 0 {
		values := make([]float64, len(all))
		for i, w := range all {
			values[i] = w.Average
		}
		mean := stat.Mean(values, nil)
		curve.MeanOfTop = &mean
	}
	return curve
}
