// Package heatmap buckets projected track points into square grid cells.
package heatmap

import (
	"context"
	"math"
	"runtime"
	"sort"
	"sync"

	"example.com/verve/internal/domain"
	"example.com/verve/internal/geo"
)

// DefaultCellSize is the grid edge length in projected units.
const DefaultCellSize = 10.0

// Key identifies a grid cell by its integer column and row.
type Key struct {
	X int64 `json:"x"`
	Y int64 `json:"y"`
}

// Cell is the aggregate of every point that fell into one grid cell.
type Cell struct {
	Key           Key               `json:"key"`
	Centroid      domain.Coordinate `json:"centroid"`
	ActivityCount int               `json:"activity_count"`
	PointCount    int               `json:"point_count"`
}

// Options configures Build. A nil Projector means web mercator.
type Options struct {
	CellSize    float64
	ActivityIDs []string
	Projector   geo.Projector
}

type projected struct {
	x, y float64
}

type partial map[Key][]projected

// Build projects the points of every track, buckets them by
// floor(coordinate / CellSize) and returns cells ordered by point count.
// Identical input yields identical cells irrespective of ordering.
func Build(ctx context.Context, tracks map[string][]domain.TrackPoint, opts Options) ([]Cell, error) {
	if math.IsNaN(opts.CellSize) || math.IsInf(opts.CellSize, 0) || opts.CellSize <= 0 {
		return nil, domain.Invalid("cell_size", "must be positive")
	}
	projector := opts.Projector
	if projector == nil {
		projector = geo.WebMercator{}
	}

	ids := selectActivities(tracks, opts.ActivityIDs)
	partials := make([]partial, len(ids))

	sem := make(chan struct{}, runtime.GOMAXPROCS(0))
	var wg sync.WaitGroup
	for i, id := range ids {
		wg.Add(1)
		sem <- struct{}{}
		go func(i int, points []domain.TrackPoint) {
			defer func() {
				<-sem
				wg.Done()
			}()
			partials[i] = bucket(points, projector, opts.CellSize)
		}(i, tracks[id])
	}
	wg.Wait()
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	merged := make(map[Key][]projected)
	activities := make(map[Key]int)
	for _, part := range partials {
		for key, pts := range part {
			merged[key] = append(merged[key], pts...)
			activities[key]++
		}
	}

	cells := make([]Cell, 0, len(merged))
	for key, pts := range merged {
		sort.Slice(pts, func(i, j int) bool {
			if pts[i].x != pts[j].x {
				return pts[i].x < pts[j].x
			}
			return pts[i].y < pts[j].y
		})
		var sx, sy float64
		for _, p := range pts {
			sx += p.x
			sy += p.y
		}
		n := float64(len(pts))
		cells = append(cells, Cell{
			Key:           key,
			Centroid:      projector.Inverse(sx/n, sy/n),
			ActivityCount: activities[key],
			PointCount:    len(pts),
		})
	}
	sort.Slice(cells, func(i, j int) bool {
		a, b := cells[i], cells[j]
		if a.PointCount != b.PointCount {
			return a.PointCount > b.PointCount
		}
		if a.ActivityCount != b.ActivityCount {
			return a.ActivityCount > b.ActivityCount
		}
		if a.Key.X != b.Key.X {
			return a.Key.X < b.Key.X
		}
		return a.Key.Y < b.Key.Y
	})
	return cells, nil
}

func selectActivities(tracks map[string][]domain.TrackPoint, filter []string) []string {
	var ids []string
	if len(filter) == 0 {
		ids = make([]string, 0, len(tracks))
		for id := range tracks {
			ids = append(ids, id)
		}
	} else {
		seen := make(map[string]struct{}, len(filter))
		for _, id := range filter {
			if _, ok := tracks[id]; !ok {
				continue
			}
			if _, dup := seen[id]; dup {
				continue
			}
			seen[id] = struct{}{}
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids
}

func bucket(points []domain.TrackPoint, projector geo.Projector, size float64) partial {
	out := make(partial)
	for _, p := range points {
		if !p.Coordinate.Valid() {
			continue
		}
		x, y := projector.Forward(p.Coordinate)
		if !finite(x) || !finite(y) {
			continue
		}
		key := Key{X: int64(math.Floor(x / size)), Y: int64(math.Floor(y / size))}
		out[key] = append(out[key], projected{x: x, y: y})
	}
	return out
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
