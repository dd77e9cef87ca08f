package engine

import (
	"context"
	"fmt"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/require"

	"example.com/verve/internal/calendar"
	"example.com/verve/internal/domain"
	"example.com/verve/internal/geo"
	"example.com/verve/internal/highlights"
	"example.com/verve/internal/persistence/memory"
)

var start = time.Date(2024, time.March, 5, 7, 0, 0, 0, time.UTC)

func north(m float64) domain.Coordinate {
	return domain.Coordinate{Lat: 45 + m/(orb.EarthRadius*math.Pi/180), Lon: 6}
}

func rawTrack(metres ...float64) []domain.TrackPoint {
	points := make([]domain.TrackPoint, len(metres))
	for i, m := range metres {
		points[i] = domain.TrackPoint{Time: start.Add(time.Duration(i) * time.Second), Coordinate: north(m)}
	}
	return points
}

func newTestService(t *testing.T) (*Service, *memory.Store) {
	t.Helper()
	store := memory.NewStore()
	cfg := DefaultConfig()
	cfg.Track.MinDistance = 5
	return NewService(store, store, cfg, WithClock(func() time.Time { return start.Add(time.Hour) })), store
}

func TestCleanAndDeriveTrackReplacesStoredTrack(t *testing.T) {
	ctx := context.Background()
	svc, store := newTestService(t)
	_, err := store.PutActivity(ctx, domain.Activity{ID: "act-1", UserID: "user-1", TypeID: 1, Start: start}, rawTrack(0, 0, 10, 20))
	require.NoError(t, err)

	res, err := svc.CleanAndDeriveTrack(ctx, "user-1", "act-1")
	require.NoError(t, err)
	require.Equal(t, 1, res.Removed)
	require.Len(t, res.Points, 3)
	require.InDelta(t, 20, *res.Activity.Distance, 1e-6)
	require.Equal(t, start.Add(time.Hour), res.Activity.UpdatedAt)

	activity, points, err := svc.Track(ctx, "user-1", "act-1")
	require.NoError(t, err)
	require.Len(t, points, 3)
	require.InDelta(t, 10, *points[1].DistanceFromPrevious, 1e-6)
	require.Equal(t, 2.0, *points[1].TimeFromPrevious)
	require.InDelta(t, 20, *activity.Distance, 1e-6)
	require.Equal(t, []string{"act-1"}, store.Replacements())

	again, err := svc.CleanAndDeriveTrack(ctx, "user-1", "act-1")
	require.NoError(t, err)
	require.Zero(t, again.Removed)
	require.Len(t, again.Points, 3)
}

func TestCleanAndDeriveTrackScopesToUser(t *testing.T) {
	ctx := context.Background()
	svc, store := newTestService(t)
	_, err := store.PutActivity(ctx, domain.Activity{ID: "act-1", UserID: "user-1"}, rawTrack(0, 10))
	require.NoError(t, err)

	_, err = svc.CleanAndDeriveTrack(ctx, "user-2", "act-1")
	require.ErrorIs(t, err, domain.ErrNotFound)
	_, err = svc.CleanAndDeriveTrack(ctx, "", "act-1")
	require.ErrorIs(t, err, domain.ErrMissingIdentity)
	require.Empty(t, store.Replacements())
}

func TestCleanAndDeriveTrackRejectsEmptyTrack(t *testing.T) {
	ctx := context.Background()
	svc, store := newTestService(t)
	_, err := store.PutActivity(ctx, domain.Activity{ID: "act-1", UserID: "user-1"}, nil)
	require.NoError(t, err)

	_, err = svc.CleanAndDeriveTrack(ctx, "user-1", "act-1")
	require.ErrorIs(t, err, domain.ErrValidation)
	require.Empty(t, store.Replacements())
}

func TestConcurrentCleaningOfSameActivity(t *testing.T) {
	ctx := context.Background()
	svc, store := newTestService(t)
	_, err := store.PutActivity(ctx, domain.Activity{ID: "act-1", UserID: "user-1"}, rawTrack(0, 10, 20, 30))
	require.NoError(t, err)
	_, err = store.PutActivity(ctx, domain.Activity{ID: "act-2", UserID: "user-1"}, rawTrack(0, 10))
	require.NoError(t, err)

	var wg sync.WaitGroup
	errs := make(chan error, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id := "act-1"
			if i%2 == 1 {
				id = "act-2"
			}
			_, err := svc.CleanAndDeriveTrack(ctx, "user-1", id)
			errs <- err
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}
	require.Len(t, store.Replacements(), 8)
	require.Empty(t, svc.locks.locks)
}

func TestComputePowerCurve(t *testing.T) {
	ctx := context.Background()
	svc, store := newTestService(t)
	points := rawTrack(0, 100, 200)
	for i, w := range []int{100, 200, 300} {
		points[i].Time = start.Add(time.Duration(i*20) * time.Second)
		points[i].Power = domain.Int(w)
	}
	_, err := store.PutActivity(ctx, domain.Activity{ID: "act-1", UserID: "user-1"}, points)
	require.NoError(t, err)

	curves, err := svc.ComputePowerCurve(ctx, "user-1", "act-1", []time.Duration{time.Minute}, 1)
	require.NoError(t, err)
	require.Equal(t, 200.0, *curves[0].MeanOfTop)

	curves, err = svc.ComputePowerCurve(ctx, "user-1", "act-1", nil, 0)
	require.NoError(t, err)
	require.Len(t, curves, 7)
	require.Len(t, curves[0].Windows, 3)

	_, err = svc.ComputePowerCurve(ctx, "user-1", "act-1", nil, -1)
	require.ErrorIs(t, err, domain.ErrValidation)

	_, err = svc.ComputePowerCurve(ctx, "user-2", "act-1", nil, 0)
	require.ErrorIs(t, err, domain.ErrNotFound)
}

func TestComputeHeatmapPlanar(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	svc := NewService(store, store, DefaultConfig(), WithProjector(geo.Planar{}))
	_, err := store.PutActivity(ctx, domain.Activity{ID: "act-1", UserID: "user-1", TypeID: 1, Start: start}, []domain.TrackPoint{
		{Time: start, Coordinate: domain.Coordinate{Lat: 2, Lon: 2}},
		{Time: start.Add(time.Second), Coordinate: domain.Coordinate{Lat: 8, Lon: 8}},
	})
	require.NoError(t, err)
	_, err = store.PutActivity(ctx, domain.Activity{ID: "act-2", UserID: "user-2", TypeID: 1, Start: start}, []domain.TrackPoint{
		{Time: start, Coordinate: domain.Coordinate{Lat: 3, Lon: 3}},
	})
	require.NoError(t, err)

	cells, err := svc.ComputeHeatmap(ctx, "user-1", HeatmapQuery{CellSize: 10})
	require.NoError(t, err)
	require.Len(t, cells, 1)
	require.Equal(t, 2, cells[0].PointCount)
	require.Equal(t, 1, cells[0].ActivityCount)
	require.Equal(t, domain.Coordinate{Lat: 5, Lon: 5}, cells[0].Centroid)

	year := 2023
	cells, err = svc.ComputeHeatmap(ctx, "user-1", HeatmapQuery{Year: &year})
	require.NoError(t, err)
	require.Empty(t, cells)

	_, err = svc.ComputeHeatmap(ctx, "user-1", HeatmapQuery{SubTypeID: domain.Int(3)})
	require.ErrorIs(t, err, domain.ErrValidation)
	_, err = svc.ComputeHeatmap(ctx, "user-1", HeatmapQuery{Month: domain.Int(3)})
	require.ErrorIs(t, err, domain.ErrValidation)
	_, err = svc.ComputeHeatmap(ctx, "user-1", HeatmapQuery{CellSize: -1})
	require.ErrorIs(t, err, domain.ErrValidation)
}

func TestMatchLocationsAndPoint(t *testing.T) {
	ctx := context.Background()
	svc, store := newTestService(t)
	_, err := store.PutActivity(ctx, domain.Activity{ID: "act-1", UserID: "user-1", TypeID: 1}, rawTrack(0, 10, 20))
	require.NoError(t, err)
	_, err = store.PutActivity(ctx, domain.Activity{ID: "act-2", UserID: "user-2", TypeID: 1}, rawTrack(0, 10, 20))
	require.NoError(t, err)
	_, err = store.PutLocation(ctx, domain.Location{ID: "loc-1", UserID: "user-1", Coordinate: north(15)})
	require.NoError(t, err)
	_, err = store.PutLocation(ctx, domain.Location{ID: "loc-2", UserID: "user-2", Coordinate: north(15)})
	require.NoError(t, err)

	matches, err := svc.MatchLocationsToTracks(ctx, "user-1", domain.LocationFilter{}, domain.ActivityFilter{}, 0)
	require.NoError(t, err)
	require.Len(t, matches, 1)
	require.Equal(t, "loc-1", matches[0].LocationID)
	require.Equal(t, "act-1", matches[0].ActivityID)
	require.InDelta(t, 5, matches[0].MinDistance, 1e-6)
	require.Equal(t, 3, matches[0].PointCount)

	near, err := svc.MatchPointToTracks(ctx, "user-1", north(0), 12)
	require.NoError(t, err)
	require.Len(t, near, 1)
	require.Equal(t, 2, near[0].PointCount)

	_, err = svc.MatchPointToTracks(ctx, "user-1", domain.Coordinate{Lat: 100}, 10)
	require.ErrorIs(t, err, domain.ErrValidation)
	_, err = svc.MatchLocationsToTracks(ctx, "user-1", domain.LocationFilter{}, domain.ActivityFilter{}, -1)
	require.ErrorIs(t, err, domain.ErrValidation)
}

func TestAggregateCalendarExcludesNullDistance(t *testing.T) {
	ctx := context.Background()
	svc, store := newTestService(t)
	_, err := store.PutActivity(ctx, domain.Activity{ID: "a", UserID: "user-1", TypeID: 1, Start: start, Distance: domain.Float(5000)}, nil)
	require.NoError(t, err)
	_, err = store.PutActivity(ctx, domain.Activity{ID: "b", UserID: "user-1", TypeID: 4, Start: start.Add(24 * time.Hour)}, nil)
	require.NoError(t, err)
	_, err = store.PutActivity(ctx, domain.Activity{ID: "c", UserID: "user-1", TypeID: 1, Start: start.AddDate(0, 0, -14)}, nil)
	require.NoError(t, err)

	y, w := start.ISOWeek()
	buckets, err := svc.AggregateCalendar(ctx, "user-1", CalendarQuery{Period: calendar.PeriodWeek, Key: &calendar.Key{Year: y, Week: w}})
	require.NoError(t, err)
	require.Len(t, buckets, 1)
	require.Equal(t, 2, buckets[0].ActivityCount)
	require.Equal(t, 5000.0, *buckets[0].Distance)

	_, err = svc.AggregateCalendar(ctx, "user-1", CalendarQuery{Period: calendar.PeriodWeek, Key: &calendar.Key{Year: 2021, Week: 53}})
	require.ErrorIs(t, err, domain.ErrValidation)
}

func TestRankHighlightsAcrossActivities(t *testing.T) {
	ctx := context.Background()
	svc, store := newTestService(t)
	for i, km := range []float64{20, 50, 35, 10} {
		a := domain.Activity{
			ID:       fmt.Sprintf("act-%d", i),
			UserID:   "user-1",
			TypeID:   1,
			Start:    start.AddDate(0, 0, i),
			Duration: time.Hour,
			Distance: domain.Float(km * 1000),
		}
		_, err := store.PutActivity(ctx, a, nil)
		require.NoError(t, err)
	}
	_, err := store.PutActivity(ctx, domain.Activity{ID: "old", UserID: "user-1", TypeID: 1, Start: start.AddDate(-1, 0, 0), Distance: domain.Float(90000)}, nil)
	require.NoError(t, err)
	_, err = store.PutActivity(ctx, domain.Activity{ID: "other", UserID: "user-2", TypeID: 1, Start: start, Distance: domain.Float(99000)}, nil)
	require.NoError(t, err)

	ranked, err := svc.RankHighlights(ctx, "user-1", highlights.Query{
		Scope:   highlights.ScopeYearly,
		Year:    domain.Int(start.Year()),
		Metrics: []highlights.Metric{highlights.MetricDistance},
	})
	require.NoError(t, err)
	require.Len(t, ranked, 3)
	require.Equal(t, "act-1", ranked[0].ActivityID)
	require.Equal(t, "act-2", ranked[1].ActivityID)
	require.Equal(t, "act-0", ranked[2].ActivityID)
	require.Equal(t, 3, ranked[2].Rank)

	ranked, err = svc.RankHighlights(ctx, "user-1", highlights.Query{Scope: highlights.ScopeLifetime, Top: 1, Metrics: []highlights.Metric{highlights.MetricDistance}})
	require.NoError(t, err)
	require.Len(t, ranked, 1)
	require.Equal(t, "old", ranked[0].ActivityID)

	_, err = svc.RankHighlights(ctx, "", highlights.Query{Scope: highlights.ScopeLifetime})
	require.ErrorIs(t, err, domain.ErrMissingIdentity)
	_, err = svc.RankHighlights(ctx, "user-1", highlights.Query{Scope: highlights.ScopeLifetime, Year: domain.Int(2024)})
	require.ErrorIs(t, err, domain.ErrValidation)
}
