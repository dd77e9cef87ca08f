package highlights

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"example.com/verve/internal/domain"
)

func entry(id string, typeID int, start time.Time, values map[Metric]float64) Entry {
	return Entry{ActivityID: id, TypeID: typeID, Start: start, Values: values}
}

func ranked(hs []Highlight) []string {
	ids := make([]string, len(hs))
	for i, h := range hs {
		ids[i] = h.ActivityID
	}
	return ids
}

func TestRankLifetimeKeepsTopThree(t *testing.T) {
	day := time.Date(2023, time.June, 1, 8, 0, 0, 0, time.UTC)
	entries := []Entry{
		entry("a", 1, day, map[Metric]float64{MetricDistance: 10000}),
		entry("b", 1, day.AddDate(1, 0, 0), map[Metric]float64{MetricDistance: 40000}),
		entry("c", 1, day.AddDate(0, 1, 0), map[Metric]float64{MetricDistance: 25000}),
		entry("d", 1, day.AddDate(0, 2, 0), map[Metric]float64{MetricDistance: 30000}),
		entry("e", 1, day, map[Metric]float64{}),
	}

	hs, err := Rank(entries, Query{Scope: ScopeLifetime, Metrics: []Metric{MetricDistance}})
	require.NoError(t, err)
	require.Equal(t, []string{"b", "d", "c"}, ranked(hs))
	for i, h := range hs {
		require.Equal(t, i+1, h.Rank)
		require.Equal(t, ScopeLifetime, h.Scope)
		require.Nil(t, h.Year)
	}
	require.Equal(t, 40000.0, hs[0].Value)
}

func TestRankYearlyGroupsByYearAndType(t *testing.T) {
	entries := []Entry{
		entry("ride-2023", 1, time.Date(2023, time.May, 1, 0, 0, 0, 0, time.UTC), map[Metric]float64{MetricDuration: 3600}),
		entry("ride-2024", 1, time.Date(2024, time.May, 1, 0, 0, 0, 0, time.UTC), map[Metric]float64{MetricDuration: 1800}),
		entry("run-2024", 2, time.Date(2024, time.July, 1, 0, 0, 0, 0, time.UTC), map[Metric]float64{MetricDuration: 7200}),
	}

	hs, err := Rank(entries, Query{Scope: ScopeYearly, Metrics: []Metric{MetricDuration}})
	require.NoError(t, err)
	require.Equal(t, []string{"ride-2024", "ride-2023", "run-2024"}, ranked(hs))
	require.Equal(t, 2024, *hs[0].Year)
	require.Equal(t, 1, hs[0].Rank)
	require.Equal(t, 2023, *hs[1].Year)
	require.Equal(t, 1, hs[1].Rank)

	hs, err = Rank(entries, Query{Scope: ScopeYearly, Year: domain.Int(2024), TypeID: domain.Int(1)})
	require.NoError(t, err)
	require.Equal(t, []string{"ride-2024"}, ranked(hs))
}

func TestRankBreaksTiesByActivityIDDescending(t *testing.T) {
	day := time.Date(2024, time.March, 1, 0, 0, 0, 0, time.UTC)
	entries := []Entry{
		entry("a", 1, day, map[Metric]float64{MetricMaxPower: 800}),
		entry("c", 1, day, map[Metric]float64{MetricMaxPower: 800}),
		entry("b", 1, day, map[Metric]float64{MetricMaxPower: 800}),
	}
	hs, err := Rank(entries, Query{Scope: ScopeLifetime, Top: 2, Metrics: []Metric{"MAX_POWER", "max_power"}})
	require.NoError(t, err)
	require.Equal(t, []string{"c", "b"}, ranked(hs))
	require.Equal(t, MetricMaxPower, hs[0].Metric)
}

func TestRankOrdersMetrics(t *testing.T) {
	day := time.Date(2024, time.March, 1, 0, 0, 0, 0, time.UTC)
	entries := []Entry{entry("a", 1, day, map[Metric]float64{MetricAvgPower5Min: 250, MetricDuration: 60, MetricDistance: 1000})}
	hs, err := Rank(entries, Query{Scope: ScopeLifetime})
	require.NoError(t, err)
	require.Len(t, hs, 3)
	require.Equal(t, MetricDuration, hs[0].Metric)
	require.Equal(t, MetricDistance, hs[1].Metric)
	require.Equal(t, MetricAvgPower5Min, hs[2].Metric)
}

func TestRankRejectsInvalidQueries(t *testing.T) {
	for _, q := range []Query{
		{Scope: "weekly"},
		{Scope: ScopeLifetime, Year: domain.Int(2024)},
		{Scope: ScopeYearly, Year: domain.Int(0)},
		{Scope: ScopeYearly, Top: -1},
		{Scope: ScopeYearly, Metrics: []Metric{"avg_cadence"}},
	} {
		_, err := Rank(nil, q)
		require.ErrorIs(t, err, domain.ErrValidation, "%+v", q)
	}
}

func TestCollectUsesSummaryAndPowerWindows(t *testing.T) {
	start := time.Date(2024, time.April, 2, 6, 0, 0, 0, time.UTC)
	points := make([]domain.TrackPoint, 0, 151)
	for i := 0; i <= 150; i++ {
		watts := 200
		if i >= 30 && i <= 90 {
			watts = 300
		}
		points = append(points, domain.TrackPoint{ID: int64(i + 1), Time: start.Add(time.Duration(i) * time.Second), Power: domain.Int(watts)})
	}
	moving := 140 * time.Second
	activity := domain.Activity{
		ID:             "act-1",
		TypeID:         1,
		Start:          start,
		Duration:       150 * time.Second,
		MovingDuration: &moving,
		Distance:       domain.Float(1200),
		AvgPower:       domain.Float(240),
	}

	e, err := Collect(context.Background(), activity, points)
	require.NoError(t, err)
	require.Equal(t, "act-1", e.ActivityID)
	require.Equal(t, 140.0, e.Values[MetricDuration])
	require.Equal(t, 1200.0, e.Values[MetricDistance])
	require.Equal(t, 240.0, e.Values[MetricAvgPower])
	require.Equal(t, 300.0, e.Values[MetricAvgPower1Min])
	require.Contains(t, e.Values, MetricAvgPower2Min)
	require.NotContains(t, e.Values, MetricAvgPower5Min)
	require.NotContains(t, e.Values, MetricMaxSpeed)
	require.NotContains(t, e.Values, MetricElevationChangeUp)
}

func TestCollectWithoutPower(t *testing.T) {
	start := time.Date(2024, time.April, 2, 6, 0, 0, 0, time.UTC)
	points := []domain.TrackPoint{{Time: start}, {Time: start.Add(time.Hour)}}
	e, err := Collect(context.Background(), domain.Activity{ID: "a", Start: start, Duration: time.Hour}, points)
	require.NoError(t, err)
	require.Equal(t, map[Metric]float64{MetricDuration: 3600}, e.Values)
}
