package track

import (
	"math"
	"math/rand"
	"testing"
	"time"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/require"

	"example.com/verve/internal/domain"
)

var base = time.Date(2024, time.June, 1, 8, 0, 0, 0, time.UTC)

// northOf returns a coordinate m metres north of the origin.
func northOf(m float64) domain.Coordinate {
	return domain.Coordinate{Lat: m / (orb.EarthRadius * math.Pi / 180), Lon: 0}
}

func pointAt(id int64, seconds int, metres float64) domain.TrackPoint {
	return domain.TrackPoint{
		ID:         id,
		ActivityID: "act-1",
		UserID:     "user-1",
		Time:       base.Add(time.Duration(seconds) * time.Second),
		Coordinate: northOf(metres),
	}
}

func opts(minDistance float64) Options {
	o := DefaultOptions()
	o.MinDistance = minDistance
	return o
}

func TestCleanKeepsEvenlySpacedPoints(t *testing.T) {
	points := []domain.TrackPoint{pointAt(1, 0, 0), pointAt(2, 1, 10), pointAt(3, 2, 20), pointAt(4, 3, 30)}

	res, err := Clean(points, opts(5))
	require.NoError(t, err)
	require.Len(t, res.Points, 4)
	require.Zero(t, res.Removed)
	require.Nil(t, res.Points[0].DistanceFromPrevious)
	require.Nil(t, res.Points[0].TimeFromPrevious)

	Derive(res.Points)
	for i, want := range []float64{0, 10, 20, 30} {
		require.InDelta(t, want, *res.Points[i].CumulativeDistance, 1e-6)
	}
	require.Nil(t, res.Points[0].Speed)
	for _, p := range res.Points[1:] {
		require.NotNil(t, p.Speed)
		require.InDelta(t, 10, *p.Speed, 1e-6)
	}
}

func TestCleanRecomputesAgainstSurvivingPredecessor(t *testing.T) {
	points := []domain.TrackPoint{pointAt(1, 0, 0), pointAt(2, 1, 0), pointAt(3, 2, 10)}

	res, err := Clean(points, opts(5))
	require.NoError(t, err)
	require.Equal(t, 1, res.Removed)
	require.Len(t, res.Points, 2)
	require.Equal(t, int64(3), res.Points[1].ID)
	require.InDelta(t, 10, *res.Points[1].DistanceFromPrevious, 1e-6)
	require.Equal(t, 2.0, *res.Points[1].TimeFromPrevious)
}

func TestCleanEmptyInput(t *testing.T) {
	_, err := Clean(nil, DefaultOptions())
	require.ErrorIs(t, err, domain.ErrValidation)
}

func TestCleanRejectsInvalidOptions(t *testing.T) {
	_, err := Clean([]domain.TrackPoint{pointAt(1, 0, 0)}, opts(-1))
	require.ErrorIs(t, err, domain.ErrValidation)

	o := DefaultOptions()
	o.Duplicates = "random"
	_, err = Clean([]domain.TrackPoint{pointAt(1, 0, 0)}, o)
	require.ErrorIs(t, err, domain.ErrValidation)
}

func TestCleanDuplicateTimestamps(t *testing.T) {
	points := []domain.TrackPoint{pointAt(1, 0, 0), pointAt(2, 1, 10), pointAt(3, 1, 20), pointAt(4, 2, 30)}

	o := opts(5)
	o.Duplicates = DuplicateReject
	_, err := Clean(points, o)
	require.ErrorIs(t, err, domain.ErrValidation)

	res, err := Clean(points, opts(5))
	require.NoError(t, err)
	require.Len(t, res.Points, 3)
	require.Equal(t, []SkippedPoint{{Index: 2, PointID: 3, Reason: "duplicate timestamp"}}, res.Skipped)
	require.InDelta(t, 20, *res.Points[2].DistanceFromPrevious, 1e-6)
}

func TestCleanSkipsMalformedPointsByIndex(t *testing.T) {
	bad := pointAt(2, 1, 10)
	bad.Coordinate.Lat = math.NaN()
	negative := pointAt(3, 2, 20)
	negative.Power = domain.Int(-5)
	points := []domain.TrackPoint{pointAt(1, 0, 0), bad, negative, pointAt(4, 3, 30)}

	res, err := Clean(points, opts(5))
	require.NoError(t, err)
	require.Len(t, res.Points, 2)
	require.Equal(t, []SkippedPoint{
		{Index: 1, PointID: 2, Reason: "invalid coordinate"},
		{Index: 2, PointID: 3, Reason: "negative power"},
	}, res.Skipped)
	require.InDelta(t, 30, *res.Points[1].DistanceFromPrevious, 1e-6)
}

func TestCleanFailsWhenNothingSurvives(t *testing.T) {
	bad := pointAt(1, 0, 0)
	bad.Coordinate.Lon = 200
	_, err := Clean([]domain.TrackPoint{bad}, DefaultOptions())
	require.ErrorIs(t, err, domain.ErrValidation)
}

func TestCleanSortsAndKeepsSegmentStarts(t *testing.T) {
	second := pointAt(3, 10, 10.5)
	second.SegmentID = 1
	points := []domain.TrackPoint{pointAt(2, 5, 10), second, pointAt(1, 0, 0)}

	res, err := Clean(points, opts(5))
	require.NoError(t, err)
	require.Len(t, res.Points, 3)
	require.Equal(t, []int64{1, 2, 3}, []int64{res.Points[0].ID, res.Points[1].ID, res.Points[2].ID})
	require.Nil(t, res.Points[2].DistanceFromPrevious)

	Derive(res.Points)
	require.InDelta(t, 10, *res.Points[2].CumulativeDistance, 1e-6)
	require.Nil(t, res.Points[2].Speed)
}

func TestCleanDoesNotModifyInput(t *testing.T) {
	points := []domain.TrackPoint{pointAt(2, 1, 10), pointAt(1, 0, 0)}
	_, err := Clean(points, opts(5))
	require.NoError(t, err)
	require.Equal(t, int64(2), points[0].ID)
	require.Nil(t, points[0].DistanceFromPrevious)
}

func TestCleanInvariantsAndIdempotence(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	points := make([]domain.TrackPoint, 0, 500)
	pos := 0.0
	for i := 0; i < 500; i++ {
		pos += rng.Float64()*8 - 1
		p := pointAt(int64(i+1), i, pos)
		p.SegmentID = i / 200
		points = append(points, p)
	}

	first, err := Clean(points, opts(3))
	require.NoError(t, err)
	require.Positive(t, first.Removed)
	Derive(first.Points)

	prev := 0.0
	for _, p := range first.Points {
		if p.DistanceFromPrevious != nil {
			require.GreaterOrEqual(t, *p.DistanceFromPrevious, 0.0)
		}
		require.GreaterOrEqual(t, *p.CumulativeDistance, prev)
		prev = *p.CumulativeDistance
	}

	second, err := Clean(first.Points, opts(3))
	require.NoError(t, err)
	require.Zero(t, second.Removed)
	require.Len(t, second.Points, len(first.Points))
}

func TestCleanOriginalReferenceIsNotIdempotent(t *testing.T) {
	points := []domain.TrackPoint{pointAt(1, 0, 0), pointAt(2, 1, 10), pointAt(3, 2, 12), pointAt(4, 3, 6)}

	o := opts(5)
	o.Reference = ReferenceOriginal
	first, err := Clean(points, o)
	require.NoError(t, err)
	require.Len(t, first.Points, 3)

	second, err := Clean(first.Points, o)
	require.NoError(t, err)
	require.Len(t, second.Points, 2)

	survivor, err := Clean(points, opts(5))
	require.NoError(t, err)
	require.Len(t, survivor.Points, 2)
}
