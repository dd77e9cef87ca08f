package export

import (
	"bytes"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	parquetbuffer "github.com/xitongsys/parquet-go-source/buffer"
	"github.com/xitongsys/parquet-go/reader"

	"example.com/verve/internal/domain"
	"example.com/verve/internal/track"
)

func cleanedTrack(t *testing.T) []domain.TrackPoint {
	t.Helper()
	start := time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)
	raw := []domain.TrackPoint{
		{ID: 1, Time: start, Coordinate: domain.Coordinate{Lat: 47.0, Lon: 8.0}, Power: domain.Int(200)},
		{ID: 2, Time: start.Add(10 * time.Second), Coordinate: domain.Coordinate{Lat: 47.001, Lon: 8.0}, Heartrate: domain.Int(130)},
		{ID: 3, Time: start.Add(20 * time.Second), Coordinate: domain.Coordinate{Lat: 47.002, Lon: 8.0}, Elevation: domain.Float(410)},
	}
	result, err := track.Clean(raw, track.DefaultOptions())
	require.NoError(t, err)
	track.Derive(result.Points)
	return result.Points
}

func TestRowsUseNaNForMissingValues(t *testing.T) {
	rows := Rows(cleanedTrack(t))
	require.Len(t, rows, 3)

	first := rows[0]
	require.Equal(t, int64(1), first.PointID)
	require.Equal(t, "2024-05-01T08:00:00Z", first.TimeUTCISO)
	require.Equal(t, 200.0, first.PowerW)
	require.True(t, math.IsNaN(first.Heartrate))
	require.True(t, math.IsNaN(first.ElevationM))
	require.True(t, math.IsNaN(first.DistanceFromPrevious))
	require.True(t, math.IsNaN(first.SpeedMPS))

	require.Equal(t, 130.0, rows[1].Heartrate)
	require.InDelta(t, 111.32, rows[1].DistanceFromPrevious, 0.05)
	require.Equal(t, 10.0, rows[1].TimeFromPrevious)
	require.Equal(t, 410.0, rows[2].ElevationM)
}

func TestTrackParquetReadsBack(t *testing.T) {
	points := cleanedTrack(t)
	data, err := TrackParquet(points)
	require.NoError(t, err)
	require.NotEmpty(t, data)

	pr, err := reader.NewParquetReader(parquetbuffer.NewBufferFileFromBytes(data), new(TrackRow), 1)
	require.NoError(t, err)
	defer pr.ReadStop()

	require.Equal(t, int64(len(points)), pr.GetNumRows())
	rows := make([]TrackRow, pr.GetNumRows())
	require.NoError(t, pr.Read(&rows))

	want := Rows(points)
	for i := range want {
		require.Equal(t, want[i].PointID, rows[i].PointID)
		require.Equal(t, want[i].TimeUTCISO, rows[i].TimeUTCISO)
		require.Equal(t, want[i].Lat, rows[i].Lat)
		require.Equal(t, math.IsNaN(want[i].PowerW), math.IsNaN(rows[i].PowerW))
	}
	require.InDelta(t, want[2].CumulativeDistance, rows[2].CumulativeDistance, 1e-9)
}

func TestTrackParquetEmpty(t *testing.T) {
	data, err := TrackParquet(nil)
	require.NoError(t, err)
	require.True(t, bytes.HasPrefix(data, []byte("PAR1")))
	require.True(t, bytes.HasSuffix(data, []byte("PAR1")))
}
