// Package export renders cleaned tracks into columnar files.
package export

import (
	"fmt"
	"math"
	"time"

	parquetbuffer "github.com/xitongsys/parquet-go-source/buffer"
	"github.com/xitongsys/parquet-go/parquet"
	"github.com/xitongsys/parquet-go/writer"

	"example.com/verve/internal/domain"
)

// ParquetContentType is the media type served for Parquet downloads.
const ParquetContentType = "application/vnd.apache.parquet"

// TrackRow is one cleaned point as stored in the Parquet file. Absent
// sensor and derived values are written as NaN.
type TrackRow struct {
	PointID              int64   `parquet:"name=point_id, type=INT64"`
	SegmentID            int32   `parquet:"name=segment_id, type=INT32"`
	TimeUTCISO           string  `parquet:"name=time_utc_iso, type=BYTE_ARRAY, convertedtype=UTF8, encoding=PLAIN_DICTIONARY"`
	Lat                  float64 `parquet:"name=lat, type=DOUBLE"`
	Lon                  float64 `parquet:"name=lon, type=DOUBLE"`
	ElevationM           float64 `parquet:"name=elevation_m, type=DOUBLE"`
	Heartrate            float64 `parquet:"name=heartrate_bpm, type=DOUBLE"`
	Cadence              float64 `parquet:"name=cadence_rpm, type=DOUBLE"`
	PowerW               float64 `parquet:"name=power_w, type=DOUBLE"`
	DistanceFromPrevious float64 `parquet:"name=distance_from_previous_m, type=DOUBLE"`
	TimeFromPrevious     float64 `parquet:"name=time_from_previous_s, type=DOUBLE"`
	CumulativeDistance   float64 `parquet:"name=cumulative_distance_m, type=DOUBLE"`
	CumulativeTime       float64 `parquet:"name=cumulative_time_s, type=DOUBLE"`
	SpeedMPS             float64 `parquet:"name=speed_mps, type=DOUBLE"`
}

// Rows converts track points into Parquet rows, preserving order.
func Rows(points []domain.TrackPoint) []TrackRow {
	rows := make([]TrackRow, 0, len(points))
	for _, p := range points {
		rows = append(rows, TrackRow{
			PointID:              p.ID,
			SegmentID:            int32(p.SegmentID),
			TimeUTCISO:           p.Time.UTC().Format(time.RFC3339Nano),
			Lat:                  p.Coordinate.Lat,
			Lon:                  p.Coordinate.Lon,
			ElevationM:           valueOrNaN(p.Elevation),
			Heartrate:            intOrNaN(p.Heartrate),
			Cadence:              intOrNaN(p.Cadence),
			PowerW:               intOrNaN(p.Power),
			DistanceFromPrevious: valueOrNaN(p.DistanceFromPrevious),
			TimeFromPrevious:     valueOrNaN(p.TimeFromPrevious),
			CumulativeDistance:   valueOrNaN(p.CumulativeDistance),
			CumulativeTime:       valueOrNaN(p.CumulativeTime),
			SpeedMPS:             valueOrNaN(p.Speed),
		})
	}
	return rows
}

// TrackParquet encodes the points as a SNAPPY-compressed Parquet file.
func TrackParquet(points []domain.TrackPoint) ([]byte, error) {
	fw := parquetbuffer.NewBufferFile()
	pw, err := writer.NewParquetWriter(fw, new(TrackRow), 4)
	if err != nil {
		return nil, fmt.Errorf("parquet writer: %w", err)
	}
	pw.CompressionType = parquet.CompressionCodec_SNAPPY
	for _, row := range Rows(points) {
		if err := pw.Write(row); err != nil {
			_ = pw.WriteStop()
			return nil, fmt.Errorf("write parquet row: %w", err)
		}
	}
	if err := pw.WriteStop(); err != nil {
		return nil, fmt.Errorf("finish parquet file: %w", err)
	}
	if err := fw.Close(); err != nil {
		return nil, err
	}
	return append([]byte(nil), fw.Bytes()...), nil
}

func valueOrNaN(v *float64) float64 {
	if v == nil {
		return math.NaN()
	}
	return *v
}

func intOrNaN(v *int) float64 {
	if v == nil {
		return math.NaN()
	}
	return float64(*v)
}
