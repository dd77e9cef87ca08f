package ingest

import (
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/tkrajina/gpxgo/gpx"

	"example.com/verve/internal/domain"
)

// DecodeGPX parses a GPX document. Each track segment becomes its own
// segment id, numbered across all tracks in document order.
func DecodeGPX(data []byte) ([]domain.TrackPoint, error) {
	doc, err := gpx.ParseBytes(data)
	if err != nil {
		return nil, fmt.Errorf("decode GPX file: %w", err)
	}

	var points []domain.TrackPoint
	segment := 0
	for _, trk := range doc.Tracks {
		for _, seg := range trk.Segments {
			if len(seg.Points) == 0 {
				continue
			}
			for _, wp := range seg.Points {
				p := domain.TrackPoint{
					SegmentID:  segment,
					Time:       wp.Timestamp.UTC(),
					Coordinate: domain.Coordinate{Lat: wp.Latitude, Lon: wp.Longitude},
				}
				if wp.Elevation.NotNull() {
					p.Elevation = domain.Float(wp.Elevation.Value())
				}
				points = append(points, p)
			}
			segment++
		}
	}
	if len(points) == 0 {
		return nil, ErrNoRecords
	}
	return points, nil
}

// DecodeFile picks the decoder from the file extension.
func DecodeFile(name string, r io.Reader) ([]domain.TrackPoint, error) {
	switch ext := strings.ToLower(filepath.Ext(name)); ext {
	case ".fit":
		return DecodeFIT(r)
	case ".gpx":
		data, err := io.ReadAll(r)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", name, err)
		}
		return DecodeGPX(data)
	default:
		return nil, fmt.Errorf("unsupported track format %q", ext)
	}
}
