package api

import (
	"time"

	"example.com/verve/internal/calendar"
	"example.com/verve/internal/domain"
	"example.com/verve/internal/engine"
	"example.com/verve/internal/heatmap"
	"example.com/verve/internal/highlights"
	"example.com/verve/internal/powercurve"
	"example.com/verve/internal/track"
)

// ActivityView exposes an activity together with its track summary.
type ActivityView struct {
	ActivityID      string    `json:"activity_id"`
	UserID          string    `json:"user_id"`
	Name            string    `json:"name"`
	TypeID          int       `json:"type_id"`
	SubTypeID       *int      `json:"sub_type_id"`
	Start           time.Time `json:"start"`
	DurationS       float64   `json:"duration_s"`
	MovingDurationS *float64  `json:"moving_duration_s"`
	DistanceM       *float64  `json:"distance_m"`
	ElevationGainM  *float64  `json:"elevation_gain_m"`
	ElevationLossM  *float64  `json:"elevation_loss_m"`
	AvgSpeedMPS     *float64  `json:"avg_speed_mps"`
	MaxSpeedMPS     *float64  `json:"max_speed_mps"`
	AvgPowerW       *float64  `json:"avg_power_w"`
	MaxPowerW       *float64  `json:"max_power_w"`
	AvgHeartrateBPM *float64  `json:"avg_heartrate_bpm"`
	MaxHeartrateBPM *float64  `json:"max_heartrate_bpm"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// TrackPointView exposes one stored point with its derived values.
type TrackPointView struct {
	PointID              int64     `json:"point_id"`
	SegmentID            int       `json:"segment_id"`
	Time                 time.Time `json:"time"`
	Lat                  float64   `json:"lat"`
	Lon                  float64   `json:"lon"`
	ElevationM           *float64  `json:"elevation_m"`
	Heartrate            *int      `json:"heartrate"`
	Cadence              *int      `json:"cadence"`
	PowerW               *int      `json:"power_w"`
	DistanceFromPrevious *float64  `json:"distance_from_previous_m"`
	TimeFromPrevious     *float64  `json:"time_from_previous_s"`
	CumulativeDistance   *float64  `json:"cumulative_distance_m"`
	CumulativeTime       *float64  `json:"cumulative_time_s"`
	SpeedMPS             *float64  `json:"speed_mps"`
}

// TrackResponse is returned by the track read and clean endpoints.
type TrackResponse struct {
	Activity ActivityView         `json:"activity"`
	Points   []TrackPointView     `json:"points"`
	Removed  *int                 `json:"removed,omitempty"`
	Skipped  []track.SkippedPoint `json:"skipped,omitempty"`
}

// PowerCurveView is one duration of the power curve.
type PowerCurveView struct {
	DurationS int                 `json:"duration_s"`
	Windows   []powercurve.Window `json:"windows"`
	MeanOfTop *float64            `json:"mean_of_top"`
}

// PowerCurveResponse wraps the curve of an activity.
type PowerCurveResponse struct {
	ActivityID string           `json:"activity_id"`
	Curves     []PowerCurveView `json:"curves"`
}

// HighlightsResponse wraps the ranked activities of one scope.
type HighlightsResponse struct {
	Scope      highlights.Scope       `json:"scope"`
	Highlights []highlights.Highlight `json:"highlights"`
}

// HeatmapResponse wraps heatmap cells.
type HeatmapResponse struct {
	CellSize float64        `json:"cell_size"`
	Cells    []heatmap.Cell `json:"cells"`
}

// TotalsView aggregates activity summaries of a calendar bucket.
type TotalsView struct {
	ActivityCount  int      `json:"activity_count"`
	DistanceCount  int      `json:"distance_count"`
	DistanceM      *float64 `json:"distance_m"`
	ElevationGainM *float64 `json:"elevation_gain_m"`
	DurationS      float64  `json:"duration_s"`
}

// DayView is one day of a week bucket.
type DayView struct {
	Date string `json:"date"`
	TotalsView
}

// SubTypeShareView is a sub-type slice of a bucket, shares in percent.
type SubTypeShareView struct {
	SubTypeID *int `json:"sub_type_id"`
	TotalsView
	DistanceShare      *float64 `json:"distance_share_pct"`
	DurationShare      *float64 `json:"duration_share_pct"`
	ElevationGainShare *float64 `json:"elevation_gain_share_pct"`
}

// CalendarActivityView lists one activity of a bucket.
type CalendarActivityView struct {
	ActivityID     string    `json:"activity_id"`
	Name           string    `json:"name"`
	TypeID         int       `json:"type_id"`
	SubTypeID      *int      `json:"sub_type_id"`
	Start          time.Time `json:"start"`
	DurationS      float64   `json:"duration_s"`
	DistanceM      *float64  `json:"distance_m"`
	ElevationGainM *float64  `json:"elevation_gain_m"`
}

// BucketView is one calendar bucket.
type BucketView struct {
	Period calendar.Period `json:"period"`
	Key    calendar.Key    `json:"key"`
	Start  time.Time       `json:"start"`
	End    time.Time       `json:"end"`
	TotalsView
	Activities []CalendarActivityView `json:"activities"`
	Days       []DayView              `json:"days,omitempty"`
	SubTypes   []SubTypeShareView     `json:"sub_types,omitempty"`
}

// CalendarResponse wraps calendar buckets.
type CalendarResponse struct {
	Buckets []BucketView `json:"buckets"`
}

func toActivityView(a domain.Activity) ActivityView {
	view := ActivityView{
		ActivityID:      a.ID,
		UserID:          a.UserID,
		Name:            a.Name,
		TypeID:          a.TypeID,
		SubTypeID:       a.SubTypeID,
		Start:           a.Start,
		DurationS:       a.Duration.Seconds(),
		DistanceM:       a.Distance,
		ElevationGainM:  a.ElevationGain,
		ElevationLossM:  a.ElevationLoss,
		AvgSpeedMPS:     a.AvgSpeed,
		MaxSpeedMPS:     a.MaxSpeed,
		AvgPowerW:       a.AvgPower,
		MaxPowerW:       a.MaxPower,
		AvgHeartrateBPM: a.AvgHeartrate,
		MaxHeartrateBPM: a.MaxHeartrate,
		UpdatedAt:       a.UpdatedAt,
	}
	if a.MovingDuration != nil {
		view.MovingDurationS = domain.Float(a.MovingDuration.Seconds())
	}
	return view
}

func toTrackPointViews(points []domain.TrackPoint) []TrackPointView {
	out := make([]TrackPointView, 0, len(points))
	for _, p := range points {
		out = append(out, TrackPointView{
			PointID:              p.ID,
			SegmentID:            p.SegmentID,
			Time:                 p.Time,
			Lat:                  p.Coordinate.Lat,
			Lon:                  p.Coordinate.Lon,
			ElevationM:           p.Elevation,
			Heartrate:            p.Heartrate,
			Cadence:              p.Cadence,
			PowerW:               p.Power,
			DistanceFromPrevious: p.DistanceFromPrevious,
			TimeFromPrevious:     p.TimeFromPrevious,
			CumulativeDistance:   p.CumulativeDistance,
			CumulativeTime:       p.CumulativeTime,
			SpeedMPS:             p.Speed,
		})
	}
	return out
}

func toTrackResponse(result engine.TrackResult) TrackResponse {
	removed := result.Removed
	skipped := result.Skipped
	if skipped == nil {
		skipped = []track.SkippedPoint{}
	}
	return TrackResponse{
		Activity: toActivityView(result.Activity),
		Points:   toTrackPointViews(result.Points),
		Removed:  &removed,
		Skipped:  skipped,
	}
}

func toPowerCurveViews(curves []powercurve.Curve) []PowerCurveView {
	out := make([]PowerCurveView, 0, len(curves))
	for _, c := range curves {
		windows := c.Windows
		if windows == nil {
			windows = []powercurve.Window{}
		}
		out = append(out, PowerCurveView{
			DurationS: int(c.Duration / time.Second),
			Windows:   windows,
			MeanOfTop: c.MeanOfTop,
		})
	}
	return out
}

func toTotalsView(t calendar.Totals) TotalsView {
	return TotalsView{
		ActivityCount:  t.ActivityCount,
		DistanceCount:  t.DistanceCount,
		DistanceM:      t.Distance,
		ElevationGainM: t.ElevationGain,
		DurationS:      t.Duration.Seconds(),
	}
}

func toBucketViews(buckets []calendar.Bucket) []BucketView {
	out := make([]BucketView, 0, len(buckets))
	for _, b := range buckets {
		view := BucketView{
			Period:     b.Period,
			Key:        b.Key,
			Start:      b.Start,
			End:        b.End,
			TotalsView: toTotalsView(b.Totals),
			Activities: make([]CalendarActivityView, 0, len(b.Activities)),
		}
		for _, a := range b.Activities {
			view.Activities = append(view.Activities, CalendarActivityView{
				ActivityID:     a.ID,
				Name:           a.Name,
				TypeID:         a.TypeID,
				SubTypeID:      a.SubTypeID,
				Start:          a.Start,
				DurationS:      a.Duration.Seconds(),
				DistanceM:      a.Distance,
				ElevationGainM: a.ElevationGain,
			})
		}
		for _, d := range b.Days {
			view.Days = append(view.Days, DayView{Date: d.Date.Format(time.DateOnly), TotalsView: toTotalsView(d.Totals)})
		}
		for _, s := range b.SubTypes {
			view.SubTypes = append(view.SubTypes, SubTypeShareView{
				SubTypeID:          s.SubTypeID,
				TotalsView:         toTotalsView(s.Totals),
				DistanceShare:      s.DistanceShare,
				DurationShare:      s.DurationShare,
				ElevationGainShare: s.ElevationGainShare,
			})
		}
		out = append(out, view)
	}
	return out
}
