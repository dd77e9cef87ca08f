// Package engine orchestrates the track analytics components over the
// point, activity and location stores.
package engine

import (
	"context"
	"fmt"
	"io"
	"log"
	"time"

	"example.com/verve/internal/calendar"
	"example.com/verve/internal/domain"
	"example.com/verve/internal/geo"
	"example.com/verve/internal/heatmap"
	"example.com/verve/internal/highlights"
	"example.com/verve/internal/matching"
	"example.com/verve/internal/observability"
	"example.com/verve/internal/powercurve"
	"example.com/verve/internal/track"
)

// Config holds the tunables of the engine.
type Config struct {
	Track           track.Options
	PowerCurveTopK  int
	HeatmapCellSize float64
	MatchRadius     float64
}

// DefaultConfig returns the engine defaults.
func DefaultConfig() Config {
	return Config{
		Track:           track.DefaultOptions(),
		PowerCurveTopK:  powercurve.DefaultTopK,
		HeatmapCellSize: heatmap.DefaultCellSize,
		MatchRadius:     matching.DefaultRadius,
	}
}

// Option customises a Service.
type Option func(*Service)

// WithLogger overrides the logger used by the service.
func WithLogger(logger *log.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithProjector overrides the heatmap projection.
func WithProjector(p geo.Projector) Option {
	return func(s *Service) {
		if p != nil {
			s.projector = p
		}
	}
}

// WithClock overrides the time source used for replacement timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// Service exposes the track analytics operations. Every call fetches a
// snapshot up front and computes over it without further I/O.
type Service struct {
	tracks    domain.TrackStore
	locations domain.LocationStore
	cfg       Config
	projector geo.Projector
	locks     *keyedMutex
	logger    *log.Logger
	now       func() time.Time
}

// NewService constructs a Service.
func NewService(tracks domain.TrackStore, locations domain.LocationStore, cfg Config, opts ...Option) *Service {
	s := &Service{
		tracks:    tracks,
		locations: locations,
		cfg:       cfg,
		projector: geo.WebMercator{},
		locks:     newKeyedMutex(),
		logger:    log.New(io.Discard, "", 0),
		now:       func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// TrackResult is the outcome of a cleaning run.
type TrackResult struct {
	Activity domain.Activity      `json:"activity"`
	Points   []domain.TrackPoint  `json:"points"`
	Removed  int                  `json:"removed"`
	Skipped  []track.SkippedPoint `json:"skipped"`
}

// CleanAndDeriveTrack cleans the activity's points, derives metrics,
// recomputes the summary and atomically replaces the stored track.
// Concurrent runs for the same activity are serialised.
func (s *Service) CleanAndDeriveTrack(ctx context.Context, userID, activityID string) (result TrackResult, err error) {
	defer observeSince("clean_and_derive_track", time.Now(), &err)
	if userID == "" {
		return TrackResult{}, domain.ErrMissingIdentity
	}
	if activityID == "" {
		return TrackResult{}, domain.ErrActivityNotFound
	}

	release := s.locks.Lock(activityID)
	defer release()

	activity, points, err := s.tracks.ActivityTrack(ctx, userID, activityID)
	if err != nil {
		return TrackResult{}, err
	}
	cleaned, err := track.Clean(points, s.cfg.Track)
	if err != nil {
		return TrackResult{}, err
	}
	track.Derive(cleaned.Points)
	summary := track.Summarize(*activity, cleaned.Points, s.cfg.Track.MovingSpeed)
	summary.UpdatedAt = s.now()

	if err := ctx.Err(); err != nil {
		return TrackResult{}, err
	}
	if err := s.tracks.ReplaceTrack(ctx, summary, cleaned.Points); err != nil {
		return TrackResult{}, fmt.Errorf("replace track: %w", err)
	}

	reasons := make([]string, 0, len(cleaned.Skipped))
	for _, sk := range cleaned.Skipped {
		reasons = append(reasons, sk.Reason)
	}
	observability.RecordCleaning(cleaned.Removed, reasons)
	observability.RecordTrackReplaced(summary.UpdatedAt)
	s.logger.Printf("track cleaned activity=%s points=%d removed=%d skipped=%d", activityID, len(cleaned.Points), cleaned.Removed, len(cleaned.Skipped))

	return TrackResult{
		Activity: summary,
		Points:   cleaned.Points,
		Removed:  cleaned.Removed,
		Skipped:  cleaned.Skipped,
	}, nil
}

// Config returns the effective engine configuration.
func (s *Service) Config() Config {
	return s.cfg
}

// Track returns the stored activity and its points.
func (s *Service) Track(ctx context.Context, userID, activityID string) (*domain.Activity, []domain.TrackPoint, error) {
	if userID == "" {
		return nil, nil, domain.ErrMissingIdentity
	}
	return s.tracks.ActivityTrack(ctx, userID, activityID)
}

// ComputePowerCurve ranks the best trailing-window averages per duration.
// A zero topK uses the configured default; a negative one is rejected.
func (s *Service) ComputePowerCurve(ctx context.Context, userID, activityID string, durations []time.Duration, topK int) (curves []powercurve.Curve, err error) {
	defer observeSince("compute_power_curve", time.Now(), &err)
	if userID == "" {
		return nil, domain.ErrMissingIdentity
	}
	if topK == 0 {
		topK = s.cfg.PowerCurveTopK
	}
	_, points, err := s.tracks.ActivityTrack(ctx, userID, activityID)
	if err != nil {
		return nil, err
	}
	return powercurve.Compute(ctx, points, durations, topK)
}

// HeatmapQuery selects the activities and the grid size of a heatmap.
type HeatmapQuery struct {
	ActivityIDs []string
	TypeID      *int
	SubTypeID   *int
	Year        *int
	Month       *int
	Limit       int
	CellSize    float64
}

func (q HeatmapQuery) filter() (domain.ActivityFilter, error) {
	f := domain.ActivityFilter{IDs: q.ActivityIDs, TypeID: q.TypeID, SubTypeID: q.SubTypeID, Limit: q.Limit}
	if q.SubTypeID != nil && q.TypeID == nil {
		return f, domain.Invalid("sub_type_id", "must be set together with type_id")
	}
	if q.Month != nil && q.Year == nil {
		return f, domain.Invalid("year", "must be set when month is set")
	}
	if q.Limit < 0 {
		return f, domain.Invalid("limit", "must not be negative")
	}
	if q.Year != nil {
		key := calendar.Key{Year: *q.Year}
		period := calendar.PeriodYear
		if q.Month != nil {
			key.Month = *q.Month
			period = calendar.PeriodMonth
		}
		from, to, err := calendar.Query{Period: period, Key: &key}.Range()
		if err != nil {
			return f, err
		}
		f.From, f.To = from, to
	}
	return f, nil
}

// ComputeHeatmap buckets the points of the selected activities into grid cells.
func (s *Service) ComputeHeatmap(ctx context.Context, userID string, q HeatmapQuery) (cells []heatmap.Cell, err error) {
	defer observeSince("compute_heatmap", time.Now(), &err)
	if userID == "" {
		return nil, domain.ErrMissingIdentity
	}
	if q.CellSize == 0 {
		q.CellSize = s.cfg.HeatmapCellSize
	}
	if q.CellSize <= 0 {
		return nil, domain.Invalid("cell_size", "must be positive")
	}
	filter, err := q.filter()
	if err != nil {
		return nil, err
	}
	activities, err := s.tracks.ListActivities(ctx, userID, filter)
	if err != nil {
		return nil, err
	}
	ids := activityIDs(activities)
	if len(ids) == 0 {
		return []heatmap.Cell{}, nil
	}
	points, err := s.tracks.TrackPoints(ctx, userID, ids)
	if err != nil {
		return nil, err
	}
	return heatmap.Build(ctx, points, heatmap.Options{CellSize: q.CellSize, ActivityIDs: ids, Projector: s.projector})
}

// MatchLocationsToTracks reports which of the user's locations were visited
// by which of the user's activities. A zero threshold uses the configured radius.
func (s *Service) MatchLocationsToTracks(ctx context.Context, userID string, locFilter domain.LocationFilter, actFilter domain.ActivityFilter, threshold float64) (matches []matching.LocationMatch, err error) {
	defer observeSince("match_locations", time.Now(), &err)
	if userID == "" {
		return nil, domain.ErrMissingIdentity
	}
	if threshold == 0 {
		threshold = s.cfg.MatchRadius
	}
	if threshold <= 0 {
		return nil, domain.Invalid("threshold", "must be positive")
	}
	if locFilter.SubTypeID != nil && locFilter.TypeID == nil {
		return nil, domain.Invalid("location_sub_type_id", "must be set together with location_type_id")
	}
	if actFilter.SubTypeID != nil && actFilter.TypeID == nil {
		return nil, domain.Invalid("activity_sub_type_id", "must be set together with activity_type_id")
	}
	locations, err := s.locations.ListLocations(ctx, userID, locFilter)
	if err != nil {
		return nil, err
	}
	if len(locations) == 0 {
		return []matching.LocationMatch{}, nil
	}
	tracks, err := s.loadTracks(ctx, userID, actFilter)
	if err != nil {
		return nil, err
	}
	return matching.MatchLocations(userID, locations, tracks, threshold)
}

// MatchPointToTracks returns the activities passing within radius of c.
func (s *Service) MatchPointToTracks(ctx context.Context, userID string, c domain.Coordinate, radius float64) (matches []matching.PointMatch, err error) {
	defer observeSince("match_point", time.Now(), &err)
	if userID == "" {
		return nil, domain.ErrMissingIdentity
	}
	if radius == 0 {
		radius = s.cfg.MatchRadius
	}
	if !c.Valid() {
		return nil, domain.Invalid("coordinate", "invalid coordinate %v,%v", c.Lat, c.Lon)
	}
	if radius <= 0 {
		return nil, domain.Invalid("radius", "must be positive")
	}
	tracks, err := s.loadTracks(ctx, userID, domain.ActivityFilter{})
	if err != nil {
		return nil, err
	}
	return matching.MatchPoint(userID, c, radius, tracks)
}

// CalendarQuery selects the calendar buckets to aggregate.
type CalendarQuery struct {
	Period        calendar.Period
	Key           *calendar.Key
	PrimaryTypeID *int
}

// AggregateCalendar groups the user's activity summaries into calendar buckets.
func (s *Service) AggregateCalendar(ctx context.Context, userID string, q CalendarQuery) (buckets []calendar.Bucket, err error) {
	defer observeSince("aggregate_calendar", time.Now(), &err)
	if userID == "" {
		return nil, domain.ErrMissingIdentity
	}
	query := calendar.Query{Period: q.Period, Key: q.Key, PrimaryTypeID: q.PrimaryTypeID}
	from, to, err := query.Range()
	if err != nil {
		return nil, err
	}
	activities, err := s.tracks.ListActivities(ctx, userID, domain.ActivityFilter{TypeID: q.PrimaryTypeID, From: from, To: to})
	if err != nil {
		return nil, err
	}
	return calendar.Aggregate(activities, query)
}

// RankHighlights ranks the caller's activities per type and metric. The
// ranking is recomputed from the stored summaries and points on each call.
func (s *Service) RankHighlights(ctx context.Context, userID string, q highlights.Query) (ranked []highlights.Highlight, err error) {
	defer observeSince("rank_highlights", time.Now(), &err)
	if userID == "" {
		return nil, domain.ErrMissingIdentity
	}
	if err := q.Validate(); err != nil {
		return nil, err
	}
	filter := domain.ActivityFilter{TypeID: q.TypeID}
	if q.Year != nil {
		filter.From = time.Date(*q.Year, time.January, 1, 0, 0, 0, 0, time.UTC)
		filter.To = filter.From.AddDate(1, 0, 0)
	}
	tracks, err := s.loadTracks(ctx, userID, filter)
	if err != nil {
		return nil, err
	}
	entries := make([]highlights.Entry, 0, len(tracks))
	for _, t := range tracks {
		e, err := highlights.Collect(ctx, t.Activity, t.Points)
		if err != nil {
			return nil, fmt.Errorf("collect highlights of %s: %w", t.Activity.ID, err)
		}
		entries = append(entries, e)
	}
	return highlights.Rank(entries, q)
}

func (s *Service) loadTracks(ctx context.Context, userID string, filter domain.ActivityFilter) ([]matching.Track, error) {
	activities, err := s.tracks.ListActivities(ctx, userID, filter)
	if err != nil {
		return nil, err
	}
	ids := activityIDs(activities)
	if len(ids) == 0 {
		return nil, nil
	}
	points, err := s.tracks.TrackPoints(ctx, userID, ids)
	if err != nil {
		return nil, err
	}
	tracks := make([]matching.Track, 0, len(activities))
	for _, a := range activities {
		tracks = append(tracks, matching.Track{Activity: a, Points: points[a.ID]})
	}
	return tracks, nil
}

func activityIDs(activities []domain.Activity) []string {
	ids := make([]string, 0, len(activities))
	for _, a := range activities {
		ids = append(ids, a.ID)
	}
	return ids
}

func observeSince(operation string, started time.Time, err *error) {
	observability.ObserveOperation(operation, started, *err)
}
