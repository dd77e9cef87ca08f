package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"example.com/verve/internal/domain"
	"example.com/verve/internal/events"
)

// Repository provides Postgres-backed persistence for activities, track
// points, locations and outbox events. Every statement runs inside a
// transaction scoped to the caller through the app.user_id setting.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

var snapshotTx = pgx.TxOptions{IsoLevel: pgx.RepeatableRead, AccessMode: pgx.ReadOnly}

func (r *Repository) inUserTx(ctx context.Context, userID string, opts pgx.TxOptions, fn func(pgx.Tx) error) (err error) {
	if userID == "" {
		return domain.ErrMissingIdentity
	}
	tx, err := r.pool.BeginTx(ctx, opts)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			tx.Rollback(ctx)
		}
	}()

	if _, err = tx.Exec(ctx, "SELECT set_config('app.user_id', $1, true)", userID); err != nil {
		return err
	}
	if err = fn(tx); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

const activityColumns = `activity_id, user_id, name, type_id, sub_type_id, start_time, duration_seconds, moving_duration_seconds,
        distance, elevation_gain, elevation_loss, avg_speed, max_speed, avg_power, max_power, avg_heartrate, max_heartrate, updated_at`

func scanActivity(row pgx.Row) (domain.Activity, error) {
	var a domain.Activity
	var duration float64
	var moving *float64
	if err := row.Scan(&a.ID, &a.UserID, &a.Name, &a.TypeID, &a.SubTypeID, &a.Start, &duration, &moving,
		&a.Distance, &a.ElevationGain, &a.ElevationLoss, &a.AvgSpeed, &a.MaxSpeed, &a.AvgPower, &a.MaxPower,
		&a.AvgHeartrate, &a.MaxHeartrate, &a.UpdatedAt); err != nil {
		return domain.Activity{}, err
	}
	a.Duration = seconds(duration)
	if moving != nil {
		d := seconds(*moving)
		a.MovingDuration = &d
	}
	return a, nil
}

const pointColumns = `point_id, activity_id, user_id, segment_id, recorded_at, latitude, longitude, elevation, heartrate, cadence, power,
        distance_from_previous, time_from_previous, cumulative_distance, cumulative_time, speed`

var pointCopyColumns = []string{
	"point_id", "activity_id", "user_id", "segment_id", "recorded_at", "latitude", "longitude", "elevation", "heartrate", "cadence", "power",
	"distance_from_previous", "time_from_previous", "cumulative_distance", "cumulative_time", "speed",
}

func scanPoint(rows pgx.Rows) (domain.TrackPoint, error) {
	var p domain.TrackPoint
	err := rows.Scan(&p.ID, &p.ActivityID, &p.UserID, &p.SegmentID, &p.Time, &p.Coordinate.Lat, &p.Coordinate.Lon,
		&p.Elevation, &p.Heartrate, &p.Cadence, &p.Power,
		&p.DistanceFromPrevious, &p.TimeFromPrevious, &p.CumulativeDistance, &p.CumulativeTime, &p.Speed)
	p.Time = p.Time.UTC()
	return p, err
}

func pointRow(p domain.TrackPoint) []any {
	return []any{
		p.ID, p.ActivityID, p.UserID, p.SegmentID, p.Time, p.Coordinate.Lat, p.Coordinate.Lon,
		p.Elevation, p.Heartrate, p.Cadence, p.Power,
		p.DistanceFromPrevious, p.TimeFromPrevious, p.CumulativeDistance, p.CumulativeTime, p.Speed,
	}
}

// CreateActivity inserts an activity together with its raw points.
func (r *Repository) CreateActivity(ctx context.Context, activity domain.Activity, points []domain.TrackPoint) error {
	return r.inUserTx(ctx, activity.UserID, pgx.TxOptions{}, func(tx pgx.Tx) error {
		const stmt = `INSERT INTO activities (activity_id, user_id, name, type_id, sub_type_id, start_time, duration_seconds, distance, updated_at)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`
		updated := activity.UpdatedAt
		if updated.IsZero() {
			updated = time.Now().UTC()
		}
		if _, err := tx.Exec(ctx, stmt, activity.ID, activity.UserID, activity.Name, activity.TypeID, activity.SubTypeID,
			activity.Start, activity.Duration.Seconds(), activity.Distance, updated); err != nil {
			return err
		}
		return copyPoints(ctx, tx, activity, points)
	})
}

// CreateLocation inserts a location.
func (r *Repository) CreateLocation(ctx context.Context, l domain.Location) error {
	return r.inUserTx(ctx, l.UserID, pgx.TxOptions{}, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `INSERT INTO locations (location_id, user_id, name, description, type_id, sub_type_id, latitude, longitude)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
			l.ID, l.UserID, l.Name, l.Description, l.TypeID, l.SubTypeID, l.Coordinate.Lat, l.Coordinate.Lon)
		return err
	})
}

func copyPoints(ctx context.Context, tx pgx.Tx, activity domain.Activity, points []domain.TrackPoint) error {
	if len(points) == 0 {
		return nil
	}
	_, err := tx.CopyFrom(ctx, pgx.Identifier{"track_points"}, pointCopyColumns,
		pgx.CopyFromSlice(len(points), func(i int) ([]any, error) {
			p := points[i]
			p.ActivityID = activity.ID
			p.UserID = activity.UserID
			if p.ID == 0 {
				p.ID = int64(i + 1)
			}
			return pointRow(p), nil
		}))
	return err
}

// ActivityTrack implements domain.TrackStore. The activity and its points
// are read from one repeatable-read snapshot.
func (r *Repository) ActivityTrack(ctx context.Context, userID, activityID string) (*domain.Activity, []domain.TrackPoint, error) {
	var activity domain.Activity
	var points []domain.TrackPoint
	err := r.inUserTx(ctx, userID, snapshotTx, func(tx pgx.Tx) error {
		var err error
		activity, err = scanActivity(tx.QueryRow(ctx,
			`SELECT `+activityColumns+` FROM activities WHERE user_id=$1 AND activity_id=$2`, userID, activityID))
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.ErrActivityNotFound
		}
		if err != nil {
			return err
		}
		points, err = queryPoints(ctx, tx,
			`SELECT `+pointColumns+` FROM track_points WHERE user_id=$1 AND activity_id=$2
        ORDER BY segment_id, recorded_at, point_id`, userID, activityID)
		return err
	})
	if err != nil {
		return nil, nil, err
	}
	return &activity, points, nil
}

func queryPoints(ctx context.Context, tx pgx.Tx, query string, args ...any) ([]domain.TrackPoint, error) {
	rows, err := tx.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	points := make([]domain.TrackPoint, 0)
	for rows.Next() {
		p, err := scanPoint(rows)
		if err != nil {
			return nil, err
		}
		points = append(points, p)
	}
	return points, rows.Err()
}

// ReplaceTrack implements domain.TrackStore. The activity row is locked,
// the point set swapped and the summary rewritten in one transaction that
// also records the activity.track_cleaned outbox event.
func (r *Repository) ReplaceTrack(ctx context.Context, activity domain.Activity, points []domain.TrackPoint) error {
	return r.inUserTx(ctx, activity.UserID, pgx.TxOptions{}, func(tx pgx.Tx) error {
		var locked string
		err := tx.QueryRow(ctx, `SELECT activity_id FROM activities WHERE activity_id=$1 AND user_id=$2 FOR UPDATE`,
			activity.ID, activity.UserID).Scan(&locked)
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.ErrActivityNotFound
		}
		if err != nil {
			return err
		}

		if _, err := tx.Exec(ctx, `DELETE FROM track_points WHERE activity_id=$1`, activity.ID); err != nil {
			return err
		}
		if err := copyPoints(ctx, tx, activity, points); err != nil {
			return err
		}

		var moving *float64
		if activity.MovingDuration != nil {
			v := activity.MovingDuration.Seconds()
			moving = &v
		}
		const update = `UPDATE activities SET start_time=$3, duration_seconds=$4, moving_duration_seconds=$5, distance=$6,
        elevation_gain=$7, elevation_loss=$8, avg_speed=$9, max_speed=$10, avg_power=$11, max_power=$12,
        avg_heartrate=$13, max_heartrate=$14, updated_at=$15
        WHERE activity_id=$1 AND user_id=$2`
		if _, err := tx.Exec(ctx, update, activity.ID, activity.UserID, activity.Start, activity.Duration.Seconds(), moving,
			activity.Distance, activity.ElevationGain, activity.ElevationLoss, activity.AvgSpeed, activity.MaxSpeed,
			activity.AvgPower, activity.MaxPower, activity.AvgHeartrate, activity.MaxHeartrate, activity.UpdatedAt); err != nil {
			return err
		}

		return insertOutbox(ctx, tx, activity, events.TrackCleanedType, events.TrackCleaned{
			ActivityID: activity.ID,
			UserID:     activity.UserID,
			PointCount: len(points),
			Distance:   activity.Distance,
			DurationS:  activity.Duration.Seconds(),
			CleanedAt:  activity.UpdatedAt,
		})
	})
}

func insertOutbox(ctx context.Context, tx pgx.Tx, activity domain.Activity, eventType string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	meta, ok := eventCatalog[eventType]
	if !ok {
		return fmt.Errorf("unknown event type: %s", eventType)
	}
	dedupeKey := fmt.Sprintf("%s:%s:%d", activity.ID, eventType, activity.UpdatedAt.UnixNano())

	const stmt = `INSERT INTO outbox (user_id, aggregate_type, aggregate_id, event_type, topic, schema_subject, partition_key, payload, dedupe_key)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`

	_, err = tx.Exec(ctx, stmt,
		activity.UserID,
		"activity",
		activity.ID,
		eventType,
		meta.Topic,
		meta.SchemaSubject,
		meta.PartitionKeyFn(activity),
		body,
		dedupeKey,
	)
	return err
}

// ListActivities implements domain.TrackStore.
func (r *Repository) ListActivities(ctx context.Context, userID string, filter domain.ActivityFilter) ([]domain.Activity, error) {
	query, args := activityQuery(userID, filter)

	var results []domain.Activity
	err := r.inUserTx(ctx, userID, snapshotTx, func(tx pgx.Tx) error {
		rows, err := tx.Query(ctx, query, args...)
		if err != nil {
			return err
		}
		defer rows.Close()

		results = make([]domain.Activity, 0)
		for rows.Next() {
			a, err := scanActivity(rows)
			if err != nil {
				return err
			}
			results = append(results, a)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return results, nil
}

func activityQuery(userID string, filter domain.ActivityFilter) (string, []any) {
	args := []any{userID}
	where := []string{"user_id=$1"}
	add := func(clause string, value any) {
		args = append(args, value)
		where = append(where, fmt.Sprintf(clause, len(args)))
	}
	if len(filter.IDs) > 0 {
		add("activity_id = ANY($%d)", filter.IDs)
	}
	if filter.TypeID != nil {
		add("type_id=$%d", *filter.TypeID)
	}
	if filter.SubTypeID != nil {
		add("sub_type_id=$%d", *filter.SubTypeID)
	}
	if !filter.From.IsZero() {
		add("start_time >= $%d", filter.From)
	}
	if !filter.To.IsZero() {
		add("start_time < $%d", filter.To)
	}

	query := `SELECT ` + activityColumns + ` FROM activities WHERE ` + strings.Join(where, " AND ") +
		` ORDER BY start_time DESC, activity_id`
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	return query, args
}

// TrackPoints implements domain.TrackStore.
func (r *Repository) TrackPoints(ctx context.Context, userID string, activityIDs []string) (map[string][]domain.TrackPoint, error) {
	out := make(map[string][]domain.TrackPoint, len(activityIDs))
	if len(activityIDs) == 0 {
		return out, nil
	}
	err := r.inUserTx(ctx, userID, snapshotTx, func(tx pgx.Tx) error {
		points, err := queryPoints(ctx, tx,
			`SELECT `+pointColumns+` FROM track_points WHERE user_id=$1 AND activity_id = ANY($2)
        ORDER BY activity_id, segment_id, recorded_at, point_id`, userID, activityIDs)
		if err != nil {
			return err
		}
		for _, p := range points {
			out[p.ActivityID] = append(out[p.ActivityID], p)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// ListLocations implements domain.LocationStore.
func (r *Repository) ListLocations(ctx context.Context, userID string, filter domain.LocationFilter) ([]domain.Location, error) {
	args := []any{userID}
	query := `SELECT location_id, user_id, name, description, type_id, sub_type_id, latitude, longitude
        FROM locations WHERE user_id=$1`
	if filter.TypeID != nil {
		args = append(args, *filter.TypeID)
		query += fmt.Sprintf(" AND type_id=$%d", len(args))
	}
	if filter.SubTypeID != nil {
		args = append(args, *filter.SubTypeID)
		query += fmt.Sprintf(" AND sub_type_id=$%d", len(args))
	}
	query += ` ORDER BY location_id`

	var results []domain.Location
	err := r.inUserTx(ctx, userID, snapshotTx, func(tx pgx.Tx) error {
		rows, err := tx.Query(ctx, query, args...)
		if err != nil {
			return err
		}
		defer rows.Close()

		results = make([]domain.Location, 0)
		for rows.Next() {
			var l domain.Location
			if err := rows.Scan(&l.ID, &l.UserID, &l.Name, &l.Description, &l.TypeID, &l.SubTypeID, &l.Coordinate.Lat, &l.Coordinate.Lon); err != nil {
				return err
			}
			results = append(results, l)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return results, nil
}

func seconds(v float64) time.Duration {
	return time.Duration(v * float64(time.Second))
}

// EventMetadata describes how to route an outbox event.
type EventMetadata struct {
	Topic          string
	SchemaSubject  string
	PartitionKeyFn func(domain.Activity) string
}

var eventCatalog = map[string]EventMetadata{
	events.TrackCleanedType: {
		Topic:         events.TrackEventsTopic,
		SchemaSubject: events.TrackEventsTopic + "-value",
		PartitionKeyFn: func(a domain.Activity) string {
			return fmt.Sprintf("%s:%s", a.UserID, a.ID)
		},
	},
}
