// Package calendar groups activity summaries into ISO week, month and year
// buckets with null-safe totals.
package calendar

import (
	"sort"
	"time"

	"example.com/verve/internal/domain"
)

// Period selects the bucket granularity.
type Period string

const (
	PeriodWeek  Period = "week"
	PeriodMonth Period = "month"
	PeriodYear  Period = "year"
)

// Key identifies one bucket. Week is an ISO week of the ISO year Year and
// is set only for PeriodWeek; Month is set only for PeriodMonth.
type Key struct {
	Year  int `json:"year"`
	Week  int `json:"week,omitempty"`
	Month int `json:"month,omitempty"`
}

// Query configures Aggregate. A nil Key groups every activity into its
// bucket; a non-nil Key returns exactly that bucket.
type Query struct {
	Period        Period
	Key           *Key
	PrimaryTypeID *int
	Location      *time.Location
}

// ActivityRef is the per-activity line of a bucket.
type ActivityRef struct {
	ID            string        `json:"id"`
	Name          string        `json:"name"`
	TypeID        int           `json:"type_id"`
	SubTypeID     *int          `json:"sub_type_id"`
	Start         time.Time     `json:"start"`
	Duration      time.Duration `json:"duration"`
	Distance      *float64      `json:"distance"`
	ElevationGain *float64      `json:"elevation_gain"`
}

// Totals are null-safe sums over a set of activities.
type Totals struct {
	ActivityCount int           `json:"activity_count"`
	DistanceCount int           `json:"distance_count"`
	Distance      *float64      `json:"distance"`
	ElevationGain *float64      `json:"elevation_gain"`
	Duration      time.Duration `json:"duration"`
}

func (t *Totals) add(a domain.Activity) {
	t.ActivityCount++
	t.Duration += a.Duration
	if a.Distance != nil {
		t.DistanceCount++
		t.Distance = plus(t.Distance, *a.Distance)
	}
	if a.ElevationGain != nil {
		t.ElevationGain = plus(t.ElevationGain, *a.ElevationGain)
	}
}

func plus(sum *float64, v float64) *float64 {
	if sum == nil {
		return domain.Float(v)
	}
	return domain.Float(*sum + v)
}

// Day is one day of a week bucket.
type Day struct {
	Date time.Time `json:"date"`
	Totals
}

// SubTypeShare is the breakdown of a primary type bucket by sub-type, with
// percentage shares of the bucket totals.
type SubTypeShare struct {
	SubTypeID *int `json:"sub_type_id"`
	Totals
	DistanceShare      *float64 `json:"distance_share"`
	DurationShare      *float64 `json:"duration_share"`
	ElevationGainShare *float64 `json:"elevation_gain_share"`
}

// Bucket aggregates the activities of one calendar period.
type Bucket struct {
	Period Period    `json:"period"`
	Key    Key       `json:"key"`
	Start  time.Time `json:"start"`
	End    time.Time `json:"end"`
	Totals
	Activities []ActivityRef  `json:"activities"`
	Days       []Day          `json:"days,omitempty"`
	SubTypes   []SubTypeShare `json:"sub_types,omitempty"`
}

// Validate checks the period and, when present, the key. A key may only
// carry the fields its period uses.
func (q Query) Validate() error {
	switch q.Period {
	case PeriodWeek, PeriodMonth, PeriodYear:
	default:
		return domain.Invalid("period", "unknown period %q", q.Period)
	}
	if q.Key == nil {
		return nil
	}
	k := *q.Key
	if k.Year < 1 || k.Year > 9999 {
		return domain.Invalid("year", "out of range: %d", k.Year)
	}
	switch q.Period {
	case PeriodWeek:
		if k.Month != 0 {
			return domain.Invalid("month", "not allowed for period %q", q.Period)
		}
		if k.Week < 1 || k.Week > WeeksInYear(k.Year) {
			return domain.Invalid("week", "ISO year %d has no week %d", k.Year, k.Week)
		}
	case PeriodMonth:
		if k.Week != 0 {
			return domain.Invalid("week", "not allowed for period %q", q.Period)
		}
		if k.Month < 1 || k.Month > 12 {
			return domain.Invalid("month", "out of range: %d", k.Month)
		}
	case PeriodYear:
		if k.Week != 0 || k.Month != 0 {
			return domain.Invalid("key", "week and month are not allowed for period %q", q.Period)
		}
	}
	return nil
}

func (q Query) location() *time.Location {
	if q.Location == nil {
		return time.UTC
	}
	return q.Location
}

// Range returns the half-open time range covered by the query key.
func (q Query) Range() (time.Time, time.Time, error) {
	if err := q.Validate(); err != nil {
		return time.Time{}, time.Time{}, err
	}
	if q.Key == nil {
		return time.Time{}, time.Time{}, nil
	}
	start, end := bounds(q.Period, *q.Key, q.location())
	return start, end, nil
}

// WeeksInYear returns 52 or 53 for the given ISO year.
func WeeksInYear(year int) int {
	_, w := time.Date(year, time.December, 28, 0, 0, 0, 0, time.UTC).ISOWeek()
	return w
}

// WeekStart returns the Monday starting ISO week of year.
func WeekStart(year, week int, loc *time.Location) time.Time {
	jan4 := time.Date(year, time.January, 4, 0, 0, 0, 0, loc)
	offset := (int(jan4.Weekday()) + 6) % 7
	return jan4.AddDate(0, 0, -offset+(week-1)*7)
}

func bounds(p Period, k Key, loc *time.Location) (time.Time, time.Time) {
	switch p {
	case PeriodWeek:
		start := WeekStart(k.Year, k.Week, loc)
		return start, start.AddDate(0, 0, 7)
	case PeriodMonth:
		start := time.Date(k.Year, time.Month(k.Month), 1, 0, 0, 0, 0, loc)
		return start, start.AddDate(0, 1, 0)
	default:
		start := time.Date(k.Year, time.January, 1, 0, 0, 0, 0, loc)
		return start, start.AddDate(1, 0, 0)
	}
}

func keyOf(p Period, t time.Time) Key {
	switch p {
	case PeriodWeek:
		y, w := t.ISOWeek()
		return Key{Year: y, Week: w}
	case PeriodMonth:
		return Key{Year: t.Year(), Month: int(t.Month())}
	default:
		return Key{Year: t.Year()}
	}
}

// Aggregate buckets activities by the query period. Buckets and the
// activities inside them are ordered by start descending.
func Aggregate(activities []domain.Activity, q Query) ([]Bucket, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}
	loc := q.location()

	grouped := make(map[Key][]domain.Activity)
	if q.Key != nil {
		grouped[*q.Key] = nil
	}
	for _, a := range activities {
		if q.PrimaryTypeID != nil && a.TypeID != *q.PrimaryTypeID {
			continue
		}
		k := keyOf(q.Period, a.Start.In(loc))
		if q.Key != nil && k != *q.Key {
			continue
		}
		grouped[k] = append(grouped[k], a)
	}

	buckets := make([]Bucket, 0, len(grouped))
	for k, members := range grouped {
		buckets = append(buckets, build(q, k, members, loc))
	}
	sort.Slice(buckets, func(i, j int) bool { return buckets[i].Start.After(buckets[j].Start) })
	return buckets, nil
}

func build(q Query, k Key, members []domain.Activity, loc *time.Location) Bucket {
	start, end := bounds(q.Period, k, loc)
	b := Bucket{Period: q.Period, Key: k, Start: start, End: end, Activities: []ActivityRef{}}

	sort.Slice(members, func(i, j int) bool {
		if !members[i].Start.Equal(members[j].Start) {
			return members[i].Start.After(members[j].Start)
		}
		return members[i].ID < members[j].ID
	})
	for _, a := range members {
		b.Totals.add(a)
		b.Activities = append(b.Activities, ActivityRef{
			ID:            a.ID,
			Name:          a.Name,
			TypeID:        a.TypeID,
			SubTypeID:     a.SubTypeID,
			Start:         a.Start,
			Duration:      a.Duration,
			Distance:      a.Distance,
			ElevationGain: a.ElevationGain,
		})
	}

	if q.Period == PeriodWeek {
		b.Days = make([]Day, 7)
		for i := range b.Days {
			b.Days[i].Date = start.AddDate(0, 0, i)
		}
		for _, a := range members {
			local := a.Start.In(loc)
			day := (int(local.Weekday()) + 6) % 7
			b.Days[day].add(a)
		}
	}

	if q.PrimaryTypeID != nil {
		b.SubTypes = breakdown(members, b.Totals)
	}
	return b
}

func breakdown(members []domain.Activity, total Totals) []SubTypeShare {
	index := make(map[int]int)
	nilIndex := -1
	var shares []SubTypeShare
	for _, a := range members {
		var i int
		var ok bool
		if a.SubTypeID == nil {
			i, ok = nilIndex, nilIndex >= 0
		} else {
			i, ok = index[*a.SubTypeID]
		}
		if !ok {
			shares = append(shares, SubTypeShare{SubTypeID: a.SubTypeID})
			i = len(shares) - 1
			if a.SubTypeID == nil {
				nilIndex = i
			} else {
				index[*a.SubTypeID] = i
			}
		}
		shares[i].add(a)
	}

	totalDuration := domain.Float(total.Duration.Seconds())
	for i := range shares {
		s := &shares[i]
		s.DistanceShare = share(s.Distance, total.Distance)
		s.DurationShare = share(domain.Float(s.Duration.Seconds()), totalDuration)
		s.ElevationGainShare = share(s.ElevationGain, total.ElevationGain)
	}
	sort.Slice(shares, func(i, j int) bool {
		a, b := shares[i].SubTypeID, shares[j].SubTypeID
		if a == nil || b == nil {
			return b == nil && a != nil
		}
		return *a < *b
	})
	return shares
}

func share(part, total *float64) *float64 {
	if total == nil || *total == 0 {
		return nil
	}
	if part == nil {
		return domain.Float(0)
	}
	return domain.Float(*part / *total * 100)
}
