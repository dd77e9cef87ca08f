// Package highlights ranks a user's activities per metric and activity
// type, yearly and over the lifetime.
package highlights

import (
	"context"
	"math"
	"sort"
	"strings"
	"time"

	"example.com/verve/internal/domain"
	"example.com/verve/internal/powercurve"
)

// DefaultTop is the number of ranked activities kept per group.
const DefaultTop = 3

// Metric names a ranked activity value.
type Metric string

const (
	MetricDuration          Metric = "duration"
	MetricDistance          Metric = "distance"
	MetricElevationChangeUp Metric = "elevation_change_up"
	MetricAvgSpeed          Metric = "avg_speed"
	MetricAvgPower          Metric = "avg_power"
	MetricMaxSpeed          Metric = "max_speed"
	MetricMaxPower          Metric = "max_power"
	MetricAvgPower1Min      Metric = "avg_power1min"
	MetricAvgPower2Min      Metric = "avg_power2min"
	MetricAvgPower5Min      Metric = "avg_power5min"
	MetricAvgPower10Min     Metric = "avg_power10min"
	MetricAvgPower20Min     Metric = "avg_power20min"
	MetricAvgPower30Min     Metric = "avg_power30min"
	MetricAvgPower60Min     Metric = "avg_power60min"
)

// Metrics lists every metric in report order.
var Metrics = []Metric{
	MetricDuration,
	MetricDistance,
	MetricElevationChangeUp,
	MetricAvgSpeed,
	MetricAvgPower,
	MetricMaxSpeed,
	MetricMaxPower,
	MetricAvgPower1Min,
	MetricAvgPower2Min,
	MetricAvgPower5Min,
	MetricAvgPower10Min,
	MetricAvgPower20Min,
	MetricAvgPower30Min,
	MetricAvgPower60Min,
}

// powerWindows maps the best-average power metrics to their window length.
var powerWindows = map[Metric]time.Duration{
	MetricAvgPower1Min:  time.Minute,
	MetricAvgPower2Min:  2 * time.Minute,
	MetricAvgPower5Min:  5 * time.Minute,
	MetricAvgPower10Min: 10 * time.Minute,
	MetricAvgPower20Min: 20 * time.Minute,
	MetricAvgPower30Min: 30 * time.Minute,
	MetricAvgPower60Min: 60 * time.Minute,
}

// ParseMetric resolves a metric name case-insensitively.
func ParseMetric(name string) (Metric, error) {
	m := Metric(strings.ToLower(strings.TrimSpace(name)))
	for _, known := range Metrics {
		if m == known {
			return m, nil
		}
	}
	return "", domain.Invalid("metric", "unknown metric %q", name)
}

// Scope selects whether activities compete per calendar year or over the
// whole history.
type Scope string

const (
	ScopeYearly   Scope = "yearly"
	ScopeLifetime Scope = "lifetime"
)

// Entry is one activity with the values it competes with.
type Entry struct {
	ActivityID string
	TypeID     int
	Start      time.Time
	Values     map[Metric]float64
}

// Highlight is one ranked activity. Rank starts at 1.
type Highlight struct {
	ActivityID string  `json:"activity_id"`
	TypeID     int     `json:"type_id"`
	Metric     Metric  `json:"metric"`
	Scope      Scope   `json:"scope"`
	Year       *int    `json:"year,omitempty"`
	Value      float64 `json:"value"`
	Rank       int     `json:"rank"`
}

// Query configures Rank. A nil Year ranks every year of a yearly scope;
// empty Metrics means all of them; zero Top uses DefaultTop.
type Query struct {
	Scope   Scope
	Year    *int
	TypeID  *int
	Metrics []Metric
	Top     int
}

// Validate checks the scope, year, top and metrics.
func (q Query) Validate() error {
	switch q.Scope {
	case ScopeYearly, ScopeLifetime:
	default:
		return domain.Invalid("scope", "unknown scope %q", q.Scope)
	}
	if q.Year != nil {
		if q.Scope == ScopeLifetime {
			return domain.Invalid("year", "not allowed for scope %q", q.Scope)
		}
		if *q.Year < 1 || *q.Year > 9999 {
			return domain.Invalid("year", "out of range: %d", *q.Year)
		}
	}
	if q.Top < 0 {
		return domain.Invalid("top", "must be positive, got %d", q.Top)
	}
	for _, m := range q.Metrics {
		if _, err := ParseMetric(string(m)); err != nil {
			return err
		}
	}
	return nil
}

// Collect derives the ranked values of one activity from its summary and
// cleaned points. Missing values are left out so the activity does not
// compete for that metric.
func Collect(ctx context.Context, activity domain.Activity, points []domain.TrackPoint) (Entry, error) {
	e := Entry{
		ActivityID: activity.ID,
		TypeID:     activity.TypeID,
		Start:      activity.Start,
		Values:     make(map[Metric]float64),
	}
	duration := activity.Duration
	if activity.MovingDuration != nil {
		duration = *activity.MovingDuration
	}
	if duration > 0 {
		e.Values[MetricDuration] = duration.Seconds()
	}
	set := func(m Metric, v *float64) {
		if v != nil && !math.IsNaN(*v) && !math.IsInf(*v, 0) {
			e.Values[m] = *v
		}
	}
	set(MetricDistance, activity.Distance)
	set(MetricElevationChangeUp, activity.ElevationGain)
	set(MetricAvgSpeed, activity.AvgSpeed)
	set(MetricMaxSpeed, activity.MaxSpeed)
	set(MetricAvgPower, activity.AvgPower)
	set(MetricMaxPower, activity.MaxPower)

	span := powerSpan(points)
	if span <= 0 {
		return e, nil
	}
	var metrics []Metric
	var durations []time.Duration
	for _, m := range Metrics {
		if d, ok := powerWindows[m]; ok && d <= span {
			metrics = append(metrics, m)
			durations = append(durations, d)
		}
	}
	if len(durations) == 0 {
		return e, nil
	}
	curves, err := powercurve.Compute(ctx, points, durations, 1)
	if err != nil {
		return Entry{}, err
	}
	for i, c := range curves {
		if len(c.Windows) > 0 {
			e.Values[metrics[i]] = c.Windows[0].Average
		}
	}
	return e, nil
}

// powerSpan is the time covered by the power samples of a track. A window
// metric only counts when the samples cover the whole window.
func powerSpan(points []domain.TrackPoint) time.Duration {
	var first, last time.Time
	for _, p := range points {
		if p.Power == nil {
			continue
		}
		if first.IsZero() || p.Time.Before(first) {
			first = p.Time
		}
		if p.Time.After(last) {
			last = p.Time
		}
	}
	return last.Sub(first)
}

type groupKey struct {
	typeID int
	metric Metric
	year   int
}

// Rank returns the top activities per activity type, metric and, for the
// yearly scope, start year. Ties are broken by activity id descending.
// Results are ordered by type, metric, year descending and rank.
func Rank(entries []Entry, q Query) ([]Highlight, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}
	top := q.Top
	if top == 0 {
		top = DefaultTop
	}
	metrics := Metrics
	if len(q.Metrics) > 0 {
		metrics = make([]Metric, 0, len(q.Metrics))
		seen := make(map[Metric]bool, len(q.Metrics))
		for _, name := range q.Metrics {
			m, _ := ParseMetric(string(name))
			if !seen[m] {
				seen[m] = true
				metrics = append(metrics, m)
			}
		}
	}
	order := make(map[Metric]int, len(Metrics))
	for i, m := range Metrics {
		order[m] = i
	}

	groups := make(map[groupKey][]Highlight)
	for _, e := range entries {
		if q.TypeID != nil && e.TypeID != *q.TypeID {
			continue
		}
		year := 0
		if q.Scope == ScopeYearly {
			year = e.Start.UTC().Year()
			if q.Year != nil && year != *q.Year {
				continue
			}
		}
		for _, m := range metrics {
			v, ok := e.Values[m]
			if !ok {
				continue
			}
			h := Highlight{ActivityID: e.ActivityID, TypeID: e.TypeID, Metric: m, Scope: q.Scope, Value: v}
			if q.Scope == ScopeYearly {
				h.Year = domain.Int(year)
			}
			k := groupKey{typeID: e.TypeID, metric: m, year: year}
			groups[k] = append(groups[k], h)
		}
	}

	keys := make([]groupKey, 0, len(groups))
	for k := range groups {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		a, b := keys[i], keys[j]
		if a.typeID != b.typeID {
			return a.typeID < b.typeID
		}
		if a.metric != b.metric {
			return order[a.metric] < order[b.metric]
		}
		return a.year > b.year
	})

	var out []Highlight
	for _, k := range keys {
		group := groups[k]
		sort.Slice(group, func(i, j int) bool {
			if group[i].Value != group[j].Value {
				return group[i].Value > group[j].Value
			}
			return group[i].ActivityID > group[j].ActivityID
		})
		if len(group) > top {
			group = group[:top]
		}
		for i := range group {
			group[i].Rank = i + 1
		}
		out = append(out, group...)
	}
	return out, nil
}
