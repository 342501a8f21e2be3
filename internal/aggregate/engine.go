// Package aggregate turns raw step intervals into labeled chart buckets for
// the reporting granularities.
package aggregate

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/samebrave/StepScape/internal/domain"
)

// Granularity selects the reporting window and bucket unit.
type Granularity string

const (
	GranularityDay      Granularity = "day"
	GranularityWeek     Granularity = "week"
	GranularityMonth    Granularity = "month"
	GranularitySixMonth Granularity = "six_month"
	GranularityYear     Granularity = "year"
)

// ParseGranularity maps the wire form onto a Granularity.
func ParseGranularity(value string) (Granularity, error) {
	switch Granularity(strings.ToLower(strings.TrimSpace(value))) {
	case GranularityDay:
		return GranularityDay, nil
	case GranularityWeek:
		return GranularityWeek, nil
	case GranularityMonth:
		return GranularityMonth, nil
	case GranularitySixMonth:
		return GranularitySixMonth, nil
	case GranularityYear:
		return GranularityYear, nil
	default:
		return "", fmt.Errorf("unknown granularity: %q", value)
	}
}

// Bucket is one labeled aggregation unit.
type Bucket struct {
	Label string `json:"label"`
	Steps int    `json:"steps"`
}

// Point is one sample of the intraday cumulative line. Hour is fractional
// (hour + minute/60).
type Point struct {
	Hour  float64 `json:"hour"`
	Steps int     `json:"steps"`
}

// Ingestor supplies provider intervals, backfilling the local store as a
// side effect of every fetch.
type Ingestor interface {
	IngestRange(ctx context.Context, userID string, from, to time.Time) ([]domain.StepInterval, error)
}

// Engine computes bucketed aggregates. It holds no state beyond the
// calendar zone and clock: every call is a pure function of the user, the
// granularity, and the current date.
type Engine struct {
	ingest Ingestor
	zone   *time.Location
	now    func() time.Time
}

// Option configures optional Engine behaviour.
type Option func(*Engine)

// WithClock overrides the wall clock, used by tests.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		e.now = now
	}
}

// NewEngine constructs an Engine computing dates in zone.
func NewEngine(ingest Ingestor, zone *time.Location, opts ...Option) *Engine {
	e := &Engine{
		ingest: ingest,
		zone:   zone,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *Engine) today() time.Time {
	return domain.StartOfDay(e.now(), e.zone)
}

// Buckets dispatches to the windowed aggregation for the granularity. The
// Day granularity has its own shape and is served by Day instead.
func (e *Engine) Buckets(ctx context.Context, userID string, granularity Granularity) ([]Bucket, error) {
	switch granularity {
	case GranularityWeek:
		return e.dailyBuckets(ctx, userID, 7, weekdayLabel)
	case GranularityMonth:
		return e.dailyBuckets(ctx, userID, 30, dayOfMonthLabel)
	case GranularitySixMonth:
		return e.monthlyBuckets(ctx, userID, 6)
	case GranularityYear:
		return e.monthlyBuckets(ctx, userID, 12)
	default:
		return nil, fmt.Errorf("granularity %q has no bucket aggregation", granularity)
	}
}

// dailyBuckets emits one bucket per calendar day for the last days days
// inclusive of today, oldest first. Days absent from the provider data
// contribute 0.
func (e *Engine) dailyBuckets(ctx context.Context, userID string, days int, label func(time.Time) string) ([]Bucket, error) {
	today := e.today()
	from := today.AddDate(0, 0, -(days - 1))

	intervals, err := e.ingest.IngestRange(ctx, userID, from, today)
	if err != nil {
		return nil, err
	}
	totals := e.dailyTotals(intervals)

	buckets := make([]Bucket, 0, days)
	for i := days - 1; i >= 0; i-- {
		date := today.AddDate(0, 0, -i)
		buckets = append(buckets, Bucket{
			Label: label(date),
			Steps: totals[dayKey(date)],
		})
	}
	return buckets, nil
}

// monthlyBuckets emits one bucket per calendar month for the last months
// months, each truncated to its 1st, oldest first. The current month is
// clamped to today.
func (e *Engine) monthlyBuckets(ctx context.Context, userID string, months int) ([]Bucket, error) {
	today := e.today()
	from := e.monthStart(today, -(months - 1))

	intervals, err := e.ingest.IngestRange(ctx, userID, from, today)
	if err != nil {
		return nil, err
	}
	totals := e.dailyTotals(intervals)

	buckets := make([]Bucket, 0, months)
	for i := months - 1; i >= 0; i-- {
		monthStart := e.monthStart(today, -i)
		monthEnd := today
		if i > 0 {
			monthEnd = monthStart.AddDate(0, 1, -1)
		}

		total := 0
		for date := monthStart; !date.After(monthEnd); date = date.AddDate(0, 0, 1) {
			total += totals[dayKey(date)]
		}
		buckets = append(buckets, Bucket{
			Label: monthLabel(monthStart),
			Steps: total,
		})
	}
	return buckets, nil
}

// Day reconstructs the intraday cumulative line for today: a monotonically
// non-decreasing sequence of (fractional hour, running total) points.
// Overlapping intervals are summed as reported; the provider's own
// accounting is taken as-is.
func (e *Engine) Day(ctx context.Context, userID string) ([]Point, error) {
	today := e.today()
	intervals, err := e.ingest.IngestRange(ctx, userID, today, today)
	if err != nil {
		return nil, err
	}

	sorted := make([]domain.StepInterval, len(intervals))
	copy(sorted, intervals)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].Start.Before(sorted[j].Start)
	})

	points := []Point{{Hour: 0, Steps: 0}}
	cumulative := 0
	for _, interval := range sorted {
		startHour := fractionalHour(interval.Start.In(e.zone))
		// Hold the line flat at the previous cumulative value until the
		// interval actually starts.
		if points[len(points)-1].Hour < startHour {
			points = append(points, Point{Hour: startHour, Steps: cumulative})
		}

		cumulative += interval.Count
		points = append(points, Point{Hour: fractionalHour(interval.End.In(e.zone)), Steps: cumulative})
	}

	// Extend to the current time so the line reaches "now".
	nowHour := fractionalHour(e.now().In(e.zone))
	if points[len(points)-1].Hour < nowHour {
		points = append(points, Point{Hour: nowHour, Steps: cumulative})
	}
	return points, nil
}

// dailyTotals groups intervals by their local calendar date.
func (e *Engine) dailyTotals(intervals []domain.StepInterval) map[string]int {
	totals := make(map[string]int, len(intervals))
	for _, interval := range intervals {
		totals[dayKey(interval.Start.In(e.zone))] += interval.Count
	}
	return totals
}

// monthStart returns the 1st of the month offset whole months from date.
// time.Date normalizes out-of-range months, so the arithmetic never skips
// short months the way AddDate on a day past the 28th would.
func (e *Engine) monthStart(date time.Time, offset int) time.Time {
	year, month, _ := date.In(e.zone).Date()
	return time.Date(year, month+time.Month(offset), 1, 0, 0, 0, 0, e.zone)
}

func fractionalHour(t time.Time) float64 {
	return float64(t.Hour()) + float64(t.Minute())/60
}

func dayKey(t time.Time) string {
	return t.Format("2006-01-02")
}

func weekdayLabel(date time.Time) string {
	return strings.ToUpper(date.Weekday().String()[:3])
}

func dayOfMonthLabel(date time.Time) string {
	return strconv.Itoa(date.Day())
}

func monthLabel(date time.Time) string {
	return strings.ToUpper(date.Month().String()[:3])
}
