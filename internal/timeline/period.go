// Package timeline turns dated patient documents into aggregated
// timeline series. Documents are bucketed into adaptive periods whose
// granularity depends on the width of the requested window, grouped by
// category, ranked, and rendered as time-range events suitable for a
// frontend timeline widget.
package timeline

import (
	"errors"
	"fmt"
	"math"
	"time"
)

// ErrInvalidDateRange is returned when a window or document date needed
// for aggregation is missing or unparseable.
var ErrInvalidDateRange = errors.New("timeline: invalid date range")

// Period granularity thresholds, in days of window width.
const (
	maxDayDelta  = 62   // up to two months: daily buckets
	maxWeekDelta = 1825 // up to five years: weekly buckets
)

// minRangeRatio is the smallest fraction of the window a rendered event
// range may span before it is stretched to stay visible.
const minRangeRatio = 0.01

// DaysBetween returns the number of whole calendar days from a to b.
// Only the calendar date of each argument is considered; time of day
// never contributes. The result is negative when b precedes a.
func DaysBetween(a, b time.Time) int {
	ua := time.Date(a.Year(), a.Month(), a.Day(), 0, 0, 0, 0, time.UTC)
	ub := time.Date(b.Year(), b.Month(), b.Day(), 0, 0, 0, 0, time.UTC)
	return int(math.Floor(ub.Sub(ua).Hours() / 24))
}

// PeriodKey maps a document date to its aggregation bucket for a window
// of delta days. Windows up to two months bucket per day, up to five
// years per week, and anything wider per month. Keys are not
// zero-padded ("2024-1-3", "2024-5", "2024-11").
func PeriodKey(date time.Time, delta int) string {
	switch {
	case delta <= maxDayDelta:
		return fmt.Sprintf("%d-%d-%d", date.Year(), int(date.Month()), date.Day())
	case delta <= maxWeekDelta:
		return fmt.Sprintf("%d-%d", date.Year(), weekNumber(date))
	default:
		u := date.UTC()
		return fmt.Sprintf("%d-%d", date.Year(), int(u.Month()))
	}
}

// weekNumber returns the Thursday-anchored week number of the year,
// compatible with ISO-8601 numbering. The year paired with it is the
// calendar year of the date itself, not the ISO week-year, so dates in
// the first days of January may carry week 52 or 53 of the previous
// ISO year under their own calendar year.
func weekNumber(date time.Time) int {
	_, week := date.ISOWeek()
	return week
}

// WithinWindow reports whether both document bounds fall inside the
// window, inclusive on both ends.
func WithinWindow(docStart, docEnd, winStart, winEnd time.Time) bool {
	return !docStart.Before(winStart) && !docEnd.After(winEnd)
}

// DisplayRange computes the rendered [begin, end] range of an event
// group whose documents span first..last, inside a window of delta
// days. The end is pushed to 23:00 of its day so single-day groups
// remain visible, and ranges narrower than minRangeRatio of the window
// are stretched to max(1, floor(minRangeRatio*delta)) days.
func DisplayRange(first, last time.Time, delta int) (time.Time, time.Time) {
	begin := first
	end := last.Add(23 * time.Hour)
	days := float64(DaysBetween(begin, end))
	if delta > 0 && days/float64(delta) < minRangeRatio {
		stretch := int(math.Floor(minRangeRatio * float64(delta)))
		if stretch < 1 {
			stretch = 1
		}
		end = first.AddDate(0, 0, stretch)
	}
	return begin, end
}
