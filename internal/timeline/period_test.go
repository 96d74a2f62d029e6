package timeline

import (
	"testing"
	"time"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestPeriodKey(t *testing.T) {
	tests := []struct {
		name  string
		date  time.Time
		delta int
		want  string
	}{
		{"day bucket no padding", date(2024, time.January, 3), 30, "2024-1-3"},
		{"day bucket upper bound", date(2024, time.November, 21), 62, "2024-11-21"},
		{"week bucket", date(2024, time.January, 10), 200, "2024-2"},
		{"week bucket mid year", date(2023, time.July, 14), 1825, "2023-28"},
		{"month bucket", date(2024, time.May, 9), 1826, "2024-5"},
		{"month bucket december", date(2021, time.December, 31), 4000, "2021-12"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := PeriodKey(tt.date, tt.delta); got != tt.want {
				t.Errorf("PeriodKey(%v, %d) = %q, want %q", tt.date, tt.delta, got, tt.want)
			}
		})
	}
}

func TestPeriodKeyWeekKeepsCalendarYear(t *testing.T) {
	// 2021-01-01 is a Friday belonging to ISO week 53 of 2020; the key
	// still carries the date's own calendar year.
	got := PeriodKey(date(2021, time.January, 1), 365)
	if got != "2021-53" {
		t.Fatalf("PeriodKey = %q, want %q", got, "2021-53")
	}
}

func TestDaysBetween(t *testing.T) {
	tests := []struct {
		name string
		a, b time.Time
		want int
	}{
		{"same day", date(2024, time.March, 1), date(2024, time.March, 1), 0},
		{"one day", date(2024, time.March, 1), date(2024, time.March, 2), 1},
		{"reversed", date(2024, time.March, 2), date(2024, time.March, 1), -1},
		{"across month", date(2024, time.February, 28), date(2024, time.March, 1), 2},
		{"full year", date(2023, time.January, 1), date(2024, time.January, 1), 365},
		{
			"time of day ignored",
			time.Date(2024, time.March, 1, 23, 59, 0, 0, time.UTC),
			time.Date(2024, time.March, 2, 0, 1, 0, 0, time.UTC),
			1,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := DaysBetween(tt.a, tt.b); got != tt.want {
				t.Errorf("DaysBetween(%v, %v) = %d, want %d", tt.a, tt.b, got, tt.want)
			}
		})
	}
}

func TestWithinWindow(t *testing.T) {
	start := date(2024, time.January, 1)
	end := date(2024, time.December, 31)

	tests := []struct {
		name     string
		docStart time.Time
		docEnd   time.Time
		want     bool
	}{
		{"inside", date(2024, time.June, 1), date(2024, time.June, 2), true},
		{"on lower bound", start, start, true},
		{"on upper bound", end, end, true},
		{"before", date(2023, time.December, 31), date(2023, time.December, 31), false},
		{"after", date(2025, time.January, 1), date(2025, time.January, 1), false},
		{"straddles upper", date(2024, time.December, 30), date(2025, time.January, 2), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := WithinWindow(tt.docStart, tt.docEnd, start, end); got != tt.want {
				t.Errorf("WithinWindow = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestDisplayRange(t *testing.T) {
	t.Run("wide group keeps its bounds", func(t *testing.T) {
		first := date(2024, time.January, 1)
		last := date(2024, time.January, 20)
		begin, end := DisplayRange(first, last, 30)
		if !begin.Equal(first) {
			t.Errorf("begin = %v, want %v", begin, first)
		}
		if want := last.Add(23 * time.Hour); !end.Equal(want) {
			t.Errorf("end = %v, want %v", end, want)
		}
	})

	t.Run("narrow group stretches to one percent of window", func(t *testing.T) {
		first := date(2020, time.May, 5)
		begin, end := DisplayRange(first, first, 3650)
		if !begin.Equal(first) {
			t.Errorf("begin = %v, want %v", begin, first)
		}
		if want := first.AddDate(0, 0, 36); !end.Equal(want) {
			t.Errorf("end = %v, want %v", end, want)
		}
	})

	t.Run("stretch never shorter than a day", func(t *testing.T) {
		first := date(2024, time.May, 5)
		_, end := DisplayRange(first, first, 50)
		if want := first.AddDate(0, 0, 1); !end.Equal(want) {
			t.Errorf("end = %v, want %v", end, want)
		}
	})
}
