package timeline

import (
	"testing"
	"time"
)

// countFormat renders a period as its document count, enough to assert
// on bucket membership without a real domain formatter.
func countFormat(docs []SourceDocument, label string) any {
	return len(docs)
}

func dayCountFormat(days []DayGroup, label string) any {
	total := 0
	for _, d := range days {
		total += len(d.Docs)
	}
	return total
}

// makeDocs spreads n documents of one category over consecutive days
// starting at start.
func makeDocs(code, display string, start time.Time, n int) []SourceDocument {
	docs := make([]SourceDocument, 0, n)
	for i := 0; i < n; i++ {
		docs = append(docs, SourceDocument{
			Date:            start.AddDate(0, 0, i),
			CategoryCode:    code,
			CategoryDisplay: display,
			Payload:         code,
		})
	}
	return docs
}

func seriesNames(subs []*Series) []string {
	names := make([]string, len(subs))
	for i, s := range subs {
		names[i] = s.Name
	}
	return names
}

func eventTotal(s *Series) int {
	total := 0
	for _, e := range s.Events {
		total += e.Payload.(int)
	}
	return total
}

func TestAggregateRanking(t *testing.T) {
	winStart := date(2024, time.January, 1)
	winEnd := date(2024, time.December, 31)

	var docs []SourceDocument
	docs = append(docs, makeDocs("A", "Alpha", date(2024, time.February, 1), 10)...)
	docs = append(docs, makeDocs("B", "Beta", date(2024, time.March, 1), 8)...)
	docs = append(docs, makeDocs("C", "Gamma", date(2024, time.April, 1), 8)...)
	docs = append(docs, makeDocs("D", "Delta", date(2024, time.May, 1), 5)...)
	docs = append(docs, makeDocs("E", "Epsilon", date(2024, time.June, 1), 3)...)
	docs = append(docs, makeDocs("F", "Zeta", date(2024, time.July, 1), 1)...)

	cfg := Config{MainName: "Main", TopK: 4, Format: countFormat}
	res, err := cfg.Aggregate(docs, winStart, winEnd)
	if err != nil {
		t.Fatalf("Aggregate: %v", err)
	}

	if res.MainTimeline == nil {
		t.Fatal("missing main timeline")
	}
	if got := eventTotal(res.MainTimeline); got != 35 {
		t.Errorf("main timeline holds %d documents, want 35", got)
	}

	want := []string{"Alpha", "Beta", "Gamma", "Delta", "autres"}
	got := seriesNames(res.SubTimelines)
	if len(got) != len(want) {
		t.Fatalf("sub timelines = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("sub timeline %d = %q, want %q", i, got[i], want[i])
		}
	}

	// The two categories below the cut merge into the overflow series.
	autres := res.SubTimelines[4]
	if got := eventTotal(autres); got != 4 {
		t.Errorf("overflow holds %d documents, want 4", got)
	}
}

func TestAggregateTieBreakByFirstSeen(t *testing.T) {
	winStart := date(2024, time.January, 1)
	winEnd := date(2024, time.March, 31)

	// B and C tie on count; B appears first in the input and must rank
	// ahead so it survives a cut of one.
	var docs []SourceDocument
	docs = append(docs, makeDocs("B", "Beta", date(2024, time.January, 2), 3)...)
	docs = append(docs, makeDocs("C", "Gamma", date(2024, time.January, 10), 3)...)

	cfg := Config{MainName: "Main", TopK: 1, Format: countFormat}
	res, err := cfg.Aggregate(docs, winStart, winEnd)
	if err != nil {
		t.Fatalf("Aggregate: %v", err)
	}

	want := []string{"Beta", "autres"}
	got := seriesNames(res.SubTimelines)
	if len(got) != 2 || got[0] != want[0] || got[1] != want[1] {
		t.Fatalf("sub timelines = %v, want %v", got, want)
	}
}

func TestAggregateCanonicalAndTrailingOrder(t *testing.T) {
	winStart := date(2024, time.January, 1)
	winEnd := date(2024, time.December, 31)

	var docs []SourceDocument
	docs = append(docs, makeDocs("UNKNOWN_TYPE", "", date(2024, time.February, 1), 6)...)
	docs = append(docs, makeDocs("DAS", "", date(2024, time.March, 1), 4)...)
	docs = append(docs, makeDocs("DR", "", date(2024, time.April, 1), 2)...)
	docs = append(docs, makeDocs("DP", "", date(2024, time.May, 1), 1)...)

	cfg := Config{
		MainName:       "PMSI",
		CanonicalOrder: []string{"DP", "DAS"},
		TrailingOrder:  []string{"UNKNOWN_TYPE"},
		Format:         countFormat,
	}
	res, err := cfg.Aggregate(docs, winStart, winEnd)
	if err != nil {
		t.Fatalf("Aggregate: %v", err)
	}

	want := []string{"DP", "DAS", "DR", "UNKNOWN_TYPE"}
	got := seriesNames(res.SubTimelines)
	if len(got) != len(want) {
		t.Fatalf("sub timelines = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("sub timeline %d = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestAggregateDaySubBucket(t *testing.T) {
	winStart := date(2024, time.January, 1)
	winEnd := date(2024, time.January, 31)

	// Three documents on two days inside a daily-bucket window produce
	// one event per day.
	docs := []SourceDocument{
		{Date: date(2024, time.January, 5), CategoryCode: "BIO", CategoryDisplay: "Biochimie"},
		{Date: date(2024, time.January, 5), CategoryCode: "BIO", CategoryDisplay: "Biochimie"},
		{Date: date(2024, time.January, 7), CategoryCode: "BIO", CategoryDisplay: "Biochimie"},
	}

	cfg := Config{MainName: "Biologie", TopK: 4, DaySubBucket: true, FormatDays: dayCountFormat}
	res, err := cfg.Aggregate(docs, winStart, winEnd)
	if err != nil {
		t.Fatalf("Aggregate: %v", err)
	}

	if got := len(res.MainTimeline.Events); got != 2 {
		t.Fatalf("main timeline has %d events, want 2", got)
	}
	if got := res.MainTimeline.Events[0].Payload.(int); got != 2 {
		t.Errorf("first event holds %d documents, want 2", got)
	}
	if !res.MainTimeline.Events[0].Begin.Before(res.MainTimeline.Events[1].Begin) {
		t.Error("events not in chronological order")
	}
}

func TestAggregateMonthlyBucketsMergeAcrossDays(t *testing.T) {
	winStart := date(2015, time.January, 1)
	winEnd := date(2024, time.December, 31)

	// A ten-year window buckets per month, so documents of the same
	// month collapse into one event.
	docs := []SourceDocument{
		{Date: date(2020, time.May, 2), CategoryCode: "BIO", CategoryDisplay: "Biochimie"},
		{Date: date(2020, time.May, 28), CategoryCode: "BIO", CategoryDisplay: "Biochimie"},
		{Date: date(2020, time.June, 3), CategoryCode: "BIO", CategoryDisplay: "Biochimie"},
	}

	cfg := Config{MainName: "Biologie", TopK: 4, Format: countFormat}
	res, err := cfg.Aggregate(docs, winStart, winEnd)
	if err != nil {
		t.Fatalf("Aggregate: %v", err)
	}
	if got := len(res.MainTimeline.Events); got != 2 {
		t.Fatalf("main timeline has %d events, want 2", got)
	}
	if got := res.MainTimeline.Events[0].Payload.(int); got != 2 {
		t.Errorf("may bucket holds %d documents, want 2", got)
	}
}

func TestAggregateDropsOutOfWindowDocuments(t *testing.T) {
	winStart := date(2024, time.January, 1)
	winEnd := date(2024, time.January, 31)

	docs := []SourceDocument{
		{Date: date(2023, time.December, 31), CategoryCode: "A", CategoryDisplay: "Alpha"},
		{Date: date(2024, time.January, 10), CategoryCode: "A", CategoryDisplay: "Alpha"},
		{Date: date(2024, time.February, 1), CategoryCode: "A", CategoryDisplay: "Alpha"},
	}

	cfg := Config{MainName: "Main", TopK: 4, Format: countFormat}
	res, err := cfg.Aggregate(docs, winStart, winEnd)
	if err != nil {
		t.Fatalf("Aggregate: %v", err)
	}
	if got := eventTotal(res.MainTimeline); got != 1 {
		t.Errorf("main timeline holds %d documents, want 1", got)
	}
}

func TestAggregateInvalidDates(t *testing.T) {
	cfg := Config{MainName: "Main", TopK: 4, Format: countFormat}

	t.Run("zero window bound", func(t *testing.T) {
		_, err := cfg.Aggregate(nil, time.Time{}, date(2024, time.January, 1))
		if err != ErrInvalidDateRange {
			t.Errorf("err = %v, want ErrInvalidDateRange", err)
		}
	})

	t.Run("zero document date", func(t *testing.T) {
		docs := []SourceDocument{{CategoryCode: "A"}}
		_, err := cfg.Aggregate(docs, date(2024, time.January, 1), date(2024, time.December, 31))
		if err != ErrInvalidDateRange {
			t.Errorf("err = %v, want ErrInvalidDateRange", err)
		}
	})
}

func TestAggregateEmptyInput(t *testing.T) {
	cfg := Config{MainName: "Main", TopK: 4, Format: countFormat}
	res, err := cfg.Aggregate(nil, date(2024, time.January, 1), date(2024, time.December, 31))
	if err != nil {
		t.Fatalf("Aggregate: %v", err)
	}
	if res.MainTimeline == nil || len(res.MainTimeline.Events) != 0 {
		t.Errorf("want empty main timeline, got %+v", res.MainTimeline)
	}
	if len(res.SubTimelines) != 0 {
		t.Errorf("want no sub timelines, got %d", len(res.SubTimelines))
	}
}

func TestAggregateSingle(t *testing.T) {
	winStart := date(2024, time.January, 1)
	winEnd := date(2024, time.January, 31)

	docs := []SourceDocument{
		{Date: date(2024, time.January, 5), CategoryCode: "ignored"},
		{Date: date(2024, time.January, 6), CategoryCode: "ignored"},
	}

	cfg := Config{MainName: "Traitements", DaySubBucket: true, FormatDays: dayCountFormat}
	res, err := cfg.AggregateSingle(docs, winStart, winEnd)
	if err != nil {
		t.Fatalf("AggregateSingle: %v", err)
	}
	if res.MainTimeline.Name != "Traitements" {
		t.Errorf("name = %q, want Traitements", res.MainTimeline.Name)
	}
	if len(res.SubTimelines) != 0 {
		t.Errorf("single-series result has %d sub timelines", len(res.SubTimelines))
	}
	if got := len(res.MainTimeline.Events); got != 2 {
		t.Errorf("events = %d, want 2", got)
	}
}
