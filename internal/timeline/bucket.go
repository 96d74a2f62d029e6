package timeline

import (
	"sort"
	"time"
)

// mainKey is the implicit category that receives every document of a
// domain, regardless of its own category. It competes for a ranking
// slot like any real category and is rendered as the main timeline.
const mainKey = "maintimeline"

// DefaultOverflowName labels the merged series of categories that fall
// outside the ranking cut.
const DefaultOverflowName = "autres"

// DayGroup holds the documents of one calendar day inside a period,
// in input order.
type DayGroup struct {
	Day  string
	Docs []SourceDocument
}

// Config describes how one clinical domain is aggregated.
type Config struct {
	// MainName is the rendered name of the main timeline.
	MainName string
	// EventLabel, when set, replaces MainName as the label handed to
	// Format and FormatDays for the main timeline's events.
	EventLabel string
	// TopK caps the number of standalone category series. Zero or
	// negative keeps every category and produces no overflow series.
	TopK int
	// CanonicalOrder pins category names to the front of SubTimelines.
	CanonicalOrder []string
	// TrailingOrder pins category names to the back of SubTimelines.
	TrailingOrder []string
	// OverflowName overrides DefaultOverflowName when set.
	OverflowName string
	// DaySubBucket groups each period's documents by calendar day
	// before formatting, for domains rendered as per-day entries.
	DaySubBucket bool
	// Format renders a period's documents into an event payload.
	// Exactly one of Format and FormatDays is used, depending on
	// DaySubBucket.
	Format     func(docs []SourceDocument, label string) any
	FormatDays func(days []DayGroup, label string) any
}

// category accumulates one category's documents, nested as
// period key -> day key -> documents. All three levels iterate in
// first-seen order.
type category struct {
	code        string
	label       string
	count       int
	periodOrder []string
	periods     map[string]*periodBucket
}

type periodBucket struct {
	dayOrder []string
	days     map[string][]SourceDocument
}

func (c *category) add(doc SourceDocument, delta int) {
	period := PeriodKey(doc.Date, delta)
	pb, ok := c.periods[period]
	if !ok {
		pb = &periodBucket{days: map[string][]SourceDocument{}}
		c.periods[period] = pb
		c.periodOrder = append(c.periodOrder, period)
	}
	day := dayKey(doc.Date)
	if _, ok := pb.days[day]; !ok {
		pb.dayOrder = append(pb.dayOrder, day)
	}
	pb.days[day] = append(pb.days[day], doc)
	c.count++
}

func dayKey(date time.Time) string {
	return PeriodKey(date, 1)
}

// Aggregate buckets the documents of one domain over the given window
// and renders the main timeline plus ranked sub-timelines. Documents
// outside the window are dropped; a zero window bound or document date
// fails with ErrInvalidDateRange.
func (cfg Config) Aggregate(docs []SourceDocument, winStart, winEnd time.Time) (*Result, error) {
	if winStart.IsZero() || winEnd.IsZero() {
		return nil, ErrInvalidDateRange
	}
	delta := DaysBetween(winStart, winEnd)

	order := []string{mainKey}
	cats := map[string]*category{
		mainKey: {code: mainKey, label: cfg.MainName, periods: map[string]*periodBucket{}},
	}
	for _, doc := range docs {
		if doc.Date.IsZero() {
			return nil, ErrInvalidDateRange
		}
		if !WithinWindow(doc.Date, doc.Date, winStart, winEnd) {
			continue
		}
		cats[mainKey].add(doc, delta)
		code := doc.CategoryCode
		if code == "" {
			continue
		}
		cat, ok := cats[code]
		if !ok {
			cat = &category{code: code, label: doc.Label(), periods: map[string]*periodBucket{}}
			cats[code] = cat
			order = append(order, code)
		}
		cat.add(doc, delta)
	}

	ranked := make([]string, len(order))
	copy(ranked, order)
	sort.SliceStable(ranked, func(i, j int) bool {
		return cats[ranked[i]].count > cats[ranked[j]].count
	})

	// The ranking cut counts the implicit main category as one of the
	// kept entries and widens itself by one when it meets it, so TopK
	// real categories survive alongside the main timeline.
	topK := cfg.TopK
	var kept, merged []string
	for idx, code := range ranked {
		if cfg.TopK <= 0 || idx < topK {
			if code == mainKey {
				topK++
			}
			kept = append(kept, code)
		} else {
			merged = append(merged, code)
		}
	}

	overflowName := cfg.OverflowName
	if overflowName == "" {
		overflowName = DefaultOverflowName
	}
	var overflow *category
	if len(merged) > 0 {
		overflow = &category{code: overflowName, label: overflowName, periods: map[string]*periodBucket{}}
		for _, code := range merged {
			mergeCategory(overflow, cats[code])
		}
	}

	res := &Result{}
	var subs []*Series
	mainLabel := cfg.MainName
	if cfg.EventLabel != "" {
		mainLabel = cfg.EventLabel
	}
	for _, code := range kept {
		cat := cats[code]
		if code == mainKey {
			res.MainTimeline = cfg.renderSeries(cat, delta, mainLabel)
			continue
		}
		subs = append(subs, cfg.renderSeries(cat, delta, cat.label))
	}
	if overflow != nil {
		subs = append(subs, cfg.renderSeries(overflow, delta, overflow.label))
	}
	if res.MainTimeline == nil {
		// The main category fell outside the cut, which only happens
		// with no documents at all; render it empty regardless.
		res.MainTimeline = cfg.renderSeries(cats[mainKey], delta, mainLabel)
	}
	res.SubTimelines = orderSeries(subs, cfg.CanonicalOrder, cfg.TrailingOrder, overflowName)
	return res, nil
}

// mergeCategory folds src's periods and days into dst, preserving
// dst's first-seen ordering and appending documents day-wise.
func mergeCategory(dst, src *category) {
	for _, period := range src.periodOrder {
		spb := src.periods[period]
		dpb, ok := dst.periods[period]
		if !ok {
			dpb = &periodBucket{days: map[string][]SourceDocument{}}
			dst.periods[period] = dpb
			dst.periodOrder = append(dst.periodOrder, period)
		}
		for _, day := range spb.dayOrder {
			if _, ok := dpb.days[day]; !ok {
				dpb.dayOrder = append(dpb.dayOrder, day)
			}
			dpb.days[day] = append(dpb.days[day], spb.days[day]...)
		}
	}
	dst.count += src.count
}

// renderSeries materializes a category into a named series of events,
// one event per period, sorted chronologically. The label is handed to
// the payload formatter and usually matches the series name.
func (cfg Config) renderSeries(cat *category, delta int, label string) *Series {
	s := &Series{Name: cat.label, Events: []TimeRangeEvent{}}
	for _, period := range cat.periodOrder {
		pb := cat.periods[period]
		days := make([]DayGroup, 0, len(pb.dayOrder))
		for _, day := range pb.dayOrder {
			days = append(days, DayGroup{Day: day, Docs: pb.days[day]})
		}
		sort.SliceStable(days, func(i, j int) bool {
			return days[i].Docs[0].Date.Before(days[j].Docs[0].Date)
		})

		first := days[0].Docs[0].Date
		last := days[len(days)-1].Docs[0].Date
		begin, end := DisplayRange(first, last, delta)

		var payload any
		if cfg.DaySubBucket {
			payload = cfg.FormatDays(days, label)
		} else {
			docs := make([]SourceDocument, 0)
			for _, d := range days {
				docs = append(docs, d.Docs...)
			}
			sort.SliceStable(docs, func(i, j int) bool { return docs[i].Date.Before(docs[j].Date) })
			payload = cfg.Format(docs, label)
		}
		s.Events = append(s.Events, TimeRangeEvent{Begin: begin, End: end, Payload: payload})
	}
	sort.SliceStable(s.Events, func(i, j int) bool { return s.Events[i].Begin.Before(s.Events[j].Begin) })
	return s
}

// orderSeries arranges sub-timelines as canonical names first, then the
// surviving categories in rank order, then the overflow series, with
// trailing names pinned last.
func orderSeries(subs []*Series, canonical, trailing []string, overflowName string) []*Series {
	if len(subs) == 0 {
		return nil
	}
	byName := map[string]*Series{}
	for _, s := range subs {
		byName[s.Name] = s
	}
	pinned := map[string]bool{overflowName: true}
	for _, name := range canonical {
		pinned[name] = true
	}
	for _, name := range trailing {
		pinned[name] = true
	}

	var out []*Series
	for _, name := range canonical {
		if s, ok := byName[name]; ok {
			out = append(out, s)
		}
	}
	for _, s := range subs {
		if !pinned[s.Name] {
			out = append(out, s)
		}
	}
	if s, ok := byName[overflowName]; ok {
		out = append(out, s)
	}
	for _, name := range trailing {
		if s, ok := byName[name]; ok {
			out = append(out, s)
		}
	}
	return out
}

// AggregateSingle buckets an uncategorized domain into its main
// timeline only.
func (cfg Config) AggregateSingle(docs []SourceDocument, winStart, winEnd time.Time) (*Result, error) {
	stripped := make([]SourceDocument, len(docs))
	for i, doc := range docs {
		doc.CategoryCode = ""
		doc.CategoryDisplay = ""
		stripped[i] = doc
	}
	res, err := cfg.Aggregate(stripped, winStart, winEnd)
	if err != nil {
		return nil, err
	}
	res.SubTimelines = nil
	return res, nil
}
