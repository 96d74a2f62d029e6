package timeline

import "time"

// SourceDocument is the canonical input record of the bucketing engine.
// The mapping layer validates dates and category fields before handing
// documents over; the engine itself never reaches into Payload.
type SourceDocument struct {
	// Date positions the document on the timeline.
	Date time.Time
	// CategoryCode groups documents into sub-timelines. Empty for
	// domains that aggregate into a single series.
	CategoryCode string
	// CategoryDisplay is the human label of the category, used as the
	// series name. Falls back to CategoryCode when empty.
	CategoryDisplay string
	// Payload carries the domain document the formatter renders.
	Payload any
}

// Label returns the display name of the document's category.
func (d SourceDocument) Label() string {
	if d.CategoryDisplay != "" {
		return d.CategoryDisplay
	}
	return d.CategoryCode
}

// TimeRangeEvent is one aggregated bucket rendered on a series.
type TimeRangeEvent struct {
	Begin   time.Time `json:"begin"`
	End     time.Time `json:"end"`
	Payload any       `json:"payload"`
}

// Series is a named sequence of events, ordered chronologically.
type Series struct {
	Name   string           `json:"name"`
	Events []TimeRangeEvent `json:"events"`
}

// Result is the output of a domain aggregation: one main series that
// always carries every document, plus per-category sub-series.
type Result struct {
	MainTimeline *Series   `json:"mainTimeline"`
	SubTimelines []*Series `json:"subTimelines,omitempty"`
}
