package timeline

import (
	"sort"
	"time"
)

// Stay is one patient encounter, already flattened per location by the
// mapping layer.
type Stay struct {
	ID              string    `json:"id,omitempty"`
	Identifier      string    `json:"identifier,omitempty"`
	Type            string    `json:"type,omitempty"`
	Display         string    `json:"display,omitempty"`
	Reference       string    `json:"reference,omitempty"`
	Start           time.Time `json:"start"`
	End             time.Time `json:"end"`
	Consultation    bool      `json:"consultation"`
	Hospitalisation bool      `json:"hospitalisation"`
	OneDay          bool      `json:"oneDay"`
}

// mergedStay is the synthetic payload standing in for several one-day
// stays that share a start date.
type mergedStay struct {
	Start         time.Time `json:"start"`
	End           time.Time `json:"end"`
	Identifier    string    `json:"identifier,omitempty"`
	Type          string    `json:"type,omitempty"`
	OneDay        bool      `json:"oneDay"`
	SameDayEvents []Stay    `json:"sameDayEvents"`
}

// StaysResult holds the two encounter series: multi-day stays and
// one-day visits.
type StaysResult struct {
	Hospitalisation *Series `json:"hospitalisation"`
	Consultation    *Series `json:"consultation"`
}

// AggregateStays splits encounters into a hospitalisation series and a
// one-day series. Stays merely overlapping the window are kept, one-day
// stays sharing a start date collapse into a single merged event, and
// multi-day stays render with their raw bounds.
func AggregateStays(stays []Stay, winStart, winEnd time.Time) (*StaysResult, error) {
	if winStart.IsZero() || winEnd.IsZero() {
		return nil, ErrInvalidDateRange
	}

	var kept []Stay
	for _, s := range stays {
		if s.Start.IsZero() || s.End.IsZero() {
			return nil, ErrInvalidDateRange
		}
		// Loose overlap on purpose: a stay straddling either window
		// bound still belongs to the picture.
		if s.Start.Before(winEnd) || s.End.After(winStart) {
			kept = append(kept, s)
		}
	}
	sort.SliceStable(kept, func(i, j int) bool { return kept[i].Start.Before(kept[j].Start) })

	hosp := &Series{Name: "Hospitalisation", Events: []TimeRangeEvent{}}
	oneDay := &Series{Name: "Consultation & hospitalisation d'une journée", Events: []TimeRangeEvent{}}

	var dayOrder []time.Time
	sameDay := map[time.Time][]Stay{}
	for _, s := range kept {
		if !s.OneDay {
			hosp.Events = append(hosp.Events, TimeRangeEvent{Begin: s.Start, End: s.End, Payload: s})
			continue
		}
		if _, ok := sameDay[s.Start]; !ok {
			dayOrder = append(dayOrder, s.Start)
		}
		sameDay[s.Start] = append(sameDay[s.Start], s)
	}

	for _, start := range dayOrder {
		group := sameDay[start]
		first := group[0]
		end := first.End.Add(23 * time.Hour)
		if len(group) == 1 {
			oneDay.Events = append(oneDay.Events, TimeRangeEvent{Begin: first.Start, End: end, Payload: first})
			continue
		}
		merged := mergedStay{
			Start:         first.Start,
			End:           first.End,
			Identifier:    first.Identifier,
			Type:          first.Type,
			OneDay:        true,
			SameDayEvents: group,
		}
		oneDay.Events = append(oneDay.Events, TimeRangeEvent{Begin: first.Start, End: end, Payload: merged})
	}

	return &StaysResult{Hospitalisation: hosp, Consultation: oneDay}, nil
}
