// Package aggregate computes the grouped-count reports over normalized
// record store rows: photos per submitter, photos per region, and events
// observed more than once. A record counts toward a group only when it
// carries at least one attachment URL.
package aggregate

import (
	"sort"
	"strings"
	"time"

	"github.com/ksandersbbb5/crm-query-assistant/pkg/airtable"
	"github.com/ksandersbbb5/crm-query-assistant/pkg/jsonutil"
)

// UnknownLabel groups records whose submitter or region cannot be
// identified.
const UnknownLabel = "(Unknown)"

// Group is one label with its record count.
type Group struct {
	Label string `json:"label"`
	Count int    `json:"count"`
}

// CountBySubmitter groups photo-bearing records by submitter display name
// ("Last, First"). Name fields may be array-valued from upstream lookups;
// the first element wins. Records with no name fall back to a submitter id,
// then UnknownLabel. topN <= 0 returns the full distribution.
func CountBySubmitter(records []airtable.Record, topN int) []Group {
	counts := map[string]int{}
	for _, r := range records {
		if !airtable.HasPhoto(r) {
			continue
		}
		counts[submitterLabel(r)]++
	}
	return rank(counts, topN)
}

func submitterLabel(r airtable.Record) string {
	first := jsonutil.FirstString(r.Fields[airtable.FieldEmployeeFirst])
	last := jsonutil.FirstString(r.Fields[airtable.FieldEmployeeLast])

	switch {
	case last != "" && first != "":
		return last + ", " + first
	case last != "":
		return last
	case first != "":
		return first
	}
	if id := jsonutil.FirstString(r.Fields[airtable.FieldSubmitter]); id != "" {
		return "Submitter " + id
	}
	return UnknownLabel
}

// CountByState groups photo-bearing records by region code.
// topN <= 0 returns the full distribution.
func CountByState(records []airtable.Record, topN int) []Group {
	counts := map[string]int{}
	for _, r := range records {
		if !airtable.HasPhoto(r) {
			continue
		}
		state := airtable.RegionValue(r)
		if state == "" {
			state = UnknownLabel
		}
		counts[state]++
	}
	return rank(counts, topN)
}

// EventReport describes one event name observed more than once.
type EventReport struct {
	Name      string   `json:"name"`
	Count     int      `json:"count"`
	FirstDate string   `json:"first_date,omitempty"`
	LastDate  string   `json:"last_date,omitempty"`
	TopStates []string `json:"top_states,omitempty"`
}

// DuplicateEvents reports photo-bearing events with at least two
// occurrences: per event the occurrence count, earliest and latest event
// date, and the top 3 regions by frequency (ties alphabetical). Reports are
// ordered by count descending, then name.
func DuplicateEvents(records []airtable.Record) []EventReport {
	type eventAgg struct {
		count     int
		firstDate string
		lastDate  string
		regions   map[string]int
	}

	aggs := map[string]*eventAgg{}
	for _, r := range records {
		if !airtable.HasPhoto(r) {
			continue
		}
		name := strings.TrimSpace(jsonutil.FirstString(r.Fields[airtable.FieldEventName]))
		if name == "" {
			continue
		}

		agg := aggs[name]
		if agg == nil {
			agg = &eventAgg{regions: map[string]int{}}
			aggs[name] = agg
		}
		agg.count++

		if date := jsonutil.FirstString(r.Fields[airtable.FieldEventDate]); date != "" {
			if agg.firstDate == "" || dateLess(date, agg.firstDate) {
				agg.firstDate = date
			}
			if agg.lastDate == "" || dateLess(agg.lastDate, date) {
				agg.lastDate = date
			}
		}
		if region := airtable.RegionValue(r); region != "" {
			agg.regions[region]++
		}
	}

	reports := make([]EventReport, 0, len(aggs))
	for name, agg := range aggs {
		if agg.count < 2 {
			continue
		}
		reports = append(reports, EventReport{
			Name:      name,
			Count:     agg.count,
			FirstDate: agg.firstDate,
			LastDate:  agg.lastDate,
			TopStates: topRegions(agg.regions, 3),
		})
	}

	sort.Slice(reports, func(i, j int) bool {
		if reports[i].Count != reports[j].Count {
			return reports[i].Count > reports[j].Count
		}
		return reports[i].Name < reports[j].Name
	})

	return reports
}

// rank orders groups by count descending, ties by ascending label, capped at
// topN when positive.
func rank(counts map[string]int, topN int) []Group {
	groups := make([]Group, 0, len(counts))
	for label, count := range counts {
		groups = append(groups, Group{Label: label, Count: count})
	}

	sort.Slice(groups, func(i, j int) bool {
		if groups[i].Count != groups[j].Count {
			return groups[i].Count > groups[j].Count
		}
		return groups[i].Label < groups[j].Label
	})

	if topN > 0 && len(groups) > topN {
		groups = groups[:topN]
	}
	return groups
}

// topRegions returns the n most frequent region codes.
func topRegions(counts map[string]int, n int) []string {
	groups := rank(counts, n)
	if len(groups) == 0 {
		return nil
	}
	out := make([]string, len(groups))
	for i, g := range groups {
		out[i] = g.Label
	}
	return out
}

// dateLayouts covers the formats the store emits for date fields.
var dateLayouts = []string{time.RFC3339, "2006-01-02"}

func parseDate(s string) (time.Time, bool) {
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// dateLess compares two date strings, falling back to lexicographic order
// when either fails to parse.
func dateLess(a, b string) bool {
	ta, okA := parseDate(a)
	tb, okB := parseDate(b)
	if okA && okB {
		return ta.Before(tb)
	}
	return a < b
}
