// Package intent classifies an incoming question: which backend answers it
// and which canned query shape applies. Classification is ordered keyword
// matching over the lowercased question text; the first matching rule wins.
package intent

import (
	"regexp"
	"strconv"
	"strings"
)

// Backend selects which datastore answers the question.
type Backend string

const (
	// BackendSQL routes to the relational Applications database.
	BackendSQL Backend = "sql"
	// BackendAirtable routes to the photo/event record store.
	BackendAirtable Backend = "airtable"
)

// Variant is the canned query shape the classifier selected for the
// record-store path.
type Variant string

const (
	VariantEmployeeLeaderboard  Variant = "employee_leaderboard"
	VariantDuplicateEventReport Variant = "duplicate_event_report"
	VariantGroupedByState       Variant = "grouped_by_state"
	VariantGroupedBySubmitter   Variant = "grouped_by_submitter"
	VariantRecordListing        Variant = "record_listing"
)

// Intent is the classified routing decision for a question.
// Limit is the raw extracted count (0 when absent); clamping to configured
// bounds is the caller's job. All overrides Limit with the maximum scan size.
type Intent struct {
	Backend Backend
	Variant Variant
	State   string
	Limit   int
	All     bool
}

// recordStoreWords route a question to the record-store backend.
var recordStoreWords = []string{"photo", "picture", "image", "event", "airtable"}

func isRecordStoreQuestion(q string) bool {
	for _, w := range recordStoreWords {
		if strings.Contains(q, w) {
			return true
		}
	}
	return false
}

// variantRules are evaluated top to bottom; the first match wins. Order is
// load-bearing: a bar-chart question mentioning both a state and an employee
// resolves to the state grouping.
var variantRules = []struct {
	match   func(q string) bool
	variant Variant
}{
	{matchEmployeeLeaderboard, VariantEmployeeLeaderboard},
	{matchDuplicateEvents, VariantDuplicateEventReport},
	{matchStateChart, VariantGroupedByState},
	{matchSubmitterChart, VariantGroupedBySubmitter},
}

func matchEmployeeLeaderboard(q string) bool {
	return strings.Contains(q, "employee") &&
		(strings.Contains(q, "most photos") ||
			strings.Contains(q, "most pictures") ||
			strings.Contains(q, "who has the most"))
}

func matchDuplicateEvents(q string) bool {
	return strings.Contains(q, "event") &&
		(strings.Contains(q, "more than once") ||
			strings.Contains(q, "repeated") ||
			strings.Contains(q, "duplicate"))
}

func matchStateChart(q string) bool {
	return strings.Contains(q, "bar chart") && strings.Contains(q, "state")
}

func matchSubmitterChart(q string) bool {
	return strings.Contains(q, "bar chart") &&
		(strings.Contains(q, "employee last name") || strings.Contains(q, "by employee"))
}

func classifyVariant(q string) Variant {
	for _, r := range variantRules {
		if r.match(q) {
			return r.variant
		}
	}
	return VariantRecordListing
}

// Classify routes a question to a backend and query shape and extracts any
// region, count and "all" markers from the text.
func Classify(question string) Intent {
	q := strings.ToLower(question)

	it := Intent{
		Backend: BackendSQL,
		Variant: classifyVariant(q),
		State:   ExtractState(question),
		All:     WantsAll(question),
	}
	if isRecordStoreQuestion(q) {
		it.Backend = BackendAirtable
	}
	if n, ok := ExtractLimit(question); ok {
		it.Limit = n
	}
	return it
}

// stateNames maps full region names to their two-letter codes.
var stateNames = map[string]string{
	"massachusetts": "MA",
	"connecticut":   "CT",
	"rhode island":  "RI",
	"new hampshire": "NH",
	"vermont":       "VT",
	"maine":         "ME",
}

var statePattern = regexp.MustCompile(
	`\b(?:from|in)\s+(massachusetts|connecticut|rhode\s+island|new\s+hampshire|vermont|maine|ma|ct|ri|nh|vt|me)\b`)

// ExtractState returns the two-letter region code named in the question
// ("from MA", "in Rhode Island"), or "" when no known region is mentioned.
func ExtractState(question string) string {
	m := statePattern.FindStringSubmatch(strings.ToLower(question))
	if m == nil {
		return ""
	}
	name := strings.Join(strings.Fields(m[1]), " ")
	if code, ok := stateNames[name]; ok {
		return code
	}
	return strings.ToUpper(name)
}

var limitPattern = regexp.MustCompile(`\b(?:past|last|first|top)\s+(\d+)\b`)

// ExtractLimit returns the record count requested by phrases like "last 20"
// or "top 5". The second return reports whether a count was found.
func ExtractLimit(question string) (int, bool) {
	m := limitPattern.FindStringSubmatch(strings.ToLower(question))
	if m == nil {
		return 0, false
	}
	n, err := strconv.Atoi(m[1])
	if err != nil || n <= 0 {
		return 0, false
	}
	return n, true
}

var allPattern = regexp.MustCompile(`\ball\b`)

// WantsAll reports whether the bare word "all" appears in the question,
// which overrides any extracted count with the maximum allowed scan size.
func WantsAll(question string) bool {
	return allPattern.MatchString(strings.ToLower(question))
}
