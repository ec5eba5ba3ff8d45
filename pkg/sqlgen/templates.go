package sqlgen

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/ksandersbbb5/crm-query-assistant/pkg/intent"
)

// Dialect selects the SQL flavor emitted by the canned templates and the
// generation prompts.
type Dialect string

const (
	DialectSQLServer Dialect = "mssql"
	DialectPostgres  Dialect = "postgres"
)

// table returns the dialect-correct Applications identifier. The PostgreSQL
// schema keeps the mixed-case name, so it must be quoted there.
func (d Dialect) table() string {
	if d == DialectPostgres {
		return `"Applications"`
	}
	return "Applications"
}

func (d Dialect) idColumn() string {
	if d == DialectPostgres {
		return `"AppID"`
	}
	return "AppID"
}

// limitSelect renders a SELECT with the dialect's row bound: TOP for SQL
// Server, a trailing LIMIT for PostgreSQL. On SQL Server every template with
// an ORDER BY must go through this helper, since the executor wraps
// statements in a derived table and ORDER BY is only legal there with TOP.
func limitSelect(d Dialect, n int, columns, rest string) string {
	if d == DialectPostgres {
		return fmt.Sprintf("SELECT %s %s LIMIT %d", columns, rest, n)
	}
	return fmt.Sprintf("SELECT TOP %d %s %s", n, columns, rest)
}

// queryTemplate is one canned question shape. Matching is substring and
// regexp based over the lowercased question; build renders dialect-specific
// SQL with positional $n parameters.
type queryTemplate struct {
	name  string
	match func(q string) bool
	build func(q string, d Dialect, listLimit int) (string, []any)
}

// templates are evaluated top to bottom and the first match wins. The final
// recent template matches every question, so selection never fails.
var templates = []queryTemplate{
	{name: "id_lookup", match: matchIDLookup, build: buildIDLookup},
	{name: "count", match: matchCount, build: buildCount},
	{name: "average_by_state", match: matchAverage, build: buildAverage},
	{name: "status_filter", match: matchStatus, build: buildStatus},
	{name: "balance_filter", match: matchBalance, build: buildBalance},
	{name: "top_cities", match: matchTopCities, build: buildTopCities},
	{name: "recent", match: func(string) bool { return true }, build: buildRecent},
}

func selectTemplate(q string) queryTemplate {
	for _, t := range templates {
		if t.match(q) {
			return t
		}
	}
	return templates[len(templates)-1]
}

var (
	limitPhrasePattern = regexp.MustCompile(`\b(?:past|last|first|top)\s+\d+\b`)
	idNumberPattern    = regexp.MustCompile(`\b(?:application|app|record|id)\s*#?\s*(\d+)\b`)
)

// extractID pulls an application ID out of the question. Count phrases like
// "last 20" are removed first so their number is never mistaken for an ID.
func extractID(q string) (int64, bool) {
	stripped := limitPhrasePattern.ReplaceAllString(q, "")
	m := idNumberPattern.FindStringSubmatch(stripped)
	if m == nil {
		return 0, false
	}
	id, err := strconv.ParseInt(m[1], 10, 64)
	if err != nil {
		return 0, false
	}
	return id, true
}

func matchIDLookup(q string) bool {
	_, ok := extractID(q)
	return ok
}

func buildIDLookup(q string, d Dialect, _ int) (string, []any) {
	id, _ := extractID(q)
	return fmt.Sprintf("SELECT * FROM %s WHERE %s = $1", d.table(), d.idColumn()), []any{id}
}

var countWordPattern = regexp.MustCompile(`\bcount\b`)

func matchCount(q string) bool {
	return strings.Contains(q, "how many") || countWordPattern.MatchString(q)
}

func buildCount(q string, d Dialect, _ int) (string, []any) {
	if status, ok := extractStatus(q); ok {
		return fmt.Sprintf("SELECT COUNT(*) AS count FROM %s WHERE app_status = $1", d.table()), []any{status}
	}
	return fmt.Sprintf("SELECT COUNT(*) AS count FROM %s", d.table()), nil
}

var avgWordPattern = regexp.MustCompile(`\bavg\b`)

func matchAverage(q string) bool {
	return strings.Contains(q, "average") || avgWordPattern.MatchString(q)
}

func buildAverage(_ string, d Dialect, listLimit int) (string, []any) {
	rest := fmt.Sprintf("FROM %s GROUP BY state ORDER BY average_balance DESC", d.table())
	return limitSelect(d, listLimit, "state, AVG(balance) AS average_balance", rest), nil
}

// statusValuePattern matches the recognized application statuses. "denied" is
// folded into "rejected", which is what the table stores.
var statusValuePattern = regexp.MustCompile(`\b(approved|pending|rejected|denied)\b`)

func extractStatus(q string) (string, bool) {
	m := statusValuePattern.FindStringSubmatch(q)
	if m == nil {
		return "", false
	}
	status := m[1]
	if status == "denied" {
		status = "rejected"
	}
	return status, true
}

func matchStatus(q string) bool {
	if _, ok := extractStatus(q); ok {
		return true
	}
	return strings.Contains(q, "status")
}

func buildStatus(q string, d Dialect, listLimit int) (string, []any) {
	if status, ok := extractStatus(q); ok {
		rest := fmt.Sprintf("FROM %s WHERE app_status = $1 ORDER BY %s DESC", d.table(), d.idColumn())
		return limitSelect(d, listLimit, "*", rest), []any{status}
	}
	// Bare "status" question: grouped status counts.
	return fmt.Sprintf("SELECT app_status, COUNT(*) AS count FROM %s GROUP BY app_status", d.table()), nil
}

var (
	overAmountPattern  = regexp.MustCompile(`(?:over|above|more than|greater than|at least)\s+\$?([0-9][0-9,]*(?:\.[0-9]+)?)`)
	underAmountPattern = regexp.MustCompile(`(?:under|below|less than|at most)\s+\$?([0-9][0-9,]*(?:\.[0-9]+)?)`)
)

func matchBalance(q string) bool {
	return strings.Contains(q, "balance")
}

func buildBalance(q string, d Dialect, listLimit int) (string, []any) {
	if m := overAmountPattern.FindStringSubmatch(q); m != nil {
		rest := fmt.Sprintf("FROM %s WHERE balance >= $1 ORDER BY balance DESC", d.table())
		return limitSelect(d, listLimit, "*", rest), []any{parseAmount(m[1])}
	}
	if m := underAmountPattern.FindStringSubmatch(q); m != nil {
		rest := fmt.Sprintf("FROM %s WHERE balance <= $1 ORDER BY balance ASC", d.table())
		return limitSelect(d, listLimit, "*", rest), []any{parseAmount(m[1])}
	}
	rest := fmt.Sprintf("FROM %s ORDER BY balance DESC", d.table())
	return limitSelect(d, listLimit, "*", rest), nil
}

func parseAmount(s string) float64 {
	f, _ := strconv.ParseFloat(strings.ReplaceAll(s, ",", ""), 64)
	return f
}

func matchTopCities(q string) bool {
	return strings.Contains(q, "city") || strings.Contains(q, "cities")
}

func buildTopCities(q string, d Dialect, _ int) (string, []any) {
	n := 5
	if l, ok := intent.ExtractLimit(q); ok {
		n = l
	}
	rest := fmt.Sprintf("FROM %s GROUP BY city ORDER BY count DESC", d.table())
	return limitSelect(d, n, "city, COUNT(*) AS count", rest), nil
}

func buildRecent(_ string, d Dialect, listLimit int) (string, []any) {
	rest := fmt.Sprintf("FROM %s ORDER BY %s DESC", d.table(), d.idColumn())
	return limitSelect(d, listLimit, "*", rest), nil
}
