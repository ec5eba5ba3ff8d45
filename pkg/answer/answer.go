// Package answer renders query results as short natural-language text.
// Every intent has a deterministic template; when a text-generation
// delegate is configured the formatter sends the question plus a small
// data sample and returns the delegate's phrasing instead. Formatting
// never fails a request: any delegate problem falls back to the
// deterministic rendering.
package answer

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/jinzhu/inflection"
	"go.uber.org/zap"

	"github.com/ksandersbbb5/crm-query-assistant/pkg/aggregate"
	"github.com/ksandersbbb5/crm-query-assistant/pkg/airtable"
	"github.com/ksandersbbb5/crm-query-assistant/pkg/jsonutil"
	"github.com/ksandersbbb5/crm-query-assistant/pkg/llm"
	"github.com/ksandersbbb5/crm-query-assistant/pkg/prompts"
)

const (
	// NoResultsAnswer is returned whenever a query produced zero rows.
	NoResultsAnswer = "No results found for your question."

	answerTemperature = 0.1
	sampleSize        = 5
	summaryGroups     = 5
	maxFieldChars     = 120
)

// Formatter turns rows, records, and aggregation output into answer text.
// A nil client disables the delegate and leaves only the templates.
type Formatter struct {
	client llm.LLMClient
	logger *zap.Logger
}

func NewFormatter(client llm.LLMClient, logger *zap.Logger) *Formatter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Formatter{
		client: client,
		logger: logger.Named("answer"),
	}
}

// Templates returns a view of the formatter with the delegate disabled,
// for paths where summarization is turned off by configuration.
func (f *Formatter) Templates() *Formatter {
	return &Formatter{logger: f.logger}
}

// Rows summarizes relational result rows. Without a delegate (or when it
// fails) the answer is the rendered sample itself.
func (f *Formatter) Rows(ctx context.Context, question string, rows []map[string]any) string {
	if len(rows) == 0 {
		return NoResultsAnswer
	}
	sample := rowSample(rows)
	return f.polish(ctx, question, sample, sample)
}

// Listing summarizes a page of photo records. region is the extracted
// region code or empty, more reports whether a continuation token exists.
func (f *Formatter) Listing(ctx context.Context, question string, records []airtable.Record, region string, more bool) string {
	if len(records) == 0 {
		return NoResultsAnswer
	}
	if f.client == nil {
		return listingSummary(len(records), region, more)
	}
	sample := recordSample(records)
	return f.polish(ctx, question, sample, sample)
}

// Leaderboard summarizes photo counts grouped by submitter.
func (f *Formatter) Leaderboard(ctx context.Context, question string, groups []aggregate.Group, total int) string {
	if len(groups) == 0 {
		return NoResultsAnswer
	}
	summary := distributionSummary("Employee photo counts", groups, total, summaryGroups)
	return f.polish(ctx, question, summary, summary)
}

// StateBreakdown summarizes photo counts grouped by region code.
func (f *Formatter) StateBreakdown(ctx context.Context, question string, groups []aggregate.Group, total int) string {
	if len(groups) == 0 {
		return NoResultsAnswer
	}
	summary := distributionSummary("Photo counts by state", groups, total, 0)
	return f.polish(ctx, question, summary, summary)
}

// SubmitterBreakdown summarizes photo counts grouped by submitter for
// chart-style questions.
func (f *Formatter) SubmitterBreakdown(ctx context.Context, question string, groups []aggregate.Group, total int) string {
	if len(groups) == 0 {
		return NoResultsAnswer
	}
	summary := distributionSummary("Photo counts by employee", groups, total, 0)
	return f.polish(ctx, question, summary, summary)
}

// Duplicates summarizes events that occur more than once. total is the
// number of photo-bearing records scanned.
func (f *Formatter) Duplicates(ctx context.Context, question string, reports []aggregate.EventReport, total int) string {
	if total == 0 {
		return NoResultsAnswer
	}
	if len(reports) == 0 {
		return fmt.Sprintf("No events appear more than once across %s.", countNoun(total, "photo record"))
	}
	summary := duplicatesSummary(reports, total)
	return f.polish(ctx, question, summary, summary)
}

// polish asks the delegate to phrase data as an answer to question. Any
// failure or empty completion returns fallback unchanged.
func (f *Formatter) polish(ctx context.Context, question, data, fallback string) string {
	if f.client == nil {
		return fallback
	}
	out, err := f.client.GenerateResponse(ctx, prompts.BuildAnswerPrompt(question, data), prompts.BuildAnswerSystemMessage(), answerTemperature)
	if err != nil {
		f.logger.Warn("answer delegate failed, using templated answer", zap.Error(err))
		return fallback
	}
	out = strings.TrimSpace(out)
	if out == "" {
		return fallback
	}
	return out
}

func listingSummary(n int, region string, more bool) string {
	where := region
	if where == "" {
		where = "any state"
	}
	s := fmt.Sprintf("Returned %s from %s", countNoun(n, "photo record"), where)
	if more {
		s += ", more available"
	}
	return s + "."
}

func distributionSummary(what string, groups []aggregate.Group, total, topN int) string {
	if topN > 0 && len(groups) > topN {
		groups = groups[:topN]
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%s from %s:\n", what, countNoun(total, "total record"))
	for _, g := range groups {
		fmt.Fprintf(&b, "- %s: %s\n", g.Label, countNoun(g.Count, "photo"))
	}
	return b.String()
}

func duplicatesSummary(reports []aggregate.EventReport, total int) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Events appearing more than once from %s:\n", countNoun(total, "total record"))
	for _, rep := range reports {
		var details []string
		if rep.FirstDate != "" {
			if rep.LastDate != "" && rep.LastDate != rep.FirstDate {
				details = append(details, fmt.Sprintf("%s to %s", rep.FirstDate, rep.LastDate))
			} else {
				details = append(details, rep.FirstDate)
			}
		}
		if len(rep.TopStates) > 0 {
			details = append(details, "top states: "+strings.Join(rep.TopStates, ", "))
		}
		fmt.Fprintf(&b, "- %s: %s", rep.Name, countNoun(rep.Count, "occurrence"))
		if len(details) > 0 {
			fmt.Fprintf(&b, " (%s)", strings.Join(details, "; "))
		}
		b.WriteString("\n")
	}
	return b.String()
}

func rowSample(rows []map[string]any) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Found %s. Sample:\n", countNoun(len(rows), "result"))
	for i, row := range rows {
		if i == sampleSize {
			break
		}
		fmt.Fprintf(&b, "%d. %s\n", i+1, fieldLine(row))
	}
	return b.String()
}

func recordSample(records []airtable.Record) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Found %s. Sample:\n", countNoun(len(records), "record"))
	for i, r := range records {
		if i == sampleSize {
			break
		}
		fmt.Fprintf(&b, "%d. %s\n", i+1, fieldLine(r.Fields))
	}
	return b.String()
}

// fieldLine renders one record's fields as "name: value" pairs in key
// order, dropping empties and truncating long values.
func fieldLine(fields map[string]any) string {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		v := jsonutil.StringValue(fields[k])
		if v == "" {
			continue
		}
		if len(v) > maxFieldChars {
			v = v[:maxFieldChars] + "..."
		}
		parts = append(parts, k+": "+v)
	}
	return strings.Join(parts, "; ")
}

func countNoun(n int, noun string) string {
	if n == 1 {
		return fmt.Sprintf("%d %s", n, noun)
	}
	return fmt.Sprintf("%d %s", n, inflection.Plural(noun))
}
