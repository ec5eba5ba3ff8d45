package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/ksandersbbb5/crm-query-assistant/pkg/adapters/datasource"
	"github.com/ksandersbbb5/crm-query-assistant/pkg/aggregate"
	"github.com/ksandersbbb5/crm-query-assistant/pkg/airtable"
	"github.com/ksandersbbb5/crm-query-assistant/pkg/answer"
	"github.com/ksandersbbb5/crm-query-assistant/pkg/apperrors"
	"github.com/ksandersbbb5/crm-query-assistant/pkg/intent"
	"github.com/ksandersbbb5/crm-query-assistant/pkg/logging"
	"github.com/ksandersbbb5/crm-query-assistant/pkg/metrics"
	"github.com/ksandersbbb5/crm-query-assistant/pkg/sqlgen"
)

// AskRequest is one natural-language question plus paging controls.
type AskRequest struct {
	Question string
	Cursor   string
	PageSize int
}

// RecordQuery is the structured parameter set a record-store query ran
// with, echoed in the response where the relational path echoes SQL text.
type RecordQuery struct {
	StateFilter   string `json:"state_filter,omitempty"`
	FilterFormula string `json:"filter_formula,omitempty"`
	SortField     string `json:"sort_field,omitempty"`
	SortDirection string `json:"sort_direction,omitempty"`
	ResultLimit   int    `json:"result_limit"`
}

// AskResult is the answered question with the rows that produced it.
// Query holds SQL text on the relational path and a *RecordQuery on the
// record-store path.
type AskResult struct {
	Answer            string           `json:"answer"`
	QueryType         string           `json:"query_type"`
	Query             any              `json:"query"`
	RawResults        []map[string]any `json:"raw_results"`
	ResultsCount      int              `json:"results_count"`
	ContinuationToken string           `json:"continuation_token,omitempty"`
}

// ExecutionError reports a relational execute failure along with the
// statement that was attempted, which the handler echoes for diagnosis.
type ExecutionError struct {
	SQL string
	Err error
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("query execution failed: %v", e.Err)
}

func (e *ExecutionError) Unwrap() error { return e.Err }

// QueryServiceOptions carries the request-shaping limits from config.
type QueryServiceOptions struct {
	// PageSize is the record-store page size when the request names none.
	PageSize int
	// MaxScanRecords bounds how many records an aggregation may fetch.
	MaxScanRecords int
	// DefaultLimit is the listing size when the question names no count.
	DefaultLimit int
	// MaxLimit caps any requested listing size; "all" questions get this.
	MaxLimit int
	// RawResultsCap bounds how many rows are echoed in the response.
	RawResultsCap int
	// DisableRecordSummary turns off delegate summarization on the
	// record-store path.
	DisableRecordSummary bool
}

func (o *QueryServiceOptions) normalize() {
	if o.PageSize < 1 {
		o.PageSize = 50
	}
	if o.MaxScanRecords < 1 {
		o.MaxScanRecords = 1000
	}
	if o.DefaultLimit < 1 {
		o.DefaultLimit = 50
	}
	if o.MaxLimit < o.DefaultLimit {
		o.MaxLimit = o.DefaultLimit
	}
	if o.RawResultsCap < 1 {
		o.RawResultsCap = 50
	}
}

// QueryService answers natural-language questions against the relational
// database or the photo record store.
type QueryService interface {
	// Ask classifies the question, builds and runs the matching query, and
	// returns the formatted answer with the raw rows.
	Ask(ctx context.Context, req AskRequest) (*AskResult, error)
}

type queryService struct {
	executor  datasource.QueryExecutor // nil when the relational backend is unconfigured
	generator *sqlgen.Generator
	store     *airtable.Client // nil when the record store is unconfigured
	formatter *answer.Formatter
	opts      QueryServiceOptions
	logger    *zap.Logger
}

// NewQueryService creates the question-answering pipeline. executor and
// store may each be nil; the matching path then reports it is unconfigured.
func NewQueryService(
	executor datasource.QueryExecutor,
	generator *sqlgen.Generator,
	store *airtable.Client,
	formatter *answer.Formatter,
	opts QueryServiceOptions,
	logger *zap.Logger,
) QueryService {
	opts.normalize()
	return &queryService{
		executor:  executor,
		generator: generator,
		store:     store,
		formatter: formatter,
		opts:      opts,
		logger:    logger.Named("query"),
	}
}

var _ QueryService = (*queryService)(nil)

func (s *queryService) Ask(ctx context.Context, req AskRequest) (*AskResult, error) {
	question := strings.TrimSpace(req.Question)
	if question == "" {
		return nil, apperrors.ErrMissingQuestion
	}

	it := intent.Classify(question)
	s.logger.Info("classified question",
		zap.String("backend", string(it.Backend)),
		zap.String("variant", string(it.Variant)),
		zap.String("state", it.State))

	start := time.Now()
	defer func() {
		metrics.QueryDuration.WithLabelValues(string(it.Backend)).Observe(time.Since(start).Seconds())
	}()

	if it.Backend == intent.BackendAirtable {
		return s.askRecordStore(ctx, question, it, req)
	}
	return s.askRelational(ctx, question)
}

func (s *queryService) askRelational(ctx context.Context, question string) (*AskResult, error) {
	if s.executor == nil {
		return nil, fmt.Errorf("relational backend: %w", apperrors.ErrNotConfigured)
	}

	gq, err := s.generator.Generate(ctx, question)
	if err != nil {
		return nil, err
	}

	label := gq.Template
	if label == "" {
		label = gq.Source
	}
	metrics.QueriesTotal.WithLabelValues(string(intent.BackendSQL), label).Inc()

	var res *datasource.QueryExecutionResult
	if len(gq.Params) > 0 {
		res, err = s.executor.QueryWithParams(ctx, gq.SQL, gq.Params, 0)
	} else {
		res, err = s.executor.Query(ctx, gq.SQL, 0)
	}
	if err != nil {
		return nil, &ExecutionError{SQL: gq.SQL, Err: err}
	}

	s.logger.Info("relational query executed",
		zap.String("source", gq.Source),
		zap.String("sql", logging.SanitizeQuery(gq.SQL)),
		zap.Int("rows", res.RowCount))

	return &AskResult{
		Answer:       s.formatter.Rows(ctx, question, res.Rows),
		QueryType:    string(intent.BackendSQL),
		Query:        gq.SQL,
		RawResults:   s.capRows(res.Rows),
		ResultsCount: res.RowCount,
	}, nil
}

func (s *queryService) askRecordStore(ctx context.Context, question string, it intent.Intent, req AskRequest) (*AskResult, error) {
	if s.store == nil {
		return nil, fmt.Errorf("record store: %w", apperrors.ErrNotConfigured)
	}

	metrics.QueriesTotal.WithLabelValues(string(intent.BackendAirtable), string(it.Variant)).Inc()

	formatter := s.formatter
	if s.opts.DisableRecordSummary {
		formatter = s.formatter.Templates()
	}

	region := it.State
	filter := ""
	if region != "" {
		if column := s.store.ProbeRegionColumn(ctx); column != "" {
			filter = airtable.BuildRegionFilter(column, region)
		}
	}

	if it.Variant == intent.VariantRecordListing {
		return s.listRecords(ctx, question, it, req, formatter, region, filter)
	}
	return s.aggregateRecords(ctx, question, it, formatter, region, filter)
}

func (s *queryService) listRecords(ctx context.Context, question string, it intent.Intent, req AskRequest, formatter *answer.Formatter, region, filter string) (*AskResult, error) {
	limit := it.Limit
	if limit < 1 {
		limit = s.opts.DefaultLimit
	}
	if it.All || limit > s.opts.MaxLimit {
		limit = s.opts.MaxLimit
	}

	pageSize := req.PageSize
	if pageSize < 1 {
		pageSize = s.opts.PageSize
	}

	result, err := s.store.FetchAll(ctx, airtable.FetchSpec{
		Filter:      filter,
		SortField:   airtable.FieldEventDate,
		SortDesc:    true,
		PageSize:    pageSize,
		MaxRecords:  limit,
		StartOffset: req.Cursor,
	})
	if err != nil {
		return nil, fmt.Errorf("record store fetch failed: %w", err)
	}
	metrics.RecordPagesFetched.Add(float64(result.Pages))

	records := result.Records
	if result.FilteredClientSide {
		filter = ""
		if region != "" {
			records = filterByRegion(records, region)
		}
	}

	more := result.NextOffset != ""
	return &AskResult{
		Answer:    formatter.Listing(ctx, question, records, region, more),
		QueryType: string(intent.BackendAirtable),
		Query: &RecordQuery{
			StateFilter:   region,
			FilterFormula: filter,
			SortField:     airtable.FieldEventDate,
			SortDirection: "desc",
			ResultLimit:   limit,
		},
		RawResults:        s.capRows(recordRows(records)),
		ResultsCount:      len(records),
		ContinuationToken: result.NextOffset,
	}, nil
}

func (s *queryService) aggregateRecords(ctx context.Context, question string, it intent.Intent, formatter *answer.Formatter, region, filter string) (*AskResult, error) {
	result, err := s.store.FetchAll(ctx, airtable.FetchSpec{
		Filter:     filter,
		PageSize:   s.opts.PageSize,
		MaxRecords: s.opts.MaxScanRecords,
	})
	if err != nil {
		return nil, fmt.Errorf("record store fetch failed: %w", err)
	}
	metrics.RecordPagesFetched.Add(float64(result.Pages))

	records := result.Records
	if result.FilteredClientSide {
		filter = ""
		if region != "" {
			records = filterByRegion(records, region)
		}
	}
	total := len(records)

	res := &AskResult{
		QueryType: string(intent.BackendAirtable),
		Query: &RecordQuery{
			StateFilter:   region,
			FilterFormula: filter,
			ResultLimit:   s.opts.MaxScanRecords,
		},
		ContinuationToken: result.NextOffset,
	}

	switch it.Variant {
	case intent.VariantEmployeeLeaderboard:
		groups := aggregate.CountBySubmitter(records, 0)
		res.Answer = formatter.Leaderboard(ctx, question, groups, total)
		res.RawResults = s.capRows(groupRows(groups))
		res.ResultsCount = len(groups)
	case intent.VariantGroupedBySubmitter:
		groups := aggregate.CountBySubmitter(records, 0)
		res.Answer = formatter.SubmitterBreakdown(ctx, question, groups, total)
		res.RawResults = s.capRows(groupRows(groups))
		res.ResultsCount = len(groups)
	case intent.VariantGroupedByState:
		groups := aggregate.CountByState(records, 0)
		res.Answer = formatter.StateBreakdown(ctx, question, groups, total)
		res.RawResults = s.capRows(groupRows(groups))
		res.ResultsCount = len(groups)
	case intent.VariantDuplicateEventReport:
		reports := aggregate.DuplicateEvents(records)
		res.Answer = formatter.Duplicates(ctx, question, reports, total)
		res.RawResults = s.capRows(reportRows(reports))
		res.ResultsCount = len(reports)
	default:
		return nil, fmt.Errorf("unsupported query shape %q", it.Variant)
	}

	return res, nil
}

func (s *queryService) capRows(rows []map[string]any) []map[string]any {
	if rows == nil {
		return []map[string]any{}
	}
	if len(rows) > s.opts.RawResultsCap {
		return rows[:s.opts.RawResultsCap]
	}
	return rows
}

func filterByRegion(records []airtable.Record, region string) []airtable.Record {
	out := make([]airtable.Record, 0, len(records))
	for _, r := range records {
		if strings.EqualFold(airtable.RegionValue(r), region) {
			out = append(out, r)
		}
	}
	return out
}

func recordRows(records []airtable.Record) []map[string]any {
	rows := make([]map[string]any, 0, len(records))
	for _, r := range records {
		row := make(map[string]any, len(r.Fields)+1)
		for k, v := range r.Fields {
			row[k] = v
		}
		row["id"] = r.ID
		rows = append(rows, row)
	}
	return rows
}

func groupRows(groups []aggregate.Group) []map[string]any {
	rows := make([]map[string]any, 0, len(groups))
	for _, g := range groups {
		rows = append(rows, map[string]any{"label": g.Label, "count": g.Count})
	}
	return rows
}

func reportRows(reports []aggregate.EventReport) []map[string]any {
	rows := make([]map[string]any, 0, len(reports))
	for _, rep := range reports {
		row := map[string]any{"event": rep.Name, "count": rep.Count}
		if rep.FirstDate != "" {
			row["first_date"] = rep.FirstDate
			row["last_date"] = rep.LastDate
		}
		if len(rep.TopStates) > 0 {
			row["top_states"] = rep.TopStates
		}
		rows = append(rows, row)
	}
	return rows
}
