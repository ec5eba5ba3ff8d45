package services

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ksandersbbb5/crm-query-assistant/pkg/adapters/datasource"
	"github.com/ksandersbbb5/crm-query-assistant/pkg/airtable"
	"github.com/ksandersbbb5/crm-query-assistant/pkg/answer"
	"github.com/ksandersbbb5/crm-query-assistant/pkg/apperrors"
	"github.com/ksandersbbb5/crm-query-assistant/pkg/llm"
	"github.com/ksandersbbb5/crm-query-assistant/pkg/sqlgen"
)

// mockExecutor is a func-field mock for the relational executor.
type mockExecutor struct {
	QueryFunc           func(ctx context.Context, sqlQuery string, limit int) (*datasource.QueryExecutionResult, error)
	QueryWithParamsFunc func(ctx context.Context, sqlQuery string, params []any, limit int) (*datasource.QueryExecutionResult, error)
	LastSQL             string
	LastParams          []any
	Calls               int
}

func (m *mockExecutor) Query(ctx context.Context, sqlQuery string, limit int) (*datasource.QueryExecutionResult, error) {
	m.Calls++
	m.LastSQL = sqlQuery
	if m.QueryFunc != nil {
		return m.QueryFunc(ctx, sqlQuery, limit)
	}
	return &datasource.QueryExecutionResult{Rows: []map[string]any{}}, nil
}

func (m *mockExecutor) QueryWithParams(ctx context.Context, sqlQuery string, params []any, limit int) (*datasource.QueryExecutionResult, error) {
	m.Calls++
	m.LastSQL = sqlQuery
	m.LastParams = params
	if m.QueryWithParamsFunc != nil {
		return m.QueryWithParamsFunc(ctx, sqlQuery, params, limit)
	}
	return &datasource.QueryExecutionResult{Rows: []map[string]any{}}, nil
}

func (m *mockExecutor) TestConnection(ctx context.Context) error { return nil }
func (m *mockExecutor) Close() error                             { return nil }

var _ datasource.QueryExecutor = (*mockExecutor)(nil)

// storeServer serves the given records page by page, honoring pageSize and
// offset indices, and records every request's query values.
func storeServer(t *testing.T, records []airtable.Record) (*httptest.Server, *airtable.Client, *[]map[string]string) {
	t.Helper()
	var requests []map[string]string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		seen := map[string]string{}
		for k := range q {
			seen[k] = q.Get(k)
		}
		requests = append(requests, seen)

		size := len(records)
		if ps := q.Get("pageSize"); ps != "" {
			if n, err := strconv.Atoi(ps); err == nil && n < size {
				size = n
			}
		}
		start := 0
		if off := q.Get("offset"); off != "" {
			start, _ = strconv.Atoi(off)
		}
		end := start + size
		if end > len(records) {
			end = len(records)
		}

		page := airtable.Page{Records: records[start:end]}
		if end < len(records) {
			page.Offset = strconv.Itoa(end)
		}
		if err := json.NewEncoder(w).Encode(page); err != nil {
			t.Errorf("encode page: %v", err)
		}
	}))
	t.Cleanup(srv.Close)

	client := airtable.NewClient(airtable.Config{
		APIKey:  "key123",
		BaseID:  "appTEST",
		Table:   "Photos",
		BaseURL: srv.URL,
	}, zap.NewNop())
	return srv, client, &requests
}

func photoFields(first, last, state string) map[string]any {
	return map[string]any{
		"Employee First Name": first,
		"Employee Last Name":  last,
		"State":               state,
		"Photo":               []any{map[string]any{"url": "https://example.com/p.jpg"}},
	}
}

func newRelationalService(exec datasource.QueryExecutor, client llm.LLMClient) QueryService {
	gen := sqlgen.NewGenerator(client, sqlgen.DialectSQLServer, 50, 0, zap.NewNop())
	return NewQueryService(exec, gen, nil, answer.NewFormatter(nil, nil), QueryServiceOptions{}, zap.NewNop())
}

func newRecordService(store *airtable.Client, opts QueryServiceOptions) QueryService {
	gen := sqlgen.NewGenerator(nil, sqlgen.DialectSQLServer, 50, 0, zap.NewNop())
	return NewQueryService(nil, gen, store, answer.NewFormatter(nil, nil), opts, zap.NewNop())
}

func TestAsk_MissingQuestion(t *testing.T) {
	svc := newRelationalService(&mockExecutor{}, nil)

	res, err := svc.Ask(context.Background(), AskRequest{Question: "   "})

	require.Error(t, err)
	assert.True(t, errors.Is(err, apperrors.ErrMissingQuestion))
	assert.Nil(t, res)
}

func TestAsk_TopCitiesTemplate(t *testing.T) {
	exec := &mockExecutor{
		QueryFunc: func(ctx context.Context, sqlQuery string, limit int) (*datasource.QueryExecutionResult, error) {
			return &datasource.QueryExecutionResult{
				Rows: []map[string]any{
					{"city": "Boston", "count": int64(7)},
					{"city": "Hartford", "count": int64(3)},
				},
				RowCount: 2,
			}, nil
		},
	}
	svc := newRelationalService(exec, nil)

	res, err := svc.Ask(context.Background(), AskRequest{Question: "show me the top 5 cities"})

	require.NoError(t, err)
	wantSQL := "SELECT TOP 5 city, COUNT(*) AS count FROM Applications GROUP BY city ORDER BY count DESC"
	assert.Equal(t, wantSQL, exec.LastSQL)
	assert.Equal(t, "sql", res.QueryType)
	assert.Equal(t, wantSQL, res.Query)
	assert.Equal(t, 2, res.ResultsCount)
	assert.Contains(t, res.Answer, "Found 2 results")
	assert.Contains(t, res.Answer, "Boston")
}

func TestAsk_RelationalUnconfigured(t *testing.T) {
	svc := newRelationalService(nil, nil)

	_, err := svc.Ask(context.Background(), AskRequest{Question: "how many applications are there"})

	require.Error(t, err)
	assert.True(t, errors.Is(err, apperrors.ErrNotConfigured))
}

func TestAsk_GateRejectionNeverExecutes(t *testing.T) {
	exec := &mockExecutor{}
	mock := llm.NewMockLLMClient()
	mock.GenerateResponseFunc = func(ctx context.Context, prompt, system string, temperature float64) (string, error) {
		return "DROP TABLE Applications", nil
	}
	svc := newRelationalService(exec, mock)

	res, err := svc.Ask(context.Background(), AskRequest{Question: "DROP TABLE Applications"})

	require.Error(t, err)
	assert.Nil(t, res)
	assert.True(t, errors.Is(err, apperrors.ErrQueryRejected))

	var rejected *sqlgen.RejectedQueryError
	require.True(t, errors.As(err, &rejected))
	assert.Contains(t, rejected.SQL, "DROP TABLE Applications")
	assert.Equal(t, 0, exec.Calls)
}

func TestAsk_ExecuteFailureCarriesSQL(t *testing.T) {
	exec := &mockExecutor{
		QueryFunc: func(ctx context.Context, sqlQuery string, limit int) (*datasource.QueryExecutionResult, error) {
			return nil, errors.New("Invalid object name 'Applications'")
		},
	}
	svc := newRelationalService(exec, nil)

	_, err := svc.Ask(context.Background(), AskRequest{Question: "how many applications are there"})

	require.Error(t, err)
	var execErr *ExecutionError
	require.True(t, errors.As(err, &execErr))
	assert.Equal(t, "SELECT COUNT(*) AS count FROM Applications", execErr.SQL)
	assert.Contains(t, execErr.Error(), "Invalid object name")
}

func TestAsk_StatusCountUsesParams(t *testing.T) {
	exec := &mockExecutor{
		QueryWithParamsFunc: func(ctx context.Context, sqlQuery string, params []any, limit int) (*datasource.QueryExecutionResult, error) {
			return &datasource.QueryExecutionResult{
				Rows:     []map[string]any{{"count": int64(12)}},
				RowCount: 1,
			}, nil
		},
	}
	svc := newRelationalService(exec, nil)

	res, err := svc.Ask(context.Background(), AskRequest{Question: "how many applications are pending?"})

	require.NoError(t, err)
	assert.Equal(t, "SELECT COUNT(*) AS count FROM Applications WHERE app_status = $1", exec.LastSQL)
	assert.Equal(t, []any{"pending"}, exec.LastParams)
	assert.Equal(t, 1, res.ResultsCount)
}

func TestAsk_RecordStoreUnconfigured(t *testing.T) {
	svc := newRecordService(nil, QueryServiceOptions{})

	_, err := svc.Ask(context.Background(), AskRequest{Question: "show me the photos"})

	require.Error(t, err)
	assert.True(t, errors.Is(err, apperrors.ErrNotConfigured))
}

func TestAsk_EmployeeLeaderboard(t *testing.T) {
	records := []airtable.Record{
		{ID: "rec1", Fields: photoFields("Jane", "Smith", "MA")},
		{ID: "rec2", Fields: photoFields("Jane", "Smith", "MA")},
		{ID: "rec3", Fields: photoFields("Jane", "Smith", "CT")},
		{ID: "rec4", Fields: photoFields("Bob", "Adams", "RI")},
		{ID: "rec5", Fields: map[string]any{
			"Employee First Name": "Jane",
			"Employee Last Name":  "Smith",
		}},
	}
	_, store, _ := storeServer(t, records)
	svc := newRecordService(store, QueryServiceOptions{})

	res, err := svc.Ask(context.Background(), AskRequest{Question: "Which employee has the most photos?"})

	require.NoError(t, err)
	assert.Equal(t, "airtable", res.QueryType)
	assert.Contains(t, res.Answer, "Smith, Jane")
	assert.Contains(t, res.Answer, "3 photos")
	assert.Equal(t, 2, res.ResultsCount)
	require.NotEmpty(t, res.RawResults)
	assert.Equal(t, map[string]any{"label": "Smith, Jane", "count": 3}, res.RawResults[0])
	assert.Empty(t, res.ContinuationToken)
}

func TestAsk_RecordListing(t *testing.T) {
	records := []airtable.Record{
		{ID: "rec1", Fields: photoFields("Jane", "Smith", "MA")},
		{ID: "rec2", Fields: photoFields("Bob", "Adams", "CT")},
		{ID: "rec3", Fields: photoFields("Ann", "Lee", "RI")},
	}
	_, store, requests := storeServer(t, records)
	svc := newRecordService(store, QueryServiceOptions{DefaultLimit: 10, MaxLimit: 100})

	res, err := svc.Ask(context.Background(), AskRequest{Question: "show me recent photos"})

	require.NoError(t, err)
	assert.Equal(t, "airtable", res.QueryType)
	assert.Equal(t, "Returned 3 photo records from any state.", res.Answer)
	assert.Equal(t, 3, res.ResultsCount)
	assert.Empty(t, res.ContinuationToken)

	rq, ok := res.Query.(*RecordQuery)
	require.True(t, ok)
	assert.Equal(t, 10, rq.ResultLimit)
	assert.Equal(t, "Event Date", rq.SortField)
	assert.Equal(t, "desc", rq.SortDirection)
	assert.Empty(t, rq.StateFilter)

	require.Len(t, res.RawResults, 3)
	assert.Equal(t, "rec1", res.RawResults[0]["id"])

	// No region in the question, so no probe call happens.
	require.Len(t, *requests, 1)
	assert.Equal(t, "Event Date", (*requests)[0]["sort[0][field]"])
	assert.Equal(t, "desc", (*requests)[0]["sort[0][direction]"])
}

func TestAsk_RecordListingWithRegion(t *testing.T) {
	records := []airtable.Record{
		{ID: "rec1", Fields: photoFields("Jane", "Smith", "MA")},
		{ID: "rec2", Fields: photoFields("Bob", "Adams", "MA")},
	}
	_, store, requests := storeServer(t, records)
	svc := newRecordService(store, QueryServiceOptions{DefaultLimit: 10, MaxLimit: 100})

	res, err := svc.Ask(context.Background(), AskRequest{Question: "show me photos from massachusetts"})

	require.NoError(t, err)
	assert.Equal(t, "Returned 2 photo records from MA.", res.Answer)

	rq, ok := res.Query.(*RecordQuery)
	require.True(t, ok)
	assert.Equal(t, "MA", rq.StateFilter)
	assert.Equal(t, "{State} = 'MA'", rq.FilterFormula)

	// Probe call first (single record), then the filtered listing call.
	require.Len(t, *requests, 2)
	assert.Equal(t, "1", (*requests)[0]["pageSize"])
	assert.Equal(t, "{State} = 'MA'", (*requests)[1]["filterByFormula"])
}

func TestAsk_ListingPagination(t *testing.T) {
	records := []airtable.Record{
		{ID: "rec1", Fields: photoFields("Jane", "Smith", "MA")},
		{ID: "rec2", Fields: photoFields("Bob", "Adams", "CT")},
		{ID: "rec3", Fields: photoFields("Ann", "Lee", "RI")},
	}
	_, store, _ := storeServer(t, records)
	svc := newRecordService(store, QueryServiceOptions{DefaultLimit: 10, MaxLimit: 100})

	res, err := svc.Ask(context.Background(), AskRequest{Question: "show me the last 2 photos"})

	require.NoError(t, err)
	assert.Equal(t, 2, res.ResultsCount)
	assert.Equal(t, "2", res.ContinuationToken)
	assert.Equal(t, "Returned 2 photo records from any state, more available.", res.Answer)

	// Resume from the token: the remaining record comes back.
	res2, err := svc.Ask(context.Background(), AskRequest{
		Question: "show me the last 2 photos",
		Cursor:   res.ContinuationToken,
	})
	require.NoError(t, err)
	assert.Equal(t, 1, res2.ResultsCount)
	assert.Equal(t, "rec3", res2.RawResults[0]["id"])
	assert.Empty(t, res2.ContinuationToken)
}

func TestAsk_DuplicateEventReport(t *testing.T) {
	gala := func(date string) map[string]any {
		f := photoFields("Jane", "Smith", "MA")
		f["Event Name"] = "Spring Gala"
		f["Event Date"] = date
		return f
	}
	records := []airtable.Record{
		{ID: "rec1", Fields: gala("2024-01-15")},
		{ID: "rec2", Fields: gala("2024-06-30")},
		{ID: "rec3", Fields: photoFields("Bob", "Adams", "CT")},
	}
	_, store, _ := storeServer(t, records)
	svc := newRecordService(store, QueryServiceOptions{})

	res, err := svc.Ask(context.Background(), AskRequest{Question: "which events show up more than once?"})

	require.NoError(t, err)
	assert.Equal(t, "airtable", res.QueryType)
	assert.Contains(t, res.Answer, "Spring Gala: 2 occurrences")
	assert.Equal(t, 1, res.ResultsCount)
	assert.Equal(t, "Spring Gala", res.RawResults[0]["event"])
	assert.Equal(t, "2024-01-15", res.RawResults[0]["first_date"])
}

func TestAsk_StateChart(t *testing.T) {
	records := []airtable.Record{
		{ID: "rec1", Fields: photoFields("Jane", "Smith", "MA")},
		{ID: "rec2", Fields: photoFields("Bob", "Adams", "MA")},
		{ID: "rec3", Fields: photoFields("Ann", "Lee", "CT")},
	}
	_, store, _ := storeServer(t, records)
	svc := newRecordService(store, QueryServiceOptions{})

	res, err := svc.Ask(context.Background(), AskRequest{Question: "bar chart of photos by state"})

	require.NoError(t, err)
	assert.Contains(t, res.Answer, "Photo counts by state")
	assert.Equal(t, 2, res.ResultsCount)
	assert.Equal(t, map[string]any{"label": "MA", "count": 2}, res.RawResults[0])
}

func TestAsk_DisableRecordSummarySkipsDelegate(t *testing.T) {
	records := []airtable.Record{
		{ID: "rec1", Fields: photoFields("Jane", "Smith", "MA")},
		{ID: "rec2", Fields: photoFields("Bob", "Adams", "CT")},
	}
	_, store, _ := storeServer(t, records)

	mock := llm.NewMockLLMClient()
	mock.GenerateResponseFunc = func(ctx context.Context, prompt, system string, temperature float64) (string, error) {
		return "A delegate summary.", nil
	}
	gen := sqlgen.NewGenerator(nil, sqlgen.DialectSQLServer, 50, 0, zap.NewNop())
	svc := NewQueryService(nil, gen, store, answer.NewFormatter(mock, nil),
		QueryServiceOptions{DisableRecordSummary: true}, zap.NewNop())

	res, err := svc.Ask(context.Background(), AskRequest{Question: "show me recent photos"})

	require.NoError(t, err)
	assert.Equal(t, "Returned 2 photo records from any state.", res.Answer)
	assert.Equal(t, 0, mock.GenerateResponseCalls)
}

func TestAsk_RawResultsCapped(t *testing.T) {
	rows := make([]map[string]any, 5)
	for i := range rows {
		rows[i] = map[string]any{"AppID": int64(i + 1)}
	}
	exec := &mockExecutor{
		QueryFunc: func(ctx context.Context, sqlQuery string, limit int) (*datasource.QueryExecutionResult, error) {
			return &datasource.QueryExecutionResult{Rows: rows, RowCount: 5}, nil
		},
	}
	gen := sqlgen.NewGenerator(nil, sqlgen.DialectSQLServer, 50, 0, zap.NewNop())
	svc := NewQueryService(exec, gen, nil, answer.NewFormatter(nil, nil),
		QueryServiceOptions{RawResultsCap: 2}, zap.NewNop())

	res, err := svc.Ask(context.Background(), AskRequest{Question: "how many applications are there"})

	require.NoError(t, err)
	assert.Len(t, res.RawResults, 2)
	assert.Equal(t, 5, res.ResultsCount)
}
