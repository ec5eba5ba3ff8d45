package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/ksandersbbb5/crm-query-assistant/pkg/adapters/datasource"
	"github.com/ksandersbbb5/crm-query-assistant/pkg/apperrors"
	"github.com/ksandersbbb5/crm-query-assistant/pkg/config"
	"github.com/ksandersbbb5/crm-query-assistant/pkg/logging"
	"github.com/ksandersbbb5/crm-query-assistant/pkg/services"
	"github.com/ksandersbbb5/crm-query-assistant/pkg/sqlgen"
)

// QueryRequest is the POST /api/query body.
type QueryRequest struct {
	Question string `json:"question"`
	Cursor   string `json:"cursor,omitempty"`
	PageSize int    `json:"page_size,omitempty"`
	Test     bool   `json:"test,omitempty"`
	Debug    string `json:"debug,omitempty"`
}

// QueryResponse is the POST /api/query success body.
type QueryResponse struct {
	Answer            string           `json:"answer"`
	QueryType         string           `json:"query_type"`
	Query             any              `json:"query"`
	RawResults        []map[string]any `json:"raw_results"`
	ResultsCount      int              `json:"results_count"`
	ContinuationToken string           `json:"continuation_token,omitempty"`
	Debug             *DebugInfo       `json:"debug,omitempty"`
}

// DebugInfo is attached to the response when the request sets a truthy
// debug value.
type DebugInfo struct {
	DurationMS         int64 `json:"duration_ms"`
	SQLConfigured      bool  `json:"sql_configured"`
	AirtableConfigured bool  `json:"airtable_configured"`
	LLMConfigured      bool  `json:"llm_configured"`
}

// StatusResponse reports which backends are configured. Secrets are masked;
// the password never leaves the process.
type StatusResponse struct {
	Service               string         `json:"service"`
	Version               string         `json:"version"`
	SQLDriver             string         `json:"sql_driver"`
	SQLServer             string         `json:"sql_server"`
	SQLDatabase           string         `json:"sql_database"`
	SQLUsername           string         `json:"sql_username"`
	SQLPassword           string         `json:"sql_password"`
	LLMProvider           string         `json:"llm_provider"`
	LLMKey                string         `json:"llm_key"`
	AirtableKey           string         `json:"airtable_key"`
	AirtableBaseID        string         `json:"airtable_base_id"`
	AirtableTable         string         `json:"airtable_table"`
	RecordSummaryDisabled bool           `json:"record_summary_disabled"`
	SharedSecretRequired  bool           `json:"shared_secret_required"`
	ConnectionTest        string         `json:"connection_test"`
	SampleRecord          map[string]any `json:"sample_record,omitempty"`
}

// QueryHandler serves the natural-language query endpoint.
type QueryHandler struct {
	service  services.QueryService
	executor datasource.QueryExecutor // nil when the relational backend is unconfigured
	cfg      *config.Config
	logger   *zap.Logger
}

// NewQueryHandler creates a new query handler. executor may be nil; the
// status probe then reports the missing configuration instead.
func NewQueryHandler(service services.QueryService, executor datasource.QueryExecutor, cfg *config.Config, logger *zap.Logger) *QueryHandler {
	return &QueryHandler{
		service:  service,
		executor: executor,
		cfg:      cfg,
		logger:   logger,
	}
}

// RegisterRoutes registers the query handler's routes on the given mux.
// OPTIONS preflights are answered by the CORS middleware before routing.
func (h *QueryHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/query", h.Status)
	mux.HandleFunc("POST /api/query", h.Ask)
}

// Ask handles POST /api/query.
func (h *QueryHandler) Ask(w http.ResponseWriter, r *http.Request) {
	var req QueryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		if err := ErrorResponse(w, http.StatusBadRequest, "invalid_request", "Invalid JSON body"); err != nil {
			h.logger.Error("Failed to write error response", zap.Error(err))
		}
		return
	}

	if req.Test {
		h.writeStatus(w, r, false)
		return
	}

	if strings.TrimSpace(req.Question) == "" {
		if err := ErrorResponse(w, http.StatusBadRequest, "missing_question", "Question is required"); err != nil {
			h.logger.Error("Failed to write error response", zap.Error(err))
		}
		return
	}

	start := time.Now()
	result, err := h.service.Ask(r.Context(), services.AskRequest{
		Question: req.Question,
		Cursor:   req.Cursor,
		PageSize: req.PageSize,
	})
	if err != nil {
		h.writeAskError(w, req.Question, err)
		return
	}

	resp := QueryResponse{
		Answer:            result.Answer,
		QueryType:         result.QueryType,
		Query:             result.Query,
		RawResults:        result.RawResults,
		ResultsCount:      result.ResultsCount,
		ContinuationToken: result.ContinuationToken,
	}
	if debugRequested(req.Debug) {
		resp.Debug = &DebugInfo{
			DurationMS:         time.Since(start).Milliseconds(),
			SQLConfigured:      h.cfg.SQL.IsConfigured(),
			AirtableConfigured: h.cfg.Airtable.IsConfigured(),
			LLMConfigured:      h.cfg.LLM.IsConfigured(),
		}
	}

	if err := WriteJSON(w, http.StatusOK, resp); err != nil {
		h.logger.Error("Failed to encode query response", zap.Error(err))
	}
}

// writeAskError maps pipeline failures onto the documented status codes:
// gate rejections and input errors are 400s, everything else is a 500 that
// carries the attempted SQL when the relational execute step failed.
func (h *QueryHandler) writeAskError(w http.ResponseWriter, question string, err error) {
	var rejected *sqlgen.RejectedQueryError
	if errors.As(err, &rejected) {
		h.logger.Warn("Rejected generated query",
			zap.String("question", question),
			zap.String("sql", rejected.SQL),
			zap.Error(rejected.Reason))
		if err := WriteJSON(w, http.StatusBadRequest, map[string]string{
			"error":   "query_rejected",
			"message": fmt.Sprintf("Generated query failed the read-only check: %v", rejected.Reason),
			"sql":     rejected.SQL,
		}); err != nil {
			h.logger.Error("Failed to write error response", zap.Error(err))
		}
		return
	}

	var execErr *services.ExecutionError
	if errors.As(err, &execErr) {
		// Backend errors can quote connection details; the response body
		// carries them verbatim for diagnosis, the log keeps a sanitized copy.
		h.logger.Error("Query execution failed",
			zap.String("question", question),
			zap.String("sql", logging.SanitizeQuery(execErr.SQL)),
			zap.String("error", logging.SanitizeError(execErr.Err)))
		if err := WriteJSON(w, http.StatusInternalServerError, map[string]string{
			"error": execErr.Err.Error(),
			"sql":   execErr.SQL,
		}); err != nil {
			h.logger.Error("Failed to write error response", zap.Error(err))
		}
		return
	}

	var writeErr error
	switch {
	case errors.Is(err, apperrors.ErrMissingQuestion):
		writeErr = ErrorResponse(w, http.StatusBadRequest, "missing_question", "Question is required")
	case errors.Is(err, apperrors.ErrNotConfigured):
		h.logger.Error("Backend not configured",
			zap.String("question", question),
			zap.Error(err))
		writeErr = ErrorResponse(w, http.StatusInternalServerError, "not_configured", err.Error())
	default:
		h.logger.Error("Query failed",
			zap.String("question", question),
			zap.Error(err))
		writeErr = ErrorResponse(w, http.StatusInternalServerError, "internal_error", err.Error())
	}
	if writeErr != nil {
		h.logger.Error("Failed to write error response", zap.Error(writeErr))
	}
}

// Status handles GET /api/query. Pass ?connection_test=1 to run a live
// probe against the relational backend.
func (h *QueryHandler) Status(w http.ResponseWriter, r *http.Request) {
	h.writeStatus(w, r, r.URL.Query().Get("connection_test") == "1")
}

func (h *QueryHandler) writeStatus(w http.ResponseWriter, r *http.Request, withProbe bool) {
	status := h.buildStatus(r, withProbe)
	if err := WriteJSON(w, http.StatusOK, status); err != nil {
		h.logger.Error("Failed to encode status response", zap.Error(err))
	}
}

func (h *QueryHandler) buildStatus(r *http.Request, withProbe bool) *StatusResponse {
	status := &StatusResponse{
		Service:               "crm-query-assistant",
		Version:               h.cfg.Version,
		SQLDriver:             h.cfg.SQL.Driver,
		SQLServer:             orNotSet(h.cfg.SQL.Host),
		SQLDatabase:           orNotSet(h.cfg.SQL.Database),
		SQLUsername:           orNotSet(h.cfg.SQL.Username),
		SQLPassword:           maskSecret(h.cfg.SQL.Password),
		LLMProvider:           h.cfg.LLM.Provider,
		LLMKey:                setOrNot(h.cfg.LLM.IsConfigured()),
		AirtableKey:           setOrNot(h.cfg.Airtable.APIKey != ""),
		AirtableBaseID:        orNotSet(h.cfg.Airtable.BaseID),
		AirtableTable:         orNotSet(h.cfg.Airtable.Table),
		RecordSummaryDisabled: h.cfg.Answer.DisableRecordSummary,
		SharedSecretRequired:  h.cfg.Auth.Enabled(),
		ConnectionTest:        "Not Tested",
	}

	if !withProbe {
		return status
	}

	if h.executor == nil {
		status.ConnectionTest = "Missing environment variables: " + strings.Join(h.missingSQLVars(), ", ")
		return status
	}

	res, err := h.executor.Query(r.Context(), "SELECT COUNT(*) AS count FROM Applications", 1)
	if err != nil {
		status.ConnectionTest = "Error: " + err.Error()
		return status
	}
	var count any = 0
	if len(res.Rows) > 0 {
		count = res.Rows[0]["count"]
	}
	status.ConnectionTest = fmt.Sprintf("Success! Found %v records in Applications table", count)

	sample, err := h.executor.Query(r.Context(), "SELECT AppID, app_status, dba, city, state FROM Applications", 1)
	if err == nil && len(sample.Rows) > 0 {
		status.SampleRecord = sample.Rows[0]
	}

	return status
}

func (h *QueryHandler) missingSQLVars() []string {
	var missing []string
	if h.cfg.SQL.Host == "" {
		missing = append(missing, "SQL_SERVER")
	}
	if h.cfg.SQL.Database == "" {
		missing = append(missing, "SQL_DATABASE")
	}
	if h.cfg.SQL.Username == "" {
		missing = append(missing, "SQL_USERNAME")
	}
	if h.cfg.SQL.Password == "" {
		missing = append(missing, "SQL_PASSWORD")
	}
	return missing
}

func debugRequested(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "", "0", "false", "no":
		return false
	}
	return true
}

func orNotSet(v string) string {
	if v == "" {
		return "Not Set"
	}
	return v
}

func maskSecret(v string) string {
	if v == "" {
		return "Not Set"
	}
	return "***"
}

func setOrNot(configured bool) string {
	if configured {
		return "Set"
	}
	return "Not Set"
}
