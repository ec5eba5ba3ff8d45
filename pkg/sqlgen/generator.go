// Package sqlgen builds read-only SQL for natural-language questions about
// the Applications table. When a text-generation client is configured the
// statement is delegated to it and post-processed; otherwise an ordered set
// of canned templates covers the common question shapes. Every candidate
// statement passes the safety gate before it is returned, regardless of
// origin.
package sqlgen

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"github.com/ksandersbbb5/crm-query-assistant/pkg/adapters/datasource"
	"github.com/ksandersbbb5/crm-query-assistant/pkg/apperrors"
	"github.com/ksandersbbb5/crm-query-assistant/pkg/intent"
	"github.com/ksandersbbb5/crm-query-assistant/pkg/llm"
	"github.com/ksandersbbb5/crm-query-assistant/pkg/prompts"
	"github.com/ksandersbbb5/crm-query-assistant/pkg/sql"
)

// GeneratedQuery is a SQL statement ready for execution, with provenance for
// logging and debug payloads.
type GeneratedQuery struct {
	SQL      string
	Params   []any
	Source   string // "template" or "llm"
	Template string // template name when Source is "template"
	Model    string // model name when Source is "llm"
}

// RejectedQueryError carries a candidate statement the safety gate refused,
// so handlers can echo the rejected text back alongside the 400.
type RejectedQueryError struct {
	SQL    string
	Reason error
}

func (e *RejectedQueryError) Error() string {
	return fmt.Sprintf("%v: %v", apperrors.ErrQueryRejected, e.Reason)
}

func (e *RejectedQueryError) Unwrap() error { return e.Reason }

// Is lets errors.Is(err, apperrors.ErrQueryRejected) identify gate rejections
// without flattening the underlying validator error.
func (e *RejectedQueryError) Is(target error) bool {
	return target == apperrors.ErrQueryRejected
}

// Generator produces gated, read-only SQL for questions routed to the
// relational path.
type Generator struct {
	client       llm.LLMClient
	dialect      Dialect
	defaultLimit int
	temperature  float64
	logger       *zap.Logger
}

// NewGenerator creates a SQL generator. client may be nil, which forces the
// canned-template path.
func NewGenerator(client llm.LLMClient, dialect Dialect, defaultLimit int, temperature float64, logger *zap.Logger) *Generator {
	if defaultLimit < 1 {
		defaultLimit = 50
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Generator{
		client:       client,
		dialect:      dialect,
		defaultLimit: defaultLimit,
		temperature:  temperature,
		logger:       logger,
	}
}

// Generate builds a read-only SQL statement answering the question.
//
// A safety-gate rejection returns *RejectedQueryError and never falls back.
// A delegate failure (transport error, empty output) logs a warning and
// degrades to the canned templates.
func (g *Generator) Generate(ctx context.Context, question string) (*GeneratedQuery, error) {
	if g.client != nil {
		gq, err := g.generateWithLLM(ctx, question)
		if err == nil {
			return gq, nil
		}
		var rejected *RejectedQueryError
		if errors.As(err, &rejected) {
			return nil, err
		}
		g.logger.Warn("SQL generation delegate failed, falling back to canned templates",
			zap.Error(err))
	}
	return g.generateFromTemplate(question)
}

func (g *Generator) generateWithLLM(ctx context.Context, question string) (*GeneratedQuery, error) {
	systemMsg := prompts.BuildSQLGenerationSystemMessage(string(g.dialect), datasource.MaxQueryLimit)
	prompt := prompts.BuildSQLGenerationPrompt(question, applicationsTable())

	raw, err := g.client.GenerateResponse(ctx, prompt, systemMsg, g.temperature)
	if err != nil {
		return nil, fmt.Errorf("SQL generation failed: %w", err)
	}

	cleaned := CleanGeneratedSQL(raw)
	if cleaned == "" {
		return nil, fmt.Errorf("SQL generation returned no statement")
	}

	gatedSQL, err := g.gate(g.ensureResultCap(cleaned), nil)
	if err != nil {
		return nil, err
	}

	g.logger.Debug("generated SQL from delegate",
		zap.String("model", g.client.GetModel()),
		zap.String("sql", gatedSQL))

	return &GeneratedQuery{SQL: gatedSQL, Source: "llm", Model: g.client.GetModel()}, nil
}

func (g *Generator) generateFromTemplate(question string) (*GeneratedQuery, error) {
	q := strings.ToLower(question)
	tmpl := selectTemplate(q)
	sqlText, params := tmpl.build(q, g.dialect, g.listLimit(q))

	gatedSQL, err := g.gate(sqlText, params)
	if err != nil {
		return nil, err
	}

	g.logger.Debug("generated SQL from canned template",
		zap.String("template", tmpl.name),
		zap.String("sql", gatedSQL))

	return &GeneratedQuery{SQL: gatedSQL, Params: params, Source: "template", Template: tmpl.name}, nil
}

// listLimit resolves the row bound for listing templates: an explicit count
// from the question, "all" mapped to the maximum scan size, or the default,
// clamped to [1, datasource.MaxQueryLimit].
func (g *Generator) listLimit(q string) int {
	n := g.defaultLimit
	if l, ok := intent.ExtractLimit(q); ok {
		n = l
	}
	if intent.WantsAll(q) {
		n = datasource.MaxQueryLimit
	}
	if n < 1 {
		n = 1
	}
	if n > datasource.MaxQueryLimit {
		n = datasource.MaxQueryLimit
	}
	return n
}

// gate runs the read-only validator over the candidate statement and
// libinjection over every question-derived string parameter. It returns the
// normalized statement.
func (g *Generator) gate(sqlText string, params []any) (string, error) {
	result := sql.ValidateReadOnly(sqlText)
	if result.Error != nil {
		return "", &RejectedQueryError{SQL: sqlText, Reason: result.Error}
	}

	for i, p := range params {
		s, ok := p.(string)
		if !ok {
			continue
		}
		if res := sql.CheckValueForInjection(fmt.Sprintf("param%d", i+1), s); res != nil {
			return "", &RejectedQueryError{
				SQL:    sqlText,
				Reason: fmt.Errorf("injection pattern in %s (fingerprint %s)", res.Name, res.Fingerprint),
			}
		}
	}

	return result.NormalizedSQL, nil
}

var (
	codeFencePattern    = regexp.MustCompile("(?s)```(?:sql)?\\s*(.*?)```")
	lineCommentPattern  = regexp.MustCompile(`--[^\n]*`)
	blockCommentPattern = regexp.MustCompile(`(?s)/\*.*?\*/`)
)

// CleanGeneratedSQL normalizes raw model output into a bare one-line
// statement: code fences unwrapped, comments stripped, everything after the
// first statement terminator discarded, whitespace collapsed. Comments are
// stripped before the terminator cut so a semicolon inside a comment never
// truncates the statement.
func CleanGeneratedSQL(raw string) string {
	text := strings.TrimSpace(raw)

	if m := codeFencePattern.FindStringSubmatch(text); m != nil {
		text = m[1]
	}

	text = blockCommentPattern.ReplaceAllString(text, " ")
	text = lineCommentPattern.ReplaceAllString(text, " ")
	text = sql.FirstStatement(text)

	return strings.Join(strings.Fields(text), " ")
}

var (
	selectPrefixPattern = regexp.MustCompile(`(?i)^select(\s+distinct)?\b`)
	topClausePattern    = regexp.MustCompile(`(?i)\btop\s*\(?\s*\d`)
	limitClausePattern  = regexp.MustCompile(`(?i)\blimit\s+\d`)
)

// ensureResultCap injects the maximum row bound when the statement has none.
// The executor wraps every statement with its own bound as well; this keeps
// the statement self-limiting when read in isolation.
func (g *Generator) ensureResultCap(sqlText string) string {
	switch g.dialect {
	case DialectPostgres:
		if limitClausePattern.MatchString(sqlText) {
			return sqlText
		}
		return fmt.Sprintf("%s LIMIT %d", strings.TrimSpace(sqlText), datasource.MaxQueryLimit)
	default:
		if topClausePattern.MatchString(sqlText) {
			return sqlText
		}
		return selectPrefixPattern.ReplaceAllString(sqlText, fmt.Sprintf("SELECT${1} TOP %d", datasource.MaxQueryLimit))
	}
}

// applicationsTable describes the relational schema exposed to the SQL
// generation prompt.
func applicationsTable() prompts.TableContext {
	return prompts.TableContext{
		Name:        "Applications",
		Description: "CRM applications submitted by businesses.",
		Columns: []prompts.ColumnContext{
			{Name: "AppID", DataType: "int", Description: "Primary key, ascending with submission order"},
			{Name: "app_status", DataType: "varchar", Description: "approved, pending or rejected"},
			{Name: "dba", DataType: "varchar", Description: "Business name (doing business as)"},
			{Name: "city", DataType: "varchar", Description: "Business city"},
			{Name: "state", DataType: "varchar", Description: "Two-letter state code"},
			{Name: "balance", DataType: "numeric", Description: "Outstanding balance in dollars"},
		},
	}
}
