// Package sql provides the read-only safety gate for generated SQL.
//
// The gate is a best-effort blocklist filter, not a parser. It rejects
// statements that do not begin with SELECT, contain a statement terminator
// outside string literals or a comment opener anywhere, or mention a
// mutating/administrative verb as a standalone word. False negatives are a
// documented residual risk, mitigated by read-only database credentials.
package sql

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

var (
	// ErrEmptyQuery indicates a blank candidate statement.
	ErrEmptyQuery = errors.New("empty SQL statement")
	// ErrNotSelect indicates the statement does not begin with SELECT.
	ErrNotSelect = errors.New("only SELECT statements are permitted")
	// ErrMultipleStatements indicates the query contains a statement terminator.
	ErrMultipleStatements = errors.New("multiple SQL statements not allowed; only single statements are permitted")
	// ErrCommentMarker indicates the query contains -- or /* markers.
	ErrCommentMarker = errors.New("SQL comments are not allowed")
	// ErrForbiddenKeyword indicates a mutating or administrative verb.
	ErrForbiddenKeyword = errors.New("forbidden SQL keyword")
)

// forbiddenKeywords are rejected as standalone word tokens anywhere in the
// statement, regardless of position or casing.
var forbiddenKeywords = []string{
	"insert", "update", "delete", "drop", "alter", "create",
	"truncate", "exec", "execute", "merge", "grant", "revoke",
}

var forbiddenPattern = regexp.MustCompile(`(?i)\b(` + strings.Join(forbiddenKeywords, "|") + `)\b`)

// ValidationResult contains the normalized SQL and any validation error.
type ValidationResult struct {
	NormalizedSQL string
	Error         error
}

// ValidateReadOnly checks a candidate statement against the read-only rules.
//
// The validation order is:
//  1. Trim whitespace; reject empty input
//  2. Strip a single trailing semicolon (normalize)
//  3. Require a SELECT prefix (case-insensitive)
//  4. Reject any remaining semicolon outside string literals
//  5. Reject comment markers (-- and /*)
//  6. Reject forbidden keywords as word tokens
func ValidateReadOnly(sqlQuery string) ValidationResult {
	sqlQuery = strings.TrimSpace(sqlQuery)

	if sqlQuery == "" {
		return ValidationResult{Error: ErrEmptyQuery}
	}

	normalized := stripTrailingSemicolon(sqlQuery)
	if normalized == "" {
		return ValidationResult{Error: ErrEmptyQuery}
	}

	if !strings.HasPrefix(strings.ToUpper(normalized), "SELECT") {
		return ValidationResult{Error: ErrNotSelect}
	}

	if indexSemicolonOutsideStrings(normalized) >= 0 {
		return ValidationResult{Error: ErrMultipleStatements}
	}

	if strings.Contains(normalized, "--") || strings.Contains(normalized, "/*") {
		return ValidationResult{Error: ErrCommentMarker}
	}

	if match := forbiddenPattern.FindString(normalized); match != "" {
		return ValidationResult{Error: fmt.Errorf("%w: %s", ErrForbiddenKeyword, strings.ToUpper(match))}
	}

	return ValidationResult{NormalizedSQL: normalized}
}

// FirstStatement returns the prefix of sqlQuery up to the first semicolon
// that sits outside single/double-quoted string literals, or the whole input
// when none exists. Model output is cut here before validation so trailing
// commentary or extra statements never reach the gate intact.
func FirstStatement(sqlQuery string) string {
	if idx := indexSemicolonOutsideStrings(sqlQuery); idx >= 0 {
		return strings.TrimSpace(sqlQuery[:idx])
	}
	return strings.TrimSpace(sqlQuery)
}

// indexSemicolonOutsideStrings returns the byte index of the first semicolon
// outside string literals, or -1.
func indexSemicolonOutsideStrings(sqlQuery string) int {
	const (
		stateNormal = iota
		stateSingleQuote
		stateDoubleQuote
	)

	state := stateNormal
	prevChar := rune(0)

	for i, char := range sqlQuery {
		switch state {
		case stateNormal:
			switch char {
			case ';':
				return i
			case '\'':
				state = stateSingleQuote
			case '"':
				state = stateDoubleQuote
			}
		case stateSingleQuote:
			// Exit single quote on an unescaped single quote. A SQL standard
			// doubled quote ('') exits and immediately re-enters on the next
			// quote, which correctly keeps us inside the string.
			if char == '\'' && prevChar != '\\' {
				state = stateNormal
			}
		case stateDoubleQuote:
			if char == '"' && prevChar != '\\' {
				state = stateNormal
			}
		}
		prevChar = char
	}

	return -1
}

// stripTrailingSemicolon removes a trailing semicolon and surrounding whitespace.
func stripTrailingSemicolon(sqlQuery string) string {
	sqlQuery = strings.TrimRight(sqlQuery, " \t\n\r")

	if strings.HasSuffix(sqlQuery, ";") {
		sqlQuery = strings.TrimSuffix(sqlQuery, ";")
		sqlQuery = strings.TrimRight(sqlQuery, " \t\n\r")
	}

	return sqlQuery
}
