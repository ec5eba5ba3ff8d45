package apperrors

import "errors"

var (
	ErrMissingQuestion = errors.New("question is required")
	ErrQueryRejected   = errors.New("query rejected by safety filter")
	ErrNotConfigured   = errors.New("backend is not configured")
)
