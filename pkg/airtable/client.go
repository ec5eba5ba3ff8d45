// Package airtable is a minimal client for the Airtable REST API covering
// what the record-store query path needs: paginated listing with filter and
// sort, normalization of attachment fields into plain URL lists, and a
// bounded fetch loop.
package airtable

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strconv"
	"time"

	"go.uber.org/zap"
)

const (
	// DefaultTimeout is the maximum time to wait for record store responses.
	DefaultTimeout = 30 * time.Second
	// MaxPageSize is the server-enforced page size ceiling per list call.
	MaxPageSize = 100
	// DefaultBaseURL is the public API endpoint.
	DefaultBaseURL = "https://api.airtable.com"
)

// Well-known record store field names.
const (
	FieldEventName     = "Event Name"
	FieldEventDate     = "Event Date"
	FieldEmployeeFirst = "Employee First Name"
	FieldEmployeeLast  = "Employee Last Name"
	FieldSubmitter     = "Submitter"
)

// Record is one row from the record store. Field values are loosely typed
// until Normalize rewrites the attachment fields.
type Record struct {
	ID          string         `json:"id"`
	CreatedTime string         `json:"createdTime,omitempty"`
	Fields      map[string]any `json:"fields"`
}

// Page is one page of records plus the continuation token for the next.
// An empty Offset means the listing is exhausted.
type Page struct {
	Records []Record `json:"records"`
	Offset  string   `json:"offset,omitempty"`
}

// SelectParams narrows a single list call.
type SelectParams struct {
	PageSize        int
	Offset          string
	FilterByFormula string
	SortField       string
	SortDesc        bool
}

// Error is a typed record store API error.
type Error struct {
	StatusCode int
	Type       string
	Message    string
}

func (e *Error) Error() string {
	return fmt.Sprintf("record store returned status %d (%s): %s", e.StatusCode, e.Type, e.Message)
}

// IsInvalidFilter reports whether the store rejected the filter formula, the
// one error class the fetcher retries without a filter.
func (e *Error) IsInvalidFilter() bool {
	return e.StatusCode == http.StatusUnprocessableEntity && e.Type == "INVALID_FILTER_BY_FORMULA"
}

// Config configures the record store client.
type Config struct {
	APIKey  string
	BaseID  string
	Table   string
	BaseURL string // optional override, defaults to the public API
}

// Client calls the record store REST API.
type Client struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	baseID     string
	table      string
	logger     *zap.Logger
}

// NewClient creates a record store client.
func NewClient(cfg Config, logger *zap.Logger) *Client {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		httpClient: &http.Client{Timeout: DefaultTimeout},
		baseURL:    baseURL,
		apiKey:     cfg.APIKey,
		baseID:     cfg.BaseID,
		table:      cfg.Table,
		logger:     logger.Named("airtable"),
	}
}

// ListRecords fetches one page of records.
func (c *Client) ListRecords(ctx context.Context, params SelectParams) (*Page, error) {
	endpoint, err := c.buildListURL(params)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("record store request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, c.parseError(resp.StatusCode, body)
	}

	var page Page
	if err := json.Unmarshal(body, &page); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}

	return &page, nil
}

// buildListURL constructs the list endpoint with query parameters. The sort
// uses Airtable's indexed bracket syntax.
func (c *Client) buildListURL(params SelectParams) (string, error) {
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return "", fmt.Errorf("invalid base URL: %w", err)
	}
	u.Path = path.Join(u.Path, "v0", c.baseID, c.table)

	q := url.Values{}
	pageSize := params.PageSize
	if pageSize < 1 || pageSize > MaxPageSize {
		pageSize = MaxPageSize
	}
	q.Set("pageSize", strconv.Itoa(pageSize))
	if params.Offset != "" {
		q.Set("offset", params.Offset)
	}
	if params.FilterByFormula != "" {
		q.Set("filterByFormula", params.FilterByFormula)
	}
	if params.SortField != "" {
		q.Set("sort[0][field]", params.SortField)
		direction := "asc"
		if params.SortDesc {
			direction = "desc"
		}
		q.Set("sort[0][direction]", direction)
	}
	u.RawQuery = q.Encode()

	return u.String(), nil
}

// parseError decodes the store's error envelope, which is either
// {"error":{"type":...,"message":...}} or {"error":"CODE"}.
func (c *Client) parseError(status int, body []byte) error {
	apiErr := &Error{StatusCode: status}

	var wrapper struct {
		Error json.RawMessage `json:"error"`
	}
	if err := json.Unmarshal(body, &wrapper); err == nil && len(wrapper.Error) > 0 {
		var detail struct {
			Type    string `json:"type"`
			Message string `json:"message"`
		}
		if err := json.Unmarshal(wrapper.Error, &detail); err == nil && detail.Type != "" {
			apiErr.Type = detail.Type
			apiErr.Message = detail.Message
		} else {
			var code string
			if err := json.Unmarshal(wrapper.Error, &code); err == nil {
				apiErr.Type = code
			}
		}
	}
	if apiErr.Type == "" && apiErr.Message == "" {
		apiErr.Message = string(body)
	}

	c.logger.Error("record store returned error",
		zap.Int("status", status),
		zap.String("type", apiErr.Type))

	return apiErr
}
