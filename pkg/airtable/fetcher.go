package airtable

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/ksandersbbb5/crm-query-assistant/pkg/jsonutil"
)

// FetchSpec bounds one record store scan. StartOffset resumes a scan from a
// continuation token returned by an earlier one.
type FetchSpec struct {
	Filter      string
	SortField   string
	SortDesc    bool
	PageSize    int
	MaxRecords  int
	StartOffset string
}

// FetchResult is the accumulated scan outcome.
type FetchResult struct {
	Records []Record
	// NextOffset is the pending continuation token when the record budget
	// cut the scan short, empty when the store was exhausted.
	NextOffset string
	// FilteredClientSide is set when the store rejected the filter formula
	// and the scan ran unfiltered; the caller must filter the records.
	FilteredClientSide bool
	Pages              int
}

// FetchAll scans pages sequentially, threading the continuation token, until
// the record budget is reached or the store returns no token. Every record
// is normalized on ingestion. The loop makes at most ceil(budget/pageSize)
// page requests and accumulates at most budget records.
//
// If the store rejects the filter formula the scan retries once with no
// filter and reports FilteredClientSide; every other error propagates.
func (c *Client) FetchAll(ctx context.Context, spec FetchSpec) (*FetchResult, error) {
	pageSize := spec.PageSize
	if pageSize < 1 || pageSize > MaxPageSize {
		pageSize = MaxPageSize
	}
	budget := spec.MaxRecords
	if budget < 1 {
		budget = pageSize
	}
	maxCalls := (budget + pageSize - 1) / pageSize

	result := &FetchResult{}
	filter := spec.Filter
	offset := spec.StartOffset

	for len(result.Records) < budget && result.Pages < maxCalls {
		size := pageSize
		if remaining := budget - len(result.Records); remaining < size {
			size = remaining
		}

		page, err := c.ListRecords(ctx, SelectParams{
			PageSize:        size,
			Offset:          offset,
			FilterByFormula: filter,
			SortField:       spec.SortField,
			SortDesc:        spec.SortDesc,
		})
		if err != nil {
			var apiErr *Error
			if filter != "" && result.Pages == 0 && errors.As(err, &apiErr) && apiErr.IsInvalidFilter() {
				c.logger.Warn("record store rejected filter formula, retrying without filter",
					zap.String("filter", filter))
				filter = ""
				result.FilteredClientSide = true
				continue
			}
			return nil, err
		}

		result.Pages++
		for i := range page.Records {
			page.Records[i].Normalize()
		}
		result.Records = append(result.Records, page.Records...)

		if page.Offset == "" {
			return result, nil
		}
		offset = page.Offset
	}

	result.NextOffset = offset
	return result, nil
}

// regionColumnVariants are the candidate region column names, probed in
// order.
var regionColumnVariants = []string{"State", "state", "Region", "St"}

// ProbeRegionColumn samples one record and returns the first region column
// variant present on it. An empty return means no variant exists and the
// caller should omit the region filter; probe errors degrade the same way
// with a logged warning rather than failing the request.
func (c *Client) ProbeRegionColumn(ctx context.Context) string {
	page, err := c.ListRecords(ctx, SelectParams{PageSize: 1})
	if err != nil {
		c.logger.Warn("region column probe failed, omitting region filter", zap.Error(err))
		return ""
	}
	if len(page.Records) == 0 {
		return ""
	}

	fields := page.Records[0].Fields
	for _, name := range regionColumnVariants {
		if _, ok := fields[name]; ok {
			return name
		}
	}

	c.logger.Warn("no region column found in record store, omitting region filter",
		zap.Strings("tried", regionColumnVariants))
	return ""
}

// BuildRegionFilter renders the equality filter formula for a region code.
// The code comes from a fixed extractor vocabulary; quote characters are
// stripped anyway before interpolation.
func BuildRegionFilter(column, code string) string {
	if column == "" || code == "" {
		return ""
	}
	code = strings.NewReplacer("'", "", `"`, "", `\`, "").Replace(code)
	return fmt.Sprintf("{%s} = '%s'", column, code)
}

// RegionValue returns the record's region code from whichever region column
// variant it carries, or "". Lookup columns may surface the code inside an
// array; the first element wins.
func RegionValue(r Record) string {
	for _, name := range regionColumnVariants {
		if v, ok := r.Fields[name]; ok {
			if s := jsonutil.FirstString(v); s != "" {
				return s
			}
		}
	}
	return ""
}
