package airtable

import (
	"encoding/json"
	"strings"
)

// attachmentFields is the fixed set of field names scanned for photo URLs.
var attachmentFields = []string{"Photo", "Photos", "Attachments", "Image", "Images"}

// FirstURLField is the synthesized convenience field holding the record's
// first attachment URL, or nil when it has none.
const FirstURLField = "photo_url"

// NormalizeAttachments flattens an arbitrary attachment field value into a
// list of URL strings. Accepted shapes: nil, a bare URL string, a map with a
// "url" entry, a JSON-encoded string of either, or a list mixing all of the
// above. Entries that are not strings beginning with http (case-insensitive,
// first four characters) are silently dropped. Total: no input panics.
func NormalizeAttachments(v any) []string {
	var urls []string
	collectURLs(v, &urls)
	return urls
}

func collectURLs(v any, out *[]string) {
	switch val := v.(type) {
	case string:
		trimmed := strings.TrimSpace(val)
		if strings.HasPrefix(trimmed, "[") || strings.HasPrefix(trimmed, "{") {
			var decoded any
			if err := json.Unmarshal([]byte(trimmed), &decoded); err == nil {
				collectURLs(decoded, out)
				return
			}
		}
		if isHTTPURL(trimmed) {
			*out = append(*out, trimmed)
		}
	case map[string]any:
		if u, ok := val["url"].(string); ok && isHTTPURL(u) {
			*out = append(*out, u)
		}
	case []any:
		for _, item := range val {
			collectURLs(item, out)
		}
	}
}

// isHTTPURL checks the first four characters for the http scheme prefix.
func isHTTPURL(s string) bool {
	return len(s) >= 4 && strings.EqualFold(s[:4], "http")
}

// Normalize rewrites every known attachment field on the record to its URL
// list and synthesizes the first-URL convenience field. This is the only
// boundary between the store's loose field shapes and the rest of the
// system; downstream code may assume attachment fields are []string.
func (r *Record) Normalize() {
	if r.Fields == nil {
		r.Fields = map[string]any{}
	}

	var first any
	for _, name := range attachmentFields {
		v, ok := r.Fields[name]
		if !ok {
			continue
		}
		urls := NormalizeAttachments(v)
		r.Fields[name] = urls
		if first == nil && len(urls) > 0 {
			first = urls[0]
		}
	}
	r.Fields[FirstURLField] = first
}

// PhotoURLs returns every attachment URL on the record, normalizing any
// field that has not passed through Normalize yet.
func PhotoURLs(r Record) []string {
	var urls []string
	for _, name := range attachmentFields {
		v, ok := r.Fields[name]
		if !ok {
			continue
		}
		if list, ok := v.([]string); ok {
			urls = append(urls, list...)
			continue
		}
		urls = append(urls, NormalizeAttachments(v)...)
	}
	return urls
}

// HasPhoto reports whether the record carries at least one attachment URL.
// This is the operational definition of "has a photo" used by every
// aggregation.
func HasPhoto(r Record) bool {
	return len(PhotoURLs(r)) > 0
}

// TotalPhotoCount sums attachment URL counts across records.
func TotalPhotoCount(records []Record) int {
	total := 0
	for _, r := range records {
		total += len(PhotoURLs(r))
	}
	return total
}
