package sql

import (
	libinjection "github.com/corazawaf/libinjection-go"
)

// InjectionCheckResult describes an injection pattern detected in a value
// extracted from the question text.
type InjectionCheckResult struct {
	IsSQLi      bool   // True if SQL injection pattern detected
	Fingerprint string // libinjection fingerprint of the detected pattern
	Name        string // Which extracted value failed the check
	Value       string // The value that was checked
}

// CheckValueForInjection uses libinjection to detect SQL injection patterns
// in a question-derived value before it is interpolated into a canned
// template. Returns nil when the value is clean.
//
// Example:
//
//	result := CheckValueForInjection("status", "'; DROP TABLE Applications--")
//	// result.IsSQLi == true, result.Fingerprint == "s&1c" (or similar)
func CheckValueForInjection(name, value string) *InjectionCheckResult {
	if value == "" {
		return nil
	}

	isSQLi, fingerprint := libinjection.IsSQLi(value)
	if isSQLi {
		return &InjectionCheckResult{
			IsSQLi:      true,
			Fingerprint: string(fingerprint),
			Name:        name,
			Value:       value,
		}
	}

	return nil
}
