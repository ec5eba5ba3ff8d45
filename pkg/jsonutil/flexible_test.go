package jsonutil

import (
	"reflect"
	"testing"
)

func TestStringValue(t *testing.T) {
	tests := []struct {
		name  string
		input any
		want  string
	}{
		{
			name:  "string value",
			input: "hello",
			want:  "hello",
		},
		{
			name:  "integer value",
			input: float64(42),
			want:  "42",
		},
		{
			name:  "float value",
			input: 3.14,
			want:  "3.14",
		},
		{
			name:  "boolean true",
			input: true,
			want:  "true",
		},
		{
			name:  "nil value",
			input: nil,
			want:  "",
		},
		{
			name:  "large integer preserves precision",
			input: float64(9007199254740992),
			want:  "9007199254740992",
		},
		{
			name:  "negative integer",
			input: float64(-7),
			want:  "-7",
		},
		{
			name:  "zero",
			input: float64(0),
			want:  "0",
		},
		{
			name:  "map falls back to JSON encoding",
			input: map[string]any{"key": "value"},
			want:  `{"key":"value"}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := StringValue(tt.input); got != tt.want {
				t.Errorf("StringValue(%v) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestFlexibleStrings(t *testing.T) {
	tests := []struct {
		name  string
		input any
		want  []string
	}{
		{
			name:  "nil yields nil",
			input: nil,
			want:  nil,
		},
		{
			name:  "scalar string becomes single element",
			input: "Jane",
			want:  []string{"Jane"},
		},
		{
			name:  "lookup-style array of strings",
			input: []any{"Jane", "Joe"},
			want:  []string{"Jane", "Joe"},
		},
		{
			name:  "array with mixed types coerces elements",
			input: []any{"Jane", float64(2), true},
			want:  []string{"Jane", "2", "true"},
		},
		{
			name:  "empty elements dropped",
			input: []any{"", "Jane", nil},
			want:  []string{"Jane"},
		},
		{
			name:  "typed string slice",
			input: []string{"MA", "CT"},
			want:  []string{"MA", "CT"},
		},
		{
			name:  "number scalar",
			input: float64(12),
			want:  []string{"12"},
		},
		{
			name:  "empty string yields nil",
			input: "",
			want:  nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := FlexibleStrings(tt.input)
			if len(got) == 0 && len(tt.want) == 0 {
				return
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("FlexibleStrings(%v) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

func TestFirstString(t *testing.T) {
	if got := FirstString([]any{"Jane", "Joe"}); got != "Jane" {
		t.Errorf("FirstString() = %q, want Jane", got)
	}
	if got := FirstString(nil); got != "" {
		t.Errorf("FirstString(nil) = %q, want empty", got)
	}
	if got := FirstString("solo"); got != "solo" {
		t.Errorf("FirstString(scalar) = %q, want solo", got)
	}
}
