package exchange

import (
	"encoding/json"
	"math"
	"testing"
)

func TestUnwrap(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"bare object", `{"equity": 100}`, `{"equity": 100}`},
		{"data envelope", `{"data": {"equity": 100}}`, `{"equity": 100}`},
		{"data list envelope", `{"data": [1, 2]}`, `[1, 2]`},
		{"empty data ignored", `{"data": null, "equity": 5}`, `{"data": null, "equity": 5}`},
		{"array passthrough", `[{"a": 1}]`, `[{"a": 1}]`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Unwrap(json.RawMessage(tt.input))
			if string(got) != tt.expected {
				t.Errorf("Unwrap(%s) = %s, expected %s", tt.input, got, tt.expected)
			}
		})
	}
}

func TestListItems(t *testing.T) {
	items := ListItems(json.RawMessage(`{"data": [{"id": 1}, {"id": 2}]}`))
	if len(items) != 2 {
		t.Fatalf("expected 2 items, got %d", len(items))
	}

	if got := ListItems(json.RawMessage(`{"id": 1}`)); got != nil {
		t.Errorf("expected nil for non-array payload, got %v", got)
	}
}

func TestParseBalance(t *testing.T) {
	tests := []struct {
		name        string
		input       string
		expectOK    bool
		equity      float64
		marginRatio float64
	}{
		{
			name:        "plain object",
			input:       `{"equity": 1000, "availableBalance": 400, "usedMargin": 600, "marginRatio": 0.6}`,
			expectOK:    true,
			equity:      1000,
			marginRatio: 0.6,
		},
		{
			name:        "envelope with string numbers",
			input:       `{"data": {"totalEquity": "2500.5", "usedMargin": "500.1"}}`,
			expectOK:    true,
			equity:      2500.5,
			marginRatio: 500.1 / 2500.5,
		},
		{
			name:        "list of one",
			input:       `{"data": [{"equity": 300, "marginRatio": 0.25}]}`,
			expectOK:    true,
			equity:      300,
			marginRatio: 0.25,
		},
		{
			name:        "derived margin ratio",
			input:       `{"equity": 200, "usedMargin": 50}`,
			expectOK:    true,
			equity:      200,
			marginRatio: 0.25,
		},
		{
			name:     "missing equity",
			input:    `{"availableBalance": 100}`,
			expectOK: false,
		},
		{
			name:     "empty payload",
			input:    ``,
			expectOK: false,
		},
		{
			name:     "invalid json",
			input:    `{broken`,
			expectOK: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			summary, ok := ParseBalance(json.RawMessage(tt.input))
			if ok != tt.expectOK {
				t.Fatalf("ParseBalance ok = %v, expected %v", ok, tt.expectOK)
			}
			if !ok {
				return
			}
			if summary.Equity != tt.equity {
				t.Errorf("Equity = %v, expected %v", summary.Equity, tt.equity)
			}
			if math.Abs(summary.MarginRatio-tt.marginRatio) > 1e-9 {
				t.Errorf("MarginRatio = %v, expected %v", summary.MarginRatio, tt.marginRatio)
			}
		})
	}
}
