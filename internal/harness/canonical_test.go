package harness

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMarshalCanonical(t *testing.T) {
	tests := []struct {
		name string
		in   any
		want string
	}{
		{"sorted keys", map[string]any{"b": 1, "a": int64(2), "c": true}, `{"a":2,"b":1,"c":true}`},
		{"nested", map[string]any{"x": []any{"s", false, map[string]any{"z": 1, "y": 2}}}, `{"x":["s",false,{"y":2,"z":1}]}`},
		{"string slice", []string{"p2", "p1"}, `["p2","p1"]`},
		{"no html escaping", "<a&b>", `"<a&b>"`},
		{"control characters", "a\nb\t\x01\"\\", `"a\nb\t\u0001\"\\"`},
		{"nfc", "e\u0301", "\"\u00e9\""},
		{"line separator kept", "a\u2028b", "\"a\u2028b\""},
		{"empty object", map[string]any{}, `{}`},
		// U+1F600 encodes as a surrogate pair starting 0xD83D, below U+FF61.
		{"utf16 order", map[string]any{"\uff61": 1, "\U0001F600": 2}, "{\"\U0001F600\":2,\"\uff61\":1}"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := MarshalCanonical(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, string(got))
		})
	}
}

func TestMarshalCanonical_Rejects(t *testing.T) {
	tests := []struct {
		name string
		in   any
	}{
		{"null", nil},
		{"float", 1.5},
		{"nested float", map[string]any{"gain": 0.5}},
		{"unsupported", struct{}{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := MarshalCanonical(tt.in)
			assert.Error(t, err)
		})
	}
}

func TestMarshalTrace_OmitsEmptyFields(t *testing.T) {
	result := NewResult()
	result.Trace = []TraceEvent{
		{Type: EventPoll, AtMS: 0, Seq: 1, Outcome: "missed", MissCount: 1},
		{Type: EventAction, AtMS: 5, Seq: 2, Action: "stop"},
	}

	got, err := MarshalTrace("x", result)
	require.NoError(t, err)
	assert.Equal(t,
		`{"scenario_name":"x","trace":[{"at_ms":0,"miss_count":1,"outcome":"missed","seq":1,"type":"poll"},{"action":"stop","at_ms":5,"seq":2,"type":"action"}]}`,
		string(got))
}
