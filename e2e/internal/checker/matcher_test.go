package checker

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMatches(t *testing.T) {
	tests := []struct {
		name     string
		actual   interface{}
		expected interface{}
		want     bool
	}{
		{"equal strings", "wellbeing", "wellbeing", true},
		{"different strings", "wellbeing", "productivity", false},
		{"int against float", 3.0, 3, true},
		{"regex", "Take a short break", "~(?i)break~", true},
		{"regex miss", "Stretch", "~break~", false},
		{"greater than", 0.8, ">0.5", true},
		{"greater or equal fails", 0.4, ">=0.5", false},
		{"less than", 2.0, "<3", true},
		{"wildcard", []interface{}{"x"}, "*", true},
		{"bool", true, true, true},
		{"nil", nil, nil, true},
		{"number against string", "3", 3, false},
		{
			"map subset",
			map[string]interface{}{"category": "wellbeing", "final_score": 0.71, "title": "Break"},
			map[string]interface{}{"category": "wellbeing", "final_score": ">0.5"},
			true,
		},
		{
			"map missing key",
			map[string]interface{}{"category": "wellbeing"},
			map[string]interface{}{"source": "template"},
			false,
		},
		{
			"list contains",
			[]interface{}{"dismiss", "start_break", "snooze"},
			[]interface{}{"start_break"},
			true,
		},
		{
			"list missing element",
			[]interface{}{"dismiss"},
			[]interface{}{"start_break"},
			false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, reason := Matches(tt.actual, tt.expected)
			assert.Equal(t, tt.want, got, reason)
			if !tt.want {
				assert.NotEmpty(t, reason)
			}
		})
	}
}

func TestMatchPayload(t *testing.T) {
	ok, reason := MatchPayload([]byte(`{"category":"wellbeing","actions":["start_break"]}`),
		map[string]interface{}{"actions": []interface{}{"start_break"}})
	assert.True(t, ok, reason)

	ok, reason = MatchPayload([]byte(`not json`), map[string]interface{}{"a": 1})
	assert.False(t, ok)
	assert.Contains(t, reason, "not JSON")
}
