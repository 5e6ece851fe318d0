package scenario

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const validScenario = `
name: afternoon-slump
description: long coding session triggers a break suggestion
test_mode:
  virtual_start: "2025-10-15T14:00:00Z"
  time_scale: 60
events:
  - time: 0
    activity: coding
    data:
      duration_seconds: 5400
      intensity: 0.9
    description: deep work
  - time: 120
    feedback: thumbs
    data:
      positive: true
    description: user likes it
expectations:
  - time: 180
    topic: anticipation/suggestions/+
    payload:
      category: wellbeing
    description: break suggested
`

func TestLoadScenarioFromBytes(t *testing.T) {
	s, err := LoadScenarioFromBytes([]byte(validScenario))
	require.NoError(t, err)

	assert.Equal(t, "afternoon-slump", s.Name)
	require.Len(t, s.Events, 2)
	assert.Equal(t, "anticipation/activity/coding", s.Events[0].Topic())
	assert.Equal(t, "anticipation/feedback/thumbs", s.Events[1].Topic())
	assert.Equal(t, 0.9, s.Events[0].Data["intensity"])
	require.NotNil(t, s.TestMode)
	assert.Equal(t, 60, s.TestMode.TimeScale)
	require.Len(t, s.Expectations, 1)
	assert.Equal(t, "wellbeing", s.Expectations[0].Payload["category"])
}

func TestLoadScenario(t *testing.T) {
	path := filepath.Join(t.TempDir(), "scenario.yaml")
	require.NoError(t, os.WriteFile(path, []byte(validScenario), 0o644))

	s, err := LoadScenario(path)
	require.NoError(t, err)
	assert.Equal(t, "afternoon-slump", s.Name)

	_, err = LoadScenario(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	valid := func() *Scenario {
		return &Scenario{
			Name: "s",
			Events: []Event{
				{Activity: "coding", Data: map[string]interface{}{"intensity": 0.5}},
			},
		}
	}

	tests := []struct {
		name   string
		mutate func(*Scenario)
		errMsg string
	}{
		{"valid", func(*Scenario) {}, ""},
		{"no name", func(s *Scenario) { s.Name = "" }, "name is required"},
		{"no events", func(s *Scenario) { s.Events = nil }, "at least one event"},
		{"negative time", func(s *Scenario) { s.Events[0].Time = -1 }, "negative"},
		{"both kinds", func(s *Scenario) { s.Events[0].Feedback = "thumbs" }, "exactly one"},
		{"unknown feedback", func(s *Scenario) {
			s.Events[0] = Event{Feedback: "clap"}
		}, "unknown feedback kind"},
		{"missing intensity", func(s *Scenario) { s.Events[0].Data = nil }, "intensity"},
		{"expectation without topic", func(s *Scenario) {
			s.Expectations = []Expectation{{Time: 1}}
		}, "topic is required"},
		{"bad virtual start", func(s *Scenario) {
			s.TestMode = &TestModeConfig{VirtualStart: "yesterday", TimeScale: 1}
		}, "virtual_start"},
		{"bad scale", func(s *Scenario) {
			s.TestMode = &TestModeConfig{VirtualStart: "2025-10-15T14:00:00Z"}
		}, "time_scale"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := valid()
			tt.mutate(s)
			err := Validate(s)
			if tt.errMsg == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}
}
