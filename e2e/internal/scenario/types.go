package scenario

import (
	"time"

	"github.com/saaga0h/jeeves-anticipation/pkg/mqtt"
)

// Scenario is a scripted run against a live anticipation agent: activity
// and feedback messages published on a timeline, followed by checks on what
// the agent published back.
type Scenario struct {
	Name         string          `yaml:"name"`
	Description  string          `yaml:"description"`
	TestMode     *TestModeConfig `yaml:"test_mode,omitempty"`
	Events       []Event         `yaml:"events"`
	Expectations []Expectation   `yaml:"expectations"`
}

// TestModeConfig is published retained on the time configuration topic
// before any event so the agent runs on virtual time
type TestModeConfig struct {
	VirtualStart string `yaml:"virtual_start"` // RFC3339
	TimeScale    int    `yaml:"time_scale"`
}

// Event is one message to publish. Exactly one of Activity or Feedback is set.
type Event struct {
	Time        int                    `yaml:"time"`               // Seconds from start
	Activity    string                 `yaml:"activity,omitempty"` // e.g. "coding"
	Feedback    string                 `yaml:"feedback,omitempty"` // thumbs, edit, rating or response
	Data        map[string]interface{} `yaml:"data"`
	Description string                 `yaml:"description"`
}

// Topic returns the inbound topic the event is published on
func (e Event) Topic() string {
	if e.Activity != "" {
		return mqtt.ActivityTopic(e.Activity)
	}
	return mqtt.FeedbackTopic(e.Feedback)
}

// Expectation is checked against every message captured up to its time.
// Topic may contain MQTT wildcards. With Absent set, the check passes only
// when no captured message matches.
type Expectation struct {
	Time        int                    `yaml:"time"` // Seconds from start
	Topic       string                 `yaml:"topic"`
	Payload     map[string]interface{} `yaml:"payload,omitempty"`
	Absent      bool                   `yaml:"absent,omitempty"`
	Description string                 `yaml:"description"`
}

// ExpectationResult is the outcome of one expectation
type ExpectationResult struct {
	Expectation Expectation
	Passed      bool
	Reason      string
	MatchedOn   string // topic of the matching message
}

// TestResult is the outcome of a scenario run
type TestResult struct {
	Scenario     *Scenario
	StartTime    time.Time
	EndTime      time.Time
	Passed       bool
	PassedCount  int
	FailedCount  int
	Expectations []ExpectationResult
}
