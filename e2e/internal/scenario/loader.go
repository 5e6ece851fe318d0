package scenario

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

var feedbackKinds = map[string]bool{
	"thumbs":   true,
	"edit":     true,
	"rating":   true,
	"response": true,
}

// LoadScenario loads a scenario from a YAML file
func LoadScenario(filepath string) (*Scenario, error) {
	data, err := os.ReadFile(filepath)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return LoadScenarioFromBytes(data)
}

// LoadScenarioFromBytes parses and validates a scenario
func LoadScenarioFromBytes(data []byte) (*Scenario, error) {
	var scenario Scenario
	if err := yaml.Unmarshal(data, &scenario); err != nil {
		return nil, fmt.Errorf("failed to parse scenario YAML: %w", err)
	}

	if err := Validate(&scenario); err != nil {
		return nil, fmt.Errorf("scenario validation failed: %w", err)
	}

	return &scenario, nil
}

// Validate checks a scenario for structural errors
func Validate(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("scenario name is required")
	}

	if len(s.Events) == 0 {
		return fmt.Errorf("at least one event is required")
	}

	for i, e := range s.Events {
		if e.Time < 0 {
			return fmt.Errorf("event %d: time cannot be negative", i)
		}
		if (e.Activity == "") == (e.Feedback == "") {
			return fmt.Errorf("event %d: exactly one of 'activity' or 'feedback' is required", i)
		}
		if e.Feedback != "" && !feedbackKinds[e.Feedback] {
			return fmt.Errorf("event %d: unknown feedback kind %q", i, e.Feedback)
		}
		if e.Activity != "" {
			if _, ok := e.Data["intensity"]; !ok {
				return fmt.Errorf("event %d: activity events require data.intensity", i)
			}
		}
	}

	for i, exp := range s.Expectations {
		if exp.Time < 0 {
			return fmt.Errorf("expectation %d: time cannot be negative", i)
		}
		if exp.Topic == "" {
			return fmt.Errorf("expectation %d: topic is required", i)
		}
	}

	if tm := s.TestMode; tm != nil {
		if _, err := time.Parse(time.RFC3339, tm.VirtualStart); err != nil {
			return fmt.Errorf("test_mode.virtual_start: %w", err)
		}
		if tm.TimeScale < 1 {
			return fmt.Errorf("test_mode.time_scale must be at least 1")
		}
	}

	return nil
}
