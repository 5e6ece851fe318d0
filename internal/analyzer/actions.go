package analyzer

var idleActions = []string{
	"Review your goals for today",
	"Pick the first task to start",
	"Block time for focused work",
}

var activityActions = map[string][]string{
	"coding":      {"Commit work in progress", "Run the test suite"},
	"writing":     {"Outline the next section", "Save a draft"},
	"designing":   {"Share a draft for early feedback"},
	"researching": {"Summarize findings so far", "Bookmark key sources"},
	"planning":    {"Turn plan items into tasks"},
	"meeting":     {"Write down action items"},
}

// suggestActions applies the action rules in a fixed order, de-duplicating
// and capping the result
func suggestActions(s Snapshot, limit int) []string {
	var actions []string

	switch {
	case s.FocusLevel > 0.8:
		actions = append(actions, "Silence notifications to protect this focus block")
	case s.FocusLevel < 0.3:
		actions = append(actions, "Try a 25 minute focus sprint")
	}

	switch {
	case s.ProductivityScore < 0.3:
		actions = append(actions, "Pick one high-impact task to start")
	case s.ProductivityScore > 0.7:
		actions = append(actions, "Capture progress notes while momentum is high")
	}

	if s.TimeInStateSeconds > 3600 {
		actions = append(actions, "Take a short break")
	}

	actions = append(actions, activityActions[s.PrimaryActivity]...)

	if s.TransitionProbability > 0.6 {
		actions = append(actions, "Batch similar tasks to reduce context switching")
	}

	return dedupe(actions, limit)
}

func dedupe(values []string, limit int) []string {
	seen := make(map[string]bool, len(values))
	out := make([]string, 0, limit)
	for _, v := range values {
		if seen[v] {
			continue
		}
		seen[v] = true
		out = append(out, v)
		if len(out) == limit {
			break
		}
	}
	return out
}
