package mqtt

import (
	"fmt"
	"strings"
)

// Topic constants for the anticipation agent
const (
	// Inbound activity and feedback (wildcard on the last level)
	TopicActivity = "anticipation/activity/+"
	TopicFeedback = "anticipation/feedback/+"

	// Virtual time configuration shared with the rest of the platform
	TopicTimeConfig = "automation/test/time_config"

	// Outbound
	TopicSuggestionBase = "anticipation/suggestions"
	TopicProfile        = "anticipation/profile"
)

// ActivityTopic constructs the inbound topic for an activity type
// Pattern: anticipation/activity/{activity_type}
func ActivityTopic(activityType string) string {
	return fmt.Sprintf("anticipation/activity/%s", activityType)
}

// FeedbackTopic constructs the inbound topic for a feedback kind
// Pattern: anticipation/feedback/{kind}
func FeedbackTopic(kind string) string {
	return fmt.Sprintf("anticipation/feedback/%s", kind)
}

// SuggestionTopic constructs the outbound topic for admitted suggestions of a category
// Pattern: anticipation/suggestions/{category}
func SuggestionTopic(category string) string {
	return fmt.Sprintf("%s/%s", TopicSuggestionBase, category)
}

// LastLevel returns the final level of a topic, e.g. the activity type of
// anticipation/activity/coding. The second return is false for topics with
// fewer than three levels.
func LastLevel(topic string) (string, bool) {
	parts := strings.Split(topic, "/")
	if len(parts) < 3 || parts[len(parts)-1] == "" {
		return "", false
	}
	return parts[len(parts)-1], true
}

// TopicMatches reports whether topic matches an MQTT filter with + and # wildcards
func TopicMatches(filter, topic string) bool {
	f := strings.Split(filter, "/")
	t := strings.Split(topic, "/")
	for i, level := range f {
		if level == "#" {
			return true
		}
		if i >= len(t) {
			return false
		}
		if level != "+" && level != t[i] {
			return false
		}
	}
	return len(f) == len(t)
}
