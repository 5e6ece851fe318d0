package mqtt

import "testing"

func TestLastLevel(t *testing.T) {
	tests := []struct {
		topic  string
		want   string
		wantOK bool
	}{
		{"anticipation/activity/coding", "coding", true},
		{"anticipation/feedback/edit", "edit", true},
		{"anticipation/activity/", "", false},
		{"invalid/topic", "", false},
	}

	for _, tt := range tests {
		got, ok := LastLevel(tt.topic)
		if got != tt.want || ok != tt.wantOK {
			t.Errorf("LastLevel(%q) = %q, %v; want %q, %v", tt.topic, got, ok, tt.want, tt.wantOK)
		}
	}
}

func TestTopicBuilders(t *testing.T) {
	if got := ActivityTopic("writing"); got != "anticipation/activity/writing" {
		t.Errorf("ActivityTopic() = %s", got)
	}
	if got := FeedbackTopic("rating"); got != "anticipation/feedback/rating" {
		t.Errorf("FeedbackTopic() = %s", got)
	}
	if got := SuggestionTopic("wellbeing"); got != "anticipation/suggestions/wellbeing" {
		t.Errorf("SuggestionTopic() = %s", got)
	}
}

func TestTopicMatches(t *testing.T) {
	tests := []struct {
		filter   string
		topic    string
		expected bool
	}{
		{"anticipation/activity/+", "anticipation/activity/coding", true},
		{"anticipation/activity/+", "anticipation/activity", false},
		{"anticipation/activity/+", "anticipation/activity/coding/extra", false},
		{"anticipation/#", "anticipation/feedback/edit", true},
		{"automation/test/time_config", "automation/test/time_config", true},
		{"automation/test/time_config", "automation/test/other", false},
	}

	for _, tt := range tests {
		if got := TopicMatches(tt.filter, tt.topic); got != tt.expected {
			t.Errorf("TopicMatches(%q, %q) = %v; want %v", tt.filter, tt.topic, got, tt.expected)
		}
	}
}
