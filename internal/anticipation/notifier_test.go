package anticipation

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/saaga0h/jeeves-anticipation/internal/learning"
	"github.com/saaga0h/jeeves-anticipation/internal/suggestion"
	"github.com/saaga0h/jeeves-anticipation/pkg/mqtt"
)

func TestMQTTNotifier_Suggestions(t *testing.T) {
	client := mqtt.NewMockClient()
	n := NewMQTTNotifier(client, testLogger())

	err := n.NotifySuggestions(context.Background(), []suggestion.Suggestion{
		testSuggestion(suggestion.CategoryWellbeing, "Take a break", 0.9, testStart),
		testSuggestion(suggestion.CategoryLearning, "Review notes", 0.6, testStart),
	})
	require.NoError(t, err)

	published := client.Published()
	require.Len(t, published, 2)
	assert.Equal(t, "anticipation/suggestions/wellbeing", published[0].Topic)
	assert.Equal(t, "anticipation/suggestions/learning", published[1].Topic)
	assert.False(t, published[0].Retained)

	var decoded suggestion.Suggestion
	require.NoError(t, json.Unmarshal(published[0].Payload, &decoded))
	assert.Equal(t, "Take a break", decoded.Title)
	assert.Equal(t, 0.9, decoded.FinalScore)
}

func TestMQTTNotifier_Profile(t *testing.T) {
	client := mqtt.NewMockClient()
	n := NewMQTTNotifier(client, testLogger())

	require.NoError(t, n.NotifyProfile(context.Background(), learning.DefaultProfile()))

	published := client.Published()
	require.Len(t, published, 1)
	assert.Equal(t, mqtt.TopicProfile, published[0].Topic)
	assert.True(t, published[0].Retained)

	var decoded learning.Profile
	require.NoError(t, json.Unmarshal(published[0].Payload, &decoded))
	assert.Equal(t, learning.DefaultProfile(), decoded)
}

func TestMQTTNotifier_PublishFailure(t *testing.T) {
	client := mqtt.NewMockClient()
	client.PublishErr = errors.New("not connected")
	n := NewMQTTNotifier(client, testLogger())

	err := n.NotifySuggestions(context.Background(), []suggestion.Suggestion{
		testSuggestion(suggestion.CategoryWellbeing, "Take a break", 0.9, testStart),
	})
	assert.Error(t, err)
	assert.Error(t, n.NotifyProfile(context.Background(), learning.DefaultProfile()))
}
