package anticipation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/saaga0h/jeeves-anticipation/internal/learning"
	"github.com/saaga0h/jeeves-anticipation/internal/suggestion"
	"github.com/saaga0h/jeeves-anticipation/pkg/mqtt"
)

// MQTTNotifier publishes admitted suggestions per category and the profile
// as a retained message
type MQTTNotifier struct {
	client mqtt.Publisher
	logger *slog.Logger
}

// NewMQTTNotifier creates a notifier publishing through client
func NewMQTTNotifier(client mqtt.Publisher, logger *slog.Logger) *MQTTNotifier {
	return &MQTTNotifier{
		client: client,
		logger: logger,
	}
}

// NotifySuggestions publishes each suggestion to anticipation/suggestions/{category}
func (n *MQTTNotifier) NotifySuggestions(ctx context.Context, suggestions []suggestion.Suggestion) error {
	var errs []error
	for _, s := range suggestions {
		if err := ctx.Err(); err != nil {
			return err
		}
		topic := mqtt.SuggestionTopic(string(s.Category))
		if err := mqtt.PublishJSON(n.client, topic, false, s); err != nil {
			errs = append(errs, fmt.Errorf("publish suggestion %s: %w", s.ID, err))
			continue
		}
		n.logger.Debug("Published suggestion", "topic", topic, "id", s.ID, "title", s.Title, "score", s.FinalScore)
	}
	return errors.Join(errs...)
}

// NotifyProfile publishes the profile to anticipation/profile
func (n *MQTTNotifier) NotifyProfile(ctx context.Context, profile learning.Profile) error {
	if err := mqtt.PublishJSON(n.client, mqtt.TopicProfile, true, profile); err != nil {
		return fmt.Errorf("publish profile: %w", err)
	}
	return nil
}
