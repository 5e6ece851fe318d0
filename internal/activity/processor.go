package activity

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/saaga0h/jeeves-anticipation/pkg/mqtt"
)

// Processor parses inbound activity messages
type Processor struct {
	logger *slog.Logger
	now    func() time.Time
}

// NewProcessor creates a new activity message processor
func NewProcessor(logger *slog.Logger, now func() time.Time) *Processor {
	if now == nil {
		now = time.Now
	}
	return &Processor{
		logger: logger,
		now:    now,
	}
}

// ActivityData is the payload of an activity message. Messages are wrapped
// in {"data": {...}}; an unwrapped object is accepted as well.
type ActivityData struct {
	DurationSeconds *float64               `json:"duration_seconds"`
	Intensity       *float64               `json:"intensity"`
	Context         map[string]interface{} `json:"context,omitempty"`
	Timestamp       string                 `json:"timestamp,omitempty"`
}

// ParseMessage parses an MQTT message into an activity event. The event is
// not validated here; Store.Record does that.
// Topic pattern: anticipation/activity/{activity_type}
func (p *Processor) ParseMessage(topic string, payload []byte) (Event, error) {
	activityType, ok := mqtt.LastLevel(topic)
	if !ok {
		p.logger.Warn("Invalid topic format", "topic", topic)
		return Event{}, fmt.Errorf("invalid topic format: %s (expected anticipation/activity/{type})", topic)
	}

	var wrapper struct {
		Data *ActivityData `json:"data"`
	}
	if err := json.Unmarshal(payload, &wrapper); err != nil {
		p.logger.Error("Failed to parse JSON payload", "topic", topic, "error", err)
		return Event{}, fmt.Errorf("failed to parse JSON: %w", err)
	}

	data := wrapper.Data
	if data == nil {
		// Fall back to the raw object when there is no data field
		data = &ActivityData{}
		if err := json.Unmarshal(payload, data); err != nil {
			return Event{}, fmt.Errorf("failed to parse JSON: %w", err)
		}
	}

	if data.Intensity == nil {
		return Event{}, fmt.Errorf("%w: intensity is required", ErrInvalidActivity)
	}

	event := Event{
		Type:      activityType,
		Context:   data.Context,
		Intensity: *data.Intensity,
		Timestamp: p.now(),
	}
	if data.DurationSeconds != nil {
		event.DurationSeconds = *data.DurationSeconds
	}
	if data.Timestamp != "" {
		ts, err := time.Parse(time.RFC3339Nano, data.Timestamp)
		if err != nil {
			return Event{}, fmt.Errorf("%w: bad timestamp %q", ErrInvalidActivity, data.Timestamp)
		}
		event.Timestamp = ts
	}

	p.logger.Debug("Parsed activity message",
		"activity_type", activityType,
		"duration_seconds", event.DurationSeconds,
		"intensity", event.Intensity)

	return event, nil
}
