package feedback

import (
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/saaga0h/jeeves-anticipation/pkg/mqtt"
)

// Message kinds carried in the last topic level of anticipation/feedback/{kind}
const (
	MessageThumbs   = "thumbs"
	MessageEdit     = "edit"
	MessageRating   = "rating"
	MessageResponse = "response"
)

// Message is an inbound feedback message
type Message struct {
	Type         string                 `json:"-"`
	SuggestionID string                 `json:"suggestion_id,omitempty"`
	Positive     *bool                  `json:"positive,omitempty"`
	Action       string                 `json:"action,omitempty"`
	Rating       *float64               `json:"rating,omitempty"`
	RatingKind   string                 `json:"rating_kind,omitempty"`
	Original     string                 `json:"original,omitempty"`
	Edited       string                 `json:"edited,omitempty"`
	ItemKind     string                 `json:"item_kind,omitempty"`
	ItemID       string                 `json:"item_id,omitempty"`
	Comment      string                 `json:"comment,omitempty"`
	Context      map[string]interface{} `json:"context,omitempty"`
}

// ParseMessage parses an MQTT feedback message and checks the fields its type requires
func ParseMessage(logger *slog.Logger, topic string, payload []byte) (Message, error) {
	msgType, ok := mqtt.LastLevel(topic)
	if !ok {
		logger.Warn("Invalid topic format", "topic", topic)
		return Message{}, fmt.Errorf("invalid topic format: %s (expected anticipation/feedback/{kind})", topic)
	}

	var wrapper struct {
		Data *Message `json:"data"`
	}
	if err := json.Unmarshal(payload, &wrapper); err != nil {
		return Message{}, fmt.Errorf("failed to parse JSON: %w", err)
	}
	msg := wrapper.Data
	if msg == nil {
		msg = &Message{}
		if err := json.Unmarshal(payload, msg); err != nil {
			return Message{}, fmt.Errorf("failed to parse JSON: %w", err)
		}
	}
	msg.Type = msgType

	switch msgType {
	case MessageThumbs:
		if msg.Positive == nil {
			return Message{}, fmt.Errorf("thumbs message missing positive")
		}
	case MessageEdit:
		if msg.Original == "" && msg.Edited == "" {
			return Message{}, fmt.Errorf("edit message missing content")
		}
	case MessageRating:
		if msg.Rating == nil {
			return Message{}, fmt.Errorf("%w: rating message missing rating", ErrInvalidRating)
		}
		if msg.RatingKind == "" {
			msg.RatingKind = string(KindRating)
		}
		if _, err := ParseKind(msg.RatingKind); err != nil {
			return Message{}, err
		}
	case MessageResponse:
		if msg.SuggestionID == "" || msg.Action == "" {
			return Message{}, fmt.Errorf("response message needs suggestion_id and action")
		}
	default:
		return Message{}, fmt.Errorf("%w: unsupported message type %q", ErrInvalidKind, msgType)
	}

	return *msg, nil
}
