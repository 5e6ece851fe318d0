package anticipation

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/saaga0h/jeeves-anticipation/internal/activity"
	"github.com/saaga0h/jeeves-anticipation/internal/feedback"
	"github.com/saaga0h/jeeves-anticipation/pkg/config"
	"github.com/saaga0h/jeeves-anticipation/pkg/mqtt"
)

// saveTimeout bounds a single state save or load
const saveTimeout = 5 * time.Second

// restoreCheckpoints is how many older checkpoints are tried when the
// current state cannot be restored
const restoreCheckpoints = 5

// StateStore persists serialized service state
type StateStore interface {
	Save(ctx context.Context, data []byte) error
	Load(ctx context.Context) (data []byte, found bool, err error)
	Checkpoints(ctx context.Context, n int) ([][]byte, error)
}

// Agent connects the service to MQTT and keeps its state checkpointed
type Agent struct {
	mqtt        mqtt.Client
	store       StateStore
	service     *Service
	timeManager *TimeManager
	processor   *activity.Processor
	cfg         *config.Config
	logger      *slog.Logger

	// set once state was restored, so a failed start never overwrites saved state
	started atomic.Bool
}

// NewAgent creates an agent. store may be nil, which disables persistence.
func NewAgent(mqttClient mqtt.Client, store StateStore, service *Service, timeManager *TimeManager, cfg *config.Config, logger *slog.Logger) *Agent {
	return &Agent{
		mqtt:        mqttClient,
		store:       store,
		service:     service,
		timeManager: timeManager,
		processor:   activity.NewProcessor(logger, timeManager.Now),
		cfg:         cfg,
		logger:      logger,
	}
}

// Start connects, restores state, starts the tick loop and checkpoints state
// until ctx is cancelled
func (a *Agent) Start(ctx context.Context) error {
	a.logger.Info("Starting anticipation agent", "user_id", a.cfg.UserID)

	if err := a.mqtt.Connect(ctx); err != nil {
		return fmt.Errorf("failed to connect to MQTT: %w", err)
	}

	if err := a.timeManager.ConfigureFromMQTT(a.mqtt); err != nil {
		// Not fatal - continue without test mode support
		a.logger.Warn("Failed to subscribe to test mode config", "error", err)
	}

	// Restored state replaces feedback, so it must be in place before any arrives
	a.restoreState(ctx)

	subscriptions := map[string]mqtt.MessageHandler{
		mqtt.TopicActivity: a.handleActivity,
		mqtt.TopicFeedback: a.handleFeedback,
	}
	for topic, handler := range subscriptions {
		if err := a.mqtt.Subscribe(topic, 0, handler); err != nil {
			return fmt.Errorf("failed to subscribe to %s: %w", topic, err)
		}
	}
	a.logger.Info("Subscribed to topics", "topics", []string{mqtt.TopicActivity, mqtt.TopicFeedback})

	a.started.Store(true)

	if err := a.service.Start(a.cfg.TickInterval()); err != nil {
		return fmt.Errorf("failed to start orchestrator: %w", err)
	}

	a.runCheckpoints(ctx)
	return nil
}

// Stop halts ticking, saves a final checkpoint and disconnects
func (a *Agent) Stop() {
	a.logger.Info("Stopping anticipation agent")
	a.service.Stop()
	if a.started.Load() {
		a.saveState(context.Background())
	}
	a.mqtt.Disconnect()
}

func (a *Agent) runCheckpoints(ctx context.Context) {
	interval := time.Duration(a.cfg.StateSaveIntervalSec) * time.Second
	if a.store == nil || interval <= 0 {
		<-ctx.Done()
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			a.saveState(ctx)
		}
	}
}

func (a *Agent) restoreState(ctx context.Context) {
	if a.store == nil {
		return
	}

	ctx, cancel := context.WithTimeout(ctx, saveTimeout)
	defer cancel()

	data, found, err := a.store.Load(ctx)
	if err != nil {
		a.logger.Error("Failed to load state, starting fresh", "error", err)
		return
	}
	if !found {
		a.logger.Info("No saved state, starting fresh")
		return
	}
	err = a.service.LoadState(data)
	if err == nil {
		return
	}
	a.logger.Error("Failed to restore state, trying checkpoints", "error", err)

	checkpoints, err := a.store.Checkpoints(ctx, restoreCheckpoints)
	if err != nil {
		a.logger.Error("Failed to load checkpoints, starting fresh", "error", err)
		return
	}
	for i, cp := range checkpoints {
		if err := a.service.LoadState(cp); err != nil {
			a.logger.Debug("Checkpoint unusable", "index", i, "error", err)
			continue
		}
		a.logger.Warn("Restored state from checkpoint", "index", i)
		return
	}
	a.logger.Warn("No usable checkpoint, starting fresh", "checkpoints", len(checkpoints))
}

// saveState logs failures; in-memory state keeps operating without persistence
func (a *Agent) saveState(ctx context.Context) {
	if a.store == nil {
		return
	}

	data, err := a.service.SaveState()
	if err != nil {
		a.logger.Error("Failed to serialize state", "error", err)
		return
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), saveTimeout)
	defer cancel()

	if err := a.store.Save(ctx, data); err != nil {
		a.logger.Error("Failed to save state", "error", err)
		return
	}
	a.logger.Debug("State checkpoint saved", "bytes", len(data), "test_mode", a.timeManager.IsTestMode())
}

func (a *Agent) handleActivity(msg mqtt.Message) {
	event, err := a.processor.ParseMessage(msg.Topic(), msg.Payload())
	if err != nil {
		a.logger.Warn("Discarding activity message", "topic", msg.Topic(), "error", err)
		return
	}

	if _, err := a.service.RecordEvent(event); err != nil {
		a.logger.Warn("Rejected activity", "topic", msg.Topic(), "error", err)
	}
}

func (a *Agent) handleFeedback(msg mqtt.Message) {
	m, err := feedback.ParseMessage(a.logger, msg.Topic(), msg.Payload())
	if err != nil {
		a.logger.Warn("Discarding feedback message", "topic", msg.Topic(), "error", err)
		return
	}

	switch m.Type {
	case feedback.MessageThumbs:
		_, err = a.service.RecordThumbs(*m.Positive, m.SuggestionID, m.Context)
	case feedback.MessageEdit:
		_, err = a.service.SubmitEdit(context.Background(), m.ItemKind, m.ItemID, m.Original, m.Edited, m.Context)
	case feedback.MessageRating:
		_, err = a.service.RecordRating(*m.Rating, feedback.Kind(m.RatingKind), m.SuggestionID, m.Comment, m.Context)
	case feedback.MessageResponse:
		err = a.service.RespondToSuggestion(m.SuggestionID, Action(m.Action), m.Rating)
	}

	if err != nil {
		a.logger.Warn("Failed to apply feedback", "type", m.Type, "suggestion_id", m.SuggestionID, "error", err)
	}
}
