package anticipation

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/saaga0h/jeeves-anticipation/internal/activity"
	"github.com/saaga0h/jeeves-anticipation/internal/analyzer"
	"github.com/saaga0h/jeeves-anticipation/internal/feedback"
	"github.com/saaga0h/jeeves-anticipation/internal/knowledge"
	"github.com/saaga0h/jeeves-anticipation/internal/learning"
	"github.com/saaga0h/jeeves-anticipation/internal/storage"
	"github.com/saaga0h/jeeves-anticipation/internal/suggestion"
	"github.com/saaga0h/jeeves-anticipation/pkg/config"
)

// StateVersion is the version of the serialized state format
const StateVersion = 1

// knowledgeTimeout bounds lookups made while generating suggestions
const knowledgeTimeout = 100 * time.Millisecond

// indexTimeout bounds indexing of edited content
const indexTimeout = 5 * time.Second

// Action is a user response to an active suggestion
type Action string

const (
	ActionAccept  Action = "accept"
	ActionReject  Action = "reject"
	ActionDismiss Action = "dismiss"
)

// ParseAction validates an action name
func ParseAction(s string) (Action, error) {
	switch a := Action(s); a {
	case ActionAccept, ActionReject, ActionDismiss:
		return a, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidAction, s)
}

// Dependencies are the optional collaborators of a Service
type Dependencies struct {
	// Now supplies the current time; the TimeManager in production
	Now func() time.Time

	Notifier Notifier
	Journal  Journal

	// Searcher enables the knowledge discovery template
	Searcher knowledge.Searcher
	// Indexer stores edited content for later knowledge lookups
	Indexer knowledge.Indexer

	// Templates replaces the configured template catalogue
	Templates []suggestion.Template
}

// Status is a point-in-time overview of the service
type Status struct {
	Orchestrator      OrchestratorStats `json:"orchestrator"`
	ActiveSuggestions int               `json:"active_suggestions"`
	Activities        int               `json:"activities"`
	Feedback          int               `json:"feedback"`
	Adaptations       int               `json:"adaptations"`
	Now               time.Time         `json:"now"`
}

// SavedState is the serialized form of everything that survives a restart
type SavedState struct {
	Version   int                      `json:"version"`
	SavedAt   time.Time                `json:"saved_at"`
	ActiveSet suggestion.ActiveSetState `json:"active_set"`
	Learning  learning.EngineState     `json:"learning"`
	Feedback  []feedback.Feedback      `json:"feedback"`
}

// Service is the entry point for callers of the anticipation core
type Service struct {
	activities   *activity.Store
	active       *suggestion.ActiveSet
	collector    *feedback.Collector
	engine       *learning.Engine
	orchestrator *Orchestrator
	templates    *suggestion.TemplateProducer

	templatesPath string
	notifier      Notifier
	journal       Journal
	indexer       knowledge.Indexer
	now           func() time.Time
	logger        *slog.Logger
}

// NewService builds the pipeline from configuration
func NewService(cfg *config.Config, deps Dependencies, logger *slog.Logger) (*Service, error) {
	loc, err := cfg.Location()
	if err != nil {
		return nil, fmt.Errorf("failed to load timezone %q: %w", cfg.Timezone, err)
	}

	now := deps.Now
	if now == nil {
		now = time.Now
	}

	templates := deps.Templates
	if templates == nil {
		templates, err = loadTemplates(cfg.TemplatesPath)
		if err != nil {
			return nil, err
		}
	}

	analyzerCfg := analyzer.DefaultConfig()
	analyzerCfg.ProductiveActivities = cfg.ProductiveActivities
	analyzerCfg.BreakActivities = cfg.BreakActivities

	templateProducer := suggestion.NewTemplateProducer(templates, logger)
	if deps.Searcher != nil {
		templateProducer.WithKnowledge(deps.Searcher, cfg.KnowledgeTopK, knowledgeTimeout)
	}

	generator := suggestion.NewGenerator(suggestion.GeneratorConfig{
		MaxSuggestions:  cfg.MaxSuggestionsPerTick,
		MinScore:        cfg.MinSuggestionScore,
		DefaultLifetime: cfg.SuggestionLifetime(),
		Location:        loc,
	}, logger,
		templateProducer,
		suggestion.NewPatternProducer(2, 3),
		suggestion.NewTimeOfDayProducer(cfg.Latitude, cfg.Longitude, cfg.BreakActivities),
	)

	active := suggestion.NewActiveSet(suggestion.ActiveSetConfig{
		MaxActive: cfg.MaxActiveSuggestions,
		Cooldown:  cfg.SuggestionCooldown(),
	}, logger)

	store := activity.NewStore(cfg.ActivityCapacity, now)
	collector := feedback.NewCollector(cfg.FeedbackHistory, active, now, logger)

	engine := learning.NewEngine(learning.EngineConfig{
		LearningRate:        cfg.LearningRate,
		ConfidenceThreshold: cfg.ConfidenceThreshold,
		PatternWindow:       cfg.PatternWindow(),
		MinPatternFeedback:  cfg.MinPatternFeedback,
		PatternCooldown:     cfg.PatternCooldown(),
		Location:            loc,
	}, collector, now, logger)

	orchestrator := NewOrchestrator(OrchestratorConfig{
		AnalysisWindow: cfg.AnalysisWindow,
		MaxSuggestions: cfg.MaxSuggestionsPerTick,
		Budget:         cfg.TickBudget(),
	}, store, analyzer.New(analyzerCfg), generator, active, engine, deps.Notifier, deps.Journal, now, logger)

	return &Service{
		activities:    store,
		active:        active,
		collector:     collector,
		engine:        engine,
		orchestrator:  orchestrator,
		templates:     templateProducer,
		templatesPath: cfg.TemplatesPath,
		notifier:      deps.Notifier,
		journal:       deps.Journal,
		indexer:       deps.Indexer,
		now:           now,
		logger:        logger,
	}, nil
}

func loadTemplates(path string) ([]suggestion.Template, error) {
	if path == "" {
		return suggestion.DefaultTemplates()
	}
	templates, err := suggestion.LoadTemplates(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load templates from %s: %w", path, err)
	}
	return templates, nil
}

// WatchTemplates reloads the template file on change until ctx is done.
// It returns immediately when the built-in catalogue is in use.
func (s *Service) WatchTemplates(ctx context.Context) error {
	if s.templatesPath == "" {
		return nil
	}
	return suggestion.NewTemplateWatcher(s.templatesPath, s.templates, s.logger).Run(ctx)
}

// Orchestrator returns the tick driver
func (s *Service) Orchestrator() *Orchestrator {
	return s.orchestrator
}

// Start begins the periodic tick loop
func (s *Service) Start(interval time.Duration) error {
	return s.orchestrator.Start(interval)
}

// Stop halts the tick loop after the in-flight tick
func (s *Service) Stop() {
	s.orchestrator.Stop()
}

// RecordActivity stores a new activity event and returns its id
func (s *Service) RecordActivity(activityType string, ctx map[string]interface{}, durationSeconds, intensity float64) (string, error) {
	return s.RecordEvent(activity.Event{
		Type:            activityType,
		Context:         ctx,
		DurationSeconds: durationSeconds,
		Intensity:       intensity,
	})
}

// RecordEvent stores a fully populated event
func (s *Service) RecordEvent(e activity.Event) (string, error) {
	id, err := s.activities.Record(e)
	if err != nil {
		return "", err
	}
	s.logger.Debug("Activity recorded", "id", id, "activity_type", e.Type)
	return id, nil
}

// ActiveSuggestions returns the live suggestions, best first
func (s *Service) ActiveSuggestions() []suggestion.Suggestion {
	return s.active.Active(s.now())
}

// RespondToSuggestion removes an active suggestion and records the user's
// reaction. Accept and reject default to ratings 5 and 1. A dismissal only
// produces feedback when it carries a rating. Nothing changes when the id
// is unknown or expired.
func (s *Service) RespondToSuggestion(id string, action Action, rating *float64) error {
	if _, err := ParseAction(string(action)); err != nil {
		return err
	}
	if rating != nil {
		if err := feedback.ValidateRating(*rating); err != nil {
			return err
		}
	}

	removed, err := s.active.Remove(id, s.now())
	if err != nil {
		return err
	}

	f := feedback.Feedback{
		SuggestionID: removed.ID,
		Rating:       rating,
		Context: map[string]interface{}{
			"action":   string(action),
			"category": string(removed.Category),
			"source":   string(removed.Source),
		},
	}
	switch action {
	case ActionAccept:
		f.Kind = feedback.KindAccept
		if f.Rating == nil {
			f.Rating = feedback.Rating(feedback.MaxRating)
		}
	case ActionReject:
		f.Kind = feedback.KindReject
		if f.Rating == nil {
			f.Rating = feedback.Rating(feedback.MinRating)
		}
	case ActionDismiss:
		if rating == nil {
			s.logger.Debug("Suggestion dismissed", "id", id)
			return nil
		}
		f.Kind = feedback.KindRating
	}

	recorded, err := s.collector.Record(f)
	if err != nil {
		return err
	}
	s.learn(recorded)
	return nil
}

// RecordThumbs records quick positive or negative feedback
func (s *Service) RecordThumbs(positive bool, suggestionID string, ctx map[string]interface{}) (feedback.Feedback, error) {
	f, err := s.collector.RecordThumbs(positive, suggestionID, ctx)
	if err != nil {
		return feedback.Feedback{}, err
	}
	s.learn(f)
	return f, nil
}

// RecordRating records an explicit rating
func (s *Service) RecordRating(value float64, kind feedback.Kind, suggestionID, comment string, ctx map[string]interface{}) (feedback.Feedback, error) {
	f, err := s.collector.RecordRating(value, kind, suggestionID, comment, ctx)
	if err != nil {
		return feedback.Feedback{}, err
	}
	s.learn(f)
	return f, nil
}

// SubmitEdit records an edit of generated content. When an indexer is
// configured the edited text is stored for knowledge lookups.
func (s *Service) SubmitEdit(ctx context.Context, itemKind, itemID, original, edited string, extra map[string]interface{}) (feedback.Feedback, error) {
	f, err := s.collector.RecordEdit(original, edited, itemKind, itemID, extra)
	if err != nil {
		return feedback.Feedback{}, err
	}
	s.learn(f)

	if s.indexer != nil && edited != "" {
		ctx, cancel := context.WithTimeout(ctx, indexTimeout)
		defer cancel()
		if _, err := s.indexer.Index(ctx, edited, itemKind); err != nil {
			s.logger.Warn("Failed to index edited content", "item_kind", itemKind, "item_id", itemID, "error", err)
		}
	}
	return f, nil
}

// learn feeds a recorded item to the engine and forwards the results
func (s *Service) learn(f feedback.Feedback) {
	records := s.engine.Process(f)

	if s.journal != nil {
		s.journal.RecordFeedback(f)
		for _, r := range records {
			s.journal.RecordAdaptation(r)
		}
	}

	if len(records) > 0 {
		s.logger.Info("Profile adapted", "feedback_id", f.ID, "kind", f.Kind, "adaptations", len(records))
		s.publishProfile()
	}
}

func (s *Service) publishProfile() {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.NotifyProfile(context.Background(), s.engine.Profile()); err != nil {
		s.logger.Warn("Failed to publish profile", "error", err)
	}
}

// Profile returns a snapshot of the personality profile
func (s *Service) Profile() learning.Profile {
	return s.engine.Profile()
}

// UpdateManualPreference sets a profile field directly and records the
// change as preference_change feedback marked as an override. value is a
// number for scalar fields, a style name for encouragement_style and a list
// of windows for preferred_time_windows.
func (s *Service) UpdateManualPreference(field string, value interface{}) (learning.AdaptationRecord, error) {
	dim := learning.Dimension(field)

	var (
		record learning.AdaptationRecord
		err    error
	)
	switch dim {
	case learning.DimEncouragementStyle:
		style, ok := value.(string)
		if !ok {
			return learning.AdaptationRecord{}, fmt.Errorf("%w: encouragement_style must be a string", learning.ErrOutOfRange)
		}
		record, err = s.engine.SetEncouragementStyle(learning.EncouragementStyle(style))
	case learning.DimPreferredTimeWindows:
		windows, convErr := toTimeWindows(value)
		if convErr != nil {
			return learning.AdaptationRecord{}, convErr
		}
		record, err = s.engine.SetTimeWindows(windows)
	default:
		v, convErr := toFloat(value)
		if convErr != nil {
			return learning.AdaptationRecord{}, fmt.Errorf("%w: %s: %w", learning.ErrOutOfRange, field, convErr)
		}
		record, err = s.engine.SetValue(dim, v)
	}
	if err != nil {
		return learning.AdaptationRecord{}, err
	}

	if s.journal != nil {
		s.journal.RecordAdaptation(record)
	}

	f, err := s.collector.Record(feedback.Feedback{
		Kind: feedback.KindPreferenceChange,
		Context: map[string]interface{}{
			"override": true,
			"field":    field,
			"value":    value,
		},
	})
	if err != nil {
		// the override is applied already, only the audit item is missing
		s.logger.Warn("Failed to record preference change", "field", field, "error", err)
	} else {
		s.learn(f)
	}

	s.publishProfile()
	return record, nil
}

func toFloat(value interface{}) (float64, error) {
	switch v := value.(type) {
	case float64:
		return v, nil
	case float32:
		return float64(v), nil
	case int:
		return float64(v), nil
	case int64:
		return float64(v), nil
	case json.Number:
		return v.Float64()
	case string:
		return strconv.ParseFloat(v, 64)
	default:
		return 0, fmt.Errorf("unsupported value type %T", value)
	}
}

func toTimeWindows(value interface{}) ([]learning.TimeWindow, error) {
	if windows, ok := value.([]learning.TimeWindow); ok {
		return windows, nil
	}
	// decoded JSON arrives as []interface{} of objects
	data, err := json.Marshal(value)
	if err != nil {
		return nil, fmt.Errorf("%w: preferred_time_windows: %w", learning.ErrOutOfRange, err)
	}
	var windows []learning.TimeWindow
	if err := json.Unmarshal(data, &windows); err != nil {
		return nil, fmt.Errorf("%w: preferred_time_windows: %w", learning.ErrOutOfRange, err)
	}
	return windows, nil
}

// FeedbackSummary aggregates feedback over window
func (s *Service) FeedbackSummary(window time.Duration) feedback.Summary {
	return s.collector.Summary(window)
}

// AdaptationSummary aggregates profile changes over window
func (s *Service) AdaptationSummary(window time.Duration) learning.AdaptationSummary {
	return s.engine.Summary(window)
}

// RecentFeedback returns feedback recorded within window
func (s *Service) RecentFeedback(window time.Duration) []feedback.Feedback {
	return s.collector.Recent(window)
}

// CurrentContext returns the snapshot computed by the last tick
func (s *Service) CurrentContext() analyzer.Snapshot {
	return s.orchestrator.LastContext()
}

// Status reports counters of every component
func (s *Service) Status() Status {
	return Status{
		Orchestrator:      s.orchestrator.Stats(),
		ActiveSuggestions: len(s.active.Active(s.now())),
		Activities:        s.activities.Len(),
		Feedback:          s.collector.Len(),
		Adaptations:       len(s.engine.Records(0)),
		Now:               s.now(),
	}
}

// SaveState serializes the active set, the learning state and the feedback history
func (s *Service) SaveState() ([]byte, error) {
	state := SavedState{
		Version:   StateVersion,
		SavedAt:   s.now(),
		ActiveSet: s.active.Snapshot(),
		Learning:  s.engine.Snapshot(),
		Feedback:  s.collector.Export(),
	}
	data, err := json.Marshal(state)
	if err != nil {
		return nil, fmt.Errorf("%w: encode state: %w", storage.ErrPersistence, err)
	}
	return data, nil
}

// LoadState replaces the in-memory state with a serialized one. Nothing is
// changed when data cannot be decoded.
func (s *Service) LoadState(data []byte) error {
	var state SavedState
	if err := json.Unmarshal(data, &state); err != nil {
		return fmt.Errorf("%w: decode state: %w", storage.ErrPersistence, err)
	}
	if state.Version != StateVersion {
		return fmt.Errorf("%w: unsupported state version %d", storage.ErrPersistence, state.Version)
	}

	s.active.Restore(state.ActiveSet)
	s.engine.Restore(state.Learning)
	s.collector.Restore(state.Feedback)

	s.logger.Info("State loaded",
		"saved_at", state.SavedAt,
		"active", len(state.ActiveSet.Active),
		"feedback", len(state.Feedback),
		"adaptations", len(state.Learning.Records))
	return nil
}
