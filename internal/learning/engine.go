package learning

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/saaga0h/jeeves-anticipation/internal/cooldown"
	"github.com/saaga0h/jeeves-anticipation/internal/feedback"
)

// DefaultMaxRecords is the number of adaptation records retained
const DefaultMaxRecords = 1000

// AdaptationRecord is the audit entry of one applied profile change
type AdaptationRecord struct {
	Timestamp  time.Time `json:"timestamp"`
	Dimension  Dimension `json:"dimension"`
	Delta      float64   `json:"delta"`
	Reason     string    `json:"reason"`
	Confidence float64   `json:"confidence"`
	FeedbackID string    `json:"feedback_id,omitempty"`
}

// DimensionSummary aggregates records of one dimension
type DimensionSummary struct {
	Count      int     `json:"count"`
	TotalDelta float64 `json:"total_delta"`
	MeanDelta  float64 `json:"mean_delta"`
}

// AdaptationSummary aggregates records over a window
type AdaptationSummary struct {
	WindowSeconds float64                        `json:"window_seconds"`
	Count         int                            `json:"count"`
	PerDimension  map[Dimension]DimensionSummary `json:"per_dimension"`
}

// FeedbackSource provides the history the pattern rules look at
type FeedbackSource interface {
	Since(t time.Time) []feedback.Feedback
}

// EngineConfig holds learning settings
type EngineConfig struct {
	LearningRate        float64
	ConfidenceThreshold float64
	PatternWindow       time.Duration
	MinPatternFeedback  int
	PatternCooldown     time.Duration
	Location            *time.Location
	MaxRecords          int
}

// EngineState is the persisted form of an Engine
type EngineState struct {
	Profile   Profile              `json:"profile"`
	Records   []AdaptationRecord   `json:"records"`
	Cooldowns map[string]time.Time `json:"cooldowns,omitempty"`
}

// Engine adapts the profile from feedback. It is the only writer of the profile.
type Engine struct {
	mu        sync.RWMutex
	cfg       EngineConfig
	profile   Profile
	records   []AdaptationRecord
	source    FeedbackSource
	cooldowns *cooldown.Tracker
	now       func() time.Time
	logger    *slog.Logger
}

// NewEngine creates an engine starting from the default profile. source may
// be nil, which disables the pattern rules.
func NewEngine(cfg EngineConfig, source FeedbackSource, now func() time.Time, logger *slog.Logger) *Engine {
	if cfg.PatternWindow <= 0 {
		cfg.PatternWindow = 24 * time.Hour
	}
	if cfg.MinPatternFeedback <= 0 {
		cfg.MinPatternFeedback = 5
	}
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	if cfg.MaxRecords <= 0 {
		cfg.MaxRecords = DefaultMaxRecords
	}
	if now == nil {
		now = time.Now
	}
	return &Engine{
		cfg:       cfg,
		profile:   DefaultProfile(),
		source:    source,
		cooldowns: cooldown.NewTracker(),
		now:       now,
		logger:    logger,
	}
}

// Process runs the immediate rules for f followed by the pattern rules over
// the recent window, returning the records of every applied change
func (e *Engine) Process(f feedback.Feedback) []AdaptationRecord {
	now := e.now()
	adjustments := immediateAdjustments(f)
	adjustments = append(adjustments, e.patterns(now)...)

	return e.apply(adjustments, now, f.ID)
}

// Analyze runs only the pattern rules. Rule cooldowns that have elapsed are
// forgotten so saved state does not accumulate them.
func (e *Engine) Analyze(now time.Time) []AdaptationRecord {
	e.cooldowns.Prune(now, e.cfg.PatternCooldown)
	return e.apply(e.patterns(now), now, "")
}

// patterns reads the window before any engine lock is taken
func (e *Engine) patterns(now time.Time) []Adjustment {
	if e.source == nil {
		return nil
	}
	items := e.source.Since(now.Add(-e.cfg.PatternWindow))
	return patternAdjustments(items, e.cfg.MinPatternFeedback, e.cfg.Location)
}

func (e *Engine) apply(adjustments []Adjustment, now time.Time, feedbackID string) []AdaptationRecord {
	if len(adjustments) == 0 {
		return nil
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	var applied []AdaptationRecord
	for _, adj := range adjustments {
		if adj.Confidence < e.cfg.ConfidenceThreshold {
			e.logger.Debug("Adjustment discarded below confidence threshold",
				"dimension", adj.Dimension,
				"confidence", adj.Confidence,
				"threshold", e.cfg.ConfidenceThreshold,
				"reason", adj.Reason)
			continue
		}
		if adj.RuleKey != "" && e.cooldowns.Active(adj.RuleKey, now, e.cfg.PatternCooldown) {
			e.logger.Debug("Pattern adjustment cooling down", "rule", adj.RuleKey)
			continue
		}

		record, ok := e.applyLocked(adj, now)
		if !ok {
			continue
		}
		record.FeedbackID = feedbackID
		if adj.RuleKey != "" {
			e.cooldowns.Record(adj.RuleKey, now)
		}

		e.appendRecordLocked(record)
		applied = append(applied, record)

		e.logger.Info("Profile adapted",
			"dimension", record.Dimension,
			"delta", record.Delta,
			"confidence", record.Confidence,
			"reason", record.Reason)
	}

	return applied
}

// applyLocked mutates the profile. ok is false when the change had no effect.
func (e *Engine) applyLocked(adj Adjustment, now time.Time) (AdaptationRecord, bool) {
	record := AdaptationRecord{
		Timestamp:  now,
		Dimension:  adj.Dimension,
		Reason:     adj.Reason,
		Confidence: adj.Confidence,
	}

	if adj.Dimension == DimPreferredTimeWindows {
		if !e.profile.removeHour(adj.Hour) {
			return record, false
		}
		record.Delta = -1
		return record, true
	}

	ptr, err := e.profile.field(adj.Dimension)
	if err != nil {
		e.logger.Warn("Adjustment for unknown dimension", "dimension", adj.Dimension)
		return record, false
	}

	old := *ptr
	*ptr = clamp01(old + adj.Direction*e.effectiveRateLocked())
	record.Delta = *ptr - old
	return record, record.Delta != 0
}

// effectiveRateLocked scales the configured rate by the profile's learning speed
func (e *Engine) effectiveRateLocked() float64 {
	return e.cfg.LearningRate * (0.5 + e.profile.LearningSpeed)
}

func (e *Engine) appendRecordLocked(r AdaptationRecord) {
	e.records = append(e.records, r)
	if len(e.records) > e.cfg.MaxRecords {
		e.records = append([]AdaptationRecord(nil), e.records[len(e.records)-e.cfg.MaxRecords:]...)
	}
}

// Profile returns a snapshot of the current profile
func (e *Engine) Profile() Profile {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.profile.Clone()
}

// SetValue overrides a scalar dimension directly
func (e *Engine) SetValue(dim Dimension, value float64) (AdaptationRecord, error) {
	if value != value || value < 0 || value > 1 {
		return AdaptationRecord{}, fmt.Errorf("%w: %s=%v", ErrOutOfRange, dim, value)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	ptr, err := e.profile.field(dim)
	if err != nil {
		return AdaptationRecord{}, err
	}

	record := AdaptationRecord{
		Timestamp:  e.now(),
		Dimension:  dim,
		Delta:      value - *ptr,
		Reason:     "manual override",
		Confidence: 1,
	}
	*ptr = value
	e.appendRecordLocked(record)
	return record, nil
}

// SetEncouragementStyle overrides the encouragement style
func (e *Engine) SetEncouragementStyle(style EncouragementStyle) (AdaptationRecord, error) {
	if !style.Valid() {
		return AdaptationRecord{}, fmt.Errorf("%w: encouragement style %q", ErrOutOfRange, style)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	e.profile.EncouragementStyle = style
	record := AdaptationRecord{
		Timestamp:  e.now(),
		Dimension:  DimEncouragementStyle,
		Reason:     "manual override: " + string(style),
		Confidence: 1,
	}
	e.appendRecordLocked(record)
	return record, nil
}

// SetTimeWindows overrides the preferred time windows
func (e *Engine) SetTimeWindows(windows []TimeWindow) (AdaptationRecord, error) {
	for _, w := range windows {
		if w.StartHour < 0 || w.EndHour > 24 || w.StartHour >= w.EndHour {
			return AdaptationRecord{}, fmt.Errorf("%w: window %d-%d", ErrOutOfRange, w.StartHour, w.EndHour)
		}
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	e.profile.PreferredTimeWindows = append([]TimeWindow(nil), windows...)
	record := AdaptationRecord{
		Timestamp:  e.now(),
		Dimension:  DimPreferredTimeWindows,
		Delta:      float64(len(windows)),
		Reason:     "manual override",
		Confidence: 1,
	}
	e.appendRecordLocked(record)
	return record, nil
}

// Records returns the records newer than window, oldest first. A window of zero or less returns all.
func (e *Engine) Records(window time.Duration) []AdaptationRecord {
	e.mu.RLock()
	defer e.mu.RUnlock()

	if window <= 0 {
		return append([]AdaptationRecord(nil), e.records...)
	}

	cutoff := e.now().Add(-window)
	var out []AdaptationRecord
	for _, r := range e.records {
		if !r.Timestamp.Before(cutoff) {
			out = append(out, r)
		}
	}
	return out
}

// Summary aggregates the records in window per dimension
func (e *Engine) Summary(window time.Duration) AdaptationSummary {
	records := e.Records(window)
	s := AdaptationSummary{
		WindowSeconds: window.Seconds(),
		Count:         len(records),
		PerDimension:  make(map[Dimension]DimensionSummary),
	}

	for _, r := range records {
		d := s.PerDimension[r.Dimension]
		d.Count++
		d.TotalDelta += r.Delta
		s.PerDimension[r.Dimension] = d
	}
	for dim, d := range s.PerDimension {
		d.MeanDelta = d.TotalDelta / float64(d.Count)
		s.PerDimension[dim] = d
	}

	return s
}

// Snapshot captures the engine for persistence
func (e *Engine) Snapshot() EngineState {
	e.mu.RLock()
	defer e.mu.RUnlock()

	return EngineState{
		Profile:   e.profile.Clone(),
		Records:   append([]AdaptationRecord(nil), e.records...),
		Cooldowns: e.cooldowns.Snapshot(),
	}
}

// Restore replaces the engine state. The profile is normalized so a corrupt
// snapshot can never leave a field out of range.
func (e *Engine) Restore(state EngineState) {
	profile := state.Profile.Clone()
	profile.Normalize()

	records := append([]AdaptationRecord(nil), state.Records...)
	if len(records) > e.cfg.MaxRecords {
		records = records[len(records)-e.cfg.MaxRecords:]
	}

	e.mu.Lock()
	e.profile = profile
	e.records = records
	e.cooldowns.Restore(state.Cooldowns)
	e.mu.Unlock()
}
