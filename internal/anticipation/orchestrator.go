// Package anticipation drives the suggestion pipeline: the periodic
// orchestrator, the service facade used by MQTT and HTTP callers, and the
// agent that wires both to the platform.
package anticipation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/saaga0h/jeeves-anticipation/internal/activity"
	"github.com/saaga0h/jeeves-anticipation/internal/analyzer"
	"github.com/saaga0h/jeeves-anticipation/internal/feedback"
	"github.com/saaga0h/jeeves-anticipation/internal/learning"
	"github.com/saaga0h/jeeves-anticipation/internal/suggestion"
)

// Tick stage names used in logs and StageError
const (
	StageActivity  = "activity"
	StageAnalyzer  = "analyzer"
	StageGenerator = "generator"
	StageActiveSet = "active_set"
	StageLearning  = "learning"
	StageNotifier  = "notifier"
)

// State of the orchestrator
type State int32

const (
	StateIdle State = iota
	StateTicking
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateTicking:
		return "ticking"
	default:
		return "unknown"
	}
}

// ContextAnalyzer derives a context snapshot from recent events
type ContextAnalyzer interface {
	Analyze(events []activity.Event, now time.Time) analyzer.Snapshot
}

// CandidateGenerator produces ranked suggestion candidates
type CandidateGenerator interface {
	Generate(ctx context.Context, in suggestion.Input, maxN int) []suggestion.Suggestion
}

// Notifier receives admitted suggestions and profile changes
type Notifier interface {
	NotifySuggestions(ctx context.Context, suggestions []suggestion.Suggestion) error
	NotifyProfile(ctx context.Context, profile learning.Profile) error
}

// Journal records feedback and adaptations for later analysis. Both calls
// must return immediately.
type Journal interface {
	RecordFeedback(f feedback.Feedback) bool
	RecordAdaptation(r learning.AdaptationRecord) bool
}

// OrchestratorConfig holds tick settings
type OrchestratorConfig struct {
	AnalysisWindow int
	MaxSuggestions int
	Budget         time.Duration
}

// TickResult describes one completed tick
type TickResult struct {
	StartedAt   time.Time
	Duration    time.Duration
	Context     analyzer.Snapshot
	Candidates  int
	Admitted    []suggestion.Suggestion
	Adaptations []learning.AdaptationRecord
	Overrun     bool
}

// OrchestratorStats are cumulative tick counters
type OrchestratorStats struct {
	State        string    `json:"state"`
	Running      bool      `json:"running"`
	Ticks        int64     `json:"ticks"`
	Failed       int64     `json:"failed"`
	Overruns     int64     `json:"overruns"`
	Rejected     int64     `json:"rejected"`
	Admitted     int64     `json:"admitted"`
	LastTickAt   time.Time `json:"last_tick_at"`
	LastDuration float64   `json:"last_duration_ms"`
	LastError    string    `json:"last_error,omitempty"`
}

// Orchestrator runs the analyze → generate → admit → learn cycle
type Orchestrator struct {
	cfg       OrchestratorConfig
	store     *activity.Store
	analyzer  ContextAnalyzer
	generator CandidateGenerator
	active    *suggestion.ActiveSet
	engine    *learning.Engine
	notifier  Notifier
	journal   Journal
	now       func() time.Time
	logger    *slog.Logger

	state atomic.Int32

	// lifecycle of the tick loop
	lifecycle sync.Mutex
	stopCh    chan struct{}
	done      chan struct{}
	stopping  atomic.Bool

	statsMu     sync.RWMutex
	stats       OrchestratorStats
	lastContext *analyzer.Snapshot
}

// NewOrchestrator wires the tick pipeline. notifier and journal may be nil.
func NewOrchestrator(
	cfg OrchestratorConfig,
	store *activity.Store,
	contextAnalyzer ContextAnalyzer,
	generator CandidateGenerator,
	active *suggestion.ActiveSet,
	engine *learning.Engine,
	notifier Notifier,
	journal Journal,
	now func() time.Time,
	logger *slog.Logger,
) *Orchestrator {
	if cfg.AnalysisWindow <= 0 {
		cfg.AnalysisWindow = 50
	}
	if cfg.MaxSuggestions <= 0 {
		cfg.MaxSuggestions = 3
	}
	if cfg.Budget <= 0 {
		cfg.Budget = 250 * time.Millisecond
	}
	if now == nil {
		now = time.Now
	}
	return &Orchestrator{
		cfg:       cfg,
		store:     store,
		analyzer:  contextAnalyzer,
		generator: generator,
		active:    active,
		engine:    engine,
		notifier:  notifier,
		journal:   journal,
		now:       now,
		logger:    logger,
	}
}

// State returns the current orchestrator state
func (o *Orchestrator) State() State {
	return State(o.state.Load())
}

// Tick runs one cycle. A tick requested while another is running is
// rejected with ErrTickInProgress. Failures of a stage end the tick early
// and are returned as a *StageError; the orchestrator always returns to idle.
func (o *Orchestrator) Tick(ctx context.Context) (TickResult, error) {
	if !o.state.CompareAndSwap(int32(StateIdle), int32(StateTicking)) {
		o.statsMu.Lock()
		o.stats.Rejected++
		o.statsMu.Unlock()
		return TickResult{}, ErrTickInProgress
	}
	defer o.state.Store(int32(StateIdle))

	started := time.Now()
	result := TickResult{StartedAt: o.now()}
	err := o.runStages(ctx, &result)
	result.Duration = time.Since(started)

	if result.Duration > o.cfg.Budget {
		result.Overrun = true
		o.logger.Warn("Tick exceeded budget",
			"error", ErrTickOverrun,
			"duration_ms", result.Duration.Milliseconds(),
			"budget_ms", o.cfg.Budget.Milliseconds())
	}

	o.recordTick(result, err)

	if err != nil {
		component := ""
		var stageErr *StageError
		if errors.As(err, &stageErr) {
			component = stageErr.Component
		}
		o.logger.Error("Tick failed", "component", component, "error", err)
		return result, err
	}

	o.logger.Debug("Tick completed",
		"primary_activity", result.Context.PrimaryActivity,
		"candidates", result.Candidates,
		"admitted", len(result.Admitted),
		"adaptations", len(result.Adaptations),
		"duration_ms", result.Duration.Milliseconds())
	return result, nil
}

// runStages takes the store, profile and active set locks one at a time in that order
func (o *Orchestrator) runStages(ctx context.Context, result *TickResult) error {
	now := result.StartedAt

	var events []activity.Event
	if err := stage(StageActivity, func() error {
		events = o.store.Recent(o.cfg.AnalysisWindow)
		return nil
	}); err != nil {
		return err
	}

	if err := stage(StageAnalyzer, func() error {
		result.Context = o.analyzer.Analyze(events, now)
		return nil
	}); err != nil {
		return err
	}
	o.setLastContext(result.Context)

	var candidates []suggestion.Suggestion
	if err := stage(StageGenerator, func() error {
		in := suggestion.Input{
			Context:          result.Context,
			History:          events,
			Profile:          o.engine.Profile(),
			Now:              now,
			RecentCategories: o.active.RecentCategories(),
		}
		candidates = o.generator.Generate(ctx, in, o.cfg.MaxSuggestions)
		return nil
	}); err != nil {
		return err
	}
	result.Candidates = len(candidates)

	if err := stage(StageActiveSet, func() error {
		result.Admitted = o.active.Admit(candidates, now)
		return nil
	}); err != nil {
		return err
	}

	if err := stage(StageLearning, func() error {
		result.Adaptations = o.engine.Analyze(now)
		if o.journal != nil {
			for _, r := range result.Adaptations {
				o.journal.RecordAdaptation(r)
			}
		}
		return nil
	}); err != nil {
		return err
	}

	if o.notifier == nil {
		return nil
	}
	return stage(StageNotifier, func() error {
		var errs []error
		if len(result.Admitted) > 0 {
			errs = append(errs, o.notifier.NotifySuggestions(ctx, result.Admitted))
		}
		if len(result.Adaptations) > 0 {
			errs = append(errs, o.notifier.NotifyProfile(ctx, o.engine.Profile()))
		}
		return errors.Join(errs...)
	})
}

// stage runs fn, converting both returned errors and panics into a StageError
func stage(name string, fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &StageError{Component: name, Err: fmt.Errorf("panic: %v", r)}
		}
	}()
	if err := fn(); err != nil {
		return &StageError{Component: name, Err: err}
	}
	return nil
}

func (o *Orchestrator) recordTick(result TickResult, err error) {
	o.statsMu.Lock()
	defer o.statsMu.Unlock()

	o.stats.Ticks++
	o.stats.Admitted += int64(len(result.Admitted))
	o.stats.LastTickAt = result.StartedAt
	o.stats.LastDuration = float64(result.Duration.Microseconds()) / 1000
	if result.Overrun {
		o.stats.Overruns++
	}
	if err != nil {
		o.stats.Failed++
		o.stats.LastError = err.Error()
	} else {
		o.stats.LastError = ""
	}
}

func (o *Orchestrator) setLastContext(s analyzer.Snapshot) {
	o.statsMu.Lock()
	o.lastContext = &s
	o.statsMu.Unlock()
}

// LastContext returns the snapshot of the most recent tick, or an idle
// snapshot when no tick has run yet
func (o *Orchestrator) LastContext() analyzer.Snapshot {
	o.statsMu.RLock()
	defer o.statsMu.RUnlock()
	if o.lastContext == nil {
		return analyzer.IdleSnapshot(o.now())
	}
	s := *o.lastContext
	s.SuggestedActions = append([]string(nil), s.SuggestedActions...)
	return s
}

// Stats returns the tick counters
func (o *Orchestrator) Stats() OrchestratorStats {
	o.statsMu.RLock()
	stats := o.stats
	o.statsMu.RUnlock()

	stats.State = o.State().String()
	stats.Running = o.Running()
	return stats
}

// Running reports whether the tick loop is active
func (o *Orchestrator) Running() bool {
	o.lifecycle.Lock()
	defer o.lifecycle.Unlock()
	return o.stopCh != nil
}

// Start begins ticking every interval
func (o *Orchestrator) Start(interval time.Duration) error {
	if interval <= 0 {
		return fmt.Errorf("tick interval must be positive, got %v", interval)
	}

	o.lifecycle.Lock()
	defer o.lifecycle.Unlock()

	if o.stopCh != nil {
		return ErrAlreadyRunning
	}

	o.stopCh = make(chan struct{})
	o.done = make(chan struct{})
	o.stopping.Store(false)

	go o.loop(interval, o.stopCh, o.done)

	o.logger.Info("Orchestrator started", "interval", interval)
	return nil
}

func (o *Orchestrator) loop(interval time.Duration, stopCh <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-stopCh:
			return
		case <-ticker.C:
			if o.stopping.Load() {
				return
			}
			// errors are logged by Tick, the next interval retries
			_, _ = o.Tick(context.Background())
		}
	}
}

// Stop halts the tick loop after the in-flight tick, if any, completes.
// Calling Stop more than once, or without Start, is a no-op.
func (o *Orchestrator) Stop() {
	o.lifecycle.Lock()
	defer o.lifecycle.Unlock()

	if o.stopCh == nil {
		return
	}

	o.stopping.Store(true)
	close(o.stopCh)
	<-o.done

	o.stopCh = nil
	o.done = nil
	o.logger.Info("Orchestrator stopped")
}
