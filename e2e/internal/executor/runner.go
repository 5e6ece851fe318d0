package executor

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/saaga0h/jeeves-anticipation/e2e/internal/checker"
	"github.com/saaga0h/jeeves-anticipation/e2e/internal/scenario"
	"github.com/saaga0h/jeeves-anticipation/internal/anticipation"
	"github.com/saaga0h/jeeves-anticipation/pkg/mqtt"
)

// DefaultSettle is how long agents get to apply the time configuration
const DefaultSettle = time.Second

// Captured is a message the agent published during a run
type Captured struct {
	Topic   string
	Payload []byte
	Elapsed time.Duration
}

// Runner plays scenarios against a running anticipation agent
type Runner struct {
	client mqtt.Client
	logger *slog.Logger
	settle time.Duration
	now    func() time.Time
	sleep  func(context.Context, time.Duration)

	mu       sync.Mutex
	start    time.Time
	captured []Captured
}

// NewRunner creates a runner on a connected MQTT client
func NewRunner(client mqtt.Client, logger *slog.Logger) *Runner {
	return &Runner{
		client: client,
		logger: logger,
		settle: DefaultSettle,
		now:    time.Now,
		sleep:  sleepContext,
	}
}

// Captured returns the messages captured so far
func (r *Runner) Captured() []Captured {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Captured(nil), r.captured...)
}

// Run executes a scenario. The returned error covers transport failures;
// failed expectations are reported in the result.
func (r *Runner) Run(ctx context.Context, s *scenario.Scenario) (*scenario.TestResult, error) {
	r.logger.Info("Running scenario", "name", s.Name, "events", len(s.Events), "expectations", len(s.Expectations))

	r.mu.Lock()
	r.captured = nil
	r.mu.Unlock()

	for _, topic := range []string{mqtt.TopicSuggestionBase + "/#", mqtt.TopicProfile} {
		if err := r.client.Subscribe(topic, 0, r.capture); err != nil {
			return nil, fmt.Errorf("failed to subscribe to %s: %w", topic, err)
		}
	}

	timeScale := 1
	if tm := s.TestMode; tm != nil {
		timeScale = tm.TimeScale
		if err := r.publishTestMode(ctx, tm); err != nil {
			return nil, err
		}
	}

	startTime := r.now()
	r.mu.Lock()
	r.start = startTime
	r.mu.Unlock()

	events := append([]scenario.Event(nil), s.Events...)
	sort.SliceStable(events, func(i, j int) bool { return events[i].Time < events[j].Time })

	for _, e := range events {
		if err := r.waitUntil(ctx, startTime, e.Time, timeScale); err != nil {
			return nil, err
		}
		payload := map[string]interface{}{"data": e.Data}
		if err := mqtt.PublishJSON(r.client, e.Topic(), false, payload); err != nil {
			return nil, fmt.Errorf("failed to publish event %q: %w", e.Description, err)
		}
		r.logger.Info("Published event", "at", e.Time, "topic", e.Topic(), "description", e.Description)
	}

	exps := append([]scenario.Expectation(nil), s.Expectations...)
	sort.SliceStable(exps, func(i, j int) bool { return exps[i].Time < exps[j].Time })

	result := &scenario.TestResult{Scenario: s, StartTime: startTime}
	for _, exp := range exps {
		if err := r.waitUntil(ctx, startTime, exp.Time, timeScale); err != nil {
			return nil, err
		}

		res := r.check(exp)
		result.Expectations = append(result.Expectations, res)
		if res.Passed {
			result.PassedCount++
			r.logger.Info("✓ PASS", "at", exp.Time, "topic", exp.Topic, "description", exp.Description)
		} else {
			result.FailedCount++
			r.logger.Warn("✗ FAIL", "at", exp.Time, "topic", exp.Topic, "description", exp.Description, "reason", res.Reason)
		}
	}

	result.EndTime = r.now()
	result.Passed = result.FailedCount == 0
	return result, nil
}

func (r *Runner) capture(msg mqtt.Message) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.captured = append(r.captured, Captured{
		Topic:   msg.Topic(),
		Payload: append([]byte(nil), msg.Payload()...),
		Elapsed: r.now().Sub(r.start),
	})
}

// check matches an expectation against everything captured so far
func (r *Runner) check(exp scenario.Expectation) scenario.ExpectationResult {
	res := scenario.ExpectationResult{Expectation: exp}

	var lastReason string
	seen := 0
	for _, c := range r.Captured() {
		if !mqtt.TopicMatches(exp.Topic, c.Topic) {
			continue
		}
		seen++
		ok, reason := true, ""
		if len(exp.Payload) > 0 {
			ok, reason = checker.MatchPayload(c.Payload, exp.Payload)
		}
		if ok {
			res.MatchedOn = c.Topic
			break
		}
		lastReason = reason
	}

	matched := res.MatchedOn != ""
	switch {
	case exp.Absent && matched:
		res.Reason = fmt.Sprintf("unexpected message on %s", res.MatchedOn)
	case exp.Absent:
		res.Passed = true
	case matched:
		res.Passed = true
	case seen == 0:
		res.Reason = fmt.Sprintf("no message on %s", exp.Topic)
	default:
		res.Reason = fmt.Sprintf("%d message(s) on %s, none matched: %s", seen, exp.Topic, lastReason)
	}
	return res
}

func (r *Runner) waitUntil(ctx context.Context, start time.Time, seconds, timeScale int) error {
	target := start.Add(ScaledDelay(seconds, timeScale))
	if d := target.Sub(r.now()); d > 0 {
		r.sleep(ctx, d)
	}
	return ctx.Err()
}

// publishTestMode publishes the virtual time configuration retained so
// agents that start later pick it up too
func (r *Runner) publishTestMode(ctx context.Context, tm *scenario.TestModeConfig) error {
	cfg := anticipation.TimeConfig{
		VirtualStart: tm.VirtualStart,
		TimeScale:    tm.TimeScale,
		TestMode:     true,
	}
	if err := mqtt.PublishJSON(r.client, mqtt.TopicTimeConfig, true, cfg); err != nil {
		return fmt.Errorf("failed to publish test mode config: %w", err)
	}
	r.logger.Info("Published test mode configuration",
		"topic", mqtt.TopicTimeConfig,
		"virtual_start", tm.VirtualStart,
		"time_scale", tm.TimeScale)

	r.sleep(ctx, r.settle)
	return ctx.Err()
}
