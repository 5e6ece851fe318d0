// Package analyzer derives a context snapshot (focus, productivity, dwell
// time) from a window of recent activity.
package analyzer

import (
	"math"
	"time"

	"github.com/saaga0h/jeeves-anticipation/internal/activity"
)

// IdleActivity is the primary activity reported for an empty window
const IdleActivity = "idle"

// Snapshot summarizes recent behavior
type Snapshot struct {
	PrimaryActivity       string    `json:"primary_activity"`
	FocusLevel            float64   `json:"focus_level"`
	ProductivityScore     float64   `json:"productivity_score"`
	TimeInStateSeconds    float64   `json:"time_in_state_seconds"`
	TransitionProbability float64   `json:"transition_probability"`
	SuggestedActions      []string  `json:"suggested_actions"`
	EventCount            int       `json:"event_count"`
	AnalyzedAt            time.Time `json:"analyzed_at"`
}

// TimeInState returns the dwell time as a duration
func (s Snapshot) TimeInState() time.Duration {
	return time.Duration(s.TimeInStateSeconds * float64(time.Second))
}

// Config holds the tunable thresholds of the analysis
type Config struct {
	ProductiveActivities []string
	BreakActivities      []string

	// Mean duration that maps to a full duration score
	MaxMeanDurationSeconds float64

	// Weights of duration, consistency and intensity in the focus level
	DurationWeight    float64
	ConsistencyWeight float64
	IntensityWeight   float64

	// Break ratio above which productivity is penalized
	BreakPenaltyThreshold float64

	MaxSuggestedActions int
}

// DefaultConfig returns the default analysis thresholds
func DefaultConfig() Config {
	return Config{
		ProductiveActivities:   []string{"coding", "writing", "designing", "researching", "planning"},
		BreakActivities:        []string{"break", "rest", "idle", "social_media", "entertainment"},
		MaxMeanDurationSeconds: 3600,
		DurationWeight:         0.4,
		ConsistencyWeight:      0.3,
		IntensityWeight:        0.3,
		BreakPenaltyThreshold:  0.3,
		MaxSuggestedActions:    5,
	}
}

// Analyzer computes context snapshots. It holds no mutable state and is safe
// for concurrent use.
type Analyzer struct {
	cfg        Config
	productive map[string]bool
	breaks     map[string]bool
}

// New creates an analyzer with the given configuration
func New(cfg Config) *Analyzer {
	if cfg.MaxMeanDurationSeconds <= 0 {
		cfg.MaxMeanDurationSeconds = 3600
	}
	if cfg.MaxSuggestedActions <= 0 {
		cfg.MaxSuggestedActions = 5
	}
	return &Analyzer{
		cfg:        cfg,
		productive: toSet(cfg.ProductiveActivities),
		breaks:     toSet(cfg.BreakActivities),
	}
}

// Analyze derives a snapshot from events (oldest first) as of now
func (a *Analyzer) Analyze(events []activity.Event, now time.Time) Snapshot {
	if len(events) == 0 {
		return IdleSnapshot(now)
	}
	events = normalizeTypes(events)

	primary := primaryActivity(events)
	snapshot := Snapshot{
		PrimaryActivity:       primary,
		FocusLevel:            a.focusLevel(events),
		ProductivityScore:     a.productivityScore(events),
		TimeInStateSeconds:    timeInState(events, primary, now),
		TransitionProbability: transitionProbability(events),
		EventCount:            len(events),
		AnalyzedAt:            now,
	}
	snapshot.SuggestedActions = suggestActions(snapshot, a.cfg.MaxSuggestedActions)

	return snapshot
}

// IdleSnapshot is the deterministic snapshot for an empty window
func IdleSnapshot(now time.Time) Snapshot {
	return Snapshot{
		PrimaryActivity:       IdleActivity,
		FocusLevel:            0,
		ProductivityScore:     0,
		TimeInStateSeconds:    0,
		TransitionProbability: 0.5,
		SuggestedActions:      append([]string(nil), idleActions...),
		AnalyzedAt:            now,
	}
}

// primaryActivity returns the most frequent type; ties go to the type seen most recently
func primaryActivity(events []activity.Event) string {
	counts := make(map[string]int)
	lastSeen := make(map[string]int)
	for i, e := range events {
		counts[e.Type]++
		lastSeen[e.Type] = i
	}

	best := ""
	for t, c := range counts {
		if best == "" || c > counts[best] || (c == counts[best] && lastSeen[t] > lastSeen[best]) {
			best = t
		}
	}
	return best
}

// focusLevel combines normalized mean duration, type consistency and mean intensity
func (a *Analyzer) focusLevel(events []activity.Event) float64 {
	n := float64(len(events))
	unique := make(map[string]bool)
	var totalDuration, totalIntensity float64
	for _, e := range events {
		unique[e.Type] = true
		totalDuration += e.DurationSeconds
		totalIntensity += e.Intensity
	}

	durationScore := math.Min(1, (totalDuration/n)/a.cfg.MaxMeanDurationSeconds)
	consistency := 1 - float64(len(unique))/n
	meanIntensity := totalIntensity / n

	return clamp01(a.cfg.DurationWeight*durationScore +
		a.cfg.ConsistencyWeight*consistency +
		a.cfg.IntensityWeight*meanIntensity)
}

// productivityScore weighs productive event and duration ratios, minus a
// penalty for breaks beyond the threshold
func (a *Analyzer) productivityScore(events []activity.Event) float64 {
	var productiveEvents, breakEvents int
	var productiveDuration, totalDuration float64
	for _, e := range events {
		totalDuration += e.DurationSeconds
		if a.productive[e.Type] {
			productiveEvents++
			productiveDuration += e.DurationSeconds
		}
		if a.breaks[e.Type] {
			breakEvents++
		}
	}

	n := float64(len(events))
	eventRatio := float64(productiveEvents) / n
	durationRatio := 0.0
	if totalDuration > 0 {
		durationRatio = productiveDuration / totalDuration
	}
	breakRatio := float64(breakEvents) / n

	score := 0.6*eventRatio + 0.4*durationRatio - math.Max(0, breakRatio-a.cfg.BreakPenaltyThreshold)
	return clamp01(score)
}

// timeInState is the time since the start of the trailing run of the primary activity
func timeInState(events []activity.Event, primary string, now time.Time) float64 {
	start := time.Time{}
	for i := len(events) - 1; i >= 0; i-- {
		if events[i].Type != primary {
			break
		}
		start = events[i].Timestamp
	}
	if start.IsZero() {
		return 0
	}
	return math.Max(0, now.Sub(start).Seconds())
}

// transitionProbability is the inverse of the mean index gap between type changes
func transitionProbability(events []activity.Event) float64 {
	if len(events) < 3 {
		return 0.5
	}

	changes := []int{0}
	for i := 1; i < len(events); i++ {
		if events[i].Type != events[i-1].Type {
			changes = append(changes, i)
		}
	}
	if len(changes) == 1 {
		return 0.1
	}

	gaps := 0
	for i := 1; i < len(changes); i++ {
		gaps += changes[i] - changes[i-1]
	}
	meanGap := float64(gaps) / float64(len(changes)-1)

	return clamp01(1 / meanGap)
}

// normalizeTypes returns events with folded types, copying only when needed
func normalizeTypes(events []activity.Event) []activity.Event {
	for i, e := range events {
		if activity.NormalizeType(e.Type) == e.Type {
			continue
		}
		out := make([]activity.Event, len(events))
		copy(out, events)
		for j := i; j < len(out); j++ {
			out[j].Type = activity.NormalizeType(out[j].Type)
		}
		return out
	}
	return events
}

func toSet(values []string) map[string]bool {
	set := make(map[string]bool, len(values))
	for _, v := range values {
		set[activity.NormalizeType(v)] = true
	}
	return set
}

func clamp01(v float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
