package suggestion

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/saaga0h/jeeves-anticipation/internal/activity"
	"github.com/saaga0h/jeeves-anticipation/internal/analyzer"
	"github.com/saaga0h/jeeves-anticipation/internal/learning"
)

// Input is everything a producer may look at. Producers must not modify it.
type Input struct {
	Context          analyzer.Snapshot
	History          []activity.Event
	Profile          learning.Profile
	Now              time.Time
	RecentCategories []Category
}

// Producer creates unscored candidates
type Producer interface {
	Name() string
	Produce(ctx context.Context, in *Input) []Suggestion
}

// GeneratorConfig holds generator settings
type GeneratorConfig struct {
	MaxSuggestions  int
	MinScore        float64
	DefaultLifetime time.Duration
	Location        *time.Location
}

// Generator combines producers into a ranked candidate list
type Generator struct {
	cfg       GeneratorConfig
	producers []Producer
	logger    *slog.Logger
}

// NewGenerator creates a generator over the given producers
func NewGenerator(cfg GeneratorConfig, logger *slog.Logger, producers ...Producer) *Generator {
	if cfg.MaxSuggestions <= 0 {
		cfg.MaxSuggestions = 3
	}
	if cfg.DefaultLifetime <= 0 {
		cfg.DefaultLifetime = 30 * time.Minute
	}
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	return &Generator{
		cfg:       cfg,
		producers: producers,
		logger:    logger,
	}
}

// Generate returns at most maxN candidates sorted by descending score. A
// maxN of zero or less uses the configured default. The output depends only
// on in, so repeated calls with the same input return the same list.
func (g *Generator) Generate(ctx context.Context, in Input, maxN int) []Suggestion {
	if maxN <= 0 {
		maxN = g.cfg.MaxSuggestions
	}
	in.Now = in.Now.In(g.cfg.Location)

	best := make(map[string]Suggestion)
	var order []string
	for _, p := range g.producers {
		for _, s := range g.produce(ctx, p, &in) {
			s = g.finalize(s, &in)
			if s.FinalScore < g.cfg.MinScore {
				continue
			}

			key := s.Key()
			existing, seen := best[key]
			if !seen {
				order = append(order, key)
			}
			if !seen || s.FinalScore > existing.FinalScore {
				best[key] = s
			}
		}
	}

	out := make([]Suggestion, 0, len(order))
	for _, key := range order {
		out = append(out, best[key])
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].FinalScore != out[j].FinalScore {
			return out[i].FinalScore > out[j].FinalScore
		}
		if out[i].Category != out[j].Category {
			return out[i].Category < out[j].Category
		}
		return out[i].Title < out[j].Title
	})

	if len(out) > maxN {
		out = out[:maxN]
	}
	return out
}

// produce runs one producer, isolating its panics from the others
func (g *Generator) produce(ctx context.Context, p Producer, in *Input) (out []Suggestion) {
	defer func() {
		if r := recover(); r != nil {
			g.logger.Error("Suggestion producer panicked", "producer", p.Name(), "panic", fmt.Sprint(r))
			out = nil
		}
	}()
	return p.Produce(ctx, in)
}

// finalize stamps identity and expiry, shapes text to the profile and scores
func (g *Generator) finalize(s Suggestion, in *Input) Suggestion {
	s.CreatedAt = in.Now
	lifetime := s.Lifetime
	if lifetime <= 0 {
		lifetime = g.cfg.DefaultLifetime
	}
	expires := in.Now.Add(lifetime)
	s.ExpiresAt = &expires
	s.ID = NewID(s.Category, s.Title, s.CreatedAt)

	s.Description, s.Actions = shapeText(s.Description, s.Actions, in.Profile.DetailPreference)
	s.FinalScore = Score(s, in)
	return s
}

const (
	lowDetail  = 0.35
	highDetail = 0.75

	// Actions kept between the low and high detail thresholds
	moderateActions = 2
)

// shapeText trims text to the user's detail preference. Below lowDetail only
// the first sentence and action survive; above highDetail everything is kept.
func shapeText(description string, actions []string, detail float64) (string, []string) {
	switch {
	case detail > highDetail:
		return description, actions
	case detail >= lowDetail:
		if len(actions) > moderateActions {
			actions = actions[:moderateActions]
		}
		return description, actions
	}
	if len(actions) > 1 {
		actions = actions[:1]
	}
	return firstSentence(description), actions
}

func firstSentence(text string) string {
	for i := 0; i < len(text)-1; i++ {
		switch text[i] {
		case '.', '!', '?':
			if text[i+1] == ' ' {
				return text[:i+1]
			}
		}
	}
	return strings.TrimSpace(text)
}
