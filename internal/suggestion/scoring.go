package suggestion

import (
	"math"

	"github.com/saaga0h/jeeves-anticipation/internal/analyzer"
	"github.com/saaga0h/jeeves-anticipation/internal/learning"
)

// RecencyWindow is how many recently shown suggestions count towards the recency penalty
const RecencyWindow = 10

// categoryDimension maps a category to the profile field expressing the user's appetite for it
var categoryDimension = map[Category]learning.Dimension{
	CategoryProductivity:  learning.DimProactivityPreference,
	CategoryLearning:      learning.DimDetailPreference,
	CategoryWorkflow:      learning.DimProactivityPreference,
	CategoryWellbeing:     learning.DimFeedbackSensitivity,
	CategoryOptimization:  learning.DimDetailPreference,
	CategoryCollaboration: learning.DimFormalityPreference,
}

// Score computes the final score of s for the given input
func Score(s Suggestion, in *Input) float64 {
	score := s.BaseConfidence +
		ContextBonus(s.Category, in.Context) +
		ProfileBonus(s.Category, in.Profile, in.Now.Hour()) -
		RecencyPenalty(s.Category, in.RecentCategories)
	return clamp01(score)
}

// ContextBonus rewards categories that fit the current context
func ContextBonus(c Category, ctx analyzer.Snapshot) float64 {
	switch c {
	case CategoryWellbeing:
		if ctx.FocusLevel > 0.8 && ctx.TimeInStateSeconds > 3600 {
			return 0.15
		}
	case CategoryProductivity:
		if ctx.EventCount > 0 && ctx.ProductivityScore < 0.4 {
			return 0.1
		}
	case CategoryWorkflow:
		if ctx.TransitionProbability > 0.6 {
			return 0.1
		}
	case CategoryLearning:
		if ctx.PrimaryActivity == "researching" {
			return 0.1
		}
	case CategoryOptimization:
		if ctx.FocusLevel > 0.6 {
			return 0.05
		}
	case CategoryCollaboration:
		if ctx.ProductivityScore > 0.7 {
			return 0.05
		}
	}
	return 0
}

// ProfileBonus is the signed learned preference for a category. Outside all
// preferred windows every category is penalized.
func ProfileBonus(c Category, p learning.Profile, hour int) float64 {
	bonus := 0.2 * (p.InterventionFrequency - 0.5)
	if dim, ok := categoryDimension[c]; ok {
		if v, err := p.Value(dim); err == nil {
			bonus += 0.2 * (v - 0.5)
		}
	}
	if !p.InPreferredWindow(hour) {
		bonus -= 0.1
	}
	return bonus
}

// RecencyPenalty penalizes categories shown repeatedly in the last RecencyWindow suggestions
func RecencyPenalty(c Category, recent []Category) float64 {
	if len(recent) > RecencyWindow {
		recent = recent[len(recent)-RecencyWindow:]
	}
	count := 0
	for _, r := range recent {
		if r == c {
			count++
		}
	}
	return math.Min(0.5, 0.1*float64(count))
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
