package learning

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/saaga0h/jeeves-anticipation/internal/feedback"
)

// Adjustment is a proposed profile change. Direction is multiplied by the
// effective learning rate; for time windows Hour names the hour to drop.
type Adjustment struct {
	Dimension  Dimension
	Direction  float64
	Hour       int
	Reason     string
	Confidence float64

	// RuleKey is set by pattern rules and keys their cooldown
	RuleKey string
}

// Edit ratios that count as a shrink or a growth for the single-edit rule
const (
	shrinkRatio = 0.5
	growthRatio = 1.5
)

// Edit ratios that count as consistent shrink or growth for the pattern rule
const (
	patternShrinkRatio = 0.75
	patternGrowthRatio = 1.25
	patternEditCount   = 3
)

// minHourItems is the number of items an hour needs before its negative ratio counts
const minHourItems = 3

// immediateAdjustments applies the single-event rules to f
func immediateAdjustments(f feedback.Feedback) []Adjustment {
	var out []Adjustment

	switch f.Kind {
	case feedback.KindReject:
		if f.HasRating() && f.RatingValue() <= 2 {
			out = append(out, Adjustment{
				Dimension:  DimInterventionFrequency,
				Direction:  -0.1,
				Reason:     fmt.Sprintf("strong rejection (rating %.1f)", f.RatingValue()),
				Confidence: 0.8,
			})
		}

	case feedback.KindEdit:
		ratio, ok := f.EditRatio()
		if !ok {
			break
		}
		if ratio < shrinkRatio {
			out = append(out, Adjustment{
				Dimension:  DimDetailPreference,
				Direction:  -0.05,
				Reason:     fmt.Sprintf("content shortened to %.0f%%", ratio*100),
				Confidence: 0.75,
			})
		} else if ratio > growthRatio {
			out = append(out, Adjustment{
				Dimension:  DimDetailPreference,
				Direction:  0.05,
				Reason:     fmt.Sprintf("content expanded to %.0f%%", ratio*100),
				Confidence: 0.75,
			})
		}

	case feedback.KindPreferenceChange:
		if f.Override() || !f.HasRating() {
			break
		}
		out = append(out, Adjustment{
			Dimension:  DimInterventionFrequency,
			Direction:  f.RatingValue()/5 - 0.5,
			Reason:     fmt.Sprintf("stated preference (rating %.1f)", f.RatingValue()),
			Confidence: 0.9,
		})
	}

	return out
}

// patternAdjustments applies the rolling-window rules to items (oldest first)
func patternAdjustments(items []feedback.Feedback, minItems int, loc *time.Location) []Adjustment {
	var out []Adjustment

	if len(items) >= minItems {
		out = append(out, hourAdjustments(items, loc)...)
		out = append(out, suggestionAdjustments(items, minItems)...)
	}
	out = append(out, editAdjustments(items)...)

	return out
}

// hourAdjustments drops hours whose feedback is mostly negative
func hourAdjustments(items []feedback.Feedback, loc *time.Location) []Adjustment {
	total := make(map[int]int)
	negative := make(map[int]int)
	for _, f := range items {
		hour := f.Timestamp.In(loc).Hour()
		total[hour]++
		if f.Negative() {
			negative[hour]++
		}
	}

	hours := make([]int, 0, len(total))
	for h := range total {
		hours = append(hours, h)
	}
	sort.Ints(hours)

	var out []Adjustment
	for _, h := range hours {
		n := total[h]
		if n < minHourItems {
			continue
		}
		ratio := float64(negative[h]) / float64(n)
		if ratio <= 0.6 {
			continue
		}
		out = append(out, Adjustment{
			Dimension:  DimPreferredTimeWindows,
			Direction:  -1,
			Hour:       h,
			Reason:     fmt.Sprintf("%.0f%% negative feedback at %02d:00", ratio*100, h),
			Confidence: math.Min(0.95, 0.5+0.1*float64(n)),
			RuleKey:    fmt.Sprintf("hour:%d", h),
		})
	}
	return out
}

// editAdjustments shifts detail preference when the latest edits agree in direction
func editAdjustments(items []feedback.Feedback) []Adjustment {
	var ratios []float64
	for _, f := range items {
		if ratio, ok := f.EditRatio(); ok {
			ratios = append(ratios, ratio)
		}
	}
	if len(ratios) < patternEditCount {
		return nil
	}
	latest := ratios[len(ratios)-patternEditCount:]

	shrink, grow := true, true
	for _, r := range latest {
		shrink = shrink && r < patternShrinkRatio
		grow = grow && r > patternGrowthRatio
	}

	switch {
	case shrink:
		return []Adjustment{{
			Dimension:  DimDetailPreference,
			Direction:  -0.05,
			Reason:     fmt.Sprintf("last %d edits consistently shortened content", patternEditCount),
			Confidence: 0.8,
			RuleKey:    "edits:shrink",
		}}
	case grow:
		return []Adjustment{{
			Dimension:  DimDetailPreference,
			Direction:  0.05,
			Reason:     fmt.Sprintf("last %d edits consistently expanded content", patternEditCount),
			Confidence: 0.8,
			RuleKey:    "edits:growth",
		}}
	}
	return nil
}

// suggestionAdjustments tunes intervention frequency from reactions to suggestions
func suggestionAdjustments(items []feedback.Feedback, minItems int) []Adjustment {
	var total, negative int
	for _, f := range items {
		if f.SuggestionID == "" {
			continue
		}
		total++
		if f.Negative() {
			negative++
		}
	}
	if total < minItems {
		return nil
	}

	ratio := float64(negative) / float64(total)
	switch {
	case ratio > 0.4:
		return []Adjustment{{
			Dimension:  DimInterventionFrequency,
			Direction:  -0.1,
			Reason:     fmt.Sprintf("%.0f%% of suggestions received negatively", ratio*100),
			Confidence: 0.75,
			RuleKey:    "suggestions:negative",
		}}
	case ratio < 0.1:
		return []Adjustment{{
			Dimension:  DimInterventionFrequency,
			Direction:  0.05,
			Reason:     fmt.Sprintf("only %.0f%% of suggestions received negatively", ratio*100),
			Confidence: 0.75,
			RuleKey:    "suggestions:positive",
		}}
	}
	return nil
}
