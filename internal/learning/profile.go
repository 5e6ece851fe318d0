// Package learning adapts a per-user personality profile from feedback.
package learning

import (
	"errors"
	"fmt"
	"math"
	"sort"
)

var (
	// ErrUnknownDimension is returned for a profile field name that does not exist
	ErrUnknownDimension = errors.New("unknown profile dimension")
	// ErrOutOfRange is returned for a manual value outside the field's range
	ErrOutOfRange = errors.New("value out of range")
)

// Dimension names a mutable field of the profile
type Dimension string

const (
	DimInterventionFrequency Dimension = "intervention_frequency"
	DimDetailPreference      Dimension = "detail_preference"
	DimProactivityPreference Dimension = "proactivity_preference"
	DimFormalityPreference   Dimension = "formality_preference"
	DimFeedbackSensitivity   Dimension = "feedback_sensitivity"
	DimLearningSpeed         Dimension = "learning_speed"
	DimPreferredTimeWindows  Dimension = "preferred_time_windows"
	DimEncouragementStyle    Dimension = "encouragement_style"
)

// ScalarDimensions lists the [0,1] fields in a stable order
var ScalarDimensions = []Dimension{
	DimInterventionFrequency,
	DimDetailPreference,
	DimProactivityPreference,
	DimFormalityPreference,
	DimFeedbackSensitivity,
	DimLearningSpeed,
}

// EncouragementStyle selects the tone of suggestion text
type EncouragementStyle string

const (
	StyleSupportive  EncouragementStyle = "supportive"
	StyleDirect      EncouragementStyle = "direct"
	StyleCelebratory EncouragementStyle = "celebratory"
	StyleMinimal     EncouragementStyle = "minimal"
)

// Valid reports whether s is a known style
func (s EncouragementStyle) Valid() bool {
	switch s {
	case StyleSupportive, StyleDirect, StyleCelebratory, StyleMinimal:
		return true
	}
	return false
}

// TimeWindow is a half-open range of local hours [StartHour, EndHour)
type TimeWindow struct {
	StartHour int `json:"start_hour"`
	EndHour   int `json:"end_hour"`
}

// Contains reports whether hour falls in the window
func (w TimeWindow) Contains(hour int) bool {
	return hour >= w.StartHour && hour < w.EndHour
}

// Profile is the learned behavior profile of one user
type Profile struct {
	InterventionFrequency float64            `json:"intervention_frequency"`
	DetailPreference      float64            `json:"detail_preference"`
	ProactivityPreference float64            `json:"proactivity_preference"`
	FormalityPreference   float64            `json:"formality_preference"`
	FeedbackSensitivity   float64            `json:"feedback_sensitivity"`
	LearningSpeed         float64            `json:"learning_speed"`
	PreferredTimeWindows  []TimeWindow       `json:"preferred_time_windows"`
	EncouragementStyle    EncouragementStyle `json:"encouragement_style"`
}

// DefaultProfile returns a neutral profile with working-hours windows
func DefaultProfile() Profile {
	return Profile{
		InterventionFrequency: 0.5,
		DetailPreference:      0.5,
		ProactivityPreference: 0.5,
		FormalityPreference:   0.5,
		FeedbackSensitivity:   0.5,
		LearningSpeed:         0.5,
		PreferredTimeWindows: []TimeWindow{
			{StartHour: 9, EndHour: 12},
			{StartHour: 13, EndHour: 18},
		},
		EncouragementStyle: StyleSupportive,
	}
}

// Clone returns a deep copy
func (p Profile) Clone() Profile {
	c := p
	if p.PreferredTimeWindows != nil {
		c.PreferredTimeWindows = make([]TimeWindow, len(p.PreferredTimeWindows))
		copy(c.PreferredTimeWindows, p.PreferredTimeWindows)
	}
	return c
}

// InPreferredWindow reports whether hour falls in any preferred window.
// A profile without windows has no timing preference.
func (p Profile) InPreferredWindow(hour int) bool {
	if len(p.PreferredTimeWindows) == 0 {
		return true
	}
	for _, w := range p.PreferredTimeWindows {
		if w.Contains(hour) {
			return true
		}
	}
	return false
}

// Value returns the scalar field named by dim
func (p Profile) Value(dim Dimension) (float64, error) {
	ptr, err := p.field(dim)
	if err != nil {
		return 0, err
	}
	return *ptr, nil
}

// field returns a pointer to the scalar field named by dim
func (p *Profile) field(dim Dimension) (*float64, error) {
	switch dim {
	case DimInterventionFrequency:
		return &p.InterventionFrequency, nil
	case DimDetailPreference:
		return &p.DetailPreference, nil
	case DimProactivityPreference:
		return &p.ProactivityPreference, nil
	case DimFormalityPreference:
		return &p.FormalityPreference, nil
	case DimFeedbackSensitivity:
		return &p.FeedbackSensitivity, nil
	case DimLearningSpeed:
		return &p.LearningSpeed, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrUnknownDimension, dim)
}

// removeHour splits any window containing hour so that hour is no longer
// preferred. The last preferred hour is never removed, since an empty window
// list means no timing preference at all.
func (p *Profile) removeHour(hour int) bool {
	hours := 0
	for _, w := range p.PreferredTimeWindows {
		hours += w.EndHour - w.StartHour
	}
	if hours <= 1 {
		return false
	}

	out := make([]TimeWindow, 0, len(p.PreferredTimeWindows)+1)
	changed := false
	for _, w := range p.PreferredTimeWindows {
		if !w.Contains(hour) {
			out = append(out, w)
			continue
		}
		changed = true
		if hour > w.StartHour {
			out = append(out, TimeWindow{StartHour: w.StartHour, EndHour: hour})
		}
		if hour+1 < w.EndHour {
			out = append(out, TimeWindow{StartHour: hour + 1, EndHour: w.EndHour})
		}
	}
	if changed {
		sort.Slice(out, func(i, j int) bool { return out[i].StartHour < out[j].StartHour })
		p.PreferredTimeWindows = out
	}
	return changed
}

// Normalize clamps every scalar field into [0,1] and drops malformed windows
func (p *Profile) Normalize() {
	for _, dim := range ScalarDimensions {
		ptr, _ := p.field(dim)
		*ptr = clamp01(*ptr)
	}

	if p.PreferredTimeWindows != nil {
		windows := make([]TimeWindow, 0, len(p.PreferredTimeWindows))
		for _, w := range p.PreferredTimeWindows {
			if w.StartHour >= 0 && w.EndHour <= 24 && w.StartHour < w.EndHour {
				windows = append(windows, w)
			}
		}
		p.PreferredTimeWindows = windows
	}

	if !p.EncouragementStyle.Valid() {
		p.EncouragementStyle = StyleSupportive
	}
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
