package suggestion

import (
	"context"
	"math"
	"time"

	"github.com/sixdouglas/suncalc"

	"github.com/saaga0h/jeeves-anticipation/internal/activity"
)

// LongSessionThreshold is the dwell time after which a break is suggested
const LongSessionThreshold = 2 * time.Hour

// hourBand is a fixed local-hour rule [start, end)
type hourBand struct {
	start, end  int
	category    Category
	title       string
	description string
	actions     []string
	confidence  float64
}

var hourBands = []hourBand{
	{
		start: 6, end: 10,
		category:    CategoryProductivity,
		title:       "Start strong",
		description: "Mornings are a good time for your hardest task. Tackle it before the day fills up.",
		actions:     []string{"Pick today's most important task", "Review your calendar"},
		confidence:  0.6,
	},
	{
		start: 12, end: 13,
		category:    CategoryWellbeing,
		title:       "Step away for lunch",
		description: "A proper lunch break away from the screen helps the afternoon go better.",
		actions:     []string{"Take a lunch break"},
		confidence:  0.5,
	},
	{
		start: 14, end: 16,
		category:    CategoryOptimization,
		title:       "Afternoon optimization",
		description: "Energy often dips mid-afternoon. Switch to lighter tasks like reviews or cleanup.",
		actions:     []string{"Clear small tasks", "Review open pull requests"},
		confidence:  0.55,
	},
	{
		start: 20, end: 23,
		category:    CategoryWellbeing,
		title:       "Wind down",
		description: "It is getting late. Wrap up and plan tomorrow so you can rest.",
		actions:     []string{"Write tomorrow's first task", "Close work applications"},
		confidence:  0.5,
	},
}

// TimeOfDayProducer emits suggestions tied to local time and daylight
type TimeOfDayProducer struct {
	latitude  float64
	longitude float64
	breaks    map[string]bool
}

// NewTimeOfDayProducer creates a time-of-day producer for the given location.
// Activities in breakActivities never trigger the after-dark rule.
func NewTimeOfDayProducer(latitude, longitude float64, breakActivities []string) *TimeOfDayProducer {
	breaks := make(map[string]bool, len(breakActivities))
	for _, a := range breakActivities {
		breaks[activity.NormalizeType(a)] = true
	}
	return &TimeOfDayProducer{
		latitude:  latitude,
		longitude: longitude,
		breaks:    breaks,
	}
}

// Name implements Producer
func (p *TimeOfDayProducer) Name() string {
	return string(SourceTimeBased)
}

// Produce implements Producer
func (p *TimeOfDayProducer) Produce(_ context.Context, in *Input) []Suggestion {
	var out []Suggestion
	hour := in.Now.Hour()

	for _, band := range hourBands {
		if hour >= band.start && hour < band.end {
			out = append(out, Suggestion{
				Category:       band.category,
				Title:          band.title,
				Description:    band.description,
				Actions:        append([]string(nil), band.actions...),
				BaseConfidence: band.confidence,
				Source:         SourceTimeBased,
			})
		}
	}

	if in.Context.TimeInState() > LongSessionThreshold {
		out = append(out, Suggestion{
			Category:       CategoryWellbeing,
			Title:          "Take a break",
			Description:    "You have been at it for over two hours. A short break restores focus.",
			Actions:        []string{"Walk for five minutes", "Rest your eyes"},
			BaseConfidence: 0.8,
			Source:         SourceTimeBased,
		})
	}

	if p.afterDark(in) {
		out = append(out, Suggestion{
			Category:       CategoryWellbeing,
			Title:          "Screen time after dark",
			Description:    "The sun has set. Dim your screen and consider stopping soon.",
			Actions:        []string{"Enable night mode"},
			BaseConfidence: 0.45,
			Source:         SourceTimeBased,
		})
	}

	return out
}

// afterDark reports whether the user is still working past civil dusk
func (p *TimeOfDayProducer) afterDark(in *Input) bool {
	if in.Context.EventCount == 0 || p.breaks[activity.NormalizeType(in.Context.PrimaryActivity)] {
		return false
	}
	hour := in.Now.Hour()
	if hour >= 5 && hour < 17 {
		return false
	}
	return sunAltitudeDegrees(p.latitude, p.longitude, in.Now) < -6
}

func sunAltitudeDegrees(lat, lon float64, t time.Time) float64 {
	position := suncalc.GetPosition(t, lat, lon)
	return position.Altitude * (180.0 / math.Pi)
}
