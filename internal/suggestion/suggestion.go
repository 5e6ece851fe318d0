// Package suggestion generates, scores and tracks proactive suggestions.
package suggestion

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound is returned when a suggestion id is unknown or no longer active
var ErrNotFound = errors.New("suggestion not found")

// Category groups suggestions by intent
type Category string

const (
	CategoryProductivity  Category = "productivity"
	CategoryLearning      Category = "learning"
	CategoryWorkflow      Category = "workflow"
	CategoryWellbeing     Category = "wellbeing"
	CategoryOptimization  Category = "optimization"
	CategoryCollaboration Category = "collaboration"
)

// Categories lists every category in a stable order
var Categories = []Category{
	CategoryProductivity,
	CategoryLearning,
	CategoryWorkflow,
	CategoryWellbeing,
	CategoryOptimization,
	CategoryCollaboration,
}

// Valid reports whether c is a known category
func (c Category) Valid() bool {
	for _, known := range Categories {
		if c == known {
			return true
		}
	}
	return false
}

// Source identifies the producer that created a suggestion
type Source string

const (
	SourceTemplate  Source = "template"
	SourcePattern   Source = "pattern"
	SourceTimeBased Source = "time_based"
)

// Suggestion is a scored, time-bounded recommendation
type Suggestion struct {
	ID             string     `json:"id"`
	Category       Category   `json:"category"`
	Title          string     `json:"title"`
	Description    string     `json:"description"`
	Actions        []string   `json:"actions"`
	BaseConfidence float64    `json:"base_confidence"`
	FinalScore     float64    `json:"final_score"`
	Source         Source     `json:"source"`
	CreatedAt      time.Time  `json:"created_at"`
	ExpiresAt      *time.Time `json:"expires_at,omitempty"`

	// Lifetime overrides the generator default when set by the producer
	Lifetime time.Duration `json:"-"`
}

// Key is the (category, title) identity used for de-duplication
func (s Suggestion) Key() string {
	return string(s.Category) + "|" + s.Title
}

// Expired reports whether the suggestion has an expiry in the past
func (s Suggestion) Expired(now time.Time) bool {
	return s.ExpiresAt != nil && s.ExpiresAt.Before(now)
}

// Clone returns a deep copy
func (s Suggestion) Clone() Suggestion {
	c := s
	c.Actions = append([]string(nil), s.Actions...)
	if s.ExpiresAt != nil {
		exp := *s.ExpiresAt
		c.ExpiresAt = &exp
	}
	return c
}

var idNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("https://github.com/saaga0h/jeeves-anticipation/suggestion"))

// NewID derives a stable id from the suggestion identity and creation time so
// that repeated generation over the same inputs yields the same ids
func NewID(category Category, title string, createdAt time.Time) string {
	name := fmt.Sprintf("%s|%s|%d", category, title, createdAt.UnixNano())
	return uuid.NewSHA1(idNamespace, []byte(name)).String()
}
