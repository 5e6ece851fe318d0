// Package feedback records user reactions to suggestions and interactions.
package feedback

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrInvalidRating is returned for ratings outside [1,5]
	ErrInvalidRating = errors.New("rating must be between 1 and 5")
	// ErrInvalidKind is returned for an unknown feedback kind
	ErrInvalidKind = errors.New("invalid feedback kind")
	// ErrUnknownSuggestion is returned when feedback references a suggestion that never existed
	ErrUnknownSuggestion = errors.New("feedback references unknown suggestion")
)

// Kind is the type of a feedback item
type Kind string

const (
	KindAccept           Kind = "accept"
	KindReject           Kind = "reject"
	KindEdit             Kind = "edit"
	KindRating           Kind = "rating"
	KindPreferenceChange Kind = "preference_change"
)

// ParseKind validates a kind name
func ParseKind(s string) (Kind, error) {
	switch k := Kind(s); k {
	case KindAccept, KindReject, KindEdit, KindRating, KindPreferenceChange:
		return k, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidKind, s)
}

// Rating bounds
const (
	MinRating = 1.0
	MaxRating = 5.0
)

// Feedback is one immutable reaction
type Feedback struct {
	ID              string                 `json:"id"`
	Kind            Kind                   `json:"kind"`
	Timestamp       time.Time              `json:"timestamp"`
	SuggestionID    string                 `json:"suggestion_id,omitempty"`
	Rating          *float64               `json:"rating,omitempty"`
	OriginalContent string                 `json:"original_content,omitempty"`
	EditedContent   string                 `json:"edited_content,omitempty"`
	ItemKind        string                 `json:"item_kind,omitempty"`
	ItemID          string                 `json:"item_id,omitempty"`
	Comment         string                 `json:"comment,omitempty"`
	Context         map[string]interface{} `json:"context,omitempty"`
}

// HasRating reports whether the item carries a rating
func (f Feedback) HasRating() bool {
	return f.Rating != nil
}

// RatingValue returns the rating or zero
func (f Feedback) RatingValue() float64 {
	if f.Rating == nil {
		return 0
	}
	return *f.Rating
}

// Negative reports whether the item expresses a negative reaction
func (f Feedback) Negative() bool {
	if f.Kind == KindReject {
		return true
	}
	return f.Rating != nil && *f.Rating <= 2
}

// EditRatio is len(edited)/len(original) in runes. ok is false when the
// item is not an edit or the original is empty.
func (f Feedback) EditRatio() (ratio float64, ok bool) {
	if f.Kind != KindEdit {
		return 0, false
	}
	original := len([]rune(f.OriginalContent))
	if original == 0 {
		return 0, false
	}
	return float64(len([]rune(f.EditedContent))) / float64(original), true
}

// Override reports whether the item records a manual profile override
func (f Feedback) Override() bool {
	v, ok := f.Context["override"].(bool)
	return ok && v
}

// Clone returns a deep copy
func (f Feedback) Clone() Feedback {
	c := f
	if f.Rating != nil {
		r := *f.Rating
		c.Rating = &r
	}
	c.Context = copyContext(f.Context)
	return c
}

// Rating returns a pointer to v
func Rating(v float64) *float64 {
	return &v
}

// ValidateRating checks v is in [1,5]
func ValidateRating(v float64) error {
	if v != v || v < MinRating || v > MaxRating {
		return fmt.Errorf("%w: %v", ErrInvalidRating, v)
	}
	return nil
}

func copyContext(ctx map[string]interface{}) map[string]interface{} {
	if ctx == nil {
		return nil
	}
	out := make(map[string]interface{}, len(ctx))
	for k, v := range ctx {
		out[k] = v
	}
	return out
}
