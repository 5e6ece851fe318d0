package feedback

import (
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"
)

// DefaultCapacity is the number of feedback items retained
const DefaultCapacity = 1000

// Registry reports whether a suggestion id was ever issued
type Registry interface {
	Known(id string) bool
}

// Trend describes the direction of ratings over a window
type Trend string

const (
	TrendImproving        Trend = "improving"
	TrendDeclining        Trend = "declining"
	TrendStable           Trend = "stable"
	TrendInsufficientData Trend = "insufficient_data"
)

// minTrendItems is the number of rated items needed to compute a trend
const minTrendItems = 4

// Summary aggregates feedback over a window
type Summary struct {
	WindowSeconds float64      `json:"window_seconds"`
	Total         int          `json:"total"`
	CountsByKind  map[Kind]int `json:"counts_by_kind"`
	RatedCount    int          `json:"rated_count"`
	MeanRating    float64      `json:"mean_rating"`
	Trend         Trend        `json:"trend"`
}

// Collector is the append-only feedback history
type Collector struct {
	mu       sync.RWMutex
	items    []Feedback
	capacity int
	registry Registry
	now      func() time.Time
	logger   *slog.Logger
}

// NewCollector creates a feedback collector. registry may be nil, in which
// case suggestion ids are not checked.
func NewCollector(capacity int, registry Registry, now func() time.Time, logger *slog.Logger) *Collector {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	if now == nil {
		now = time.Now
	}
	return &Collector{
		capacity: capacity,
		registry: registry,
		now:      now,
		logger:   logger,
	}
}

// Record validates and appends a feedback item, filling its id and timestamp
func (c *Collector) Record(f Feedback) (Feedback, error) {
	if _, err := ParseKind(string(f.Kind)); err != nil {
		return Feedback{}, err
	}
	if f.Rating != nil {
		if err := ValidateRating(*f.Rating); err != nil {
			return Feedback{}, err
		}
	}
	if f.SuggestionID != "" && c.registry != nil && !c.registry.Known(f.SuggestionID) {
		return Feedback{}, ErrUnknownSuggestion
	}

	f = f.Clone()
	if f.ID == "" {
		f.ID = uuid.New().String()
	}
	if f.Timestamp.IsZero() {
		f.Timestamp = c.now()
	}

	c.mu.Lock()
	c.items = append(c.items, f)
	if len(c.items) > c.capacity {
		c.items = append([]Feedback(nil), c.items[len(c.items)-c.capacity:]...)
	}
	c.mu.Unlock()

	c.logger.Debug("Feedback recorded", "id", f.ID, "kind", f.Kind, "suggestion_id", f.SuggestionID)
	return f.Clone(), nil
}

// RecordThumbs records a thumbs up as accept (rating 5) and a thumbs down as reject (rating 1)
func (c *Collector) RecordThumbs(positive bool, suggestionID string, ctx map[string]interface{}) (Feedback, error) {
	f := Feedback{
		Kind:         KindReject,
		SuggestionID: suggestionID,
		Rating:       Rating(MinRating),
		Context:      withValue(ctx, "source", "thumbs"),
	}
	if positive {
		f.Kind = KindAccept
		f.Rating = Rating(MaxRating)
	}
	return c.Record(f)
}

// RecordEdit records a user edit, deriving a rating from how much the text changed
func (c *Collector) RecordEdit(original, edited, itemKind, itemID string, ctx map[string]interface{}) (Feedback, error) {
	return c.Record(Feedback{
		Kind:            KindEdit,
		Rating:          Rating(EditRating(original, edited)),
		OriginalContent: original,
		EditedContent:   edited,
		ItemKind:        itemKind,
		ItemID:          itemID,
		Context:         ctx,
	})
}

// RecordRating records an explicit rating of the given kind
func (c *Collector) RecordRating(value float64, kind Kind, suggestionID, comment string, ctx map[string]interface{}) (Feedback, error) {
	return c.Record(Feedback{
		Kind:         kind,
		SuggestionID: suggestionID,
		Rating:       Rating(value),
		Comment:      comment,
		Context:      ctx,
	})
}

// EditRating maps the edited/original length ratio to a rating: heavy cuts
// score 2, near-unchanged length 4, anything else 3
func EditRating(original, edited string) float64 {
	o := len([]rune(original))
	if o == 0 {
		return 3
	}
	ratio := float64(len([]rune(edited))) / float64(o)
	switch {
	case ratio < 0.5:
		return 2
	case math.Abs(ratio-1) <= 0.2:
		return 4
	default:
		return 3
	}
}

// Recent returns items newer than window, oldest first. A window of zero or less returns everything.
func (c *Collector) Recent(window time.Duration) []Feedback {
	if window <= 0 {
		return c.Export()
	}
	return c.Since(c.now().Add(-window))
}

// Since returns items at or after t, oldest first
func (c *Collector) Since(t time.Time) []Feedback {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var out []Feedback
	for _, f := range c.items {
		if !f.Timestamp.Before(t) {
			out = append(out, f.Clone())
		}
	}
	return out
}

// Summary aggregates the items in window
func (c *Collector) Summary(window time.Duration) Summary {
	items := c.Recent(window)
	s := Summary{
		WindowSeconds: window.Seconds(),
		Total:         len(items),
		CountsByKind:  make(map[Kind]int),
		Trend:         TrendInsufficientData,
	}

	var ratings []float64
	for _, f := range items {
		s.CountsByKind[f.Kind]++
		if f.Rating != nil {
			ratings = append(ratings, *f.Rating)
		}
	}

	s.RatedCount = len(ratings)
	if len(ratings) > 0 {
		s.MeanRating = mean(ratings)
	}
	if len(ratings) >= minTrendItems {
		half := len(ratings) / 2
		diff := mean(ratings[len(ratings)-half:]) - mean(ratings[:half])
		switch {
		case diff > 0.5:
			s.Trend = TrendImproving
		case diff < -0.5:
			s.Trend = TrendDeclining
		default:
			s.Trend = TrendStable
		}
	}

	return s
}

// Len returns the number of retained items
func (c *Collector) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.items)
}

// Export returns a copy of the whole history, oldest first
func (c *Collector) Export() []Feedback {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]Feedback, len(c.items))
	for i, f := range c.items {
		out[i] = f.Clone()
	}
	return out
}

// Restore replaces the history, keeping the newest items up to capacity
func (c *Collector) Restore(items []Feedback) {
	if len(items) > c.capacity {
		items = items[len(items)-c.capacity:]
	}
	restored := make([]Feedback, len(items))
	for i, f := range items {
		restored[i] = f.Clone()
	}

	c.mu.Lock()
	c.items = restored
	c.mu.Unlock()
}

func mean(values []float64) float64 {
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

func withValue(ctx map[string]interface{}, key string, value interface{}) map[string]interface{} {
	out := copyContext(ctx)
	if out == nil {
		out = make(map[string]interface{}, 1)
	}
	out[key] = value
	return out
}
