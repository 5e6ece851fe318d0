package feedback

import (
	"log/slog"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRegistry map[string]bool

func (r fakeRegistry) Known(id string) bool { return r[id] }

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newTestCollector(registry Registry) (*Collector, *clock) {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
	clk := &clock{now: time.Date(2025, 10, 15, 10, 0, 0, 0, time.UTC)}
	return NewCollector(100, registry, clk.Now, logger), clk
}

func TestEditRating(t *testing.T) {
	tests := []struct {
		name     string
		original string
		edited   string
		expected float64
	}{
		{"heavy cut", strings.Repeat("a", 100), strings.Repeat("a", 10), 2},
		{"unchanged length", strings.Repeat("a", 100), strings.Repeat("b", 100), 4},
		{"slightly shorter", strings.Repeat("a", 100), strings.Repeat("a", 80), 4},
		{"slightly longer", strings.Repeat("a", 100), strings.Repeat("a", 120), 4},
		{"moderately shorter", strings.Repeat("a", 100), strings.Repeat("a", 60), 3},
		{"much longer", strings.Repeat("a", 100), strings.Repeat("a", 200), 3},
		{"empty original", "", "new text", 3},
		{"multibyte runes", "ääää", "ää", 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, EditRating(tt.original, tt.edited))
		})
	}
}

func TestRecordEdit(t *testing.T) {
	c, _ := newTestCollector(nil)

	f, err := c.RecordEdit(strings.Repeat("x", 100), strings.Repeat("x", 10), "suggestion_text", "s-1", nil)
	require.NoError(t, err)

	assert.Equal(t, KindEdit, f.Kind)
	require.True(t, f.HasRating())
	assert.Equal(t, 2.0, f.RatingValue())
	assert.NotEmpty(t, f.ID)
	assert.False(t, f.Timestamp.IsZero())

	ratio, ok := f.EditRatio()
	assert.True(t, ok)
	assert.InDelta(t, 0.1, ratio, 1e-9)
}

func TestRecordThumbs(t *testing.T) {
	c, _ := newTestCollector(fakeRegistry{"s-1": true})

	up, err := c.RecordThumbs(true, "s-1", nil)
	require.NoError(t, err)
	assert.Equal(t, KindAccept, up.Kind)
	assert.Equal(t, 5.0, up.RatingValue())
	assert.Equal(t, "thumbs", up.Context["source"])

	down, err := c.RecordThumbs(false, "", map[string]interface{}{"screen": "dashboard"})
	require.NoError(t, err)
	assert.Equal(t, KindReject, down.Kind)
	assert.Equal(t, 1.0, down.RatingValue())
	assert.True(t, down.Negative())

	_, err = c.RecordThumbs(true, "never-issued", nil)
	assert.ErrorIs(t, err, ErrUnknownSuggestion)
	assert.Equal(t, 2, c.Len(), "rejected feedback is not stored")
}

func TestRecordRating_Validation(t *testing.T) {
	c, _ := newTestCollector(nil)

	for _, v := range []float64{0, 0.99, 5.01, -1} {
		_, err := c.RecordRating(v, KindRating, "", "", nil)
		assert.ErrorIs(t, err, ErrInvalidRating, "rating %v", v)
	}

	_, err := c.RecordRating(3, Kind("thumbs"), "", "", nil)
	assert.ErrorIs(t, err, ErrInvalidKind)

	f, err := c.RecordRating(4.5, KindRating, "", "nice", nil)
	require.NoError(t, err)
	assert.Equal(t, "nice", f.Comment)
	assert.Equal(t, 1, c.Len())
}

func TestRecord_ImmutableCopies(t *testing.T) {
	c, _ := newTestCollector(nil)
	ctx := map[string]interface{}{"k": "v"}

	f, err := c.RecordRating(3, KindRating, "", "", ctx)
	require.NoError(t, err)

	ctx["k"] = "changed"
	*f.Rating = 1
	f.Context["k"] = "mutated"

	stored := c.Export()[0]
	assert.Equal(t, "v", stored.Context["k"])
	assert.Equal(t, 3.0, stored.RatingValue())
}

func TestCollector_CapacityKeepsNewest(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
	c := NewCollector(3, nil, nil, logger)

	for i := 1; i <= 5; i++ {
		_, err := c.RecordRating(float64(i), KindRating, "", "", nil)
		require.NoError(t, err)
	}

	items := c.Export()
	require.Len(t, items, 3)
	assert.Equal(t, 3.0, items[0].RatingValue())
	assert.Equal(t, 5.0, items[2].RatingValue())
}

func TestRecent(t *testing.T) {
	c, clk := newTestCollector(nil)

	_, _ = c.RecordRating(1, KindRating, "", "old", nil)
	clk.Advance(2 * time.Hour)
	_, _ = c.RecordRating(5, KindRating, "", "new", nil)

	recent := c.Recent(time.Hour)
	require.Len(t, recent, 1)
	assert.Equal(t, "new", recent[0].Comment)
	assert.Len(t, c.Recent(0), 2)
}

func TestSummary_Counts(t *testing.T) {
	c, clk := newTestCollector(nil)

	empty := c.Summary(24 * time.Hour)
	assert.Equal(t, 0, empty.Total)
	assert.Equal(t, TrendInsufficientData, empty.Trend)

	_, _ = c.RecordRating(2, KindRating, "", "stale", nil)
	clk.Advance(25 * time.Hour)
	_, _ = c.RecordThumbs(true, "", nil)
	_, _ = c.RecordThumbs(false, "", nil)
	_, _ = c.RecordEdit("abc", "abcd", "note", "", nil)

	s := c.Summary(24 * time.Hour)
	assert.Equal(t, 3, s.Total)
	assert.Equal(t, 1, s.CountsByKind[KindAccept])
	assert.Equal(t, 1, s.CountsByKind[KindReject])
	assert.Equal(t, 1, s.CountsByKind[KindEdit])
	assert.Equal(t, 0, s.CountsByKind[KindRating])
	assert.Equal(t, 3, s.RatedCount)
	assert.Equal(t, 86400.0, s.WindowSeconds)
}

func TestSummary_TrendAndMean(t *testing.T) {
	tests := []struct {
		name    string
		ratings []float64
		trend   Trend
		mean    float64
	}{
		{"too few", []float64{1, 5, 5}, TrendInsufficientData, 11.0 / 3},
		{"improving", []float64{1, 2, 4, 5}, TrendImproving, 3},
		{"declining", []float64{5, 5, 2, 1}, TrendDeclining, 3.25},
		{"stable", []float64{3, 4, 3, 4}, TrendStable, 3.5},
		{"exactly half a point", []float64{3, 3, 3.5, 3.5}, TrendStable, 3.25},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, clk := newTestCollector(nil)
			for _, r := range tt.ratings {
				_, err := c.RecordRating(r, KindRating, "", "", nil)
				require.NoError(t, err)
				clk.Advance(time.Minute)
			}

			s := c.Summary(24 * time.Hour)
			assert.Equal(t, tt.trend, s.Trend)
			assert.InDelta(t, tt.mean, s.MeanRating, 1e-9)
			assert.Equal(t, len(tt.ratings), s.RatedCount)
		})
	}
}

func TestExportRestore(t *testing.T) {
	c, _ := newTestCollector(nil)
	_, _ = c.RecordRating(4, KindRating, "", "a", map[string]interface{}{"x": 1.0})
	_, _ = c.RecordEdit("original text", "edited", "note", "n-1", nil)

	restored, _ := newTestCollector(nil)
	restored.Restore(c.Export())

	assert.Equal(t, c.Export(), restored.Export())
}
