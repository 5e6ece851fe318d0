package suggestion

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/saaga0h/jeeves-anticipation/internal/activity"
	"github.com/saaga0h/jeeves-anticipation/internal/analyzer"
	"github.com/saaga0h/jeeves-anticipation/internal/knowledge"
	"github.com/saaga0h/jeeves-anticipation/internal/learning"
)

// staticProducer returns fixed candidates
type staticProducer struct {
	name       string
	candidates []Suggestion
}

func (p *staticProducer) Name() string { return p.name }

func (p *staticProducer) Produce(_ context.Context, in *Input) []Suggestion {
	out := make([]Suggestion, len(p.candidates))
	copy(out, p.candidates)
	return out
}

// panickingProducer always panics
type panickingProducer struct{}

func (p *panickingProducer) Name() string { return "broken" }

func (p *panickingProducer) Produce(_ context.Context, in *Input) []Suggestion { panic("boom") }

// fakeSearcher returns canned results
type fakeSearcher struct {
	results []knowledge.Result
	err     error
}

func (f *fakeSearcher) SearchRelated(ctx context.Context, query string, topK int) ([]knowledge.Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return f.results, f.err
}

func history(types ...string) []activity.Event {
	events := make([]activity.Event, len(types))
	for i, t := range types {
		events[i] = activity.Event{
			Type:            t,
			Timestamp:       testNow.Add(time.Duration(i-len(types)) * 10 * time.Minute),
			DurationSeconds: 600,
			Intensity:       0.6,
		}
	}
	return events
}

func fullGenerator(t *testing.T) *Generator {
	t.Helper()
	templates, err := DefaultTemplates()
	require.NoError(t, err)

	return NewGenerator(GeneratorConfig{
		MaxSuggestions:  3,
		MinScore:        0.1,
		DefaultLifetime: 30 * time.Minute,
		Location:        time.UTC,
	}, testLogger(),
		NewTemplateProducer(templates, testLogger()),
		NewPatternProducer(2, 3),
		NewTimeOfDayProducer(60.1699, 24.9384, []string{"break", "rest", "idle"}),
	)
}

func TestGenerate_Deterministic(t *testing.T) {
	g := fullGenerator(t)
	events := history("coding", "email", "coding", "email", "coding", "researching", "coding")
	in := Input{
		Context:          analyzer.New(analyzer.DefaultConfig()).Analyze(events, testNow),
		History:          events,
		Profile:          learning.DefaultProfile(),
		Now:              testNow,
		RecentCategories: []Category{CategoryWorkflow},
	}

	first := g.Generate(context.Background(), in, 5)
	require.NotEmpty(t, first)
	for i := 0; i < 5; i++ {
		if diff := cmp.Diff(first, g.Generate(context.Background(), in, 5)); diff != "" {
			t.Fatalf("generation not deterministic (-first +again):\n%s", diff)
		}
	}
}

func TestGenerate_SortedTruncatedAndInRange(t *testing.T) {
	g := fullGenerator(t)
	events := history("coding", "email", "coding", "email", "coding", "email", "coding")
	in := Input{
		Context: analyzer.New(analyzer.DefaultConfig()).Analyze(events, testNow),
		History: events,
		Profile: learning.DefaultProfile(),
		Now:     time.Date(2025, 10, 15, 7, 0, 0, 0, time.UTC),
	}

	out := g.Generate(context.Background(), in, 2)
	require.Len(t, out, 2)
	assert.GreaterOrEqual(t, out[0].FinalScore, out[1].FinalScore)

	for _, s := range g.Generate(context.Background(), in, 10) {
		assert.GreaterOrEqual(t, s.FinalScore, 0.0)
		assert.LessOrEqual(t, s.FinalScore, 1.0)
		assert.NotEmpty(t, s.ID)
		require.NotNil(t, s.ExpiresAt)
		assert.True(t, s.ExpiresAt.After(s.CreatedAt))
	}
}

func TestGenerate_DeduplicatesByKey(t *testing.T) {
	g := NewGenerator(GeneratorConfig{Location: time.UTC}, testLogger(),
		&staticProducer{name: "a", candidates: []Suggestion{{Category: CategoryWellbeing, Title: "Take a break", BaseConfidence: 0.4}}},
		&staticProducer{name: "b", candidates: []Suggestion{{Category: CategoryWellbeing, Title: "Take a break", BaseConfidence: 0.7}}},
	)

	out := g.Generate(context.Background(), Input{Profile: learning.DefaultProfile(), Now: testNow}, 3)
	require.Len(t, out, 1)
	assert.Equal(t, 0.7, out[0].BaseConfidence)
}

func TestGenerate_ProducerPanicIsIsolated(t *testing.T) {
	g := NewGenerator(GeneratorConfig{Location: time.UTC}, testLogger(),
		&panickingProducer{},
		&staticProducer{name: "ok", candidates: []Suggestion{{Category: CategoryLearning, Title: "Read", BaseConfidence: 0.6}}},
	)

	out := g.Generate(context.Background(), Input{Profile: learning.DefaultProfile(), Now: testNow}, 3)
	require.Len(t, out, 1)
	assert.Equal(t, "Read", out[0].Title)
}

func TestGenerate_MinScoreFilter(t *testing.T) {
	g := NewGenerator(GeneratorConfig{MinScore: 0.5, Location: time.UTC}, testLogger(),
		&staticProducer{name: "s", candidates: []Suggestion{
			{Category: CategoryLearning, Title: "Weak", BaseConfidence: 0.2},
			{Category: CategoryLearning, Title: "Strong", BaseConfidence: 0.8},
		}},
	)

	out := g.Generate(context.Background(), Input{Profile: learning.DefaultProfile(), Now: testNow}, 3)
	require.Len(t, out, 1)
	assert.Equal(t, "Strong", out[0].Title)
}

func TestGenerate_PerTemplateLifetime(t *testing.T) {
	g := NewGenerator(GeneratorConfig{DefaultLifetime: 30 * time.Minute, Location: time.UTC}, testLogger(),
		&staticProducer{name: "s", candidates: []Suggestion{
			{Category: CategoryLearning, Title: "Default", BaseConfidence: 0.5},
			{Category: CategoryWellbeing, Title: "Short", BaseConfidence: 0.5, Lifetime: 5 * time.Minute},
		}},
	)

	for _, s := range g.Generate(context.Background(), Input{Profile: learning.DefaultProfile(), Now: testNow}, 3) {
		switch s.Title {
		case "Default":
			assert.Equal(t, testNow.Add(30*time.Minute), *s.ExpiresAt)
		case "Short":
			assert.Equal(t, testNow.Add(5*time.Minute), *s.ExpiresAt)
		}
	}
}

func TestGenerate_DetailPreferenceShapesText(t *testing.T) {
	g := NewGenerator(GeneratorConfig{Location: time.UTC}, testLogger(),
		&staticProducer{name: "s", candidates: []Suggestion{{
			Category:       CategoryProductivity,
			Title:          "Checkpoint",
			Description:    "First sentence. Second sentence.",
			Actions:        []string{"one", "two", "three"},
			BaseConfidence: 0.6,
		}}},
	)

	tests := []struct {
		detail      float64
		description string
		actions     []string
	}{
		{0.2, "First sentence.", []string{"one"}},
		{0.35, "First sentence. Second sentence.", []string{"one", "two"}},
		{0.5, "First sentence. Second sentence.", []string{"one", "two"}},
		{0.75, "First sentence. Second sentence.", []string{"one", "two"}},
		{0.9, "First sentence. Second sentence.", []string{"one", "two", "three"}},
	}

	for _, tt := range tests {
		profile := learning.DefaultProfile()
		profile.DetailPreference = tt.detail
		out := g.Generate(context.Background(), Input{Profile: profile, Now: testNow}, 3)
		require.Len(t, out, 1)
		assert.Equal(t, tt.description, out[0].Description, "detail %v", tt.detail)
		assert.Equal(t, tt.actions, out[0].Actions, "detail %v", tt.detail)
	}
}

func TestScore_Components(t *testing.T) {
	profile := learning.DefaultProfile()

	assert.Equal(t, 0.0, ProfileBonus(CategoryLearning, profile, 10))
	assert.InDelta(t, -0.1, ProfileBonus(CategoryLearning, profile, 22), 1e-9)

	profile.InterventionFrequency = 1
	profile.DetailPreference = 0
	assert.InDelta(t, 0.0, ProfileBonus(CategoryLearning, profile, 10), 1e-9)
	assert.InDelta(t, 0.1, ProfileBonus(CategoryWellbeing, profile, 10), 1e-9)

	focused := analyzer.Snapshot{FocusLevel: 0.9, TimeInStateSeconds: 4000}
	assert.Equal(t, 0.15, ContextBonus(CategoryWellbeing, focused))
	assert.Equal(t, 0.0, ContextBonus(CategoryWellbeing, analyzer.Snapshot{FocusLevel: 0.9}))

	assert.Equal(t, 0.0, RecencyPenalty(CategoryWellbeing, nil))
	assert.InDelta(t, 0.2, RecencyPenalty(CategoryWellbeing, []Category{CategoryWellbeing, CategoryWorkflow, CategoryWellbeing}), 1e-9)

	in := &Input{Profile: learning.DefaultProfile(), Now: testNow}
	assert.Equal(t, 1.0, Score(Suggestion{Category: CategoryLearning, BaseConfidence: 1.5}, in))
	assert.Equal(t, 0.0, Score(Suggestion{Category: CategoryLearning, BaseConfidence: -1}, in))
}

func TestPatternProducer(t *testing.T) {
	p := NewPatternProducer(2, 3)

	out := p.Produce(context.Background(), &Input{History: history("coding", "email", "coding", "email", "coding", "testing")})
	require.Len(t, out, 2)
	assert.Equal(t, "Continue workflow: coding → email", out[0].Title)
	assert.InDelta(t, 0.6, out[0].BaseConfidence, 1e-9)
	assert.Equal(t, "Continue workflow: email → coding", out[1].Title)
	assert.Equal(t, CategoryWorkflow, out[0].Category)
	assert.Equal(t, SourcePattern, out[0].Source)

	assert.Empty(t, p.Produce(context.Background(), &Input{History: history("coding", "coding", "email")}))
}

func TestPatternProducer_ConfidenceGrowsWithFrequency(t *testing.T) {
	p := NewPatternProducer(2, 3)

	two := p.Produce(context.Background(), &Input{History: history("a", "b", "x", "a", "b", "x")})
	many := p.Produce(context.Background(), &Input{History: history("a", "b", "a", "b", "a", "b", "a", "b", "x")})

	find := func(list []Suggestion, title string) Suggestion {
		for _, s := range list {
			if s.Title == title {
				return s
			}
		}
		t.Fatalf("missing %q", title)
		return Suggestion{}
	}

	title := "Continue workflow: a → b"
	assert.Greater(t, find(many, title).BaseConfidence, find(two, title).BaseConfidence)
	assert.LessOrEqual(t, find(many, title).BaseConfidence, 0.9)
}

func TestTimeOfDayProducer(t *testing.T) {
	p := NewTimeOfDayProducer(60.1699, 24.9384, []string{"break"})

	titles := func(out []Suggestion) []string {
		var list []string
		for _, s := range out {
			list = append(list, s.Title)
		}
		return list
	}

	morning := &Input{Now: time.Date(2025, 6, 16, 7, 0, 0, 0, time.UTC)}
	assert.Equal(t, []string{"Start strong"}, titles(p.Produce(context.Background(), morning)))

	afternoon := &Input{Now: time.Date(2025, 6, 16, 15, 0, 0, 0, time.UTC)}
	assert.Equal(t, []string{"Afternoon optimization"}, titles(p.Produce(context.Background(), afternoon)))

	long := &Input{
		Now:     time.Date(2025, 6, 16, 11, 0, 0, 0, time.UTC),
		Context: analyzer.Snapshot{PrimaryActivity: "coding", TimeInStateSeconds: 7201, EventCount: 3},
	}
	out := p.Produce(context.Background(), long)
	require.Len(t, out, 1)
	assert.Equal(t, "Take a break", out[0].Title)
	assert.Equal(t, CategoryWellbeing, out[0].Category)
	assert.Equal(t, 0.8, out[0].BaseConfidence)

	exactly := &Input{
		Now:     time.Date(2025, 6, 16, 11, 0, 0, 0, time.UTC),
		Context: analyzer.Snapshot{TimeInStateSeconds: 7200},
	}
	assert.Empty(t, p.Produce(context.Background(), exactly))
}

func TestTimeOfDayProducer_AfterDark(t *testing.T) {
	p := NewTimeOfDayProducer(60.1699, 24.9384, []string{"break"})
	// Helsinki in December: long dark by 18:00 UTC
	now := time.Date(2025, 12, 16, 18, 0, 0, 0, time.UTC)

	working := &Input{Now: now, Context: analyzer.Snapshot{PrimaryActivity: "coding", EventCount: 4}}
	found := false
	for _, s := range p.Produce(context.Background(), working) {
		if s.Title == "Screen time after dark" {
			found = true
		}
	}
	assert.True(t, found)

	for _, primary := range []string{"break", "Break"} {
		resting := &Input{Now: now, Context: analyzer.Snapshot{PrimaryActivity: primary, EventCount: 4}}
		for _, s := range p.Produce(context.Background(), resting) {
			assert.NotEqual(t, "Screen time after dark", s.Title, primary)
		}
	}
}

func TestTemplateProducer_KnowledgeTemplate(t *testing.T) {
	templates, err := DefaultTemplates()
	require.NoError(t, err)

	events := history("researching", "researching", "researching")
	in := &Input{
		Context: analyzer.Snapshot{PrimaryActivity: "researching", EventCount: 3},
		History: events,
		Profile: learning.DefaultProfile(),
		Now:     testNow,
	}

	hasKnowledge := func(out []Suggestion) bool {
		for _, s := range out {
			if strings.HasPrefix(s.Title, "Related notes") {
				return true
			}
		}
		return false
	}

	p := NewTemplateProducer(templates, testLogger())
	assert.False(t, hasKnowledge(p.Produce(context.Background(), in)), "no searcher configured")

	p = NewTemplateProducer(templates, testLogger()).WithKnowledge(&fakeSearcher{err: errors.New("down")}, 3, 0)
	assert.False(t, hasKnowledge(p.Produce(context.Background(), in)), "failing searcher")

	p = NewTemplateProducer(templates, testLogger()).WithKnowledge(&fakeSearcher{}, 3, 0)
	assert.False(t, hasKnowledge(p.Produce(context.Background(), in)), "no results")

	p = NewTemplateProducer(templates, testLogger()).WithKnowledge(&fakeSearcher{
		results: []knowledge.Result{{Content: "Notes on cache invalidation.", Score: 0.9}},
	}, 3, 0)
	out := p.Produce(context.Background(), in)
	require.True(t, hasKnowledge(out))
	for _, s := range out {
		if strings.HasPrefix(s.Title, "Related notes") {
			assert.Equal(t, "Related notes on researching", s.Title)
			assert.Contains(t, s.Description, "Notes on cache invalidation.")
			assert.Equal(t, CategoryLearning, s.Category)
		}
	}
}

func TestTemplateProducer_KnowledgeLookupFollowsCallerContext(t *testing.T) {
	templates, err := DefaultTemplates()
	require.NoError(t, err)

	in := &Input{
		Context: analyzer.Snapshot{PrimaryActivity: "researching", EventCount: 3},
		History: history("researching", "researching", "researching"),
		Profile: learning.DefaultProfile(),
		Now:     testNow,
	}
	p := NewTemplateProducer(templates, testLogger()).WithKnowledge(&fakeSearcher{
		results: []knowledge.Result{{Content: "Notes on cache invalidation.", Score: 0.9}},
	}, 3, 0)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	for _, s := range p.Produce(ctx, in) {
		assert.False(t, strings.HasPrefix(s.Title, "Related notes"), "cancelled tick skips the lookup")
	}

	found := false
	for _, s := range p.Produce(context.Background(), in) {
		if strings.HasPrefix(s.Title, "Related notes") {
			found = true
		}
	}
	assert.True(t, found)
}
