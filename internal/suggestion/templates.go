package suggestion

import (
	"bytes"
	"context"
	_ "embed"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
	"text/template"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/saaga0h/jeeves-anticipation/internal/cooldown"
	"github.com/saaga0h/jeeves-anticipation/internal/knowledge"
	"github.com/saaga0h/jeeves-anticipation/internal/learning"
)

//go:embed templates.yaml
var defaultTemplatesYAML []byte

// Condition is the trigger predicate of a template. Unset bounds do not constrain.
type Condition struct {
	MinFocus          *float64 `yaml:"min_focus"`
	MaxFocus          *float64 `yaml:"max_focus"`
	MinProductivity   *float64 `yaml:"min_productivity"`
	MaxProductivity   *float64 `yaml:"max_productivity"`
	MinTransition     *float64 `yaml:"min_transition"`
	MinTimeInStateSec float64  `yaml:"min_time_in_state_sec"`
	MaxTimeInStateSec float64  `yaml:"max_time_in_state_sec"`
	Activities        []string `yaml:"activities"`
	MinHistory        int      `yaml:"min_history"`
	Knowledge         bool     `yaml:"knowledge"`
}

// Template is a context-triggered suggestion rule
type Template struct {
	ID              string    `yaml:"id"`
	Category        Category  `yaml:"category"`
	Title           string    `yaml:"title"`
	Description     string    `yaml:"description"`
	Actions         []string  `yaml:"actions"`
	Confidence      float64   `yaml:"confidence"`
	LifetimeMinutes int       `yaml:"lifetime_minutes"`
	When            Condition `yaml:"when"`

	title       *template.Template
	description *template.Template
}

type catalogue struct {
	Templates []Template `yaml:"templates"`
}

// templateData is the value templates are rendered with
type templateData struct {
	Activity     string
	Minutes      int
	Focus        int
	Productivity int
	Related      string
	Closing      string
}

// DefaultTemplates returns the built-in template catalogue
func DefaultTemplates() ([]Template, error) {
	return ParseTemplates(defaultTemplatesYAML)
}

// LoadTemplates reads a YAML catalogue from path, or the built-in one when path is empty
func LoadTemplates(path string) ([]Template, error) {
	if path == "" {
		return DefaultTemplates()
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read templates file: %w", err)
	}
	return ParseTemplates(data)
}

// ParseTemplates decodes, validates and compiles a YAML catalogue
func ParseTemplates(data []byte) ([]Template, error) {
	var c catalogue
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("failed to parse templates: %w", err)
	}

	seen := make(map[string]bool, len(c.Templates))
	for i := range c.Templates {
		t := &c.Templates[i]
		if t.ID == "" {
			return nil, fmt.Errorf("template %d: missing id", i)
		}
		if seen[t.ID] {
			return nil, fmt.Errorf("template %s: duplicate id", t.ID)
		}
		seen[t.ID] = true

		if !t.Category.Valid() {
			return nil, fmt.Errorf("template %s: unknown category %q", t.ID, t.Category)
		}
		if t.Confidence < 0 || t.Confidence > 1 {
			return nil, fmt.Errorf("template %s: confidence %.2f outside [0,1]", t.ID, t.Confidence)
		}
		if t.LifetimeMinutes < 0 {
			return nil, fmt.Errorf("template %s: negative lifetime", t.ID)
		}

		var err error
		if t.title, err = template.New(t.ID + ".title").Parse(t.Title); err != nil {
			return nil, fmt.Errorf("template %s: invalid title: %w", t.ID, err)
		}
		if t.description, err = template.New(t.ID + ".description").Parse(t.Description); err != nil {
			return nil, fmt.Errorf("template %s: invalid description: %w", t.ID, err)
		}
	}

	return c.Templates, nil
}

// Matches evaluates the trigger predicate
func (c Condition) Matches(in *Input) bool {
	ctx := in.Context
	if c.MinFocus != nil && ctx.FocusLevel < *c.MinFocus {
		return false
	}
	if c.MaxFocus != nil && ctx.FocusLevel > *c.MaxFocus {
		return false
	}
	if c.MinProductivity != nil && ctx.ProductivityScore < *c.MinProductivity {
		return false
	}
	if c.MaxProductivity != nil && ctx.ProductivityScore > *c.MaxProductivity {
		return false
	}
	if c.MinTransition != nil && ctx.TransitionProbability < *c.MinTransition {
		return false
	}
	if ctx.TimeInStateSeconds < c.MinTimeInStateSec {
		return false
	}
	if c.MaxTimeInStateSec > 0 && ctx.TimeInStateSeconds > c.MaxTimeInStateSec {
		return false
	}
	if len(in.History) < c.MinHistory {
		return false
	}
	if len(c.Activities) > 0 && !containsFold(c.Activities, ctx.PrimaryActivity) {
		return false
	}
	return true
}

// TemplateProducer fires templates whose conditions hold
type TemplateProducer struct {
	mu        sync.RWMutex
	templates []Template
	knowledge knowledge.Searcher
	topK      int
	timeout   time.Duration
	failures  *cooldown.Tracker
	logger    *slog.Logger
}

// knowledgeWarnInterval limits how often a failing knowledge backend is
// reported at Warn; the remaining failures go to Debug
const knowledgeWarnInterval = 5 * time.Minute

// NewTemplateProducer creates a producer over compiled templates
func NewTemplateProducer(templates []Template, logger *slog.Logger) *TemplateProducer {
	return &TemplateProducer{
		templates: templates,
		topK:      3,
		timeout:   100 * time.Millisecond,
		failures:  cooldown.NewTracker(),
		logger:    logger,
	}
}

// WithKnowledge enables knowledge-backed templates. A nil searcher leaves them disabled.
func (p *TemplateProducer) WithKnowledge(s knowledge.Searcher, topK int, timeout time.Duration) *TemplateProducer {
	p.knowledge = s
	if topK > 0 {
		p.topK = topK
	}
	if timeout > 0 {
		p.timeout = timeout
	}
	return p
}

// Name implements Producer
func (p *TemplateProducer) Name() string {
	return string(SourceTemplate)
}

// SetTemplates replaces the catalogue. Generations already running keep the old one.
func (p *TemplateProducer) SetTemplates(templates []Template) {
	p.mu.Lock()
	p.templates = templates
	p.mu.Unlock()
}

// Templates returns the current catalogue
func (p *TemplateProducer) Templates() []Template {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.templates
}

// Produce implements Producer
func (p *TemplateProducer) Produce(ctx context.Context, in *Input) []Suggestion {
	data := templateData{
		Activity:     in.Context.PrimaryActivity,
		Minutes:      int(in.Context.TimeInStateSeconds / 60),
		Focus:        int(in.Context.FocusLevel*100 + 0.5),
		Productivity: int(in.Context.ProductivityScore*100 + 0.5),
		Closing:      closingPhrase(in.Profile.EncouragementStyle),
	}

	p.mu.RLock()
	templates := p.templates
	p.mu.RUnlock()

	var out []Suggestion
	for i := range templates {
		t := &templates[i]
		if !t.When.Matches(in) {
			continue
		}

		d := data
		if t.When.Knowledge {
			related, ok := p.related(ctx, in)
			if !ok {
				continue
			}
			d.Related = related
		}

		title, err := render(t.title, d)
		if err != nil {
			p.logger.Warn("Failed to render template title", "template", t.ID, "error", err)
			continue
		}
		description, err := render(t.description, d)
		if err != nil {
			p.logger.Warn("Failed to render template description", "template", t.ID, "error", err)
			continue
		}

		out = append(out, Suggestion{
			Category:       t.Category,
			Title:          title,
			Description:    description,
			Actions:        append([]string(nil), t.Actions...),
			BaseConfidence: t.Confidence,
			Source:         SourceTemplate,
			Lifetime:       time.Duration(t.LifetimeMinutes) * time.Minute,
		})
	}

	return out
}

// related returns the best matching knowledge item, if any
func (p *TemplateProducer) related(ctx context.Context, in *Input) (string, bool) {
	if p.knowledge == nil {
		return "", false
	}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	results, err := p.knowledge.SearchRelated(ctx, in.Context.PrimaryActivity, p.topK)
	if err != nil {
		if p.failures.Allow("knowledge", in.Now, knowledgeWarnInterval) {
			p.logger.Warn("Knowledge lookup failed, knowledge templates skipped", "error", err)
		} else {
			p.logger.Debug("Knowledge lookup failed", "error", err)
		}
		return "", false
	}
	if len(results) == 0 {
		return "", false
	}
	return results[0].Content, true
}

func render(t *template.Template, data templateData) (string, error) {
	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return "", err
	}
	return strings.Join(strings.Fields(buf.String()), " "), nil
}

func closingPhrase(style learning.EncouragementStyle) string {
	switch style {
	case learning.StyleDirect:
		return "Do it now."
	case learning.StyleCelebratory:
		return "You're doing great!"
	case learning.StyleMinimal:
		return ""
	default:
		return "You've got this."
	}
}

func containsFold(values []string, v string) bool {
	for _, candidate := range values {
		if strings.EqualFold(candidate, v) {
			return true
		}
	}
	return false
}
