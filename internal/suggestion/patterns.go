package suggestion

import (
	"context"
	"fmt"
	"math"
	"sort"
)

// PatternProducer suggests continuing activity sequences that keep recurring
type PatternProducer struct {
	minOccurrences int
	maxPatterns    int
}

// NewPatternProducer creates a pattern producer. Pairs seen fewer than
// minOccurrences times are ignored and at most maxPatterns are emitted.
func NewPatternProducer(minOccurrences, maxPatterns int) *PatternProducer {
	if minOccurrences < 2 {
		minOccurrences = 2
	}
	if maxPatterns <= 0 {
		maxPatterns = 3
	}
	return &PatternProducer{
		minOccurrences: minOccurrences,
		maxPatterns:    maxPatterns,
	}
}

type sequence struct {
	from, to string
	count    int
}

// Name implements Producer
func (p *PatternProducer) Name() string {
	return string(SourcePattern)
}

// Produce implements Producer
func (p *PatternProducer) Produce(_ context.Context, in *Input) []Suggestion {
	sequences := p.detect(in)
	if len(sequences) == 0 {
		return nil
	}

	current := ""
	if n := len(in.History); n > 0 {
		current = in.History[n-1].Type
	}

	out := make([]Suggestion, 0, len(sequences))
	for _, seq := range sequences {
		confidence := math.Min(0.9, 0.3+0.15*float64(seq.count))
		if seq.from == current {
			// the first half of the pair is what the user is doing right now
			confidence = math.Min(0.9, confidence+0.1)
		}

		out = append(out, Suggestion{
			Category:       CategoryWorkflow,
			Title:          fmt.Sprintf("Continue workflow: %s → %s", seq.from, seq.to),
			Description:    fmt.Sprintf("You often move from %s to %s (%d times recently). Line up %s next.", seq.from, seq.to, seq.count, seq.to),
			Actions:        []string{fmt.Sprintf("Prepare for %s", seq.to)},
			BaseConfidence: confidence,
			Source:         SourcePattern,
		})
	}
	return out
}

// detect counts consecutive (A,B) pairs with A != B
func (p *PatternProducer) detect(in *Input) []sequence {
	counts := make(map[[2]string]int)
	for i := 1; i < len(in.History); i++ {
		from, to := in.History[i-1].Type, in.History[i].Type
		if from == to {
			continue
		}
		counts[[2]string{from, to}]++
	}

	var sequences []sequence
	for pair, count := range counts {
		if count >= p.minOccurrences {
			sequences = append(sequences, sequence{from: pair[0], to: pair[1], count: count})
		}
	}

	sort.Slice(sequences, func(i, j int) bool {
		if sequences[i].count != sequences[j].count {
			return sequences[i].count > sequences[j].count
		}
		if sequences[i].from != sequences[j].from {
			return sequences[i].from < sequences[j].from
		}
		return sequences[i].to < sequences[j].to
	})

	if len(sequences) > p.maxPatterns {
		sequences = sequences[:p.maxPatterns]
	}
	return sequences
}
