package chart

import (
	"fmt"
	"strings"

	"github.com/ling0322/hiero/grammar"
)

// Hypothesis is a fully scored derivation of a span. Children are shared with
// other hypotheses; a hypothesis is not modified after its cell is published
type Hypothesis struct {
	Range    Range
	Label    grammar.Label
	Option   *TranslationOption
	Children []*Hypothesis

	// Score is the total score; Scores holds the part of each scorer
	Score  float64
	Scores []float64
	States []State

	// Seq is the creation order of the hypothesis inside its span
	Seq int

	key string

	// Hypotheses recombined into this one, kept only when n-best is enabled
	arcs   []*Hypothesis
	winner *Hypothesis
}

// Rule returns the rule applied by h
func (h *Hypothesis) Rule() *grammar.Rule {
	return h.Option.Rule
}

// ID returns an identifier unique inside the chart, like "0-2:5"
func (h *Hypothesis) ID() string {
	return fmt.Sprintf("%d-%d:%d", h.Range.Start, h.Range.End, h.Seq)
}

// State returns the state set by scorer id
func (h *Hypothesis) State(id int) State {
	return h.States[id]
}

// Key returns the recombination key of h
func (h *Hypothesis) Key() string {
	return h.key
}

// Arcs returns the hypotheses recombined into h
func (h *Hypothesis) Arcs() []*Hypothesis {
	return h.arcs
}

// Winner returns the hypothesis h was recombined into, h itself if h won
func (h *Hypothesis) Winner() *Hypothesis {
	if h.winner == nil {
		return h
	}
	return h.winner
}

// recombinationKey combines the label and the state of every scorer
func recombinationKey(label grammar.Label, states []State) string {
	var b strings.Builder
	b.WriteString(string(label))
	for _, state := range states {
		b.WriteByte(0)
		if state != nil {
			b.WriteString(state.Key())
		}
	}
	return b.String()
}

// yield appends the target words of rule to words, expanding each slot with
// expand
func yield(rule *grammar.Rule, words []string, expand func(slot int, words []string) []string) []string {
	for _, tok := range rule.Target {
		if tok.IsTerminal() {
			words = append(words, tok.Word)
		} else {
			words = expand(tok.Slot, words)
		}
	}
	return words
}

func (h *Hypothesis) appendWords(words []string) []string {
	return yield(h.Rule(), words, func(slot int, words []string) []string {
		return h.Children[slot].appendWords(words)
	})
}

// Words returns the target words of h
func (h *Hypothesis) Words() []string {
	return h.appendWords(nil)
}

// Output returns the translation of h
func (h *Hypothesis) Output() string {
	return strings.Join(h.Words(), " ")
}

func (h *Hypothesis) String() string {
	return fmt.Sprintf("%s %s %.4f %s", h.ID(), h.Label, h.Score, h.Output())
}
