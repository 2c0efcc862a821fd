package chart

import (
	"context"
	"strings"
	"testing"

	"github.com/ling0322/hiero/grammar"
)

// ruleScore scores a hypothesis by its rule score and keeps no state, so all
// hypotheses of a (span, label) recombine
type ruleScore struct{}

func (ruleScore) Name() string { return "rule" }

func (ruleScore) EvaluateComplete(partial *Hypothesis, children []*Hypothesis, id int) (float64, State) {
	return partial.Rule().Score, nil
}

type outputState string

func (s outputState) Key() string { return string(s) }

// outputScore keeps the output as state, so only identical translations
// recombine
type outputScore struct{}

func (outputScore) Name() string { return "output" }

func (outputScore) EvaluateComplete(partial *Hypothesis, children []*Hypothesis, id int) (float64, State) {
	words := yield(partial.Rule(), nil, func(slot int, words []string) []string {
		return append(words, children[slot].Words()...)
	})
	return 0, outputState(strings.Join(words, " "))
}

func mustGrammar(t *testing.T, text string) grammar.Grammar {
	g, err := grammar.ParseGrammar(text)
	if err != nil {
		t.Fatal(err)
	}
	return g
}

func decode(t *testing.T, text, sentence string, opts Options, scorers ...Scorer) (*Manager, *Result) {
	if len(scorers) == 0 {
		scorers = []Scorer{ruleScore{}}
	}
	m := NewManager(strings.Fields(sentence), []grammar.Grammar{mustGrammar(t, text)}, scorers, opts)
	return m, m.Decode(context.Background())
}

// generousOptions disables every pruning
func generousOptions() Options {
	opts := DefaultOptions()
	opts.RuleLimit = 0
	opts.PopLimit = 0
	opts.BeamWidth = 0
	opts.MaxStackSize = 0
	return opts
}

func testRule(t *testing.T, text string) *grammar.Rule {
	rules, err := grammar.ParseRule(text)
	if err != nil {
		t.Fatal(err)
	}
	return rules[0]
}

// finalizedStore returns a finalized store holding one hypothesis per score
func finalizedStore(t *testing.T, label grammar.Label, scores ...float64) *HypothesisStore {
	rule := testRule(t, "[X] ::= a => a")
	store := NewHypothesisStore(label, 0, 0, false)
	for i, score := range scores {
		hypo := &Hypothesis{
			Label:  label,
			Option: &TranslationOption{Rule: rule},
			Score:  score,
			Seq:    i,
		}
		hypo.key = recombinationKey(label, []State{outputState(string(rune('a' + i)))})
		store.Insert(hypo)
	}
	store.Finalize()
	return store
}
