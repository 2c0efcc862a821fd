// Package scorer provides the feature functions of the decoder. Every scorer
// carries its weight and returns weighted scores
package scorer

import (
	"sort"

	"github.com/ling0322/hiero/chart"
	"github.com/ling0322/hiero/grammar"
	"github.com/tliron/commonlog"
)

var log = commonlog.GetLogger("hiero.scorer")

// Names of the built-in scorers, used as keys of the weights
const (
	RuleScoreName   = "rule"
	WordPenaltyName = "penalty"
	LMName          = "lm"
)

// Set is the list of scorers of a decoder. It estimates a rule by summing
// the estimates of the scorers able to estimate rules alone
type Set struct {
	scorers []chart.Scorer
}

// NewSet creates a set of scorers
func NewSet(scorers ...chart.Scorer) *Set {
	return &Set{scorers: scorers}
}

// Scorers returns the scorers in evaluation order
func (s *Set) Scorers() []chart.Scorer {
	return s.scorers
}

// Names returns the name of each scorer in evaluation order
func (s *Set) Names() []string {
	names := []string{}
	for _, scorer := range s.scorers {
		names = append(names, scorer.Name())
	}
	return names
}

// EstimateRule implements chart.RuleEstimator
func (s *Set) EstimateRule(rule *grammar.Rule) float64 {
	estimate := 0.0
	for _, scorer := range s.scorers {
		if estimator, ok := scorer.(chart.RuleEstimator); ok {
			estimate += estimator.EstimateRule(rule)
		}
	}
	return estimate
}

// Breakdown maps each scorer name to its part of the score of hypo
func (s *Set) Breakdown(hypo *chart.Hypothesis) map[string]float64 {
	breakdown := map[string]float64{}
	for i, scorer := range s.scorers {
		breakdown[scorer.Name()] = hypo.Scores[i]
	}
	return breakdown
}

// weight returns weights[name], or fallback when not set
func weight(weights map[string]float64, name string, fallback float64) float64 {
	if w, ok := weights[name]; ok {
		return w
	}
	return fallback
}

// UnknownWeights returns the names in weights that match no scorer of s,
// sorted
func (s *Set) UnknownWeights(weights map[string]float64) []string {
	known := map[string]bool{}
	for _, name := range s.Names() {
		known[name] = true
	}
	unknown := []string{}
	for name := range weights {
		if !known[name] {
			unknown = append(unknown, name)
		}
	}
	sort.Strings(unknown)
	return unknown
}

// Options creates the scorers of a decoder
type Options struct {
	Weights       map[string]float64
	WordPenalty   float64
	LanguageModel string
	LMOrder       int
}

// Load creates the rule scorer, the word penalty and, when a language model
// is given, the n-gram scorer
func Load(opts Options) (*Set, error) {
	scorers := []chart.Scorer{
		&RuleScore{Weight: weight(opts.Weights, RuleScoreName, 1)},
		&WordPenalty{Weight: weight(opts.Weights, WordPenaltyName, 1) * opts.WordPenalty},
	}
	if opts.LanguageModel != "" {
		lm, err := LoadNGramLM(opts.LanguageModel, opts.LMOrder)
		if err != nil {
			return nil, err
		}
		lm.Weight = weight(opts.Weights, LMName, 1)
		scorers = append(scorers, lm)
	}
	set := NewSet(scorers...)
	for _, name := range set.UnknownWeights(opts.Weights) {
		log.Warningf("weight of unknown scorer %s ignored", name)
	}
	return set, nil
}
