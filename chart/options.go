package chart

import (
	"math"

	"github.com/ling0322/hiero/grammar"
)

// ChildRef references the hypotheses of a narrower span with one label
type ChildRef struct {
	Range Range
	Label grammar.Label
	Store *HypothesisStore
}

// TranslationOption is a rule applied to a span, with one child reference per
// source slot in source order. It is immutable once created
type TranslationOption struct {
	ID       int
	Rule     *grammar.Rule
	Children []ChildRef

	// RuleEstimate is the estimate of the rule alone. Estimate adds the best
	// score of every child
	RuleEstimate float64
	Estimate     float64

	// Synthetic is true for unknown-word pass-through options
	Synthetic bool
}

// newTranslationOption creates an option and computes its estimate
func newTranslationOption(id int, rule *grammar.Rule, children []ChildRef, ruleEstimate float64) *TranslationOption {
	estimate := ruleEstimate
	for _, child := range children {
		estimate += child.Store.Best().Score
	}
	return &TranslationOption{
		ID:           id,
		Rule:         rule,
		Children:     children,
		RuleEstimate: ruleEstimate,
		Estimate:     estimate,
	}
}

// better orders options by descending estimate, ties by insertion order
func better(a, b *TranslationOption) bool {
	if a.Estimate != b.Estimate {
		return a.Estimate > b.Estimate
	}
	return a.ID < b.ID
}

// nthElement partially orders options so that options[n] is where a full sort
// would put it, and all options before it are better. Expected O(len(options))
func nthElement(options []*TranslationOption, n int) {
	lo, hi := 0, len(options)-1
	for lo < hi {
		mid := lo + (hi-lo)/2
		pivot := options[mid]
		options[mid], options[hi] = options[hi], options[mid]
		store := lo
		for i := lo; i < hi; i++ {
			if better(options[i], pivot) {
				options[store], options[i] = options[i], options[store]
				store++
			}
		}
		options[store], options[hi] = options[hi], options[store]

		switch {
		case store == n:
			return
		case store < n:
			lo = store + 1
		default:
			hi = store - 1
		}
	}
}

// TranslationOptionSet collects the options of one span and keeps the best
// ruleLimit of them. A ruleLimit of 0 means no limit
type TranslationOptionSet struct {
	options   []*TranslationOption
	ruleLimit int

	// Options scoring not above threshold can not enter the best ruleLimit
	threshold float64
	rejected  int
}

// NewTranslationOptionSet creates an empty set
func NewTranslationOptionSet(ruleLimit int) *TranslationOptionSet {
	return &TranslationOptionSet{
		ruleLimit: ruleLimit,
		threshold: math.Inf(1),
	}
}

// Add adds option into the set. Returns false if it was rejected by the
// running threshold
func (s *TranslationOptionSet) Add(option *TranslationOption) bool {
	if s.ruleLimit <= 0 {
		s.options = append(s.options, option)
		return true
	}

	if len(s.options) < s.ruleLimit {
		s.options = append(s.options, option)
		s.threshold = math.Min(s.threshold, option.Estimate)
	} else if option.Estimate > s.threshold {
		s.options = append(s.options, option)
	} else {
		s.rejected++
		return false
	}

	// Compact when twice as big as needed
	if len(s.options) > s.ruleLimit*2 {
		nthElement(s.options, s.ruleLimit)
		for _, dropped := range s.options[s.ruleLimit:] {
			s.threshold = math.Max(s.threshold, dropped.Estimate)
		}
		s.rejected += len(s.options) - s.ruleLimit
		s.options = s.options[:s.ruleLimit]
	}
	return true
}

// ApplyThreshold drops the options scoring below best - threshold. Does
// nothing when threshold is not positive
func (s *TranslationOptionSet) ApplyThreshold(threshold float64) {
	if threshold <= 0 || len(s.options) == 0 {
		return
	}
	best := math.Inf(-1)
	for _, option := range s.options {
		best = math.Max(best, option.Estimate)
	}
	kept := s.options[:0]
	for _, option := range s.options {
		if option.Estimate >= best-threshold {
			kept = append(kept, option)
		} else {
			s.rejected++
		}
	}
	s.options = kept
}

// Finalize keeps at most ruleLimit options with the best estimates and
// returns them. The order of the returned options is unspecified
func (s *TranslationOptionSet) Finalize(ruleLimit int) []*TranslationOption {
	if ruleLimit > 0 && len(s.options) > ruleLimit {
		nthElement(s.options, ruleLimit)
		s.rejected += len(s.options) - ruleLimit
		s.options = s.options[:ruleLimit]
	}
	return s.options
}

// Len returns the number of options currently kept
func (s *TranslationOptionSet) Len() int {
	return len(s.options)
}

// Rejected returns the number of options dropped so far
func (s *TranslationOptionSet) Rejected() int {
	return s.rejected
}
