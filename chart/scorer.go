package chart

import (
	"github.com/ling0322/hiero/grammar"
)

// State is the part of a hypothesis a scorer needs to score future
// combinations. Hypotheses with equal keys for every scorer (and the same
// label) are recombined
type State interface {
	Key() string
}

// Scorer is a feature function evaluated when a hypothesis is built. The
// returned contribution is weighted and must be finite; -Inf rejects the
// hypothesis. id is the index of the scorer, so a stateful scorer finds its
// own state in the children with child.State(id)
type Scorer interface {
	Name() string
	EvaluateComplete(partial *Hypothesis, children []*Hypothesis, id int) (float64, State)
}

// RuleEstimator gives the score estimate of a rule before its children are
// known. When the manager has no estimator the grammar's estimate is used
type RuleEstimator interface {
	EstimateRule(rule *grammar.Rule) float64
}
