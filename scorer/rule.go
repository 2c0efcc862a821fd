package scorer

import (
	"github.com/ling0322/hiero/chart"
	"github.com/ling0322/hiero/grammar"
)

// RuleScore is the weighted score of the applied rule. It keeps no state
type RuleScore struct {
	Weight float64
}

func (s *RuleScore) Name() string {
	return RuleScoreName
}

func (s *RuleScore) EvaluateComplete(partial *chart.Hypothesis, children []*chart.Hypothesis, id int) (float64, chart.State) {
	return s.Weight * partial.Rule().Score, nil
}

func (s *RuleScore) EstimateRule(rule *grammar.Rule) float64 {
	return s.Weight * rule.Score
}

// WordPenalty scores each target word produced by a rule with Weight
type WordPenalty struct {
	Weight float64
}

func (p *WordPenalty) Name() string {
	return WordPenaltyName
}

func (p *WordPenalty) EvaluateComplete(partial *chart.Hypothesis, children []*chart.Hypothesis, id int) (float64, chart.State) {
	return p.EstimateRule(partial.Rule()), nil
}

func (p *WordPenalty) EstimateRule(rule *grammar.Rule) float64 {
	return p.Weight * float64(rule.TargetWords())
}
