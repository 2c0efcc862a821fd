package chart

import (
	"sync"

	"github.com/ling0322/hiero/grammar"
)

// blockLoader is implemented by grammars loading their rules on demand. A
// block that failed to load is matched as empty and reported by BlockErr
type blockLoader interface {
	BlockErr(node *grammar.Node) error
}

// RuleMatcher finds the rules applying to a span with the CYK+ algorithm.
// Partially matched rules (dotted rules) covering [start, end] are cached, so
// wider spans extend them instead of walking the grammar from the root again
type RuleMatcher struct {
	grammars  []grammar.Grammar
	words     []string
	chart     *Chart
	estimator RuleEstimator
	opts      *Options

	// One arena per start position; spans of the same width never share one
	arenas []*dottedArena

	// dotted[start][end-start] holds the handles of the dotted rules covering
	// [start, end] that can still be extended
	dotted [][][]int32

	errLock sync.Mutex
	err     error
}

func newRuleMatcher(grammars []grammar.Grammar, words []string, chart *Chart, estimator RuleEstimator, opts *Options) *RuleMatcher {
	m := &RuleMatcher{
		grammars:  grammars,
		words:     words,
		chart:     chart,
		estimator: estimator,
		opts:      opts,
		arenas:    make([]*dottedArena, len(words)),
		dotted:    make([][][]int32, len(words)),
	}
	for start := range words {
		m.arenas[start] = newDottedArena()
		m.dotted[start] = make([][]int32, len(words)-start)
	}
	return m
}

// estimate returns the estimate of rule from grammar g (nil for synthetic
// rules)
func (m *RuleMatcher) estimate(rule *grammar.Rule, g grammar.Grammar) float64 {
	if m.estimator != nil {
		return m.estimator.EstimateRule(rule)
	}
	if g != nil {
		return g.EstimateScore(rule)
	}
	return rule.Score
}

// spanMatch is the state of MatchSpan for one span
type spanMatch struct {
	span    Range
	arena   *dottedArena
	options []*TranslationOption
}

// extend records the dotted rule reached by one more step. Completed rules
// become options, and rules that can grow are cached for wider spans
func (m *RuleMatcher) extend(sm *spanMatch, gi int, node *grammar.Node, parent int32, child Range, store *HypothesisStore) {
	handle, rule := sm.arena.alloc()
	rule.node = node
	rule.grammar = gi
	rule.parent = parent
	rule.child = child
	rule.store = store

	g := m.grammars[gi]
	if rules := g.CompletedRules(node); len(rules) != 0 {
		children := sm.arena.children(handle)
		for _, r := range rules {
			option := newTranslationOption(len(sm.options), r, children, m.estimate(r, g))
			sm.options = append(sm.options, option)
		}
	}

	if node.HasExtensions() && sm.span.End < len(m.words)-1 {
		cache := &m.dotted[sm.span.Start][sm.span.Width()-1]
		*cache = append(*cache, handle)
	}
}

// MatchSpan returns the translation options of span. Every narrower span
// must be Published
func (m *RuleMatcher) MatchSpan(span Range) []*TranslationOption {
	start, end := span.Start, span.End
	sm := &spanMatch{span: span, arena: m.arenas[start]}

	// Rules whose last symbol is the terminal at end
	word := grammar.Terminal(m.words[end])
	if start == end {
		for gi, g := range m.grammars {
			if node, ok := m.lookupRoot(g, word); ok {
				m.extend(sm, gi, node, -1, Range{}, nil)
			}
		}
	} else {
		for _, handle := range m.dotted[start][end-1-start] {
			prefix := sm.arena.get(handle)
			g := m.grammars[prefix.grammar]
			if node, ok := g.Lookup(prefix.node, word); ok {
				m.extend(sm, prefix.grammar, node, handle, Range{}, nil)
			}
		}
	}

	// Rules whose last symbol is a non-terminal covering [mid, end]. A
	// non-terminal starting at start would cover the whole span
	for mid := start + 1; mid <= end; mid++ {
		cell := m.chart.Cell(Range{Start: mid, End: end})
		if len(cell.Labels()) == 0 {
			continue
		}
		for _, handle := range m.dotted[start][mid-1-start] {
			prefix := sm.arena.get(handle)
			g := m.grammars[prefix.grammar]
			for _, label := range g.NonTerminalEdges(prefix.node) {
				store := cell.Store(label)
				if store == nil {
					continue
				}
				if node, ok := g.Lookup(prefix.node, grammar.NonTerminal(label)); ok {
					m.extend(sm, prefix.grammar, node, handle, cell.Range, store)
				}
			}
		}
	}

	if start == end && len(sm.options) == 0 && m.opts.AllowUnknownWordFallback {
		sm.options = append(sm.options, m.unknownWord(m.words[end]))
	}
	return sm.options
}

// unknownWord creates the pass-through option of an ungrammared word
func (m *RuleMatcher) unknownWord(word string) *TranslationOption {
	rule := &grammar.Rule{
		LHS:    m.opts.DefaultLabel,
		Source: []grammar.Symbol{grammar.Terminal(word)},
		Target: []grammar.TargetToken{{Word: word, Slot: -1}},
		Score:  m.opts.UnknownWordScore,
	}
	option := newTranslationOption(0, rule, nil, m.estimate(rule, nil))
	option.Synthetic = true
	return option
}

// AddPublished caches the chains made of a single non-terminal covering span,
// once span is Published, for the wider spans starting at the same position
func (m *RuleMatcher) AddPublished(span Range) {
	if span.End >= len(m.words)-1 {
		return
	}
	cell := m.chart.Cell(span)
	arena := m.arenas[span.Start]
	cache := &m.dotted[span.Start][span.Width()-1]
	for gi, g := range m.grammars {
		root := g.Root()
		for _, label := range g.NonTerminalEdges(root) {
			store := cell.Store(label)
			if store == nil {
				continue
			}
			node, ok := m.lookupRoot(g, grammar.NonTerminal(label))
			if !ok || !node.HasExtensions() {
				continue
			}
			handle, rule := arena.alloc()
			rule.node = node
			rule.grammar = gi
			rule.parent = -1
			rule.child = span
			rule.store = store
			*cache = append(*cache, handle)
		}
	}
}

// lookupRoot steps from the root of g along symbol, recording the error of a
// grammar block that could not be loaded
func (m *RuleMatcher) lookupRoot(g grammar.Grammar, symbol grammar.Symbol) (*grammar.Node, bool) {
	node, ok := g.Lookup(g.Root(), symbol)
	if !ok {
		return nil, false
	}
	if loader, isLoader := g.(blockLoader); isLoader {
		if err := loader.BlockErr(node); err != nil {
			m.errLock.Lock()
			if m.err == nil {
				m.err = err
			}
			m.errLock.Unlock()
		}
	}
	return node, true
}

// Err returns the first grammar error met while matching this sentence
func (m *RuleMatcher) Err() error {
	m.errLock.Lock()
	defer m.errLock.Unlock()
	return m.err
}

// DottedRules returns the number of dotted rules created so far
func (m *RuleMatcher) DottedRules() int {
	n := 0
	for _, arena := range m.arenas {
		n += arena.Len()
	}
	return n
}
