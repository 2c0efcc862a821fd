package chart

import (
	"context"
	"fmt"
	"math"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/ling0322/hiero/grammar"
	"github.com/tliron/commonlog"
	"golang.org/x/sync/errgroup"
)

// Options are the limits of one decode. They are passed explicitly so
// sentences decoded concurrently never share mutable settings
type Options struct {
	// RuleLimit keeps the best RuleLimit options per span, 0 for no limit
	RuleLimit int

	// OptionThreshold drops options estimated below best - OptionThreshold,
	// 0 disables it
	OptionThreshold float64

	// PopLimit bounds the hypotheses built per span, 0 for no limit
	PopLimit int

	// BeamWidth drops hypotheses scoring below best - BeamWidth in a store,
	// 0 disables it
	BeamWidth float64

	// MaxStackSize keeps the best MaxStackSize hypotheses per store, 0 for
	// no limit
	MaxStackSize int

	AllowUnknownWordFallback bool
	UnknownWordScore         float64
	DefaultLabel             grammar.Label

	// NBestEnabled keeps recombined hypotheses as arcs for GetNBest
	NBestEnabled bool

	// Goals restricts the labels accepted at the top span. Empty accepts
	// every label
	Goals []grammar.Label

	// SpanWorkers is the number of spans of the same width built
	// concurrently
	SpanWorkers int

	// TracePops records the estimate of every popped candidate in Stats
	TracePops bool
}

// DefaultOptions returns the options used when nothing is configured
func DefaultOptions() Options {
	return Options{
		RuleLimit:                20,
		PopLimit:                 1000,
		BeamWidth:                10,
		MaxStackSize:             100,
		AllowUnknownWordFallback: true,
		UnknownWordScore:         -100,
		DefaultLabel:             "X",
		SpanWorkers:              1,
	}
}

// Stats collects the counters of one sentence
type Stats struct {
	Spans         int
	Options       int
	OptionsPruned int
	DottedRules   int
	Seeded        int
	Pushed        int
	Popped        int
	Store         StoreStats

	// PopEstimates maps each span to its popped estimates, only when
	// Options.TracePops is set
	PopEstimates map[Range][]float64
}

// Status is the outcome of a decode
type Status int

const (
	Translated Status = iota
	NoTranslation
)

func (s Status) String() string {
	if s == Translated {
		return "Translated"
	}
	return "NoTranslation"
}

// Result is the outcome of Manager.Decode
type Result struct {
	Status Status
	Best   *Hypothesis

	// EarlyTerminated is set when the deadline expired and the remaining
	// spans were built with a pop limit of 1
	EarlyTerminated bool

	Stats Stats

	// Err is set when a grammar failed to load a block during the decode
	Err error
}

// Manager fills the chart of one sentence, span by span in increasing width,
// and keeps it for the queries made after the decode
type Manager struct {
	grammars  []grammar.Grammar
	scorers   []Scorer
	estimator RuleEstimator
	opts      Options
	words     []string

	chart   *Chart
	matcher *RuleMatcher

	early    atomic.Bool
	complete bool

	statsLock sync.Mutex
	stats     Stats
}

// NewManager creates the manager of one sentence
func NewManager(words []string, grammars []grammar.Grammar, scorers []Scorer, opts Options) *Manager {
	if opts.DefaultLabel == "" {
		opts.DefaultLabel = "X"
	}
	if opts.SpanWorkers < 1 {
		opts.SpanWorkers = 1
	}
	return &Manager{
		grammars: grammars,
		scorers:  scorers,
		opts:     opts,
		words:    words,
	}
}

// SetEstimator sets the rule estimator used instead of the grammar's
func (m *Manager) SetEstimator(estimator RuleEstimator) {
	m.estimator = estimator
}

// Chart returns the chart, nil before Decode
func (m *Manager) Chart() *Chart {
	return m.chart
}

// expired checks the sentence budget. Once expired it stays expired
func (m *Manager) expired(ctx context.Context) bool {
	if m.early.Load() {
		return true
	}
	if ctx.Err() != nil {
		m.early.Store(true)
		return true
	}
	return false
}

// Decode fills the chart and returns the best hypothesis of the top span
func (m *Manager) Decode(ctx context.Context) *Result {
	size := len(m.words)
	if size == 0 {
		return &Result{Status: NoTranslation}
	}
	log.Debugf("decoding: %s", strings.Join(m.words, " "))

	m.chart = newChart(size)
	m.matcher = newRuleMatcher(m.grammars, m.words, m.chart, m.estimator, &m.opts)
	if m.opts.TracePops {
		m.stats.PopEstimates = map[Range][]float64{}
	}

	for width := 1; width <= size; width++ {
		columns := size - width + 1
		if m.opts.SpanWorkers == 1 || columns == 1 {
			for start := 0; start < columns; start++ {
				m.decodeSpan(ctx, NewRange(start, start+width-1))
			}
		} else {
			// Spans of one width only read narrower cells and write their own
			var group errgroup.Group
			group.SetLimit(m.opts.SpanWorkers)
			for start := 0; start < columns; start++ {
				span := NewRange(start, start+width-1)
				group.Go(func() error {
					m.decodeSpan(ctx, span)
					return nil
				})
			}
			group.Wait()
		}
		if log.AllowLevel(commonlog.Debug) {
			m.printRow(width)
		}
	}
	m.complete = true
	m.stats.DottedRules = m.matcher.DottedRules()

	result := &Result{
		Best:            m.GetBestHypothesis(),
		EarlyTerminated: m.early.Load(),
		Stats:           m.stats,
		Err:             m.matcher.Err(),
	}
	if result.Best == nil || result.Err != nil {
		result.Status = NoTranslation
	}
	if result.EarlyTerminated {
		log.Warningf("decoding of %d words ran out of time", size)
	}
	return result
}

// decodeSpan builds and publishes the cell of span
func (m *Manager) decodeSpan(ctx context.Context, span Range) {
	cell := m.chart.Cell(span)

	// Rule lookup
	cell.advance(Matching)
	set := NewTranslationOptionSet(m.opts.RuleLimit)
	for _, option := range m.matcher.MatchSpan(span) {
		set.Add(option)
	}
	set.ApplyThreshold(m.opts.OptionThreshold)
	options := set.Finalize(m.opts.RuleLimit)

	// Cube pruning
	cell.advance(Searching)
	popLimit := m.opts.PopLimit
	if m.expired(ctx) {
		popLimit = 1
	}
	cube := NewCombinationSearch(options, m.opts.TracePops)
	for popped := 0; popLimit <= 0 || popped < popLimit; popped++ {
		if popped > 0 && popped%64 == 0 && m.expired(ctx) {
			break
		}
		candidate := cube.Pop()
		if candidate == nil {
			break
		}
		hypo := m.materialize(span, candidate, popped)
		cell.storeFor(hypo.Label, &m.opts).Insert(hypo)
	}

	cell.advance(Pruned)
	cell.finalize()

	cell.advance(Published)
	m.matcher.AddPublished(span)

	m.statsLock.Lock()
	defer m.statsLock.Unlock()
	m.stats.Spans++
	m.stats.Options += len(options)
	m.stats.OptionsPruned += set.Rejected()
	m.stats.Seeded += cube.Stats.Seeded
	m.stats.Pushed += cube.Stats.Pushed
	m.stats.Popped += cube.Stats.Popped
	for _, label := range cell.Labels() {
		m.stats.Store.add(cell.stores[label].Stats)
	}
	if m.opts.TracePops {
		m.stats.PopEstimates[span] = cube.Stats.Estimates
	}
}

// materialize scores a candidate with every scorer
func (m *Manager) materialize(span Range, candidate *Candidate, seq int) *Hypothesis {
	children := candidate.Children()
	for _, child := range children {
		assert(span.StrictlyContains(child.Range), "materialize: child is not narrower than its parent")
	}
	hypo := &Hypothesis{
		Range:    span,
		Label:    candidate.Option.Rule.LHS,
		Option:   candidate.Option,
		Children: children,
		Scores:   make([]float64, len(m.scorers)),
		States:   make([]State, len(m.scorers)),
		Seq:      seq,
	}

	score := 0.0
	for _, child := range children {
		score += child.Score
		for i, s := range child.Scores {
			hypo.Scores[i] += s
		}
	}
	for i, scorer := range m.scorers {
		delta, state := scorer.EvaluateComplete(hypo, children, i)
		if math.IsNaN(delta) {
			delta = math.Inf(-1)
		}
		hypo.Scores[i] += delta
		hypo.States[i] = state
		score += delta
	}
	hypo.Score = score
	hypo.key = recombinationKey(hypo.Label, hypo.States)
	return hypo
}

// isGoal returns true if label is accepted at the top span
func (m *Manager) isGoal(label grammar.Label) bool {
	if len(m.opts.Goals) == 0 {
		return true
	}
	for _, goal := range m.opts.Goals {
		if goal == label {
			return true
		}
	}
	return false
}

// topHypotheses returns the hypotheses of the top cell with a goal label,
// sorted by descending score
func (m *Manager) topHypotheses() []*Hypothesis {
	assert(m.complete, "Manager: chart is not complete")
	top := m.chart.Top()
	hypos := []*Hypothesis{}
	for _, label := range top.Labels() {
		if !m.isGoal(label) {
			continue
		}
		hypos = append(hypos, top.stores[label].SortedView()...)
	}
	sortHypotheses(hypos)
	return hypos
}

// GetBestHypothesis returns the best hypothesis of the top span, nil if the
// sentence has no translation
func (m *Manager) GetBestHypothesis() *Hypothesis {
	if m.chart == nil {
		return nil
	}
	hypos := m.topHypotheses()
	if len(hypos) == 0 {
		return nil
	}
	return hypos[0]
}

// printRow prints the number of hypotheses of each cell of width for
// debugging
func (m *Manager) printRow(width int) {
	sizes := []string{}
	for start := 0; start+width <= m.chart.Size(); start++ {
		cell := m.chart.Cell(Range{Start: start, End: start + width - 1})
		sizes = append(sizes, fmt.Sprintf("%3d", cell.Size()))
	}
	log.Debugf("width %2d: %s%s", width, strings.Repeat("  ", width-1), strings.Join(sizes, " "))
}
