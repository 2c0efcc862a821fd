package chart

import (
	"fmt"

	"github.com/ling0322/hiero/grammar"
)

// SpanState is the build state of a chart cell. A cell only moves forward
type SpanState int

const (
	Empty SpanState = iota
	Matching
	Searching
	Pruned
	Published
)

func (s SpanState) String() string {
	switch s {
	case Empty:
		return "Empty"
	case Matching:
		return "Matching"
	case Searching:
		return "Searching"
	case Pruned:
		return "Pruned"
	case Published:
		return "Published"
	}
	return fmt.Sprintf("SpanState(%d)", int(s))
}

// Cell is the label table of one span: it maps each output label to the
// hypotheses of that label. Wider spans read it only once it is Published
type Cell struct {
	Range Range

	state  SpanState
	stores map[grammar.Label]*HypothesisStore

	// Labels in the order their store was created
	labels []grammar.Label
}

func newCell(r Range) *Cell {
	return &Cell{
		Range:  r,
		stores: map[grammar.Label]*HypothesisStore{},
	}
}

// State returns the build state of c
func (c *Cell) State() SpanState {
	return c.state
}

// advance moves c to the next state
func (c *Cell) advance(to SpanState) {
	assert(to == c.state+1, fmt.Sprintf("Cell %s: can not move from %s to %s", c.Range, c.state, to))
	c.state = to
}

// storeFor returns the store of label, creating it while searching
func (c *Cell) storeFor(label grammar.Label, opts *Options) *HypothesisStore {
	store, ok := c.stores[label]
	if !ok {
		assert(c.state == Searching, fmt.Sprintf("Cell %s: new label %s while %s", c.Range, label, c.state))
		store = NewHypothesisStore(label, opts.BeamWidth, opts.MaxStackSize, opts.NBestEnabled)
		c.stores[label] = store
		c.labels = append(c.labels, label)
	}
	return store
}

// finalize prunes every store of c
func (c *Cell) finalize() {
	for _, label := range c.labels {
		c.stores[label].Finalize()
	}
}

// Store returns the non-empty store of label, nil if the span has no
// hypothesis with that label
func (c *Cell) Store(label grammar.Label) *HypothesisStore {
	assert(c.state == Published, fmt.Sprintf("Cell %s: read while %s", c.Range, c.state))
	store := c.stores[label]
	if store == nil || store.Len() == 0 {
		return nil
	}
	return store
}

// Labels returns the labels having a store, in creation order
func (c *Cell) Labels() []grammar.Label {
	return c.labels
}

// Best returns the best hypothesis over all labels, nil if the cell is empty.
// Ties go to the hypothesis created first
func (c *Cell) Best() *Hypothesis {
	var best *Hypothesis
	for _, label := range c.labels {
		hypo := c.stores[label].Best()
		if hypo != nil && (best == nil || hypoBefore(hypo, best)) {
			best = hypo
		}
	}
	return best
}

// Size returns the number of hypotheses over all labels
func (c *Cell) Size() int {
	size := 0
	for _, store := range c.stores {
		size += store.Len()
	}
	return size
}

// Chart holds the cells of one sentence, indexed by start and width
type Chart struct {
	size  int
	cells [][]*Cell
}

func newChart(size int) *Chart {
	c := &Chart{size: size, cells: make([][]*Cell, size)}
	for start := 0; start < size; start++ {
		c.cells[start] = make([]*Cell, size-start)
		for end := start; end < size; end++ {
			c.cells[start][end-start] = newCell(Range{Start: start, End: end})
		}
	}
	return c
}

// Size returns the sentence length
func (c *Chart) Size() int {
	return c.size
}

// Cell returns the cell of r
func (c *Chart) Cell(r Range) *Cell {
	return c.cells[r.Start][r.End-r.Start]
}

// Top returns the cell covering the whole sentence
func (c *Chart) Top() *Cell {
	return c.cells[0][c.size-1]
}
