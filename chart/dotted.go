package chart

import (
	"github.com/ling0322/hiero/grammar"
)

// dottedRule is one step of a partially matched source pattern. The chain of
// steps is followed through parent, an index into the same arena, so chains
// share their prefixes and are freed with the arena
type dottedRule struct {
	node    *grammar.Node
	grammar int

	// parent is -1 for the first step of a chain
	parent int32

	// child is the sub-span consumed by a non-terminal step. store is nil for
	// terminal steps
	child Range
	store *HypothesisStore
}

// dottedArena is the pool that allocates and stores dottedRule. One arena is
// owned by each start position of a sentence
const _DottedBatchSize = 1024

type dottedArena struct {
	pages  [][]dottedRule
	row    int
	column int
}

// newDottedArena creates a new instance of dottedArena
func newDottedArena() *dottedArena {
	return &dottedArena{
		pages: [][]dottedRule{make([]dottedRule, _DottedBatchSize)},
	}
}

// alloc allocates a new dottedRule from arena and returns its handle
func (a *dottedArena) alloc() (int32, *dottedRule) {
	handle := int32(a.row*_DottedBatchSize + a.column)
	rule := &a.pages[a.row][a.column]

	a.column++
	if a.column >= _DottedBatchSize {
		a.pages = append(a.pages, make([]dottedRule, _DottedBatchSize))
		a.row++
		a.column = 0
	}
	return handle, rule
}

// get returns the dottedRule of handle
func (a *dottedArena) get(handle int32) *dottedRule {
	return &a.pages[handle/_DottedBatchSize][handle%_DottedBatchSize]
}

// Len returns the number of dotted rules allocated
func (a *dottedArena) Len() int {
	return a.row*_DottedBatchSize + a.column
}

// children walks the chain ending at handle and returns the non-terminal
// children in source order
func (a *dottedArena) children(handle int32) []ChildRef {
	children := []ChildRef{}
	for handle >= 0 {
		rule := a.get(handle)
		if rule.store != nil {
			children = append(children, ChildRef{
				Range: rule.child,
				Label: rule.store.Label,
				Store: rule.store,
			})
		}
		handle = rule.parent
	}

	// Reverse into source order
	for i, j := 0, len(children)-1; i < j; i, j = i+1, j-1 {
		children[i], children[j] = children[j], children[i]
	}
	return children
}
