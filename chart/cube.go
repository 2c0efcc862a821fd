package chart

import (
	"container/heap"
	"strconv"
)

// Candidate is a translation option with one chosen hypothesis per child
// slot. Ranks[i] indexes the sorted hypotheses of child i
type Candidate struct {
	Option   *TranslationOption
	Ranks    []int
	Estimate float64

	seq int
}

// Children returns the hypotheses chosen by c
func (c *Candidate) Children() []*Hypothesis {
	children := make([]*Hypothesis, len(c.Ranks))
	for i, rank := range c.Ranks {
		children[i] = c.Option.Children[i].Store.SortedView()[rank]
	}
	return children
}

// candidateQueue is a max-heap of candidates by estimate, ties by creation
// order
type candidateQueue []*Candidate

func (q candidateQueue) Len() int { return len(q) }

func (q candidateQueue) Less(i, j int) bool {
	if q[i].Estimate != q[j].Estimate {
		return q[i].Estimate > q[j].Estimate
	}
	return q[i].seq < q[j].seq
}

func (q candidateQueue) Swap(i, j int) { q[i], q[j] = q[j], q[i] }

func (q *candidateQueue) Push(x interface{}) {
	*q = append(*q, x.(*Candidate))
}

func (q *candidateQueue) Pop() interface{} {
	old := *q
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	*q = old[:n-1]
	return item
}

// CubeStats counts the work done by a CombinationSearch
type CubeStats struct {
	Seeded int
	Pushed int
	Popped int

	// Estimates of the popped candidates in pop order, only when traced
	Estimates []float64
}

// CombinationSearch enumerates the candidates of a span lazily, by
// non-increasing estimate, without building the cross product of the
// children (cube pruning)
type CombinationSearch struct {
	queue   candidateQueue
	visited map[string]struct{}
	seq     int
	trace   bool
	buf     []byte

	Stats CubeStats
}

// NewCombinationSearch seeds the search with the best candidate of every
// option. Options with a child slot without hypotheses are skipped
func NewCombinationSearch(options []*TranslationOption, trace bool) *CombinationSearch {
	c := &CombinationSearch{
		queue:   make(candidateQueue, 0, len(options)),
		visited: map[string]struct{}{},
		trace:   trace,
	}
	for _, option := range options {
		seedable := true
		for _, child := range option.Children {
			assert(child.Store.Finalized(), "CombinationSearch: child store is not finalized")
			if len(child.Store.SortedView()) == 0 {
				seedable = false
				break
			}
		}
		if !seedable {
			continue
		}
		if c.push(option, make([]int, len(option.Children))) {
			c.Stats.Seeded++
		}
	}
	return c
}

// key identifies the candidate of option with ranks
func (c *CombinationSearch) key(option *TranslationOption, ranks []int) string {
	c.buf = strconv.AppendInt(c.buf[:0], int64(option.ID), 10)
	for _, rank := range ranks {
		c.buf = append(c.buf, ':')
		c.buf = strconv.AppendInt(c.buf, int64(rank), 10)
	}
	return string(c.buf)
}

// push enqueues the candidate if it was never enqueued before
func (c *CombinationSearch) push(option *TranslationOption, ranks []int) bool {
	key := c.key(option, ranks)
	if _, ok := c.visited[key]; ok {
		return false
	}
	c.visited[key] = struct{}{}

	estimate := option.RuleEstimate
	for i, rank := range ranks {
		estimate += option.Children[i].Store.SortedView()[rank].Score
	}
	heap.Push(&c.queue, &Candidate{
		Option:   option,
		Ranks:    ranks,
		Estimate: estimate,
		seq:      c.seq,
	})
	c.seq++
	c.Stats.Pushed++
	return true
}

// Pop returns the best remaining candidate, nil when the queue is exhausted.
// The neighbors of the returned candidate, each with one rank incremented,
// are enqueued
func (c *CombinationSearch) Pop() *Candidate {
	if len(c.queue) == 0 {
		return nil
	}
	best := heap.Pop(&c.queue).(*Candidate)
	c.Stats.Popped++
	if c.trace {
		c.Stats.Estimates = append(c.Stats.Estimates, best.Estimate)
	}

	for i, rank := range best.Ranks {
		if rank+1 >= len(best.Option.Children[i].Store.SortedView()) {
			continue
		}
		ranks := make([]int, len(best.Ranks))
		copy(ranks, best.Ranks)
		ranks[i]++
		c.push(best.Option, ranks)
	}
	return best
}

// Len returns the number of enqueued candidates
func (c *CombinationSearch) Len() int {
	return len(c.queue)
}
