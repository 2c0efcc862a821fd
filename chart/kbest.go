package chart

import (
	"container/heap"
	"strconv"
	"strings"
)

// Derivation is one way of building a hypothesis: the hypothesis (or one
// recombined into it) that was applied, and a derivation of each child
type Derivation struct {
	Edge     *Hypothesis
	Children []*Derivation
	Score    float64
}

func (d *Derivation) appendWords(words []string) []string {
	return yield(d.Edge.Rule(), words, func(slot int, words []string) []string {
		return d.Children[slot].appendWords(words)
	})
}

// Words returns the target words of d
func (d *Derivation) Words() []string {
	return d.appendWords(nil)
}

// Output returns the translation of d
func (d *Derivation) Output() string {
	return strings.Join(d.Words(), " ")
}

// kbestEdge is an incoming edge of a vertex. Local is the score of the edge
// minus the scores of its tails. The edges of the top vertex have no hypothesis
type kbestEdge struct {
	hypo  *Hypothesis
	tails []*Hypothesis
	local float64
}

type kbestCandidate struct {
	edge  int
	ranks []int
	deriv *Derivation
}

type kbestQueue []*kbestCandidate

func (q kbestQueue) Len() int { return len(q) }

func (q kbestQueue) Less(i, j int) bool {
	if q[i].deriv.Score != q[j].deriv.Score {
		return q[i].deriv.Score > q[j].deriv.Score
	}
	if q[i].edge != q[j].edge {
		return q[i].edge < q[j].edge
	}
	for k := range q[i].ranks {
		if q[i].ranks[k] != q[j].ranks[k] {
			return q[i].ranks[k] < q[j].ranks[k]
		}
	}
	return false
}

func (q kbestQueue) Swap(i, j int) { q[i], q[j] = q[j], q[i] }

func (q *kbestQueue) Push(x interface{}) {
	*q = append(*q, x.(*kbestCandidate))
}

func (q *kbestQueue) Pop() interface{} {
	old := *q
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	*q = old[:n-1]
	return item
}

// kbestVertex holds the derivations of one vertex found so far
type kbestVertex struct {
	edges   []kbestEdge
	derivs  []*Derivation
	queue   kbestQueue
	visited map[string]bool
	started bool
}

// kbestExtractor enumerates derivations lazily by descending score
type kbestExtractor struct {
	vertices map[*Hypothesis]*kbestVertex
}

func newKBestExtractor() *kbestExtractor {
	return &kbestExtractor{vertices: map[*Hypothesis]*kbestVertex{}}
}

// vertex returns the state of hypo, whose incoming edges are hypo itself
// and the hypotheses recombined into it
func (x *kbestExtractor) vertex(hypo *Hypothesis) *kbestVertex {
	v, ok := x.vertices[hypo]
	if ok {
		return v
	}
	v = &kbestVertex{visited: map[string]bool{}}
	for _, edge := range append([]*Hypothesis{hypo}, hypo.arcs...) {
		local := edge.Score
		for _, child := range edge.Children {
			local -= child.Score
		}
		v.edges = append(v.edges, kbestEdge{hypo: edge, tails: edge.Children, local: local})
	}
	x.vertices[hypo] = v
	return v
}

// push enqueues the candidate of edge with ranks, if every tail has a
// derivation of that rank
func (x *kbestExtractor) push(v *kbestVertex, edgeIndex int, ranks []int) {
	key := strconv.Itoa(edgeIndex)
	for _, rank := range ranks {
		key += ":" + strconv.Itoa(rank)
	}
	if v.visited[key] {
		return
	}
	v.visited[key] = true

	edge := v.edges[edgeIndex]
	deriv := &Derivation{Edge: edge.hypo, Score: edge.local}
	for i, tail := range edge.tails {
		child := x.get(x.vertex(tail), ranks[i])
		if child == nil {
			return
		}
		deriv.Children = append(deriv.Children, child)
		deriv.Score += child.Score
	}
	heap.Push(&v.queue, &kbestCandidate{edge: edgeIndex, ranks: ranks, deriv: deriv})
}

// get returns the k-th best derivation of v, nil if v has fewer than k+1
func (x *kbestExtractor) get(v *kbestVertex, k int) *Derivation {
	if !v.started {
		v.started = true
		for i, edge := range v.edges {
			x.push(v, i, make([]int, len(edge.tails)))
		}
	}
	for len(v.derivs) <= k && len(v.queue) != 0 {
		best := heap.Pop(&v.queue).(*kbestCandidate)
		v.derivs = append(v.derivs, best.deriv)
		for i := range best.ranks {
			ranks := make([]int, len(best.ranks))
			copy(ranks, best.ranks)
			ranks[i]++
			x.push(v, best.edge, ranks)
		}
	}
	if k < len(v.derivs) {
		return v.derivs[k]
	}
	return nil
}

// top creates the vertex merging the given hypotheses of the top span
func (x *kbestExtractor) top(hypos []*Hypothesis) *kbestVertex {
	v := &kbestVertex{visited: map[string]bool{}}
	for _, hypo := range hypos {
		v.edges = append(v.edges, kbestEdge{tails: []*Hypothesis{hypo}})
	}
	return v
}

// GetNBest returns up to k derivations of the whole sentence by descending
// score. With distinct set, derivations with the same output as a better one
// are skipped
func (m *Manager) GetNBest(k int, distinct bool) []*Derivation {
	if m.chart == nil || k <= 0 {
		return nil
	}
	hypos := m.topHypotheses()
	if len(hypos) == 0 {
		return nil
	}

	x := newKBestExtractor()
	top := x.top(hypos)
	limit := k
	if distinct {
		limit = k * 20
	}

	nbest := []*Derivation{}
	seen := map[string]bool{}
	for i := 0; i < limit && len(nbest) < k; i++ {
		deriv := x.get(top, i)
		if deriv == nil {
			break
		}
		deriv = deriv.Children[0]
		if distinct {
			output := deriv.Output()
			if seen[output] {
				continue
			}
			seen[output] = true
		}
		nbest = append(nbest, deriv)
	}
	return nbest
}
