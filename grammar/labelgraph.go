package grammar

import (
	"sort"
)

// LabelGraph is the directed graph of labels: an arc A -> B exists when a rule
// with left hand side A has a source slot labeled B
type LabelGraph struct {
	Arcs     map[Label]map[Label]bool
	Vertices map[Label]bool

	// Produced records labels appearing on the left of some rule
	Produced map[Label]bool
}

// NewLabelGraph creates a new LabelGraph
func NewLabelGraph() *LabelGraph {
	return &LabelGraph{
		Arcs:     map[Label]map[Label]bool{},
		Vertices: map[Label]bool{},
		Produced: map[Label]bool{},
	}
}

// Add adds an arc into graph
func (g *LabelGraph) Add(s, t Label) {
	if g.Arcs[s] == nil {
		g.Arcs[s] = map[Label]bool{}
	}
	g.Arcs[s][t] = true
	g.Vertices[s] = true
	g.Vertices[t] = true
}

// AddRule adds the arcs of rule into graph
func (g *LabelGraph) AddRule(rule *Rule) {
	g.Vertices[rule.LHS] = true
	g.Produced[rule.LHS] = true
	for _, slot := range rule.Slots {
		g.Add(rule.LHS, slot)
	}
}

// HasArc returns whether arc (s, t) exists in this graph
func (g *LabelGraph) HasArc(s, t Label) bool {
	return g.Arcs[s][t]
}

// DFS runs depth-first search on graph and returns the vertices visited by
// deep-first order.
// It will not visit the vertices where visited[V] == true.
// After finished, it will update the visited map
func (g *LabelGraph) DFS(s Label, visited map[Label]bool) []Label {
	if visited[s] || !g.Vertices[s] {
		return []Label{}
	}
	visited[s] = true

	order := []Label{s}
	for _, next := range sortedLabels(g.Arcs[s]) {
		order = append(order, g.DFS(next, visited)...)
	}
	return order
}

// Report lists the problems found by Check
type Report struct {
	// Dangling labels are used in a source pattern but no rule produces them
	Dangling []Label

	// Unreachable labels are produced but no derivation from a goal uses them
	Unreachable []Label
}

// Empty returns true if nothing is reported
func (r *Report) Empty() bool {
	return len(r.Dangling) == 0 && len(r.Unreachable) == 0
}

// Check looks for dangling and unreachable labels. builtin lists labels
// produced outside the grammar, like the unknown-word label. When goals is
// empty the reachability check is skipped
func (g *LabelGraph) Check(goals []Label, builtin ...Label) *Report {
	report := &Report{}
	produced := map[Label]bool{}
	for label := range g.Produced {
		produced[label] = true
	}
	for _, label := range builtin {
		produced[label] = true
	}

	for _, label := range sortedLabels(g.Vertices) {
		if !produced[label] {
			report.Dangling = append(report.Dangling, label)
		}
	}

	if len(goals) != 0 {
		visited := map[Label]bool{}
		for _, goal := range goals {
			g.DFS(goal, visited)
		}
		for _, label := range sortedLabels(g.Produced) {
			if !visited[label] {
				report.Unreachable = append(report.Unreachable, label)
			}
		}
	}
	return report
}

// sortedLabels returns the keys of set in ascending order
func sortedLabels(set map[Label]bool) []Label {
	labels := make([]Label, 0, len(set))
	for label := range set {
		labels = append(labels, label)
	}
	sort.Slice(labels, func(i, j int) bool { return labels[i] < labels[j] })
	return labels
}
