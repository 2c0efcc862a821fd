package chart

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/pkg/errors"
)

// SearchGraphStats counts the hypotheses written by WriteSearchGraph
type SearchGraphStats struct {
	Winners int
	Losers  int
}

// reachable collects the hypotheses reachable from the top span through
// children and recombination arcs
func (m *Manager) reachable() map[*Hypothesis]bool {
	found := map[*Hypothesis]bool{}
	var visit func(h *Hypothesis)
	visit = func(h *Hypothesis) {
		if found[h] {
			return
		}
		found[h] = true
		for _, child := range h.Children {
			visit(child)
		}
		for _, arc := range h.arcs {
			visit(arc)
		}
	}
	for _, hypo := range m.topHypotheses() {
		visit(hypo)
	}
	return found
}

// WriteSearchGraph writes one line per hypothesis reachable from the top
// span, narrower spans first. Losers reference the winner they were
// recombined into
func (m *Manager) WriteSearchGraph(w io.Writer) (SearchGraphStats, error) {
	stats := SearchGraphStats{}
	if m.chart == nil {
		return stats, nil
	}

	hypos := []*Hypothesis{}
	for hypo := range m.reachable() {
		hypos = append(hypos, hypo)
	}
	sort.Slice(hypos, func(i, j int) bool {
		a, b := hypos[i], hypos[j]
		if a.Range.Width() != b.Range.Width() {
			return a.Range.Width() < b.Range.Width()
		}
		if a.Range != b.Range {
			return a.Range.Less(b.Range)
		}
		return a.Seq < b.Seq
	})

	for _, hypo := range hypos {
		back := []string{}
		transition := hypo.Score
		for _, child := range hypo.Children {
			back = append(back, child.ID())
			transition -= child.Score
		}
		recombined := "-"
		if hypo.winner != nil {
			recombined = hypo.winner.ID()
			stats.Losers++
		} else {
			stats.Winners++
		}
		_, err := fmt.Fprintf(
			w,
			"hyp=%s label=%s span=%d-%d score=%.4f transition=%.4f back=%s recombined=%s rule=%q out=%q\n",
			hypo.ID(),
			hypo.Label,
			hypo.Range.Start,
			hypo.Range.End,
			hypo.Score,
			transition,
			strings.Join(back, ","),
			recombined,
			hypo.Rule().String(),
			hypo.Output())
		if err != nil {
			return stats, errors.Wrap(err, "WriteSearchGraph")
		}
	}
	return stats, nil
}
