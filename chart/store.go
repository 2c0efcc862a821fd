package chart

import (
	"math"
	"sort"

	"github.com/ling0322/hiero/grammar"
)

// StoreStats counts what happened to the hypotheses offered to a store
type StoreStats struct {
	Added      int
	Recombined int
	Discarded  int
	Pruned     int
}

func (s *StoreStats) add(o StoreStats) {
	s.Added += o.Added
	s.Recombined += o.Recombined
	s.Discarded += o.Discarded
	s.Pruned += o.Pruned
}

// HypothesisStore keeps the hypotheses of one (span, label). Hypotheses with
// the same recombination key are recombined, and the rest is pruned by beam
// and by size
type HypothesisStore struct {
	Label grammar.Label

	hypos     map[string]*Hypothesis
	sorted    []*Hypothesis
	bestScore float64
	finalized bool

	// A beamWidth not above 0 (or +Inf) disables beam pruning; a maxSize of
	// 0 disables size pruning
	beamWidth float64
	maxSize   int
	nBest     bool

	Stats StoreStats
}

// NewHypothesisStore creates an empty store
func NewHypothesisStore(label grammar.Label, beamWidth float64, maxSize int, nBest bool) *HypothesisStore {
	return &HypothesisStore{
		Label:     label,
		hypos:     map[string]*Hypothesis{},
		bestScore: math.Inf(-1),
		beamWidth: beamWidth,
		maxSize:   maxSize,
		nBest:     nBest,
	}
}

// hypoBefore orders by descending score, ties by creation order
func hypoBefore(a, b *Hypothesis) bool {
	if a.Score != b.Score {
		return a.Score > b.Score
	}
	return a.Seq < b.Seq
}

func sortHypotheses(hypos []*Hypothesis) {
	sort.SliceStable(hypos, func(i, j int) bool {
		return hypoBefore(hypos[i], hypos[j])
	})
}

func beamEnabled(beamWidth float64) bool {
	return beamWidth > 0 && !math.IsInf(beamWidth, 1)
}

// belowBeam returns true if score falls out of the beam around bestScore
func (s *HypothesisStore) belowBeam(score, beamWidth float64) bool {
	return beamEnabled(beamWidth) && score < s.bestScore-beamWidth
}

// add puts hypo into the store and prunes lazily once the store is twice as
// big as needed
func (s *HypothesisStore) add(hypo *Hypothesis) {
	s.hypos[hypo.key] = hypo
	if hypo.Score > s.bestScore {
		s.bestScore = hypo.Score
	}
	if s.maxSize > 0 && len(s.hypos) > 2*s.maxSize-1 {
		s.Prune(s.beamWidth, s.maxSize)
	}
}

// Insert offers hypo to the store. Returns true if hypo is kept, either as a
// new entry or as the winner of a recombination
func (s *HypothesisStore) Insert(hypo *Hypothesis) bool {
	assert(!s.finalized, "HypothesisStore::Insert: store already finalized")

	if math.IsNaN(hypo.Score) || math.IsInf(hypo.Score, -1) || s.belowBeam(hypo.Score, s.beamWidth) {
		s.Stats.Discarded++
		return false
	}

	existing, ok := s.hypos[hypo.key]
	if !ok {
		s.Stats.Added++
		s.add(hypo)
		return s.hypos[hypo.key] == hypo
	}

	// Same state as an existing hypothesis, keep the best one
	s.Stats.Recombined++
	if hypo.Score > existing.Score {
		if s.nBest {
			hypo.arcs = append(hypo.arcs, existing)
			hypo.arcs = append(hypo.arcs, existing.arcs...)
			existing.arcs = nil
			for _, arc := range hypo.arcs {
				arc.winner = hypo
			}
		}
		s.add(hypo)
		return s.hypos[hypo.key] == hypo
	}
	if s.nBest {
		existing.arcs = append(existing.arcs, hypo)
		hypo.winner = existing
	}
	return false
}

// Prune drops hypotheses scoring below best - beamWidth, then keeps only
// the best maxSize of the rest
func (s *HypothesisStore) Prune(beamWidth float64, maxSize int) {
	if beamEnabled(beamWidth) {
		for key, hypo := range s.hypos {
			if s.belowBeam(hypo.Score, beamWidth) {
				delete(s.hypos, key)
				s.Stats.Pruned++
			}
		}
	}

	if maxSize > 0 && len(s.hypos) > maxSize {
		ordered := s.ordered()
		for _, hypo := range ordered[maxSize:] {
			delete(s.hypos, hypo.key)
			s.Stats.Pruned++
		}
	}
}

// ordered returns the hypotheses sorted by hypoBefore
func (s *HypothesisStore) ordered() []*Hypothesis {
	ordered := make([]*Hypothesis, 0, len(s.hypos))
	for _, hypo := range s.hypos {
		ordered = append(ordered, hypo)
	}
	sortHypotheses(ordered)
	return ordered
}

// Finalize prunes the store and freezes its sorted view. After Finalize the
// store is read-only and safe to share between goroutines
func (s *HypothesisStore) Finalize() {
	if s.finalized {
		return
	}
	s.Prune(s.beamWidth, s.maxSize)
	s.sorted = s.ordered()
	for _, hypo := range s.sorted {
		sortHypotheses(hypo.arcs)
	}
	s.finalized = true
}

// Finalized returns true once the sorted view is frozen
func (s *HypothesisStore) Finalized() bool {
	return s.finalized
}

// SortedView returns the hypotheses by descending score
func (s *HypothesisStore) SortedView() []*Hypothesis {
	if s.finalized {
		return s.sorted
	}
	return s.ordered()
}

// Best returns the hypothesis with the highest score, nil if empty
func (s *HypothesisStore) Best() *Hypothesis {
	if s.finalized {
		if len(s.sorted) == 0 {
			return nil
		}
		return s.sorted[0]
	}
	var best *Hypothesis
	for _, hypo := range s.hypos {
		if best == nil || hypoBefore(hypo, best) {
			best = hypo
		}
	}
	return best
}

// Len returns the number of hypotheses in the store
func (s *HypothesisStore) Len() int {
	return len(s.hypos)
}
