package chart

import (
	"testing"
)

func TestCombinationSearch(t *testing.T) {
	rule := testRule(t, "[X] ::= [X,1] c [X,2] => [X,2] [X,1]")
	left := finalizedStore(t, "X", 3, 2, 1)
	right := finalizedStore(t, "X", 2, 1.5, 0)
	children := []ChildRef{
		{Range: Range{0, 0}, Label: "X", Store: left},
		{Range: Range{2, 2}, Label: "X", Store: right},
	}
	options := []*TranslationOption{
		newTranslationOption(0, rule, children, 0.5),
		newTranslationOption(1, rule, children, -10),
	}
	if options[0].Estimate != 5.5 {
		t.Fatalf("Estimate = %f", options[0].Estimate)
	}

	// TestCase-1: full enumeration pops each combination once, by estimate
	cube := NewCombinationSearch(options, true)
	seen := map[string]bool{}
	for {
		candidate := cube.Pop()
		if candidate == nil {
			break
		}
		key := cube.key(candidate.Option, candidate.Ranks)
		if seen[key] {
			t.Fatalf("candidate %s popped twice", key)
		}
		seen[key] = true
	}
	if len(seen) != 18 {
		t.Fatalf("18 candidates expected, got %d", len(seen))
	}
	estimates := cube.Stats.Estimates
	if estimates[0] != 5.5 {
		t.Fatalf("first estimate = %f", estimates[0])
	}
	for i := 1; i < len(estimates); i++ {
		if estimates[i] > estimates[i-1] {
			t.Fatalf("estimate %d: %f > %f", i, estimates[i], estimates[i-1])
		}
	}

	// TestCase-2: enqueued candidates are bounded by P x arity + options
	for popLimit := 1; popLimit < 10; popLimit++ {
		cube = NewCombinationSearch(options, false)
		for i := 0; i < popLimit; i++ {
			cube.Pop()
		}
		if cube.Stats.Pushed > popLimit*2+len(options) {
			t.Fatalf("popLimit %d: %d pushed", popLimit, cube.Stats.Pushed)
		}
	}

	// TestCase-3: options with an empty child are not seeded
	empty := finalizedStore(t, "X")
	option := newTranslationOption(0, testRule(t, "[X] ::= a [X,1] => [X,1]"), nil, 0)
	option.Children = []ChildRef{{Range: Range{1, 1}, Label: "X", Store: empty}}
	cube = NewCombinationSearch([]*TranslationOption{option}, false)
	if cube.Len() != 0 || cube.Pop() != nil {
		t.Fatal("empty search expected")
	}
}

func TestCandidateTies(t *testing.T) {
	rule := testRule(t, "[X] ::= a => b")
	options := []*TranslationOption{
		newTranslationOption(0, rule, nil, 1),
		newTranslationOption(1, rule, nil, 2),
		newTranslationOption(2, rule, nil, 1),
	}
	cube := NewCombinationSearch(options, false)
	for _, id := range []int{1, 0, 2} {
		if candidate := cube.Pop(); candidate.Option.ID != id {
			t.Fatalf("option %d expected, got %d", id, candidate.Option.ID)
		}
	}
}

func TestDottedArena(t *testing.T) {
	arena := newDottedArena()
	store := finalizedStore(t, "X", 1)
	parent := int32(-1)
	for i := 0; i < 2500; i++ {
		handle, rule := arena.alloc()
		if handle != int32(i) {
			t.Fatalf("handle %d != %d", handle, i)
		}
		rule.parent = parent
		if i%2 == 0 {
			rule.child = Range{i, i}
			rule.store = store
		}
		parent = handle
	}
	if arena.Len() != 2500 {
		t.Fatalf("Len() = %d", arena.Len())
	}
	if arena.get(1500).parent != 1499 {
		t.Fatal("parent of 1500 should be 1499")
	}

	children := arena.children(6)
	if len(children) != 4 {
		t.Fatalf("4 children expected, got %d", len(children))
	}
	for i, child := range children {
		if child.Range.Start != i*2 || child.Label != "X" {
			t.Fatalf("unexpected child %d %v", i, child)
		}
	}
}
