package grammar

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
)

const testGrammar = `
; test grammar
;!goal: S
[X] ::= a b => X Y ; 1.0
[X] ::= a [X,1] b => [X,1] Z ; 0.5
[X] ::= b => W ; 0.2
[S] ::= [X,1] [X,2] => [X,1] [X,2]
[Y] ::= c [Z,1] => d [Z,1]
`

func lookupPath(t *testing.T, g Grammar, symbols ...Symbol) *Node {
	node := g.Root()
	for _, symbol := range symbols {
		next, ok := g.Lookup(node, symbol)
		if !ok {
			t.Fatalf("Lookup(%s) failed", symbol)
		}
		node = next
	}
	return node
}

func checkGrammar(t *testing.T, g Grammar) {
	node := lookupPath(t, g, Terminal("a"), Terminal("b"))
	rules := g.CompletedRules(node)
	if len(rules) != 1 || rules[0].Score != 1.0 {
		t.Fatalf("unexpected rules %v", rules)
	}
	if g.EstimateScore(rules[0]) != 1.0 {
		t.Fatal("EstimateScore() == 1.0 expected")
	}

	node = lookupPath(t, g, Terminal("a"))
	labels := g.NonTerminalEdges(node)
	if len(labels) != 1 || labels[0] != "X" {
		t.Fatalf("unexpected labels %v", labels)
	}
	node = lookupPath(t, g, Terminal("a"), NonTerminal("X"), Terminal("b"))
	if len(g.CompletedRules(node)) != 1 {
		t.Fatal("rule a [X] b expected")
	}

	if labels := g.NonTerminalEdges(g.Root()); len(labels) != 1 || labels[0] != "X" {
		t.Fatalf("unexpected root labels %v", labels)
	}
	if _, ok := g.Lookup(g.Root(), Terminal("zzz")); ok {
		t.Fatal("Lookup(zzz) should fail")
	}

	// A bracketed word is a terminal, not the label it spells
	if _, ok := g.Lookup(g.Root(), Terminal("[X]")); ok {
		t.Fatal("Lookup([X] word) should fail")
	}
	lookupPath(t, g, NonTerminal("X"), NonTerminal("X"))
}

func TestMemoryGrammar(t *testing.T) {
	g, err := ParseGrammar(testGrammar)
	if err != nil {
		t.Fatal(err)
	}
	if g.NumRules() != 5 {
		t.Fatalf("NumRules() = %d", g.NumRules())
	}
	if len(g.Goals()) != 1 || g.Goals()[0] != "S" {
		t.Fatalf("unexpected goals %v", g.Goals())
	}
	checkGrammar(t, g)

	// Errors carry the line number
	_, err = ParseGrammar("[X] ::= a => b\n[X] ::= a b\n")
	if err == nil {
		t.Fatal("err != nil expected")
	}
}

func writeGrammar(t *testing.T, text string) string {
	path := filepath.Join(t.TempDir(), "grammar.txt")
	if err := os.WriteFile(path, []byte(text), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLazyGrammar(t *testing.T) {
	g, err := OpenLazyGrammar(writeGrammar(t, testGrammar))
	if err != nil {
		t.Fatal(err)
	}
	defer g.Close()
	if g.NumRules() != 5 {
		t.Fatalf("NumRules() = %d", g.NumRules())
	}

	// Concurrent first use of the same block
	var wg sync.WaitGroup
	nodes := make([]*Node, 8)
	for i := range nodes {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			nodes[i], _ = g.Lookup(g.Root(), Terminal("a"))
		}(i)
	}
	wg.Wait()
	for _, node := range nodes {
		if node != nodes[0] {
			t.Fatal("every caller must see the same block")
		}
	}

	checkGrammar(t, g)
	for _, node := range nodes {
		if err := g.BlockErr(node); err != nil {
			t.Fatal(err)
		}
	}
}

func TestLoadErrors(t *testing.T) {
	// TestCase-1: corrupt grammar is reported when opened
	path := writeGrammar(t, "[X] ::= a => b\n[X] ::= a [X b => c\n")
	if _, err := OpenLazyGrammar(path); err == nil {
		t.Fatal("err != nil expected")
	}
	if _, err := LoadGrammar(path); err == nil {
		t.Fatal("err != nil expected")
	}

	// TestCase-2: missing file
	if _, err := LoadGrammar(filepath.Join(t.TempDir(), "missing")); err == nil {
		t.Fatal("err != nil expected")
	}

	// TestCase-3: empty grammar
	if _, err := LoadGrammar(writeGrammar(t, "; nothing\n")); err == nil {
		t.Fatal("err != nil expected")
	}
}

func TestLabelGraphCheck(t *testing.T) {
	g, err := ParseGrammar(testGrammar)
	if err != nil {
		t.Fatal(err)
	}
	report := g.Labels().Check(g.Goals())
	if len(report.Dangling) != 1 || report.Dangling[0] != "Z" {
		t.Fatalf("unexpected dangling labels %v", report.Dangling)
	}
	if len(report.Unreachable) != 1 || report.Unreachable[0] != "Y" {
		t.Fatalf("unexpected unreachable labels %v", report.Unreachable)
	}

	report = g.Labels().Check(nil, "Z")
	if !report.Empty() {
		t.Fatalf("unexpected report %v", report)
	}
	if !g.Labels().HasArc("S", "X") {
		t.Fatal("HasArc(S, X) expected")
	}
}
