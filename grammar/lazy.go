package grammar

import (
	"bufio"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/pkg/errors"
)

// block holds the rules sharing the same first source symbol. The sub-trie of
// a block is built the first time a sentence reaches it
type block struct {
	first Symbol
	lines []int64

	once sync.Once
	node *Node
	err  error
}

// LazyGrammar is a grammar file whose rules are indexed by their first source
// symbol when opened, and parsed into the prefix trie block by block on first
// use. The whole file is validated when opened, so a corrupt grammar is
// reported before decoding starts
type LazyGrammar struct {
	path string
	file *os.File

	root              *Node
	terminalBlocks    map[string]*block
	nonTerminalBlocks map[Label]*block
	rootLabels        []Label
	goals             []Label
	graph             *LabelGraph
	numRules          int

	// Roots of the blocks that failed to load, with their error
	mu     sync.Mutex
	failed map[*Node]error
}

// OpenLazyGrammar scans and validates the grammar file at path
func OpenLazyGrammar(path string) (*LazyGrammar, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "OpenLazyGrammar")
	}

	g := &LazyGrammar{
		path:              path,
		file:              file,
		root:              newNode(),
		terminalBlocks:    map[string]*block{},
		nonTerminalBlocks: map[Label]*block{},
		graph:             NewLabelGraph(),
		failed:            map[*Node]error{},
	}
	g.goals, err = scanGrammar(file, func(rules []*Rule, _ int, offset int64) error {
		first := rules[0].Source[0]
		b := g.block(first)
		if b == nil {
			if first.IsTerminal() {
				b = &block{first: first}
				g.terminalBlocks[first.Word] = b
			} else {
				b = &block{first: NonTerminal(first.Label)}
				g.nonTerminalBlocks[first.Label] = b
				g.rootLabels = append(g.rootLabels, first.Label)
			}
		}
		b.lines = append(b.lines, offset)
		for _, rule := range rules {
			g.graph.AddRule(rule)
			g.numRules++
		}
		return nil
	})
	if err == nil && g.numRules == 0 {
		err = ErrNoRules
	}
	if err != nil {
		file.Close()
		return nil, errors.Wrapf(err, "OpenLazyGrammar: %s", path)
	}
	log.Infof(
		"indexed %d rules in %d blocks from %s",
		g.numRules,
		len(g.terminalBlocks)+len(g.nonTerminalBlocks),
		path)
	return g, nil
}

// Close releases the grammar file. Blocks already loaded stay usable
func (g *LazyGrammar) Close() error {
	return g.file.Close()
}

// BlockErr returns the error met while loading the block rooted at node, nil
// if node is not the root of a failed block. A failed block stays empty, so
// only the sentences reaching it are affected
func (g *LazyGrammar) BlockErr(node *Node) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.failed[node]
}

// block returns the block of rules starting with symbol, nil if none
func (g *LazyGrammar) block(symbol Symbol) *block {
	if symbol.IsTerminal() {
		return g.terminalBlocks[symbol.Word]
	}
	return g.nonTerminalBlocks[symbol.Label]
}

// readLine reads the line starting at offset
func (g *LazyGrammar) readLine(offset int64) (string, error) {
	reader := bufio.NewReader(io.NewSectionReader(g.file, offset, 1<<62))
	line, err := reader.ReadString('\n')
	if err != nil && err != io.EOF {
		return "", err
	}
	return strings.TrimSpace(line), nil
}

// load builds the sub-trie of b once. Concurrent callers wait for the first
// one, and all of them see the complete sub-trie
func (g *LazyGrammar) load(b *block) *Node {
	b.once.Do(func() {
		node := newNode()
		for _, offset := range b.lines {
			line, err := g.readLine(offset)
			if err == nil {
				var rules []*Rule
				if rules, err = ParseRule(line); err == nil {
					for _, rule := range rules {
						node.insert(rule, 1)
					}
					continue
				}
			}
			b.err = errors.Wrapf(err, "LazyGrammar: %s: block %s", g.path, b.first)
			log.Errorf("failed loading block %s: %s", b.first, err)
			node = newNode()
			break
		}
		if b.err != nil {
			g.mu.Lock()
			g.failed[node] = b.err
			g.mu.Unlock()
		}
		b.node = node
	})
	return b.node
}

// NumRules returns the number of rules in the grammar file
func (g *LazyGrammar) NumRules() int {
	return g.numRules
}

// Goals returns the goal labels declared in the grammar file
func (g *LazyGrammar) Goals() []Label {
	return g.goals
}

// Labels returns the label graph built while scanning the file
func (g *LazyGrammar) Labels() *LabelGraph {
	return g.graph
}

func (g *LazyGrammar) Root() *Node {
	return g.root
}

func (g *LazyGrammar) Lookup(state *Node, symbol Symbol) (*Node, bool) {
	if state != g.root {
		child := state.child(symbol)
		return child, child != nil
	}
	b := g.block(symbol)
	if b == nil {
		return nil, false
	}
	return g.load(b), true
}

func (g *LazyGrammar) NonTerminalEdges(state *Node) []Label {
	if state == g.root {
		return g.rootLabels
	}
	return state.labels
}

func (g *LazyGrammar) CompletedRules(state *Node) []*Rule {
	return state.rules
}

func (g *LazyGrammar) EstimateScore(rule *Rule) float64 {
	return rule.Score
}

var _ Grammar = (*LazyGrammar)(nil)
