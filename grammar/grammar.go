package grammar

import (
	"bufio"
	"io"
	"os"
	"strings"

	"github.com/pkg/errors"
	"github.com/tliron/commonlog"
)

var log = commonlog.GetLogger("hiero.grammar")

// ErrNoRules is returned when a grammar source contains no rule
var ErrNoRules = errors.New("grammar has no rules")

// Grammar is the query contract of a synchronous grammar. Implementations
// must be safe for concurrent use, since a grammar is shared by all the
// sentences being decoded
type Grammar interface {
	// Root returns the state before any source symbol is matched
	Root() *Node

	// Lookup extends the prefix state by one symbol. Returns false if no
	// pattern continues with symbol
	Lookup(state *Node, symbol Symbol) (*Node, bool)

	// NonTerminalEdges returns the labels a non-terminal edge leaving state
	// is defined for
	NonTerminalEdges(state *Node) []Label

	// CompletedRules returns the rules whose whole source pattern is state
	CompletedRules(state *Node) []*Rule

	// EstimateScore returns the score of rule, usable before its children
	// are resolved
	EstimateScore(rule *Rule) float64
}

// directive prefix declaring goal labels, like ";!goal: S X"
const goalDirective = ";!goal:"

// lineHandler receives each parsed rule line of a grammar source
type lineHandler func(rules []*Rule, lineNo int, offset int64) error

// scanGrammar reads the grammar text format line by line and calls handle on
// every rule line. Goal directives are returned
func scanGrammar(reader io.Reader, handle lineHandler) (goals []Label, err error) {
	buffered := bufio.NewReader(reader)
	var offset int64
	for lineNo := 1; ; lineNo++ {
		line, readErr := buffered.ReadString('\n')
		if readErr != nil && readErr != io.EOF {
			return nil, errors.Wrap(readErr, "scanGrammar")
		}
		lineOffset := offset
		offset += int64(len(line))
		line = strings.TrimSpace(line)

		// Goal command
		if strings.HasPrefix(line, goalDirective) {
			for _, field := range strings.Fields(line[len(goalDirective):]) {
				label := Label(field)
				if !label.IsValid() {
					return nil, errors.Errorf("line %d: unexpected goal label: %s", lineNo, field)
				}
				goals = append(goals, label)
			}
		}

		// Comments
		if line != "" && line[0] != ';' {
			rules, err := ParseRule(line)
			if err != nil {
				return nil, errors.Wrapf(err, "line %d", lineNo)
			}
			if err := handle(rules, lineNo, lineOffset); err != nil {
				return nil, err
			}
		}

		if readErr == io.EOF {
			break
		}
	}
	return goals, nil
}

// MemoryGrammar keeps the whole prefix trie in memory
type MemoryGrammar struct {
	trie  *trie
	goals []Label
	graph *LabelGraph
}

// NewMemoryGrammar creates an empty in-memory grammar
func NewMemoryGrammar() *MemoryGrammar {
	return &MemoryGrammar{
		trie:  newTrie(),
		graph: NewLabelGraph(),
	}
}

// ParseGrammar parses grammar from string
func ParseGrammar(grammarText string) (*MemoryGrammar, error) {
	return ReadGrammar(strings.NewReader(grammarText))
}

// ReadGrammar reads the grammar text format from reader
func ReadGrammar(reader io.Reader) (*MemoryGrammar, error) {
	g := NewMemoryGrammar()
	goals, err := scanGrammar(reader, func(rules []*Rule, _ int, _ int64) error {
		for _, rule := range rules {
			g.AddRule(rule)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	g.goals = goals
	return g, nil
}

// LoadGrammar loads an in-memory grammar from file
func LoadGrammar(path string) (*MemoryGrammar, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "LoadGrammar")
	}
	defer file.Close()

	g, err := ReadGrammar(file)
	if err != nil {
		return nil, errors.Wrapf(err, "LoadGrammar: %s", path)
	}
	if g.NumRules() == 0 {
		return nil, errors.Wrapf(ErrNoRules, "LoadGrammar: %s", path)
	}
	log.Infof("loaded %d rules from %s", g.NumRules(), path)
	return g, nil
}

// AddRule adds a rule into grammar. Not safe to call once decoding started
func (g *MemoryGrammar) AddRule(rule *Rule) {
	g.trie.add(rule)
	g.graph.AddRule(rule)
}

// NumRules returns the number of rules in g
func (g *MemoryGrammar) NumRules() int {
	return g.trie.numRules
}

// Goals returns the goal labels declared in the grammar source
func (g *MemoryGrammar) Goals() []Label {
	return g.goals
}

// Labels returns the label graph of g
func (g *MemoryGrammar) Labels() *LabelGraph {
	return g.graph
}

func (g *MemoryGrammar) Root() *Node {
	return g.trie.root
}

func (g *MemoryGrammar) Lookup(state *Node, symbol Symbol) (*Node, bool) {
	child := state.child(symbol)
	return child, child != nil
}

func (g *MemoryGrammar) NonTerminalEdges(state *Node) []Label {
	return state.labels
}

func (g *MemoryGrammar) CompletedRules(state *Node) []*Rule {
	return state.rules
}

func (g *MemoryGrammar) EstimateScore(rule *Rule) float64 {
	return rule.Score
}

var _ Grammar = (*MemoryGrammar)(nil)
