package grammar

// Node is a node of the source-pattern prefix trie. A node is the state
// reached after matching a prefix of some source patterns. Nodes are never
// modified once the grammar (or the grammar block) owning them is published
type Node struct {
	terminals    map[string]*Node
	nonTerminals map[Label]*Node

	// Labels of nonTerminals in insertion order, so that matching is
	// deterministic
	labels []Label

	// Rules whose source pattern ends at this node
	rules []*Rule
}

func newNode() *Node {
	return &Node{
		terminals:    map[string]*Node{},
		nonTerminals: map[Label]*Node{},
	}
}

// child returns the child of n along symbol, nil if not exist
func (n *Node) child(symbol Symbol) *Node {
	if symbol.IsTerminal() {
		return n.terminals[symbol.Word]
	}
	return n.nonTerminals[symbol.Label]
}

// getOrAddChild returns the child of n along symbol. If the child does not
// exist insert a new one
func (n *Node) getOrAddChild(symbol Symbol) *Node {
	if child := n.child(symbol); child != nil {
		return child
	}
	child := newNode()
	if symbol.IsTerminal() {
		n.terminals[symbol.Word] = child
	} else {
		n.nonTerminals[symbol.Label] = child
		n.labels = append(n.labels, symbol.Label)
	}
	return child
}

// insert adds rule under n, walking source[depth:]
func (n *Node) insert(rule *Rule, depth int) {
	node := n
	for _, symbol := range rule.Source[depth:] {
		node = node.getOrAddChild(symbol)
	}
	node.rules = append(node.rules, rule)
}

// HasExtensions returns true if any longer pattern continues from n
func (n *Node) HasExtensions() bool {
	return len(n.terminals) != 0 || len(n.nonTerminals) != 0
}

// trie is the in-memory prefix trie shared by MemoryGrammar and by the blocks
// of LazyGrammar
type trie struct {
	root     *Node
	numRules int
}

func newTrie() *trie {
	return &trie{root: newNode()}
}

func (t *trie) add(rule *Rule) {
	t.root.insert(rule, 0)
	t.numRules++
}
