package chart

import (
	"fmt"
	"strings"
)

// TreeNode is a node of a derivation tree. Leaves are target words
type TreeNode struct {
	Children []*TreeNode

	// Label and span for inner nodes, the word for leaves
	Symbol string
}

// Tree is the target side derivation tree of a translation
type Tree struct {
	*TreeNode
}

func (n *TreeNode) String() string {
	return n.repr(0)
}

// repr returns the string representation of the node recursively
func (n *TreeNode) repr(level int) string {
	prefix := strings.Repeat(" ", level*2)
	if level != 0 {
		prefix = "\n" + prefix
	}

	if n.Children == nil {
		return prefix + n.Symbol
	}
	childrenReprs := []string{}
	for _, child := range n.Children {
		childrenReprs = append(childrenReprs, child.repr(level+1))
	}
	return fmt.Sprintf("%s(%s %s)", prefix, n.Symbol, strings.Join(childrenReprs, " "))
}

// buildTree creates the node of a hypothesis applying its rule, with child
// slot expanded by child
func buildTree(h *Hypothesis, child func(slot int) *TreeNode) *TreeNode {
	node := &TreeNode{
		Symbol:   fmt.Sprintf("%s%s", h.Label, h.Range),
		Children: []*TreeNode{},
	}
	for _, tok := range h.Rule().Target {
		if tok.IsTerminal() {
			node.Children = append(node.Children, &TreeNode{Symbol: tok.Word})
		} else {
			node.Children = append(node.Children, child(tok.Slot))
		}
	}
	return node
}

func (h *Hypothesis) treeNode() *TreeNode {
	return buildTree(h, func(slot int) *TreeNode {
		return h.Children[slot].treeNode()
	})
}

// Tree returns the derivation tree of h
func (h *Hypothesis) Tree() *Tree {
	return &Tree{h.treeNode()}
}

func (d *Derivation) treeNode() *TreeNode {
	return buildTree(d.Edge, func(slot int) *TreeNode {
		return d.Children[slot].treeNode()
	})
}

// Tree returns the derivation tree of d
func (d *Derivation) Tree() *Tree {
	return &Tree{d.treeNode()}
}
