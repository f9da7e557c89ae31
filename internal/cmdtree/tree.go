// Package cmdtree implements the hierarchical command tree the dispatcher
// walks to resolve incoming command sentences: each node either carries an
// action or, when none is bound, falls back to printing the node's own
// descendant listing.
package cmdtree

import "strings"

// Action is bound to a leaf (or any node) and produces the response written
// back to the requesting session. caller is the handle of whoever sent the
// command sentence that resolved to this node — actions that need to know
// who is asking (subscribe/unsubscribe) use it; actions that don't may
// ignore it. This mirrors the original command graph's
// `operator()(nsp in)`, which always passes the calling session through.
type Action func(caller any) string

// Node is one point in the command tree. Children are kept both in a map,
// for O(1) lookup during a walk, and in an insertion-ordered slice of keys,
// so Descendants lists them in the order they were spawned rather than
// sorted by name.
type Node struct {
	children   map[string]*Node
	childOrder []string
	action     Action
}

// New returns an empty node with no bound action.
func New() *Node {
	return &Node{children: make(map[string]*Node)}
}

// NewLeaf returns an empty node bound to action.
func NewLeaf(action Action) *Node {
	n := New()
	n.action = action
	return n
}

// Spawn attaches child under name, replacing any existing child with that
// name in place (without disturbing its position in insertion order).
func (n *Node) Spawn(name string, child *Node) {
	if _, exists := n.children[name]; !exists {
		n.childOrder = append(n.childOrder, name)
	}
	n.children[name] = child
}

// SpawnAll attaches every name/child pair in the given map, in the map's
// iteration order (callers that care about a specific child order should
// call Spawn repeatedly instead).
func (n *Node) SpawnAll(children map[string]*Node) {
	for name, child := range children {
		n.Spawn(name, child)
	}
}

// SetAction binds (or replaces) this node's action.
func (n *Node) SetAction(action Action) {
	n.action = action
}

// IsLeaf reports whether this node has no children.
func (n *Node) IsLeaf() bool {
	return len(n.childOrder) == 0
}

// Purge recursively clears every child, turning the subtree rooted here
// back into a leaf. A no-op on a node that is already a leaf.
func (n *Node) Purge() {
	if n.IsLeaf() {
		return
	}
	for _, name := range n.childOrder {
		n.children[name].Purge()
	}
	n.children = make(map[string]*Node)
	n.childOrder = nil
}

// Walk consumes tokens from the front of sentence one at a time, descending
// into matching children. It stops and returns the current node as soon as
// the node is a leaf, the sentence is exhausted, or the next token names no
// child — any remaining tokens at that point are discarded, matching the
// original command graph's walk_tree.
func (n *Node) Walk(sentence []string) *Node {
	current := n
	for len(sentence) > 0 {
		if current.IsLeaf() {
			return current
		}
		head := sentence[0]
		child, ok := current.children[head]
		if !ok {
			return current
		}
		current = child
		sentence = sentence[1:]
	}
	return current
}

// Invoke runs this node's bound action, or, if none is bound, falls back to
// printing the node's own descendant listing — the same implicit-help
// behavior the original command graph's operator() provides.
func (n *Node) Invoke(caller any) string {
	if n.action != nil {
		return n.action(caller)
	}
	return n.Descendants(0)
}

// Descendants renders every descendant of this node, one per line, indented
// two spaces per level of ancestry below this node, in insertion order.
// ancestors is the indent depth to render this node's direct children at.
func (n *Node) Descendants(ancestors int) string {
	var b strings.Builder
	for _, name := range n.childOrder {
		b.WriteString(strings.Repeat("  ", ancestors))
		b.WriteString(name)
		b.WriteByte('\n')
		b.WriteString(n.children[name].Descendants(ancestors + 1))
	}
	return b.String()
}
