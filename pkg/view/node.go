package view

import (
	"slices"

	"github.com/matzehuels/stacklayout/pkg/errors"
)

// Callback is the signature of a main-thread view callback.
type Callback func(n *Node) error

// Node is a generic view: a named tree node whose sizing and layout
// behavior is supplied as callbacks. Nodes belong to exactly one [Tree]
// and all structural changes go through that tree's lock.
//
// The zero value is not usable - use NewNode.
type Node struct {
	id       ID
	name     string
	tree     *Tree
	parent   *Node
	children []*Node

	onSizing Callback
	onLayout Callback
}

// NewNode creates a detached node (a root) in tree t.
func NewNode(t *Tree, name string) *Node {
	return &Node{
		id:   NewID(),
		name: name,
		tree: t,
	}
}

// ViewID implements View.
func (n *Node) ViewID() ID { return n.id }

// Name returns the node's display name.
func (n *Node) Name() string { return n.name }

// Tree returns the tree the node belongs to.
func (n *Node) Tree() *Tree { return n.tree }

// String implements fmt.Stringer.
func (n *Node) String() string { return n.name }

// ParentView implements View. It never returns a typed nil.
func (n *Node) ParentView() View {
	if n.parent == nil {
		return nil
	}
	return n.parent
}

// Parent returns the parent node, or nil for a root.
func (n *Node) Parent() *Node {
	var p *Node
	n.tree.Read(func() { p = n.parent })
	return p
}

// Children returns a snapshot of the node's children in insertion order.
func (n *Node) Children() []*Node {
	var out []*Node
	n.tree.Read(func() { out = slices.Clone(n.children) })
	return out
}

// Depth returns the number of parent hops to the root, under the tree lock.
func (n *Node) Depth() int {
	var d int
	n.tree.Read(func() { d = Depth(n) })
	return d
}

// AddChild attaches child below n. The child must be a root of the same
// tree and must not be an ancestor of n.
func (n *Node) AddChild(child *Node) error {
	if child == nil {
		return errors.New(errors.ErrCodeInvalidInput, "nil child")
	}
	if child.tree != n.tree {
		return errors.New(errors.ErrCodeInvalidInput, "view %q belongs to a different tree", child.name)
	}

	var err error
	n.tree.Mutate(func() {
		if child.parent != nil {
			err = errors.New(errors.ErrCodeInvalidInput, "view %q already has parent %q", child.name, child.parent.name)
			return
		}
		for a := n; a != nil; a = a.parent {
			if a == child {
				err = errors.New(errors.ErrCodeInvalidInput, "adding %q below %q would create a cycle", child.name, n.name)
				return
			}
		}
		child.parent = n
		n.children = append(n.children, child)
	})
	return err
}

// RemoveFromParent detaches n (and its subtree) from its parent.
// It is a no-op for roots.
func (n *Node) RemoveFromParent() {
	n.tree.Mutate(func() {
		p := n.parent
		if p == nil {
			return
		}
		p.children = slices.DeleteFunc(p.children, func(c *Node) bool { return c == n })
		n.parent = nil
	})
}

// SetSizingFunc sets the callback run by MainThreadUpdateSizingInfo.
func (n *Node) SetSizingFunc(fn Callback) { n.onSizing = fn }

// SetLayoutFunc sets the callback run by MainThreadLayout.
func (n *Node) SetLayoutFunc(fn Callback) { n.onLayout = fn }

// MainThreadUpdateSizingInfo implements View.
func (n *Node) MainThreadUpdateSizingInfo() error {
	if n.onSizing == nil {
		return nil
	}
	return n.onSizing(n)
}

// MainThreadLayout implements View.
func (n *Node) MainThreadLayout() error {
	if n.onLayout == nil {
		return nil
	}
	return n.onLayout(n)
}

// Walk visits n and its descendants in depth-first pre-order.
// Returning false from fn skips the node's subtree.
func (n *Node) Walk(fn func(*Node) bool) {
	var visit func(*Node)
	visit = func(c *Node) {
		if !fn(c) {
			return
		}
		for _, child := range c.Children() {
			visit(child)
		}
	}
	visit(n)
}
