// Package view defines the view contract consumed by the layout coordinator.
//
// The coordinator never looks inside a view. It only needs three things from
// it: the parent link (to compute the view's depth in the tree) and the two
// main-thread callbacks that recompute sizing information and arrange children.
// Concrete sizing and arrangement math belongs to the view implementations.
//
// # Identity
//
// Every view carries an [ID] allocated by [NewID]. IDs are unique for the
// process lifetime and totally ordered, which gives the coordinator a stable
// tie-break between views of equal depth.
//
// # Tree lock
//
// [Tree] owns the coarse lock that guards parent/child links. Structural
// mutation takes the write side; the coordinator takes [Tree.Locker] while it
// walks parent links to compute depths.
package view

import (
	"sync"
	"sync/atomic"
)

// ID identifies a view. IDs are process-unique and ordered by allocation.
type ID uint64

var lastID atomic.Uint64

// NewID allocates a fresh view ID. Safe for concurrent use.
func NewID() ID {
	return ID(lastID.Add(1))
}

// View is the contract between the layout coordinator and the view tree.
type View interface {
	// ViewID returns the view's identity.
	ViewID() ID

	// ParentView returns the parent, or nil for a tree root.
	ParentView() View

	// MainThreadUpdateSizingInfo recomputes preferred/minimum/maximum size
	// information. Only called on the main thread. It may re-invalidate
	// views, including itself.
	MainThreadUpdateSizingInfo() error

	// MainThreadLayout positions the view's children. Only called on the
	// main thread and may re-invalidate views.
	MainThreadLayout() error
}

// Depth returns the number of parent hops from v to its tree root.
// The caller must hold the tree lock for the result to be meaningful.
func Depth(v View) int {
	depth := 0
	for p := v.ParentView(); p != nil; p = p.ParentView() {
		depth++
	}
	return depth
}

// Tree holds the global UI lock guarding the structure of a view tree.
// The zero value is ready to use.
type Tree struct {
	mu sync.RWMutex
}

// Locker returns the read side of the tree lock, suitable for depth
// computation while structural mutation is excluded.
func (t *Tree) Locker() sync.Locker {
	return t.mu.RLocker()
}

// Mutate runs fn while holding the write side of the tree lock.
func (t *Tree) Mutate(fn func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	fn()
}

// Read runs fn while holding the read side of the tree lock.
func (t *Tree) Read(fn func()) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	fn()
}
