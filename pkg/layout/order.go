package layout

import (
	"cmp"

	"github.com/matzehuels/stacklayout/pkg/view"
)

// Order selects how queued views are ordered by depth within a phase.
type Order int

const (
	// DeepestFirst processes leaf-most views first. Used for sizing, since a
	// parent's preferred size depends on its children.
	DeepestFirst Order = iota
	// ShallowestFirst processes roots first. Used for layout, since children
	// are positioned relative to their already-arranged parent.
	ShallowestFirst
)

// String implements fmt.Stringer.
func (o Order) String() string {
	switch o {
	case DeepestFirst:
		return "deepest-first"
	case ShallowestFirst:
		return "shallowest-first"
	default:
		return "unknown"
	}
}

// todo is a queued view together with the depth it had when it was queued.
type todo struct {
	view  view.View
	depth int
}

// compare orders two items by depth in the direction of o. Items of equal
// depth are ordered by ascending view ID regardless of o.
func (o Order) compare(a, b todo) int {
	if a.depth != b.depth {
		if o == DeepestFirst {
			return cmp.Compare(b.depth, a.depth)
		}
		return cmp.Compare(a.depth, b.depth)
	}
	return cmp.Compare(a.view.ViewID(), b.view.ViewID())
}
