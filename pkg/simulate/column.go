package simulate

import (
	"sync"

	"github.com/matzehuels/stacklayout/pkg/errors"
	"github.com/matzehuels/stacklayout/pkg/layout"
	"github.com/matzehuels/stacklayout/pkg/view"
)

// box is the geometry of one view in the column demo. A view occupies its
// own extent and stacks its children below it.
type box struct {
	extent  int
	measure int
	offset  int
}

// column implements stacking sizing and layout callbacks on top of a
// coordinator and records every callback in the trace.
type column struct {
	coord *layout.Coordinator
	disp  layout.Dispatcher

	mu    sync.Mutex
	boxes map[*view.Node]*box
	trace []Event
	drain int
}

func newColumn(coord *layout.Coordinator, disp layout.Dispatcher) *column {
	return &column{
		coord: coord,
		disp:  disp,
		boxes: make(map[*view.Node]*box),
	}
}

// attach installs the column callbacks on n.
func (c *column) attach(n *view.Node, extent int) {
	c.mu.Lock()
	c.boxes[n] = &box{extent: extent}
	c.mu.Unlock()
	n.SetSizingFunc(c.updateSizing)
	n.SetLayoutFunc(c.arrange)
}

// setExtent changes the own extent of n. Safe from any goroutine.
func (c *column) setExtent(n *view.Node, extent int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.boxes[n].extent = extent
}

func (c *column) beginDrain() {
	c.mu.Lock()
	c.drain++
	c.mu.Unlock()
}

func (c *column) record(phase layout.Phase, n *view.Node) error {
	if !c.disp.IsMainThread() {
		return errors.New(errors.ErrCodeInternal, "%s callback of %q off the main thread", phase, n.Name())
	}
	c.trace = append(c.trace, Event{
		Drain: c.drain,
		Phase: phase.String(),
		View:  n.Name(),
		Depth: n.Depth(),
	})
	return nil
}

// updateSizing measures n as its own extent plus the measures of its
// children. A changed measure invalidates the parent's size and the
// arrangement around n.
func (c *column) updateSizing(n *view.Node) error {
	children := n.Children()
	parent := n.Parent()

	c.mu.Lock()
	if err := c.record(layout.PhaseSizing, n); err != nil {
		c.mu.Unlock()
		return err
	}
	b := c.boxes[n]
	measure := b.extent
	for _, child := range children {
		measure += c.boxes[child].measure
	}
	changed := measure != b.measure
	b.measure = measure
	c.mu.Unlock()

	if !changed {
		return nil
	}
	c.coord.ViewNeedsLayout(n)
	if parent != nil {
		c.coord.ViewNeedsSizingInfoUpdate(parent)
		c.coord.ViewNeedsLayout(parent)
	}
	return nil
}

// arrange stacks the children of n below its own extent. Children whose
// offset moved are laid out again.
func (c *column) arrange(n *view.Node) error {
	children := n.Children()

	c.mu.Lock()
	if err := c.record(layout.PhaseLayout, n); err != nil {
		c.mu.Unlock()
		return err
	}
	b := c.boxes[n]
	cursor := b.offset + b.extent
	var moved []*view.Node
	for _, child := range children {
		cb := c.boxes[child]
		if cb.offset != cursor {
			cb.offset = cursor
			moved = append(moved, child)
		}
		cursor += cb.measure
	}
	c.mu.Unlock()

	for _, child := range moved {
		c.coord.ViewNeedsLayout(child)
	}
	return nil
}

func (c *column) snapshot(n *view.Node) box {
	c.mu.Lock()
	defer c.mu.Unlock()
	return *c.boxes[n]
}

func (c *column) events() []Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Event, len(c.trace))
	copy(out, c.trace)
	return out
}
