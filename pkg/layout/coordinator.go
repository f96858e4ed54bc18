// Package layout schedules sizing and layout updates for a view tree.
//
// A [Coordinator] collects views that need their sizing information
// recomputed and views that need their children re-arranged. Invalidation
// calls are cheap and safe from any goroutine: they record the view in the
// matching pending set and, if no update is scheduled yet, post exactly one
// drain task to the main thread through a [Dispatcher]. The task is always
// deferred, so all invalidations made in one synchronous stretch of code are
// handled together.
//
// # Drain
//
// A drain runs two phases on the main thread:
//
//  1. Sizing. Views are processed deepest first, so children are measured
//     before the ancestors whose size depends on them.
//  2. Layout. Views are processed shallowest first, so parents are arranged
//     before the children positioned inside them.
//
// Each phase repeatedly swaps its live pending set out under the
// coordinator lock, computes the depth of every new view under the tree
// lock, re-sorts the working list and processes its front item. Views
// invalidated by a callback are therefore picked up within the same phase.
// Sizing requests made during the layout phase are left for the next drain,
// which they schedule themselves.
//
// Ties between views of equal depth are broken by ascending [view.ID], which
// makes the order independent of insertion order.
//
// # Failures
//
// A callback error or panic aborts the drain with VIEW_CALLBACK_FAILED. Views
// still on the working list are registered again so a later drain handles
// them; nothing is retried automatically.
package layout

import (
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"github.com/matzehuels/stacklayout/pkg/errors"
	"github.com/matzehuels/stacklayout/pkg/observability"
	"github.com/matzehuels/stacklayout/pkg/view"
)

// Dispatcher posts work to the main thread.
type Dispatcher interface {
	// CallAsync queues task for execution on the main thread. It never runs
	// task inline, even when called from the main thread. Tasks posted by
	// one goroutine run in the order they were posted.
	CallAsync(task func() error) error

	// IsMainThread reports whether the caller runs on the main thread.
	IsMainThread() bool
}

// Phase identifies one of the two passes of a drain.
type Phase int

const (
	PhaseSizing Phase = iota
	PhaseLayout
)

// String implements fmt.Stringer.
func (p Phase) String() string {
	switch p {
	case PhaseSizing:
		return "sizing"
	case PhaseLayout:
		return "layout"
	default:
		return "unknown"
	}
}

// Order returns the processing order used by the phase.
func (p Phase) Order() Order {
	if p == PhaseSizing {
		return DeepestFirst
	}
	return ShallowestFirst
}

func (p Phase) invoke(v view.View) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &errors.PanicError{Value: r}
		}
	}()
	if p == PhaseSizing {
		return v.MainThreadUpdateSizingInfo()
	}
	return v.MainThreadLayout()
}

// pendingSet holds views awaiting one kind of update, deduplicated by ID.
type pendingSet map[view.ID]view.View

// Stats are cumulative counters of a coordinator.
type Stats struct {
	Drains   int
	Sized    int
	LaidOut  int
	Failures int
}

// Coordinator batches and orders view updates. Create it with
// NewCoordinator; all methods are safe for concurrent use.
type Coordinator struct {
	dispatcher Dispatcher
	uiLock     sync.Locker
	logger     *log.Logger

	mu              sync.Mutex
	pending         [2]pendingSet
	updateScheduled bool
	stats           Stats
}

// NewCoordinator creates a coordinator posting drains to d.
//
// uiLock guards the structure of the view tree; it is held while depths are
// computed. If uiLock is nil a private mutex is used, which is only correct
// when the tree is never mutated concurrently with a drain.
// If logger is nil, log.Default() is used.
func NewCoordinator(d Dispatcher, uiLock sync.Locker, logger *log.Logger) *Coordinator {
	if d == nil {
		panic("layout: nil dispatcher")
	}
	if uiLock == nil {
		uiLock = &sync.Mutex{}
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Coordinator{
		dispatcher: d,
		uiLock:     uiLock,
		logger:     logger,
		pending:    [2]pendingSet{make(pendingSet), make(pendingSet)},
	}
}

// ViewNeedsSizingInfoUpdate registers v for a sizing update and makes sure
// a drain is scheduled. Registering a view that is already pending has no
// further effect.
func (c *Coordinator) ViewNeedsSizingInfoUpdate(v view.View) {
	c.invalidate(PhaseSizing, v)
}

// ViewNeedsLayout registers v for a layout pass and makes sure a drain is
// scheduled.
func (c *Coordinator) ViewNeedsLayout(v view.View) {
	c.invalidate(PhaseLayout, v)
}

func (c *Coordinator) invalidate(p Phase, v view.View) {
	if v == nil {
		return
	}
	observability.Coordinator().OnInvalidate(p.String(), uint64(v.ViewID()))

	c.mu.Lock()
	defer c.mu.Unlock()
	c.pending[p][v.ViewID()] = v
	c.requestUpdateLocked()
}

// requestUpdateLocked posts a drain unless one is already outstanding.
// c.mu must be held.
func (c *Coordinator) requestUpdateLocked() {
	if c.updateScheduled {
		return
	}
	c.updateScheduled = true
	if err := c.dispatcher.CallAsync(c.scheduledDrain); err != nil {
		// Nothing will clear the flag, so reset it to let a later
		// invalidation try again.
		c.updateScheduled = false
		c.logger.Error("failed to schedule layout update", "err", err)
		return
	}
	observability.Coordinator().OnDrainScheduled()
}

func (c *Coordinator) scheduledDrain() error {
	c.mu.Lock()
	c.updateScheduled = false
	c.mu.Unlock()
	return c.drain()
}

// UpdateNow drains the pending sets synchronously when called on the main
// thread. On any other goroutine it does nothing: whatever is pending
// already has a drain scheduled.
func (c *Coordinator) UpdateNow() error {
	if !c.dispatcher.IsMainThread() {
		return nil
	}
	return c.drain()
}

// Pending returns the number of views currently registered per phase.
// Views taken into a running drain are not counted.
func (c *Coordinator) Pending() (sizing, layout int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending[PhaseSizing]), len(c.pending[PhaseLayout])
}

// Scheduled reports whether a drain has been posted and not yet started.
func (c *Coordinator) Scheduled() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.updateScheduled
}

// Stats returns a snapshot of the cumulative counters.
func (c *Coordinator) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stats
}

func (c *Coordinator) drain() error {
	id := uuid.NewString()
	hooks := observability.Coordinator()
	hooks.OnDrainStart(id)
	start := time.Now()

	sized, err := c.runPhase(PhaseSizing)
	var laidOut int
	if err == nil {
		laidOut, err = c.runPhase(PhaseLayout)
	}
	elapsed := time.Since(start)

	c.mu.Lock()
	c.stats.Drains++
	c.stats.Sized += sized
	c.stats.LaidOut += laidOut
	if err != nil {
		c.stats.Failures++
	}
	c.mu.Unlock()

	hooks.OnDrainComplete(id, sized, laidOut, elapsed, err)
	if err != nil {
		c.logger.Error("layout update failed", "drain", id, "err", err)
		return err
	}
	c.logger.Debug("layout update complete",
		"drain", id,
		"sized", sized,
		"laid_out", laidOut,
		"duration", elapsed)
	return nil
}

// runPhase processes the pending set of p until it stays empty and returns
// the number of callbacks invoked.
func (c *Coordinator) runPhase(p Phase) (int, error) {
	order := p.Order()
	var work []todo
	queued := make(map[view.ID]bool)
	processed := 0

	for {
		if snapshot := c.take(p); len(snapshot) > 0 {
			c.uiLock.Lock()
			for id, v := range snapshot {
				if queued[id] {
					continue
				}
				queued[id] = true
				work = append(work, todo{view: v, depth: view.Depth(v)})
			}
			c.uiLock.Unlock()
			slices.SortFunc(work, order.compare)
		}
		if len(work) == 0 {
			return processed, nil
		}

		item := work[0]
		work = work[1:]
		delete(queued, item.view.ViewID())

		if err := p.invoke(item.view); err != nil {
			c.restore(p, work)
			return processed, errors.Wrap(errors.ErrCodeViewCallback, err,
				"%s callback of view %s", p, describe(item.view))
		}
		processed++
	}
}

// take swaps the live set of p out and returns it.
func (c *Coordinator) take(p Phase) pendingSet {
	c.mu.Lock()
	defer c.mu.Unlock()
	snapshot := c.pending[p]
	if len(snapshot) == 0 {
		return nil
	}
	c.pending[p] = make(pendingSet)
	return snapshot
}

// restore registers unprocessed items of p again.
func (c *Coordinator) restore(p Phase, work []todo) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, item := range work {
		c.pending[p][item.view.ViewID()] = item.view
	}
}

func describe(v view.View) string {
	if s, ok := v.(fmt.Stringer); ok {
		return fmt.Sprintf("%q (%d)", s.String(), v.ViewID())
	}
	return fmt.Sprintf("%d", v.ViewID())
}
