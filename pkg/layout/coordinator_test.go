package layout

import (
	stderrors "errors"
	"io"
	"sync"
	"testing"

	"github.com/charmbracelet/log"
	"github.com/google/go-cmp/cmp"

	"github.com/matzehuels/stacklayout/pkg/errors"
	"github.com/matzehuels/stacklayout/pkg/view"
)

// fakeDispatcher queues tasks until the test runs them.
type fakeDispatcher struct {
	mu    sync.Mutex
	tasks []func() error
	posts int
	main  bool
	fail  error
}

func (d *fakeDispatcher) CallAsync(task func() error) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.fail != nil {
		return d.fail
	}
	d.posts++
	d.tasks = append(d.tasks, task)
	return nil
}

func (d *fakeDispatcher) IsMainThread() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.main
}

func (d *fakeDispatcher) queued() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.tasks)
}

// runNext runs the oldest queued task, reporting false if there was none.
func (d *fakeDispatcher) runNext() (bool, error) {
	d.mu.Lock()
	if len(d.tasks) == 0 {
		d.mu.Unlock()
		return false, nil
	}
	task := d.tasks[0]
	d.tasks = d.tasks[1:]
	d.mu.Unlock()
	return true, task()
}

// runAll runs tasks until the queue is empty and returns the first error.
func (d *fakeDispatcher) runAll() error {
	var first error
	for {
		ok, err := d.runNext()
		if !ok {
			return first
		}
		if err != nil && first == nil {
			first = err
		}
	}
}

// recorder collects callback invocations as "phase:name".
type recorder struct {
	mu    sync.Mutex
	calls []string
}

func (r *recorder) add(phase string, n *view.Node) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, phase+":"+n.Name())
}

func (r *recorder) take() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := r.calls
	r.calls = nil
	return out
}

type fixture struct {
	tree  *view.Tree
	disp  *fakeDispatcher
	coord *Coordinator
	rec   *recorder
	nodes map[string]*view.Node
}

// newFixture builds a tree from name/parent pairs, listed parents first.
// Nodes are created in listing order, so earlier names get smaller IDs.
func newFixture(t *testing.T, edges ...[2]string) *fixture {
	t.Helper()
	f := &fixture{
		tree:  &view.Tree{},
		disp:  &fakeDispatcher{},
		rec:   &recorder{},
		nodes: make(map[string]*view.Node),
	}
	f.coord = NewCoordinator(f.disp, f.tree.Locker(), log.New(io.Discard))

	for _, e := range edges {
		name, parent := e[0], e[1]
		n := view.NewNode(f.tree, name)
		n.SetSizingFunc(func(n *view.Node) error { f.rec.add("sizing", n); return nil })
		n.SetLayoutFunc(func(n *view.Node) error { f.rec.add("layout", n); return nil })
		f.nodes[name] = n
		if parent != "" {
			p, ok := f.nodes[parent]
			if !ok {
				t.Fatalf("parent %q of %q not declared yet", parent, name)
			}
			if err := p.AddChild(n); err != nil {
				t.Fatal(err)
			}
		}
	}
	return f
}

func (f *fixture) drain(t *testing.T) {
	t.Helper()
	if err := f.disp.runAll(); err != nil {
		t.Fatalf("drain: %v", err)
	}
}

func TestSizingRunsDeepestFirst(t *testing.T) {
	f := newFixture(t,
		[2]string{"root", ""},
		[2]string{"a", "root"},
		[2]string{"b", "a"},
		[2]string{"c", "b"},
	)

	var cUpdated, aSawC bool
	f.nodes["c"].SetSizingFunc(func(n *view.Node) error {
		f.rec.add("sizing", n)
		cUpdated = true
		return nil
	})
	f.nodes["a"].SetSizingFunc(func(n *view.Node) error {
		f.rec.add("sizing", n)
		aSawC = cUpdated
		return nil
	})

	f.coord.ViewNeedsSizingInfoUpdate(f.nodes["c"])
	f.coord.ViewNeedsSizingInfoUpdate(f.nodes["a"])
	f.drain(t)

	want := []string{"sizing:c", "sizing:a"}
	if diff := cmp.Diff(want, f.rec.take()); diff != "" {
		t.Errorf("call order mismatch (-want +got):\n%s", diff)
	}
	if !aSawC {
		t.Error("a was sized before c")
	}
}

func TestLayoutRunsShallowestFirst(t *testing.T) {
	f := newFixture(t,
		[2]string{"root", ""},
		[2]string{"a", "root"},
		[2]string{"b", "a"},
		[2]string{"c", "b"},
	)

	for _, name := range []string{"c", "root", "b"} {
		f.coord.ViewNeedsLayout(f.nodes[name])
	}
	f.drain(t)

	want := []string{"layout:root", "layout:b", "layout:c"}
	if diff := cmp.Diff(want, f.rec.take()); diff != "" {
		t.Errorf("call order mismatch (-want +got):\n%s", diff)
	}
}

func TestSiblingOrderIgnoresInsertionOrder(t *testing.T) {
	for _, insert := range [][]string{{"a", "b"}, {"b", "a"}} {
		f := newFixture(t,
			[2]string{"root", ""},
			[2]string{"a", "root"},
			[2]string{"b", "root"},
		)
		for _, name := range insert {
			f.coord.ViewNeedsLayout(f.nodes[name])
			f.coord.ViewNeedsSizingInfoUpdate(f.nodes[name])
		}
		f.drain(t)

		want := []string{"sizing:a", "sizing:b", "layout:a", "layout:b"}
		if diff := cmp.Diff(want, f.rec.take()); diff != "" {
			t.Errorf("insert order %v: mismatch (-want +got):\n%s", insert, diff)
		}
	}
}

func TestDuplicateInvalidationsRunOnce(t *testing.T) {
	f := newFixture(t, [2]string{"root", ""}, [2]string{"a", "root"})

	for range 3 {
		f.coord.ViewNeedsSizingInfoUpdate(f.nodes["a"])
		f.coord.ViewNeedsLayout(f.nodes["a"])
	}
	if s, l := f.coord.Pending(); s != 1 || l != 1 {
		t.Errorf("Pending() = (%d, %d), want (1, 1)", s, l)
	}
	if f.disp.posts != 1 {
		t.Errorf("posted %d drains, want 1", f.disp.posts)
	}
	f.drain(t)

	want := []string{"sizing:a", "layout:a"}
	if diff := cmp.Diff(want, f.rec.take()); diff != "" {
		t.Errorf("mismatch (-want +got):\n%s", diff)
	}
}

func TestDrainIsNeverInline(t *testing.T) {
	f := newFixture(t, [2]string{"root", ""})
	f.disp.main = true

	f.coord.ViewNeedsSizingInfoUpdate(f.nodes["root"])
	if calls := f.rec.take(); len(calls) != 0 {
		t.Fatalf("callbacks ran before the drain: %v", calls)
	}
	if !f.coord.Scheduled() {
		t.Error("Scheduled() = false after invalidation")
	}
	f.drain(t)
	if f.coord.Scheduled() {
		t.Error("Scheduled() = true after drain")
	}
}

func TestCallbackInvalidationsJoinCurrentPhase(t *testing.T) {
	// x and y are siblings; z is below x. Sizing x invalidates its sibling y
	// (already pending) and the deeper z, which must run next.
	f := newFixture(t,
		[2]string{"root", ""},
		[2]string{"x", "root"},
		[2]string{"y", "root"},
		[2]string{"z", "x"},
		[2]string{"w", "root"},
	)
	f.nodes["x"].SetSizingFunc(func(n *view.Node) error {
		f.rec.add("sizing", n)
		f.coord.ViewNeedsSizingInfoUpdate(f.nodes["z"])
		f.coord.ViewNeedsSizingInfoUpdate(f.nodes["y"])
		return nil
	})
	f.nodes["y"].SetSizingFunc(func(n *view.Node) error {
		f.rec.add("sizing", n)
		f.coord.ViewNeedsSizingInfoUpdate(f.nodes["w"])
		return nil
	})

	f.coord.ViewNeedsSizingInfoUpdate(f.nodes["x"])
	f.coord.ViewNeedsSizingInfoUpdate(f.nodes["y"])

	if ok, err := f.disp.runNext(); !ok || err != nil {
		t.Fatalf("runNext() = (%v, %v)", ok, err)
	}
	want := []string{"sizing:x", "sizing:z", "sizing:y", "sizing:w"}
	if diff := cmp.Diff(want, f.rec.take()); diff != "" {
		t.Errorf("first drain mismatch (-want +got):\n%s", diff)
	}

	// The invalidations above also scheduled a follow-up drain; it finds
	// nothing left to do.
	f.drain(t)
	if calls := f.rec.take(); len(calls) != 0 {
		t.Errorf("follow-up drain ran %v", calls)
	}
}

func TestSizingRequestedDuringLayoutWaitsForNextDrain(t *testing.T) {
	f := newFixture(t, [2]string{"root", ""}, [2]string{"a", "root"})
	f.nodes["a"].SetLayoutFunc(func(n *view.Node) error {
		f.rec.add("layout", n)
		f.coord.ViewNeedsSizingInfoUpdate(f.nodes["root"])
		f.coord.ViewNeedsLayout(f.nodes["root"])
		return nil
	})

	f.coord.ViewNeedsLayout(f.nodes["a"])
	if _, err := f.disp.runNext(); err != nil {
		t.Fatal(err)
	}
	// root is shallower than a but still joins the running layout phase.
	want := []string{"layout:a", "layout:root"}
	if diff := cmp.Diff(want, f.rec.take()); diff != "" {
		t.Errorf("first drain mismatch (-want +got):\n%s", diff)
	}
	if s, _ := f.coord.Pending(); s != 1 {
		t.Errorf("pending sizing = %d, want 1", s)
	}
	if !f.coord.Scheduled() || f.disp.queued() != 1 {
		t.Fatal("sizing request did not schedule a new drain")
	}

	f.drain(t)
	if diff := cmp.Diff([]string{"sizing:root"}, f.rec.take()); diff != "" {
		t.Errorf("second drain mismatch (-want +got):\n%s", diff)
	}
}

func TestConcurrentInvalidationSchedulesOneDrain(t *testing.T) {
	f := newFixture(t, [2]string{"root", ""})
	nodes := make([]*view.Node, 64)
	for i := range nodes {
		nodes[i] = view.NewNode(f.tree, "n")
		nodes[i].SetSizingFunc(func(n *view.Node) error { f.rec.add("sizing", n); return nil })
		nodes[i].SetLayoutFunc(func(n *view.Node) error { f.rec.add("layout", n); return nil })
		if err := f.nodes["root"].AddChild(nodes[i]); err != nil {
			t.Fatal(err)
		}
	}

	var wg sync.WaitGroup
	for _, n := range nodes {
		wg.Add(1)
		go func() {
			defer wg.Done()
			f.coord.ViewNeedsSizingInfoUpdate(n)
			f.coord.ViewNeedsLayout(n)
		}()
	}
	wg.Wait()

	if f.disp.posts != 1 {
		t.Errorf("posted %d drains, want 1", f.disp.posts)
	}
	if s, l := f.coord.Pending(); s != len(nodes) || l != len(nodes) {
		t.Errorf("Pending() = (%d, %d), want (%d, %d)", s, l, len(nodes), len(nodes))
	}
	f.drain(t)
	if got := len(f.rec.take()); got != 2*len(nodes) {
		t.Errorf("ran %d callbacks, want %d", got, 2*len(nodes))
	}
	want := Stats{Drains: 1, Sized: len(nodes), LaidOut: len(nodes)}
	if diff := cmp.Diff(want, f.coord.Stats()); diff != "" {
		t.Errorf("Stats() mismatch (-want +got):\n%s", diff)
	}
}

func TestCallbackErrorKeepsUnprocessedViews(t *testing.T) {
	f := newFixture(t,
		[2]string{"root", ""},
		[2]string{"a", "root"},
		[2]string{"b", "root"},
		[2]string{"c", "root"},
	)
	cause := stderrors.New("bad measure")
	f.nodes["b"].SetSizingFunc(func(n *view.Node) error {
		f.rec.add("sizing", n)
		return cause
	})

	for _, name := range []string{"a", "b", "c"} {
		f.coord.ViewNeedsSizingInfoUpdate(f.nodes[name])
	}
	f.coord.ViewNeedsLayout(f.nodes["root"])

	err := f.disp.runAll()
	if !errors.Is(err, errors.ErrCodeViewCallback) {
		t.Fatalf("drain error = %v, want %s", err, errors.ErrCodeViewCallback)
	}
	if !stderrors.Is(err, cause) {
		t.Errorf("drain error %v does not wrap %v", err, cause)
	}
	want := []string{"sizing:a", "sizing:b"}
	if diff := cmp.Diff(want, f.rec.take()); diff != "" {
		t.Errorf("mismatch (-want +got):\n%s", diff)
	}
	if s, l := f.coord.Pending(); s != 1 || l != 1 {
		t.Errorf("Pending() = (%d, %d), want (1, 1)", s, l)
	}
	if st := f.coord.Stats(); st.Failures != 1 || st.Sized != 1 {
		t.Errorf("Stats() = %+v, want 1 failure and 1 sized", st)
	}

	// The next invalidation picks the leftovers up.
	f.nodes["b"].SetSizingFunc(nil)
	f.coord.ViewNeedsSizingInfoUpdate(f.nodes["b"])
	f.drain(t)
	want = []string{"sizing:c", "layout:root"}
	if diff := cmp.Diff(want, f.rec.take()); diff != "" {
		t.Errorf("recovery drain mismatch (-want +got):\n%s", diff)
	}
}

func TestCallbackPanicAbortsDrain(t *testing.T) {
	f := newFixture(t, [2]string{"root", ""})
	f.nodes["root"].SetLayoutFunc(func(*view.Node) error { panic("layout exploded") })

	f.coord.ViewNeedsLayout(f.nodes["root"])
	err := f.disp.runAll()

	var pe *errors.PanicError
	if !stderrors.As(err, &pe) {
		t.Fatalf("drain error = %v, want a PanicError", err)
	}
	if !errors.Is(err, errors.ErrCodeViewCallback) {
		t.Errorf("code = %q, want %q", errors.GetCode(err), errors.ErrCodeViewCallback)
	}
}

func TestDispatchFailureResetsScheduledFlag(t *testing.T) {
	f := newFixture(t, [2]string{"root", ""})
	f.disp.fail = errors.New(errors.ErrCodeLoopClosed, "closed")

	f.coord.ViewNeedsSizingInfoUpdate(f.nodes["root"])
	if f.coord.Scheduled() {
		t.Fatal("Scheduled() = true although dispatch failed")
	}

	f.disp.fail = nil
	f.coord.ViewNeedsLayout(f.nodes["root"])
	if !f.coord.Scheduled() {
		t.Fatal("Scheduled() = false after dispatcher recovered")
	}
	f.drain(t)
	want := []string{"sizing:root", "layout:root"}
	if diff := cmp.Diff(want, f.rec.take()); diff != "" {
		t.Errorf("mismatch (-want +got):\n%s", diff)
	}
}

func TestUpdateNow(t *testing.T) {
	f := newFixture(t, [2]string{"root", ""}, [2]string{"a", "root"})
	f.coord.ViewNeedsSizingInfoUpdate(f.nodes["a"])

	if err := f.coord.UpdateNow(); err != nil {
		t.Fatal(err)
	}
	if calls := f.rec.take(); len(calls) != 0 {
		t.Errorf("UpdateNow off the main thread ran %v", calls)
	}

	f.disp.main = true
	if err := f.coord.UpdateNow(); err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]string{"sizing:a"}, f.rec.take()); diff != "" {
		t.Errorf("mismatch (-want +got):\n%s", diff)
	}

	// The drain scheduled earlier still runs and finds nothing.
	f.drain(t)
	if calls := f.rec.take(); len(calls) != 0 {
		t.Errorf("scheduled drain ran %v", calls)
	}
}

func TestNilViewIsIgnored(t *testing.T) {
	f := newFixture(t)
	f.coord.ViewNeedsSizingInfoUpdate(nil)
	if f.coord.Scheduled() {
		t.Error("nil view scheduled a drain")
	}
}

// heldLocker tracks whether it is currently held.
type heldLocker struct {
	mu    sync.Mutex
	held  bool
	locks int
}

func (l *heldLocker) Lock() {
	l.mu.Lock()
	l.held = true
	l.locks++
}

func (l *heldLocker) Unlock() {
	l.held = false
	l.mu.Unlock()
}

// lockedView reports parent walks and callbacks made with the tree lock in
// the wrong state.
type lockedView struct {
	id     view.ID
	parent *lockedView
	lock   *heldLocker
	bad    *[]string
}

func (v *lockedView) ViewID() view.ID { return v.id }

func (v *lockedView) ParentView() view.View {
	if !v.lock.held {
		*v.bad = append(*v.bad, "parent walk without lock")
	}
	if v.parent == nil {
		return nil
	}
	return v.parent
}

func (v *lockedView) MainThreadUpdateSizingInfo() error {
	if v.lock.held {
		*v.bad = append(*v.bad, "sizing callback under lock")
	}
	return nil
}

func (v *lockedView) MainThreadLayout() error {
	if v.lock.held {
		*v.bad = append(*v.bad, "layout callback under lock")
	}
	return nil
}

func TestDepthsAreComputedUnderTreeLock(t *testing.T) {
	lock := &heldLocker{}
	disp := &fakeDispatcher{}
	coord := NewCoordinator(disp, lock, log.New(io.Discard))

	var bad []string
	root := &lockedView{id: view.NewID(), lock: lock, bad: &bad}
	child := &lockedView{id: view.NewID(), parent: root, lock: lock, bad: &bad}
	leaf := &lockedView{id: view.NewID(), parent: child, lock: lock, bad: &bad}

	coord.ViewNeedsSizingInfoUpdate(leaf)
	coord.ViewNeedsSizingInfoUpdate(root)
	coord.ViewNeedsLayout(child)
	if err := disp.runAll(); err != nil {
		t.Fatalf("drain: %v", err)
	}

	if len(bad) != 0 {
		t.Errorf("lock violations: %v", bad)
	}
	if lock.locks == 0 {
		t.Error("tree lock was never taken")
	}
	if lock.held {
		t.Error("tree lock still held after the drain")
	}
}
