// Package thread provides an owned handle to a background goroutine with
// cooperative stop, error capture and detach semantics.
//
// # Lifecycle
//
// A [Thread] starts its [Runnable] as soon as it is created with [New]; there
// is no separate start call. The handle moves through the states
// Created → Running → Finished, or to Detached once [Thread.Detach] is called.
//
//   - [Thread.SignalStop] cancels the runnable's context. Runnables are
//     expected to poll it (see [Stopping]); nothing is ever preempted.
//   - [Thread.Join] waits for the runnable to return.
//   - [Thread.Stop] signals and then joins.
//   - [Thread.Close] releases the handle: unless detached it behaves like
//     Stop(IgnoreError), so no goroutine outlives its handle by accident.
//
// # Errors
//
// An error returned by Run, or a panic escaping it, is captured on the worker
// goroutine and stored once. Join and Stop return it when called with
// [ForwardError] and discard it with [IgnoreError]. Every call returns the
// same stored value: a RUNNABLE_FAILED error naming the thread, whose cause
// is the runnable's own error or a [errors.PanicError]. errors.Is and
// errors.As reach the original through Unwrap.
//
// After Detach, Join, Stop and SignalStop fail with THREAD_DETACHED.
//
// # Exec
//
// [Exec] runs a function on a self-detaching thread and returns a [Future].
// Dropping the future neither blocks nor cancels the work.
package thread

import (
	"context"
	"sync"
	"time"

	"github.com/matzehuels/stacklayout/pkg/errors"
	"github.com/matzehuels/stacklayout/pkg/observability"
)

// Forwarding selects what Join and Stop do with a captured runnable error.
type Forwarding int

const (
	// ForwardError returns the captured error to the caller.
	ForwardError Forwarding = iota
	// IgnoreError discards the captured error.
	IgnoreError
)

// State is the lifecycle state of a Thread.
type State int

const (
	StateCreated State = iota
	StateRunning
	StateFinished
	StateDetached
)

// String implements fmt.Stringer.
func (s State) String() string {
	switch s {
	case StateCreated:
		return "created"
	case StateRunning:
		return "running"
	case StateFinished:
		return "finished"
	case StateDetached:
		return "detached"
	default:
		return "unknown"
	}
}

// Runnable is the work executed by a Thread. Run should return promptly once
// ctx is canceled.
type Runnable interface {
	Run(ctx context.Context) error
}

// RunnableFunc adapts a function to Runnable.
type RunnableFunc func(ctx context.Context) error

// Run implements Runnable.
func (f RunnableFunc) Run(ctx context.Context) error { return f(ctx) }

// Stopping reports whether stop has been signaled for the runnable owning ctx.
func Stopping(ctx context.Context) bool {
	return ctx.Err() != nil
}

// closedCh is returned by Done on a zero Thread.
var closedCh = func() chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}()

// Thread is a handle to one goroutine running one Runnable.
//
// The zero value behaves like a thread that has already finished without
// error. All methods are safe for concurrent use.
type Thread struct {
	mu       sync.Mutex
	state    State
	detached bool
	id       ID
	err      error

	started chan struct{}
	done    chan struct{}
	cancel  context.CancelFunc
}

// New starts r on a new goroutine and returns its handle.
func New(r Runnable) *Thread {
	if r == nil {
		panic("thread: nil runnable")
	}
	ctx, cancel := context.WithCancel(context.Background())
	t := &Thread{
		state:   StateCreated,
		started: make(chan struct{}),
		done:    make(chan struct{}),
		cancel:  cancel,
	}
	go t.run(ctx, r)
	return t
}

func (t *Thread) run(ctx context.Context, r Runnable) {
	id := CurrentID()

	t.mu.Lock()
	t.id = id
	if !t.detached {
		t.state = StateRunning
	}
	t.mu.Unlock()
	close(t.started)

	hooks := observability.Thread()
	hooks.OnThreadStart(uint64(id))
	start := time.Now()

	err := runCaptured(ctx, r)
	if err != nil {
		err = errors.Wrap(errors.ErrCodeRunnableFailed, err, "thread %d", id)
	}

	t.mu.Lock()
	t.err = err
	if !t.detached {
		t.state = StateFinished
	}
	t.mu.Unlock()

	hooks.OnThreadExit(uint64(id), time.Since(start), err)
	t.cancel()
	close(t.done)
}

// runCaptured runs r, turning a panic into an error.
func runCaptured(ctx context.Context, r Runnable) (err error) {
	defer func() {
		if v := recover(); v != nil {
			err = &errors.PanicError{Value: v}
		}
	}()
	return r.Run(ctx)
}

// ID returns the goroutine ID of the thread. It remains available after the
// thread ended or was detached. A zero Thread reports ID 0.
func (t *Thread) ID() ID {
	if t.started == nil {
		return 0
	}
	<-t.started
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.id
}

// State returns the current lifecycle state.
func (t *Thread) State() State {
	if t.done == nil {
		return StateFinished
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// Done returns a channel closed when the runnable has returned.
func (t *Thread) Done() <-chan struct{} {
	if t.done == nil {
		return closedCh
	}
	return t.done
}

// Detach disowns the thread. The goroutine keeps running on its own; later
// Join, Stop and SignalStop calls fail. Calling Detach again has no effect.
func (t *Thread) Detach() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.detached = true
	t.state = StateDetached
}

// SignalStop asks the runnable to stop by canceling its context. It does not
// wait. Signaling a finished thread, or signaling twice, has no effect.
func (t *Thread) SignalStop() error {
	if t.isDetached() {
		return detachedError("signal stop")
	}
	if t.cancel != nil {
		t.cancel()
	}
	return nil
}

// Join waits for the runnable to return. With ForwardError the captured
// error, if any, is returned; with IgnoreError Join returns nil once the
// thread ended. Join can be called any number of times.
func (t *Thread) Join(f Forwarding) error {
	if t.isDetached() {
		return detachedError("join")
	}
	if t.done == nil {
		return nil
	}
	<-t.done
	return t.result(f)
}

// Stop signals the runnable to stop and waits for it, like SignalStop
// followed by Join.
func (t *Thread) Stop(f Forwarding) error {
	if err := t.SignalStop(); err != nil {
		return err
	}
	return t.Join(f)
}

// Close releases the handle. Unless the thread was detached, it stops the
// thread and waits for it, discarding any captured error. A detached thread
// is left alone and Close returns immediately.
func (t *Thread) Close() error {
	if t.isDetached() {
		return nil
	}
	return t.Stop(IgnoreError)
}

func (t *Thread) isDetached() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.detached
}

func (t *Thread) result(f Forwarding) error {
	if f == IgnoreError {
		return nil
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.err
}

func detachedError(op string) error {
	return errors.New(errors.ErrCodeDetached, "%s on detached thread", op)
}
