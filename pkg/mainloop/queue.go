// Package mainloop provides main-thread dispatchers for the layout
// coordinator.
//
// A dispatcher owns one goroutine, the main thread, and runs posted tasks on
// it in FIFO order. Posting never runs a task inline, even from the main
// thread itself.
//
// Two implementations are provided:
//
//   - [Queue] is a plain task queue pumped by whoever owns it, either
//     continuously with [Queue.Run] or step by step with [Queue.RunPending].
//   - [EventLoop] adapts a github.com/joeycumines/go-eventloop loop, whose
//     goroutine becomes the main thread.
package mainloop

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/charmbracelet/log"

	"github.com/matzehuels/stacklayout/pkg/errors"
	"github.com/matzehuels/stacklayout/pkg/thread"
)

// ErrorHandler receives task errors that have no caller to return to.
type ErrorHandler func(err error)

// Queue is a FIFO of tasks executed on the goroutine that pumps it.
type Queue struct {
	logger  *log.Logger
	onError ErrorHandler

	mu     sync.Mutex
	tasks  []func() error
	closed bool
	wake   chan struct{}

	owner atomic.Uint64
}

// NewQueue creates an empty queue. If logger is nil, log.Default() is used.
// Task errors raised while running under Run are logged unless a handler is
// installed with SetErrorHandler.
func NewQueue(logger *log.Logger) *Queue {
	if logger == nil {
		logger = log.Default()
	}
	q := &Queue{
		logger: logger,
		wake:   make(chan struct{}, 1),
	}
	q.onError = func(err error) {
		q.logger.Error("main thread task failed", "err", err)
	}
	return q
}

// SetErrorHandler replaces the handler used by Run. Call it before Run.
func (q *Queue) SetErrorHandler(h ErrorHandler) {
	if h != nil {
		q.onError = h
	}
}

// CallAsync appends task to the queue. It fails with LOOP_CLOSED after Close.
func (q *Queue) CallAsync(task func() error) error {
	if task == nil {
		return errors.New(errors.ErrCodeInvalidInput, "nil task")
	}
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return errors.New(errors.ErrCodeLoopClosed, "main loop closed")
	}
	q.tasks = append(q.tasks, task)
	q.mu.Unlock()

	select {
	case q.wake <- struct{}{}:
	default:
	}
	return nil
}

// IsMainThread reports whether the caller is the goroutine that last
// pumped the queue.
func (q *Queue) IsMainThread() bool {
	owner := q.owner.Load()
	return owner != 0 && owner == uint64(thread.CurrentID())
}

// Len returns the number of queued tasks.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.tasks)
}

// Close rejects further tasks and stops Run once the queue is empty.
// Tasks already queued still run. Close is idempotent.
func (q *Queue) Close() error {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()

	select {
	case q.wake <- struct{}{}:
	default:
	}
	return nil
}

func (q *Queue) bind() {
	q.owner.Store(uint64(thread.CurrentID()))
}

// warnOffMain logs when the process has a designated main goroutine and the
// caller is not it.
func warnOffMain(logger *log.Logger) {
	if main := thread.MainID(); main != 0 && !thread.IsCurrentMain() {
		logger.Warn("main loop running off the main goroutine", "main", main, "goroutine", thread.CurrentID())
	}
}

func (q *Queue) pop() (task func() error, closed bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.tasks) == 0 {
		return nil, q.closed
	}
	task = q.tasks[0]
	q.tasks[0] = nil
	q.tasks = q.tasks[1:]
	return task, false
}

// RunPending makes the caller the main thread and runs queued tasks,
// including tasks they post, until the queue is empty. It stops at the
// first failing task and returns its error; later tasks stay queued.
func (q *Queue) RunPending() error {
	q.bind()
	for {
		task, _ := q.pop()
		if task == nil {
			return nil
		}
		if err := runTask(task); err != nil {
			return err
		}
	}
}

// Run makes the caller the main thread and runs tasks as they arrive until
// ctx is done or the queue is closed and empty. Task errors go to the error
// handler and do not stop the loop.
func (q *Queue) Run(ctx context.Context) error {
	q.bind()
	warnOffMain(q.logger)
	q.logger.Debug("main loop started")
	defer q.logger.Debug("main loop stopped")

	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		task, closed := q.pop()
		if task != nil {
			if err := runTask(task); err != nil {
				q.onError(err)
			}
			continue
		}
		if closed {
			return nil
		}
		select {
		case <-q.wake:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// runTask runs task, turning a panic into an error.
func runTask(task func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &errors.PanicError{Value: r}
		}
	}()
	return task()
}
