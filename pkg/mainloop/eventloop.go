package mainloop

import (
	"context"
	"sync/atomic"

	"github.com/charmbracelet/log"
	"github.com/joeycumines/go-eventloop"

	"github.com/matzehuels/stacklayout/pkg/errors"
	"github.com/matzehuels/stacklayout/pkg/thread"
)

// EventLoop is a dispatcher backed by a go-eventloop Loop. The goroutine
// running Run is the main thread.
type EventLoop struct {
	loop    *eventloop.Loop
	logger  *log.Logger
	onError ErrorHandler
	owner   atomic.Uint64
}

// NewEventLoop creates a loop that is ready to accept tasks. Tasks posted
// before Run are executed once Run starts. If logger is nil, log.Default()
// is used.
func NewEventLoop(logger *log.Logger) (*EventLoop, error) {
	if logger == nil {
		logger = log.Default()
	}
	l, err := eventloop.New()
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeInternal, err, "create event loop")
	}
	e := &EventLoop{loop: l, logger: logger}
	e.onError = func(err error) {
		e.logger.Error("main thread task failed", "err", err)
	}
	return e, nil
}

// SetErrorHandler replaces the handler receiving task errors.
// Call it before Run.
func (e *EventLoop) SetErrorHandler(h ErrorHandler) {
	if h != nil {
		e.onError = h
	}
}

// CallAsync submits task to the loop. It fails with LOOP_CLOSED once the
// loop has terminated.
func (e *EventLoop) CallAsync(task func() error) error {
	if task == nil {
		return errors.New(errors.ErrCodeInvalidInput, "nil task")
	}
	err := e.loop.Submit(func() {
		e.bind()
		if err := runTask(task); err != nil {
			e.onError(err)
		}
	})
	if err != nil {
		return errors.Wrap(errors.ErrCodeLoopClosed, err, "submit to event loop")
	}
	return nil
}

// IsMainThread reports whether the caller runs on the loop goroutine.
func (e *EventLoop) IsMainThread() bool {
	owner := e.owner.Load()
	return owner != 0 && owner == uint64(thread.CurrentID())
}

func (e *EventLoop) bind() {
	if e.owner.Load() == 0 {
		e.owner.Store(uint64(thread.CurrentID()))
		warnOffMain(e.logger)
	}
}

// Run runs the loop on the calling goroutine until ctx is done or the loop
// is shut down.
func (e *EventLoop) Run(ctx context.Context) error {
	if err := e.loop.Submit(e.bind); err != nil {
		return errors.Wrap(errors.ErrCodeLoopClosed, err, "start event loop")
	}
	e.logger.Debug("event loop started")
	defer e.logger.Debug("event loop stopped")
	defer e.owner.Store(0)
	return e.loop.Run(ctx)
}

// Shutdown stops accepting work, lets queued tasks finish and waits for Run
// to return or ctx to expire.
func (e *EventLoop) Shutdown(ctx context.Context) error {
	return e.loop.Shutdown(ctx)
}
