package thread

import (
	"context"

	"github.com/matzehuels/stacklayout/pkg/errors"
)

// Future is the pending result of a function started with Exec.
type Future[T any] struct {
	done  chan struct{}
	value T
	err   error
}

// Exec runs fn on a new, detached thread. The returned future can be used to
// wait for the result, but dropping it neither blocks nor cancels fn.
// A panic in fn is reported as the future's error.
func Exec[T any](fn func() (T, error)) *Future[T] {
	f := &Future[T]{done: make(chan struct{})}
	t := New(RunnableFunc(func(context.Context) error {
		defer close(f.done)
		defer func() {
			if v := recover(); v != nil {
				f.err = &errors.PanicError{Value: v}
			}
		}()
		f.value, f.err = fn()
		return f.err
	}))
	t.Detach()
	return f
}

// Done returns a channel closed once the result is available.
func (f *Future[T]) Done() <-chan struct{} {
	return f.done
}

// Get blocks until fn has returned and yields its result.
func (f *Future[T]) Get() (T, error) {
	<-f.done
	return f.value, f.err
}

// Wait is Get bounded by ctx. On ctx expiry the work keeps running and
// ctx.Err() is returned.
func (f *Future[T]) Wait(ctx context.Context) (T, error) {
	select {
	case <-f.done:
		return f.value, f.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}
