package thread

import (
	"context"
	stderrors "errors"
	"testing"
	"time"

	"github.com/matzehuels/stacklayout/pkg/errors"
)

func TestExecReturnsResult(t *testing.T) {
	f := Exec(func() (int, error) { return 42, nil })

	v, err := f.Get()
	if err != nil || v != 42 {
		t.Errorf("Get() = (%d, %v), want (42, nil)", v, err)
	}
	// Results stay available.
	if v, _ := f.Get(); v != 42 {
		t.Errorf("second Get() = %d, want 42", v)
	}
}

func TestExecForwardsError(t *testing.T) {
	cause := stderrors.New("nope")
	f := Exec(func() (string, error) { return "", cause })

	if _, err := f.Get(); !stderrors.Is(err, cause) {
		t.Errorf("Get() error = %v, want %v", err, cause)
	}
}

func TestExecCapturesPanic(t *testing.T) {
	f := Exec(func() (int, error) { panic("exec panic") })

	_, err := f.Get()
	var pe *errors.PanicError
	if !stderrors.As(err, &pe) {
		t.Fatalf("Get() error = %v, want PanicError", err)
	}
}

func TestDroppingFutureDoesNotCancel(t *testing.T) {
	finished := make(chan struct{})
	release := make(chan struct{})

	func() {
		_ = Exec(func() (struct{}, error) {
			<-release
			close(finished)
			return struct{}{}, nil
		})
	}()

	close(release)
	select {
	case <-finished:
	case <-time.After(time.Second):
		t.Fatal("background work did not complete after its future was dropped")
	}
}

func TestWaitHonorsContext(t *testing.T) {
	release := make(chan struct{})
	defer close(release)

	f := Exec(func() (int, error) {
		<-release
		return 1, nil
	})

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	if _, err := f.Wait(ctx); !stderrors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Wait() error = %v, want %v", err, context.DeadlineExceeded)
	}
	select {
	case <-f.Done():
		t.Error("future completed although the work is still blocked")
	default:
	}
}
