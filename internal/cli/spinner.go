package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/matzehuels/stacklayout/pkg/thread"
)

var spinnerFrames = []string{"⠋", "⠙", "⠹", "⠸", "⠼", "⠴", "⠦", "⠧", "⠇", "⠏"}

// Spinner animates a progress indicator on a background thread. The thread
// polls for a stop request between frames.
type Spinner struct {
	message string
	out     io.Writer
	parent  context.Context

	mu        sync.Mutex
	th        *thread.Thread
	cancelled bool
}

// newSpinner creates a new spinner with the given message.
func newSpinner(message string) *Spinner {
	return newSpinnerWithContext(context.Background(), message)
}

// newSpinnerWithContext creates a spinner that also stops when ctx is done.
func newSpinnerWithContext(ctx context.Context, message string) *Spinner {
	return &Spinner{message: message, out: os.Stderr, parent: ctx}
}

// Start begins the spinner animation. Starting a running spinner has no
// effect.
func (s *Spinner) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.th != nil {
		return
	}
	s.th = thread.New(thread.RunnableFunc(s.spin))
}

func (s *Spinner) spin(ctx context.Context) error {
	ticker := time.NewTicker(80 * time.Millisecond)
	defer ticker.Stop()

	for i := 0; !thread.Stopping(ctx); i++ {
		select {
		case <-s.parent.Done():
			s.mu.Lock()
			s.cancelled = true
			s.mu.Unlock()
			s.clearLine()
			return s.parent.Err()
		case <-ctx.Done():
		case <-ticker.C:
			frame := spinnerFrames[i%len(spinnerFrames)]
			fmt.Fprintf(s.out, "\r%s %s", styleIconSpinner.Render(frame), StyleDim.Render(s.message))
		}
	}
	return nil
}

// Stop stops the spinner and clears the line. It is safe to call more than
// once.
func (s *Spinner) Stop() {
	s.mu.Lock()
	th := s.th
	s.mu.Unlock()
	if th == nil {
		return
	}
	_ = th.Stop(thread.IgnoreError)
	s.clearLine()
}

func (s *Spinner) clearLine() {
	fmt.Fprintf(s.out, "\r%s\r", strings.Repeat(" ", len(s.message)+4))
}

// StopWithSuccess stops the spinner and shows a success message.
func (s *Spinner) StopWithSuccess(message string) {
	s.Stop()
	printSuccess("%s", message)
}

// StopWithError stops the spinner and shows an error message.
func (s *Spinner) StopWithError(message string) {
	s.Stop()
	printError("%s", message)
}

// Cancelled reports whether the spinner ended because its context was done.
func (s *Spinner) Cancelled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cancelled
}
