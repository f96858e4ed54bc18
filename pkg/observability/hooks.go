// Package observability provides hooks for metrics, tracing, and logging.
//
// This package enables optional instrumentation without adding hard dependencies
// on specific observability backends. Consumers can register hooks at startup
// to receive events about layout coordination and background threads.
//
// # Architecture
//
// The package uses a simple hooks pattern:
//   - Define hook interfaces for different event categories
//   - Provide no-op default implementations
//   - Allow registration of custom implementations at startup
//
// Hook signatures use plain values (ids, phase names, counts) so that the
// packages emitting events can import this package without cycles.
//
// # Usage
//
// Register hooks at application startup:
//
//	func main() {
//	    observability.SetCoordinatorHooks(&myCoordinatorHooks{})
//	    observability.SetThreadHooks(&myThreadHooks{})
//	    // ... run application
//	}
//
// Libraries call hooks to emit events:
//
//	observability.Coordinator().OnDrainStart(drainID)
//	// ... drain ...
//	observability.Coordinator().OnDrainComplete(drainID, sized, laidOut, duration, err)
package observability

import (
	"sync"
	"time"
)

// =============================================================================
// Coordinator Hooks
// =============================================================================

// CoordinatorHooks receives events from the layout coordinator.
type CoordinatorHooks interface {
	// OnInvalidate records a view being added to a pending set.
	// phase is "sizing" or "layout".
	OnInvalidate(phase string, viewID uint64)

	// OnDrainScheduled records a drain callback being handed to the dispatcher.
	OnDrainScheduled()

	// Drain events
	OnDrainStart(drainID string)
	OnDrainComplete(drainID string, sized, laidOut int, duration time.Duration, err error)
}

// =============================================================================
// Thread Hooks
// =============================================================================

// ThreadHooks receives events from managed threads.
type ThreadHooks interface {
	// OnThreadStart records a runnable starting on its goroutine.
	OnThreadStart(threadID uint64)

	// OnThreadExit records a runnable returning. err is the captured failure, if any.
	OnThreadExit(threadID uint64, duration time.Duration, err error)
}

// =============================================================================
// No-op Implementations
// =============================================================================

// NoopCoordinatorHooks is a no-op implementation of CoordinatorHooks.
type NoopCoordinatorHooks struct{}

func (NoopCoordinatorHooks) OnInvalidate(string, uint64)                            {}
func (NoopCoordinatorHooks) OnDrainScheduled()                                      {}
func (NoopCoordinatorHooks) OnDrainStart(string)                                    {}
func (NoopCoordinatorHooks) OnDrainComplete(string, int, int, time.Duration, error) {}

// NoopThreadHooks is a no-op implementation of ThreadHooks.
type NoopThreadHooks struct{}

func (NoopThreadHooks) OnThreadStart(uint64)                      {}
func (NoopThreadHooks) OnThreadExit(uint64, time.Duration, error) {}

// =============================================================================
// Global Hook Registry
// =============================================================================

var (
	coordinatorHooks CoordinatorHooks = NoopCoordinatorHooks{}
	threadHooks      ThreadHooks      = NoopThreadHooks{}
	hooksMu          sync.RWMutex
)

// SetCoordinatorHooks registers custom coordinator hooks.
// This should be called once at application startup before any invalidation.
func SetCoordinatorHooks(h CoordinatorHooks) {
	hooksMu.Lock()
	defer hooksMu.Unlock()
	if h != nil {
		coordinatorHooks = h
	}
}

// SetThreadHooks registers custom thread hooks.
// This should be called once at application startup before any thread is created.
func SetThreadHooks(h ThreadHooks) {
	hooksMu.Lock()
	defer hooksMu.Unlock()
	if h != nil {
		threadHooks = h
	}
}

// Coordinator returns the registered coordinator hooks.
func Coordinator() CoordinatorHooks {
	hooksMu.RLock()
	defer hooksMu.RUnlock()
	return coordinatorHooks
}

// Thread returns the registered thread hooks.
func Thread() ThreadHooks {
	hooksMu.RLock()
	defer hooksMu.RUnlock()
	return threadHooks
}

// Reset restores all hooks to their no-op defaults.
// This is primarily useful for testing.
func Reset() {
	hooksMu.Lock()
	defer hooksMu.Unlock()
	coordinatorHooks = NoopCoordinatorHooks{}
	threadHooks = NoopThreadHooks{}
}
