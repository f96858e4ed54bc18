package layout

import (
	"sync/atomic"

	"github.com/matzehuels/stacklayout/pkg/errors"
)

var global atomic.Pointer[Coordinator]

// Init registers c as the process-wide coordinator. It succeeds exactly once;
// later calls fail with ALREADY_INITIALIZED and leave the registered
// coordinator in place.
func Init(c *Coordinator) error {
	if c == nil {
		return errors.New(errors.ErrCodeInvalidInput, "nil coordinator")
	}
	if !global.CompareAndSwap(nil, c) {
		return errors.New(errors.ErrCodeAlreadyInitialized, "layout coordinator already initialized")
	}
	return nil
}

// Get returns the process-wide coordinator, or nil if Init was not called.
func Get() *Coordinator {
	return global.Load()
}
