package thread

import (
	"runtime"
	"sync/atomic"
	"time"
)

// ID identifies a goroutine. The zero ID never names a live goroutine.
type ID uint64

var mainID atomic.Uint64

// CurrentID returns the ID of the calling goroutine.
func CurrentID() ID {
	var buf [64]byte
	n := runtime.Stack(buf[:], false)
	var id uint64
	for i := len("goroutine "); i < n; i++ {
		if buf[i] < '0' || buf[i] > '9' {
			break
		}
		id = id*10 + uint64(buf[i]-'0')
	}
	return ID(id)
}

// MainID returns the designated main goroutine, or zero if none was set.
func MainID() ID {
	return ID(mainID.Load())
}

// SetMainID designates the main goroutine of the process. Only the first
// call with a non-zero id takes effect; it reports whether this call did.
//
// Dispatchers track the goroutine that pumps them on their own. The process
// designation lets them warn when that goroutine is not the main one.
func SetMainID(id ID) bool {
	if id == 0 {
		return false
	}
	return mainID.CompareAndSwap(0, uint64(id))
}

// IsCurrentMain reports whether the calling goroutine is the designated
// main goroutine.
func IsCurrentMain() bool {
	id := MainID()
	return id != 0 && id == CurrentID()
}

// Sleep pauses the calling goroutine for a fractional number of seconds.
// Non-positive values yield instead.
func Sleep(seconds float64) {
	if seconds <= 0 {
		Yield()
		return
	}
	time.Sleep(time.Duration(seconds * float64(time.Second)))
}

// SleepMillis pauses the calling goroutine. Non-positive values yield instead.
func SleepMillis(millis int64) {
	if millis <= 0 {
		Yield()
		return
	}
	time.Sleep(time.Duration(millis) * time.Millisecond)
}

// Yield gives other goroutines the opportunity to run.
func Yield() {
	runtime.Gosched()
}
