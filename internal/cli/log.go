package cli

import (
	"context"
	"io"
	"time"

	"github.com/charmbracelet/log"
)

// newLogger creates a new logger with timestamp formatting.
// Timestamps are formatted as "HH:MM:SS.ms" (e.g., "14:32:01.45").
func newLogger(w io.Writer, level log.Level) *log.Logger {
	return log.NewWithOptions(w, log.Options{
		ReportTimestamp: true,
		TimeFormat:      "15:04:05.00",
		Level:           level,
	})
}

// progress tracks the start time of an operation and logs completion with elapsed duration.
type progress struct {
	logger *log.Logger
	start  time.Time
}

func newProgress(l *log.Logger) *progress {
	return &progress{logger: l, start: time.Now()}
}

// done logs msg along with the elapsed time, e.g. "Rendered diagram (12ms)".
func (p *progress) done(msg string) {
	p.logger.Infof("%s (%s)", msg, time.Since(p.start).Round(time.Millisecond))
}

type ctxKey int

const loggerKey ctxKey = 0

func withLogger(ctx context.Context, l *log.Logger) context.Context {
	return context.WithValue(ctx, loggerKey, l)
}

// loggerFromContext retrieves the logger from ctx, or log.Default() if none
// is attached.
func loggerFromContext(ctx context.Context) *log.Logger {
	if l, ok := ctx.Value(loggerKey).(*log.Logger); ok {
		return l
	}
	return log.Default()
}

// =============================================================================
// Observability Hooks
// =============================================================================

// logHooks reports coordinator and thread events at debug level.
type logHooks struct {
	logger *log.Logger
}

func (h *logHooks) OnInvalidate(phase string, viewID uint64) {
	h.logger.Debug("invalidate", "phase", phase, "view", viewID)
}

func (h *logHooks) OnDrainScheduled() {
	h.logger.Debug("drain scheduled")
}

func (h *logHooks) OnDrainStart(drainID string) {
	h.logger.Debug("drain start", "drain", drainID)
}

func (h *logHooks) OnDrainComplete(drainID string, sized, laidOut int, d time.Duration, err error) {
	if err != nil {
		h.logger.Warn("drain aborted", "drain", drainID, "sized", sized, "laid_out", laidOut, "err", err)
		return
	}
	h.logger.Debug("drain complete", "drain", drainID, "sized", sized, "laid_out", laidOut, "duration", d)
}

func (h *logHooks) OnThreadStart(threadID uint64) {
	h.logger.Debug("thread start", "thread", threadID)
}

func (h *logHooks) OnThreadExit(threadID uint64, d time.Duration, err error) {
	if err != nil {
		h.logger.Debug("thread exit", "thread", threadID, "duration", d, "err", err)
		return
	}
	h.logger.Debug("thread exit", "thread", threadID, "duration", d)
}
