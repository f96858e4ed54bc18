// Package simulate replays a manifest scenario against a layout coordinator
// and records the order in which views were sized and laid out.
//
// A [Scene] holds the live tree and can be driven by any dispatcher. The
// [Runner] drives one on a [mainloop.Queue] pumped by the calling goroutine,
// which acts as the main thread: drains only happen at "drain" steps and once
// more at the end. Steps marked from = "worker" issue their invalidations
// from a background thread, which is joined before the next step starts.
package simulate

import (
	"context"
	"time"

	"github.com/charmbracelet/log"

	"github.com/matzehuels/stacklayout/pkg/errors"
	"github.com/matzehuels/stacklayout/pkg/mainloop"
	"github.com/matzehuels/stacklayout/pkg/manifest"
)

// Event is one callback invocation during a drain.
type Event struct {
	Drain int    `json:"drain"`
	Phase string `json:"phase"`
	View  string `json:"view"`
	Depth int    `json:"depth"`
}

// Box is the geometry of a view.
type Box struct {
	View    string `json:"view"`
	Parent  string `json:"parent,omitempty"`
	Depth   int    `json:"depth"`
	Extent  int    `json:"extent"`
	Measure int    `json:"measure"`
	Offset  int    `json:"offset"`
}

// Stats summarizes a run.
type Stats struct {
	Steps       int           `json:"steps"`
	WorkerSteps int           `json:"worker_steps"`
	Drains      int           `json:"drains"`
	Sized       int           `json:"sized"`
	LaidOut     int           `json:"laid_out"`
	Duration    time.Duration `json:"duration"`
}

// Result is the outcome of a run.
type Result struct {
	Name  string  `json:"name"`
	Trace []Event `json:"trace"`
	Boxes []Box   `json:"boxes"`
	Stats Stats   `json:"stats"`
}

// LastDrain returns the number of the last drain that invoked a callback.
func (r *Result) LastDrain() int {
	if len(r.Trace) == 0 {
		return 0
	}
	return r.Trace[len(r.Trace)-1].Drain
}

// Runner executes scenarios. It keeps no state between runs, so one Runner
// can serve several goroutines.
type Runner struct {
	Logger *log.Logger
}

// NewRunner creates a runner. If logger is nil, log.Default() is used.
func NewRunner(logger *log.Logger) *Runner {
	if logger == nil {
		logger = log.Default()
	}
	return &Runner{Logger: logger}
}

// Execute runs the scenario described by m.
func (r *Runner) Execute(ctx context.Context, m *manifest.Manifest) (*Result, error) {
	if m == nil {
		return nil, errors.New(errors.ErrCodeInvalidInput, "nil manifest")
	}
	start := time.Now()

	queue := mainloop.NewQueue(r.Logger)
	defer queue.Close()

	scene, err := NewScene(m, queue, r.Logger)
	if err != nil {
		return nil, err
	}
	r.Logger.Debug("built view tree", "scenario", scene.Name(), "views", len(m.Views))

	var steps, workerSteps int
	for i, step := range m.Steps {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		steps++
		if step.OnWorker() {
			workerSteps++
		}

		if step.Action == manifest.ActionDrain {
			err = queue.RunPending()
		} else {
			err = scene.Apply(step)
		}
		if err != nil {
			return nil, wrap(err, "step %d (%s)", i+1, step.Action)
		}
		r.Logger.Debug("step complete", "step", i+1, "action", step.Action, "from", step.From)
	}

	if err := queue.RunPending(); err != nil {
		return nil, wrap(err, "final drain")
	}

	result := scene.Result()
	result.Stats.Steps = steps
	result.Stats.WorkerSteps = workerSteps
	result.Stats.Duration = time.Since(start)

	r.Logger.Info("scenario complete",
		"scenario", result.Name,
		"drains", result.Stats.Drains,
		"callbacks", len(result.Trace),
		"duration", result.Stats.Duration)
	return result, nil
}

// wrap adds context to err and keeps its code.
func wrap(err error, format string, args ...any) error {
	code := errors.GetCode(err)
	if code == "" {
		code = errors.ErrCodeInternal
	}
	return errors.Wrap(code, err, format, args...)
}
