package simulate

import (
	"context"

	"github.com/charmbracelet/log"

	"github.com/matzehuels/stacklayout/pkg/errors"
	"github.com/matzehuels/stacklayout/pkg/layout"
	"github.com/matzehuels/stacklayout/pkg/manifest"
	"github.com/matzehuels/stacklayout/pkg/thread"
	"github.com/matzehuels/stacklayout/pkg/view"
)

// Scene is a live view tree built from a manifest, with column callbacks
// wired to its own coordinator. Invalidations may be issued from any
// goroutine; callbacks run wherever the dispatcher runs drains.
type Scene struct {
	name  string
	views []manifest.View
	tree  *view.Tree
	nodes map[string]*view.Node
	coord *layout.Coordinator
	col   *column
}

// drainCounter numbers drains in the trace. The scene's coordinator must be
// the only producer on the wrapped dispatcher for the numbering to hold.
type drainCounter struct {
	layout.Dispatcher
	col *column
}

func (d *drainCounter) CallAsync(task func() error) error {
	return d.Dispatcher.CallAsync(func() error {
		d.col.beginDrain()
		return task()
	})
}

// NewScene builds the tree described by m and a coordinator posting drains
// to d. If logger is nil, log.Default() is used.
func NewScene(m *manifest.Manifest, d layout.Dispatcher, logger *log.Logger) (*Scene, error) {
	if m == nil {
		return nil, errors.New(errors.ErrCodeInvalidInput, "nil manifest")
	}
	if d == nil {
		return nil, errors.New(errors.ErrCodeInvalidInput, "nil dispatcher")
	}
	tree := &view.Tree{}
	nodes, err := m.Build(tree)
	if err != nil {
		return nil, err
	}

	counter := &drainCounter{Dispatcher: d}
	coord := layout.NewCoordinator(counter, tree.Locker(), logger)
	col := newColumn(coord, counter)
	counter.col = col

	for _, v := range m.Views {
		col.attach(nodes[v.Name], v.Extent)
	}
	return &Scene{
		name:  m.Settings.Name,
		views: m.Views,
		tree:  tree,
		nodes: nodes,
		coord: coord,
		col:   col,
	}, nil
}

// Name returns the scenario name.
func (s *Scene) Name() string { return s.name }

// Coordinator returns the scene's coordinator.
func (s *Scene) Coordinator() *layout.Coordinator { return s.coord }

// Node returns the named view.
func (s *Scene) Node(name string) (*view.Node, error) {
	n, ok := s.nodes[name]
	if !ok {
		return nil, errors.New(errors.ErrCodeViewNotFound, "unknown view %q", name)
	}
	return n, nil
}

// Apply issues the invalidations of step. Worker steps run on a background
// thread that is joined before Apply returns. Drain steps are not handled
// here; the owner of the dispatcher decides when drains run.
func (s *Scene) Apply(step manifest.Step) error {
	if step.Action == manifest.ActionDrain {
		return errors.New(errors.ErrCodeUnsupported, "drain steps are run by the dispatcher owner")
	}
	targets := make([]*view.Node, 0, len(step.Views))
	for _, name := range step.Views {
		n, err := s.Node(name)
		if err != nil {
			return err
		}
		targets = append(targets, n)
	}

	apply := func() error {
		for _, n := range targets {
			switch step.Action {
			case manifest.ActionSizing:
				s.coord.ViewNeedsSizingInfoUpdate(n)
			case manifest.ActionLayout:
				s.coord.ViewNeedsLayout(n)
			case manifest.ActionResize:
				if step.Extent < 0 {
					return errors.New(errors.ErrCodeInvalidInput, "negative extent %d", step.Extent)
				}
				s.col.setExtent(n, step.Extent)
				s.coord.ViewNeedsSizingInfoUpdate(n)
			default:
				return errors.New(errors.ErrCodeInvalidFormat, "unknown action %q", step.Action)
			}
		}
		return nil
	}

	if !step.OnWorker() {
		return apply()
	}
	worker := thread.New(thread.RunnableFunc(func(context.Context) error {
		return apply()
	}))
	defer worker.Close()
	return worker.Join(thread.ForwardError)
}

// Result snapshots the trace and the current geometry. Stats only carry
// the coordinator counters; callers fill in the rest.
func (s *Scene) Result() *Result {
	res := &Result{
		Name:  s.name,
		Trace: s.col.events(),
	}
	for _, v := range s.views {
		n := s.nodes[v.Name]
		b := s.col.snapshot(n)
		res.Boxes = append(res.Boxes, Box{
			View:    v.Name,
			Parent:  v.Parent,
			Depth:   n.Depth(),
			Extent:  b.extent,
			Measure: b.measure,
			Offset:  b.offset,
		})
	}
	cs := s.coord.Stats()
	res.Stats.Drains = cs.Drains
	res.Stats.Sized = cs.Sized
	res.Stats.LaidOut = cs.LaidOut
	return res
}
