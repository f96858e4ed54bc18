// Package pkg provides the libraries behind stacklayout, a scheduler that
// batches view invalidations and runs them as ordered sizing and layout
// passes on a main thread.
//
// # Overview
//
// The pkg directory is organized into three areas:
//
//  1. Scheduling: [layout] (the coordinator), [thread] (owned background
//     goroutines and futures) and [mainloop] (main thread dispatchers).
//  2. Views: [view] (identity, depth and a concrete tree node) and
//     [manifest] (TOML scenario files).
//  3. Tooling: [simulate] (scenario replay), [render] (Graphviz diagrams)
//     and [cache] (rendered diagram storage).
//
// Shared infrastructure lives in [errors], [observability] and [buildinfo].
//
// # Data Flow
//
//	manifest.toml
//	     ↓
//	[manifest] package (parse, validate, build view tree)
//	     ↓
//	[simulate] package (apply steps, pump the main loop)
//	     ↓
//	[layout] package (drain: sizing deepest first, layout shallowest first)
//	     ↓
//	[render] package (DOT/SVG/PDF/PNG)
//
// # Quick Start
//
//	m, _ := manifest.Load("examples/column.toml")
//	res, _ := simulate.NewRunner(nil).Execute(ctx, m)
//	svg, _ := render.Render(res, render.FormatSVG, render.Options{})
//
// Driving a coordinator directly:
//
//	q := mainloop.NewQueue(nil)
//	coord := layout.NewCoordinator(q, tree.Locker(), nil)
//	coord.ViewNeedsSizingInfoUpdate(leaf) // from any goroutine
//	_ = q.RunPending()                      // on the main thread
//
// [layout]: https://pkg.go.dev/github.com/matzehuels/stacklayout/pkg/layout
// [thread]: https://pkg.go.dev/github.com/matzehuels/stacklayout/pkg/thread
// [mainloop]: https://pkg.go.dev/github.com/matzehuels/stacklayout/pkg/mainloop
// [view]: https://pkg.go.dev/github.com/matzehuels/stacklayout/pkg/view
// [manifest]: https://pkg.go.dev/github.com/matzehuels/stacklayout/pkg/manifest
// [simulate]: https://pkg.go.dev/github.com/matzehuels/stacklayout/pkg/simulate
// [render]: https://pkg.go.dev/github.com/matzehuels/stacklayout/pkg/render
// [cache]: https://pkg.go.dev/github.com/matzehuels/stacklayout/pkg/cache
// [errors]: https://pkg.go.dev/github.com/matzehuels/stacklayout/pkg/errors
// [observability]: https://pkg.go.dev/github.com/matzehuels/stacklayout/pkg/observability
// [buildinfo]: https://pkg.go.dev/github.com/matzehuels/stacklayout/pkg/buildinfo
package pkg
