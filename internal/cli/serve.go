package cli

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"net/http"
	"time"

	"github.com/charmbracelet/log"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/spf13/cobra"

	"github.com/matzehuels/stacklayout/pkg/buildinfo"
	"github.com/matzehuels/stacklayout/pkg/errors"
	"github.com/matzehuels/stacklayout/pkg/layout"
	"github.com/matzehuels/stacklayout/pkg/mainloop"
	"github.com/matzehuels/stacklayout/pkg/manifest"
	"github.com/matzehuels/stacklayout/pkg/render"
	"github.com/matzehuels/stacklayout/pkg/simulate"
	"github.com/matzehuels/stacklayout/pkg/thread"
)

const shutdownTimeout = 5 * time.Second

// serveCommand exposes a live scene over HTTP. Requests invalidate views from
// handler goroutines; drains run on an event loop owned by the command's
// goroutine.
func (c *CLI) serveCommand() *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve [manifest]",
		Short: "Serve a live scene over HTTP",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.runServe(cmd.Context(), args[0], addr)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", defaultAddr, "listen address")

	return cmd
}

func (c *CLI) runServe(ctx context.Context, path, addr string) error {
	logger := loggerFromContext(ctx)

	m, err := loadManifest(path)
	if err != nil {
		return err
	}
	loop, err := mainloop.NewEventLoop(logger)
	if err != nil {
		return err
	}
	scene, err := simulate.NewScene(m, loop, logger)
	if err != nil {
		return err
	}
	if err := layout.Init(scene.Coordinator()); err != nil {
		return err
	}

	// Scripted steps seed the first drain once the loop starts.
	for _, step := range m.Steps {
		if step.Action == manifest.ActionDrain {
			continue
		}
		if err := scene.Apply(step); err != nil {
			return err
		}
	}

	srv := &http.Server{
		Addr:              addr,
		Handler:           newRouter(&server{scene: scene, disp: loop, logger: logger}),
		ReadHeaderTimeout: 10 * time.Second,
	}
	httpThread := thread.New(thread.RunnableFunc(func(tctx context.Context) error {
		go func() {
			<-tctx.Done()
			sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			_ = srv.Shutdown(sctx)
		}()
		logger.Infof("Listening on http://%s", addr)
		if err := srv.ListenAndServe(); err != nil && !stderrors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}))
	defer httpThread.Close()

	loopCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		<-httpThread.Done()
		cancel()
	}()

	runErr := loop.Run(loopCtx)
	if err := httpThread.Stop(thread.ForwardError); err != nil {
		return err
	}
	if runErr != nil && !stderrors.Is(runErr, context.Canceled) {
		return runErr
	}
	logger.Info("Server stopped")
	return ctx.Err()
}

// =============================================================================
// HTTP API
// =============================================================================

// server holds the state shared by the HTTP handlers.
type server struct {
	scene  *simulate.Scene
	disp   layout.Dispatcher
	logger *log.Logger
}

type resizeRequest struct {
	Extent int `json:"extent"`
}

type errorResponse struct {
	Code    errors.Code `json:"code"`
	Message string      `json:"message"`
}

func newRouter(s *server) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.SetHeader("Server", buildinfo.UserAgent()))
	r.Use(requestLogger(s.logger))
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/scene", s.handleScene)
		r.Get("/diagram", s.handleDiagram)
		r.Route("/views/{name}", func(r chi.Router) {
			r.Post("/sizing", s.handleInvalidate(manifest.ActionSizing))
			r.Post("/layout", s.handleInvalidate(manifest.ActionLayout))
			r.Post("/resize", s.handleResize)
		})
	})
	return r
}

// requestLogger logs each request with its ID, status and duration.
func requestLogger(logger *log.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)
			logger.Debug("request",
				"request_id", middleware.GetReqID(r.Context()),
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"duration", time.Since(start))
		})
	}
}

// snapshot reads the scene on the main thread so it never observes a drain
// half way through.
func (s *server) snapshot(ctx context.Context) (*simulate.Result, error) {
	ch := make(chan *simulate.Result, 1)
	err := s.disp.CallAsync(func() error {
		ch <- s.scene.Result()
		return nil
	})
	if err != nil {
		return nil, err
	}
	select {
	case res := <-ch:
		return res, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (s *server) handleScene(w http.ResponseWriter, r *http.Request) {
	res, err := s.snapshot(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *server) handleDiagram(w http.ResponseWriter, r *http.Request) {
	format := r.URL.Query().Get("format")
	if format == "" {
		format = render.FormatSVG
	}
	if err := errors.ValidateFormat(format, render.FormatSVG, render.FormatDOT); err != nil {
		writeError(w, err)
		return
	}
	res, err := s.snapshot(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	data, err := render.Render(res, format, render.Options{Detailed: true, Drain: res.LastDrain()})
	if err != nil {
		writeError(w, err)
		return
	}
	if format == render.FormatSVG {
		w.Header().Set("Content-Type", "image/svg+xml")
	} else {
		w.Header().Set("Content-Type", "text/vnd.graphviz")
	}
	_, _ = w.Write(data)
}

func (s *server) handleInvalidate(action string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.apply(w, manifest.Step{Action: action, Views: []string{chi.URLParam(r, "name")}})
	}
}

func (s *server) handleResize(w http.ResponseWriter, r *http.Request) {
	var req resizeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, errors.Wrap(errors.ErrCodeInvalidInput, err, "decode resize request"))
		return
	}
	s.apply(w, manifest.Step{
		Action: manifest.ActionResize,
		Views:  []string{chi.URLParam(r, "name")},
		Extent: req.Extent,
	})
}

func (s *server) apply(w http.ResponseWriter, step manifest.Step) {
	if err := s.scene.Apply(step); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	code := errors.GetCode(err)
	status := http.StatusInternalServerError
	switch code {
	case errors.ErrCodeInvalidInput, errors.ErrCodeInvalidFormat:
		status = http.StatusBadRequest
	case errors.ErrCodeViewNotFound, errors.ErrCodeNotFound:
		status = http.StatusNotFound
	case errors.ErrCodeLoopClosed:
		status = http.StatusServiceUnavailable
	case "":
		code = errors.ErrCodeInternal
	}
	writeJSON(w, status, errorResponse{Code: code, Message: errors.UserMessage(err)})
}
