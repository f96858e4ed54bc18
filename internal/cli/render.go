package cli

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/matzehuels/stacklayout/pkg/cache"
	"github.com/matzehuels/stacklayout/pkg/errors"
	"github.com/matzehuels/stacklayout/pkg/manifest"
	"github.com/matzehuels/stacklayout/pkg/render"
	"github.com/matzehuels/stacklayout/pkg/simulate"
)

// renderOpts holds the command-line flags for the render command.
type renderOpts struct {
	output   string   // output file path (or base path for multiple formats)
	formats  []string // output formats: "svg", "dot", "pdf", "png"
	detailed bool     // add depth, measure and offset to labels
	drain    int      // annotate a single drain; 0 shows all, -1 the last
	noCache  bool     // skip the diagram cache
}

// renderCommand creates the render command, which replays a scenario and
// draws the view tree annotated with callback order.
func (c *CLI) renderCommand() *cobra.Command {
	var formatsStr string
	var opts renderOpts

	cmd := &cobra.Command{
		Use:   "render [manifest]",
		Short: "Render a scenario's view tree with its callback order",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.formats = parseFormats(formatsStr)
			if err := validateFormats(opts.formats); err != nil {
				return err
			}
			return c.runRender(cmd.Context(), args[0], &opts)
		},
	}

	cmd.Flags().StringVarP(&opts.output, "output", "o", "", "output file (single format) or base path (multiple)")
	cmd.Flags().StringVarP(&formatsStr, "format", "f", "", "output format(s): svg (default), dot, pdf, png (comma-separated)")
	cmd.Flags().BoolVar(&opts.detailed, "detailed", false, "show depth, measure and offset")
	cmd.Flags().IntVar(&opts.drain, "drain", 0, "annotate only this drain (-1 for the last)")
	cmd.Flags().BoolVar(&opts.noCache, "no-cache", false, "disable the diagram cache")

	return cmd
}

// parseFormats parses the --format flag. If empty, defaults to ["svg"].
func parseFormats(s string) []string {
	if s == "" {
		return []string{render.FormatSVG}
	}
	return strings.Split(s, ",")
}

func validateFormats(formats []string) error {
	for _, f := range formats {
		if err := errors.ValidateFormat(f, render.Formats...); err != nil {
			return err
		}
	}
	return nil
}

// basePath derives the base output path. If output is empty, the manifest
// path without its extension is used; a known format extension on output is
// stripped.
func basePath(output, input string) string {
	if output == "" {
		return strings.TrimSuffix(input, filepath.Ext(input))
	}
	ext := filepath.Ext(output)
	if errors.ValidateFormat(strings.TrimPrefix(ext, "."), render.Formats...) == nil {
		return strings.TrimSuffix(output, ext)
	}
	return output
}

func (c *CLI) runRender(ctx context.Context, input string, opts *renderOpts) error {
	logger := loggerFromContext(ctx)
	logger.Infof("Rendering %s", input)

	raw, err := os.ReadFile(input)
	if err != nil {
		if os.IsNotExist(err) {
			return errors.Wrap(errors.ErrCodeNotFound, err, "manifest %s", input)
		}
		return errors.Wrap(errors.ErrCodeInvalidInput, err, "read manifest %s", input)
	}
	store, err := newCache(opts.noCache)
	if err != nil {
		return err
	}
	defer store.Close()

	// The replay only runs if some format misses the cache.
	var res *simulate.Result
	replay := func() (*simulate.Result, error) {
		if res != nil {
			return res, nil
		}
		m, err := manifest.Parse(bytes.NewReader(raw))
		if err != nil {
			return nil, err
		}
		res, err = c.newRunner().Execute(ctx, m)
		return res, err
	}

	base := basePath(opts.output, input)
	for _, format := range opts.formats {
		p := newProgress(logger)
		key := cache.DiagramKey(raw, format, opts.detailed, opts.drain)

		data, hit, err := store.Get(ctx, key)
		if err != nil {
			logger.Warn("diagram cache read failed", "err", err)
		}
		if !hit {
			if data, err = renderFormat(ctx, replay, format, opts); err != nil {
				return err
			}
			if err := store.Set(ctx, key, data, 0); err != nil {
				logger.Warn("diagram cache write failed", "err", err)
			}
		}

		path := base + "." + format
		if len(opts.formats) == 1 && opts.output != "" {
			path = opts.output
		}
		if err := writeOutput(path, data); err != nil {
			return err
		}
		if hit {
			p.done("Rendered " + format + " (cached)")
		} else {
			p.done("Rendered " + format)
		}
		printFile(path)
	}
	return nil
}

func renderFormat(ctx context.Context, replay func() (*simulate.Result, error), format string, opts *renderOpts) ([]byte, error) {
	res, err := replay()
	if err != nil {
		return nil, err
	}
	drain := opts.drain
	if drain < 0 {
		drain = res.LastDrain()
	}

	spinner := newSpinnerWithContext(ctx, "Rendering "+format+"...")
	spinner.Start()
	defer spinner.Stop()
	return render.Render(res, format, render.Options{Detailed: opts.detailed, Drain: drain})
}

// nopCloser wraps an io.Writer with a no-op Close method.
type nopCloser struct{ io.Writer }

// Close implements io.Closer with a no-op.
func (nopCloser) Close() error { return nil }

// openOutput returns a WriteCloser for path, or stdout for "-".
func openOutput(path string) (io.WriteCloser, error) {
	if path == "-" {
		return nopCloser{os.Stdout}, nil
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeInternal, err, "create %s", path)
	}
	return f, nil
}

func writeOutput(path string, data []byte) error {
	out, err := openOutput(path)
	if err != nil {
		return err
	}
	if _, err := out.Write(data); err != nil {
		out.Close()
		return errors.Wrap(errors.ErrCodeInternal, err, "write %s", path)
	}
	return out.Close()
}
