// Package render draws the outcome of a simulated scenario as a Graphviz
// node-link diagram.
//
// Each view becomes a box connected to its parent. Boxes are annotated with
// the positions at which the view was sized and laid out, so the bottom-up
// sizing pass and the top-down layout pass can be read off the picture.
//
//	dot := render.ToDOT(result, render.Options{Detailed: true})
//	svg, err := render.RenderSVG(dot)
package render

import (
	"bytes"
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/goccy/go-graphviz"

	"github.com/matzehuels/stacklayout/pkg/errors"
	"github.com/matzehuels/stacklayout/pkg/simulate"
)

// Output formats.
const (
	FormatDOT = "dot"
	FormatSVG = "svg"
	FormatPDF = "pdf"
	FormatPNG = "png"
)

// Formats lists the supported output formats.
var Formats = []string{FormatDOT, FormatSVG, FormatPDF, FormatPNG}

// Options configures diagram rendering.
type Options struct {
	// Detailed adds depth, measure and offset to the labels.
	Detailed bool

	// Drain restricts the order annotations to one drain. Zero shows all.
	Drain int
}

// ToDOT converts a simulation result to Graphviz DOT.
// Views touched by a callback are filled; untouched views stay white.
func ToDOT(res *simulate.Result, opts Options) string {
	order := callOrder(res.Trace, opts.Drain)

	var buf bytes.Buffer
	buf.WriteString("digraph G {\n")
	buf.WriteString("  rankdir=TB;\n")
	buf.WriteString("  bgcolor=\"transparent\";\n")
	buf.WriteString("  node [shape=box, style=\"rounded,filled\", fillcolor=white, fontsize=20, margin=\"0.2,0.1\"];\n")
	buf.WriteString("  ranksep=0.5;\n")
	buf.WriteString("  nodesep=0.3;\n")
	buf.WriteString("\n")

	for _, b := range res.Boxes {
		calls := order[b.View]
		attrs := []string{fmt.Sprintf("label=%q", fmtLabel(b, calls, opts.Detailed))}
		if len(calls.sizing)+len(calls.layout) > 0 {
			attrs = append(attrs, "fillcolor=lightblue")
		}
		fmt.Fprintf(&buf, "  %q [%s];\n", b.View, strings.Join(attrs, ", "))
	}

	buf.WriteString("\n")
	for _, b := range res.Boxes {
		if b.Parent != "" {
			fmt.Fprintf(&buf, "  %q -> %q;\n", b.Parent, b.View)
		}
	}

	buf.WriteString("}\n")
	return buf.String()
}

// calls holds the 1-based positions of a view's callbacks per phase.
type calls struct {
	sizing []int
	layout []int
}

func callOrder(trace []simulate.Event, drain int) map[string]calls {
	out := make(map[string]calls)
	var nSizing, nLayout int
	for _, e := range trace {
		if drain != 0 && e.Drain != drain {
			continue
		}
		c := out[e.View]
		switch e.Phase {
		case "sizing":
			nSizing++
			c.sizing = append(c.sizing, nSizing)
		case "layout":
			nLayout++
			c.layout = append(c.layout, nLayout)
		}
		out[e.View] = c
	}
	return out
}

func fmtLabel(b simulate.Box, c calls, detailed bool) string {
	parts := []string{b.View}
	if len(c.sizing) > 0 {
		parts = append(parts, "sizing: "+joinInts(c.sizing))
	}
	if len(c.layout) > 0 {
		parts = append(parts, "layout: "+joinInts(c.layout))
	}
	if detailed {
		parts = append(parts,
			fmt.Sprintf("depth: %d", b.Depth),
			fmt.Sprintf("measure: %d", b.Measure),
			fmt.Sprintf("offset: %d", b.Offset))
	}
	return strings.Join(parts, "\n")
}

func joinInts(xs []int) string {
	s := make([]string, len(xs))
	for i, x := range xs {
		s[i] = strconv.Itoa(x)
	}
	return strings.Join(s, ", ")
}

// RenderSVG renders a DOT graph to SVG using Graphviz.
func RenderSVG(dot string) ([]byte, error) {
	ctx := context.Background()
	gv, err := graphviz.New(ctx)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeInternal, err, "init graphviz")
	}
	defer gv.Close()

	g, err := graphviz.ParseBytes([]byte(dot))
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeInvalidInput, err, "parse DOT")
	}
	defer g.Close()

	var buf bytes.Buffer
	if err := gv.Render(ctx, g, graphviz.SVG, &buf); err != nil {
		return nil, errors.Wrap(errors.ErrCodeInternal, err, "render")
	}
	return normalizeViewBox(buf.Bytes()), nil
}

var (
	svgTagRe  = regexp.MustCompile(`<svg[^>]*>`)
	viewBoxRe = regexp.MustCompile(`viewBox="([0-9.]+)\s+([0-9.]+)\s+([0-9.]+)\s+([0-9.]+)"`)
)

// normalizeViewBox rewrites the root element so the drawing starts at the
// origin and scales with its container.
func normalizeViewBox(svg []byte) []byte {
	match := viewBoxRe.FindSubmatch(svg)
	if match == nil {
		return svg
	}

	w, _ := strconv.ParseFloat(string(match[3]), 64)
	h, _ := strconv.ParseFloat(string(match[4]), 64)
	if w == 0 || h == 0 {
		return svg
	}

	tag := fmt.Sprintf(`<svg xmlns="http://www.w3.org/2000/svg" viewBox="0 0 %.2f %.2f" width="%.0f" height="%.0f">`,
		w, h, w, h)
	return svgTagRe.ReplaceAll(svg, []byte(tag))
}

// Render produces res in the given format.
func Render(res *simulate.Result, format string, opts Options) ([]byte, error) {
	if err := errors.ValidateFormat(format, Formats...); err != nil {
		return nil, err
	}
	dot := ToDOT(res, opts)
	if format == FormatDOT {
		return []byte(dot), nil
	}
	svg, err := RenderSVG(dot)
	if err != nil {
		return nil, err
	}
	switch format {
	case FormatPDF:
		return ToPDF(svg)
	case FormatPNG:
		return ToPNG(svg, 2)
	}
	return svg, nil
}
