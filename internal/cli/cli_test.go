package cli

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/charmbracelet/log"
	"github.com/google/go-cmp/cmp"

	"github.com/matzehuels/stacklayout/pkg/errors"
	"github.com/matzehuels/stacklayout/pkg/observability"
)

const columnManifest = "../../examples/column.toml"

func TestRootCommandRegistersSubcommands(t *testing.T) {
	root := New(io.Discard, LogInfo).RootCommand()

	var got []string
	for _, cmd := range root.Commands() {
		got = append(got, cmd.Name())
	}
	want := []string{"cache", "completion", "render", "serve", "simulate", "watch"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("subcommands mismatch (-want +got):\n%s", diff)
	}
}

func TestRenderCommandWritesDOT(t *testing.T) {
	t.Cleanup(observability.Reset)

	out := filepath.Join(t.TempDir(), "column.dot")
	root := New(io.Discard, LogInfo).RootCommand()
	root.SetArgs([]string{"render", columnManifest, "-f", "dot", "-o", out, "--drain=-1", "--no-cache"})
	if err := root.ExecuteContext(context.Background()); err != nil {
		t.Fatalf("render: %v", err)
	}

	data, err := os.ReadFile(out)
	if err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{"digraph G", `"page" -> "header"`, "links"} {
		if !strings.Contains(string(data), want) {
			t.Errorf("DOT output missing %q:\n%s", want, data)
		}
	}
}

func TestRenderCommandRejectsFormat(t *testing.T) {
	t.Cleanup(observability.Reset)

	root := New(io.Discard, LogInfo).RootCommand()
	root.SetArgs([]string{"render", columnManifest, "-f", "gif"})
	root.SetErr(io.Discard)
	if err := root.ExecuteContext(context.Background()); !errors.Is(err, errors.ErrCodeInvalidFormat) {
		t.Errorf("render -f gif = %v, want INVALID_FORMAT", err)
	}
}

func TestRunSimulateMissingManifest(t *testing.T) {
	c := New(io.Discard, LogInfo)
	ctx := withLogger(context.Background(), log.New(io.Discard))
	err := c.runSimulate(ctx, filepath.Join(t.TempDir(), "nope.toml"), simulateOpts{})
	if !errors.Is(err, errors.ErrCodeNotFound) {
		t.Errorf("runSimulate() = %v, want NOT_FOUND", err)
	}
}

func TestBasePath(t *testing.T) {
	tests := []struct {
		output, input, want string
	}{
		{"", "examples/column.toml", "examples/column"},
		{"out/diagram.svg", "column.toml", "out/diagram"},
		{"out/diagram", "column.toml", "out/diagram"},
		{"out/diagram.txt", "column.toml", "out/diagram.txt"},
	}
	for _, tt := range tests {
		if got := basePath(tt.output, tt.input); got != tt.want {
			t.Errorf("basePath(%q, %q) = %q, want %q", tt.output, tt.input, got, tt.want)
		}
	}
}

func TestParseFormats(t *testing.T) {
	if diff := cmp.Diff([]string{"svg"}, parseFormats("")); diff != "" {
		t.Errorf("default formats mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"dot", "png"}, parseFormats("dot,png")); diff != "" {
		t.Errorf("formats mismatch (-want +got):\n%s", diff)
	}
}

func TestClearDir(t *testing.T) {
	dir := t.TempDir()
	for _, p := range []string{"ab/one.json", "ab/two.json", "cd/three.json"} {
		path := filepath.Join(dir, p)
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(path, []byte("{}"), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	n, err := clearDir(dir)
	if err != nil || n != 3 {
		t.Fatalf("clearDir() = %d, %v, want 3", n, err)
	}
	if entries, _ := os.ReadDir(dir); len(entries) != 0 {
		t.Errorf("%d entries left after clear", len(entries))
	}

	if n, err := clearDir(filepath.Join(dir, "missing")); n != 0 || err != nil {
		t.Errorf("clearDir(missing) = %d, %v", n, err)
	}
}

func TestCompletionBash(t *testing.T) {
	t.Cleanup(observability.Reset)

	var buf strings.Builder
	root := New(io.Discard, LogInfo).RootCommand()
	root.SetOut(&buf)
	root.SetArgs([]string{"completion", "bash"})
	if err := root.Execute(); err != nil {
		t.Fatalf("completion bash: %v", err)
	}
	if !strings.Contains(buf.String(), "stacklayout") {
		t.Error("bash completion does not mention the command name")
	}
}
