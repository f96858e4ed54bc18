package manifest

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/matzehuels/stacklayout/pkg/errors"
	"github.com/matzehuels/stacklayout/pkg/view"
)

const column = `
[settings]
name = "column"

[[view]]
name = "header"
parent = "root"
extent = 2

[[view]]
name = "root"

[[view]]
name = "body"
parent = "root"
extent = 5

[[step]]
action = "resize"
views = ["header"]
extent = 3
from = "worker"

[[step]]
action = "drain"
`

func TestParse(t *testing.T) {
	m, err := Parse(strings.NewReader(column))
	if err != nil {
		t.Fatalf("Parse() error: %v", err)
	}

	if m.Settings.Name != "column" {
		t.Errorf("Settings.Name = %q, want %q", m.Settings.Name, "column")
	}
	wantSteps := []Step{
		{Action: ActionResize, Views: []string{"header"}, Extent: 3, From: FromWorker},
		{Action: ActionDrain, From: FromMain},
	}
	if diff := cmp.Diff(wantSteps, m.Steps); diff != "" {
		t.Errorf("Steps mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"root"}, m.Roots()); diff != "" {
		t.Errorf("Roots() mismatch (-want +got):\n%s", diff)
	}
	if got := m.Extent("body"); got != 5 {
		t.Errorf("Extent(body) = %d, want 5", got)
	}
}

func TestParseRejects(t *testing.T) {
	tests := []struct {
		name string
		doc  string
		want errors.Code
	}{
		{"syntax", `[[view]] name =`, errors.ErrCodeInvalidManifest},
		{"unknown key", "[[view]]\nname = \"a\"\ncolour = \"red\"", errors.ErrCodeInvalidManifest},
		{"no views", `[settings]` + "\nname = \"x\"", errors.ErrCodeInvalidManifest},
		{"bad name", "[[view]]\nname = \"a b\"", errors.ErrCodeInvalidManifest},
		{"duplicate", "[[view]]\nname = \"a\"\n[[view]]\nname = \"a\"", errors.ErrCodeInvalidManifest},
		{"unknown parent", "[[view]]\nname = \"a\"\nparent = \"zz\"", errors.ErrCodeInvalidManifest},
		{"cycle", "[[view]]\nname = \"a\"\nparent = \"b\"\n[[view]]\nname = \"b\"\nparent = \"a\"", errors.ErrCodeInvalidManifest},
		{"negative extent", "[[view]]\nname = \"a\"\nextent = -1", errors.ErrCodeInvalidManifest},
		{"unknown action", "[[view]]\nname = \"a\"\n[[step]]\naction = \"paint\"\nviews = [\"a\"]", errors.ErrCodeInvalidManifest},
		{"unknown step view", "[[view]]\nname = \"a\"\n[[step]]\naction = \"sizing\"\nviews = [\"b\"]", errors.ErrCodeInvalidManifest},
		{"drain on worker", "[[view]]\nname = \"a\"\n[[step]]\naction = \"drain\"\nfrom = \"worker\"", errors.ErrCodeInvalidManifest},
		{"missing views", "[[view]]\nname = \"a\"\n[[step]]\naction = \"layout\"", errors.ErrCodeInvalidManifest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(strings.NewReader(tt.doc))
			if err == nil {
				t.Fatal("Parse() succeeded, want error")
			}
			if got := errors.GetCode(err); got != tt.want {
				t.Errorf("code = %q, want %q (err: %v)", got, tt.want, err)
			}
		})
	}
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "column.toml")
	if err := os.WriteFile(path, []byte(column), 0o644); err != nil {
		t.Fatal(err)
	}

	if _, err := Load(path); err != nil {
		t.Errorf("Load() error: %v", err)
	}
	if _, err := Load(filepath.Join(dir, "missing.toml")); !errors.Is(err, errors.ErrCodeNotFound) {
		t.Errorf("Load(missing) = %v, want %s", err, errors.ErrCodeNotFound)
	}
}

func TestBuild(t *testing.T) {
	m, err := Parse(strings.NewReader(column))
	if err != nil {
		t.Fatal(err)
	}
	tree := &view.Tree{}
	nodes, err := m.Build(tree)
	if err != nil {
		t.Fatalf("Build() error: %v", err)
	}

	root := nodes["root"]
	var children []string
	for _, c := range root.Children() {
		children = append(children, c.Name())
	}
	if diff := cmp.Diff([]string{"header", "body"}, children); diff != "" {
		t.Errorf("children mismatch (-want +got):\n%s", diff)
	}
	if nodes["body"].Parent() != root {
		t.Error("body is not attached to root")
	}
	if d := nodes["header"].Depth(); d != 1 {
		t.Errorf("header depth = %d, want 1", d)
	}
}
