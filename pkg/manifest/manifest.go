// Package manifest reads scenario files describing a view tree and a
// scripted sequence of invalidations.
//
// A manifest is a TOML document:
//
//	[settings]
//	name = "column"
//
//	[[view]]
//	name = "root"
//
//	[[view]]
//	name = "header"
//	parent = "root"
//	extent = 2
//
//	[[step]]
//	action = "resize"
//	views = ["header"]
//	extent = 4
//	from = "worker"
//
//	[[step]]
//	action = "drain"
//
// Views may be listed in any order; parents are resolved by name.
package manifest

import (
	"io"
	"os"
	"slices"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/matzehuels/stacklayout/pkg/errors"
	"github.com/matzehuels/stacklayout/pkg/view"
)

// Step actions.
const (
	ActionSizing = "sizing" // request a sizing update for each view
	ActionLayout = "layout" // request a layout pass for each view
	ActionResize = "resize" // change each view's extent, then request sizing
	ActionDrain  = "drain"  // run everything queued on the main thread
)

// Step origins.
const (
	FromMain   = "main"
	FromWorker = "worker"
)

// Actions lists the valid step actions.
var Actions = []string{ActionSizing, ActionLayout, ActionResize, ActionDrain}

// Manifest is a parsed scenario.
type Manifest struct {
	Settings Settings `toml:"settings"`
	Views    []View   `toml:"view"`
	Steps    []Step   `toml:"step"`
}

// Settings holds scenario-wide options.
type Settings struct {
	Name string `toml:"name"`
}

// View declares one node of the tree.
type View struct {
	Name   string `toml:"name"`
	Parent string `toml:"parent"`
	Extent int    `toml:"extent"`
}

// Step is one scripted action.
type Step struct {
	Action string   `toml:"action"`
	Views  []string `toml:"views"`
	Extent int      `toml:"extent"`
	From   string   `toml:"from"`
}

// OnWorker reports whether the step is issued from a background thread.
func (s Step) OnWorker() bool { return s.From == FromWorker }

// Parse decodes and validates a manifest. Unknown keys are rejected.
func Parse(r io.Reader) (*Manifest, error) {
	var m Manifest
	md, err := toml.NewDecoder(r).Decode(&m)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeInvalidManifest, err, "decode manifest")
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return nil, errors.New(errors.ErrCodeInvalidManifest, "unknown keys: %s", strings.Join(keys, ", "))
	}
	m.applyDefaults()
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return &m, nil
}

// Load reads and parses the manifest at path.
func Load(path string) (*Manifest, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.Wrap(errors.ErrCodeNotFound, err, "manifest %s", path)
		}
		return nil, errors.Wrap(errors.ErrCodeInvalidInput, err, "open manifest %s", path)
	}
	defer f.Close()
	return Parse(f)
}

func (m *Manifest) applyDefaults() {
	if m.Settings.Name == "" {
		m.Settings.Name = "untitled"
	}
	for i := range m.Steps {
		if m.Steps[i].From == "" {
			m.Steps[i].From = FromMain
		}
	}
}

// Validate checks names, parent references, cycles and steps.
func (m *Manifest) Validate() error {
	if len(m.Views) == 0 {
		return errors.New(errors.ErrCodeInvalidManifest, "no views declared")
	}

	parents := make(map[string]string, len(m.Views))
	for _, v := range m.Views {
		if err := errors.ValidateViewName(v.Name); err != nil {
			return errors.Wrap(errors.ErrCodeInvalidManifest, err, "view")
		}
		if _, dup := parents[v.Name]; dup {
			return errors.New(errors.ErrCodeInvalidManifest, "view %q declared twice", v.Name)
		}
		if v.Extent < 0 {
			return errors.New(errors.ErrCodeInvalidManifest, "view %q: negative extent %d", v.Name, v.Extent)
		}
		parents[v.Name] = v.Parent
	}

	for _, v := range m.Views {
		if v.Parent == "" {
			continue
		}
		if _, ok := parents[v.Parent]; !ok {
			return errors.New(errors.ErrCodeInvalidManifest, "view %q: unknown parent %q", v.Name, v.Parent)
		}
		// Walk up; more hops than views means a cycle.
		hops := 0
		for p := v.Parent; p != ""; p = parents[p] {
			if p == v.Name || hops > len(m.Views) {
				return errors.New(errors.ErrCodeInvalidManifest, "view %q has cyclic ancestry", v.Name)
			}
			hops++
		}
	}

	for i, s := range m.Steps {
		if err := s.validate(parents); err != nil {
			return errors.Wrap(errors.ErrCodeInvalidManifest, err, "step %d", i+1)
		}
	}
	return nil
}

func (s Step) validate(known map[string]string) error {
	if err := errors.ValidateFormat(s.Action, Actions...); err != nil {
		return err
	}
	if s.From != FromMain && s.From != FromWorker {
		return errors.New(errors.ErrCodeInvalidInput, "from must be %q or %q, got %q", FromMain, FromWorker, s.From)
	}
	if s.Action == ActionDrain {
		if len(s.Views) > 0 {
			return errors.New(errors.ErrCodeInvalidInput, "drain takes no views")
		}
		if s.OnWorker() {
			return errors.New(errors.ErrCodeInvalidInput, "drain must run on the main thread")
		}
		return nil
	}
	if len(s.Views) == 0 {
		return errors.New(errors.ErrCodeInvalidInput, "%s needs at least one view", s.Action)
	}
	for _, name := range s.Views {
		if _, ok := known[name]; !ok {
			return errors.New(errors.ErrCodeViewNotFound, "unknown view %q", name)
		}
	}
	if s.Action == ActionResize && s.Extent < 0 {
		return errors.New(errors.ErrCodeInvalidInput, "negative extent %d", s.Extent)
	}
	return nil
}

// Build creates the declared views in t and links them. The result maps
// view names to nodes; children keep their declaration order.
func (m *Manifest) Build(t *view.Tree) (map[string]*view.Node, error) {
	nodes := make(map[string]*view.Node, len(m.Views))
	for _, v := range m.Views {
		nodes[v.Name] = view.NewNode(t, v.Name)
	}
	for _, v := range m.Views {
		if v.Parent == "" {
			continue
		}
		parent, ok := nodes[v.Parent]
		if !ok {
			return nil, errors.New(errors.ErrCodeInvalidManifest, "view %q: unknown parent %q", v.Name, v.Parent)
		}
		if err := parent.AddChild(nodes[v.Name]); err != nil {
			return nil, errors.Wrap(errors.ErrCodeInvalidManifest, err, "link %q", v.Name)
		}
	}
	return nodes, nil
}

// Roots returns the names of views without a parent, in declaration order.
func (m *Manifest) Roots() []string {
	var roots []string
	for _, v := range m.Views {
		if v.Parent == "" {
			roots = append(roots, v.Name)
		}
	}
	return slices.Clip(roots)
}

// Extent returns the declared extent of the named view.
func (m *Manifest) Extent(name string) int {
	for _, v := range m.Views {
		if v.Name == name {
			return v.Extent
		}
	}
	return 0
}
