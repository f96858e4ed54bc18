package cli

import (
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/matzehuels/stacklayout/pkg/errors"
	"github.com/matzehuels/stacklayout/pkg/layout"
	"github.com/matzehuels/stacklayout/pkg/manifest"
	"github.com/matzehuels/stacklayout/pkg/simulate"
	"github.com/matzehuels/stacklayout/pkg/thread"
)

// watchCommand opens an interactive view of a live scene. The terminal UI
// goroutine is the main thread: drains run between key presses.
func (c *CLI) watchCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "watch [manifest]",
		Short: "Interactively invalidate views and watch drains run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.runWatch(cmd.Context(), args[0])
		},
	}
}

func (c *CLI) runWatch(ctx context.Context, path string) error {
	m, err := loadManifest(path)
	if err != nil {
		return err
	}

	disp := newProgramDispatcher()
	// Log lines would tear the alternate screen; failures show in the status line.
	scene, err := simulate.NewScene(m, disp, log.New(io.Discard))
	if err != nil {
		return err
	}
	if err := layout.Init(scene.Coordinator()); err != nil {
		return err
	}

	p := tea.NewProgram(newWatchModel(scene, disp, m.Steps), tea.WithAltScreen(), tea.WithContext(ctx))
	disp.setSender(p.Send)
	if _, err := p.Run(); err != nil {
		if stderrors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
			return ctx.Err()
		}
		return errors.Wrap(errors.ErrCodeInternal, err, "run terminal ui")
	}
	return nil
}

// =============================================================================
// Program Dispatcher
// =============================================================================

// wakeMsg tells the model to run queued main thread tasks.
type wakeMsg struct{}

// programDispatcher runs main thread tasks inside the bubbletea Update loop.
// CallAsync queues the task and wakes the program with a message; Update
// then calls runPending.
type programDispatcher struct {
	mu      sync.Mutex
	tasks   []func() error
	waking  bool
	send    func(tea.Msg)
	owner   atomic.Uint64
	stopped bool
}

func newProgramDispatcher() *programDispatcher {
	return &programDispatcher{}
}

// setSender installs the function delivering wake messages, normally
// (*tea.Program).Send. Tasks queued before are picked up by the model's
// initial wake.
func (d *programDispatcher) setSender(send func(tea.Msg)) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.send = send
}

func (d *programDispatcher) CallAsync(task func() error) error {
	if task == nil {
		return errors.New(errors.ErrCodeInvalidInput, "nil task")
	}
	d.mu.Lock()
	if d.stopped {
		d.mu.Unlock()
		return errors.New(errors.ErrCodeLoopClosed, "terminal ui stopped")
	}
	d.tasks = append(d.tasks, task)
	wake := !d.waking && d.send != nil
	if wake {
		d.waking = true
	}
	send := d.send
	d.mu.Unlock()

	// Send blocks until Update receives the message, and CallAsync may be
	// called from Update itself.
	if wake {
		go send(wakeMsg{})
	}
	return nil
}

func (d *programDispatcher) IsMainThread() bool {
	owner := d.owner.Load()
	return owner != 0 && owner == uint64(thread.CurrentID())
}

// bind makes the caller the main thread. Update calls it on every message.
func (d *programDispatcher) bind() {
	d.owner.Store(uint64(thread.CurrentID()))
}

// runPending runs the tasks queued so far, including tasks they queue
// themselves, and returns the first error.
func (d *programDispatcher) runPending() error {
	var first error
	for {
		d.mu.Lock()
		tasks := d.tasks
		d.tasks = nil
		d.waking = false
		d.mu.Unlock()
		if len(tasks) == 0 {
			return first
		}
		for _, task := range tasks {
			if err := runGuarded(task); err != nil && first == nil {
				first = err
			}
		}
	}
}

// stop rejects further tasks.
func (d *programDispatcher) stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stopped = true
	d.tasks = nil
}

func runGuarded(task func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &errors.PanicError{Value: r}
		}
	}()
	return task()
}

// =============================================================================
// Watch Model
// =============================================================================

// workerDoneMsg reports the end of an invalidation issued from a worker.
type workerDoneMsg struct {
	view string
	err  error
}

var (
	watchSelectedStyle = lipgloss.NewStyle().Bold(true).Foreground(colorCyan)
	watchStatusStyle   = lipgloss.NewStyle().Foreground(colorGray)
)

// watchModel is the bubbletea model of the watch command.
type watchModel struct {
	scene  *simulate.Scene
	disp   *programDispatcher
	steps  []manifest.Step
	next   int
	cursor int
	res    *simulate.Result
	status string
	err    error
}

func newWatchModel(scene *simulate.Scene, disp *programDispatcher, steps []manifest.Step) watchModel {
	return watchModel{
		scene: scene,
		disp:  disp,
		steps: steps,
		res:   scene.Result(),
	}
}

func (m watchModel) Init() tea.Cmd {
	return func() tea.Msg { return wakeMsg{} }
}

func (m watchModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	m.disp.bind()
	var cmd tea.Cmd

	switch msg := msg.(type) {
	case wakeMsg:
		if err := m.disp.runPending(); err != nil {
			m.err = err
		}
	case workerDoneMsg:
		if msg.err != nil {
			m.err = msg.err
		} else {
			m.status = "worker grew " + msg.view
		}
	case tea.KeyMsg:
		cmd = m.handleKey(msg.String())
	}

	m.res = m.scene.Result()
	return m, cmd
}

func (m *watchModel) handleKey(key string) tea.Cmd {
	switch key {
	case "q", "ctrl+c", "esc":
		m.disp.stop()
		return tea.Quit
	case "n":
		m.nextStep()
		return nil
	}
	if len(m.res.Boxes) == 0 {
		return nil
	}

	switch key {
	case "up", "k":
		if m.cursor > 0 {
			m.cursor--
		}
	case "down", "j":
		if m.cursor < len(m.res.Boxes)-1 {
			m.cursor++
		}
	case "s":
		m.apply(manifest.Step{Action: manifest.ActionSizing, Views: []string{m.selected().View}})
	case "l":
		m.apply(manifest.Step{Action: manifest.ActionLayout, Views: []string{m.selected().View}})
	case "+", "=":
		m.resize(m.selected().Extent + 1)
	case "-":
		if b := m.selected(); b.Extent > 0 {
			m.resize(b.Extent - 1)
		}
	case "w":
		return m.growOnWorker()
	}
	return nil
}

func (m *watchModel) selected() simulate.Box {
	return m.res.Boxes[m.cursor]
}

func (m *watchModel) apply(step manifest.Step) {
	if err := m.scene.Apply(step); err != nil {
		m.err = err
		return
	}
	m.err = nil
	m.status = fmt.Sprintf("%s %s", step.Action, strings.Join(step.Views, ", "))
}

func (m *watchModel) resize(extent int) {
	m.apply(manifest.Step{
		Action: manifest.ActionResize,
		Views:  []string{m.selected().View},
		Extent: extent,
	})
}

// growOnWorker resizes the selected view from a background thread and
// returns a command waiting for it.
func (m *watchModel) growOnWorker() tea.Cmd {
	b := m.selected()
	scene := m.scene
	fut := thread.Exec(func() (struct{}, error) {
		return struct{}{}, scene.Apply(manifest.Step{
			Action: manifest.ActionResize,
			Views:  []string{b.View},
			Extent: b.Extent + 1,
		})
	})
	m.status = "worker growing " + b.View
	return func() tea.Msg {
		_, err := fut.Get()
		return workerDoneMsg{view: b.View, err: err}
	}
}

// nextStep applies the next scripted step. Drain steps only advance the
// script, drains run on their own.
func (m *watchModel) nextStep() {
	if m.next >= len(m.steps) {
		m.status = "script finished"
		return
	}
	step := m.steps[m.next]
	m.next++
	if step.Action == manifest.ActionDrain {
		m.status = "drain"
		return
	}
	m.apply(step)
}

func (m watchModel) View() string {
	var b strings.Builder

	b.WriteString(StyleTitle.Render(m.res.Name))
	b.WriteString("\n")
	b.WriteString(StyleDim.Render("↑/↓ select  s sizing  l layout  +/- resize  w grow on worker  n next step  q quit"))
	b.WriteString("\n\n")
	b.WriteString(m.boxView())
	b.WriteString("\n")

	if drain := m.res.LastDrain(); drain > 0 {
		b.WriteString(StyleDim.Render(fmt.Sprintf("Drain %d", drain)))
		b.WriteString("\n")
		b.WriteString(traceTable(m.res.Trace, drain))
		b.WriteString("\n")
	}

	s := m.res.Stats
	b.WriteString(StyleDim.Render(fmt.Sprintf("%d drains · %d sized · %d laid out · step %d/%d",
		s.Drains, s.Sized, s.LaidOut, m.next, len(m.steps))))
	b.WriteString("\n")
	if m.err != nil {
		b.WriteString(styleIconError.Render(iconError + " " + m.err.Error()))
	} else if m.status != "" {
		b.WriteString(watchStatusStyle.Render(iconInfo + " " + m.status))
	}
	return b.String()
}

func (m watchModel) boxView() string {
	rows := make([][]string, 0, len(m.res.Boxes))
	for i, box := range m.res.Boxes {
		marker := "  "
		if i == m.cursor {
			marker = "▸ "
		}
		rows = append(rows, []string{
			marker,
			strings.Repeat("  ", box.Depth) + box.View,
			strconv.Itoa(box.Extent),
			strconv.Itoa(box.Measure),
			strconv.Itoa(box.Offset),
		})
	}

	return table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(StyleDim).
		Headers("", "View", "Extent", "Measure", "Offset").
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == headerRow {
				return styleHeader
			}
			if row == m.cursor {
				return watchSelectedStyle
			}
			return lipgloss.NewStyle()
		}).
		Render()
}
