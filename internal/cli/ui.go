package cli

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/matzehuels/stacklayout/pkg/simulate"
)

// =============================================================================
// Color Palette
// =============================================================================

var (
	colorCyan   = lipgloss.Color("36")  // Teal - primary actions
	colorGreen  = lipgloss.Color("35")  // Green - success, sizing
	colorYellow = lipgloss.Color("220") // Amber - warnings, layout
	colorRed    = lipgloss.Color("167") // Soft red - errors
	colorWhite  = lipgloss.Color("255") // Bright white - values
	colorGray   = lipgloss.Color("245") // Gray - secondary text
	colorDim    = lipgloss.Color("240") // Dim gray - muted text
)

// =============================================================================
// Styles
// =============================================================================

var (
	// StyleTitle for main headings.
	StyleTitle = lipgloss.NewStyle().Bold(true).Foreground(colorCyan)

	// StyleDim for secondary/muted text.
	StyleDim = lipgloss.NewStyle().Foreground(colorDim)

	// StyleValue for data values.
	StyleValue = lipgloss.NewStyle().Foreground(colorWhite)

	// StyleWarning for warning messages.
	StyleWarning = lipgloss.NewStyle().Foreground(colorYellow)

	styleIconSuccess = lipgloss.NewStyle().Foreground(colorGreen)
	styleIconError   = lipgloss.NewStyle().Foreground(colorRed)
	styleIconInfo    = lipgloss.NewStyle().Foreground(colorGray)
	styleIconSpinner = lipgloss.NewStyle().Foreground(colorCyan)

	styleSizing = lipgloss.NewStyle().Foreground(colorGreen)
	styleLayout = lipgloss.NewStyle().Foreground(colorYellow)
	styleHeader = lipgloss.NewStyle().Foreground(colorGray).Bold(true)
)

const (
	iconSuccess = "✓"
	iconError   = "✗"
	iconInfo    = "›"
	iconArrow   = "→"
)

// =============================================================================
// Status Output
// =============================================================================

func printSuccess(format string, args ...any) {
	fmt.Println(styleIconSuccess.Render(iconSuccess) + " " + fmt.Sprintf(format, args...))
}

func printError(format string, args ...any) {
	fmt.Println(styleIconError.Render(iconError) + " " + fmt.Sprintf(format, args...))
}

func printInfo(format string, args ...any) {
	fmt.Println(styleIconInfo.Render(iconInfo) + " " + fmt.Sprintf(format, args...))
}

// printFile prints a file output line.
func printFile(path string) {
	fmt.Println("  " + StyleDim.Render(iconArrow) + " " + StyleValue.Render(path))
}

// printStats prints run statistics on a single dim line.
func printStats(s simulate.Stats) {
	parts := []string{
		fmt.Sprintf("%d steps", s.Steps),
		fmt.Sprintf("%d drains", s.Drains),
		fmt.Sprintf("%d sized", s.Sized),
		fmt.Sprintf("%d laid out", s.LaidOut),
	}
	if s.WorkerSteps > 0 {
		parts = append(parts, fmt.Sprintf("%d from workers", s.WorkerSteps))
	}
	fmt.Println("  " + StyleDim.Render(strings.Join(parts, " · ")))
}

// =============================================================================
// Tables
// =============================================================================

// headerRow is the row index lipgloss tables pass to StyleFunc for headers.
const headerRow = -1

// phaseStyle colors a phase name.
func phaseStyle(phase string) lipgloss.Style {
	if phase == "sizing" {
		return styleSizing
	}
	return styleLayout
}

// traceTable renders the callback trace, optionally limited to one drain.
func traceTable(trace []simulate.Event, drain int) string {
	var rows [][]string
	for i, e := range trace {
		if drain != 0 && e.Drain != drain {
			continue
		}
		rows = append(rows, []string{
			strconv.Itoa(i + 1),
			strconv.Itoa(e.Drain),
			e.Phase,
			strings.Repeat("  ", e.Depth) + e.View,
			strconv.Itoa(e.Depth),
		})
	}

	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(StyleDim).
		Headers("#", "Drain", "Phase", "View", "Depth").
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == headerRow {
				return styleHeader
			}
			if col == 2 && row < len(rows) {
				return phaseStyle(rows[row][2])
			}
			return lipgloss.NewStyle()
		})
	return t.Render()
}

// boxTable renders the final geometry of every view.
func boxTable(boxes []simulate.Box) string {
	rows := make([][]string, 0, len(boxes))
	for _, b := range boxes {
		rows = append(rows, []string{
			strings.Repeat("  ", b.Depth) + b.View,
			strconv.Itoa(b.Extent),
			strconv.Itoa(b.Measure),
			strconv.Itoa(b.Offset),
		})
	}

	return table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(StyleDim).
		Headers("View", "Extent", "Measure", "Offset").
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == headerRow {
				return styleHeader
			}
			return lipgloss.NewStyle()
		}).
		Render()
}
