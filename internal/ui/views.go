package ui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

const defaultBarWidth = 40

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#0077CC"))

	subtitleStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#888888")).
			Italic(true)

	positiveStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#00AA00"))
	negativeStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#FFA500"))
	errorStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#CC0000"))
)

// renderMonitor renders the header, one bar per output and the footer
func renderMonitor(m Model) string {
	var b strings.Builder

	b.WriteString(titleStyle.Render("mixctl watch"))
	b.WriteString("\n")
	b.WriteString(subtitleStyle.Render(fmt.Sprintf("%s  every %v", m.Target, m.interval)))
	b.WriteString("\n\n")

	if m.Polls == 0 {
		b.WriteString("Waiting for first sample...\n")
		return b.String()
	}

	width := barWidth(m.Width)
	for i, v := range m.Last.Outputs {
		b.WriteString(fmt.Sprintf("%3d %+.3f %s\n", i, v, renderBar(v, width)))
	}
	if len(m.Last.Outputs) == 0 {
		b.WriteString("No outputs\n")
	}

	b.WriteString("\n")
	status := fmt.Sprintf("attempted %d  written %d  failsafe %d", m.Last.Attempted, m.Last.Written, m.Last.Failsafe)
	if m.Last.Written < m.Last.Attempted {
		status += "  " + negativeStyle.Render("truncated")
	}
	b.WriteString(status)
	b.WriteString("\n")

	if m.Err != nil {
		b.WriteString(errorStyle.Render(fmt.Sprintf("Error: %v", m.Err)))
		b.WriteString("\n")
	}

	footer := fmt.Sprintf("polls %d  failures %d  [p] pause  [q] quit", m.Polls, m.Failures)
	if m.Paused {
		footer = "PAUSED  " + footer
	}
	b.WriteString(subtitleStyle.Render(footer))
	b.WriteString("\n")
	return b.String()
}

func barWidth(termWidth int) int {
	if termWidth <= 0 {
		return defaultBarWidth
	}
	// index, value and spacing take 12 columns
	w := termWidth - 12
	if w > 2*defaultBarWidth {
		w = 2 * defaultBarWidth
	}
	if w < 10 {
		w = 10
	}
	return w &^ 1
}

// renderBar draws v in [-1, 1] as a bar growing left or right of a centre
// mark. The result is always width+1 cells.
func renderBar(v float32, width int) string {
	half := width / 2
	if v > 1 {
		v = 1
	} else if v < -1 {
		v = -1
	}
	n := int(float32(half)*abs(v) + 0.5)

	left := strings.Repeat(" ", half)
	right := strings.Repeat(" ", half)
	if v < 0 {
		left = strings.Repeat(" ", half-n) + negativeStyle.Render(strings.Repeat("█", n))
	} else if v > 0 {
		right = positiveStyle.Render(strings.Repeat("█", n)) + strings.Repeat(" ", half-n)
	}
	return left + "│" + right
}

func abs(v float32) float32 {
	if v < 0 {
		return -v
	}
	return v
}
