// Package ui provides the Bubbletea live output monitor for mixctl watch.
package ui

import (
	"context"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/flight-control/mixerd/internal/commands"
)

// FetchFunc returns one mixing pass from the daemon.
type FetchFunc func(ctx context.Context) (commands.MixOutput, error)

// Model is the Bubbletea model for the output monitor.
type Model struct {
	fetch    FetchFunc
	interval time.Duration
	timeout  time.Duration

	Target   string
	Last     commands.MixOutput
	Err      error
	Polls    int
	Failures int
	UpdateAt time.Time
	Paused   bool

	// gen tags poll chains so a resume does not run two at once
	gen int

	// Terminal dimensions
	Width  int
	Height int
}

// NewModel creates a monitor that calls fetch every interval.
func NewModel(target string, fetch FetchFunc, interval time.Duration) Model {
	if interval <= 0 {
		interval = 200 * time.Millisecond
	}
	return Model{
		fetch:    fetch,
		interval: interval,
		timeout:  2 * time.Second,
		Target:   target,
	}
}

// Init initializes the model
func (m Model) Init() tea.Cmd {
	return m.poll()
}

// Update handles messages and updates the model
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			return m, tea.Quit
		case "p", " ":
			m.Paused = !m.Paused
			if !m.Paused {
				m.gen++
				return m, m.poll()
			}
		}

	case tea.WindowSizeMsg:
		m.Width = msg.Width
		m.Height = msg.Height

	case PollMsg:
		if m.Paused || msg.Gen != m.gen {
			return m, nil
		}
		return m, m.poll()

	case OutputsMsg:
		if msg.Gen != m.gen {
			return m, nil
		}
		m.Polls++
		m.UpdateAt = msg.At
		m.Err = msg.Err
		if msg.Err != nil {
			m.Failures++
		} else {
			m.Last = msg.Output
		}
		if m.Paused {
			return m, nil
		}
		gen := m.gen
		return m, tea.Tick(m.interval, func(t time.Time) tea.Msg { return PollMsg{At: t, Gen: gen} })
	}

	return m, nil
}

func (m Model) poll() tea.Cmd {
	fetch, timeout, gen := m.fetch, m.timeout, m.gen
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		out, err := fetch(ctx)
		return OutputsMsg{Output: out, Err: err, At: time.Now(), Gen: gen}
	}
}

// View renders the UI
func (m Model) View() string {
	return renderMonitor(m)
}
