package ui

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/flight-control/mixerd/internal/commands"
)

func fixedFetch(out commands.MixOutput, err error) FetchFunc {
	return func(ctx context.Context) (commands.MixOutput, error) {
		return out, err
	}
}

func TestModelPollCycle(t *testing.T) {
	want := commands.MixOutput{Outputs: []float32{-1, 0.5, 0}, Attempted: 3, Written: 3, Failsafe: 1}
	m := NewModel("http://127.0.0.1:8080", fixedFetch(want, nil), 50*time.Millisecond)

	if !strings.Contains(m.View(), "Waiting for first sample") {
		t.Errorf("Expected waiting view, got:\n%s", m.View())
	}

	msg := m.Init()()
	out, ok := msg.(OutputsMsg)
	if !ok {
		t.Fatalf("Expected OutputsMsg, got %T", msg)
	}

	next, cmd := m.Update(out)
	m = next.(Model)
	if cmd == nil {
		t.Error("Expected a follow-up tick")
	}
	if m.Polls != 1 || m.Failures != 0 || m.Last.Written != 3 {
		t.Errorf("Unexpected model state %+v", m)
	}

	view := m.View()
	for _, s := range []string{"-1.000", "+0.500", "failsafe 1"} {
		if !strings.Contains(view, s) {
			t.Errorf("Expected %q in view:\n%s", s, view)
		}
	}
}

func TestModelKeepsLastOutputsOnError(t *testing.T) {
	m := NewModel("daemon", fixedFetch(commands.MixOutput{}, nil), 0)
	good := commands.MixOutput{Outputs: []float32{0.25}, Attempted: 2, Written: 1}

	next, _ := m.Update(OutputsMsg{Output: good, At: time.Now()})
	next, _ = next.(Model).Update(OutputsMsg{Err: errors.New("connection refused"), At: time.Now()})
	m = next.(Model)

	if m.Failures != 1 || m.Polls != 2 {
		t.Errorf("Expected 2 polls and 1 failure, got %d and %d", m.Polls, m.Failures)
	}
	if len(m.Last.Outputs) != 1 || m.Last.Outputs[0] != 0.25 {
		t.Errorf("Expected last good outputs kept, got %+v", m.Last)
	}
	view := m.View()
	if !strings.Contains(view, "connection refused") || !strings.Contains(view, "truncated") {
		t.Errorf("Expected error and truncation in view:\n%s", view)
	}
}

func TestModelPauseAndQuit(t *testing.T) {
	m := NewModel("daemon", fixedFetch(commands.MixOutput{}, nil), time.Second)

	next, _ := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'p'}})
	m = next.(Model)
	if !m.Paused {
		t.Fatal("Expected paused after p")
	}
	if _, cmd := m.Update(PollMsg{At: time.Now()}); cmd != nil {
		t.Error("Expected no poll while paused")
	}

	next, cmd := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'p'}})
	if next.(Model).Paused || cmd == nil {
		t.Error("Expected resume to poll immediately")
	}

	_, cmd = m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'q'}})
	if cmd == nil {
		t.Fatal("Expected quit command")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Error("Expected tea.QuitMsg")
	}
}

func TestRenderBarWidth(t *testing.T) {
	for _, v := range []float32{-2, -1, -0.3, 0, 0.3, 1, 2} {
		bar := renderBar(v, 20)
		if n := utf8.RuneCountInString(stripANSI(bar)); n != 21 {
			t.Errorf("renderBar(%v) has %d cells, want 21", v, n)
		}
	}
	if barWidth(0) != defaultBarWidth || barWidth(15) != 10 || barWidth(1000) != 2*defaultBarWidth {
		t.Error("Unexpected bar width clamping")
	}
}

func stripANSI(s string) string {
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		if s[i] == 0x1b {
			for i < len(s) && s[i] != 'm' {
				i++
			}
			continue
		}
		b.WriteByte(s[i])
	}
	return b.String()
}

func TestModelDropsStaleChainAfterResume(t *testing.T) {
	m := NewModel("daemon", fixedFetch(commands.MixOutput{}, nil), time.Second)

	next, _ := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'p'}})
	next, _ = next.(Model).Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'p'}})
	m = next.(Model)

	// Result of a fetch started before the pause.
	next, cmd := m.Update(OutputsMsg{Output: commands.MixOutput{Outputs: []float32{1}}, Gen: 0})
	if cmd != nil || next.(Model).Polls != 0 {
		t.Error("Expected stale result to be ignored")
	}
	if _, cmd := m.Update(PollMsg{Gen: 0}); cmd != nil {
		t.Error("Expected stale tick to be ignored")
	}
}
