// Copyright (c) matt-FFFFFF 2025. All rights reserved.
// SPDX-License-Identifier: MIT

package tui

import (
	"fmt"
	"strings"

	bar "github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/matt-FFFFFF/dwqc/internal/progress"
)

const (
	padding  = 2
	maxWidth = 80
)

// Phase is the part of the run the display is showing.
type Phase int

const (
	// PhaseCollecting shows a spinner while the source is still producing commands.
	PhaseCollecting Phase = iota
	// PhaseDispatching shows a progress bar once the number of commands is known.
	PhaseDispatching
	// PhaseFinished shows the final line.
	PhaseFinished
)

// String returns a string representation of the phase.
func (p Phase) String() string {
	switch p {
	case PhaseCollecting:
		return "collecting"
	case PhaseDispatching:
		return "dispatching"
	case PhaseFinished:
		return "finished"
	default:
		return "unknown"
	}
}

// Styles contains all the styling for the TUI.
type Styles struct {
	Title   lipgloss.Style
	Counter lipgloss.Style
	Success lipgloss.Style
	Failed  lipgloss.Style
	Warning lipgloss.Style
	Help    lipgloss.Style
}

// NewStyles creates the default styling for the TUI.
func NewStyles() *Styles {
	return &Styles{
		Title: lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("12")),
		Counter: lipgloss.NewStyle().
			Foreground(lipgloss.Color("7")),
		Success: lipgloss.NewStyle().
			Foreground(lipgloss.Color("10")),
		Failed: lipgloss.NewStyle().
			Foreground(lipgloss.Color("9")),
		Warning: lipgloss.NewStyle().
			Foreground(lipgloss.Color("11")).
			Bold(true),
		Help: lipgloss.NewStyle().
			Foreground(lipgloss.Color("8")),
	}
}

// EventMsg wraps a progress event for the tea framework.
type EventMsg struct {
	Event progress.Event
}

// Model is the progress display.
type Model struct {
	spinner     spinner.Model
	bar         bar.Model
	styles      *Styles
	terminate   chan<- struct{}
	inbox       string
	counters    progress.Counters
	failures    int
	lastFailure string
	phase       Phase
	final       progress.EventType
	interrupted bool
}

// NewModel creates the display. A first ctrl+c or q sends on terminate instead of
// quitting, so the run can clean up before the display goes away.
func NewModel(terminate chan<- struct{}) *Model {
	s := spinner.New()
	s.Spinner = spinner.Dot

	return &Model{
		spinner:   s,
		bar:       bar.New(bar.WithDefaultGradient(), bar.WithoutPercentage()),
		styles:    NewStyles(),
		terminate: terminate,
	}
}

// Phase returns the part of the run being shown.
func (m *Model) Phase() Phase {
	return m.phase
}

// Counters returns the last counters received.
func (m *Model) Counters() progress.Counters {
	return m.counters
}

// Init implements tea.Model.
func (m *Model) Init() tea.Cmd {
	return m.spinner.Tick
}

// Update implements tea.Model.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKeyPress(msg)

	case tea.WindowSizeMsg:
		m.bar.Width = min(msg.Width-padding*2, maxWidth)
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)

		return m, cmd

	case EventMsg:
		return m, m.processEvent(msg.Event)
	}

	return m, nil
}

func (m *Model) handleKeyPress(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c":
		if m.interrupted || m.phase == PhaseFinished {
			return m, tea.Quit
		}

		m.interrupted = true

		select {
		case m.terminate <- struct{}{}:
		default:
		}
	}

	return m, nil
}

func (m *Model) processEvent(event progress.Event) tea.Cmd {
	if event.Type != progress.EventStarted {
		m.counters = event.Counters
	}

	switch event.Type {
	case progress.EventStarted:
		m.inbox = event.Data.Inbox
	case progress.EventExhausted:
		m.phase = PhaseDispatching
	case progress.EventResult:
		if event.Data.Status != 0 {
			m.failures++
			m.lastFailure = event.Data.Command
		}
	case progress.EventCollected, progress.EventAborted, progress.EventFailed:
		m.phase = PhaseFinished
		m.final = event.Type

		return tea.Quit
	}

	return nil
}

// ratio is the share of submitted commands that completed.
func (m *Model) ratio() float64 {
	total := m.counters.Total
	if total == 0 {
		return 1
	}

	return float64(m.counters.Completed) / float64(total)
}

// View implements tea.Model.
func (m *Model) View() string {
	var b strings.Builder

	pad := strings.Repeat(" ", padding)

	b.WriteString(pad)
	b.WriteString(m.styles.Title.Render("dwqc"))

	if m.inbox != "" {
		b.WriteString(m.styles.Help.Render("  " + m.inbox))
	}

	b.WriteString("\n")
	b.WriteString(pad)

	switch m.phase {
	case PhaseCollecting:
		b.WriteString(m.spinner.View())
		b.WriteString(m.styles.Counter.Render(fmt.Sprintf(" submitted %d, completed %d", m.counters.Submitted, m.counters.Completed)))
	case PhaseDispatching:
		b.WriteString(m.bar.ViewAs(m.ratio()))
		b.WriteString(m.styles.Counter.Render(fmt.Sprintf(" %d/%d", m.counters.Completed, m.counters.Total)))
	case PhaseFinished:
		b.WriteString(m.finalLine())
	}

	b.WriteString("\n")

	if m.failures > 0 {
		b.WriteString(pad)
		b.WriteString(m.styles.Failed.Render(fmt.Sprintf("%d failed, last: %s", m.failures, m.lastFailure)))
		b.WriteString("\n")
	}

	if m.interrupted && m.phase != PhaseFinished {
		b.WriteString(pad)
		b.WriteString(m.styles.Warning.Render("aborting, press ctrl+c again to leave the display"))
		b.WriteString("\n")
	}

	return b.String()
}

func (m *Model) finalLine() string {
	switch m.final {
	case progress.EventCollected:
		if m.failures > 0 {
			return m.styles.Failed.Render(fmt.Sprintf("✗ %d jobs collected, %d failed", m.counters.Completed, m.failures))
		}

		return m.styles.Success.Render(fmt.Sprintf("✓ %d jobs collected", m.counters.Completed))
	case progress.EventAborted:
		return m.styles.Warning.Render(fmt.Sprintf("aborted with %d jobs outstanding", m.counters.Outstanding))
	default:
		return m.styles.Failed.Render("✗ run failed")
	}
}
