// Package tui provides a terminal dashboard for a live session using Bubble Tea.
package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/claude/physiotrack/internal/live"
	"github.com/claude/physiotrack/internal/models"
	"github.com/claude/physiotrack/internal/session"
)

// Styles
var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("205")).
			MarginLeft(2)

	infoStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("241"))

	activeStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("42")).
			Bold(true)

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196"))

	warnStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("214"))

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("241")).
			MarginTop(1)

	boxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("62")).
			Padding(0, 1)
)

// Session is what the dashboard drives.
type Session interface {
	Snapshot() live.Snapshot
	Updates() <-chan struct{}
	Done() <-chan struct{}
	Start(ctx context.Context) error
	Stop(ctx context.Context, save bool) error
	StartNextSet(ctx context.Context) error
	SetSide(ctx context.Context, side models.Side) error
}

// Model is the dashboard model.
type Model struct {
	session  Session
	snap     live.Snapshot
	spinner  spinner.Model
	err      error
	width    int
	quitting bool
}

// Message types
type updateMsg struct{}
type doneMsg struct{}
type commandMsg struct{ err error }

// New creates a dashboard for s.
func New(s Session) Model {
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("205"))
	return Model{session: s, snap: s.Snapshot(), spinner: sp}
}

// Init starts listening for session updates.
func (m Model) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, waitForUpdate(m.session))
}

// Update handles messages
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			m.quitting = true
			return m, tea.Quit
		case "s":
			return m, m.run(func(ctx context.Context) error { return m.session.Start(ctx) })
		case "n":
			return m, m.run(func(ctx context.Context) error { return m.session.StartNextSet(ctx) })
		case "w":
			return m, m.run(func(ctx context.Context) error { return m.session.Stop(ctx, true) })
		case "x":
			return m, m.run(func(ctx context.Context) error { return m.session.Stop(ctx, false) })
		case "l":
			return m, m.side(models.SideLeft)
		case "r":
			return m, m.side(models.SideRight)
		case "a":
			return m, m.side(models.SideAuto)
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width

	case updateMsg:
		m.snap = m.session.Snapshot()
		return m, waitForUpdate(m.session)

	case doneMsg:
		m.snap = m.session.Snapshot()
		m.quitting = true
		return m, tea.Quit

	case commandMsg:
		m.err = msg.err
		m.snap = m.session.Snapshot()

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m Model) side(side models.Side) tea.Cmd {
	return m.run(func(ctx context.Context) error { return m.session.SetSide(ctx, side) })
}

// run executes a session command off the UI goroutine.
func (m Model) run(fn func(ctx context.Context) error) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return commandMsg{err: fn(ctx)}
	}
}

func waitForUpdate(s Session) tea.Cmd {
	return func() tea.Msg {
		select {
		case <-s.Updates():
			return updateMsg{}
		case <-s.Done():
			return doneMsg{}
		}
	}
}

// View renders the dashboard
func (m Model) View() string {
	if m.quitting {
		return "Session closed.\n"
	}

	var b strings.Builder
	snap := m.snap

	b.WriteString(titleStyle.Render("PhysioTrack · "+snap.Exercise.Name) + "\n\n")

	phase := infoStyle.Render(snap.Phase.String())
	if snap.Phase == session.PhaseActive {
		phase = activeStyle.Render(snap.Phase.String())
		if snap.InFlight {
			phase += " " + m.spinner.View()
		}
	}
	camera := errorStyle.Render("○ camera off")
	if snap.Capturing {
		camera = activeStyle.Render("● camera on")
	}
	b.WriteString(fmt.Sprintf("  %s │ %s │ side: %s\n\n", phase, camera, sideLabel(snap)))

	body := strings.Join([]string{
		fmt.Sprintf("Set    %d of %d", setNumber(snap), snap.Exercise.Sets),
		fmt.Sprintf("Reps   %d / %d", snap.Reps, snap.Exercise.TargetReps),
		fmt.Sprintf("Stage  %s", orDash(string(snap.Stage))),
		fmt.Sprintf("Angle  %.0f°", snap.Angle),
		fmt.Sprintf("Form   %.0f%%", snap.Accuracy),
	}, "\n")
	width := 40
	if m.width > 8 && m.width-4 < width {
		width = m.width - 4
	}
	b.WriteString(boxStyle.Width(width).Render(body) + "\n")

	if snap.Message.Text != "" {
		style := warnStyle
		if snap.Message.Persistent {
			style = errorStyle
		}
		b.WriteString("\n  " + style.Render(snap.Message.Text) + "\n")
	}

	if n := len(snap.Feedback); n > 0 {
		b.WriteString("\n")
		start := n - 5
		if start < 0 {
			start = 0
		}
		for _, f := range snap.Feedback[start:] {
			b.WriteString("  " + feedbackStyle(f.Type).Render("• "+f.Message) + "\n")
		}
	}

	if m.err != nil {
		b.WriteString("\n  " + errorStyle.Render("error: "+m.err.Error()) + "\n")
	}

	b.WriteString(helpStyle.Render("  s: start │ n: next set │ w: stop & save │ x: stop │ l/r/a: side │ q: quit"))
	return b.String()
}

func setNumber(snap live.Snapshot) int {
	if snap.Phase == session.PhaseAwaitingNextSet || snap.Phase == session.PhaseCompleted {
		return snap.SetsCompleted
	}
	return snap.SetsCompleted + 1
}

func sideLabel(snap live.Snapshot) string {
	if snap.Selection == models.SideAuto && snap.ResolvedSide != "" {
		return fmt.Sprintf("auto (%s)", snap.ResolvedSide)
	}
	return string(snap.Selection)
}

func feedbackStyle(t models.FeedbackType) lipgloss.Style {
	switch t {
	case models.FeedbackWarning, models.FeedbackCorrection:
		return warnStyle
	case models.FeedbackEncouragement, models.FeedbackProgress:
		return activeStyle
	}
	return infoStyle
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

// Run starts the dashboard and blocks until the user quits or the session ends.
func Run(s Session) error {
	p := tea.NewProgram(New(s), tea.WithAltScreen())
	_, err := p.Run()
	return err
}
