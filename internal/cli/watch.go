package cli

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"

	backendsync "gomarks/backend/sync"
)

const historySize = 5

// ResultMsg delivers a finished cycle to the watch view
type ResultMsg struct {
	Result *backendsync.SyncResult
}

type tickMsg time.Time

// WatchModel is the bubbletea model behind 'gomarks watch'
type WatchModel struct {
	spinner  spinner.Model
	interval time.Duration
	online   func() bool
	trigger  func()

	isOnline bool
	cycles   int
	last     *backendsync.SyncResult
	history  []string
	quitting bool
	width    int
}

// NewWatchModel creates the watch view. online reports reachability; trigger
// requests an immediate cycle when the user presses "s".
func NewWatchModel(interval time.Duration, online func() bool, trigger func()) WatchModel {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = headerStyle
	return WatchModel{
		spinner:  s,
		interval: interval,
		online:   online,
		trigger:  trigger,
		width:    80,
	}
}

func tick() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg { return tickMsg(t) })
}

// Init starts the spinner and the reachability poll
func (m WatchModel) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, tick())
}

// Update handles messages and updates model state
func (m WatchModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		return m, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q", "esc":
			m.quitting = true
			return m, tea.Quit
		case "s":
			if m.trigger != nil {
				m.trigger()
			}
		}
		return m, nil

	case tickMsg:
		if m.online != nil {
			m.isOnline = m.online()
		}
		return m, tick()

	case ResultMsg:
		m.cycles++
		m.last = msg.Result
		line := fmt.Sprintf("%s  %s", msg.Result.StartedAt.Local().Format("15:04:05"), msg.Result.Summary())
		m.history = append([]string{line}, m.history...)
		if len(m.history) > historySize {
			m.history = m.history[:historySize]
		}
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}
	return m, nil
}

// View renders the UI
func (m WatchModel) View() string {
	if m.quitting {
		return ""
	}

	var b strings.Builder
	state := errStyle.Render("offline")
	if m.isOnline {
		state = okStyle.Render("online")
	}
	fmt.Fprintf(&b, "%s %s %s\n", m.spinner.View(), headerStyle.Render("Watching for changes"), state)
	b.WriteString(dimStyle.Render(fmt.Sprintf("every %s · %d cycles", m.interval, m.cycles)))
	b.WriteString("\n\n")

	if m.last == nil {
		b.WriteString(dimStyle.Render("No cycle yet."))
		b.WriteString("\n")
	} else {
		if m.last.Success {
			b.WriteString(okStyle.Render("Last cycle succeeded") + "\n")
		} else {
			b.WriteString(errStyle.Render("Last cycle had failures") + "\n")
		}
		for _, line := range m.history {
			b.WriteString("  " + truncate(line, max(20, m.width-4)) + "\n")
		}
		for _, warn := range m.last.Warnings {
			b.WriteString(warnStyle.Render("  ! "+warn) + "\n")
		}
	}

	b.WriteString("\n")
	b.WriteString(dimStyle.Render("s: sync now • q: quit"))
	return b.String()
}

// Cycles returns how many results the model has received
func (m WatchModel) Cycles() int {
	return m.cycles
}

// NewWatchProgram wraps m in a program. The caller runs it and sends
// ResultMsg values through it.
func NewWatchProgram(m WatchModel) *tea.Program {
	return tea.NewProgram(m)
}
