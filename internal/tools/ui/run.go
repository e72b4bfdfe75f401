package ui

import (
	"context"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

var (
	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("63"))
	okStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	failStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
)

type doneMsg struct {
	details []string
	err     error
}

type model struct {
	title   string
	details []string
	err     error
	done    bool
	action  func(context.Context) ([]string, error)
}

func (m model) Init() tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
		defer cancel()
		details, err := m.action(ctx)
		return doneMsg{details: details, err: err}
	}
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if msg.String() == "ctrl+c" {
			return m, tea.Quit
		}
	case doneMsg:
		m.details = msg.details
		m.err = msg.err
		m.done = true
		return m, tea.Quit
	}
	return m, nil
}

func (m model) View() string {
	var b strings.Builder
	b.WriteString(titleStyle.Render(m.title))
	b.WriteByte('\n')

	switch {
	case !m.done:
		b.WriteString("\nRunning...\n")
		return b.String()
	case m.err != nil:
		b.WriteString(failStyle.Render("FAILED"))
		b.WriteString(": ")
		b.WriteString(m.err.Error())
		b.WriteByte('\n')
	default:
		b.WriteString(okStyle.Render("OK"))
		b.WriteByte('\n')
	}
	for _, d := range m.details {
		b.WriteString("- ")
		b.WriteString(d)
		b.WriteByte('\n')
	}
	return b.String()
}

// Run executes the action behind a minimal progress screen and returns its
// outcome once the program exits.
func Run(title string, action func(context.Context) ([]string, error)) ([]string, error) {
	p := tea.NewProgram(model{title: title, action: action})
	final, err := p.Run()
	if err != nil {
		return nil, err
	}
	res := final.(model)
	return res.details, res.err
}
