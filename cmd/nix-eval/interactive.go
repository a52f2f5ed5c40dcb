package main

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/wippyai/nix-runtime/errors"
	"github.com/wippyai/nix-runtime/runtime"
)

// historySize is how many past evaluations the REPL keeps on screen.
const historySize = 20

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4")).
			Padding(0, 1)

	exprStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#87CEEB"))

	resultStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#90EE90"))

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#666666"))
)

type entry struct {
	err    error
	expr   string
	result string
}

type replModel struct {
	err     error
	rt      *runtime.Runtime
	session *runtime.Session
	history []entry
	input   textinput.Model
	busy    bool
}

type openedMsg struct {
	err     error
	session *runtime.Session
}

type evalMsg struct {
	entry
}

func newReplModel(rt *runtime.Runtime) *replModel {
	ti := textinput.New()
	ti.Prompt = "nix-repl> "
	ti.Placeholder = "expression"
	ti.Width = 60
	ti.Focus()
	return &replModel{rt: rt, input: ti}
}

func (m *replModel) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, m.open)
}

func (m *replModel) open() tea.Msg {
	s, err := m.rt.OpenSession()
	return openedMsg{session: s, err: err}
}

func (m *replModel) eval(expr string) tea.Cmd {
	return func() tea.Msg {
		if strings.TrimSpace(expr) == "" {
			return evalMsg{entry{expr: expr, err: errors.EmptyInput("the prompt")}}
		}
		out, err := m.session.Eval(expr)
		return evalMsg{entry{expr: expr, result: out, err: err}}
	}
}

func (m *replModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "ctrl+d", "esc":
			return m, tea.Quit

		case "enter":
			if m.session == nil || m.busy {
				return m, nil
			}
			expr := m.input.Value()
			if strings.TrimSpace(expr) == ":q" {
				return m, tea.Quit
			}
			m.input.Reset()
			m.busy = true
			return m, m.eval(expr)
		}

	case openedMsg:
		if msg.err != nil {
			m.err = msg.err
			return m, nil
		}
		m.session = msg.session

	case evalMsg:
		m.busy = false
		m.history = append(m.history, msg.entry)
		if len(m.history) > historySize {
			m.history = m.history[len(m.history)-historySize:]
		}
		return m, nil
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m *replModel) View() string {
	if m.err != nil {
		return errorStyle.Render(fmt.Sprintf("error: %s\n\nPress esc to quit.", message(m.err)))
	}
	if m.session == nil {
		return "Opening session..."
	}

	var b strings.Builder
	b.WriteString(titleStyle.Render("nix-eval"))
	b.WriteString(" session ")
	b.WriteString(m.session.ID())
	b.WriteString("\n\n")

	for _, e := range m.history {
		b.WriteString(exprStyle.Render("> " + e.expr))
		b.WriteString("\n")
		if e.err != nil {
			b.WriteString(errorStyle.Render("error: " + message(e.err)))
		} else {
			b.WriteString(resultStyle.Render(e.result))
		}
		b.WriteString("\n")
	}

	b.WriteString(m.input.View())
	b.WriteString("\n\n")
	b.WriteString(helpStyle.Render("enter evaluate • :q or esc quit"))
	return b.String()
}

func message(err error) string {
	if e, ok := errors.As(err); ok {
		return e.Message()
	}
	return err.Error()
}

func runInteractive(rt *runtime.Runtime) error {
	m := newReplModel(rt)
	_, err := tea.NewProgram(m, tea.WithAltScreen()).Run()
	if m.session != nil {
		if cerr := m.session.Close(); err == nil {
			err = cerr
		}
	}
	if err == nil {
		err = m.err
	}
	return err
}
