package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/wippyai/guest-bridge/proxy"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4")).
			Padding(0, 1)

	nameStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#98FB98"))

	labelStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#87CEEB"))

	selectedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4"))

	resultStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#90EE90"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF6B6B"))

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#666666"))
)

type entry struct {
	name     string
	label    string
	target   *proxy.Proxy
	value    any
	callable bool
}

type modelState int

const (
	stateSelect modelState = iota
	stateInputArgs
	stateShowResult
)

type interactiveModel struct {
	ctx      context.Context
	err      error
	mod      *proxy.Proxy
	module   string
	result   string
	entries  []entry
	input    textinput.Model
	selected int
	state    modelState
}

type loadedMsg struct {
	err     error
	entries []entry
}

type callResultMsg struct {
	err    error
	result string
}

func newInteractiveModel(ctx context.Context, mod *proxy.Proxy, module string) *interactiveModel {
	return &interactiveModel{
		ctx:    ctx,
		mod:    mod,
		module: module,
		state:  stateSelect,
	}
}

func (m *interactiveModel) Init() tea.Cmd {
	return m.loadEntries
}

func (m *interactiveModel) loadEntries() tea.Msg {
	var entries []entry
	for _, k := range m.mod.Keys() {
		if strings.HasPrefix(k, "$") || strings.HasPrefix(k, "__") {
			continue
		}
		v, err := m.mod.Get(k)
		if err != nil {
			return loadedMsg{err: fmt.Errorf("get %s: %w", k, err)}
		}
		e := entry{name: k, value: v, label: render(v)}
		if p, ok := v.(*proxy.Proxy); ok {
			e.target = p
			e.callable = p.IsCallable() || p.IsClass()
			e.label = p.String()
		}
		entries = append(entries, e)
	}
	if len(entries) == 0 {
		return loadedMsg{err: fmt.Errorf("module %s has no attributes", m.module)}
	}
	return loadedMsg{entries: entries}
}

func (m *interactiveModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c":
			return m, tea.Quit

		case "q":
			if m.state != stateInputArgs {
				return m, tea.Quit
			}

		case "up", "k":
			if m.state == stateSelect && m.selected > 0 {
				m.selected--
			}

		case "down", "j":
			if m.state == stateSelect && m.selected < len(m.entries)-1 {
				m.selected++
			}

		case "enter":
			switch m.state {
			case stateSelect:
				e := m.entries[m.selected]
				if !e.callable {
					m.result = m.describe(e)
					m.state = stateShowResult
					return m, nil
				}
				m.prepareInput()
				m.state = stateInputArgs
				return m, textinput.Blink

			case stateInputArgs:
				return m, m.callEntry

			case stateShowResult:
				m.reset()
			}
			return m, nil

		case "esc":
			if m.state != stateSelect {
				m.reset()
			}
			return m, nil
		}

	case loadedMsg:
		if msg.err != nil {
			m.err = msg.err
			return m, nil
		}
		m.entries = msg.entries

	case callResultMsg:
		m.result = msg.result
		m.err = msg.err
		m.state = stateShowResult
		return m, nil
	}

	if m.state == stateInputArgs {
		var cmd tea.Cmd
		m.input, cmd = m.input.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m *interactiveModel) reset() {
	m.state = stateSelect
	m.result = ""
	m.err = nil
}

func (m *interactiveModel) prepareInput() {
	ti := textinput.New()
	ti.Placeholder = "arguments separated by spaces"
	ti.Prompt = "args: "
	ti.Width = 40
	ti.Focus()
	m.input = ti
}

func (m *interactiveModel) describe(e entry) string {
	if e.target != nil {
		return e.target.Inspect()
	}
	return render(e.value)
}

func (m *interactiveModel) callEntry() tea.Msg {
	e := m.entries[m.selected]
	var args []any
	for _, field := range strings.Fields(m.input.Value()) {
		args = append(args, parseArg(field))
	}
	result, err := e.target.Call(m.ctx, args...)
	if err != nil {
		return callResultMsg{err: err}
	}
	return callResultMsg{result: render(result)}
}

func (m *interactiveModel) View() string {
	if m.err != nil && m.state != stateShowResult {
		return errorStyle.Render(fmt.Sprintf("Error: %v\n\nPress q to quit.", m.err))
	}

	if len(m.entries) == 0 {
		return "Loading module..."
	}

	var b strings.Builder

	b.WriteString(titleStyle.Render("Guest Bridge"))
	b.WriteString(" ")
	b.WriteString(m.module)
	b.WriteString("\n\n")

	switch m.state {
	case stateSelect:
		b.WriteString("Select an attribute:\n\n")
		for i, e := range m.entries {
			line := m.formatEntry(e)
			if i == m.selected {
				b.WriteString(selectedStyle.Render("> " + e.name))
				b.WriteString(" " + labelStyle.Render(e.label))
			} else {
				b.WriteString("  " + line)
			}
			b.WriteString("\n")
		}
		b.WriteString("\n")
		b.WriteString(helpStyle.Render("↑/↓ select • enter open • q quit"))

	case stateInputArgs:
		e := m.entries[m.selected]
		b.WriteString(fmt.Sprintf("Calling %s\n\n", nameStyle.Render(e.name)))
		b.WriteString(m.input.View())
		b.WriteString("\n\n")
		b.WriteString(helpStyle.Render("enter call • esc back"))

	case stateShowResult:
		e := m.entries[m.selected]
		b.WriteString(fmt.Sprintf("%s:\n\n", nameStyle.Render(e.name)))
		if m.err != nil {
			b.WriteString(errorStyle.Render(fmt.Sprintf("Error: %v", m.err)))
		} else {
			b.WriteString(resultStyle.Render(m.result))
		}
		b.WriteString("\n\n")
		b.WriteString(helpStyle.Render("enter continue • q quit"))
	}

	return b.String()
}

func (m *interactiveModel) formatEntry(e entry) string {
	return nameStyle.Render(e.name) + " " + labelStyle.Render(e.label)
}

func runInteractive(ctx context.Context, mod *proxy.Proxy, module string) error {
	p := tea.NewProgram(newInteractiveModel(ctx, mod, module), tea.WithAltScreen(), tea.WithContext(ctx))
	_, err := p.Run()
	return err
}
