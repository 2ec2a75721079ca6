package command

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/nhle/autohub/internal/theme"
)

// CommandMsg is emitted when the user executes a plain command.
type CommandMsg string

// JobMsg is emitted for a job command such as "ready #15".
type JobMsg struct {
	Verb      string
	BookingID int
}

// CancelMsg is emitted when the user leaves the palette without a command.
type CancelMsg struct{}

// Model is the command palette. Besides the plain commands it understands
// "<verb> <booking id>" for every job verb it was given.
type Model struct {
	input  textinput.Model
	verbs  []string
	err    string
	width  int
	height int
}

// New creates a command palette completing commands. jobVerbs may be empty
// when the viewer cannot update jobs.
func New(commands, jobVerbs []string, width, height int) Model {
	suggestions := append([]string(nil), commands...)
	for _, v := range jobVerbs {
		suggestions = append(suggestions, v+" #")
	}

	ti := textinput.New()
	ti.Placeholder = "type a command..."
	ti.Prompt = ": "
	ti.ShowSuggestions = true
	ti.SetSuggestions(suggestions)
	ti.Focus()
	ti.Width = width - 6

	return Model{
		input:  ti,
		verbs:  jobVerbs,
		width:  width,
		height: height,
	}
}

// Update handles messages for the command palette.
func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	if key, ok := msg.(tea.KeyMsg); ok {
		switch key.String() {
		case "enter":
			return m.submit()
		case "esc":
			m.reset()
			return m, func() tea.Msg { return CancelMsg{} }
		}
		m.err = ""
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

// submit turns the input into a message. A job command with a bad booking
// id keeps the palette open with an error.
func (m Model) submit() (Model, tea.Cmd) {
	line := strings.ToLower(strings.TrimSpace(m.input.Value()))
	if line == "" {
		return m, nil
	}

	if verb, arg, ok := m.jobCommand(line); ok {
		id, err := strconv.Atoi(strings.TrimPrefix(arg, "#"))
		if err != nil || id <= 0 {
			m.err = fmt.Sprintf("Invalid booking id: %s", arg)
			return m, nil
		}
		m.reset()
		return m, func() tea.Msg { return JobMsg{Verb: verb, BookingID: id} }
	}

	m.reset()
	return m, func() tea.Msg { return CommandMsg(line) }
}

func (m Model) jobCommand(line string) (verb, arg string, ok bool) {
	fields := strings.Fields(line)
	if len(fields) != 2 {
		return "", "", false
	}
	for _, v := range m.verbs {
		if fields[0] == v {
			return v, fields[1], true
		}
	}
	return "", "", false
}

func (m *Model) reset() {
	m.input.Reset()
	m.err = ""
}

// View renders the command palette.
func (m Model) View() string {
	titleStyle := lipgloss.NewStyle().
		Bold(true).
		Foreground(theme.ColorWhite).
		MarginBottom(1)

	lines := []string{titleStyle.Render("Command Palette"), m.input.View()}
	if m.err != "" {
		lines = append(lines, theme.ErrorStyle.Render(m.err))
	}
	if len(m.verbs) > 0 {
		lines = append(lines, theme.DimmedStyle.Render(
			"jobs: "+strings.Join(m.verbs, " | ")+" <booking id>"))
	}

	return theme.DetailPanelStyle.
		Width(m.width - 4).
		Render(lipgloss.JoinVertical(lipgloss.Left, lines...))
}

// SetSize updates the command palette dimensions.
func (m *Model) SetSize(width, height int) {
	m.width = width
	m.height = height
	m.input.Width = width - 6
}

// Focus gives keyboard focus to the text input.
func (m *Model) Focus() tea.Cmd {
	return m.input.Focus()
}
