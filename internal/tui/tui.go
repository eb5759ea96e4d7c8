// Package tui implements the interactive questions of the CLI with
// bubbletea programs.
package tui

import (
	"context"
	stderrors "errors"
	"io"
	"os"

	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/hpungsan/testsmith/internal/errors"
)

type styles struct {
	title  lipgloss.Style
	prompt lipgloss.Style
	help   lipgloss.Style
}

func newStyles() styles {
	return styles{
		title: lipgloss.NewStyle().
			Foreground(lipgloss.Color("#AD8CFF")).
			Bold(true),
		prompt: lipgloss.NewStyle().
			Foreground(lipgloss.Color("#00E6B8")),
		help: lipgloss.NewStyle().
			Foreground(lipgloss.Color("#777777")),
	}
}

// choiceItem is one option of a picker.
type choiceItem string

func (c choiceItem) Title() string       { return string(c) }
func (c choiceItem) Description() string { return "" }
func (c choiceItem) FilterValue() string { return string(c) }

// chooseModel picks one option from a list.
type chooseModel struct {
	list      list.Model
	choice    string
	cancelled bool
}

func newChooseModel(title string, options []string) chooseModel {
	items := make([]list.Item, len(options))
	for i, o := range options {
		items[i] = choiceItem(o)
	}
	delegate := list.NewDefaultDelegate()
	delegate.ShowDescription = false
	delegate.SetSpacing(0)

	height := len(options) + 6
	if height > 20 {
		height = 20
	}
	l := list.New(items, delegate, 72, height)
	l.Title = title
	l.Styles.Title = newStyles().title
	l.SetShowHelp(false)
	l.SetShowStatusBar(false)
	l.SetFilteringEnabled(len(options) > 10)
	return chooseModel{list: l}
}

func (m chooseModel) Init() tea.Cmd { return nil }

func (m chooseModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.list.SetWidth(msg.Width)
		return m, nil
	case tea.KeyMsg:
		if m.list.FilterState() == list.Filtering {
			break
		}
		switch msg.String() {
		case "ctrl+c", "esc", "q":
			m.cancelled = true
			return m, tea.Quit
		case "enter":
			if item, ok := m.list.SelectedItem().(choiceItem); ok {
				m.choice = string(item)
				return m, tea.Quit
			}
		}
	}
	var cmd tea.Cmd
	m.list, cmd = m.list.Update(msg)
	return m, cmd
}

func (m chooseModel) View() string {
	if m.choice != "" || m.cancelled {
		return ""
	}
	return m.list.View()
}

// inputModel reads one line of text. An empty answer takes the placeholder.
type inputModel struct {
	prompt    string
	input     textinput.Model
	value     string
	done      bool
	cancelled bool
	style     styles
}

func newInputModel(prompt, placeholder string) inputModel {
	ti := textinput.New()
	ti.Placeholder = placeholder
	ti.Width = 60
	ti.Focus()
	return inputModel{prompt: prompt, input: ti, style: newStyles()}
}

func (m inputModel) Init() tea.Cmd { return textinput.Blink }

func (m inputModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	if key, ok := msg.(tea.KeyMsg); ok {
		switch key.String() {
		case "ctrl+c", "esc":
			m.cancelled = true
			return m, tea.Quit
		case "enter":
			m.value = m.input.Value()
			if m.value == "" {
				m.value = m.input.Placeholder
			}
			m.done = true
			return m, tea.Quit
		}
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m inputModel) View() string {
	if m.done || m.cancelled {
		return ""
	}
	return m.style.prompt.Render(m.prompt) + "\n" + m.input.View() + "\n" + m.style.help.Render("enter to confirm, esc to cancel") + "\n"
}

// Terminal asks questions on a terminal.
type Terminal struct {
	in  io.Reader
	out io.Writer
}

// NewTerminal returns a Terminal reading in and drawing to out. Nil values
// use stdin and stderr, keeping stdout free for generated output.
func NewTerminal(in io.Reader, out io.Writer) *Terminal {
	if in == nil {
		in = os.Stdin
	}
	if out == nil {
		out = os.Stderr
	}
	return &Terminal{in: in, out: out}
}

func (t *Terminal) run(ctx context.Context, m tea.Model) (tea.Model, error) {
	p := tea.NewProgram(m, tea.WithInput(t.in), tea.WithOutput(t.out), tea.WithContext(ctx))
	final, err := p.Run()
	if err != nil {
		if ctx.Err() != nil || stderrors.Is(err, tea.ErrProgramKilled) {
			return nil, errors.NewCancelled("prompt")
		}
		return nil, errors.NewInternal(err)
	}
	return final, nil
}

// Choose shows a picker. ok is false when the user dismissed it.
func (t *Terminal) Choose(ctx context.Context, title string, options []string) (string, bool, error) {
	if len(options) == 0 {
		return "", false, nil
	}
	final, err := t.run(ctx, newChooseModel(title, options))
	if err != nil {
		return "", false, err
	}
	m := final.(chooseModel)
	if m.cancelled || m.choice == "" {
		return "", false, nil
	}
	return m.choice, true, nil
}

// Confirm asks a yes/no question. Dismissal counts as no.
func (t *Terminal) Confirm(ctx context.Context, question string) (bool, error) {
	choice, ok, err := t.Choose(ctx, question, []string{"Yes", "No"})
	if err != nil {
		return false, err
	}
	return ok && choice == "Yes", nil
}

// Input asks for a line of text.
func (t *Terminal) Input(ctx context.Context, prompt, placeholder string) (string, bool, error) {
	final, err := t.run(ctx, newInputModel(prompt, placeholder))
	if err != nil {
		return "", false, err
	}
	m := final.(inputModel)
	if m.cancelled {
		return "", false, nil
	}
	return m.value, true, nil
}
