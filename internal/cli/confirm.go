package cli

import (
	"io"

	tea "github.com/charmbracelet/bubbletea"
)

// confirmModel is a yes/no prompt. Anything but "y" declines.
type confirmModel struct {
	prompt   string
	answered bool
	yes      bool
}

func (m confirmModel) Init() tea.Cmd { return nil }

func (m confirmModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	key, ok := msg.(tea.KeyMsg)
	if !ok {
		return m, nil
	}
	switch key.String() {
	case "y", "Y":
		m.answered, m.yes = true, true
		return m, tea.Quit
	case "n", "N", "enter", "esc", "q", "ctrl+c":
		m.answered, m.yes = true, false
		return m, tea.Quit
	}
	return m, nil
}

func (m confirmModel) View() string {
	if m.answered {
		if m.yes {
			return m.prompt + " yes\n"
		}
		return m.prompt + " no\n"
	}
	return m.prompt + " " + warnStyle.Render("[y/N]") + " "
}

func confirm(in io.Reader, out io.Writer, prompt string) (bool, error) {
	final, err := tea.NewProgram(confirmModel{prompt: prompt}, tea.WithInput(in), tea.WithOutput(out)).Run()
	if err != nil {
		return false, err
	}
	m, ok := final.(confirmModel)
	return ok && m.yes, nil
}
