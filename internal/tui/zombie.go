// Package tui holds the interactive terminal prompts of the issuer CLI.
package tui

import (
	"fmt"
	"io"
	"strings"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/ctenopoma/issuer/pkg/model"
)

type option struct {
	choice model.ZombieChoice
	label  string
}

var zombieOptions = []option{
	{model.ChoiceViewOnly, "Open read-only and leave the lock alone"},
	{model.ChoiceForce, "Take over the lock and edit"},
}

// ZombieModel asks whether to take over an abandoned lock. The cursor starts
// on the read-only option; quitting without confirming also means read-only.
type ZombieModel struct {
	decision model.Decision
	cursor   int
	done     bool
	quitting bool
}

// NewZombiePrompt creates a prompt for a zombie-pending decision.
func NewZombiePrompt(d model.Decision) ZombieModel {
	return ZombieModel{decision: d}
}

func (m ZombieModel) Init() tea.Cmd {
	return nil
}

func (m ZombieModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	key, ok := msg.(tea.KeyMsg)
	if !ok {
		return m, nil
	}
	switch key.String() {
	case "q", "esc", "ctrl+c":
		m.quitting = true
		return m, tea.Quit
	case "up", "k":
		if m.cursor > 0 {
			m.cursor--
		}
	case "down", "j", "tab":
		if m.cursor < len(zombieOptions)-1 {
			m.cursor++
		}
	case "f", "y":
		m.cursor = 1
		m.done = true
		return m, tea.Quit
	case "v", "n":
		m.cursor = 0
		m.done = true
		return m, tea.Quit
	case "enter":
		m.done = true
		return m, tea.Quit
	}
	return m, nil
}

func (m ZombieModel) View() string {
	if m.done || m.quitting {
		return ""
	}

	var b strings.Builder
	b.WriteString(TitleStyle.Render("The store is locked by a session that looks abandoned"))
	b.WriteString("\n")
	b.WriteString(BodyStyle.Render(fmt.Sprintf(
		"%s took the lock %.1f hours ago and has not refreshed it since.\n"+
			"Only take over if you are sure they are no longer editing.",
		m.decision.Owner, m.decision.AgeHours)))
	b.WriteString("\n\n")

	for i, opt := range zombieOptions {
		line := "  " + opt.label
		if i == m.cursor {
			style := SelectedStyle
			if opt.choice == model.ChoiceForce {
				style = DangerStyle
			}
			line = style.Render("> " + opt.label)
		}
		b.WriteString(line + "\n")
	}

	b.WriteString(HelpStyle.Render("up/down: move | enter: confirm | f: force | v: view only | q: view only"))
	return b.String()
}

// Choice returns the confirmed option, or view-only when the prompt was
// dismissed.
func (m ZombieModel) Choice() model.ZombieChoice {
	if !m.done {
		return model.ChoiceViewOnly
	}
	return zombieOptions[m.cursor].choice
}

// Confirmed reports whether the user picked an option rather than quitting.
func (m ZombieModel) Confirmed() bool {
	return m.done
}

// PromptZombie runs the prompt on the given terminal streams.
func PromptZombie(d model.Decision, in io.Reader, out io.Writer) (model.ZombieChoice, error) {
	p := tea.NewProgram(NewZombiePrompt(d), tea.WithInput(in), tea.WithOutput(out))
	final, err := p.Run()
	if err != nil {
		return model.ChoiceViewOnly, fmt.Errorf("zombie prompt: %w", err)
	}
	return final.(ZombieModel).Choice(), nil
}
