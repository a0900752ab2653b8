package tui

import (
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"

	"github.com/ctenopoma/issuer/pkg/model"
)

var zombie = model.Decision{Mode: model.ModeZombiePending, Owner: "alice", AgeHours: 1.5}

func press(m ZombieModel, keys ...tea.KeyMsg) (ZombieModel, tea.Cmd) {
	var cmd tea.Cmd
	for _, k := range keys {
		var next tea.Model
		next, cmd = m.Update(k)
		m = next.(ZombieModel)
	}
	return m, cmd
}

func runeKey(r rune) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{r}}
}

func TestZombiePrompt_DefaultIsViewOnly(t *testing.T) {
	m, cmd := press(NewZombiePrompt(zombie), tea.KeyMsg{Type: tea.KeyEnter})
	assert.NotNil(t, cmd)
	assert.True(t, m.Confirmed())
	assert.Equal(t, model.ChoiceViewOnly, m.Choice())
}

func TestZombiePrompt_MoveAndConfirmForce(t *testing.T) {
	m, _ := press(NewZombiePrompt(zombie), tea.KeyMsg{Type: tea.KeyDown}, tea.KeyMsg{Type: tea.KeyEnter})
	assert.Equal(t, model.ChoiceForce, m.Choice())
}

func TestZombiePrompt_Shortcuts(t *testing.T) {
	m, _ := press(NewZombiePrompt(zombie), runeKey('f'))
	assert.Equal(t, model.ChoiceForce, m.Choice())

	m, _ = press(NewZombiePrompt(zombie), tea.KeyMsg{Type: tea.KeyDown}, runeKey('v'))
	assert.Equal(t, model.ChoiceViewOnly, m.Choice())
}

func TestZombiePrompt_QuitMeansViewOnly(t *testing.T) {
	m, _ := press(NewZombiePrompt(zombie), tea.KeyMsg{Type: tea.KeyDown}, tea.KeyMsg{Type: tea.KeyEsc})
	assert.False(t, m.Confirmed())
	assert.Equal(t, model.ChoiceViewOnly, m.Choice())
	assert.Empty(t, m.View())
}

func TestZombiePrompt_View(t *testing.T) {
	view := NewZombiePrompt(zombie).View()
	assert.Contains(t, view, "alice")
	assert.Contains(t, view, "1.5 hours")
	assert.Contains(t, view, "read-only")
}
