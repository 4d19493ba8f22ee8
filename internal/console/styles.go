package console

import (
	"github.com/charmbracelet/lipgloss"
	orchestration "github.com/koscakluka/ema-voiceloop/core"
)

var (
	titleStyle = lipgloss.NewStyle().Bold(true)
	badgeStyle = lipgloss.NewStyle().Padding(0, 1).Bold(true).Foreground(lipgloss.Color("0"))
	errorStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	ackStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	hintStyle  = lipgloss.NewStyle().Faint(true)

	stateColors = map[orchestration.TurnState]lipgloss.Color{
		orchestration.TurnStateIdle:      lipgloss.Color("8"),
		orchestration.TurnStateListening: lipgloss.Color("10"),
		orchestration.TurnStateSpeaking:  lipgloss.Color("12"),
		orchestration.TurnStateDucked:    lipgloss.Color("11"),
	}
)

func stateBadge(state orchestration.TurnState) string {
	return badgeStyle.Background(stateColors[state]).Render(state.String())
}
