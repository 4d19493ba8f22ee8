// Package console is an interactive terminal front end: it shows the turn
// state and the event stream and runs typed commands.
package console

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/koscakluka/ema-voiceloop/core/events"
	"github.com/koscakluka/ema-voiceloop/internal/commands"
	"github.com/muesli/reflow/wordwrap"
)

const (
	maxLogLines     = 500
	subscribeBuffer = 64
	headerHeight    = 2
	footerHeight    = 2
)

type (
	eventMsg        struct{ event events.Event }
	streamClosedMsg struct{}
	resultMsg       struct {
		name   commands.Name
		result commands.Result
		err    error
	}
)

// Model is the bubbletea model of the console.
type Model struct {
	dispatcher   *commands.Dispatcher
	orchestrator commands.Orchestrator

	stream      <-chan events.Event
	unsubscribe func()

	input    textinput.Model
	viewport viewport.Model
	lines    []string
	width    int
	ready    bool
	now      func() time.Time
}

func New(dispatcher *commands.Dispatcher, orchestrator commands.Orchestrator) Model {
	input := textinput.New()
	input.Placeholder = "start, confirm Delete it? | yes | no, help"
	input.Prompt = "> "
	input.Focus()

	m := Model{
		dispatcher:   dispatcher,
		orchestrator: orchestrator,
		input:        input,
		viewport:     viewport.New(80, 20),
		now:          time.Now,
	}
	m.subscribe()
	return m
}

// Run drives the console until the user quits or ctx ends.
func Run(ctx context.Context, dispatcher *commands.Dispatcher, orchestrator commands.Orchestrator) error {
	program := tea.NewProgram(New(dispatcher, orchestrator), tea.WithAltScreen(), tea.WithContext(ctx))
	final, err := program.Run()
	if model, ok := final.(Model); ok {
		model.close()
	}
	if err != nil && !errors.Is(err, tea.ErrProgramKilled) {
		return fmt.Errorf("console failed: %w", err)
	}
	return nil
}

func (m *Model) subscribe() {
	m.stream, m.unsubscribe = m.orchestrator.Subscribe(subscribeBuffer)
}

func (m Model) close() {
	if m.unsubscribe != nil {
		m.unsubscribe()
	}
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, waitForEvent(m.stream))
}

func waitForEvent(stream <-chan events.Event) tea.Cmd {
	if stream == nil {
		return nil
	}
	return func() tea.Msg {
		event, ok := <-stream
		if !ok {
			return streamClosedMsg{}
		}
		return eventMsg{event: event}
	}
}

func (m Model) runCommand(inv invocation) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		result, err := m.dispatcher.Run(ctx, inv.name, inv.args)
		return resultMsg{name: inv.name, result: result, err: err}
	}
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.viewport.Width = msg.Width
		m.viewport.Height = max(msg.Height-headerHeight-footerHeight, 1)
		m.input.Width = max(msg.Width-4, 10)
		m.ready = true
		m.refresh()

	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyEsc:
			return m, tea.Quit
		case tea.KeyEnter:
			line := m.input.Value()
			m.input.SetValue("")
			cmd, quit := m.submit(line)
			if quit {
				return m, tea.Quit
			}
			if cmd != nil {
				cmds = append(cmds, cmd)
			}
		}

	case eventMsg:
		if line, ok := describeEvent(msg.event); ok {
			m.appendLine(line, hintStyle.Render(m.timestamp(msg.event.Timestamp())))
		}
		cmds = append(cmds, waitForEvent(m.stream))

	case streamClosedMsg:
		m.stream = nil
		m.unsubscribe = nil

	case resultMsg:
		if msg.err != nil {
			m.appendLine(errorStyle.Render(msg.err.Error()), "")
			break
		}
		if msg.result.Ack != "" {
			m.appendLine(ackStyle.Render(msg.result.Ack), "")
		}
		if msg.name == commands.StartService && m.stream == nil {
			m.subscribe()
			cmds = append(cmds, waitForEvent(m.stream))
		}
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	cmds = append(cmds, cmd)
	m.viewport, cmd = m.viewport.Update(msg)
	cmds = append(cmds, cmd)

	return m, tea.Batch(cmds...)
}

// submit parses a typed line. It reports whether the console should quit.
func (m *Model) submit(line string) (tea.Cmd, bool) {
	trimmed := strings.TrimSpace(line)
	switch strings.ToLower(trimmed) {
	case "quit", "exit":
		return nil, true
	case "help":
		m.appendLine(hintStyle.Render(usage), "")
		return nil, false
	}

	inv, err := parseLine(trimmed)
	if errors.Is(err, ErrEmptyLine) {
		return nil, false
	}
	if err != nil {
		m.appendLine(errorStyle.Render(err.Error()), "")
		return nil, false
	}
	return m.runCommand(inv), false
}

func (m Model) timestamp(t time.Time) string {
	if t.IsZero() {
		t = m.now()
	}
	return t.Format("15:04:05")
}

func (m *Model) appendLine(line, prefix string) {
	if prefix != "" {
		line = prefix + " " + line
	}
	m.lines = append(m.lines, line)
	if len(m.lines) > maxLogLines {
		m.lines = m.lines[len(m.lines)-maxLogLines:]
	}
	m.refresh()
}

func (m *Model) refresh() {
	content := strings.Join(m.lines, "\n")
	if m.width > 0 {
		content = wordwrap.String(content, m.width)
	}
	m.viewport.SetContent(content)
	m.viewport.GotoBottom()
}

func (m Model) View() string {
	if !m.ready {
		return "starting console..."
	}

	header := titleStyle.Render("voiceloop") + " " + stateBadge(m.orchestrator.TurnState())
	if session, ok := m.orchestrator.Session(); ok && !session.IsResolved() {
		header += hintStyle.Render(fmt.Sprintf("  %q %d/%d", session.ConfirmationText, session.TriesUsed, session.MaxTries))
	}

	return header + "\n\n" + m.viewport.View() + "\n\n" + m.input.View()
}
