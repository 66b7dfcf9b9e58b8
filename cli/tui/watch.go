package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/lodeworks/sluice/types"
)

// EventsMsg delivers a batch of extraction events to the watch view.
type EventsMsg []types.Event

// DoneMsg signals end of session with the final outcome label.
type DoneMsg struct {
	Outcome string
}

// componentRow is one line of the live component table.
type componentRow struct {
	name     string
	position string
	bytes    int
	state    string
	compound bool
}

// WatchModel renders extraction progress as events arrive.
type WatchModel struct {
	sessionID string
	events    <-chan tea.Msg

	spin     spinner.Model
	order    []string
	rows     map[string]*componentRow
	errors   []string
	outcome  string
	width    int
	quitting bool
}

// NewWatchModel creates a watch model fed from the given channel. The
// producer closes the stream by sending a DoneMsg.
func NewWatchModel(sessionID string, events <-chan tea.Msg) WatchModel {
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = StreamingStyle
	return WatchModel{
		sessionID: sessionID,
		events:    events,
		spin:      sp,
		rows:      make(map[string]*componentRow),
	}
}

// keyMap defines key bindings.
type keyMap struct {
	Quit key.Binding
}

var keys = keyMap{
	Quit: key.NewBinding(
		key.WithKeys("q", "ctrl+c"),
		key.WithHelp("q", "quit"),
	),
}

// waitForEvent reads the next message off the event channel.
func (m WatchModel) waitForEvent() tea.Cmd {
	return func() tea.Msg {
		msg, ok := <-m.events
		if !ok {
			return DoneMsg{Outcome: "closed"}
		}
		return msg
	}
}

// Init implements tea.Model.
func (m WatchModel) Init() tea.Cmd {
	return tea.Batch(m.spin.Tick, m.waitForEvent())
}

// Update implements tea.Model.
func (m WatchModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		return m, nil

	case tea.KeyMsg:
		if key.Matches(msg, keys.Quit) {
			m.quitting = true
			return m, tea.Quit
		}
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spin, cmd = m.spin.Update(msg)
		return m, cmd

	case EventsMsg:
		for _, e := range msg {
			m.apply(e)
		}
		return m, m.waitForEvent()

	case DoneMsg:
		m.outcome = msg.Outcome
		return m, tea.Quit
	}

	return m, nil
}

// apply folds one extraction event into the table.
func (m *WatchModel) apply(e types.Event) {
	switch e.Type {
	case types.EventTypeStart:
		if _, seen := m.rows[e.ComponentID]; !seen {
			m.order = append(m.order, e.ComponentID)
		}
		m.rows[e.ComponentID] = &componentRow{
			name:     e.ComponentName,
			position: string(e.Position),
			state:    "streaming",
		}

	case types.EventTypeDelta:
		if row, ok := m.rows[e.ComponentID]; ok {
			row.bytes += len(e.Text)
		}

	case types.EventTypeStop:
		if row, ok := m.rows[e.ComponentID]; ok {
			row.compound = e.IsCompoundComplete
			if e.IsCompoundComplete {
				row.state = "complete"
			} else {
				row.state = "incomplete"
			}
		}

	case types.EventTypeError:
		m.errors = append(m.errors, fmt.Sprintf("%s: %s", e.Code, e.Message))
	}
}

// View implements tea.Model.
func (m WatchModel) View() string {
	if m.quitting {
		return ""
	}

	var b strings.Builder
	b.WriteString(TitleStyle.Render("sluice extract — " + m.sessionID))
	b.WriteString("\n")

	if m.outcome == "" {
		b.WriteString(m.spin.View() + " streaming\n\n")
	} else {
		b.WriteString(CompleteStyle.Render("finished: "+m.outcome) + "\n\n")
	}

	b.WriteString(HeaderStyle.Render(fmt.Sprintf("%-24s %-8s %10s  %s", "COMPONENT", "POSITION", "BYTES", "STATE")))
	b.WriteString("\n")
	if len(m.order) == 0 {
		b.WriteString(HelpStyle.Render("(no components yet)") + "\n")
	}
	for _, id := range m.order {
		row := m.rows[id]
		line := fmt.Sprintf("%-24s %-8s %10d  %s", row.name, row.position, row.bytes, row.state)
		b.WriteString(stateStyle(row.state).Render(line))
		b.WriteString("\n")
	}

	if len(m.errors) > 0 {
		b.WriteString("\n")
		for _, e := range m.errors {
			b.WriteString(ErrorStyle.Render("! "+e) + "\n")
		}
	}

	b.WriteString(HelpStyle.Render("Press q or Ctrl+C to quit"))
	return BoxStyle.Render(b.String())
}

// RunWatch runs the watch TUI until the session finishes or the user quits.
func RunWatch(sessionID string, events <-chan tea.Msg) error {
	p := tea.NewProgram(NewWatchModel(sessionID, events))
	_, err := p.Run()
	return err
}
