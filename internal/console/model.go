// Package console is a terminal renderer for the displayed alerts. It lists
// what the operator is currently being shown and turns key presses into
// actions for the action bridge.
package console

import (
	"context"
	"fmt"
	"time"

	"github.com/charmbracelet/bubbles/cursor"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/nixlim/zbx-alerting/internal/alerts"
	"github.com/nixlim/zbx-alerting/internal/display"
	"github.com/nixlim/zbx-alerting/internal/problem"
)

type tickMsg time.Time

// alertMsg announces that an alert was rendered.
type alertMsg alerts.Alert

// actionSentMsg reports whether an action reached the sink.
type actionSentMsg struct {
	action problem.Action
	ok     bool
}

type EntrySource interface {
	List() []display.Entry
}

type Model struct {
	width    int
	height   int
	keys     KeyMap
	quitting bool

	ctx     context.Context
	source  EntrySource
	sink    alerts.ActionSink
	entries []display.Entry
	cursor  int

	allowUnack  bool
	refreshRate time.Duration

	// composing is set while the ack message prompt is open.
	composing     bool
	composeTarget string
	input         textinput.Model

	status string

	onQuit func()
}

type ModelOption func(*Model)

func WithContext(ctx context.Context) ModelOption {
	return func(m *Model) { m.ctx = ctx }
}

func WithAllowUnack(allow bool) ModelOption {
	return func(m *Model) { m.allowUnack = allow }
}

func WithOnQuit(fn func()) ModelOption {
	return func(m *Model) { m.onQuit = fn }
}

func NewModel(source EntrySource, sink alerts.ActionSink, opts ...ModelOption) Model {
	input := textinput.New()
	input.Placeholder = "optional message"
	input.CharLimit = 255
	input.Prompt = "message> "
	input.Cursor.SetMode(cursor.CursorStatic)

	m := Model{
		keys:        DefaultKeyMap(),
		ctx:         context.Background(),
		source:      source,
		sink:        sink,
		allowUnack:  true,
		refreshRate: time.Second,
		input:       input,
	}
	for _, opt := range opts {
		opt(&m)
	}
	m.refresh()
	return m
}

func (m Model) Init() tea.Cmd {
	return m.tickCmd()
}

func (m Model) tickCmd() tea.Cmd {
	return tea.Tick(m.refreshRate, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case tickMsg:
		m.refresh()
		return m, m.tickCmd()

	case alertMsg:
		m.refresh()
		m.status = "new: " + msg.Summary
		return m, nil

	case actionSentMsg:
		if msg.ok {
			m.status = fmt.Sprintf("%s sent for event #%s", msg.action.Kind, msg.action.EventID)
		} else {
			m.status = fmt.Sprintf("%s for event #%s was not sent", msg.action.Kind, msg.action.EventID)
		}
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)
	}

	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.composing {
		return m.handleComposeKey(msg)
	}

	switch {
	case key.Matches(msg, m.keys.Quit):
		m.quitting = true
		if m.onQuit != nil {
			m.onQuit()
		}
		return m, tea.Quit

	case key.Matches(msg, m.keys.Up):
		if m.cursor > 0 {
			m.cursor--
		}
		return m, nil

	case key.Matches(msg, m.keys.Down):
		if m.cursor < len(m.entries)-1 {
			m.cursor++
		}
		return m, nil
	}

	e, ok := m.selected()
	if !ok {
		return m, nil
	}

	switch {
	case key.Matches(msg, m.keys.Ack):
		if e.Problem.Acknowledged {
			m.status = fmt.Sprintf("event #%s is already acknowledged", e.Problem.EventID)
			return m, nil
		}
		return m, m.submit(problem.Action{EventID: e.Problem.EventID, Kind: problem.ActionAcknowledge})

	case key.Matches(msg, m.keys.AckMessage):
		if e.Problem.Acknowledged {
			m.status = fmt.Sprintf("event #%s is already acknowledged", e.Problem.EventID)
			return m, nil
		}
		m.composing = true
		m.composeTarget = e.Problem.EventID
		m.input.SetValue("")
		return m, m.input.Focus()

	case key.Matches(msg, m.keys.Unack):
		if !m.allowUnack {
			m.status = "unacknowledge is disabled"
			return m, nil
		}
		if !e.Problem.Acknowledged {
			m.status = fmt.Sprintf("event #%s is not acknowledged", e.Problem.EventID)
			return m, nil
		}
		return m, m.submit(problem.Action{EventID: e.Problem.EventID, Kind: problem.ActionUnacknowledge})

	case key.Matches(msg, m.keys.Open):
		return m, m.submit(problem.Action{EventID: e.Problem.EventID, Kind: problem.ActionOpen})

	case key.Matches(msg, m.keys.Dismiss):
		return m, m.submit(problem.Action{EventID: e.Problem.EventID, Kind: problem.ActionDismiss})
	}

	return m, nil
}

func (m Model) handleComposeKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Escape):
		m.composing = false
		m.input.Blur()
		m.status = "acknowledge cancelled"
		return m, nil

	case key.Matches(msg, m.keys.Enter):
		a := problem.Action{
			EventID: m.composeTarget,
			Kind:    problem.ActionAcknowledge,
			Message: m.input.Value(),
		}
		m.composing = false
		m.composeTarget = ""
		m.input.Blur()
		return m, m.submit(a)
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

// submit hands a to the sink off the update loop.
func (m Model) submit(a problem.Action) tea.Cmd {
	sink, ctx := m.sink, m.ctx
	return func() tea.Msg {
		ok := sink != nil && sink.Submit(ctx, a)
		return actionSentMsg{action: a, ok: ok}
	}
}

func (m *Model) refresh() {
	if m.source == nil {
		return
	}
	m.entries = m.source.List()
	if m.cursor >= len(m.entries) {
		m.cursor = len(m.entries) - 1
	}
	if m.cursor < 0 {
		m.cursor = 0
	}
}

func (m Model) selected() (display.Entry, bool) {
	if m.cursor < 0 || m.cursor >= len(m.entries) {
		return display.Entry{}, false
	}
	return m.entries[m.cursor], true
}
