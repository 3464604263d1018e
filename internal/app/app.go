// Package app is the terminal client: one screen that renders the current
// session output and turns key presses into tutoring events.
package app

import (
	"context"
	"errors"
	"fmt"
	"os"

	tea "charm.land/bubbletea/v2"

	"github.com/abhisek/alis/internal/agents"
	"github.com/abhisek/alis/internal/tutor"
	"github.com/abhisek/alis/internal/ui/components"
	"github.com/abhisek/alis/internal/ui/layout"
)

// Client is the session API the terminal drives. *session.Dispatcher
// implements it.
type Client interface {
	Dispatch(ctx context.Context, key string, cmd tutor.Command) (tutor.Output, error)
	Get(ctx context.Context, key string) (tutor.Output, error)
}

// Options configures the terminal client.
type Options struct {
	Client     Client
	SessionKey string
	Profile    *agents.Profile
}

type mode int

const (
	modeMenu mode = iota
	modeInput
	modeQuiz
	modeReview
)

type (
	// sendMsg asks the model to dispatch an event.
	sendMsg tutor.Command

	// askMsg switches to text input; the value is sent as event.
	askMsg struct {
		label string
		event tutor.Event
	}

	// outputMsg carries a dispatch or load result.
	outputMsg struct {
		out tutor.Output
		err error
	}

	newGoalMsg struct{}
)

// AppModel is the root Bubble Tea model.
type AppModel struct {
	client  Client
	key     string
	profile *agents.Profile

	out  tutor.Output
	mode mode
	busy bool
	err  error

	menu       components.Menu
	input      components.TextInput
	inputEvent tutor.Event
	quiz       quiz
	cursor     int

	width  int
	height int
}

func newAppModel(opts Options) AppModel {
	m := AppModel{
		client:  opts.Client,
		key:     opts.SessionKey,
		profile: opts.Profile,
		out:     tutor.Output{SessionKey: opts.SessionKey, Phase: tutor.PhaseGoalSetting},
	}
	m.setup()
	return m
}

func (m AppModel) Init() tea.Cmd {
	client, key := m.client, m.key
	return func() tea.Msg {
		out, err := client.Get(context.Background(), key)
		if tutor.KindOf(err) == tutor.KindNotFound {
			return nil
		}
		return outputMsg{out: out, err: err}
	}
}

func (m AppModel) send(cmd tutor.Command) tea.Cmd {
	client, key := m.client, m.key
	return func() tea.Msg {
		out, err := client.Dispatch(context.Background(), key, cmd)
		return outputMsg{out: out, err: err}
	}
}

func sendCmd(event tutor.Event, p tutor.Payload) func() tea.Cmd {
	return func() tea.Cmd {
		return func() tea.Msg { return sendMsg{Event: event, Payload: p} }
	}
}

func askCmd(label string, event tutor.Event) func() tea.Cmd {
	return func() tea.Cmd {
		return func() tea.Msg { return askMsg{label: label, event: event} }
	}
}

// setup rebuilds the interactive widget for the current phase.
func (m *AppModel) setup() {
	abandon := components.MenuItem{Label: "Abandon this goal", Action: sendCmd(tutor.EventGoalAbandoned, tutor.Payload{})}

	switch m.out.Phase {
	case tutor.PhaseGoalSetting:
		m.ask("What do you want to learn?", tutor.EventGoalConfirmed)
	case tutor.PhasePriorKnowledgeTest:
		m.mode = modeQuiz
		m.quiz = newQuiz(tutor.EventPretestSubmitted, m.out.Pretest)
	case tutor.PhasePathReview:
		m.mode = modeReview
		m.cursor = min(m.cursor, max(len(m.out.Path)-1, 0))
	case tutor.PhaseLearning:
		m.setMenu(
			components.MenuItem{Label: "Show me the material", Action: sendCmd(tutor.EventMaterialRequested, tutor.Payload{})},
			components.MenuItem{Label: "Ask the tutor", Action: askCmd("Your question:", tutor.EventMessageSent)},
			components.MenuItem{Label: "I understand, test me", Action: sendCmd(tutor.EventConceptUnderstood, tutor.Payload{})},
			components.MenuItem{Label: "Something is missing", Action: askCmd("What feels unfamiliar? (optional)", tutor.EventGapReported)},
			abandon,
		)
	case tutor.PhaseGapDiagnosis:
		m.setMenu(
			components.MenuItem{Label: "Answer the tutor", Action: askCmd("Your answer:", tutor.EventMessageSent)},
			components.MenuItem{Label: "Name the missing concept", Action: askCmd("Missing concept:", tutor.EventGapIdentified)},
			abandon,
		)
	case tutor.PhaseTestGeneration:
		m.setMenu(
			components.MenuItem{Label: "Start the test", Action: sendCmd(tutor.EventTestGenerated, tutor.Payload{})},
			abandon,
		)
	case tutor.PhaseTestEvaluation:
		m.mode = modeQuiz
		m.quiz = newQuiz(tutor.EventTestSubmitted, m.out.PendingTest)
	case tutor.PhaseProgression:
		m.setMenu(
			components.MenuItem{Label: "Continue", Action: sendCmd(tutor.EventContinue, tutor.Payload{})},
			abandon,
		)
	case tutor.PhaseRemediationChoice:
		m.setMenu(
			components.MenuItem{Label: "Study it again", Action: sendCmd(tutor.EventRepeatChosen, tutor.Payload{})},
			components.MenuItem{Label: "Something is missing", Action: sendCmd(tutor.EventReportGapChosen, tutor.Payload{})},
			components.MenuItem{Label: "Skip this concept", Action: sendCmd(tutor.EventSkipChosen, tutor.Payload{})},
			abandon,
		)
	default:
		m.setMenu(
			components.MenuItem{Label: "Start a new goal", Action: func() tea.Cmd {
				return func() tea.Msg { return newGoalMsg{} }
			}},
			components.MenuItem{Label: "Quit", Action: func() tea.Cmd { return tea.Quit }},
		)
	}
}

func (m *AppModel) setMenu(items ...components.MenuItem) {
	m.mode = modeMenu
	m.menu = components.NewMenu(items)
}

func (m *AppModel) ask(label string, event tutor.Event) {
	m.mode = modeInput
	m.inputEvent = event
	m.input = components.NewTextInput(label, "", 500)
}

func (m AppModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case sendMsg:
		m.busy = true
		m.err = nil
		return m, m.send(tutor.Command(msg))

	case askMsg:
		m.ask(msg.label, msg.event)
		return m, nil

	case newGoalMsg:
		m.out = tutor.Output{SessionKey: m.key, Phase: tutor.PhaseGoalSetting}
		m.setup()
		return m, nil

	case outputMsg:
		m.busy = false
		if msg.err != nil {
			m.err = msg.err
			if m.mode == modeQuiz {
				m.quiz.goTo(len(m.quiz.questions) - 1)
			}
			return m, nil
		}
		m.err = nil
		m.out = msg.out
		if msg.out.SessionKey != "" {
			m.key = msg.out.SessionKey
		}
		m.setup()
		return m, nil

	case tea.KeyMsg:
		if msg.String() == "ctrl+c" {
			return m, tea.Quit
		}
		if m.busy {
			return m, nil
		}
		return m.handleKey(msg)
	}

	if m.mode == modeInput {
		var cmd tea.Cmd
		m.input, cmd = m.input.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m AppModel) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch m.mode {
	case modeInput:
		switch msg.String() {
		case "esc":
			if m.out.Phase != tutor.PhaseGoalSetting {
				m.setup()
			}
			return m, nil
		case "enter":
			return m.submitInput()
		}
		var cmd tea.Cmd
		m.input, cmd = m.input.Update(msg)
		return m, cmd

	case modeQuiz:
		var done bool
		var cmd tea.Cmd
		m.quiz, done, cmd = m.quiz.Update(msg)
		if done {
			return m, sendCmd(m.quiz.event, tutor.Payload{Answers: m.quiz.answers})()
		}
		return m, cmd

	case modeReview:
		switch msg.String() {
		case "up", "k":
			m.cursor = max(m.cursor-1, 0)
		case "down", "j":
			m.cursor = min(m.cursor+1, max(len(m.out.Path)-1, 0))
		case "space", " ", "s":
			if m.cursor < len(m.out.Path) {
				id := m.out.Path[m.cursor].ID
				return m, sendCmd(tutor.EventConceptSkipToggled, tutor.Payload{ConceptID: id})()
			}
		case "enter":
			return m, sendCmd(tutor.EventPathConfirmed, tutor.Payload{})()
		case "x":
			return m, sendCmd(tutor.EventGoalAbandoned, tutor.Payload{})()
		}
		return m, nil
	}

	var cmd tea.Cmd
	m.menu, cmd = m.menu.Update(msg)
	return m, cmd
}

func (m AppModel) submitInput() (tea.Model, tea.Cmd) {
	v := m.input.Value()
	var p tutor.Payload
	switch m.inputEvent {
	case tutor.EventGoalConfirmed:
		if v == "" {
			return m, nil
		}
		p.Goal = v
		p.Profile = m.profile
	case tutor.EventGapIdentified:
		if v == "" {
			return m, nil
		}
		p.GapName = v
	case tutor.EventMessageSent:
		if v == "" {
			return m, nil
		}
		p.Message = v
	default:
		p.Message = v
	}
	m.input.Reset()
	return m, sendCmd(m.inputEvent, p)()
}

func (m AppModel) View() tea.View {
	v := tea.NewView("")
	v.AltScreen = true

	if m.width == 0 || m.height == 0 {
		return v
	}
	if layout.IsTooSmall(m.width, m.height) {
		v.SetContent(layout.RenderMinSizeMessage(m.width, m.height))
		return v
	}

	header := layout.RenderHeader(phaseTitle(m.out.Phase), m.out.Progress.Resolved, m.out.Progress.Total, m.width)
	footer := layout.RenderFooter(m.hints(), m.width)
	content := m.body(components.ContentWidth(m.width))

	v.SetContent(layout.RenderFrame(header, content, footer, m.width, m.height))
	return v
}

func (m AppModel) hints() []layout.KeyHint {
	quit := layout.KeyHint{Key: "Ctrl+C", Description: "Quit"}
	switch m.mode {
	case modeInput:
		if m.out.Phase == tutor.PhaseGoalSetting {
			return []layout.KeyHint{{Key: "Enter", Description: "Send"}, quit}
		}
		return []layout.KeyHint{{Key: "Enter", Description: "Send"}, {Key: "Esc", Description: "Back"}, quit}
	case modeReview:
		return []layout.KeyHint{
			{Key: "↑↓", Description: "Move"},
			{Key: "Space", Description: "Skip/unskip"},
			{Key: "Enter", Description: "Confirm path"},
			{Key: "x", Description: "Abandon"},
			quit,
		}
	case modeQuiz:
		return []layout.KeyHint{{Key: "↑↓", Description: "Choose"}, {Key: "Enter", Description: "Answer"}, quit}
	}
	return []layout.KeyHint{{Key: "↑↓", Description: "Navigate"}, {Key: "Enter", Description: "Select"}, quit}
}

// Run starts the Bubble Tea program.
func Run(opts Options) error {
	if opts.Client == nil {
		return errors.New("app: client is required")
	}
	p := tea.NewProgram(newAppModel(opts))
	if _, err := p.Run(); err != nil {
		fmt.Fprintln(os.Stderr, "Error running program:", err)
		return err
	}
	return nil
}
