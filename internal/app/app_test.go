package app

import (
	"context"
	"strings"
	"testing"

	tea "charm.land/bubbletea/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/abhisek/alis/internal/evaluation"
	"github.com/abhisek/alis/internal/path"
	"github.com/abhisek/alis/internal/tutor"
)

type fakeClient struct {
	replies map[tutor.Event]tutor.Output
	errs    map[tutor.Event]error
	sent    []tutor.Command
}

func (f *fakeClient) Dispatch(_ context.Context, _ string, cmd tutor.Command) (tutor.Output, error) {
	f.sent = append(f.sent, cmd)
	if err := f.errs[cmd.Event]; err != nil {
		return tutor.Output{}, err
	}
	return f.replies[cmd.Event], nil
}

func (f *fakeClient) Get(context.Context, string) (tutor.Output, error) {
	return tutor.Output{}, tutor.NotFound("no session")
}

var (
	enter = tea.KeyPressMsg{Code: tea.KeyEnter}
	down  = tea.KeyPressMsg{Code: tea.KeyDown}
	esc   = tea.KeyPressMsg{Code: tea.KeyEscape}
	skip  = tea.KeyPressMsg{Code: 's', Text: "s"}
)

// press feeds msg to m and runs the resulting commands as long as they
// produce the model's own messages.
func press(t *testing.T, m AppModel, msg tea.Msg) AppModel {
	t.Helper()
	next, cmd := m.Update(msg)
	m = next.(AppModel)
	for cmd != nil {
		out := cmd()
		switch out.(type) {
		case sendMsg, askMsg, outputMsg, newGoalMsg:
		default:
			return m
		}
		next, cmd = m.Update(out)
		m = next.(AppModel)
	}
	return m
}

func samplePath() path.Path {
	return path.Path{
		{ID: "c1", Name: "Variables", Status: path.StatusOpen},
		{ID: "c2", Name: "Loops", Status: path.StatusOpen},
	}
}

func TestGoalEntryDispatchesGoal(t *testing.T) {
	client := &fakeClient{replies: map[tutor.Event]tutor.Output{
		tutor.EventGoalConfirmed: {SessionKey: "s1", Phase: tutor.PhasePathReview, Path: samplePath()},
	}}
	m := newAppModel(Options{Client: client, SessionKey: "s1"})
	require.Equal(t, modeInput, m.mode)

	m = press(t, m, enter)
	assert.Empty(t, client.sent, "empty goal is not sent")

	m.input.SetValue("  Go  ")
	m = press(t, m, enter)
	require.Len(t, client.sent, 1)
	assert.Equal(t, tutor.EventGoalConfirmed, client.sent[0].Event)
	assert.Equal(t, "Go", client.sent[0].Payload.Goal)
	assert.Equal(t, modeReview, m.mode)
	assert.False(t, m.busy)
}

func TestPathReviewKeys(t *testing.T) {
	client := &fakeClient{replies: map[tutor.Event]tutor.Output{
		tutor.EventConceptSkipToggled: {Phase: tutor.PhasePathReview, Path: samplePath()},
		tutor.EventPathConfirmed:      {Phase: tutor.PhaseLearning, Path: samplePath()},
	}}
	m := newAppModel(Options{Client: client, SessionKey: "s1"})
	m = press(t, m, outputMsg{out: tutor.Output{Phase: tutor.PhasePathReview, Path: samplePath()}})

	m = press(t, m, down)
	m = press(t, m, skip)
	require.Len(t, client.sent, 1)
	assert.Equal(t, "c2", client.sent[0].Payload.ConceptID)
	assert.Equal(t, 1, m.cursor, "cursor survives the refresh")

	m = press(t, m, enter)
	assert.Equal(t, tutor.EventPathConfirmed, client.sent[1].Event)
	assert.Equal(t, modeMenu, m.mode)
}

func TestQuizCollectsAnswers(t *testing.T) {
	client := &fakeClient{replies: map[tutor.Event]tutor.Output{
		tutor.EventTestSubmitted: {Phase: tutor.PhaseProgression},
	}}
	m := newAppModel(Options{Client: client, SessionKey: "s1"})
	m = press(t, m, outputMsg{out: tutor.Output{
		Phase: tutor.PhaseTestEvaluation,
		PendingTest: []tutor.QuestionView{
			{ID: "q1", Kind: evaluation.KindMultipleChoice, Prompt: "Pick", Choices: []string{"a", "b"}},
			{ID: "q2", Kind: evaluation.KindFreeText, Prompt: "Explain"},
		},
	}})
	require.Equal(t, modeQuiz, m.mode)

	m = press(t, m, down)
	m = press(t, m, enter)
	assert.Equal(t, 1, m.quiz.index)

	m.quiz.text.SetValue("loops repeat work")
	m = press(t, m, enter)

	require.Len(t, client.sent, 1)
	assert.Equal(t, tutor.EventTestSubmitted, client.sent[0].Event)
	assert.Equal(t, map[string]string{"q1": "b", "q2": "loops repeat work"}, client.sent[0].Payload.Answers)
	assert.Equal(t, tutor.PhaseProgression, m.out.Phase)
}

func TestErrorsKeepCurrentScreen(t *testing.T) {
	client := &fakeClient{errs: map[tutor.Event]error{
		tutor.EventConceptUnderstood: tutor.Conflict(nil, "busy"),
	}}
	m := newAppModel(Options{Client: client, SessionKey: "s1"})
	m = press(t, m, outputMsg{out: tutor.Output{Phase: tutor.PhaseLearning, Path: samplePath()}})

	m = press(t, m, down)
	m = press(t, m, down)
	m = press(t, m, enter)
	require.Len(t, client.sent, 1)
	assert.Equal(t, tutor.EventConceptUnderstood, client.sent[0].Event)
	assert.Equal(t, tutor.PhaseLearning, m.out.Phase)
	require.Error(t, m.err)

	m = press(t, m, tea.WindowSizeMsg{Width: 100, Height: 40})
	assert.True(t, m.View().AltScreen)
	assert.True(t, strings.Contains(m.body(80), "busy"))
}

func TestAskAndEscape(t *testing.T) {
	client := &fakeClient{}
	m := newAppModel(Options{Client: client, SessionKey: "s1"})
	m = press(t, m, outputMsg{out: tutor.Output{Phase: tutor.PhaseGapDiagnosis}})

	m = press(t, m, down)
	m = press(t, m, enter)
	require.Equal(t, modeInput, m.mode)
	assert.Equal(t, tutor.EventGapIdentified, m.inputEvent)

	m = press(t, m, esc)
	assert.Equal(t, modeMenu, m.mode)
	assert.Empty(t, client.sent)
}

func TestTerminalPhaseOffersNewGoal(t *testing.T) {
	m := newAppModel(Options{Client: &fakeClient{}, SessionKey: "s1"})
	m = press(t, m, outputMsg{out: tutor.Output{Phase: tutor.PhaseGoalComplete, Path: samplePath()}})
	require.Equal(t, modeMenu, m.mode)

	m = press(t, m, enter)
	assert.Equal(t, tutor.PhaseGoalSetting, m.out.Phase)
	assert.Equal(t, modeInput, m.mode)
}
