package tutor

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/abhisek/alis/internal/agents"
	"github.com/abhisek/alis/internal/evaluation"
	"github.com/abhisek/alis/internal/llm"
	"github.com/abhisek/alis/internal/path"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeGen is a scripted Generator. When err is set every call fails.
type fakeGen struct {
	plan    *agents.Plan
	pretest []evaluation.Question
	test    []evaluation.Question
	gap     *agents.GapPlan
	err     error
	calls   []string
}

func (f *fakeGen) record(name string) error {
	f.calls = append(f.calls, name)
	return f.err
}

func (f *fakeGen) PlanGoal(context.Context, string) (*agents.Plan, error) {
	if err := f.record("plan"); err != nil {
		return nil, err
	}
	p := *f.plan
	p.Concepts = f.plan.Concepts.Clone()
	return &p, nil
}

func (f *fakeGen) GeneratePretest(context.Context, string, path.Path) ([]evaluation.Question, error) {
	if err := f.record("pretest"); err != nil {
		return nil, err
	}
	return cloneQuestions(f.pretest), nil
}

func (f *fakeGen) GenerateMaterial(_ context.Context, _ string, c path.Concept, _ agents.Profile) (string, error) {
	if err := f.record("material"); err != nil {
		return "", err
	}
	return "# " + c.Name, nil
}

func (f *fakeGen) Reply(_ context.Context, _ path.Concept, _ []agents.Turn, msg string) (string, error) {
	if err := f.record("reply"); err != nil {
		return "", err
	}
	return "re: " + msg, nil
}

func (f *fakeGen) Diagnose(context.Context, path.Concept, []agents.Turn) (string, error) {
	if err := f.record("diagnose"); err != nil {
		return "", err
	}
	return "What feels unfamiliar?", nil
}

func (f *fakeGen) PlanGap(context.Context, string, path.Path, path.Concept, string, []agents.Turn) (*agents.GapPlan, error) {
	if err := f.record("gap"); err != nil {
		return nil, err
	}
	if f.gap != nil {
		return f.gap, nil
	}
	return &agents.GapPlan{Concept: path.Concept{Name: "ignored", RequiredMasteryLevel: 2}}, nil
}

func (f *fakeGen) GenerateTest(_ context.Context, c path.Concept, _ agents.Profile) ([]evaluation.Question, error) {
	if err := f.record("test"); err != nil {
		return nil, err
	}
	qs := cloneQuestions(f.test)
	for i := range qs {
		qs[i].ConceptID = c.ID
	}
	return qs, nil
}

func (f *fakeGen) Judge(_ context.Context, _ evaluation.Question, answer string) (bool, error) {
	return answer == "good", f.record("judge")
}

var (
	pass = map[string]string{"q1": "a", "q2": "b"}
	fail = map[string]string{"q1": "b", "q2": "a"}
)

func newFakeGen() *fakeGen {
	return &fakeGen{
		plan: &agents.Plan{
			Goal:       "Learn Go",
			BloomLevel: 3,
			Concepts: path.Path{
				{ID: "c1", Name: "Variables", Status: path.StatusOpen, RequiredMasteryLevel: 2},
				{ID: "c2", Name: "Loops", Status: path.StatusOpen, RequiredMasteryLevel: 3},
				{ID: "c3", Name: "Functions", Status: path.StatusOpen, RequiredMasteryLevel: 3},
			},
		},
		pretest: []evaluation.Question{
			{ID: "p1", ConceptID: "c1", Kind: evaluation.KindMultipleChoice, Prompt: "?", Choices: []string{"yes", "no"}, Expected: "yes"},
			{ID: "p3", ConceptID: "c3", Kind: evaluation.KindMultipleChoice, Prompt: "?", Choices: []string{"yes", "no"}, Expected: "yes"},
		},
		test: []evaluation.Question{
			{ID: "q1", Kind: evaluation.KindMultipleChoice, Prompt: "?", Choices: []string{"a", "b"}, Expected: "a"},
			{ID: "q2", Kind: evaluation.KindMultipleChoice, Prompt: "?", Choices: []string{"a", "b"}, Expected: "b"},
		},
	}
}

var fixedNow = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

func newTestMachine(t *testing.T, gen Generator, cfg Config) *Machine {
	t.Helper()
	m, err := NewMachine(gen, cfg)
	require.NoError(t, err)
	m.now = func() time.Time { return fixedNow }
	return m
}

func noPretest() Config {
	cfg := DefaultConfig()
	cfg.PretestEnabled = false
	return cfg
}

// step applies one event and checks the session invariants afterwards.
func step(t *testing.T, m *Machine, s *State, event Event, p Payload) *State {
	t.Helper()
	next, _, err := m.Apply(context.Background(), "s1", s, Command{Event: event, Payload: p})
	require.NoError(t, err, "event %s in phase %s", event, phaseOf(s))
	assertSingleActive(t, next)
	return next
}

func phaseOf(s *State) Phase {
	if s == nil {
		return ""
	}
	return s.Phase
}

func assertSingleActive(t *testing.T, s *State) {
	t.Helper()
	active := 0
	for _, c := range s.Path {
		if c.Status == path.StatusActive {
			active++
			assert.Equal(t, c.ID, s.ActiveConceptID)
		}
	}
	assert.LessOrEqual(t, active, 1)
	assert.NoError(t, s.Validate())
}

func expectKind(t *testing.T, m *Machine, s *State, event Event, p Payload, kind Kind) {
	t.Helper()
	before := s.Clone()
	next, _, err := m.Apply(context.Background(), "s1", s, Command{Event: event, Payload: p})
	require.Error(t, err)
	assert.Nil(t, next)
	assert.Equal(t, kind, KindOf(err), "error: %v", err)
	assert.Equal(t, before, s, "a failed event leaves the state unchanged")
}

// learning starts a session without pretest and confirms the path.
func learning(t *testing.T, m *Machine) *State {
	t.Helper()
	s := step(t, m, nil, EventGoalConfirmed, Payload{Goal: "learn go"})
	require.Equal(t, PhasePathReview, s.Phase)
	s = step(t, m, s, EventPathConfirmed, Payload{})
	require.Equal(t, PhaseLearning, s.Phase)
	return s
}

func takeTest(t *testing.T, m *Machine, s *State, answers map[string]string) *State {
	t.Helper()
	s = step(t, m, s, EventConceptUnderstood, Payload{})
	require.Equal(t, PhaseTestGeneration, s.Phase)
	s = step(t, m, s, EventTestGenerated, Payload{})
	require.Equal(t, PhaseTestEvaluation, s.Phase)
	return step(t, m, s, EventTestSubmitted, Payload{Answers: answers})
}

func status(s *State, id string) path.Status {
	c, _ := s.Path.Get(id)
	return c.Status
}

func TestPassingTestProgressesToNextConcept(t *testing.T) {
	m := newTestMachine(t, newFakeGen(), noPretest())
	s := learning(t, m)
	assert.Equal(t, "c1", s.ActiveConceptID)

	s = takeTest(t, m, s, pass)
	assert.Equal(t, PhaseProgression, s.Phase)
	assert.Equal(t, "c1", s.ActiveConceptID, "active concept stays until continue")
	require.NotNil(t, s.LastEvaluation)
	assert.Equal(t, 100, s.LastEvaluation.Score)

	s = step(t, m, s, EventContinue, Payload{})
	assert.Equal(t, PhaseLearning, s.Phase)
	assert.Equal(t, "c2", s.ActiveConceptID)
	assert.Equal(t, path.StatusMastered, status(s, "c1"))
	assert.Nil(t, s.LastEvaluation, "cleared on re-entry into learning")
}

func TestFailingTestThenSkip(t *testing.T) {
	m := newTestMachine(t, newFakeGen(), noPretest())
	s := step(t, m, nil, EventGoalConfirmed, Payload{Goal: "learn go"})
	s = step(t, m, s, EventConceptSkipToggled, Payload{ConceptID: "c2"})
	s = step(t, m, s, EventPathConfirmed, Payload{})
	require.Equal(t, "c1", s.ActiveConceptID)

	s = takeTest(t, m, s, fail)
	assert.Equal(t, PhaseRemediationChoice, s.Phase)
	assert.Equal(t, 1, s.FailedAttempts)

	s = step(t, m, s, EventSkipChosen, Payload{})
	assert.Equal(t, PhaseLearning, s.Phase)
	assert.Equal(t, "c3", s.ActiveConceptID)
	c1, _ := s.Path.Get("c1")
	assert.Equal(t, path.StatusSkipped, c1.Status)
	assert.Equal(t, path.ProvenanceExpertSkip, c1.Provenance)
	assert.Zero(t, s.FailedAttempts)
}

func TestSkipOnLastConceptCompletesGoal(t *testing.T) {
	m := newTestMachine(t, newFakeGen(), noPretest())
	s := step(t, m, nil, EventGoalConfirmed, Payload{Goal: "learn go"})
	s = step(t, m, s, EventConceptSkipToggled, Payload{ConceptID: "c2"})
	s = step(t, m, s, EventConceptSkipToggled, Payload{ConceptID: "c3"})
	s = step(t, m, s, EventPathConfirmed, Payload{})

	s = takeTest(t, m, s, fail)
	s = step(t, m, s, EventSkipChosen, Payload{})
	assert.Equal(t, PhaseGoalComplete, s.Phase)
	assert.Empty(t, s.ActiveConceptID)
}

func TestGapIdentifiedInsertsAheadOfActiveConcept(t *testing.T) {
	m := newTestMachine(t, newFakeGen(), noPretest())
	s := learning(t, m)
	s = takeTest(t, m, s, pass)
	s = step(t, m, s, EventContinue, Payload{})
	require.Equal(t, "c2", s.ActiveConceptID)

	s = step(t, m, s, EventGapReported, Payload{Message: "I never learned what a block is"})
	assert.Equal(t, PhaseGapDiagnosis, s.Phase)
	require.Len(t, s.Dialogue, 2)
	assert.Equal(t, agents.SpeakerTutor, s.Dialogue[1].Speaker)

	s = step(t, m, s, EventMessageSent, Payload{Message: "scopes, I think"})
	assert.Len(t, s.Dialogue, 4)

	s = step(t, m, s, EventGapIdentified, Payload{GapName: "Foundations"})
	assert.Equal(t, PhaseLearning, s.Phase)
	require.Len(t, s.Path, 4)

	gap := s.Path[1]
	assert.Equal(t, "Foundations", gap.Name)
	assert.Equal(t, path.ProvenanceGapRemediation, gap.Provenance)
	assert.Equal(t, gap.ID, s.ActiveConceptID)
	assert.Equal(t, path.StatusActive, gap.Status)
	assert.Equal(t, "c2", s.Path[2].ID)
	assert.Equal(t, path.StatusOpen, s.Path[2].Status)
	assert.Equal(t, path.StatusMastered, s.Path[0].Status, "history keeps its position")

	// Finishing the gap concept returns to concept 2.
	s = takeTest(t, m, s, pass)
	s = step(t, m, s, EventContinue, Payload{})
	assert.Equal(t, "c2", s.ActiveConceptID)
}

func TestGapReactivatesSkippedConcepts(t *testing.T) {
	gen := newFakeGen()
	gen.gap = &agents.GapPlan{Concept: path.Concept{Name: "x"}, Reactivate: []string{"c3", "c1", "missing"}}
	m := newTestMachine(t, gen, noPretest())

	s := step(t, m, nil, EventGoalConfirmed, Payload{Goal: "learn go"})
	s = step(t, m, s, EventConceptSkipToggled, Payload{ConceptID: "c3"})
	s = step(t, m, s, EventPathConfirmed, Payload{})
	s = step(t, m, s, EventGapReported, Payload{})
	s = step(t, m, s, EventGapIdentified, Payload{GapName: "Pointers"})

	assert.Equal(t, path.StatusReactivated, status(s, "c3"))
	c3, _ := s.Path.Get("c3")
	assert.Equal(t, path.ProvenanceGapRemediation, c3.Provenance)
	assert.Equal(t, "Pointers", s.Path[0].Name, "inserted ahead of every pending concept")
	assert.Equal(t, path.StatusOpen, status(s, "c1"), "only skipped concepts are reactivated")
}

func TestReportGapFromRemediationChoice(t *testing.T) {
	m := newTestMachine(t, newFakeGen(), noPretest())
	s := learning(t, m)
	s = takeTest(t, m, s, fail)
	s = step(t, m, s, EventReportGapChosen, Payload{})
	assert.Equal(t, PhaseGapDiagnosis, s.Phase)

	s = step(t, m, s, EventGapIdentified, Payload{GapName: "Types"})
	assert.Equal(t, "Types", s.Path[0].Name)
	assert.Zero(t, s.FailedAttempts, "attempts are counted per concept")
}

func TestGoalCompleteIsTerminal(t *testing.T) {
	m := newTestMachine(t, newFakeGen(), noPretest())
	s := learning(t, m)
	for range 3 {
		s = takeTest(t, m, s, pass)
		s = step(t, m, s, EventContinue, Payload{})
	}
	require.Equal(t, PhaseGoalComplete, s.Phase)
	assert.Equal(t, GoalCompleted, s.Goal.Status)
	assert.Empty(t, s.ActiveConceptID)
	assert.Empty(t, Allowed(s.Phase))

	for _, e := range []Event{EventContinue, EventTestSubmitted, EventPathConfirmed, EventGoalAbandoned} {
		expectKind(t, m, s, e, Payload{}, KindIllegalTransition)
	}

	fresh := step(t, m, s, EventGoalConfirmed, Payload{Goal: "learn rust"})
	assert.Equal(t, PhasePathReview, fresh.Phase)
	assert.NotEqual(t, s.Goal.ID, fresh.Goal.ID)
	assert.Equal(t, path.StatusOpen, status(fresh, "c1"))
}

func TestIllegalEventLeavesStateUnchanged(t *testing.T) {
	m := newTestMachine(t, newFakeGen(), noPretest())
	s := step(t, m, nil, EventGoalConfirmed, Payload{Goal: "learn go"})
	require.Equal(t, PhasePathReview, s.Phase)

	expectKind(t, m, s, EventTestSubmitted, Payload{Answers: pass}, KindIllegalTransition)
	expectKind(t, m, s, Event("dance"), Payload{}, KindIllegalTransition)

	_, _, err := m.Apply(context.Background(), "s1", nil, Command{Event: EventContinue})
	assert.Equal(t, KindIllegalTransition, KindOf(err), "a fresh state only accepts a goal")
}

func TestGenerationFailureAbortsTransition(t *testing.T) {
	gen := newFakeGen()
	m := newTestMachine(t, gen, noPretest())
	s := learning(t, m)

	gen.err = &agents.GenerationError{Role: agents.RoleCurator, Err: &llm.ErrProviderUnavailable{}}
	expectKind(t, m, s, EventConceptUnderstood, Payload{}, KindGeneration)
	expectKind(t, m, s, EventMaterialRequested, Payload{}, KindGeneration)

	gen.err = &agents.GenerationError{Role: agents.RoleTutor, Err: context.DeadlineExceeded}
	expectKind(t, m, s, EventGapReported, Payload{}, KindGenerationTimeout)

	_, _, err := m.Apply(context.Background(), "s1", s, Command{Event: EventConceptUnderstood})
	assert.True(t, Retryable(err))

	gen.err = nil
	s = step(t, m, s, EventMaterialRequested, Payload{})
	assert.Equal(t, "# Variables", s.Material)
}

func TestGoalConfirmationFailureKeepsGoalSetting(t *testing.T) {
	gen := newFakeGen()
	gen.err = &agents.GenerationError{Role: agents.RoleArchitect, Err: errors.New("boom")}
	m := newTestMachine(t, gen, noPretest())

	s := m.NewState("s1")
	expectKind(t, m, s, EventGoalConfirmed, Payload{Goal: "learn go"}, KindGeneration)
	expectKind(t, m, s, EventGoalConfirmed, Payload{Goal: "   "}, KindBadRequest)
}

func TestPriorKnowledgeTestMarksMastered(t *testing.T) {
	m := newTestMachine(t, newFakeGen(), DefaultConfig())

	s := step(t, m, nil, EventGoalConfirmed, Payload{Goal: "learn go"})
	require.Equal(t, PhasePriorKnowledgeTest, s.Phase)
	require.Len(t, s.Pretest, 2)

	s = step(t, m, s, EventPretestSubmitted, Payload{Answers: map[string]string{"p1": "yes", "p3": "no"}})
	assert.Equal(t, PhasePathReview, s.Phase)
	c1, _ := s.Path.Get("c1")
	assert.Equal(t, path.StatusMastered, c1.Status)
	assert.Equal(t, path.ProvenancePretestMastery, c1.Provenance)
	assert.Equal(t, path.StatusOpen, status(s, "c3"))
	assert.Nil(t, s.Pretest)

	expectKind(t, m, s, EventConceptSkipToggled, Payload{ConceptID: "c1"}, KindInvalidState)

	s = step(t, m, s, EventPathConfirmed, Payload{})
	assert.Equal(t, "c2", s.ActiveConceptID)
}

func TestBoundedRemediation(t *testing.T) {
	cfg := noPretest()
	cfg.MaxFailedAttempts = 2
	m := newTestMachine(t, newFakeGen(), cfg)
	s := learning(t, m)

	s = takeTest(t, m, s, fail)
	s = step(t, m, s, EventRepeatChosen, Payload{})
	assert.Equal(t, PhaseLearning, s.Phase)
	assert.Equal(t, "c1", s.ActiveConceptID)
	assert.Nil(t, s.LastEvaluation)

	s = takeTest(t, m, s, fail)
	assert.Equal(t, 2, s.FailedAttempts)
	expectKind(t, m, s, EventRepeatChosen, Payload{}, KindInvalidState)

	s = step(t, m, s, EventSkipChosen, Payload{})
	assert.Equal(t, "c2", s.ActiveConceptID)
}

func TestUnboundedRemediation(t *testing.T) {
	cfg := noPretest()
	cfg.MaxFailedAttempts = 0
	m := newTestMachine(t, newFakeGen(), cfg)
	s := learning(t, m)
	for range 5 {
		s = takeTest(t, m, s, fail)
		s = step(t, m, s, EventRepeatChosen, Payload{})
	}
	assert.Equal(t, 5, s.FailedAttempts)
}

func TestToggleSkip(t *testing.T) {
	m := newTestMachine(t, newFakeGen(), noPretest())
	s := step(t, m, nil, EventGoalConfirmed, Payload{Goal: "learn go"})

	s = step(t, m, s, EventConceptSkipToggled, Payload{ConceptID: "c1"})
	assert.Equal(t, path.StatusSkipped, status(s, "c1"))
	s = step(t, m, s, EventConceptSkipToggled, Payload{ConceptID: "c1"})
	assert.Equal(t, path.StatusOpen, status(s, "c1"))

	expectKind(t, m, s, EventConceptSkipToggled, Payload{ConceptID: "nope"}, KindNotFound)
}

func TestConfirmingFullySkippedPathCompletesGoal(t *testing.T) {
	m := newTestMachine(t, newFakeGen(), noPretest())
	s := step(t, m, nil, EventGoalConfirmed, Payload{Goal: "learn go"})
	for _, id := range []string{"c1", "c2", "c3"} {
		s = step(t, m, s, EventConceptSkipToggled, Payload{ConceptID: id})
	}
	s = step(t, m, s, EventPathConfirmed, Payload{})
	assert.Equal(t, PhaseGoalComplete, s.Phase)
}

func TestPayloadGuards(t *testing.T) {
	m := newTestMachine(t, newFakeGen(), noPretest())
	s := learning(t, m)
	expectKind(t, m, s, EventMessageSent, Payload{Message: " "}, KindBadRequest)

	s = step(t, m, s, EventMessageSent, Payload{Message: "why?"})
	assert.Equal(t, "re: why?", s.Dialogue[1].Text)

	s = step(t, m, s, EventGapReported, Payload{})
	expectKind(t, m, s, EventGapIdentified, Payload{}, KindBadRequest)
}

func TestAbandon(t *testing.T) {
	m := newTestMachine(t, newFakeGen(), noPretest())
	s := learning(t, m)
	s = step(t, m, s, EventGoalAbandoned, Payload{})
	assert.Equal(t, PhaseAbandoned, s.Phase)
	assert.Equal(t, GoalAbandoned, s.Goal.Status)
	expectKind(t, m, s, EventMessageSent, Payload{Message: "hi"}, KindIllegalTransition)
}

func TestNewMachineRejectsBadConfig(t *testing.T) {
	for _, cfg := range []Config{
		{Threshold: 0},
		{Threshold: 101},
		{Threshold: 70, MaxFailedAttempts: -1},
	} {
		_, err := NewMachine(newFakeGen(), cfg)
		assert.Equal(t, KindConfiguration, KindOf(err), "%+v", cfg)
	}
}

func TestStateRoundTrip(t *testing.T) {
	m := newTestMachine(t, newFakeGen(), noPretest())
	s := learning(t, m)
	s = takeTest(t, m, s, fail)

	data, err := s.Marshal()
	require.NoError(t, err)
	loaded, err := UnmarshalState(data)
	require.NoError(t, err)

	assert.Equal(t, s.Phase, loaded.Phase)
	assert.Equal(t, s.Path, loaded.Path)
	assert.Equal(t, s.ActiveConceptID, loaded.ActiveConceptID)
	assert.Equal(t, s.FailedAttempts, loaded.FailedAttempts)

	again, err := loaded.Marshal()
	require.NoError(t, err)
	assert.JSONEq(t, string(data), string(again))

	_, err = UnmarshalState([]byte(`{"path":[{"id":"a","status":"active"},{"id":"b","status":"active"}]}`))
	assert.Error(t, err)
}

func TestViewWithholdsAnswers(t *testing.T) {
	m := newTestMachine(t, newFakeGen(), noPretest())
	s := learning(t, m)
	s = step(t, m, s, EventConceptUnderstood, Payload{})

	out := View(s, "ready")
	require.Len(t, out.PendingTest, 2)
	require.NotNil(t, out.ActiveConcept)
	assert.Equal(t, "c1", out.ActiveConcept.ID)
	assert.Equal(t, Progress{Resolved: 0, Total: 3}, out.Progress)
	assert.Equal(t, []Event{EventGoalAbandoned, EventTestGenerated}, out.Allowed)

	raw, err := json.Marshal(out)
	require.NoError(t, err)
	assert.NotContains(t, string(raw), `"expected"`)
}

func TestKindOf(t *testing.T) {
	tests := []struct {
		err  error
		want Kind
	}{
		{nil, ""},
		{NotFound("x"), KindNotFound},
		{path.ErrNotFound, KindNotFound},
		{path.ErrInvalidState, KindInvalidState},
		{evaluation.ErrInvalidConfig, KindConfiguration},
		{&agents.GenerationError{Err: errors.New("x")}, KindGeneration},
		{&agents.GenerationError{Err: context.DeadlineExceeded}, KindGenerationTimeout},
		{Conflict(nil, "busy"), KindConflict},
		{errors.New("disk"), KindInternal},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, KindOf(tt.err), "%v", tt.err)
	}
}

func TestMachineRunsOnSimulator(t *testing.T) {
	gen := agents.New(llm.NewScriptedProvider(agents.Simulator()), agents.DefaultConfig())
	m := newTestMachine(t, gen, DefaultConfig())

	s := step(t, m, nil, EventGoalConfirmed, Payload{Goal: "Go"})
	require.Equal(t, PhasePriorKnowledgeTest, s.Phase)

	answers := map[string]string{}
	for _, q := range s.Pretest {
		answers[q.ID] = "2"
	}
	s = step(t, m, s, EventPretestSubmitted, Payload{Answers: answers})
	s = step(t, m, s, EventPathConfirmed, Payload{})
	require.Equal(t, PhaseLearning, s.Phase)

	active, _ := s.ActiveConcept()
	s = step(t, m, s, EventConceptUnderstood, Payload{})
	s = step(t, m, s, EventTestGenerated, Payload{})
	s = step(t, m, s, EventTestSubmitted, Payload{Answers: map[string]string{
		"q1": active.Name,
		"q2": "it explains the basic building blocks",
	}})
	assert.Equal(t, PhaseProgression, s.Phase)
}
