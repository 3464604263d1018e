package agents

import (
	"context"
	"errors"
	"testing"

	"github.com/abhisek/alis/internal/evaluation"
	"github.com/abhisek/alis/internal/llm"
	"github.com/abhisek/alis/internal/path"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const planJSON = `{
	"goal": "Write small Go programs using loops and functions",
	"bloomLevel": 3,
	"successMetric": "Pass each concept test",
	"concepts": [
		{"id": "C1", "name": "Variables", "requiredBloomLevel": 2, "estimatedTime": 20},
		{"id": "C1", "name": "Loops", "requiredBloomLevel": 3, "estimatedTime": 25},
		{"id": "", "name": "Functions", "requiredBloomLevel": 4, "estimatedTime": 30}
	]
}`

func TestParsePlan(t *testing.T) {
	plan, err := ParsePlan("```json\n" + planJSON + "\n```")
	require.NoError(t, err)

	assert.Equal(t, "Write small Go programs using loops and functions", plan.Goal)
	require.Len(t, plan.Concepts, 3)
	assert.Equal(t, "C1", plan.Concepts[0].ID)
	assert.NotEqual(t, "C1", plan.Concepts[1].ID, "duplicate ids are replaced")
	assert.NotEmpty(t, plan.Concepts[2].ID)
	assert.Equal(t, 4, plan.Concepts[2].RequiredMasteryLevel)
	for _, c := range plan.Concepts {
		assert.Equal(t, path.StatusOpen, c.Status)
	}
	assert.NoError(t, plan.Concepts.Validate())
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name  string
		parse func(string) error
		text  string
	}{
		{"plan prose", func(s string) error { _, err := ParsePlan(s); return err }, "Sure! Here is your plan."},
		{"bloom level out of range", func(s string) error { _, err := ParsePlan(s); return err },
			`{"goal":"g","bloomLevel":9,"successMetric":"m","concepts":[{"id":"a","name":"n","requiredBloomLevel":2,"estimatedTime":1}]}`},
		{"plan without concepts", func(s string) error { _, err := ParsePlan(s); return err },
			`{"goal":"g","bloomLevel":2,"successMetric":"m","concepts":[]}`},
		{"questions bad kind", func(s string) error { _, err := ParseQuestions(s); return err },
			`{"questions":[{"id":"q1","conceptId":"","kind":"essay","prompt":"p","choices":[],"expected":"e"}]}`},
		{"single choice", func(s string) error { _, err := ParseQuestions(s); return err },
			`{"questions":[{"id":"q1","conceptId":"","kind":"multiple-choice","prompt":"p","choices":["a"],"expected":"a"}]}`},
		{"expected not a choice", func(s string) error { _, err := ParseQuestions(s); return err },
			`{"questions":[{"id":"q1","conceptId":"","kind":"multiple-choice","prompt":"p","choices":["a","b"],"expected":"z"}]}`},
		{"gap missing concept", func(s string) error { _, err := ParseGap(s); return err }, `{"reactivate":[],"rationale":"r"}`},
		{"judgement not json", func(s string) error { _, err := ParseJudgement(s); return err }, "yes"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.parse(tt.text)
			var perr *ParseError
			require.ErrorAs(t, err, &perr)
			assert.Equal(t, tt.text, perr.Text)
		})
	}
}

func TestParseQuestions(t *testing.T) {
	qs, err := ParseQuestions(`{"questions":[
		{"id":"q1","conceptId":"C1","kind":"multiple-choice","prompt":"Pick","choices":["alpha","beta"],"expected":"B"},
		{"id":"q1","conceptId":"C1","kind":"free-text","prompt":"Explain","choices":["x"],"expected":"because"}
	]}`)
	require.NoError(t, err)
	require.Len(t, qs, 2)

	assert.Equal(t, "beta", qs[0].Expected, "letter answers resolve to the choice text")
	assert.Equal(t, "q2", qs[1].ID, "duplicate ids are renumbered")
	assert.Nil(t, qs[1].Choices)
}

func TestParseQuestionsUniqueIDs(t *testing.T) {
	qs, err := ParseQuestions(`{"questions":[
		{"id":"q2","conceptId":"C1","kind":"free-text","prompt":"One","choices":[],"expected":"a"},
		{"id":"","conceptId":"C1","kind":"free-text","prompt":"Two","choices":[],"expected":"b"},
		{"id":"q1","conceptId":"C1","kind":"free-text","prompt":"Three","choices":[],"expected":"c"},
		{"id":"q2","conceptId":"C1","kind":"free-text","prompt":"Four","choices":[],"expected":"d"}
	]}`)
	require.NoError(t, err)
	require.Len(t, qs, 4)

	ids := make(map[string]bool)
	for _, q := range qs {
		assert.False(t, ids[q.ID], "id %s repeated", q.ID)
		ids[q.ID] = true
	}
	assert.Equal(t, "q2", qs[0].ID)
	assert.Equal(t, "q3", qs[1].ID)
	assert.Equal(t, "q1", qs[2].ID)
	assert.Equal(t, "q4", qs[3].ID)
}

func TestParseGap(t *testing.T) {
	gap, err := ParseGap(`{"concept":{"name":"Foundations","requiredBloomLevel":2,"estimatedTime":15},"reactivate":["C2"],"rationale":"needed"}`)
	require.NoError(t, err)
	assert.Equal(t, "Foundations", gap.Concept.Name)
	assert.Empty(t, gap.Concept.ID)
	assert.Equal(t, []string{"C2"}, gap.Reactivate)
}

func TestStripFences(t *testing.T) {
	assert.Equal(t, `{"a":1}`, stripFences("```json\n{\"a\":1}\n```"))
	assert.Equal(t, `{"a":1}`, stripFences("  {\"a\":1}  "))
	assert.Equal(t, "", stripFences("```"))
}

func TestPlanGoal(t *testing.T) {
	mock := llm.NewMockProvider(llm.MockResponse{Text: planJSON})
	g := New(mock, DefaultConfig())

	plan, err := g.PlanGoal(context.Background(), "learn Go")
	require.NoError(t, err)
	assert.Len(t, plan.Concepts, 3)

	require.Equal(t, 1, mock.CallCount())
	req := mock.Calls[0]
	assert.Equal(t, PlanSchema, req.Schema)
	assert.Contains(t, req.Messages[0].Content, "Goal: learn Go")
	assert.Equal(t, []string{PurposePlan}, mock.Purposes)
}

func TestGenerationErrors(t *testing.T) {
	t.Run("provider failure", func(t *testing.T) {
		g := New(llm.NewMockProvider(llm.MockResponse{Err: &llm.ErrProviderUnavailable{}}), DefaultConfig())
		_, err := g.PlanGoal(context.Background(), "x")

		var gerr *GenerationError
		require.ErrorAs(t, err, &gerr)
		assert.Equal(t, RoleArchitect, gerr.Role)
		assert.False(t, gerr.Timeout())
	})

	t.Run("timeout", func(t *testing.T) {
		g := New(llm.NewMockProvider(llm.MockResponse{Err: context.DeadlineExceeded}), DefaultConfig())
		_, err := g.GenerateMaterial(context.Background(), "goal", path.Concept{Name: "Loops"}, DefaultProfile())

		var gerr *GenerationError
		require.ErrorAs(t, err, &gerr)
		assert.True(t, gerr.Timeout())
	})

	t.Run("unparseable output", func(t *testing.T) {
		g := New(llm.NewScriptedProvider(func(string, llm.Request) (string, error) {
			return `{"correct":"maybe"}`, nil
		}), DefaultConfig())
		_, err := g.Judge(context.Background(), evaluation.Question{Prompt: "p"}, "a")

		var gerr *GenerationError
		require.ErrorAs(t, err, &gerr)
		var ierr *llm.ErrInvalidResponse
		assert.ErrorAs(t, err, &ierr, "the provider rejects output that breaks the schema")
	})

	t.Run("empty text", func(t *testing.T) {
		g := New(llm.NewMockProvider(llm.MockResponse{Text: "  "}), DefaultConfig())
		_, err := g.Generate(context.Background(), RoleTutor, "hi")
		var gerr *GenerationError
		assert.ErrorAs(t, err, &gerr)
	})

	t.Run("unknown role", func(t *testing.T) {
		mock := llm.NewMockProvider()
		_, err := New(mock, DefaultConfig()).Generate(context.Background(), Role("oracle"), "hi")
		assert.Error(t, err)
		assert.Zero(t, mock.CallCount())
	})
}

func TestGenerateRecordsPurpose(t *testing.T) {
	mock := llm.NewMockProvider(llm.MockResponse{Text: "hello"}, llm.MockResponse{Text: "# Loops"})
	g := New(mock, DefaultConfig())

	text, err := g.Generate(context.Background(), RoleTutor, "hi")
	require.NoError(t, err)
	assert.Equal(t, "hello", text)

	_, err = g.GenerateMaterial(context.Background(), "goal", path.Concept{Name: "Loops"}, DefaultProfile())
	require.NoError(t, err)

	assert.Equal(t, []string{string(RoleTutor), PurposeMaterial}, mock.Purposes)
	assert.Equal(t, curatorPrompt, mock.Calls[1].System)
}

func TestGeneratePretestDropsUnknownConcepts(t *testing.T) {
	mock := llm.NewMockProvider(llm.MockResponse{Text: `{"questions":[
		{"id":"a","conceptId":"C1","kind":"multiple-choice","prompt":"p","choices":["x","y"],"expected":"x"},
		{"id":"b","conceptId":"C9","kind":"multiple-choice","prompt":"p","choices":["x","y"],"expected":"x"}
	]}`}, llm.MockResponse{Text: `{"questions":[
		{"id":"b","conceptId":"C9","kind":"multiple-choice","prompt":"p","choices":["x","y"],"expected":"x"}
	]}`})
	g := New(mock, DefaultConfig())
	concepts := path.Path{{ID: "C1", Name: "Variables", Status: path.StatusOpen}}

	qs, err := g.GeneratePretest(context.Background(), "goal", concepts)
	require.NoError(t, err)
	require.Len(t, qs, 1)
	assert.Equal(t, "C1", qs[0].ConceptID)
	assert.Contains(t, mock.Calls[0].Messages[0].Content, "- C1: Variables")

	_, err = g.GeneratePretest(context.Background(), "goal", concepts)
	var perr *ParseError
	assert.ErrorAs(t, err, &perr)
}

func TestDialogueRoles(t *testing.T) {
	mock := llm.NewMockProvider(llm.MockResponse{Text: "Which part feels unfamiliar?"})
	g := New(mock, DefaultConfig())

	history := []Turn{
		{Speaker: SpeakerTutor, Text: "What is tricky?"},
		{Speaker: SpeakerLearner, Text: "Pointers"},
	}
	_, err := g.Diagnose(context.Background(), path.Concept{Name: "Slices"}, history)
	require.NoError(t, err)

	msgs := mock.Calls[0].Messages
	require.Len(t, msgs, 3)
	assert.Equal(t, llm.RoleAssistant, msgs[1].Role)
	assert.Equal(t, llm.RoleUser, msgs[2].Role)
}

func TestSimulatorDrivesEveryHelper(t *testing.T) {
	g := New(llm.NewScriptedProvider(Simulator()), DefaultConfig())
	ctx := context.Background()

	plan, err := g.PlanGoal(ctx, "Go")
	require.NoError(t, err)
	require.Len(t, plan.Concepts, 3)

	pre, err := g.GeneratePretest(ctx, plan.Goal, plan.Concepts)
	require.NoError(t, err)
	assert.Len(t, pre, 3)

	active := plan.Concepts[0]
	material, err := g.GenerateMaterial(ctx, plan.Goal, active, DefaultProfile())
	require.NoError(t, err)
	assert.Contains(t, material, "# "+active.Name)

	test, err := g.GenerateTest(ctx, active, DefaultProfile())
	require.NoError(t, err)
	require.Len(t, test, 2)
	assert.Equal(t, active.ID, test[0].ConceptID)
	assert.Equal(t, active.Name, test[0].Expected)

	ok, err := g.Judge(ctx, test[1], "it is about the basics")
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = g.Judge(ctx, test[1], "no")
	require.NoError(t, err)
	assert.False(t, ok)

	skipped := plan.Concepts.Clone()
	require.NoError(t, skipped.MarkSkipped(skipped[1].ID, path.ProvenanceExpertSkip))
	gap, err := g.PlanGap(ctx, plan.Goal, skipped, active, "Core ideas", nil)
	require.NoError(t, err)
	assert.Equal(t, "Core ideas", gap.Concept.Name)
	assert.Equal(t, []string{skipped[1].ID}, gap.Reactivate)

	reply, err := g.Reply(ctx, active, nil, "why?")
	require.NoError(t, err)
	assert.Contains(t, reply, "why?")

	_, err = g.Diagnose(ctx, active, nil)
	assert.NoError(t, err)
}

func TestGeneratorSatisfiesJudge(t *testing.T) {
	var _ evaluation.Judge = New(llm.NewMockProvider(), DefaultConfig())
	assert.True(t, errors.Is(&GenerationError{Err: context.Canceled}, context.Canceled))
}
