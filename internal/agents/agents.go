// Package agents turns tutoring requests into prompts for the four agent
// roles and parses what the model sends back.
package agents

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/abhisek/alis/internal/evaluation"
	"github.com/abhisek/alis/internal/llm"
	"github.com/abhisek/alis/internal/path"
)

// Role names an agent persona. The role also labels LLM request events.
type Role string

const (
	RoleArchitect Role = "architect"
	RoleCurator   Role = "curator"
	RoleTutor     Role = "tutor"
	RoleAssessor  Role = "assessor"
)

// Purpose labels attached to each typed request.
const (
	PurposePlan      = "architect-plan"
	PurposeGap       = "architect-gap"
	PurposePretest   = "assessor-pretest"
	PurposeMaterial  = "curator-material"
	PurposeTest      = "curator-test"
	PurposeJudge     = "curator-judge"
	PurposeReply     = "tutor-reply"
	PurposeDiagnosis = "tutor-diagnosis"
)

// Profile describes how the learner prefers material to be presented.
type Profile struct {
	StylePreference string `json:"stylePreference"`
	ComplexityLevel int    `json:"complexityLevel"`
	PaceWPM         int    `json:"paceWPM"`
}

// DefaultProfile returns the profile used when the learner gave none.
func DefaultProfile() Profile {
	return Profile{StylePreference: "example-driven", ComplexityLevel: 3, PaceWPM: 200}
}

// Turn is one message of a tutoring dialogue.
type Turn struct {
	Speaker string `json:"speaker"` // "learner" or "tutor"
	Text    string `json:"text"`
}

const (
	SpeakerLearner = "learner"
	SpeakerTutor   = "tutor"
)

// Config holds generation limits.
type Config struct {
	MaxTokens           int
	StructuredMaxTokens int
	Temperature         float64
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		MaxTokens:           1500,
		StructuredMaxTokens: 2048,
		Temperature:         0.4,
	}
}

// Generator is the content generator backed by an llm.Provider.
type Generator struct {
	provider llm.Provider
	cfg      Config
}

// New creates a Generator.
func New(provider llm.Provider, cfg Config) *Generator {
	return &Generator{provider: provider, cfg: cfg}
}

// GenerationError reports that an agent role could not produce usable
// output. The transition that needed it should be retried.
type GenerationError struct {
	Role Role
	Err  error
}

func (e *GenerationError) Error() string {
	return fmt.Sprintf("%s generation failed: %v", e.Role, e.Err)
}

func (e *GenerationError) Unwrap() error { return e.Err }

// Timeout reports whether the failure was a deadline.
func (e *GenerationError) Timeout() bool {
	return errors.Is(e.Err, context.DeadlineExceeded)
}

func systemPrompt(role Role) string {
	switch role {
	case RoleArchitect:
		return architectPrompt
	case RoleCurator:
		return curatorPrompt
	case RoleTutor:
		return tutorPrompt
	case RoleAssessor:
		return assessorPrompt
	}
	return ""
}

// Generate sends free-form context to a role and returns its text. The
// request is recorded under the role name unless ctx already names a
// purpose.
func (g *Generator) Generate(ctx context.Context, role Role, input string) (string, error) {
	if llm.PurposeFrom(ctx) == "unknown" {
		ctx = llm.WithPurpose(ctx, string(role))
	}
	return g.text(ctx, role, llm.UserMessage(input))
}

func (g *Generator) text(ctx context.Context, role Role, msgs []llm.Message) (string, error) {
	system := systemPrompt(role)
	if system == "" {
		return "", &GenerationError{Role: role, Err: fmt.Errorf("unknown role %q", role)}
	}
	resp, err := g.provider.Generate(ctx, llm.Request{
		System:      system,
		Messages:    msgs,
		MaxTokens:   g.cfg.MaxTokens,
		Temperature: g.cfg.Temperature,
	})
	if err != nil {
		return "", &GenerationError{Role: role, Err: err}
	}
	out := strings.TrimSpace(resp.Text)
	if out == "" {
		return "", &GenerationError{Role: role, Err: errors.New("empty response")}
	}
	return out, nil
}

func (g *Generator) structured(ctx context.Context, role Role, purpose string, schema *llm.Schema, prompt string) (string, error) {
	ctx = llm.WithPurpose(ctx, purpose)
	resp, err := g.provider.Generate(ctx, llm.Request{
		System:      systemPrompt(role),
		Messages:    llm.UserMessage(prompt),
		Schema:      schema,
		MaxTokens:   g.cfg.StructuredMaxTokens,
		Temperature: g.cfg.Temperature,
	})
	if err != nil {
		return "", &GenerationError{Role: role, Err: err}
	}
	return resp.Text, nil
}

// PlanGoal asks the Architect to turn the learner's intent into a goal
// contract and an initial concept path.
func (g *Generator) PlanGoal(ctx context.Context, goal string) (*Plan, error) {
	prompt, err := render(planTemplate, struct{ Goal string }{goal})
	if err != nil {
		return nil, err
	}
	text, err := g.structured(ctx, RoleArchitect, PurposePlan, PlanSchema, prompt)
	if err != nil {
		return nil, err
	}
	plan, err := ParsePlan(text)
	if err != nil {
		return nil, &GenerationError{Role: RoleArchitect, Err: err}
	}
	return plan, nil
}

// GeneratePretest asks the Assessor for prior-knowledge questions. Every
// returned question names one of the given concepts.
func (g *Generator) GeneratePretest(ctx context.Context, goal string, concepts path.Path) ([]evaluation.Question, error) {
	prompt, err := render(pretestTemplate, struct {
		Goal     string
		Concepts path.Path
	}{goal, concepts})
	if err != nil {
		return nil, err
	}
	text, err := g.structured(ctx, RoleAssessor, PurposePretest, QuestionsSchema, prompt)
	if err != nil {
		return nil, err
	}
	questions, err := ParseQuestions(text)
	if err != nil {
		return nil, &GenerationError{Role: RoleAssessor, Err: err}
	}

	kept := questions[:0]
	for _, q := range questions {
		if _, ok := concepts.Get(q.ConceptID); ok {
			kept = append(kept, q)
		}
	}
	if len(kept) == 0 {
		return nil, &GenerationError{Role: RoleAssessor, Err: &ParseError{
			Kind: "questions", Err: errors.New("no question references a concept on the path"),
		}}
	}
	return kept, nil
}

// GenerateMaterial asks the Curator for Markdown learning material.
func (g *Generator) GenerateMaterial(ctx context.Context, goal string, c path.Concept, profile Profile) (string, error) {
	prompt, err := render(materialTemplate, struct {
		Goal    string
		Concept path.Concept
		Profile Profile
	}{goal, c, profile})
	if err != nil {
		return "", err
	}
	return g.Generate(llm.WithPurpose(ctx, PurposeMaterial), RoleCurator, prompt)
}

// Reply asks the Tutor to answer the learner's latest message.
func (g *Generator) Reply(ctx context.Context, c path.Concept, history []Turn, message string) (string, error) {
	prompt, err := render(replyTemplate, struct{ Concept path.Concept }{c})
	if err != nil {
		return "", err
	}
	msgs := dialogue(prompt, history)
	msgs = append(msgs, llm.Message{Role: llm.RoleUser, Content: message})
	return g.text(llm.WithPurpose(ctx, PurposeReply), RoleTutor, msgs)
}

// Diagnose asks the Tutor for the next diagnostic question about a
// reported gap. An empty history opens the dialogue.
func (g *Generator) Diagnose(ctx context.Context, c path.Concept, history []Turn) (string, error) {
	prompt, err := render(diagnosisTemplate, struct{ Concept path.Concept }{c})
	if err != nil {
		return "", err
	}
	return g.text(llm.WithPurpose(ctx, PurposeDiagnosis), RoleTutor, dialogue(prompt, history))
}

// PlanGap asks the Architect to define the missing prerequisite and name
// skipped concepts that depend on it.
func (g *Generator) PlanGap(ctx context.Context, goal string, p path.Path, active path.Concept, gap string, history []Turn) (*GapPlan, error) {
	prompt, err := render(gapTemplate, struct {
		Goal    string
		Path    path.Path
		Active  path.Concept
		Gap     string
		History []Turn
	}{goal, p, active, gap, history})
	if err != nil {
		return nil, err
	}
	text, err := g.structured(ctx, RoleArchitect, PurposeGap, GapSchema, prompt)
	if err != nil {
		return nil, err
	}
	plan, err := ParseGap(text)
	if err != nil {
		return nil, &GenerationError{Role: RoleArchitect, Err: err}
	}
	return plan, nil
}

// GenerateTest asks the Curator for an assessment on one concept.
func (g *Generator) GenerateTest(ctx context.Context, c path.Concept, profile Profile) ([]evaluation.Question, error) {
	prompt, err := render(testTemplate, struct {
		Concept path.Concept
		Profile Profile
	}{c, profile})
	if err != nil {
		return nil, err
	}
	text, err := g.structured(ctx, RoleCurator, PurposeTest, QuestionsSchema, prompt)
	if err != nil {
		return nil, err
	}
	questions, err := ParseQuestions(text)
	if err != nil {
		return nil, &GenerationError{Role: RoleCurator, Err: err}
	}
	for i := range questions {
		questions[i].ConceptID = c.ID
	}
	return questions, nil
}

// Judge asks the Curator whether a free-text answer is adequate. It
// satisfies evaluation.Judge.
func (g *Generator) Judge(ctx context.Context, q evaluation.Question, answer string) (bool, error) {
	prompt, err := render(judgeTemplate, struct {
		Question evaluation.Question
		Answer   string
	}{q, answer})
	if err != nil {
		return false, err
	}
	text, err := g.structured(ctx, RoleCurator, PurposeJudge, JudgementSchema, prompt)
	if err != nil {
		return false, err
	}
	j, err := ParseJudgement(text)
	if err != nil {
		return false, &GenerationError{Role: RoleCurator, Err: err}
	}
	return j.Correct, nil
}

// dialogue lays out a framing prompt followed by the transcript.
func dialogue(prompt string, history []Turn) []llm.Message {
	msgs := llm.UserMessage(prompt)
	for _, t := range history {
		role := llm.RoleUser
		if t.Speaker == SpeakerTutor {
			role = llm.RoleAssistant
		}
		msgs = append(msgs, llm.Message{Role: role, Content: t.Text})
	}
	return msgs
}
