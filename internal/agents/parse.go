package agents

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/abhisek/alis/internal/evaluation"
	"github.com/abhisek/alis/internal/llm"
	"github.com/abhisek/alis/internal/path"
)

// ParseError reports model output that does not fit the expected shape.
type ParseError struct {
	Kind string // "plan", "questions", "gap" or "judgement"
	Text string
	Err  error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse %s: %v", e.Kind, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// Plan is the Architect's goal contract plus the initial path.
type Plan struct {
	Goal          string
	BloomLevel    int
	SuccessMetric string
	Concepts      path.Path
}

// GapPlan is the Architect's remediation for a diagnosed gap.
type GapPlan struct {
	Concept    path.Concept
	Reactivate []string
	Rationale  string
}

// Judgement is the Curator's verdict on a free-text answer.
type Judgement struct {
	Correct  bool
	Feedback string
}

// stripFences removes a Markdown code fence around a JSON payload.
func stripFences(text string) string {
	s := strings.TrimSpace(text)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[i+1:]
	} else {
		s = ""
	}
	s = strings.TrimSpace(s)
	return strings.TrimSpace(strings.TrimSuffix(s, "```"))
}

// decode strips fences, validates against schema and unmarshals into out.
func decode(kind, text string, schema *llm.Schema, out any) error {
	raw := []byte(stripFences(text))
	if _, err := llm.ValidateJSON(schema, raw); err != nil {
		return &ParseError{Kind: kind, Text: text, Err: err}
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return &ParseError{Kind: kind, Text: text, Err: err}
	}
	return nil
}

type conceptOutput struct {
	ID                 string  `json:"id"`
	Name               string  `json:"name"`
	RequiredBloomLevel int     `json:"requiredBloomLevel"`
	EstimatedTime      float64 `json:"estimatedTime"`
}

func (c conceptOutput) concept() path.Concept {
	return path.Concept{
		ID:                   strings.TrimSpace(c.ID),
		Name:                 strings.TrimSpace(c.Name),
		Status:               path.StatusOpen,
		RequiredMasteryLevel: clampBloom(c.RequiredBloomLevel),
		EstimatedDuration:    c.EstimatedTime,
	}
}

func clampBloom(level int) int {
	return min(max(level, 1), 6)
}

type planOutput struct {
	Goal          string          `json:"goal"`
	BloomLevel    int             `json:"bloomLevel"`
	SuccessMetric string          `json:"successMetric"`
	Concepts      []conceptOutput `json:"concepts"`
}

// ParsePlan parses the Architect's plan. Concepts with a missing or
// duplicate id get a fresh one, so the path always has unique ids.
func ParsePlan(text string) (*Plan, error) {
	var out planOutput
	if err := decode("plan", text, PlanSchema, &out); err != nil {
		return nil, err
	}

	plan := &Plan{
		Goal:          strings.TrimSpace(out.Goal),
		BloomLevel:    clampBloom(out.BloomLevel),
		SuccessMetric: strings.TrimSpace(out.SuccessMetric),
	}
	seen := make(map[string]bool, len(out.Concepts))
	for _, co := range out.Concepts {
		c := co.concept()
		if c.ID == "" || seen[c.ID] {
			c.ID = path.NewID()
		}
		seen[c.ID] = true
		plan.Concepts = append(plan.Concepts, c)
	}
	return plan, nil
}

type questionsOutput struct {
	Questions []evaluation.Question `json:"questions"`
}

// ParseQuestions parses a list of questions. Multiple-choice items must
// offer at least two choices and list the expected one among them.
func ParseQuestions(text string) ([]evaluation.Question, error) {
	var out questionsOutput
	if err := decode("questions", text, QuestionsSchema, &out); err != nil {
		return nil, err
	}

	// Answers are keyed by id, so blank and repeated ids get a fresh one
	// that no other question uses.
	used := make(map[string]bool, len(out.Questions))
	fresh := make([]bool, len(out.Questions))
	for i := range out.Questions {
		q := &out.Questions[i]
		q.ID = strings.TrimSpace(q.ID)
		if q.ID == "" || used[q.ID] {
			fresh[i] = true
			continue
		}
		used[q.ID] = true
	}
	next := 1
	for i := range out.Questions {
		if !fresh[i] {
			continue
		}
		for used[fmt.Sprintf("q%d", next)] {
			next++
		}
		out.Questions[i].ID = fmt.Sprintf("q%d", next)
		used[out.Questions[i].ID] = true
	}

	for i := range out.Questions {
		q := &out.Questions[i]

		if q.Kind != evaluation.KindMultipleChoice {
			q.Choices = nil
			continue
		}
		if len(q.Choices) < 2 {
			return nil, &ParseError{Kind: "questions", Text: text,
				Err: fmt.Errorf("question %s: multiple choice needs at least two choices", q.ID)}
		}
		expected, ok := expectedChoice(*q)
		if !ok {
			return nil, &ParseError{Kind: "questions", Text: text,
				Err: fmt.Errorf("question %s: expected answer %q is not a choice", q.ID, q.Expected)}
		}
		q.Expected = expected
	}
	return out.Questions, nil
}

// expectedChoice resolves Expected to the text of one of the choices.
// Models sometimes answer with the letter or index instead of the text.
func expectedChoice(q evaluation.Question) (string, bool) {
	for _, c := range q.Choices {
		if strings.EqualFold(strings.TrimSpace(c), strings.TrimSpace(q.Expected)) {
			return c, true
		}
	}
	for _, c := range q.Choices {
		if evaluation.CheckChoice(q.Expected, evaluation.Question{Choices: q.Choices, Expected: c}) {
			return c, true
		}
	}
	return "", false
}

type gapOutput struct {
	Concept    conceptOutput `json:"concept"`
	Reactivate []string      `json:"reactivate"`
	Rationale  string        `json:"rationale"`
}

// ParseGap parses the Architect's remediation. The concept id is always
// left empty; the path assigns one on insertion.
func ParseGap(text string) (*GapPlan, error) {
	var out gapOutput
	if err := decode("gap", text, GapSchema, &out); err != nil {
		return nil, err
	}
	c := out.Concept.concept()
	c.ID = ""
	return &GapPlan{
		Concept:    c,
		Reactivate: out.Reactivate,
		Rationale:  strings.TrimSpace(out.Rationale),
	}, nil
}

type judgementOutput struct {
	Correct  bool   `json:"correct"`
	Feedback string `json:"feedback"`
}

// ParseJudgement parses the Curator's verdict on a free-text answer.
func ParseJudgement(text string) (*Judgement, error) {
	var out judgementOutput
	if err := decode("judgement", text, JudgementSchema, &out); err != nil {
		return nil, err
	}
	return &Judgement{Correct: out.Correct, Feedback: out.Feedback}, nil
}
