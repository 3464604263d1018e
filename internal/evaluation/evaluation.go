// Package evaluation scores submitted tests against a pass threshold.
package evaluation

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
)

// DefaultThreshold is the pass mark used when none is configured.
const DefaultThreshold = 70

// ErrInvalidConfig is returned for a test that cannot be scored: no
// questions, or a threshold outside 1-100.
var ErrInvalidConfig = errors.New("invalid evaluation configuration")

// Kind is the question format.
type Kind string

const (
	KindMultipleChoice Kind = "multiple-choice"
	KindFreeText       Kind = "free-text"
)

// Question is one test item. For multiple choice, Expected is the text of
// the correct choice. For free text it is the reference answer or rubric
// handed to the Judge.
type Question struct {
	ID        string   `json:"id"`
	ConceptID string   `json:"conceptId,omitempty"`
	Kind      Kind     `json:"kind"`
	Prompt    string   `json:"prompt"`
	Choices   []string `json:"choices,omitempty"`
	Expected  string   `json:"expected"`
}

// Result is the outcome of one test submission. It is never modified after
// Evaluate returns it.
type Result struct {
	Score       int       `json:"score"`
	Passed      bool      `json:"passed"`
	Correct     []bool    `json:"correct"`
	Threshold   int       `json:"threshold"`
	EvaluatedAt time.Time `json:"evaluatedAt"`
}

// Judge decides whether a free-text answer is semantically adequate.
type Judge interface {
	Judge(ctx context.Context, q Question, answer string) (bool, error)
}

// JudgeFunc adapts a function to the Judge interface.
type JudgeFunc func(ctx context.Context, q Question, answer string) (bool, error)

// Judge calls f.
func (f JudgeFunc) Judge(ctx context.Context, q Question, answer string) (bool, error) {
	return f(ctx, q, answer)
}

// Policy scores tests against a fixed threshold.
type Policy struct {
	threshold int
	judge     Judge
	now       func() time.Time
}

// NewPolicy validates the threshold and returns a scoring policy.
// judge may be nil when only multiple-choice questions will be scored.
func NewPolicy(threshold int, judge Judge) (*Policy, error) {
	if threshold < 1 || threshold > 100 {
		return nil, fmt.Errorf("%w: threshold %d outside 1-100", ErrInvalidConfig, threshold)
	}
	return &Policy{threshold: threshold, judge: judge, now: time.Now}, nil
}

// Threshold returns the configured pass mark.
func (p *Policy) Threshold() int { return p.threshold }

// Evaluate scores answers (keyed by question id) against questions.
// A missing or blank answer counts as incorrect.
func (p *Policy) Evaluate(ctx context.Context, questions []Question, answers map[string]string) (*Result, error) {
	correct, err := p.mark(ctx, questions, answers)
	if err != nil {
		return nil, err
	}
	score := Score(correct)
	return &Result{
		Score:       score,
		Passed:      score >= p.threshold,
		Correct:     correct,
		Threshold:   p.threshold,
		EvaluatedAt: p.now().UTC(),
	}, nil
}

// AssessPriorKnowledge scores a pretest and returns, in addition to the
// overall result, the concept ids whose questions were answered correctly
// at or above the threshold.
func (p *Policy) AssessPriorKnowledge(ctx context.Context, questions []Question, answers map[string]string) ([]string, *Result, error) {
	res, err := p.Evaluate(ctx, questions, answers)
	if err != nil {
		return nil, nil, err
	}

	type tally struct{ right, total int }
	byConcept := make(map[string]*tally)
	for i, q := range questions {
		if q.ConceptID == "" {
			continue
		}
		t := byConcept[q.ConceptID]
		if t == nil {
			t = &tally{}
			byConcept[q.ConceptID] = t
		}
		t.total++
		if res.Correct[i] {
			t.right++
		}
	}

	var mastered []string
	for id, t := range byConcept {
		if 100*t.right/t.total >= p.threshold {
			mastered = append(mastered, id)
		}
	}
	sort.Strings(mastered)
	return mastered, res, nil
}

func (p *Policy) mark(ctx context.Context, questions []Question, answers map[string]string) ([]bool, error) {
	if len(questions) == 0 {
		return nil, fmt.Errorf("%w: test has no questions", ErrInvalidConfig)
	}

	correct := make([]bool, len(questions))
	for i, q := range questions {
		answer := strings.TrimSpace(answers[q.ID])
		if answer == "" {
			continue
		}
		switch q.Kind {
		case KindMultipleChoice:
			correct[i] = CheckChoice(answer, q)
		case KindFreeText:
			if p.judge == nil {
				return nil, fmt.Errorf("%w: free-text question %q without a judge", ErrInvalidConfig, q.ID)
			}
			ok, err := p.judge.Judge(ctx, q, answer)
			if err != nil {
				return nil, fmt.Errorf("judge question %q: %w", q.ID, err)
			}
			correct[i] = ok
		default:
			return nil, fmt.Errorf("%w: question %q has unknown kind %q", ErrInvalidConfig, q.ID, q.Kind)
		}
	}
	return correct, nil
}

// Score returns 100*correct/total rounded down.
func Score(correct []bool) int {
	if len(correct) == 0 {
		return 0
	}
	n := 0
	for _, ok := range correct {
		if ok {
			n++
		}
	}
	return 100 * n / len(correct)
}

// CheckChoice compares a multiple-choice answer with the expected choice.
// The answer may be the choice text, its 1-based index, or its letter; a
// choice text always wins over the index or letter reading. Comparison is
// whitespace-trimmed and case-insensitive.
func CheckChoice(answer string, q Question) bool {
	answer = strings.TrimSpace(answer)
	expected := strings.TrimSpace(q.Expected)

	if strings.EqualFold(answer, expected) {
		return true
	}
	for _, c := range q.Choices {
		if strings.EqualFold(strings.TrimSpace(c), answer) {
			return false
		}
	}

	if idx, err := strconv.Atoi(answer); err == nil && idx >= 1 && idx <= len(q.Choices) {
		return strings.EqualFold(strings.TrimSpace(q.Choices[idx-1]), expected)
	}
	if len(answer) == 1 && len(q.Choices) > 0 {
		r := strings.ToLower(answer)[0]
		if idx := int(r - 'a'); r >= 'a' && idx < len(q.Choices) {
			return strings.EqualFold(strings.TrimSpace(q.Choices[idx]), expected)
		}
	}
	return false
}
