package tutor

import (
	"github.com/abhisek/alis/internal/agents"
	"github.com/abhisek/alis/internal/evaluation"
	"github.com/abhisek/alis/internal/path"
)

// QuestionView is a question as shown to the learner, without its answer.
type QuestionView struct {
	ID        string          `json:"id"`
	ConceptID string          `json:"conceptId,omitempty"`
	Kind      evaluation.Kind `json:"kind"`
	Prompt    string          `json:"prompt"`
	Choices   []string        `json:"choices,omitempty"`
}

// Progress counts resolved concepts on the path.
type Progress struct {
	Resolved int `json:"resolved"`
	Total    int `json:"total"`
}

// Output is the command result rendered by clients. Clients decide what
// to show from Phase alone.
type Output struct {
	SessionKey       string             `json:"sessionKey"`
	Phase            Phase              `json:"phase"`
	Goal             *Goal              `json:"goal"`
	Path             path.Path          `json:"path"`
	ActiveConcept    *path.Concept      `json:"activeConcept"`
	EvaluationResult *evaluation.Result `json:"evaluationResult"`
	Message          string             `json:"message"`

	PendingTest    []QuestionView `json:"pendingTest,omitempty"`
	Pretest        []QuestionView `json:"pretest,omitempty"`
	Dialogue       []agents.Turn  `json:"dialogue,omitempty"`
	Material       string         `json:"material,omitempty"`
	FailedAttempts int            `json:"failedAttempts"`
	Progress       Progress       `json:"progress"`
	Allowed        []Event        `json:"allowedEvents"`
}

// View renders s for a client. The expected answers of pending questions
// are withheld.
func View(s *State, message string) Output {
	out := Output{
		SessionKey:       s.Key,
		Phase:            s.Phase,
		Goal:             s.Goal,
		Path:             s.Path,
		EvaluationResult: s.LastEvaluation,
		Message:          message,
		Dialogue:         s.Dialogue,
		Material:         s.Material,
		FailedAttempts:   s.FailedAttempts,
		Allowed:          Allowed(s.Phase),
	}
	if out.Path == nil {
		out.Path = path.Path{}
	}
	if c, ok := s.ActiveConcept(); ok {
		out.ActiveConcept = &c
	}
	out.Progress.Resolved, out.Progress.Total = s.Path.Progress()
	out.PendingTest = questionViews(s.PendingTest)
	out.Pretest = questionViews(s.Pretest)
	return out
}

func questionViews(qs []evaluation.Question) []QuestionView {
	if len(qs) == 0 {
		return nil
	}
	out := make([]QuestionView, len(qs))
	for i, q := range qs {
		out[i] = QuestionView{ID: q.ID, ConceptID: q.ConceptID, Kind: q.Kind, Prompt: q.Prompt, Choices: q.Choices}
	}
	return out
}
