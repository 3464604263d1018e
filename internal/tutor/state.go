package tutor

import (
	"encoding/json"
	"fmt"
	"slices"
	"time"

	"github.com/abhisek/alis/internal/agents"
	"github.com/abhisek/alis/internal/evaluation"
	"github.com/abhisek/alis/internal/path"
)

// GoalStatus is the lifecycle of a goal.
type GoalStatus string

const (
	GoalInProgress GoalStatus = "in_progress"
	GoalCompleted  GoalStatus = "completed"
	GoalAbandoned  GoalStatus = "abandoned"
)

// Goal is the learning contract. Only Status changes after creation.
type Goal struct {
	ID                string     `json:"id"`
	Name              string     `json:"name"`
	Intent            string     `json:"intent"`
	TargetProficiency int        `json:"targetProficiency"`
	SuccessMetric     string     `json:"successMetric"`
	Status            GoalStatus `json:"status"`
	CreatedAt         time.Time  `json:"createdAt"`
}

// State is everything the machine knows about one session. It is
// persisted verbatim after every successful transition.
type State struct {
	Key             string             `json:"key"`
	Phase           Phase              `json:"phase"`
	Goal            *Goal              `json:"goal,omitempty"`
	Path            path.Path          `json:"path"`
	ActiveConceptID string             `json:"activeConceptId,omitempty"`
	LastEvaluation  *evaluation.Result `json:"lastEvaluationResult,omitempty"`

	PendingTest    []evaluation.Question `json:"pendingTest,omitempty"`
	Pretest        []evaluation.Question `json:"pretest,omitempty"`
	FailedAttempts int                   `json:"failedAttempts"`
	PretestEnabled bool                  `json:"pretestEnabled"`
	Profile        agents.Profile        `json:"profile"`
	Dialogue       []agents.Turn         `json:"dialogue,omitempty"`
	Material       string                `json:"material,omitempty"`
	UpdatedAt      time.Time             `json:"updatedAt"`
}

// NewState returns a session waiting for a goal.
func NewState(key string, pretest bool) *State {
	return &State{
		Key:            key,
		Phase:          PhaseGoalSetting,
		PretestEnabled: pretest,
		Profile:        agents.DefaultProfile(),
	}
}

// ActiveConcept resolves the weak active-concept reference.
func (s *State) ActiveConcept() (path.Concept, bool) {
	if s.ActiveConceptID == "" {
		return path.Concept{}, false
	}
	return s.Path.Get(s.ActiveConceptID)
}

// GoalID returns the goal id, or "" before a goal is set.
func (s *State) GoalID() string {
	if s.Goal == nil {
		return ""
	}
	return s.Goal.ID
}

// Clone returns a deep copy. Transitions run on a clone so that a failed
// transition leaves the original untouched.
func (s *State) Clone() *State {
	c := *s
	if s.Goal != nil {
		g := *s.Goal
		c.Goal = &g
	}
	c.Path = s.Path.Clone()
	if s.LastEvaluation != nil {
		r := *s.LastEvaluation
		r.Correct = slices.Clone(s.LastEvaluation.Correct)
		c.LastEvaluation = &r
	}
	c.PendingTest = cloneQuestions(s.PendingTest)
	c.Pretest = cloneQuestions(s.Pretest)
	c.Dialogue = slices.Clone(s.Dialogue)
	return &c
}

func cloneQuestions(qs []evaluation.Question) []evaluation.Question {
	if qs == nil {
		return nil
	}
	out := make([]evaluation.Question, len(qs))
	for i, q := range qs {
		q.Choices = slices.Clone(q.Choices)
		out[i] = q
	}
	return out
}

// Validate checks the path invariants and the active-concept reference.
func (s *State) Validate() error {
	if err := s.Path.Validate(); err != nil {
		return err
	}
	active, ok := s.Path.Active()
	switch {
	case ok && active.ID != s.ActiveConceptID:
		return fmt.Errorf("active concept %q does not match reference %q", active.ID, s.ActiveConceptID)
	case !ok && s.ActiveConceptID != "":
		if _, exists := s.Path.Get(s.ActiveConceptID); !exists {
			return fmt.Errorf("active concept %q is not on the path", s.ActiveConceptID)
		}
	}
	return nil
}

// Marshal encodes the state for the session store.
func (s *State) Marshal() ([]byte, error) {
	return json.Marshal(s)
}

// UnmarshalState decodes a stored state and checks its invariants.
func UnmarshalState(data []byte) (*State, error) {
	var s State
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("decode session state: %w", err)
	}
	if err := s.Validate(); err != nil {
		return nil, fmt.Errorf("stored session state: %w", err)
	}
	return &s, nil
}
