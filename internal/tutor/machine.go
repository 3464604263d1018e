// Package tutor implements the tutoring session state machine: the phase
// transition table and the path mutations each transition performs.
package tutor

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/abhisek/alis/internal/agents"
	"github.com/abhisek/alis/internal/evaluation"
	"github.com/abhisek/alis/internal/path"
)

// Generator is the content the machine needs from the agent roles.
// *agents.Generator implements it.
type Generator interface {
	evaluation.Judge
	PlanGoal(ctx context.Context, goal string) (*agents.Plan, error)
	GeneratePretest(ctx context.Context, goal string, concepts path.Path) ([]evaluation.Question, error)
	GenerateMaterial(ctx context.Context, goal string, c path.Concept, profile agents.Profile) (string, error)
	Reply(ctx context.Context, c path.Concept, history []agents.Turn, message string) (string, error)
	Diagnose(ctx context.Context, c path.Concept, history []agents.Turn) (string, error)
	PlanGap(ctx context.Context, goal string, p path.Path, active path.Concept, gap string, history []agents.Turn) (*agents.GapPlan, error)
	GenerateTest(ctx context.Context, c path.Concept, profile agents.Profile) ([]evaluation.Question, error)
}

// Config holds per-deployment session settings.
type Config struct {
	// Threshold is the pass mark for tests, 1-100.
	Threshold int

	// MaxFailedAttempts bounds how often a concept may be repeated after
	// failing its test. Zero means unbounded.
	MaxFailedAttempts int

	// PretestEnabled puts new sessions through the prior-knowledge test.
	PretestEnabled bool
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		Threshold:         evaluation.DefaultThreshold,
		MaxFailedAttempts: 3,
		PretestEnabled:    true,
	}
}

// Payload carries the per-event fields of a command.
type Payload struct {
	Goal      string            `json:"goal,omitempty"`
	ConceptID string            `json:"conceptId,omitempty"`
	Answers   map[string]string `json:"answers,omitempty"`
	Message   string            `json:"message,omitempty"`
	GapName   string            `json:"gapName,omitempty"`
	Profile   *agents.Profile   `json:"profile,omitempty"`
}

// Command is one event addressed to a session.
type Command struct {
	Event   Event   `json:"event"`
	Payload Payload `json:"payload"`
}

type action func(m *Machine, ctx context.Context, s *State, p Payload) (string, error)

// Machine applies commands to session states. It holds no session data
// and is safe for concurrent use across sessions.
type Machine struct {
	gen    Generator
	policy *evaluation.Policy
	cfg    Config
	now    func() time.Time
}

// NewMachine validates cfg and returns a Machine.
func NewMachine(gen Generator, cfg Config) (*Machine, error) {
	policy, err := evaluation.NewPolicy(cfg.Threshold, gen)
	if err != nil {
		return nil, newError(KindConfiguration, err, "pass threshold %d", cfg.Threshold)
	}
	if cfg.MaxFailedAttempts < 0 {
		return nil, newError(KindConfiguration, nil, "max failed attempts must not be negative, got %d", cfg.MaxFailedAttempts)
	}
	return &Machine{gen: gen, policy: policy, cfg: cfg, now: time.Now}, nil
}

// NewState returns a fresh session configured by the machine.
func (m *Machine) NewState(key string) *State {
	return NewState(key, m.cfg.PretestEnabled)
}

// Apply runs one command against s and returns the resulting state and a
// message for the learner. s is never modified: on error the caller keeps
// its original state, on success it replaces it with the returned one.
// A nil s, or goal_confirmed on a finished session, starts a new session.
func (m *Machine) Apply(ctx context.Context, key string, s *State, cmd Command) (*State, string, error) {
	if s == nil || (cmd.Event == EventGoalConfirmed && s.Phase.Terminal()) {
		fresh := m.NewState(key)
		if s != nil {
			fresh.PretestEnabled = s.PretestEnabled
			fresh.Profile = s.Profile
		}
		s = fresh
	}

	row, ok := transitions[s.Phase][cmd.Event]
	if !ok {
		return nil, "", IllegalTransitionError(s.Phase, cmd.Event)
	}

	next := s.Clone()
	msg, err := row.run(m, ctx, next, cmd.Payload)
	if err != nil {
		return nil, "", classify(err)
	}
	if !slices.Contains(row.next, next.Phase) {
		return nil, "", Internal(nil, "event %q left phase %q in unexpected phase %q", cmd.Event, s.Phase, next.Phase)
	}
	if err := next.Validate(); err != nil {
		return nil, "", Internal(err, "event %q broke session invariants", cmd.Event)
	}
	next.UpdatedAt = m.now()
	return next, msg, nil
}

func (m *Machine) activeConcept(s *State) (path.Concept, error) {
	c, ok := s.ActiveConcept()
	if !ok {
		return path.Concept{}, InvalidState("no active concept")
	}
	return c, nil
}

// activate makes id the active concept and resets everything scoped to
// the previous one.
func (m *Machine) activate(s *State, id string) error {
	if err := s.Path.SetActive(id); err != nil {
		return err
	}
	if id != s.ActiveConceptID {
		s.FailedAttempts = 0
	}
	s.ActiveConceptID = id
	m.enterLearning(s)
	return nil
}

// enterLearning clears what belongs to the previous visit of Learning.
func (m *Machine) enterLearning(s *State) {
	s.Phase = PhaseLearning
	s.LastEvaluation = nil
	s.PendingTest = nil
	s.Dialogue = nil
	s.Material = ""
}

// nextPending finds the concept to study after afterID, wrapping to the
// start so that pending concepts ahead of it are not missed.
func nextPending(p path.Path, afterID string) (path.Concept, bool) {
	if c, ok := p.NextOpenConcept(afterID); ok {
		return c, true
	}
	return p.NextOpenConcept("")
}

func (m *Machine) complete(s *State) {
	s.Phase = PhaseGoalComplete
	s.ActiveConceptID = ""
	s.PendingTest = nil
	s.Dialogue = nil
	s.Material = ""
	if s.Goal != nil {
		s.Goal.Status = GoalCompleted
	}
}

// moveOn activates the next pending concept or completes the goal.
func (m *Machine) moveOn(s *State, afterID string) (string, error) {
	next, ok := nextPending(s.Path, afterID)
	if !ok {
		m.complete(s)
		return "Goal complete. Every concept on your path is resolved.", nil
	}
	if err := m.activate(s, next.ID); err != nil {
		return "", err
	}
	return fmt.Sprintf("Next up: %s.", next.Name), nil
}

func (m *Machine) goalName(s *State) string {
	if s.Goal == nil {
		return ""
	}
	return s.Goal.Name
}
