package tutor

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/abhisek/alis/internal/agents"
	"github.com/abhisek/alis/internal/path"
	"github.com/google/uuid"
)

func (m *Machine) confirmGoal(ctx context.Context, s *State, p Payload) (string, error) {
	intent := strings.TrimSpace(p.Goal)
	if intent == "" {
		return "", BadRequest("goal text is required")
	}
	if p.Profile != nil {
		s.Profile = *p.Profile
	}

	plan, err := m.gen.PlanGoal(ctx, intent)
	if err != nil {
		return "", err
	}
	if err := plan.Concepts.Validate(); err != nil {
		return "", &agents.GenerationError{Role: agents.RoleArchitect, Err: err}
	}

	name := plan.Goal
	if name == "" {
		name = intent
	}
	s.Goal = &Goal{
		ID:                uuid.NewString(),
		Name:              name,
		Intent:            intent,
		TargetProficiency: plan.BloomLevel,
		SuccessMetric:     plan.SuccessMetric,
		Status:            GoalInProgress,
		CreatedAt:         m.now(),
	}
	s.Path = plan.Concepts
	s.ActiveConceptID = ""

	if !s.PretestEnabled {
		s.Phase = PhasePathReview
		return fmt.Sprintf("Your path has %d concepts. Skip what you already know, then confirm.", len(s.Path)), nil
	}

	questions, err := m.gen.GeneratePretest(ctx, s.Goal.Name, s.Path)
	if err != nil {
		return "", err
	}
	s.Pretest = questions
	s.Phase = PhasePriorKnowledgeTest
	return fmt.Sprintf("Answer %d quick questions so we can skip what you already know.", len(questions)), nil
}

func (m *Machine) assessPretest(ctx context.Context, s *State, p Payload) (string, error) {
	mastered, result, err := m.policy.AssessPriorKnowledge(ctx, s.Pretest, p.Answers)
	if err != nil {
		return "", err
	}
	for _, id := range mastered {
		if err := s.Path.MarkMastered(id, path.ProvenancePretestMastery); err != nil {
			return "", err
		}
	}
	s.Pretest = nil
	s.LastEvaluation = result
	s.Phase = PhasePathReview
	if len(mastered) == 0 {
		return "No concepts marked as mastered yet. Review your path and confirm.", nil
	}
	return fmt.Sprintf("You already master %d concepts. Review your path and confirm.", len(mastered)), nil
}

func (m *Machine) toggleSkip(_ context.Context, s *State, p Payload) (string, error) {
	c, ok := s.Path.Get(p.ConceptID)
	if !ok {
		return "", NotFound("concept %q is not on the path", p.ConceptID)
	}
	switch c.Status {
	case path.StatusSkipped:
		if err := s.Path.UndoSkip(c.ID); err != nil {
			return "", err
		}
		return fmt.Sprintf("%s is back on your path.", c.Name), nil
	case path.StatusMastered:
		return "", InvalidState("concept %q is already mastered", c.ID)
	}
	if err := s.Path.MarkSkipped(c.ID, path.ProvenanceExpertSkip); err != nil {
		return "", err
	}
	return fmt.Sprintf("%s will be skipped.", c.Name), nil
}

func (m *Machine) confirmPath(_ context.Context, s *State, _ Payload) (string, error) {
	s.Phase = PhasePathReview
	return m.moveOn(s, "")
}

func (m *Machine) generateMaterial(ctx context.Context, s *State, _ Payload) (string, error) {
	c, err := m.activeConcept(s)
	if err != nil {
		return "", err
	}
	material, err := m.gen.GenerateMaterial(ctx, m.goalName(s), c, s.Profile)
	if err != nil {
		return "", err
	}
	s.Material = material
	return material, nil
}

func (m *Machine) reply(ctx context.Context, s *State, p Payload) (string, error) {
	msg := strings.TrimSpace(p.Message)
	if msg == "" {
		return "", BadRequest("message is required")
	}
	c, err := m.activeConcept(s)
	if err != nil {
		return "", err
	}
	answer, err := m.gen.Reply(ctx, c, s.Dialogue, msg)
	if err != nil {
		return "", err
	}
	s.Dialogue = append(s.Dialogue,
		agents.Turn{Speaker: agents.SpeakerLearner, Text: msg},
		agents.Turn{Speaker: agents.SpeakerTutor, Text: answer})
	return answer, nil
}

// startDiagnosis opens the gap dialogue. An optional message is the
// learner's own description of what is missing.
func (m *Machine) startDiagnosis(ctx context.Context, s *State, p Payload) (string, error) {
	c, err := m.activeConcept(s)
	if err != nil {
		return "", err
	}
	s.Dialogue = nil
	if msg := strings.TrimSpace(p.Message); msg != "" {
		s.Dialogue = append(s.Dialogue, agents.Turn{Speaker: agents.SpeakerLearner, Text: msg})
	}
	question, err := m.gen.Diagnose(ctx, c, s.Dialogue)
	if err != nil {
		return "", err
	}
	s.Dialogue = append(s.Dialogue, agents.Turn{Speaker: agents.SpeakerTutor, Text: question})
	s.PendingTest = nil
	s.Phase = PhaseGapDiagnosis
	return question, nil
}

func (m *Machine) continueDiagnosis(ctx context.Context, s *State, p Payload) (string, error) {
	msg := strings.TrimSpace(p.Message)
	if msg == "" {
		return "", BadRequest("message is required")
	}
	c, err := m.activeConcept(s)
	if err != nil {
		return "", err
	}
	s.Dialogue = append(s.Dialogue, agents.Turn{Speaker: agents.SpeakerLearner, Text: msg})
	question, err := m.gen.Diagnose(ctx, c, s.Dialogue)
	if err != nil {
		return "", err
	}
	s.Dialogue = append(s.Dialogue, agents.Turn{Speaker: agents.SpeakerTutor, Text: question})
	return question, nil
}

// remediateGap inserts the diagnosed prerequisite ahead of the open part
// of the path and makes it the active concept. Skipped concepts that
// match the gap or that the Architect names are reactivated.
func (m *Machine) remediateGap(ctx context.Context, s *State, p Payload) (string, error) {
	name := strings.TrimSpace(p.GapName)
	if name == "" {
		return "", BadRequest("gap concept name is required")
	}
	active, err := m.activeConcept(s)
	if err != nil {
		return "", err
	}

	plan, err := m.gen.PlanGap(ctx, m.goalName(s), s.Path, active, name, s.Dialogue)
	if err != nil {
		return "", err
	}

	if err := s.Path.Deactivate(active.ID); err != nil {
		return "", err
	}
	reactivated := 0
	for _, c := range s.Path {
		if c.Status != path.StatusSkipped {
			continue
		}
		if strings.EqualFold(c.Name, name) || slices.Contains(plan.Reactivate, c.ID) {
			if err := s.Path.Reactivate(c.ID); err != nil {
				return "", err
			}
			reactivated++
		}
	}

	gap := plan.Concept
	gap.Name = name
	gap = s.Path.InsertGapConcept(gap)
	if err := m.activate(s, gap.ID); err != nil {
		return "", err
	}

	msg := fmt.Sprintf("Added %s to your path. Let's cover it first.", gap.Name)
	if reactivated > 0 {
		msg += fmt.Sprintf(" %d skipped concepts are back on your path.", reactivated)
	}
	return msg, nil
}

func (m *Machine) generateTest(ctx context.Context, s *State, _ Payload) (string, error) {
	c, err := m.activeConcept(s)
	if err != nil {
		return "", err
	}
	questions, err := m.gen.GenerateTest(ctx, c, s.Profile)
	if err != nil {
		return "", err
	}
	s.PendingTest = questions
	s.LastEvaluation = nil
	s.Phase = PhaseTestGeneration
	return fmt.Sprintf("Your test on %s is ready: %d questions.", c.Name, len(questions)), nil
}

func (m *Machine) presentTest(_ context.Context, s *State, _ Payload) (string, error) {
	if len(s.PendingTest) == 0 {
		return "", InvalidState("no test has been generated")
	}
	s.Phase = PhaseTestEvaluation
	return "Submit your answers when ready.", nil
}

func (m *Machine) evaluateTest(ctx context.Context, s *State, p Payload) (string, error) {
	result, err := m.policy.Evaluate(ctx, s.PendingTest, p.Answers)
	if err != nil {
		return "", err
	}
	s.LastEvaluation = result
	s.PendingTest = nil

	if result.Passed {
		s.FailedAttempts = 0
		s.Phase = PhaseProgression
		return fmt.Sprintf("You scored %d%%. Passed!", result.Score), nil
	}
	s.FailedAttempts++
	s.Phase = PhaseRemediationChoice
	return fmt.Sprintf("You scored %d%%, below the %d%% pass mark. Repeat, report a gap, or skip.", result.Score, result.Threshold), nil
}

func (m *Machine) advance(_ context.Context, s *State, _ Payload) (string, error) {
	c, err := m.activeConcept(s)
	if err != nil {
		return "", err
	}
	if err := s.Path.MarkMastered(c.ID, path.ProvenanceNone); err != nil {
		return "", err
	}
	return m.moveOn(s, c.ID)
}

func (m *Machine) repeat(_ context.Context, s *State, _ Payload) (string, error) {
	c, err := m.activeConcept(s)
	if err != nil {
		return "", err
	}
	if m.cfg.MaxFailedAttempts > 0 && s.FailedAttempts >= m.cfg.MaxFailedAttempts {
		return "", InvalidState("%s failed %d times; skip it or report a gap instead", c.Name, s.FailedAttempts)
	}
	m.enterLearning(s)
	return fmt.Sprintf("Let's go over %s again.", c.Name), nil
}

func (m *Machine) skipActive(_ context.Context, s *State, _ Payload) (string, error) {
	c, err := m.activeConcept(s)
	if err != nil {
		return "", err
	}
	if err := s.Path.Deactivate(c.ID); err != nil {
		return "", err
	}
	if err := s.Path.MarkSkipped(c.ID, path.ProvenanceExpertSkip); err != nil {
		return "", err
	}
	return m.moveOn(s, c.ID)
}

func (m *Machine) abandon(_ context.Context, s *State, _ Payload) (string, error) {
	if s.Goal != nil {
		s.Goal.Status = GoalAbandoned
	}
	s.PendingTest = nil
	s.Pretest = nil
	s.Phase = PhaseAbandoned
	return "Goal abandoned.", nil
}
