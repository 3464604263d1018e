package app

import (
	"errors"
	"fmt"
	"strings"

	"charm.land/lipgloss/v2"

	"github.com/abhisek/alis/internal/agents"
	"github.com/abhisek/alis/internal/path"
	"github.com/abhisek/alis/internal/tutor"
	"github.com/abhisek/alis/internal/ui/components"
	"github.com/abhisek/alis/internal/ui/theme"
)

var phaseTitles = map[tutor.Phase]string{
	tutor.PhaseGoalSetting:        "Set a goal",
	tutor.PhasePriorKnowledgeTest: "What do you already know?",
	tutor.PhasePathReview:         "Review your path",
	tutor.PhaseLearning:           "Learning",
	tutor.PhaseGapDiagnosis:       "Finding the gap",
	tutor.PhaseTestGeneration:     "Test ready",
	tutor.PhaseTestEvaluation:     "Test",
	tutor.PhaseProgression:        "Passed",
	tutor.PhaseRemediationChoice:  "Not yet",
	tutor.PhaseGoalComplete:       "Goal complete",
	tutor.PhaseAbandoned:          "Goal abandoned",
}

func phaseTitle(p tutor.Phase) string {
	if t, ok := phaseTitles[p]; ok {
		return t
	}
	return string(p)
}

// body renders everything between header and footer.
func (m AppModel) body(cw int) string {
	var sections []string

	if m.out.Goal != nil {
		sections = append(sections, theme.Title.Render(m.out.Goal.Name)+"\n"+
			components.NewPathProgress(m.out.Progress.Resolved, m.out.Progress.Total, min(cw, 60)).View())
	}

	switch m.out.Phase {
	case tutor.PhasePathReview:
		sections = append(sections, components.Card("Your path", renderPath(m.out.Path, m.cursor, true), cw))
	case tutor.PhaseLearning, tutor.PhaseGapDiagnosis:
		if c := m.out.ActiveConcept; c != nil {
			sections = append(sections, theme.Subtitle.Render("Now studying: ")+theme.StatusActive.Render(c.Name))
		}
		if m.out.Material != "" {
			sections = append(sections, components.Card("", m.out.Material, cw))
		}
		if len(m.out.Dialogue) > 0 {
			sections = append(sections, renderDialogue(m.out.Dialogue))
		}
	case tutor.PhaseProgression, tutor.PhaseRemediationChoice:
		if r := m.out.EvaluationResult; r != nil {
			style := theme.Passed
			if !r.Passed {
				style = theme.Failed
			}
			sections = append(sections, style.Render(fmt.Sprintf("Score %d%% (pass mark %d%%)", r.Score, r.Threshold)))
		}
	case tutor.PhaseGoalComplete, tutor.PhaseAbandoned:
		sections = append(sections, components.Card("Path", renderPath(m.out.Path, -1, false), cw))
	}

	if m.out.Message != "" && m.out.Message != m.out.Material && !lastTurnIs(m.out.Dialogue, m.out.Message) {
		sections = append(sections, theme.Body.Render(m.out.Message))
	}
	if m.err != nil {
		hint := ""
		if tutor.Retryable(m.err) {
			hint = " Try again."
		}
		sections = append(sections, theme.Failure.Render(errorText(m.err)+hint))
	}

	if m.busy {
		sections = append(sections, theme.Hint.Render("Thinking..."))
	} else {
		sections = append(sections, m.widget())
	}
	return strings.Join(sections, "\n\n")
}

func (m AppModel) widget() string {
	switch m.mode {
	case modeInput:
		return m.input.View()
	case modeQuiz:
		return m.quiz.View()
	case modeReview:
		return theme.Hint.Render("Skip what you already know, then confirm.")
	}
	return m.menu.View()
}

func errorText(err error) string {
	var te *tutor.Error
	if errors.As(err, &te) {
		return te.Message
	}
	return err.Error()
}

func lastTurnIs(turns []agents.Turn, text string) bool {
	return len(turns) > 0 && turns[len(turns)-1].Text == text
}

func renderPath(p path.Path, cursor int, selectable bool) string {
	var b strings.Builder
	for i, c := range p {
		marker, style := statusMarker(c.Status)
		prefix := "  "
		if selectable && i == cursor {
			prefix = "▸ "
		}
		line := fmt.Sprintf("%s%s %s", prefix, marker, c.Name)
		if c.Provenance != path.ProvenanceNone {
			line += theme.Hint.Render(" (" + string(c.Provenance) + ")")
		}
		b.WriteString(style.Render(line))
		b.WriteByte('\n')
	}
	return strings.TrimRight(b.String(), "\n")
}

func statusMarker(s path.Status) (string, lipgloss.Style) {
	switch s {
	case path.StatusActive:
		return "●", theme.StatusActive
	case path.StatusMastered:
		return "✓", theme.StatusMastered
	case path.StatusSkipped:
		return "-", theme.StatusSkipped
	case path.StatusReactivated:
		return "↺", theme.StatusReactivated
	}
	return "○", theme.StatusOpen
}

func renderDialogue(turns []agents.Turn) string {
	var b strings.Builder
	for _, t := range turns {
		if t.Speaker == agents.SpeakerLearner {
			b.WriteString(theme.Learner.Render("You: "))
		} else {
			b.WriteString(theme.Tutor.Render("Tutor: "))
		}
		b.WriteString(t.Text)
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n")
}
