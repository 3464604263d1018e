package tutor

import "slices"

// Phase is the named state of a tutoring session.
type Phase string

const (
	PhaseGoalSetting        Phase = "goal_setting"
	PhasePriorKnowledgeTest Phase = "prior_knowledge_test"
	PhasePathReview         Phase = "path_review"
	PhaseLearning           Phase = "learning"
	PhaseGapDiagnosis       Phase = "gap_diagnosis"
	PhaseTestGeneration     Phase = "test_generation"
	PhaseTestEvaluation     Phase = "test_evaluation"
	PhaseProgression        Phase = "progression"
	PhaseRemediationChoice  Phase = "remediation_choice"
	PhaseGoalComplete       Phase = "goal_complete"
	PhaseAbandoned          Phase = "abandoned"
)

// Terminal reports whether no transition leaves this phase.
func (p Phase) Terminal() bool {
	return p == PhaseGoalComplete || p == PhaseAbandoned
}

// Event is an external trigger applied to a session.
type Event string

const (
	EventGoalConfirmed      Event = "goal_confirmed"
	EventPretestSubmitted   Event = "pretest_submitted"
	EventConceptSkipToggled Event = "concept_skip_toggled"
	EventPathConfirmed      Event = "path_confirmed"
	EventGapReported        Event = "gap_reported"
	EventGapIdentified      Event = "gap_identified"
	EventConceptUnderstood  Event = "concept_understood"
	EventTestGenerated      Event = "test_generated"
	EventTestSubmitted      Event = "test_submitted"
	EventContinue           Event = "continue"
	EventRepeatChosen       Event = "repeat_chosen"
	EventReportGapChosen    Event = "report_gap_chosen"
	EventSkipChosen         Event = "skip_chosen"
	EventMaterialRequested  Event = "material_requested"
	EventMessageSent        Event = "message_sent"
	EventGoalAbandoned      Event = "goal_abandoned"
)

// Events lists every event the machine knows.
var Events = []Event{
	EventGoalConfirmed, EventPretestSubmitted, EventConceptSkipToggled, EventPathConfirmed,
	EventGapReported, EventGapIdentified, EventConceptUnderstood, EventTestGenerated,
	EventTestSubmitted, EventContinue, EventRepeatChosen, EventReportGapChosen,
	EventSkipChosen, EventMaterialRequested, EventMessageSent, EventGoalAbandoned,
}

// transition is one row of the table: the phases the action may leave the
// session in, and the action itself.
type transition struct {
	next []Phase
	run  action
}

func to(run action, next ...Phase) transition {
	return transition{next: next, run: run}
}

// transitions is the complete set of legal moves. Anything not listed
// here is an illegal transition.
var transitions = buildTransitions()

func buildTransitions() map[Phase]map[Event]transition {
	t := map[Phase]map[Event]transition{
		PhaseGoalSetting: {
			EventGoalConfirmed: to((*Machine).confirmGoal, PhasePriorKnowledgeTest, PhasePathReview),
		},
		PhasePriorKnowledgeTest: {
			EventPretestSubmitted: to((*Machine).assessPretest, PhasePathReview),
			EventTestSubmitted:    to((*Machine).assessPretest, PhasePathReview),
		},
		PhasePathReview: {
			EventConceptSkipToggled: to((*Machine).toggleSkip, PhasePathReview),
			EventPathConfirmed:      to((*Machine).confirmPath, PhaseLearning, PhaseGoalComplete),
		},
		PhaseLearning: {
			EventGapReported:       to((*Machine).startDiagnosis, PhaseGapDiagnosis),
			EventConceptUnderstood: to((*Machine).generateTest, PhaseTestGeneration),
			EventMaterialRequested: to((*Machine).generateMaterial, PhaseLearning),
			EventMessageSent:       to((*Machine).reply, PhaseLearning),
		},
		PhaseGapDiagnosis: {
			EventGapIdentified: to((*Machine).remediateGap, PhaseLearning),
			EventMessageSent:   to((*Machine).continueDiagnosis, PhaseGapDiagnosis),
		},
		PhaseTestGeneration: {
			EventTestGenerated: to((*Machine).presentTest, PhaseTestEvaluation),
		},
		PhaseTestEvaluation: {
			EventTestSubmitted: to((*Machine).evaluateTest, PhaseProgression, PhaseRemediationChoice),
		},
		PhaseProgression: {
			EventContinue: to((*Machine).advance, PhaseLearning, PhaseGoalComplete),
		},
		PhaseRemediationChoice: {
			EventRepeatChosen:    to((*Machine).repeat, PhaseLearning),
			EventReportGapChosen: to((*Machine).startDiagnosis, PhaseGapDiagnosis),
			EventSkipChosen:      to((*Machine).skipActive, PhaseLearning, PhaseGoalComplete),
		},
	}
	for phase, events := range t {
		if !phase.Terminal() {
			events[EventGoalAbandoned] = to((*Machine).abandon, PhaseAbandoned)
		}
	}
	return t
}

// Allowed lists the events accepted in phase p.
func Allowed(p Phase) []Event {
	events := make([]Event, 0, len(transitions[p]))
	for e := range transitions[p] {
		events = append(events, e)
	}
	slices.Sort(events)
	return events
}
