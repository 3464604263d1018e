package app

import (
	tea "charm.land/bubbletea/v2"

	"github.com/abhisek/alis/internal/evaluation"
	"github.com/abhisek/alis/internal/tutor"
	"github.com/abhisek/alis/internal/ui/components"
)

// quiz walks the learner through a list of questions one at a time and
// collects their answers by question id.
type quiz struct {
	event     tutor.Event
	questions []tutor.QuestionView
	answers   map[string]string
	index     int

	choice components.MultiChoice
	text   components.TextInput
}

func newQuiz(event tutor.Event, questions []tutor.QuestionView) quiz {
	q := quiz{event: event, questions: questions, answers: make(map[string]string, len(questions))}
	q.goTo(0)
	return q
}

// goTo shows question i with a fresh widget.
func (q *quiz) goTo(i int) {
	q.index = max(i, 0)
	cur, ok := q.current()
	if !ok {
		return
	}
	if cur.Kind == evaluation.KindMultipleChoice {
		q.choice = components.NewMultiChoice(cur.Prompt, cur.Choices)
		return
	}
	q.text = components.NewTextInput(cur.Prompt, "Type your answer", 1000)
}

func (q quiz) current() (tutor.QuestionView, bool) {
	if q.index >= len(q.questions) {
		return tutor.QuestionView{}, false
	}
	return q.questions[q.index], true
}

// Update feeds a key to the current widget. done reports that every
// question has an answer.
func (q quiz) Update(msg tea.KeyMsg) (quiz, bool, tea.Cmd) {
	cur, ok := q.current()
	if !ok {
		return q, msg.String() == "enter", nil
	}

	if cur.Kind == evaluation.KindMultipleChoice {
		q.choice, _ = q.choice.Update(msg)
		if !q.choice.Submitted {
			return q, false, nil
		}
		q.answers[cur.ID] = q.choice.Answer()
	} else {
		if msg.String() != "enter" {
			var cmd tea.Cmd
			q.text, cmd = q.text.Update(msg)
			return q, false, cmd
		}
		q.answers[cur.ID] = q.text.Value()
	}

	q.goTo(q.index + 1)
	return q, q.index >= len(q.questions), nil
}

func (q quiz) View() string {
	cur, ok := q.current()
	if !ok {
		return "All answered. Press Enter to submit."
	}
	progress := components.NewProgressBar("Question", float64(q.index)/float64(len(q.questions)), false, 40).View()
	if cur.Kind == evaluation.KindMultipleChoice {
		return progress + "\n\n" + q.choice.View()
	}
	return progress + "\n\n" + q.text.View()
}
