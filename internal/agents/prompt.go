package agents

import (
	"bytes"
	"fmt"
	"text/template"
)

const architectPrompt = `You are the Architect of an adaptive learning system. You are precise and structured.

Your tasks:
- Turn the learner's stated intent into a measurable SMART goal with a Bloom level (1-6) and a success metric.
- Decompose the goal into an ordered sequence of concepts, each with an id, a name, a required Bloom level and an estimated time in minutes.
- When a knowledge gap is diagnosed, define the single missing prerequisite concept and list skipped concepts that depend on it.

Respond only with the JSON object requested. No conversational text.`

const curatorPrompt = `You are the Curator of an adaptive learning system: a subject-matter expert who writes accurate learning material and assessments.

Your tasks:
- Write learning material for one concept in Markdown, tailored to the learner profile and the concept's required Bloom level.
- Write assessment questions whose cognitive depth matches the required Bloom level.
- Judge whether a free-text answer is adequate against a reference answer.

Material is Markdown. Tests and judgements are a single JSON object with no other text. Accuracy is paramount.`

const tutorPrompt = `You are the Tutor of an adaptive learning system: an empathetic, encouraging learning companion. Address the learner as "you".

Your tasks:
- Acknowledge how the learner feels before addressing the content of their message.
- Answer questions about the current concept, anticipating common mistakes.
- When the learner reports a missing prerequisite, ask one clarifying question at a time until the missing concept is clear.

Always answer in natural conversational text. No Markdown, no JSON.`

const assessorPrompt = `You are the Assessor of an adaptive learning system: an impartial and precise evaluator.

Your task is to write short pre-assessment questions that reveal which concepts of a learning path the learner already masters. Each question probes exactly one concept.

Respond only with the JSON object requested.`

var planTemplate = template.Must(template.New("plan").Parse(`Goal: {{.Goal}}

Refine this goal into a contract and decompose it into 3 to 8 concepts, ordered from foundations to application.`))

var pretestTemplate = template.Must(template.New("pretest").Parse(`Goal: {{.Goal}}
Concepts:
{{range .Concepts}}- {{.ID}}: {{.Name}}
{{end}}
Write one or two questions per concept. Set conceptId to the id of the concept each question probes. Prefer multiple choice; for multiple choice, expected must be the exact text of the correct choice.`))

var materialTemplate = template.Must(template.New("material").Parse(`Goal: {{.Goal}}
Concept: {{.Concept.Name}}
Required Bloom level: {{.Concept.RequiredMasteryLevel}}
Learner profile: style {{.Profile.StylePreference}}, complexity {{.Profile.ComplexityLevel}}, pace {{.Profile.PaceWPM}} wpm

Write the learning material for this concept.`))

var testTemplate = template.Must(template.New("test").Parse(`Concept: {{.Concept.Name}}
Required Bloom level: {{.Concept.RequiredMasteryLevel}}
Learner profile: style {{.Profile.StylePreference}}, complexity {{.Profile.ComplexityLevel}}

Write 3 to 5 questions on this concept. For multiple choice, expected must be the exact text of the correct choice. For free text, expected is the reference answer.`))

var replyTemplate = template.Must(template.New("reply").Parse(`The learner is studying: {{.Concept.Name}}
Answer their messages about it.`))

var diagnosisTemplate = template.Must(template.New("diagnosis").Parse(`The learner says they are missing a prerequisite while studying: {{.Concept.Name}}
Ask one clarifying question to pin down which prerequisite concept is missing.`))

var gapTemplate = template.Must(template.New("gap").Parse(`Goal: {{.Goal}}
Active concept: {{.Active.Name}}
Reported gap: {{.Gap}}
Path:
{{range .Path}}- {{.ID}}: {{.Name}} [{{.Status}}]
{{end}}{{if .History}}Diagnosis dialogue:
{{range .History}}{{.Speaker}}: {{.Text}}
{{end}}{{end}}
Define the missing prerequisite concept. In reactivate, list the ids of skipped concepts that depend on it.`))

var judgeTemplate = template.Must(template.New("judge").Parse(`Question: {{.Question.Prompt}}
Reference answer: {{.Question.Expected}}
Learner answer: {{.Answer}}

Decide whether the learner's answer is semantically adequate.`))

func render(t *template.Template, data any) (string, error) {
	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("build %s prompt: %w", t.Name(), err)
	}
	return buf.String(), nil
}
