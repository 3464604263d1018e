package agents

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/abhisek/alis/internal/llm"
)

// Simulator returns a script that answers every agent request with
// deterministic, well-formed output. It drives the mock provider so the
// whole flow runs without an API key.
func Simulator() llm.ScriptFunc {
	return func(purpose string, req llm.Request) (string, error) {
		prompt := ""
		if len(req.Messages) > 0 {
			prompt = req.Messages[0].Content
		}

		switch purpose {
		case PurposePlan:
			return simulatePlan(field(prompt, "Goal"))
		case PurposePretest:
			return simulatePretest(listItems(prompt))
		case PurposeTest:
			return simulateTest(field(prompt, "Concept"))
		case PurposeJudge:
			return simulateJudgement(field(prompt, "Learner answer"))
		case PurposeGap:
			return simulateGap(field(prompt, "Reported gap"), field(prompt, "Active concept"), listItems(prompt))
		case PurposeMaterial:
			name := field(prompt, "Concept")
			return fmt.Sprintf("# %s\n\n%s builds on what you already know. Work through the example below, then try one of your own.\n\n"+
				"## Example\n\nStart small, check each step, and name what changed.", name, name), nil
		case PurposeDiagnosis:
			return "It sounds like something earlier in the path is missing. Which idea in this lesson feels most unfamiliar to you?", nil
		case PurposeReply:
			last := req.Messages[len(req.Messages)-1].Content
			return fmt.Sprintf("Good question! Let's look at %q step by step and connect it to %s.", last, field(prompt, "The learner is studying")), nil
		}
		return "Noted: " + prompt, nil
	}
}

type listItem struct {
	ID, Name, Status string
}

// field returns the value of the first "Name: value" line in prompt.
func field(prompt, name string) string {
	prefix := name + ": "
	for _, line := range strings.Split(prompt, "\n") {
		if v, ok := strings.CutPrefix(line, prefix); ok {
			return strings.TrimSpace(v)
		}
	}
	return ""
}

// listItems parses "- id: name [status]" lines.
func listItems(prompt string) []listItem {
	var items []listItem
	for _, line := range strings.Split(prompt, "\n") {
		rest, ok := strings.CutPrefix(line, "- ")
		if !ok {
			continue
		}
		id, name, ok := strings.Cut(rest, ": ")
		if !ok {
			continue
		}
		item := listItem{ID: strings.TrimSpace(id), Name: strings.TrimSpace(name)}
		if i := strings.LastIndex(item.Name, " ["); i >= 0 && strings.HasSuffix(item.Name, "]") {
			item.Status = item.Name[i+2 : len(item.Name)-1]
			item.Name = item.Name[:i]
		}
		items = append(items, item)
	}
	return items
}

func marshal(v any) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func simulatePlan(goal string) (string, error) {
	if goal == "" {
		goal = "the topic"
	}
	concept := func(id, name string, bloom int, minutes float64) map[string]any {
		return map[string]any{"id": id, "name": name, "requiredBloomLevel": bloom, "estimatedTime": minutes}
	}
	return marshal(map[string]any{
		"goal":          "Be able to apply " + goal + " to a small real problem",
		"bloomLevel":    3,
		"successMetric": "Pass a test on each concept with at least 70%",
		"concepts": []any{
			concept("C1", "Foundations of "+goal, 2, 20),
			concept("C2", "Core ideas of "+goal, 3, 30),
			concept("C3", "Applying "+goal, 4, 40),
		},
	})
}

func simulatePretest(concepts []listItem) (string, error) {
	questions := make([]any, 0, len(concepts))
	for _, c := range concepts {
		questions = append(questions, map[string]any{
			"id":        "pre-" + c.ID,
			"conceptId": c.ID,
			"kind":      "multiple-choice",
			"prompt":    fmt.Sprintf("How well do you know %s?", c.Name),
			"choices":   []string{"I can explain it to someone else", "I have not learned it yet"},
			"expected":  "I can explain it to someone else",
		})
	}
	return marshal(map[string]any{"questions": questions})
}

func simulateTest(concept string) (string, error) {
	return marshal(map[string]any{"questions": []any{
		map[string]any{
			"id":        "q1",
			"conceptId": "",
			"kind":      "multiple-choice",
			"prompt":    "Which concept did this lesson cover?",
			"choices":   []string{concept, "Something unrelated"},
			"expected":  concept,
		},
		map[string]any{
			"id":        "q2",
			"conceptId": "",
			"kind":      "free-text",
			"prompt":    fmt.Sprintf("In your own words, what is %s about?", concept),
			"choices":   []string{},
			"expected":  "A short explanation of " + concept,
		},
	}})
}

func simulateJudgement(answer string) (string, error) {
	ok := len(strings.Fields(answer)) >= 3
	feedback := "Clear explanation."
	if !ok {
		feedback = "Try to explain it in a full sentence."
	}
	return marshal(map[string]any{"correct": ok, "feedback": feedback})
}

func simulateGap(gap, active string, items []listItem) (string, error) {
	if gap == "" {
		gap = "Prerequisites for " + active
	}
	reactivate := []string{}
	for _, it := range items {
		if it.Status == "skipped" && strings.Contains(strings.ToLower(it.Name), strings.ToLower(gap)) {
			reactivate = append(reactivate, it.ID)
		}
	}
	return marshal(map[string]any{
		"concept":    map[string]any{"name": gap, "requiredBloomLevel": 2, "estimatedTime": 15},
		"reactivate": reactivate,
		"rationale":  fmt.Sprintf("%s is needed before %s.", gap, active),
	})
}
