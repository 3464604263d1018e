package agents

import "github.com/abhisek/alis/internal/llm"

// PlanSchema is the Architect's goal contract and initial path.
var PlanSchema = &llm.Schema{
	Name:        "learning-plan",
	Description: "A SMART goal contract and the ordered concepts that reach it",
	Definition: map[string]any{
		"type": "object",
		"properties": map[string]any{
			"goal": map[string]any{
				"type":        "string",
				"description": "The refined SMART goal",
			},
			"bloomLevel": map[string]any{
				"type":    "integer",
				"minimum": 1,
				"maximum": 6,
			},
			"successMetric": map[string]any{
				"type":        "string",
				"description": "How reaching the goal will be measured",
			},
			"concepts": map[string]any{
				"type":     "array",
				"minItems": 1,
				"items":    conceptDefinition([]any{"id", "name", "requiredBloomLevel", "estimatedTime"}),
			},
		},
		"required":             []any{"goal", "bloomLevel", "successMetric", "concepts"},
		"additionalProperties": false,
	},
}

// GapSchema is the Architect's answer to a diagnosed gap.
var GapSchema = &llm.Schema{
	Name:        "gap-remediation",
	Description: "The missing prerequisite concept and skipped concepts to reactivate",
	Definition: map[string]any{
		"type": "object",
		"properties": map[string]any{
			"concept": conceptDefinition([]any{"name", "requiredBloomLevel", "estimatedTime"}),
			"reactivate": map[string]any{
				"type":        "array",
				"items":       map[string]any{"type": "string"},
				"description": "Ids of skipped concepts that depend on the new one",
			},
			"rationale": map[string]any{"type": "string"},
		},
		"required":             []any{"concept", "reactivate", "rationale"},
		"additionalProperties": false,
	},
}

// QuestionsSchema covers both pre-assessment and concept tests.
var QuestionsSchema = &llm.Schema{
	Name:        "assessment",
	Description: "A list of assessment questions",
	Definition: map[string]any{
		"type": "object",
		"properties": map[string]any{
			"questions": map[string]any{
				"type":     "array",
				"minItems": 1,
				"items": map[string]any{
					"type": "object",
					"properties": map[string]any{
						"id":        map[string]any{"type": "string"},
						"conceptId": map[string]any{"type": "string"},
						"kind": map[string]any{
							"type": "string",
							"enum": []any{"multiple-choice", "free-text"},
						},
						"prompt": map[string]any{"type": "string", "minLength": 1},
						"choices": map[string]any{
							"type":  "array",
							"items": map[string]any{"type": "string"},
						},
						"expected": map[string]any{"type": "string", "minLength": 1},
					},
					"required":             []any{"id", "conceptId", "kind", "prompt", "choices", "expected"},
					"additionalProperties": false,
				},
			},
		},
		"required":             []any{"questions"},
		"additionalProperties": false,
	},
}

// JudgementSchema is the Curator's verdict on one free-text answer.
var JudgementSchema = &llm.Schema{
	Name:        "answer-judgement",
	Description: "Whether a free-text answer is semantically adequate",
	Definition: map[string]any{
		"type": "object",
		"properties": map[string]any{
			"correct":  map[string]any{"type": "boolean"},
			"feedback": map[string]any{"type": "string"},
		},
		"required":             []any{"correct", "feedback"},
		"additionalProperties": false,
	},
}

func conceptDefinition(required []any) map[string]any {
	props := map[string]any{
		"name":               map[string]any{"type": "string", "minLength": 1},
		"requiredBloomLevel": map[string]any{"type": "integer", "minimum": 1, "maximum": 6},
		"estimatedTime":      map[string]any{"type": "number", "minimum": 0},
	}
	for _, r := range required {
		if r == "id" {
			props["id"] = map[string]any{"type": "string"}
		}
	}
	return map[string]any{
		"type":                 "object",
		"properties":           props,
		"required":             required,
		"additionalProperties": false,
	}
}
