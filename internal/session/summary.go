package session

import (
	"time"

	"github.com/abhisek/alis/internal/store"
	"github.com/abhisek/alis/internal/tutor"
)

// Summary is the listing form of a stored session.
type Summary struct {
	Key           string      `json:"sessionKey"`
	GoalID        string      `json:"goalId,omitempty"`
	GoalName      string      `json:"goalName,omitempty"`
	Phase         tutor.Phase `json:"phase"`
	ActiveConcept string      `json:"activeConceptId,omitempty"`
	CreatedAt     time.Time   `json:"createdAt"`
	UpdatedAt     time.Time   `json:"updatedAt"`
}

func summarize(r store.SessionRecord) Summary {
	return Summary{
		Key:           r.Key,
		GoalID:        r.GoalID,
		GoalName:      r.GoalName,
		Phase:         tutor.Phase(r.Phase),
		ActiveConcept: r.ActiveConcept,
		CreatedAt:     r.CreatedAt,
		UpdatedAt:     r.UpdatedAt,
	}
}
