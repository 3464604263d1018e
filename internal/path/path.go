// Package path holds the ordered concept sequence of a learning goal and the
// primitive mutations the tutoring state machine composes.
//
// A Path is amended in place: concepts are inserted, re-statused and
// activated, but never dropped. Mastered and skipped concepts keep their
// position so the sequence doubles as an audit trail of the session.
package path

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// Status is the lifecycle state of a concept within a path.
type Status string

const (
	StatusOpen        Status = "open"
	StatusActive      Status = "active"
	StatusMastered    Status = "mastered"
	StatusSkipped     Status = "skipped"
	StatusReactivated Status = "reactivated"
)

// Pending reports whether a concept in this status still has to be studied.
func (s Status) Pending() bool {
	return s == StatusOpen || s == StatusReactivated
}

// Resolved reports whether the concept is done with, either way.
func (s Status) Resolved() bool {
	return s == StatusMastered || s == StatusSkipped
}

// Provenance records why a concept reached its current status.
// It is set at the moment of the transition and never inferred later.
type Provenance string

const (
	ProvenanceNone           Provenance = ""
	ProvenanceExpertSkip     Provenance = "expert-skip"
	ProvenancePretestMastery Provenance = "pretest-mastery"
	ProvenanceGapRemediation Provenance = "gap-remediation"
)

var (
	// ErrNotFound is returned when a concept id is not part of the path.
	ErrNotFound = errors.New("concept not found")

	// ErrInvalidState is returned when an operation is not legal for the
	// concept's current status.
	ErrInvalidState = errors.New("invalid concept state")
)

// Concept is a unit of learning content.
type Concept struct {
	ID                   string     `json:"id"`
	Name                 string     `json:"name"`
	Status               Status     `json:"status"`
	RequiredMasteryLevel int        `json:"requiredMasteryLevel"`
	EstimatedDuration    float64    `json:"estimatedDuration"` // minutes, advisory
	Provenance           Provenance `json:"provenance,omitempty"`
}

// Path is the ordered concept sequence owned by one goal.
type Path []Concept

// NewID returns a fresh concept identifier.
func NewID() string {
	return "c-" + uuid.NewString()
}

func (p Path) index(id string) int {
	if id == "" {
		return -1
	}
	for i := range p {
		if p[i].ID == id {
			return i
		}
	}
	return -1
}

func (p Path) lookup(id string) (*Concept, error) {
	i := p.index(id)
	if i < 0 {
		return nil, fmt.Errorf("%w: %q", ErrNotFound, id)
	}
	return &p[i], nil
}

// Get returns a copy of the concept with the given id.
func (p Path) Get(id string) (Concept, bool) {
	i := p.index(id)
	if i < 0 {
		return Concept{}, false
	}
	return p[i], true
}

// Active returns the concept currently being studied, if any.
func (p Path) Active() (Concept, bool) {
	for _, c := range p {
		if c.Status == StatusActive {
			return c, true
		}
	}
	return Concept{}, false
}

// MarkSkipped marks a concept as skipped and records why.
// An active concept cannot be skipped; deactivate it first.
func (p Path) MarkSkipped(id string, provenance Provenance) error {
	c, err := p.lookup(id)
	if err != nil {
		return err
	}
	if c.Status == StatusActive {
		return fmt.Errorf("%w: cannot skip active concept %q", ErrInvalidState, id)
	}
	c.Status = StatusSkipped
	c.Provenance = provenance
	return nil
}

// UndoSkip returns a skipped concept to the open queue.
func (p Path) UndoSkip(id string) error {
	c, err := p.lookup(id)
	if err != nil {
		return err
	}
	if c.Status != StatusSkipped {
		return fmt.Errorf("%w: concept %q is %s, not skipped", ErrInvalidState, id, c.Status)
	}
	c.Status = StatusOpen
	c.Provenance = ProvenanceNone
	return nil
}

// MarkMastered marks a concept as mastered. Re-marking a mastered concept
// is a no-op and keeps the original provenance.
func (p Path) MarkMastered(id string, provenance Provenance) error {
	c, err := p.lookup(id)
	if err != nil {
		return err
	}
	if c.Status == StatusMastered {
		return nil
	}
	c.Status = StatusMastered
	c.Provenance = provenance
	return nil
}

// InsertGapConcept places a remediation concept at the head of the
// still-open part of the path: immediately before the first Open or
// Reactivated concept, or at the end when everything is resolved.
// The concept is forced to Open with gap-remediation provenance and
// receives a fresh id when it has none. The inserted concept is returned.
func (p *Path) InsertGapConcept(c Concept) Concept {
	if c.ID == "" || p.index(c.ID) >= 0 {
		c.ID = NewID()
	}
	c.Status = StatusOpen
	c.Provenance = ProvenanceGapRemediation

	at := len(*p)
	for i, existing := range *p {
		if existing.Status.Pending() {
			at = i
			break
		}
	}

	*p = append(*p, Concept{})
	copy((*p)[at+1:], (*p)[at:])
	(*p)[at] = c
	return c
}

// Reactivate returns a previously skipped concept to the queue. It is used
// when a later-diagnosed gap shows the skip was premature, so the concept
// takes gap-remediation provenance.
func (p Path) Reactivate(id string) error {
	c, err := p.lookup(id)
	if err != nil {
		return err
	}
	if c.Status != StatusSkipped {
		return fmt.Errorf("%w: only skipped concepts can be reactivated, %q is %s", ErrInvalidState, id, c.Status)
	}
	c.Status = StatusReactivated
	c.Provenance = ProvenanceGapRemediation
	return nil
}

// NextOpenConcept returns the first Open or Reactivated concept after
// afterID in sequence order. An empty or unknown afterID scans from the
// start. The second result is false when no pending concept remains.
func (p Path) NextOpenConcept(afterID string) (Concept, bool) {
	start := p.index(afterID) + 1
	for i := start; i < len(p); i++ {
		if p[i].Status.Pending() {
			return p[i], true
		}
	}
	return Concept{}, false
}

// SetActive makes id the single active concept. Any other active concept
// is returned to Open.
func (p Path) SetActive(id string) error {
	target, err := p.lookup(id)
	if err != nil {
		return err
	}
	for i := range p {
		if p[i].Status == StatusActive && p[i].ID != id {
			p[i].Status = StatusOpen
		}
	}
	target.Status = StatusActive
	return nil
}

// Deactivate returns an active concept to Open. It is a no-op for a
// concept that is not active.
func (p Path) Deactivate(id string) error {
	c, err := p.lookup(id)
	if err != nil {
		return err
	}
	if c.Status == StatusActive {
		c.Status = StatusOpen
	}
	return nil
}

// Progress returns how many concepts are resolved and the path length.
func (p Path) Progress() (resolved, total int) {
	for _, c := range p {
		if c.Status.Resolved() {
			resolved++
		}
	}
	return resolved, len(p)
}

// Clone returns an independent copy of the path.
func (p Path) Clone() Path {
	if p == nil {
		return nil
	}
	out := make(Path, len(p))
	copy(out, p)
	return out
}

// Validate checks the structural invariants: every concept has a unique
// non-empty id, a known status, and at most one concept is active.
func (p Path) Validate() error {
	seen := make(map[string]bool, len(p))
	active := 0
	for i, c := range p {
		if c.ID == "" {
			return fmt.Errorf("concept %d has no id", i)
		}
		if seen[c.ID] {
			return fmt.Errorf("duplicate concept id %q", c.ID)
		}
		seen[c.ID] = true
		switch c.Status {
		case StatusOpen, StatusMastered, StatusSkipped, StatusReactivated:
		case StatusActive:
			active++
		default:
			return fmt.Errorf("concept %q has unknown status %q", c.ID, c.Status)
		}
	}
	if active > 1 {
		return fmt.Errorf("%d concepts are active, at most one allowed", active)
	}
	return nil
}
