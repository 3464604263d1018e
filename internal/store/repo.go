package store

import (
	"context"
	"time"
)

// QueryOpts configures event queries with filtering and pagination.
type QueryOpts struct {
	Limit  int       // max results (0 = unlimited)
	After  int64     // sequence > After
	Before int64     // sequence < Before
	From   time.Time // timestamp >= From
	To     time.Time // timestamp <= To
}

// SessionRecord is the persisted form of one tutoring session. Data is the
// opaque serialized session state; the other columns are denormalized from
// it for listing.
type SessionRecord struct {
	Key           string
	GoalID        string
	GoalName      string
	Phase         string
	ActiveConcept string
	Data          []byte
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// SessionRepo loads and saves session records by key.
type SessionRepo interface {
	// Load returns the record for key, or ErrNotFound.
	Load(ctx context.Context, key string) (*SessionRecord, error)

	// Save inserts or replaces the record. CreatedAt is kept from the first
	// save; UpdatedAt is set by the caller.
	Save(ctx context.Context, rec *SessionRecord) error

	// List returns records without Data, most recently updated first.
	List(ctx context.Context, limit int) ([]SessionRecord, error)

	// Delete removes the record and its learning log. Returns ErrNotFound
	// when no record exists.
	Delete(ctx context.Context, key string) error
}

// LogEntry is one line of a session's learning log.
type LogEntry struct {
	Sequence    int64
	SessionKey  string
	Event       string
	PhaseBefore string
	PhaseAfter  string
	ConceptID   string
	Content     string
	Score       *int
	Timestamp   time.Time
}

// LogRepo appends to and reads the learning log.
type LogRepo interface {
	AppendLog(ctx context.Context, entry LogEntry) error

	// QueryLog returns the session's entries in sequence order.
	QueryLog(ctx context.Context, sessionKey string, opts QueryOpts) ([]LogEntry, error)
}

// LLMRequestEventData captures the data for a single LLM request event.
type LLMRequestEventData struct {
	SessionKey   string
	Provider     string
	Model        string
	Purpose      string
	InputTokens  int
	OutputTokens int
	LatencyMs    int64
	Success      bool
	ErrorMessage string
	RequestBody  string
	ResponseBody string
}

// LLMEventRecord is a stored LLM request event.
type LLMEventRecord struct {
	LLMRequestEventData
	ID        int64
	Timestamp time.Time
}

// LLMUsage aggregates token usage for one purpose or model.
type LLMUsage struct {
	Purpose      string
	Model        string
	Calls        int
	InputTokens  int
	OutputTokens int
	AvgLatencyMs int64
}

// EventRepo provides append and query access to LLM request events.
type EventRepo interface {
	// AppendLLMRequest records an LLM API call event.
	AppendLLMRequest(ctx context.Context, data LLMRequestEventData) error

	// QueryLLMEvents returns events newest first.
	QueryLLMEvents(ctx context.Context, opts QueryOpts) ([]LLMEventRecord, error)

	// GetLLMEvent returns a single event, or ErrNotFound.
	GetLLMEvent(ctx context.Context, id int64) (*LLMEventRecord, error)

	LLMUsageByPurpose(ctx context.Context) ([]LLMUsage, error)
	LLMUsageByModel(ctx context.Context) ([]LLMUsage, error)
}
