// Package session binds the tutoring machine to storage: every event is
// applied to the stored state under a per-session lock and the result is
// persisted together with a learning-log entry.
package session

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/abhisek/alis/internal/llm"
	"github.com/abhisek/alis/internal/lock"
	"github.com/abhisek/alis/internal/logger"
	"github.com/abhisek/alis/internal/store"
	"github.com/abhisek/alis/internal/tutor"
)

// Dispatcher routes commands to sessions.
type Dispatcher struct {
	machine  *tutor.Machine
	sessions store.SessionRepo
	logs     store.LogRepo
	locker   lock.Locker
	log      *logger.Logger
}

// NewDispatcher wires a dispatcher. A nil locker defaults to a LocalLocker
// and a nil log discards output.
func NewDispatcher(m *tutor.Machine, sessions store.SessionRepo, logs store.LogRepo, locker lock.Locker, log *logger.Logger) *Dispatcher {
	if locker == nil {
		locker = lock.NewLocalLocker()
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Dispatcher{
		machine:  m,
		sessions: sessions,
		logs:     logs,
		locker:   locker,
		log:      log.With("component", "dispatcher"),
	}
}

// Dispatch applies cmd to the session named key. goal_confirmed on an
// unknown key starts a new session; any other event on it is NotFound.
func (d *Dispatcher) Dispatch(ctx context.Context, key string, cmd tutor.Command) (tutor.Output, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return tutor.Output{}, tutor.BadRequest("session key is required")
	}

	release, err := d.locker.Acquire(ctx, key)
	if err != nil {
		if errors.Is(err, lock.ErrHeld) {
			return tutor.Output{}, tutor.Conflict(err, "session %q is busy, retry shortly", key)
		}
		return tutor.Output{}, tutor.Internal(err, "lock session %q", key)
	}
	defer release()

	state, err := d.load(ctx, key)
	if err != nil {
		if tutor.KindOf(err) != tutor.KindNotFound || cmd.Event != tutor.EventGoalConfirmed {
			return tutor.Output{}, err
		}
	}

	ctx = llm.WithSession(ctx, key)
	start := time.Now()
	next, msg, err := d.machine.Apply(ctx, key, state, cmd)
	if err != nil {
		d.log.Warn("event rejected",
			"session", key, "event", cmd.Event, "kind", tutor.KindOf(err), "error", err)
		return tutor.Output{}, err
	}

	if err := d.save(ctx, next); err != nil {
		return tutor.Output{}, err
	}
	d.appendLog(ctx, state, next, cmd.Event, msg)

	d.log.Info("event applied",
		"session", key, "event", cmd.Event, "phase", next.Phase,
		"active_concept", next.ActiveConceptID, "latency_ms", time.Since(start).Milliseconds())
	return tutor.View(next, msg), nil
}

// Get returns the current view of a stored session.
func (d *Dispatcher) Get(ctx context.Context, key string) (tutor.Output, error) {
	s, err := d.load(ctx, key)
	if err != nil {
		return tutor.Output{}, err
	}
	return tutor.View(s, ""), nil
}

// Delete removes a session and its learning log.
func (d *Dispatcher) Delete(ctx context.Context, key string) error {
	release, err := d.locker.Acquire(ctx, key)
	if err != nil {
		if errors.Is(err, lock.ErrHeld) {
			return tutor.Conflict(err, "session %q is busy, retry shortly", key)
		}
		return tutor.Internal(err, "lock session %q", key)
	}
	defer release()

	if err := d.sessions.Delete(ctx, key); err != nil {
		return storeError(err, key)
	}
	d.log.Info("session deleted", "session", key)
	return nil
}

// List returns summaries of the most recently updated sessions.
func (d *Dispatcher) List(ctx context.Context, limit int) ([]Summary, error) {
	recs, err := d.sessions.List(ctx, limit)
	if err != nil {
		return nil, tutor.Internal(err, "list sessions")
	}
	out := make([]Summary, len(recs))
	for i, r := range recs {
		out[i] = summarize(r)
	}
	return out, nil
}

// Log returns the learning log of a session.
func (d *Dispatcher) Log(ctx context.Context, key string, opts store.QueryOpts) ([]store.LogEntry, error) {
	if _, err := d.sessions.Load(ctx, key); err != nil {
		return nil, storeError(err, key)
	}
	entries, err := d.logs.QueryLog(ctx, key, opts)
	if err != nil {
		return nil, tutor.Internal(err, "query log of %q", key)
	}
	return entries, nil
}

func (d *Dispatcher) load(ctx context.Context, key string) (*tutor.State, error) {
	rec, err := d.sessions.Load(ctx, key)
	if err != nil {
		return nil, storeError(err, key)
	}
	s, err := tutor.UnmarshalState(rec.Data)
	if err != nil {
		return nil, tutor.Internal(err, "session %q is corrupt", key)
	}
	return s, nil
}

func (d *Dispatcher) save(ctx context.Context, s *tutor.State) error {
	data, err := s.Marshal()
	if err != nil {
		return tutor.Internal(err, "encode session %q", s.Key)
	}
	rec := &store.SessionRecord{
		Key:           s.Key,
		GoalID:        s.GoalID(),
		Phase:         string(s.Phase),
		ActiveConcept: s.ActiveConceptID,
		Data:          data,
		UpdatedAt:     s.UpdatedAt,
	}
	if s.Goal != nil {
		rec.GoalName = s.Goal.Name
		rec.CreatedAt = s.Goal.CreatedAt
	}
	if err := d.sessions.Save(ctx, rec); err != nil {
		return tutor.Internal(err, "save session %q", s.Key)
	}
	return nil
}

// appendLog records the transition. The state is already saved, so a
// failure here is logged and not returned.
func (d *Dispatcher) appendLog(ctx context.Context, before, after *tutor.State, event tutor.Event, msg string) {
	entry := store.LogEntry{
		SessionKey: after.Key,
		Event:      string(event),
		PhaseAfter: string(after.Phase),
		ConceptID:  after.ActiveConceptID,
		Content:    msg,
		Timestamp:  after.UpdatedAt,
	}
	if before != nil {
		entry.PhaseBefore = string(before.Phase)
		if before.ActiveConceptID != "" {
			entry.ConceptID = before.ActiveConceptID
		}
	}
	if (event == tutor.EventTestSubmitted || event == tutor.EventPretestSubmitted) && after.LastEvaluation != nil {
		score := after.LastEvaluation.Score
		entry.Score = &score
	}
	if err := d.logs.AppendLog(ctx, entry); err != nil {
		d.log.Error("append learning log", "session", after.Key, "event", event, "error", err)
	}
}

func storeError(err error, key string) error {
	if errors.Is(err, store.ErrNotFound) {
		return tutor.NotFound("session %q not found", key)
	}
	return tutor.Internal(err, "session %q", key)
}
