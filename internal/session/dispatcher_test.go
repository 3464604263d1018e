package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/abhisek/alis/internal/agents"
	"github.com/abhisek/alis/internal/llm"
	"github.com/abhisek/alis/internal/lock"
	"github.com/abhisek/alis/internal/store"
	"github.com/abhisek/alis/internal/tutor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *store.Store {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	s, err := store.Open(fmt.Sprintf("file:%s?mode=memory&cache=shared", name))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func newTestDispatcher(t *testing.T, script llm.ScriptFunc, locker lock.Locker) (*Dispatcher, *store.Store) {
	t.Helper()
	st := openTestStore(t)
	gen := agents.New(llm.NewScriptedProvider(script), agents.DefaultConfig())
	cfg := tutor.DefaultConfig()
	cfg.PretestEnabled = false
	m, err := tutor.NewMachine(gen, cfg)
	require.NoError(t, err)
	return NewDispatcher(m, st.SessionRepo(), st.LogRepo(), locker, nil), st
}

func send(d *Dispatcher, event tutor.Event, p tutor.Payload) (tutor.Output, error) {
	return d.Dispatch(context.Background(), "s1", tutor.Command{Event: event, Payload: p})
}

func TestDispatchPersistsEachTransition(t *testing.T) {
	d, _ := newTestDispatcher(t, agents.Simulator(), nil)
	ctx := context.Background()

	_, err := send(d, tutor.EventContinue, tutor.Payload{})
	assert.Equal(t, tutor.KindIllegalTransition, tutor.KindOf(err))
	_, err = d.Get(ctx, "s1")
	assert.Equal(t, tutor.KindNotFound, tutor.KindOf(err), "rejected events are not stored")

	out, err := send(d, tutor.EventGoalConfirmed, tutor.Payload{Goal: "Go"})
	require.NoError(t, err)
	assert.Equal(t, tutor.PhasePathReview, out.Phase)
	assert.Len(t, out.Path, 3)
	assert.Equal(t, "s1", out.SessionKey)

	got, err := d.Get(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, out.Path, got.Path)
	assert.Equal(t, out.Goal.ID, got.Goal.ID)

	out, err = send(d, tutor.EventPathConfirmed, tutor.Payload{})
	require.NoError(t, err)
	assert.Equal(t, tutor.PhaseLearning, out.Phase)
	require.NotNil(t, out.ActiveConcept)

	entries, err := d.Log(ctx, "s1", store.QueryOpts{})
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, string(tutor.EventGoalConfirmed), entries[0].Event)
	assert.Empty(t, entries[0].PhaseBefore)
	assert.Equal(t, string(tutor.PhasePathReview), entries[1].PhaseBefore)
	assert.Equal(t, string(tutor.PhaseLearning), entries[1].PhaseAfter)
	assert.Equal(t, out.ActiveConcept.ID, entries[1].ConceptID)

	sums, err := d.List(ctx, 10)
	require.NoError(t, err)
	require.Len(t, sums, 1)
	assert.Equal(t, tutor.PhaseLearning, sums[0].Phase)
	assert.Equal(t, out.ActiveConcept.ID, sums[0].ActiveConcept)
	assert.Equal(t, out.Goal.Name, sums[0].GoalName)
}

func TestDispatchRecordsScores(t *testing.T) {
	d, _ := newTestDispatcher(t, agents.Simulator(), nil)
	ctx := context.Background()

	_, err := send(d, tutor.EventGoalConfirmed, tutor.Payload{Goal: "Go"})
	require.NoError(t, err)
	out, err := send(d, tutor.EventPathConfirmed, tutor.Payload{})
	require.NoError(t, err)
	name := out.ActiveConcept.Name

	for _, e := range []tutor.Event{tutor.EventConceptUnderstood, tutor.EventTestGenerated} {
		_, err = send(d, e, tutor.Payload{})
		require.NoError(t, err)
	}
	out, err = send(d, tutor.EventTestSubmitted, tutor.Payload{Answers: map[string]string{"q1": name, "q2": "no"}})
	require.NoError(t, err)
	assert.Equal(t, tutor.PhaseRemediationChoice, out.Phase)

	entries, err := d.Log(ctx, "s1", store.QueryOpts{})
	require.NoError(t, err)
	last := entries[len(entries)-1]
	require.NotNil(t, last.Score)
	assert.Equal(t, 50, *last.Score)
}

func TestDispatchGenerationFailureKeepsStoredState(t *testing.T) {
	fail := false
	script := func(purpose string, req llm.Request) (string, error) {
		if fail {
			return "", &llm.ErrProviderUnavailable{Err: errors.New("down")}
		}
		return agents.Simulator()(purpose, req)
	}
	d, _ := newTestDispatcher(t, script, nil)

	before, err := send(d, tutor.EventGoalConfirmed, tutor.Payload{Goal: "Go"})
	require.NoError(t, err)
	_, err = send(d, tutor.EventPathConfirmed, tutor.Payload{})
	require.NoError(t, err)

	fail = true
	_, err = send(d, tutor.EventConceptUnderstood, tutor.Payload{})
	assert.Equal(t, tutor.KindGeneration, tutor.KindOf(err))
	assert.True(t, tutor.Retryable(err))

	got, err := d.Get(context.Background(), "s1")
	require.NoError(t, err)
	assert.Equal(t, tutor.PhaseLearning, got.Phase)
	assert.Equal(t, before.Goal.ID, got.Goal.ID)
}

type heldLocker struct{}

func (heldLocker) Acquire(context.Context, string) (func(), error) {
	return nil, lock.ErrHeld
}

func TestDispatchConflict(t *testing.T) {
	d, _ := newTestDispatcher(t, agents.Simulator(), heldLocker{})
	_, err := send(d, tutor.EventGoalConfirmed, tutor.Payload{Goal: "Go"})
	assert.Equal(t, tutor.KindConflict, tutor.KindOf(err))
	assert.Equal(t, tutor.KindConflict, tutor.KindOf(d.Delete(context.Background(), "s1")))
}

func TestDispatchRequiresKey(t *testing.T) {
	d, _ := newTestDispatcher(t, agents.Simulator(), nil)
	_, err := d.Dispatch(context.Background(), " ", tutor.Command{Event: tutor.EventGoalConfirmed})
	assert.Equal(t, tutor.KindBadRequest, tutor.KindOf(err))
}

func TestDispatchUnknownSession(t *testing.T) {
	d, _ := newTestDispatcher(t, agents.Simulator(), nil)
	ctx := context.Background()

	for _, ev := range []tutor.Event{tutor.EventContinue, tutor.EventPathConfirmed, tutor.EventGoalAbandoned} {
		_, err := d.Dispatch(ctx, "no-such-session", tutor.Command{Event: ev})
		assert.Equal(t, tutor.KindNotFound, tutor.KindOf(err), string(ev))
	}
	_, err := d.Get(ctx, "no-such-session")
	require.Equal(t, tutor.KindNotFound, tutor.KindOf(err), "rejected events store nothing")

	out, err := d.Dispatch(ctx, "no-such-session", tutor.Command{Event: tutor.EventGoalConfirmed, Payload: tutor.Payload{Goal: "Go"}})
	require.NoError(t, err)
	assert.Equal(t, tutor.PhasePathReview, out.Phase)
}

func TestDeleteSession(t *testing.T) {
	d, _ := newTestDispatcher(t, agents.Simulator(), nil)
	ctx := context.Background()
	_, err := send(d, tutor.EventGoalConfirmed, tutor.Payload{Goal: "Go"})
	require.NoError(t, err)

	require.NoError(t, d.Delete(ctx, "s1"))
	_, err = d.Get(ctx, "s1")
	assert.Equal(t, tutor.KindNotFound, tutor.KindOf(err))
	assert.Equal(t, tutor.KindNotFound, tutor.KindOf(d.Delete(ctx, "s1")))
	_, err = d.Log(ctx, "s1", store.QueryOpts{})
	assert.Equal(t, tutor.KindNotFound, tutor.KindOf(err))
}

func TestCorruptSessionIsInternal(t *testing.T) {
	d, st := newTestDispatcher(t, agents.Simulator(), nil)
	ctx := context.Background()
	require.NoError(t, st.SessionRepo().Save(ctx, &store.SessionRecord{Key: "s1", Phase: "learning", Data: []byte("{")}))

	_, err := d.Get(ctx, "s1")
	assert.Equal(t, tutor.KindInternal, tutor.KindOf(err))
}
