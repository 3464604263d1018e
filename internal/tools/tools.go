// Package tools exposes tutoring sessions as MCP tools, so an assistant
// can drive a learner's session over stdio.
package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/mark3labs/mcp-go/mcp"

	"github.com/abhisek/alis/internal/agents"
	"github.com/abhisek/alis/internal/session"
	"github.com/abhisek/alis/internal/store"
	"github.com/abhisek/alis/internal/tutor"
)

// Sessions is the session API behind the tools. *session.Dispatcher
// implements it.
type Sessions interface {
	Dispatch(ctx context.Context, key string, cmd tutor.Command) (tutor.Output, error)
	Get(ctx context.Context, key string) (tutor.Output, error)
	List(ctx context.Context, limit int) ([]session.Summary, error)
	Log(ctx context.Context, key string, opts store.QueryOpts) ([]store.LogEntry, error)
}

// ─── StartTool ──────────────────────────────────────────────────────────────

// StartTool handles alis_start.
type StartTool struct {
	sessions Sessions
}

func NewStartTool(s Sessions) *StartTool {
	return &StartTool{sessions: s}
}

func (t *StartTool) Definition() mcp.Tool {
	return mcp.NewTool("alis_start",
		mcp.WithDescription(
			"Start a tutoring session for a learning goal. Returns the session key "+
				"and the planned concept path.",
		),
		mcp.WithString("goal",
			mcp.Required(),
			mcp.Description("What the learner wants to learn"),
		),
		mcp.WithString("style",
			mcp.Description("Preferred presentation style, e.g. visual, examples, theory"),
		),
		mcp.WithNumber("complexity",
			mcp.Description("Preferred complexity from 1 (gentle) to 5 (dense)"),
		),
	)
}

func (t *StartTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	goal := strings.TrimSpace(req.GetString("goal", ""))
	if goal == "" {
		return mcp.NewToolResultError("'goal' is required"), nil
	}

	var profile *agents.Profile
	style := req.GetString("style", "")
	complexity := req.GetInt("complexity", 0)
	if style != "" || complexity > 0 {
		p := agents.DefaultProfile()
		if style != "" {
			p.StylePreference = style
		}
		if complexity > 0 {
			p.ComplexityLevel = complexity
		}
		profile = &p
	}

	out, err := t.sessions.Dispatch(ctx, uuid.NewString(), tutor.Command{
		Event:   tutor.EventGoalConfirmed,
		Payload: tutor.Payload{Goal: goal, Profile: profile},
	})
	if err != nil {
		return errorResult(err), nil
	}
	return jsonResult(out)
}

// ─── EventTool ──────────────────────────────────────────────────────────────

// EventTool handles alis_event.
type EventTool struct {
	sessions Sessions
}

func NewEventTool(s Sessions) *EventTool {
	return &EventTool{sessions: s}
}

func (t *EventTool) Definition() mcp.Tool {
	names := make([]string, len(tutor.Events))
	for i, e := range tutor.Events {
		names[i] = string(e)
	}
	return mcp.NewTool("alis_event",
		mcp.WithDescription(
			"Apply one event to a session. The session's allowedEvents field lists "+
				"what the current phase accepts.",
		),
		mcp.WithString("session_key",
			mcp.Required(),
			mcp.Description("Session key returned by alis_start"),
		),
		mcp.WithString("event",
			mcp.Required(),
			mcp.Enum(names...),
			mcp.Description("Event name"),
		),
		mcp.WithObject("payload",
			mcp.Description("Event payload: goal, conceptId, answers (question id to answer), message, gapName"),
		),
	)
}

func (t *EventTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	key := req.GetString("session_key", "")
	if key == "" {
		return mcp.NewToolResultError("'session_key' is required"), nil
	}
	event := req.GetString("event", "")
	if event == "" {
		return mcp.NewToolResultError("'event' is required"), nil
	}

	var payload tutor.Payload
	if raw, ok := req.GetArguments()["payload"]; ok && raw != nil {
		b, err := json.Marshal(raw)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("invalid payload: %v", err)), nil
		}
		if err := json.Unmarshal(b, &payload); err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("invalid payload: %v", err)), nil
		}
	}

	out, err := t.sessions.Dispatch(ctx, key, tutor.Command{Event: tutor.Event(event), Payload: payload})
	if err != nil {
		return errorResult(err), nil
	}
	return jsonResult(out)
}

// ─── SessionTool ────────────────────────────────────────────────────────────

// SessionTool handles alis_session.
type SessionTool struct {
	sessions Sessions
}

func NewSessionTool(s Sessions) *SessionTool {
	return &SessionTool{sessions: s}
}

func (t *SessionTool) Definition() mcp.Tool {
	return mcp.NewTool("alis_session",
		mcp.WithDescription("Show the current state of a session, or list recent sessions when no key is given."),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithString("session_key",
			mcp.Description("Session key; omit to list sessions"),
		),
		mcp.WithNumber("limit",
			mcp.Description("Maximum sessions to list (default: 20)"),
		),
	)
}

func (t *SessionTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if key := req.GetString("session_key", ""); key != "" {
		out, err := t.sessions.Get(ctx, key)
		if err != nil {
			return errorResult(err), nil
		}
		return jsonResult(out)
	}

	sums, err := t.sessions.List(ctx, max(req.GetInt("limit", 20), 1))
	if err != nil {
		return errorResult(err), nil
	}
	if len(sums) == 0 {
		return mcp.NewToolResultText("No sessions yet."), nil
	}
	return jsonResult(sums)
}

// ─── LogTool ────────────────────────────────────────────────────────────────

// LogTool handles alis_log.
type LogTool struct {
	sessions Sessions
}

func NewLogTool(s Sessions) *LogTool {
	return &LogTool{sessions: s}
}

func (t *LogTool) Definition() mcp.Tool {
	return mcp.NewTool("alis_log",
		mcp.WithDescription("Read a session's learning log: every applied event with its phase change and test score."),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithString("session_key",
			mcp.Required(),
			mcp.Description("Session key"),
		),
		mcp.WithNumber("limit",
			mcp.Description("Maximum entries (default: all)"),
		),
	)
}

func (t *LogTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	key := req.GetString("session_key", "")
	if key == "" {
		return mcp.NewToolResultError("'session_key' is required"), nil
	}
	entries, err := t.sessions.Log(ctx, key, store.QueryOpts{Limit: max(req.GetInt("limit", 0), 0)})
	if err != nil {
		return errorResult(err), nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Learning log of %s (%d entries)\n\n", key, len(entries))
	for _, e := range entries {
		fmt.Fprintf(&b, "%d. %s  %s → %s", e.Sequence, e.Event, e.PhaseBefore, e.PhaseAfter)
		if e.ConceptID != "" {
			fmt.Fprintf(&b, "  concept=%s", e.ConceptID)
		}
		if e.Score != nil {
			fmt.Fprintf(&b, "  score=%d%%", *e.Score)
		}
		b.WriteByte('\n')
	}
	return mcp.NewToolResultText(b.String()), nil
}

// ─── helpers ────────────────────────────────────────────────────────────────

func jsonResult(v any) (*mcp.CallToolResult, error) {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode result: %w", err)
	}
	return mcp.NewToolResultText(string(b)), nil
}

// errorResult reports err to the client with its error kind, so the
// assistant can tell a retryable failure from a rejected event.
func errorResult(err error) *mcp.CallToolResult {
	kind := tutor.KindOf(err)
	msg := err.Error()
	var te *tutor.Error
	if errors.As(err, &te) {
		msg = te.Message
	}
	if kind == tutor.KindInternal {
		msg = "internal error"
	}
	text := fmt.Sprintf("%s: %s", kind, msg)
	if tutor.Retryable(err) {
		text += " (retry)"
	}
	return mcp.NewToolResultError(text)
}
