package tutor

import (
	"context"
	"errors"
	"fmt"

	"github.com/abhisek/alis/internal/agents"
	"github.com/abhisek/alis/internal/evaluation"
	"github.com/abhisek/alis/internal/path"
)

// Kind classifies an error for the caller. The values are part of the
// external error envelope.
type Kind string

const (
	KindNotFound          Kind = "NotFoundError"
	KindInvalidState      Kind = "InvalidStateError"
	KindIllegalTransition Kind = "IllegalTransitionError"
	KindGeneration        Kind = "GenerationError"
	KindGenerationTimeout Kind = "GenerationTimeout"
	KindConfiguration     Kind = "ConfigurationError"
	KindConflict          Kind = "ConflictError"
	KindBadRequest        Kind = "BadRequest"
	KindInternal          Kind = "InternalError"
)

// Error is the typed error returned by the machine and the dispatcher.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

func newError(kind Kind, err error, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Err: err}
}

// NotFound reports a missing session, goal or concept.
func NotFound(format string, args ...any) *Error {
	return newError(KindNotFound, nil, format, args...)
}

// InvalidState reports an operation that is legal in general but not for
// the current state of its target.
func InvalidState(format string, args ...any) *Error {
	return newError(KindInvalidState, nil, format, args...)
}

// BadRequest reports a malformed command payload.
func BadRequest(format string, args ...any) *Error {
	return newError(KindBadRequest, nil, format, args...)
}

// Conflict reports a concurrent event for the same session.
func Conflict(err error, format string, args ...any) *Error {
	return newError(KindConflict, err, format, args...)
}

// Internal wraps a failure outside the tutoring model, such as storage.
func Internal(err error, format string, args ...any) *Error {
	return newError(KindInternal, err, format, args...)
}

// IllegalTransitionError reports an event that the current phase does not
// accept.
func IllegalTransitionError(phase Phase, event Event) *Error {
	return newError(KindIllegalTransition, nil, "event %q is not valid in phase %q", event, phase)
}

// KindOf classifies err. Errors that carry no kind are internal.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var te *Error
	if errors.As(err, &te) {
		return te.Kind
	}
	var ge *agents.GenerationError
	switch {
	case errors.As(err, &ge):
		if ge.Timeout() {
			return KindGenerationTimeout
		}
		return KindGeneration
	case errors.Is(err, context.DeadlineExceeded):
		return KindGenerationTimeout
	case errors.Is(err, path.ErrNotFound):
		return KindNotFound
	case errors.Is(err, path.ErrInvalidState):
		return KindInvalidState
	case errors.Is(err, evaluation.ErrInvalidConfig):
		return KindConfiguration
	}
	return KindInternal
}

// Retryable reports whether the caller may resend the same event.
func Retryable(err error) bool {
	k := KindOf(err)
	return k == KindGeneration || k == KindGenerationTimeout || k == KindConflict
}

// classify returns err as an *Error, keeping an existing kind.
func classify(err error) *Error {
	var te *Error
	if errors.As(err, &te) {
		return te
	}
	kind := KindOf(err)
	msg := err.Error()
	if kind == KindGeneration || kind == KindGenerationTimeout {
		msg = "content generation failed, please retry"
	}
	return &Error{Kind: kind, Message: msg, Err: err}
}
