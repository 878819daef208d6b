package session

import (
	"errors"
	"fmt"

	"github.com/classroomgames/tugquiz/internal/wire"
)

// Kind classifies an engine error for propagation and logging purposes
// (§7, error taxonomy: protocol, authorization, state, rate-limit,
// storage, fatal).
type Kind string

const (
	KindProtocol      Kind = "protocol"
	KindAuthorization Kind = "authorization"
	KindState         Kind = "state"
	KindRateLimit     Kind = "rate_limit"
	KindStorage       Kind = "storage"
	KindFatal         Kind = "fatal"
)

// Error is the engine's internal error type. It never crosses the actor
// boundary unwrapped: handlers translate it into a wire.Error event on
// the originating connection (§7, propagation policy).
type Error struct {
	Kind Kind
	Code wire.ErrorCode
	Msg  string
	err  error
}

func (e *Error) Error() string {
	if e.err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Msg, e.err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

func (e *Error) Unwrap() error { return e.err }

func newErr(kind Kind, code wire.ErrorCode, msg string, cause error) *Error {
	return &Error{Kind: kind, Code: code, Msg: msg, err: cause}
}

var (
	// ErrInvalidState is returned when a command is not permitted by the
	// current phase (§4.3).
	ErrInvalidState = func(msg string) *Error { return newErr(KindState, wire.ErrInvalidState, msg, nil) }
	// ErrAlreadyAnswered is returned on a duplicate (instance, student) submission.
	ErrAlreadyAnswered = func() *Error {
		return newErr(KindState, wire.ErrAlreadyAnswered, "student already answered this question", nil)
	}
	// ErrQuestionExpired is returned when a submission arrives after the deadline.
	ErrQuestionExpired = func() *Error {
		return newErr(KindState, wire.ErrQuestionExpired, "question time limit has elapsed", nil)
	}
	// ErrInvalidAnswer is returned for an unknown team, option, or instance id.
	ErrInvalidAnswer = func(msg string) *Error { return newErr(KindState, wire.ErrInvalidAnswer, msg, nil) }
	// ErrNotAuthorized is returned when the sender's role cannot issue the command.
	ErrNotAuthorized = func() *Error {
		return newErr(KindAuthorization, wire.ErrNotAuthorized, "role is not authorized for this command", nil)
	}
	// ErrInvalidToken wraps an auth failure on HELLO or the Control API.
	ErrInvalidToken = func(cause error) *Error {
		return newErr(KindAuthorization, wire.ErrInvalidToken, "token is invalid or expired", cause)
	}
	// ErrSessionEnded is returned for any command issued to a completed session.
	ErrSessionEnded = func() *Error {
		return newErr(KindState, wire.ErrSessionEnded, "session has already ended", nil)
	}
	// ErrSessionNotFound is returned when no runtime state exists for a session id.
	ErrSessionNotFound = func() *Error {
		return newErr(KindState, wire.ErrSessionNotFound, "session not found", nil)
	}
	// ErrInvalidMessage wraps a protocol-level decode/validation failure.
	ErrInvalidMessage = func(cause error) *Error {
		return newErr(KindProtocol, wire.ErrInvalidMessage, "malformed or unknown message", cause)
	}
	// ErrRateLimited is returned when a connection exceeds its token window.
	ErrRateLimited = func() *Error {
		return newErr(KindRateLimit, wire.ErrRateLimited, "message rate limit exceeded", nil)
	}
)

// ErrStorage wraps a Storage Adapter failure. retryable distinguishes a
// transient I/O error from a fatal/constraint failure (§7).
func ErrStorage(cause error, retryable bool) *Error {
	kind := KindStorage
	if !retryable {
		kind = KindFatal
	}
	return newErr(kind, wire.ErrInternal, "storage operation failed", cause)
}

// ErrStateStore wraps a State Store write failure and classifies it as
// fatal. The actor logs it; it does not block later commands, which keep
// mutating the in-memory state.
func ErrStateStore(cause error) *Error {
	return newErr(KindFatal, wire.ErrInternal, "state store write failed", cause)
}

// AsEngineError unwraps err into an *Error, synthesizing an internal
// error for anything unrecognized so callers never leak a bare error.
func AsEngineError(err error) *Error {
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return newErr(KindFatal, wire.ErrInternal, "unexpected internal error", err)
}
