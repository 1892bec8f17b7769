// Package domain contains the core access-control entities and rules.
// These types have no knowledge of queues, stores, or transport concerns.
package domain

import (
	"errors"
	"fmt"
)

// Sentinel errors for the typed error kinds raised by the core (spec §7).
var (
	ErrNotFound           = errors.New("not found")
	ErrAlreadyExists      = errors.New("already exists")
	ErrInvalidArgument    = errors.New("invalid argument")
	ErrWouldCreateCycle   = errors.New("would create cycle")
	ErrConflict           = errors.New("conflict")
	ErrNotSupported       = errors.New("not supported")
	ErrUnauthorized       = errors.New("unauthorized")
	ErrCircuitOpen        = errors.New("circuit open")
	ErrTimeout            = errors.New("timeout")
	ErrCanceled           = errors.New("canceled")
	ErrShuttingDown       = errors.New("shutting down")
	ErrPersistenceFailure = errors.New("persistence failure")
	ErrInternal           = errors.New("internal error")
)

// ValidationError represents a single field-level validation failure.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("validation error on %s: %s", e.Field, e.Message)
}

func (e ValidationError) Unwrap() error { return ErrInvalidArgument }

// ValidationErrors is a collection of validation errors.
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	if len(e) == 1 {
		return e[0].Error()
	}
	return fmt.Sprintf("%d validation errors", len(e))
}

func (e ValidationErrors) Unwrap() error { return ErrInvalidArgument }

// ErrorKind names the error kinds a command result can carry, matching spec §7
// exactly. CommandError wraps one of the sentinels above with the
// correlation id of the command that raised it.
type ErrorKind string

const (
	KindNotFound           ErrorKind = "NotFound"
	KindAlreadyExists      ErrorKind = "AlreadyExists"
	KindInvalidArgument    ErrorKind = "InvalidArgument"
	KindWouldCreateCycle   ErrorKind = "WouldCreateCycle"
	KindConflict           ErrorKind = "Conflict"
	KindNotSupported       ErrorKind = "NotSupported"
	KindUnauthorized       ErrorKind = "Unauthorized"
	KindCircuitOpen        ErrorKind = "CircuitOpen"
	KindTimeout            ErrorKind = "Timeout"
	KindCanceled           ErrorKind = "Canceled"
	KindShuttingDown       ErrorKind = "ShuttingDown"
	KindPersistenceFailure ErrorKind = "PersistenceFailure"
	KindInternal           ErrorKind = "Internal"
)

// CommandError is the error type resolved on a command's promise. It
// carries the correlation id of the command that failed alongside a
// machine-readable Kind so external handlers can map 1:1 to transport
// status codes without re-inspecting the wrapped error chain.
type CommandError struct {
	Kind          ErrorKind
	CorrelationID string
	Err           error
}

func (e *CommandError) Error() string {
	if e.CorrelationID == "" {
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %v (correlation_id=%s)", e.Kind, e.Err, e.CorrelationID)
}

func (e *CommandError) Unwrap() error { return e.Err }

// NewCommandError classifies err against the sentinels above and wraps it.
func NewCommandError(correlationID string, err error) *CommandError {
	if err == nil {
		return nil
	}
	var ce *CommandError
	if errors.As(err, &ce) {
		if ce.CorrelationID == "" {
			ce.CorrelationID = correlationID
		}
		return ce
	}
	return &CommandError{Kind: ClassifyError(err), CorrelationID: correlationID, Err: err}
}

// ClassifyError maps err onto the closed set of ErrorKind values, defaulting to
// Internal for anything unrecognized (panics recovered by the dispatcher
// land here too).
func ClassifyError(err error) ErrorKind {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrNotFound):
		return KindNotFound
	case errors.Is(err, ErrAlreadyExists):
		return KindAlreadyExists
	case errors.Is(err, ErrWouldCreateCycle):
		return KindWouldCreateCycle
	case errors.Is(err, ErrConflict):
		return KindConflict
	case errors.Is(err, ErrNotSupported):
		return KindNotSupported
	case errors.Is(err, ErrUnauthorized):
		return KindUnauthorized
	case errors.Is(err, ErrCircuitOpen):
		return KindCircuitOpen
	case errors.Is(err, ErrTimeout):
		return KindTimeout
	case errors.Is(err, ErrCanceled):
		return KindCanceled
	case errors.Is(err, ErrShuttingDown):
		return KindShuttingDown
	case errors.Is(err, ErrPersistenceFailure):
		return KindPersistenceFailure
	case errors.Is(err, ErrInvalidArgument):
		return KindInvalidArgument
	default:
		var ve ValidationError
		var ves ValidationErrors
		if errors.As(err, &ve) || errors.As(err, &ves) {
			return KindInvalidArgument
		}
		return KindInternal
	}
}

// Retryable reports whether err is a class of failure the resilience layer
// should retry (timeouts, transport/I-O failures), as opposed to failures
// that retrying can never fix (validation, not-found, cycles, ...).
func Retryable(err error) bool {
	switch ClassifyError(err) {
	case KindTimeout, KindInternal, KindPersistenceFailure:
		return true
	default:
		return false
	}
}
