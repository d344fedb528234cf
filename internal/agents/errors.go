package agents

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrNilInput is returned when an agent is invoked without input
var ErrNilInput = errors.New("input is required")

// ErrorKind classifies errors visible to callers
type ErrorKind int

const (
	ErrorKindUnknown ErrorKind = iota
	ErrorKindValidation
	ErrorKindUnknownAgent
	ErrorKindAmbiguousInput
	ErrorKindProcessing
)

// String returns a human-readable kind name
func (k ErrorKind) String() string {
	switch k {
	case ErrorKindValidation:
		return "validation_error"
	case ErrorKindUnknownAgent:
		return "unknown_agent"
	case ErrorKindAmbiguousInput:
		return "ambiguous_input"
	case ErrorKindProcessing:
		return "processing_error"
	default:
		return "internal_error"
	}
}

// ValidationError reports missing or malformed input. It is returned before
// any pipeline stage runs.
type ValidationError struct {
	Agent  string
	Reason string
	Err    error
}

func (e *ValidationError) Error() string {
	if e.Agent == "" {
		return "invalid input: " + e.Reason
	}
	return fmt.Sprintf("invalid input for %s: %s", e.Agent, e.Reason)
}

func (e *ValidationError) Unwrap() error { return e.Err }

// UnknownAgentError is returned when no agent is registered for a type
type UnknownAgentError struct {
	Type string
}

func (e *UnknownAgentError) Error() string {
	return fmt.Sprintf("no agent registered for type %q", e.Type)
}

// AmbiguousInputError is returned when auto-detection cannot classify an input
type AmbiguousInputError struct {
	Reason string
}

func (e *AmbiguousInputError) Error() string {
	return "cannot determine agent for input: " + e.Reason
}

// ProcessingError wraps a failure inside an agent's pipeline
type ProcessingError struct {
	Agent string
	Stage string
	Err   error
}

func (e *ProcessingError) Error() string {
	return fmt.Sprintf("%s failed at %s: %v", e.Agent, e.Stage, e.Err)
}

func (e *ProcessingError) Unwrap() error { return e.Err }

// PersistenceError describes a failed write. It is logged and attached to
// the envelope, never returned.
type PersistenceError struct {
	Collection string
	Err        error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("failed to persist to %s: %v", e.Collection, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// Classify returns the kind of a caller-visible error
func Classify(err error) ErrorKind {
	var (
		ve *ValidationError
		ue *UnknownAgentError
		ae *AmbiguousInputError
		pe *ProcessingError
	)
	switch {
	case err == nil:
		return ErrorKindUnknown
	case errors.As(err, &ve), errors.Is(err, ErrNilInput):
		return ErrorKindValidation
	case errors.As(err, &ue):
		return ErrorKindUnknownAgent
	case errors.As(err, &ae):
		return ErrorKindAmbiguousInput
	case errors.As(err, &pe):
		return ErrorKindProcessing
	}
	return ErrorKindUnknown
}

// HTTPStatus maps an error onto a response status code
func HTTPStatus(err error) int {
	switch Classify(err) {
	case ErrorKindValidation, ErrorKindAmbiguousInput:
		return http.StatusBadRequest
	case ErrorKindUnknownAgent:
		return http.StatusNotFound
	case ErrorKindProcessing:
		return http.StatusUnprocessableEntity
	}
	return http.StatusInternalServerError
}
