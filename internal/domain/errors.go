package domain

import (
	"errors"
	"fmt"
	"time"
)

// Sentinel errors returned by sessions
var (
	ErrSuperseded    = errors.New("submission superseded by a newer request")
	ErrNoSnapshot    = errors.New("no accepted evaluation for this session")
	ErrUnknownOption = errors.New("unknown evidence option")
)

// CallErrorKind classifies why a single backend call failed.
type CallErrorKind string

// Failure kinds for backend calls. All of them count as a failed call.
const (
	CallTimeout   CallErrorKind = "TIMEOUT"
	CallTransport CallErrorKind = "TRANSPORT"
	CallStatus    CallErrorKind = "STATUS"
	CallMalformed CallErrorKind = "MALFORMED_RESPONSE"
)

// CallError describes the failure of one backend call
type CallError struct {
	Kind       CallErrorKind `json:"kind"`
	Method     string        `json:"method"`
	Endpoint   string        `json:"endpoint"`
	StatusCode int           `json:"status_code,omitempty"`
	Message    string        `json:"message"`
	Timestamp  time.Time     `json:"timestamp"`
	Err        error         `json:"-"`
}

// Error implements the error interface. Only the human-readable message is
// returned so it can be surfaced to users as is.
func (e *CallError) Error() string {
	return e.Message
}

// Unwrap returns the underlying transport or decoding error
func (e *CallError) Unwrap() error {
	return e.Err
}

// NewCallError creates a CallError with timestamp
func NewCallError(kind CallErrorKind, method, endpoint string, status int, message string, err error) *CallError {
	return &CallError{
		Kind:       kind,
		Method:     method,
		Endpoint:   endpoint,
		StatusCode: status,
		Message:    message,
		Timestamp:  time.Now().UTC(),
		Err:        err,
	}
}

// SubmissionError is the single consolidated failure of a locus submission.
// Message is the representative error; Calls holds every failed call.
type SubmissionError struct {
	Message string       `json:"message"`
	Calls   []*CallError `json:"calls"`
}

// Error implements the error interface
func (e *SubmissionError) Error() string {
	return e.Message
}

// Failed returns the number of calls that did not succeed
func (e *SubmissionError) Failed() int {
	return len(e.Calls)
}

// ValidationError represents input validation errors
type ValidationError struct {
	Field   string      `json:"field"`
	Message string      `json:"message"`
	Value   interface{} `json:"value"`
}

// Error implements the error interface
func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error for field '%s': %s", e.Field, e.Message)
}

// NewValidationError creates a new ValidationError
func NewValidationError(field, message string, value interface{}) *ValidationError {
	return &ValidationError{
		Field:   field,
		Message: message,
		Value:   value,
	}
}
