// Package apperrors provides structured application errors for job manager
// operations with HTTP status mapping.
package apperrors

import (
	"errors"
	"fmt"
)

// Sentinel errors for classification via errors.Is().
var (
	ErrValidation = errors.New("validation error")
	ErrNotFound   = errors.New("not found")

	// ErrRemoteCall is the base condition for any non-success response from
	// the job manager control API.
	ErrRemoteCall = errors.New("remote call failed")

	ErrInvalidArtifact    = errors.New("invalid artifact")
	ErrJobStartFailed     = errors.New("job start failed")
	ErrJobIDNotFound      = errors.New("job id not found")
	ErrSavepointFailed    = errors.New("savepoint failed")
	ErrMaxRetriesExceeded = errors.New("max retries exceeded")
	ErrJobFailed          = errors.New("job failed")
	ErrSessionNotFound    = errors.New("session not found")
	ErrAmbiguousSession   = errors.New("ambiguous session")
)

// Error provides structured error with context.
type Error struct {
	Sentinel error  // Wrapped sentinel for errors.Is() classification
	Message  string // Human-readable message
	Field    string // For validation errors (e.g., "jarPath")
	Resource string // Entity kind (e.g., "jar", "job", "session")
	ID       string // Entity identifier or path
	Retries  int    // Retry budget for ErrMaxRetriesExceeded
	Detail   string // Remote detail such as a savepoint stack trace
	Cause    error  // Underlying error
}

// Error returns the human-readable error message.
func (e *Error) Error() string {
	return e.Message
}

// Unwrap exposes both the sentinel and the underlying cause, so errors.Is
// classifies by kind while errors.As still reaches the transport error.
func (e *Error) Unwrap() []error {
	if e.Cause == nil {
		return []error{e.Sentinel}
	}
	return []error{e.Sentinel, e.Cause}
}

// Validation creates a validation error for a specific field.
func Validation(field, message string) error {
	return &Error{
		Sentinel: ErrValidation,
		Message:  message,
		Field:    field,
	}
}

// NotFound creates a not found error for a resource.
func NotFound(resource, id string, cause error) error {
	return &Error{
		Sentinel: ErrNotFound,
		Message:  fmt.Sprintf("%s %s not found", resource, id),
		Resource: resource,
		ID:       id,
		Cause:    cause,
	}
}

// InvalidArtifact reports that the job manager rejected an uploaded file.
func InvalidArtifact(path string, cause error) error {
	return &Error{
		Sentinel: ErrInvalidArtifact,
		Message:  fmt.Sprintf("file at %s is not a valid JAR", path),
		Resource: "jar",
		ID:       path,
		Cause:    cause,
	}
}

// JobStartFailed reports that a run request for an uploaded jar was rejected.
func JobStartFailed(jarID, reason string, cause error) error {
	return &Error{
		Sentinel: ErrJobStartFailed,
		Message:  fmt.Sprintf("unable to start running job from jar=<%s>: %s", jarID, reason),
		Resource: "jar",
		ID:       jarID,
		Detail:   reason,
		Cause:    cause,
	}
}

// JobIDNotFound reports that the job manager rejected a request referencing a job.
func JobIDNotFound(jobID, reason string, cause error) error {
	return &Error{
		Sentinel: ErrJobIDNotFound,
		Message:  fmt.Sprintf("could not find job=<%s>: %s", jobID, reason),
		Resource: "job",
		ID:       jobID,
		Detail:   reason,
		Cause:    cause,
	}
}

// SavepointFailed reports a terminal savepoint operation carrying a failure cause.
func SavepointFailed(jobID, stackTrace string) error {
	return &Error{
		Sentinel: ErrSavepointFailed,
		Message:  fmt.Sprintf("savepoint for job=<%s> failed: %s", jobID, stackTrace),
		Resource: "job",
		ID:       jobID,
		Detail:   stackTrace,
	}
}

// MaxRetries reports that a polling loop exhausted its budget.
func MaxRetries(what string, retries int) error {
	return &Error{
		Sentinel: ErrMaxRetriesExceeded,
		Message:  fmt.Sprintf("%s was not completed in time: max retries=<%d> reached", what, retries),
		Retries:  retries,
	}
}

// JobFailed reports a job that reached the FAILED state while being awaited.
func JobFailed(jobID, state string) error {
	return &Error{
		Sentinel: ErrJobFailed,
		Message:  fmt.Sprintf("job=<%s> terminated in state=<%s>", jobID, state),
		Resource: "job",
		ID:       jobID,
		Detail:   state,
	}
}

// SessionNotFound reports that no running session matched a name.
func SessionNotFound(name string) error {
	return &Error{
		Sentinel: ErrSessionNotFound,
		Message:  fmt.Sprintf("no app found with state=<RUNNING> and name=<%s>", name),
		Resource: "session",
		ID:       name,
	}
}

// AmbiguousSession reports that more than one running session matched a name.
func AmbiguousSession(name string, count int) error {
	return &Error{
		Sentinel: ErrAmbiguousSession,
		Message:  fmt.Sprintf("%d apps found with state=<RUNNING> and name=<%s>", count, name),
		Resource: "session",
		ID:       name,
	}
}
