package domain

import (
	"errors"
	"fmt"
)

// Sentinel errors used across all layers.
var (
	ErrNotFound      = errors.New("not found")
	ErrAlreadyExists = errors.New("already exists")
	ErrValidation    = errors.New("validation error")
	ErrUnauthorized  = errors.New("unauthorized")
	ErrForbidden     = errors.New("forbidden")

	// ErrInvalidState is returned when an operation is not permitted from the
	// document's current lifecycle or approval state.
	ErrInvalidState = errors.New("invalid state")
	// ErrConcurrentModification is returned when a conditional write lost
	// the race against another writer.
	ErrConcurrentModification = errors.New("concurrent modification")
	// ErrAuditUnavailable means the audit sink cannot accept another entry.
	ErrAuditUnavailable = errors.New("audit unavailable")
	// ErrExternalUnavailable covers object store and workflow engine outages.
	ErrExternalUnavailable = errors.New("external dependency unavailable")
)

// Adapter error kinds. Adapters wrap them; the orchestrator records them
// inside a StageFailure.
var (
	ErrUnsupportedFormat = errors.New("unsupported format")
	ErrCorruptFile       = errors.New("corrupt file")
	ErrExtractionTimeout = errors.New("extraction timeout")
	ErrModelUnavailable  = errors.New("model unavailable")
	ErrContentTooLarge   = errors.New("content too large")
	ErrIndexUnavailable  = errors.New("index unavailable")
	ErrPayloadTooLarge   = errors.New("payload too large")
	ErrWorkflowDispatch  = errors.New("workflow dispatch failed")
)

// FieldError describes a validation error for a specific field.
type FieldError struct {
	Field   string
	Message string
}

// ValidationError contains a list of field-level validation errors.
type ValidationError struct {
	Errors []FieldError
}

func (e *ValidationError) Error() string {
	if len(e.Errors) == 1 {
		return fmt.Sprintf("validation: %s: %s", e.Errors[0].Field, e.Errors[0].Message)
	}
	return fmt.Sprintf("validation: %d errors", len(e.Errors))
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// NewValidationError creates a ValidationError for a single field.
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{
		Errors: []FieldError{{Field: field, Message: message}},
	}
}

// NewValidationErrors creates a ValidationError from multiple field errors.
func NewValidationErrors(errs []FieldError) *ValidationError {
	return &ValidationError{Errors: errs}
}

// StageFailure is the uniform failure value produced by every pipeline stage.
type StageFailure struct {
	Stage Stage
	Cause error
}

func (f *StageFailure) Error() string {
	return fmt.Sprintf("stage %s: %v", f.Stage, f.Cause)
}

func (f *StageFailure) Unwrap() error { return f.Cause }

// NewStageFailure tags cause with the stage that produced it.
func NewStageFailure(stage Stage, cause error) *StageFailure {
	return &StageFailure{Stage: stage, Cause: cause}
}

// Kind returns a short machine-readable name of the failure cause, used in
// audit details and processing_error prefixes.
func (f *StageFailure) Kind() string {
	switch {
	case errors.Is(f.Cause, ErrUnsupportedFormat):
		return "unsupported_format"
	case errors.Is(f.Cause, ErrCorruptFile):
		return "corrupt_file"
	case errors.Is(f.Cause, ErrExtractionTimeout):
		return "extraction_timeout"
	case errors.Is(f.Cause, ErrModelUnavailable):
		return "model_unavailable"
	case errors.Is(f.Cause, ErrContentTooLarge):
		return "content_too_large"
	case errors.Is(f.Cause, ErrIndexUnavailable):
		return "index_unavailable"
	case errors.Is(f.Cause, ErrPayloadTooLarge):
		return "payload_too_large"
	case errors.Is(f.Cause, ErrExternalUnavailable):
		return "external_unavailable"
	default:
		return "internal"
	}
}
