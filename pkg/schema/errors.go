package schema

import (
	"errors"
	"fmt"
)

// Error codes for structured error reporting.
const (
	ErrCodeValidation  = "VALIDATION_ERROR"
	ErrCodeExecution   = "EXECUTION_ERROR"
	ErrCodeExpression  = "EXPRESSION_ERROR"
	ErrCodeTransport   = "TRANSPORT_ERROR"
	ErrCodeScheduling  = "SCHEDULING_ERROR"
	ErrCodeTimeout     = "TIMEOUT_ERROR"
	ErrCodeNotFound    = "NOT_FOUND"
	ErrCodeConflict    = "CONFLICT"
	ErrCodeCancelled   = "CANCELLED"
	ErrCodeStore       = "STORE_ERROR"

	// ErrCodeGeneration marks AI content generation failures. These are soft:
	// callers degrade to the tag-resolved content instead of failing the step.
	ErrCodeGeneration = "GENERATION_UNAVAILABLE"
)

// EngineError is the structured error type for all cadence operations.
type EngineError struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
	StepID  string         `json:"step_id,omitempty"`
	LeadID  string         `json:"lead_id,omitempty"`
	Cause   error          `json:"-"`
}

func (e *EngineError) Error() string {
	if e.StepID != "" {
		return fmt.Sprintf("[%s] step %s: %s", e.Code, e.StepID, e.Message)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *EngineError) Unwrap() error {
	return e.Cause
}

// IsSoft reports whether the error may be swallowed by graceful degradation.
// Only generation failures qualify; everything else surfaces as a fail verdict.
func (e *EngineError) IsSoft() bool {
	return e.Code == ErrCodeGeneration
}

// IsRetryable reports whether a redelivery attempt could plausibly succeed.
func (e *EngineError) IsRetryable() bool {
	switch e.Code {
	case ErrCodeTransport, ErrCodeTimeout, ErrCodeStore, ErrCodeScheduling:
		return true
	}
	return false
}

// NewError creates a new EngineError.
func NewError(code, message string) *EngineError {
	return &EngineError{Code: code, Message: message}
}

// NewErrorf creates a new EngineError with a formatted message.
func NewErrorf(code, format string, args ...any) *EngineError {
	return &EngineError{Code: code, Message: fmt.Sprintf(format, args...)}
}

// WithStep attaches a step ID to the error.
func (e *EngineError) WithStep(stepID string) *EngineError {
	e.StepID = stepID
	return e
}

// WithLead attaches a lead ID to the error.
func (e *EngineError) WithLead(leadID string) *EngineError {
	e.LeadID = leadID
	return e
}

// WithCause attaches an underlying cause.
func (e *EngineError) WithCause(err error) *EngineError {
	e.Cause = err
	return e
}

// WithDetails attaches key-value details.
func (e *EngineError) WithDetails(details map[string]any) *EngineError {
	e.Details = details
	return e
}

// CodeOf extracts the error code, walking the error chain. Unstructured
// errors report as execution errors.
func CodeOf(err error) string {
	var engineErr *EngineError
	if errors.As(err, &engineErr) {
		return engineErr.Code
	}
	if err != nil {
		return ErrCodeExecution
	}
	return ""
}
