package schema

import "fmt"

// Error codes for structured error reporting.
const (
	ErrCodeInvalidDefinition = "INVALID_DEFINITION"
	ErrCodeCycleDetected     = "CYCLE_DETECTED"
	ErrCodeNotFound          = "NOT_FOUND"
	ErrCodeMissingInput      = "MISSING_INPUT"
	ErrCodeMissingUserInput  = "MISSING_USER_INPUT"
	ErrCodeInvalidChoice     = "INVALID_CHOICE"
	ErrCodeValidatorInternal = "VALIDATOR_INTERNAL"
	ErrCodeIllegalTransition = "ILLEGAL_TRANSITION"
	ErrCodeExecution         = "EXECUTION_ERROR"
	ErrCodeStore             = "STORE_ERROR"
	ErrCodeConflict          = "CONFLICT"
)

// EngineError is the structured error type for all engine operations.
type EngineError struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
	StepID  string         `json:"step_id,omitempty"`
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

// IsStepFailure reports whether the code describes a step-level business
// failure (the execution is marked failed, prior results retained) rather
// than a structural or control-plane rejection.
func (e *EngineError) IsStepFailure() bool {
	switch e.Code {
	case ErrCodeMissingInput, ErrCodeMissingUserInput, ErrCodeInvalidChoice,
		ErrCodeValidatorInternal, ErrCodeExecution:
		return true
	}
	return false
}
