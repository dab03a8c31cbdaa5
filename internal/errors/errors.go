package errors

import (
	stderrors "errors"
	"fmt"
	"sort"
	"strings"
)

// MemError is the structured error type used across amanmem.
type MemError struct {
	// Code is the unique error code (e.g., "ERR_207_STORE_WRITE").
	Code string

	// Message is the human-readable error message.
	Message string

	Category Category
	Severity Severity

	// Details carries extra context such as table or row id.
	Details map[string]string

	Cause error

	Retryable bool

	// Suggestion is an actionable hint shown by the CLI.
	Suggestion string
}

// Error implements the error interface.
func (e *MemError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause for error chain support.
func (e *MemError) Unwrap() error {
	return e.Cause
}

// Is matches another MemError by code, so errors.Is works against sentinels.
func (e *MemError) Is(target error) bool {
	if t, ok := target.(*MemError); ok {
		return e.Code == t.Code
	}
	return false
}

// WithDetail adds a key-value detail to the error.
func (e *MemError) WithDetail(key, value string) *MemError {
	if e.Details == nil {
		e.Details = make(map[string]string)
	}
	e.Details[key] = value
	return e
}

// WithSuggestion adds an actionable suggestion for the user.
func (e *MemError) WithSuggestion(suggestion string) *MemError {
	e.Suggestion = suggestion
	return e
}

// New creates a MemError. Category, severity and retryability derive from code.
func New(code string, message string, cause error) *MemError {
	return &MemError{
		Code:      code,
		Message:   message,
		Category:  categoryFromCode(code),
		Severity:  severityFromCode(code),
		Cause:     cause,
		Retryable: isRetryableCode(code),
	}
}

// Wrap creates a MemError from an existing error, reusing its message.
func Wrap(code string, err error) *MemError {
	if err == nil {
		return nil
	}
	return New(code, err.Error(), err)
}

// ValidationError creates an input validation error.
func ValidationError(message string, cause error) *MemError {
	return New(ErrCodeInvalidInput, message, cause)
}

// MissingField reports a required field that was empty.
func MissingField(field string) *MemError {
	return New(ErrCodeMissingField, field+" is required", nil).WithDetail("field", field)
}

// InternalError creates an internal error.
func InternalError(message string, cause error) *MemError {
	return New(ErrCodeInternal, message, cause)
}

// As finds the first MemError in err's chain.
func As(err error) (*MemError, bool) {
	var me *MemError
	if stderrors.As(err, &me) {
		return me, true
	}
	return nil, false
}

// IsRetryable reports whether any MemError in the chain is retryable.
func IsRetryable(err error) bool {
	if me, ok := As(err); ok {
		return me.Retryable
	}
	return false
}

// IsValidation reports whether err is caused by bad caller input.
func IsValidation(err error) bool {
	if me, ok := As(err); ok {
		return me.Category == CategoryValidation
	}
	return false
}

// GetCode extracts the error code, or "" when err carries no MemError.
func GetCode(err error) string {
	if me, ok := As(err); ok {
		return me.Code
	}
	return ""
}

// FormatForCLI renders err for terminal output, including the suggestion
// and, in debug mode, sorted details.
func FormatForCLI(err error, debug bool) string {
	if err == nil {
		return ""
	}
	me, ok := As(err)
	if !ok {
		return "Error: " + err.Error()
	}

	var sb strings.Builder
	sb.WriteString("Error: ")
	sb.WriteString(me.Message)
	if me.Suggestion != "" {
		sb.WriteString("\n  Suggestion: ")
		sb.WriteString(me.Suggestion)
	}
	if debug {
		keys := make([]string, 0, len(me.Details))
		for k := range me.Details {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Fprintf(&sb, "\n  %s: %s", k, me.Details[k])
		}
		if me.Cause != nil && me.Cause.Error() != me.Message {
			sb.WriteString("\n  cause: ")
			sb.WriteString(me.Cause.Error())
		}
	}
	sb.WriteString("\n  [")
	sb.WriteString(me.Code)
	sb.WriteString("]")
	return sb.String()
}
