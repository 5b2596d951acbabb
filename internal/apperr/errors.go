// Package apperr defines the structured error taxonomy returned by every
// core operation. Predictable failures carry a stable code plus optional
// hint metadata so an automated caller can self-correct without a human.
package apperr

import (
	"errors"
	"fmt"
	"strings"
)

// Code is a stable, machine-readable error kind.
type Code string

const (
	CodeNotFound             Code = "NOT_FOUND"
	CodeAmbiguousTarget      Code = "AMBIGUOUS_TARGET"
	CodeInvalidArgument      Code = "INVALID_ARGUMENT"
	CodeInvalidLineReference Code = "INVALID_LINE_REFERENCE"
	CodeEmptyContentBlocked  Code = "EMPTY_CONTENT_BLOCKED"
	CodeConfirmationRequired Code = "CONFIRMATION_REQUIRED"
	CodeConfirmationInvalid  Code = "CONFIRMATION_INVALID"
	CodeUnsupportedTarget    Code = "UNSUPPORTED_TARGET"
	CodeNoteInTrash          Code = "NOTE_IN_TRASH"
	CodeTimeout              Code = "TIMEOUT"
	CodeInternal             Code = "INTERNAL"
)

// Error is a structured application error.
type Error struct {
	Code          Code   `json:"code"`
	Message       string `json:"error"`
	Hint          string `json:"hint,omitempty"`
	SuggestedTool string `json:"suggestedTool,omitempty"`
	Retryable     bool   `json:"retryable,omitempty"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// New creates an Error with the given code and message.
func New(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// WithHint attaches a hint and returns the error for chaining.
func (e *Error) WithHint(hint string) *Error {
	e.Hint = hint
	return e
}

// WithTool attaches a suggested follow-up tool name.
func (e *Error) WithTool(tool string) *Error {
	e.SuggestedTool = tool
	return e
}

// WithRetryable marks the error as retryable.
func (e *Error) WithRetryable() *Error {
	e.Retryable = true
	return e
}

// NotFound is a convenience constructor for missing targets.
func NotFound(what string) *Error {
	return New(CodeNotFound, "not found: %s", what).
		WithHint("check the filename or use search_notes to locate the note").
		WithTool("search_notes")
}

// As extracts an *Error from err, or nil if err carries none.
func As(err error) *Error {
	var ae *Error
	if errors.As(err, &ae) {
		return ae
	}
	return nil
}

// Classify maps an arbitrary collaborator fault to a structured Error.
// Already-structured errors pass through; everything else becomes a generic
// execution error with a best-effort code inferred from the message, so the
// caller still gets actionable metadata at the outermost boundary.
func Classify(err error) *Error {
	if err == nil {
		return nil
	}
	if ae := As(err); ae != nil {
		return ae
	}

	msg := err.Error()
	lower := strings.ToLower(msg)
	switch {
	case strings.Contains(lower, "no such file"), strings.Contains(lower, "not found"):
		return New(CodeNotFound, "%s", msg).WithTool("search_notes")
	case strings.Contains(lower, "deadline exceeded"), strings.Contains(lower, "timed out"), strings.Contains(lower, "timeout"):
		return New(CodeTimeout, "%s", msg).WithRetryable()
	case strings.Contains(lower, "permission denied"):
		return New(CodeUnsupportedTarget, "%s", msg).
			WithHint("the target is outside the writable note store")
	default:
		return New(CodeInternal, "%s", msg)
	}
}
