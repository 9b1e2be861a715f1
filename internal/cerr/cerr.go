// Package cerr implements the closed error taxonomy from spec.md §7 on top
// of the standard library errors package. See DESIGN.md's "standard-library
// justifications" for why no third-party errors package is wired here.
package cerr

import (
	"errors"
	"fmt"
)

// Code is one member of the closed error taxonomy.
type Code string

const (
	InvalidState        Code = "INVALID_STATE"
	MissingField         Code = "MISSING_FIELD"
	InvalidDiff          Code = "INVALID_DIFF"
	SyntaxError          Code = "SYNTAX_ERROR"
	TypecheckFailed      Code = "TYPECHECK_FAILED"
	CommandFailed        Code = "COMMAND_FAILED"
	DiffTooLarge         Code = "DIFF_TOO_LARGE"
	ComplexityTooHigh    Code = "COMPLEXITY_TOO_HIGH"
	SubtaskFailed        Code = "SUBTASK_FAILED"
	AgenticLoopExhausted Code = "AGENTIC_LOOP_EXHAUSTED"
	MaxAttemptsReached   Code = "MAX_ATTEMPTS_REACHED"
	Timeout              Code = "TIMEOUT"
	UnknownError         Code = "UNKNOWN_ERROR"
)

// CascadeError is the concrete error type carried through the orchestration
// core. It wraps an optional cause and exposes Code/TaskID/Recoverable for
// the failure-mode memory entry and PR-comment surfaces described in §7.
type CascadeError struct {
	Code        Code
	Message     string
	TaskID      string
	Recoverable bool
	Cause       error
}

// Error implements the error interface.
func (e *CascadeError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap exposes the wrapped cause to errors.Is/errors.As.
func (e *CascadeError) Unwrap() error {
	return e.Cause
}

// New builds a CascadeError with no wrapped cause.
func New(code Code, message, taskID string, recoverable bool) *CascadeError {
	return &CascadeError{Code: code, Message: message, TaskID: taskID, Recoverable: recoverable}
}

// Newf builds a CascadeError with a formatted message.
func Newf(code Code, taskID string, recoverable bool, format string, args ...interface{}) *CascadeError {
	return New(code, fmt.Sprintf(format, args...), taskID, recoverable)
}

// Wrap builds a CascadeError around an existing error, following the
// teacher's fmt.Errorf("...: %w", err) wrapping idiom.
func Wrap(code Code, message, taskID string, recoverable bool, cause error) *CascadeError {
	return &CascadeError{Code: code, Message: message, TaskID: taskID, Recoverable: recoverable, Cause: cause}
}

// AsCascadeError extracts a *CascadeError from err via errors.As.
func AsCascadeError(err error) (*CascadeError, bool) {
	var ce *CascadeError
	if errors.As(err, &ce) {
		return ce, true
	}
	return nil, false
}

// CodeOf returns the Code carried by err, or UnknownError if err is not (or
// does not wrap) a *CascadeError. This backs the dispatcher's "wrap unknown
// errors into UnknownError" policy (spec.md §7).
func CodeOf(err error) Code {
	if ce, ok := AsCascadeError(err); ok {
		return ce.Code
	}
	return UnknownError
}

// IsRecoverable reports whether err is a recoverable CascadeError. A
// non-CascadeError is treated as non-recoverable, matching the dispatcher's
// "wraps unknown errors... (recoverable=false)" policy.
func IsRecoverable(err error) bool {
	if ce, ok := AsCascadeError(err); ok {
		return ce.Recoverable
	}
	return false
}

// AvoidanceStrategy returns a short, structured suggestion keyed by code, used
// both in the failure-mode memory entry and in failure PR comments (§7).
func AvoidanceStrategy(code Code) string {
	switch code {
	case InvalidState:
		return "re-check the task's current status before dispatching the next handler"
	case MissingField:
		return "ensure the producing phase populates all gate-required artifacts"
	case InvalidDiff:
		return "regenerate the diff; verify hunk headers and file markers are well-formed"
	case SyntaxError:
		return "run a syntax check locally before resubmitting the diff"
	case TypecheckFailed:
		return "resolve type errors reported by the typechecker before resubmitting"
	case CommandFailed:
		return "inspect stderr tail of the failing command; verify its argument shape"
	case DiffTooLarge:
		return "split the change across a decomposition or reduce the diff's scope"
	case ComplexityTooHigh:
		return "request manual decomposition or split the issue into smaller issues"
	case SubtaskFailed:
		return "inspect the failing subtask's diff and acceptance criteria"
	case AgenticLoopExhausted:
		return "increase maxIterations/maxReplans or escalate to a human reviewer"
	case MaxAttemptsReached:
		return "raise MAX_ATTEMPTS or escalate; repeated automatic retries will not help"
	case Timeout:
		return "check the collaborator's health; consider raising the call's timeout"
	default:
		return "no structured avoidance strategy is known for this error"
	}
}
