package errors

import (
	"errors"
	"fmt"
)

// Standard errors
var (
	// ErrNotFound is returned when a requested resource is not found
	ErrNotFound = errors.New("resource not found")

	// ErrInvalidInput is returned when the input is invalid
	ErrInvalidInput = errors.New("invalid input")

	// ErrInputRejected is returned when input fails a guardrail check.
	// The user-visible message is always the fixed refusal string; internal
	// reason codes travel separately and reach logs only.
	ErrInputRejected = errors.New("input rejected by guardrails")

	// ErrMemoryDegraded indicates a memory backing store was unreachable.
	// Non-fatal: orchestration proceeds with partial context.
	ErrMemoryDegraded = errors.New("memory store degraded")

	// ErrTranslationFailed is returned when the completion service could not
	// produce a valid query spec from the utterance.
	ErrTranslationFailed = errors.New("query translation failed")

	// ErrExecutionFailed is returned when the source datastore rejected or
	// errored on a valid query spec.
	ErrExecutionFailed = errors.New("query execution failed")

	// ErrCompletionUnavailable is returned when the completion service is
	// unreachable for classification or generation.
	ErrCompletionUnavailable = errors.New("completion service unavailable")
)

// Wrap wraps an error with additional context
func Wrap(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf(format+": %w", append(args, err)...)
}

// Is reports whether any error in err's tree matches target.
// This is a convenience function that wraps errors.Is
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's tree that matches target, and if so, sets
// target to that error value and returns true. Otherwise, it returns false.
// This is a convenience function that wraps errors.As
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}
