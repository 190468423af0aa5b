// Package errs defines the error taxonomy shared by the memory engine
// components. Callers branch on these with errors.Is/errors.As; wrapping
// with fmt.Errorf("...: %w", err) preserves the classification.
package errs

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrNotFound reports an absent thread, message or working-memory
	// document.
	ErrNotFound = errors.New("not found")

	// ErrStorageUnavailable reports a backend I/O failure. Retryable at the
	// caller's boundary; the store retries internally with bounded backoff
	// before surfacing it.
	ErrStorageUnavailable = errors.New("storage unavailable")

	// ErrConcurrentModification reports an optimistic-lock version mismatch
	// on a working-memory update.
	ErrConcurrentModification = errors.New("concurrent modification")
)

// ValidationError reports malformed input naming the offending field and,
// when the field is an enum, the allowed set.
type ValidationError struct {
	Field   string
	Allowed []string
	Reason  string
}

func (e *ValidationError) Error() string {
	msg := "invalid " + e.Field
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	if len(e.Allowed) > 0 {
		msg += " (allowed: " + strings.Join(e.Allowed, ", ") + ")"
	}
	return msg
}

// Validationf builds a ValidationError with a formatted reason.
func Validationf(field, format string, args ...any) *ValidationError {
	return &ValidationError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

// SequencingError reports a Finalize call on a turn with unclosed parts.
type SequencingError struct {
	State  string
	Reason string
}

func (e *SequencingError) Error() string {
	return "sequencing error in state " + e.State + ": " + e.Reason
}

func IsNotFound(err error) bool { return errors.Is(err, ErrNotFound) }

func IsStorageUnavailable(err error) bool { return errors.Is(err, ErrStorageUnavailable) }

func IsConcurrentModification(err error) bool { return errors.Is(err, ErrConcurrentModification) }

func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

func IsSequencing(err error) bool {
	var se *SequencingError
	return errors.As(err, &se)
}
