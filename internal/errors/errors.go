// Package errors defines the error taxonomy shared by the rule store,
// lifecycle manager, scheduler, and management API. Errors carry a Kind
// that callers branch on and the API maps to HTTP statuses.
package errors

import (
	stderrors "errors"
	"fmt"
)

// Kind classifies an error for callers and for HTTP mapping.
type Kind int

const (
	// KindUnknown is an unclassified internal error.
	KindUnknown Kind = iota
	// KindValidation marks bad input. Never retried; the caller must fix
	// the request and resubmit.
	KindValidation
	// KindNotFound marks a missing record id.
	KindNotFound
	// KindConflict marks an illegal delete or duplicate.
	KindConflict
	// KindInvalidState marks an illegal lifecycle transition.
	KindInvalidState
	// KindForbidden marks a cross-team access attempt.
	KindForbidden
	// KindSourceUnavailable marks a metric fetch failure. Recovered locally
	// by skipping the evaluation tick.
	KindSourceUnavailable
	// KindTransport marks a delivery failure. Recovered locally via bounded
	// retry with backoff.
	KindTransport
	// KindRateLimited marks a delivery suppressed by a channel's budget.
	KindRateLimited
)

// String returns a stable machine-readable name for the kind.
func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation_error"
	case KindNotFound:
		return "not_found"
	case KindConflict:
		return "conflict"
	case KindInvalidState:
		return "invalid_state"
	case KindForbidden:
		return "forbidden"
	case KindSourceUnavailable:
		return "source_unavailable"
	case KindTransport:
		return "transport_error"
	case KindRateLimited:
		return "rate_limited"
	default:
		return "internal_error"
	}
}

// Error is a kind-classified error, optionally wrapping a cause.
type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Msg, e.Err)
	}
	return e.Msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// E creates a new error of the given kind.
func E(kind Kind, msg string) error {
	return &Error{Kind: kind, Msg: msg}
}

// Ef creates a new error of the given kind with a formatted message.
func Ef(kind Kind, format string, args ...any) error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

// Wrap classifies an existing error under a kind with added context.
// Returns nil if err is nil.
func Wrap(kind Kind, msg string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Msg: msg, Err: err}
}

// KindOf returns the kind of err, or KindUnknown for unclassified errors.
func KindOf(err error) Kind {
	var e *Error
	if stderrors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// IsKind reports whether err carries the given kind anywhere in its chain.
func IsKind(err error, kind Kind) bool {
	return KindOf(err) == kind
}

// New creates an unclassified error. Mirrors the standard library.
func New(text string) error {
	return stderrors.New(text)
}

// Is reports whether any error in err's chain matches target.
func Is(err, target error) bool {
	return stderrors.Is(err, target)
}

// As finds the first error in err's chain matching target.
func As(err error, target any) bool {
	return stderrors.As(err, target)
}
