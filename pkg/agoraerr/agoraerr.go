// Package agoraerr defines the typed failure taxonomy shared by the
// deliberation store, the runtime consumer, and federation sync, so callers
// switch on a Kind instead of matching error strings.
package agoraerr

import (
	"fmt"

	"github.com/cockroachdb/errors"
)

type Kind int

const (
	KindUnknown Kind = iota
	KindUnauthenticatedMalformed
	KindUnauthenticatedExpired
	KindUnauthenticatedBadSignature
	KindForbidden
	KindNotFound
	KindInvalidReply
	KindInvalidInput
	KindConflict
	KindTransient
	KindFatal
)

func (k Kind) String() string {
	switch k {
	case KindUnauthenticatedMalformed:
		return "Unauthenticated{Malformed}"
	case KindUnauthenticatedExpired:
		return "Unauthenticated{Expired}"
	case KindUnauthenticatedBadSignature:
		return "Unauthenticated{BadSignature}"
	case KindForbidden:
		return "Forbidden"
	case KindNotFound:
		return "NotFound"
	case KindInvalidReply:
		return "InvalidReply"
	case KindInvalidInput:
		return "InvalidInput"
	case KindConflict:
		return "Conflict"
	case KindTransient:
		return "Transient"
	case KindFatal:
		return "Fatal"
	default:
		return "Unknown"
	}
}

// Error wraps a cause with a Kind so callers can dispatch without string
// matching. The HTTP adapter maps Kind to a status code; background tasks
// (C3, C4) switch on Kind to decide retry/backoff/deferral behavior.
type Error struct {
	kind  Kind
	msg   string
	cause error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.kind, e.msg, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.kind, e.msg)
}

func (e *Error) Unwrap() error { return e.cause }

func (e *Error) Kind() Kind { return e.kind }

func New(kind Kind, msg string) error {
	return &Error{kind: kind, msg: msg}
}

func Newf(kind Kind, format string, args ...interface{}) error {
	return &Error{kind: kind, msg: fmt.Sprintf(format, args...)}
}

func Wrap(kind Kind, cause error, msg string) error {
	if cause == nil {
		return nil
	}
	return &Error{kind: kind, msg: msg, cause: cause}
}

// KindOf extracts the Kind from err, defaulting to KindTransient for
// unclassified errors (a database or network error we did not wrap
// deliberately is treated as retryable, never as a silent success).
func KindOf(err error) Kind {
	if err == nil {
		return KindUnknown
	}
	var e *Error
	if errors.As(err, &e) {
		return e.kind
	}
	return KindTransient
}

func Is(err error, kind Kind) bool {
	return KindOf(err) == kind
}

var (
	ErrNotFound     = New(KindNotFound, "not found")
	ErrForbidden    = New(KindForbidden, "forbidden")
	ErrInvalidReply = New(KindInvalidReply, "reply references a message outside the thread")
)
