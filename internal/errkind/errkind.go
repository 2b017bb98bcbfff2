// Package errkind classifies the failures the sync core can surface so
// callers branch on an enumerated kind instead of matching error strings.
package errkind

import (
	"errors"
	"fmt"
)

// Kind enumerates the failure classes of the sync core.
type Kind int

const (
	// KindUnknown is the zero value; errors that did not originate here.
	KindUnknown Kind = iota
	// KindTransport means a REST round trip could not complete at all.
	KindTransport
	// KindVersionConflict means the server rejected a stale clientVersion.
	KindVersionConflict
	// KindAckTimeout means a channel request got no ack within the deadline.
	KindAckTimeout
	// KindAckRejected means the server explicitly refused a channel request.
	KindAckRejected
	// KindPrecondition means the caller violated a usage precondition, such
	// as opening the realtime channel without a credential. Not retryable.
	KindPrecondition
	// KindNotFound means the server has no entity with the requested id.
	KindNotFound
	// KindRemote is any other server-reported failure.
	KindRemote
)

func (k Kind) String() string {
	switch k {
	case KindTransport:
		return "transport"
	case KindVersionConflict:
		return "version_conflict"
	case KindAckTimeout:
		return "ack_timeout"
	case KindAckRejected:
		return "ack_rejected"
	case KindPrecondition:
		return "precondition"
	case KindNotFound:
		return "not_found"
	case KindRemote:
		return "remote"
	default:
		return "unknown"
	}
}

// Error wraps an underlying failure with its kind and the operation that hit it.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New builds a classified error.
func New(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// Newf builds a classified error from a format string.
func Newf(kind Kind, op, format string, args ...any) *Error {
	return &Error{Kind: kind, Op: op, Err: fmt.Errorf(format, args...)}
}

// KindOf reports the kind of err, or KindUnknown if it was not classified.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// Is reports whether err carries the given kind.
func Is(err error, kind Kind) bool {
	return KindOf(err) == kind
}
