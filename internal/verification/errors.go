package verification

import (
	"errors"
	"fmt"
)

var (
	ErrWrongPhase     = errors.New("verification: action not allowed in current phase")
	ErrCooldownActive = errors.New("verification: resend cooldown active")
	ErrBusy           = errors.New("verification: request already in flight")
	ErrClosed         = errors.New("verification: session closed")
	ErrStale          = errors.New("verification: result arrived for a superseded attempt")
)

// ErrorKind separates the three ways a step can fail.
type ErrorKind int

const (
	// KindValidation errors are found locally and never reach the network.
	KindValidation ErrorKind = iota + 1
	// KindRejected errors come back from the backend (bad code, expired token).
	KindRejected
	// KindTransport errors are network failures and timeouts.
	KindTransport
)

func (k ErrorKind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindRejected:
		return "rejected"
	case KindTransport:
		return "transport"
	default:
		return "unknown"
	}
}

// Error is the user-facing failure surfaced by Session and ProfileSetup.
// Message is safe to show verbatim.
type Error struct {
	Kind    ErrorKind
	Field   string
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("%s: %s: %s", e.Kind, e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

func validationError(field, msg string) *Error {
	return &Error{Kind: KindValidation, Field: field, Message: msg}
}

// Rejection is implemented by backend errors that carry a server verdict.
// Anything else returned by a backend is treated as a transport failure.
type Rejection interface {
	error
	Detail() string
}

func classify(err error) *Error {
	var rej Rejection
	if errors.As(err, &rej) {
		return &Error{Kind: KindRejected, Message: rej.Detail(), Err: err}
	}
	return &Error{Kind: KindTransport, Message: "Taking longer than expected. Check your connection and try again.", Err: err}
}

// IsKind reports whether err is an *Error of the given kind.
func IsKind(err error, k ErrorKind) bool {
	var e *Error
	return errors.As(err, &e) && e.Kind == k
}
