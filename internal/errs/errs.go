// Package errs defines the error kinds shared across the session, bulk
// engine, orchestrators, and store, per the error handling design.
package errs

import (
	"errors"
	"fmt"
)

// Kind identifies one of the error categories a caller can switch on.
type Kind int

const (
	Unknown Kind = iota
	MalformedPacket
	UnsupportedType
	BindFailed
	TransportError
	Timeout
	Busy
	Canceled
	PathEscape
	InvalidFilename
	NotFound
	Unsupported
	SessionLost
	LoadUncertain
)

func (k Kind) String() string {
	switch k {
	case MalformedPacket:
		return "MALFORMED_PACKET"
	case UnsupportedType:
		return "UNSUPPORTED_TYPE"
	case BindFailed:
		return "BIND_FAILED"
	case TransportError:
		return "TRANSPORT_ERROR"
	case Timeout:
		return "TIMEOUT"
	case Busy:
		return "BUSY"
	case Canceled:
		return "CANCELED"
	case PathEscape:
		return "PATH_ESCAPE"
	case InvalidFilename:
		return "INVALID_FILENAME"
	case NotFound:
		return "NOT_FOUND"
	case Unsupported:
		return "UNSUPPORTED"
	case SessionLost:
		return "SESSION_LOST"
	case LoadUncertain:
		return "LOAD_UNCERTAIN"
	}
	return "UNKNOWN"
}

// Error wraps an underlying cause with a Kind so callers can type-switch
// on the category without string matching.
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

func (e *Error) Unwrap() error { return e.Err }

// New builds an *Error for op/kind, optionally wrapping err.
func New(op string, kind Kind, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// Is reports whether err carries the given Kind.
func Is(err error, kind Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}

// KindOf extracts the Kind from err, or Unknown if err isn't an *Error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return Unknown
}
