// Package chaterr defines the closed set of error kinds the widget core reports.
//
// ConfigurationError and HandshakeError abort the operation that produced them.
// ValidationError and SecurityEvent are recoverable and are normally surfaced as
// notifications rather than returned errors.
package chaterr

import (
	"fmt"

	"github.com/pkg/errors"
)

// Kind classifies a widget error.
type Kind int

const (
	KindUnknown Kind = iota
	KindConfiguration
	KindValidation
	KindHandshake
	KindSecurity
)

func (k Kind) String() string {
	switch k {
	case KindConfiguration:
		return "ConfigurationError"
	case KindValidation:
		return "ValidationError"
	case KindHandshake:
		return "HandshakeError"
	case KindSecurity:
		return "SecurityEvent"
	default:
		return "UnknownError"
	}
}

// Fatal reports whether errors of this kind abort the current operation.
func (k Kind) Fatal() bool {
	return k == KindConfiguration || k == KindHandshake
}

// Error carries a kind, the operation that failed and an optional cause.
type Error struct {
	Kind Kind
	Op   string
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	msg := e.Msg
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	} else if e.Err != nil {
		msg = msg + ": " + e.Err.Error()
	}
	if e.Op == "" {
		return fmt.Sprintf("%s: %s", e.Kind, msg)
	}
	return fmt.Sprintf("%s: %s: %s", e.Kind, e.Op, msg)
}

func (e *Error) Unwrap() error { return e.Err }

// Configuration builds a ConfigurationError.
func Configuration(op, format string, args ...any) error {
	return &Error{Kind: KindConfiguration, Op: op, Msg: fmt.Sprintf(format, args...)}
}

// Validation builds a ValidationError for the named field.
func Validation(field, format string, args ...any) error {
	return &Error{Kind: KindValidation, Op: field, Msg: fmt.Sprintf(format, args...)}
}

// Handshake wraps err as a HandshakeError.
func Handshake(op string, err error) error {
	if err == nil {
		err = errors.New("no session handle")
	}
	return &Error{Kind: KindHandshake, Op: op, Err: err}
}

// Security builds a SecurityEvent for the named field.
func Security(field, format string, args ...any) error {
	return &Error{Kind: KindSecurity, Op: field, Msg: fmt.Sprintf(format, args...)}
}

// KindOf returns the kind of the first *Error in err's chain.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// Is reports whether err carries the given kind.
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}
