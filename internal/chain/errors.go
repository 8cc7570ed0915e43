package chain

import (
	"fmt"
	"strings"
)

// ErrorKind categorizes protocol errors.
type ErrorKind string

const (
	// KindValidation means required registration data is missing.
	KindValidation ErrorKind = "VALIDATION"

	// KindUnauthorized means a uuid was presented with the wrong salt.
	KindUnauthorized ErrorKind = "UNAUTHORIZED"

	// KindBadRequest means a relay arrived that nothing was waiting for.
	KindBadRequest ErrorKind = "BAD_REQUEST"

	// KindConflict means a play request is already in flight.
	KindConflict ErrorKind = "CONFLICT"

	// KindTimeout means the chain did not complete in time.
	KindTimeout ErrorKind = "TIMEOUT"

	// KindForward means the next hop could not be reached.
	KindForward ErrorKind = "FORWARD_FAILED"
)

// Error is a protocol error returned by the registry and the node.
type Error struct {
	Kind    ErrorKind
	Message string

	// Fields lists the offending inputs for validation errors.
	Fields []string

	// Err is the underlying cause, if any.
	Err error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Kind, e.Message)
	if len(e.Fields) > 0 {
		msg += " (" + strings.Join(e.Fields, ", ") + ")"
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches any *Error of the same kind, so the sentinels below work with
// errors.Is.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// Sentinels for errors.Is.
var (
	ErrValidation   = &Error{Kind: KindValidation, Message: "missing required fields"}
	ErrUnauthorized = &Error{Kind: KindUnauthorized, Message: "unauthorized access"}
	ErrBadRequest   = &Error{Kind: KindBadRequest, Message: "no waiting message"}
	ErrConflict     = &Error{Kind: KindConflict, Message: "a play request is already in flight"}
	ErrTimeout      = &Error{Kind: KindTimeout, Message: "chain did not complete in time"}
	ErrForward      = &Error{Kind: KindForward, Message: "forward to next hop failed"}
)

func newError(kind ErrorKind, msg string, cause error) *Error {
	return &Error{Kind: kind, Message: msg, Err: cause}
}
