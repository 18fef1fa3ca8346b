// File: internal/failure/errors.go
package failure

import (
	"errors"
	"fmt"
)

// Kind categorizes failures so recovery can be chosen without string matching.
type Kind string

const (
	KindAuthentication  Kind = "AUTHENTICATION_FAILURE"
	KindDetection       Kind = "DETECTION_FAILURE"
	KindClaiming        Kind = "CLAIMING_FAILURE"
	KindConfiguration   Kind = "CONFIGURATION_FAILURE"
	KindStateManagement Kind = "STATE_MANAGEMENT_FAILURE"
	KindNetworkTimeout  Kind = "NETWORK_TIMEOUT"
	KindElementNotFound Kind = "ELEMENT_NOT_FOUND"
	KindUIChange        Kind = "UI_CHANGE"
	KindGeneric         Kind = "GENERIC"
)

// Error is a typed failure raised by the check-in core.
type Error struct {
	Kind Kind
	// Op names the operation that failed, e.g. "detection.analyze".
	Op  string
	Msg string
	Err error
}

func (e *Error) Error() string {
	var s string
	switch {
	case e.Op != "" && e.Msg != "":
		s = e.Op + ": " + e.Msg
	case e.Op != "":
		s = e.Op
	default:
		s = e.Msg
	}
	if e.Err != nil {
		if s == "" {
			return e.Err.Error()
		}
		return s + ": " + e.Err.Error()
	}
	return s
}

func (e *Error) Unwrap() error { return e.Err }

// New creates a typed failure with a formatted message.
func New(kind Kind, op, format string, args ...any) error {
	return &Error{Kind: kind, Op: op, Msg: fmt.Sprintf(format, args...)}
}

// Wrap attaches a kind and operation to err. A nil err yields nil.
func Wrap(kind Kind, op string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Op: op, Err: err}
}

// KindOf returns the kind of the outermost typed failure in err's chain.
func KindOf(err error) (Kind, bool) {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind, true
	}
	return "", false
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind Kind) bool {
	k, ok := KindOf(err)
	return ok && k == kind
}
