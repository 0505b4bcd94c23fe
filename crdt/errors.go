package crdt

import (
	"fmt"

	"github.com/pkg/errors"
)

// Kind classifies why an operation failed, mirroring the distinctions the
// original implementation drew between a wrong type, an invalid value, an
// unresolvable registered class, and a caller misusing the API.
type Kind int

const (
	// KindTypeInvalid means a value was of the wrong Go type for the
	// operation (e.g. a non-Packable passed where one was required).
	KindTypeInvalid Kind = iota
	// KindValueInvalid means a value was of the right type but failed a
	// domain constraint (e.g. a negative increment amount).
	KindValueInvalid
	// KindUnknownClass means a registry lookup for a class name failed.
	KindUnknownClass
	// KindUsage means the CRDT was used in a way its invariants forbid
	// (e.g. a StateUpdate whose clock_uuid does not match).
	KindUsage
)

func (k Kind) String() string {
	switch k {
	case KindTypeInvalid:
		return "type_invalid"
	case KindValueInvalid:
		return "value_invalid"
	case KindUnknownClass:
		return "unknown_class"
	case KindUsage:
		return "usage"
	default:
		return "unknown"
	}
}

// Error reports a failed CRDT operation along with the Kind of failure and
// which operation it came from.
type Error struct {
	Kind Kind
	Op   string
	Msg  string
	err  error
}

func (e *Error) Error() string {
	if e.err != nil {
		return fmt.Sprintf("crdt: %s: %s: %s", e.Op, e.Msg, e.err)
	}
	return fmt.Sprintf("crdt: %s: %s", e.Op, e.Msg)
}

func (e *Error) Unwrap() error { return e.err }

func newErr(kind Kind, op, msg string) error {
	return &Error{Kind: kind, Op: op, Msg: msg}
}

func wrapErr(kind Kind, op, msg string, cause error) error {
	return &Error{Kind: kind, Op: op, Msg: msg, err: errors.WithStack(cause)}
}

// IsKind reports whether err is a *Error of the given Kind.
func IsKind(err error, kind Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}
