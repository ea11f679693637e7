// Package s4err defines the database's sentinel error type (spec.md §7).
// It lives in its own package, rather than the root facade, so that every
// internal package (txn, walog, importer, ...) can return it without an
// import cycle back through the root s4 package, which simply aliases
// these types for library consumers.
package s4err

import "fmt"

// Kind classifies the failure (spec.md §7).
type Kind int

const (
	ErrExists Kind = iota
	ErrNoEnt
	ErrOpen
	ErrMagic
	ErrVersion
	ErrInconsistent
	ErrLogOpen
	ErrLogRedo
	ErrLogFull
	ErrReadOnly
	ErrExecute
	ErrDeadlock
)

func (k Kind) String() string {
	switch k {
	case ErrExists:
		return "exists"
	case ErrNoEnt:
		return "no entry"
	case ErrOpen:
		return "open"
	case ErrMagic:
		return "bad magic"
	case ErrVersion:
		return "bad version"
	case ErrInconsistent:
		return "inconsistent"
	case ErrLogOpen:
		return "log open"
	case ErrLogRedo:
		return "log redo"
	case ErrLogFull:
		return "log full"
	case ErrReadOnly:
		return "read only"
	case ErrExecute:
		return "execute"
	case ErrDeadlock:
		return "deadlock"
	default:
		return "unknown"
	}
}

// Error is the database's concrete error carrier: a classification plus
// an optional wrapped cause.
type Error struct {
	Kind Kind
	Err  error
}

// New creates an Error of the given kind with no wrapped cause.
func New(kind Kind) *Error {
	return &Error{Kind: kind}
}

// Wrap creates an Error of the given kind wrapping cause.
func Wrap(kind Kind, cause error) *Error {
	return &Error{Kind: kind, Err: cause}
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("s4: %s: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("s4: %s", e.Kind)
}

func (e *Error) Unwrap() error { return e.Err }

// Is reports whether target is an *Error with the same Kind, so callers
// can do errors.Is(err, s4err.New(s4err.ErrDeadlock)).
func (e *Error) Is(target error) bool {
	other, ok := target.(*Error)
	if !ok {
		return false
	}
	return other.Kind == e.Kind
}
