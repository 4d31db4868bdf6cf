// Package policy is the admission gate evaluated on every document and
// blob operation. Each Evaluate function is a pure predicate over the
// request principal and a snapshot of the affected documents; there is no
// state, no clock access, and no I/O, which keeps the whole engine
// testable without a backend.
package policy

import "errors"

type Operation int

const (
	OpCreate Operation = iota
	OpRead
	OpUpdate
	OpDelete
)

func (op Operation) String() string {
	switch op {
	case OpCreate:
		return "create"
	case OpRead:
		return "read"
	case OpUpdate:
		return "update"
	case OpDelete:
		return "delete"
	default:
		return "unknown"
	}
}

var (
	// ErrUnauthorized is deliberately opaque: it never says whether the
	// resource exists, who owns it, or which check failed.
	ErrUnauthorized = errors.New("access denied")

	// ErrTokenInvalid covers expired and nonexistent tokens alike so a
	// probing caller cannot distinguish the two.
	ErrTokenInvalid = errors.New("invalid or expired share token")

	// ErrConsistencyFault marks writes that would corrupt invariants:
	// mutating an immutable ownership field, seeding a ledger with
	// nonzero usage, or setting a counter to an arbitrary value. Always
	// rejected, logged by the caller, never auto-corrected.
	ErrConsistencyFault = errors.New("write violates document invariants")
)

// Decision is the outcome of one policy evaluation. Reason is nil iff
// Allowed.
type Decision struct {
	Allowed bool
	Reason  error
}

func Allow() Decision { return Decision{Allowed: true} }

func Deny(reason error) Decision { return Decision{Reason: reason} }
