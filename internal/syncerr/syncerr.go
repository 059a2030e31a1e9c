// Package syncerr defines the failure taxonomy shared by the sync engine.
//
// Every failure a cycle can surface falls into one of three buckets:
//
//   - transient: safe to retry the whole cycle (network timeout, 5xx,
//     lock contention); no state was committed
//   - auth: fatal to the cycle, never retried by the engine
//   - invariant violation: persisted data or a state machine is in a
//     shape the engine refuses to auto-correct
package syncerr

import (
	"errors"
	"fmt"
)

// TransientError marks a failure that the caller may retry wholesale.
type TransientError struct {
	Op  string
	Err error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("transient failure during %s: %v", e.Op, e.Err)
}

func (e *TransientError) Unwrap() error { return e.Err }

// Transient wraps err as a retryable failure.
func Transient(op string, err error) error {
	return &TransientError{Op: op, Err: err}
}

// AuthError marks an authentication or authorization failure.
// Credential refresh is the host's responsibility; the engine never retries these.
type AuthError struct {
	Op  string
	Err error
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("authentication failed during %s: %v", e.Op, e.Err)
}

func (e *AuthError) Unwrap() error { return e.Err }

// InvariantViolationError reports persisted data that breaks an engine
// invariant: duplicate natural key, schema version newer than known, or an
// illegal sync-state transition. Kind and Key identify the offending entity.
type InvariantViolationError struct {
	Kind   string // entity kind, e.g. "bank_transaction"
	Key    string // natural key of the offending entity
	Reason string
}

func (e *InvariantViolationError) Error() string {
	return fmt.Sprintf("invariant violation on %s %q: %s", e.Kind, e.Key, e.Reason)
}

// InvariantViolation builds an InvariantViolationError.
func InvariantViolation(kind, key, reason string) error {
	return &InvariantViolationError{Kind: kind, Key: key, Reason: reason}
}

// InvalidTransitionError reports an attempt to move a tracked state machine
// along an edge it does not have. The failed attempt leaves state unchanged.
type InvalidTransitionError struct {
	Kind string // state machine kind, e.g. "detail_state"
	ID   string
	From string
	To   string
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid %s transition for %q: %s -> %s", e.Kind, e.ID, e.From, e.To)
}

// IsInvalidTransition reports whether err is a state machine transition error.
func IsInvalidTransition(err error) bool {
	var ite *InvalidTransitionError
	return errors.As(err, &ite)
}

// IsTransient reports whether err is retryable.
func IsTransient(err error) bool {
	var te *TransientError
	return errors.As(err, &te)
}

// IsAuth reports whether err is an authentication failure.
func IsAuth(err error) bool {
	var ae *AuthError
	return errors.As(err, &ae)
}

// IsInvariantViolation reports whether err is a data invariant violation.
func IsInvariantViolation(err error) bool {
	var ive *InvariantViolationError
	return errors.As(err, &ive)
}
