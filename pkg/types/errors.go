package types

import (
	"errors"
	"fmt"
)

// FailureKind classifies an operation failure for reporting and for the
// CLI's exit-code mapping.
type FailureKind string

const (
	FailBuild    FailureKind = "build"
	FailStart    FailureKind = "start"
	FailStop     FailureKind = "stop"
	FailPull     FailureKind = "pull"
	FailHealth   FailureKind = "health"
	FailSwitch   FailureKind = "switch"
	FailVerify   FailureKind = "verify"
	FailRollback FailureKind = "rollback"
)

var (
	// ErrStateCorrupt marks persisted deployment state that could not be
	// decoded. Recovery is a logged fallback to the default color, never a
	// silent guess.
	ErrStateCorrupt = errors.New("deployment state corrupt")

	// ErrLockBusy means another cutover process holds the state lock; only
	// one deploy/switch/rollback may be in flight at a time.
	ErrLockBusy = errors.New("another cutover operation is in progress")
)

// OpError is a classified failure from one of the orchestrator's external
// collaborators (stack controller, health prober, traffic switch).
type OpError struct {
	Kind  FailureKind
	Color Color
	Err   error
}

func (e *OpError) Error() string {
	if e.Color.Valid() {
		return fmt.Sprintf("%s failed for %s: %v", e.Kind, e.Color, e.Err)
	}
	return fmt.Sprintf("%s failed: %v", e.Kind, e.Err)
}

func (e *OpError) Unwrap() error {
	return e.Err
}

// NewOpError wraps err as a failure of the given kind against color.
func NewOpError(kind FailureKind, color Color, err error) *OpError {
	return &OpError{Kind: kind, Color: color, Err: err}
}

// FailureKindOf extracts the failure classification from an error chain.
// The second return is false for unclassified errors.
func FailureKindOf(err error) (FailureKind, bool) {
	var op *OpError
	if errors.As(err, &op) {
		return op.Kind, true
	}
	return "", false
}

// IsFailure reports whether err is an OpError of the given kind.
func IsFailure(err error, kind FailureKind) bool {
	k, ok := FailureKindOf(err)
	return ok && k == kind
}
