package session

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrValidation marks input rejected before any state change.
	ErrValidation = errors.New("validation failed")
	// ErrInvalidTransition marks an action not allowed in the current state.
	ErrInvalidTransition = errors.New("invalid session transition")
	// ErrSessionClosed marks an attempt to mutate a finished session.
	ErrSessionClosed = errors.New("session is closed")
	// ErrEmptyQueue is returned when a review has nothing to study.
	ErrEmptyQueue = errors.New("nothing to study")
	// ErrRecoveryConflict is returned when another subject's session is
	// still recoverable.
	ErrRecoveryConflict = errors.New("another session is in progress")
)

// ValidationError reports invalid input, such as an out-of-range option.
// It is never retried.
type ValidationError struct {
	Field   string
	Message string
	Err     error
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("validation failed: %s", e.Message)
	}
	return fmt.Sprintf("validation failed: %s: %s", e.Field, e.Message)
}

func (e *ValidationError) Unwrap() []error {
	if e.Err != nil {
		return []error{ErrValidation, e.Err}
	}
	return []error{ErrValidation}
}

// StateError reports an action attempted in a state that does not allow
// it. On a terminal session it also matches ErrSessionClosed.
type StateError struct {
	Action string
	State  Status
}

func (e *StateError) Error() string {
	return fmt.Sprintf("cannot %s: session is %s", e.Action, e.State)
}

func (e *StateError) Unwrap() []error {
	if e.State.Terminal() {
		return []error{ErrInvalidTransition, ErrSessionClosed}
	}
	return []error{ErrInvalidTransition}
}

// NetworkError is a transient failure talking to the server. Operations
// failing with it are retried in the background.
type NetworkError struct {
	Op         string
	StatusCode int
	Err        error
}

func (e *NetworkError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("%s: server returned %d: %v", e.Op, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// IsNetwork reports whether err is a transient server failure.
func IsNetwork(err error) bool {
	var ne *NetworkError
	return errors.As(err, &ne)
}

// RecoveryInfo describes a recoverable snapshot.
type RecoveryInfo struct {
	SessionID string
	SubjectID string
	Variant   Variant
	Status    Status
	Answered  int
	Total     int
	SavedAt   time.Time
	Stale     bool
}

// RecoveryConflictError is returned by Start when a snapshot for another
// subject exists and the caller did not ask to discard it.
type RecoveryConflictError struct {
	Existing RecoveryInfo
}

func (e *RecoveryConflictError) Error() string {
	return fmt.Sprintf("%s session %s for %s is still in progress (%d/%d answered)",
		e.Existing.Variant, e.Existing.SessionID, e.Existing.SubjectID,
		e.Existing.Answered, e.Existing.Total)
}

func (e *RecoveryConflictError) Unwrap() error { return ErrRecoveryConflict }
