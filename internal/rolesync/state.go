package rolesync

import (
	"errors"
	"fmt"

	"github.com/chinmina/ocpi-console/internal/rolestore"
)

// MaxAttempts bounds consecutive failed syncs before implicit retries stop.
const MaxAttempts = 3

// State is the position of the engine in the sync lifecycle.
type State int

const (
	Idle State = iota
	SyncRequested
	Syncing
	Succeeded
	Failed
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case SyncRequested:
		return "sync-requested"
	case Syncing:
		return "syncing"
	case Succeeded:
		return "succeeded"
	case Failed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Outcome describes how a sync request ended.
type Outcome int

const (
	// OutcomeSucceeded: the backend confirmed the role and local state was
	// updated.
	OutcomeSucceeded Outcome = iota
	// OutcomeDropped: another sync was in flight; nothing was done.
	OutcomeDropped
	// OutcomeFailed: the backend call failed; local state is unchanged.
	OutcomeFailed
	// OutcomeRejected: the role was invalid, locally or according to the
	// backend; local state is unchanged.
	OutcomeRejected
	// OutcomeAuthFailed: the backend refused the user; the local role was
	// reset to the default.
	OutcomeAuthFailed
	// OutcomeExhausted: MaxAttempts consecutive failures; only an explicit
	// request will try again.
	OutcomeExhausted
)

func (o Outcome) String() string {
	switch o {
	case OutcomeSucceeded:
		return "succeeded"
	case OutcomeDropped:
		return "dropped"
	case OutcomeFailed:
		return "failed"
	case OutcomeRejected:
		return "rejected"
	case OutcomeAuthFailed:
		return "auth-failed"
	case OutcomeExhausted:
		return "exhausted"
	default:
		return fmt.Sprintf("outcome(%d)", int(o))
	}
}

// Errors reported in Result.Err. Backend and transport errors are always
// mapped onto one of these.
var (
	ErrInvalidRole   = errors.New("role is not valid")
	ErrNotAuthorized = errors.New("not authorized to change role")
	ErrUnavailable   = errors.New("role service unavailable")
	ErrExhausted     = errors.New("role sync retries exhausted")
)

// Result is the resolution of a sync request. It never carries a raw
// transport error.
type Result struct {
	Outcome  Outcome
	Attempts int
	Session  rolestore.Session
	Err      error
}

// Status is a snapshot of the engine published to subscribers.
type Status struct {
	State    State
	Attempts int
}

// Exhausted reports whether implicit retries are no longer permitted.
func (s Status) Exhausted() bool {
	return s.Attempts >= MaxAttempts
}

func (s Status) String() string {
	if s.State == Failed {
		return fmt.Sprintf("%s(%d)", s.State, s.Attempts)
	}
	return s.State.String()
}
