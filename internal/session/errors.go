package session

import (
	"errors"
	"fmt"
)

var (
	ErrAlreadyActive       = errors.New("session already active")
	ErrNotActive           = errors.New("session not active in the required role")
	ErrInvalidAddress      = errors.New("invalid address")
	ErrUnsupportedPlatform = errors.New("platform cannot act as a server")
	// ErrStaleEvent is only ever logged. Transport events that lost a race
	// with a user command are not the caller's problem.
	ErrStaleEvent = errors.New("stale transport event")
)

// TransitionError is returned by every rejected transition. The session is
// left exactly as it was before the call.
type TransitionError struct {
	Op   string
	From Phase
	Err  error
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("%s from %s: %v", e.Op, e.From, e.Err)
}

func (e *TransitionError) Unwrap() error { return e.Err }
