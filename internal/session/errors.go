package session

import (
	"errors"
	"fmt"
)

var (
	// ErrExpiredSession is returned for events addressed to sessions that
	// timed out, already finished, or never existed.
	ErrExpiredSession = errors.New("edit session expired")

	// ErrInvalidTransition is returned for events that are not legal in the
	// session's current state, such as a duplicate confirm.
	ErrInvalidTransition = errors.New("event not valid in current session state")

	// ErrItemGone is returned when the session's target item or project can
	// no longer be resolved against the current snapshot.
	ErrItemGone = errors.New("item no longer present in cache")
)

// ValidationError rejects a user-supplied value locally; it never reaches
// the gateway.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string { return "invalid value: " + e.Reason }

// AuthorizationError covers owner mismatches and unlinked identities.
type AuthorizationError struct {
	Reason string
	Err    error
}

func (e *AuthorizationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("not authorized: %s: %v", e.Reason, e.Err)
	}
	return "not authorized: " + e.Reason
}

func (e *AuthorizationError) Unwrap() error { return e.Err }
