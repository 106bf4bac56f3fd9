package types

import "errors"

var (
	ErrRideNotFound = errors.New("ride not found")
	ErrNotFound     = errors.New("requested item not found")

	// ErrStaleState means the ride moved on before the caller's transition
	// reached the store.
	ErrStaleState = errors.New("ride state changed, transition no longer legal")

	// ErrAlreadyMatched is the accept-specific flavour of ErrStaleState:
	// another driver won the race.
	ErrAlreadyMatched = errors.New("ride already taken by another driver")

	ErrNotAuthorizedForRide  = errors.New("participant is not bound to this ride")
	ErrRideCannotBeCancelled = errors.New("ride cannot be cancelled")
)
