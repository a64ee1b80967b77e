package workflow

import "errors"

var (
	// ErrInvalidTransition is returned when no transition exists for a trigger in the current state
	ErrInvalidTransition = errors.New("invalid state transition")

	// ErrGuardFailed is returned when every guard for a trigger rejects it
	ErrGuardFailed = errors.New("guard condition failed")
)
