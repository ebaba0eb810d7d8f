package statemachine

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidTransition = errors.New("invalid transition: from, to, or event cannot be nil")
	ErrInvalidEvent      = errors.New("invalid event: event cannot be nil")
)

// ErrNoTransitionAvailable indicates no transition exists for the given state/event combination.
type ErrNoTransitionAvailable struct {
	StateName string
	EventName string
}

func (e *ErrNoTransitionAvailable) Error() string {
	return fmt.Sprintf("no transition available from state '%s' for event '%s'", e.StateName, e.EventName)
}

func NewErrNoTransitionAvailable(stateName, eventName string) *ErrNoTransitionAvailable {
	return &ErrNoTransitionAvailable{
		StateName: stateName,
		EventName: eventName,
	}
}

// ErrTransitionRejected indicates all possible transitions were blocked by guard functions.
type ErrTransitionRejected struct {
	StateName string
	EventName string
}

func (e *ErrTransitionRejected) Error() string {
	return fmt.Sprintf("transition from state '%s' for event '%s' was rejected by guards", e.StateName, e.EventName)
}

func NewErrTransitionRejected(stateName, eventName string) *ErrTransitionRejected {
	return &ErrTransitionRejected{
		StateName: stateName,
		EventName: eventName,
	}
}

// ErrActionFailed indicates a matched transition's action returned an error
// or panicked. The machine's state did not advance.
type ErrActionFailed struct {
	StateName string
	EventName string
	Cause     error
}

func (e *ErrActionFailed) Error() string {
	return fmt.Sprintf("action failed in state '%s' for event '%s': %v", e.StateName, e.EventName, e.Cause)
}

func (e *ErrActionFailed) Unwrap() error {
	return e.Cause
}

func NewErrActionFailed(stateName, eventName string, cause error) *ErrActionFailed {
	return &ErrActionFailed{
		StateName: stateName,
		EventName: eventName,
		Cause:     cause,
	}
}

// IsNoTransitionAvailableError reports whether err indicates an undefined transition.
func IsNoTransitionAvailableError(err error) bool {
	var e *ErrNoTransitionAvailable
	return errors.As(err, &e)
}

// IsTransitionRejectedError reports whether err indicates a guard rejection.
func IsTransitionRejectedError(err error) bool {
	var e *ErrTransitionRejected
	return errors.As(err, &e)
}

// IsActionFailedError reports whether err indicates an action failure.
func IsActionFailedError(err error) bool {
	var e *ErrActionFailed
	return errors.As(err, &e)
}

// IsInvalidInputError reports whether err is one of the routine "nothing
// happened" outcomes: no transition defined, or guards rejected it. These
// never touch state, history, or the last-error slot.
func IsInvalidInputError(err error) bool {
	return IsNoTransitionAvailableError(err) || IsTransitionRejectedError(err)
}
