package statemachine

import (
	"context"
)

// State represents a state in the state machine. Identity is the name;
// two states with the same name are the same state.
type State interface {
	Name() string
}

// Event represents an event that can trigger a state transition. Events that
// carry payloads should embed the payload in the concrete type and keep a
// stable Name for dispatch.
type Event interface {
	Name() string
}

// Action executes side effects during state transitions. Actions run before
// the state is advanced; returning an error prevents the transition.
type Action func(ctx context.Context, from, to State, event Event, data any) error

// Guard evaluates whether a transition should be allowed based on runtime conditions.
type Guard func(ctx context.Context, from State, event Event, data any) bool

// Transition defines a state change triggered by an event, with optional guards and actions.
type Transition struct {
	From    State
	To      State
	Event   Event
	Guards  []Guard  // All must pass for transition to proceed
	Actions []Action // Executed in order before state change
}

// StateChangedHook is invoked after a transition completes successfully.
type StateChangedHook func(ctx context.Context, from, to State, event Event)

// InvalidTransitionHook is invoked when no transition matches the current
// state and event, or when all matching transitions were rejected by guards.
// Invalid input is routine, not an error: state, payload, history and the
// last-error slot are all left untouched.
type InvalidTransitionHook func(ctx context.Context, current State, event Event)

// TransitionFailedHook is invoked when a matched transition's action fails.
// The state has not advanced; the failure is also recorded in history and in
// the last-error slot.
type TransitionFailedHook func(ctx context.Context, from State, event Event, err error)

// StateMachine defines the core finite state machine operations.
//
// Fire calls against a single machine are serialized internally; hooks run
// while the machine's lock is held and must not call back into the machine.
type StateMachine interface {
	// Current returns a synchronous snapshot of the current state.
	Current() State
	// Data returns the machine's payload slot.
	Data() any
	// UpdateData replaces the payload without any transition or history side effect.
	UpdateData(data any)
	// LastError returns the failure recorded by the most recent Fire, or nil
	// if the most recent Fire succeeded. Invalid input does not touch it.
	LastError() error

	AddTransition(from, to State, event Event, guards []Guard, actions []Action) error

	// Fire processes a single event. A non-nil data argument replaces the
	// payload slot before actions run. The returned error mirrors what the
	// hooks and LastError already report; callers that rely on hooks may
	// ignore it.
	Fire(ctx context.Context, event Event, data any) error
	// CanFire reports whether the current state has a transition for the
	// event whose guards would pass.
	CanFire(ctx context.Context, event Event, data any) bool
	// ValidEvents returns the names of events with at least one transition
	// registered from the current state, ignoring guards.
	ValidEvents() []string

	// History returns a copy of the bounded transition history, oldest first.
	History() []TransitionRecord
	// Stats aggregates the history into counts and distributions.
	Stats() Stats

	// Reset forces the machine back to its initial state and clears the
	// payload and last error. Nothing is recorded in history.
	Reset() error
}

// StringState provides a simple string-based state implementation for basic use cases.
type StringState string

func (s StringState) Name() string {
	return string(s)
}

// StringEvent provides a simple string-based event implementation for basic use cases.
type StringEvent string

func (e StringEvent) Name() string {
	return string(e)
}
