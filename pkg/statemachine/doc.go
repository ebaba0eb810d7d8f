// Package statemachine provides a flexible, type-safe implementation of the
// finite-state-machine pattern with a bounded audit history.
//
// The package revolves around two minimal interfaces, State and Event, that
// give callers full freedom to model domain-specific states and events while
// the library handles:
//  1. Transition validation and lookup keyed by state and event name
//  2. Optional Guard evaluation to accept or reject transitions
//  3. Execution of side-effect Actions before the state advances
//  4. A bounded FIFO history of attempted transitions with statistics
//  5. Concurrency-safe access to current state, payload, and history
//
// Actions run before the state is updated: a transition's side effects must
// succeed before the state is considered changed. An action error (or panic)
// is captured, recorded in history, exposed through LastError, and reported
// to the transition-failed hook; the machine stays in its prior state.
//
// Undefined transitions and guard rejections are treated as routine input,
// not failures. They route to the invalid-transition hook and leave state,
// payload, history, and last error untouched. Callers that re-send events
// (UI double-clicks, webhook retries) rely on this contract.
//
// # Usage
//
// Basic example using the options pattern:
//
//	const (
//	    Draft    = statemachine.StringState("draft")
//	    InReview = statemachine.StringState("in_review")
//	    Submit   = statemachine.StringEvent("submit")
//	)
//
//	machine := statemachine.MustNew(Draft,
//	    statemachine.WithTransition(Draft, InReview, Submit),
//	)
//
//	_ = machine.Fire(context.Background(), Submit, nil)
//
// The fluent Builder offers an equivalent surface:
//
//	machine, err := statemachine.NewBuilder(Draft).
//	    From(Draft).When(Submit).To(InReview).Add().
//	    Build()
//
// # Error Handling
//
// Fire also returns the error it reported, for callers that prefer inline
// handling over hooks:
//
//	if statemachine.IsNoTransitionAvailableError(err) { /* undefined */ }
//	if statemachine.IsTransitionRejectedError(err)   { /* guard said no */ }
//	if statemachine.IsActionFailedError(err)         { /* side effect failed */ }
//
// # Concurrency
//
// SimpleStateMachine serializes Fire calls with a mutex, making the
// state-then-history mutation atomic with respect to concurrent callers.
// Hooks run under that lock and must not call back into the machine.
package statemachine
