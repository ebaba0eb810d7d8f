package statemachine

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// SimpleStateMachine provides a thread-safe in-memory state machine with a
// bounded transition history and a last-error slot.
// Uses a nested map structure for O(1) transition lookups: [fromState][event][]Transition
type SimpleStateMachine struct {
	initialState State
	currentState State
	data         any
	lastError    error
	transitions  map[string]map[string][]Transition
	history      *historyRing

	onStateChanged      StateChangedHook
	onInvalidTransition InvalidTransitionHook
	onTransitionFailed  TransitionFailedHook

	mu sync.RWMutex
}

func newSimpleStateMachine(initialState State) *SimpleStateMachine {
	return &SimpleStateMachine{
		initialState: initialState,
		currentState: initialState,
		transitions:  make(map[string]map[string][]Transition),
		history:      newHistoryRing(DefaultHistoryCapacity),
	}
}

func (sm *SimpleStateMachine) Current() State {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return sm.currentState
}

func (sm *SimpleStateMachine) Data() any {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return sm.data
}

func (sm *SimpleStateMachine) UpdateData(data any) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	sm.data = data
}

func (sm *SimpleStateMachine) LastError() error {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return sm.lastError
}

func (sm *SimpleStateMachine) AddTransition(from, to State, event Event, guards []Guard, actions []Action) error {
	if from == nil || to == nil || event == nil {
		return ErrInvalidTransition
	}

	sm.mu.Lock()
	defer sm.mu.Unlock()

	fromStateName := from.Name()
	eventName := event.Name()

	if _, ok := sm.transitions[fromStateName]; !ok {
		sm.transitions[fromStateName] = make(map[string][]Transition)
	}

	transition := Transition{
		From:    from,
		To:      to,
		Event:   event,
		Guards:  guards,
		Actions: actions,
	}

	// Multiple transitions allowed for same from/event to support guard-based branching
	sm.transitions[fromStateName][eventName] = append(sm.transitions[fromStateName][eventName], transition)
	return nil
}

// Fire processes a single event against the transition table.
//
// Missing transitions and guard rejections are routine input, not failures:
// they route to the invalid-transition hook and leave state, payload, history
// and last error untouched. Action failures (including panics) are recorded
// in history, stored in the last-error slot, routed to the failed hook, and
// block the state from advancing. The returned error mirrors that reporting.
func (sm *SimpleStateMachine) Fire(ctx context.Context, event Event, data any) (err error) {
	if event == nil {
		return ErrInvalidEvent
	}

	sm.mu.Lock()
	defer sm.mu.Unlock()

	from := sm.currentState
	currentStateName := from.Name()
	eventName := event.Name()

	// The target of the transition being attempted, once one is selected.
	// Failure records name it so failed rows read the same whether the
	// action returned an error or panicked.
	attemptedTo := currentStateName

	// Actions are caller-supplied; a panic must not escape Fire. It is
	// reported through the same path as an action error, using the
	// pre-transition state.
	defer func() {
		if r := recover(); r != nil {
			failure := NewErrActionFailed(currentStateName, eventName, fmt.Errorf("panic: %v", r))
			sm.lastError = failure
			sm.history.append(TransitionRecord{
				From:      currentStateName,
				To:        attemptedTo,
				Event:     eventName,
				Timestamp: time.Now().UTC(),
				Success:   false,
				Err:       failure,
			})
			if sm.onTransitionFailed != nil {
				sm.onTransitionFailed(ctx, from, event, failure)
			}
			err = failure
		}
	}()

	transitions, ok := sm.transitions[currentStateName][eventName]
	if !ok || len(transitions) == 0 {
		if sm.onInvalidTransition != nil {
			sm.onInvalidTransition(ctx, from, event)
		}
		return NewErrNoTransitionAvailable(currentStateName, eventName)
	}

	// First transition with passing guards wins (enables priority ordering).
	// Guards see the payload as it was before any replacement.
	var validTransition *Transition
	for i, t := range transitions {
		allGuardsPassed := true
		for _, guard := range t.Guards {
			if guard != nil && !guard(ctx, from, event, sm.data) {
				allGuardsPassed = false
				break
			}
		}
		if allGuardsPassed {
			validTransition = &transitions[i]
			break
		}
	}

	if validTransition == nil {
		if sm.onInvalidTransition != nil {
			sm.onInvalidTransition(ctx, from, event)
		}
		return NewErrTransitionRejected(currentStateName, eventName)
	}

	attemptedTo = validTransition.To.Name()

	if data != nil {
		sm.data = data
	}

	// Execute actions before state change; any failure leaves the state where it was.
	for _, action := range validTransition.Actions {
		if action == nil {
			continue
		}
		if actionErr := action(ctx, from, validTransition.To, event, sm.data); actionErr != nil {
			failure := NewErrActionFailed(currentStateName, eventName, actionErr)
			sm.lastError = failure
			sm.history.append(TransitionRecord{
				From:      currentStateName,
				To:        validTransition.To.Name(),
				Event:     eventName,
				Timestamp: time.Now().UTC(),
				Success:   false,
				Err:       failure,
			})
			if sm.onTransitionFailed != nil {
				sm.onTransitionFailed(ctx, from, event, failure)
			}
			return failure
		}
	}

	sm.currentState = validTransition.To
	sm.lastError = nil
	sm.history.append(TransitionRecord{
		From:      currentStateName,
		To:        validTransition.To.Name(),
		Event:     eventName,
		Timestamp: time.Now().UTC(),
		Success:   true,
	})
	if sm.onStateChanged != nil {
		sm.onStateChanged(ctx, from, validTransition.To, event)
	}
	return nil
}

func (sm *SimpleStateMachine) CanFire(ctx context.Context, event Event, data any) bool {
	if event == nil {
		return false
	}

	sm.mu.RLock()
	defer sm.mu.RUnlock()

	currentStateName := sm.currentState.Name()
	eventName := event.Name()

	transitions, ok := sm.transitions[currentStateName][eventName]
	if !ok || len(transitions) == 0 {
		return false
	}

	if data == nil {
		data = sm.data
	}

	// Return true if any transition's guards would allow it
	for _, t := range transitions {
		allGuardsPassed := true
		for _, guard := range t.Guards {
			if guard != nil && !guard(ctx, sm.currentState, event, data) {
				allGuardsPassed = false
				break
			}
		}
		if allGuardsPassed {
			return true
		}
	}

	return false
}

func (sm *SimpleStateMachine) ValidEvents() []string {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	byEvent := sm.transitions[sm.currentState.Name()]
	events := make([]string, 0, len(byEvent))
	for name, ts := range byEvent {
		if len(ts) > 0 {
			events = append(events, name)
		}
	}
	return events
}

func (sm *SimpleStateMachine) History() []TransitionRecord {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return sm.history.snapshot()
}

func (sm *SimpleStateMachine) Stats() Stats {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return sm.history.stats()
}

func (sm *SimpleStateMachine) Reset() error {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	sm.currentState = sm.initialState
	sm.data = nil
	sm.lastError = nil
	return nil
}
