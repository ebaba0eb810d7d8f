package statemachine

// Builder provides a fluent API for building state machines.
type Builder struct {
	machine      *SimpleStateMachine
	currentFrom  State
	currentEvent Event
	currentTo    State
	guards       []Guard
	actions      []Action
	err          error
}

// NewBuilder creates a new state machine builder starting at initialState.
func NewBuilder(initialState State) *Builder {
	return &Builder{
		machine: newSimpleStateMachine(initialState),
	}
}

// From sets the starting state for a transition.
func (b *Builder) From(state State) *Builder {
	b.reset()
	b.currentFrom = state
	return b
}

// When sets the event that triggers a transition.
func (b *Builder) When(event Event) *Builder {
	b.currentEvent = event
	return b
}

// To sets the target state for a transition.
func (b *Builder) To(state State) *Builder {
	b.currentTo = state
	return b
}

// GuardedBy adds a guard function to the current transition.
func (b *Builder) GuardedBy(guard Guard) *Builder {
	b.guards = append(b.guards, guard)
	return b
}

// Do adds an action function to the current transition.
func (b *Builder) Do(action Action) *Builder {
	b.actions = append(b.actions, action)
	return b
}

// Add finalizes the current transition and adds it to the state machine.
// The first error encountered is retained and returned by Build.
func (b *Builder) Add() *Builder {
	if err := b.machine.AddTransition(b.currentFrom, b.currentTo, b.currentEvent, b.guards, b.actions); err != nil && b.err == nil {
		b.err = err
	}
	b.reset()
	return b
}

// OnStateChanged registers the state-changed hook.
func (b *Builder) OnStateChanged(hook StateChangedHook) *Builder {
	b.machine.onStateChanged = hook
	return b
}

// OnInvalidTransition registers the invalid-transition hook.
func (b *Builder) OnInvalidTransition(hook InvalidTransitionHook) *Builder {
	b.machine.onInvalidTransition = hook
	return b
}

// OnTransitionFailed registers the transition-failed hook.
func (b *Builder) OnTransitionFailed(hook TransitionFailedHook) *Builder {
	b.machine.onTransitionFailed = hook
	return b
}

// Build returns the constructed state machine, or the first error that
// occurred while accumulating transitions.
func (b *Builder) Build() (StateMachine, error) {
	if b.err != nil {
		return nil, b.err
	}
	return b.machine, nil
}

// MustBuild returns the constructed state machine and panics on accumulated errors.
func (b *Builder) MustBuild() StateMachine {
	sm, err := b.Build()
	if err != nil {
		panic(err)
	}
	return sm
}

// reset clears the current transition configuration.
func (b *Builder) reset() {
	b.currentFrom = nil
	b.currentEvent = nil
	b.currentTo = nil
	b.guards = nil
	b.actions = nil
}
