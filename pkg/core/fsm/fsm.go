package fsm

import (
	"fmt"
	"sync"
)

// State represents a state in the machine
type State string

// Event represents an event that triggers a transition
type Event string

// Transition records one fired transition. Data is whatever the caller
// passed to Trigger.
type Transition struct {
	From  State
	Event Event
	To    State
	Data  any
}

// FSM is a thread-safe finite state machine.
// Self transitions (From == To) are allowed and fire entry callbacks again.
type FSM struct {
	currentState State
	transitions  map[State]map[Event]State
	onEnter      map[State][]func(Transition)
	listeners    []func(Transition)
	mu           sync.RWMutex
}

// NewFSM creates a new FSM with the initial state
func NewFSM(initialState State) *FSM {
	return &FSM{
		currentState: initialState,
		transitions:  make(map[State]map[Event]State),
		onEnter:      make(map[State][]func(Transition)),
	}
}

// AddTransition adds a valid transition
func (f *FSM) AddTransition(from State, event Event, to State) *FSM {
	f.mu.Lock()
	defer f.mu.Unlock()

	if _, ok := f.transitions[from]; !ok {
		f.transitions[from] = make(map[Event]State)
	}
	f.transitions[from][event] = to
	return f
}

// OnEnter registers a callback run every time the machine enters state
func (f *FSM) OnEnter(state State, callback func(Transition)) *FSM {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.onEnter[state] = append(f.onEnter[state], callback)
	return f
}

// OnTransition registers a listener run after every transition
func (f *FSM) OnTransition(listener func(Transition)) *FSM {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listeners = append(f.listeners, listener)
	return f
}

// Current returns the current state
func (f *FSM) Current() State {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.currentState
}

// Trigger fires event. Callbacks run after the state has been updated and
// the lock released, so they may read Current or Trigger again.
func (f *FSM) Trigger(event Event, data any) (Transition, error) {
	f.mu.Lock()
	toState, ok := f.transitions[f.currentState][event]
	if !ok {
		from := f.currentState
		f.mu.Unlock()
		return Transition{}, fmt.Errorf("invalid transition from state '%s' with event '%s'", from, event)
	}

	t := Transition{From: f.currentState, Event: event, To: toState, Data: data}
	f.currentState = toState

	callbacks := append([]func(Transition){}, f.onEnter[toState]...)
	listeners := append([]func(Transition){}, f.listeners...)
	f.mu.Unlock()

	for _, cb := range callbacks {
		cb(t)
	}
	for _, l := range listeners {
		l(t)
	}
	return t, nil
}

// CanTrigger checks if an event can be triggered from the current state
func (f *FSM) CanTrigger(event Event) bool {
	f.mu.RLock()
	defer f.mu.RUnlock()

	_, ok := f.transitions[f.currentState][event]
	return ok
}
