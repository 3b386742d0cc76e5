package models

import (
	dErrors "docket/pkg/domain-errors"
)

// State is a workspace lifecycle stage.
type State string

const (
	// StateReceived is the initial state of every workspace.
	StateReceived State = "received"
	// StateTriaged means the source record has been classified.
	StateTriaged State = "triaged"
	// StateAnalyzing means facts, gaps and risks are being accumulated.
	StateAnalyzing State = "analyzing"
	// StateBlocked means an unresolved blocking element stalls progress.
	StateBlocked State = "blocked"
	// StateReady means analysis concluded and the workspace awaits lock.
	StateReady State = "ready"
	// StateLocked freezes the workspace; every mutation is rejected.
	StateLocked State = "locked"
)

// Event is a trigger for a state transition.
type Event string

const (
	EventTriage        Event = "triage"
	EventBeginAnalysis Event = "begin_analysis"
	EventBlock         Event = "block"
	EventUnblock       Event = "unblock"
	EventMarkReady     Event = "mark_ready"
	EventLock          Event = "lock"
	EventUnlock        Event = "unlock"
)

// transitions is the full (state, event) → state table. Absent pairs are
// invalid transitions. Lock is reachable from every live state; unlock
// returns to analyzing so the audit trail shows work resumed, not rewound.
var transitions = map[State]map[Event]State{
	StateReceived: {
		EventTriage: StateTriaged,
		EventLock:   StateLocked,
	},
	StateTriaged: {
		EventBeginAnalysis: StateAnalyzing,
		EventLock:          StateLocked,
	},
	StateAnalyzing: {
		EventBlock:     StateBlocked,
		EventMarkReady: StateReady,
		EventLock:      StateLocked,
	},
	StateBlocked: {
		EventUnblock: StateAnalyzing,
		EventLock:    StateLocked,
	},
	StateReady: {
		EventBeginAnalysis: StateAnalyzing,
		EventLock:          StateLocked,
	},
	StateLocked: {
		EventUnlock: StateAnalyzing,
	},
}

// States lists every state, in lifecycle order.
func States() []State {
	return []State{StateReceived, StateTriaged, StateAnalyzing, StateBlocked, StateReady, StateLocked}
}

// Events lists every transition trigger.
func Events() []Event {
	return []Event{EventTriage, EventBeginAnalysis, EventBlock, EventUnblock, EventMarkReady, EventLock, EventUnlock}
}

// Next returns the state reached by applying event in state, or a validation
// error for an invalid pair.
func Next(state State, event Event) (State, error) {
	if next, ok := transitions[state][event]; ok {
		return next, nil
	}
	return "", dErrors.Newf(dErrors.CodeValidation, "event %q is not valid in state %q", event, state)
}

// CanTransition reports whether event is valid in state.
func CanTransition(state State, event Event) bool {
	_, ok := transitions[state][event]
	return ok
}

func (s State) Valid() bool {
	switch s {
	case StateReceived, StateTriaged, StateAnalyzing, StateBlocked, StateReady, StateLocked:
		return true
	}
	return false
}
