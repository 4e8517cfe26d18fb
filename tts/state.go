package tts

import "fmt"

// StateType represents the playback state of the engine.
type StateType int

const (
	// StateIdle indicates nothing is being spoken.
	StateIdle StateType = iota
	// StateRequesting indicates audio is being synthesized for a new
	// utterance; nothing is audible yet.
	StateRequesting
	// StatePlaying indicates audio is playing, or a resume is pending.
	StatePlaying
	// StatePaused indicates playback is paused.
	StatePaused
)

// String returns the string representation of the state.
func (s StateType) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRequesting:
		return "requesting"
	case StatePlaying:
		return "playing"
	case StatePaused:
		return "paused"
	default:
		return "unknown"
	}
}

// MarshalText lets the state appear by name in JSON payloads.
func (s StateType) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText parses a state name written by MarshalText.
func (s *StateType) UnmarshalText(text []byte) error {
	for _, st := range []StateType{StateIdle, StateRequesting, StatePlaying, StatePaused} {
		if st.String() == string(text) {
			*s = st
			return nil
		}
	}
	return fmt.Errorf("unknown state %q", text)
}

// State is a snapshot of the engine for hosts.
type State struct {
	CurrentState StateType `json:"state"`
	RequestID    string    `json:"request_id,omitempty"`
	Text         string    `json:"text,omitempty"`
	Voice        string    `json:"voice"`
	Rate         float64   `json:"rate"`
	Pitch        float64   `json:"pitch"`
	Volume       float64   `json:"volume"`
	Health       Health    `json:"health"`
	// Boundaries still to fire for the current utterance.
	PendingBoundaries int `json:"pending_boundaries"`
}

// CanPause returns true if playback can be paused.
func (s *State) CanPause() bool {
	return s.CurrentState == StatePlaying
}

// CanResume returns true if playback can be resumed.
func (s *State) CanResume() bool {
	return s.CurrentState == StatePaused
}

// StateMachine manages playback state transitions. It is not safe for
// concurrent use; the engine guards it with its own lock.
type StateMachine struct {
	current     StateType
	transitions map[StateType][]StateType
	onEnter     map[StateType]func()
}

// NewStateMachine creates a state machine with the playback transitions.
// Every state may return to idle.
func NewStateMachine() *StateMachine {
	return &StateMachine{
		current: StateIdle,
		transitions: map[StateType][]StateType{
			StateIdle:       {StateRequesting, StatePlaying},
			StateRequesting: {StatePlaying, StateIdle, StateRequesting},
			StatePlaying:    {StatePaused, StateIdle, StateRequesting, StatePlaying},
			StatePaused:     {StatePlaying, StateIdle, StateRequesting},
		},
		onEnter: make(map[StateType]func()),
	}
}

// Transition attempts to transition to the specified state.
func (sm *StateMachine) Transition(to StateType) bool {
	validTransitions, ok := sm.transitions[sm.current]
	if !ok {
		return false
	}

	valid := false
	for _, state := range validTransitions {
		if state == to {
			valid = true
			break
		}
	}
	if !valid {
		return false
	}

	if sm.current == to {
		return true
	}

	sm.current = to

	if enterFn, ok := sm.onEnter[to]; ok && enterFn != nil {
		enterFn()
	}

	return true
}

// Current returns the current state.
func (sm *StateMachine) Current() StateType {
	return sm.current
}

// OnEnter registers a callback for entering a state. It runs after the
// state changed and not for same-state transitions.
func (sm *StateMachine) OnEnter(state StateType, fn func()) {
	sm.onEnter[state] = fn
}
