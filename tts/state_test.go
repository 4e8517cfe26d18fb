package tts

import (
	"encoding/json"
	"testing"
)

// TestStateTypeString tests the String() method for StateType.
func TestStateTypeString(t *testing.T) {
	tests := []struct {
		state    StateType
		expected string
	}{
		{StateIdle, "idle"},
		{StateRequesting, "requesting"},
		{StatePlaying, "playing"},
		{StatePaused, "paused"},
		{StateType(999), "unknown"},
	}

	for _, tt := range tests {
		t.Run(tt.expected, func(t *testing.T) {
			result := tt.state.String()
			if result != tt.expected {
				t.Errorf("StateType.String() = %v, want %v", result, tt.expected)
			}
		})
	}
}

func TestStateJSON(t *testing.T) {
	data, err := json.Marshal(State{CurrentState: StatePaused, Rate: 1})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var decoded map[string]any
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if decoded["state"] != "paused" {
		t.Errorf("state encoded as %v, want paused", decoded["state"])
	}

	var back State
	if err := json.Unmarshal(data, &back); err != nil || back.CurrentState != StatePaused {
		t.Errorf("decoded state = %v, %v", back.CurrentState, err)
	}
	if err := json.Unmarshal([]byte(`{"state":"dancing"}`), &back); err == nil {
		t.Error("unknown state name should not decode")
	}
}

// TestStatePredicates tests CanPause and CanResume.
func TestStatePredicates(t *testing.T) {
	tests := []struct {
		state     StateType
		canPause  bool
		canResume bool
	}{
		{StateIdle, false, false},
		{StateRequesting, false, false},
		{StatePlaying, true, false},
		{StatePaused, false, true},
	}

	for _, tt := range tests {
		t.Run(tt.state.String(), func(t *testing.T) {
			s := State{CurrentState: tt.state}
			if s.CanPause() != tt.canPause {
				t.Errorf("CanPause() = %v, want %v", s.CanPause(), tt.canPause)
			}
			if s.CanResume() != tt.canResume {
				t.Errorf("CanResume() = %v, want %v", s.CanResume(), tt.canResume)
			}
		})
	}
}

// TestStateMachineTransitions walks the playback lifecycle.
func TestStateMachineTransitions(t *testing.T) {
	tests := []struct {
		name  string
		path  []StateType
		valid []bool
	}{
		{
			name:  "speak to natural end",
			path:  []StateType{StateRequesting, StatePlaying, StateIdle},
			valid: []bool{true, true, true},
		},
		{
			name:  "pause and resume",
			path:  []StateType{StateRequesting, StatePlaying, StatePaused, StatePlaying, StatePaused, StateIdle},
			valid: []bool{true, true, true, true, true, true},
		},
		{
			name:  "cache hit plays directly",
			path:  []StateType{StatePlaying},
			valid: []bool{true},
		},
		{
			name:  "cannot pause from idle",
			path:  []StateType{StatePaused},
			valid: []bool{false},
		},
		{
			name:  "cannot pause while requesting",
			path:  []StateType{StateRequesting, StatePaused},
			valid: []bool{true, false},
		},
		{
			name:  "new speak while paused",
			path:  []StateType{StatePlaying, StatePaused, StateRequesting},
			valid: []bool{true, true, true},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sm := NewStateMachine()
			for i, to := range tt.path {
				before := sm.Current()
				ok := sm.Transition(to)
				if ok != tt.valid[i] {
					t.Fatalf("step %d: %v -> %v returned %v, want %v", i, before, to, ok, tt.valid[i])
				}
				if !ok && sm.Current() != before {
					t.Fatalf("rejected transition changed state to %v", sm.Current())
				}
			}
		})
	}
}

// TestStateMachineCallbacks tests enter hooks.
func TestStateMachineCallbacks(t *testing.T) {
	sm := NewStateMachine()

	var events []string
	sm.OnEnter(StatePlaying, func() { events = append(events, "enter playing "+sm.Current().String()) })
	sm.OnEnter(StateIdle, func() { events = append(events, "enter idle") })

	sm.Transition(StatePlaying)
	// same-state transition is accepted without re-running hooks
	sm.Transition(StatePlaying)
	sm.Transition(StateIdle)
	// idle cannot pause, so nothing runs
	sm.Transition(StatePaused)

	want := []string{"enter playing playing", "enter idle"}
	if len(events) != len(want) || events[0] != want[0] || events[1] != want[1] {
		t.Errorf("unexpected callbacks: %v", events)
	}
}
