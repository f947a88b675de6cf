package mainloop

import "testing"

func TestLoopStateString(t *testing.T) {
	cases := []struct {
		state LoopState
		want  string
	}{
		{StateIdle, "Idle"},
		{StateRunning, "Running"},
		{StateSleeping, "Sleeping"},
		{StateShutdown, "Shutdown"},
		{LoopState(99), "Unknown"},
	}
	for _, tc := range cases {
		if got := tc.state.String(); got != tc.want {
			t.Errorf("LoopState(%d).String() = %q, want %q", tc.state, got, tc.want)
		}
	}
}

func TestTryTransition(t *testing.T) {
	var s loopState
	if s.Load() != StateIdle {
		t.Fatalf("zero value = %v, want StateIdle", s.Load())
	}
	if !s.TryTransition(StateIdle, StateRunning) {
		t.Error("Idle -> Running should succeed")
	}
	if s.TryTransition(StateIdle, StateRunning) {
		t.Error("repeat transition should fail: not Idle anymore")
	}
	if !s.TryTransition(StateRunning, StateSleeping) {
		t.Error("Running -> Sleeping should succeed")
	}
	s.Store(StateShutdown)
	if s.Load() != StateShutdown {
		t.Errorf("after Store = %v, want StateShutdown", s.Load())
	}
}
