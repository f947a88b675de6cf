package mainloop

import (
	"sync/atomic"
)

// LoopState represents the current state of the event loop.
//
// State Machine:
//
//	StateIdle (0) → StateRunning (1)        [Run]
//	StateRunning (1) → StateSleeping (2)    [block() via CAS]
//	StateSleeping (2) → StateRunning (1)    [block() wake via CAS]
//	StateRunning (1) → StateIdle (0)        [Run returns after Quit]
//	StateIdle (0) → StateShutdown (3)       [Shutdown]
//	StateShutdown (3) → (terminal)
//
// Temporary transitions (Running, Sleeping) use TryTransition (CAS);
// Shutdown is irreversible and uses Store.
type LoopState uint32

const (
	// StateIdle indicates the loop is not running. A loop is created idle
	// and returns to idle when Run observes Quit.
	StateIdle LoopState = iota
	// StateRunning indicates the loop is actively dispatching phases.
	StateRunning
	// StateSleeping indicates the loop is suspended in the blocking wait.
	StateSleeping
	// StateShutdown indicates the loop has been shut down.
	StateShutdown
)

// String returns a human-readable representation of the state.
func (s LoopState) String() string {
	switch s {
	case StateIdle:
		return "Idle"
	case StateRunning:
		return "Running"
	case StateSleeping:
		return "Sleeping"
	case StateShutdown:
		return "Shutdown"
	default:
		return "Unknown"
	}
}

// loopState is a lock-free state machine readable from any goroutine.
type loopState struct {
	v atomic.Uint32
}

// Load returns the current state atomically.
func (s *loopState) Load() LoopState {
	return LoopState(s.v.Load())
}

// Store atomically stores a new state. Only used for irreversible
// transitions; temporary states must go through TryTransition.
func (s *loopState) Store(state LoopState) {
	s.v.Store(uint32(state))
}

// TryTransition attempts to atomically transition from one state to another,
// reporting whether the CAS succeeded.
func (s *loopState) TryTransition(from, to LoopState) bool {
	return s.v.CompareAndSwap(uint32(from), uint32(to))
}
