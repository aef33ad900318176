package voice

import (
	"fmt"
	"sync/atomic"
)

// ServiceState is the externally observable lifecycle state of voice input.
type ServiceState int32

const (
	// StateOff means nothing is acquired.
	StateOff ServiceState = iota

	// StateLoading means Start is acquiring resources.
	StateLoading

	// StateOn means the worker is running.
	StateOn
)

// String returns "OFF", "LOADING" or "ON".
func (s ServiceState) String() string {
	switch s {
	case StateOff:
		return "OFF"
	case StateLoading:
		return "LOADING"
	case StateOn:
		return "ON"
	default:
		return fmt.Sprintf("ServiceState(%d)", int32(s))
	}
}

// validTransition reports whether from → to is allowed. LOADING → OFF is the
// aborted-start edge.
func validTransition(from, to ServiceState) bool {
	switch from {
	case StateOff:
		return to == StateLoading
	case StateLoading:
		return to == StateOn || to == StateOff
	case StateOn:
		return to == StateOff
	}
	return false
}

// StateHolder exposes the current state read-only. Only the Coordinator
// mutates it.
type StateHolder struct {
	v atomic.Int32
}

// Load returns the current state.
func (h *StateHolder) Load() ServiceState { return ServiceState(h.v.Load()) }

// transition moves to the target state or returns ErrInvalidTransition.
func (h *StateHolder) transition(to ServiceState) error {
	for {
		from := h.Load()
		if !validTransition(from, to) {
			return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
		}
		if h.v.CompareAndSwap(int32(from), int32(to)) {
			return nil
		}
	}
}
