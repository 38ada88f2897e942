// Package lifecycle implements the analyzer run state machine.
package lifecycle

import (
	"fmt"

	"github.com/autometric/autometric/pkg/types"
)

// Transition table: from -> allowed tos. Runs never move backward.
var validTransitions = map[types.RunStatus][]types.RunStatus{
	types.RunQueued:    {types.RunRunning},
	types.RunRunning:   {types.RunCompleted, types.RunFailed},
	types.RunCompleted: {},
	types.RunFailed:    {},
}

// CanTransition checks if transitioning from one run status to another is valid.
func CanTransition(from, to types.RunStatus) bool {
	allowed, ok := validTransitions[from]
	if !ok {
		return false
	}
	for _, s := range allowed {
		if s == to {
			return true
		}
	}
	return false
}

// Transition validates a status change, returning an error if it is invalid.
func Transition(from, to types.RunStatus) error {
	if !CanTransition(from, to) {
		return fmt.Errorf("invalid transition from %s to %s", from, to)
	}
	return nil
}

// IsTerminal returns true if the status is a terminal (final) state.
// Failed runs are terminal: this subsystem does not auto-retry them.
func IsTerminal(status types.RunStatus) bool {
	return status == types.RunCompleted || status == types.RunFailed
}
