package domain

import "strings"

// State is one of the six states of the server-side enhancement job.
type State string

const (
	StateIdle      State = "idle"
	StateRunning   State = "running"
	StateStopping  State = "stopping"
	StateStopped   State = "stopped"
	StateCompleted State = "completed"
	StateError     State = "error"
)

// ParseState maps the server's status string onto a State. Unknown and
// empty values are treated as idle.
func ParseState(s string) State {
	switch State(strings.ToLower(strings.TrimSpace(s))) {
	case StateRunning:
		return StateRunning
	case StateStopping:
		return StateStopping
	case StateStopped:
		return StateStopped
	case StateCompleted:
		return StateCompleted
	case StateError:
		return StateError
	default:
		return StateIdle
	}
}

// Terminal reports whether polling should end once this state is observed.
func (s State) Terminal() bool {
	return s == StateCompleted || s == StateStopped || s == StateError
}

// Effect is the side effect the poller must perform after a transition.
type Effect int

const (
	EffectNone Effect = iota
	EffectStopPolling
	// EffectStopPollingAndRefresh re-fetches the full status so coverage
	// numbers catch up with a stopped or failed run.
	EffectStopPollingAndRefresh
	// EffectStopPollingAndReload schedules a full reload after completion.
	EffectStopPollingAndReload
)

// Transition returns the next state given the state the server reported.
// The server is ground truth, so the next state is always the observed one;
// the effect depends on where the job came from.
func Transition(from, observed State) (State, Effect) {
	switch observed {
	case StateRunning, StateStopping:
		return observed, EffectNone
	case StateCompleted:
		if from == StateCompleted {
			return observed, EffectStopPolling
		}
		return observed, EffectStopPollingAndReload
	case StateStopped, StateError:
		return observed, EffectStopPollingAndRefresh
	case StateIdle:
		if from == StateRunning || from == StateStopping {
			// Job vanished between polls; nothing left to watch.
			return observed, EffectStopPollingAndRefresh
		}
		return observed, EffectNone
	default:
		return from, EffectNone
	}
}
