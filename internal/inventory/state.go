package inventory

import "fmt"

// State is the phase of one Build call.
type State int

const (
	StateIdle State = iota
	StateHeadResolved
	StateTraversing
	StateComplete
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateHeadResolved:
		return "head resolved"
	case StateTraversing:
		return "traversing"
	case StateComplete:
		return "complete"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Observer is told about every state change of a build.
type Observer func(from, to State)

// run tracks the state of a single build.
type run struct {
	state    State
	observer Observer
}

func (r *run) enter(s State) {
	prev := r.state
	r.state = s
	if r.observer != nil {
		r.observer(prev, s)
	}
}
