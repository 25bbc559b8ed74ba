package vehicle

import "sync/atomic"

// State is the client process's lifecycle state. Only Running
// and Idle allow message delivery; Stopping drops handler work.
type State int32

const (
	Created State = iota
	Started
	Running
	Idle
	Stopping
	Terminated
)

func (s State) String() string {
	switch s {
	case Created:
		return "CREATED"
	case Started:
		return "STARTED"
	case Running:
		return "RUNNING"
	case Idle:
		return "IDLE"
	case Stopping:
		return "STOPPING"
	case Terminated:
		return "TERMINATED"
	default:
		return "UNKNOWN"
	}
}

type stateBox struct{ v atomic.Int32 }

func (b *stateBox) load() State      { return State(b.v.Load()) }
func (b *stateBox) store(s State)    { b.v.Store(int32(s)) }
func (b *stateBox) deliverable() bool {
	switch b.load() {
	case Running, Idle:
		return true
	default:
		return false
	}
}
