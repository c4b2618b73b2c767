// Package subscriber defines the lifecycle of a subscriber connection.
package subscriber

// State is the lifecycle state of one subscriber connection.
//
// CONNECTING → OPEN → CLOSED. A connection may also go straight from
// CONNECTING to CLOSED when the peer drops before registration.
// CLOSED is terminal.
type State int32

const (
	StateConnecting State = iota
	StateOpen
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "CONNECTING"
	case StateOpen:
		return "OPEN"
	case StateClosed:
		return "CLOSED"
	default:
		return "UNKNOWN"
	}
}

// CanTransition reports whether moving from s to next is a legal step.
func (s State) CanTransition(next State) bool {
	switch s {
	case StateConnecting:
		return next == StateOpen || next == StateClosed
	case StateOpen:
		return next == StateClosed
	default:
		return false
	}
}
