package core

import "fmt"

// Phase is the stage of a connection in the room admission state machine.
type Phase int

const (
	// PhaseInit means the connection is open but no identity was handed out.
	PhaseInit Phase = iota
	// PhaseConnected means the identity was handed out and no room was requested.
	PhaseConnected
	// PhaseAwaitingValidation means a join into an occupied room is pending peer validation.
	PhaseAwaitingValidation
	// PhaseValidated means the connection was admitted into State.Room.
	PhaseValidated
)

func (p Phase) String() string {
	switch p {
	case PhaseInit:
		return "init"
	case PhaseConnected:
		return "connected"
	case PhaseAwaitingValidation:
		return "awaiting_validation"
	case PhaseValidated:
		return "validated"
	default:
		return fmt.Sprintf("phase(%d)", int(p))
	}
}

// State is the admission state of one connection. Room is set only when
// Phase is PhaseValidated.
type State struct {
	Phase Phase
	Room  string
}

// Init returns the state of a freshly opened connection.
func Init() State { return State{Phase: PhaseInit} }

// Connected returns the state after the identifier handshake.
func Connected() State { return State{Phase: PhaseConnected} }

// AwaitingValidation returns the state of a pending join.
func AwaitingValidation() State { return State{Phase: PhaseAwaitingValidation} }

// Validated returns the state of a connection admitted to room.
func Validated(room string) State { return State{Phase: PhaseValidated, Room: room} }

// ValidatedRoom reports the room the connection is admitted to.
func (s State) ValidatedRoom() (string, bool) {
	if s.Phase != PhaseValidated {
		return "", false
	}
	return s.Room, true
}

// IsValidatedIn reports whether the state is Validated(room).
func (s State) IsValidatedIn(room string) bool {
	return s.Phase == PhaseValidated && s.Room == room
}

// CanTransition reports whether moving from s to next is a legal step.
// Identity handout happens once; afterwards a connection only moves between
// pending and admitted states.
func (s State) CanTransition(next State) bool {
	switch s.Phase {
	case PhaseInit:
		return next.Phase == PhaseConnected
	case PhaseConnected, PhaseAwaitingValidation, PhaseValidated:
		return next.Phase == PhaseAwaitingValidation || next.Phase == PhaseValidated
	default:
		return false
	}
}

func (s State) String() string {
	if s.Phase == PhaseValidated {
		return fmt.Sprintf("validated(%s)", s.Room)
	}
	return s.Phase.String()
}
