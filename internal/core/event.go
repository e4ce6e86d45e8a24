package core

// ServerSender is the sender id of registry announcements.
const ServerSender = "Server"

// EventKind is a notification the registry emits to sessions.
type EventKind int

const (
	// EventValidationRequest asks an admitted occupant to vouch for a joiner.
	EventValidationRequest EventKind = iota
	// EventText is a chat message or server announcement broadcast to a room.
	EventText
)

func (k EventKind) String() string {
	switch k {
	case EventValidationRequest:
		return "validation_request"
	case EventText:
		return "text"
	default:
		return "unknown"
	}
}

// Event is delivered into a session mailbox. Admission state travels
// separately, see Handle.SetState.
type Event struct {
	Kind       EventKind
	Validation *ValidationRequest
	Text       *Text
}

// ValidationRequest describes a pending join an occupant may vouch for.
type ValidationRequest struct {
	Room       string
	ClientID   string
	Validation string
	Accept     bool
}

// Text is a message broadcast to the occupants of a room.
type Text struct {
	From    string
	Message string
}

// ValidationEvent wraps a request to vouch.
func ValidationEvent(req ValidationRequest) *Event {
	return &Event{Kind: EventValidationRequest, Validation: &req}
}

// TextEvent wraps a broadcast message.
func TextEvent(from, message string) *Event {
	return &Event{Kind: EventText, Text: &Text{From: from, Message: message}}
}
