package core

// Handle addresses the mailbox of one session. Two handles are equal iff they
// wrap the same mailbox, so a Handle can be used directly as a set element.
// The registry is the only sender on both channels.
type Handle struct {
	events chan<- *Event
	state  chan State
}

// Mailbox is the receive side of a Handle. State holds at most one pending
// admission state, the latest one the registry assigned.
type Mailbox struct {
	Events <-chan *Event
	State  <-chan State
}

// NewMailbox allocates a session mailbox with the given buffer size and
// returns the send-side handle together with the receive side.
func NewMailbox(size int) (Handle, Mailbox) {
	if size <= 0 {
		size = 1
	}
	events := make(chan *Event, size)
	state := make(chan State, 1)
	return Handle{events: events, state: state}, Mailbox{Events: events, State: state}
}

// Valid reports whether the handle points at a mailbox.
func (h Handle) Valid() bool {
	return h.events != nil && h.state != nil
}

// Notify enqueues an event without blocking. It returns false when the
// mailbox is full or the handle is invalid; the event is dropped.
func (h Handle) Notify(event *Event) bool {
	if h.events == nil {
		return false
	}
	select {
	case h.events <- event:
		return true
	default:
		return false
	}
}

// SetState replaces the pending admission state without blocking. An update
// the session has not consumed yet is overwritten, never lost behind a full
// event queue.
func (h Handle) SetState(state State) bool {
	if h.state == nil {
		return false
	}
	for {
		select {
		case h.state <- state:
			return true
		default:
		}
		select {
		case <-h.state:
		default:
		}
	}
}
