package core

// Room is the set of handles admitted to one room id.
type Room struct {
	Name    string
	members map[Handle]struct{}
}

// NewRoom constructs a room with no members.
func NewRoom(name string) *Room {
	return &Room{
		Name:    name,
		members: make(map[Handle]struct{}),
	}
}

// Add inserts a handle into the room. Returns true if newly added.
func (r *Room) Add(h Handle) bool {
	if _, exists := r.members[h]; exists {
		return false
	}
	r.members[h] = struct{}{}
	return true
}

// Remove deletes a handle from the room. Returns true if removed.
func (r *Room) Remove(h Handle) bool {
	if _, exists := r.members[h]; !exists {
		return false
	}
	delete(r.members, h)
	return true
}

// Has reports whether the handle is a member.
func (r *Room) Has(h Handle) bool {
	_, ok := r.members[h]
	return ok
}

// Len returns the number of members.
func (r *Room) Len() int {
	return len(r.members)
}

// Empty returns true if no handles are in the room.
func (r *Room) Empty() bool {
	return len(r.members) == 0
}

// Broadcast sends an event to every member and returns how many deliveries
// were dropped because a mailbox was full.
func (r *Room) Broadcast(event *Event) int {
	dropped := 0
	for h := range r.members {
		if !h.Notify(event) {
			// Drop if slow consumer.
			dropped++
		}
	}
	return dropped
}

// Each calls fn for every member.
func (r *Room) Each(fn func(Handle)) {
	for h := range r.members {
		fn(h)
	}
}
