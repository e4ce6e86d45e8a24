package core

import (
	"context"
	"testing"
	"time"
)

type testClient struct {
	id     string
	handle Handle
	events <-chan *Event
	states <-chan State
}

func newTestClient(id string) *testClient {
	return newTestClientSize(id, 256)
}

func newTestClientSize(id string, size int) *testClient {
	h, mb := NewMailbox(size)
	return &testClient{id: id, handle: h, events: mb.Events, states: mb.State}
}

func startRegistry(t *testing.T) *Registry {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	reg := NewRegistry(64, nil, nil)
	go reg.Run(ctx)
	return reg
}

func mustSubmit(t *testing.T, reg *Registry, cmd *Command) {
	t.Helper()
	if !reg.Submit(cmd) {
		t.Fatalf("submit %s: registry stopped", cmd.Kind)
	}
}

// settle waits until every command submitted so far has been handled and
// returns the resulting tables.
func settle(t *testing.T, reg *Registry) Snapshot {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	snap, err := reg.Snapshot(ctx)
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	return snap
}

// takeState returns the pending admission state, if any.
func takeState(c *testClient) (State, bool) {
	select {
	case st := <-c.states:
		return st, true
	default:
		return State{}, false
	}
}

// drain discards the pending state and returns every event currently queued
// for the client.
func drain(c *testClient) []*Event {
	takeState(c)
	return drainEvents(c)
}

func drainEvents(c *testClient) []*Event {
	var out []*Event
	for {
		select {
		case ev := <-c.events:
			out = append(out, ev)
		default:
			return out
		}
	}
}

func mustEvent(t *testing.T, ch <-chan *Event, kind EventKind) *Event {
	t.Helper()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		select {
		case ev := <-ch:
			if ev == nil {
				continue
			}
			if ev.Kind == kind {
				return ev
			}
		default:
			time.Sleep(10 * time.Millisecond)
		}
	}
	t.Fatalf("expected event kind %v not received", kind)
	return nil
}

func ofKind(events []*Event, kind EventKind) []*Event {
	var out []*Event
	for _, ev := range events {
		if ev.Kind == kind {
			out = append(out, ev)
		}
	}
	return out
}

// join admits c into an empty room and discards the resulting events.
func join(t *testing.T, reg *Registry, c *testClient, room string) {
	t.Helper()
	mustSubmit(t, reg, RegisterCommand(c.id, room, "", c.handle))
	settle(t, reg)
	drain(c)
}

func checkInvariant(t *testing.T, snap Snapshot) {
	t.Helper()

	for id, st := range snap.Clients {
		room, ok := st.ValidatedRoom()
		if !ok {
			continue
		}
		found := false
		for _, m := range snap.Members[room] {
			if m == id {
				found = true
				break
			}
		}
		if !found {
			t.Fatalf("client %s is %s but not a member of %q", id, st, room)
		}
	}
	for room, n := range snap.Occupants {
		if n != len(snap.Members[room]) {
			t.Fatalf("room %q has %d handles but %d validated members %v", room, n, len(snap.Members[room]), snap.Members[room])
		}
	}
}
