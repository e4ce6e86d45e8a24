package core

import (
	"context"
	"fmt"
	"sort"

	"github.com/rs/zerolog"

	"github.com/vovakirdan/vouchchat-server/internal/metrics"
)

// clientRecord is the registry's bookkeeping for one connection id.
type clientRecord struct {
	room   string
	state  State
	handle Handle
}

// Snapshot is a consistent view of the registry tables.
type Snapshot struct {
	// Members lists the admitted client ids per room, sorted.
	Members map[string][]string
	// Occupants is the size of each room's member set.
	Occupants map[string]int
	// Clients maps every known client id to its admission state.
	Clients map[string]State
}

// Registry owns room membership and brokers peer validation. All state is
// confined to the Run goroutine; sessions talk to it through Submit.
type Registry struct {
	inbox   chan *Command
	done    chan struct{}
	rooms   map[string]*Room
	clients map[string]*clientRecord
	log     zerolog.Logger
	metrics *metrics.Metrics
}

// NewRegistry creates a registry with a mailbox of the given size.
// logger and m may be nil.
func NewRegistry(buffer int, logger *zerolog.Logger, m *metrics.Metrics) *Registry {
	if buffer <= 0 {
		buffer = 1
	}
	l := zerolog.Nop()
	if logger != nil {
		l = logger.With().Str("component", "registry").Logger()
	}
	return &Registry{
		inbox:   make(chan *Command, buffer),
		done:    make(chan struct{}),
		rooms:   make(map[string]*Room),
		clients: make(map[string]*clientRecord),
		log:     l,
		metrics: m,
	}
}

// Run processes commands until ctx is cancelled. It must be called once.
func (r *Registry) Run(ctx context.Context) {
	defer close(r.done)
	for {
		select {
		case <-ctx.Done():
			r.log.Debug().Int("clients", len(r.clients)).Msg("registry stopped")
			return
		case cmd := <-r.inbox:
			r.handle(cmd)
		}
	}
}

// Submit enqueues a command, waiting while the inbox is full. It returns
// false if the registry has stopped.
func (r *Registry) Submit(cmd *Command) bool {
	if cmd == nil {
		return false
	}
	select {
	case <-r.done:
		return false
	default:
	}
	select {
	case r.inbox <- cmd:
		return true
	case <-r.done:
		return false
	}
}

// Snapshot returns the registry tables as seen after every command submitted
// before the call.
func (r *Registry) Snapshot(ctx context.Context) (Snapshot, error) {
	reply := make(chan Snapshot, 1)
	if !r.Submit(&Command{Kind: commandSnapshot, reply: reply}) {
		return Snapshot{}, ErrRegistryStopped
	}
	select {
	case snap := <-reply:
		return snap, nil
	case <-r.done:
		return Snapshot{}, ErrRegistryStopped
	case <-ctx.Done():
		return Snapshot{}, ctx.Err()
	}
}

func (r *Registry) handle(cmd *Command) {
	switch cmd.Kind {
	case CommandRegister:
		r.register(cmd)
	case CommandValidate:
		r.validate(cmd)
	case CommandChatMessage:
		r.chatMessage(cmd)
	case CommandDisconnect:
		r.disconnect(cmd.ClientID, cmd.FullDisconnect)
	case commandSnapshot:
		cmd.reply <- r.snapshot()
		return
	default:
		r.log.Warn().Int("kind", int(cmd.Kind)).Msg("unknown command")
		return
	}
	r.metrics.SetClients(len(r.clients))
	r.metrics.SetRooms(len(r.rooms))
}

func (r *Registry) register(cmd *Command) {
	if !cmd.Handle.Valid() {
		r.log.Warn().Str("client_id", cmd.ClientID).Msg("register without mailbox")
		return
	}

	// Leave the current room first so a room switch is a plain join.
	r.disconnect(cmd.ClientID, false)

	room, ok := r.rooms[cmd.Room]
	if !ok || room.Empty() {
		if !ok {
			room = NewRoom(cmd.Room)
			r.rooms[cmd.Room] = room
		}
		room.Add(cmd.Handle)
		r.clients[cmd.ClientID] = &clientRecord{
			room:   cmd.Room,
			state:  Validated(cmd.Room),
			handle: cmd.Handle,
		}
		r.metrics.Registration("admitted")
		r.setState(cmd.Handle, Validated(cmd.Room))
		r.announceJoin(room, cmd.ClientID)
		r.log.Info().Str("client_id", cmd.ClientID).Str("room", cmd.Room).Msg("client joined empty room")
		return
	}

	r.clients[cmd.ClientID] = &clientRecord{
		room:   cmd.Room,
		state:  AwaitingValidation(),
		handle: cmd.Handle,
	}
	r.metrics.Registration("awaiting")
	r.setState(cmd.Handle, AwaitingValidation())

	prompt := ValidationEvent(ValidationRequest{
		Room:       cmd.Room,
		ClientID:   cmd.ClientID,
		Validation: cmd.Validation,
	})
	r.metrics.Dropped(room.Broadcast(prompt))
	r.log.Info().
		Str("client_id", cmd.ClientID).
		Str("room", cmd.Room).
		Int("occupants", room.Len()).
		Msg("client awaiting peer validation")
}

func (r *Registry) validate(cmd *Command) {
	if !cmd.Accept {
		return
	}
	rec, ok := r.clients[cmd.ClientID]
	if !ok {
		r.log.Debug().Str("client_id", cmd.ClientID).Msg("validation for unknown client ignored")
		return
	}
	room, ok := r.rooms[cmd.Room]
	if !ok {
		return
	}
	if rec.state.Phase != PhaseAwaitingValidation || rec.room != cmd.Room {
		// Already admitted, or pending for another room.
		return
	}
	voucher, ok := r.clients[cmd.From]
	if !ok || !voucher.state.IsValidatedIn(cmd.Room) {
		r.log.Debug().
			Str("client_id", cmd.ClientID).
			Str("from", cmd.From).
			Str("room", cmd.Room).
			Msg("validation from non-occupant ignored")
		return
	}

	rec.state = Validated(cmd.Room)
	r.setState(rec.handle, rec.state)
	room.Add(rec.handle)
	r.announceJoin(room, cmd.ClientID)
	r.metrics.PeerAdmission()
	r.log.Info().
		Str("client_id", cmd.ClientID).
		Str("from", cmd.From).
		Str("room", cmd.Room).
		Msg("client admitted by peer")
}

func (r *Registry) chatMessage(cmd *Command) {
	room, ok := r.rooms[cmd.Room]
	if !ok || room.Empty() {
		return
	}
	rec, ok := r.clients[cmd.ClientID]
	if !ok || !rec.state.IsValidatedIn(cmd.Room) {
		r.log.Debug().Str("client_id", cmd.ClientID).Str("room", cmd.Room).Msg("message from non-occupant ignored")
		return
	}
	r.metrics.Dropped(room.Broadcast(TextEvent(cmd.ClientID, cmd.Text)))
	r.metrics.Message()
}

func (r *Registry) disconnect(id string, full bool) {
	rec, ok := r.clients[id]
	if !ok {
		return
	}

	room, ok := r.rooms[rec.room]
	if !ok {
		r.log.Warn().Str("client_id", id).Str("room", rec.room).Msg("client registered under nonexistent room")
	} else {
		room.Remove(rec.handle)
		if rec.state.Phase == PhaseValidated {
			msg := fmt.Sprintf("%s disconnected ... Number of connected users: %d", id, room.Len())
			r.metrics.Dropped(room.Broadcast(TextEvent(ServerSender, msg)))
			r.log.Info().Str("client_id", id).Str("room", rec.room).Int("occupants", room.Len()).Msg("client left room")
		}
	}

	if full {
		delete(r.clients, id)
		r.log.Debug().Int("clients", len(r.clients)).Msg("client removed")
		return
	}
	rec.state = Connected()
}

func (r *Registry) announceJoin(room *Room, id string) {
	msg := fmt.Sprintf("User %s has join the room ... Number of connected users: %d", id, room.Len())
	r.metrics.Dropped(room.Broadcast(TextEvent(ServerSender, msg)))
}

func (r *Registry) setState(h Handle, st State) {
	if !h.SetState(st) {
		r.log.Warn().Str("state", st.String()).Msg("state update for invalid handle")
	}
}

func (r *Registry) snapshot() Snapshot {
	snap := Snapshot{
		Members:   make(map[string][]string, len(r.rooms)),
		Occupants: make(map[string]int, len(r.rooms)),
		Clients:   make(map[string]State, len(r.clients)),
	}
	for name, room := range r.rooms {
		snap.Occupants[name] = room.Len()
		snap.Members[name] = []string{}
	}
	for id, rec := range r.clients {
		snap.Clients[id] = rec.state
		if name, ok := rec.state.ValidatedRoom(); ok {
			if room, exists := r.rooms[name]; exists && room.Has(rec.handle) {
				snap.Members[name] = append(snap.Members[name], id)
			}
		}
	}
	for name := range snap.Members {
		sort.Strings(snap.Members[name])
	}
	return snap
}
