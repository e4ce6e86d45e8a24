package session

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/vovakirdan/vouchchat-server/internal/core"
)

var errConnClosed = errors.New("connection closed")

type fakeConn struct {
	in     chan Frame
	out    chan string
	closed chan struct{}
	once   sync.Once

	// blockAfter > 0 makes every write past that count hang until Close.
	blockAfter int
	writes     int
	stuck      chan struct{}
	stuckOnce  sync.Once
}

func newFakeConn() *fakeConn {
	return &fakeConn{
		in:     make(chan Frame),
		out:    make(chan string, 256),
		closed: make(chan struct{}),
		stuck:  make(chan struct{}),
	}
}

func (c *fakeConn) ReadFrame() (Frame, error) {
	select {
	case f := <-c.in:
		return f, nil
	case <-c.closed:
		return Frame{}, io.EOF
	}
}

func (c *fakeConn) WriteText(ctx context.Context, text string) error {
	// Writes come from the single writer goroutine.
	c.writes++
	if c.blockAfter > 0 && c.writes > c.blockAfter {
		c.stuckOnce.Do(func() { close(c.stuck) })
		<-c.closed
		return errConnClosed
	}
	select {
	case c.out <- text:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-c.closed:
		return errConnClosed
	}
}

func (c *fakeConn) Close() error {
	c.once.Do(func() { close(c.closed) })
	return nil
}

type fakeRegistry struct {
	cmds chan *core.Command
}

func (r *fakeRegistry) Submit(cmd *core.Command) bool {
	r.cmds <- cmd
	return true
}

type harness struct {
	t      *testing.T
	id     string
	conn   *fakeConn
	reg    *fakeRegistry
	cancel context.CancelFunc
	done   chan error
}

func quietConfig() Config {
	cfg := DefaultConfig()
	cfg.HeartbeatInterval = time.Hour
	cfg.ClientTimeout = 2 * time.Hour
	return cfg
}

func startSession(t *testing.T, cfg Config) *harness {
	t.Helper()
	return startSessionOn(t, cfg, newFakeConn())
}

func startSessionOn(t *testing.T, cfg Config, conn *fakeConn) *harness {
	t.Helper()

	h := &harness{
		t:    t,
		id:   "0011223344556677",
		conn: conn,
		reg:  &fakeRegistry{cmds: make(chan *core.Command, 64)},
		done: make(chan error, 1),
	}
	ctx, cancel := context.WithCancel(context.Background())
	h.cancel = cancel

	s := New(h.id, h.conn, h.reg, cfg, nil, nil)
	go func() { h.done <- s.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		select {
		case <-h.done:
		case <-time.After(2 * time.Second):
			t.Errorf("session did not stop")
		}
	})

	if got := h.frame(); got != h.id {
		t.Fatalf("handshake = %q, want %q", got, h.id)
	}
	return h
}

func (h *harness) sendText(text string) {
	h.t.Helper()
	select {
	case h.conn.in <- Frame{Kind: FrameText, Data: []byte(text)}:
	case <-time.After(2 * time.Second):
		h.t.Fatalf("session did not read frame %q", text)
	}
}

func (h *harness) sendBinary(data []byte) {
	h.t.Helper()
	select {
	case h.conn.in <- Frame{Kind: FrameBinary, Data: data}:
	case <-time.After(2 * time.Second):
		h.t.Fatalf("session did not read binary frame")
	}
}

func (h *harness) frame() string {
	h.t.Helper()
	select {
	case text := <-h.conn.out:
		return text
	case <-time.After(2 * time.Second):
		h.t.Fatalf("no frame written")
		return ""
	}
}

func (h *harness) command(kind core.CommandKind) *core.Command {
	h.t.Helper()
	select {
	case cmd := <-h.reg.cmds:
		if cmd.Kind != kind {
			h.t.Fatalf("command kind = %s, want %s", cmd.Kind, kind)
		}
		return cmd
	case <-time.After(2 * time.Second):
		h.t.Fatalf("no %s command submitted", kind)
		return nil
	}
}

func (h *harness) noCommand() {
	h.t.Helper()
	select {
	case cmd := <-h.reg.cmds:
		h.t.Fatalf("unexpected command %s", cmd.Kind)
	default:
	}
}

// register sends a Register packet and returns the handle the registry would
// notify.
func (h *harness) register(room string) core.Handle {
	h.t.Helper()
	h.sendText(`{"Register":{"room_id":"` + room + `","validation":"tok"}}`)
	return h.command(core.CommandRegister).Handle
}

// validate drives the session into Validated(room).
func (h *harness) validate(room string) core.Handle {
	h.t.Helper()
	handle := h.register(room)
	handle.SetState(core.Validated(room))
	if got, want := h.frame(), `{"VALIDATED":"`+room+`"}`; got != want {
		h.t.Fatalf("state frame = %s, want %s", got, want)
	}
	return handle
}
