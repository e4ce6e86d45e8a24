package session

import (
	"errors"
	"io"
	"testing"
	"time"

	"github.com/vovakirdan/vouchchat-server/internal/core"
	"github.com/vovakirdan/vouchchat-server/internal/proto"
)

func TestSessionRegisterForwardsToRegistry(t *testing.T) {
	h := startSession(t, quietConfig())

	h.sendText(`{"Register":{"room_id":"lobby","validation":"tok"}}`)
	cmd := h.command(core.CommandRegister)
	if cmd.ClientID != h.id || cmd.Room != "lobby" || cmd.Validation != "tok" {
		t.Fatalf("unexpected register command: %+v", cmd)
	}
	if !cmd.Handle.Valid() {
		t.Fatalf("register must carry the session handle")
	}

	cmd.Handle.SetState(core.AwaitingValidation())
	if got := h.frame(); got != `"AWAITING_VALIDATION"` {
		t.Fatalf("unexpected state frame: %s", got)
	}
}

func TestSessionTextRequiresValidation(t *testing.T) {
	h := startSession(t, quietConfig())

	h.sendText(`{"Text":{"message":"hi"}}`)
	if got := h.frame(); got != proto.MsgUnvalidatedText {
		t.Fatalf("unexpected reply: %q", got)
	}
	h.noCommand()

	h.validate("lobby")
	h.sendText(`{"Text":{"message":"hi"}}`)
	cmd := h.command(core.CommandChatMessage)
	if cmd.ClientID != h.id || cmd.Room != "lobby" || cmd.Text != "hi" {
		t.Fatalf("unexpected chat command: %+v", cmd)
	}
}

func TestSessionValidationRequestGating(t *testing.T) {
	h := startSession(t, quietConfig())
	answer := `{"ValidationRequest":{"room_id":"lobby","id":"joiner","validation":"v","accept":true}}`

	h.sendText(answer)
	if got := h.frame(); got != proto.MsgUnvalidatedVouch {
		t.Fatalf("unexpected reply: %q", got)
	}
	h.noCommand()

	h.validate("other")
	h.sendText(answer)
	if got := h.frame(); got != proto.MsgCrossRoomValidation {
		t.Fatalf("unexpected reply: %q", got)
	}
	h.noCommand()

	h.validate("lobby")
	h.sendText(answer)
	cmd := h.command(core.CommandValidate)
	if cmd.From != h.id || cmd.ClientID != "joiner" || cmd.Room != "lobby" || cmd.Validation != "v" || !cmd.Accept {
		t.Fatalf("unexpected validate command: %+v", cmd)
	}
}

func TestSessionValidationPrompt(t *testing.T) {
	h := startSession(t, quietConfig())
	prompt := core.ValidationEvent(core.ValidationRequest{Room: "lobby", ClientID: "joiner", Validation: "v", Accept: true})

	// Not validated yet: the prompt is dropped, the following text is not.
	handle := h.register("lobby")
	handle.Notify(prompt)
	handle.Notify(core.TextEvent("Server", "after prompt"))
	if got := h.frame(); got != `{"id":"Server","message":"after prompt"}` {
		t.Fatalf("prompt must be dropped for unvalidated session, got %s", got)
	}

	handle.SetState(core.Validated("lobby"))
	h.frame()
	handle.Notify(prompt)
	want := `{"ValidationRequest":{"room_id":"lobby","id":"joiner","validation":"v","accept":false}}`
	if got := h.frame(); got != want {
		t.Fatalf("prompt = %s, want %s", got, want)
	}
}

func TestSessionIgnoresIllegalStateUpdate(t *testing.T) {
	h := startSession(t, quietConfig())
	handle := h.validate("lobby")

	handle.SetState(core.Init())
	handle.Notify(core.TextEvent("a", "m"))
	if got := h.frame(); got != `{"id":"a","message":"m"}` {
		t.Fatalf("illegal transition must not be echoed, got %s", got)
	}

	// Still validated: text is forwarded.
	h.sendText(`{"Text":{"message":"still here"}}`)
	h.command(core.CommandChatMessage)
}

func TestSessionMalformedPackets(t *testing.T) {
	h := startSession(t, quietConfig())

	for _, input := range []string{`garbage`, `{"Shout":{}}`, `{"Register":{}}`} {
		h.sendText(input)
		if got := h.frame(); got != proto.MsgInvalidPacket {
			t.Fatalf("%s: unexpected reply %q", input, got)
		}
	}
	h.noCommand()
}

func TestSessionBinaryAndHeartbeatAreSilent(t *testing.T) {
	h := startSession(t, quietConfig())

	h.sendBinary([]byte{0x1, 0x2})
	h.sendText(`{"HEARTBEAT":"Ping"}`)
	h.sendText(`garbage`)
	if got := h.frame(); got != proto.MsgInvalidPacket {
		t.Fatalf("binary and heartbeat must produce no frames, got %q", got)
	}
	h.noCommand()
}

func TestSessionHeartbeatTimeout(t *testing.T) {
	cfg := quietConfig()
	cfg.HeartbeatInterval = 10 * time.Millisecond
	cfg.ClientTimeout = 40 * time.Millisecond
	h := startSession(t, cfg)

	select {
	case err := <-h.done:
		if !errors.Is(err, ErrHeartbeatTimeout) {
			t.Fatalf("expected ErrHeartbeatTimeout, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("session did not time out")
	}
	h.done <- nil // let cleanup observe termination

	if got := h.frame(); got != `{"HEARTBEAT":"Ping"}` {
		t.Fatalf("expected heartbeat probe, got %s", got)
	}

	cmd := h.command(core.CommandDisconnect)
	if cmd.ClientID != h.id || !cmd.FullDisconnect {
		t.Fatalf("unexpected disconnect: %+v", cmd)
	}
	h.noCommand()
}

func TestSessionTrafficKeepsAlive(t *testing.T) {
	cfg := quietConfig()
	cfg.HeartbeatInterval = 10 * time.Millisecond
	cfg.ClientTimeout = 60 * time.Millisecond
	h := startSession(t, cfg)

	deadline := time.Now().Add(250 * time.Millisecond)
	for time.Now().Before(deadline) {
		// Any text counts, even a malformed one.
		h.sendText(`not a packet`)
		select {
		case err := <-h.done:
			t.Fatalf("session ended while client was active: %v", err)
		case <-time.After(10 * time.Millisecond):
		}
	}
	h.noCommand()
}

func TestSessionTeardownOnTransportClose(t *testing.T) {
	h := startSession(t, quietConfig())
	h.validate("lobby")

	h.conn.Close()
	select {
	case err := <-h.done:
		if !errors.Is(err, io.EOF) {
			t.Fatalf("expected io.EOF, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("session did not stop")
	}
	h.done <- nil

	cmd := h.command(core.CommandDisconnect)
	if !cmd.FullDisconnect {
		t.Fatalf("teardown must fully disconnect")
	}
	h.noCommand()
}

func TestSessionSlowClientDroppedOnStateUpdate(t *testing.T) {
	cfg := quietConfig()
	cfg.OutboundSize = 1
	conn := newFakeConn()
	conn.blockAfter = 1 // the handshake goes through
	h := startSessionOn(t, cfg, conn)
	handle := h.register("lobby")

	handle.Notify(core.TextEvent("Server", "stuck on the wire"))
	select {
	case <-conn.stuck:
	case <-time.After(2 * time.Second):
		t.Fatal("writer never blocked")
	}

	// Fill the outbound queue. Each later frame is read only after the
	// previous one was handled.
	h.sendText(`{"Text":{"message":"too early"}}`)
	h.sendBinary([]byte{0x1})
	h.sendBinary([]byte{0x2})

	handle.SetState(core.Validated("lobby"))
	select {
	case err := <-h.done:
		if !errors.Is(err, ErrSlowClient) {
			t.Fatalf("expected ErrSlowClient, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("session kept a client that cannot receive its state")
	}
	h.done <- nil

	cmd := h.command(core.CommandDisconnect)
	if cmd.ClientID != h.id || !cmd.FullDisconnect {
		t.Fatalf("unexpected disconnect: %+v", cmd)
	}
}

func TestSessionStateAppliedBeforeLaterEvents(t *testing.T) {
	h := startSession(t, quietConfig())
	handle := h.register("lobby")

	// The registry assigns the state before it broadcasts the announcement.
	handle.SetState(core.Validated("lobby"))
	handle.Notify(core.TextEvent("Server", "welcome"))

	if got := h.frame(); got != `{"VALIDATED":"lobby"}` {
		t.Fatalf("state must reach the wire first, got %s", got)
	}
	if got := h.frame(); got != `{"id":"Server","message":"welcome"}` {
		t.Fatalf("unexpected frame %s", got)
	}
}
