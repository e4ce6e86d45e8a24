// Package session runs the per-connection actor: it hands out the connection
// id, tracks the admission state, relays packets to and from the registry,
// and probes the client for liveness.
package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/vovakirdan/vouchchat-server/internal/core"
	"github.com/vovakirdan/vouchchat-server/internal/metrics"
	"github.com/vovakirdan/vouchchat-server/internal/proto"
)

var (
	// ErrHeartbeatTimeout is returned by Run when the client went silent.
	ErrHeartbeatTimeout = errors.New("heartbeat timeout")
	// ErrSlowClient is returned by Run when an admission state could not be
	// queued for the wire.
	ErrSlowClient = errors.New("slow client")
)

// Config tunes a session.
type Config struct {
	// HeartbeatInterval is how often a ping is written.
	HeartbeatInterval time.Duration
	// ClientTimeout is the silence after which the session ends. Must exceed HeartbeatInterval.
	ClientTimeout time.Duration
	// WriteTimeout bounds a single wire write.
	WriteTimeout time.Duration
	// MailboxSize buffers registry notifications.
	MailboxSize int
	// OutboundSize buffers frames waiting for the wire.
	OutboundSize int
}

// DefaultConfig gives the client five probes before it is dropped.
func DefaultConfig() Config {
	return Config{
		HeartbeatInterval: 6 * time.Second,
		ClientTimeout:     30 * time.Second,
		WriteTimeout:      10 * time.Second,
		MailboxSize:       64,
		OutboundSize:      64,
	}
}

// Session is the actor bound to one connection.
type Session struct {
	id       string
	conn     Conn
	registry Registrar
	cfg      Config
	log      zerolog.Logger
	metrics  *metrics.Metrics

	handle   core.Handle
	mailbox  core.Mailbox
	outbound chan string

	state    core.State
	lastSeen time.Time
}

// New builds a session for conn. logger and m may be nil.
func New(id string, conn Conn, registry Registrar, cfg Config, logger *zerolog.Logger, m *metrics.Metrics) *Session {
	def := DefaultConfig()
	if cfg.HeartbeatInterval <= 0 {
		cfg.HeartbeatInterval = def.HeartbeatInterval
	}
	if cfg.ClientTimeout <= 0 {
		cfg.ClientTimeout = def.ClientTimeout
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = def.WriteTimeout
	}
	if cfg.OutboundSize <= 0 {
		cfg.OutboundSize = def.OutboundSize
	}

	l := zerolog.Nop()
	if logger != nil {
		l = logger.With().Str("component", "session").Str("client_id", id).Logger()
	}

	handle, mailbox := core.NewMailbox(cfg.MailboxSize)
	return &Session{
		id:       id,
		conn:     conn,
		registry: registry,
		cfg:      cfg,
		log:      l,
		metrics:  m,
		handle:   handle,
		mailbox:  mailbox,
		outbound: make(chan string, cfg.OutboundSize),
		state:    core.Init(),
	}
}

// ID returns the connection identifier.
func (s *Session) ID() string {
	return s.id
}

// Run drives the session until the client leaves, times out, the transport
// fails, or ctx is cancelled. Whatever the cause, the registry receives a
// single full disconnect before Run returns.
func (s *Session) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	s.metrics.SessionOpened()
	defer s.metrics.SessionClosed()

	s.send(s.id)
	s.state = core.Connected()
	s.lastSeen = time.Now()

	frames := make(chan Frame)
	readErr := make(chan error, 1)
	writeErr := make(chan error, 1)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		s.readLoop(ctx, frames, readErr)
	}()
	go func() {
		defer wg.Done()
		s.writeLoop(ctx, writeErr)
	}()

	ticker := time.NewTicker(s.cfg.HeartbeatInterval)
	err := s.loop(ctx, ticker.C, frames, readErr, writeErr)
	ticker.Stop()

	if !s.registry.Submit(core.DisconnectCommand(s.id, true)) {
		s.log.Debug().Msg("registry stopped before disconnect")
	}

	cancel()
	if closeErr := s.conn.Close(); closeErr != nil {
		s.log.Debug().Err(closeErr).Msg("close connection")
	}
	wg.Wait()

	s.log.Debug().Err(err).Msg("session ended")
	return err
}

func (s *Session) loop(ctx context.Context, tick <-chan time.Time, frames <-chan Frame, readErr, writeErr <-chan error) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err := <-readErr:
			return err
		case err := <-writeErr:
			return err
		case frame := <-frames:
			s.handleFrame(frame)
		case st := <-s.mailbox.State:
			if err := s.applyState(st); err != nil {
				return err
			}
		case ev := <-s.mailbox.Events:
			// A state assigned before ev was queued must be applied first.
			if err := s.applyPendingState(); err != nil {
				return err
			}
			s.handleEvent(ev)
		case <-tick:
			if err := s.heartbeat(); err != nil {
				return err
			}
		}
	}
}

func (s *Session) heartbeat() error {
	s.sendPacket(proto.EncodeHeartbeat(proto.HeartbeatPing))
	if time.Since(s.lastSeen) > s.cfg.ClientTimeout {
		s.metrics.HeartbeatTimeout()
		s.log.Info().Dur("silence", time.Since(s.lastSeen)).Msg("client heartbeat timed out")
		return ErrHeartbeatTimeout
	}
	return nil
}

func (s *Session) handleFrame(frame Frame) {
	if frame.Kind != FrameText {
		return
	}
	// Any text frame proves the client is alive.
	s.lastSeen = time.Now()

	pkt, err := proto.DecodeClientPacket(frame.Data)
	if err != nil {
		s.log.Debug().Err(err).Msg("invalid packet")
		s.protocolError("malformed", proto.MsgInvalidPacket)
		return
	}
	s.dispatch(pkt)
}

func (s *Session) readLoop(ctx context.Context, frames chan<- Frame, errCh chan<- error) {
	for {
		frame, err := s.conn.ReadFrame()
		if err != nil {
			errCh <- err
			return
		}
		select {
		case frames <- frame:
		case <-ctx.Done():
			return
		}
	}
}

func (s *Session) writeLoop(ctx context.Context, errCh chan<- error) {
	for {
		select {
		case <-ctx.Done():
			return
		case text := <-s.outbound:
			wctx, cancel := context.WithTimeout(ctx, s.cfg.WriteTimeout)
			err := s.conn.WriteText(wctx, text)
			cancel()
			if err != nil {
				s.log.Warn().Err(err).Msg("write frame")
				errCh <- err
				return
			}
		}
	}
}

// send queues a frame for the writer without blocking the session loop.
func (s *Session) send(text string) bool {
	select {
	case s.outbound <- text:
		return true
	default:
		s.log.Warn().Msg("outbound queue full, frame dropped")
		return false
	}
}

func (s *Session) sendPacket(data []byte, err error) {
	if err != nil {
		s.log.Error().Err(err).Msg("encode packet")
		return
	}
	s.send(string(data))
}

func (s *Session) protocolError(reason, msg string) {
	s.metrics.ProtocolError(reason)
	s.send(msg)
}

func (s *Session) submit(cmd *core.Command) {
	if !s.registry.Submit(cmd) {
		s.log.Warn().Str("command", cmd.Kind.String()).Msg("registry stopped, command dropped")
	}
}
