package session

import (
	"context"

	"github.com/vovakirdan/vouchchat-server/internal/core"
)

// FrameKind distinguishes transport data frames.
type FrameKind int

const (
	// FrameText carries one protocol packet.
	FrameText FrameKind = iota
	// FrameBinary is accepted and dropped.
	FrameBinary
)

// Frame is one inbound data frame.
type Frame struct {
	Kind FrameKind
	Data []byte
}

// Conn is the raw bidirectional message channel of one connection.
// Control frames (ping, pong, close) are handled by the implementation.
type Conn interface {
	// ReadFrame blocks until the next data frame or a transport error.
	ReadFrame() (Frame, error)
	// WriteText writes a single text frame.
	WriteText(ctx context.Context, text string) error
	// Close tears the connection down and unblocks ReadFrame.
	Close() error
}

// Registrar is the registry mailbox as seen by a session.
type Registrar interface {
	Submit(cmd *core.Command) bool
}
