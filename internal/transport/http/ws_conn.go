package http

import (
	"context"
	"errors"
	"net"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/vovakirdan/vouchchat-server/internal/proto"
	"github.com/vovakirdan/vouchchat-server/internal/session"
)

// wsConn adapts a gorilla connection to session.Conn. Gorilla allows one
// concurrent writer, so text writes are serialised; the ping handler also
// writes from the reader goroutine.
type wsConn struct {
	conn         *websocket.Conn
	writeTimeout time.Duration
	writeMu      sync.Mutex
	closeOnce    sync.Once
}

func newWSConn(conn *websocket.Conn, maxMessageBytes int64, writeTimeout time.Duration) *wsConn {
	c := &wsConn{conn: conn, writeTimeout: writeTimeout}
	conn.SetReadLimit(maxMessageBytes)
	conn.SetPingHandler(c.handlePing)
	return c
}

func (c *wsConn) handlePing(appData string) error {
	deadline := time.Now().Add(c.writeTimeout)
	err := c.conn.WriteControl(websocket.PongMessage, []byte(appData), deadline)
	if err != nil && !errors.Is(err, websocket.ErrCloseSent) {
		var netErr net.Error
		if !errors.As(err, &netErr) || !netErr.Timeout() {
			return err
		}
	}
	return c.write(deadline, proto.MsgPong)
}

// ReadFrame returns the next text or binary message.
func (c *wsConn) ReadFrame() (session.Frame, error) {
	for {
		kind, data, err := c.conn.ReadMessage()
		if err != nil {
			return session.Frame{}, err
		}
		switch kind {
		case websocket.TextMessage:
			return session.Frame{Kind: session.FrameText, Data: data}, nil
		case websocket.BinaryMessage:
			return session.Frame{Kind: session.FrameBinary, Data: data}, nil
		}
	}
}

// WriteText writes one text message, bounded by the ctx deadline.
func (c *wsConn) WriteText(ctx context.Context, text string) error {
	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Now().Add(c.writeTimeout)
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return c.write(deadline, text)
}

func (c *wsConn) write(deadline time.Time, text string) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if err := c.conn.SetWriteDeadline(deadline); err != nil {
		return err
	}
	return c.conn.WriteMessage(websocket.TextMessage, []byte(text))
}

// Close sends a normal closure and drops the connection.
func (c *wsConn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "closing")
		_ = c.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
		err = c.conn.Close()
	})
	return err
}
