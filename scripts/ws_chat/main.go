package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/coder/websocket"

	"github.com/vovakirdan/vouchchat-server/internal/proto"
	"github.com/vovakirdan/vouchchat-server/internal/vouch"
)

func main() {
	if err := run(); err != nil {
		log.Printf("ws_chat: %v", err)
		os.Exit(1)
	}
}

func run() error {
	addr := flag.String("addr", "ws://localhost:8080/ws", "WebSocket address")
	room := flag.String("room", "general", "room to join")
	secret := flag.String("secret", "", "room secret used to vouch for peers")
	flag.Parse()

	if *secret == "" {
		return errors.New("-secret is required")
	}

	baseCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithCancel(baseCtx)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, *addr, nil)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "bye")

	_, data, err := conn.Read(ctx)
	if err != nil {
		return fmt.Errorf("read id: %w", err)
	}
	id := string(data)

	token, err := vouch.Token(*secret, id)
	if err != nil {
		return err
	}
	register, err := proto.EncodeRegister(*room, token)
	if err != nil {
		return fmt.Errorf("encode register: %w", err)
	}
	if err := conn.Write(ctx, websocket.MessageText, register); err != nil {
		return fmt.Errorf("send register: %w", err)
	}

	fmt.Printf("Connected to %s as %s, joining room %s\n", *addr, id, *room)
	fmt.Println("Type messages and press Enter to send. Ctrl+C to exit.")

	c := &client{conn: conn, id: id, secret: *secret}
	go func() {
		defer cancel()
		c.readLoop(ctx)
	}()

	c.writeLoop(ctx)

	stop()
	cancel()
	_ = conn.Close(websocket.StatusNormalClosure, "bye")
	return nil
}

type client struct {
	conn   *websocket.Conn
	id     string
	secret string
}

func (c *client) send(ctx context.Context, data []byte) {
	if err := c.conn.Write(ctx, websocket.MessageText, data); err != nil && !errors.Is(err, context.Canceled) {
		log.Printf("send: %v", err)
	}
}

func (c *client) readLoop(ctx context.Context) {
	for {
		_, data, err := c.conn.Read(ctx)
		if err != nil {
			// Treat expected shutdowns quietly.
			if errors.Is(err, context.Canceled) {
				return
			}
			switch websocket.CloseStatus(err) {
			case websocket.StatusNormalClosure, websocket.StatusGoingAway:
				return
			}
			log.Printf("read error: %v", err)
			return
		}

		frame := proto.DecodeServerFrame(data)
		switch frame.Kind {
		case proto.FrameState:
			if frame.Room != "" {
				fmt.Printf("* state %s(%s)\n", frame.State, frame.Room)
			} else {
				fmt.Printf("* state %s\n", frame.State)
			}
		case proto.FrameValidationRequest:
			c.vouch(ctx, frame.Validation)
		case proto.FrameHeartbeat:
			reply, err := proto.EncodeHeartbeat(frame.Heartbeat)
			if err != nil {
				log.Printf("encode heartbeat: %v", err)
				continue
			}
			c.send(ctx, reply)
		case proto.FrameText:
			fmt.Printf("%s: %s\n", frame.Text.ID, frame.Text.Message)
		default:
			fmt.Printf("! %s\n", frame.Plain)
		}
	}
}

// vouch accepts joiners whose token was made with the shared secret.
func (c *client) vouch(ctx context.Context, req proto.ValidationRequest) {
	if !vouch.Verify(c.secret, req.ID, req.Validation) {
		fmt.Printf("* ignoring join request from %s: bad token\n", req.ID)
		return
	}
	req.Accept = true
	reply, err := proto.EncodeValidationRequest(req)
	if err != nil {
		log.Printf("encode validation: %v", err)
		return
	}
	fmt.Printf("* vouching for %s\n", req.ID)
	c.send(ctx, reply)
}

func (c *client) writeLoop(ctx context.Context) {
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case line, ok := <-lines:
			if !ok {
				return
			}
			text := strings.TrimSpace(line)
			if text == "" {
				continue
			}

			payload, err := proto.EncodeTextIn(text)
			if err != nil {
				log.Printf("encode text: %v", err)
				return
			}
			if err := c.conn.Write(ctx, websocket.MessageText, payload); err != nil {
				log.Printf("send error: %v", err)
				return
			}
		}
	}
}
