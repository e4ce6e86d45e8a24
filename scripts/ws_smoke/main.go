package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/coder/websocket"

	"github.com/vovakirdan/vouchchat-server/internal/proto"
)

func main() {
	if err := run(); err != nil {
		log.Printf("ws_smoke: %v", err)
		os.Exit(1)
	}
}

func run() error {
	addr := flag.String("addr", "ws://localhost:8080/ws", "WebSocket address")
	room := flag.String("room", "smoke", "room name; use an empty room to be admitted without vouching")
	validation := flag.String("validation", "smoke", "validation payload sent with Register")
	text := flag.String("text", "hello from smoke test", "message text to send")
	timeout := flag.Duration("timeout", 5*time.Second, "total timeout for the run")
	flag.Parse()

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, *addr, nil)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "bye")

	read := func() (proto.ServerFrame, error) {
		_, data, err := conn.Read(ctx)
		if err != nil {
			return proto.ServerFrame{}, fmt.Errorf("read: %w", err)
		}
		fmt.Printf("Received: %s\n", data)
		return proto.DecodeServerFrame(data), nil
	}
	send := func(data []byte, err error) error {
		if err != nil {
			return fmt.Errorf("encode: %w", err)
		}
		if err := conn.Write(ctx, websocket.MessageText, data); err != nil {
			return fmt.Errorf("send: %w", err)
		}
		return nil
	}

	if _, err := read(); err != nil {
		return err
	}
	if err := send(proto.EncodeRegister(*room, *validation)); err != nil {
		return err
	}

	for {
		frame, err := read()
		if err != nil {
			return err
		}
		switch frame.Kind {
		case proto.FrameState:
			switch frame.State {
			case proto.StateValidated:
				if err := send(proto.EncodeTextIn(*text)); err != nil {
					return err
				}
			case proto.StateAwaitingValidation:
				return fmt.Errorf("room %q is occupied; smoke test needs an empty room", *room)
			}
		case proto.FrameHeartbeat:
			if err := send(proto.EncodeHeartbeat(frame.Heartbeat)); err != nil {
				return err
			}
		case proto.FrameText:
			if frame.Text.Message == *text {
				fmt.Println("smoke test passed")
				return nil
			}
		}
	}
}
