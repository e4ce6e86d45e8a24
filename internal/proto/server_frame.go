package proto

import (
	"bytes"
	"encoding/json"
)

// FrameKind classifies a frame received from the server.
type FrameKind int

const (
	// FramePlain is any non-enveloped text: the id handshake, protocol errors, PONG!.
	FramePlain FrameKind = iota
	FrameState
	FrameValidationRequest
	FrameHeartbeat
	FrameText
)

// ServerFrame is a decoded server frame, used by clients.
type ServerFrame struct {
	Kind       FrameKind
	State      string
	Room       string
	Validation ValidationRequest
	Heartbeat  string
	Text       TextOut
	Plain      string
}

// DecodeServerFrame classifies a server text frame. It never fails: anything
// that is not a known packet is returned as FramePlain.
func DecodeServerFrame(data []byte) ServerFrame {
	plain := ServerFrame{Kind: FramePlain, Plain: string(data)}
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return plain
	}

	switch trimmed[0] {
	case '"':
		var name string
		if err := json.Unmarshal(trimmed, &name); err != nil {
			return plain
		}
		switch name {
		case StateInit, StateConnected, StateAwaitingValidation:
			return ServerFrame{Kind: FrameState, State: name}
		}
		return plain
	case '{':
	default:
		return plain
	}

	var env map[string]json.RawMessage
	if err := json.Unmarshal(trimmed, &env); err != nil {
		return plain
	}
	if len(env) == 2 {
		if _, ok := env["id"]; ok {
			var text TextOut
			if err := json.Unmarshal(trimmed, &text); err == nil {
				return ServerFrame{Kind: FrameText, Text: text}
			}
		}
		return plain
	}
	if len(env) != 1 {
		return plain
	}

	for tag, raw := range env {
		switch tag {
		case StateValidated:
			var room string
			if err := json.Unmarshal(raw, &room); err == nil {
				return ServerFrame{Kind: FrameState, State: StateValidated, Room: room}
			}
		case TagValidationRequest:
			var req ValidationRequest
			if err := json.Unmarshal(raw, &req); err == nil {
				return ServerFrame{Kind: FrameValidationRequest, Validation: req}
			}
		case TagHeartbeat:
			var payload string
			if err := json.Unmarshal(raw, &payload); err == nil {
				return ServerFrame{Kind: FrameHeartbeat, Heartbeat: payload}
			}
		}
	}
	return plain
}
