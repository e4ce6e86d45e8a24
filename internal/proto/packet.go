// Package proto defines the JSON packets exchanged over a chat connection.
//
// Packets are externally tagged: a single-key object whose key names the
// variant, e.g. {"Register":{"room_id":"x","validation":"v"}}. Admission
// states use bare strings for unit variants ("CONNECTED") and a tagged object
// for {"VALIDATED":"room"}. Broadcast chat is a plain {"id","message"} object.
package proto

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Packet tags.
const (
	TagRegister          = "Register"
	TagValidationRequest = "ValidationRequest"
	TagText              = "Text"
	TagHeartbeat         = "HEARTBEAT"

	// HeartbeatPing is the conventional heartbeat payload.
	HeartbeatPing = "Ping"
)

// Admission state names on the wire.
const (
	StateInit               = "INIT"
	StateConnected          = "CONNECTED"
	StateAwaitingValidation = "AWAITING_VALIDATION"
	StateValidated          = "VALIDATED"
)

// Plain-text frames sent outside the tagged schema.
const (
	MsgInvalidPacket       = "Invalid Packet Sent"
	MsgCrossRoomValidation = "Validation request cannot be given for another room."
	MsgUnvalidatedVouch    = "Validation requests can only be sent by already validated clients."
	MsgUnvalidatedText     = "You must be validated into a room to sent a text message."
	MsgPong                = "PONG!"
)

var (
	// ErrMalformedPacket reports a frame that is not a well-formed packet.
	ErrMalformedPacket = errors.New("malformed packet")
	// ErrUnknownPacket reports a packet with an unrecognised tag.
	ErrUnknownPacket = errors.New("unknown packet")
)

// PacketKind identifies a client packet variant.
type PacketKind int

const (
	PacketRegister PacketKind = iota
	PacketValidationRequest
	PacketText
	PacketHeartbeat
)

// Register asks to join a room.
type Register struct {
	RoomID     string `json:"room_id"`
	Validation string `json:"validation"`
}

// ValidationRequest travels both ways: the server asks an occupant to vouch,
// the occupant answers with Accept set.
type ValidationRequest struct {
	RoomID     string `json:"room_id"`
	ID         string `json:"id"`
	Validation string `json:"validation"`
	Accept     bool   `json:"accept"`
}

// TextIn is a chat message written by a client.
type TextIn struct {
	Message string `json:"message"`
}

// TextOut is a chat message broadcast by the server.
type TextOut struct {
	ID      string `json:"id"`
	Message string `json:"message"`
}

// ClientPacket is a decoded client frame. Only the field matching Kind is set.
type ClientPacket struct {
	Kind       PacketKind
	Register   Register
	Validation ValidationRequest
	Text       TextIn
	Heartbeat  string
}

// DecodeClientPacket parses one client text frame.
func DecodeClientPacket(data []byte) (ClientPacket, error) {
	tag, raw, err := splitTag(data)
	if err != nil {
		return ClientPacket{}, err
	}

	switch tag {
	case TagRegister:
		var w struct {
			RoomID     *string `json:"room_id"`
			Validation *string `json:"validation"`
		}
		if err := json.Unmarshal(raw, &w); err != nil {
			return ClientPacket{}, malformed(tag, err)
		}
		if w.RoomID == nil || w.Validation == nil {
			return ClientPacket{}, missingField(tag)
		}
		return ClientPacket{
			Kind:     PacketRegister,
			Register: Register{RoomID: *w.RoomID, Validation: *w.Validation},
		}, nil
	case TagValidationRequest:
		var w struct {
			RoomID     *string `json:"room_id"`
			ID         *string `json:"id"`
			Validation *string `json:"validation"`
			Accept     *bool   `json:"accept"`
		}
		if err := json.Unmarshal(raw, &w); err != nil {
			return ClientPacket{}, malformed(tag, err)
		}
		if w.RoomID == nil || w.ID == nil || w.Validation == nil || w.Accept == nil {
			return ClientPacket{}, missingField(tag)
		}
		return ClientPacket{
			Kind: PacketValidationRequest,
			Validation: ValidationRequest{
				RoomID:     *w.RoomID,
				ID:         *w.ID,
				Validation: *w.Validation,
				Accept:     *w.Accept,
			},
		}, nil
	case TagText:
		var w struct {
			Message *string `json:"message"`
		}
		if err := json.Unmarshal(raw, &w); err != nil {
			return ClientPacket{}, malformed(tag, err)
		}
		if w.Message == nil {
			return ClientPacket{}, missingField(tag)
		}
		return ClientPacket{Kind: PacketText, Text: TextIn{Message: *w.Message}}, nil
	case TagHeartbeat:
		var payload string
		if err := json.Unmarshal(raw, &payload); err != nil {
			return ClientPacket{}, malformed(tag, err)
		}
		return ClientPacket{Kind: PacketHeartbeat, Heartbeat: payload}, nil
	default:
		return ClientPacket{}, fmt.Errorf("%w: %q", ErrUnknownPacket, tag)
	}
}

// Encode wraps v under tag.
func Encode(tag string, v any) ([]byte, error) {
	return json.Marshal(map[string]any{tag: v})
}

// EncodeRegister builds a client Register packet.
func EncodeRegister(room, validation string) ([]byte, error) {
	return Encode(TagRegister, Register{RoomID: room, Validation: validation})
}

// EncodeValidationRequest builds a ValidationRequest packet.
func EncodeValidationRequest(req ValidationRequest) ([]byte, error) {
	return Encode(TagValidationRequest, req)
}

// EncodeTextIn builds a client chat packet.
func EncodeTextIn(message string) ([]byte, error) {
	return Encode(TagText, TextIn{Message: message})
}

// EncodeHeartbeat builds a heartbeat packet.
func EncodeHeartbeat(payload string) ([]byte, error) {
	return Encode(TagHeartbeat, payload)
}

// EncodeTextOut builds a broadcast chat frame.
func EncodeTextOut(id, message string) ([]byte, error) {
	return json.Marshal(TextOut{ID: id, Message: message})
}

// EncodeState builds an admission state frame. room is used only for
// StateValidated.
func EncodeState(name, room string) ([]byte, error) {
	switch name {
	case StateInit, StateConnected, StateAwaitingValidation:
		return json.Marshal(name)
	case StateValidated:
		return Encode(StateValidated, room)
	default:
		return nil, fmt.Errorf("encode state %q: %w", name, ErrUnknownPacket)
	}
}

func splitTag(data []byte) (string, json.RawMessage, error) {
	var env map[string]json.RawMessage
	if err := json.Unmarshal(data, &env); err != nil {
		return "", nil, fmt.Errorf("%w: %v", ErrMalformedPacket, err)
	}
	if len(env) != 1 {
		return "", nil, fmt.Errorf("%w: expected exactly one tag, got %d", ErrMalformedPacket, len(env))
	}
	for tag, raw := range env {
		return tag, raw, nil
	}
	return "", nil, ErrMalformedPacket
}

func malformed(tag string, err error) error {
	return fmt.Errorf("%w: %s: %v", ErrMalformedPacket, tag, err)
}

func missingField(tag string) error {
	return fmt.Errorf("%w: %s: missing field", ErrMalformedPacket, tag)
}
