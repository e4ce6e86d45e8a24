package session

import (
	"github.com/vovakirdan/vouchchat-server/internal/core"
	"github.com/vovakirdan/vouchchat-server/internal/proto"
)

// dispatch applies one client packet against the current admission state.
func (s *Session) dispatch(pkt proto.ClientPacket) {
	switch pkt.Kind {
	case proto.PacketRegister:
		s.submit(core.RegisterCommand(s.id, pkt.Register.RoomID, pkt.Register.Validation, s.handle))
	case proto.PacketValidationRequest:
		room, ok := s.state.ValidatedRoom()
		if !ok {
			s.protocolError("unvalidated_vouch", proto.MsgUnvalidatedVouch)
			return
		}
		if room != pkt.Validation.RoomID {
			s.protocolError("cross_room_validation", proto.MsgCrossRoomValidation)
			return
		}
		v := pkt.Validation
		s.submit(core.ValidateCommand(s.id, v.RoomID, v.ID, v.Validation, v.Accept))
	case proto.PacketText:
		room, ok := s.state.ValidatedRoom()
		if !ok {
			s.protocolError("unvalidated_text", proto.MsgUnvalidatedText)
			return
		}
		s.submit(core.ChatMessageCommand(s.id, room, pkt.Text.Message))
	case proto.PacketHeartbeat:
		// Liveness was recorded when the frame arrived.
	}
}

// applyState adopts an admission state from the registry and echoes it. The
// echo is never dropped: a client that cannot take it is disconnected.
func (s *Session) applyState(st core.State) error {
	if !s.state.CanTransition(st) {
		s.log.Warn().
			Str("from", s.state.String()).
			Str("to", st.String()).
			Msg("illegal state transition ignored")
		return nil
	}
	s.state = st
	data, err := encodeState(st)
	if err != nil {
		s.log.Error().Err(err).Msg("encode state")
		return nil
	}
	if !s.send(string(data)) {
		return ErrSlowClient
	}
	return nil
}

func (s *Session) applyPendingState() error {
	select {
	case st := <-s.mailbox.State:
		return s.applyState(st)
	default:
		return nil
	}
}

// handleEvent writes a registry notification to the wire.
func (s *Session) handleEvent(ev *core.Event) {
	switch ev.Kind {
	case core.EventValidationRequest:
		// Only admitted occupants may vouch; drop prompts that raced a room switch.
		if _, ok := s.state.ValidatedRoom(); !ok || ev.Validation == nil {
			return
		}
		s.sendPacket(proto.EncodeValidationRequest(proto.ValidationRequest{
			RoomID:     ev.Validation.Room,
			ID:         ev.Validation.ClientID,
			Validation: ev.Validation.Validation,
			Accept:     false,
		}))
	case core.EventText:
		if ev.Text == nil {
			return
		}
		s.sendPacket(proto.EncodeTextOut(ev.Text.From, ev.Text.Message))
	}
}

func encodeState(state core.State) ([]byte, error) {
	switch state.Phase {
	case core.PhaseInit:
		return proto.EncodeState(proto.StateInit, "")
	case core.PhaseConnected:
		return proto.EncodeState(proto.StateConnected, "")
	case core.PhaseAwaitingValidation:
		return proto.EncodeState(proto.StateAwaitingValidation, "")
	default:
		return proto.EncodeState(proto.StateValidated, state.Room)
	}
}
