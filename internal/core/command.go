package core

// CommandKind describes what a session asks the registry to do.
type CommandKind int

const (
	// CommandRegister asks to join a room, switching rooms if needed.
	CommandRegister CommandKind = iota
	// CommandValidate carries a peer's answer to a pending join.
	CommandValidate
	// CommandChatMessage delivers chat text to the sender's room.
	CommandChatMessage
	// CommandDisconnect leaves the current room and optionally forgets the client.
	CommandDisconnect
	// commandSnapshot is a read-only query answered on Command.reply.
	commandSnapshot
)

func (k CommandKind) String() string {
	switch k {
	case CommandRegister:
		return "register"
	case CommandValidate:
		return "validate"
	case CommandChatMessage:
		return "chat_message"
	case CommandDisconnect:
		return "disconnect"
	case commandSnapshot:
		return "snapshot"
	default:
		return "unknown"
	}
}

// Command is a request sent from a session into the registry mailbox.
//
// Field use per kind:
//   - CommandRegister: ClientID, Room, Validation, Handle.
//   - CommandValidate: ClientID (the joining client), From (the voucher), Room, Validation, Accept.
//   - CommandChatMessage: ClientID, Room, Text.
//   - CommandDisconnect: ClientID, FullDisconnect.
type Command struct {
	Kind           CommandKind
	ClientID       string
	From           string
	Room           string
	Validation     string
	Accept         bool
	Text           string
	FullDisconnect bool
	Handle         Handle

	reply chan Snapshot
}

// RegisterCommand builds a join request.
func RegisterCommand(id, room, validation string, handle Handle) *Command {
	return &Command{Kind: CommandRegister, ClientID: id, Room: room, Validation: validation, Handle: handle}
}

// ValidateCommand builds a voucher's answer for the pending join of target.
func ValidateCommand(from, room, target, validation string, accept bool) *Command {
	return &Command{Kind: CommandValidate, From: from, Room: room, ClientID: target, Validation: validation, Accept: accept}
}

// ChatMessageCommand builds a chat message from id into room.
func ChatMessageCommand(id, room, text string) *Command {
	return &Command{Kind: CommandChatMessage, ClientID: id, Room: room, Text: text}
}

// DisconnectCommand builds a departure request.
func DisconnectCommand(id string, full bool) *Command {
	return &Command{Kind: CommandDisconnect, ClientID: id, FullDisconnect: full}
}
