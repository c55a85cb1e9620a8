package hub

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
)

// Error taxonomy for inbound events. Per-event failures are reported
// back to the offending sender only and never terminate the connection.
var (
	ErrInvalidPayload   = errors.New("invalid payload")
	ErrCapacityExceeded = errors.New("capacity exceeded")
	ErrHubStopped       = errors.New("hub stopped")
)

// CommandKind enumerates the inbound event types a client may send.
type CommandKind string

const (
	CmdJoinRoom     CommandKind = "joinRoom"
	CmdLeaveRoom    CommandKind = "leaveRoom"
	CmdSendMessage  CommandKind = "sendMessage"
	CmdSendHype     CommandKind = "sendHype"
	CmdSendReaction CommandKind = "sendReaction"
	CmdUpdateStatus CommandKind = "updateStatus"
)

// Command is a validated inbound event. Only the fields relevant to
// Kind are populated.
type Command struct {
	Kind         CommandKind
	RoomID       string
	Message      string
	TargetUserID string
	Amount       int
	EventID      string
	Reaction     string
	Status       string
}

// inboundFrame is the superset wire shape of all inbound events.
type inboundFrame struct {
	Type         string   `json:"type"`
	RoomID       string   `json:"roomId"`
	Message      string   `json:"message"`
	TargetUserID string   `json:"targetUserId"`
	Amount       *float64 `json:"amount"`
	EventID      string   `json:"eventId"`
	Reaction     string   `json:"reaction"`
	Status       string   `json:"status"`
}

const (
	maxMessageLength = 2000
	maxRoomIDLength  = 128
	maxStatusLength  = 256
)

// ParseCommand decodes a raw inbound frame and validates the fields
// required by its kind. A failure is always ErrInvalidPayload; the
// caller reports it to the sender and keeps processing.
func ParseCommand(raw []byte) (Command, error) {
	var frame inboundFrame
	if err := json.Unmarshal(raw, &frame); err != nil {
		return Command{}, fmt.Errorf("%w: malformed JSON: %v", ErrInvalidPayload, err)
	}

	switch CommandKind(frame.Type) {
	case CmdJoinRoom, CmdLeaveRoom:
		if err := validateRoomID(frame.RoomID); err != nil {
			return Command{}, err
		}
		return Command{Kind: CommandKind(frame.Type), RoomID: frame.RoomID}, nil

	case CmdSendMessage:
		if err := validateRoomID(frame.RoomID); err != nil {
			return Command{}, err
		}
		if strings.TrimSpace(frame.Message) == "" {
			return Command{}, fmt.Errorf("%w: sendMessage requires a message", ErrInvalidPayload)
		}
		if len(frame.Message) > maxMessageLength {
			return Command{}, fmt.Errorf("%w: message exceeds %d characters", ErrInvalidPayload, maxMessageLength)
		}
		return Command{Kind: CmdSendMessage, RoomID: frame.RoomID, Message: frame.Message}, nil

	case CmdSendHype:
		if frame.TargetUserID == "" {
			return Command{}, fmt.Errorf("%w: sendHype requires a targetUserId", ErrInvalidPayload)
		}
		amount, err := validateAmount(frame.Amount)
		if err != nil {
			return Command{}, err
		}
		return Command{Kind: CmdSendHype, TargetUserID: frame.TargetUserID, Amount: amount}, nil

	case CmdSendReaction:
		if frame.EventID == "" {
			return Command{}, fmt.Errorf("%w: sendReaction requires an eventId", ErrInvalidPayload)
		}
		if frame.Reaction == "" {
			return Command{}, fmt.Errorf("%w: sendReaction requires a reaction", ErrInvalidPayload)
		}
		return Command{Kind: CmdSendReaction, EventID: frame.EventID, Reaction: frame.Reaction}, nil

	case CmdUpdateStatus:
		if strings.TrimSpace(frame.Status) == "" {
			return Command{}, fmt.Errorf("%w: updateStatus requires a status", ErrInvalidPayload)
		}
		if len(frame.Status) > maxStatusLength {
			return Command{}, fmt.Errorf("%w: status exceeds %d characters", ErrInvalidPayload, maxStatusLength)
		}
		return Command{Kind: CmdUpdateStatus, Status: frame.Status}, nil

	case "":
		return Command{}, fmt.Errorf("%w: missing event type", ErrInvalidPayload)
	default:
		return Command{}, fmt.Errorf("%w: unknown event type %q", ErrInvalidPayload, frame.Type)
	}
}

func validateRoomID(roomID string) error {
	if roomID == "" {
		return fmt.Errorf("%w: missing roomId", ErrInvalidPayload)
	}
	if len(roomID) > maxRoomIDLength {
		return fmt.Errorf("%w: roomId exceeds %d characters", ErrInvalidPayload, maxRoomIDLength)
	}
	return nil
}

// validateAmount rejects missing, non-finite, non-integral, and
// non-positive hype amounts. Invalid numeric input is a validation
// failure, never a silent coercion to zero.
func validateAmount(amount *float64) (int, error) {
	if amount == nil {
		return 0, fmt.Errorf("%w: sendHype requires an amount", ErrInvalidPayload)
	}
	v := *amount
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("%w: amount must be a finite number", ErrInvalidPayload)
	}
	if v <= 0 || v != math.Trunc(v) {
		return 0, fmt.Errorf("%w: amount must be a positive whole number", ErrInvalidPayload)
	}
	return int(v), nil
}

// reactionRoom derives the sub-room key for a reaction from the
// referenced event identifier, so reaction fanout is scoped without an
// explicit prior join.
func reactionRoom(eventID string) string {
	if strings.HasPrefix(eventID, "event_") {
		return eventID
	}
	return "event_" + eventID
}
