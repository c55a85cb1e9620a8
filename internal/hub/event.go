package hub

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Outbound frame types.
const (
	FrameChatMessage  = "chatMessage"
	FrameHypeUpdate   = "hypeUpdate"
	FrameLiveActivity = "liveActivity"
	FrameError        = "error"
)

// Live activity sub-types carried inside a liveActivity frame.
const (
	ActivityRoomJoined = "room_joined"
	ActivityRoomLeft   = "room_left"
	ActivityHype       = "hype"
	ActivityReaction   = "reaction"
	ActivityStatus     = "status"
)

// Identity holds the handshake attributes of a connection. They are
// caller-supplied metadata (verification belongs to the auth service)
// and immutable for the lifetime of the connection.
type Identity struct {
	UserID   string `json:"userId"`
	UserName string `json:"userName"`
	UserRole string `json:"userRole,omitempty"`
	SchoolID string `json:"schoolId,omitempty"`
}

// Scope selects the audience of a fanout: a single room or every
// registered connection, optionally excluding the sender.
type Scope struct {
	Room          string // empty means global
	ExcludeSender bool
}

// Frame is the wire envelope for every outbound message.
type Frame struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// ChatMessage is delivered to every member of a room, sender included.
type ChatMessage struct {
	ID        string    `json:"id"`
	RoomID    string    `json:"roomId"`
	UserID    string    `json:"userId"`
	UserName  string    `json:"userName"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

// HypeUpdate announces a hype award to every connection.
type HypeUpdate struct {
	UserID    string    `json:"userId"`
	Amount    int       `json:"amount"`
	TotalHype int       `json:"totalHype"`
	Event     string    `json:"event"`
	FromUser  string    `json:"fromUser"`
	Timestamp time.Time `json:"timestamp"`
}

// LiveActivity is the generic activity feed event. Type is one of the
// Activity* constants.
type LiveActivity struct {
	ID        string            `json:"id"`
	Type      string            `json:"type"`
	Message   string            `json:"message"`
	UserID    string            `json:"userId"`
	UserName  string            `json:"userName"`
	Timestamp time.Time         `json:"timestamp"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// ErrorFrame is sent only to the sender of a rejected event. The
// connection stays open afterwards.
type ErrorFrame struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func encodeFrame(frameType string, payload any) ([]byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal %s payload: %w", frameType, err)
	}
	frame, err := json.Marshal(Frame{Type: frameType, Data: data})
	if err != nil {
		return nil, fmt.Errorf("marshal %s frame: %w", frameType, err)
	}
	return frame, nil
}

func newEventID() string {
	return uuid.NewString()
}
