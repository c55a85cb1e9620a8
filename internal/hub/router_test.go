package hub

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseCommand_Valid(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want Command
	}{
		{
			name: "join room",
			raw:  `{"type":"joinRoom","roomId":"event_42"}`,
			want: Command{Kind: CmdJoinRoom, RoomID: "event_42"},
		},
		{
			name: "leave room",
			raw:  `{"type":"leaveRoom","roomId":"event_42"}`,
			want: Command{Kind: CmdLeaveRoom, RoomID: "event_42"},
		},
		{
			name: "chat message",
			raw:  `{"type":"sendMessage","roomId":"event_42","message":"go team"}`,
			want: Command{Kind: CmdSendMessage, RoomID: "event_42", Message: "go team"},
		},
		{
			name: "hype",
			raw:  `{"type":"sendHype","targetUserId":"u2","amount":25}`,
			want: Command{Kind: CmdSendHype, TargetUserID: "u2", Amount: 25},
		},
		{
			name: "reaction",
			raw:  `{"type":"sendReaction","eventId":"1","reaction":"🔥"}`,
			want: Command{Kind: CmdSendReaction, EventID: "1", Reaction: "🔥"},
		},
		{
			name: "status",
			raw:  `{"type":"updateStatus","status":"at the game"}`,
			want: Command{Kind: CmdUpdateStatus, Status: "at the game"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cmd, err := ParseCommand([]byte(tt.raw))
			require.NoError(t, err)
			assert.Equal(t, tt.want, cmd)
		})
	}
}

func TestParseCommand_Invalid(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{"malformed JSON", `{"type":`},
		{"missing type", `{"roomId":"event_1"}`},
		{"unknown type", `{"type":"dance"}`},
		{"join without room", `{"type":"joinRoom"}`},
		{"message without room", `{"type":"sendMessage","message":"hi"}`},
		{"message without text", `{"type":"sendMessage","roomId":"event_1"}`},
		{"message with whitespace text", `{"type":"sendMessage","roomId":"event_1","message":"   "}`},
		{"hype without target", `{"type":"sendHype","amount":5}`},
		{"hype without amount", `{"type":"sendHype","targetUserId":"u2"}`},
		{"hype negative amount", `{"type":"sendHype","targetUserId":"u2","amount":-5}`},
		{"hype zero amount", `{"type":"sendHype","targetUserId":"u2","amount":0}`},
		{"hype fractional amount", `{"type":"sendHype","targetUserId":"u2","amount":2.5}`},
		{"hype non-numeric amount", `{"type":"sendHype","targetUserId":"u2","amount":"ten"}`},
		{"reaction without event", `{"type":"sendReaction","reaction":"🔥"}`},
		{"reaction without reaction", `{"type":"sendReaction","eventId":"1"}`},
		{"status without text", `{"type":"updateStatus","status":""}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseCommand([]byte(tt.raw))
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrInvalidPayload)
		})
	}
}

func TestReactionRoom(t *testing.T) {
	assert.Equal(t, "event_1", reactionRoom("1"))
	assert.Equal(t, "event_1", reactionRoom("event_1"), "already-prefixed IDs are not double-prefixed")
}
