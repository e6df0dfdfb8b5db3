package chat

import (
	"fmt"
	"time"

	"github.com/tidwall/gjson"
)

// Inbound message types accepted from clients.
const (
	TypeRoomMessage   = "room_message"
	TypeDirectMessage = "direct_message"
)

// EnvelopeChatMessage is the type tag on every broadcast envelope.
const EnvelopeChatMessage = "chat_message"

// Inbound is a validated client payload.
type Inbound struct {
	Message     string
	Type        string
	RecipientID int64 // set only for direct messages
}

// ParseInbound validates a raw client payload. The only required field is
// "message"; "type" defaults to room_message, and direct messages must also
// carry a numeric "recipient_id". Validation failures are ErrMalformedInput.
func ParseInbound(raw []byte) (Inbound, error) {
	if !gjson.ValidBytes(raw) {
		return Inbound{}, fmt.Errorf("%w: payload is not valid JSON", ErrMalformedInput)
	}

	msg := gjson.GetBytes(raw, "message")
	if !msg.Exists() {
		return Inbound{}, fmt.Errorf("%w: missing required field 'message'", ErrMalformedInput)
	}

	in := Inbound{Message: msg.String(), Type: TypeRoomMessage}
	if typ := gjson.GetBytes(raw, "type"); typ.Exists() && typ.String() == TypeDirectMessage {
		in.Type = TypeDirectMessage
		recipient := gjson.GetBytes(raw, "recipient_id")
		if !recipient.Exists() || recipient.Type != gjson.Number {
			return Inbound{}, fmt.Errorf("%w: direct_message requires a numeric 'recipient_id'", ErrMalformedInput)
		}
		in.RecipientID = recipient.Int()
	}
	return in, nil
}

// BroadcastEnvelope is the server-to-group message shape. RecipientID is
// present only on direct messages.
type BroadcastEnvelope struct {
	Type            string `json:"type"`
	Message         string `json:"message"`
	UserID          int64  `json:"user_id"`
	Username        string `json:"username"`
	Timestamp       string `json:"timestamp"`
	IsDirectMessage bool   `json:"is_direct_message"`
	RecipientID     *int64 `json:"recipient_id,omitempty"`
}

// ErrorEnvelope is sent back to the originating connection only.
type ErrorEnvelope struct {
	Error string `json:"error"`
}

// FormatTimestamp renders a store-assigned timestamp the way clients expect
// it: ISO-8601 in UTC.
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}
