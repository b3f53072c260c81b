package chat

import "encoding/json"

// Live channel event names. Client-sent and server-pushed share one
// namespace; the gateway echoes transient events (typing/delivered/seen)
// back out under the same name.
const (
	EventSendMessage = "send_message"
	EventNewMessage  = "new_message"
	EventTyping      = "typing"
	EventMarkRead    = "mark_read"
	EventReadUpdate  = "read_update"
	EventDelivered   = "delivered"
	EventSeen        = "seen"
	EventUserOnline  = "user_online"
	EventUserOffline = "user_offline"
)

// Frame is the wire format on the websocket, both directions.
type Frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Envelope travels over the broker between instances. ChatID 0 means
// broadcast to every connected client (presence events).
type Envelope struct {
	ChatID int64           `json:"chat_id"`
	Event  string          `json:"event"`
	Data   json.RawMessage `json:"data,omitempty"`
}

type PresencePayload struct {
	ProfileID int64 `json:"profile_id"`
}

type TypingPayload struct {
	ChatID    int64 `json:"chat_id"`
	ProfileID int64 `json:"profile_id"`
	Typing    bool  `json:"typing"`
}

type ReadUpdatePayload struct {
	ChatID    int64 `json:"chat_id"`
	ReaderID  int64 `json:"reader_id"`
	MessageID int64 `json:"message_id"`
}

type AckPayload struct {
	ChatID    int64 `json:"chat_id"`
	MessageID int64 `json:"message_id"`
	Delivered bool  `json:"delivered,omitempty"`
	Seen      bool  `json:"seen,omitempty"`
}

// Inbound payloads from the socket.

type sendMessageRequest struct {
	ChatID int64  `json:"chat_id"`
	Text   string `json:"text"`
}

type typingRequest struct {
	ChatID int64 `json:"chat_id"`
	Typing bool  `json:"typing"`
}

type markReadRequest struct {
	ChatID    int64 `json:"chat_id"`
	MessageID int64 `json:"message_id"`
}

type ackRequest struct {
	ChatID    int64 `json:"chat_id"`
	MessageID int64 `json:"message_id"`
}
