package models

import (
	"encoding/json"
	"time"
)

// EventType enumerates every event kind on the realtime channel. The set is
// closed: the session dispatcher switches over these exhaustively and
// rejects anything else.
type EventType string

// Client-originated events.
const (
	EventHandshake        EventType = "handshake"
	EventSendMessage      EventType = "message:send"
	EventMarkRead         EventType = "message:read"
	EventMarkConversation EventType = "conversation:read"
	EventTypingStart      EventType = "typing:start"
	EventTypingStop       EventType = "typing:stop"
	EventOnlineUsers      EventType = "users:online"
)

// Server-originated events.
const (
	EventAuthenticated       EventType = "authenticated"
	EventAuthError           EventType = "auth:error"
	EventNewMessage          EventType = "message:new"
	EventMessageSent         EventType = "message:sent"
	EventReadReceipt         EventType = "message:read_receipt"
	EventReadSuccess         EventType = "message:read_success"
	EventConversationRead    EventType = "conversation:read"
	EventConversationSuccess EventType = "conversation:read_success"
	EventPresenceOnline      EventType = "presence:online"
	EventPresenceOffline     EventType = "presence:offline"
	EventOnlineUsersList     EventType = "users:online_list"
	EventError               EventType = "error"
)

// ClientKind reports whether t is an event kind clients may send.
func (t EventType) ClientKind() bool {
	switch t {
	case EventHandshake, EventSendMessage, EventMarkRead, EventMarkConversation,
		EventTypingStart, EventTypingStop, EventOnlineUsers:
		return true
	}
	return false
}

// ClientEvent is the decoded wire frame from a client. Data stays raw until
// the dispatcher knows the concrete payload type.
type ClientEvent struct {
	Type EventType       `json:"type"`
	Data json.RawMessage `json:"data"`
}

// ServerEvent is the wire frame pushed to clients.
type ServerEvent struct {
	Type EventType `json:"type"`
	Data any       `json:"data,omitempty"`
}

// HandshakePayload carries the bearer credential for in-band auth.
type HandshakePayload struct {
	Token string `json:"token"`
}

// SendMessagePayload is the client request to send a message.
type SendMessagePayload struct {
	ReceiverID int         `json:"receiver_id"`
	Content    string      `json:"content"`
	Type       MessageType `json:"message_type,omitempty"`
	ReplyTo    *int        `json:"reply_to,omitempty"`
}

// MarkReadPayload marks a single message read.
type MarkReadPayload struct {
	MessageID int `json:"message_id"`
}

// CounterpartPayload addresses a conversation peer (bulk read, typing).
type CounterpartPayload struct {
	CounterpartID int `json:"counterpart_id"`
}

// AuthenticatedPayload acks a successful handshake.
type AuthenticatedPayload struct {
	User   PublicUser `json:"user"`
	ConnID string     `json:"conn_id"`
}

// PresencePayload announces an online/offline transition to other sessions.
type PresencePayload struct {
	UserID   int        `json:"user_id"`
	Name     string     `json:"name"`
	Online   bool       `json:"online"`
	LastSeen *time.Time `json:"last_seen,omitempty"`
}

// TypingPayload relays an ephemeral typing signal. Never persisted.
type TypingPayload struct {
	UserID     int       `json:"user_id"`
	UserName   string    `json:"user_name"`
	ReceiverID int       `json:"receiver_id"`
	IsTyping   bool      `json:"is_typing"`
	Timestamp  time.Time `json:"timestamp"`
}

// ReadReceiptPayload notifies the original sender that one message was read.
type ReadReceiptPayload struct {
	MessageID  int       `json:"message_id"`
	ReaderID   int       `json:"reader_id"`
	ReaderName string    `json:"reader_name"`
	ReadAt     time.Time `json:"read_at"`
}

// ConversationReadPayload notifies the counterpart of a bulk read.
type ConversationReadPayload struct {
	CounterpartID int       `json:"counterpart_id"`
	ReaderID      int       `json:"reader_id"`
	ReaderName    string    `json:"reader_name"`
	ReadAt        time.Time `json:"read_at"`
	Count         int       `json:"count"`
}

// OnlineUsersPayload lists currently online users.
type OnlineUsersPayload struct {
	Users []PublicUser `json:"users"`
	Count int          `json:"count"`
}

// ErrorPayload is the typed error event delivered only to the originating
// session. Echo carries the client's original request for optimistic-UI
// reconciliation on validation failures.
type ErrorPayload struct {
	Code    string          `json:"code"`
	Message string          `json:"message"`
	Echo    json.RawMessage `json:"echo,omitempty"`
}
