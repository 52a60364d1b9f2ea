package models

import "time"

// MessageStatus is the delivery state of a message. Transitions are
// monotonic: sent -> delivered -> read, never backward.
type MessageStatus string

const (
	StatusSent      MessageStatus = "sent"
	StatusDelivered MessageStatus = "delivered"
	StatusRead      MessageStatus = "read"
)

// Rank orders statuses for monotonicity checks.
func (s MessageStatus) Rank() int {
	switch s {
	case StatusSent:
		return 0
	case StatusDelivered:
		return 1
	case StatusRead:
		return 2
	}
	return -1
}

// MessageType classifies message content.
type MessageType string

const (
	TypeText   MessageType = "text"
	TypeImage  MessageType = "image"
	TypeFile   MessageType = "file"
	TypeSystem MessageType = "system"
)

// Valid reports whether t is one of the known message types.
func (t MessageType) Valid() bool {
	switch t {
	case TypeText, TypeImage, TypeFile, TypeSystem:
		return true
	}
	return false
}

// MaxContentLength bounds message content size in characters.
const MaxContentLength = 2000

// Message represents a single message between two users.
type Message struct {
	ID         int           `db:"id" json:"id"`
	SenderID   int           `db:"sender_id" json:"sender_id"`
	ReceiverID int           `db:"receiver_id" json:"receiver_id"`
	Content    string        `db:"content" json:"content"`
	Status     MessageStatus `db:"status" json:"status"`
	Type       MessageType   `db:"message_type" json:"message_type"`
	ReplyTo    *int          `db:"reply_to" json:"reply_to,omitempty"`
	EditedAt   *time.Time    `db:"edited_at" json:"edited_at,omitempty"`
	DeletedAt  *time.Time    `db:"deleted_at" json:"deleted_at,omitempty"`
	CreatedAt  time.Time     `db:"created_at" json:"created_at"`
}

// ConversationSummary is the derived per-peer view: last message plus how
// many messages addressed to the requester are still unread. Never stored,
// recomputed per query.
type ConversationSummary struct {
	PeerID      int     `json:"peer_id"`
	PeerName    string  `json:"peer_name"`
	PeerOnline  bool    `json:"peer_online"`
	LastMessage Message `json:"last_message"`
	UnreadCount int     `json:"unread_count"`
}
