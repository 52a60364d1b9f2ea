package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStatusRankIsMonotonic(t *testing.T) {
	assert.Less(t, StatusSent.Rank(), StatusDelivered.Rank())
	assert.Less(t, StatusDelivered.Rank(), StatusRead.Rank())
	assert.Equal(t, -1, MessageStatus("bogus").Rank())
}

func TestMessageTypeValid(t *testing.T) {
	for _, typ := range []MessageType{TypeText, TypeImage, TypeFile, TypeSystem} {
		assert.True(t, typ.Valid(), string(typ))
	}
	assert.False(t, MessageType("gif").Valid())
	assert.False(t, MessageType("").Valid())
}

func TestClientKindClosedSet(t *testing.T) {
	clientEvents := []EventType{
		EventHandshake, EventSendMessage, EventMarkRead, EventMarkConversation,
		EventTypingStart, EventTypingStop, EventOnlineUsers,
	}
	for _, evt := range clientEvents {
		assert.True(t, evt.ClientKind(), string(evt))
	}

	// Server-only kinds must never be accepted from a client.
	assert.False(t, EventNewMessage.ClientKind())
	assert.False(t, EventReadReceipt.ClientKind())
	assert.False(t, EventPresenceOnline.ClientKind())
	assert.False(t, EventError.ClientKind())
	assert.False(t, EventType("bogus").ClientKind())
}
