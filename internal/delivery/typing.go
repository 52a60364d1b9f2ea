package delivery

import (
	"time"

	"messenger-service/internal/apperrors"
	"messenger-service/internal/models"
)

// Typing is a stateless relay for ephemeral typing signals. It never
// touches storage or presence; debouncing is client policy.
type Typing struct {
	pusher Pusher
}

// NewTyping constructs a Typing relay.
func NewTyping(pusher Pusher) *Typing {
	return &Typing{pusher: pusher}
}

// Relay pushes a typing start/stop signal to the counterpart's channel
// only. An offline counterpart silently receives nothing.
func (t *Typing) Relay(senderID int, senderName string, counterpartID int, isTyping bool) (models.TypingPayload, error) {
	if counterpartID == 0 {
		return models.TypingPayload{}, apperrors.New(apperrors.KindValidation, "counterpart id is required")
	}

	payload := models.TypingPayload{
		UserID:     senderID,
		UserName:   senderName,
		ReceiverID: counterpartID,
		IsTyping:   isTyping,
		Timestamp:  time.Now(),
	}

	eventType := models.EventTypingStart
	if !isTyping {
		eventType = models.EventTypingStop
	}
	t.pusher.Push(counterpartID, models.ServerEvent{Type: eventType, Data: payload})

	return payload, nil
}
