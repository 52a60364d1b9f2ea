// Package delivery routes accepted messages to live connections and drives
// the sent -> delivered -> read state machine.
package delivery

import (
	"context"
	"errors"
	"strings"

	"github.com/rs/zerolog"

	"messenger-service/internal/apperrors"
	"messenger-service/internal/models"
	"messenger-service/internal/observability"
	"messenger-service/internal/repositories"
)

// Pusher enqueues an event onto a user's delivery channel. Absent or slow
// receivers never block the caller.
type Pusher interface {
	Push(userID int, event models.ServerEvent) bool
}

// Presence answers online lookups for routing decisions.
type Presence interface {
	IsOnline(userID int) bool
}

// Router validates, persists, and routes outbound messages.
type Router struct {
	messages repositories.MessageRepository
	users    repositories.UserRepository
	presence Presence
	pusher   Pusher
	logger   zerolog.Logger
}

// NewRouter constructs a Router.
func NewRouter(messages repositories.MessageRepository, users repositories.UserRepository, presence Presence, pusher Pusher, logger zerolog.Logger) *Router {
	return &Router{
		messages: messages,
		users:    users,
		presence: presence,
		pusher:   pusher,
		logger:   logger,
	}
}

// Send handles one send request from senderID. Validation runs before any
// storage write; on success the message is persisted as sent and, when the
// receiver is online, advanced to delivered before the push is enqueued so
// the pushed payload already carries the delivered status. The returned
// message holds whatever status was reached and acks the sender.
func (r *Router) Send(ctx context.Context, senderID int, req models.SendMessagePayload) (models.Message, error) {
	content := strings.TrimSpace(req.Content)
	if content == "" {
		return models.Message{}, apperrors.New(apperrors.KindValidation, "message content is required")
	}
	if len([]rune(content)) > models.MaxContentLength {
		return models.Message{}, apperrors.New(apperrors.KindValidation, "message content exceeds maximum length")
	}

	msgType := req.Type
	if msgType == "" {
		msgType = models.TypeText
	}
	if !msgType.Valid() {
		return models.Message{}, apperrors.New(apperrors.KindValidation, "unknown message type")
	}

	if _, err := r.users.GetUser(ctx, req.ReceiverID); err != nil {
		if errors.Is(err, repositories.ErrUserNotFound) {
			return models.Message{}, apperrors.New(apperrors.KindNotFound, "receiver not found")
		}
		return models.Message{}, apperrors.Wrap(apperrors.KindTransient, "receiver lookup failed", err)
	}

	if req.ReceiverID == senderID {
		return models.Message{}, apperrors.New(apperrors.KindValidation, "cannot send message to yourself")
	}

	msg, err := r.messages.CreateMessage(ctx, senderID, req.ReceiverID, content, msgType, req.ReplyTo)
	if err != nil {
		return models.Message{}, apperrors.Wrap(apperrors.KindTransient, "failed to store message", err)
	}
	observability.IncMessage(string(models.StatusSent))

	if r.presence.IsOnline(msg.ReceiverID) {
		applied, err := r.messages.MarkDelivered(ctx, msg.ID)
		if err != nil {
			// Push still happens with the persisted sent status; the
			// receiver discovers the message either way.
			r.logger.Warn().Err(err).Int("message_id", msg.ID).Msg("delivered transition failed")
		} else if applied {
			msg.Status = models.StatusDelivered
			observability.IncMessage(string(models.StatusDelivered))
		}
		r.pusher.Push(msg.ReceiverID, models.ServerEvent{Type: models.EventNewMessage, Data: msg})
	}

	_ = observability.PublishEvent(ctx, observability.RouteMessageEvents, observability.EventEnvelope{
		EventType: "chat_events",
		EventName: "message_sent",
		Payload: map[string]interface{}{
			"message_id":  msg.ID,
			"sender_id":   msg.SenderID,
			"receiver_id": msg.ReceiverID,
			"status":      msg.Status,
		},
	}, nil)

	return msg, nil
}
