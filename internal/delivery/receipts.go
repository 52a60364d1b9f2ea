package delivery

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"messenger-service/internal/apperrors"
	"messenger-service/internal/models"
	"messenger-service/internal/observability"
	"messenger-service/internal/repositories"
)

// Reader identifies the authenticated caller of a read transition.
type Reader struct {
	ID   int
	Name string
}

// Receipts owns the read transitions and receipt fan-out.
type Receipts struct {
	messages repositories.MessageRepository
	presence Presence
	pusher   Pusher
	logger   zerolog.Logger
}

// NewReceipts constructs Receipts.
func NewReceipts(messages repositories.MessageRepository, presence Presence, pusher Pusher, logger zerolog.Logger) *Receipts {
	return &Receipts{
		messages: messages,
		presence: presence,
		pusher:   pusher,
		logger:   logger,
	}
}

// MarkMessageRead transitions one message to read for its receiver.
// Idempotent: an already-read message affects zero rows and emits no
// receipt, but the caller still gets a success payload.
func (r *Receipts) MarkMessageRead(ctx context.Context, reader Reader, messageID int) (models.ReadReceiptPayload, error) {
	if messageID == 0 {
		return models.ReadReceiptPayload{}, apperrors.New(apperrors.KindValidation, "message id is required")
	}

	msg, err := r.messages.GetMessage(ctx, messageID)
	if err != nil {
		if errors.Is(err, repositories.ErrMessageNotFound) {
			return models.ReadReceiptPayload{}, apperrors.New(apperrors.KindNotFound, "message not found")
		}
		return models.ReadReceiptPayload{}, apperrors.Wrap(apperrors.KindTransient, "message lookup failed", err)
	}

	if msg.ReceiverID != reader.ID {
		return models.ReadReceiptPayload{}, apperrors.New(apperrors.KindAuthorization, "only the receiver can mark a message read")
	}

	affected, err := r.messages.MarkRead(ctx, messageID, reader.ID)
	if err != nil {
		return models.ReadReceiptPayload{}, apperrors.Wrap(apperrors.KindTransient, "failed to update message status", err)
	}

	receipt := models.ReadReceiptPayload{
		MessageID:  messageID,
		ReaderID:   reader.ID,
		ReaderName: reader.Name,
		ReadAt:     time.Now(),
	}

	if affected > 0 {
		observability.IncMessage(string(models.StatusRead))
		if r.presence.IsOnline(msg.SenderID) {
			r.pusher.Push(msg.SenderID, models.ServerEvent{Type: models.EventReadReceipt, Data: receipt})
		}
		_ = observability.PublishEvent(ctx, observability.RouteMessageEvents, observability.EventEnvelope{
			EventType: "chat_events",
			EventName: "message_read",
			Payload: map[string]interface{}{
				"message_id": messageID,
				"reader_id":  reader.ID,
				"sender_id":  msg.SenderID,
			},
		}, nil)
	}

	return receipt, nil
}

// MarkConversationRead transitions every sent/delivered message from
// counterpartID to the reader in one atomic store operation and notifies
// the counterpart once when anything changed.
func (r *Receipts) MarkConversationRead(ctx context.Context, reader Reader, counterpartID int) (models.ConversationReadPayload, error) {
	if counterpartID == 0 {
		return models.ConversationReadPayload{}, apperrors.New(apperrors.KindValidation, "counterpart id is required")
	}

	affected, err := r.messages.MarkConversationRead(ctx, reader.ID, counterpartID)
	if err != nil {
		return models.ConversationReadPayload{}, apperrors.Wrap(apperrors.KindTransient, "failed to update conversation", err)
	}

	receipt := models.ConversationReadPayload{
		CounterpartID: counterpartID,
		ReaderID:      reader.ID,
		ReaderName:    reader.Name,
		ReadAt:        time.Now(),
		Count:         int(affected),
	}

	if affected > 0 {
		if r.presence.IsOnline(counterpartID) {
			r.pusher.Push(counterpartID, models.ServerEvent{Type: models.EventConversationRead, Data: receipt})
		}
		_ = observability.PublishEvent(ctx, observability.RouteMessageEvents, observability.EventEnvelope{
			EventType: "chat_events",
			EventName: "conversation_read",
			Payload: map[string]interface{}{
				"counterpart_id": counterpartID,
				"reader_id":      reader.ID,
				"count":          affected,
			},
		}, nil)
	}

	return receipt, nil
}
