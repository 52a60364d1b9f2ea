package repositories

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"

	"messenger-service/internal/models"
)

var ErrMessageNotFound = errors.New("message not found")

// MessageRepository is the core's adapter to durable message storage.
// Status transitions are guarded in SQL so they stay atomic and monotonic
// under concurrent calls.
type MessageRepository interface {
	CreateMessage(ctx context.Context, senderID, receiverID int, content string, msgType models.MessageType, replyTo *int) (models.Message, error)
	GetMessage(ctx context.Context, messageID int) (models.Message, error)
	MarkDelivered(ctx context.Context, messageID int) (bool, error)
	MarkRead(ctx context.Context, messageID, receiverID int) (int64, error)
	MarkConversationRead(ctx context.Context, receiverID, senderID int) (int64, error)
	MarkConversationDelivered(ctx context.Context, receiverID, senderID int) (int64, error)
	ListConversation(ctx context.Context, userID, peerID, page, limit int) ([]models.Message, int, error)
	ListSummaries(ctx context.Context, userID int) ([]models.ConversationSummary, error)
	SoftDeleteMessage(ctx context.Context, messageID, senderID int) error
}

// MessageRepo is a sqlx-backed repository.
type MessageRepo struct {
	db *sqlx.DB
}

// NewMessageRepo constructs MessageRepo.
func NewMessageRepo(db *sqlx.DB) *MessageRepo {
	return &MessageRepo{db: db}
}

const messageColumns = `id, sender_id, receiver_id, content, status, message_type, reply_to, edited_at, deleted_at, created_at`

// CreateMessage stores a new message with status sent.
func (r *MessageRepo) CreateMessage(ctx context.Context, senderID, receiverID int, content string, msgType models.MessageType, replyTo *int) (models.Message, error) {
	var msg models.Message
	err := r.db.QueryRowxContext(ctx,
		`INSERT INTO messages (sender_id, receiver_id, content, message_type, reply_to)
         VALUES ($1, $2, $3, $4, $5)
         RETURNING `+messageColumns,
		senderID, receiverID, content, msgType, replyTo).StructScan(&msg)
	return msg, err
}

// GetMessage retrieves a single message, soft-deleted ones included so
// authorization checks can still see them.
func (r *MessageRepo) GetMessage(ctx context.Context, messageID int) (models.Message, error) {
	var msg models.Message
	err := r.db.GetContext(ctx, &msg,
		`SELECT `+messageColumns+` FROM messages WHERE id=$1`, messageID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Message{}, ErrMessageNotFound
	}
	return msg, err
}

// MarkDelivered advances a single message sent -> delivered. Returns false
// when the message already moved past sent.
func (r *MessageRepo) MarkDelivered(ctx context.Context, messageID int) (bool, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE messages SET status='delivered' WHERE id=$1 AND status='sent'`, messageID)
	if err != nil {
		return false, err
	}
	count, err := res.RowsAffected()
	return count > 0, err
}

// MarkRead advances one message to read, but only for its receiver and only
// forward. Idempotent: an already-read message affects zero rows.
func (r *MessageRepo) MarkRead(ctx context.Context, messageID, receiverID int) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE messages SET status='read'
         WHERE id=$1 AND receiver_id=$2 AND status IN ('sent','delivered')`,
		messageID, receiverID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// MarkConversationRead advances every sent/delivered message from senderID
// to receiverID to read in one atomic statement.
func (r *MessageRepo) MarkConversationRead(ctx context.Context, receiverID, senderID int) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE messages SET status='read'
         WHERE sender_id=$1 AND receiver_id=$2 AND status IN ('sent','delivered')`,
		senderID, receiverID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// MarkConversationDelivered backfills sent -> delivered for messages
// addressed to receiverID from senderID, used when the receiver pulls
// history after having been offline.
func (r *MessageRepo) MarkConversationDelivered(ctx context.Context, receiverID, senderID int) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE messages SET status='delivered'
         WHERE sender_id=$1 AND receiver_id=$2 AND status='sent'`,
		senderID, receiverID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// ListConversation returns one page of the pair's non-deleted messages,
// newest first, plus the total count for pagination.
func (r *MessageRepo) ListConversation(ctx context.Context, userID, peerID, page, limit int) ([]models.Message, int, error) {
	if page < 1 {
		page = 1
	}
	offset := (page - 1) * limit

	var msgs []models.Message
	err := r.db.SelectContext(ctx, &msgs,
		`SELECT `+messageColumns+` FROM messages
         WHERE deleted_at IS NULL
           AND ((sender_id=$1 AND receiver_id=$2) OR (sender_id=$2 AND receiver_id=$1))
         ORDER BY created_at DESC, id DESC
         LIMIT $3 OFFSET $4`,
		userID, peerID, limit, offset)
	if err != nil {
		return nil, 0, err
	}

	var total int
	err = r.db.GetContext(ctx, &total,
		`SELECT COUNT(*) FROM messages
         WHERE deleted_at IS NULL
           AND ((sender_id=$1 AND receiver_id=$2) OR (sender_id=$2 AND receiver_id=$1))`,
		userID, peerID)
	return msgs, total, err
}

// ListSummaries derives the requester's conversation list: for each peer the
// most recent non-deleted message and the count of messages addressed to the
// requester with status <> read, ordered by last-message recency.
func (r *MessageRepo) ListSummaries(ctx context.Context, userID int) ([]models.ConversationSummary, error) {
	query := `
        WITH convo AS (
            SELECT m.*, CASE WHEN m.sender_id=$1 THEN m.receiver_id ELSE m.sender_id END AS peer_id
            FROM messages m
            WHERE (m.sender_id=$1 OR m.receiver_id=$1) AND m.deleted_at IS NULL
        ), latest AS (
            SELECT DISTINCT ON (peer_id) *
            FROM convo
            ORDER BY peer_id, created_at DESC, id DESC
        ), unread AS (
            SELECT peer_id, COUNT(*) AS unread_count
            FROM convo
            WHERE receiver_id=$1 AND status <> 'read'
            GROUP BY peer_id
        )
        SELECT l.peer_id, u.name AS peer_name, COALESCE(un.unread_count, 0) AS unread_count,
               l.id, l.sender_id, l.receiver_id, l.content, l.status, l.message_type,
               l.reply_to, l.edited_at, l.created_at
        FROM latest l
        JOIN users u ON u.id = l.peer_id
        LEFT JOIN unread un ON un.peer_id = l.peer_id
        ORDER BY l.created_at DESC, l.id DESC`

	rows, err := r.db.QueryxContext(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []models.ConversationSummary
	for rows.Next() {
		var s models.ConversationSummary
		var m models.Message
		if err := rows.Scan(&s.PeerID, &s.PeerName, &s.UnreadCount,
			&m.ID, &m.SenderID, &m.ReceiverID, &m.Content, &m.Status, &m.Type,
			&m.ReplyTo, &m.EditedAt, &m.CreatedAt); err != nil {
			return nil, err
		}
		s.LastMessage = m
		result = append(result, s)
	}
	return result, rows.Err()
}

// SoftDeleteMessage marks a message deleted without removing the record.
// Only the sender may soft-delete.
func (r *MessageRepo) SoftDeleteMessage(ctx context.Context, messageID, senderID int) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE messages SET deleted_at=NOW() WHERE id=$1 AND sender_id=$2 AND deleted_at IS NULL`,
		messageID, senderID)
	if err != nil {
		return err
	}
	count, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if count == 0 {
		return ErrMessageNotFound
	}
	return nil
}
