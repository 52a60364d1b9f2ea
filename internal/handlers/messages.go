package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"messenger-service/internal/apperrors"
	"messenger-service/internal/delivery"
	"messenger-service/internal/models"
	"messenger-service/internal/repositories"
)

const (
	defaultPageSize = 50
	maxPageSize     = 100
)

// Presence is the live-presence view the HTTP layer reads.
type Presence interface {
	IsOnline(userID int) bool
}

// MessageHandler serves the stateless request/response boundary over the
// same core components the realtime channel uses.
type MessageHandler struct {
	messages repositories.MessageRepository
	users    repositories.UserRepository
	router   *delivery.Router
	receipts *delivery.Receipts
	presence Presence
	logger   zerolog.Logger
}

// NewMessageHandler builds a MessageHandler.
func NewMessageHandler(messages repositories.MessageRepository, users repositories.UserRepository, router *delivery.Router, receipts *delivery.Receipts, presence Presence, logger zerolog.Logger) *MessageHandler {
	return &MessageHandler{
		messages: messages,
		users:    users,
		router:   router,
		receipts: receipts,
		presence: presence,
		logger:   logger,
	}
}

// ListConversations returns the caller's derived conversation summaries
// with unread counts, most recent first.
func (h *MessageHandler) ListConversations(c *gin.Context) {
	userID := c.GetInt("userID")

	summaries, err := h.messages.ListSummaries(c.Request.Context(), userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load conversations"})
		return
	}

	for i := range summaries {
		summaries[i].PeerOnline = h.presence.IsOnline(summaries[i].PeerID)
	}

	c.JSON(http.StatusOK, gin.H{
		"conversations": summaries,
		"total":         len(summaries),
	})
}

// GetConversationMessages returns one page of the conversation with the
// given peer, oldest first for display. Fetching also backfills the
// delivered status for messages that were sent while the caller was away.
func (h *MessageHandler) GetConversationMessages(c *gin.Context) {
	peerID, err := strconv.Atoi(c.Param("user_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid user id"})
		return
	}
	userID := c.GetInt("userID")

	if peerID == userID {
		c.JSON(http.StatusBadRequest, gin.H{"error": "cannot fetch conversation with yourself"})
		return
	}
	if _, err := h.users.GetUser(c.Request.Context(), peerID); err != nil {
		if errors.Is(err, repositories.ErrUserNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "user not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load user"})
		return
	}

	page, limit := paginationParams(c)
	msgs, total, err := h.messages.ListConversation(c.Request.Context(), userID, peerID, page, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load messages"})
		return
	}

	if _, err := h.messages.MarkConversationDelivered(c.Request.Context(), userID, peerID); err != nil {
		h.logger.Warn().Err(err).Int("user_id", userID).Int("peer_id", peerID).Msg("delivered backfill failed")
	}

	// Stored newest-first for paging, reversed for display.
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}

	totalPages := (total + limit - 1) / limit
	c.JSON(http.StatusOK, gin.H{
		"messages": msgs,
		"pagination": gin.H{
			"current_page":   page,
			"total_pages":    totalPages,
			"total_messages": total,
			"has_next_page":  page*limit < total,
		},
	})
}

// PostConversationMessage is the non-realtime send fallback. It runs the
// same delivery router as the socket path, live push included.
func (h *MessageHandler) PostConversationMessage(c *gin.Context) {
	peerID, err := strconv.Atoi(c.Param("user_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid user id"})
		return
	}
	userID := c.GetInt("userID")

	var req struct {
		Content string             `json:"content" binding:"required"`
		Type    models.MessageType `json:"message_type"`
		ReplyTo *int               `json:"reply_to"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	msg, err := h.router.Send(c.Request.Context(), userID, models.SendMessagePayload{
		ReceiverID: peerID,
		Content:    req.Content,
		Type:       req.Type,
		ReplyTo:    req.ReplyTo,
	})
	if err != nil {
		c.JSON(apperrors.HTTPStatus(err), gin.H{"error": apperrors.ClientMessage(err)})
		return
	}

	c.JSON(http.StatusCreated, msg)
}

// MarkMessageRead marks one message read for its receiver.
func (h *MessageHandler) MarkMessageRead(c *gin.Context) {
	messageID, err := strconv.Atoi(c.Param("message_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid message id"})
		return
	}

	reader := delivery.Reader{ID: c.GetInt("userID"), Name: c.GetString("userName")}
	receipt, err := h.receipts.MarkMessageRead(c.Request.Context(), reader, messageID)
	if err != nil {
		c.JSON(apperrors.HTTPStatus(err), gin.H{"error": apperrors.ClientMessage(err)})
		return
	}

	c.JSON(http.StatusOK, receipt)
}

// MarkConversationRead bulk-marks every unread message from the peer.
func (h *MessageHandler) MarkConversationRead(c *gin.Context) {
	peerID, err := strconv.Atoi(c.Param("user_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid user id"})
		return
	}

	reader := delivery.Reader{ID: c.GetInt("userID"), Name: c.GetString("userName")}
	receipt, err := h.receipts.MarkConversationRead(c.Request.Context(), reader, peerID)
	if err != nil {
		c.JSON(apperrors.HTTPStatus(err), gin.H{"error": apperrors.ClientMessage(err)})
		return
	}

	c.JSON(http.StatusOK, receipt)
}

// DeleteMessage soft-deletes a message for audit-retaining removal. Only
// the sender may delete; the record itself stays.
func (h *MessageHandler) DeleteMessage(c *gin.Context) {
	messageID, err := strconv.Atoi(c.Param("message_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid message id"})
		return
	}
	userID := c.GetInt("userID")

	if err := h.messages.SoftDeleteMessage(c.Request.Context(), messageID, userID); err != nil {
		if errors.Is(err, repositories.ErrMessageNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "message not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not delete message"})
		return
	}

	c.Status(http.StatusNoContent)
}

func paginationParams(c *gin.Context) (int, int) {
	page, err := strconv.Atoi(c.DefaultQuery("page", "1"))
	if err != nil || page < 1 {
		page = 1
	}
	limit, err := strconv.Atoi(c.DefaultQuery("limit", strconv.Itoa(defaultPageSize)))
	if err != nil || limit < 1 {
		limit = defaultPageSize
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}
	return page, limit
}
