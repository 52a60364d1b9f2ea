package handlers

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"messenger-service/internal/delivery"
	"messenger-service/internal/mocks"
	"messenger-service/internal/models"
	"messenger-service/internal/repositories"
)

type handlerFixture struct {
	messages *mocks.MessageRepositoryMock
	users    *mocks.UserRepositoryMock
	pusher   *mocks.PusherMock
	online   map[int]bool
	engine   *gin.Engine
}

func newHandlerFixture(t *testing.T, userID int, userName string) *handlerFixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	f := &handlerFixture{
		messages: new(mocks.MessageRepositoryMock),
		users:    new(mocks.UserRepositoryMock),
		pusher:   new(mocks.PusherMock),
		online:   map[int]bool{},
	}
	presence := &mocks.PresenceStub{Online: f.online}
	router := delivery.NewRouter(f.messages, f.users, presence, f.pusher, zerolog.Nop())
	receipts := delivery.NewReceipts(f.messages, presence, f.pusher, zerolog.Nop())
	handler := NewMessageHandler(f.messages, f.users, router, receipts, presence, zerolog.Nop())

	engine := gin.New()
	engine.Use(func(c *gin.Context) {
		c.Set("userID", userID)
		c.Set("userName", userName)
		c.Next()
	})
	engine.GET("/conversations", handler.ListConversations)
	engine.GET("/conversations/:user_id/messages", handler.GetConversationMessages)
	engine.POST("/conversations/:user_id/messages", handler.PostConversationMessage)
	engine.PUT("/conversations/:user_id/read", handler.MarkConversationRead)
	engine.PUT("/messages/:message_id/read", handler.MarkMessageRead)
	engine.DELETE("/messages/:message_id", handler.DeleteMessage)

	f.engine = engine
	return f
}

func (f *handlerFixture) do(method, path string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	f.engine.ServeHTTP(rec, req)
	return rec
}

func TestListConversationsOverlaysPresence(t *testing.T) {
	f := newHandlerFixture(t, 1, "alice")
	f.online[2] = true

	f.messages.On("ListSummaries", mock.Anything, 1).Return([]models.ConversationSummary{
		{PeerID: 2, PeerName: "bob", UnreadCount: 3},
		{PeerID: 3, PeerName: "carol"},
	}, nil).Once()

	rec := f.do(http.MethodGet, "/conversations", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp struct {
		Conversations []models.ConversationSummary `json:"conversations"`
		Total         int                          `json:"total"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Conversations, 2)
	assert.True(t, resp.Conversations[0].PeerOnline)
	assert.False(t, resp.Conversations[1].PeerOnline)
	assert.Equal(t, 2, resp.Total)
}

func TestGetConversationMessagesReversesAndBackfills(t *testing.T) {
	f := newHandlerFixture(t, 1, "alice")

	f.users.On("GetUser", mock.Anything, 2).Return(models.User{ID: 2}, nil).Once()
	// Repository returns newest-first.
	f.messages.On("ListConversation", mock.Anything, 1, 2, 1, 50).Return([]models.Message{
		{ID: 12, Content: "second"},
		{ID: 11, Content: "first"},
	}, 2, nil).Once()
	f.messages.On("MarkConversationDelivered", mock.Anything, 1, 2).Return(int64(1), nil).Once()

	rec := f.do(http.MethodGet, "/conversations/2/messages", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp struct {
		Messages   []models.Message `json:"messages"`
		Pagination struct {
			CurrentPage   int  `json:"current_page"`
			TotalPages    int  `json:"total_pages"`
			TotalMessages int  `json:"total_messages"`
			HasNextPage   bool `json:"has_next_page"`
		} `json:"pagination"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Messages, 2)
	assert.Equal(t, 11, resp.Messages[0].ID)
	assert.Equal(t, 12, resp.Messages[1].ID)
	assert.Equal(t, 1, resp.Pagination.CurrentPage)
	assert.Equal(t, 2, resp.Pagination.TotalMessages)
	assert.False(t, resp.Pagination.HasNextPage)
	f.messages.AssertExpectations(t)
}

func TestGetConversationMessagesCapsLimit(t *testing.T) {
	f := newHandlerFixture(t, 1, "alice")

	f.users.On("GetUser", mock.Anything, 2).Return(models.User{ID: 2}, nil).Once()
	f.messages.On("ListConversation", mock.Anything, 1, 2, 3, 100).Return([]models.Message{}, 0, nil).Once()
	f.messages.On("MarkConversationDelivered", mock.Anything, 1, 2).Return(int64(0), nil).Once()

	rec := f.do(http.MethodGet, "/conversations/2/messages?page=3&limit=500", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	f.messages.AssertExpectations(t)
}

func TestGetConversationMessagesSelfIsRejected(t *testing.T) {
	f := newHandlerFixture(t, 1, "alice")

	rec := f.do(http.MethodGet, "/conversations/1/messages", nil)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	f.messages.AssertNotCalled(t, "ListConversation", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestGetConversationMessagesUnknownPeer(t *testing.T) {
	f := newHandlerFixture(t, 1, "alice")

	f.users.On("GetUser", mock.Anything, 9).Return(models.User{}, repositories.ErrUserNotFound).Once()

	rec := f.do(http.MethodGet, "/conversations/9/messages", nil)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestPostConversationMessageCreates(t *testing.T) {
	f := newHandlerFixture(t, 1, "alice")

	stored := models.Message{ID: 5, SenderID: 1, ReceiverID: 2, Content: "hello", Status: models.StatusSent}
	f.users.On("GetUser", mock.Anything, 2).Return(models.User{ID: 2}, nil).Once()
	f.messages.On("CreateMessage", mock.Anything, 1, 2, "hello", models.TypeText, (*int)(nil)).Return(stored, nil).Once()

	rec := f.do(http.MethodPost, "/conversations/2/messages", gin.H{"content": "hello"})

	require.Equal(t, http.StatusCreated, rec.Code)
	var msg models.Message
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &msg))
	assert.Equal(t, 5, msg.ID)
	assert.Equal(t, models.StatusSent, msg.Status)
}

func TestPostConversationMessageSelfIsRejected(t *testing.T) {
	f := newHandlerFixture(t, 1, "alice")

	f.users.On("GetUser", mock.Anything, 1).Return(models.User{ID: 1}, nil).Once()

	rec := f.do(http.MethodPost, "/conversations/1/messages", gin.H{"content": "hi"})

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	f.messages.AssertNotCalled(t, "CreateMessage", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestPostConversationMessageMissingContent(t *testing.T) {
	f := newHandlerFixture(t, 1, "alice")

	rec := f.do(http.MethodPost, "/conversations/2/messages", gin.H{})

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestMarkMessageReadEndpoint(t *testing.T) {
	f := newHandlerFixture(t, 2, "bob")

	f.messages.On("GetMessage", mock.Anything, 7).Return(models.Message{ID: 7, SenderID: 1, ReceiverID: 2}, nil).Once()
	f.messages.On("MarkRead", mock.Anything, 7, 2).Return(int64(1), nil).Once()

	rec := f.do(http.MethodPut, "/messages/7/read", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	var receipt models.ReadReceiptPayload
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &receipt))
	assert.Equal(t, 7, receipt.MessageID)
	assert.Equal(t, 2, receipt.ReaderID)
}

func TestMarkMessageReadForbiddenForNonReceiver(t *testing.T) {
	f := newHandlerFixture(t, 3, "carol")

	f.messages.On("GetMessage", mock.Anything, 7).Return(models.Message{ID: 7, SenderID: 1, ReceiverID: 2}, nil).Once()

	rec := f.do(http.MethodPut, "/messages/7/read", nil)

	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestMarkConversationReadEndpoint(t *testing.T) {
	f := newHandlerFixture(t, 2, "bob")

	f.messages.On("MarkConversationRead", mock.Anything, 2, 1).Return(int64(4), nil).Once()

	rec := f.do(http.MethodPut, "/conversations/1/read", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	var receipt models.ConversationReadPayload
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &receipt))
	assert.Equal(t, 4, receipt.Count)
}

func TestDeleteMessageSoftDeletes(t *testing.T) {
	f := newHandlerFixture(t, 1, "alice")

	f.messages.On("SoftDeleteMessage", mock.Anything, 7, 1).Return(nil).Once()

	rec := f.do(http.MethodDelete, "/messages/7", nil)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	f.messages.AssertExpectations(t)
}

func TestDeleteMessageUnknown(t *testing.T) {
	f := newHandlerFixture(t, 1, "alice")

	f.messages.On("SoftDeleteMessage", mock.Anything, 99, 1).Return(repositories.ErrMessageNotFound).Once()

	rec := f.do(http.MethodDelete, "/messages/99", nil)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}
