package ws

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"messenger-service/internal/apperrors"
	"messenger-service/internal/delivery"
	"messenger-service/internal/models"
	"messenger-service/internal/observability"
)

// ConnInfo captures transport metadata for one connection.
type ConnInfo struct {
	ConnID      string
	DeviceID    string
	IP          string
	RequestID   string
	TraceID     string
	ConnectedAt time.Time
}

// Session owns one websocket connection. It starts unauthenticated, accepts
// an in-band handshake, and after binding to a user routes every event
// through the delivery components. All writes go through the buffered send
// channel owned by the write pump.
type Session struct {
	handler *Handler
	conn    *websocket.Conn
	info    ConnInfo
	send    chan []byte

	mu       sync.Mutex
	userID   int
	userName string
	closed   bool

	handshakeTimer *time.Timer
}

func newSession(h *Handler, conn *websocket.Conn, info ConnInfo) *Session {
	return &Session{
		handler: h,
		conn:    conn,
		info:    info,
		send:    make(chan []byte, h.cfg.SendBuffer),
	}
}

// UserID returns the bound user id, zero while unauthenticated.
func (s *Session) UserID() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.userID
}

func (s *Session) identity() (int, string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.userID, s.userName
}

func (s *Session) run() {
	observability.IncWSActive()
	observability.IncWSEvent("ws_connect")
	s.publishLifecycle("ws_connect", "")

	// Unauthenticated sessions may not idle forever.
	s.handshakeTimer = time.AfterFunc(s.handler.cfg.HandshakeTimeout, func() {
		if s.UserID() == 0 {
			s.handler.logger.Debug().Str("conn_id", s.info.ConnID).Msg("handshake timeout, closing session")
			s.conn.Close()
		}
	})

	go s.writePump()
	s.readPump()
}

func (s *Session) readPump() {
	var closeReason string
	defer func() {
		s.teardown(closeReason)
	}()

	s.conn.SetReadLimit(s.handler.cfg.MaxMessageSize)
	s.conn.SetReadDeadline(time.Now().Add(s.handler.cfg.PongWait))
	s.conn.SetPongHandler(func(string) error {
		s.conn.SetReadDeadline(time.Now().Add(s.handler.cfg.PongWait))
		return nil
	})

	for {
		_, raw, err := s.conn.ReadMessage()
		if err != nil {
			closeReason = err.Error()
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				observability.IncWSEvent("ws_error")
				s.publishLifecycle("ws_error", closeReason)
			}
			return
		}
		s.dispatch(raw)
	}
}

func (s *Session) writePump() {
	ticker := time.NewTicker(s.handler.cfg.PingInterval)
	defer func() {
		ticker.Stop()
		s.conn.Close()
	}()

	for {
		select {
		case payload, ok := <-s.send:
			s.conn.SetWriteDeadline(time.Now().Add(s.handler.cfg.WriteWait))
			if !ok {
				s.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := s.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}
		case <-ticker.C:
			s.conn.SetWriteDeadline(time.Now().Add(s.handler.cfg.WriteWait))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// enqueue hands a marshaled frame to the write pump without blocking. A
// saturated buffer drops the frame for this session only.
func (s *Session) enqueue(payload []byte) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	select {
	case s.send <- payload:
		return true
	default:
		return false
	}
}

// dispatch decodes and routes one inbound frame. The recover boundary keeps
// a panicking handler from terminating the connection or leaking detail.
func (s *Session) dispatch(raw []byte) {
	defer func() {
		if r := recover(); r != nil {
			s.handler.logger.Error().Interface("panic", r).Str("conn_id", s.info.ConnID).Msg("event handler panic")
			s.sendError(apperrors.New(apperrors.KindInternal, "internal error"), nil)
		}
	}()

	var evt models.ClientEvent
	if err := json.Unmarshal(raw, &evt); err != nil {
		s.sendError(apperrors.New(apperrors.KindValidation, "malformed event"), nil)
		return
	}

	observability.IncWSEvent(string(evt.Type))

	if !evt.Type.ClientKind() {
		s.sendError(apperrors.New(apperrors.KindValidation, "unknown event type"), evt.Data)
		return
	}

	if evt.Type != models.EventHandshake && s.UserID() == 0 {
		s.sendError(apperrors.New(apperrors.KindAuthentication, "not authenticated"), nil)
		return
	}

	ctx := context.Background()

	switch evt.Type {
	case models.EventHandshake:
		s.handleHandshake(ctx, evt.Data)
	case models.EventSendMessage:
		s.handleSendMessage(ctx, evt.Data)
	case models.EventMarkRead:
		s.handleMarkRead(ctx, evt.Data)
	case models.EventMarkConversation:
		s.handleMarkConversation(ctx, evt.Data)
	case models.EventTypingStart:
		s.handleTyping(evt.Data, true)
	case models.EventTypingStop:
		s.handleTyping(evt.Data, false)
	case models.EventOnlineUsers:
		s.handleOnlineUsers()
	}
}

// handleHandshake resolves the credential and binds the session. A failed
// handshake leaves the session open so a flaky client can retry.
func (s *Session) handleHandshake(ctx context.Context, data json.RawMessage) {
	var payload models.HandshakePayload
	if err := json.Unmarshal(data, &payload); err != nil {
		s.sendEvent(models.EventAuthError, models.ErrorPayload{Code: string(apperrors.KindValidation), Message: "malformed handshake"})
		return
	}

	user, err := s.handler.resolver.Resolve(ctx, payload.Token)
	if err != nil {
		s.sendEvent(models.EventAuthError, models.ErrorPayload{
			Code:    string(apperrors.KindOf(err)),
			Message: apperrors.ClientMessage(err),
		})
		return
	}

	if s.handshakeTimer != nil {
		s.handshakeTimer.Stop()
	}

	s.mu.Lock()
	if s.userID != 0 && s.userID != user.ID {
		s.mu.Unlock()
		s.sendEvent(models.EventAuthError, models.ErrorPayload{
			Code:    string(apperrors.KindValidation),
			Message: "session already bound to another user",
		})
		return
	}
	rebind := s.userID != 0
	s.userID = user.ID
	s.userName = user.Name
	s.mu.Unlock()

	s.handler.registry.SetOnline(user.ID, user.Name, s.info.ConnID)
	if !rebind {
		s.handler.hub.Register(s)
	}

	s.sendEvent(models.EventAuthenticated, models.AuthenticatedPayload{
		User:   models.PublicUser{ID: user.ID, Name: user.Name, Online: true},
		ConnID: s.info.ConnID,
	})

	s.handler.hub.Broadcast(models.ServerEvent{
		Type: models.EventPresenceOnline,
		Data: models.PresencePayload{UserID: user.ID, Name: user.Name, Online: true},
	}, user.ID)

	_ = observability.PublishEvent(ctx, observability.RoutePresenceEvents, observability.EventEnvelope{
		EventType: "chat_events",
		EventName: "presence_online",
		Payload:   map[string]interface{}{"user_id": user.ID, "conn_id": s.info.ConnID},
	}, observability.BuildHeaders(s.info.RequestID, s.info.TraceID))

	s.handler.logger.Info().Int("user_id", user.ID).Str("conn_id", s.info.ConnID).Msg("session authenticated")
}

func (s *Session) handleSendMessage(ctx context.Context, data json.RawMessage) {
	var payload models.SendMessagePayload
	if err := json.Unmarshal(data, &payload); err != nil {
		s.sendError(apperrors.New(apperrors.KindValidation, "malformed send request"), data)
		return
	}

	senderID, _ := s.identity()
	msg, err := s.handler.router.Send(ctx, senderID, payload)
	if err != nil {
		s.sendError(err, data)
		return
	}
	s.sendEvent(models.EventMessageSent, msg)
}

func (s *Session) handleMarkRead(ctx context.Context, data json.RawMessage) {
	var payload models.MarkReadPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		s.sendError(apperrors.New(apperrors.KindValidation, "malformed read request"), data)
		return
	}

	id, name := s.identity()
	receipt, err := s.handler.receipts.MarkMessageRead(ctx, delivery.Reader{ID: id, Name: name}, payload.MessageID)
	if err != nil {
		s.sendError(err, data)
		return
	}
	s.sendEvent(models.EventReadSuccess, receipt)
}

func (s *Session) handleMarkConversation(ctx context.Context, data json.RawMessage) {
	var payload models.CounterpartPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		s.sendError(apperrors.New(apperrors.KindValidation, "malformed read request"), data)
		return
	}

	id, name := s.identity()
	receipt, err := s.handler.receipts.MarkConversationRead(ctx, delivery.Reader{ID: id, Name: name}, payload.CounterpartID)
	if err != nil {
		s.sendError(err, data)
		return
	}
	s.sendEvent(models.EventConversationSuccess, receipt)
}

func (s *Session) handleTyping(data json.RawMessage, isTyping bool) {
	var payload models.CounterpartPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		s.sendError(apperrors.New(apperrors.KindValidation, "malformed typing signal"), data)
		return
	}

	id, name := s.identity()
	if _, err := s.handler.typing.Relay(id, name, payload.CounterpartID, isTyping); err != nil {
		s.sendError(err, data)
	}
}

func (s *Session) handleOnlineUsers() {
	entries := s.handler.registry.Snapshot()
	users := make([]models.PublicUser, 0, len(entries))
	for _, e := range entries {
		lastSeen := e.LastSeen
		users = append(users, models.PublicUser{ID: e.UserID, Name: e.Name, Online: true, LastSeen: &lastSeen})
	}
	s.sendEvent(models.EventOnlineUsersList, models.OnlineUsersPayload{Users: users, Count: len(users)})
}

// teardown runs exactly once when the read pump exits, for any reason.
func (s *Session) teardown(closeReason string) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	userID, userName := s.userID, s.userName
	s.mu.Unlock()

	s.handler.hub.Unregister(s)

	if userID != 0 {
		// A stale disconnect racing a fast reconnect applies nothing and
		// broadcasts nothing.
		if lastSeen, applied := s.handler.registry.SetOffline(userID, s.info.ConnID); applied {
			s.handler.hub.Broadcast(models.ServerEvent{
				Type: models.EventPresenceOffline,
				Data: models.PresencePayload{UserID: userID, Name: userName, Online: false, LastSeen: &lastSeen},
			}, userID)

			_ = observability.PublishEvent(context.Background(), observability.RoutePresenceEvents, observability.EventEnvelope{
				EventType: "chat_events",
				EventName: "presence_offline",
				Payload:   map[string]interface{}{"user_id": userID, "conn_id": s.info.ConnID},
			}, observability.BuildHeaders(s.info.RequestID, s.info.TraceID))
		}
	}

	close(s.send)
	s.conn.Close()

	observability.DecWSActive()
	observability.IncWSEvent("ws_disconnect")
	s.publishLifecycle("ws_disconnect", closeReason)

	s.handler.logger.Info().Int("user_id", userID).Str("conn_id", s.info.ConnID).Str("reason", closeReason).Msg("session closed")
}

func (s *Session) sendEvent(eventType models.EventType, data any) {
	payload, err := json.Marshal(models.ServerEvent{Type: eventType, Data: data})
	if err != nil {
		s.handler.logger.Error().Err(err).Str("event", string(eventType)).Msg("event marshal error")
		return
	}
	s.enqueue(payload)
}

// sendError delivers a typed error to this session only.
func (s *Session) sendError(err error, echo json.RawMessage) {
	s.sendEvent(models.EventError, models.ErrorPayload{
		Code:    string(apperrors.KindOf(err)),
		Message: apperrors.ClientMessage(err),
		Echo:    echo,
	})
}

func (s *Session) publishLifecycle(name, reason string) {
	userID, _ := s.identity()
	_ = observability.PublishEvent(context.Background(), observability.RouteWSEvents, observability.EventEnvelope{
		EventType: "ws_events",
		EventName: name,
		Payload: map[string]interface{}{
			"ws": map[string]interface{}{
				"event":       name,
				"conn_id":     s.info.ConnID,
				"duration_ms": time.Since(s.info.ConnectedAt).Milliseconds(),
				"reason":      reason,
			},
			"identity": map[string]interface{}{
				"user_id":   userID,
				"device_id": s.info.DeviceID,
				"ip":        s.info.IP,
			},
		},
	}, observability.BuildHeaders(s.info.RequestID, s.info.TraceID))
}
