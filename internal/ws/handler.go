package ws

import (
	"crypto/rand"
	"encoding/hex"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"

	"messenger-service/internal/auth"
	"messenger-service/internal/config"
	"messenger-service/internal/delivery"
	"messenger-service/internal/observability"
	"messenger-service/internal/presence"
)

// Handler upgrades HTTP requests into connection sessions.
type Handler struct {
	hub      *Hub
	registry *presence.Registry
	resolver *auth.Resolver
	router   *delivery.Router
	receipts *delivery.Receipts
	typing   *delivery.Typing
	cfg      config.WSConfig
	logger   zerolog.Logger
}

// NewHandler constructs a Handler.
func NewHandler(hub *Hub, registry *presence.Registry, resolver *auth.Resolver, router *delivery.Router, receipts *delivery.Receipts, typing *delivery.Typing, cfg config.WSConfig, logger zerolog.Logger) *Handler {
	return &Handler{
		hub:      hub,
		registry: registry,
		resolver: resolver,
		router:   router,
		receipts: receipts,
		typing:   typing,
		cfg:      cfg,
		logger:   logger,
	}
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Handle upgrades the connection and runs the session. Authentication
// happens in-band via the handshake event, not at upgrade time.
func (h *Handler) Handle(c *gin.Context) {
	ctx, span := otel.Tracer("messenger-service/ws").Start(c.Request.Context(), "ws.connect")
	defer span.End()
	c.Request = c.Request.WithContext(ctx)

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		return
	}

	info := ConnInfo{
		ConnID:      newConnID(),
		DeviceID:    observability.DeviceIDFromRequest(c.Request),
		IP:          observability.IPFromRequest(c.Request),
		RequestID:   observability.RequestIDFromRequest(c.Request),
		TraceID:     span.SpanContext().TraceID().String(),
		ConnectedAt: time.Now(),
	}

	session := newSession(h, conn, info)
	go session.run()
}

func newConnID() string {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return ""
	}
	return hex.EncodeToString(buf)
}
