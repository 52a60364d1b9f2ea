package main

import (
	"context"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"messenger-service/internal/auth"
	"messenger-service/internal/config"
	"messenger-service/internal/db"
	"messenger-service/internal/delivery"
	"messenger-service/internal/handlers"
	"messenger-service/internal/logging"
	"messenger-service/internal/middleware"
	"messenger-service/internal/observability"
	"messenger-service/internal/presence"
	"messenger-service/internal/repositories"
	"messenger-service/internal/ws"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger := logging.New(cfg.Log)

	shutdownTracing, err := observability.InitTracing(context.Background(), cfg.Trace.OTLPEndpoint, cfg.Server.Environment)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to init tracing")
	}
	defer shutdownTracing(context.Background())

	database, err := db.Connect(cfg.DB.DSN)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to db")
	}

	publisher := observability.NewPublisher(cfg.AMQP.URL, cfg.AMQP.Exchange)
	observability.SetPublisher(publisher)
	defer publisher.Close()

	userRepo := repositories.NewUserRepo(database)
	messageRepo := repositories.NewMessageRepo(database)

	resolver := auth.NewResolver(cfg.Auth.JWTSecret, userRepo)
	registry := presence.NewRegistry(userRepo, logger)

	hub := ws.NewHub()
	router := delivery.NewRouter(messageRepo, userRepo, registry, hub, logger)
	receipts := delivery.NewReceipts(messageRepo, registry, hub, logger)
	typing := delivery.NewTyping(hub)

	wsHandler := ws.NewHandler(hub, registry, resolver, router, receipts, typing, cfg.WS, logger)
	messageHandler := handlers.NewMessageHandler(messageRepo, userRepo, router, receipts, registry, logger)
	userHandler := handlers.NewUserHandler(userRepo, registry)

	if cfg.Server.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(otelgin.Middleware("messenger-service"))
	engine.Use(observability.HTTPMetricsMiddleware())

	engine.GET("/metrics", gin.WrapH(promhttp.Handler()))
	engine.GET("/ws", wsHandler.Handle)

	authMiddleware := middleware.AuthMiddleware(resolver)

	engine.GET("/users", authMiddleware, userHandler.ListUsers)
	engine.GET("/conversations", authMiddleware, messageHandler.ListConversations)
	engine.GET("/conversations/:user_id/messages", authMiddleware, messageHandler.GetConversationMessages)
	engine.POST("/conversations/:user_id/messages", authMiddleware, messageHandler.PostConversationMessage)
	engine.PUT("/conversations/:user_id/read", authMiddleware, messageHandler.MarkConversationRead)
	engine.PUT("/messages/:message_id/read", authMiddleware, messageHandler.MarkMessageRead)
	engine.DELETE("/messages/:message_id", authMiddleware, messageHandler.DeleteMessage)

	logger.Info().Str("port", cfg.Server.Port).Msg("messenger service listening")
	if err := engine.Run(":" + cfg.Server.Port); err != nil && err != http.ErrServerClosed {
		logger.Fatal().Err(err).Msg("server error")
	}
}
