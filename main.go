package main

import (
	"context"
	"log"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"messaging-service/internal/channels"
	"messaging-service/internal/config"
	"messaging-service/internal/db"
	"messaging-service/internal/delivery"
	"messaging-service/internal/events"
	"messaging-service/internal/groups"
	"messaging-service/internal/handlers"
	"messaging-service/internal/middleware"
	"messaging-service/internal/observability"
	"messaging-service/internal/rabbitmq"
	"messaging-service/internal/repositories"
	"messaging-service/internal/telemetry"
	"messaging-service/internal/ws"
)

const serviceName = "messaging-service"

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	ctx := context.Background()
	shutdownTracing, err := telemetry.InitTracing(ctx, serviceName, cfg.Environment, cfg.OTLPEndpoint)
	if err != nil {
		log.Fatalf("failed to init tracing: %v", err)
	}
	defer func() {
		if err := shutdownTracing(ctx); err != nil {
			log.Printf("tracing shutdown: %v", err)
		}
	}()

	database, err := db.Connect(cfg.DBDSN)
	if err != nil {
		log.Fatalf("failed to connect to db: %v", err)
	}

	auditPublisher := rabbitmq.NewPublisher(cfg.AMQPURL, cfg.AMQPExchange)
	defer auditPublisher.Close()
	log.Printf("audit publisher mode=%s", rabbitmq.PublisherMode(auditPublisher))
	audit := telemetry.NewAuditEmitter(auditPublisher, "audit.messaging", serviceName, cfg.Environment)

	if cfg.AMQPURL != "" {
		mirror, err := observability.NewAMQPPublisher(cfg.AMQPURL, cfg.AMQPExchange)
		if err != nil {
			log.Printf("event mirror disabled: %v", err)
		} else {
			defer mirror.Close()
			observability.SetPublisher(mirror)
		}
	}

	messageRepo := repositories.NewMessageRepo(database)
	groupRepo := repositories.NewGroupRepo(database)
	groupMessageRepo := repositories.NewGroupMessageRepo(database)
	userRepo := repositories.NewUserRepo(database)

	registry := channels.NewRegistry(ws.NewChannelAuthorizer(groupRepo))
	emitter := events.NewEmitter(registry)

	deliverySvc := delivery.NewService(messageRepo, userRepo, emitter)
	groupSvc := groups.NewService(groupRepo, groupMessageRepo, userRepo, emitter)

	messageHandler := handlers.NewMessageHandler(deliverySvc, audit)
	groupHandler := handlers.NewGroupHandler(groupSvc, audit)
	wsHandler := ws.NewHandler(registry, userRepo, cfg.JWTSecret)

	router := gin.Default()
	router.Use(gin.Recovery())
	router.Use(otelgin.Middleware(serviceName))
	router.Use(observability.HTTPMetricsMiddleware())

	auth := middleware.Auth(cfg.JWTSecret)

	router.POST("/messages", auth, messageHandler.Send)
	router.GET("/messages/pending", auth, messageHandler.PendingCount)
	router.GET("/conversations/:user_id", auth, messageHandler.Conversation)
	router.POST("/conversations/:user_id/delivered", auth, messageHandler.MarkDelivered)
	router.POST("/conversations/:user_id/read", auth, messageHandler.MarkRead)

	router.POST("/groups", auth, groupHandler.CreateGroup)
	router.GET("/groups", auth, groupHandler.ListGroups)
	router.GET("/groups/:group_id", auth, groupHandler.GetGroup)
	router.PUT("/groups/:group_id", auth, groupHandler.UpdateGroup)
	router.DELETE("/groups/:group_id", auth, groupHandler.DeleteGroup)
	router.POST("/groups/:group_id/join", auth, groupHandler.Join)
	router.POST("/groups/:group_id/leave", auth, groupHandler.Leave)
	router.GET("/groups/:group_id/members", auth, groupHandler.ListMembers)
	router.POST("/groups/:group_id/members", auth, groupHandler.AddMembers)
	router.DELETE("/groups/:group_id/members/:user_id", auth, groupHandler.RemoveMember)
	router.PUT("/groups/:group_id/members/:user_id/role", auth, groupHandler.UpdateRole)
	router.GET("/groups/:group_id/messages", auth, groupHandler.ListMessages)
	router.POST("/groups/:group_id/messages", auth, groupHandler.PostMessage)
	router.DELETE("/groups/:group_id/messages/:message_id", auth, groupHandler.DeleteMessage)

	router.GET("/ws", wsHandler.Handle)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	handlers.RegisterDebugRoutes(router, audit, cfg.DebugRoutes)

	if err := router.Run(":" + cfg.Port); err != nil {
		log.Fatalf("server error: %v", err)
	}
}
