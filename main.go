package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"chat-backend/internal/auth"
	"chat-backend/internal/config"
	"chat-backend/internal/db"
	"chat-backend/internal/handlers"
	"chat-backend/internal/ingest"
	"chat-backend/internal/middleware"
	"chat-backend/internal/models"
	"chat-backend/internal/observability"
	"chat-backend/internal/presence"
	"chat-backend/internal/queue"
	"chat-backend/internal/rabbitmq"
	"chat-backend/internal/reply"
	"chat-backend/internal/repositories"
	"chat-backend/internal/telemetry"
	"chat-backend/internal/ws"
)

const serviceName = "chat-backend"

func main() {
	cfg := config.Load()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := observability.SetupTracing(ctx, cfg.OTLPEndpoint, serviceName, cfg.Environment)
	if err != nil {
		log.Fatalf("failed to set up tracing: %v", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(shutdownCtx); err != nil {
			log.Printf("tracing shutdown: %v", err)
		}
	}()

	database, err := db.Connect(cfg.DBDSN)
	if err != nil {
		log.Fatalf("failed to connect to db: %v", err)
	}
	defer database.Close()

	publisher := rabbitmq.NewPublisher(cfg.AMQPURL, cfg.AMQPExchange)
	defer publisher.Close()
	observability.SetPublisher(publisher)

	auditEmitter := telemetry.NewAuditEmitter(publisher, "chat.audit", serviceName, cfg.Environment)

	userRepo := repositories.NewUserRepo(database)
	threadRepo := repositories.NewThreadRepo(database)
	messageRepo := repositories.NewMessageRepo(database)
	presenceRepo := repositories.NewPresenceRepo(database)

	bot, err := ensureBotUser(ctx, cfg, userRepo, presenceRepo)
	if err != nil {
		log.Fatalf("failed to ensure bot user: %v", err)
	}
	log.Printf("bot user ready: %s (%s)", bot.Username, bot.ID)

	registry := ws.NewRegistry()
	broadcaster := ws.NewBroadcaster(registry)
	tracker := presence.NewTracker(registry, presenceRepo, threadRepo, broadcaster)

	jobClient, err := queue.NewAsynqClient(cfg.RedisURL)
	if err != nil {
		log.Fatalf("failed to connect to redis: %v", err)
	}
	defer jobClient.Close()

	pipeline := ingest.NewPipeline(threadRepo, messageRepo, userRepo, tracker, broadcaster, jobClient)

	generator := reply.NewGeminiGenerator(cfg.GeminiAPIKey)
	replyJob := reply.NewJob(threadRepo, userRepo, messageRepo, generator, pipeline)

	jobServer, err := queue.NewAsynqServer(cfg.RedisURL, cfg.WorkerConcurrency)
	if err != nil {
		log.Fatalf("failed to set up job server: %v", err)
	}
	replyJob.Register(jobServer)
	go func() {
		if err := jobServer.Run(ctx); err != nil {
			log.Printf("job server stopped: %v", err)
		}
	}()

	tokens := auth.NewTokenManager(cfg.JWTSecret, cfg.TokenTTL)

	userHandler := handlers.NewUserHandler(userRepo, presenceRepo, threadRepo, pipeline, tokens)
	threadHandler := handlers.NewThreadHandler(threadRepo, userRepo)
	messageHandler := handlers.NewMessageHandler(threadRepo, messageRepo, pipeline)
	wsHandler := ws.NewHandler(registry, tracker, pipeline, userRepo, tokens)

	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Logger())
	router.Use(gin.Recovery())
	router.Use(otelgin.Middleware(serviceName))
	router.Use(observability.HTTPMetricsMiddleware())

	authMiddleware := middleware.AuthMiddleware(tokens)

	router.POST("/auth/register", userHandler.Register)
	router.POST("/auth/login", userHandler.Login)

	router.GET("/me", authMiddleware, userHandler.Me)
	router.GET("/users", authMiddleware, userHandler.ListUsers)
	router.GET("/users/:user_id/presence", authMiddleware, userHandler.GetPresence)

	router.GET("/threads", authMiddleware, threadHandler.ListThreads)
	router.POST("/threads", authMiddleware, threadHandler.CreateThread)
	router.GET("/threads/:thread_id/messages", authMiddleware, messageHandler.ListMessages)
	router.POST("/threads/:thread_id/messages", authMiddleware, messageHandler.PostMessage)

	router.GET("/ws/chat", wsHandler.Handle)

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	handlers.RegisterDebugRoutes(router, auditEmitter, cfg.DebugRoutes)

	server := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}

	go func() {
		log.Printf("listening on :%s", cfg.Port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("server error: %v", err)
		}
	}()

	<-ctx.Done()
	log.Printf("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("server shutdown: %v", err)
	}
}

// ensureBotUser makes sure the auto-reply bot exists before any traffic
// arrives. The bot has no password and cannot log in.
func ensureBotUser(ctx context.Context, cfg config.Config, users repositories.UserRepository, presences repositories.PresenceRepository) (models.User, error) {
	bot, err := users.GetBotUser(ctx)
	if err == nil {
		return bot, nil
	}
	if !errors.Is(err, repositories.ErrUserNotFound) {
		return models.User{}, err
	}

	bot, err = users.CreateUser(ctx, cfg.BotUsername, cfg.BotDisplayName, "", true)
	if err != nil {
		if errors.Is(err, repositories.ErrUsernameTaken) {
			return users.GetUserByUsername(ctx, cfg.BotUsername)
		}
		return models.User{}, err
	}
	if err := presences.EnsurePresence(ctx, bot.ID); err != nil {
		return models.User{}, err
	}
	return bot, nil
}
