package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"noteshare-chat/internal/chat"
	"noteshare-chat/internal/config"
	"noteshare-chat/internal/db"
	"noteshare-chat/internal/media"
	myMiddleware "noteshare-chat/internal/middleware"
	"noteshare-chat/internal/profile"
	"noteshare-chat/internal/user"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

func main() {
	// 1. Config
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("❌ Config: %v", err)
	}

	var zl *zap.Logger
	if cfg.Development {
		zl, err = zap.NewDevelopment()
	} else {
		zl, err = zap.NewProduction()
	}
	if err != nil {
		log.Fatalf("❌ Logger: %v", err)
	}
	defer zl.Sync()
	logger := zl.Sugar()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// 2. Platform layer: Postgres
	database, err := db.NewDatabase(cfg.DatabaseDSN)
	if err != nil {
		logger.Fatalw("connect postgres", "err", err)
	}
	logger.Info("✅ Connected to PostgreSQL")

	if err := database.AutoMigrate(); err != nil {
		logger.Fatalw("migrate", "err", err)
	}
	logger.Info("✅ Database schema initialized")

	// 3. Fan-out broker: Redis when configured, in-process otherwise
	var broker chat.Broker
	if cfg.RedisAddr != "" {
		redisClient := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		if _, err := redisClient.Ping(ctx).Result(); err != nil {
			logger.Fatalw("connect redis", "err", err)
		}
		logger.Info("✅ Connected to Redis")
		broker = chat.NewRedisBroker(redisClient, "chat-events")
	} else {
		logger.Info("⚠️ REDIS_ADDR not set, running single-node fan-out")
		broker = chat.NewLocalBroker()
	}

	// 4. Collaborators
	mediaStore, err := media.NewDiskStore(cfg.MediaDir, cfg.MediaBaseURL)
	if err != nil {
		logger.Fatalw("media store", "err", err)
	}

	userRepo := user.NewRepository(database.Conn)
	userService := user.NewService(userRepo, cfg.JWTSecret)
	userHandler := user.NewHandler(userService)

	profileRepo := profile.NewRepository(database.Conn)

	// 5. Chat core
	chatRepo := chat.NewRepository(database.Conn)
	hub := chat.NewHub(logger, chatRepo, broker)
	chatService := chat.NewService(chatRepo, profileRepo, mediaStore, hub, logger, cfg.StrictThreadRefs)
	chatHandler := chat.NewHandler(hub, chatService, logger)

	go hub.Run(ctx)
	go func() {
		if err := hub.Fanout(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Errorw("fanout stopped", "err", err)
		}
	}()

	authMiddleware := myMiddleware.NewAuthMiddleware(userService)

	// 6. Routes
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	// Public
	r.Post("/register", userHandler.Register)
	r.Post("/login", userHandler.Login)
	r.Handle("/metrics", promhttp.Handler())
	r.Handle("/media/*", http.StripPrefix("/media/", http.FileServer(http.Dir(mediaStore.Dir()))))

	// Protected
	r.Group(func(r chi.Router) {
		r.Use(authMiddleware.Handle)
		r.Get("/api/users/search", userHandler.SearchUsers)
		r.Get("/api/me", chatHandler.Me)

		// WebSocket (real-time)
		r.Get("/ws", chatHandler.ServeWs)

		r.Post("/api/chats", chatHandler.CreateChat)
		r.Get("/api/chats/{chatID}/messages", chatHandler.History)
		r.Get("/api/chats/{chatID}/participants", chatHandler.Participants)
		r.Post("/api/chats/{chatID}/messages", chatHandler.Send)
		r.Post("/api/chats/{chatID}/media", chatHandler.SendMedia)
		r.Post("/api/chats/{chatID}/read/{messageID}", chatHandler.MarkRead)
		r.Post("/api/chats/{chatID}/reply/{messageID}", chatHandler.Reply)
		r.Post("/api/chats/{chatID}/forward/{messageID}", chatHandler.Forward)
		r.Post("/api/messages/{messageID}/edit", chatHandler.Edit)
		r.Post("/api/messages/{messageID}/delete", chatHandler.Delete)
		r.Get("/api/messages/{messageID}/reads", chatHandler.Receipts)
	})

	srv := &http.Server{
		Addr:    cfg.Addr,
		Handler: r,
	}

	go func() {
		logger.Infof("🚀 Server starting on %s", cfg.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatalw("listen", "err", err)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Errorw("shutdown", "err", err)
	}
}
