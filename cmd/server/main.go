// Package main runs the classroom HTTP server with WebSocket fan-out and graceful shutdown.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/aura-classroom/backend/config"
	"github.com/aura-classroom/backend/internal/auth"
	"github.com/aura-classroom/backend/internal/egress"
	"github.com/aura-classroom/backend/internal/livekit"
	"github.com/aura-classroom/backend/internal/media"
	"github.com/aura-classroom/backend/internal/middleware"
	"github.com/aura-classroom/backend/internal/models"
	"github.com/aura-classroom/backend/internal/participants"
	"github.com/aura-classroom/backend/internal/realtime"
	"github.com/aura-classroom/backend/internal/recordings"
	"github.com/aura-classroom/backend/internal/rooms"
	"github.com/aura-classroom/backend/internal/tokens"
	"github.com/aura-classroom/backend/internal/webhook"
	"github.com/aura-classroom/backend/internal/worker"
	"github.com/aura-classroom/backend/internal/zego"
	"github.com/aura-classroom/backend/pkg/database"
	"github.com/aura-classroom/backend/pkg/queue"
	"github.com/aura-classroom/backend/pkg/redis"
	"github.com/aura-classroom/backend/pkg/response"
	"github.com/aura-classroom/backend/pkg/storage"
)

func main() {
	logger := newLogger()
	defer logger.Sync()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("load config", zap.Error(err))
	}
	if !cfg.LiveKit.Enabled() {
		logger.Fatal("LIVEKIT_URL, LIVEKIT_API_KEY and LIVEKIT_API_SECRET are required")
	}

	ctx := context.Background()
	pool, err := database.NewPostgresPool(ctx, cfg.Database.DSN(), database.PoolOptions{
		MaxConns:       int32(cfg.Database.MaxConns),
		ConnectTimeout: cfg.Database.QueryTimeout(),
	}, logger)
	if err != nil {
		logger.Fatal("database", zap.Error(err))
	}
	defer pool.Close()

	if err := database.Migrate(ctx, pool, logger); err != nil {
		logger.Fatal("migrate", zap.Error(err))
	}

	rdb, err := redis.NewClient(ctx, redis.Options{Addr: cfg.Redis.Addr, Password: cfg.Redis.Password, DB: cfg.Redis.DB}, logger)
	if err != nil {
		logger.Fatal("redis", zap.Error(err))
	}
	defer rdb.Close()

	var s3Client *storage.S3
	if cfg.Storage.Enabled() {
		s3Client, err = storage.NewS3(ctx, storage.S3Config{
			Endpoint:             cfg.Storage.Endpoint,
			Region:               cfg.Storage.Region,
			Bucket:               cfg.Storage.Bucket,
			AccessKeyID:          cfg.Storage.AccessKeyID,
			SecretAccessKey:      cfg.Storage.SecretAccessKey,
			ForcePathStyle:       cfg.Storage.ForcePathStyle,
			PresignExpireMinutes: cfg.Storage.PresignExpireMinutes,
		}, logger)
		if err != nil {
			logger.Warn("s3 disabled", zap.Error(err))
			s3Client = nil
		}
	}

	jwtService := auth.NewJWTService(cfg.JWT.Secret, cfg.JWT.ExpireHours)
	pubsub := realtime.NewRedisPubSub(rdb.Client, logger)
	hub := realtime.NewHub(logger, pubsub, pubsub)
	defer hub.Close()

	// Media plane
	mediaClient := livekit.NewClient(cfg.LiveKit.URL, cfg.LiveKit.APIKey, cfg.LiveKit.APISecret, cfg.LiveKit.CallTimeout(), logger)
	minter, clientURL, err := newMinter(cfg)
	if err != nil {
		logger.Fatal("credential minter", zap.Error(err))
	}

	// Stores
	authRepo := auth.NewRepository(pool)
	roomRepo := rooms.NewRepository(pool, rooms.WithTimeout(cfg.Database.QueryTimeout()))
	participantRepo := participants.NewRepository(pool, cfg.Database.QueryTimeout())

	// Recording
	var recorder rooms.Recorder
	var artifactQueue webhook.ArtifactQueue
	var artifactWorker *worker.ArtifactProcessor
	if s3Client != nil {
		recorder = egress.NewOrchestrator(mediaClient, roomRepo, egress.Config{
			Layout:     cfg.Recording.Layout,
			PathPrefix: cfg.Recording.PathPrefix,
			Sink: media.S3Sink{
				Endpoint:       cfg.Storage.Endpoint,
				Region:         cfg.Storage.Region,
				Bucket:         cfg.Storage.Bucket,
				AccessKey:      cfg.Storage.AccessKeyID,
				Secret:         cfg.Storage.SecretAccessKey,
				ForcePathStyle: cfg.Storage.ForcePathStyle,
			},
		}, logger)
		jobQueue := queue.NewQueue(rdb.Client, logger)
		artifactQueue = jobQueue
		artifactWorker = worker.NewArtifactProcessor(jobQueue, s3Client, roomRepo, logger)
	} else {
		logger.Warn("storage not configured; sessions run without recording")
	}

	// Services and handlers
	authHandler := auth.NewHandler(authRepo, jwtService, logger)
	roomService := rooms.NewService(roomRepo, mediaClient, recorder, hub, rooms.Config{EmptyTimeoutSec: cfg.LiveKit.EmptyTimeoutSec}, logger)
	roomHandler := rooms.NewHandler(roomService, logger)
	issuer := tokens.NewIssuer(roomRepo, authRepo, participantRepo, minter, hub, clientURL, cfg.Credentials.TTL(), logger)
	tokenHandler := tokens.NewHandler(issuer, logger)
	participantHandler := participants.NewHandler(participantRepo, roomRepo, logger)
	var presigner recordings.Presigner
	if s3Client != nil {
		presigner = s3Client
	}
	recordingHandler := recordings.NewHandler(roomRepo, participantRepo, presigner, logger)
	reconciler := webhook.NewReconciler(webhook.NewVerifier(cfg.LiveKit.WebhookSecret, webhook.DefaultMaxSkew), roomRepo, artifactQueue, hub, logger)
	webhookHandler := webhook.NewHandler(reconciler, logger)

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.CORS(cfg.Server.CORSAllowedOrigins))
	router.Use(middleware.Logger(logger))

	// Health
	router.GET("/health", func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()
		if err := pool.Ping(ctx); err != nil {
			response.ServiceUnavailable(c, "database unavailable")
			return
		}
		if err := rdb.Healthy(ctx); err != nil {
			response.ServiceUnavailable(c, "redis unavailable")
			return
		}
		response.OK(c, gin.H{"status": "ok"})
	})

	// Auth (public)
	authGroup := router.Group("/auth")
	{
		authGroup.POST("/login", authHandler.Login)
		authGroup.POST("/register", authHandler.Register)
	}

	// Media-plane callbacks (signature checked by the reconciler)
	router.POST("/webhooks/livekit", webhookHandler.Receive)

	// Protected API (JWT required)
	api := router.Group("")
	api.Use(middleware.JWT(jwtService))
	{
		api.POST("/rooms", middleware.RequireRole(models.RoleTeacher, models.RoleAdmin), roomHandler.Create)
		api.GET("/rooms", roomHandler.List)
		api.GET("/rooms/:id", roomHandler.Get)
		api.PATCH("/rooms/:id/schedule", roomHandler.Schedule)
		api.POST("/rooms/:id/start", roomHandler.Start)
		api.POST("/rooms/:id/end", roomHandler.End)
		api.GET("/rooms/:id/token", tokenHandler.Issue)

		api.POST("/rooms/:id/registration", participantHandler.Register)
		api.DELETE("/rooms/:id/registration", participantHandler.Unregister)
		api.GET("/rooms/:id/registration", participantHandler.Status)
		api.GET("/rooms/:id/participants", participantHandler.List)

		api.GET("/rooms/:id/recording/download-url", recordingHandler.GenerateDownloadURL)
	}

	// WebSocket (token in query; no Authorization header required)
	router.GET("/ws", realtime.ServeWs(hub, logger, jwtService.ValidateForSocket))

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
	}

	// Background worker (artifact verification)
	workerCtx, workerCancel := context.WithCancel(context.Background())
	defer workerCancel()
	if artifactWorker != nil {
		go artifactWorker.Run(workerCtx)
		logger.Info("artifact worker started")
	}

	go func() {
		logger.Info("server listening", zap.String("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	workerCancel()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", zap.Error(err))
	}
	logger.Info("server stopped")
}

// newMinter picks the credential minter and the URL handed to clients with each token.
func newMinter(cfg *config.Config) (tokens.Minter, string, error) {
	if cfg.Credentials.Provider == config.ProviderZego {
		m, err := zego.NewTokenMinter(cfg.Zego.AppID, cfg.Zego.ServerSecret)
		if err != nil {
			return nil, "", err
		}
		return m, cfg.Zego.ServerURL, nil
	}
	return livekit.NewTokenMinter(cfg.LiveKit.APIKey, cfg.LiveKit.APISecret), cfg.LiveKit.URL, nil
}

func newLogger() *zap.Logger {
	config := zap.NewProductionConfig()
	config.EncoderConfig.TimeKey = "timestamp"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	logger, _ := config.Build()
	return logger
}
