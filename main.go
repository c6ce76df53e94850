package main

import (
	"context"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/reportai-inc/reportai-engine/pkg/auth"
	"github.com/reportai-inc/reportai-engine/pkg/cache"
	"github.com/reportai-inc/reportai-engine/pkg/config"
	"github.com/reportai-inc/reportai-engine/pkg/database"
	"github.com/reportai-inc/reportai-engine/pkg/extract"
	"github.com/reportai-inc/reportai-engine/pkg/handlers"
	"github.com/reportai-inc/reportai-engine/pkg/llm"
	"github.com/reportai-inc/reportai-engine/pkg/logging"
	"github.com/reportai-inc/reportai-engine/pkg/middleware"
	"github.com/reportai-inc/reportai-engine/pkg/repositories"
	"github.com/reportai-inc/reportai-engine/pkg/services"
	"github.com/reportai-inc/reportai-engine/pkg/storage"
)

// Version is set at build time via ldflags.
var Version = "dev"

func main() {
	cfg, err := config.Load(Version)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, err := logging.NewLogger(cfg.Env)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("configuration loaded",
		zap.String("environment", cfg.Env),
		zap.String("version", cfg.Version),
		zap.String("database", cfg.Database.Host),
		zap.String("redis", cfg.Redis.Host),
		zap.String("llm_provider", cfg.LLM.Provider))

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	db, err := database.NewConnection(ctx, &cfg.Database)
	if err != nil {
		logger.Fatal("failed to connect to database", zap.Error(err))
	}
	defer db.Close()

	redisClient, err := database.NewRedisClient(ctx, &cfg.Redis)
	if err != nil {
		logger.Fatal("failed to connect to redis", zap.Error(err))
	}
	defer func() { _ = redisClient.Close() }()

	objects, err := storage.NewGCSStore(ctx, cfg.Storage.Bucket, logger)
	if err != nil {
		logger.Fatal("failed to create object store", zap.Error(err))
	}
	defer func() { _ = objects.Close() }()

	llmClient, err := llm.NewClient(&cfg.LLM, logger)
	if err != nil {
		logger.Fatal("failed to create llm client", zap.Error(err))
	}

	// Cache layer.
	store := cache.NewRedisStore(redisClient)
	keys := cache.NewKeyManager(cfg.AppNamespace)
	extractionCache := cache.NewExtractionCacheService(store, keys,
		time.Duration(cfg.Staging.ExtractionTTLMinutes)*time.Minute,
		time.Duration(cfg.Staging.UpdateTTLMinutes)*time.Minute,
		logger)
	chatCache := cache.NewChatCacheService(store, keys, cfg.Chat.MaxSessionTokens, logger)
	chatTx := cache.NewChatTxService(store, keys, chatCache, logger)

	// Persistence.
	userRepo := repositories.NewUserRepository(db)
	dsRepo := repositories.NewDataSourceRepository(db)
	chatRepo := repositories.NewChatRepository(db)

	// Services.
	maxFileBytes := int64(cfg.Upload.MaxFileSizeMB) << 20
	extractor := extract.NewService(logger)
	differ := services.NewSchemaDiffService(logger)
	extractionSvc := services.NewExtractionService(extractionCache, extractor, maxFileBytes, logger)
	dsSvc := services.NewDataSourceService(dsRepo, extractionCache, objects, llmClient, cfg.Storage.Prefix, logger)
	updateSvc := services.NewDataSourceUpdateService(dsRepo, extractionCache, extractor, differ, objects, cfg.Storage.Prefix, maxFileBytes, logger)
	chatSvc := services.NewChatService(chatRepo, dsRepo, chatCache, chatTx, llmClient, logger)

	// Auth.
	tokens := auth.NewTokenManager(cfg.Auth.JWTSecret, time.Duration(cfg.Auth.AccessTokenTTLMinutes)*time.Minute)
	sessions := auth.NewSessionManager(store, keys, time.Duration(cfg.Auth.SessionTTLHours)*time.Hour, logger)
	authSvc := auth.NewService(userRepo, tokens, sessions, logger)
	authMW := auth.NewMiddleware(tokens, sessions, logger)

	mux := http.NewServeMux()
	handlers.NewHealthHandler(cfg, store, logger).RegisterRoutes(mux)
	handlers.NewAuthHandler(authSvc, logger).RegisterRoutes(mux, authMW)
	handlers.NewExtractionsHandler(extractionSvc, maxFileBytes, logger).RegisterRoutes(mux, authMW)
	handlers.NewDataSourcesHandler(dsSvc, updateSvc, maxFileBytes, logger).RegisterRoutes(mux, authMW)
	handlers.NewChatHandler(chatSvc, logger).RegisterRoutes(mux, authMW)
	handlers.NewMaintenanceHandler(extractionCache, chatCache, logger).RegisterRoutes(mux, authMW)

	server := &http.Server{
		Addr:              net.JoinHostPort(cfg.BindAddr, cfg.Port),
		Handler:           middleware.RequestLogger(logger)(mux),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("starting reportai-engine",
			zap.String("addr", server.Addr),
			zap.String("version", cfg.Version))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server failed", zap.Error(err))
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	logger.Info("shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", zap.Error(err))
	}
}
