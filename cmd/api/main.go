package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/formulalab/formula-gateway/internal/adapter/http/router"
	"github.com/formulalab/formula-gateway/internal/adapter/repository/redis"
	"github.com/formulalab/formula-gateway/internal/bootstrap"
	"github.com/formulalab/formula-gateway/internal/domain/repository"
	"github.com/formulalab/formula-gateway/internal/infrastructure/admission"
	"github.com/formulalab/formula-gateway/internal/infrastructure/cache"
	"github.com/formulalab/formula-gateway/internal/infrastructure/config"
	"github.com/formulalab/formula-gateway/internal/infrastructure/logger"
	"github.com/formulalab/formula-gateway/internal/usecase"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	// Initialize logger
	log, err := logger.NewLogger(&cfg.Log)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer func() { _ = log.Sync() }()

	// Set Gin mode
	gin.SetMode(cfg.Server.Mode)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Acquire model handles before opening the listener
	models, err := bootstrap.LoadModels(ctx, cfg, log)
	if err != nil {
		log.Error("Failed to load models", zap.Error(err))
		return fmt.Errorf("failed to load models: %w", err)
	}

	// Initialize Redis (optional, continue without it)
	var redisClient *goredis.Client
	var resultCache repository.RecognitionCache
	if cfg.Redis.Enabled {
		redisClient, err = cache.NewRedisClient(&cfg.Redis)
		if err != nil {
			log.Warn("Failed to connect to Redis, continuing without cache", zap.Error(err))
			redisClient = nil
		} else {
			resultCache = redis.NewRecognitionCache(redisClient)
			log.Info("Connected to Redis", zap.String("addr", cfg.Redis.Addr()))
		}
	}

	queue := admission.NewQueue(admission.Config{
		MaxConcurrent: cfg.Limits.MaxConcurrent,
		MaxQueue:      cfg.Limits.MaxQueue,
		Timeout:       cfg.Limits.QueueTimeout,
	}, log)

	formulaUC := usecase.NewFormulaUsecase(
		models.Recognizer,
		models.Solver,
		models.Preprocessor,
		queue,
		resultCache,
		usecase.Options{
			MaxInputChars: cfg.Solver.MaxInputChars,
			CacheTTL:      cfg.Redis.TTL,
		},
		log,
	)

	// Setup router
	r := router.Setup(router.Dependencies{
		FormulaUC:      formulaUC,
		Recognizer:     models.Recognizer,
		Solver:         models.Solver,
		Redis:          redisClient,
		Queue:          queue,
		MaxUploadBytes: cfg.Upload.MaxBytes,
	}, log)

	// Create HTTP server
	addr := cfg.Server.Addr()
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	serverErr := make(chan error, 1)
	go func() {
		log.Info("Starting server", zap.String("address", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	// Wait for interrupt signal or listener failure
	select {
	case <-ctx.Done():
	case err := <-serverErr:
		log.Error("Server failed", zap.Error(err))
		return fmt.Errorf("server failed: %w", err)
	}

	log.Info("Shutting down server...")

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("Server forced to shutdown", zap.Error(err))
	}

	// Close Redis connection
	if redisClient != nil {
		_ = redisClient.Close()
	}

	log.Info("Server exited")
	return nil
}
