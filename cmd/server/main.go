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

	"github.com/SAP-F-2025/session-runtime/internal/cache"
	"github.com/SAP-F-2025/session-runtime/internal/config"
	"github.com/SAP-F-2025/session-runtime/internal/handlers"
	"github.com/SAP-F-2025/session-runtime/internal/repositories/postgres"
	"github.com/SAP-F-2025/session-runtime/internal/runtime"
	"github.com/SAP-F-2025/session-runtime/internal/services"
	"github.com/SAP-F-2025/session-runtime/internal/utils"
	"github.com/SAP-F-2025/session-runtime/pkg"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		os.Exit(1)
	}

	var logger utils.Logger
	if cfg.Environment == "production" {
		logger = utils.NewDefaultLogger()
	} else {
		logger = utils.NewDevelopmentLogger()
	}

	db, err := pkg.InitDatabase(cfg)
	if err != nil {
		logger.LogError(err, "Failed to connect to database")
		os.Exit(1)
	}
	if err := pkg.Migrate(db); err != nil {
		logger.LogError(err, "Failed to run migrations")
		os.Exit(1)
	}

	redisClient, err := pkg.NewRedisClient(cfg)
	if err != nil {
		logger.LogError(err, "Failed to connect to redis")
		os.Exit(1)
	}
	defer redisClient.Close()

	publisher, err := cfg.Events.CreateAuditPublisher(utils.ToSlogLogger(logger))
	if err != nil {
		logger.LogError(err, "Failed to create audit publisher")
		os.Exit(1)
	}
	defer publisher.Close()

	repo := postgres.NewManager(db)
	sessionCache := cache.NewRedisCache(redisClient, logger)

	store := services.NewSessionStore(repo, sessionCache, logger)
	bank := services.NewQuestionBank(repo, logger)
	submitter := services.NewSubmission(repo, sessionCache, publisher, logger)
	audit := services.NewAudit(repo.Violation(), publisher, logger)

	factory := func(sessionID uint) *runtime.Engine {
		return runtime.NewEngine(runtime.Config{
			SessionID:         sessionID,
			Logger:            logger,
			Store:             store,
			Bank:              bank,
			Submitter:         submitter,
			Audit:             audit,
			LowTimeWarning:    cfg.LowTimeWarning,
			HeartbeatInterval: time.Duration(cfg.HeartbeatInterval) * time.Second,
			Scheduler: runtime.SchedulerOptions{
				Interval:    time.Duration(cfg.AutosaveInterval) * time.Second,
				Debounce:    time.Duration(cfg.DebounceDelay) * time.Second,
				RevertDelay: 2500 * time.Millisecond,
			},
		})
	}
	registry := handlers.NewRegistry(factory, logger)

	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(utils.RequestLogger(logger))

	validator := utils.NewValidator()
	handlers.NewHandlerManager(registry, validator, logger).SetupRoutes(router)

	server := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}

	go func() {
		logger.Info("Session runtime listening", "port", cfg.Port, "environment", cfg.Environment)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.LogError(err, "Server stopped unexpectedly")
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down")

	// Engines first so every countdown and autosave timer is released before
	// the HTTP listener drains.
	registry.CloseAll()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		logger.LogError(err, "Forced shutdown")
	}

	logger.Info("Stopped")
}
