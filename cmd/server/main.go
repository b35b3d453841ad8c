package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	financeapp "github.com/procure/backend/internal/application/finance"
	"github.com/procure/backend/internal/application/notification"
	procurementapp "github.com/procure/backend/internal/application/procurement"
	"github.com/procure/backend/internal/domain/shared"
	"github.com/procure/backend/internal/infrastructure/auth"
	"github.com/procure/backend/internal/infrastructure/cache"
	"github.com/procure/backend/internal/infrastructure/config"
	"github.com/procure/backend/internal/infrastructure/event"
	"github.com/procure/backend/internal/infrastructure/logger"
	"github.com/procure/backend/internal/infrastructure/persistence"
	"github.com/procure/backend/internal/infrastructure/telemetry"
	"github.com/procure/backend/internal/interfaces/http/handler"
	"github.com/procure/backend/internal/interfaces/http/router"
	"go.uber.org/zap"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("Failed to load configuration: " + err.Error())
	}

	log, err := logger.New(&logger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: cfg.Log.Output,
	})
	if err != nil {
		panic("Failed to initialize logger: " + err.Error())
	}
	defer func() {
		_ = log.Sync()
	}()

	log.Info("Starting procurement backend",
		zap.String("app", cfg.App.Name),
		zap.String("env", cfg.App.Env),
		zap.String("port", cfg.App.Port),
	)

	db, err := persistence.NewDatabase(&cfg.Database)
	if err != nil {
		log.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer func() {
		if err := db.Close(); err != nil {
			log.Error("Error closing database", zap.Error(err))
		}
	}()
	if err := db.AutoMigrate(); err != nil {
		log.Fatal("Failed to migrate database schema", zap.Error(err))
	}
	log.Info("Database connected")

	// Repositories
	requisitionRepo := persistence.NewGormRequisitionRepository(db.DB)
	orderRepo := persistence.NewGormPurchaseOrderRepository(db.DB)
	invoiceRepo := persistence.NewGormInvoiceRepository(db.DB)
	matchResultRepo := persistence.NewGormMatchResultRepository(db.DB)
	authorityResolver := persistence.NewGormAuthorityResolver(db.DB)

	// Idempotency store: Redis when reachable, in-process otherwise
	var idempotencyStore shared.IdempotencyStore
	redisStore, err := cache.NewRedisIdempotencyStore(cfg.Redis)
	if err != nil {
		log.Warn("Redis unreachable, using in-memory idempotency store", zap.Error(err))
		idempotencyStore = cache.NewInMemoryIdempotencyStore()
	} else {
		defer func() {
			_ = redisStore.Close()
		}()
		idempotencyStore = redisStore
	}

	// Event bus and handlers
	eventBus := event.NewInMemoryEventBus(log)
	notificationHandler := notification.NewWorkflowNotificationHandler(
		notification.NewLogNotifier(log), idempotencyStore, log)
	eventBus.Subscribe(notificationHandler)
	if err := eventBus.Start(context.Background()); err != nil {
		log.Fatal("Failed to start event bus", zap.Error(err))
	}
	defer func() {
		if err := eventBus.Stop(context.Background()); err != nil {
			log.Error("Error stopping event bus", zap.Error(err))
		}
	}()

	// Business metrics
	var businessMetrics *telemetry.BusinessMetrics
	if cfg.Telemetry.Enabled {
		businessMetrics, err = telemetry.NewBusinessMetrics(nil, log)
		if err != nil {
			log.Warn("Failed to initialize business metrics", zap.Error(err))
		}
	}

	// Application services
	requisitionService := procurementapp.NewRequisitionService(requisitionRepo, orderRepo, authorityResolver, log)
	requisitionService.SetEventPublisher(eventBus)
	matchingService := financeapp.NewMatchingService(invoiceRepo, matchResultRepo, requisitionRepo, orderRepo, log)
	matchingService.SetEventPublisher(eventBus)
	if businessMetrics != nil {
		requisitionService.SetBusinessMetrics(businessMetrics)
		matchingService.SetBusinessMetrics(businessMetrics)
	}

	jwtService := auth.NewJWTService(cfg.JWT)

	engine := router.New(router.Config{
		AppConfig:          cfg,
		Logger:             log,
		JWTService:         jwtService,
		RequisitionHandler: handler.NewRequisitionHandler(requisitionService),
		InvoiceHandler:     handler.NewInvoiceHandler(matchingService),
		SystemHandler:      handler.NewSystemHandler(db),
	})

	server := &http.Server{
		Addr:           ":" + cfg.App.Port,
		Handler:        engine,
		ReadTimeout:    cfg.HTTP.ReadTimeout,
		WriteTimeout:   cfg.HTTP.WriteTimeout,
		IdleTimeout:    cfg.HTTP.IdleTimeout,
		MaxHeaderBytes: cfg.HTTP.MaxHeaderBytes,
	}

	go func() {
		log.Info("HTTP server listening", zap.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("HTTP server failed", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("Shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		log.Error("Forced shutdown", zap.Error(err))
	}
	log.Info("Server stopped")
}
