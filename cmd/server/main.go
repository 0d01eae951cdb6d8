package main

import (
	"context"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/ignatzorin/workdeal-backend/internal/config"
	"github.com/ignatzorin/workdeal-backend/internal/db"
	httpHandlers "github.com/ignatzorin/workdeal-backend/internal/http/handlers"
	httpRouter "github.com/ignatzorin/workdeal-backend/internal/http/router"
	"github.com/ignatzorin/workdeal-backend/internal/logger"
	"github.com/ignatzorin/workdeal-backend/internal/provider"
	"github.com/ignatzorin/workdeal-backend/internal/repository"
	"github.com/ignatzorin/workdeal-backend/internal/service"
	"github.com/ignatzorin/workdeal-backend/internal/storage"
	"github.com/ignatzorin/workdeal-backend/internal/ws"
)

func main() {
	// Готовим контекст для graceful shutdown.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("main: ошибка загрузки конфигурации: %v", err)
	}

	// Инициализация логгера
	if cfg.Env == "development" {
		logger.Init("debug")
		logger.SetTextFormatter()
	} else {
		logger.Init("info")
	}

	// Подключение к базе и миграции.
	dbConn, err := db.NewPostgres(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("main: ошибка подключения к базе: %v", err)
	}
	defer safeClose(dbConn)

	if err := db.RunMigrations(ctx, dbConn, cfg.MigrationsPath); err != nil {
		log.Fatalf("main: ошибка миграций: %v", err)
	}

	// Вспомогательные сервисы.
	tokenManager := service.NewTokenManager(cfg.JWTSecret, cfg.RefreshSecret, cfg.AccessTokenTTL, cfg.RefreshTokenTTL)

	proofStorage, err := storage.NewProofStorage(cfg.ProofStoragePath, cfg.MaxUploadSizeMB)
	if err != nil {
		log.Fatalf("main: не удалось подготовить хранилище чеков: %v", err)
	}

	providerClient := provider.NewClient(cfg.ProviderBaseURL, cfg.ProviderAPIKey)

	commission := service.CommissionConfig{
		DefaultRate:  cfg.CommissionDefaultRate,
		ProRate:      cfg.CommissionProRate,
		SuperProRate: cfg.CommissionSuperProRate,
		ReferralRate: cfg.CommissionReferralRate,
		Minimum:      cfg.CommissionMinimum,
	}

	// Репозитории.
	userRepo := repository.NewUserRepository(dbConn)
	jobRepo := repository.NewJobRepository(dbConn)
	contractRepo := repository.NewContractRepository(dbConn)
	paymentRepo := repository.NewPaymentRepository(dbConn)
	disputeRepo := repository.NewDisputeRepository(dbConn)
	notificationRepo := repository.NewNotificationRepository(dbConn)
	outboxRepo := repository.NewOutboxRepository(dbConn)

	// Вебсокеты.
	hub := ws.NewHub()
	go hub.Run()

	// Сервисы.
	authService := service.NewAuthService(userRepo, tokenManager)
	notificationService := service.NewNotificationService(notificationRepo, hub)
	paymentService := service.NewPaymentService(paymentRepo, contractRepo, jobRepo)
	contractService := service.NewContractService(contractRepo, cfg.PairingCodeTTL)
	disputeService := service.NewDisputeService(disputeRepo, contractRepo, paymentRepo, outboxRepo)
	jobService := service.NewJobService(jobRepo, contractRepo, paymentRepo, userRepo, commission, cfg.JobPublicationFee)
	allocationService := service.NewAllocationService(jobRepo, contractRepo, userRepo, commission, cfg.MinWorkerAllocation)
	pricingService := service.NewPricingService(jobRepo, contractRepo, paymentRepo, userRepo, commission)

	// Воркер outbox доставляет уведомления и исполняет возвраты.
	outboxWorker := service.NewOutboxWorker(outboxRepo, notificationService, providerClient, cfg.OutboxPollInterval)
	outboxWorker.Start(ctx)

	// HTTP хэндлеры.
	authHandler := httpHandlers.NewAuthHandler(authService)
	jobHandler := httpHandlers.NewJobHandler(jobService, allocationService, pricingService)
	contractHandler := httpHandlers.NewContractHandler(contractService)
	paymentHandler := httpHandlers.NewPaymentHandler(paymentService, proofStorage)
	disputeHandler := httpHandlers.NewDisputeHandler(disputeService)
	notificationHandler := httpHandlers.NewNotificationHandler(notificationService)
	webhookHandler := httpHandlers.NewWebhookHandler(paymentService, pricingService, jobService, cfg.ProviderWebhookSecret)
	wsHandler := httpHandlers.NewWSHandler(hub, tokenManager)
	healthHandler := httpHandlers.NewHealthHandler(dbConn)

	// Роутер.
	engine := httpRouter.SetupRouter(
		cfg,
		authHandler,
		jobHandler,
		contractHandler,
		paymentHandler,
		disputeHandler,
		notificationHandler,
		webhookHandler,
		wsHandler,
		healthHandler,
		tokenManager,
	)

	server := &http.Server{
		Addr:    ":" + cfg.HTTPPort,
		Handler: engine,
	}

	// Завершаем сервер при получении сигнала.
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Printf("main: ошибка остановки http сервера: %v", err)
		}
	}()

	log.Printf("main: HTTP сервер запущен на порту %s", cfg.HTTPPort)

	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatalf("main: сервер завершился с ошибкой: %v", err)
	}
}

// safeClose закрывает соединение с базой.
func safeClose(db *sqlx.DB) {
	if err := db.Close(); err != nil {
		log.Printf("main: ошибка закрытия базы: %v", err)
	}
}
