package main

import (
	"context"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"

	"github.com/ignatzorin/tasknory-backend/internal/config"
	"github.com/ignatzorin/tasknory-backend/internal/db"
	"github.com/ignatzorin/tasknory-backend/internal/goroutine"
	httpHandlers "github.com/ignatzorin/tasknory-backend/internal/http/handlers"
	"github.com/ignatzorin/tasknory-backend/internal/http/middleware"
	httpRouter "github.com/ignatzorin/tasknory-backend/internal/http/router"
	"github.com/ignatzorin/tasknory-backend/internal/logger"
	"github.com/ignatzorin/tasknory-backend/internal/metrics"
	"github.com/ignatzorin/tasknory-backend/internal/repository"
	"github.com/ignatzorin/tasknory-backend/internal/secret"
	"github.com/ignatzorin/tasknory-backend/internal/service"
	"github.com/ignatzorin/tasknory-backend/internal/storage"
	"github.com/ignatzorin/tasknory-backend/internal/ws"
	"github.com/ignatzorin/tasknory-backend/migrations"
)

func main() {
	// Готовим контекст для graceful shutdown.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		logger.Log.Fatalf("main: ошибка загрузки конфигурации: %v", err)
	}

	logger.InitWithOptions(cfg.LogLevel, logger.Options{File: cfg.LogFile})
	if cfg.IsDevelopment() {
		logger.SetTextFormatter()
	}
	metrics.Escrow()

	// Подключение к базе и миграции.
	dbConn, err := db.NewPostgres(ctx, cfg.DatabaseURL, db.DefaultPool)
	if err != nil {
		logger.Log.Fatalf("main: ошибка подключения к базе: %v", err)
	}
	defer safeClose(dbConn)

	if err := db.RunMigrations(ctx, dbConn, migrations.FS); err != nil {
		logger.Log.Fatalf("main: ошибка миграций: %v", err)
	}

	var redisClient *redis.Client
	if cfg.Redis.Addr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer redisClient.Close()
		if err := redisClient.Ping(ctx).Err(); err != nil {
			logger.Log.WithError(err).Warn("main: redis недоступен, лимитер работает в памяти")
			redisClient = nil
		}
	}

	tokenManager := service.NewTokenManager(cfg.JWTSecret, cfg.AccessTTL)
	policy, err := service.NewPolicy()
	if err != nil {
		logger.Log.Fatalf("main: ошибка политики доступа: %v", err)
	}

	proofs, localFiles, err := newProofStore(ctx, cfg)
	if err != nil {
		logger.Log.Fatalf("main: не удалось подготовить хранилище файлов: %v", err)
	}

	// Репозитории.
	userRepo := repository.NewUserRepository(dbConn)
	ledgerRepo := repository.NewLedgerRepository(dbConn)
	holdRepo := repository.NewHoldRepository(dbConn)
	jobRepo := repository.NewJobRepository(dbConn)
	hireRepo := repository.NewHireRepository(dbConn)
	disputeRepo := repository.NewDisputeRepository(dbConn)
	contractRepo := repository.NewContractRepository(dbConn)
	notificationRepo := repository.NewNotificationRepository(dbConn)

	// Вебсокеты.
	hub := ws.NewHub()
	goroutine.SafeGoWithContext(ctx, hub.Run)

	// Сервисы.
	notificationService := service.NewNotificationService(notificationRepo, hub)
	accountService, err := service.NewAccountService(userRepo, policy, cfg.NodeID)
	if err != nil {
		logger.Log.Fatalf("main: ошибка генератора номеров счетов: %v", err)
	}
	ledgerService := service.NewLedgerService(userRepo, ledgerRepo, policy, notificationService)
	holdService := service.NewHoldService(holdRepo, hireRepo, policy, notificationService)
	hireService := service.NewHireService(userRepo, jobRepo, hireRepo, holdRepo, holdService, policy, notificationService, cfg.AutoReleaseWindow)
	milestoneService := service.NewMilestoneService(jobRepo, hireRepo, proofs, policy, notificationService)
	disputeService := service.NewDisputeService(disputeRepo, hireRepo, holdRepo, jobRepo, proofs, policy, notificationService, cfg.Storage.ProofURLTTL)
	contractService := service.NewContractService(contractRepo, hireRepo, holdRepo, proofs, secret.NewBox(cfg.PaymentDetailsKey), policy, notificationService)
	sweepService := service.NewSweepService(holdRepo, hireRepo, policy, notificationService, cfg.AutoReleaseWindow, cfg.SweepBatchSize)

	// HTTP хэндлеры.
	maxUpload := cfg.Storage.MaxProofBytes
	handlers := httpRouter.Handlers{
		Health:        httpHandlers.NewHealthHandler(dbConn, redisClient),
		Wallet:        httpHandlers.NewWalletHandler(ledgerService, accountService),
		Hires:         httpHandlers.NewHireHandler(hireService),
		Milestones:    httpHandlers.NewMilestoneHandler(milestoneService, maxUpload),
		Disputes:      httpHandlers.NewDisputeHandler(disputeService, maxUpload),
		Holds:         httpHandlers.NewHoldHandler(holdService, sweepService),
		Contracts:     httpHandlers.NewContractHandler(contractService, maxUpload),
		Notifications: httpHandlers.NewNotificationHandler(notificationService),
		WS:            httpHandlers.NewWSHandler(hub, tokenManager, cfg.AllowedOrigins),
	}
	if localFiles != nil {
		handlers.Proof = httpHandlers.NewProofHandler(localFiles)
	}

	// Роутер.
	engine := httpRouter.SetupRouter(cfg, handlers, tokenManager, middleware.NewRateLimitStore(redisClient))

	server := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Завершаем сервер при получении сигнала.
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Log.WithError(err).Error("main: ошибка остановки http сервера")
		}
	}()

	logger.Log.Infof("main: HTTP сервер запущен на порту %s", cfg.HTTPPort)

	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Log.Fatalf("main: сервер завершился с ошибкой: %v", err)
	}
}

// newProofStore выбирает хранилище файлов. Для локального драйвера возвращает его же для раздачи по ссылкам.
func newProofStore(ctx context.Context, cfg *config.Config) (service.ProofStore, *storage.LocalStorage, error) {
	if cfg.Storage.Driver == "minio" {
		store, err := storage.NewMinioStorage(ctx, storage.MinioOptions{
			Endpoint:  cfg.Storage.MinioEndpoint,
			AccessKey: cfg.Storage.MinioAccessKey,
			SecretKey: cfg.Storage.MinioSecretKey,
			UseSSL:    cfg.Storage.MinioUseSSL,
			Bucket:    cfg.Storage.MinioBucket,
		})
		return store, nil, err
	}

	local, err := storage.NewLocalStorage(cfg.Storage.LocalDir, "/files", cfg.JWTSecret, cfg.Storage.MaxProofBytes)
	return local, local, err
}

// safeClose закрывает соединение с базой.
func safeClose(db *sqlx.DB) {
	if err := db.Close(); err != nil {
		logger.Log.WithError(err).Error("main: ошибка закрытия базы")
	}
}
