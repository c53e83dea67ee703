package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"

	"github.com/ignatzorin/tasknory-backend/internal/config"
	"github.com/ignatzorin/tasknory-backend/internal/db"
	"github.com/ignatzorin/tasknory-backend/internal/logger"
	"github.com/ignatzorin/tasknory-backend/internal/metrics"
	"github.com/ignatzorin/tasknory-backend/internal/repository"
	"github.com/ignatzorin/tasknory-backend/internal/scheduler"
	"github.com/ignatzorin/tasknory-backend/internal/service"
	"github.com/ignatzorin/tasknory-backend/migrations"
)

// Воркер выполняет периодические проходы автоосвобождения холдов.
func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		logger.Log.Fatalf("worker: ошибка загрузки конфигурации: %v", err)
	}
	logger.InitWithOptions(cfg.LogLevel, logger.Options{File: cfg.LogFile})
	metrics.Escrow()

	if cfg.Redis.Addr == "" {
		logger.Log.Fatal("worker: REDIS_ADDR обязателен для планировщика")
	}

	dbConn, err := db.NewPostgres(ctx, cfg.DatabaseURL, db.DefaultPool)
	if err != nil {
		logger.Log.Fatalf("worker: ошибка подключения к базе: %v", err)
	}
	defer dbConn.Close()

	if err := db.RunMigrations(ctx, dbConn, migrations.FS); err != nil {
		logger.Log.Fatalf("worker: ошибка миграций: %v", err)
	}

	policy, err := service.NewPolicy()
	if err != nil {
		logger.Log.Fatalf("worker: ошибка политики доступа: %v", err)
	}

	holdRepo := repository.NewHoldRepository(dbConn)
	hireRepo := repository.NewHireRepository(dbConn)
	// Живой доставки в воркере нет, уведомления только сохраняются
	notifications := service.NewNotificationService(repository.NewNotificationRepository(dbConn), nil)
	sweeps := service.NewSweepService(holdRepo, hireRepo, policy, notifications, cfg.AutoReleaseWindow, cfg.SweepBatchSize)

	redisOpt := asynq.RedisClientOpt{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	}

	mux := asynq.NewServeMux()
	scheduler.Register(mux, scheduler.NewHandlers(sweeps))

	server := asynq.NewServer(redisOpt, asynq.Config{
		Concurrency:    2,
		RetryDelayFunc: asynq.DefaultRetryDelayFunc,
		Queues: map[string]int{
			scheduler.QueueCritical: 10,
			"default":               5,
		},
		ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
			logger.Log.WithError(err).WithField("task_type", task.Type()).Error("worker: задача завершилась с ошибкой")
		}),
	})

	periodic := asynq.NewScheduler(redisOpt, nil)
	if err := scheduler.Schedule(periodic, cfg.SweepInterval); err != nil {
		logger.Log.Fatalf("worker: ошибка расписания: %v", err)
	}

	if err := server.Start(mux); err != nil {
		logger.Log.Fatalf("worker: не удалось запустить asynq сервер: %v", err)
	}
	if err := periodic.Start(); err != nil {
		logger.Log.Fatalf("worker: не удалось запустить планировщик: %v", err)
	}
	logger.Log.WithField("interval", cfg.SweepInterval.String()).Info("worker: запущен")

	<-ctx.Done()

	periodic.Shutdown()
	server.Shutdown()
	logger.Log.Info("worker: остановлен")
}
