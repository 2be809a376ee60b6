package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/jmoiron/sqlx"

	"github.com/ignatzorin/escrow-backend/internal/cache"
	"github.com/ignatzorin/escrow-backend/internal/config"
	"github.com/ignatzorin/escrow-backend/internal/db"
	"github.com/ignatzorin/escrow-backend/internal/domain/escrow"
	"github.com/ignatzorin/escrow-backend/internal/gateway"
	httpHandlers "github.com/ignatzorin/escrow-backend/internal/http/handlers"
	httpRouter "github.com/ignatzorin/escrow-backend/internal/http/router"
	"github.com/ignatzorin/escrow-backend/internal/job"
	"github.com/ignatzorin/escrow-backend/internal/logger"
	"github.com/ignatzorin/escrow-backend/internal/mq"
	"github.com/ignatzorin/escrow-backend/internal/repository"
	"github.com/ignatzorin/escrow-backend/internal/service"
	"github.com/ignatzorin/escrow-backend/internal/storage"
	"github.com/ignatzorin/escrow-backend/internal/ws"
)

func main() {
	// Готовим контекст для graceful shutdown.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		logger.Log.Fatalf("main: ошибка загрузки конфигурации: %v", err)
	}

	if cfg.Env == "development" {
		logger.Init("debug")
		logger.SetTextFormatter()
	} else {
		logger.Init(cfg.LogLevel)
	}

	// Подключение к базе и миграции.
	dbConn, err := db.Open(ctx, cfg.DBDriver, cfg.DatabaseURL)
	if err != nil {
		logger.Log.Fatalf("main: ошибка подключения к базе: %v", err)
	}
	defer safeClose(dbConn)

	if err := db.RunMigrations(ctx, dbConn, db.MigrationsDir(cfg.MigrationsPath, cfg.DBDriver)); err != nil {
		logger.Log.Fatalf("main: ошибка миграций: %v", err)
	}

	// Кэш: redis, если задан адрес, иначе в памяти процесса.
	var (
		txCache     cache.Cache
		redisClient *redis.Client
	)
	if cfg.RedisAddr != "" {
		redisClient, err = cache.Connect(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err != nil {
			logger.Log.Fatalf("main: ошибка подключения к redis: %v", err)
		}
		defer redisClient.Close()
		txCache = cache.NewRedis(redisClient, "escrow:")
	} else {
		mem := cache.NewMemory(time.Minute)
		defer mem.Stop()
		txCache = mem
	}

	// Шина событий: kafka, если заданы брокеры, иначе лог.
	var publisher mq.Publisher = mq.LogPublisher{}
	if len(cfg.KafkaBrokers) > 0 {
		kafka, err := mq.NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaTopic)
		if err != nil {
			logger.Log.Fatalf("main: ошибка подключения к kafka: %v", err)
		}
		publisher = kafka
	}
	defer publisher.Close()

	evidenceStorage, err := storage.NewEvidenceStorage(cfg.EvidenceStoragePath, httpRouter.EvidencePrefix, cfg.MaxUploadSizeMB)
	if err != nil {
		logger.Log.Fatalf("main: не удалось подготовить файловое хранилище: %v", err)
	}

	tokenManager := service.NewTokenManager(cfg.JWTSecret, cfg.AccessTokenTTL)
	paystack := gateway.NewClient(cfg.PaystackBaseURL, cfg.PaystackSecretKey, cfg.GatewayTimeout)
	machine := escrow.NewMachine(cfg.Fees.SalePercent)

	// Репозитории.
	transactionRepo := repository.NewTransactionRepository(dbConn)
	disputeRepo := repository.NewDisputeRepository(dbConn)
	walletRepo := repository.NewWalletRepository(dbConn)
	withdrawalRepo := repository.NewWithdrawalRepository(dbConn)
	outboxRepo := repository.NewOutboxRepository(dbConn)
	notificationRepo := repository.NewNotificationRepository(dbConn)

	// Уведомления и вебсокеты.
	notificationService := service.NewNotificationService(notificationRepo)
	hub := ws.NewHub(ctx)
	hub.SetNotificationSaver(notificationService)
	notificationService.SetPusher(hub)
	go hub.Run()

	// Сервисы.
	paymentService := service.NewPaymentService(transactionRepo, machine, paystack, notificationService, txCache, service.PaymentOptions{
		CheckoutTTL:   cfg.Business.CheckoutTTL,
		CallbackURL:   cfg.PaymentCallbackURL,
		WebhookSecret: cfg.PaystackWebhookSecret,
	})
	paymentService.SetCacheTTL(cfg.Business.CacheTTL)

	transactionService := service.NewTransactionService(transactionRepo, machine, notificationService, txCache)
	transactionService.SetCacheTTL(cfg.Business.CacheTTL)

	disputeService := service.NewDisputeService(transactionRepo, disputeRepo, machine, notificationService, txCache, evidenceStorage, cfg.Business.DisputeWindow)
	disputeService.SetCacheTTL(cfg.Business.CacheTTL)

	walletService := service.NewWalletService(walletRepo, paystack, cfg.PaymentCallbackURL)
	withdrawalService := service.NewWithdrawalService(withdrawalRepo, notificationService, service.WithdrawalOptions{
		PlatformPercent: cfg.Fees.WithdrawalPercent,
		Methods:         cfg.Fees.WithdrawalMethods,
	})

	// Фоновые задачи.
	jobs := cfg.Business.Jobs
	expiryJob := job.NewExpiryJob(transactionService, jobs.ExpiryInterval, jobs.BatchSize)
	outboxRelay := job.NewOutboxRelay(outboxRepo, publisher, jobs.OutboxInterval, jobs.BatchSize, jobs.OutboxMaxRetries)
	deadlineJob := job.NewDisputeDeadlineJob(disputeService, jobs.DisputeDeadlineInterval, jobs.BatchSize)

	var jobsWG sync.WaitGroup
	for _, start := range []func(context.Context){expiryJob.Start, outboxRelay.Start, deadlineJob.Start} {
		jobsWG.Add(1)
		go func(start func(context.Context)) {
			defer jobsWG.Done()
			start(ctx)
		}(start)
	}

	// HTTP.
	healthHandler := httpHandlers.NewHealthHandler(dbConn)
	if redisClient != nil {
		healthHandler.WithCheck("redis", httpHandlers.PingFunc(func(ctx context.Context) error {
			return redisClient.Ping(ctx).Err()
		}))
	}

	engine := httpRouter.SetupRouter(cfg, tokenManager, httpRouter.Handlers{
		Health:        healthHandler,
		Payments:      httpHandlers.NewPaymentHandler(paymentService),
		Transactions:  httpHandlers.NewTransactionHandler(transactionService),
		Disputes:      httpHandlers.NewDisputeHandler(disputeService, cfg.MaxUploadSizeMB),
		Wallets:       httpHandlers.NewWalletHandler(walletService),
		Withdrawals:   httpHandlers.NewWithdrawalHandler(withdrawalService),
		Notifications: httpHandlers.NewNotificationHandler(notificationService),
		WS:            httpHandlers.NewWSHandler(hub, tokenManager, cfg.AllowedOrigins),
	})

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

	logger.Log.WithField("port", cfg.HTTPPort).Info("main: сервер запущен")
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Log.Fatalf("main: ошибка http сервера: %v", err)
	}

	jobsWG.Wait()
	logger.Log.Info("main: сервер остановлен")
}

func safeClose(db *sqlx.DB) {
	if err := db.Close(); err != nil {
		logger.Log.WithError(err).Error("main: ошибка закрытия соединения с БД")
	}
}
