package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"mintoons-server/internal/ai"
	"mintoons-server/internal/config"
	"mintoons-server/internal/database"
	"mintoons-server/internal/email"
	"mintoons-server/internal/messaging"
	"mintoons-server/internal/service"
	"mintoons-server/internal/worker"
	"mintoons-server/pkg/aicrypto"
	"mintoons-server/pkg/logger"
)

// The worker consumes the durable task queues: AI assist generation and
// outbound email. It shares the server's repositories and messaging
// topology but serves no API traffic, only /health and /metrics.
func main() {
	cfg, err := config.LoadConfig(".env")
	if err != nil {
		fmt.Printf("Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(logger.Config{
		Level:    cfg.LogLevel,
		Encoding: "json",
	})
	if err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	zap.ReplaceGlobals(log)
	zap.L().Info("Worker logger initialized", zap.String("logLevel", cfg.LogLevel))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pgPool, err := setupPostgres(ctx, cfg)
	if err != nil {
		zap.L().Fatal("Failed to connect to PostgreSQL", zap.Error(err))
	}
	defer pgPool.Close()
	zap.L().Info("Connected to PostgreSQL")

	mqConn, err := connectRabbitMQ(cfg.RabbitMQURL, log)
	if err != nil {
		zap.L().Fatal("Failed to connect to RabbitMQ", zap.Error(err))
	}
	defer mqConn.Close()
	zap.L().Info("Connected to RabbitMQ")

	cipher, err := aicrypto.NewCipher(cfg.AIKeyEncryptionSecret)
	if err != nil {
		zap.L().Fatal("Invalid AI key encryption secret", zap.Error(err))
	}

	publisher, err := messaging.NewRabbitMQPublisher(mqConn, log)
	if err != nil {
		zap.L().Fatal("Failed to create RabbitMQ publisher", zap.Error(err))
	}
	defer publisher.Close()

	// --- Dependency Injection ---
	storyRepo := database.NewPgStoryRepository(pgPool, log.Named("PgStoryRepo"))
	notifRepo := database.NewPgNotificationRepository(pgPool, log.Named("PgNotificationRepo"))
	aiKeyRepo := database.NewPgAIKeyRepository(pgPool, log.Named("PgAIKeyRepo"))
	resultRepo := database.NewPgGenerationResultRepository(pgPool, log.Named("PgGenerationResultRepo"))

	notifSvc := service.NewNotificationService(notifRepo, publisher, log)

	factory := &ai.Factory{
		Model:      cfg.AIModel,
		BaseURL:    cfg.AIBaseURL,
		OllamaHost: cfg.OllamaHost,
		Timeout:    cfg.AIRequestTimeout,
		Logger:     log,
	}

	assistHandler := worker.NewAssistHandler(storyRepo, resultRepo, aiKeyRepo, cipher, factory, notifSvc, cfg, log)
	emailHandler := worker.NewEmailHandler(
		email.NewSender(cfg.SendGridAPIKey, cfg.EmailFromAddress, cfg.EmailFromName, log),
		log,
	)

	assistConsumer := messaging.NewTaskConsumer(mqConn, messaging.QueueAssistTasks, assistHandler.Handle, log)
	if err := assistConsumer.Start(ctx); err != nil {
		zap.L().Fatal("Failed to start assist task consumer", zap.Error(err))
	}
	emailConsumer := messaging.NewTaskConsumer(mqConn, messaging.QueueEmailTasks, emailHandler.Handle, log)
	if err := emailConsumer.Start(ctx); err != nil {
		zap.L().Fatal("Failed to start email task consumer", zap.Error(err))
	}

	progressProducer := worker.NewWeeklyProgressProducer(storyRepo, publisher, cfg.WeeklyProgressInterval, log)
	progressProducer.Start(ctx)

	// --- Metrics / health endpoint ---
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	srv := &http.Server{
		Addr:        ":" + cfg.ServerPort,
		Handler:     mux,
		ReadTimeout: 10 * time.Second,
		IdleTimeout: 60 * time.Second,
	}

	zap.L().Info("Worker started", zap.String("metricsPort", cfg.ServerPort))
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			zap.L().Fatal("Metrics server listen error", zap.Error(err))
		}
	}()

	// --- Graceful Shutdown ---
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	zap.L().Info("Shutting down worker...")

	cancel()
	for _, done := range []<-chan struct{}{assistConsumer.Done(), emailConsumer.Done(), progressProducer.Done()} {
		select {
		case <-done:
		case <-time.After(cfg.AIRequestTimeout + 5*time.Second):
			zap.L().Warn("Timed out waiting for consumer to stop")
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		zap.L().Error("Metrics server forced to shutdown", zap.Error(err))
	}

	zap.L().Info("Worker exiting")
}

// setupPostgres initializes the PostgreSQL connection pool with retry logic.
func setupPostgres(ctx context.Context, cfg *config.Config) (*pgxpool.Pool, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.DatabaseURL())
	if err != nil {
		return nil, fmt.Errorf("unable to parse postgres config: %w", err)
	}

	var pool *pgxpool.Pool
	var lastErr error
	maxRetries := 10
	retryDelay := 3 * time.Second

	for i := 0; i < maxRetries; i++ {
		attempt := i + 1
		connectCtx, connectCancel := context.WithTimeout(ctx, 5*time.Second)
		pool, err = pgxpool.NewWithConfig(connectCtx, poolConfig)
		connectCancel()
		if err != nil {
			lastErr = fmt.Errorf("unable to create postgres connection pool (attempt %d/%d): %w", attempt, maxRetries, err)
			zap.L().Warn("Postgres connection pool creation failed, retrying...", zap.Int("attempt", attempt), zap.Error(err))
			time.Sleep(retryDelay)
			continue
		}

		pingCtx, pingCancel := context.WithTimeout(ctx, 2*time.Second)
		err = pool.Ping(pingCtx)
		pingCancel()
		if err == nil {
			return pool, nil
		}

		pool.Close()
		lastErr = fmt.Errorf("unable to ping postgres database (attempt %d/%d): %w", attempt, maxRetries, err)
		zap.L().Warn("Postgres ping failed, retrying...", zap.Int("attempt", attempt), zap.Error(err))
		time.Sleep(retryDelay)
	}

	return nil, fmt.Errorf("failed to connect to postgres after %d attempts: %w", maxRetries, lastErr)
}

// connectRabbitMQ dials RabbitMQ with retry logic.
func connectRabbitMQ(url string, log *zap.Logger) (*amqp.Connection, error) {
	var conn *amqp.Connection
	var err error
	maxRetries := 10
	retryDelay := 5 * time.Second

	for i := 0; i < maxRetries; i++ {
		attempt := i + 1
		conn, err = amqp.Dial(url)
		if err == nil {
			go func() {
				notifyClose := make(chan *amqp.Error)
				conn.NotifyClose(notifyClose)
				if closeErr := <-notifyClose; closeErr != nil {
					log.Error("RabbitMQ connection closed unexpectedly", zap.Error(closeErr))
				}
			}()
			return conn, nil
		}
		log.Warn("RabbitMQ connection failed, retrying...",
			zap.Int("attempt", attempt),
			zap.Int("max_attempts", maxRetries),
			zap.Error(err))
		time.Sleep(retryDelay)
	}
	return nil, fmt.Errorf("failed to connect to RabbitMQ after %d attempts: %w", maxRetries, err)
}
