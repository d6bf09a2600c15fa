package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	rateli "github.com/JGLTechnologies/gin-rate-limit"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	amqp "github.com/rabbitmq/amqp091-go"
	redis "github.com/redis/go-redis/v9"
	"github.com/stripe/stripe-go/v79"
	ginprometheus "github.com/zsais/go-gin-prometheus"
	"go.uber.org/zap"

	"mintoons-server/internal/config"
	"mintoons-server/internal/database"
	"mintoons-server/internal/handler"
	"mintoons-server/internal/messaging"
	"mintoons-server/internal/middleware"
	"mintoons-server/internal/service"
	"mintoons-server/internal/ws"
	"mintoons-server/pkg/aicrypto"
	"mintoons-server/pkg/logger"
)

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
	zap.L().Info("Logger initialized", zap.String("logLevel", cfg.LogLevel))

	if err := database.RunMigrations(cfg.DatabaseURL(), log); err != nil {
		zap.L().Fatal("Failed to run database migrations", zap.Error(err))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pgPool, err := setupPostgres(ctx, cfg)
	if err != nil {
		zap.L().Fatal("Failed to connect to PostgreSQL", zap.Error(err))
	}
	defer pgPool.Close()
	zap.L().Info("Connected to PostgreSQL")

	redisClient, err := setupRedis(ctx, cfg)
	if err != nil {
		zap.L().Fatal("Failed to connect to Redis", zap.Error(err))
	}
	defer redisClient.Close()
	zap.L().Info("Connected to Redis")

	mqConn, err := connectRabbitMQ(cfg.RabbitMQURL, log)
	if err != nil {
		zap.L().Fatal("Failed to connect to RabbitMQ", zap.Error(err))
	}
	defer mqConn.Close()
	zap.L().Info("Connected to RabbitMQ")

	// The Stripe SDK keys all calls off this package-level variable.
	stripe.Key = cfg.StripeSecretKey

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
	userRepo := database.NewPgUserRepository(pgPool, log.Named("PgUserRepo"))
	storyRepo := database.NewPgStoryRepository(pgPool, log.Named("PgStoryRepo"))
	likeRepo := database.NewPgLikeRepository(pgPool, log.Named("PgLikeRepo"))
	commentRepo := database.NewPgCommentRepository(pgPool, log.Named("PgCommentRepo"))
	subRepo := database.NewPgSubscriptionRepository(pgPool, log.Named("PgSubscriptionRepo"))
	notifRepo := database.NewPgNotificationRepository(pgPool, log.Named("PgNotificationRepo"))
	aiKeyRepo := database.NewPgAIKeyRepository(pgPool, log.Named("PgAIKeyRepo"))
	resultRepo := database.NewPgGenerationResultRepository(pgPool, log.Named("PgGenerationResultRepo"))
	tokenRepo := database.NewRedisTokenRepository(redisClient, log.Named("RedisTokenRepo"))

	notifSvc := service.NewNotificationService(notifRepo, publisher, log)
	authSvc := service.NewAuthService(userRepo, subRepo, tokenRepo, publisher, cfg, log)
	userSvc := service.NewUserService(userRepo, tokenRepo, log)
	storySvc := service.NewStoryService(storyRepo, likeRepo, userRepo, subRepo, notifSvc, log)
	commentSvc := service.NewCommentService(commentRepo, storyRepo, userRepo, notifSvc, publisher, log)
	assistSvc := service.NewAssistService(storyRepo, userRepo, subRepo, resultRepo, publisher, cfg, log)
	subSvc := service.NewSubscriptionService(subRepo, userRepo, notifSvc, cfg, log)
	adminSvc := service.NewAdminService(userRepo, storyRepo, aiKeyRepo, tokenRepo, cipher, cfg, log)

	hub := ws.NewHub(log)
	wsHandler := ws.NewHandler(hub, authSvc, cfg.GetAllowedOrigins(), log)

	eventConsumer := ws.NewEventConsumer(mqConn, hub, log)
	if err := eventConsumer.Start(ctx); err != nil {
		zap.L().Fatal("Failed to start notification event consumer", zap.Error(err))
	}

	// --- Rate Limiters (Redis-backed, keyed by client IP) ---
	authRateLimit := newRateLimiter(redisClient, cfg.RateLimitWindow, cfg.AuthRateLimit)
	generalRateLimit := newRateLimiter(redisClient, cfg.RateLimitWindow, cfg.RateLimitRequests)

	// --- HTTP Server Setup (Gin) ---
	gin.SetMode(gin.ReleaseMode)
	if cfg.Env == "development" {
		gin.SetMode(gin.DebugMode)
	}

	router := gin.New()
	router.RedirectTrailingSlash = true
	router.Use(middleware.GinZapLogger(log))
	router.Use(gin.Recovery())
	router.Use(skipPaths(generalRateLimit, "/health", "/metrics", "/api/webhooks/stripe"))

	corsConfig := cors.DefaultConfig()
	if origins := cfg.GetAllowedOrigins(); len(origins) > 0 {
		corsConfig.AllowOrigins = origins
	} else {
		corsConfig.AllowOrigins = []string{"http://localhost:3000"}
	}
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Length", "Content-Type", "Authorization"}
	corsConfig.AllowCredentials = true
	corsConfig.MaxAge = 12 * time.Hour
	router.Use(cors.New(corsConfig))

	healthHandler := func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	}
	router.GET("/health", healthHandler)
	router.HEAD("/health", healthHandler)

	apiHandler := handler.NewHandler(authSvc, userSvc, storySvc, commentSvc, assistSvc, subSvc, notifSvc, adminSvc, wsHandler, log)
	apiHandler.RegisterRoutes(router, authRateLimit)

	p := ginprometheus.NewPrometheus("gin")
	p.Use(router)

	srv := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	zap.L().Info("Starting HTTP server", zap.String("port", cfg.ServerPort))
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			zap.L().Fatal("HTTP Server listen error", zap.Error(err))
		}
	}()

	// --- Graceful Shutdown ---
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	zap.L().Info("Shutting down server...")

	cancel()
	select {
	case <-eventConsumer.Done():
	case <-time.After(5 * time.Second):
		zap.L().Warn("Timed out waiting for event consumer to stop")
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		zap.L().Error("HTTP Server forced to shutdown", zap.Error(err))
	}

	zap.L().Info("Server exiting")
}

// newRateLimiter builds a Redis-backed per-IP limiter.
func newRateLimiter(client *redis.Client, window time.Duration, limit uint) gin.HandlerFunc {
	store := rateli.RedisStore(&rateli.RedisOptions{
		RedisClient: client,
		Rate:        window,
		Limit:       limit,
	})
	return rateli.RateLimiter(store, &rateli.Options{
		ErrorHandler: func(c *gin.Context, info rateli.Info) {
			zap.L().Warn("Rate limit exceeded",
				zap.String("clientIP", c.ClientIP()),
				zap.Time("resetTime", info.ResetTime),
				zap.String("path", c.Request.URL.Path))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"code":    "TOO_MANY_REQUESTS",
				"message": "Too many requests. Try again in " + time.Until(info.ResetTime).Round(time.Second).String(),
			})
		},
		KeyFunc: func(c *gin.Context) string {
			return c.ClientIP()
		},
	})
}

// skipPaths exempts the given paths from a middleware. The Stripe
// webhook is excluded from rate limiting so retried deliveries from
// Stripe's shared IPs are never dropped.
func skipPaths(mw gin.HandlerFunc, paths ...string) gin.HandlerFunc {
	skip := make(map[string]struct{}, len(paths))
	for _, p := range paths {
		skip[p] = struct{}{}
	}
	return func(c *gin.Context) {
		if _, ok := skip[c.Request.URL.Path]; ok {
			c.Next()
			return
		}
		mw(c)
	}
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

// setupRedis initializes the Redis client with retry logic.
func setupRedis(ctx context.Context, cfg *config.Config) (*redis.Client, error) {
	opts := &redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	}

	var lastErr error
	maxRetries := 10
	retryDelay := 3 * time.Second

	for i := 0; i < maxRetries; i++ {
		attempt := i + 1
		client := redis.NewClient(opts)

		pingCtx, pingCancel := context.WithTimeout(ctx, 5*time.Second)
		_, err := client.Ping(pingCtx).Result()
		pingCancel()
		if err == nil {
			return client, nil
		}

		client.Close()
		lastErr = fmt.Errorf("unable to ping redis (attempt %d/%d): %w", attempt, maxRetries, err)
		zap.L().Warn("Redis ping failed, retrying...", zap.Int("attempt", attempt), zap.Error(err))
		time.Sleep(retryDelay)
	}

	return nil, fmt.Errorf("failed to connect to redis after %d attempts: %w", maxRetries, lastErr)
}

// connectRabbitMQ dials RabbitMQ with retry logic and logs unexpected
// connection closure.
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
