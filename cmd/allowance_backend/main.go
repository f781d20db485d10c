package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	portsrepo "github.com/SscSPs/allowance_wallet/internal/core/ports/repositories"
	portssvc "github.com/SscSPs/allowance_wallet/internal/core/ports/services"
	"github.com/SscSPs/allowance_wallet/internal/core/services"
	"github.com/SscSPs/allowance_wallet/internal/handlers"
	"github.com/SscSPs/allowance_wallet/internal/middleware"
	"github.com/SscSPs/allowance_wallet/internal/platform/config"
	"github.com/SscSPs/allowance_wallet/internal/platform/events"
	"github.com/SscSPs/allowance_wallet/internal/platform/lock"
	"github.com/SscSPs/allowance_wallet/internal/repositories/database/pgsql"
	"github.com/SscSPs/allowance_wallet/internal/repositories/memory"
	"github.com/SscSPs/allowance_wallet/pkg/database"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/ulule/limiter/v3"
	sredis "github.com/ulule/limiter/v3/drivers/store/redis"
)

// @title Allowance Wallet API
// @version 1.0
// @description Parental allowance wallet with spending-limit enforcement.

// @host localhost:8080
// @BasePath /

// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
// @description Type "Bearer" followed by a space and JWT token.

// @security BearerAuth
func main() {
	// Initialize structured logger
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	cfg, err := config.LoadConfig()
	if err != nil {
		logger.Error("Failed to load config", slog.String("error", err.Error()))
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	repos, closeRepos, err := setupRepositories(ctx, cfg, logger)
	if err != nil {
		logger.Error("Failed to initialize storage", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer closeRepos()

	var redisClient *redis.Client
	if cfg.EventsBackend == config.BackendRedis || cfg.LockBackend == config.BackendRedis {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			logger.Error("Invalid REDIS_URL", slog.String("error", err.Error()))
			os.Exit(1)
		}
		redisClient = redis.NewClient(opts)
		defer redisClient.Close()
		if err := redisClient.Ping(ctx).Err(); err != nil {
			logger.Error("Failed to reach Redis", slog.String("error", err.Error()))
			os.Exit(1)
		}
		logger.Info("Redis connection established.")
	}

	publisher, err := setupPublisher(ctx, cfg, redisClient)
	if err != nil {
		logger.Error("Failed to initialize event publisher", slog.String("error", err.Error()))
		os.Exit(1)
	}

	container := services.NewServiceContainer(cfg, repos, services.Integrations{
		Publisher: publisher,
		Locker:    setupLocker(cfg, redisClient),
	})

	routeDeps := handlers.RouteDeps{}
	if redisClient != nil {
		store, err := sredis.NewStoreWithOptions(redisClient, limiter.StoreOptions{Prefix: "allowance_limiter", MaxRetry: 3})
		if err != nil {
			logger.Error("Failed to create rate limit store", slog.String("error", err.Error()))
			os.Exit(1)
		}
		routeDeps.RateStore = store
	}

	if cfg.IsProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()

	// Global middleware (logging, recovery, CORS)
	r.Use(middleware.StructuredLoggingMiddleware(logger), gin.Recovery())
	r.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.CORSAllowedOrigins,
		AllowMethods:     []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization", middleware.RequestIDHeader},
		ExposeHeaders:    []string{middleware.RequestIDHeader, "X-RateLimit-Limit", "X-RateLimit-Remaining"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	if err := r.SetTrustedProxies(nil); err != nil {
		logger.Error("Failed to set trusted proxies", slog.String("error", err.Error()))
		os.Exit(1)
	}

	if err := handlers.RegisterRoutes(r, cfg, container, routeDeps); err != nil {
		logger.Error("Failed to register routes", slog.String("error", err.Error()))
		os.Exit(1)
	}

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("Server starting", slog.String("port", cfg.Port), slog.String("store", cfg.StoreBackend))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Server failed to run", slog.String("error", err.Error()))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server forced to shutdown", slog.String("error", err.Error()))
	}
	logger.Info("Server exited.")
}

// setupRepositories opens the configured store and, for PostgreSQL, applies migrations.
func setupRepositories(ctx context.Context, cfg *config.Config, logger *slog.Logger) (portsrepo.RepositoryProvider, func(), error) {
	if cfg.StoreBackend == config.StoreMemory {
		logger.Warn("Using the in-memory store; data is lost on restart.")
		return memory.NewRepositoryProvider(memory.NewStore()), func() {}, nil
	}

	dbPool, err := database.NewPgxPool(ctx, cfg.DatabaseURL, cfg.EnableDBCheck)
	if err != nil {
		return portsrepo.RepositoryProvider{}, nil, err
	}
	logger.Info("Database connection pool established.")

	logger.Info("Running database migrations...")
	if err := database.RunMigrations(cfg.DatabaseURL, "file://migrations", logger); err != nil {
		database.ClosePgxPool(dbPool)
		return portsrepo.RepositoryProvider{}, nil, err
	}

	return pgsql.NewRepositoryProvider(dbPool), func() { database.ClosePgxPool(dbPool) }, nil
}

func setupPublisher(ctx context.Context, cfg *config.Config, client *redis.Client) (portssvc.EventPublisher, error) {
	switch cfg.EventsBackend {
	case config.BackendRedis:
		return events.NewBreakerPublisher("redis", events.NewRedisPublisher(client, cfg.EventsStream), events.DefaultBreakerSettings()), nil
	case config.BackendSQS:
		sqsPublisher, err := events.NewSQSPublisherFromEnv(ctx, cfg.AWSRegion, cfg.SQSQueueURL)
		if err != nil {
			return nil, err
		}
		return events.NewBreakerPublisher("sqs", sqsPublisher, events.DefaultBreakerSettings()), nil
	default:
		return events.Noop{}, nil
	}
}

func setupLocker(cfg *config.Config, client *redis.Client) portssvc.KeyedLocker {
	switch cfg.LockBackend {
	case config.BackendRedis:
		return lock.NewRedisLocker(client, cfg.LockExpiry)
	case config.BackendLocal:
		return lock.NewLocalLocker()
	default:
		return nil
	}
}
