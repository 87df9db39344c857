package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"
	_ "github.com/go-sql-driver/mysql"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/Troha7/E-store/internal/api"
	"github.com/Troha7/E-store/internal/cache"
	"github.com/Troha7/E-store/internal/config"
	"github.com/Troha7/E-store/internal/events"
	"github.com/Troha7/E-store/internal/metrics"
	"github.com/Troha7/E-store/internal/repository"
	"github.com/Troha7/E-store/internal/repository/memory"
	"github.com/Troha7/E-store/internal/service"
	"github.com/Troha7/E-store/internal/sharding"
	"github.com/Troha7/E-store/migrations"
)

var logger = zerolog.New(os.Stdout).With().Timestamp().Logger()

type store interface {
	service.OrderServiceStore
	service.ProductStore
	service.UserServiceStore
}

func connectDB(ctx context.Context, cfg config.DB) (*sql.DB, error) {
	var db *sql.DB
	var err error
	for i := 0; i < cfg.Retries; i++ {
		db, err = sql.Open("mysql", cfg.DSN())
		if err == nil {
			err = db.PingContext(ctx)
			if err == nil {
				logger.Info().Msgf("Connected to DB %s", cfg.Name)
				return db, nil
			}
			_ = db.Close()
		}
		logger.Warn().Err(err).Msgf("Retry %d: failed to connect to DB %s (%s:%s)", i+1, cfg.Name, cfg.Host, cfg.Port)

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(3 * time.Second):
		}
	}
	return nil, fmt.Errorf("failed to connect to DB %s at %s:%s after retries: %w", cfg.Name, cfg.Host, cfg.Port, err)
}

func openStore(ctx context.Context, cfg config.DB) (store, func(), error) {
	if cfg.Driver == "memory" {
		logger.Warn().Msg("Using in-memory store, data is lost on restart")
		return memory.NewStore(), func() {}, nil
	}

	db, err := connectDB(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}
	if err := migrations.AutoMigrate(ctx, db, 3, 3*time.Second); err != nil {
		_ = db.Close()
		return nil, nil, err
	}
	return repository.NewStore(db), func() { _ = db.Close() }, nil
}

func main() {
	cfg, err := config.Load(".env")
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to load config")
	}
	if level, err := zerolog.ParseLevel(cfg.LogLevel); err == nil {
		zerolog.SetGlobalLevel(level)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, closeStore, err := openStore(ctx, cfg.DB)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to open store")
	}
	defer closeStore()

	rdb := redis.NewClient(&redis.Options{
		Addr: cfg.Redis.Addr,
	})
	defer rdb.Close()

	var orderEvents, productEvents service.EventPublisher = events.Nop{}, events.Nop{}
	if cfg.Kafka.Enabled {
		orderWriter := config.NewKafkaWriter(cfg.Kafka.Brokers, cfg.Kafka.OrderTopic)
		productWriter := config.NewKafkaWriter(cfg.Kafka.Brokers, cfg.Kafka.ProductTopic)
		defer orderWriter.Close()
		defer productWriter.Close()
		orderEvents = events.NewProducer(orderWriter, events.OrderKeyPrefix)
		productEvents = events.NewProducer(productWriter, events.ProductKeyPrefix)
	}

	mode, err := service.ParseReconcileMode(cfg.Orders.ReconcileMode)
	if err != nil {
		logger.Fatal().Err(err).Msg("Invalid RECONCILE_MODE")
	}

	router := sharding.NewShardRouter(cfg.Orders.LockShards)
	orderService := service.NewOrderService(st, orderEvents, router, mode)
	productService := service.NewProductService(st, cache.NewProductCache(rdb, cfg.Redis.ProductTTL), productEvents)
	userService := service.NewUserService(st, cache.NewSessionStore(rdb), cfg.JWTSecret, cfg.Redis.SessionTTL)
	if cfg.Admin.Password != "" {
		if _, err := userService.EnsureAdmin(ctx, cfg.Admin.Username, cfg.Admin.Email, cfg.Admin.Password); err != nil {
			logger.Fatal().Err(err).Msg("Failed to ensure admin account")
		}
	}

	if cfg.Kafka.Enabled {
		reader := config.NewKafkaReader(cfg.Kafka.Brokers, cfg.Kafka.ProductTopic, cfg.Kafka.ConsumerGroup)
		go func() {
			if err := events.NewConsumer(reader, productService).Start(ctx); err != nil {
				logger.Error().Err(err).Msg("Product consumer stopped")
			}
		}()
	}

	go func() {
		if err := productService.PreWarmCache(ctx); err != nil {
			logger.Warn().Err(err).Msg("Failed to pre-warm product cache")
		}
	}()

	e := echo.New()
	e.HideBanner = true
	e.Server.ReadTimeout = cfg.HTTP.Timeout
	e.Server.WriteTimeout = cfg.HTTP.Timeout

	limiterConfig := middleware.RateLimiterConfig{
		Skipper: func(c echo.Context) bool {
			return c.Path() == "/health" || c.Path() == "/metrics"
		},
		Store: middleware.NewRateLimiterMemoryStoreWithConfig(
			middleware.RateLimiterMemoryStoreConfig{
				Rate:      rate.Limit(cfg.HTTP.RateLimit),
				Burst:     cfg.HTTP.RateBurst,
				ExpiresIn: cfg.HTTP.RateTTL,
			}),
		IdentifierExtractor: func(context echo.Context) (string, error) {
			return context.RealIP(), nil
		},
		ErrorHandler: func(context echo.Context, err error) error {
			return context.JSON(http.StatusTooManyRequests, map[string]string{"error": "rate limit exceeded"})
		},
		DenyHandler: func(context echo.Context, identifier string, err error) error {
			return context.JSON(http.StatusTooManyRequests, map[string]string{"error": "rate limit exceeded"})
		},
	}

	serverMetrics := metrics.NewServerMetrics("order-service", prometheus.NewRegistry())

	e.Use(middleware.RequestIDWithConfig(middleware.RequestIDConfig{Generator: uuid.NewString}))
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(serverMetrics.Middleware())
	e.Use(middleware.RateLimiterWithConfig(limiterConfig))

	e.GET("/metrics", echo.WrapHandler(serverMetrics.Handler()))
	api.RegisterRoutes(e, api.Handlers{
		Orders:    api.NewOrderHandler(orderService, cache.NewIdempotencyGuard(rdb, cfg.Redis.IdempotentTTL)),
		Products:  api.NewProductHandler(productService),
		Users:     api.NewUserHandler(userService),
		JWTSecret: cfg.JWTSecret,
	})

	go func() {
		if err := e.Start(cfg.HTTP.Addr()); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("HTTP server failed")
		}
	}()

	<-ctx.Done()
	logger.Info().Msg("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("Failed to shut down HTTP server")
	}
}
