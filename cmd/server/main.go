package main

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"paygate/cmd/server/config"
	"paygate/internal/httpapi"
	"paygate/internal/observability"
	"paygate/internal/payments"
	"paygate/internal/realtime"

	_ "github.com/jackc/pgx/v5/stdlib"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	_ = godotenv.Load()
	logger := newLogger()

	if err := run(ctx, logger); err != nil {
		logger.Fatal().Err(err).Msg("server error")
	}
}

func newLogger() zerolog.Logger {
	zerolog.TimeFieldFormat = time.RFC3339
	if os.Getenv("APP_ENV") != "production" {
		return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()
	}
	return zerolog.New(os.Stderr).With().Timestamp().Logger()
}

func run(ctx context.Context, logger zerolog.Logger) error {
	httpCfg, err := config.LoadHTTP()
	if err != nil {
		return err
	}
	idemCfg, err := config.LoadIdempotency()
	if err != nil {
		return err
	}
	procCfg, err := config.LoadProcessing()
	if err != nil {
		return err
	}

	store, redisClient, cleanupStore, err := buildIdempotencyStore(ctx, idemCfg.RecordTTL, logger)
	if err != nil {
		return err
	}
	defer cleanupStore()

	repo, sqlDB, cleanupRepo := buildPaymentRepository(ctx, os.Getenv("DATABASE_URL"), logger)
	defer cleanupRepo()

	hub := realtime.NewHub()
	go hub.Run(ctx)

	service := payments.NewService(
		repo,
		buildProcessor(procCfg),
		store,
		realtime.NewEventBroadcaster(hub),
		idemCfg.LockTTL,
		logger,
	)

	metrics := observability.NewMetrics()
	var limiter *httpapi.RateLimiter
	if httpCfg.RateLimitInterval != nil && httpCfg.RateLimitBurst != nil {
		limiter = httpapi.NewRateLimiter(*httpCfg.RateLimitInterval, *httpCfg.RateLimitBurst, metrics.AddRateLimitWait)
	}

	handler := httpapi.New(httpapi.Config{
		Service: service,
		Hub:     hub,
		Metrics: metrics,
		Limiter: limiter,
		Logger:  logger,
		Health: map[string]httpapi.HealthCheck{
			"redis":    redisCheck(redisClient),
			"database": databaseCheck(sqlDB),
		},
	})

	srv := &http.Server{
		Addr:    httpCfg.Addr,
		Handler: handler,
	}

	logger.Info().Str("addr", httpCfg.Addr).Msg("server listening")

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		metrics.MarkShutdown(metrics.Snapshot().InFlight)
		shutdownCtx, cancel := context.WithTimeout(context.Background(), httpCfg.ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

// buildProcessor returns the payment simulator, wrapped in reliability
// controls when any processor reliability knob is configured.
func buildProcessor(cfg config.ProcessingConfig) payments.Processor {
	base := payments.NewSimulatedProcessor(cfg.RetrySuccessProbability, nil)
	if !cfg.ReliabilityEnabled() {
		return base
	}

	var limiter *payments.RateLimiter
	if cfg.RateLimitInterval != nil && cfg.RateLimitBurst != nil {
		limiter = payments.NewRateLimiter(*cfg.RateLimitInterval, *cfg.RateLimitBurst)
	}
	var breaker *payments.CircuitBreaker
	if cfg.BreakerMaxFailures != nil {
		breakerCfg := payments.CircuitBreakerConfig{MaxFailures: *cfg.BreakerMaxFailures}
		if cfg.BreakerResetTimeout != nil {
			breakerCfg.ResetTimeout = *cfg.BreakerResetTimeout
		}
		breaker = payments.NewCircuitBreaker(breakerCfg)
	}
	retry := payments.RetryPolicy{}
	if cfg.RetryMaxAttempts != nil {
		retry.MaxAttempts = *cfg.RetryMaxAttempts
	}
	if cfg.RetryBaseDelay != nil {
		retry.BaseDelay = *cfg.RetryBaseDelay
	}
	if cfg.RetryMaxDelay != nil {
		retry.MaxDelay = *cfg.RetryMaxDelay
	}
	return payments.NewReliableProcessor(base, limiter, breaker, retry)
}

func redisCheck(client *redis.Client) httpapi.HealthCheck {
	return func(ctx context.Context) error {
		return client.Ping(ctx).Err()
	}
}

func databaseCheck(db *sql.DB) httpapi.HealthCheck {
	return func(ctx context.Context) error {
		if db == nil {
			return nil
		}
		return db.PingContext(ctx)
	}
}
