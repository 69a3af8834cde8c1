package main

import (
	"context"
	"database/sql"
	"time"

	"github.com/rs/zerolog"

	paymentsdb "paygate/internal/db/payments"
	"paygate/internal/payments"
)

var openPaymentsDB = func(driver, dsn string) (*sql.DB, error) {
	return sql.Open(driver, dsn)
}

// buildPaymentRepository wires the payment repository from DATABASE_URL. If
// the DSN is empty or initialization fails, it falls back to in-memory
// storage. The returned *sql.DB is nil in the in-memory case.
func buildPaymentRepository(ctx context.Context, dsn string, logger zerolog.Logger) (payments.Repository, *sql.DB, func()) {
	cleanup := func() {}

	if dsn == "" {
		logger.Info().Msg("DATABASE_URL not set, using in-memory payment repository")
		return payments.NewInMemoryRepository(), nil, cleanup
	}

	sqlDB, err := openPaymentsDB("pgx", dsn)
	if err != nil {
		logger.Warn().Err(err).Msg("postgres open failed, falling back to in-memory payments")
		return payments.NewInMemoryRepository(), nil, cleanup
	}

	setupCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	store, err := paymentsdb.NewPaymentStoreWithSchema(setupCtx, sqlDB)
	if err != nil {
		logger.Warn().Err(err).Msg("postgres init failed, falling back to in-memory payments")
		_ = sqlDB.Close()
		return payments.NewInMemoryRepository(), nil, cleanup
	}

	logger.Info().Msg("postgres payment repository enabled")
	cleanup = func() {
		if err := sqlDB.Close(); err != nil {
			logger.Warn().Err(err).Msg("close postgres")
		}
	}
	return store, sqlDB, cleanup
}
