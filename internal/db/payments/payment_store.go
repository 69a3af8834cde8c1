package paymentsdb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"paygate/internal/payments"
)

// PaymentStore persists payments in Postgres. Amounts are stored as their
// exact decimal string so values round-trip without float drift.
type PaymentStore struct {
	db *sql.DB
}

// NewPaymentStore constructs a payment repository backed by Postgres.
func NewPaymentStore(db *sql.DB) *PaymentStore {
	return &PaymentStore{db: db}
}

// NewPaymentStoreWithSchema initializes the schema then returns the store.
func NewPaymentStoreWithSchema(ctx context.Context, db *sql.DB) (*PaymentStore, error) {
	store := NewPaymentStore(db)
	if err := store.InitSchema(ctx); err != nil {
		return nil, err
	}
	return store, nil
}

// InitSchema creates the payments table and its indexes if they do not exist.
func (s *PaymentStore) InitSchema(ctx context.Context) error {
	stmts := []string{
		`
		CREATE TABLE IF NOT EXISTS payments (
			payment_id TEXT PRIMARY KEY,
			reference TEXT NOT NULL,
			amount TEXT NOT NULL,
			currency TEXT NOT NULL CHECK (char_length(currency) = 3),
			status TEXT NOT NULL DEFAULT 'PENDING' CHECK (status IN ('PENDING', 'SUCCESS', 'FAILED', 'EXHAUSTED')),
			retries INTEGER NOT NULL DEFAULT 0 CHECK (retries >= 0 AND retries <= 3),
			created_at TIMESTAMPTZ NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL
		)
		`,
		`CREATE INDEX IF NOT EXISTS idx_payments_status ON payments (status)`,
		`CREATE INDEX IF NOT EXISTS idx_payments_reference ON payments (reference)`,
		`CREATE INDEX IF NOT EXISTS idx_payments_created_at ON payments (created_at)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return payments.NewPersistenceError("init schema", err)
		}
	}
	return nil
}

func (s *PaymentStore) Save(ctx context.Context, payment *payments.Payment) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO payments (payment_id, reference, amount, currency, status, retries, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`,
		payment.ID,
		payment.Reference,
		payment.Amount.String(),
		payment.Currency,
		string(payment.Status),
		payment.Retries,
		payment.CreatedAt,
		payment.UpdatedAt,
	)
	if err != nil {
		return payments.NewPersistenceError("save payment", err)
	}
	return nil
}

func (s *PaymentStore) FindByID(ctx context.Context, paymentID string) (*payments.Payment, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT payment_id, reference, amount, currency, status, retries, created_at, updated_at
		FROM payments
		WHERE payment_id = $1
	`, paymentID)

	payment, err := scanPayment(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, payments.NewPersistenceError("find payment", err)
	}
	return payment, nil
}

func (s *PaymentStore) Update(ctx context.Context, payment *payments.Payment) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE payments
		SET reference = $2, amount = $3, currency = $4, status = $5, retries = $6, updated_at = $7
		WHERE payment_id = $1
	`,
		payment.ID,
		payment.Reference,
		payment.Amount.String(),
		payment.Currency,
		string(payment.Status),
		payment.Retries,
		payment.UpdatedAt,
	)
	if err != nil {
		return payments.NewPersistenceError("update payment", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return payments.NewPersistenceError("update payment", err)
	}
	if affected == 0 {
		return payments.NewNotFoundError(payment.ID)
	}
	return nil
}

// FindAll pages through payments newest first. A zero status applies no
// filter.
func (s *PaymentStore) FindAll(ctx context.Context, status payments.Status, limit, offset int) ([]*payments.Payment, error) {
	query := `
		SELECT payment_id, reference, amount, currency, status, retries, created_at, updated_at
		FROM payments
	`
	args := []any{}
	if status != "" {
		query += ` WHERE status = $1 ORDER BY created_at DESC LIMIT $2 OFFSET $3`
		args = append(args, string(status), limit, offset)
	} else {
		query += ` ORDER BY created_at DESC LIMIT $1 OFFSET $2`
		args = append(args, limit, offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, payments.NewPersistenceError("list payments", err)
	}
	defer rows.Close()

	var page []*payments.Payment
	for rows.Next() {
		payment, err := scanPayment(rows)
		if err != nil {
			return nil, payments.NewPersistenceError("list payments", err)
		}
		page = append(page, payment)
	}
	if err := rows.Err(); err != nil {
		return nil, payments.NewPersistenceError("list payments", err)
	}
	return page, nil
}

func (s *PaymentStore) Count(ctx context.Context, status payments.Status) (int, error) {
	var (
		total int
		err   error
	)
	if status != "" {
		err = s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM payments WHERE status = $1`, string(status)).Scan(&total)
	} else {
		err = s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM payments`).Scan(&total)
	}
	if err != nil {
		return 0, payments.NewPersistenceError("count payments", err)
	}
	return total, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPayment(row rowScanner) (*payments.Payment, error) {
	var (
		payment payments.Payment
		amount  string
		status  string
	)
	err := row.Scan(
		&payment.ID,
		&payment.Reference,
		&amount,
		&payment.Currency,
		&status,
		&payment.Retries,
		&payment.CreatedAt,
		&payment.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	parsed, err := decimal.NewFromString(amount)
	if err != nil {
		return nil, fmt.Errorf("parse amount %q: %w", amount, err)
	}
	payment.Amount = parsed
	payment.Status = payments.Status(status)
	return &payment, nil
}
