package payments

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// Repository abstracts payment persistence.
type Repository interface {
	Save(ctx context.Context, p *Payment) error
	// FindByID returns nil, nil when no payment has the given id.
	FindByID(ctx context.Context, paymentID string) (*Payment, error)
	Update(ctx context.Context, p *Payment) error
	// FindAll returns payments newest first. A zero status means no filter.
	FindAll(ctx context.Context, status Status, limit, offset int) ([]*Payment, error)
	Count(ctx context.Context, status Status) (int, error)
}

// Processor abstracts payment processing attempts.
type Processor interface {
	Process(ctx context.Context, paymentID string, amount decimal.Decimal) (ProcessingResult, error)
	ProcessRetry(ctx context.Context, paymentID string, amount decimal.Decimal) (ProcessingResult, error)
}

// IdempotencyRecord maps an idempotency key to the payment it produced.
type IdempotencyRecord struct {
	PaymentID string `json:"payment_id"`
}

// IdempotencyStore abstracts idempotency records and the per-key locks that
// serialize concurrent creates.
type IdempotencyStore interface {
	// GetExisting returns nil, nil when no record exists for the key.
	GetExisting(ctx context.Context, key string) (*IdempotencyRecord, error)
	Save(ctx context.Context, key string, rec IdempotencyRecord) error
	// AcquireLock reports false when another request holds the key's lock.
	AcquireLock(ctx context.Context, key string, ttl time.Duration) (bool, error)
	ReleaseLock(ctx context.Context, key string) error
}

// Event describes a payment status transition for subscribers.
type Event struct {
	PaymentID  string    `json:"payment_id"`
	Reference  string    `json:"reference"`
	Status     Status    `json:"status"`
	Retries    int       `json:"retries"`
	OccurredAt time.Time `json:"occurred_at"`
}

// EventPublisher broadcasts payment status transitions. Publishing is
// best-effort; failures never fail the operation that produced the event.
type EventPublisher interface {
	Publish(ctx context.Context, ev Event) error
}

// NopPublisher drops all events.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, Event) error { return nil }
