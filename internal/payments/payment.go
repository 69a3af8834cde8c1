package payments

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Status is the lifecycle state of a payment.
type Status string

const (
	StatusPending   Status = "PENDING"
	StatusSuccess   Status = "SUCCESS"
	StatusFailed    Status = "FAILED"
	StatusExhausted Status = "EXHAUSTED"
)

// MaxRetries is the retry budget of a single payment.
const MaxRetries = 3

// Statuses returns every valid payment status.
func Statuses() []Status {
	return []Status{StatusPending, StatusSuccess, StatusFailed, StatusExhausted}
}

// ParseStatus validates a raw status string, typically a client-supplied
// filter value.
func ParseStatus(raw string) (Status, error) {
	switch s := Status(raw); s {
	case StatusPending, StatusSuccess, StatusFailed, StatusExhausted:
		return s, nil
	}
	names := make([]string, 0, 4)
	for _, s := range Statuses() {
		names = append(names, string(s))
	}
	return "", NewValidationError(
		fmt.Sprintf("Invalid status '%s'. Valid values: %s", raw, strings.Join(names, ", ")),
		"status",
	)
}

// CanRetry reports whether the status permits a retry attempt.
func (s Status) CanRetry() bool { return s == StatusFailed }

// IsFinal reports whether the status is terminal.
func (s Status) IsFinal() bool { return s == StatusSuccess || s == StatusExhausted }

// Payment is a payment transaction. Identity is the ID; two payments with the
// same ID describe the same transaction.
type Payment struct {
	ID        string
	Reference string
	Amount    decimal.Decimal
	Currency  string
	Status    Status
	Retries   int
	CreatedAt time.Time
	UpdatedAt time.Time
}

// NewPayment validates the inputs and returns a new payment in PENDING
// status. The reference is trimmed and the currency uppercased before
// storage.
func NewPayment(reference string, amount decimal.Decimal, currency string) (*Payment, error) {
	reference = strings.TrimSpace(reference)
	if reference == "" {
		return nil, NewValidationError("Reference cannot be empty", "reference")
	}
	if !amount.IsPositive() {
		return nil, NewValidationError("Amount must be greater than zero", "amount")
	}
	if len(currency) != 3 {
		return nil, NewValidationError("Currency must be exactly 3 characters", "currency")
	}

	now := time.Now().UTC()
	return &Payment{
		ID:        uuid.NewString(),
		Reference: reference,
		Amount:    amount,
		Currency:  strings.ToUpper(currency),
		Status:    StatusPending,
		Retries:   0,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

// CanRetry reports whether the payment is FAILED with retries remaining.
func (p *Payment) CanRetry() bool {
	return p.Status.CanRetry() && p.Retries < MaxRetries
}

// MarkSuccess transitions the payment to SUCCESS.
func (p *Payment) MarkSuccess() {
	p.Status = StatusSuccess
	p.touch()
}

// MarkFailed transitions the payment to FAILED.
func (p *Payment) MarkFailed() {
	p.Status = StatusFailed
	p.touch()
}

// MarkExhausted transitions the payment to EXHAUSTED.
func (p *Payment) MarkExhausted() {
	p.Status = StatusExhausted
	p.touch()
}

// IncrementRetries bumps the retry counter. It re-validates eligibility so a
// stale caller cannot push a payment past its budget or retry a terminal one.
func (p *Payment) IncrementRetries() error {
	if !p.Status.CanRetry() {
		return NewCannotRetryError(p.ID, p.Status)
	}
	if p.Retries >= MaxRetries {
		return NewMaxRetriesError(p.ID, MaxRetries)
	}
	p.Retries++
	p.touch()
	return nil
}

// ProcessRetryResult applies the outcome of a retry attempt: success ends in
// SUCCESS, failure at the retry budget ends in EXHAUSTED, failure below it
// stays FAILED.
func (p *Payment) ProcessRetryResult(success bool) {
	switch {
	case success:
		p.MarkSuccess()
	case p.Retries >= MaxRetries:
		p.MarkExhausted()
	default:
		p.MarkFailed()
	}
}

func (p *Payment) touch() {
	p.UpdatedAt = time.Now().UTC()
}
