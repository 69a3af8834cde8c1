package payments

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// DefaultLockTTL bounds how long a create request may hold an idempotency
// lock before it expires on its own.
const DefaultLockTTL = 10 * time.Second

// DefaultListLimit is the page size used when a caller does not supply one.
const DefaultListLimit = 100

// CreateParams carries the inputs of CreatePayment.
type CreateParams struct {
	Reference      string
	Amount         decimal.Decimal
	Currency       string
	IdempotencyKey string
}

// ListParams carries filtering and pagination for ListPayments.
type ListParams struct {
	Status string
	Limit  int
	Offset int
}

// Service coordinates payment creation, retrieval, retry and listing over
// the persistence, processing and idempotency ports.
type Service struct {
	repo        Repository
	processor   Processor
	idempotency IdempotencyStore
	events      EventPublisher
	lockTTL     time.Duration
	logger      zerolog.Logger
}

// NewService constructs a Service. A nil events publisher defaults to
// NopPublisher and a non-positive lockTTL to DefaultLockTTL.
func NewService(
	repo Repository,
	processor Processor,
	idempotency IdempotencyStore,
	events EventPublisher,
	lockTTL time.Duration,
	logger zerolog.Logger,
) *Service {
	if events == nil {
		events = NopPublisher{}
	}
	if lockTTL <= 0 {
		lockTTL = DefaultLockTTL
	}
	return &Service{
		repo:        repo,
		processor:   processor,
		idempotency: idempotency,
		events:      events,
		lockTTL:     lockTTL,
		logger:      logger,
	}
}

// CreatePayment runs the idempotency-guarded creation flow: replay check,
// lock, validate, persist as PENDING, process, persist the outcome, then
// publish the key mapping. The bool result reports whether a new payment was
// created; a replayed idempotency key returns the original payment with
// false.
func (s *Service) CreatePayment(ctx context.Context, params CreateParams) (*Payment, bool, error) {
	s.logger.Info().
		Str("reference", params.Reference).
		Str("amount", params.Amount.String()).
		Str("currency", params.Currency).
		Str("idempotency_key", params.IdempotencyKey).
		Msg("creating payment")

	if existing, err := s.findExisting(ctx, params.IdempotencyKey); err != nil {
		return nil, false, err
	} else if existing != nil {
		return existing, false, nil
	}

	locked, err := s.idempotency.AcquireLock(ctx, params.IdempotencyKey, s.lockTTL)
	if err != nil {
		return nil, false, err
	}
	if locked {
		// The lock holder releases exactly once, even when the request
		// context has been canceled mid-flight.
		defer s.releaseLock(ctx, params.IdempotencyKey)
	} else {
		// Another request holds the lock. It may have finished already, so
		// check once more; otherwise proceed without the lock rather than
		// block the caller.
		s.logger.Warn().
			Str("idempotency_key", params.IdempotencyKey).
			Msg("idempotency lock contended, re-checking for existing payment")
		if existing, err := s.findExisting(ctx, params.IdempotencyKey); err != nil {
			return nil, false, err
		} else if existing != nil {
			return existing, false, nil
		}
	}

	payment, err := NewPayment(params.Reference, params.Amount, params.Currency)
	if err != nil {
		return nil, false, err
	}

	if err := s.repo.Save(ctx, payment); err != nil {
		return nil, false, err
	}
	s.logger.Info().
		Str("payment_id", payment.ID).
		Msg("payment persisted as PENDING")

	result, err := s.processor.Process(ctx, payment.ID, payment.Amount)
	if err != nil {
		return nil, false, err
	}
	if result.Success {
		payment.MarkSuccess()
	} else {
		payment.MarkFailed()
	}
	s.logger.Info().
		Str("payment_id", payment.ID).
		Bool("success", result.Success).
		Str("message", result.Message).
		Msg("payment processed")

	if err := s.repo.Update(ctx, payment); err != nil {
		return nil, false, err
	}

	// The key mapping is published only after the final state is durable, so
	// a replay can never resolve to a payment that is not in the repository.
	if err := s.idempotency.Save(ctx, params.IdempotencyKey, IdempotencyRecord{PaymentID: payment.ID}); err != nil {
		return nil, false, err
	}

	s.publish(ctx, payment)
	return payment, true, nil
}

// GetPayment returns the payment with the given id.
func (s *Service) GetPayment(ctx context.Context, paymentID string) (*Payment, error) {
	payment, err := s.repo.FindByID(ctx, paymentID)
	if err != nil {
		return nil, err
	}
	if payment == nil {
		return nil, NewNotFoundError(paymentID)
	}
	return payment, nil
}

// RetryPayment re-processes a FAILED payment with retries remaining. The
// retry outcome is decided by the processor's retry path, not the amount
// threshold.
func (s *Service) RetryPayment(ctx context.Context, paymentID string) (*Payment, error) {
	s.logger.Info().
		Str("payment_id", paymentID).
		Msg("retrying payment")

	payment, err := s.repo.FindByID(ctx, paymentID)
	if err != nil {
		return nil, err
	}
	if payment == nil {
		s.logger.Warn().
			Str("payment_id", paymentID).
			Msg("payment not found")
		return nil, NewNotFoundError(paymentID)
	}

	if err := payment.IncrementRetries(); err != nil {
		s.logger.Warn().
			Str("payment_id", payment.ID).
			Str("status", string(payment.Status)).
			Int("retries", payment.Retries).
			Msg("payment not eligible for retry")
		return nil, err
	}

	result, err := s.processor.ProcessRetry(ctx, payment.ID, payment.Amount)
	if err != nil {
		return nil, err
	}
	payment.ProcessRetryResult(result.Success)

	if err := s.repo.Update(ctx, payment); err != nil {
		return nil, err
	}

	s.logger.Info().
		Str("payment_id", payment.ID).
		Str("status", string(payment.Status)).
		Int("retries", payment.Retries).
		Bool("success", result.Success).
		Msg("payment retry processed")

	s.publish(ctx, payment)
	return payment, nil
}

// ListPayments returns a page of payments newest first plus the total count
// for the filter. Non-positive limits fall back to DefaultListLimit.
func (s *Service) ListPayments(ctx context.Context, params ListParams) ([]*Payment, int, error) {
	var status Status
	if params.Status != "" {
		parsed, err := ParseStatus(params.Status)
		if err != nil {
			return nil, 0, err
		}
		status = parsed
	}

	limit := params.Limit
	if limit <= 0 {
		limit = DefaultListLimit
	}
	offset := params.Offset
	if offset < 0 {
		offset = 0
	}

	page, err := s.repo.FindAll(ctx, status, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	total, err := s.repo.Count(ctx, status)
	if err != nil {
		return nil, 0, err
	}
	return page, total, nil
}

// findExisting resolves an idempotency key to its payment. A record whose
// payment is missing from the repository is treated as absent, so the
// request proceeds as a fresh create.
func (s *Service) findExisting(ctx context.Context, key string) (*Payment, error) {
	rec, err := s.idempotency.GetExisting(ctx, key)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, nil
	}
	payment, err := s.repo.FindByID(ctx, rec.PaymentID)
	if err != nil {
		return nil, err
	}
	if payment == nil {
		return nil, nil
	}
	s.logger.Info().
		Str("idempotency_key", key).
		Str("payment_id", payment.ID).
		Msg("idempotency key replayed, returning existing payment")
	return payment, nil
}

func (s *Service) releaseLock(ctx context.Context, key string) {
	if err := s.idempotency.ReleaseLock(context.WithoutCancel(ctx), key); err != nil {
		s.logger.Warn().
			Err(err).
			Str("idempotency_key", key).
			Msg("release idempotency lock")
	}
}

func (s *Service) publish(ctx context.Context, payment *Payment) {
	ev := Event{
		PaymentID:  payment.ID,
		Reference:  payment.Reference,
		Status:     payment.Status,
		Retries:    payment.Retries,
		OccurredAt: payment.UpdatedAt,
	}
	if err := s.events.Publish(ctx, ev); err != nil {
		s.logger.Warn().
			Err(err).
			Str("payment_id", payment.ID).
			Msg("publish payment event")
	}
}
