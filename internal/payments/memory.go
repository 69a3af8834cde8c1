package payments

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// InMemoryRepository keeps payments in process memory. It backs local runs
// and tests when no database is configured.
type InMemoryRepository struct {
	mu       sync.RWMutex
	payments map[string]*Payment
	order    []string
}

// NewInMemoryRepository returns an empty in-memory repository.
func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{payments: make(map[string]*Payment)}
}

func (r *InMemoryRepository) Save(ctx context.Context, payment *Payment) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.payments[payment.ID]; ok {
		return NewPersistenceError("save payment", fmt.Errorf("payment %q already exists", payment.ID))
	}
	r.payments[payment.ID] = clonePayment(payment)
	r.order = append(r.order, payment.ID)
	return nil
}

func (r *InMemoryRepository) FindByID(ctx context.Context, paymentID string) (*Payment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	payment, ok := r.payments[paymentID]
	if !ok {
		return nil, nil
	}
	return clonePayment(payment), nil
}

func (r *InMemoryRepository) Update(ctx context.Context, payment *Payment) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.payments[payment.ID]; !ok {
		return NewNotFoundError(payment.ID)
	}
	r.payments[payment.ID] = clonePayment(payment)
	return nil
}

// FindAll pages through payments newest first. A zero status applies no
// filter.
func (r *InMemoryRepository) FindAll(ctx context.Context, status Status, limit, offset int) ([]*Payment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var matched []*Payment
	for i := len(r.order) - 1; i >= 0; i-- {
		payment := r.payments[r.order[i]]
		if status != "" && payment.Status != status {
			continue
		}
		matched = append(matched, payment)
	}

	if offset >= len(matched) {
		return nil, nil
	}
	matched = matched[offset:]
	if limit < len(matched) {
		matched = matched[:limit]
	}

	page := make([]*Payment, len(matched))
	for i, payment := range matched {
		page[i] = clonePayment(payment)
	}
	return page, nil
}

func (r *InMemoryRepository) Count(ctx context.Context, status Status) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if status == "" {
		return len(r.payments), nil
	}
	n := 0
	for _, payment := range r.payments {
		if payment.Status == status {
			n++
		}
	}
	return n, nil
}

func clonePayment(p *Payment) *Payment {
	c := *p
	return &c
}

// InMemoryIdempotencyStore mirrors the Redis idempotency store for local
// runs and tests, including record and lock expiry.
type InMemoryIdempotencyStore struct {
	mu        sync.Mutex
	records   map[string]IdempotencyRecord
	expiry    map[string]time.Time
	locks     map[string]time.Time
	recordTTL time.Duration
	now       func() time.Time
}

// NewInMemoryIdempotencyStore returns an empty store whose records expire
// after recordTTL. A non-positive recordTTL keeps records forever.
func NewInMemoryIdempotencyStore(recordTTL time.Duration) *InMemoryIdempotencyStore {
	return &InMemoryIdempotencyStore{
		records:   make(map[string]IdempotencyRecord),
		expiry:    make(map[string]time.Time),
		locks:     make(map[string]time.Time),
		recordTTL: recordTTL,
		now:       time.Now,
	}
}

func (s *InMemoryIdempotencyStore) GetExisting(ctx context.Context, key string) (*IdempotencyRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[key]
	if !ok {
		return nil, nil
	}
	if deadline, ok := s.expiry[key]; ok && !s.now().Before(deadline) {
		delete(s.records, key)
		delete(s.expiry, key)
		return nil, nil
	}
	return &rec, nil
}

func (s *InMemoryIdempotencyStore) Save(ctx context.Context, key string, record IdempotencyRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[key] = record
	if s.recordTTL > 0 {
		s.expiry[key] = s.now().Add(s.recordTTL)
	}
	return nil
}

func (s *InMemoryIdempotencyStore) AcquireLock(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if deadline, ok := s.locks[key]; ok && s.now().Before(deadline) {
		return false, nil
	}
	s.locks[key] = s.now().Add(ttl)
	return true, nil
}

func (s *InMemoryIdempotencyStore) ReleaseLock(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.locks, key)
	return nil
}
