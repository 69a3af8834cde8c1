// Package idempotency provides the Redis-backed idempotency store used to
// deduplicate payment creation requests.
package idempotency

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"paygate/internal/payments"
)

// DefaultRecordTTL is how long a key-to-payment mapping is retained when no
// TTL is configured.
const DefaultRecordTTL = 24 * time.Hour

// Client is the minimal Redis surface used by RedisStore.
type Client interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd
	SetNX(ctx context.Context, key string, value any, expiration time.Duration) *redis.BoolCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
}

// RedisStore implements the idempotency store on Redis. Records map an
// idempotency key to the payment it produced; locks guard concurrent
// creation for the same key.
type RedisStore struct {
	client     Client
	keyPrefix  string
	lockPrefix string
	recordTTL  time.Duration
}

// NewRedisStore constructs a Redis-backed idempotency store. A non-positive
// recordTTL falls back to DefaultRecordTTL.
func NewRedisStore(client Client, recordTTL time.Duration) *RedisStore {
	if recordTTL <= 0 {
		recordTTL = DefaultRecordTTL
	}
	return &RedisStore{
		client:     client,
		keyPrefix:  "idempotency:",
		lockPrefix: "lock:idempotency:",
		recordTTL:  recordTTL,
	}
}

// GetExisting returns the record stored for the key, or nil when the key is
// unknown or expired.
func (s *RedisStore) GetExisting(ctx context.Context, key string) (*payments.IdempotencyRecord, error) {
	raw, err := s.client.Get(ctx, s.keyPrefix+key).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var rec payments.IdempotencyRecord
	if err := json.Unmarshal([]byte(raw), &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

// Save stores the key-to-payment mapping with the configured TTL.
func (s *RedisStore) Save(ctx context.Context, key string, record payments.IdempotencyRecord) error {
	payload, err := json.Marshal(record)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, s.keyPrefix+key, payload, s.recordTTL).Err()
}

// AcquireLock attempts to take the creation lock for the key. It returns
// false without error when another request already holds it.
func (s *RedisStore) AcquireLock(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	return s.client.SetNX(ctx, s.lockPrefix+key, "1", ttl).Result()
}

// ReleaseLock deletes the creation lock. The delete is not fenced to the
// original holder: a request that outlives the lock TTL can remove a lock
// acquired by a later request for the same key.
func (s *RedisStore) ReleaseLock(ctx context.Context, key string) error {
	return s.client.Del(ctx, s.lockPrefix+key).Err()
}
