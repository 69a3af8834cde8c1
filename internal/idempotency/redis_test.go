package idempotency

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"paygate/internal/payments"
)

func newTestStore(t *testing.T, recordTTL time.Duration) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		if err := client.Close(); err != nil {
			t.Errorf("close client: %v", err)
		}
	})
	return NewRedisStore(client, recordTTL), mr
}

func TestRedisStore_SaveAndGetExisting(t *testing.T) {
	store, mr := newTestStore(t, time.Hour)
	ctx := context.Background()

	err := store.Save(ctx, "order-123", payments.IdempotencyRecord{PaymentID: "pay-1"})
	if err != nil {
		t.Fatalf("save: %v", err)
	}

	rec, err := store.GetExisting(ctx, "order-123")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if rec == nil || rec.PaymentID != "pay-1" {
		t.Fatalf("unexpected record: %+v", rec)
	}

	if !mr.Exists("idempotency:order-123") {
		t.Fatalf("expected record under the idempotency prefix")
	}
	if ttl := mr.TTL("idempotency:order-123"); ttl != time.Hour {
		t.Fatalf("expected 1h TTL, got %v", ttl)
	}
}

func TestRedisStore_GetExisting_Absent(t *testing.T) {
	store, _ := newTestStore(t, time.Hour)

	rec, err := store.GetExisting(context.Background(), "missing")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if rec != nil {
		t.Fatalf("expected nil record, got %+v", rec)
	}
}

func TestRedisStore_GetExisting_MalformedRecord(t *testing.T) {
	store, mr := newTestStore(t, time.Hour)

	if err := mr.Set("idempotency:broken", "{not json"); err != nil {
		t.Fatalf("seed: %v", err)
	}

	if _, err := store.GetExisting(context.Background(), "broken"); err == nil {
		t.Fatalf("expected unmarshal error")
	}
}

func TestRedisStore_RecordExpires(t *testing.T) {
	store, mr := newTestStore(t, time.Hour)
	ctx := context.Background()

	if err := store.Save(ctx, "order-ttl", payments.IdempotencyRecord{PaymentID: "pay-2"}); err != nil {
		t.Fatalf("save: %v", err)
	}

	mr.FastForward(time.Hour + time.Minute)

	rec, err := store.GetExisting(ctx, "order-ttl")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if rec != nil {
		t.Fatalf("expected expired record to be gone, got %+v", rec)
	}
}

func TestRedisStore_DefaultRecordTTL(t *testing.T) {
	store, mr := newTestStore(t, 0)
	ctx := context.Background()

	if err := store.Save(ctx, "order-default", payments.IdempotencyRecord{PaymentID: "pay-3"}); err != nil {
		t.Fatalf("save: %v", err)
	}
	if ttl := mr.TTL("idempotency:order-default"); ttl != DefaultRecordTTL {
		t.Fatalf("expected default TTL %v, got %v", DefaultRecordTTL, ttl)
	}
}

func TestRedisStore_Locks(t *testing.T) {
	store, mr := newTestStore(t, time.Hour)
	ctx := context.Background()

	ok, err := store.AcquireLock(ctx, "order-123", 10*time.Second)
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	if !ok {
		t.Fatalf("expected first acquire to succeed")
	}
	if ttl := mr.TTL("lock:idempotency:order-123"); ttl != 10*time.Second {
		t.Fatalf("expected 10s lock TTL, got %v", ttl)
	}

	ok, err = store.AcquireLock(ctx, "order-123", 10*time.Second)
	if err != nil {
		t.Fatalf("acquire held: %v", err)
	}
	if ok {
		t.Fatalf("expected acquire on held lock to fail")
	}

	if err := store.ReleaseLock(ctx, "order-123"); err != nil {
		t.Fatalf("release: %v", err)
	}

	ok, err = store.AcquireLock(ctx, "order-123", 10*time.Second)
	if err != nil {
		t.Fatalf("reacquire: %v", err)
	}
	if !ok {
		t.Fatalf("expected acquire after release to succeed")
	}
}

func TestRedisStore_LockExpires(t *testing.T) {
	store, mr := newTestStore(t, time.Hour)
	ctx := context.Background()

	ok, err := store.AcquireLock(ctx, "order-exp", 5*time.Second)
	if err != nil || !ok {
		t.Fatalf("acquire: ok=%v err=%v", ok, err)
	}

	mr.FastForward(6 * time.Second)

	ok, err = store.AcquireLock(ctx, "order-exp", 5*time.Second)
	if err != nil {
		t.Fatalf("reacquire: %v", err)
	}
	if !ok {
		t.Fatalf("expected acquire after lock expiry to succeed")
	}
}
