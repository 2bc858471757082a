package joblock

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func TestLocal_Exclusive(t *testing.T) {
	ctx := context.Background()
	l := NewLocal()

	unlock, err := l.TryLock(ctx, "planner", time.Minute)
	if err != nil {
		t.Fatalf("first TryLock: %v", err)
	}
	if _, err := l.TryLock(ctx, "planner", time.Minute); !errors.Is(err, ErrLocked) {
		t.Errorf("expected ErrLocked, got %v", err)
	}
	if _, err := l.TryLock(ctx, "delivery", time.Minute); err != nil {
		t.Errorf("other names must not contend: %v", err)
	}

	_ = unlock(ctx)
	if _, err := l.TryLock(ctx, "planner", time.Minute); err != nil {
		t.Errorf("expected lock to be free after unlock: %v", err)
	}
}

func TestLocal_ExpiredLeaseIsReclaimed(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, 6, 1, 8, 0, 0, 0, time.UTC)
	l := NewLocal()
	l.now = func() time.Time { return now }

	staleUnlock, err := l.TryLock(ctx, "pill", time.Minute)
	if err != nil {
		t.Fatal(err)
	}

	now = now.Add(2 * time.Minute)
	if _, err := l.TryLock(ctx, "pill", time.Minute); err != nil {
		t.Fatalf("expected expired lease to be reclaimable: %v", err)
	}

	// The stale holder must not free the new lease.
	_ = staleUnlock(ctx)
	if _, err := l.TryLock(ctx, "pill", time.Minute); !errors.Is(err, ErrLocked) {
		t.Errorf("expected ErrLocked after stale unlock, got %v", err)
	}
}

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *Redis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return mr, NewRedis(client)
}

func TestRedis_Exclusive(t *testing.T) {
	ctx := context.Background()
	mr, l := newTestRedis(t)

	unlock, err := l.TryLock(ctx, "planner", time.Minute)
	if err != nil {
		t.Fatalf("TryLock: %v", err)
	}
	if !mr.Exists(keyPrefix + "planner") {
		t.Fatal("expected lock key in redis")
	}
	if _, err := l.TryLock(ctx, "planner", time.Minute); !errors.Is(err, ErrLocked) {
		t.Errorf("expected ErrLocked, got %v", err)
	}

	if err := unlock(ctx); err != nil {
		t.Fatalf("unlock: %v", err)
	}
	if mr.Exists(keyPrefix + "planner") {
		t.Error("expected key removed after unlock")
	}
}

func TestRedis_TTLExpiry(t *testing.T) {
	ctx := context.Background()
	mr, l := newTestRedis(t)

	staleUnlock, err := l.TryLock(ctx, "delivery", time.Second)
	if err != nil {
		t.Fatal(err)
	}
	mr.FastForward(2 * time.Second)

	if _, err := l.TryLock(ctx, "delivery", time.Minute); err != nil {
		t.Fatalf("expected lock free after ttl: %v", err)
	}

	// Releasing with a stale token leaves the new holder in place.
	if err := staleUnlock(ctx); err != nil {
		t.Fatalf("stale unlock: %v", err)
	}
	if !mr.Exists(keyPrefix + "delivery") {
		t.Error("stale unlock removed the new holder's key")
	}
}

func TestRedis_ConnectionError(t *testing.T) {
	mr, l := newTestRedis(t)
	mr.Close()

	_, err := l.TryLock(context.Background(), "planner", time.Minute)
	if err == nil || errors.Is(err, ErrLocked) {
		t.Errorf("expected transport error, got %v", err)
	}
}
