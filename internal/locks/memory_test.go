package locks

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestAcquireIsExclusive(t *testing.T) {
	svc := NewMemory()
	ctx := context.Background()
	key := RequesterKey(uuid.New())

	token, ok, err := svc.Acquire(ctx, key, time.Minute)
	if err != nil || !ok {
		t.Fatalf("first acquire: ok=%v err=%v", ok, err)
	}

	if _, ok, _ := svc.Acquire(ctx, key, time.Minute); ok {
		t.Fatal("second acquire should fail while lock is held")
	}

	if err := svc.Release(ctx, key, token); err != nil {
		t.Fatalf("release: %v", err)
	}
	if _, ok, _ := svc.Acquire(ctx, key, time.Minute); !ok {
		t.Fatal("acquire after release should succeed")
	}
}

func TestAcquireAfterExpiry(t *testing.T) {
	svc := NewMemory()
	now := time.Now()
	svc.now = func() time.Time { return now }

	ctx := context.Background()
	key := ProviderKey(uuid.New())

	if _, ok, _ := svc.Acquire(ctx, key, 30*time.Second); !ok {
		t.Fatal("initial acquire failed")
	}

	now = now.Add(31 * time.Second)
	if _, ok, _ := svc.Acquire(ctx, key, 30*time.Second); !ok {
		t.Fatal("acquire after TTL expiry should succeed")
	}
}

func TestReleaseChecksToken(t *testing.T) {
	svc := NewMemory()
	ctx := context.Background()
	key := RequesterKey(uuid.New())

	token, ok, _ := svc.Acquire(ctx, key, time.Minute)
	if !ok {
		t.Fatal("acquire failed")
	}

	// A stale token (e.g. from a holder whose lock expired and was retaken)
	// must not release the current holder's lock.
	if err := svc.Release(ctx, key, uuid.New()); err != nil {
		t.Fatalf("release with wrong token: %v", err)
	}
	if !svc.Held(key) {
		t.Fatal("lock was released by a non-holder token")
	}

	if err := svc.Release(ctx, key, token); err != nil {
		t.Fatalf("release: %v", err)
	}
	if svc.Held(key) {
		t.Fatal("lock still held after owner release")
	}
}

func TestKeyScoping(t *testing.T) {
	id := uuid.New()
	if RequesterKey(id) == ProviderKey(id) {
		t.Fatal("requester and provider keys must not collide for the same id")
	}
}
