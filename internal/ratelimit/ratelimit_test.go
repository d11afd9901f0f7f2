package ratelimit

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
)

func TestKeyedRateLimiter_BurstPerClient(t *testing.T) {
	rl := New(1, 3)
	defer rl.Stop()

	// Each client gets its own bucket: the first three requests of every
	// client pass, the fourth is rejected.
	for _, client := range []string{"203.0.113.7", "198.51.100.2"} {
		for i := range 3 {
			if !rl.Allow(client) {
				t.Fatalf("%s request %d rejected within burst", client, i+1)
			}
		}
		if rl.Allow(client) {
			t.Errorf("%s allowed past burst", client)
		}
	}

	if rl.Len() != 2 {
		t.Errorf("Len() = %d, want 2", rl.Len())
	}
}

func TestKeyedRateLimiter_WaitRefills(t *testing.T) {
	rl := New(20, 1) // one token every 50ms
	defer rl.Stop()

	ctx, cancel := context.WithTimeout(t.Context(), time.Second)
	defer cancel()

	if err := rl.Wait(ctx, "catalog.example.com"); err != nil {
		t.Fatalf("first Wait() = %v", err)
	}

	start := time.Now()
	if err := rl.Wait(ctx, "catalog.example.com"); err != nil {
		t.Fatalf("second Wait() = %v", err)
	}
	if waited := time.Since(start); waited < 30*time.Millisecond {
		t.Errorf("second Wait() returned after %v, expected to wait for a refill", waited)
	}
}

func TestKeyedRateLimiter_WaitGivesUpOnDeadline(t *testing.T) {
	rl := New(0.01, 1) // effectively one request per 100s
	defer rl.Stop()

	rl.Allow("catalog.example.com")

	ctx, cancel := context.WithTimeout(t.Context(), 20*time.Millisecond)
	defer cancel()

	err := rl.Wait(ctx, "catalog.example.com")
	if err == nil {
		t.Fatal("Wait() succeeded with an exhausted bucket and a short deadline")
	}
	if errors.Is(err, context.Canceled) {
		t.Errorf("Wait() = %v, want a deadline error", err)
	}
}

func TestKeyedRateLimiter_StopIsIdempotent(t *testing.T) {
	rl := New(1, 1)
	rl.Stop()
	rl.Stop()

	// Limiting still works after the cleanup loop is gone.
	if !rl.Allow("203.0.113.7") {
		t.Error("Allow() after Stop rejected a fresh key")
	}
}

func TestKeyedRateLimiter_EvictsIdleKeys(t *testing.T) {
	clock := clockwork.NewFakeClock()
	rl := New(1, 1, WithClock(clock), WithIdleTTL(time.Minute))
	defer rl.Stop()

	rl.Allow("idle")
	clock.Advance(45 * time.Second)
	rl.Allow("active")

	clock.Advance(30 * time.Second)
	if n := rl.evictIdle(); n != 1 {
		t.Errorf("evictIdle() = %d, want 1", n)
	}
	if rl.Len() != 1 {
		t.Errorf("Len() = %d, want 1", rl.Len())
	}

	// An evicted key starts over with a full bucket.
	if !rl.Allow("idle") {
		t.Error("evicted key should get a fresh limiter")
	}
}

func TestKeyedRateLimiter_CleanupLoop(t *testing.T) {
	clock := clockwork.NewFakeClock()
	rl := New(1, 1, WithClock(clock), WithIdleTTL(time.Minute))
	defer rl.Stop()

	rl.Allow("idle")

	// Wait for the cleanup goroutine to register its ticker.
	if err := clock.BlockUntilContext(context.Background(), 1); err != nil {
		t.Fatalf("BlockUntilContext: %v", err)
	}
	clock.Advance(90 * time.Second)

	deadline := time.Now().Add(time.Second)
	for rl.Len() != 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if rl.Len() != 0 {
		t.Errorf("Len() = %d after cleanup, want 0", rl.Len())
	}
}
