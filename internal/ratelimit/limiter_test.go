package ratelimit

import (
	"context"
	"testing"
	"time"
)

func TestNewLimiter(t *testing.T) {
	limiter := NewLimiter("test", 60) // 60 per minute = 1 per second

	if limiter.Name() != "test" {
		t.Errorf("Expected name 'test', got '%s'", limiter.Name())
	}

	// First few requests should be allowed immediately (burst)
	for i := 0; i < 3; i++ {
		if !limiter.Allow() {
			t.Errorf("Request %d should have been allowed", i)
		}
	}
}

func TestLimiterWait(t *testing.T) {
	limiter := NewLimiter("test", 120) // 2 per second

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	start := time.Now()
	if err := limiter.Wait(ctx); err != nil {
		t.Errorf("Unexpected error: %v", err)
	}
	if time.Since(start) > 1*time.Second {
		t.Error("Wait took too long")
	}
}

func TestLimiterBackoff(t *testing.T) {
	limiter := NewLimiter("test", 60)

	initial := limiter.GetBackoff()

	limiter.SignalRateLimited()
	after1 := limiter.GetBackoff()
	if after1 <= initial {
		t.Error("Backoff should increase after rate limit signal")
	}

	limiter.SignalRateLimited()
	after2 := limiter.GetBackoff()
	if after2 <= after1 {
		t.Error("Backoff should continue to increase")
	}

	limiter.ResetBackoff()
	if limiter.GetBackoff() >= after2 {
		t.Error("Backoff should reset to initial value")
	}
}

func TestLimiterBackoffCap(t *testing.T) {
	limiter := NewLimiter("test", 60)

	for i := 0; i < 30; i++ {
		limiter.SignalRateLimited()
	}

	if limiter.GetBackoff() > 2*time.Minute {
		t.Errorf("Backoff should be capped at 2m, got %v", limiter.GetBackoff())
	}
}

func TestCooldownCancellation(t *testing.T) {
	limiter := NewLimiter("test", 60)

	// Push the backoff high so an uncancelled Cooldown would block
	for i := 0; i < 10; i++ {
		limiter.SignalRateLimited()
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := limiter.Cooldown(ctx); err == nil {
		t.Error("Expected error from cancelled context")
	}
}

func TestLimiterContextCancellation(t *testing.T) {
	limiter := NewLimiter("test", 1) // Very slow rate

	// Exhaust the burst
	for i := 0; i < 5; i++ {
		limiter.Allow()
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := limiter.Wait(ctx); err == nil {
		t.Error("Expected error from cancelled context")
	}
}
