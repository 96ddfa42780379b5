package agent

import (
	"context"
	"testing"
	"time"
)

func TestRateLimiter_ImmediateBurst(t *testing.T) {
	rl := NewRateLimiter(5, 60.0)
	ctx := context.Background()
	for i := range 5 {
		if err := rl.Wait(ctx); err != nil {
			t.Fatalf("burst token %d failed: %v", i, err)
		}
	}
}

func TestRateLimiter_WaitsAfterBurst(t *testing.T) {
	rl := NewRateLimiter(1, 600.0) // 1 burst, 10/sec refill
	ctx := context.Background()
	if err := rl.Wait(ctx); err != nil {
		t.Fatalf("first wait: %v", err)
	}

	start := time.Now()
	if err := rl.Wait(ctx); err != nil {
		t.Fatalf("second wait: %v", err)
	}
	if elapsed := time.Since(start); elapsed < 50*time.Millisecond {
		t.Fatalf("expected some wait time, got %v", elapsed)
	}
}

func TestRateLimiter_CancelledContext(t *testing.T) {
	rl := NewRateLimiter(1, 1.0)
	ctx, cancel := context.WithCancel(context.Background())
	if err := rl.Wait(ctx); err != nil {
		t.Fatal(err)
	}
	cancel()
	if err := rl.Wait(ctx); err == nil {
		t.Fatal("expected context cancelled error")
	}
}

func TestRateLimiter_DefaultValues(t *testing.T) {
	rl := NewRateLimiter(0, 0)
	if rl.max != 5 {
		t.Fatalf("expected default max=5, got %v", rl.max)
	}
	if rl.rate != 1 {
		t.Fatalf("expected 1 token/s, got %v", rl.rate)
	}
}

func TestLimitGenerator_CancelledParseFallsBack(t *testing.T) {
	gen := &fakeGenerator{}
	rl := NewRateLimiter(1, 1.0)
	limited := LimitGenerator(gen, rl)

	if _, err := limited.Generate(context.Background(), "p"); err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	now := time.Now()
	r, err := limited.ParseReminder(ctx, "drink water", now)
	if err == nil {
		t.Fatal("expected context error")
	}
	if r.Task != "drink water" || !r.At.Equal(now) {
		t.Fatalf("expected fallback reminder, got %+v", r)
	}
}
