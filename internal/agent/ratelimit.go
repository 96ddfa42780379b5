package agent

import (
	"context"
	"sync"
	"time"

	"healthbot/internal/domain"
)

// RateLimiter is a token bucket for throttling generator calls so a burst of
// turns stays inside the upstream quota. Callers wait; nothing is dropped.
type RateLimiter struct {
	mu       sync.Mutex
	tokens   float64
	max      float64
	rate     float64 // tokens per second
	lastTime time.Time
}

func NewRateLimiter(maxBurst int, ratePerMinute float64) *RateLimiter {
	if maxBurst <= 0 {
		maxBurst = 5
	}
	if ratePerMinute <= 0 {
		ratePerMinute = 60
	}
	return &RateLimiter{
		tokens:   float64(maxBurst),
		max:      float64(maxBurst),
		rate:     ratePerMinute / 60.0,
		lastTime: time.Now(),
	}
}

func (rl *RateLimiter) Wait(ctx context.Context) error {
	for {
		rl.mu.Lock()
		now := time.Now()
		elapsed := now.Sub(rl.lastTime).Seconds()
		rl.tokens = min(rl.tokens+elapsed*rl.rate, rl.max)
		rl.lastTime = now

		if rl.tokens >= 1.0 {
			rl.tokens -= 1.0
			rl.mu.Unlock()
			return nil
		}

		waitSec := (1.0 - rl.tokens) / rl.rate
		rl.mu.Unlock()

		timer := time.NewTimer(time.Duration(waitSec * float64(time.Second)))
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// LimitGenerator wraps g so every call first takes a token from rl.
func LimitGenerator(g domain.Generator, rl *RateLimiter) domain.Generator {
	if rl == nil {
		return g
	}
	return &limitedGenerator{next: g, limiter: rl}
}

type limitedGenerator struct {
	next    domain.Generator
	limiter *RateLimiter
}

func (l *limitedGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	if err := l.limiter.Wait(ctx); err != nil {
		return "", err
	}
	return l.next.Generate(ctx, prompt)
}

func (l *limitedGenerator) ParseReminder(ctx context.Context, text string, now time.Time) (domain.ParsedReminder, error) {
	if err := l.limiter.Wait(ctx); err != nil {
		return domain.ParsedReminder{Task: text, At: now}, err
	}
	return l.next.ParseReminder(ctx, text, now)
}
