// ratelimit.go implements token-bucket rate limiting for the HTTP API.
//
// The exchange tolerates very little: the v1 API enforces roughly 10
// requests per 10-second window per account and blocks offenders for a
// while. Two buckets are maintained so a reconnect storm pulling snapshots
// cannot starve order placement:
//   - Order:    signed order/add and order/cancel calls
//   - Snapshot: fulldepth and recent-trades pulls (fulldepth is megabytes)
//
// Buckets refill continuously rather than in window-sized bursts.
package exchange

import (
	"context"
	"sync"
	"time"
)

// TokenBucket implements a token-bucket rate limiter with continuous refill.
// Callers block in Wait() until a token is available or the context is cancelled.
type TokenBucket struct {
	mu       sync.Mutex
	tokens   float64   // current available tokens (fractional allowed)
	capacity float64   // maximum burst size
	rate     float64   // tokens refilled per second
	lastTime time.Time // last time tokens were calculated
}

// NewTokenBucket creates a rate limiter with the given capacity and refill rate.
func NewTokenBucket(capacity, ratePerSecond float64) *TokenBucket {
	return &TokenBucket{
		tokens:   capacity,
		capacity: capacity,
		rate:     ratePerSecond,
		lastTime: time.Now(),
	}
}

// Wait blocks until a token is available or ctx is cancelled.
func (tb *TokenBucket) Wait(ctx context.Context) error {
	for {
		tb.mu.Lock()
		now := time.Now()
		elapsed := now.Sub(tb.lastTime).Seconds()
		tb.tokens += elapsed * tb.rate
		if tb.tokens > tb.capacity {
			tb.tokens = tb.capacity
		}
		tb.lastTime = now

		if tb.tokens >= 1 {
			tb.tokens--
			tb.mu.Unlock()
			return nil
		}

		// Calculate wait time for next token
		wait := time.Duration((1 - tb.tokens) / tb.rate * float64(time.Second))
		tb.mu.Unlock()

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
			// retry
		}
	}
}

// RateLimiter groups token buckets by API endpoint category. Each HTTP
// operation must call the appropriate bucket's Wait() before making the
// request.
type RateLimiter struct {
	Order    *TokenBucket // POST order/add, order/cancel
	Snapshot *TokenBucket // GET fulldepth, trades
}

// NewRateLimiter creates rate limiters tuned well below the exchange's
// enforcement threshold.
func NewRateLimiter() *RateLimiter {
	return &RateLimiter{
		Order:    NewTokenBucket(5, 0.5), // ~5 per 10s window sustained
		Snapshot: NewTokenBucket(2, 0.1), // one fulldepth+trades pair per reconnect
	}
}
