// Package ratelimit provides a small deterministic token bucket used to
// bound broadcast message rates per connection.
package ratelimit

import (
	"sync"
	"time"
)

// Clock abstracts time for deterministic tests.
type Clock interface {
	Now() time.Time
}

// RealClock is the wall-clock Clock.
type RealClock struct{}

func (RealClock) Now() time.Time { return time.Now() }

// TokenBucket refills at an integer rate (tokens/sec) using the provided
// Clock. Accounting is done in nanoseconds-worth of tokens to avoid float
// rounding drift.
type TokenBucket struct {
	mu sync.Mutex

	clock    Clock
	capacity int64 // tokens
	rate     int64 // tokens/sec

	available int64 // nano-tokens
	last      time.Time
}

const nanosPerToken = int64(time.Second)

// NewTokenBucket returns a full bucket. A nil clock means wall clock.
func NewTokenBucket(clock Clock, capacity, rate int64) *TokenBucket {
	if clock == nil {
		clock = RealClock{}
	}
	if capacity < 0 {
		capacity = 0
	}
	if rate < 0 {
		rate = 0
	}
	return &TokenBucket{
		clock:     clock,
		capacity:  capacity,
		rate:      rate,
		available: capacity * nanosPerToken,
		last:      clock.Now(),
	}
}

// Allow consumes one token if available.
func (b *TokenBucket) Allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.refillLocked()

	if b.available < nanosPerToken {
		return false
	}
	b.available -= nanosPerToken
	return true
}

func (b *TokenBucket) refillLocked() {
	now := b.clock.Now()
	if now.Before(b.last) {
		// Time went backwards; move the reference point without refilling.
		b.last = now
		return
	}

	elapsed := now.Sub(b.last).Nanoseconds()
	if elapsed <= 0 {
		return
	}
	b.last = now

	if b.rate <= 0 || b.capacity <= 0 {
		return
	}

	max := b.capacity * nanosPerToken
	need := max - b.available
	if need <= 0 {
		b.available = max
		return
	}

	// rate tokens/sec equals rate nano-tokens per nanosecond.
	if elapsed >= need/b.rate {
		b.available = max
		return
	}
	b.available += elapsed * b.rate
}
