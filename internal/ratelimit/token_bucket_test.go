package ratelimit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) advance(d time.Duration) { c.now = c.now.Add(d) }

func TestTokenBucket_StartsFull(t *testing.T) {
	clock := &fakeClock{now: time.Unix(0, 0)}
	b := NewTokenBucket(clock, 3, 1)

	assert.True(t, b.Allow())
	assert.True(t, b.Allow())
	assert.True(t, b.Allow())
	assert.False(t, b.Allow())
}

func TestTokenBucket_Refill(t *testing.T) {
	clock := &fakeClock{now: time.Unix(0, 0)}
	b := NewTokenBucket(clock, 2, 2)

	assert.True(t, b.Allow())
	assert.True(t, b.Allow())
	assert.False(t, b.Allow())

	// 2 tokens/sec: half a second buys one token.
	clock.advance(500 * time.Millisecond)
	assert.True(t, b.Allow())
	assert.False(t, b.Allow())
}

func TestTokenBucket_RefillClampsToCapacity(t *testing.T) {
	clock := &fakeClock{now: time.Unix(0, 0)}
	b := NewTokenBucket(clock, 2, 10)

	assert.True(t, b.Allow())
	assert.True(t, b.Allow())

	clock.advance(time.Hour)
	assert.True(t, b.Allow())
	assert.True(t, b.Allow())
	assert.False(t, b.Allow())
}

func TestTokenBucket_TimeGoingBackwards(t *testing.T) {
	clock := &fakeClock{now: time.Unix(100, 0)}
	b := NewTokenBucket(clock, 1, 1)

	assert.True(t, b.Allow())
	clock.now = time.Unix(50, 0)
	assert.False(t, b.Allow())

	clock.now = time.Unix(51, 0)
	assert.True(t, b.Allow())
}

func TestTokenBucket_ZeroCapacity(t *testing.T) {
	clock := &fakeClock{now: time.Unix(0, 0)}
	b := NewTokenBucket(clock, 0, 5)

	assert.False(t, b.Allow())
	clock.advance(time.Minute)
	assert.False(t, b.Allow())
}
