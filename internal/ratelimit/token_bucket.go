package ratelimit

import (
	"sync"
	"time"
)

// Clock abstracts time so rate limiter behavior is deterministic in tests.
type Clock interface {
	Now() time.Time
}

// RealClock is the production Clock backed by time.Now.
type RealClock struct{}

func (RealClock) Now() time.Time { return time.Now() }

// nano-token fixed point: one token is 1e9 nano-tokens, so a fill rate of
// X tokens/sec adds exactly X nano-tokens per elapsed nanosecond without
// float rounding.
const nanoTokensPerToken = int64(time.Second)

const maxInt64 = int64(^uint64(0) >> 1)

// TokenBucket is a deterministic token bucket refilling at an integer
// tokens/sec rate from a provided Clock.
type TokenBucket struct {
	mu sync.Mutex

	clock Clock

	capacityTokens int64
	fillRate       int64 // tokens/sec

	availableNano int64
	last          time.Time
}

func NewTokenBucket(clock Clock, capacityTokens, fillRate int64) *TokenBucket {
	if clock == nil {
		clock = RealClock{}
	}
	if capacityTokens < 0 {
		capacityTokens = 0
	}
	if fillRate < 0 {
		fillRate = 0
	}
	return &TokenBucket{
		clock:          clock,
		capacityTokens: capacityTokens,
		fillRate:       fillRate,
		availableNano:  tokensToNano(capacityTokens),
		last:           clock.Now(),
	}
}

// Allow consumes the given number of tokens if available. tokens <= 0 always
// succeeds.
func (b *TokenBucket) Allow(tokens int64) bool {
	if tokens <= 0 {
		return true
	}
	cost := tokensToNano(tokens)

	b.mu.Lock()
	defer b.mu.Unlock()

	b.refillLocked()
	if b.availableNano < cost {
		return false
	}
	b.availableNano -= cost
	return true
}

func (b *TokenBucket) refillLocked() {
	now := b.clock.Now()
	if now.Before(b.last) {
		// Time went backwards; re-anchor without refilling.
		b.last = now
		return
	}
	elapsed := now.Sub(b.last).Nanoseconds()
	if elapsed <= 0 {
		return
	}
	b.last = now

	if b.fillRate <= 0 || b.capacityTokens <= 0 {
		return
	}

	capacityNano := tokensToNano(b.capacityTokens)
	need := capacityNano - b.availableNano
	if need <= 0 {
		b.availableNano = capacityNano
		return
	}

	// elapsed*fillRate can overflow for long idle periods; clamp to capacity
	// once enough time has passed to fill the bucket.
	if fillTime := need / b.fillRate; fillTime <= 0 || elapsed >= fillTime {
		b.availableNano = capacityNano
		return
	}
	b.availableNano += elapsed * b.fillRate
	if b.availableNano > capacityNano {
		b.availableNano = capacityNano
	}
}

func tokensToNano(tokens int64) int64 {
	if tokens <= 0 {
		return 0
	}
	if tokens > maxInt64/nanoTokensPerToken {
		return maxInt64
	}
	return tokens * nanoTokensPerToken
}
