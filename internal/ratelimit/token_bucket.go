package ratelimit

import (
	"fmt"
	"math"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// TokenBucket gives every key its own rate.Limiter refilled at
// maxCount/window with a burst of maxCount. It is smoother than the sliding
// window but lets a key burst again as soon as tokens refill.
type TokenBucket[K comparable] struct {
	mu        sync.Mutex
	limit     rate.Limit
	burst     int
	window    time.Duration
	now       func() time.Time
	buckets   map[K]*rate.Limiter
	lastPrune time.Time
}

func NewTokenBucket[K comparable](maxCount int, window time.Duration, opts ...Option) *TokenBucket[K] {
	if maxCount <= 0 {
		panic(fmt.Sprintf("ratelimit: max count must be positive, got %d", maxCount))
	}
	if window <= 0 {
		panic(fmt.Sprintf("ratelimit: window must be positive, got %s", window))
	}
	o := buildOptions(opts)
	return &TokenBucket[K]{
		limit:     rate.Every(window / time.Duration(maxCount)),
		burst:     maxCount,
		window:    window,
		now:       o.now,
		buckets:   make(map[K]*rate.Limiter),
		lastPrune: o.now(),
	}
}

func (b *TokenBucket[K]) TryConsume(key K) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.now()
	b.maybePruneLocked(now)
	return b.bucketLocked(key).AllowN(now, 1)
}

func (b *TokenBucket[K]) Remaining(key K) int {
	b.mu.Lock()
	defer b.mu.Unlock()

	lim, ok := b.buckets[key]
	if !ok {
		return b.burst
	}
	return int(math.Floor(lim.TokensAt(b.now())))
}

func (b *TokenBucket[K]) RetryAfter(key K) time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()

	lim, ok := b.buckets[key]
	if !ok {
		return 0
	}
	tokens := lim.TokensAt(b.now())
	if tokens >= 1 {
		return 0
	}
	return time.Duration((1 - tokens) / float64(b.limit) * float64(time.Second))
}

func (b *TokenBucket[K]) Reset(key K) {
	b.mu.Lock()
	defer b.mu.Unlock()

	delete(b.buckets, key)
}

func (b *TokenBucket[K]) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()

	return len(b.buckets)
}

func (b *TokenBucket[K]) bucketLocked(key K) *rate.Limiter {
	lim, ok := b.buckets[key]
	if !ok {
		lim = rate.NewLimiter(b.limit, b.burst)
		b.buckets[key] = lim
	}
	return lim
}

// maybePruneLocked forgets buckets that refilled completely, at most once
// per window. A full bucket behaves exactly like a fresh one.
func (b *TokenBucket[K]) maybePruneLocked(now time.Time) {
	if now.Sub(b.lastPrune) < b.window {
		return
	}
	b.lastPrune = now
	for key, lim := range b.buckets {
		if lim.TokensAt(now) >= float64(b.burst) {
			delete(b.buckets, key)
		}
	}
}
