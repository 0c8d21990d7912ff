package ratelimit

import (
	"fmt"
	"sync"
	"time"
)

const (
	StrategySlidingWindow = "sliding_window"
	StrategyTokenBucket   = "token_bucket"
)

// Limiter decides whether one more action for key is permitted right now.
// A denial is an outcome, not an error.
type Limiter[K comparable] interface {
	TryConsume(key K) bool
	Remaining(key K) int
	RetryAfter(key K) time.Duration
	Reset(key K)
}

type options struct {
	now func() time.Time
}

type Option func(*options)

// WithClock replaces time.Now as the limiter's time source.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		o.now = now
	}
}

func buildOptions(opts []Option) options {
	o := options{now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// SlidingWindow keeps a log of consumption timestamps per key and allows at
// most maxCount of them inside any trailing window.
type SlidingWindow[K comparable] struct {
	mu       sync.Mutex
	maxCount int
	window   time.Duration
	now      func() time.Time
	log      map[K][]time.Time
}

// New creates a sliding-window limiter allowing maxCount consumptions per
// windowSeconds for each key.
func New[K comparable](maxCount, windowSeconds int) *SlidingWindow[K] {
	return NewSlidingWindow[K](maxCount, time.Duration(windowSeconds)*time.Second)
}

// NewSlidingWindow panics on a non-positive quota: limits are declared
// statically by commands, so a bad one is a programming error.
func NewSlidingWindow[K comparable](maxCount int, window time.Duration, opts ...Option) *SlidingWindow[K] {
	if maxCount <= 0 {
		panic(fmt.Sprintf("ratelimit: max count must be positive, got %d", maxCount))
	}
	if window <= 0 {
		panic(fmt.Sprintf("ratelimit: window must be positive, got %s", window))
	}
	o := buildOptions(opts)
	return &SlidingWindow[K]{
		maxCount: maxCount,
		window:   window,
		now:      o.now,
		log:      make(map[K][]time.Time),
	}
}

// NewStrategy builds a limiter by strategy name. Unknown names fall back to
// the sliding window.
func NewStrategy[K comparable](strategy string, maxCount int, window time.Duration, opts ...Option) Limiter[K] {
	if strategy == StrategyTokenBucket {
		return NewTokenBucket[K](maxCount, window, opts...)
	}
	return NewSlidingWindow[K](maxCount, window, opts...)
}

func (l *SlidingWindow[K]) MaxCount() int {
	return l.maxCount
}

func (l *SlidingWindow[K]) Window() time.Duration {
	return l.window
}

func (l *SlidingWindow[K]) TryConsume(key K) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	stamps := l.pruneLocked(key, now)
	if len(stamps) >= l.maxCount {
		return false
	}
	l.log[key] = append(stamps, now)
	return true
}

func (l *SlidingWindow[K]) Remaining(key K) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	return l.maxCount - len(l.pruneLocked(key, l.now()))
}

// RetryAfter returns how long until the oldest recorded consumption leaves
// the window, or zero when a slot is already free.
func (l *SlidingWindow[K]) RetryAfter(key K) time.Duration {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	stamps := l.pruneLocked(key, now)
	if len(stamps) < l.maxCount {
		return 0
	}
	return stamps[0].Add(l.window).Sub(now)
}

func (l *SlidingWindow[K]) Reset(key K) {
	l.mu.Lock()
	defer l.mu.Unlock()

	delete(l.log, key)
}

// Len reports how many keys currently hold any history.
func (l *SlidingWindow[K]) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	return len(l.log)
}

// Prune drops expired history for every key.
func (l *SlidingWindow[K]) Prune() {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	for key := range l.log {
		l.pruneLocked(key, now)
	}
}

// pruneLocked keeps only timestamps inside (now-window, now] and removes the
// key altogether once its history is empty.
func (l *SlidingWindow[K]) pruneLocked(key K, now time.Time) []time.Time {
	stamps, ok := l.log[key]
	if !ok {
		return nil
	}
	cutoff := now.Add(-l.window)
	i := 0
	for i < len(stamps) && !stamps[i].After(cutoff) {
		i++
	}
	if i == len(stamps) {
		delete(l.log, key)
		return nil
	}
	if i > 0 {
		stamps = append(stamps[:0], stamps[i:]...)
		l.log[key] = stamps
	}
	return stamps
}
