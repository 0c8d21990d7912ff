package queue

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/muratoffalex/botcore/internal/logger"
)

const (
	DefaultTimeout          = 30 * time.Second
	DefaultSettledRetention = 10 * time.Minute
)

type Config struct {
	// DefaultTimeout bounds WaitForMessage.
	DefaultTimeout time.Duration
	// SettledRetention is how long a delivery outcome is remembered for late
	// waiters, and how long an unconfirmed sent id is tracked.
	SettledRetention time.Duration
	// Now is the time source for retention bookkeeping.
	Now func() time.Time
}

type settlement struct {
	err error
	at  time.Time
}

// Queue correlates sent messages with their delivery confirmations so that
// a command can suspend until the platform acknowledges a message.
//
// Register, notify, fail and timeout are serialised by one mutex. Each
// waiter owns a buffered channel that is written exactly once, under the
// lock, so it is never fulfilled twice and a send never blocks.
type Queue[K comparable] struct {
	mu      sync.Mutex
	waiters map[K]map[uint64]chan error
	settled map[K]settlement
	sent    map[K]time.Time
	nextID  uint64

	timeout   time.Duration
	retention time.Duration
	now       func() time.Time
	logger    logger.Logger
}

func NewQueue[K comparable](cfg Config, log logger.Logger) *Queue[K] {
	if cfg.DefaultTimeout <= 0 {
		cfg.DefaultTimeout = DefaultTimeout
	}
	if cfg.SettledRetention <= 0 {
		cfg.SettledRetention = DefaultSettledRetention
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Queue[K]{
		waiters:   make(map[K]map[uint64]chan error),
		settled:   make(map[K]settlement),
		sent:      make(map[K]time.Time),
		timeout:   cfg.DefaultTimeout,
		retention: cfg.SettledRetention,
		now:       cfg.Now,
		logger:    log,
	}
}

// RegisterSent records that id was just dispatched and may be awaited.
func (q *Queue[K]) RegisterSent(id K) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if _, ok := q.settled[id]; ok {
		return
	}
	q.sent[id] = q.now()
	q.logger.WithField("message", id).Trace("Message registered as sent")
}

// NotifyDelivered fulfils every waiter for id with success. Later waiters
// for the same id return immediately.
func (q *Queue[K]) NotifyDelivered(id K) {
	q.settle(id, nil)
}

// NotifyFailed delivers a *DeliveryError to every current and later waiter
// for id.
func (q *Queue[K]) NotifyFailed(id K, reason error) {
	q.settle(id, &DeliveryError{ID: id, Reason: reason})
}

func (q *Queue[K]) settle(id K, result error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	log := q.logger.WithField("message", id)
	if _, ok := q.settled[id]; ok {
		log.Debug("Ignoring repeated delivery notification")
		return
	}
	if _, ok := q.sent[id]; !ok {
		log.Trace("Delivery notification for message not registered as sent")
	}

	q.settled[id] = settlement{err: result, at: q.now()}
	delete(q.sent, id)

	waiters := q.waiters[id]
	delete(q.waiters, id)
	for _, ch := range waiters {
		ch <- result
	}

	if result != nil {
		log.WithError(result).WithField("waiters", len(waiters)).Warn("Message delivery failed")
	} else {
		log.WithField("waiters", len(waiters)).Debug("Message delivered")
	}
}

// WaitForMessage blocks the caller until id is settled, the default timeout
// elapses or ctx is done.
func (q *Queue[K]) WaitForMessage(ctx context.Context, id K) error {
	return q.WaitForMessageTimeout(ctx, id, q.timeout)
}

func (q *Queue[K]) WaitForMessageTimeout(ctx context.Context, id K, timeout time.Duration) error {
	if timeout <= 0 {
		timeout = q.timeout
	}

	q.mu.Lock()
	if s, ok := q.settled[id]; ok {
		q.mu.Unlock()
		return s.err
	}
	waiterID := q.nextID
	q.nextID++
	ch := make(chan error, 1)
	set, ok := q.waiters[id]
	if !ok {
		set = make(map[uint64]chan error)
		q.waiters[id] = set
	}
	set[waiterID] = ch
	q.mu.Unlock()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case err := <-ch:
		return err
	case <-timer.C:
		if fulfilled, err := q.abandon(id, waiterID, ch); fulfilled {
			return err
		}
		q.logger.WithFields(logger.Fields{
			"message": id,
			"timeout": timeout.String(),
		}).Warn("Timed out waiting for message delivery")
		return fmt.Errorf("%w: message %v after %s", ErrWaitTimedOut, id, timeout)
	case <-ctx.Done():
		if fulfilled, err := q.abandon(id, waiterID, ch); fulfilled {
			return err
		}
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return fmt.Errorf("%w: %w", ErrWaitTimedOut, ctx.Err())
		}
		return ctx.Err()
	}
}

// abandon removes a waiter that gave up. If the waiter was fulfilled in the
// meantime, fulfilled is true and its result is returned instead.
func (q *Queue[K]) abandon(id K, waiterID uint64, ch chan error) (bool, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	set, ok := q.waiters[id]
	if ok {
		if _, waiting := set[waiterID]; waiting {
			delete(set, waiterID)
			if len(set) == 0 {
				delete(q.waiters, id)
			}
			return false, nil
		}
	}
	// already fulfilled under the lock, the value is in the buffer
	return true, <-ch
}

// Pending reports ids sent but not yet settled.
func (q *Queue[K]) Pending() int {
	q.mu.Lock()
	defer q.mu.Unlock()

	return len(q.sent)
}

// Waiters reports how many callers are currently suspended on id.
func (q *Queue[K]) Waiters(id K) int {
	q.mu.Lock()
	defer q.mu.Unlock()

	return len(q.waiters[id])
}

// Settled reports whether id has an outcome recorded, and that outcome.
func (q *Queue[K]) Settled(id K) (bool, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	s, ok := q.settled[id]
	return ok, s.err
}

// Prune forgets outcomes and unconfirmed sends older than the retention.
func (q *Queue[K]) Prune() int {
	q.mu.Lock()
	defer q.mu.Unlock()

	cutoff := q.now().Add(-q.retention)
	removed := 0
	for id, s := range q.settled {
		if s.at.Before(cutoff) {
			delete(q.settled, id)
			removed++
		}
	}
	for id, at := range q.sent {
		if at.Before(cutoff) {
			delete(q.sent, id)
			removed++
		}
	}
	return removed
}

// Run prunes the queue every interval until ctx is done.
func (q *Queue[K]) Run(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		interval = q.retention
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if removed := q.Prune(); removed > 0 {
				q.logger.WithField("removed", removed).Debug("Pruned message queue")
			}
		}
	}
}
