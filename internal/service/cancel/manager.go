package cancel

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/muratoffalex/botcore/internal/telegram"
)

// ErrCancelledByUser is the cancellation cause of requests stopped through
// Cancel or CancelLatest.
var ErrCancelledByUser = errors.New("cancelled by user")

type Manager struct {
	requests map[telegram.MessageKey]*activeRequest
	mu       sync.RWMutex
	now      func() time.Time
}

type activeRequest struct {
	cancel context.CancelCauseFunc
	info   ActiveRequestInfo
}

// ActiveRequestInfo describes a running command invocation. Key is the
// message that invoked it.
type ActiveRequestInfo struct {
	ID        string
	Key       telegram.MessageKey
	UserID    int64
	Command   string
	StartedAt time.Time
}

func NewManager() *Manager {
	return &Manager{
		requests: make(map[telegram.MessageKey]*activeRequest),
		now:      time.Now,
	}
}

// Register derives a cancellable context for the invocation. The returned
// func releases the context and forgets the request; it is safe to call
// more than once.
func (m *Manager) Register(parent context.Context, info ActiveRequestInfo) (context.Context, func()) {
	ctx, cancel := context.WithCancelCause(parent)

	m.mu.Lock()
	if info.StartedAt.IsZero() {
		info.StartedAt = m.now()
	}
	m.requests[info.Key] = &activeRequest{cancel: cancel, info: info}
	m.mu.Unlock()

	unregister := func() {
		cancel(context.Canceled)
		m.unregister(info.Key, info.ID)
	}

	return ctx, unregister
}

func (m *Manager) unregister(key telegram.MessageKey, id string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if req, ok := m.requests[key]; ok && req.info.ID == id {
		delete(m.requests, key)
	}
}

// Cancel stops the invocation started by the message key.
func (m *Manager) Cancel(key telegram.MessageKey) bool {
	m.mu.RLock()
	req, exists := m.requests[key]
	m.mu.RUnlock()

	if !exists {
		return false
	}

	req.cancel(ErrCancelledByUser)
	return true
}

// CancelLatest stops the most recent invocation of userID in chatID other
// than the one started by except.
func (m *Manager) CancelLatest(chatID, userID int64, except telegram.MessageKey) (ActiveRequestInfo, bool) {
	m.mu.RLock()
	var latest *activeRequest
	for key, req := range m.requests {
		if key == except || key.ChatID != chatID || req.info.UserID != userID {
			continue
		}
		if latest == nil || req.info.StartedAt.After(latest.info.StartedAt) {
			latest = req
		}
	}
	m.mu.RUnlock()

	if latest == nil {
		return ActiveRequestInfo{}, false
	}
	latest.cancel(ErrCancelledByUser)
	return latest.info, true
}

func (m *Manager) IsActive(key telegram.MessageKey) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()

	_, exists := m.requests[key]
	return exists
}

func (m *Manager) GetActiveRequest(key telegram.MessageKey) *ActiveRequestInfo {
	m.mu.RLock()
	defer m.mu.RUnlock()

	req, exists := m.requests[key]
	if !exists {
		return nil
	}

	info := req.info
	return &info
}

func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.requests)
}

// IsUserCancel reports whether ctx was stopped through the manager.
func IsUserCancel(ctx context.Context) bool {
	return errors.Is(context.Cause(ctx), ErrCancelledByUser)
}
