package session

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/m3rciful/marketbot/core/logger"
	"github.com/m3rciful/marketbot/market"
)

type memoryManager struct {
	mu       sync.RWMutex
	sessions map[int64]Session
	now      func() time.Time
}

// NewMemoryManager constructs an in-memory Manager. Sessions do not survive a restart.
func NewMemoryManager() Manager {
	return &memoryManager{
		sessions: make(map[int64]Session),
		now:      time.Now,
	}
}

// Get returns the session for a user if it exists.
func (m *memoryManager) Get(userID int64) (Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[userID]
	if !ok {
		return Session{State: StateIdle}, false
	}
	return s.clone(), true
}

// Start stores a fresh session, silently discarding any previous one.
func (m *memoryManager) Start(userID int64, st State, draft Draft) {
	m.mu.Lock()
	prev, replaced := m.sessions[userID]
	s := Session{State: st, Draft: draft, StartedAt: m.now()}
	m.sessions[userID] = s.clone()
	m.mu.Unlock()

	attrs := []slog.Attr{
		slog.Int64("user_id", userID),
		slog.String("state", string(st)),
	}
	if replaced {
		attrs = append(attrs, slog.String("replaced", string(prev.State)))
	}
	logger.Debug(context.Background(), "service.session", "session.start", attrs...)
}

// Advance applies mutate to a working copy and commits it with the new state.
func (m *memoryManager) Advance(userID int64, st State, mutate func(s *Session) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.sessions[userID]
	if !ok {
		return market.ErrNoActiveSession
	}
	work := cur.clone()
	if mutate != nil {
		if err := mutate(&work); err != nil {
			return err
		}
	}
	work.State = st
	m.sessions[userID] = work
	return nil
}

// End removes the entire session for a user.
func (m *memoryManager) End(userID int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, userID)
}

// GetState returns the current state of a user, or StateIdle if none exists.
func (m *memoryManager) GetState(userID int64) State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if s, ok := m.sessions[userID]; ok {
		return s.State
	}
	return StateIdle
}

// InProgress reports whether the user currently has an active flow.
func (m *memoryManager) InProgress(userID int64) bool {
	return m.GetState(userID) != StateIdle
}

// Count returns the number of active sessions.
func (m *memoryManager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}
