package state

import (
	"context"
	"sync"
	"time"
)

type memoryManager struct {
	mu       sync.RWMutex
	sessions map[int64]*Session
	now      func() time.Time
}

// NewMemoryManager constructs an in-memory Manager implementation for tests and development.
func NewMemoryManager() Manager {
	return &memoryManager{
		sessions: make(map[int64]*Session),
		now:      time.Now,
	}
}

// Get returns a copy of the stored session, or a fresh idle one.
func (m *memoryManager) Get(_ context.Context, userID int64) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	session, ok := m.sessions[userID]
	if !ok {
		return NewSession(), nil
	}
	return clone(session), nil
}

// Save replaces the stored session for userID.
func (m *memoryManager) Save(_ context.Context, userID int64, s *Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cp := clone(s)
	cp.UpdatedAt = m.now()
	m.sessions[userID] = cp
	return nil
}

// Clear removes the entire session for a user.
func (m *memoryManager) Clear(_ context.Context, userID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.sessions, userID)
	return nil
}

func clone(s *Session) *Session {
	if s == nil {
		return NewSession()
	}
	cp := &Session{State: s.State, UpdatedAt: s.UpdatedAt, TempData: make(map[string]string, len(s.TempData))}
	for k, v := range s.TempData {
		cp.TempData[k] = v
	}
	return cp
}
