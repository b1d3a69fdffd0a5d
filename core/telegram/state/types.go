package state

import (
	"context"
	"strconv"
	"time"
)

// State identifies a finite-state-machine step used in conversations.
type State string

const (
	// StateIdle indicates there is no active conversation with the user.
	StateIdle State = "idle"
)

// Session stores conversation state and temporary data for a user.
type Session struct {
	State     State             `json:"state"`
	TempData  map[string]string `json:"temp,omitempty"`
	UpdatedAt time.Time         `json:"updated_at"`
}

// NewSession returns an idle session with initialized scratch data.
func NewSession() *Session {
	return &Session{State: StateIdle, TempData: make(map[string]string)}
}

// SetTemp stores a temporary key/value pair.
func (s *Session) SetTemp(key, value string) {
	if s.TempData == nil {
		s.TempData = make(map[string]string)
	}
	s.TempData[key] = value
}

// GetTemp retrieves a temporary value by key.
func (s *Session) GetTemp(key string) (string, bool) {
	v, ok := s.TempData[key]
	return v, ok
}

// GetTempInt64 retrieves a temporary value by key and parses it as int64.
func (s *Session) GetTempInt64(key string) (int64, bool) {
	v, ok := s.TempData[key]
	if !ok {
		return 0, false
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}

// ClearTemp removes a temporary key.
func (s *Session) ClearTemp(key string) {
	delete(s.TempData, key)
}

// InProgress reports whether the session is in an active FSM step.
func (s *Session) InProgress() bool {
	return s != nil && s.State != StateIdle
}

// Manager loads and persists user sessions. Get never returns a nil session:
// a user without one gets a fresh idle session.
type Manager interface {
	Get(ctx context.Context, userID int64) (*Session, error)
	Save(ctx context.Context, userID int64, s *Session) error
	Clear(ctx context.Context, userID int64) error
}
