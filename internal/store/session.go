package store

import (
	"context"
	"sync"
	"time"

	"schoolbus/internal/domain"
	"schoolbus/internal/repository"
)

type sessionEntry struct {
	session   domain.Session
	expiresAt time.Time
}

// MemorySessions is a process-local session store used with the memory driver.
type MemorySessions struct {
	mu       sync.Mutex
	sessions map[string]sessionEntry
	now      func() time.Time
}

var _ repository.SessionStore = (*MemorySessions)(nil)

// NewMemorySessions creates an empty session store.
func NewMemorySessions() *MemorySessions {
	return &MemorySessions{sessions: make(map[string]sessionEntry), now: time.Now}
}

// SetClock replaces the time source used for expiry.
func (m *MemorySessions) SetClock(now func() time.Time) {
	m.mu.Lock()
	m.now = now
	m.mu.Unlock()
}

// Save stores s under its token for ttl.
func (m *MemorySessions) Save(_ context.Context, s *domain.Session, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[s.Token] = sessionEntry{session: *s, expiresAt: m.now().Add(ttl)}
	return nil
}

// Get returns the live session for token or repository.ErrNotFound.
func (m *MemorySessions) Get(_ context.Context, token string) (*domain.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.sessions[token]
	if !ok {
		return nil, repository.ErrNotFound
	}
	if !m.now().Before(e.expiresAt) {
		delete(m.sessions, token)
		return nil, repository.ErrNotFound
	}
	s := e.session
	return &s, nil
}

// Delete removes the session; deleting an unknown token is not an error.
func (m *MemorySessions) Delete(_ context.Context, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, token)
	return nil
}
