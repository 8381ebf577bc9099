package backend

import (
	"context"
	"sync"
	"time"
)

// Session store types accepted in configuration.
const (
	SessionStoreMemory = "memory"
	SessionStoreRedis  = "redis"
)

// StickySession binds a session key to a leased instance until Expiry.
type StickySession struct {
	Key      string          `json:"key"`
	Instance ServiceInstance `json:"instance"`
	Expiry   time.Time       `json:"expiry"`
}

// Live reports whether the session has not expired at now.
func (s StickySession) Live(now time.Time) bool {
	return s.Expiry.After(now)
}

// SessionStore persists sticky sessions. It holds at most one session per
// key; Set replaces any existing one.
type SessionStore interface {
	Get(ctx context.Context, key string) (StickySession, bool, error)
	Set(ctx context.Context, session StickySession) error
	Delete(ctx context.Context, key string) error
}

// MemoryStore is a process-local SessionStore.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]StickySession
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{sessions: make(map[string]StickySession)}
}

// Get returns the session stored under key.
func (m *MemoryStore) Get(_ context.Context, key string) (StickySession, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s, ok := m.sessions[key]
	return s, ok, nil
}

// Set stores session under its key.
func (m *MemoryStore) Set(_ context.Context, session StickySession) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.sessions[session.Key] = session
	return nil
}

// Delete removes the session stored under key.
func (m *MemoryStore) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.sessions, key)
	return nil
}

// Len returns the number of stored sessions.
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return len(m.sessions)
}
