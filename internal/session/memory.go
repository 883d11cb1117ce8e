package session

import (
	"context"
	"sync"

	"github.com/helpdesk-labs/account-agent/internal/domain"
)

// MemoryStore is a process-local Store used in tests and when no database is
// configured. State pointers are handed out as-is; the dispatcher serializes
// turns per session, so no copy is needed.
type MemoryStore struct {
	mu     sync.RWMutex
	states map[string]*domain.ConversationState
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{states: make(map[string]*domain.ConversationState)}
}

// Get returns the state for a session, or (nil, nil) when unknown.
func (m *MemoryStore) Get(_ context.Context, sessionID string) (*domain.ConversationState, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.states[sessionID], nil
}

// Put stores the state for a session.
func (m *MemoryStore) Put(_ context.Context, sessionID string, state *domain.ConversationState) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.states[sessionID] = state
	return nil
}

// Delete removes a session's state.
func (m *MemoryStore) Delete(_ context.Context, sessionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.states, sessionID)
	return nil
}

var _ Store = (*MemoryStore)(nil)
