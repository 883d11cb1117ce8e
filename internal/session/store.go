// Package session provides per-conversation state storage.
package session

import (
	"context"

	"github.com/helpdesk-labs/account-agent/internal/domain"
)

// Store maps a session ID to its conversation state. The dispatcher reads
// once at the start of a turn and writes back once at the end; the store is a
// plain mapping, not a cache.
type Store interface {
	// Get returns the state for a session, or (nil, nil) when the session
	// is unknown.
	Get(ctx context.Context, sessionID string) (*domain.ConversationState, error)

	// Put stores the state for a session, replacing any previous value.
	Put(ctx context.Context, sessionID string, state *domain.ConversationState) error

	// Delete removes a session's state.
	Delete(ctx context.Context, sessionID string) error
}
