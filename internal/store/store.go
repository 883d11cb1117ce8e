// Package store provides the SQLite-backed persistence layer for accounts
// and conversation state.
package store

import (
	"github.com/helpdesk-labs/account-agent/internal/account"
	"github.com/helpdesk-labs/account-agent/internal/session"
)

// The single store serves both boundaries: account records for the
// repository and per-session conversation state for the dispatcher.
var (
	_ account.Repository = (*SQLiteStore)(nil)
	_ session.Store      = (*SQLiteStore)(nil)
)
