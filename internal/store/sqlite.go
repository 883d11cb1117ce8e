package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"golang.org/x/crypto/bcrypt"
	_ "modernc.org/sqlite"

	"github.com/helpdesk-labs/account-agent/internal/account"
	"github.com/helpdesk-labs/account-agent/internal/domain"
	"github.com/helpdesk-labs/account-agent/internal/shared"
)

// SQLiteStore implements the account repository and the conversation store
// on a single SQLite database.
type SQLiteStore struct {
	db             *sql.DB
	conversationMu sync.Mutex // Mutex for conversation writes to prevent SQLITE_BUSY
}

// NewSQLite opens the database at dbPath, creating the file and schema as
// needed.
func NewSQLite(dbPath string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	// Open database with WAL mode for better concurrency.
	dsn := dbPath + "?_journal=WAL&_sync=NORMAL&_busy_timeout=5000"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}

	store := &SQLiteStore{db: db}
	if err := store.initSchema(); err != nil {
		return nil, fmt.Errorf("initialize schema: %w", err)
	}

	return store, nil
}

func (s *SQLiteStore) initSchema() error {
	query := `
	PRAGMA busy_timeout = 5000;
	CREATE TABLE IF NOT EXISTS accounts (
		username TEXT PRIMARY KEY,
		password_hash TEXT NOT NULL,
		first_name TEXT NOT NULL DEFAULT '',
		last_name TEXT NOT NULL DEFAULT '',
		email TEXT NOT NULL DEFAULT '',
		phone_number TEXT NOT NULL DEFAULT '',
		address TEXT NOT NULL DEFAULT '',
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS conversations (
		session_id TEXT PRIMARY KEY,
		state_json TEXT NOT NULL,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_conversations_updated ON conversations(updated_at);
	`
	if _, err := s.db.Exec(query); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// Ping verifies database connectivity.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("close database: %w", err)
	}
	return nil
}

// VerifyCredentials checks a username/password pair against the stored hash.
// An unknown user or wrong password yields (false, nil); only infrastructure
// failures produce an error.
func (s *SQLiteStore) VerifyCredentials(ctx context.Context, username, password string) (bool, error) {
	var hash string
	err := s.db.QueryRowContext(ctx,
		`SELECT password_hash FROM accounts WHERE username = ?`, username,
	).Scan(&hash)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("query password hash: %w", err)
	}

	// Rows written before hashing was introduced hold the raw password.
	// They still authenticate, and get re-hashed on the next password
	// update.
	if !strings.HasPrefix(hash, "$2") {
		return hash == password, nil
	}

	switch err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)); err {
	case nil:
		return true, nil
	case bcrypt.ErrMismatchedHashAndPassword:
		return false, nil
	default:
		return false, fmt.Errorf("compare password hash: %w", err)
	}
}

// LoadProfile returns the account snapshot for a username.
func (s *SQLiteStore) LoadProfile(ctx context.Context, username string) (*domain.CustomerProfile, error) {
	query := `
		SELECT username, first_name, last_name, email, phone_number, address
		FROM accounts WHERE username = ?`

	var p domain.CustomerProfile
	err := s.db.QueryRowContext(ctx, query, username).Scan(
		&p.Username, &p.FirstName, &p.LastName,
		&p.Email, &p.PhoneNumber, &p.Address,
	)
	if err == sql.ErrNoRows {
		return nil, account.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan account row: %w", err)
	}

	return &p, nil
}

// accountColumns maps updatable fields to their column names. Column names
// come from this table only, never from caller input.
var accountColumns = map[domain.Field]string{
	domain.FieldEmail:       "email",
	domain.FieldPassword:    "password_hash",
	domain.FieldPhoneNumber: "phone_number",
	domain.FieldAddress:     "address",
}

// UpdateField sets one allowed account field to a new value. Passwords are
// hashed before storage.
func (s *SQLiteStore) UpdateField(ctx context.Context, username string, field domain.Field, value string) error {
	column, ok := accountColumns[field]
	if !ok || !domain.ValidField(field) {
		return fmt.Errorf("%w: %s", account.ErrInvalidField, field)
	}

	if field == domain.FieldPassword {
		hash, err := bcrypt.GenerateFromPassword([]byte(value), bcrypt.DefaultCost)
		if err != nil {
			return fmt.Errorf("hash password: %w", err)
		}
		value = string(hash)
	}

	query := fmt.Sprintf(`UPDATE accounts SET %s = ?, updated_at = ? WHERE username = ?`, column)
	result, err := s.db.ExecContext(ctx, query, value, time.Now().Unix(), username)
	if err != nil {
		return fmt.Errorf("update account field: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}
	if rows == 0 {
		return account.ErrNotFound
	}

	return nil
}

// CreateAccount inserts a new account with a hashed password.
func (s *SQLiteStore) CreateAccount(ctx context.Context, acct domain.NewAccount) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(acct.Password), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}

	now := time.Now().Unix()
	query := `
		INSERT INTO accounts (username, password_hash, first_name, last_name, email, phone_number, address, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err = s.db.ExecContext(ctx, query,
		acct.Username, string(hash), acct.FirstName, acct.LastName,
		acct.Email, acct.PhoneNumber, acct.Address, now, now,
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return fmt.Errorf("%w: %s", account.ErrDuplicateUsername, acct.Username)
		}
		return fmt.Errorf("insert account: %w", err)
	}

	return nil
}

// Get returns the conversation state for a session, or (nil, nil) when the
// session is unknown.
func (s *SQLiteStore) Get(ctx context.Context, sessionID string) (*domain.ConversationState, error) {
	s.conversationMu.Lock()
	defer s.conversationMu.Unlock()

	var stateJSON string
	err := s.db.QueryRowContext(ctx,
		`SELECT state_json FROM conversations WHERE session_id = ?`, sessionID,
	).Scan(&stateJSON)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan conversation: %w", err)
	}

	var state domain.ConversationState
	if err := json.Unmarshal([]byte(stateJSON), &state); err != nil {
		return nil, fmt.Errorf("decode conversation state: %w", err)
	}

	return &state, nil
}

// Put stores the conversation state for a session, replacing any previous
// value.
func (s *SQLiteStore) Put(ctx context.Context, sessionID string, state *domain.ConversationState) error {
	stateJSON, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("encode conversation state: %w", err)
	}

	s.conversationMu.Lock()
	defer s.conversationMu.Unlock()

	query := `
		INSERT INTO conversations (session_id, state_json, created_at, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(session_id) DO UPDATE SET
			state_json = excluded.state_json,
			updated_at = excluded.updated_at`

	now := time.Now().Unix()
	if _, err := s.db.ExecContext(ctx, query, sessionID, string(stateJSON), now, now); err != nil {
		return fmt.Errorf("upsert conversation: %w", err)
	}

	return nil
}

// Delete removes a session's conversation state. Retries with exponential
// backoff on SQLITE_BUSY.
func (s *SQLiteStore) Delete(ctx context.Context, sessionID string) error {
	maxRetries := 3
	baseDelay := 100 * time.Millisecond

	for i := 0; i < maxRetries; i++ {
		err := s.deleteConversationOnce(ctx, sessionID)
		if err == nil {
			return nil
		}

		if shared.IsSQLiteConflictError(err) && i < maxRetries-1 {
			delay := baseDelay * time.Duration(1<<i) // exponential backoff: 100ms, 200ms, 400ms
			slog.Debug("conversation delete hit SQLITE_BUSY, retrying",
				"session_id", sessionID,
				"attempt", i+1,
				"delay", delay)
			time.Sleep(delay)
			continue
		}

		return fmt.Errorf("delete conversation %s: %w", sessionID, err)
	}

	return nil
}

func (s *SQLiteStore) deleteConversationOnce(ctx context.Context, sessionID string) error {
	s.conversationMu.Lock()
	defer s.conversationMu.Unlock()

	if _, err := s.db.ExecContext(ctx, `DELETE FROM conversations WHERE session_id = ?`, sessionID); err != nil {
		return fmt.Errorf("delete conversation: %w", err)
	}
	return nil
}

// CleanupExpiredConversations removes conversations idle longer than ttl.
func (s *SQLiteStore) CleanupExpiredConversations(ctx context.Context, ttl time.Duration) (int64, error) {
	s.conversationMu.Lock()
	defer s.conversationMu.Unlock()

	threshold := time.Now().Add(-ttl).Unix()
	result, err := s.db.ExecContext(ctx, `DELETE FROM conversations WHERE updated_at < ?`, threshold)
	if err != nil {
		return 0, fmt.Errorf("cleanup expired conversations: %w", err)
	}
	return result.RowsAffected()
}
