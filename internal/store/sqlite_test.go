package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/helpdesk-labs/account-agent/internal/account"
	"github.com/helpdesk-labs/account-agent/internal/domain"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()

	s, err := NewSQLite(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("NewSQLite failed: %v", err)
	}
	t.Cleanup(func() {
		if err := s.Close(); err != nil {
			t.Errorf("Close failed: %v", err)
		}
	})
	return s
}

func seedAlice(t *testing.T, s *SQLiteStore) {
	t.Helper()

	err := s.CreateAccount(context.Background(), domain.NewAccount{
		Username:    "alice",
		Password:    "correct horse",
		FirstName:   "Alice",
		LastName:    "Smith",
		Email:       "alice@example.com",
		PhoneNumber: "555-0100",
		Address:     "1 Main St",
	})
	if err != nil {
		t.Fatalf("CreateAccount failed: %v", err)
	}
}

func TestVerifyCredentials(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	seedAlice(t, s)
	ctx := context.Background()

	ok, err := s.VerifyCredentials(ctx, "alice", "correct horse")
	if err != nil {
		t.Fatalf("VerifyCredentials failed: %v", err)
	}
	if !ok {
		t.Fatal("expected correct password to verify")
	}

	ok, err = s.VerifyCredentials(ctx, "alice", "wrong")
	if err != nil {
		t.Fatalf("VerifyCredentials failed: %v", err)
	}
	if ok {
		t.Fatal("expected wrong password to be rejected")
	}

	ok, err = s.VerifyCredentials(ctx, "nobody", "anything")
	if err != nil {
		t.Fatalf("VerifyCredentials failed: %v", err)
	}
	if ok {
		t.Fatal("expected unknown user to be rejected")
	}
}

func TestVerifyCredentialsLegacyPlaintext(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	ctx := context.Background()

	// Simulate a row written before password hashing was introduced.
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO accounts (username, password_hash, created_at, updated_at) VALUES (?, ?, ?, ?)`,
		"legacy", "oldpassword", time.Now().Unix(), time.Now().Unix())
	if err != nil {
		t.Fatalf("seed legacy row: %v", err)
	}

	ok, err := s.VerifyCredentials(ctx, "legacy", "oldpassword")
	if err != nil {
		t.Fatalf("VerifyCredentials failed: %v", err)
	}
	if !ok {
		t.Fatal("expected legacy plaintext password to verify")
	}

	// A password update re-hashes the credential.
	if err := s.UpdateField(ctx, "legacy", domain.FieldPassword, "newpassword"); err != nil {
		t.Fatalf("UpdateField failed: %v", err)
	}

	var hash string
	if err := s.db.QueryRowContext(ctx,
		`SELECT password_hash FROM accounts WHERE username = ?`, "legacy").Scan(&hash); err != nil {
		t.Fatalf("read hash: %v", err)
	}
	if hash == "newpassword" {
		t.Fatal("expected password to be hashed, found plaintext")
	}

	ok, err = s.VerifyCredentials(ctx, "legacy", "newpassword")
	if err != nil {
		t.Fatalf("VerifyCredentials failed: %v", err)
	}
	if !ok {
		t.Fatal("expected re-hashed password to verify")
	}
}

func TestLoadProfile(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	seedAlice(t, s)

	p, err := s.LoadProfile(context.Background(), "alice")
	if err != nil {
		t.Fatalf("LoadProfile failed: %v", err)
	}
	if p.Username != "alice" || p.Email != "alice@example.com" || p.Address != "1 Main St" {
		t.Fatalf("unexpected profile %+v", p)
	}

	if _, err := s.LoadProfile(context.Background(), "nobody"); !errors.Is(err, account.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestUpdateField(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	seedAlice(t, s)
	ctx := context.Background()

	if err := s.UpdateField(ctx, "alice", domain.FieldEmail, "new@example.com"); err != nil {
		t.Fatalf("UpdateField failed: %v", err)
	}

	p, err := s.LoadProfile(ctx, "alice")
	if err != nil {
		t.Fatalf("LoadProfile failed: %v", err)
	}
	if p.Email != "new@example.com" {
		t.Fatalf("expected updated email, got %q", p.Email)
	}
	if p.PhoneNumber != "555-0100" || p.Address != "1 Main St" {
		t.Fatalf("unrelated fields changed: %+v", p)
	}

	if err := s.UpdateField(ctx, "alice", domain.Field("username"), "mallory"); !errors.Is(err, account.ErrInvalidField) {
		t.Fatalf("expected ErrInvalidField, got %v", err)
	}
	if err := s.UpdateField(ctx, "nobody", domain.FieldEmail, "x@y.com"); !errors.Is(err, account.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestCreateAccountDuplicate(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	seedAlice(t, s)

	err := s.CreateAccount(context.Background(), domain.NewAccount{
		Username: "alice",
		Password: "other",
	})
	if !errors.Is(err, account.ErrDuplicateUsername) {
		t.Fatalf("expected ErrDuplicateUsername, got %v", err)
	}
}

func TestConversationRoundTrip(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	ctx := context.Background()

	got, err := s.Get(ctx, "sess-1")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got != nil {
		t.Fatalf("expected nil state for unknown session, got %+v", got)
	}

	state := domain.NewConversationState()
	state.Stage("update_email", map[string]string{"username": "alice", "new_email": "a@b.com"})
	state.IssueChallenge("123456", time.Now().Truncate(time.Second))
	state.Customer = &domain.CustomerProfile{Username: "alice", Email: "alice@example.com"}

	if err := s.Put(ctx, "sess-1", state); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	got, err = s.Get(ctx, "sess-1")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got == nil {
		t.Fatal("expected stored state")
	}
	if got.PendingTool != "update_email" || got.GeneratedOTP != "123456" {
		t.Fatalf("state did not round-trip: %+v", got)
	}
	if got.OTPStatus != domain.OTPStatusPending {
		t.Fatalf("expected OTP_PENDING, got %s", got.OTPStatus)
	}
	if got.Customer == nil || got.Customer.Username != "alice" {
		t.Fatalf("customer snapshot did not round-trip: %+v", got.Customer)
	}

	if err := s.Delete(ctx, "sess-1"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	got, err = s.Get(ctx, "sess-1")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got != nil {
		t.Fatalf("expected state gone after delete, got %+v", got)
	}
}

func TestCleanupExpiredConversations(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	ctx := context.Background()

	if err := s.Put(ctx, "stale", domain.NewConversationState()); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	// Age the row past the TTL.
	if _, err := s.db.ExecContext(ctx,
		`UPDATE conversations SET updated_at = ? WHERE session_id = ?`,
		time.Now().Add(-2*time.Hour).Unix(), "stale"); err != nil {
		t.Fatalf("age row: %v", err)
	}
	if err := s.Put(ctx, "fresh", domain.NewConversationState()); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	removed, err := s.CleanupExpiredConversations(ctx, time.Hour)
	if err != nil {
		t.Fatalf("CleanupExpiredConversations failed: %v", err)
	}
	if removed != 1 {
		t.Fatalf("expected 1 removed, got %d", removed)
	}

	got, err := s.Get(ctx, "fresh")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got == nil {
		t.Fatal("expected fresh session to survive cleanup")
	}
}
