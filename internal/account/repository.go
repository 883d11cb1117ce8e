// Package account defines the narrow repository boundary for user records.
package account

import (
	"context"
	"errors"

	"github.com/helpdesk-labs/account-agent/internal/domain"
)

var (
	// ErrNotFound is returned when no account exists for a username.
	ErrNotFound = errors.New("account not found")
	// ErrDuplicateUsername is returned when creating an account whose
	// username is already taken.
	ErrDuplicateUsername = errors.New("username already exists")
	// ErrInvalidField is returned for updates outside the allowed field set.
	ErrInvalidField = errors.New("invalid account field")
)

// Repository is the persistence boundary the step-up core depends on.
// A call either fully succeeds or fully fails; no partial write is ever
// visible to the reconciler.
type Repository interface {
	// VerifyCredentials checks a username/password pair. A wrong password
	// or unknown user yields (false, nil); errors are infrastructure only.
	VerifyCredentials(ctx context.Context, username, password string) (bool, error)

	// LoadProfile returns the account snapshot for a username, or
	// ErrNotFound if the account does not exist.
	LoadProfile(ctx context.Context, username string) (*domain.CustomerProfile, error)

	// UpdateField sets one allowed field to a new value. Password values
	// are hashed before storage.
	UpdateField(ctx context.Context, username string, field domain.Field, value string) error

	// CreateAccount inserts a new account with a hashed password.
	CreateAccount(ctx context.Context, acct domain.NewAccount) error
}
