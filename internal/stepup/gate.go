package stepup

import (
	"context"
	"crypto/rand"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"github.com/helpdesk-labs/account-agent/internal/account"
	"github.com/helpdesk-labs/account-agent/internal/domain"
	"github.com/helpdesk-labs/account-agent/internal/notify"
)

// User-facing gate messages, kept stable because the transport layer surfaces
// them verbatim.
const (
	msgMissingCredentials = "Authentication failed. Please provide both username and password to proceed."
	msgInvalidCredentials = "Authentication failed. Invalid username or password."
	msgProfileLoadError   = "Internal error: Failed to load your user profile after login."
	msgInternalError      = "An unexpected internal error occurred during the authentication process."
	msgNoEmail            = "No email is associated with this account."
)

// Gate runs before every tool invocation. It validates credentials, stages
// the request on the conversation state, and triggers passcode issuance.
type Gate struct {
	repo     account.Repository
	notifier notify.Notifier
	otpTTL   time.Duration

	// now and generateCode are swappable for tests.
	now          func() time.Time
	generateCode func() (string, error)
}

// NewGate creates a gate with the given collaborators. A non-positive ttl
// falls back to DefaultOTPExpiry.
func NewGate(repo account.Repository, notifier notify.Notifier, ttl time.Duration) *Gate {
	if ttl <= 0 {
		ttl = DefaultOTPExpiry
	}
	return &Gate{
		repo:         repo,
		notifier:     notifier,
		otpTTL:       ttl,
		now:          time.Now,
		generateCode: generateOTP,
	}
}

// Evaluate decides whether a tool call may run now, must wait for a passcode,
// or is rejected. It mutates the conversation state (profile cache, staging,
// OTP fields) but never returns an error: every collaborator failure is
// folded into a Blocked decision.
func (g *Gate) Evaluate(ctx context.Context, toolName string, args map[string]string, state *domain.ConversationState) Decision {
	// Account creation has no existing account to protect.
	if toolName == ToolCreateAccount {
		slog.Info("gate: step-up skipped for account creation")
		return proceed()
	}

	username := args["username"]
	password := args["password"]
	if username == "" || password == "" {
		slog.Warn("gate: missing credentials", "tool", toolName)
		return blocked(msgMissingCredentials)
	}

	ok, err := g.repo.VerifyCredentials(ctx, username, password)
	if err != nil {
		slog.Error("gate: credential check failed", "username", username, "error", err)
		return blocked(msgInternalError)
	}
	if !ok {
		slog.Warn("gate: invalid credentials", "username", username)
		return blocked(msgInvalidCredentials)
	}

	profile, err := g.repo.LoadProfile(ctx, username)
	if err != nil || profile == nil {
		slog.Error("gate: profile load failed for authenticated user", "username", username, "error", err)
		return blocked(msgProfileLoadError)
	}
	state.Customer = profile

	// A call re-invoked after its challenge was completed passes straight
	// through; the staged arguments are already on the state.
	if state.OTPStatus == domain.OTPStatusVerified && state.PendingTool == toolName {
		slog.Info("gate: step-up already completed", "tool", toolName, "username", username)
		return proceed()
	}

	state.Stage(toolName, args)

	return g.issueChallenge(ctx, state, username)
}

// issueChallenge sends a passcode for the staged call. Issuance is idempotent:
// an outstanding unexpired challenge is left as-is so repeated gate hits do
// not mail a second code.
func (g *Gate) issueChallenge(ctx context.Context, state *domain.ConversationState, username string) Decision {
	email := state.Customer.Email
	if email == "" {
		slog.Warn("gate: account has no email for passcode delivery", "username", username)
		return blocked(msgNoEmail)
	}

	now := g.now()
	if state.ChallengeOutstanding() {
		if !state.ChallengeExpired(now, g.otpTTL) {
			slog.Info("gate: challenge already outstanding, not re-issuing", "username", username)
			return challengeIssued(otpSentMessage(email))
		}
		state.ExpireChallenge()
	}

	code, err := g.generateCode()
	if err != nil {
		slog.Error("gate: passcode generation failed", "error", err)
		return blocked(msgInternalError)
	}

	// Send before writing the OTP fields: a delivery failure must leave no
	// half-issued challenge behind.
	if err := g.notifier.Send(ctx, email, code); err != nil {
		slog.Error("gate: passcode delivery failed", "username", username, "error", err)
		return blocked(msgInternalError)
	}

	state.IssueChallenge(code, now)
	slog.Info("gate: passcode issued", "username", username, "destination", email)
	return challengeIssued(otpSentMessage(email))
}

func otpSentMessage(email string) string {
	return fmt.Sprintf("An OTP was sent to %s. Please enter it to continue.", email)
}

// generateOTP returns a 6-digit zero-padded numeric code.
func generateOTP() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(1000000))
	if err != nil {
		return "", fmt.Errorf("generate otp: %w", err)
	}
	return fmt.Sprintf("%06d", n.Int64()), nil
}
