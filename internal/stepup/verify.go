package stepup

import (
	"errors"
	"log/slog"
	"time"

	"github.com/helpdesk-labs/account-agent/internal/domain"
)

// ErrNoChallenge signals a caller defect: Verify was invoked while no
// challenge was outstanding. The dispatcher only routes submissions here when
// one is.
var ErrNoChallenge = errors.New("no passcode challenge outstanding")

// Verifier validates a submitted passcode against the staged challenge,
// enforcing expiry and one-shot semantics.
type Verifier struct {
	otpTTL time.Duration
	now    func() time.Time
}

// NewVerifier creates a verifier. A non-positive ttl falls back to
// DefaultOTPExpiry.
func NewVerifier(ttl time.Duration) *Verifier {
	if ttl <= 0 {
		ttl = DefaultOTPExpiry
	}
	return &Verifier{otpTTL: ttl, now: time.Now}
}

// Verify checks a submitted code. Expiry takes precedence over comparison: an
// aged-out challenge is cleared and reported as expired no matter what was
// typed. A mismatch marks the attempt failed but keeps the code so the user
// may retry until the window closes; only expiry or success ends a
// challenge's code.
func (v *Verifier) Verify(state *domain.ConversationState, submitted string) (VerifyResult, error) {
	if !state.ChallengeOutstanding() {
		return VerifyInvalid, ErrNoChallenge
	}

	if state.ChallengeExpired(v.now(), v.otpTTL) {
		state.ExpireChallenge()
		slog.Info("verify: challenge expired", "tool", state.PendingTool)
		return VerifyExpired, nil
	}

	if submitted != state.GeneratedOTP {
		state.OTPStatus = domain.OTPStatusFailed
		slog.Warn("verify: passcode mismatch", "tool", state.PendingTool)
		return VerifyInvalid, nil
	}

	state.OTPStatus = domain.OTPStatusVerified
	slog.Info("verify: passcode accepted", "tool", state.PendingTool)
	return VerifyVerified, nil
}
