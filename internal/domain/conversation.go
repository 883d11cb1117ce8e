// Package domain contains core domain types for the account agent.
package domain

import (
	"time"
)

// OTPStatus tracks where a conversation is in the step-up challenge lifecycle.
type OTPStatus int

const (
	// OTPStatusNone means no challenge is in flight.
	OTPStatusNone OTPStatus = iota
	// OTPStatusPending means a passcode was issued and awaits submission.
	OTPStatusPending
	// OTPStatusVerified means the submitted passcode matched.
	OTPStatusVerified
	// OTPStatusFailed means the last submission did not match.
	OTPStatusFailed
)

// String returns the status name for logging.
func (s OTPStatus) String() string {
	switch s {
	case OTPStatusNone:
		return "NONE"
	case OTPStatusPending:
		return "OTP_PENDING"
	case OTPStatusVerified:
		return "OTP_VERIFIED"
	case OTPStatusFailed:
		return "OTP_FAILED"
	default:
		return "UNKNOWN"
	}
}

// ConversationState holds per-session authentication progress and the staged
// tool call awaiting step-up completion. It is owned by the session layer and
// mutated only by the gate, the verifier, and the reconciler.
type ConversationState struct {
	PendingTool  string            `json:"pending_tool,omitempty"`
	PendingArgs  map[string]string `json:"pending_args,omitempty"`
	OTPStatus    OTPStatus         `json:"otp_status"`
	GeneratedOTP string            `json:"generated_otp,omitempty"`
	OTPIssuedAt  time.Time         `json:"otp_issued_at,omitempty"`
	Customer     *CustomerProfile  `json:"customer,omitempty"`
}

// NewConversationState returns a state at the idle baseline.
func NewConversationState() *ConversationState {
	return &ConversationState{}
}

// Stage records the tool call awaiting step-up. The argument map is copied so
// later mutation of the caller's map cannot alter what was staged.
func (s *ConversationState) Stage(tool string, args map[string]string) {
	staged := make(map[string]string, len(args))
	for k, v := range args {
		staged[k] = v
	}
	s.PendingTool = tool
	s.PendingArgs = staged
}

// IssueChallenge records a freshly generated passcode. Code, timestamp, and
// status are written together so the challenge is never partially visible.
func (s *ConversationState) IssueChallenge(code string, issuedAt time.Time) {
	s.GeneratedOTP = code
	s.OTPIssuedAt = issuedAt
	s.OTPStatus = OTPStatusPending
}

// ChallengeOutstanding reports whether a passcode is live for this session.
// A failed attempt keeps the challenge outstanding: the user may retry the
// same code until it expires or matches.
func (s *ConversationState) ChallengeOutstanding() bool {
	return s.GeneratedOTP != "" &&
		(s.OTPStatus == OTPStatusPending || s.OTPStatus == OTPStatusFailed)
}

// ChallengeExpired reports whether the outstanding passcode has aged out.
func (s *ConversationState) ChallengeExpired(now time.Time, ttl time.Duration) bool {
	if s.GeneratedOTP == "" {
		return false
	}
	return now.Sub(s.OTPIssuedAt) > ttl
}

// ExpireChallenge discards an aged-out passcode and returns the OTP fields to
// baseline. Staged tool and arguments are left for the reconciler to clear.
func (s *ConversationState) ExpireChallenge() {
	s.GeneratedOTP = ""
	s.OTPIssuedAt = time.Time{}
	s.OTPStatus = OTPStatusNone
}

// Reset clears the staged call and all OTP fields in one step. This is the
// only way the state returns to the idle baseline; the customer snapshot
// survives so the next call in the same session can reuse it.
func (s *ConversationState) Reset() {
	s.PendingTool = ""
	s.PendingArgs = nil
	s.OTPStatus = OTPStatusNone
	s.GeneratedOTP = ""
	s.OTPIssuedAt = time.Time{}
}
