// Package stepup implements the authentication gate, passcode verifier, and
// mutation reconciler that sit between the conversational agent and the
// account repository. Every sensitive tool call passes through the gate;
// nothing is applied until the user re-proves identity with a one-time
// passcode sent to the account's email address.
package stepup

import (
	"time"
)

// ToolCreateAccount is the one tool that bypasses step-up: there is no prior
// account to protect.
const ToolCreateAccount = "create_account"

// DefaultOTPExpiry is the challenge lifetime used when none is configured.
const DefaultOTPExpiry = 5 * time.Minute

// DecisionKind enumerates gate outcomes.
type DecisionKind int

const (
	// DecisionProceed lets the tool call execute immediately.
	DecisionProceed DecisionKind = iota
	// DecisionBlocked rejects the call with a user-facing reason.
	DecisionBlocked
	// DecisionChallengeIssued holds the call pending passcode entry.
	DecisionChallengeIssued
)

// Decision is the gate's verdict on a tool call. The gate always returns a
// decision value; collaborator failures never escape as errors.
type Decision struct {
	Kind DecisionKind
	// Reason is set for Blocked decisions.
	Reason string
	// Message is set for ChallengeIssued decisions and names the address
	// the passcode was sent to.
	Message string
}

func proceed() Decision {
	return Decision{Kind: DecisionProceed}
}

func blocked(reason string) Decision {
	return Decision{Kind: DecisionBlocked, Reason: reason}
}

func challengeIssued(message string) Decision {
	return Decision{Kind: DecisionChallengeIssued, Message: message}
}

// VerifyResult enumerates verifier outcomes.
type VerifyResult int

const (
	// VerifyVerified means the submitted code matched an unexpired challenge.
	VerifyVerified VerifyResult = iota
	// VerifyInvalid means the code did not match; the challenge stays live.
	VerifyInvalid
	// VerifyExpired means the challenge aged out before submission.
	VerifyExpired
)

// String returns the result name for logging.
func (r VerifyResult) String() string {
	switch r {
	case VerifyVerified:
		return "verified"
	case VerifyInvalid:
		return "invalid"
	case VerifyExpired:
		return "expired"
	default:
		return "unknown"
	}
}

// ReconcileKind enumerates reconciler outcomes.
type ReconcileKind int

const (
	// ReconcileApplied means the staged mutation was committed.
	ReconcileApplied ReconcileKind = iota
	// ReconcileNoPendingMutation means there was nothing verified to apply.
	ReconcileNoPendingMutation
	// ReconcileFailed means the repository rejected the update.
	ReconcileFailed
)

// ReconcileResult reports what happened to the staged mutation. Whatever the
// outcome, the conversation state has been fully reset by the time the caller
// sees it.
type ReconcileResult struct {
	Kind ReconcileKind
	// Summary is a user-facing confirmation for Applied results.
	Summary string
	// Reason is set for Failed results.
	Reason string
}
