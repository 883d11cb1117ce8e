// Package chat runs conversation turns: it routes user messages through the
// selector, the step-up gate, the passcode verifier, and the reconciler, and
// owns per-session serialization.
package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/helpdesk-labs/account-agent/internal/account"
	"github.com/helpdesk-labs/account-agent/internal/agent"
	"github.com/helpdesk-labs/account-agent/internal/domain"
	"github.com/helpdesk-labs/account-agent/internal/session"
	"github.com/helpdesk-labs/account-agent/internal/stepup"
)

// User-facing verifier messages, surfaced verbatim by every transport.
const (
	msgInvalidOTP = "Invalid OTP. Please try again."
	msgExpiredOTP = "Your OTP has expired. Please start authentication again."
)

// Turn is the outcome of one dispatched message.
type Turn struct {
	SessionID string `json:"session_id"`
	Response  string `json:"response"`
}

// Dispatcher wires one user message through the pipeline and persists the
// resulting conversation state. Turns for the same session run one at a
// time; turns for different sessions run concurrently.
type Dispatcher struct {
	sessions   session.Store
	selector   agent.Selector
	registry   *agent.Registry
	repo       account.Repository
	gate       *stepup.Gate
	verifier   *stepup.Verifier
	reconciler *stepup.Reconciler
	logger     *ConversationLogger

	mu         sync.Mutex
	perSession map[string]*sync.Mutex
}

// NewDispatcher assembles the turn pipeline. logger may be nil to disable
// conversation logging.
func NewDispatcher(
	sessions session.Store,
	selector agent.Selector,
	registry *agent.Registry,
	repo account.Repository,
	gate *stepup.Gate,
	verifier *stepup.Verifier,
	reconciler *stepup.Reconciler,
	logger *ConversationLogger,
) *Dispatcher {
	return &Dispatcher{
		sessions:   sessions,
		selector:   selector,
		registry:   registry,
		repo:       repo,
		gate:       gate,
		verifier:   verifier,
		reconciler: reconciler,
		logger:     logger,
		perSession: make(map[string]*sync.Mutex),
	}
}

// OpenSession stores a fresh conversation state and returns the greeting for
// the new session.
func (d *Dispatcher) OpenSession(ctx context.Context, sessionID string) (string, error) {
	if err := d.sessions.Put(ctx, sessionID, domain.NewConversationState()); err != nil {
		return "", fmt.Errorf("store new session: %w", err)
	}
	greeting := d.registry.Instruction()
	d.logEvent(sessionID, "outbound", "session_opened", greeting)
	return greeting, nil
}

// HandleTurn runs one user message to completion. State is read once at the
// start of the turn and written back exactly once at the end, whatever path
// the turn takes.
func (d *Dispatcher) HandleTurn(ctx context.Context, sessionID, message string) (*Turn, error) {
	unlock := d.lockSession(sessionID)
	defer unlock()

	state, err := d.sessions.Get(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("load session %s: %w", sessionID, err)
	}
	if state == nil {
		// Unknown sessions start fresh rather than erroring; clients may
		// reconnect after a server restart.
		state = domain.NewConversationState()
	}

	var response string
	if state.ChallengeOutstanding() {
		d.logEvent(sessionID, "inbound", "otp_submission", redactedPlaceholder)
		response = d.handleChallengeTurn(ctx, state, message)
	} else {
		d.logEvent(sessionID, "inbound", "user_message", message)
		response, err = d.handleIdleTurn(ctx, state, message)
		if err != nil {
			return nil, err
		}
	}

	if err := d.sessions.Put(ctx, sessionID, state); err != nil {
		return nil, fmt.Errorf("store session %s: %w", sessionID, err)
	}

	d.logEvent(sessionID, "outbound", "assistant_message", response)
	return &Turn{SessionID: sessionID, Response: response}, nil
}

// handleChallengeTurn treats the whole message as a passcode submission.
func (d *Dispatcher) handleChallengeTurn(ctx context.Context, state *domain.ConversationState, message string) string {
	result, err := d.verifier.Verify(state, strings.TrimSpace(message))
	if err != nil {
		// Cannot happen while a challenge is outstanding, but a response is
		// owed either way.
		slog.Error("dispatcher: verify failed", "error", err)
		return msgInvalidOTP
	}

	switch result {
	case stepup.VerifyVerified:
		return d.reconcileResponse(ctx, state)
	case stepup.VerifyExpired:
		// Reconcile clears the staged call; the status is no longer
		// verified so nothing is applied.
		d.reconciler.Reconcile(ctx, state)
		return msgExpiredOTP
	default:
		return msgInvalidOTP
	}
}

// handleIdleTurn asks the selector what the user wants and pushes any tool
// call through the gate.
func (d *Dispatcher) handleIdleTurn(ctx context.Context, state *domain.ConversationState, message string) (string, error) {
	reply, err := d.selector.Respond(ctx, message)
	if err != nil {
		return "", fmt.Errorf("selector: %w", err)
	}
	if reply.Tool == nil {
		return reply.Text, nil
	}

	call := reply.Tool
	if err := d.registry.Validate(call.Name, call.Args); err != nil {
		return err.Error(), nil
	}

	decision := d.gate.Evaluate(ctx, call.Name, call.Args, state)
	switch decision.Kind {
	case stepup.DecisionProceed:
		return d.execute(ctx, state, call), nil
	case stepup.DecisionChallengeIssued:
		return decision.Message, nil
	default:
		return decision.Reason, nil
	}
}

// execute runs a tool call the gate let through: account creation directly,
// or a completed step-up via the reconciler.
func (d *Dispatcher) execute(ctx context.Context, state *domain.ConversationState, call *agent.ToolCall) string {
	if call.Name == stepup.ToolCreateAccount {
		return d.createAccount(ctx, call.Args)
	}
	return d.reconcileResponse(ctx, state)
}

func (d *Dispatcher) reconcileResponse(ctx context.Context, state *domain.ConversationState) string {
	result := d.reconciler.Reconcile(ctx, state)
	switch result.Kind {
	case stepup.ReconcileApplied:
		return result.Summary
	case stepup.ReconcileFailed:
		return result.Reason
	default:
		return "There was no pending request to complete. How can I help you?"
	}
}

func (d *Dispatcher) createAccount(ctx context.Context, args map[string]string) string {
	acct := domain.NewAccount{
		Username:    args["username"],
		Password:    args["password"],
		FirstName:   args["first_name"],
		LastName:    args["last_name"],
		Email:       args["email"],
		PhoneNumber: args["phone_number"],
		Address:     args["address"],
	}

	if err := d.repo.CreateAccount(ctx, acct); err != nil {
		slog.Error("dispatcher: account creation failed", "username", acct.Username, "error", err)
		if errors.Is(err, account.ErrDuplicateUsername) {
			return fmt.Sprintf("Failed to create user %s: username already exists.", acct.Username)
		}
		return fmt.Sprintf("Failed to create user %s.", acct.Username)
	}

	slog.Info("dispatcher: account created", "username", acct.Username)
	return fmt.Sprintf("User %s created successfully.", acct.Username)
}

// lockSession serializes turns per session.
func (d *Dispatcher) lockSession(sessionID string) func() {
	d.mu.Lock()
	m, ok := d.perSession[sessionID]
	if !ok {
		m = &sync.Mutex{}
		d.perSession[sessionID] = m
	}
	d.mu.Unlock()

	m.Lock()
	return m.Unlock
}

func (d *Dispatcher) logEvent(sessionID, direction, eventType, content string) {
	if d.logger == nil {
		return
	}
	d.logger.Log(ConversationLogEvent{
		SessionID: sessionID,
		Direction: direction,
		EventType: eventType,
		Content:   content,
	})
}
