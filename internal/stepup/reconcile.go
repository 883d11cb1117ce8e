package stepup

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/helpdesk-labs/account-agent/internal/account"
	"github.com/helpdesk-labs/account-agent/internal/domain"
)

// mutation maps a tool name to the repository field it writes and the staged
// argument carrying the new value. Each branch writes its own field only.
type mutation struct {
	field   domain.Field
	argName string
	noun    string
}

var mutations = map[string]mutation{
	"update_password": {field: domain.FieldPassword, argName: "new_password", noun: "Password"},
	"update_email":    {field: domain.FieldEmail, argName: "new_email", noun: "Email"},
	"update_contact":  {field: domain.FieldPhoneNumber, argName: "new_phone_number", noun: "Phone number"},
	"update_address":  {field: domain.FieldAddress, argName: "new_address", noun: "Address"},
}

// Reconciler applies a staged mutation after step-up succeeds and returns the
// conversation state to its idle baseline.
type Reconciler struct {
	repo account.Repository
}

// NewReconciler creates a reconciler backed by the given repository.
func NewReconciler(repo account.Repository) *Reconciler {
	return &Reconciler{repo: repo}
}

// Reconcile commits the staged mutation when the challenge was verified, or
// just clears staged state when it was not (expired or abandoned challenges
// land here too, purely for the reset). Every path — applied, failed, or
// no-op — leaves the state fully reset; this is the single exit point back to
// the idle baseline.
func (r *Reconciler) Reconcile(ctx context.Context, state *domain.ConversationState) ReconcileResult {
	defer state.Reset()

	if state.OTPStatus != domain.OTPStatusVerified || state.PendingTool == "" {
		return ReconcileResult{Kind: ReconcileNoPendingMutation}
	}

	m, ok := mutations[state.PendingTool]
	if !ok {
		slog.Warn("reconcile: no mutation mapped for tool", "tool", state.PendingTool)
		return ReconcileResult{Kind: ReconcileNoPendingMutation}
	}

	username := state.PendingArgs["username"]
	value := state.PendingArgs[m.argName]
	if username == "" || value == "" {
		slog.Warn("reconcile: staged call missing argument", "tool", state.PendingTool, "arg", m.argName)
		return ReconcileResult{Kind: ReconcileNoPendingMutation}
	}

	if err := r.repo.UpdateField(ctx, username, m.field, value); err != nil {
		slog.Error("reconcile: repository update failed", "tool", state.PendingTool, "username", username, "error", err)
		return ReconcileResult{
			Kind:   ReconcileFailed,
			Reason: fmt.Sprintf("Failed to update %s for %s.", lower(m.noun), username),
		}
	}

	if state.Customer != nil {
		if err := state.Customer.ApplyUpdate(m.field, value); err != nil {
			slog.Warn("reconcile: profile cache update skipped", "error", err)
		}
	}

	slog.Info("reconcile: mutation applied", "tool", state.PendingTool, "username", username, "field", m.field)
	return ReconcileResult{
		Kind:    ReconcileApplied,
		Summary: fmt.Sprintf("%s updated successfully for %s.", m.noun, username),
	}
}

func lower(s string) string {
	if s == "" {
		return s
	}
	b := []byte(s)
	if b[0] >= 'A' && b[0] <= 'Z' {
		b[0] += 'a' - 'A'
	}
	return string(b)
}
