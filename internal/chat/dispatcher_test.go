package chat

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/helpdesk-labs/account-agent/internal/agent"
	"github.com/helpdesk-labs/account-agent/internal/domain"
	"github.com/helpdesk-labs/account-agent/internal/session"
	"github.com/helpdesk-labs/account-agent/internal/stepup"
)

// chatRepo is an in-memory account repository for dispatcher tests.
type chatRepo struct {
	password string
	profile  *domain.CustomerProfile
	updates  []string
	created  []domain.NewAccount
}

func (r *chatRepo) VerifyCredentials(_ context.Context, _, password string) (bool, error) {
	return password == r.password, nil
}

func (r *chatRepo) LoadProfile(_ context.Context, _ string) (*domain.CustomerProfile, error) {
	return r.profile, nil
}

func (r *chatRepo) UpdateField(_ context.Context, username string, field domain.Field, value string) error {
	r.updates = append(r.updates, username+"/"+string(field)+"/"+value)
	return nil
}

func (r *chatRepo) CreateAccount(_ context.Context, acct domain.NewAccount) error {
	r.created = append(r.created, acct)
	return nil
}

// captureNotifier records the last delivered passcode so tests can submit it.
type captureNotifier struct {
	lastCode string
	sends    int
}

func (n *captureNotifier) Send(_ context.Context, _, code string) error {
	n.lastCode = code
	n.sends++
	return nil
}

type testHarness struct {
	dispatcher *Dispatcher
	repo       *chatRepo
	notifier   *captureNotifier
}

func newHarness(t *testing.T, otpTTL time.Duration) *testHarness {
	t.Helper()

	registry, err := agent.NewRegistry()
	if err != nil {
		t.Fatalf("NewRegistry failed: %v", err)
	}

	repo := &chatRepo{
		password: "correct",
		profile:  &domain.CustomerProfile{Username: "alice", Email: "alice@example.com"},
	}
	notifier := &captureNotifier{}

	d := NewDispatcher(
		session.NewMemoryStore(),
		agent.NewRuleSelector(registry),
		registry,
		repo,
		stepup.NewGate(repo, notifier, otpTTL),
		stepup.NewVerifier(otpTTL),
		stepup.NewReconciler(repo),
		nil,
	)
	return &testHarness{dispatcher: d, repo: repo, notifier: notifier}
}

func (h *testHarness) turn(t *testing.T, sessionID, message string) string {
	t.Helper()
	turn, err := h.dispatcher.HandleTurn(context.Background(), sessionID, message)
	if err != nil {
		t.Fatalf("HandleTurn(%q) failed: %v", message, err)
	}
	return turn.Response
}

func TestDispatcherFullStepUpFlow(t *testing.T) {
	t.Parallel()

	h := newHarness(t, 5*time.Minute)

	resp := h.turn(t, "s1", "update email username=alice password=correct new_email=a@b.com")
	if !strings.Contains(resp, "An OTP was sent to alice@example.com") {
		t.Fatalf("expected challenge message, got %q", resp)
	}
	if h.notifier.lastCode == "" {
		t.Fatal("expected a passcode to be delivered")
	}

	resp = h.turn(t, "s1", h.notifier.lastCode)
	if resp != "Email updated successfully for alice." {
		t.Fatalf("expected applied confirmation, got %q", resp)
	}
	if len(h.repo.updates) != 1 || h.repo.updates[0] != "alice/email/a@b.com" {
		t.Fatalf("unexpected repository updates %v", h.repo.updates)
	}

	// A follow-up message starts from the idle baseline again.
	resp = h.turn(t, "s1", "hello")
	if !strings.Contains(resp, "create_account") {
		t.Fatalf("expected tool listing after reset, got %q", resp)
	}
}

func TestDispatcherWrongCodeAllowsRetry(t *testing.T) {
	t.Parallel()

	h := newHarness(t, 5*time.Minute)

	h.turn(t, "s1", "update address username=alice password=correct new_address=Elm")

	resp := h.turn(t, "s1", "000000")
	if resp != msgInvalidOTP {
		t.Fatalf("expected invalid-code message, got %q", resp)
	}
	if len(h.repo.updates) != 0 {
		t.Fatalf("expected no update after wrong code, got %v", h.repo.updates)
	}

	resp = h.turn(t, "s1", h.notifier.lastCode)
	if resp != "Address updated successfully for alice." {
		t.Fatalf("expected retry to complete the update, got %q", resp)
	}
}

func TestDispatcherExpiredCodeResetsConversation(t *testing.T) {
	t.Parallel()

	h := newHarness(t, time.Millisecond)

	h.turn(t, "s1", "update email username=alice password=correct new_email=a@b.com")
	time.Sleep(5 * time.Millisecond)

	resp := h.turn(t, "s1", h.notifier.lastCode)
	if resp != msgExpiredOTP {
		t.Fatalf("expected expiry message, got %q", resp)
	}
	if len(h.repo.updates) != 0 {
		t.Fatalf("expected no update after expiry, got %v", h.repo.updates)
	}

	// The staged call is gone: the same code no longer does anything.
	resp = h.turn(t, "s1", h.notifier.lastCode)
	if strings.Contains(resp, "updated successfully") {
		t.Fatalf("expected no mutation after reset, got %q", resp)
	}
}

func TestDispatcherCreateAccountRunsImmediately(t *testing.T) {
	t.Parallel()

	h := newHarness(t, 5*time.Minute)

	resp := h.turn(t, "s1",
		"create account username=bob password=pw first_name=Bob last_name=Jones "+
			"email=bob@example.com phone_number=555 address=Elm")
	if resp != "User bob created successfully." {
		t.Fatalf("expected creation confirmation, got %q", resp)
	}
	if h.notifier.sends != 0 {
		t.Fatalf("expected no passcode for account creation, got %d sends", h.notifier.sends)
	}
	if len(h.repo.created) != 1 || h.repo.created[0].Username != "bob" {
		t.Fatalf("unexpected created accounts %v", h.repo.created)
	}
}

func TestDispatcherInvalidCredentialsBlocked(t *testing.T) {
	t.Parallel()

	h := newHarness(t, 5*time.Minute)

	resp := h.turn(t, "s1", "update email username=alice password=wrong new_email=a@b.com")
	if resp != "Authentication failed. Invalid username or password." {
		t.Fatalf("expected auth failure message, got %q", resp)
	}
	if h.notifier.sends != 0 {
		t.Fatalf("expected no passcode on bad credentials, got %d sends", h.notifier.sends)
	}
}

func TestDispatcherMissingArgsEchoedBack(t *testing.T) {
	t.Parallel()

	h := newHarness(t, 5*time.Minute)

	resp := h.turn(t, "s1", "update email username=alice")
	if !strings.Contains(resp, "new_email") {
		t.Fatalf("expected missing-argument message naming new_email, got %q", resp)
	}
	if h.notifier.sends != 0 {
		t.Fatalf("expected gate not to run on invalid args, got %d sends", h.notifier.sends)
	}
}

func TestDispatcherOpenSessionGreets(t *testing.T) {
	t.Parallel()

	h := newHarness(t, 5*time.Minute)

	greeting, err := h.dispatcher.OpenSession(context.Background(), "s1")
	if err != nil {
		t.Fatalf("OpenSession failed: %v", err)
	}
	if !strings.Contains(greeting, "update_address") {
		t.Fatalf("expected greeting to list tools, got %q", greeting)
	}
}

func TestDispatcherSessionsAreIndependent(t *testing.T) {
	t.Parallel()

	h := newHarness(t, 5*time.Minute)

	h.turn(t, "s1", "update email username=alice password=correct new_email=a@b.com")
	code := h.notifier.lastCode

	// A different session is still idle; the code is treated as chatter.
	resp := h.turn(t, "s2", code)
	if !strings.Contains(resp, "create_account") {
		t.Fatalf("expected idle reply for second session, got %q", resp)
	}

	// The first session's challenge is untouched.
	resp = h.turn(t, "s1", code)
	if resp != "Email updated successfully for alice." {
		t.Fatalf("expected first session to verify, got %q", resp)
	}
}
