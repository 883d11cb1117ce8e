package chat

import (
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestConversationLoggerWritesPerSessionNDJSON(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	logger, err := NewConversationLogger(ConversationLogConfig{
		Enabled:   true,
		Dir:       dir,
		QueueSize: 16,
	}, slog.Default())
	if err != nil {
		t.Fatalf("NewConversationLogger failed: %v", err)
	}
	defer func() { _ = logger.Close() }()

	logger.Log(ConversationLogEvent{
		SessionID: "sess-1",
		Direction: "inbound",
		EventType: "user_message",
		Content:   "update email please",
	})

	path := filepath.Join(dir, "sess-1.ndjson")
	line := waitForLogLine(t, path)

	var got ConversationLogEvent
	if err := json.Unmarshal([]byte(line), &got); err != nil {
		t.Fatalf("failed to unmarshal log line: %v", err)
	}
	if got.Content != "update email please" {
		t.Fatalf("unexpected content: %q", got.Content)
	}
	if got.Timestamp.IsZero() {
		t.Fatal("expected a timestamp to be stamped")
	}
}

func TestConversationLoggerRedactsCredentials(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	logger, err := NewConversationLogger(ConversationLogConfig{
		Enabled:   true,
		Dir:       dir,
		QueueSize: 16,
	}, slog.Default())
	if err != nil {
		t.Fatalf("NewConversationLogger failed: %v", err)
	}
	defer func() { _ = logger.Close() }()

	logger.Log(ConversationLogEvent{
		SessionID: "sess-2",
		Direction: "inbound",
		EventType: "user_message",
		Content:   "update password username=alice password=hunter2 new_password=hunter3",
	})

	line := waitForLogLine(t, filepath.Join(dir, "sess-2.ndjson"))
	if strings.Contains(line, "hunter2") || strings.Contains(line, "hunter3") {
		t.Fatalf("expected credentials to be redacted, got %q", line)
	}
	if !strings.Contains(line, redactedPlaceholder) {
		t.Fatalf("expected redaction placeholder in %q", line)
	}
}

func TestConversationLoggerDisabled(t *testing.T) {
	t.Parallel()

	logger, err := NewConversationLogger(ConversationLogConfig{Enabled: false}, slog.Default())
	if err != nil {
		t.Fatalf("NewConversationLogger failed: %v", err)
	}
	if logger != nil {
		t.Fatal("expected nil logger when disabled")
	}
}

func TestRedactCredentials(t *testing.T) {
	t.Parallel()

	got := redactCredentials("username=alice password=secret new_email=a@b.com")
	if strings.Contains(got, "secret") {
		t.Fatalf("password survived redaction: %q", got)
	}
	if !strings.Contains(got, "username=alice") || !strings.Contains(got, "new_email=a@b.com") {
		t.Fatalf("non-secret args should survive: %q", got)
	}
}

func waitForLogLine(t *testing.T, path string) string {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		data, err := os.ReadFile(path)
		if err == nil && len(data) > 0 {
			lines := strings.Split(strings.TrimSpace(string(data)), "\n")
			if len(lines) > 0 {
				return lines[len(lines)-1]
			}
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for log file %s", path)
	return ""
}
