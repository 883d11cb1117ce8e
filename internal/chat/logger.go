package chat

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"sync"
	"time"
)

// redactedPlaceholder replaces content that must never reach disk: passcode
// submissions and credential values.
const redactedPlaceholder = "[redacted]"

// credentialArgPattern matches key=value tokens whose key names a secret.
var credentialArgPattern = regexp.MustCompile(`(?i)\b(password|new_password)\s*=\s*\S+`)

// ConversationLogConfig controls the per-session NDJSON conversation log.
type ConversationLogConfig struct {
	Enabled   bool
	Dir       string
	QueueSize int
}

// ConversationLogEvent is one logged exchange. Content is redacted before it
// is queued, so the writer goroutine never sees secrets.
type ConversationLogEvent struct {
	Timestamp time.Time `json:"timestamp"`
	SessionID string    `json:"session_id"`
	Direction string    `json:"direction"`
	EventType string    `json:"event_type"`
	Content   string    `json:"content"`
}

// ConversationLogger appends events to one NDJSON file per session. Writes
// happen on a single background goroutine so turn handling never blocks on
// disk.
type ConversationLogger struct {
	cfg    ConversationLogConfig
	log    *slog.Logger
	queue  chan ConversationLogEvent
	done   chan struct{}
	closed sync.Once

	files map[string]*os.File
}

// NewConversationLogger creates the log directory and starts the writer.
// Returns (nil, nil) when logging is disabled; callers treat a nil logger as
// a no-op.
func NewConversationLogger(cfg ConversationLogConfig, log *slog.Logger) (*ConversationLogger, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	if cfg.Dir == "" {
		return nil, fmt.Errorf("conversation log directory not set")
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 256
	}
	if err := os.MkdirAll(cfg.Dir, 0755); err != nil {
		return nil, fmt.Errorf("create conversation log directory: %w", err)
	}

	l := &ConversationLogger{
		cfg:   cfg,
		log:   log,
		queue: make(chan ConversationLogEvent, cfg.QueueSize),
		done:  make(chan struct{}),
		files: make(map[string]*os.File),
	}
	go l.run()
	return l, nil
}

// Log queues an event for writing. A full queue drops the event rather than
// stalling the turn.
func (l *ConversationLogger) Log(event ConversationLogEvent) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	event.Content = redactCredentials(event.Content)

	select {
	case l.queue <- event:
	default:
		l.log.Warn("conversation log queue full, dropping event",
			"session_id", event.SessionID, "event_type", event.EventType)
	}
}

// Close drains the queue and closes every session file.
func (l *ConversationLogger) Close() error {
	l.closed.Do(func() {
		close(l.queue)
		<-l.done
	})
	return nil
}

func (l *ConversationLogger) run() {
	defer close(l.done)
	for event := range l.queue {
		l.write(event)
	}
	for _, f := range l.files {
		if err := f.Close(); err != nil {
			l.log.Warn("failed to close conversation log file", "error", err)
		}
	}
}

func (l *ConversationLogger) write(event ConversationLogEvent) {
	f, err := l.sessionFile(event.SessionID)
	if err != nil {
		l.log.Warn("failed to open conversation log file", "session_id", event.SessionID, "error", err)
		return
	}

	line, err := json.Marshal(event)
	if err != nil {
		l.log.Warn("failed to encode conversation log event", "error", err)
		return
	}
	if _, err := f.Write(append(line, '\n')); err != nil {
		l.log.Warn("failed to write conversation log event", "session_id", event.SessionID, "error", err)
	}
}

func (l *ConversationLogger) sessionFile(sessionID string) (*os.File, error) {
	if f, ok := l.files[sessionID]; ok {
		return f, nil
	}
	// Session IDs are server-generated UUIDs; Base guards against a crafted
	// ID escaping the log directory.
	path := filepath.Join(l.cfg.Dir, filepath.Base(sessionID)+".ndjson")
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return nil, err
	}
	l.files[sessionID] = f
	return f, nil
}

// redactCredentials masks password values embedded in message text.
func redactCredentials(content string) string {
	return credentialArgPattern.ReplaceAllString(content, "$1="+redactedPlaceholder)
}
