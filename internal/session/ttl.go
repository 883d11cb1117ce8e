package session

import (
	"context"
	"log/slog"
	"time"
)

const ttlWorkerInterval = 5 * time.Minute

// Cleaner is the slice of the store the TTL worker needs.
type Cleaner interface {
	CleanupExpiredConversations(ctx context.Context, ttl time.Duration) (int64, error)
}

// StartTTLWorker runs a background goroutine that periodically removes
// conversations idle longer than ttl. Abandoned step-up challenges die with
// their conversation; nothing staged ever outlives the session row.
func StartTTLWorker(ctx context.Context, cleaner Cleaner, ttl time.Duration) {
	ticker := time.NewTicker(ttlWorkerInterval)
	go func() {
		defer ticker.Stop()
		slog.Info("TTL worker started", "interval", ttlWorkerInterval, "ttl", ttl)

		for {
			select {
			case <-ticker.C:
				sweep(ctx, cleaner, ttl)
			case <-ctx.Done():
				slog.Info("TTL worker shutting down", "reason", ctx.Err())
				return
			}
		}
	}()
}

func sweep(ctx context.Context, cleaner Cleaner, ttl time.Duration) {
	deleted, err := cleaner.CleanupExpiredConversations(ctx, ttl)
	if err != nil {
		slog.Error("TTL worker failed to cleanup conversations", "error", err)
		return
	}
	if deleted > 0 {
		slog.Info("TTL worker removed idle conversations", "count", deleted)
	}
}
