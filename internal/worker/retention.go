package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/jwalitptl/travel-notifications/internal/repository"
	"github.com/jwalitptl/travel-notifications/pkg/logger"
)

// RetentionWorker periodically deletes notifications older than the
// retention window. Deletes flow to open feeds as ordinary delete events.
type RetentionWorker struct {
	repo            repository.NotificationRepository
	retention       time.Duration
	cleanupInterval time.Duration
	logger          *logger.Logger
	now             func() time.Time
}

func NewRetentionWorker(repo repository.NotificationRepository, retention, cleanupInterval time.Duration, log *logger.Logger) *RetentionWorker {
	if log == nil {
		log = logger.Nop()
	}
	return &RetentionWorker{
		repo:            repo,
		retention:       retention,
		cleanupInterval: cleanupInterval,
		logger:          log,
		now:             time.Now,
	}
}

// Start blocks until ctx is cancelled.
func (w *RetentionWorker) Start(ctx context.Context) {
	ticker := time.NewTicker(w.cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := w.Cleanup(ctx); err != nil {
				w.logger.Error(err, "notification retention run failed")
			}
		}
	}
}

// Cleanup runs one pass and returns how many rows it removed.
func (w *RetentionWorker) Cleanup(ctx context.Context) (int, error) {
	cutoff := w.now().Add(-w.retention)

	refs, err := w.repo.DeleteBefore(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to clean up notifications: %w", err)
	}

	if len(refs) > 0 {
		w.logger.Info("pruned old notifications", "count", len(refs), "cutoff", cutoff.Format(time.RFC3339))
	}
	return len(refs), nil
}
