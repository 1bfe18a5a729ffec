package services

import (
	"context"
	"errors"
	"time"

	"github.com/jobhound/backend/internal/models"
)

// TaskEnqueuer schedules durable background work.
type TaskEnqueuer interface {
	Enqueue(ctx context.Context, kind models.TaskKind, refID, userID string, payload any) (*models.Task, error)
}

func utcNow() time.Time { return time.Now().UTC() }

// detached returns a context that survives cancellation of ctx, for writes
// that must land once the outcome is known.
func detached(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), d)
}

// interrupted reports whether ctx was cancelled from above (shutdown) rather
// than hitting its own deadline.
func interrupted(ctx context.Context) bool {
	return errors.Is(ctx.Err(), context.Canceled)
}
