package workers

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"gorm.io/datatypes"

	"github.com/jobhound/backend/internal/models"
	pgrepo "github.com/jobhound/backend/internal/repositories/postgres"
)

const (
	DefaultStream = "jobhound:tasks"
	DefaultGroup  = "jobhound-workers"
)

// Queue records tasks in Postgres and announces them on a Redis stream.
// Postgres is the source of truth; the stream only wakes consumers.
type Queue struct {
	Redis  redis.UniversalClient
	Tasks  pgrepo.TaskRepository
	Stream string
	Logger *logrus.Logger
}

func NewQueue(rdb redis.UniversalClient, tasks pgrepo.TaskRepository, logger *logrus.Logger) *Queue {
	if logger == nil {
		logger = logrus.New()
	}
	return &Queue{Redis: rdb, Tasks: tasks, Stream: DefaultStream, Logger: logger}
}

func (q *Queue) Enqueue(ctx context.Context, kind models.TaskKind, refID, userID string, payload any) (*models.Task, error) {
	t := &models.Task{
		ID:        uuid.NewString(),
		Kind:      kind,
		RefID:     refID,
		UserID:    userID,
		Status:    models.TaskPending,
		CreatedAt: time.Now().UTC(),
	}
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return nil, err
		}
		t.Payload = datatypes.JSON(b)
	}

	if err := q.Tasks.Create(ctx, t); err != nil {
		return nil, err
	}

	// a lost announcement is picked up by the recovery sweep
	if err := q.announce(ctx, t); err != nil {
		q.Logger.WithError(err).WithFields(logrus.Fields{
			"task_id": t.ID,
			"kind":    t.Kind,
		}).Warn("task announce failed; left for recovery")
	}
	return t, nil
}

// Recover re-announces tasks that look abandoned: pending longer than lease
// or running past their lease. Running ones are released back to pending
// first. It returns how many tasks were re-announced.
func (q *Queue) Recover(ctx context.Context, lease time.Duration) (int, error) {
	cutoff := time.Now().UTC().Add(-lease)
	stale, err := q.Tasks.Stale(ctx, cutoff, cutoff, 200)
	if err != nil {
		return 0, err
	}

	n := 0
	for i := range stale {
		t := &stale[i]
		if t.Status == models.TaskRunning {
			ok, err := q.Tasks.Release(ctx, t.ID, cutoff)
			if err != nil {
				return n, err
			}
			if !ok {
				continue
			}
		}
		if err := q.announce(ctx, t); err != nil {
			return n, err
		}
		n++
	}
	return n, nil
}

func (q *Queue) announce(ctx context.Context, t *models.Task) error {
	stream := q.Stream
	if stream == "" {
		stream = DefaultStream
	}
	return q.Redis.XAdd(ctx, &redis.XAddArgs{
		Stream: stream,
		Values: map[string]any{
			"task_id": t.ID,
			"kind":    string(t.Kind),
		},
	}).Err()
}
