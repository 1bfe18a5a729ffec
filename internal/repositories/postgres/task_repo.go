package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jobhound/backend/internal/models"
	"github.com/jobhound/backend/internal/utils"
	"gorm.io/gorm"
)

type TaskRepository interface {
	Create(ctx context.Context, t *models.Task) error
	// Claim moves a pending task to running. utils.ErrConflict means another
	// worker got it first or it already finished.
	Claim(ctx context.Context, id string, now time.Time) (*models.Task, error)
	Finish(ctx context.Context, id string, status models.TaskStatus, lastErr string, now time.Time) error
	// Stale lists pending tasks created before pendingBefore and running
	// tasks started before runningBefore.
	Stale(ctx context.Context, pendingBefore, runningBefore time.Time, limit int) ([]models.Task, error)
	// Release puts a running task whose lease expired back to pending.
	Release(ctx context.Context, id string, runningBefore time.Time) (bool, error)
}

type taskRepo struct {
	db *gorm.DB
}

func NewTaskRepo(db *gorm.DB) TaskRepository {
	return &taskRepo{db: db}
}

func (r *taskRepo) Create(ctx context.Context, t *models.Task) error {
	return r.db.WithContext(ctx).Create(t).Error
}

func (r *taskRepo) Claim(ctx context.Context, id string, now time.Time) (*models.Task, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Task{}).
		Where("id = ? AND status = ?", id, models.TaskPending).
		Updates(map[string]any{
			"status":     models.TaskRunning,
			"started_at": now,
			"attempts":   gorm.Expr("attempts + 1"),
		})
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, utils.ErrConflict
	}

	var t models.Task
	err := r.db.WithContext(ctx).Where("id = ?", id).Take(&t).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, utils.ErrNotFound
	}
	return &t, err
}

func (r *taskRepo) Finish(ctx context.Context, id string, status models.TaskStatus, lastErr string, now time.Time) error {
	return r.db.WithContext(ctx).
		Model(&models.Task{}).
		Where("id = ? AND status = ?", id, models.TaskRunning).
		Updates(map[string]any{
			"status":      status,
			"last_error":  lastErr,
			"finished_at": now,
		}).Error
}

func (r *taskRepo) Stale(ctx context.Context, pendingBefore, runningBefore time.Time, limit int) ([]models.Task, error) {
	if limit <= 0 {
		limit = 100
	}
	var rows []models.Task
	err := r.db.WithContext(ctx).
		Where("(status = ? AND created_at < ?) OR (status = ? AND started_at < ?)",
			models.TaskPending, pendingBefore, models.TaskRunning, runningBefore).
		Order("created_at ASC").
		Limit(limit).
		Find(&rows).Error
	return rows, err
}

func (r *taskRepo) Release(ctx context.Context, id string, runningBefore time.Time) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Task{}).
		Where("id = ? AND status = ? AND started_at < ?", id, models.TaskRunning, runningBefore).
		Update("status", models.TaskPending)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}
