package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jobhound/backend/internal/models"
	"github.com/jobhound/backend/internal/utils"
	"gorm.io/gorm"
)

type ScanRepository interface {
	GetByID(ctx context.Context, userID, id string) (*models.JobScan, error)
	Find(ctx context.Context, id string) (*models.JobScan, error)
	List(ctx context.Context, userID, jobID string, limit int) ([]models.JobScan, error)
	// Finish applies the terminal outcome only while the scan is still
	// processing. It reports false when the scan was already terminal.
	Finish(ctx context.Context, id string, out models.ScanOutcome) (bool, error)
	// Abandoned lists processing scans created before the cutoff that have
	// no pending or running task left to finish them.
	Abandoned(ctx context.Context, before time.Time, limit int) ([]string, error)
}

type scanRepo struct {
	db *gorm.DB
}

func NewScanRepo(db *gorm.DB) ScanRepository {
	return &scanRepo{db: db}
}

func (r *scanRepo) GetByID(ctx context.Context, userID, id string) (*models.JobScan, error) {
	var s models.JobScan
	err := r.db.WithContext(ctx).
		Where("id = ? AND user_id = ?", id, userID).
		Take(&s).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, utils.ErrNotFound
	}
	return &s, err
}

func (r *scanRepo) Find(ctx context.Context, id string) (*models.JobScan, error) {
	var s models.JobScan
	err := r.db.WithContext(ctx).Where("id = ?", id).Take(&s).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, utils.ErrNotFound
	}
	return &s, err
}

func (r *scanRepo) List(ctx context.Context, userID, jobID string, limit int) ([]models.JobScan, error) {
	if limit <= 0 {
		limit = 50
	}
	q := r.db.WithContext(ctx).Where("user_id = ?", userID)
	if jobID != "" {
		q = q.Where("job_id = ?", jobID)
	}

	var rows []models.JobScan
	err := q.Order("created_at DESC").Limit(limit).Find(&rows).Error
	return rows, err
}

func (r *scanRepo) Finish(ctx context.Context, id string, out models.ScanOutcome) (bool, error) {
	fields := map[string]any{
		"status":        out.Status,
		"match_score":   out.MatchScore,
		"error_message": out.ErrorMessage,
		"updated_at":    out.At,
		"completed_at":  out.At,
	}
	if out.Results != nil {
		fields["results"] = out.Results
	}

	res := r.db.WithContext(ctx).
		Model(&models.JobScan{}).
		Where("id = ? AND status = ?", id, models.ScanProcessing).
		Updates(fields)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *scanRepo) Abandoned(ctx context.Context, before time.Time, limit int) ([]string, error) {
	if limit <= 0 {
		limit = 100
	}
	var ids []string
	err := r.db.WithContext(ctx).
		Model(&models.JobScan{}).
		Where("status = ? AND created_at < ?", models.ScanProcessing, before).
		Where("NOT EXISTS (SELECT 1 FROM tasks t WHERE t.ref_id = job_scans.id AND t.status IN ?)",
			[]string{string(models.TaskPending), string(models.TaskRunning)}).
		Order("created_at ASC").
		Limit(limit).
		Pluck("id", &ids).Error
	return ids, err
}
