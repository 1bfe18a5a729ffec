package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jobhound/backend/internal/models"
	"github.com/jobhound/backend/internal/utils"
	"gorm.io/gorm"
)

type JobRepository interface {
	Create(ctx context.Context, j *models.Job) error
	GetByID(ctx context.Context, userID, id string) (*models.Job, error)
	ListByUser(ctx context.Context, userID string, limit int) ([]models.Job, error)
	Update(ctx context.Context, j *models.Job) error
}

type jobRepo struct {
	db *gorm.DB
}

func NewJobRepo(db *gorm.DB) JobRepository {
	return &jobRepo{db: db}
}

func (r *jobRepo) Create(ctx context.Context, j *models.Job) error {
	return r.db.WithContext(ctx).Create(j).Error
}

func (r *jobRepo) GetByID(ctx context.Context, userID, id string) (*models.Job, error) {
	var j models.Job
	err := r.db.WithContext(ctx).
		Where("id = ? AND user_id = ?", id, userID).
		Take(&j).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, utils.ErrNotFound
	}
	return &j, err
}

func (r *jobRepo) ListByUser(ctx context.Context, userID string, limit int) ([]models.Job, error) {
	if limit <= 0 {
		limit = 100
	}
	var rows []models.Job
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Limit(limit).
		Find(&rows).Error
	return rows, err
}

func (r *jobRepo) Update(ctx context.Context, j *models.Job) error {
	j.UpdatedAt = time.Now().UTC()
	res := r.db.WithContext(ctx).
		Model(&models.Job{}).
		Where("id = ? AND user_id = ?", j.ID, j.UserID).
		Select("company", "title", "location", "salary_min", "salary_max", "salary_currency",
			"employment_type", "description", "url", "status", "requirements", "benefits",
			"hard_skills", "soft_skills", "original_text", "updated_at").
		Updates(j)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return utils.ErrNotFound
	}
	return nil
}
