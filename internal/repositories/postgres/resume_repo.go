package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jobhound/backend/internal/models"
	"github.com/jobhound/backend/internal/utils"
	"gorm.io/gorm"
)

type ResumeRepository interface {
	// Create inserts the resume. It becomes the default when makeDefault is
	// set or the user has no default yet.
	Create(ctx context.Context, r *models.Resume, makeDefault bool) error
	GetByID(ctx context.Context, userID, id string) (*models.Resume, error)
	// Find loads a resume without an owner check (background workers).
	Find(ctx context.Context, id string) (*models.Resume, error)
	ListByUser(ctx context.Context, userID string) ([]models.Resume, error)
	SetDefault(ctx context.Context, userID, id string) error
	Delete(ctx context.Context, userID, id string) error
	ApplyEnrichment(ctx context.Context, id string, e models.ResumeEnrichment) error
}

type resumeRepo struct {
	db *gorm.DB
}

func NewResumeRepo(db *gorm.DB) ResumeRepository {
	return &resumeRepo{db: db}
}

func (r *resumeRepo) Create(ctx context.Context, res *models.Resume, makeDefault bool) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if !makeDefault {
			var u models.User
			if err := tx.Select("default_resume_id").Where("id = ?", res.UserID).Take(&u).Error; err != nil {
				if errors.Is(err, gorm.ErrRecordNotFound) {
					return utils.ErrNotFound
				}
				return err
			}
			makeDefault = u.DefaultResumeID == nil
		}

		res.IsDefault = makeDefault
		if err := tx.Create(res).Error; err != nil {
			return err
		}
		if !makeDefault {
			return nil
		}
		return markDefault(tx, res.UserID, res.ID)
	})
}

func (r *resumeRepo) GetByID(ctx context.Context, userID, id string) (*models.Resume, error) {
	var res models.Resume
	err := r.db.WithContext(ctx).
		Where("id = ? AND user_id = ?", id, userID).
		Take(&res).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, utils.ErrNotFound
	}
	return &res, err
}

func (r *resumeRepo) Find(ctx context.Context, id string) (*models.Resume, error) {
	var res models.Resume
	err := r.db.WithContext(ctx).Where("id = ?", id).Take(&res).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, utils.ErrNotFound
	}
	return &res, err
}

func (r *resumeRepo) ListByUser(ctx context.Context, userID string) ([]models.Resume, error) {
	var rows []models.Resume
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("is_default DESC, created_at DESC").
		Find(&rows).Error
	return rows, err
}

func (r *resumeRepo) SetDefault(ctx context.Context, userID, id string) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var n int64
		if err := tx.Model(&models.Resume{}).
			Where("id = ? AND user_id = ?", id, userID).
			Count(&n).Error; err != nil {
			return err
		}
		if n == 0 {
			return utils.ErrNotFound
		}
		return markDefault(tx, userID, id)
	})
}

func (r *resumeRepo) Delete(ctx context.Context, userID, id string) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Where("id = ? AND user_id = ?", id, userID).Delete(&models.Resume{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return utils.ErrNotFound
		}
		return tx.Model(&models.User{}).
			Where("id = ? AND default_resume_id = ?", userID, id).
			Updates(map[string]any{"default_resume_id": nil, "updated_at": time.Now().UTC()}).Error
	})
}

func (r *resumeRepo) ApplyEnrichment(ctx context.Context, id string, e models.ResumeEnrichment) error {
	fields := map[string]any{}
	if e.ExtractedText != nil {
		fields["extracted_text"] = *e.ExtractedText
	}
	if e.ThumbnailPath != nil {
		fields["thumbnail_path"] = *e.ThumbnailPath
	}
	if e.ThumbnailURL != nil {
		fields["thumbnail_url"] = *e.ThumbnailURL
	}
	if e.ThumbnailError != nil {
		fields["thumbnail_error"] = *e.ThumbnailError
	}
	if len(fields) == 0 {
		return nil
	}
	fields["updated_at"] = time.Now().UTC()

	res := r.db.WithContext(ctx).Model(&models.Resume{}).Where("id = ?", id).Updates(fields)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return utils.ErrNotFound
	}
	return nil
}

func markDefault(tx *gorm.DB, userID, id string) error {
	if err := tx.Model(&models.Resume{}).
		Where("user_id = ? AND id <> ?", userID, id).
		Update("is_default", false).Error; err != nil {
		return err
	}
	if err := tx.Model(&models.Resume{}).
		Where("id = ?", id).
		Update("is_default", true).Error; err != nil {
		return err
	}
	return tx.Model(&models.User{}).
		Where("id = ?", userID).
		Updates(map[string]any{"default_resume_id": id, "updated_at": time.Now().UTC()}).Error
}
