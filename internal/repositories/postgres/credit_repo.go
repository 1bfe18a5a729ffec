package postgres

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jobhound/backend/internal/models"
	"github.com/jobhound/backend/internal/utils"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type CreditRepository interface {
	Balance(ctx context.Context, userID string, now time.Time) (*models.CreditBalance, error)
	// AdmitScan locks the user's usable lots, debits one credit from the lot
	// expiring first and inserts the usage row and the processing scan, all in
	// one transaction. Returns utils.ErrNoCredits when nothing is usable.
	AdmitScan(ctx context.Context, scan *models.JobScan, request datatypes.JSON, now time.Time) (*models.CreditUsage, error)
	// Grant inserts a lot. A lot whose ExternalRef already exists is ignored
	// and reported with created=false.
	Grant(ctx context.Context, lot *models.CreditPurchase) (created bool, err error)
	PatchUsageResponse(ctx context.Context, scanID string, payload datatypes.JSON) error
}

type creditRepo struct {
	db *gorm.DB
}

func NewCreditRepo(db *gorm.DB) CreditRepository {
	return &creditRepo{db: db}
}

func (r *creditRepo) Balance(ctx context.Context, userID string, now time.Time) (*models.CreditBalance, error) {
	var lots []models.CreditPurchase
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND remaining_credits > 0 AND (expires_at IS NULL OR expires_at > ?)", userID, now).
		Order("expires_at ASC NULLS LAST, created_at ASC").
		Find(&lots).Error
	if err != nil {
		return nil, err
	}

	b := &models.CreditBalance{Lots: lots}
	for _, l := range lots {
		b.Available += l.RemainingCredits
	}
	if b.Lots == nil {
		b.Lots = []models.CreditPurchase{}
	}
	return b, nil
}

func (r *creditRepo) AdmitScan(ctx context.Context, scan *models.JobScan, request datatypes.JSON, now time.Time) (*models.CreditUsage, error) {
	var usage *models.CreditUsage

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var lots []models.CreditPurchase
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("user_id = ? AND remaining_credits > 0 AND (expires_at IS NULL OR expires_at > ?)", scan.UserID, now).
			Order("expires_at ASC NULLS LAST, created_at ASC").
			Find(&lots).Error; err != nil {
			return err
		}
		if len(lots) == 0 {
			return utils.ErrNoCredits
		}

		lot := lots[0]
		res := tx.Model(&models.CreditPurchase{}).
			Where("id = ? AND remaining_credits > 0", lot.ID).
			UpdateColumn("remaining_credits", gorm.Expr("remaining_credits - 1"))
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return utils.ErrNoCredits
		}

		if err := tx.Create(scan).Error; err != nil {
			return err
		}

		usage = &models.CreditUsage{
			ID:             uuid.NewString(),
			UserID:         scan.UserID,
			PurchaseID:     lot.ID,
			ScanID:         scan.ID,
			Amount:         1,
			RequestPayload: request,
			CreatedAt:      now,
			UpdatedAt:      now,
		}
		return tx.Create(usage).Error
	})
	if err != nil {
		return nil, err
	}
	return usage, nil
}

func (r *creditRepo) Grant(ctx context.Context, lot *models.CreditPurchase) (bool, error) {
	res := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "external_ref"}},
			DoNothing: true,
		}).
		Create(lot)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *creditRepo) PatchUsageResponse(ctx context.Context, scanID string, payload datatypes.JSON) error {
	return r.db.WithContext(ctx).
		Model(&models.CreditUsage{}).
		Where("scan_id = ?", scanID).
		Updates(map[string]any{
			"response_payload": payload,
			"updated_at":       time.Now().UTC(),
		}).Error
}
