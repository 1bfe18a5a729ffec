package mongo

import (
	"context"
	"time"

	"github.com/jobhound/backend/internal/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const AICallsCollection = "ai_calls"

type AICallRepository interface {
	Record(ctx context.Context, call *models.AICall) error
	ListByRef(ctx context.Context, refID string, limit int64) ([]models.AICall, error)
}

type aiCallRepo struct {
	col *mongo.Collection
}

func NewAICallRepo(db *mongo.Database) AICallRepository {
	return &aiCallRepo{col: db.Collection(AICallsCollection)}
}

func (r *aiCallRepo) Record(ctx context.Context, call *models.AICall) error {
	if call.CreatedAt.IsZero() {
		call.CreatedAt = time.Now().UTC()
	}
	if call.ExpiresAt.IsZero() {
		call.ExpiresAt = call.CreatedAt.Add(30 * 24 * time.Hour)
	}
	_, err := r.col.InsertOne(ctx, call)
	return err
}

func (r *aiCallRepo) ListByRef(ctx context.Context, refID string, limit int64) ([]models.AICall, error) {
	if limit <= 0 {
		limit = 20
	}
	cur, err := r.col.Find(ctx,
		bson.M{"ref_id": refID},
		options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}}).SetLimit(limit),
	)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var rows []models.AICall
	if err := cur.All(ctx, &rows); err != nil {
		return nil, err
	}
	return rows, nil
}
