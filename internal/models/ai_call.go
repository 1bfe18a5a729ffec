package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// AICall is an audit record of one generative-model request.
type AICall struct {
	ID     primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	Kind   string             `bson:"kind" json:"kind"` // scan|resume_text|job_extract
	RefID  string             `bson:"ref_id,omitempty" json:"ref_id,omitempty"`
	UserID string             `bson:"user_id,omitempty" json:"user_id,omitempty"`
	Model  string             `bson:"model" json:"model"`

	PromptChars int    `bson:"prompt_chars" json:"prompt_chars"`
	Response    string `bson:"response,omitempty" json:"response,omitempty"`
	Error       string `bson:"error,omitempty" json:"error,omitempty"`
	DurationMS  int64  `bson:"duration_ms" json:"duration_ms"`

	CreatedAt time.Time `bson:"created_at" json:"created_at"`
	ExpiresAt time.Time `bson:"expires_at" json:"expires_at"` // for TTL index
}
