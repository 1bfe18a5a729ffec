package models

import (
	"time"

	"gorm.io/datatypes"
)

type TaskKind string

const (
	TaskScanAnalysis     TaskKind = "scan_analysis"
	TaskResumeEnrichment TaskKind = "resume_enrichment"
)

type TaskStatus string

const (
	TaskPending TaskStatus = "pending"
	TaskRunning TaskStatus = "running"
	TaskDone    TaskStatus = "done"
	TaskFailed  TaskStatus = "failed"
)

// Task is the durable record behind every piece of background work.
type Task struct {
	ID        string         `gorm:"column:id;type:uuid;primaryKey" json:"id"`
	Kind      TaskKind       `gorm:"column:kind;type:text;index" json:"kind"`
	RefID     string         `gorm:"column:ref_id;type:uuid;index" json:"ref_id"` // scan or resume id
	UserID    string         `gorm:"column:user_id;type:uuid" json:"user_id"`
	Payload   datatypes.JSON `gorm:"column:payload;type:jsonb" json:"payload,omitempty"`
	Status    TaskStatus     `gorm:"column:status;type:text;index" json:"status"`
	Attempts  int            `gorm:"column:attempts;type:integer" json:"attempts"`
	LastError string         `gorm:"column:last_error;type:text" json:"last_error,omitempty"`

	CreatedAt  time.Time  `gorm:"column:created_at;type:timestamptz" json:"created_at"`
	StartedAt  *time.Time `gorm:"column:started_at;type:timestamptz" json:"started_at,omitempty"`
	FinishedAt *time.Time `gorm:"column:finished_at;type:timestamptz" json:"finished_at,omitempty"`
}

func (Task) TableName() string { return "tasks" }

// EnrichmentPayload is carried by resume_enrichment tasks.
type EnrichmentPayload struct {
	FileBase64 string `json:"file_base64,omitempty"`
}
