package models

import (
	"time"

	"gorm.io/datatypes"
)

type ScanStatus string

const (
	ScanProcessing ScanStatus = "processing"
	ScanCompleted  ScanStatus = "completed"
	ScanError      ScanStatus = "error"
)

// Terminal reports whether the status can no longer change.
func (s ScanStatus) Terminal() bool { return s == ScanCompleted || s == ScanError }

type JobScan struct {
	ID       string `gorm:"column:id;type:uuid;primaryKey" json:"id"`
	UserID   string `gorm:"column:user_id;type:uuid;index" json:"user_id"`
	JobID    string `gorm:"column:job_id;type:uuid;index" json:"job_id"`
	// ResumeID is nil once the resume has been deleted; the scan and its
	// credit usage stay.
	ResumeID *string `gorm:"column:resume_id;type:uuid;index" json:"resume_id"`

	Status       ScanStatus     `gorm:"column:status;type:text" json:"status"`
	MatchScore   *float64       `gorm:"column:match_score;type:double precision" json:"match_score"`
	Results      datatypes.JSON `gorm:"column:results;type:jsonb" json:"results,omitempty"`
	ErrorMessage string         `gorm:"column:error_message;type:text" json:"error_message,omitempty"`

	CreatedAt   time.Time  `gorm:"column:created_at;type:timestamptz" json:"created_at"`
	UpdatedAt   time.Time  `gorm:"column:updated_at;type:timestamptz" json:"updated_at"`
	CompletedAt *time.Time `gorm:"column:completed_at;type:timestamptz" json:"completed_at,omitempty"`
}

func (JobScan) TableName() string { return "job_scans" }

// ScanOutcome is the single terminal write applied to a processing scan.
type ScanOutcome struct {
	Status       ScanStatus
	MatchScore   *float64
	Results      datatypes.JSON
	ErrorMessage string
	At           time.Time
}
