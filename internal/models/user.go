package models

import "time"

type UserRole string

const (
	RoleUser  UserRole = "user"
	RoleAdmin UserRole = "admin"
)

// User mirrors the auth provider's user id; the row is created lazily on
// first authenticated access.
type User struct {
	ID              string  `gorm:"column:id;type:uuid;primaryKey" json:"id"`
	Email           string  `gorm:"column:email;type:text" json:"email"`
	FullName        string  `gorm:"column:full_name;type:text" json:"full_name"`
	DefaultResumeID *string `gorm:"column:default_resume_id;type:uuid" json:"default_resume_id"`
	JobSearchGoal   int     `gorm:"column:job_search_goal;type:integer" json:"job_search_goal"`

	CreatedAt time.Time `gorm:"column:created_at;type:timestamptz" json:"created_at"`
	UpdatedAt time.Time `gorm:"column:updated_at;type:timestamptz" json:"updated_at"`
}

func (User) TableName() string { return "users" }
