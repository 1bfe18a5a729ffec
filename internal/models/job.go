package models

import (
	"fmt"
	"strings"
	"time"
)

type Job struct {
	ID     string `gorm:"column:id;type:uuid;primaryKey" json:"id"`
	UserID string `gorm:"column:user_id;type:uuid;index" json:"user_id"`

	Company        string `gorm:"column:company;type:text" json:"company"`
	Title          string `gorm:"column:title;type:text" json:"title"`
	Location       string `gorm:"column:location;type:text" json:"location"`
	SalaryMin      *int   `gorm:"column:salary_min;type:integer" json:"salary_min"`
	SalaryMax      *int   `gorm:"column:salary_max;type:integer" json:"salary_max"`
	SalaryCurrency string `gorm:"column:salary_currency;type:text" json:"salary_currency"`
	EmploymentType string `gorm:"column:employment_type;type:text" json:"employment_type"`
	Description    string `gorm:"column:description;type:text" json:"description"`
	URL            string `gorm:"column:url;type:text" json:"url"`
	Status         string `gorm:"column:status;type:text" json:"status"` // saved|applied|interviewing|offer|rejected

	Requirements StringList `gorm:"column:requirements;type:text[]" json:"requirements"`
	Benefits     StringList `gorm:"column:benefits;type:text[]" json:"benefits"`
	HardSkills   StringList `gorm:"column:hard_skills;type:text[]" json:"hard_skills"`
	SoftSkills   StringList `gorm:"column:soft_skills;type:text[]" json:"soft_skills"`

	OriginalText  string     `gorm:"column:original_text;type:text" json:"original_text"`
	AIConfidence  *float64   `gorm:"column:ai_confidence;type:double precision" json:"ai_confidence,omitempty"`
	AIVersion     string     `gorm:"column:ai_version;type:text" json:"ai_version,omitempty"`
	AIProcessedAt *time.Time `gorm:"column:ai_processed_at;type:timestamptz" json:"ai_processed_at,omitempty"`

	CreatedAt time.Time `gorm:"column:created_at;type:timestamptz" json:"created_at"`
	UpdatedAt time.Time `gorm:"column:updated_at;type:timestamptz" json:"updated_at"`
}

func (Job) TableName() string { return "jobs" }

// JobDescriptionText renders the job as the plain text sent to the model.
func (j *Job) JobDescriptionText() string {
	if strings.TrimSpace(j.OriginalText) != "" {
		return j.OriginalText
	}

	var b strings.Builder
	line := func(label, v string) {
		if v != "" {
			fmt.Fprintf(&b, "%s: %s\n", label, v)
		}
	}
	list := func(label string, vs StringList) {
		if len(vs) == 0 {
			return
		}
		fmt.Fprintf(&b, "%s:\n", label)
		for _, v := range vs {
			fmt.Fprintf(&b, "- %s\n", v)
		}
	}

	line("Title", j.Title)
	line("Company", j.Company)
	line("Location", j.Location)
	line("Employment type", j.EmploymentType)
	line("Description", j.Description)
	list("Requirements", j.Requirements)
	list("Hard skills", j.HardSkills)
	list("Soft skills", j.SoftSkills)
	list("Benefits", j.Benefits)
	return b.String()
}
