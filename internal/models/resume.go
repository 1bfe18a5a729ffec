package models

import "time"

// ResumeTextPlaceholder is stored until background extraction finishes.
const ResumeTextPlaceholder = "Extracting text..."

type Resume struct {
	ID       string `gorm:"column:id;type:uuid;primaryKey" json:"id"`
	UserID   string `gorm:"column:user_id;type:uuid;index" json:"user_id"`
	Name     string `gorm:"column:name;type:text" json:"name"`
	Filename string `gorm:"column:filename;type:text" json:"filename"`
	FilePath string `gorm:"column:file_path;type:text" json:"file_path"` // object key
	FileURL  string `gorm:"column:file_url;type:text" json:"file_url"`

	FileSize int64  `gorm:"column:file_size;type:bigint" json:"file_size"`
	MimeType string `gorm:"column:mime_type;type:text" json:"mime_type"`

	IsDefault bool `gorm:"column:is_default;type:boolean" json:"is_default"`

	ExtractedText  string `gorm:"column:extracted_text;type:text" json:"extracted_text"`
	ThumbnailPath  string `gorm:"column:thumbnail_path;type:text" json:"thumbnail_path,omitempty"`
	ThumbnailURL   string `gorm:"column:thumbnail_url;type:text" json:"thumbnail_url,omitempty"`
	ThumbnailError string `gorm:"column:thumbnail_error;type:text" json:"thumbnail_error,omitempty"`

	CreatedAt time.Time `gorm:"column:created_at;type:timestamptz" json:"created_at"`
	UpdatedAt time.Time `gorm:"column:updated_at;type:timestamptz" json:"updated_at"`
}

func (Resume) TableName() string { return "resumes" }

// ResumeEnrichment is the set of columns patched by background processing.
// Nil fields are left untouched.
type ResumeEnrichment struct {
	ExtractedText  *string
	ThumbnailPath  *string
	ThumbnailURL   *string
	ThumbnailError *string
}
