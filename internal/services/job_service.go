package services

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/jobhound/backend/internal/analysis"
	"github.com/jobhound/backend/internal/models"
	"github.com/jobhound/backend/internal/providers/llm"
	pgrepo "github.com/jobhound/backend/internal/repositories/postgres"
	"github.com/jobhound/backend/internal/utils"
)

var jobStatuses = map[string]bool{
	"saved":        true,
	"applied":      true,
	"interviewing": true,
	"offer":        true,
	"rejected":     true,
}

type JobInput struct {
	Company        string            `json:"company"`
	Title          string            `json:"title"`
	Location       string            `json:"location"`
	SalaryMin      *int              `json:"salary_min"`
	SalaryMax      *int              `json:"salary_max"`
	SalaryCurrency string            `json:"salary_currency"`
	EmploymentType string            `json:"employment_type"`
	Description    string            `json:"description"`
	URL            string            `json:"url"`
	Status         string            `json:"status"`
	Requirements   models.StringList `json:"requirements"`
	Benefits       models.StringList `json:"benefits"`
	HardSkills     models.StringList `json:"hard_skills"`
	SoftSkills     models.StringList `json:"soft_skills"`
	OriginalText   string            `json:"original_text"`
	AIConfidence   *float64          `json:"ai_confidence"`
	AIVersion      string            `json:"ai_version"`
	AIProcessedAt  *time.Time        `json:"ai_processed_at"`
}

// ListingResult is the extraction response; it is not persisted.
type ListingResult struct {
	analysis.JobExtraction
	AIConfidence  float64 `json:"ai_confidence"`
	AIVersion     string  `json:"ai_version"`
	AIProcessedAt string  `json:"ai_processed_at"`
}

type JobService interface {
	Create(ctx context.Context, userID, email string, in JobInput) (*models.Job, error)
	Get(ctx context.Context, userID, id string) (*models.Job, error)
	List(ctx context.Context, userID string) ([]models.Job, error)
	Update(ctx context.Context, userID, id string, in JobInput) (*models.Job, error)
	ProcessListing(ctx context.Context, userID, text string) (*ListingResult, error)
}

type jobService struct {
	users pgrepo.UserRepository
	jobs  pgrepo.JobRepository
	ai    llm.Provider
	now   func() time.Time
}

func NewJobService(users pgrepo.UserRepository, jobs pgrepo.JobRepository, ai llm.Provider) JobService {
	return &jobService{users: users, jobs: jobs, ai: ai, now: utcNow}
}

func (in *JobInput) normalize(op string) error {
	in.Company = strings.TrimSpace(in.Company)
	in.Title = strings.TrimSpace(in.Title)
	if in.Company == "" && in.Title == "" {
		return utils.E(utils.CodeInvalidArgument, op, "title or company is required", nil)
	}
	in.Status = strings.ToLower(strings.TrimSpace(in.Status))
	if in.Status == "" {
		in.Status = "saved"
	}
	if !jobStatuses[in.Status] {
		return utils.E(utils.CodeInvalidArgument, op, "unknown job status", nil)
	}
	if in.SalaryMin != nil && in.SalaryMax != nil && *in.SalaryMin > *in.SalaryMax {
		return utils.E(utils.CodeInvalidArgument, op, "salary_min exceeds salary_max", nil)
	}
	return nil
}

func (in *JobInput) apply(j *models.Job) {
	j.Company = in.Company
	j.Title = in.Title
	j.Location = strings.TrimSpace(in.Location)
	j.SalaryMin = in.SalaryMin
	j.SalaryMax = in.SalaryMax
	j.SalaryCurrency = strings.ToUpper(strings.TrimSpace(in.SalaryCurrency))
	j.EmploymentType = strings.TrimSpace(in.EmploymentType)
	j.Description = in.Description
	j.URL = strings.TrimSpace(in.URL)
	j.Status = in.Status
	j.Requirements = in.Requirements
	j.Benefits = in.Benefits
	j.HardSkills = in.HardSkills
	j.SoftSkills = in.SoftSkills
	j.OriginalText = in.OriginalText
}

func (s *jobService) Create(ctx context.Context, userID, email string, in JobInput) (*models.Job, error) {
	const op = "JobService.Create"

	if err := in.normalize(op); err != nil {
		return nil, err
	}
	if _, err := s.users.GetOrCreate(ctx, userID, email); err != nil {
		return nil, utils.E(utils.CodeInternal, op, "failed to load user", err)
	}

	now := s.now()
	j := &models.Job{
		ID:            uuid.NewString(),
		UserID:        userID,
		AIConfidence:  in.AIConfidence,
		AIVersion:     in.AIVersion,
		AIProcessedAt: in.AIProcessedAt,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	in.apply(j)

	if err := s.jobs.Create(ctx, j); err != nil {
		return nil, utils.E(utils.CodeInternal, op, "failed to create job", err)
	}
	return j, nil
}

func (s *jobService) Get(ctx context.Context, userID, id string) (*models.Job, error) {
	const op = "JobService.Get"

	if uuid.Validate(id) != nil {
		return nil, utils.E(utils.CodeNotFound, op, "job not found", nil)
	}
	j, err := s.jobs.GetByID(ctx, userID, id)
	if err != nil {
		return nil, notFoundOr(op, "job not found", err)
	}
	return j, nil
}

func (s *jobService) List(ctx context.Context, userID string) ([]models.Job, error) {
	const op = "JobService.List"

	rows, err := s.jobs.ListByUser(ctx, userID, 200)
	if err != nil {
		return nil, utils.E(utils.CodeInternal, op, "failed to list jobs", err)
	}
	if rows == nil {
		rows = []models.Job{}
	}
	return rows, nil
}

func (s *jobService) Update(ctx context.Context, userID, id string, in JobInput) (*models.Job, error) {
	const op = "JobService.Update"

	j, err := s.Get(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	if err := in.normalize(op); err != nil {
		return nil, err
	}
	in.apply(j)

	if err := s.jobs.Update(ctx, j); err != nil {
		return nil, notFoundOr(op, "job not found", err)
	}
	return j, nil
}

func (s *jobService) ProcessListing(ctx context.Context, userID, text string) (*ListingResult, error) {
	const op = "JobService.ProcessListing"

	if strings.TrimSpace(text) == "" {
		return nil, utils.E(utils.CodeInvalidArgument, op, "text is required", nil)
	}
	if s.ai == nil {
		return nil, utils.ConfigError(op, "AI provider")
	}

	raw, err := llm.Generate(ctx, s.ai, llm.Request{
		Prompt:      analysis.JobExtractionPrompt(text),
		Temperature: analysis.DefaultTemperature,
		JSON:        true,
		Kind:        "job_extract",
		UserID:      userID,
	})
	if err != nil {
		return nil, utils.E(utils.CodeUnavailable, op, "failed to process job listing", err)
	}

	ext, err := analysis.ParseJobExtraction(raw)
	if err != nil {
		return nil, utils.WithDetails(
			utils.E(utils.CodeUnavailable, op, "failed to process job listing", err),
			err.Error(),
		)
	}

	return &ListingResult{
		JobExtraction: *ext,
		AIConfidence:  *ext.Confidence,
		AIVersion:     s.ai.Model(),
		AIProcessedAt: s.now().Format(time.RFC3339),
	}, nil
}
