package services

import (
	"context"
	"strings"

	"github.com/google/uuid"

	"github.com/jobhound/backend/internal/models"
	pgrepo "github.com/jobhound/backend/internal/repositories/postgres"
	"github.com/jobhound/backend/internal/utils"
)

type UpdateUserInput struct {
	FullName        *string `json:"full_name"`
	JobSearchGoal   *int    `json:"job_search_goal"`
	DefaultResumeID *string `json:"default_resume_id"`
}

type UserService interface {
	Me(ctx context.Context, userID, email string) (*models.User, error)
	UpdateMe(ctx context.Context, userID, email string, in UpdateUserInput) (*models.User, error)
}

type userService struct {
	users   pgrepo.UserRepository
	resumes pgrepo.ResumeRepository
}

func NewUserService(users pgrepo.UserRepository, resumes pgrepo.ResumeRepository) UserService {
	return &userService{users: users, resumes: resumes}
}

func (s *userService) Me(ctx context.Context, userID, email string) (*models.User, error) {
	const op = "UserService.Me"

	if userID == "" {
		return nil, utils.E(utils.CodeUnauthorized, op, "missing user", nil)
	}
	u, err := s.users.GetOrCreate(ctx, userID, email)
	if err != nil {
		return nil, utils.E(utils.CodeInternal, op, "failed to load user", err)
	}
	return u, nil
}

func (s *userService) UpdateMe(ctx context.Context, userID, email string, in UpdateUserInput) (*models.User, error) {
	const op = "UserService.UpdateMe"

	if _, err := s.Me(ctx, userID, email); err != nil {
		return nil, err
	}

	fields := map[string]any{}
	if in.FullName != nil {
		fields["full_name"] = strings.TrimSpace(*in.FullName)
	}
	if in.JobSearchGoal != nil {
		if *in.JobSearchGoal < 0 {
			return nil, utils.E(utils.CodeInvalidArgument, op, "job_search_goal must be >= 0", nil)
		}
		fields["job_search_goal"] = *in.JobSearchGoal
	}
	if in.DefaultResumeID != nil {
		id := strings.TrimSpace(*in.DefaultResumeID)
		if uuid.Validate(id) != nil {
			return nil, utils.E(utils.CodeInvalidArgument, op, "default_resume_id must be a UUID", nil)
		}
		// also flips resumes.is_default so both views agree
		if err := s.resumes.SetDefault(ctx, userID, id); err != nil {
			return nil, notFoundOr(op, "resume not found", err)
		}
	}

	if err := s.users.Update(ctx, userID, fields); err != nil {
		return nil, notFoundOr(op, "user not found", err)
	}
	return s.Me(ctx, userID, email)
}
