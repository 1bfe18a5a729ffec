package services

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/jobhound/backend/internal/analysis"
	"github.com/jobhound/backend/internal/models"
	"github.com/jobhound/backend/internal/providers/llm"
	pgrepo "github.com/jobhound/backend/internal/repositories/postgres"
	"github.com/jobhound/backend/internal/storage"
	"github.com/jobhound/backend/internal/thumbnail"
	"github.com/jobhound/backend/internal/utils"
)

const MaxResumeBytes = 10 << 20

type CreateResumeInput struct {
	Filename     string `json:"filename"`
	Name         string `json:"name"`
	FilePath     string `json:"filePath"`
	FileSize     int64  `json:"fileSize"`
	FileURL      string `json:"fileUrl"`
	MimeType     string `json:"mimeType"`
	SetAsDefault bool   `json:"setAsDefault"`
	FileBase64   string `json:"fileBase64"`
}

type ResumeService interface {
	// Create stores the resume row with placeholder text and schedules
	// enrichment. It returns before any enrichment runs.
	Create(ctx context.Context, userID, email string, in CreateResumeInput) (*models.Resume, error)
	// Upload puts a PDF into object storage, then behaves like Create.
	Upload(ctx context.Context, userID, email, filename, name string, r io.Reader, setAsDefault bool) (*models.Resume, error)
	Get(ctx context.Context, userID, id string) (*models.Resume, error)
	List(ctx context.Context, userID string) ([]models.Resume, error)
	SetDefault(ctx context.Context, userID, id string) error
	Delete(ctx context.Context, userID, id string) error
	// Enrich fills thumbnail and extracted text for one resume. Each stage
	// records its own failure on the row.
	Enrich(ctx context.Context, task *models.Task) error
}

type ResumeDeps struct {
	Users    pgrepo.UserRepository
	Resumes  pgrepo.ResumeRepository
	Store    storage.Store
	Renderer thumbnail.Renderer
	AI       llm.Provider
	Queue    TaskEnqueuer
	Logger   *logrus.Logger

	SignedURLTTL time.Duration
	AITimeout    time.Duration
}

type resumeService struct {
	ResumeDeps
}

func NewResumeService(d ResumeDeps) ResumeService {
	if d.Logger == nil {
		d.Logger = logrus.New()
	}
	if d.SignedURLTTL <= 0 {
		d.SignedURLTTL = time.Hour
	}
	if d.AITimeout <= 0 {
		d.AITimeout = 2 * time.Minute
	}
	return &resumeService{ResumeDeps: d}
}

func userPrefix(userID string) string { return "resumes/" + userID + "/" }

func (s *resumeService) Create(ctx context.Context, userID, email string, in CreateResumeInput) (*models.Resume, error) {
	const op = "ResumeService.Create"

	in.Filename = strings.TrimSpace(in.Filename)
	in.Name = strings.TrimSpace(in.Name)
	in.FilePath = strings.TrimSpace(in.FilePath)
	if in.Filename == "" || in.Name == "" || in.FilePath == "" {
		return nil, utils.E(utils.CodeInvalidArgument, op, "filename, name and filePath are required", nil)
	}
	if path.Clean(in.FilePath) != in.FilePath || !strings.HasPrefix(in.FilePath, userPrefix(userID)) {
		return nil, utils.E(utils.CodeForbidden, op, "filePath is outside the caller's folder", nil)
	}
	if in.FileSize < 0 || in.FileSize > MaxResumeBytes {
		return nil, utils.E(utils.CodeInvalidArgument, op, "fileSize is out of range", nil)
	}
	if len(stripDataURL(in.FileBase64)) > base64.StdEncoding.EncodedLen(MaxResumeBytes) {
		return nil, utils.E(utils.CodeInvalidArgument, op, "fileBase64 exceeds the resume size limit", nil)
	}
	if in.MimeType == "" {
		in.MimeType = "application/pdf"
	}

	if _, err := s.Users.GetOrCreate(ctx, userID, email); err != nil {
		return nil, utils.E(utils.CodeInternal, op, "failed to load user", err)
	}

	now := utcNow()
	row := &models.Resume{
		ID:            uuid.NewString(),
		UserID:        userID,
		Name:          in.Name,
		Filename:      in.Filename,
		FilePath:      in.FilePath,
		FileURL:       in.FileURL,
		FileSize:      in.FileSize,
		MimeType:      in.MimeType,
		ExtractedText: models.ResumeTextPlaceholder,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := s.Resumes.Create(ctx, row, in.SetAsDefault); err != nil {
		return nil, utils.E(utils.CodeInternal, op, "failed to create resume", err)
	}

	if s.Queue == nil {
		s.Logger.WithField("resume_id", row.ID).Warn("no task queue; resume left unenriched")
		return row, nil
	}
	payload := models.EnrichmentPayload{FileBase64: in.FileBase64}
	if _, err := s.Queue.Enqueue(ctx, models.TaskResumeEnrichment, row.ID, userID, payload); err != nil {
		// the row exists; surface the problem on it instead of failing the request
		s.Logger.WithError(err).WithField("resume_id", row.ID).Error("enrichment enqueue failed")
		msg := "Failed to extract text: " + err.Error()
		if werr := s.patch(ctx, row.ID, models.ResumeEnrichment{ExtractedText: &msg}); werr != nil {
			s.Logger.WithError(werr).WithField("resume_id", row.ID).Error("resume failure write failed")
		}
		row.ExtractedText = msg
	}
	return row, nil
}

func (s *resumeService) Upload(ctx context.Context, userID, email, filename, name string, r io.Reader, setAsDefault bool) (*models.Resume, error) {
	const op = "ResumeService.Upload"

	if s.Store == nil {
		return nil, utils.ConfigError(op, "object storage")
	}
	filename = strings.TrimSpace(filename)
	if filename == "" {
		return nil, utils.E(utils.CodeInvalidArgument, op, "file name is required", nil)
	}
	if strings.TrimSpace(name) == "" {
		name = strings.TrimSuffix(filename, path.Ext(filename))
	}

	data, err := io.ReadAll(io.LimitReader(r, MaxResumeBytes+1))
	if err != nil {
		return nil, utils.E(utils.CodeInvalidArgument, op, "failed to read upload", err)
	}
	if len(data) == 0 {
		return nil, utils.E(utils.CodeInvalidArgument, op, "file is empty", nil)
	}
	if len(data) > MaxResumeBytes {
		return nil, utils.E(utils.CodeInvalidArgument, op, "file exceeds 10MB", nil)
	}
	if ct := http.DetectContentType(data); ct != "application/pdf" {
		return nil, utils.WithDetails(utils.E(utils.CodeInvalidArgument, op, "only PDF resumes are supported", nil), ct)
	}

	objectName := userPrefix(userID) + uuid.NewString() + ".pdf"
	stored, err := s.Store.Upload(ctx, objectName, "application/pdf", bytes.NewReader(data))
	if err != nil {
		return nil, utils.E(utils.CodeUnavailable, op, "failed to upload file", err)
	}

	return s.Create(ctx, userID, email, CreateResumeInput{
		Filename:     filename,
		Name:         name,
		FilePath:     stored,
		FileSize:     int64(len(data)),
		MimeType:     "application/pdf",
		SetAsDefault: setAsDefault,
	})
}

func (s *resumeService) Get(ctx context.Context, userID, id string) (*models.Resume, error) {
	const op = "ResumeService.Get"

	if uuid.Validate(id) != nil {
		return nil, utils.E(utils.CodeNotFound, op, "resume not found", nil)
	}
	r, err := s.Resumes.GetByID(ctx, userID, id)
	if err != nil {
		return nil, notFoundOr(op, "resume not found", err)
	}
	s.sign(ctx, r)
	return r, nil
}

func (s *resumeService) List(ctx context.Context, userID string) ([]models.Resume, error) {
	const op = "ResumeService.List"

	rows, err := s.Resumes.ListByUser(ctx, userID)
	if err != nil {
		return nil, utils.E(utils.CodeInternal, op, "failed to list resumes", err)
	}
	if rows == nil {
		rows = []models.Resume{}
	}
	for i := range rows {
		s.sign(ctx, &rows[i])
	}
	return rows, nil
}

// sign refreshes short-lived URLs; stored URLs expire.
func (s *resumeService) sign(ctx context.Context, r *models.Resume) {
	if s.Store == nil {
		return
	}
	if r.FilePath != "" {
		if u, err := s.Store.SignedGetURL(ctx, r.FilePath, s.SignedURLTTL); err == nil {
			r.FileURL = u
		}
	}
	if r.ThumbnailPath != "" {
		if u, err := s.Store.SignedGetURL(ctx, r.ThumbnailPath, s.SignedURLTTL); err == nil {
			r.ThumbnailURL = u
		}
	}
}

func (s *resumeService) SetDefault(ctx context.Context, userID, id string) error {
	const op = "ResumeService.SetDefault"

	if uuid.Validate(id) != nil {
		return utils.E(utils.CodeNotFound, op, "resume not found", nil)
	}
	if err := s.Resumes.SetDefault(ctx, userID, id); err != nil {
		return notFoundOr(op, "resume not found", err)
	}
	return nil
}

func (s *resumeService) Delete(ctx context.Context, userID, id string) error {
	const op = "ResumeService.Delete"

	if uuid.Validate(id) != nil {
		return utils.E(utils.CodeNotFound, op, "resume not found", nil)
	}
	r, err := s.Resumes.GetByID(ctx, userID, id)
	if err != nil {
		return notFoundOr(op, "resume not found", err)
	}

	if s.Store != nil {
		for _, obj := range []string{r.FilePath, r.ThumbnailPath} {
			if obj == "" {
				continue
			}
			if err := s.Store.Delete(ctx, obj); err != nil {
				return utils.E(utils.CodeUnavailable, op, "failed to delete stored file", err)
			}
		}
	}

	if err := s.Resumes.Delete(ctx, userID, id); err != nil {
		return notFoundOr(op, "resume not found", err)
	}
	return nil
}

func (s *resumeService) Enrich(ctx context.Context, task *models.Task) error {
	const op = "ResumeService.Enrich"

	r, err := s.Resumes.Find(ctx, task.RefID)
	if err != nil {
		return notFoundOr(op, "resume not found", err)
	}

	log := s.Logger.WithFields(logrus.Fields{"resume_id": r.ID, "user_id": r.UserID})

	var payload models.EnrichmentPayload
	if len(task.Payload) > 0 {
		_ = json.Unmarshal(task.Payload, &payload)
	}

	data, err := s.resumeBytes(ctx, r, payload.FileBase64)
	if err != nil {
		if interrupted(ctx) {
			return fmt.Errorf("%w: resume download: %v", utils.ErrInterrupted, err)
		}
		msg := "Failed to download resume file: " + err.Error()
		thumbMsg := "Failed to generate thumbnail: resume file unavailable"
		if werr := s.patch(ctx, r.ID, models.ResumeEnrichment{
			ExtractedText:  &msg,
			ThumbnailError: &thumbMsg,
		}); werr != nil {
			log.WithError(werr).Error("resume failure write failed")
		}
		return errors.New(msg)
	}

	var errs []error
	if err := s.thumbnailStage(ctx, r, data); err != nil {
		log.WithError(err).Warn("thumbnail stage failed")
		errs = append(errs, err)
	}
	if err := s.textStage(ctx, r, data); err != nil {
		log.WithError(err).Warn("text extraction stage failed")
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// patch writes enrichment columns on a detached context: a stage outcome,
// failure strings included, must reach the row even when ctx is done.
func (s *resumeService) patch(ctx context.Context, id string, e models.ResumeEnrichment) error {
	wctx, cancel := detached(ctx, 15*time.Second)
	defer cancel()
	return s.Resumes.ApplyEnrichment(wctx, id, e)
}

func (s *resumeService) resumeBytes(ctx context.Context, r *models.Resume, inline string) ([]byte, error) {
	if inline != "" {
		if b, err := decodeBase64File(inline); err == nil && len(b) > 0 {
			return b, nil
		}
		s.Logger.WithField("resume_id", r.ID).Warn("inline resume data unusable; downloading")
	}
	if s.Store == nil {
		return nil, errors.New("object storage is not configured")
	}
	return s.Store.Download(ctx, r.FilePath)
}

// stripDataURL drops a "data:<mime>;base64," prefix if there is one.
func stripDataURL(v string) string {
	v = strings.TrimSpace(v)
	if strings.HasPrefix(v, "data:") {
		if i := strings.Index(v, ","); i >= 0 {
			v = v[i+1:]
		}
	}
	return v
}

// decodeBase64File accepts raw base64 or a data URL.
func decodeBase64File(v string) ([]byte, error) {
	return base64.StdEncoding.DecodeString(stripDataURL(v))
}

func (s *resumeService) thumbnailStage(ctx context.Context, r *models.Resume, data []byte) error {
	fail := func(err error) error {
		if interrupted(ctx) {
			return fmt.Errorf("%w: thumbnail: %v", utils.ErrInterrupted, err)
		}
		msg := "Failed to generate thumbnail: " + err.Error()
		if werr := s.patch(ctx, r.ID, models.ResumeEnrichment{ThumbnailError: &msg}); werr != nil {
			return errors.Join(errors.New(msg), werr)
		}
		return errors.New(msg)
	}

	if s.Renderer == nil || s.Store == nil {
		return fail(errors.New("thumbnail rendering is not configured"))
	}
	png, err := s.Renderer.Render(data)
	if err != nil {
		return fail(err)
	}

	objectName := fmt.Sprintf("thumbnails/%s/%s.png", r.UserID, r.ID)
	stored, err := s.Store.Upload(ctx, objectName, "image/png", bytes.NewReader(png))
	if err != nil {
		return fail(err)
	}
	url, err := s.Store.SignedGetURL(ctx, stored, s.SignedURLTTL)
	if err != nil {
		return fail(err)
	}

	empty := ""
	return s.patch(ctx, r.ID, models.ResumeEnrichment{
		ThumbnailPath:  &stored,
		ThumbnailURL:   &url,
		ThumbnailError: &empty,
	})
}

func (s *resumeService) textStage(ctx context.Context, r *models.Resume, data []byte) error {
	fail := func(err error) error {
		if interrupted(ctx) {
			return fmt.Errorf("%w: text extraction: %v", utils.ErrInterrupted, err)
		}
		msg := "Failed to extract text: " + err.Error()
		if werr := s.patch(ctx, r.ID, models.ResumeEnrichment{ExtractedText: &msg}); werr != nil {
			return errors.Join(errors.New(msg), werr)
		}
		return errors.New(msg)
	}

	if s.AI == nil {
		return fail(errors.New("AI provider is not configured"))
	}

	mime := r.MimeType
	if mime == "" {
		mime = "application/pdf"
	}
	actx, cancel := context.WithTimeout(ctx, s.AITimeout)
	defer cancel()

	raw, err := llm.Generate(actx, s.AI, llm.Request{
		Prompt:      analysis.ResumeTextPrompt(),
		Attachments: []llm.Attachment{{MIMEType: mime, Data: data}},
		Temperature: analysis.DefaultTemperature,
		Kind:        "resume_text",
		RefID:       r.ID,
		UserID:      r.UserID,
	})
	if err != nil {
		return fail(err)
	}
	text := analysis.CleanText(raw)
	if text == "" {
		return fail(analysis.ErrEmptyResponse)
	}
	return s.patch(ctx, r.ID, models.ResumeEnrichment{ExtractedText: &text})
}
