package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/datatypes"

	"github.com/jobhound/backend/internal/analysis"
	"github.com/jobhound/backend/internal/cache"
	"github.com/jobhound/backend/internal/events"
	"github.com/jobhound/backend/internal/models"
	"github.com/jobhound/backend/internal/providers/llm"
	pgrepo "github.com/jobhound/backend/internal/repositories/postgres"
	"github.com/jobhound/backend/internal/storage"
	"github.com/jobhound/backend/internal/utils"
)

type CreateScanInput struct {
	JobID    string `json:"jobId"`
	ResumeID string `json:"resumeId"`
}

type ScanService interface {
	// Admit checks ownership, debits one credit and inserts the processing
	// scan atomically. Nothing is written when it fails.
	Admit(ctx context.Context, userID, email string, in CreateScanInput) (*models.JobScan, error)
	// Schedule hands an admitted scan to the task queue.
	Schedule(ctx context.Context, scan *models.JobScan) error
	// Analyze runs the model for an admitted scan, forwarding raw output to
	// onChunk, and always leaves the scan terminal.
	Analyze(ctx context.Context, scanID string, onChunk func(string)) (*models.JobScan, error)
	// Reconcile applies a raw model response (or the error that replaced it)
	// to a processing scan.
	Reconcile(ctx context.Context, scanID, raw string, aiErr error) (*models.JobScan, error)
	RunTask(ctx context.Context, task *models.Task) error
	// ExpireAbandoned fails processing scans that outlived the analysis
	// budget with nothing left to finish them.
	ExpireAbandoned(ctx context.Context) (int, error)
	Get(ctx context.Context, userID, id string) (*models.JobScan, error)
	List(ctx context.Context, userID, jobID string) ([]models.JobScan, error)
}

type ScanDeps struct {
	Users   pgrepo.UserRepository
	Jobs    pgrepo.JobRepository
	Resumes pgrepo.ResumeRepository
	Scans   pgrepo.ScanRepository
	Credits pgrepo.CreditRepository

	Files  storage.Downloader
	AI     llm.Provider
	Queue  TaskEnqueuer
	Events events.Publisher
	Cache  cache.Cache
	Logger *logrus.Logger

	Temperature float32
	AITimeout   time.Duration
	Now         func() time.Time
}

type scanService struct {
	ScanDeps
}

func NewScanService(d ScanDeps) ScanService {
	if d.Events == nil {
		d.Events = events.Nop{}
	}
	if d.Cache == nil {
		d.Cache = cache.Noop{}
	}
	if d.Logger == nil {
		d.Logger = logrus.New()
	}
	if d.Temperature <= 0 {
		d.Temperature = analysis.DefaultTemperature
	}
	if d.AITimeout <= 0 {
		d.AITimeout = 2 * time.Minute
	}
	if d.Now == nil {
		d.Now = utcNow
	}
	return &scanService{ScanDeps: d}
}

func (s *scanService) Admit(ctx context.Context, userID, email string, in CreateScanInput) (*models.JobScan, error) {
	const op = "ScanService.Admit"

	in.JobID = strings.TrimSpace(in.JobID)
	in.ResumeID = strings.TrimSpace(in.ResumeID)
	if in.JobID == "" || in.ResumeID == "" {
		return nil, utils.E(utils.CodeInvalidArgument, op, "jobId and resumeId are required", nil)
	}
	if uuid.Validate(in.JobID) != nil || uuid.Validate(in.ResumeID) != nil {
		return nil, utils.E(utils.CodeInvalidArgument, op, "jobId and resumeId must be UUIDs", nil)
	}
	if s.AI == nil {
		return nil, utils.ConfigError(op, "AI provider")
	}

	if _, err := s.Users.GetOrCreate(ctx, userID, email); err != nil {
		return nil, utils.E(utils.CodeInternal, op, "failed to load user", err)
	}
	if _, err := s.Jobs.GetByID(ctx, userID, in.JobID); err != nil {
		return nil, notFoundOr(op, "job not found", err)
	}
	if _, err := s.Resumes.GetByID(ctx, userID, in.ResumeID); err != nil {
		return nil, notFoundOr(op, "resume not found", err)
	}

	now := s.Now()
	scan := &models.JobScan{
		ID:        uuid.NewString(),
		UserID:    userID,
		JobID:     in.JobID,
		ResumeID:  &in.ResumeID,
		Status:    models.ScanProcessing,
		CreatedAt: now,
		UpdatedAt: now,
	}
	req, _ := json.Marshal(in)

	if _, err := s.Credits.AdmitScan(ctx, scan, datatypes.JSON(req), now); err != nil {
		if errors.Is(err, utils.ErrNoCredits) {
			return nil, utils.E(utils.CodeNoCredits, op, "no credits available", err)
		}
		return nil, utils.E(utils.CodeInternal, op, "failed to create scan", err)
	}

	s.publish(ctx, scan)
	return scan, nil
}

func (s *scanService) Schedule(ctx context.Context, scan *models.JobScan) error {
	const op = "ScanService.Schedule"

	if s.Queue == nil {
		_, _ = s.Reconcile(ctx, scan.ID, "", errors.New("task queue is not configured"))
		return utils.ConfigError(op, "task queue")
	}
	if _, err := s.Queue.Enqueue(ctx, models.TaskScanAnalysis, scan.ID, scan.UserID, nil); err != nil {
		// the scan is already debited; it must not stay processing forever
		_, _ = s.Reconcile(ctx, scan.ID, "", fmt.Errorf("failed to schedule analysis: %w", err))
		return utils.E(utils.CodeUnavailable, op, "failed to schedule analysis", err)
	}
	return nil
}

func (s *scanService) Analyze(ctx context.Context, scanID string, onChunk func(string)) (*models.JobScan, error) {
	const op = "ScanService.Analyze"

	scan, err := s.Scans.Find(ctx, scanID)
	if err != nil {
		if interrupted(ctx) {
			return nil, s.interruptedErr(op, scanID, err)
		}
		return nil, notFoundOr(op, "scan not found", err)
	}
	if scan.Status.Terminal() {
		return scan, nil
	}
	if s.AI == nil {
		return s.Reconcile(ctx, scanID, "", errors.New("AI provider is not configured"))
	}

	req, err := s.buildRequest(ctx, scan)
	if err != nil {
		if interrupted(ctx) {
			return nil, s.interruptedErr(op, scanID, err)
		}
		return s.Reconcile(ctx, scanID, "", err)
	}

	actx, cancel := context.WithTimeout(ctx, s.AITimeout)
	defer cancel()

	chunks, errs := s.AI.StreamAnswer(actx, req)
	raw, aiErr := llm.Collect(chunks, errs, onChunk)
	if aiErr == nil && actx.Err() != nil {
		aiErr = actx.Err()
	}
	// shutdown, not a model failure: leave the scan processing so the task
	// is re-dispatched and the debited credit is not burned
	if aiErr != nil && interrupted(ctx) {
		return nil, s.interruptedErr(op, scanID, aiErr)
	}
	return s.Reconcile(ctx, scanID, raw, aiErr)
}

func (s *scanService) interruptedErr(op, scanID string, cause error) error {
	s.Logger.WithError(cause).WithField("scan_id", scanID).Info("scan analysis interrupted; left for recovery")
	return utils.E(utils.CodeUnavailable, op, "analysis interrupted", fmt.Errorf("%w: %v", utils.ErrInterrupted, cause))
}

func (s *scanService) buildRequest(ctx context.Context, scan *models.JobScan) (llm.Request, error) {
	job, err := s.Jobs.GetByID(ctx, scan.UserID, scan.JobID)
	if err != nil {
		return llm.Request{}, fmt.Errorf("failed to load job: %w", err)
	}
	if scan.ResumeID == nil {
		return llm.Request{}, errors.New("resume was deleted")
	}
	resume, err := s.Resumes.GetByID(ctx, scan.UserID, *scan.ResumeID)
	if err != nil {
		return llm.Request{}, fmt.Errorf("failed to load resume: %w", err)
	}

	req := llm.Request{
		Temperature: s.Temperature,
		JSON:        true,
		Kind:        "scan",
		RefID:       scan.ID,
		UserID:      scan.UserID,
	}

	var resumeText string
	var data []byte
	if s.Files != nil && resume.FilePath != "" {
		data, err = s.Files.Download(ctx, resume.FilePath)
	}
	switch {
	case len(data) > 0:
		mime := resume.MimeType
		if mime == "" {
			mime = "application/pdf"
		}
		req.Attachments = []llm.Attachment{{MIMEType: mime, Data: data}}
	case usableResumeText(resume.ExtractedText):
		resumeText = resume.ExtractedText
	case err != nil:
		return llm.Request{}, fmt.Errorf("Failed to download resume file: %w", err)
	default:
		return llm.Request{}, errors.New("resume file is not available")
	}

	req.Prompt = analysis.ScanPrompt(job.JobDescriptionText(), resumeText)
	return req, nil
}

func usableResumeText(t string) bool {
	t = strings.TrimSpace(t)
	return t != "" && t != models.ResumeTextPlaceholder && !strings.HasPrefix(t, "Failed to ")
}

func (s *scanService) Reconcile(ctx context.Context, scanID, raw string, aiErr error) (*models.JobScan, error) {
	const op = "ScanService.Reconcile"

	// the outcome is known; persist it even if the caller went away
	wctx, cancel := detached(ctx, 15*time.Second)
	defer cancel()

	out := models.ScanOutcome{At: s.Now()}
	var results datatypes.JSON

	switch res, perr := analysis.ParseScanResult(raw); {
	case aiErr != nil:
		out.Status = models.ScanError
		out.ErrorMessage = "AI analysis failed: " + aiErr.Error()
	case perr != nil:
		out.Status = models.ScanError
		out.ErrorMessage = "Invalid AI response: " + perr.Error()
	default:
		b, err := json.Marshal(res)
		if err != nil {
			out.Status = models.ScanError
			out.ErrorMessage = "Invalid AI response: " + err.Error()
			break
		}
		results = datatypes.JSON(b)
		out.Status = models.ScanCompleted
		out.MatchScore = res.MatchScore
		out.Results = results
	}

	log := s.Logger.WithFields(logrus.Fields{"scan_id": scanID, "status": out.Status})

	applied, err := s.Scans.Finish(wctx, scanID, out)
	if err != nil {
		return nil, utils.E(utils.CodeInternal, op, "failed to record scan result", err)
	}
	if !applied {
		log.Warn("scan already terminal; outcome dropped")
	}

	if applied && out.Status == models.ScanCompleted {
		if err := s.Credits.PatchUsageResponse(wctx, scanID, results); err != nil {
			log.WithError(err).Warn("credit usage response patch failed")
		}
	}
	if applied && out.Status == models.ScanError {
		log.WithField("error_message", out.ErrorMessage).Warn("scan failed")
	}

	scan, err := s.Scans.Find(wctx, scanID)
	if err != nil {
		return nil, notFoundOr(op, "scan not found", err)
	}
	if applied {
		s.publish(wctx, scan)
		s.remember(wctx, scan)
	}
	return scan, nil
}

func (s *scanService) RunTask(ctx context.Context, task *models.Task) error {
	scan, err := s.Analyze(ctx, task.RefID, nil)
	if err != nil {
		return err
	}
	if scan.Status == models.ScanError {
		return errors.New(scan.ErrorMessage)
	}
	return nil
}

// abandonGrace is added to the AI timeout before a processing scan without
// a live task counts as abandoned.
const abandonGrace = 5 * time.Minute

var errAbandoned = errors.New("analysis did not finish")

func (s *scanService) ExpireAbandoned(ctx context.Context) (int, error) {
	const op = "ScanService.ExpireAbandoned"

	ids, err := s.Scans.Abandoned(ctx, s.Now().Add(-(s.AITimeout + abandonGrace)), 100)
	if err != nil {
		return 0, utils.E(utils.CodeInternal, op, "failed to list abandoned scans", err)
	}
	n := 0
	for _, id := range ids {
		if _, err := s.Reconcile(ctx, id, "", errAbandoned); err != nil {
			return n, err
		}
		n++
	}
	return n, nil
}

func (s *scanService) Get(ctx context.Context, userID, id string) (*models.JobScan, error) {
	const op = "ScanService.Get"

	if uuid.Validate(id) != nil {
		return nil, utils.E(utils.CodeNotFound, op, "scan not found", nil)
	}

	var cached models.JobScan
	if hit, err := s.Cache.GetJSON(ctx, cache.ScanKey(id), &cached); err == nil && hit && cached.UserID == userID {
		return &cached, nil
	}

	scan, err := s.Scans.GetByID(ctx, userID, id)
	if err != nil {
		return nil, notFoundOr(op, "scan not found", err)
	}
	if scan.Status.Terminal() {
		s.remember(ctx, scan)
	}
	return scan, nil
}

func (s *scanService) List(ctx context.Context, userID, jobID string) ([]models.JobScan, error) {
	const op = "ScanService.List"

	if jobID != "" && uuid.Validate(jobID) != nil {
		return nil, utils.E(utils.CodeInvalidArgument, op, "job_id must be a UUID", nil)
	}
	rows, err := s.Scans.List(ctx, userID, jobID, 50)
	if err != nil {
		return nil, utils.E(utils.CodeInternal, op, "failed to list scans", err)
	}
	if rows == nil {
		rows = []models.JobScan{}
	}
	return rows, nil
}

func (s *scanService) publish(ctx context.Context, scan *models.JobScan) {
	ev := events.ScanEvent{
		ScanID:     scan.ID,
		Status:     string(scan.Status),
		MatchScore: scan.MatchScore,
		Message:    scan.ErrorMessage,
		At:         scan.UpdatedAt.UTC().Format(time.RFC3339),
	}
	if err := s.Events.PublishScan(ctx, ev); err != nil {
		s.Logger.WithError(err).WithField("scan_id", scan.ID).Debug("scan event publish failed")
	}
}

func (s *scanService) remember(ctx context.Context, scan *models.JobScan) {
	if !scan.Status.Terminal() {
		return
	}
	if err := s.Cache.SetJSON(ctx, cache.ScanKey(scan.ID), scan, cache.TerminalScanTTL); err != nil {
		s.Logger.WithError(err).WithField("scan_id", scan.ID).Debug("scan cache write failed")
	}
}

func notFoundOr(op, msg string, err error) error {
	if errors.Is(err, utils.ErrNotFound) {
		return utils.E(utils.CodeNotFound, op, msg, err)
	}
	return utils.E(utils.CodeInternal, op, "storage error", err)
}
