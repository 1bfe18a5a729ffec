package handlers

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/jobhound/backend/internal/models"
	"github.com/jobhound/backend/internal/payments"
	"github.com/jobhound/backend/internal/services"
	"github.com/jobhound/backend/internal/utils"
)

const testUser = "7b1d1f0e-3c2a-4e9b-8f6d-5a4c3b2a1d0e"

func init() { gin.SetMode(gin.TestMode) }

// asUser stands in for JWTAuth.
func asUser(userID, role string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if userID != "" {
			c.Set("user_id", userID)
			c.Set("email", "jane@example.com")
			c.Set("role", role)
		}
		c.Next()
	}
}

func serve(r http.Handler, method, target, body string) *httptest.ResponseRecorder {
	var rd io.Reader
	if body != "" {
		rd = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, rd)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

type stubScans struct {
	mu          sync.Mutex
	admitErr    error
	scheduleErr error
	chunks      []string
	scan        *models.JobScan
	scheduled   []string
	analyzeCtx  context.Context
	getErr      error
}

func (s *stubScans) Admit(_ context.Context, userID, _ string, in services.CreateScanInput) (*models.JobScan, error) {
	if s.admitErr != nil {
		return nil, s.admitErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.scan = &models.JobScan{
		ID: "11111111-2222-3333-4444-555555555555", UserID: userID,
		JobID: in.JobID, ResumeID: &in.ResumeID, Status: models.ScanProcessing,
		UpdatedAt: time.Now().UTC(),
	}
	cp := *s.scan
	return &cp, nil
}

func (s *stubScans) Schedule(_ context.Context, scan *models.JobScan) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.scheduled = append(s.scheduled, scan.ID)
	return s.scheduleErr
}

func (s *stubScans) Analyze(ctx context.Context, scanID string, onChunk func(string)) (*models.JobScan, error) {
	s.mu.Lock()
	s.analyzeCtx = ctx
	chunks := s.chunks
	s.mu.Unlock()
	for _, c := range chunks {
		onChunk(c)
	}
	return s.finish(models.ScanCompleted), nil
}

func (s *stubScans) finish(st models.ScanStatus) *models.JobScan {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.scan.Status = st
	cp := *s.scan
	return &cp
}

func (s *stubScans) Reconcile(context.Context, string, string, error) (*models.JobScan, error) {
	return nil, nil
}

func (s *stubScans) RunTask(context.Context, *models.Task) error { return nil }

func (s *stubScans) ExpireAbandoned(context.Context) (int, error) { return 0, nil }

func (s *stubScans) Get(_ context.Context, userID, id string) (*models.JobScan, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.getErr != nil {
		return nil, s.getErr
	}
	if s.scan == nil || s.scan.ID != id || s.scan.UserID != userID {
		return nil, utils.E(utils.CodeNotFound, "stub", "scan not found", nil)
	}
	cp := *s.scan
	return &cp, nil
}

func (s *stubScans) List(context.Context, string, string) ([]models.JobScan, error) {
	return []models.JobScan{}, nil
}

type stubResumes struct {
	created  services.CreateResumeInput
	uploaded []byte
	err      error
}

func (s *stubResumes) Create(_ context.Context, userID, _ string, in services.CreateResumeInput) (*models.Resume, error) {
	if s.err != nil {
		return nil, s.err
	}
	s.created = in
	return &models.Resume{ID: "r-1", UserID: userID, Name: in.Name, ExtractedText: models.ResumeTextPlaceholder}, nil
}

func (s *stubResumes) Upload(_ context.Context, userID, _, filename, name string, r io.Reader, _ bool) (*models.Resume, error) {
	b, _ := io.ReadAll(r)
	s.uploaded = b
	return &models.Resume{ID: "r-2", UserID: userID, Filename: filename, Name: name}, nil
}

func (s *stubResumes) Get(context.Context, string, string) (*models.Resume, error) {
	return nil, utils.E(utils.CodeNotFound, "stub", "resume not found", nil)
}
func (s *stubResumes) List(context.Context, string) ([]models.Resume, error) {
	return []models.Resume{}, nil
}
func (s *stubResumes) SetDefault(context.Context, string, string) error { return nil }
func (s *stubResumes) Delete(context.Context, string, string) error     { return nil }
func (s *stubResumes) Enrich(context.Context, *models.Task) error        { return nil }

type stubJobs struct {
	listing *services.ListingResult
	err     error
	text    string
}

func (s *stubJobs) Create(_ context.Context, userID, _ string, in services.JobInput) (*models.Job, error) {
	return &models.Job{ID: "j-1", UserID: userID, Title: in.Title, Status: "saved"}, nil
}
func (s *stubJobs) Get(context.Context, string, string) (*models.Job, error) { return nil, s.err }
func (s *stubJobs) List(context.Context, string) ([]models.Job, error)     { return []models.Job{}, nil }
func (s *stubJobs) Update(context.Context, string, string, services.JobInput) (*models.Job, error) {
	return nil, s.err
}
func (s *stubJobs) ProcessListing(_ context.Context, _ string, text string) (*services.ListingResult, error) {
	s.text = text
	return s.listing, s.err
}

type stubCredits struct {
	payload   []byte
	signature string
	granted   []services.GrantInput
	created   bool
	err       error
}

func (s *stubCredits) Balance(context.Context, string) (*models.CreditBalance, error) {
	return &models.CreditBalance{Available: 3, Lots: []models.CreditPurchase{}}, nil
}
func (s *stubCredits) Grant(_ context.Context, in services.GrantInput, _ string) (bool, error) {
	s.granted = append(s.granted, in)
	return s.created, s.err
}
func (s *stubCredits) Checkout(context.Context, string, string) (*payments.CheckoutSession, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &payments.CheckoutSession{ID: "cs_1", URL: "https://checkout.example/cs_1"}, nil
}
func (s *stubCredits) HandleWebhook(_ context.Context, payload []byte, sig string) error {
	s.payload, s.signature = payload, sig
	return s.err
}

func scanInput() services.CreateScanInput {
	return services.CreateScanInput{
		JobID:    "aaaaaaaa-0000-4000-8000-000000000001",
		ResumeID: "bbbbbbbb-0000-4000-8000-000000000002",
	}
}
