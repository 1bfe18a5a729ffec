package services

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jobhound/backend/internal/cache"
	"github.com/jobhound/backend/internal/events"
	"github.com/jobhound/backend/internal/logger"
	"github.com/jobhound/backend/internal/models"
	"github.com/jobhound/backend/internal/storage"
	"github.com/jobhound/backend/internal/utils"
)

const scanJSON = `{
  "overallMatch": "Good fit for the backend role.",
  "hardSkills": ["Go"],
  "softSkills": ["Ownership"],
  "experienceMatch": "Matches the seniority asked for.",
  "qualifications": ["Degree"],
  "missingKeywords": ["Terraform"],
  "matchScore": 74,
  "categoryScores": {"searchability": 80, "hardSkills": 70, "softSkills": 65, "recruiterTips": 0, "formatting": 100},
  "categoryFeedback": {
    "searchability": [{"issue": "Title matches", "status": "pass"}],
    "hardSkills": [{"issue": "No Terraform", "status": "fail", "tip": "Add IaC work"}],
    "softSkills": [],
    "recruiterTips": [{"issue": "No metrics", "status": "warning"}],
    "formatting": [],
    "experience": [{"issue": "Relevant roles", "status": "pass"}]
  }
}`

type recordingBus struct {
	mu  sync.Mutex
	evs []events.ScanEvent
}

func (b *recordingBus) PublishScan(_ context.Context, ev events.ScanEvent) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.evs = append(b.evs, ev)
	return nil
}

func (b *recordingBus) statuses() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []string
	for _, e := range b.evs {
		out = append(out, e.Status)
	}
	return out
}

type memCache struct {
	mu sync.Mutex
	m  map[string][]byte
}

func (c *memCache) GetJSON(_ context.Context, key string, dst any) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	b, ok := c.m[key]
	if !ok {
		return false, nil
	}
	return true, json.Unmarshal(b, dst)
}

func (c *memCache) SetJSON(_ context.Context, key string, val any, _ time.Duration) error {
	b, err := json.Marshal(val)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.m[key] = b
	return nil
}

func (c *memCache) Del(_ context.Context, keys ...string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, k := range keys {
		delete(c.m, k)
	}
	return nil
}

type scanFixture struct {
	db     *memDB
	ai     *fakeAI
	store  *storage.MemoryStore
	queue  *fakeQueue
	bus    *recordingBus
	cache  *memCache
	svc    ScanService
	userID string
	jobID  string
	resume string
}

func newScanFixture(t *testing.T, credits int) *scanFixture {
	t.Helper()
	ctx := context.Background()

	f := &scanFixture{
		db:     newMemDB(),
		ai:     &fakeAI{chunks: chunked(scanJSON, 40)},
		store:  storage.NewMemoryStore(),
		queue:  &fakeQueue{},
		bus:    &recordingBus{},
		cache:  &memCache{m: map[string][]byte{}},
		userID: uuid.NewString(),
		jobID:  uuid.NewString(),
		resume: uuid.NewString(),
	}

	f.db.users[f.userID] = &models.User{ID: f.userID}
	f.db.jobs[f.jobID] = &models.Job{
		ID: f.jobID, UserID: f.userID,
		Title: "Backend Engineer", Company: "Acme",
		HardSkills: models.StringList{"Go", "PostgreSQL"},
	}

	path := "resumes/" + f.userID + "/cv.pdf"
	_, err := f.store.Upload(ctx, path, "application/pdf", strings.NewReader("%PDF-1.4 fake"))
	require.NoError(t, err)
	f.db.resumes[f.resume] = &models.Resume{
		ID: f.resume, UserID: f.userID, FilePath: path, MimeType: "application/pdf",
		ExtractedText: models.ResumeTextPlaceholder,
	}

	if credits > 0 {
		id := uuid.NewString()
		f.db.purchases[id] = &models.CreditPurchase{
			ID: id, UserID: f.userID, Amount: credits, RemainingCredits: credits,
			Source: models.CreditSourceGrant, CreatedAt: time.Now().UTC(),
		}
	}

	f.svc = NewScanService(ScanDeps{
		Users:     fakeUsers{f.db},
		Jobs:      fakeJobs{f.db},
		Resumes:   fakeResumes{f.db},
		Scans:     fakeScans{f.db},
		Credits:   fakeCredits{f.db},
		Files:     f.store,
		AI:        f.ai,
		Queue:     f.queue,
		Events:    f.bus,
		Cache:     f.cache,
		Logger:    logger.Discard(),
		AITimeout: 2 * time.Second,
	})
	return f
}

func chunked(s string, n int) []string {
	var out []string
	for len(s) > n {
		out = append(out, s[:n])
		s = s[n:]
	}
	return append(out, s)
}

func (f *scanFixture) input() CreateScanInput {
	return CreateScanInput{JobID: f.jobID, ResumeID: f.resume}
}

func TestScanWithOneCreditCompletes(t *testing.T) {
	ctx := context.Background()
	f := newScanFixture(t, 1)

	scan, err := f.svc.Admit(ctx, f.userID, "a@example.com", f.input())
	require.NoError(t, err)
	assert.Equal(t, models.ScanProcessing, scan.Status)
	assert.Equal(t, 0, f.db.remaining(f.userID))

	var streamed strings.Builder
	done, err := f.svc.Analyze(ctx, scan.ID, func(c string) { streamed.WriteString(c) })
	require.NoError(t, err)

	assert.Equal(t, models.ScanCompleted, done.Status)
	require.NotNil(t, done.MatchScore)
	assert.Equal(t, 74.0, *done.MatchScore)
	assert.NotNil(t, done.CompletedAt)
	assert.Equal(t, scanJSON, streamed.String())

	var stored map[string]any
	require.NoError(t, json.Unmarshal(done.Results, &stored))
	feedback := stored["categoryFeedback"].(map[string]any)
	for _, k := range []string{"searchability", "hardSkills", "softSkills", "recruiterTips", "formatting", "experience"} {
		assert.Contains(t, feedback, k)
	}
	// boundary scores survive verbatim
	scores := stored["categoryScores"].(map[string]any)
	assert.Equal(t, 0.0, scores["recruiterTips"])
	assert.Equal(t, 100.0, scores["formatting"])

	scans, usages := f.db.counts()
	assert.Equal(t, 1, scans)
	assert.Equal(t, 1, usages)
	u := f.db.usage(scan.ID)
	require.NotNil(t, u)
	assert.JSONEq(t, string(done.Results), string(u.ResponsePayload))
	assert.JSONEq(t, `{"jobId":"`+f.jobID+`","resumeId":"`+f.resume+`"}`, string(u.RequestPayload))

	reqs := f.ai.requests()
	require.Len(t, reqs, 1)
	assert.True(t, reqs[0].JSON)
	assert.InDelta(t, 0.2, reqs[0].Temperature, 1e-6)
	require.Len(t, reqs[0].Attachments, 1)
	assert.Equal(t, "application/pdf", reqs[0].Attachments[0].MIMEType)
	assert.Contains(t, reqs[0].Prompt, "Backend Engineer")

	assert.Equal(t, []string{"processing", "completed"}, f.bus.statuses())
}

func TestScanWithZeroCreditsIsRejected(t *testing.T) {
	f := newScanFixture(t, 0)

	_, err := f.svc.Admit(context.Background(), f.userID, "", f.input())
	require.Error(t, err)
	assert.True(t, utils.IsCode(err, utils.CodeNoCredits))
	assert.Equal(t, 403, utils.HTTPStatus(err))

	scans, usages := f.db.counts()
	assert.Zero(t, scans)
	assert.Zero(t, usages)
	assert.Empty(t, f.ai.requests())
	assert.Empty(t, f.bus.statuses())
}

func TestMalformedAIResponseKeepsCreditDebited(t *testing.T) {
	ctx := context.Background()
	f := newScanFixture(t, 1)
	f.ai.chunks = []string{"```json\n{\"matchScore\": 80,", "\n```"}

	scan, err := f.svc.Admit(ctx, f.userID, "", f.input())
	require.NoError(t, err)

	done, err := f.svc.Analyze(ctx, scan.ID, nil)
	require.NoError(t, err)
	assert.Equal(t, models.ScanError, done.Status)
	assert.NotEmpty(t, done.ErrorMessage)
	assert.Contains(t, done.ErrorMessage, "Invalid AI response")
	assert.Nil(t, done.MatchScore)

	assert.Equal(t, 0, f.db.remaining(f.userID))
	assert.Nil(t, f.db.usage(scan.ID).ResponsePayload)
}

func TestSchemaViolationIsRejectedNotMerged(t *testing.T) {
	ctx := context.Background()
	f := newScanFixture(t, 1)
	f.ai.chunks = []string{strings.Replace(scanJSON, `"matchScore": 74`, `"matchScore": 140`, 1)}

	scan, err := f.svc.Admit(ctx, f.userID, "", f.input())
	require.NoError(t, err)
	done, err := f.svc.Analyze(ctx, scan.ID, nil)
	require.NoError(t, err)

	assert.Equal(t, models.ScanError, done.Status)
	assert.Contains(t, done.ErrorMessage, "matchScore must be between 0 and 100")
	assert.Nil(t, done.Results)
}

func TestUpstreamErrorMarksScanError(t *testing.T) {
	ctx := context.Background()
	f := newScanFixture(t, 2)
	f.ai.chunks = nil
	f.ai.err = errors.New("upstream 503")

	scan, err := f.svc.Admit(ctx, f.userID, "", f.input())
	require.NoError(t, err)
	done, err := f.svc.Analyze(ctx, scan.ID, nil)
	require.NoError(t, err)

	assert.Equal(t, models.ScanError, done.Status)
	assert.Equal(t, "AI analysis failed: upstream 503", done.ErrorMessage)
	assert.Equal(t, 1, f.db.remaining(f.userID))
}

func TestAnalyzeTimesOutToError(t *testing.T) {
	ctx := context.Background()
	f := newScanFixture(t, 1)
	f.ai.block = true

	svc := f.svc.(*scanService)
	svc.AITimeout = 50 * time.Millisecond

	scan, err := f.svc.Admit(ctx, f.userID, "", f.input())
	require.NoError(t, err)
	done, err := f.svc.Analyze(ctx, scan.ID, nil)
	require.NoError(t, err)
	assert.Equal(t, models.ScanError, done.Status)
	assert.Contains(t, done.ErrorMessage, "deadline exceeded")
}

func TestDetachedCallerStillReachesTerminalStatus(t *testing.T) {
	f := newScanFixture(t, 1)
	f.ai.block = true
	f.svc.(*scanService).AITimeout = 50 * time.Millisecond

	scan, err := f.svc.Admit(context.Background(), f.userID, "", f.input())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	done, err := f.svc.Analyze(context.WithoutCancel(ctx), scan.ID, nil)
	require.NoError(t, err)
	assert.Equal(t, models.ScanError, done.Status)
}

func TestShutdownLeavesScanForRecovery(t *testing.T) {
	f := newScanFixture(t, 1)
	f.ai.block = true

	scan, err := f.svc.Admit(context.Background(), f.userID, "", f.input())
	require.NoError(t, err)
	require.NoError(t, f.svc.Schedule(context.Background(), scan))

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(50*time.Millisecond, cancel)
	err = f.svc.RunTask(ctx, f.queue.last())
	assert.ErrorIs(t, err, utils.ErrInterrupted)

	got := f.db.scans[scan.ID]
	assert.Equal(t, models.ScanProcessing, got.Status)
	assert.Empty(t, got.ErrorMessage)
	assert.Contains(t, f.db.usages, scan.ID, "credit stays debited for the retry")
	assert.NotContains(t, f.bus.statuses(), string(models.ScanError))

	// the re-dispatched task completes the same scan
	f.ai.mu.Lock()
	f.ai.block = false
	f.ai.mu.Unlock()
	require.NoError(t, f.svc.RunTask(context.Background(), f.queue.last()))
	assert.Equal(t, models.ScanCompleted, f.db.scans[scan.ID].Status)
}

func TestExpireAbandonedClosesOrphanedScans(t *testing.T) {
	ctx := context.Background()
	f := newScanFixture(t, 3)
	svc := f.svc.(*scanService)

	admitAt := func(at time.Time) *models.JobScan {
		svc.Now = func() time.Time { return at }
		scan, err := f.svc.Admit(ctx, f.userID, "", f.input())
		require.NoError(t, err)
		return scan
	}
	old := time.Now().UTC().Add(-time.Hour)
	orphan := admitAt(old)
	queued := admitAt(old)
	fresh := admitAt(time.Now().UTC())
	f.db.liveTasks[queued.ID] = true
	svc.Now = utcNow

	n, err := f.svc.ExpireAbandoned(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	assert.Equal(t, models.ScanError, f.db.scans[orphan.ID].Status)
	assert.Contains(t, f.db.scans[orphan.ID].ErrorMessage, "analysis did not finish")
	assert.Equal(t, models.ScanProcessing, f.db.scans[queued.ID].Status)
	assert.Equal(t, models.ScanProcessing, f.db.scans[fresh.ID].Status)

	n, err = f.svc.ExpireAbandoned(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestAnalyzeAfterResumeDeleted(t *testing.T) {
	ctx := context.Background()
	f := newScanFixture(t, 1)

	scan, err := f.svc.Admit(ctx, f.userID, "", f.input())
	require.NoError(t, err)
	require.NoError(t, fakeResumes{f.db}.Delete(ctx, f.userID, f.resume))

	done, err := f.svc.Analyze(ctx, scan.ID, nil)
	require.NoError(t, err)
	assert.Equal(t, models.ScanError, done.Status)
	assert.Nil(t, done.ResumeID)
	assert.Contains(t, f.db.usages, scan.ID)
}

func TestReconcileIsMonotonic(t *testing.T) {
	ctx := context.Background()
	f := newScanFixture(t, 1)

	scan, err := f.svc.Admit(ctx, f.userID, "", f.input())
	require.NoError(t, err)

	first, err := f.svc.Reconcile(ctx, scan.ID, scanJSON, nil)
	require.NoError(t, err)
	require.Equal(t, models.ScanCompleted, first.Status)

	second, err := f.svc.Reconcile(ctx, scan.ID, "", errors.New("late failure"))
	require.NoError(t, err)
	assert.Equal(t, models.ScanCompleted, second.Status)
	assert.Empty(t, second.ErrorMessage)

	again, err := f.svc.Analyze(ctx, scan.ID, nil)
	require.NoError(t, err)
	assert.Equal(t, models.ScanCompleted, again.Status)
	assert.Empty(t, f.ai.requests())
}

func TestAdmitValidatesOwnership(t *testing.T) {
	ctx := context.Background()
	f := newScanFixture(t, 3)

	cases := []struct {
		name string
		in   CreateScanInput
		code utils.Code
	}{
		{"missing ids", CreateScanInput{}, utils.CodeInvalidArgument},
		{"bad uuid", CreateScanInput{JobID: "1", ResumeID: "2"}, utils.CodeInvalidArgument},
		{"foreign job", CreateScanInput{JobID: uuid.NewString(), ResumeID: f.resume}, utils.CodeNotFound},
		{"foreign resume", CreateScanInput{JobID: f.jobID, ResumeID: uuid.NewString()}, utils.CodeNotFound},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.svc.Admit(ctx, f.userID, "", tc.in)
			require.Error(t, err)
			assert.True(t, utils.IsCode(err, tc.code), err.Error())
		})
	}

	// another user cannot scan with this user's records
	_, err := f.svc.Admit(ctx, uuid.NewString(), "", f.input())
	assert.True(t, utils.IsCode(err, utils.CodeNotFound))

	assert.Equal(t, 3, f.db.remaining(f.userID))
	scans, _ := f.db.counts()
	assert.Zero(t, scans)
}

func TestAdmitWithoutAIIsConfigError(t *testing.T) {
	f := newScanFixture(t, 1)
	svc := f.svc.(*scanService)
	svc.AI = nil

	_, err := f.svc.Admit(context.Background(), f.userID, "", f.input())
	require.Error(t, err)
	assert.True(t, utils.IsCode(err, utils.CodeConfig))
	assert.Equal(t, 500, utils.HTTPStatus(err))
	assert.Equal(t, 1, f.db.remaining(f.userID))
}

func TestConcurrentAdmissionNeverOverdraws(t *testing.T) {
	f := newScanFixture(t, 3)

	var wg sync.WaitGroup
	var mu sync.Mutex
	admitted, rejected := 0, 0
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.svc.Admit(context.Background(), f.userID, "", f.input())
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				admitted++
			} else if utils.IsCode(err, utils.CodeNoCredits) {
				rejected++
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 3, admitted)
	assert.Equal(t, 7, rejected)
	assert.Equal(t, 0, f.db.remaining(f.userID))
}

func TestScheduleAndRunTask(t *testing.T) {
	ctx := context.Background()
	f := newScanFixture(t, 1)

	scan, err := f.svc.Admit(ctx, f.userID, "", f.input())
	require.NoError(t, err)
	require.NoError(t, f.svc.Schedule(ctx, scan))

	task := f.queue.last()
	require.NotNil(t, task)
	assert.Equal(t, models.TaskScanAnalysis, task.Kind)
	assert.Equal(t, scan.ID, task.RefID)

	require.NoError(t, f.svc.RunTask(ctx, task))
	got, err := f.svc.Get(ctx, f.userID, scan.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ScanCompleted, got.Status)
}

func TestScheduleFailureClosesScan(t *testing.T) {
	ctx := context.Background()
	f := newScanFixture(t, 1)
	f.queue.err = errors.New("db down")

	scan, err := f.svc.Admit(ctx, f.userID, "", f.input())
	require.NoError(t, err)

	err = f.svc.Schedule(ctx, scan)
	assert.True(t, utils.IsCode(err, utils.CodeUnavailable))

	got, err := f.svc.Get(ctx, f.userID, scan.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ScanError, got.Status)
}

func TestRunTaskReportsScanError(t *testing.T) {
	ctx := context.Background()
	f := newScanFixture(t, 1)
	f.ai.chunks = []string{"not json at all"}

	scan, err := f.svc.Admit(ctx, f.userID, "", f.input())
	require.NoError(t, err)

	err = f.svc.RunTask(ctx, &models.Task{RefID: scan.ID})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Invalid AI response")
}

func TestGetUsesCacheForTerminalScansOnly(t *testing.T) {
	ctx := context.Background()
	f := newScanFixture(t, 1)

	scan, err := f.svc.Admit(ctx, f.userID, "", f.input())
	require.NoError(t, err)

	_, err = f.svc.Get(ctx, f.userID, scan.ID)
	require.NoError(t, err)
	assert.Empty(t, f.cache.m)

	_, err = f.svc.Analyze(ctx, scan.ID, nil)
	require.NoError(t, err)
	assert.Contains(t, f.cache.m, cache.ScanKey(scan.ID))

	got, err := f.svc.Get(ctx, f.userID, scan.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ScanCompleted, got.Status)

	// cached entries are still owner-scoped
	_, err = f.svc.Get(ctx, uuid.NewString(), scan.ID)
	assert.True(t, utils.IsCode(err, utils.CodeNotFound))
}

func TestAnalyzeFallsBackToExtractedText(t *testing.T) {
	ctx := context.Background()
	f := newScanFixture(t, 1)

	require.NoError(t, f.store.Delete(ctx, "resumes/"+f.userID+"/cv.pdf"))
	f.db.resumes[f.resume].ExtractedText = "Jane Doe. Go developer."

	scan, err := f.svc.Admit(ctx, f.userID, "", f.input())
	require.NoError(t, err)
	done, err := f.svc.Analyze(ctx, scan.ID, nil)
	require.NoError(t, err)
	assert.Equal(t, models.ScanCompleted, done.Status)

	req := f.ai.requests()[0]
	assert.Empty(t, req.Attachments)
	assert.Contains(t, req.Prompt, "RESUME:\nJane Doe. Go developer.")
}

func TestAnalyzeWithoutResumeBytesOrText(t *testing.T) {
	ctx := context.Background()
	f := newScanFixture(t, 1)
	require.NoError(t, f.store.Delete(ctx, "resumes/"+f.userID+"/cv.pdf"))

	scan, err := f.svc.Admit(ctx, f.userID, "", f.input())
	require.NoError(t, err)
	done, err := f.svc.Analyze(ctx, scan.ID, nil)
	require.NoError(t, err)
	assert.Equal(t, models.ScanError, done.Status)
	assert.Contains(t, done.ErrorMessage, "Failed to download resume file")
	assert.Empty(t, f.ai.requests())
}

func TestListScansByJob(t *testing.T) {
	ctx := context.Background()
	f := newScanFixture(t, 2)

	_, err := f.svc.Admit(ctx, f.userID, "", f.input())
	require.NoError(t, err)

	rows, err := f.svc.List(ctx, f.userID, f.jobID)
	require.NoError(t, err)
	assert.Len(t, rows, 1)

	rows, err = f.svc.List(ctx, f.userID, uuid.NewString())
	require.NoError(t, err)
	assert.Empty(t, rows)
	assert.NotNil(t, rows)

	_, err = f.svc.List(ctx, f.userID, "nope")
	assert.True(t, utils.IsCode(err, utils.CodeInvalidArgument))
}
