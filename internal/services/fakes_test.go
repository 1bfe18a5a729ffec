package services

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	"github.com/jobhound/backend/internal/models"
	"github.com/jobhound/backend/internal/providers/llm"
	"github.com/jobhound/backend/internal/utils"
)

// memDB backs every fake repository so cross-table effects are visible.
type memDB struct {
	mu        sync.Mutex
	users     map[string]*models.User
	resumes   map[string]*models.Resume
	jobs      map[string]*models.Job
	scans     map[string]*models.JobScan
	purchases map[string]*models.CreditPurchase
	usages    map[string]*models.CreditUsage // by scan id
	liveTasks map[string]bool                // ref ids with a pending or running task
}

func newMemDB() *memDB {
	return &memDB{
		users:     map[string]*models.User{},
		resumes:   map[string]*models.Resume{},
		jobs:      map[string]*models.Job{},
		scans:     map[string]*models.JobScan{},
		purchases: map[string]*models.CreditPurchase{},
		usages:    map[string]*models.CreditUsage{},
		liveTasks: map[string]bool{},
	}
}

type fakeUsers struct{ db *memDB }

func (f fakeUsers) GetOrCreate(_ context.Context, id, email string) (*models.User, error) {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	u, ok := f.db.users[id]
	if !ok {
		u = &models.User{ID: id, Email: email, CreatedAt: time.Now().UTC()}
		f.db.users[id] = u
	}
	cp := *u
	return &cp, nil
}

func (f fakeUsers) GetByID(_ context.Context, id string) (*models.User, error) {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	u, ok := f.db.users[id]
	if !ok {
		return nil, utils.ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (f fakeUsers) Update(_ context.Context, id string, fields map[string]any) error {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	u, ok := f.db.users[id]
	if !ok {
		return utils.ErrNotFound
	}
	if v, ok := fields["full_name"]; ok {
		u.FullName = v.(string)
	}
	if v, ok := fields["job_search_goal"]; ok {
		u.JobSearchGoal = v.(int)
	}
	return nil
}

type fakeResumes struct{ db *memDB }

func (f fakeResumes) Create(_ context.Context, r *models.Resume, makeDefault bool) error {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	u, ok := f.db.users[r.UserID]
	if !ok {
		return utils.ErrNotFound
	}
	if !makeDefault {
		makeDefault = u.DefaultResumeID == nil
	}
	r.IsDefault = makeDefault
	cp := *r
	f.db.resumes[r.ID] = &cp
	if makeDefault {
		f.markDefaultLocked(r.UserID, r.ID)
	}
	return nil
}

func (f fakeResumes) markDefaultLocked(userID, id string) {
	for _, x := range f.db.resumes {
		if x.UserID == userID {
			x.IsDefault = x.ID == id
		}
	}
	rid := id
	f.db.users[userID].DefaultResumeID = &rid
}

func (f fakeResumes) GetByID(_ context.Context, userID, id string) (*models.Resume, error) {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	r, ok := f.db.resumes[id]
	if !ok || r.UserID != userID {
		return nil, utils.ErrNotFound
	}
	cp := *r
	return &cp, nil
}

func (f fakeResumes) Find(_ context.Context, id string) (*models.Resume, error) {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	r, ok := f.db.resumes[id]
	if !ok {
		return nil, utils.ErrNotFound
	}
	cp := *r
	return &cp, nil
}

func (f fakeResumes) ListByUser(_ context.Context, userID string) ([]models.Resume, error) {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	var out []models.Resume
	for _, r := range f.db.resumes {
		if r.UserID == userID {
			out = append(out, *r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (f fakeResumes) SetDefault(_ context.Context, userID, id string) error {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	r, ok := f.db.resumes[id]
	if !ok || r.UserID != userID {
		return utils.ErrNotFound
	}
	f.markDefaultLocked(userID, id)
	return nil
}

func (f fakeResumes) Delete(_ context.Context, userID, id string) error {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	r, ok := f.db.resumes[id]
	if !ok || r.UserID != userID {
		return utils.ErrNotFound
	}
	delete(f.db.resumes, id)
	if u := f.db.users[userID]; u != nil && u.DefaultResumeID != nil && *u.DefaultResumeID == id {
		u.DefaultResumeID = nil
	}
	for _, sc := range f.db.scans {
		if sc.ResumeID != nil && *sc.ResumeID == id {
			sc.ResumeID = nil
		}
	}
	return nil
}

func (f fakeResumes) ApplyEnrichment(_ context.Context, id string, e models.ResumeEnrichment) error {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	r, ok := f.db.resumes[id]
	if !ok {
		return utils.ErrNotFound
	}
	if e.ExtractedText != nil {
		r.ExtractedText = *e.ExtractedText
	}
	if e.ThumbnailPath != nil {
		r.ThumbnailPath = *e.ThumbnailPath
	}
	if e.ThumbnailURL != nil {
		r.ThumbnailURL = *e.ThumbnailURL
	}
	if e.ThumbnailError != nil {
		r.ThumbnailError = *e.ThumbnailError
	}
	return nil
}

type fakeJobs struct{ db *memDB }

func (f fakeJobs) Create(_ context.Context, j *models.Job) error {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	cp := *j
	f.db.jobs[j.ID] = &cp
	return nil
}

func (f fakeJobs) GetByID(_ context.Context, userID, id string) (*models.Job, error) {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	j, ok := f.db.jobs[id]
	if !ok || j.UserID != userID {
		return nil, utils.ErrNotFound
	}
	cp := *j
	return &cp, nil
}

func (f fakeJobs) ListByUser(_ context.Context, userID string, _ int) ([]models.Job, error) {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	var out []models.Job
	for _, j := range f.db.jobs {
		if j.UserID == userID {
			out = append(out, *j)
		}
	}
	return out, nil
}

func (f fakeJobs) Update(_ context.Context, j *models.Job) error {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	old, ok := f.db.jobs[j.ID]
	if !ok || old.UserID != j.UserID {
		return utils.ErrNotFound
	}
	cp := *j
	f.db.jobs[j.ID] = &cp
	return nil
}

type fakeScans struct{ db *memDB }

func (f fakeScans) GetByID(_ context.Context, userID, id string) (*models.JobScan, error) {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	s, ok := f.db.scans[id]
	if !ok || s.UserID != userID {
		return nil, utils.ErrNotFound
	}
	cp := *s
	return &cp, nil
}

func (f fakeScans) Find(_ context.Context, id string) (*models.JobScan, error) {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	s, ok := f.db.scans[id]
	if !ok {
		return nil, utils.ErrNotFound
	}
	cp := *s
	return &cp, nil
}

func (f fakeScans) List(_ context.Context, userID, jobID string, _ int) ([]models.JobScan, error) {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	var out []models.JobScan
	for _, s := range f.db.scans {
		if s.UserID == userID && (jobID == "" || s.JobID == jobID) {
			out = append(out, *s)
		}
	}
	return out, nil
}

func (f fakeScans) Finish(_ context.Context, id string, out models.ScanOutcome) (bool, error) {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	s, ok := f.db.scans[id]
	if !ok || s.Status != models.ScanProcessing {
		return false, nil
	}
	s.Status = out.Status
	s.MatchScore = out.MatchScore
	s.ErrorMessage = out.ErrorMessage
	if out.Results != nil {
		s.Results = out.Results
	}
	at := out.At
	s.UpdatedAt = at
	s.CompletedAt = &at
	return true, nil
}

func (f fakeScans) Abandoned(_ context.Context, before time.Time, _ int) ([]string, error) {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	var ids []string
	for id, s := range f.db.scans {
		if s.Status == models.ScanProcessing && s.CreatedAt.Before(before) && !f.db.liveTasks[id] {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids, nil
}

type fakeCredits struct{ db *memDB }

func (f fakeCredits) usableLocked(userID string, now time.Time) []*models.CreditPurchase {
	var lots []*models.CreditPurchase
	for _, p := range f.db.purchases {
		if p.UserID == userID && p.Usable(now) {
			lots = append(lots, p)
		}
	}
	sort.Slice(lots, func(i, j int) bool {
		a, b := lots[i].ExpiresAt, lots[j].ExpiresAt
		switch {
		case a == nil && b == nil:
			return lots[i].CreatedAt.Before(lots[j].CreatedAt)
		case a == nil:
			return false
		case b == nil:
			return true
		default:
			return a.Before(*b)
		}
	})
	return lots
}

func (f fakeCredits) Balance(_ context.Context, userID string, now time.Time) (*models.CreditBalance, error) {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	b := &models.CreditBalance{Lots: []models.CreditPurchase{}}
	for _, p := range f.usableLocked(userID, now) {
		b.Available += p.RemainingCredits
		b.Lots = append(b.Lots, *p)
	}
	return b, nil
}

func (f fakeCredits) AdmitScan(_ context.Context, scan *models.JobScan, request datatypes.JSON, now time.Time) (*models.CreditUsage, error) {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	lots := f.usableLocked(scan.UserID, now)
	if len(lots) == 0 {
		return nil, utils.ErrNoCredits
	}
	lots[0].RemainingCredits--

	cp := *scan
	f.db.scans[scan.ID] = &cp
	u := &models.CreditUsage{
		ID:             uuid.NewString(),
		UserID:         scan.UserID,
		PurchaseID:     lots[0].ID,
		ScanID:         scan.ID,
		Amount:         1,
		RequestPayload: request,
		CreatedAt:      now,
	}
	f.db.usages[scan.ID] = u
	return u, nil
}

func (f fakeCredits) Grant(_ context.Context, lot *models.CreditPurchase) (bool, error) {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	if lot.ExternalRef != nil {
		for _, p := range f.db.purchases {
			if p.ExternalRef != nil && *p.ExternalRef == *lot.ExternalRef {
				return false, nil
			}
		}
	}
	cp := *lot
	f.db.purchases[lot.ID] = &cp
	return true, nil
}

func (f fakeCredits) PatchUsageResponse(_ context.Context, scanID string, payload datatypes.JSON) error {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	if u, ok := f.db.usages[scanID]; ok {
		u.ResponsePayload = payload
	}
	return nil
}

// helpers for assertions

func (db *memDB) remaining(userID string) int {
	db.mu.Lock()
	defer db.mu.Unlock()
	n := 0
	for _, p := range db.purchases {
		if p.UserID == userID {
			n += p.RemainingCredits
		}
	}
	return n
}

func (db *memDB) counts() (scans, usages int) {
	db.mu.Lock()
	defer db.mu.Unlock()
	return len(db.scans), len(db.usages)
}

func (db *memDB) usage(scanID string) *models.CreditUsage {
	db.mu.Lock()
	defer db.mu.Unlock()
	u := db.usages[scanID]
	if u == nil {
		return nil
	}
	cp := *u
	return &cp
}

func (db *memDB) resume(id string) models.Resume {
	db.mu.Lock()
	defer db.mu.Unlock()
	return *db.resumes[id]
}

// fakeAI replays canned output.
type fakeAI struct {
	mu     sync.Mutex
	chunks []string
	err    error
	block  bool
	reqs   []llm.Request
}

func (f *fakeAI) StreamAnswer(ctx context.Context, req llm.Request) (<-chan string, <-chan error) {
	f.mu.Lock()
	f.reqs = append(f.reqs, req)
	chunks, err, block := f.chunks, f.err, f.block
	f.mu.Unlock()

	out := make(chan string)
	errs := make(chan error, 1)
	go func() {
		defer close(out)
		defer close(errs)
		if block {
			<-ctx.Done()
			errs <- ctx.Err()
			return
		}
		for _, c := range chunks {
			out <- c
		}
		if err != nil {
			errs <- err
		}
	}()
	return out, errs
}

func (f *fakeAI) Model() string { return "fake-gemini" }
func (f *fakeAI) Close() error  { return nil }

func (f *fakeAI) requests() []llm.Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]llm.Request(nil), f.reqs...)
}

type fakeQueue struct {
	mu    sync.Mutex
	tasks []*models.Task
	err   error
}

func (q *fakeQueue) Enqueue(_ context.Context, kind models.TaskKind, refID, userID string, payload any) (*models.Task, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.err != nil {
		return nil, q.err
	}
	t := &models.Task{ID: uuid.NewString(), Kind: kind, RefID: refID, UserID: userID, Status: models.TaskPending}
	if p, ok := payload.(models.EnrichmentPayload); ok && p.FileBase64 != "" {
		t.Payload = datatypes.JSON(`{"file_base64":"` + p.FileBase64 + `"}`)
	}
	q.tasks = append(q.tasks, t)
	return t, nil
}

func (q *fakeQueue) last() *models.Task {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.tasks) == 0 {
		return nil
	}
	return q.tasks[len(q.tasks)-1]
}
