package workers

import (
	"context"
	"sync"
	"time"

	"github.com/jobhound/backend/internal/models"
	"github.com/jobhound/backend/internal/utils"
)

type memTasks struct {
	mu    sync.Mutex
	tasks map[string]*models.Task
}

func newMemTasks() *memTasks { return &memTasks{tasks: map[string]*models.Task{}} }

func (m *memTasks) Create(_ context.Context, t *models.Task) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *t
	m.tasks[t.ID] = &cp
	return nil
}

func (m *memTasks) Claim(_ context.Context, id string, now time.Time) (*models.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tasks[id]
	if !ok {
		return nil, utils.ErrNotFound
	}
	if t.Status != models.TaskPending {
		return nil, utils.ErrConflict
	}
	t.Status = models.TaskRunning
	t.StartedAt = &now
	t.Attempts++
	cp := *t
	return &cp, nil
}

func (m *memTasks) Finish(_ context.Context, id string, status models.TaskStatus, lastErr string, now time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tasks[id]
	if !ok || t.Status != models.TaskRunning {
		return nil
	}
	t.Status = status
	t.LastError = lastErr
	t.FinishedAt = &now
	return nil
}

func (m *memTasks) Stale(_ context.Context, pendingBefore, runningBefore time.Time, _ int) ([]models.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Task
	for _, t := range m.tasks {
		switch {
		case t.Status == models.TaskPending && t.CreatedAt.Before(pendingBefore):
			out = append(out, *t)
		case t.Status == models.TaskRunning && t.StartedAt != nil && t.StartedAt.Before(runningBefore):
			out = append(out, *t)
		}
	}
	return out, nil
}

func (m *memTasks) Release(_ context.Context, id string, runningBefore time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tasks[id]
	if !ok || t.Status != models.TaskRunning || t.StartedAt == nil || !t.StartedAt.Before(runningBefore) {
		return false, nil
	}
	t.Status = models.TaskPending
	return true, nil
}

func (m *memTasks) get(id string) models.Task {
	m.mu.Lock()
	defer m.mu.Unlock()
	return *m.tasks[id]
}
