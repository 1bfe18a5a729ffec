package workers

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/jobhound/backend/internal/models"
	pgrepo "github.com/jobhound/backend/internal/repositories/postgres"
	"github.com/jobhound/backend/internal/utils"
)

// Handler runs one claimed task. A returned error marks the task failed;
// failed tasks are never retried. An error wrapping utils.ErrInterrupted
// hands the task back to the queue instead.
type Handler func(ctx context.Context, t *models.Task) error

// Sweep is extra housekeeping run with every recovery pass. It returns how
// many rows it touched.
type Sweep func(ctx context.Context) (int, error)

type TaskWorkerPool struct {
	Redis      redis.UniversalClient
	Tasks      pgrepo.TaskRepository
	Queue      *Queue
	Handlers   map[models.TaskKind]Handler
	Sweeps     map[string]Sweep
	NumWorkers int

	Logger *logrus.Logger

	Stream         string
	Group          string
	ConsumerPrefix string
	// Lease is both the per-task timeout and the recovery interval.
	Lease time.Duration

	wg sync.WaitGroup
}

func (p *TaskWorkerPool) Start(ctx context.Context) error {
	if p.Redis == nil || p.Tasks == nil || len(p.Handlers) == 0 {
		return errors.New("TaskWorkerPool missing dependency: Redis/Tasks/Handlers must be set")
	}
	if p.Stream == "" {
		p.Stream = DefaultStream
	}
	if p.Group == "" {
		p.Group = DefaultGroup
	}
	if p.ConsumerPrefix == "" {
		p.ConsumerPrefix = "w"
	}
	if p.NumWorkers <= 0 {
		p.NumWorkers = 4
	}
	if p.Lease <= 0 {
		p.Lease = 5 * time.Minute
	}
	if p.Logger == nil {
		p.Logger = logrus.New()
	}

	_ = p.Redis.XGroupCreateMkStream(ctx, p.Stream, p.Group, "0").Err() // ignore BUSYGROUP

	for i := 0; i < p.NumWorkers; i++ {
		consumer := p.ConsumerPrefix + "-" + strconv.Itoa(i+1)
		p.wg.Add(1)
		go func() {
			defer p.wg.Done()
			p.runConsumer(ctx, consumer)
		}()
	}

	if p.Queue != nil || len(p.Sweeps) > 0 {
		p.wg.Add(1)
		go func() {
			defer p.wg.Done()
			p.runRecovery(ctx)
		}()
	}
	return nil
}

// Wait blocks until every consumer has exited (after ctx cancellation).
func (p *TaskWorkerPool) Wait() { p.wg.Wait() }

func (p *TaskWorkerPool) runConsumer(ctx context.Context, consumer string) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		res, err := p.Redis.XReadGroup(ctx, &redis.XReadGroupArgs{
			Group:    p.Group,
			Consumer: consumer,
			Streams:  []string{p.Stream, ">"},
			Count:    10,
			Block:    5 * time.Second,
		}).Result()

		if err != nil {
			if errors.Is(err, redis.Nil) || ctx.Err() != nil {
				continue
			}
			p.Logger.WithError(err).WithField("consumer", consumer).Warn("xreadgroup failed")
			time.Sleep(500 * time.Millisecond)
			continue
		}

		for _, stream := range res {
			for _, msg := range stream.Messages {
				p.handleMsg(ctx, msg)
				_ = p.Redis.XAck(ctx, p.Stream, p.Group, msg.ID).Err()
			}
		}
	}
}

func (p *TaskWorkerPool) runRecovery(ctx context.Context) {
	sweep := func() {
		if p.Queue != nil {
			n, err := p.Queue.Recover(ctx, p.Lease)
			switch {
			case err != nil && ctx.Err() == nil:
				p.Logger.WithError(err).Warn("task recovery sweep failed")
			case n > 0:
				p.Logger.WithField("count", n).Info("re-announced stale tasks")
			}
		}
		for name, fn := range p.Sweeps {
			n, err := fn(ctx)
			switch {
			case err != nil && ctx.Err() == nil:
				p.Logger.WithError(err).WithField("sweep", name).Warn("sweep failed")
			case n > 0:
				p.Logger.WithFields(logrus.Fields{"sweep": name, "count": n}).Info("sweep applied")
			}
		}
	}

	sweep()
	t := time.NewTicker(p.Lease)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			sweep()
		}
	}
}

func (p *TaskWorkerPool) handleMsg(ctx context.Context, msg redis.XMessage) {
	taskID, _ := msg.Values["task_id"].(string)
	if taskID == "" {
		return
	}

	log := p.Logger.WithFields(logrus.Fields{
		"redis_id": msg.ID,
		"task_id":  taskID,
	})

	task, err := p.Tasks.Claim(ctx, taskID, time.Now().UTC())
	if err != nil {
		if errors.Is(err, utils.ErrConflict) {
			log.Debug("task already claimed or finished")
			return
		}
		log.WithError(err).Warn("task claim failed")
		return
	}

	log = log.WithFields(logrus.Fields{
		"kind":    task.Kind,
		"ref_id":  task.RefID,
		"user_id": task.UserID,
	})

	start := time.Now()
	runErr := p.run(ctx, task)

	// bookkeeping must land even if the pool is shutting down
	fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()

	if runErr != nil && (errors.Is(runErr, utils.ErrInterrupted) || (ctx.Err() != nil && errors.Is(runErr, context.Canceled))) {
		log.WithError(runErr).Info("task interrupted; returning it to the queue")
		p.requeue(fctx, task, log)
		return
	}

	status, lastErr := models.TaskDone, ""
	if runErr != nil {
		status, lastErr = models.TaskFailed, runErr.Error()
		log.WithError(runErr).Error("task failed")
	} else {
		log.WithField("duration_ms", time.Since(start).Milliseconds()).Info("task done")
	}

	if err := p.Tasks.Finish(fctx, task.ID, status, lastErr, time.Now().UTC()); err != nil {
		log.WithError(err).Warn("task finish write failed")
	}
}

// requeue puts an interrupted task back to pending and announces it again.
// A failed announcement is covered by the recovery sweep.
func (p *TaskWorkerPool) requeue(ctx context.Context, task *models.Task, log *logrus.Entry) {
	ok, err := p.Tasks.Release(ctx, task.ID, time.Now().UTC().Add(time.Second))
	if err != nil {
		log.WithError(err).Warn("task release failed; left for recovery")
		return
	}
	if !ok || p.Queue == nil {
		return
	}
	if err := p.Queue.announce(ctx, task); err != nil {
		log.WithError(err).Warn("task re-announce failed; left for recovery")
	}
}

func (p *TaskWorkerPool) run(ctx context.Context, task *models.Task) (err error) {
	h, ok := p.Handlers[task.Kind]
	if !ok {
		return fmt.Errorf("no handler for task kind %q", task.Kind)
	}

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("task panicked: %v", r)
		}
	}()

	tctx, cancel := context.WithTimeout(ctx, p.Lease)
	defer cancel()
	return h(tctx, task)
}
