package llm

import (
	"context"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/jobhound/backend/internal/models"
)

// AuditSink stores one record per model call.
type AuditSink interface {
	Record(ctx context.Context, call *models.AICall) error
}

// Audited wraps a Provider and records every finished call. Sink failures
// are logged and never affect the caller.
type Audited struct {
	Provider
	sink   AuditSink
	logger *logrus.Logger
	ttl    time.Duration
}

func NewAudited(p Provider, sink AuditSink, logger *logrus.Logger, ttl time.Duration) Provider {
	if sink == nil {
		return p
	}
	if logger == nil {
		logger = logrus.New()
	}
	if ttl <= 0 {
		ttl = 30 * 24 * time.Hour
	}
	return &Audited{Provider: p, sink: sink, logger: logger, ttl: ttl}
}

func (a *Audited) StreamAnswer(ctx context.Context, req Request) (<-chan string, <-chan error) {
	start := time.Now()
	inner, innerErrs := a.Provider.StreamAnswer(ctx, req)

	out := make(chan string, 32)
	errs := make(chan error, 1)

	go func() {
		defer close(out)
		defer close(errs)

		var full strings.Builder
		for chunk := range inner {
			full.WriteString(chunk)
			out <- chunk
		}
		err := <-innerErrs

		now := time.Now().UTC()
		call := &models.AICall{
			Kind:        req.Kind,
			RefID:       req.RefID,
			UserID:      req.UserID,
			Model:       a.Provider.Model(),
			PromptChars: len(req.Prompt),
			Response:    full.String(),
			DurationMS:  time.Since(start).Milliseconds(),
			CreatedAt:   now,
			ExpiresAt:   now.Add(a.ttl),
		}
		if err != nil {
			call.Error = err.Error()
		}

		// detached: the audit write must outlive a cancelled request
		rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		if rerr := a.sink.Record(rctx, call); rerr != nil {
			a.logger.WithError(rerr).WithField("kind", req.Kind).Warn("ai audit record failed")
		}
		cancel()

		if err != nil {
			errs <- err
		}
	}()

	return out, errs
}
