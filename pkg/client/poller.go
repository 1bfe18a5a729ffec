package client

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrPollTimeout is matched by the error WaitForScan returns when the scan
// is still processing after PollPolicy.MaxDuration.
var ErrPollTimeout = errors.New("jobhound: scan still processing")

// PollTimeoutError carries the last scan seen before giving up.
type PollTimeoutError struct {
	Last    *Scan
	Elapsed time.Duration
}

func (e *PollTimeoutError) Error() string {
	return fmt.Sprintf("%v after %s", ErrPollTimeout, e.Elapsed.Round(time.Millisecond))
}

func (e *PollTimeoutError) Unwrap() error { return ErrPollTimeout }

type PollPolicy struct {
	Initial     time.Duration
	Multiplier  float64
	MaxInterval time.Duration
	MaxDuration time.Duration
	// OnPoll, when set, sees every scan read including the final one.
	OnPoll func(*Scan)
}

// DefaultPollPolicy: 2s, growing ×1.5 up to 10s, for at most 3 minutes.
func DefaultPollPolicy() PollPolicy {
	return PollPolicy{
		Initial:     2 * time.Second,
		Multiplier:  1.5,
		MaxInterval: 10 * time.Second,
		MaxDuration: 3 * time.Minute,
	}
}

func (p PollPolicy) normalized() PollPolicy {
	d := DefaultPollPolicy()
	if p.Initial <= 0 {
		p.Initial = d.Initial
	}
	if p.Multiplier < 1 {
		p.Multiplier = d.Multiplier
	}
	if p.MaxInterval <= 0 {
		p.MaxInterval = d.MaxInterval
	}
	if p.MaxInterval < p.Initial {
		p.MaxInterval = p.Initial
	}
	if p.MaxDuration <= 0 {
		p.MaxDuration = d.MaxDuration
	}
	return p
}

// next grows the interval by the multiplier, capped at MaxInterval.
func (p PollPolicy) next(cur time.Duration) time.Duration {
	n := time.Duration(float64(cur) * p.Multiplier)
	if n > p.MaxInterval {
		return p.MaxInterval
	}
	return n
}

// WaitForScan polls until the scan is terminal, ctx is done, or the policy's
// MaxDuration runs out. Network failures and 5xx/429 answers are retried on
// the next tick; any other API error ends the wait.
func (c *Client) WaitForScan(ctx context.Context, id string, policy PollPolicy) (*Scan, error) {
	p := policy.normalized()
	start := time.Now()
	deadline := start.Add(p.MaxDuration)

	var last *Scan
	interval := p.Initial
	for {
		s, err := c.GetScan(ctx, id)
		switch {
		case err == nil:
			last = s
			if p.OnPoll != nil {
				p.OnPoll(s)
			}
			if s.Terminal() {
				return s, nil
			}
		case ctx.Err() != nil:
			return last, ctx.Err()
		default:
			var apiErr *APIError
			if errors.As(err, &apiErr) && !apiErr.Temporary() {
				return last, err
			}
		}

		wait := interval
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return last, &PollTimeoutError{Last: last, Elapsed: time.Since(start)}
		}
		if wait > remaining {
			wait = remaining
		}

		t := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			t.Stop()
			return last, ctx.Err()
		case <-t.C:
		}
		interval = p.next(interval)
	}
}
