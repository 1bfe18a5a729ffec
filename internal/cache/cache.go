package cache

import (
	"context"
	"time"
)

type Cache interface {
	GetJSON(ctx context.Context, key string, dst any) (hit bool, err error)
	SetJSON(ctx context.Context, key string, val any, ttl time.Duration) error
	Del(ctx context.Context, keys ...string) error
}

// TerminalScanTTL bounds how long a finished scan is served from cache.
const TerminalScanTTL = 24 * time.Hour

func ScanKey(scanID string) string { return "jobhound:scan:" + scanID }

// Noop never hits; used when Redis is not wired (tests, CLI).
type Noop struct{}

func (Noop) GetJSON(context.Context, string, any) (bool, error)        { return false, nil }
func (Noop) SetJSON(context.Context, string, any, time.Duration) error { return nil }
func (Noop) Del(context.Context, ...string) error                      { return nil }
