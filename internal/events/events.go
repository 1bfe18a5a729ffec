// Package events carries scan status changes over Redis pub/sub so that
// WebSocket clients can follow a scan without polling.
package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
)

type ScanEvent struct {
	Type       string   `json:"type"` // always "status"
	ScanID     string   `json:"scan_id"`
	Status     string   `json:"status"`
	MatchScore *float64 `json:"match_score,omitempty"`
	Message    string   `json:"message,omitempty"`
	At         string   `json:"at"`
}

func ScanChannel(scanID string) string { return "scan:" + scanID + ":status" }

type Publisher interface {
	PublishScan(ctx context.Context, ev ScanEvent) error
}

type Subscriber interface {
	// SubscribeScan returns raw JSON payloads for one scan. The returned func
	// releases the subscription.
	SubscribeScan(ctx context.Context, scanID string) (<-chan []byte, func(), error)
}

type RedisBus struct {
	rdb redis.UniversalClient
}

func NewRedisBus(rdb redis.UniversalClient) *RedisBus {
	return &RedisBus{rdb: rdb}
}

func (b *RedisBus) PublishScan(ctx context.Context, ev ScanEvent) error {
	if ev.Type == "" {
		ev.Type = "status"
	}
	if ev.At == "" {
		ev.At = time.Now().UTC().Format(time.RFC3339)
	}
	payload, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	return b.rdb.Publish(ctx, ScanChannel(ev.ScanID), payload).Err()
}

func (b *RedisBus) SubscribeScan(ctx context.Context, scanID string) (<-chan []byte, func(), error) {
	sub := b.rdb.Subscribe(ctx, ScanChannel(scanID))
	// wait for the subscription confirmation so no event is missed after return
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return nil, nil, err
	}

	out := make(chan []byte, 16)
	go func() {
		defer close(out)
		ch := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				select {
				case out <- []byte(msg.Payload):
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return out, func() { _ = sub.Close() }, nil
}

// Nop drops every event.
type Nop struct{}

func (Nop) PublishScan(context.Context, ScanEvent) error { return nil }
