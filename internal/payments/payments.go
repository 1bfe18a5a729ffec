package payments

import (
	"context"
	"errors"
)

var ErrBadSignature = errors.New("payments: webhook signature verification failed")

type CheckoutRequest struct {
	UserID  string
	Email   string
	Credits int
}

type CheckoutSession struct {
	ID  string `json:"id"`
	URL string `json:"url"`
}

// CompletedCheckout is a paid checkout that should become a credit lot.
type CompletedCheckout struct {
	SessionID string
	UserID    string
	Credits   int
}

type Gateway interface {
	CreateCheckout(ctx context.Context, req CheckoutRequest) (*CheckoutSession, error)
	// ParseWebhook verifies the payload. ok is false for events that do not
	// grant credits.
	ParseWebhook(payload []byte, signature string) (c *CompletedCheckout, ok bool, err error)
}
