package payments

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/client"
	"github.com/stripe/stripe-go/v76/webhook"
)

type StripeGateway struct {
	api           *client.API
	priceID       string
	webhookSecret string
	siteURL       string
}

func NewStripeGateway(secretKey, priceID, webhookSecret, siteURL string) *StripeGateway {
	api := &client.API{}
	api.Init(secretKey, nil)
	return &StripeGateway{api: api, priceID: priceID, webhookSecret: webhookSecret, siteURL: siteURL}
}

func (g *StripeGateway) CreateCheckout(ctx context.Context, req CheckoutRequest) (*CheckoutSession, error) {
	params := &stripe.CheckoutSessionParams{
		Mode: stripe.String(string(stripe.CheckoutSessionModePayment)),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{Price: stripe.String(g.priceID), Quantity: stripe.Int64(1)},
		},
		ClientReferenceID: stripe.String(req.UserID),
		SuccessURL:        stripe.String(g.siteURL + "/credits?checkout=success"),
		CancelURL:         stripe.String(g.siteURL + "/credits?checkout=cancelled"),
	}
	if req.Email != "" {
		params.CustomerEmail = stripe.String(req.Email)
	}
	params.Context = ctx
	params.AddMetadata("credits", strconv.Itoa(req.Credits))
	params.AddMetadata("user_id", req.UserID)

	sess, err := g.api.CheckoutSessions.New(params)
	if err != nil {
		return nil, err
	}
	return &CheckoutSession{ID: sess.ID, URL: sess.URL}, nil
}

func (g *StripeGateway) ParseWebhook(payload []byte, signature string) (*CompletedCheckout, bool, error) {
	return parseCheckoutEvent(payload, signature, g.webhookSecret)
}

func parseCheckoutEvent(payload []byte, signature, secret string) (*CompletedCheckout, bool, error) {
	ev, err := webhook.ConstructEventWithOptions(payload, signature, secret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		return nil, false, fmt.Errorf("%w: %v", ErrBadSignature, err)
	}
	if string(ev.Type) != "checkout.session.completed" {
		return nil, false, nil
	}

	var sess stripe.CheckoutSession
	if err := json.Unmarshal(ev.Data.Raw, &sess); err != nil {
		return nil, false, fmt.Errorf("decode checkout session: %w", err)
	}
	if sess.PaymentStatus != stripe.CheckoutSessionPaymentStatusPaid {
		return nil, false, nil
	}

	userID := sess.ClientReferenceID
	if userID == "" {
		userID = sess.Metadata["user_id"]
	}
	credits, _ := strconv.Atoi(sess.Metadata["credits"])
	if userID == "" || credits <= 0 {
		return nil, false, fmt.Errorf("checkout session %s lacks user or credit metadata", sess.ID)
	}
	return &CompletedCheckout{SessionID: sess.ID, UserID: userID, Credits: credits}, true, nil
}
