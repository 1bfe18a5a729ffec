package services

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/jobhound/backend/internal/models"
	"github.com/jobhound/backend/internal/payments"
	pgrepo "github.com/jobhound/backend/internal/repositories/postgres"
	"github.com/jobhound/backend/internal/utils"
)

type GrantInput struct {
	UserID    string     `json:"user_id"`
	Amount    int        `json:"amount"`
	ExpiresAt *time.Time `json:"expires_at"`
	Reference string     `json:"reference"`
}

type CreditService interface {
	Balance(ctx context.Context, userID string) (*models.CreditBalance, error)
	// Grant adds a lot. A repeated non-empty Reference is a no-op.
	Grant(ctx context.Context, in GrantInput, source string) (created bool, err error)
	Checkout(ctx context.Context, userID, email string) (*payments.CheckoutSession, error)
	HandleWebhook(ctx context.Context, payload []byte, signature string) error
}

type creditService struct {
	users    pgrepo.UserRepository
	credits  pgrepo.CreditRepository
	gateway  payments.Gateway
	perOrder int
	logger   *logrus.Logger
	now      func() time.Time
}

func NewCreditService(users pgrepo.UserRepository, credits pgrepo.CreditRepository, gateway payments.Gateway, creditsPerPurchase int, logger *logrus.Logger) CreditService {
	if logger == nil {
		logger = logrus.New()
	}
	if creditsPerPurchase <= 0 {
		creditsPerPurchase = 10
	}
	return &creditService{
		users:    users,
		credits:  credits,
		gateway:  gateway,
		perOrder: creditsPerPurchase,
		logger:   logger,
		now:      utcNow,
	}
}

func (s *creditService) Balance(ctx context.Context, userID string) (*models.CreditBalance, error) {
	const op = "CreditService.Balance"

	b, err := s.credits.Balance(ctx, userID, s.now())
	if err != nil {
		return nil, utils.E(utils.CodeInternal, op, "failed to load credits", err)
	}
	return b, nil
}

func (s *creditService) Grant(ctx context.Context, in GrantInput, source string) (bool, error) {
	const op = "CreditService.Grant"

	if uuid.Validate(in.UserID) != nil {
		return false, utils.E(utils.CodeInvalidArgument, op, "user_id must be a UUID", nil)
	}
	if in.Amount <= 0 {
		return false, utils.E(utils.CodeInvalidArgument, op, "amount must be positive", nil)
	}
	now := s.now()
	if in.ExpiresAt != nil && !in.ExpiresAt.After(now) {
		return false, utils.E(utils.CodeInvalidArgument, op, "expires_at must be in the future", nil)
	}

	if _, err := s.users.GetOrCreate(ctx, in.UserID, ""); err != nil {
		return false, utils.E(utils.CodeInternal, op, "failed to load user", err)
	}

	lot := &models.CreditPurchase{
		ID:               uuid.NewString(),
		UserID:           in.UserID,
		Amount:           in.Amount,
		RemainingCredits: in.Amount,
		Source:           source,
		ExpiresAt:        in.ExpiresAt,
		CreatedAt:        now,
	}
	if in.Reference != "" {
		ref := in.Reference
		lot.ExternalRef = &ref
	}

	created, err := s.credits.Grant(ctx, lot)
	if err != nil {
		return false, utils.E(utils.CodeInternal, op, "failed to grant credits", err)
	}
	s.logger.WithFields(logrus.Fields{
		"user_id": in.UserID,
		"amount":  in.Amount,
		"source":  source,
		"created": created,
	}).Info("credit grant")
	return created, nil
}

func (s *creditService) Checkout(ctx context.Context, userID, email string) (*payments.CheckoutSession, error) {
	const op = "CreditService.Checkout"

	if s.gateway == nil {
		return nil, utils.ConfigError(op, "payment provider")
	}
	sess, err := s.gateway.CreateCheckout(ctx, payments.CheckoutRequest{
		UserID:  userID,
		Email:   email,
		Credits: s.perOrder,
	})
	if err != nil {
		return nil, utils.E(utils.CodeUnavailable, op, "failed to create checkout session", err)
	}
	return sess, nil
}

func (s *creditService) HandleWebhook(ctx context.Context, payload []byte, signature string) error {
	const op = "CreditService.HandleWebhook"

	if s.gateway == nil {
		return utils.ConfigError(op, "payment provider")
	}
	done, ok, err := s.gateway.ParseWebhook(payload, signature)
	if err != nil {
		if errors.Is(err, payments.ErrBadSignature) {
			return utils.E(utils.CodeInvalidArgument, op, "invalid webhook signature", err)
		}
		return utils.E(utils.CodeInvalidArgument, op, "invalid webhook payload", err)
	}
	if !ok {
		return nil
	}

	_, err = s.Grant(ctx, GrantInput{
		UserID:    done.UserID,
		Amount:    done.Credits,
		Reference: done.SessionID,
	}, models.CreditSourceStripe)
	return err
}
