package handlers

import (
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/jobhound/backend/internal/models"
	"github.com/jobhound/backend/internal/services"
	"github.com/jobhound/backend/internal/utils"
)

const maxWebhookBytes = 64 << 10

type CreditHandler struct {
	svc services.CreditService
}

func NewCreditHandler(svc services.CreditService) *CreditHandler {
	return &CreditHandler{svc: svc}
}

func (h *CreditHandler) Balance(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}

	b, err := h.svc.Balance(c.Request.Context(), userID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, b)
}

func (h *CreditHandler) Checkout(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}

	sess, err := h.svc.Checkout(c.Request.Context(), userID, userEmail(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, sess)
}

// Webhook is unauthenticated; the payment provider's signature is the auth.
func (h *CreditHandler) Webhook(c *gin.Context) {
	const op = "CreditHandler.Webhook"

	payload, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBytes))
	if err != nil {
		writeError(c, utils.E(utils.CodeInvalidArgument, op, "failed to read body", err))
		return
	}

	if err := h.svc.HandleWebhook(c.Request.Context(), payload, c.GetHeader("Stripe-Signature")); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"received": true})
}

func (h *CreditHandler) AdminGrant(c *gin.Context) {
	var req services.GrantInput
	if !bindJSON(c, "CreditHandler.AdminGrant", &req) {
		return
	}

	created, err := h.svc.Grant(c.Request.Context(), req, models.CreditSourceGrant)
	if err != nil {
		writeError(c, err)
		return
	}

	status := http.StatusCreated
	if !created {
		status = http.StatusOK
	}
	c.JSON(status, gin.H{"success": true, "created": created})
}
