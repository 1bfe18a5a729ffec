package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/jobhound/backend/internal/models"
	mongorepo "github.com/jobhound/backend/internal/repositories/mongo"
	"github.com/jobhound/backend/internal/utils"
)

// AICallHandler exposes the model audit log to admins.
type AICallHandler struct {
	repo mongorepo.AICallRepository
}

func NewAICallHandler(repo mongorepo.AICallRepository) *AICallHandler {
	return &AICallHandler{repo: repo}
}

func (h *AICallHandler) List(c *gin.Context) {
	const op = "AICallHandler.List"

	if h.repo == nil {
		writeError(c, utils.ConfigError(op, "AI audit log"))
		return
	}
	refID := strings.TrimSpace(c.Query("ref_id"))
	if refID == "" {
		writeError(c, utils.E(utils.CodeInvalidArgument, op, "ref_id is required", nil))
		return
	}

	rows, err := h.repo.ListByRef(c.Request.Context(), refID, int64(queryInt(c, "limit", 20)))
	if err != nil {
		writeError(c, utils.E(utils.CodeUnavailable, op, "failed to read audit log", err))
		return
	}
	if rows == nil {
		rows = []models.AICall{}
	}
	c.JSON(http.StatusOK, gin.H{"calls": rows})
}
