package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/jobhound/backend/internal/services"
)

type JobHandler struct {
	svc services.JobService
}

func NewJobHandler(svc services.JobService) *JobHandler {
	return &JobHandler{svc: svc}
}

func (h *JobHandler) Create(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}

	var req services.JobInput
	if !bindJSON(c, "JobHandler.Create", &req) {
		return
	}

	j, err := h.svc.Create(c.Request.Context(), userID, userEmail(c), req)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, j)
}

func (h *JobHandler) List(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}

	rows, err := h.svc.List(c.Request.Context(), userID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"jobs": rows})
}

func (h *JobHandler) Get(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}

	j, err := h.svc.Get(c.Request.Context(), userID, c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, j)
}

func (h *JobHandler) Update(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}

	var req services.JobInput
	if !bindJSON(c, "JobHandler.Update", &req) {
		return
	}

	j, err := h.svc.Update(c.Request.Context(), userID, c.Param("id"), req)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, j)
}

type processListingRequest struct {
	Text string `json:"text"`
}

func (h *JobHandler) ProcessListing(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}

	var req processListingRequest
	if !bindJSON(c, "JobHandler.ProcessListing", &req) {
		return
	}

	res, err := h.svc.ProcessListing(c.Request.Context(), userID, req.Text)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "data": res})
}
