package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/jobhound/backend/config"
	"github.com/jobhound/backend/internal/services"
	"github.com/jobhound/backend/internal/utils"
)

type ScanHandler struct {
	svc  services.ScanService
	mode string
}

func NewScanHandler(svc services.ScanService, defaultMode string) *ScanHandler {
	if defaultMode != config.ScanModeAsync {
		defaultMode = config.ScanModeStream
	}
	return &ScanHandler{svc: svc, mode: defaultMode}
}

func (h *ScanHandler) Create(c *gin.Context) {
	const op = "ScanHandler.Create"

	userID, ok := requireUserID(c)
	if !ok {
		return
	}

	var req services.CreateScanInput
	if !bindJSON(c, op, &req) {
		return
	}

	scan, err := h.svc.Admit(c.Request.Context(), userID, userEmail(c), req)
	if err != nil {
		writeError(c, err)
		return
	}

	mode := h.mode
	if m := c.Query("mode"); m == config.ScanModeAsync || m == config.ScanModeStream {
		mode = m
	}

	if mode == config.ScanModeAsync {
		if err := h.svc.Schedule(c.Request.Context(), scan); err != nil {
			// the scan row exists and is already reconciled; let the client find it
			writeError(c, utils.WithDetails(err, gin.H{"scan_id": scan.ID}))
			return
		}
		c.JSON(http.StatusAccepted, gin.H{
			"success": true,
			"scan_id": scan.ID,
			"status":  scan.Status,
		})
		return
	}

	c.Header("Content-Type", "text/plain; charset=utf-8")
	c.Header("Cache-Control", "no-cache")
	c.Header("x-scan-id", scan.ID)
	c.Status(http.StatusOK)
	c.Writer.WriteHeaderNow()
	c.Writer.Flush()

	gone := false
	onChunk := func(chunk string) {
		if gone {
			return
		}
		if _, err := c.Writer.WriteString(chunk); err != nil {
			gone = true
			return
		}
		c.Writer.Flush()
	}

	// the client may disconnect mid-stream; the scan must still finish
	if _, err := h.svc.Analyze(context.WithoutCancel(c.Request.Context()), scan.ID, onChunk); err != nil {
		_ = c.Error(err)
	}
}

func (h *ScanHandler) Get(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}

	scan, err := h.svc.Get(c.Request.Context(), userID, c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, scan)
}

func (h *ScanHandler) List(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}

	rows, err := h.svc.List(c.Request.Context(), userID, c.Query("job_id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"scans": rows})
}
