package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/jobhound/backend/internal/events"
	"github.com/jobhound/backend/internal/models"
	"github.com/jobhound/backend/internal/services"
	"github.com/jobhound/backend/internal/utils"
)

const (
	wsWriteWait  = 10 * time.Second
	wsPongWait   = 60 * time.Second
	wsPingPeriod = 50 * time.Second
)

// WSHandler streams scan status events to a browser until the scan is
// terminal or the client leaves.
type WSHandler struct {
	scans    services.ScanService
	bus      events.Subscriber
	logger   *logrus.Logger
	upgrader websocket.Upgrader
}

func NewWSHandler(scans services.ScanService, bus events.Subscriber, allowedOrigins []string, logger *logrus.Logger) *WSHandler {
	if logger == nil {
		logger = logrus.New()
	}
	allow := map[string]bool{}
	for _, o := range allowedOrigins {
		allow[o] = true
	}
	return &WSHandler{
		scans:  scans,
		bus:    bus,
		logger: logger,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				return origin == "" || allow["*"] || allow[origin]
			},
		},
	}
}

type wsConn struct {
	c  *websocket.Conn
	mu sync.Mutex
}

func (w *wsConn) write(kind int, b []byte) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	_ = w.c.SetWriteDeadline(time.Now().Add(wsWriteWait))
	return w.c.WriteMessage(kind, b)
}

func snapshot(scan *models.JobScan) []byte {
	b, _ := json.Marshal(events.ScanEvent{
		Type:       "status",
		ScanID:     scan.ID,
		Status:     string(scan.Status),
		MatchScore: scan.MatchScore,
		Message:    scan.ErrorMessage,
		At:         scan.UpdatedAt.UTC().Format(time.RFC3339),
	})
	return b
}

func (h *WSHandler) ScanStatus(c *gin.Context) {
	const op = "WSHandler.ScanStatus"

	userID, ok := requireUserID(c)
	if !ok {
		return
	}
	if h.bus == nil {
		writeError(c, utils.ConfigError(op, "event bus"))
		return
	}

	scanID := c.Param("id")
	if _, err := h.scans.Get(c.Request.Context(), userID, scanID); err != nil {
		writeError(c, err)
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// upgrade already wrote response in most cases
		return
	}
	defer conn.Close()

	wc := &wsConn{c: conn}
	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()

	msgs, release, err := h.bus.SubscribeScan(ctx, scanID)
	if err != nil {
		h.logger.WithError(err).WithField("scan_id", scanID).Warn("scan subscribe failed")
		_ = wc.write(websocket.TextMessage, []byte(`{"type":"error","code":"UNAVAILABLE","message":"status stream unavailable"}`))
		return
	}
	defer release()

	// read after subscribing so a transition in between is not lost
	scan, err := h.scans.Get(ctx, userID, scanID)
	if err != nil {
		return
	}
	if err := wc.write(websocket.TextMessage, snapshot(scan)); err != nil || scan.Status.Terminal() {
		_ = wc.write(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "done"))
		return
	}

	// reader: only control frames are expected; a read error means the client left
	go func() {
		defer cancel()
		_ = conn.SetReadDeadline(time.Now().Add(wsPongWait))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(wsPongWait))
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ping := time.NewTicker(wsPingPeriod)
	defer ping.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ping.C:
			if err := wc.write(websocket.PingMessage, nil); err != nil {
				return
			}
		case payload, ok := <-msgs:
			if !ok {
				return
			}
			if err := wc.write(websocket.TextMessage, payload); err != nil {
				return
			}
			var ev events.ScanEvent
			if json.Unmarshal(payload, &ev) == nil && models.ScanStatus(ev.Status).Terminal() {
				_ = wc.write(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "done"))
				return
			}
		}
	}
}
