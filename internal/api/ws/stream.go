// Package ws streams live state to observers: screenshots on demand or
// on a timer, plus a feed of activity records as they are appended.
// Observers only watch; every mutation still goes through the HTTP
// control surface.
package ws

import (
	"context"
	"encoding/base64"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/deskpilot/backend/internal/desktop"
	"github.com/deskpilot/backend/internal/domain/activity"
	"github.com/deskpilot/backend/internal/infrastructure/logging"
	"github.com/deskpilot/backend/internal/infrastructure/monitoring"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all origins in dev
	},
}

const (
	minLiveInterval     = 250 * time.Millisecond
	defaultLiveInterval = 2 * time.Second
)

// Handler manages WebSocket observer connections.
type Handler struct {
	capture desktop.Capture
	log     *activity.Log
	logger  *logging.Logger
	metrics *monitoring.Metrics
}

// NewHandler creates a new WebSocket handler.
func NewHandler(capture desktop.Capture, log *activity.Log, logger *logging.Logger, metrics *monitoring.Metrics) *Handler {
	return &Handler{
		capture: capture,
		log:     log,
		logger:  logger,
		metrics: metrics,
	}
}

type inbound struct {
	Type       string `json:"type"`
	Enabled    *bool  `json:"enabled,omitempty"`
	IntervalMS int    `json:"interval_ms,omitempty"`
}

// conn wraps a websocket connection with a write lock so the live
// ticker, the activity feed, and reply writes never interleave frames.
type conn struct {
	mu sync.Mutex
	ws *websocket.Conn
}

func (c *conn) send(data any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ws.WriteJSON(data)
}

// HandleConnection handles WebSocket upgrade and messages.
func (h *Handler) HandleConnection(g *gin.Context) {
	raw, err := upgrader.Upgrade(g.Writer, g.Request, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	c := &conn{ws: raw}
	defer raw.Close()

	if h.metrics != nil {
		h.metrics.WSConnections.Inc()
		defer h.metrics.WSConnections.Dec()
	}

	ctx := g.Request.Context()

	c.send(gin.H{
		"type":    "system",
		"message": "connected",
	})

	// Live screenshot ticker, off until requested.
	var (
		liveMu   sync.Mutex
		liveStop chan struct{}
	)
	stopLive := func() {
		liveMu.Lock()
		if liveStop != nil {
			close(liveStop)
			liveStop = nil
		}
		liveMu.Unlock()
	}
	defer stopLive()

	// Activity feed runs for the life of the connection.
	subKey, records := h.log.Subscribe()
	defer h.log.Unsubscribe(subKey)
	go func() {
		for r := range records {
			if err := c.send(gin.H{"type": "activity", "record": r}); err != nil {
				return
			}
		}
	}()

	for {
		var msg inbound
		if err := raw.ReadJSON(&msg); err != nil {
			return
		}

		switch msg.Type {
		case "screenshot":
			h.sendScreenshot(ctx, c)

		case "live":
			enabled := msg.Enabled == nil || *msg.Enabled
			stopLive()
			if !enabled {
				c.send(gin.H{"type": "live", "enabled": false})
				continue
			}
			interval := defaultLiveInterval
			if msg.IntervalMS > 0 {
				interval = time.Duration(msg.IntervalMS) * time.Millisecond
			}
			if interval < minLiveInterval {
				interval = minLiveInterval
			}
			stop := make(chan struct{})
			liveMu.Lock()
			liveStop = stop
			liveMu.Unlock()
			go h.runLive(ctx, c, interval, stop)
			c.send(gin.H{"type": "live", "enabled": true, "interval_ms": interval.Milliseconds()})

		case "ping":
			c.send(gin.H{"type": "pong"})

		default:
			c.send(gin.H{"type": "error", "message": "unknown message type"})
		}
	}
}

func (h *Handler) runLive(ctx context.Context, c *conn, interval time.Duration, stop chan struct{}) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			if !h.sendScreenshot(ctx, c) {
				return
			}
		}
	}
}

// sendScreenshot captures and ships one frame. Returns false when the
// connection is gone.
func (h *Handler) sendScreenshot(ctx context.Context, c *conn) bool {
	image, err := h.capture.Capture(ctx)
	if err != nil {
		return c.send(gin.H{"type": "error", "message": "capture failure"}) == nil
	}
	return c.send(gin.H{
		"type":      "screenshot",
		"image":     base64.StdEncoding.EncodeToString(image),
		"timestamp": time.Now().Unix(),
	}) == nil
}
