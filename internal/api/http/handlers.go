// Package http exposes the desktop control surface. Every mutating route
// funnels through the same executor as the autonomy loop, so API calls
// and autonomous actions contend for one device mutex and one safety
// governor.
package http

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/deskpilot/backend/internal/desktop"
	"github.com/deskpilot/backend/internal/domain/action"
	"github.com/deskpilot/backend/internal/domain/activity"
	"github.com/deskpilot/backend/internal/domain/autonomy"
	"github.com/deskpilot/backend/internal/domain/executor"
	"github.com/deskpilot/backend/internal/domain/safety"
	"github.com/deskpilot/backend/internal/infrastructure/logging"
)

// Exec performs one governed action.
type Exec interface {
	Execute(ctx context.Context, a action.Action) (*executor.Result, error)
}

// LoopControl is the autonomy surface the handlers drive.
type LoopControl interface {
	Start(task autonomy.Task) error
	RequestStop() error
	Interrupt()
	State() autonomy.State
	Steps() int
	Task() autonomy.Task
}

// Handlers contains all HTTP handlers.
type Handlers struct {
	exec     Exec
	capture  desktop.Capture
	loop     LoopControl
	governor *safety.Governor
	log      *activity.Log
	logger   *logging.Logger

	defaultStepBudget int
}

// NewHandlers creates a new handler set.
func NewHandlers(exec Exec, capture desktop.Capture, loop LoopControl, governor *safety.Governor, log *activity.Log, logger *logging.Logger, defaultStepBudget int) *Handlers {
	if defaultStepBudget <= 0 {
		defaultStepBudget = 10
	}
	return &Handlers{
		exec:              exec,
		capture:           capture,
		loop:              loop,
		governor:          governor,
		log:               log,
		logger:            logger,
		defaultStepBudget: defaultStepBudget,
	}
}

// Root handles the service banner.
func (h *Handlers) Root(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "online",
		"service": "deskpilot",
		"version": "0.3.0",
	})
}

// Health handles detailed health check.
func (h *Handlers) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":         "healthy",
		"autonomy":       h.loop.State().String(),
		"emergency_stop": h.governor.EmergencyStopped(),
		"activity":       gin.H{"records": h.log.Len()},
	})
}

// Status reports the full control-plane state in one call.
func (h *Handlers) Status(c *gin.Context) {
	state := h.loop.State()
	resp := gin.H{
		"autonomy":       state.String(),
		"steps":          h.loop.Steps(),
		"emergency_stop": h.governor.EmergencyStopped(),
		"rate": gin.H{
			"used": h.governor.Pending(),
			"max":  h.governor.Policy().MaxActions,
		},
	}
	if state != autonomy.StateIdle {
		resp["task"] = h.loop.Task()
	}
	c.JSON(http.StatusOK, resp)
}

type moveRequest struct {
	X *int `json:"x" binding:"required"`
	Y *int `json:"y" binding:"required"`
}

// Move moves the pointer to absolute screen coordinates.
func (h *Handlers) Move(c *gin.Context) {
	var req moveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	h.perform(c, action.Move(*req.X, *req.Y))
}

type clickRequest struct {
	Button int  `json:"button"`
	X      *int `json:"x"`
	Y      *int `json:"y"`
}

// Click presses a mouse button, optionally moving to a target first.
func (h *Handlers) Click(c *gin.Context) {
	var req clickRequest
	// An empty body is a plain left click.
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		badRequest(c, err)
		return
	}
	button := req.Button
	if button == 0 {
		button = 1
	}
	if button < 1 || button > 5 {
		badRequestMsg(c, "button must be between 1 and 5")
		return
	}
	if (req.X == nil) != (req.Y == nil) {
		badRequestMsg(c, "x and y must be provided together")
		return
	}
	if req.X != nil {
		h.perform(c, action.ClickAt(button, *req.X, *req.Y))
		return
	}
	h.perform(c, action.Click(button))
}

type typeRequest struct {
	Text string `json:"text" binding:"required"`
}

// Type sends literal text to the focused window.
func (h *Handlers) Type(c *gin.Context) {
	var req typeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	h.perform(c, action.TypeText(req.Text))
}

type keyRequest struct {
	Key string `json:"key" binding:"required"`
}

// Key sends a key chord such as Return or ctrl+t.
func (h *Handlers) Key(c *gin.Context) {
	var req keyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	h.perform(c, action.KeyChord(req.Key))
}

// Windows lists the windows the window manager reports.
func (h *Handlers) Windows(c *gin.Context) {
	result, err := h.exec.Execute(c.Request.Context(), action.ListWindows().From(action.SourceAPI))
	if err != nil {
		respondError(c, err)
		return
	}
	windows := result.Windows
	if windows == nil {
		windows = []desktop.Window{}
	}
	c.JSON(http.StatusOK, gin.H{
		"windows": windows,
		"count":   len(windows),
	})
}

type activateRequest struct {
	WindowID string `json:"window_id" binding:"required"`
}

// Activate raises and focuses a window by ID.
func (h *Handlers) Activate(c *gin.Context) {
	var req activateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	h.perform(c, action.ActivateWindow(req.WindowID))
}

// Screenshot captures the screen and returns the PNG bytes. Capture is
// read-only so it goes straight to the capture backend, but the attempt
// still lands in the activity log like everything else.
func (h *Handlers) Screenshot(c *gin.Context) {
	a := action.Screenshot().From(action.SourceAPI)
	image, err := h.capture.Capture(c.Request.Context())
	if err != nil {
		h.log.Append(activity.NewActionRecord(a, activity.OutcomeFailed, err.Error()))
		respondError(c, err)
		return
	}
	r := activity.NewActionRecord(a, activity.OutcomeExecuted, "")
	r.ScreenshotSize = len(image)
	h.log.Append(r)
	c.Data(http.StatusOK, "image/png", image)
}

// Activity returns recent records, oldest first.
func (h *Handlers) Activity(c *gin.Context) {
	limit := 100
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			badRequestMsg(c, "limit must be a non-negative integer")
			return
		}
		limit = n
	}
	records := h.log.Recent(limit)
	c.JSON(http.StatusOK, gin.H{
		"records": records,
		"count":   len(records),
		"total":   h.log.Len(),
	})
}

type startRequest struct {
	Goal            string `json:"goal" binding:"required"`
	StepBudget      int    `json:"step_budget"`
	DeadlineSeconds int    `json:"deadline_seconds"`
}

// StartAutonomy launches the autonomy loop with a goal.
func (h *Handlers) StartAutonomy(c *gin.Context) {
	var req startRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	if req.StepBudget < 0 || req.DeadlineSeconds < 0 {
		badRequestMsg(c, "step_budget and deadline_seconds must be non-negative")
		return
	}

	task := autonomy.Task{
		Goal:       req.Goal,
		StepBudget: req.StepBudget,
	}
	if task.StepBudget == 0 {
		task.StepBudget = h.defaultStepBudget
	}
	if req.DeadlineSeconds > 0 {
		task.Deadline = time.Now().Add(time.Duration(req.DeadlineSeconds) * time.Second)
	}

	if err := h.loop.Start(task); err != nil {
		respondError(c, err)
		return
	}
	h.log.Append(activity.NewControlRecord("autonomy_started", action.SourceAPI))
	c.JSON(http.StatusOK, gin.H{
		"autonomy": h.loop.State().String(),
		"task":     h.loop.Task(),
	})
}

// StopAutonomy requests a cooperative stop.
func (h *Handlers) StopAutonomy(c *gin.Context) {
	if err := h.loop.RequestStop(); err != nil {
		respondError(c, err)
		return
	}
	h.log.Append(activity.NewControlRecord("autonomy_stop_requested", action.SourceAPI))
	c.JSON(http.StatusOK, gin.H{
		"autonomy": h.loop.State().String(),
	})
}

// EmergencyStop latches the governor's stop flag. Idempotent and always
// succeeds; the loop is interrupted so it notices without waiting out a
// decision call.
func (h *Handlers) EmergencyStop(c *gin.Context) {
	h.governor.TriggerEmergencyStop()
	h.loop.Interrupt()
	h.log.Append(activity.NewControlRecord("emergency_stop", action.SourceAPI))
	h.logger.Warn("emergency stop triggered")
	c.JSON(http.StatusOK, gin.H{
		"emergency_stop": true,
		"autonomy":       h.loop.State().String(),
	})
}

// ResetEmergencyStop clears the latched flag.
func (h *Handlers) ResetEmergencyStop(c *gin.Context) {
	h.governor.ResetEmergencyStop()
	h.log.Append(activity.NewControlRecord("emergency_stop_reset", action.SourceAPI))
	h.logger.Info("emergency stop reset")
	c.JSON(http.StatusOK, gin.H{
		"emergency_stop": false,
	})
}

// perform runs one API-sourced action through the executor and writes
// the uniform success or error response.
func (h *Handlers) perform(c *gin.Context, a action.Action) {
	a = a.From(action.SourceAPI)
	if _, err := h.exec.Execute(c.Request.Context(), a); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"action":  a.String(),
	})
}
