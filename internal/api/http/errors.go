package http

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/deskpilot/backend/internal/desktop"
	"github.com/deskpilot/backend/internal/domain/autonomy"
	"github.com/deskpilot/backend/internal/domain/safety"
)

// respondError maps domain errors onto HTTP statuses. Vetoes are policy
// outcomes, not server faults, so they come back 403 with the reason.
func respondError(c *gin.Context, err error) {
	var veto *safety.VetoError
	if errors.As(err, &veto) {
		c.JSON(http.StatusForbidden, gin.H{
			"error":  "action vetoed",
			"reason": string(veto.Reason),
		})
		return
	}

	if errors.Is(err, autonomy.ErrInvalidState) {
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	}

	var dev *desktop.DeviceError
	if errors.As(err, &dev) {
		c.JSON(http.StatusBadGateway, gin.H{
			"error": "device failure",
			"op":    dev.Op,
		})
		return
	}

	var capErr *desktop.CaptureError
	if errors.As(err, &capErr) {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "capture failure"})
		return
	}

	c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
}

func badRequest(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
}

func badRequestMsg(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, gin.H{"error": msg})
}
