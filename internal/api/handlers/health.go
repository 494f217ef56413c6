package handlers

import (
	"net/http"
	"sessionkeeper/internal/api/middleware"

	"github.com/gin-gonic/gin"
)

// HealthHandler handles health check requests
type HealthHandler struct {
	sessions *middleware.SessionManager
}

// NewHealthHandler creates a new health handler
func NewHealthHandler(sessions *middleware.SessionManager) *HealthHandler {
	return &HealthHandler{sessions: sessions}
}

// GetHealth returns the health status of the service
// GET /health
func (h *HealthHandler) GetHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":   "UP",
		"service":  "sessionkeeper-authstub",
		"sessions": h.sessions.Count(),
	})
}
