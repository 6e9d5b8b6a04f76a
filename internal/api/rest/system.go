package rest

import (
	"net/http"
	"time"

	"github.com/KevinKickass/EcoShareCore/internal/types"
	"github.com/gin-gonic/gin"
)

// GET /health
func (s *Server) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "ok",
		"timestamp": time.Now().Unix(),
	})
}

// GET /ready reports 503 until the system runs with reachable storage.
func (s *Server) readinessCheck(c *gin.Context) {
	status := s.lm.GetCurrentStatus()
	if status.State != "RUNNING" || !status.StorageOK {
		c.JSON(http.StatusServiceUnavailable, types.NewErrorResponse("SYSTEM_503", "Not ready", status))
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ready"})
}

// GET /api/v1/system/status
func (s *Server) getSystemStatus(c *gin.Context) {
	c.JSON(http.StatusOK, s.lm.GetCurrentStatus())
}
