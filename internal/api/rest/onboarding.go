package rest

import (
	"net/http"

	"github.com/KevinKickass/EcoShareCore/internal/onboarding"
	"github.com/KevinKickass/EcoShareCore/internal/types"
	"github.com/gin-gonic/gin"
)

func (s *Server) session(c *gin.Context) (*onboarding.Controller, bool) {
	ctrl, err := s.lm.Onboarding().Get(c.Param("session"))
	if err != nil {
		s.respondError(c, "ONBOARDING", err)
		return nil, false
	}
	return ctrl, true
}

// GET /api/v1/onboarding
func (s *Server) listSessions(c *gin.Context) {
	sessions := s.lm.Onboarding().List()
	c.JSON(http.StatusOK, gin.H{
		"sessions": sessions,
		"count":    len(sessions),
	})
}

// POST /api/v1/onboarding
func (s *Server) startSession(c *gin.Context) {
	ctrl := s.lm.Onboarding().Create()
	c.JSON(http.StatusCreated, ctrl.Status())
}

// GET /api/v1/onboarding/:session
func (s *Server) getSession(c *gin.Context) {
	ctrl, ok := s.session(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, ctrl.Status())
}

// DELETE /api/v1/onboarding/:session
func (s *Server) closeSession(c *gin.Context) {
	if err := s.lm.Onboarding().Close(c.Param("session")); err != nil {
		s.respondError(c, "ONBOARDING", err)
		return
	}
	c.Status(http.StatusNoContent)
}

// POST /api/v1/onboarding/:session/start
func (s *Server) restartSession(c *gin.Context) {
	ctrl, ok := s.session(c)
	if !ok {
		return
	}
	if err := ctrl.Start(); err != nil {
		s.respondError(c, "ONBOARDING", err)
		return
	}
	c.JSON(http.StatusOK, ctrl.Status())
}

// POST /api/v1/onboarding/:session/basic-info
func (s *Server) submitBasicInfo(c *gin.Context) {
	ctrl, ok := s.session(c)
	if !ok {
		return
	}

	var req types.DeviceDraft
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "ONBOARDING", "Invalid request body", err)
		return
	}

	if err := ctrl.SubmitBasicInfo(c.Request.Context(), req); err != nil {
		s.respondError(c, "ONBOARDING", err)
		return
	}
	c.JSON(http.StatusOK, ctrl.Status())
}

// POST /api/v1/onboarding/:session/location
func (s *Server) selectLocation(c *gin.Context) {
	ctrl, ok := s.session(c)
	if !ok {
		return
	}

	var req struct {
		SpotID string `json:"spot_id"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "ONBOARDING", "Invalid request body", err)
		return
	}

	if err := ctrl.SelectLocation(c.Request.Context(), req.SpotID); err != nil {
		s.respondError(c, "ONBOARDING", err)
		return
	}
	c.JSON(http.StatusOK, ctrl.Status())
}

// POST /api/v1/onboarding/:session/scan
func (s *Server) scanDevice(c *gin.Context) {
	ctrl, ok := s.session(c)
	if !ok {
		return
	}

	id, err := ctrl.Scan(c.Request.Context())
	if err != nil {
		s.respondError(c, "ONBOARDING", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"device_id": id,
		"status":    ctrl.Status(),
	})
}

// POST /api/v1/onboarding/:session/pair
func (s *Server) pairDevice(c *gin.Context) {
	ctrl, ok := s.session(c)
	if !ok {
		return
	}

	var req struct {
		DeviceID string `json:"device_id"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "ONBOARDING", "Invalid request body", err)
		return
	}

	device, err := ctrl.AttemptPairing(c.Request.Context(), req.DeviceID)
	if err != nil {
		s.respondError(c, "ONBOARDING", err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"device": device,
		"status": ctrl.Status(),
	})
}

// POST /api/v1/onboarding/:session/cancel
func (s *Server) cancelSession(c *gin.Context) {
	ctrl, ok := s.session(c)
	if !ok {
		return
	}
	ctrl.Cancel()
	c.JSON(http.StatusOK, ctrl.Status())
}
