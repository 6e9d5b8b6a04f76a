package rest

import (
	"encoding/json"
	"net/http"

	"github.com/KevinKickass/EcoShareCore/internal/settings"
	"github.com/gin-gonic/gin"
)

// GET /api/v1/settings
func (s *Server) getSettings(c *gin.Context) {
	c.JSON(http.StatusOK, s.lm.Settings().Get())
}

// PUT /api/v1/settings
func (s *Server) replaceSettings(c *gin.Context) {
	var req settings.Settings
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "SETTINGS", "Invalid request body", err)
		return
	}

	updated, err := s.lm.Settings().Replace(c.Request.Context(), req)
	if err != nil {
		s.respondError(c, "SETTINGS", err)
		return
	}
	c.JSON(http.StatusOK, updated)
}

// PATCH /api/v1/settings/:section
func (s *Server) patchSettings(c *gin.Context) {
	body, err := c.GetRawData()
	if err != nil || !json.Valid(body) {
		badRequest(c, "SETTINGS", "Invalid request body", err)
		return
	}

	updated, err := s.lm.Settings().PatchSection(c.Request.Context(), c.Param("section"), json.RawMessage(body))
	if err != nil {
		s.respondError(c, "SETTINGS", err)
		return
	}
	c.JSON(http.StatusOK, updated)
}

// POST /api/v1/settings/reset
func (s *Server) resetSettings(c *gin.Context) {
	updated, err := s.lm.Settings().Reset(c.Request.Context())
	if err != nil {
		s.respondError(c, "SETTINGS", err)
		return
	}
	c.JSON(http.StatusOK, updated)
}
