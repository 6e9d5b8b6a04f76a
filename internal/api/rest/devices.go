package rest

import (
	"net/http"
	"time"

	"github.com/KevinKickass/EcoShareCore/internal/types"
	"github.com/gin-gonic/gin"
)

// GET /api/v1/devices
func (s *Server) listDevices(c *gin.Context) {
	filter := types.DeviceFilter{
		Query:  c.Query("q"),
		Status: types.DeviceStatus(c.Query("status")),
	}
	if filter.Status != "" && !filter.Status.Valid() {
		badRequest(c, "DEVICE", "Invalid status filter", nil)
		return
	}

	list, err := s.lm.DeviceManager().List(c.Request.Context(), filter)
	if err != nil {
		s.respondError(c, "DEVICE", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"devices": list,
		"count":   len(list),
	})
}

// GET /api/v1/devices/:id
func (s *Server) getDevice(c *gin.Context) {
	device, err := s.lm.DeviceManager().Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.respondError(c, "DEVICE", err)
		return
	}
	c.JSON(http.StatusOK, device)
}

// POST /api/v1/devices
func (s *Server) createDevice(c *gin.Context) {
	var req types.DeviceInput
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "DEVICE", "Invalid request body", err)
		return
	}

	device, err := s.lm.DeviceManager().Create(c.Request.Context(), req)
	if err != nil {
		s.respondError(c, "DEVICE", err)
		return
	}
	c.JSON(http.StatusCreated, device)
}

// PUT /api/v1/devices/:id
func (s *Server) updateDevice(c *gin.Context) {
	var req types.DeviceUpdate
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "DEVICE", "Invalid request body", err)
		return
	}

	device, err := s.lm.DeviceManager().Update(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		s.respondError(c, "DEVICE", err)
		return
	}
	c.JSON(http.StatusOK, device)
}

// DELETE /api/v1/devices/:id
func (s *Server) deleteDevice(c *gin.Context) {
	if err := s.lm.DeviceManager().Delete(c.Request.Context(), c.Param("id")); err != nil {
		s.respondError(c, "DEVICE", err)
		return
	}
	c.Status(http.StatusNoContent)
}

// PUT /api/v1/devices/:id/status
func (s *Server) updateDeviceStatus(c *gin.Context) {
	var req struct {
		Status types.DeviceStatus `json:"status" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "DEVICE", "Invalid request body", err)
		return
	}

	device, err := s.lm.DeviceManager().UpdateStatus(c.Request.Context(), c.Param("id"), req.Status)
	if err != nil {
		s.respondError(c, "DEVICE", err)
		return
	}
	c.JSON(http.StatusOK, device)
}

// POST /api/v1/devices/:id/usage
func (s *Server) recordUsage(c *gin.Context) {
	var req struct {
		Usage     float64   `json:"usage"`
		Cost      float64   `json:"cost"`
		Timestamp time.Time `json:"timestamp"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "USAGE", "Invalid request body", err)
		return
	}

	rec, err := s.lm.DeviceManager().RecordUsage(c.Request.Context(), types.PowerUsageRecord{
		DeviceID:  c.Param("id"),
		Usage:     req.Usage,
		Cost:      req.Cost,
		Timestamp: req.Timestamp,
	})
	if err != nil {
		s.respondError(c, "USAGE", err)
		return
	}
	c.JSON(http.StatusCreated, rec)
}

// GET /api/v1/devices/:id/usage
func (s *Server) listUsage(c *gin.Context) {
	from, to, ok := timeRange(c)
	if !ok {
		return
	}

	records, err := s.lm.DeviceManager().Usage(c.Request.Context(), c.Param("id"), from, to)
	if err != nil {
		s.respondError(c, "USAGE", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"records": records,
		"count":   len(records),
	})
}

// GET /api/v1/usage/total
func (s *Server) totalUsage(c *gin.Context) {
	from, to, ok := timeRange(c)
	if !ok {
		return
	}

	total, err := s.lm.DeviceManager().TotalUsage(c.Request.Context(), from, to)
	if err != nil {
		s.respondError(c, "USAGE", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"total_usage": total})
}

// timeRange parses the optional RFC 3339 start_time and end_time query
// parameters. It writes the error response itself and reports ok=false.
func timeRange(c *gin.Context) (from, to time.Time, ok bool) {
	parse := func(key string) (time.Time, bool) {
		raw := c.Query(key)
		if raw == "" {
			return time.Time{}, true
		}
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			badRequest(c, "USAGE", "Invalid "+key, err)
			return time.Time{}, false
		}
		return t, true
	}

	if from, ok = parse("start_time"); !ok {
		return
	}
	if to, ok = parse("end_time"); !ok {
		return
	}
	if !from.IsZero() && !to.IsZero() && to.Before(from) {
		badRequest(c, "USAGE", "end_time before start_time", nil)
		return time.Time{}, time.Time{}, false
	}
	return from, to, true
}
