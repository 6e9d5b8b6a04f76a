package rest

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/KevinKickass/EcoShareCore/internal/types"
	"github.com/gin-gonic/gin"
)

// GET /api/v1/locations
func (s *Server) listLocations(c *gin.Context) {
	floors, err := s.lm.Catalog().Floors(c.Request.Context())
	if err != nil {
		s.respondError(c, "LOCATION", err)
		return
	}

	if onlyAvailable, _ := strconv.ParseBool(c.Query("available")); onlyAvailable {
		floors = types.AvailableOnly(floors)
	}

	available := 0
	for _, f := range floors {
		available += f.AvailableCount()
	}

	c.JSON(http.StatusOK, gin.H{
		"floors":    floors,
		"available": available,
	})
}

// POST /api/v1/locations/floors
func (s *Server) addFloor(c *gin.Context) {
	var req struct {
		Label string `json:"label" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "LOCATION", "Invalid request body", err)
		return
	}

	if err := s.lm.Catalog().AddFloor(c.Request.Context(), req.Label); err != nil {
		s.respondError(c, "LOCATION", err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"label": req.Label})
}

// DELETE /api/v1/locations/floors/:floor
func (s *Server) deleteFloor(c *gin.Context) {
	if err := s.lm.Catalog().DeleteFloor(c.Request.Context(), c.Param("floor")); err != nil {
		s.respondError(c, "LOCATION", err)
		return
	}
	c.Status(http.StatusNoContent)
}

// POST /api/v1/locations/floors/:floor/spots
func (s *Server) addSpot(c *gin.Context) {
	var req struct {
		ID   string `json:"id"`
		Name string `json:"name" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "LOCATION", "Invalid request body", err)
		return
	}

	spot, err := s.lm.Catalog().AddSpot(c.Request.Context(), c.Param("floor"), types.Spot{
		ID:     req.ID,
		Name:   req.Name,
		Status: types.SpotAvailable,
	})
	if err != nil {
		s.respondError(c, "LOCATION", err)
		return
	}
	c.JSON(http.StatusCreated, spot)
}

// PUT /api/v1/locations/spots/:spot
func (s *Server) renameSpot(c *gin.Context) {
	var req struct {
		Name string `json:"name" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "LOCATION", "Invalid request body", err)
		return
	}

	ctx := c.Request.Context()
	if err := s.lm.Catalog().RenameSpot(ctx, c.Param("spot"), req.Name); err != nil {
		s.respondError(c, "LOCATION", err)
		return
	}

	spot, err := s.lm.Catalog().Spot(ctx, c.Param("spot"))
	if err != nil {
		s.respondError(c, "LOCATION", err)
		return
	}
	c.JSON(http.StatusOK, spot)
}

// PUT /api/v1/locations/spots/:spot/status marks a spot occupied or frees it.
// Occupying a spot that is already taken is a conflict.
func (s *Server) setSpotStatus(c *gin.Context) {
	var req struct {
		Status types.SpotStatus `json:"status" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "LOCATION", "Invalid request body", err)
		return
	}

	ctx := c.Request.Context()
	id := c.Param("spot")

	var err error
	switch req.Status {
	case types.SpotOccupied:
		err = s.lm.Catalog().Occupy(ctx, id)
	case types.SpotAvailable:
		err = s.lm.Catalog().Release(ctx, id)
	default:
		badRequest(c, "LOCATION", "Invalid spot status", fmt.Errorf("unknown status %q", req.Status))
		return
	}
	if err != nil {
		s.respondError(c, "LOCATION", err)
		return
	}

	spot, err := s.lm.Catalog().Spot(ctx, id)
	if err != nil {
		s.respondError(c, "LOCATION", err)
		return
	}
	c.JSON(http.StatusOK, spot)
}

// DELETE /api/v1/locations/spots/:spot
func (s *Server) deleteSpot(c *gin.Context) {
	if err := s.lm.Catalog().DeleteSpot(c.Request.Context(), c.Param("spot")); err != nil {
		s.respondError(c, "LOCATION", err)
		return
	}
	c.Status(http.StatusNoContent)
}
