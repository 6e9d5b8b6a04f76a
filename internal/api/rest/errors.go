package rest

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/KevinKickass/EcoShareCore/internal/devices"
	"github.com/KevinKickass/EcoShareCore/internal/locations"
	"github.com/KevinKickass/EcoShareCore/internal/onboarding"
	"github.com/KevinKickass/EcoShareCore/internal/settings"
	"github.com/KevinKickass/EcoShareCore/internal/types"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type errorMapping struct {
	target  error
	status  int
	message string
}

// Checked in order, first match wins.
var errorMappings = []errorMapping{
	{onboarding.ErrValidation, http.StatusBadRequest, "Invalid input"},
	{onboarding.ErrEmptyIdentifier, http.StatusBadRequest, "Device identifier is required"},
	{onboarding.ErrPrecondition, http.StatusConflict, "Step not allowed in current state"},
	{onboarding.ErrInvalidSelection, http.StatusConflict, "Location is not available"},
	{onboarding.ErrBusy, http.StatusTooManyRequests, "Pairing already in progress"},
	{onboarding.ErrCancelled, http.StatusGone, "Onboarding was cancelled"},
	{onboarding.ErrAborted, http.StatusRequestTimeout, "Pairing attempt aborted"},
	{onboarding.ErrPairingFailed, http.StatusBadGateway, "Pairing failed"},
	{onboarding.ErrSessionNotFound, http.StatusNotFound, "Onboarding session not found"},

	{devices.ErrNotFound, http.StatusNotFound, "Device not found"},
	{devices.ErrInvalid, http.StatusBadRequest, "Invalid device"},
	{devices.ErrRequestFailed, http.StatusInternalServerError, "Device request failed"},

	{locations.ErrFloorNotFound, http.StatusNotFound, "Floor not found"},
	{locations.ErrSpotNotFound, http.StatusNotFound, "Spot not found"},
	{locations.ErrFloorExists, http.StatusConflict, "Floor already exists"},
	{locations.ErrSpotExists, http.StatusConflict, "Spot already exists"},
	{locations.ErrInUse, http.StatusConflict, "Location is occupied"},
	{locations.ErrSpotUnavailable, http.StatusConflict, "Spot is not available"},

	{settings.ErrUnknownSection, http.StatusNotFound, "Unknown settings section"},
	{settings.ErrInvalid, http.StatusBadRequest, "Invalid settings"},
}

// respondError writes the error body for err. scope prefixes the error code,
// e.g. DEVICE_404.
func (s *Server) respondError(c *gin.Context, scope string, err error) {
	status := http.StatusInternalServerError
	message := "Internal error"
	for _, m := range errorMappings {
		if errors.Is(err, m.target) {
			status = m.status
			message = m.message
			break
		}
	}

	code := scope + "_" + strconv.Itoa(status)

	if status >= http.StatusInternalServerError {
		s.logger.Error("Request failed",
			zap.String("path", c.FullPath()),
			zap.Error(err))
	}

	var perr *onboarding.PairingFailedError
	if errors.As(err, &perr) {
		details := gin.H{
			"device_id":    perr.DeviceID,
			"reason":       perr.Reason,
			"attempt":      perr.Attempt,
			"max_attempts": perr.MaxAttempts,
		}
		if perr.Retryable {
			c.JSON(status, types.NewRetryableErrorResponse(code, message, details))
		} else {
			c.JSON(status, types.NewErrorResponse(code, message, details))
		}
		return
	}

	var verr *onboarding.ValidationError
	if errors.As(err, &verr) {
		c.JSON(status, types.NewErrorResponse(code, message, gin.H{"field": verr.Field, "message": verr.Message}))
		return
	}

	c.JSON(status, types.NewErrorResponse(code, message, err.Error()))
}

// badRequest reports a malformed request body or query.
func badRequest(c *gin.Context, scope, message string, err error) {
	var details any
	if err != nil {
		details = err.Error()
	}
	c.JSON(http.StatusBadRequest, types.NewErrorResponse(scope+"_400", message, details))
}
