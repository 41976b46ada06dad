package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/SAP-F-2025/session-runtime/internal/services"
)

// ===== COMMON RESPONSE STRUCTURES =====

// ErrorResponse represents an error response
type ErrorResponse struct {
	Message string      `json:"message"`
	Details interface{} `json:"details,omitempty"`
	Code    string      `json:"code,omitempty"`
}

// SuccessResponse represents a success response
type SuccessResponse struct {
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// HealthCheck returns the service health status
func HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "healthy",
		"service": "session-runtime",
	})
}

// parseIDParam parses a uint path parameter, writing the error response itself.
// Returns 0 when the parameter is invalid.
func parseIDParam(c *gin.Context, param string) uint {
	raw := c.Param(param)
	id, err := strconv.ParseUint(raw, 10, 32)
	if err != nil || id == 0 {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Message: "Invalid " + param + " parameter",
			Details: raw,
		})
		return 0
	}
	return uint(id)
}

// handleServiceError maps service and runtime errors to HTTP status codes.
func handleServiceError(c *gin.Context, err error) {
	switch {
	case services.IsNotFoundError(err):
		c.JSON(http.StatusNotFound, ErrorResponse{Message: err.Error()})
	case services.IsConflictError(err):
		c.JSON(http.StatusConflict, ErrorResponse{Message: err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Message: "Internal server error",
			Details: err.Error(),
		})
	}
}
