package handlers

import (
	"github.com/gin-gonic/gin"

	"github.com/SAP-F-2025/session-runtime/internal/utils"
)

type HandlerManager struct {
	sessionHandler *SessionHandler
}

func NewHandlerManager(
	registry *Registry,
	validator *utils.Validator,
	logger utils.Logger,
) *HandlerManager {
	return &HandlerManager{
		sessionHandler: NewSessionHandler(registry, validator, logger),
	}
}

// SetupRoutes sets up all API routes
func (hm *HandlerManager) SetupRoutes(router *gin.Engine) {
	// Health check endpoint
	router.GET("/health", HealthCheck)

	// API v1 routes
	v1 := router.Group("/api/v1")
	{
		sessions := v1.Group("/sessions")
		{
			// Lifecycle
			sessions.POST("/:id/start", hm.sessionHandler.StartSession)
			sessions.POST("/:id/resume", hm.sessionHandler.ResumeSession)
			sessions.DELETE("/:id", hm.sessionHandler.CloseSession)

			// Connectivity
			sessions.POST("/:id/heartbeat", hm.sessionHandler.Heartbeat)
			sessions.POST("/:id/connectivity", hm.sessionHandler.ReportConnectivity)

			// Answers and navigation
			sessions.PUT("/:id/answers", hm.sessionHandler.SetAnswer)
			sessions.PUT("/:id/navigate", hm.sessionHandler.Navigate)
			sessions.POST("/:id/flags", hm.sessionHandler.ToggleFlag)

			// Observation
			sessions.GET("/:id/status", hm.sessionHandler.GetStatus)
			sessions.GET("/:id/progress", hm.sessionHandler.GetProgress)

			// Persistence
			sessions.POST("/:id/sync", hm.sessionHandler.FlushSync)

			// Review and submit
			sessions.POST("/:id/review", hm.sessionHandler.BeginReview)
			sessions.DELETE("/:id/review", hm.sessionHandler.CancelReview)
			sessions.POST("/:id/submit", hm.sessionHandler.SubmitSession)

			// Lockdown
			sessions.POST("/:id/violations", hm.sessionHandler.ReportViolation)
			sessions.GET("/:id/violations", hm.sessionHandler.ListViolations)
		}
	}
}
