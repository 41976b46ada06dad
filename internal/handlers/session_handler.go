package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/SAP-F-2025/session-runtime/internal/models"
	"github.com/SAP-F-2025/session-runtime/internal/runtime"
	"github.com/SAP-F-2025/session-runtime/internal/utils"
)

// SessionHandler exposes the per-session runtime over HTTP. Every route
// resolves the session's engine through the registry; the engine arbitrates
// all state, the handler only translates.
type SessionHandler struct {
	registry  *Registry
	validator *utils.Validator
	logger    utils.Logger
}

func NewSessionHandler(registry *Registry, validator *utils.Validator, logger utils.Logger) *SessionHandler {
	return &SessionHandler{
		registry:  registry,
		validator: validator,
		logger:    logger,
	}
}

// ===== REQUEST STRUCTURES =====

type ResumeRequest struct {
	Fresh bool `json:"fresh"`
}

type ConnectivityRequest struct {
	Online *bool `json:"online" validate:"required"`
}

type AnswerRequest struct {
	QuestionID uint `json:"question_id" validate:"required"`
	OptionID   uint `json:"option_id" validate:"required"`
}

type NavigateRequest struct {
	Index *int `json:"index" validate:"required"`
}

type FlagRequest struct {
	Index *int `json:"index" validate:"required"`
}

type ViolationRequest struct {
	Kind        models.ViolationKind `json:"kind" validate:"required,violation_kind"`
	Description string               `json:"description" validate:"max=500"`
}

// ===== RESPONSE STRUCTURES =====

// StatusResponse is the candidate-facing session snapshot.
type StatusResponse struct {
	SessionID     uint                  `json:"session_id"`
	State         runtime.State         `json:"state"`
	TimeRemaining int                   `json:"time_remaining"`
	LowTime       bool                  `json:"low_time"`
	Online        bool                  `json:"online"`
	SyncStatus    runtime.SyncStatus    `json:"sync_status"`
	LastSyncedAt  *time.Time            `json:"last_synced_at,omitempty"`
	Notice        *runtime.Notice       `json:"notice,omitempty"`
	Result        *runtime.SubmitResult `json:"result,omitempty"`
}

func statusOf(sessionID uint, engine *runtime.Engine) StatusResponse {
	resp := StatusResponse{
		SessionID:     sessionID,
		State:         engine.State(),
		TimeRemaining: engine.TimeRemaining(),
		LowTime:       engine.LowTimeWarned(),
		Online:        engine.Online(),
		SyncStatus:    engine.SyncStatus(),
	}
	if syncedAt := engine.LastSyncedAt(); !syncedAt.IsZero() {
		resp.LastSyncedAt = &syncedAt
	}
	if notice, ok := engine.Notice(); ok {
		resp.Notice = &notice
	}
	if result, ok := engine.Result(); ok {
		resp.Result = result
	}
	return resp
}

// ===== LIFECYCLE =====

// StartSession opens (or re-attaches to) the session's engine.
func (h *SessionHandler) StartSession(c *gin.Context) {
	id := parseIDParam(c, "id")
	if id == 0 {
		return
	}

	engine, err := h.registry.Open(c.Request.Context(), id)
	if err != nil {
		h.logger.LogError(err, "Failed to open session", "session_id", id)
		handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, statusOf(id, engine))
}

// ResumeSession resolves the resume-or-restart choice.
func (h *SessionHandler) ResumeSession(c *gin.Context) {
	id := parseIDParam(c, "id")
	if id == 0 {
		return
	}
	var req ResumeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Message: "Invalid request payload", Details: err.Error()})
		return
	}

	engine, err := h.registry.Get(id)
	if err != nil {
		handleServiceError(c, err)
		return
	}
	if err := engine.Resume(req.Fresh); err != nil {
		handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, statusOf(id, engine))
}

// CloseSession tears down the session's engine without submitting.
func (h *SessionHandler) CloseSession(c *gin.Context) {
	id := parseIDParam(c, "id")
	if id == 0 {
		return
	}

	if engine, err := h.registry.Get(id); err == nil {
		// Best-effort final write so at most one debounce window is lost.
		engine.FlushSync()
	}
	h.registry.Close(id)
	c.JSON(http.StatusOK, SuccessResponse{Message: "Session closed"})
}

// ===== CONNECTIVITY =====

func (h *SessionHandler) Heartbeat(c *gin.Context) {
	id := parseIDParam(c, "id")
	if id == 0 {
		return
	}
	engine, err := h.registry.Get(id)
	if err != nil {
		handleServiceError(c, err)
		return
	}

	engine.Heartbeat()
	c.JSON(http.StatusOK, statusOf(id, engine))
}

func (h *SessionHandler) ReportConnectivity(c *gin.Context) {
	id := parseIDParam(c, "id")
	if id == 0 {
		return
	}
	var req ConnectivityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Message: "Invalid request payload", Details: err.Error()})
		return
	}
	if err := h.validator.Validate(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Message: "Validation failed", Details: err.Error()})
		return
	}

	engine, err := h.registry.Get(id)
	if err != nil {
		handleServiceError(c, err)
		return
	}

	engine.ReportConnectivity(*req.Online)
	c.JSON(http.StatusOK, statusOf(id, engine))
}

// ===== ANSWERS / NAVIGATION =====

func (h *SessionHandler) SetAnswer(c *gin.Context) {
	id := parseIDParam(c, "id")
	if id == 0 {
		return
	}
	var req AnswerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Message: "Invalid request payload", Details: err.Error()})
		return
	}
	if err := h.validator.Validate(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Message: "Validation failed", Details: err.Error()})
		return
	}

	engine, err := h.registry.Get(id)
	if err != nil {
		handleServiceError(c, err)
		return
	}
	if err := engine.SetAnswer(req.QuestionID, req.OptionID); err != nil {
		handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, engine.Progress())
}

func (h *SessionHandler) Navigate(c *gin.Context) {
	id := parseIDParam(c, "id")
	if id == 0 {
		return
	}
	var req NavigateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Message: "Invalid request payload", Details: err.Error()})
		return
	}
	if err := h.validator.Validate(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Message: "Validation failed", Details: err.Error()})
		return
	}

	engine, err := h.registry.Get(id)
	if err != nil {
		handleServiceError(c, err)
		return
	}
	if err := engine.Navigate(*req.Index); err != nil {
		handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, engine.Progress())
}

func (h *SessionHandler) ToggleFlag(c *gin.Context) {
	id := parseIDParam(c, "id")
	if id == 0 {
		return
	}
	var req FlagRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Message: "Invalid request payload", Details: err.Error()})
		return
	}
	if err := h.validator.Validate(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Message: "Validation failed", Details: err.Error()})
		return
	}

	engine, err := h.registry.Get(id)
	if err != nil {
		handleServiceError(c, err)
		return
	}
	if err := engine.ToggleFlag(*req.Index); err != nil {
		handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, engine.Progress())
}

// ===== OBSERVATION =====

func (h *SessionHandler) GetStatus(c *gin.Context) {
	id := parseIDParam(c, "id")
	if id == 0 {
		return
	}
	engine, err := h.registry.Get(id)
	if err != nil {
		handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, statusOf(id, engine))
}

func (h *SessionHandler) GetProgress(c *gin.Context) {
	id := parseIDParam(c, "id")
	if id == 0 {
		return
	}
	engine, err := h.registry.Get(id)
	if err != nil {
		handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, engine.Progress())
}

// ===== PERSISTENCE =====

// FlushSync runs the manual save trigger.
func (h *SessionHandler) FlushSync(c *gin.Context) {
	id := parseIDParam(c, "id")
	if id == 0 {
		return
	}
	engine, err := h.registry.Get(id)
	if err != nil {
		handleServiceError(c, err)
		return
	}

	engine.FlushSync()
	c.JSON(http.StatusOK, statusOf(id, engine))
}

// ===== REVIEW / SUBMIT =====

func (h *SessionHandler) BeginReview(c *gin.Context) {
	id := parseIDParam(c, "id")
	if id == 0 {
		return
	}
	engine, err := h.registry.Get(id)
	if err != nil {
		handleServiceError(c, err)
		return
	}

	summary, err := engine.BeginReview()
	if err != nil {
		handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, summary)
}

func (h *SessionHandler) CancelReview(c *gin.Context) {
	id := parseIDParam(c, "id")
	if id == 0 {
		return
	}
	engine, err := h.registry.Get(id)
	if err != nil {
		handleServiceError(c, err)
		return
	}
	if err := engine.CancelReview(); err != nil {
		handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, statusOf(id, engine))
}

func (h *SessionHandler) SubmitSession(c *gin.Context) {
	id := parseIDParam(c, "id")
	if id == 0 {
		return
	}
	engine, err := h.registry.Get(id)
	if err != nil {
		handleServiceError(c, err)
		return
	}

	if err := engine.ConfirmSubmit(); err != nil {
		h.logger.LogError(err, "Submit failed", "session_id", id)
		handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, statusOf(id, engine))
}

// ===== VIOLATIONS =====

func (h *SessionHandler) ReportViolation(c *gin.Context) {
	id := parseIDParam(c, "id")
	if id == 0 {
		return
	}
	var req ViolationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Message: "Invalid request payload", Details: err.Error()})
		return
	}
	if err := h.validator.Validate(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Message: "Validation failed", Details: err.Error()})
		return
	}

	engine, err := h.registry.Get(id)
	if err != nil {
		handleServiceError(c, err)
		return
	}

	// A violation reported outside lockdown is dropped, not an error: the
	// client may race a report against session completion.
	accepted := engine.ReportViolation(req.Kind, req.Description)
	c.JSON(http.StatusOK, gin.H{"accepted": accepted})
}

func (h *SessionHandler) ListViolations(c *gin.Context) {
	id := parseIDParam(c, "id")
	if id == 0 {
		return
	}
	engine, err := h.registry.Get(id)
	if err != nil {
		handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"violations": engine.Violations()})
}
