package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/quizdeck/attempt-service/internal/services"
	"github.com/quizdeck/attempt-service/internal/utils"
	"github.com/quizdeck/attempt-service/internal/validator"
)

type AttemptHandler struct {
	BaseHandler
	attemptService services.AttemptService
	validator      *validator.Validator
}

func NewAttemptHandler(
	attemptService services.AttemptService,
	validator *validator.Validator,
	logger utils.Logger,
) *AttemptHandler {
	return &AttemptHandler{
		BaseHandler:    NewBaseHandler(logger),
		attemptService: attemptService,
		validator:      validator,
	}
}

// StartAttempt starts a new quiz attempt for the authenticated user.
// @Summary Start quiz attempt
// @Tags attempts
// @Accept json
// @Produce json
// @Param attempt body services.StartAttemptRequest true "Start attempt data"
// @Success 201 {object} services.AttemptResponse
// @Failure 400 {object} ErrorResponse
// @Failure 409 {object} ErrorResponse
// @Failure 422 {object} ErrorResponse
// @Router /attempts/start [post]
func (h *AttemptHandler) StartAttempt(c *gin.Context) {
	h.LogRequest(c, "Starting quiz attempt")

	var req services.StartAttemptRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Message: "Invalid request payload",
			Details: err.Error(),
		})
		return
	}

	userID := h.getUserID(c)
	if userID == "" {
		c.JSON(http.StatusUnauthorized, ErrorResponse{
			Message: "User not authenticated",
		})
		return
	}

	attempt, err := h.attemptService.Start(c.Request.Context(), &req, userID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusCreated, attempt)
}

// CheckpointAttempt saves partial progress on an in-progress attempt.
// @Summary Checkpoint quiz attempt
// @Tags attempts
// @Accept json
// @Produce json
// @Param id path uint true "Attempt ID"
// @Param attempt body services.CheckpointAttemptRequest true "Checkpoint data"
// @Success 200 {object} services.AttemptResponse
// @Failure 400 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Failure 409 {object} ErrorResponse
// @Router /attempts/{id} [patch]
func (h *AttemptHandler) CheckpointAttempt(c *gin.Context) {
	id := h.parseIDParam(c, "id")
	if id == 0 {
		return
	}

	h.LogRequest(c, "Checkpointing quiz attempt", "attempt_id", id)

	var req services.CheckpointAttemptRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Message: "Invalid request payload",
			Details: err.Error(),
		})
		return
	}

	userID := h.getUserID(c)
	if userID == "" {
		c.JSON(http.StatusUnauthorized, ErrorResponse{
			Message: "User not authenticated",
		})
		return
	}

	attempt, err := h.attemptService.Checkpoint(c.Request.Context(), id, &req, userID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, attempt)
}

// CompleteAttempt submits all answers and grades the attempt.
// @Summary Complete quiz attempt
// @Tags attempts
// @Accept json
// @Produce json
// @Param id path uint true "Attempt ID"
// @Param attempt body services.CompleteAttemptRequest true "Final answers"
// @Success 200 {object} services.CompleteAttemptResponse
// @Failure 400 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Failure 409 {object} ErrorResponse
// @Router /attempts/{id}/complete [post]
func (h *AttemptHandler) CompleteAttempt(c *gin.Context) {
	id := h.parseIDParam(c, "id")
	if id == 0 {
		return
	}

	h.LogRequest(c, "Completing quiz attempt", "attempt_id", id)

	var req services.CompleteAttemptRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Message: "Invalid request payload",
			Details: err.Error(),
		})
		return
	}

	userID := h.getUserID(c)
	if userID == "" {
		c.JSON(http.StatusUnauthorized, ErrorResponse{
			Message: "User not authenticated",
		})
		return
	}

	result, err := h.attemptService.Complete(c.Request.Context(), id, &req, userID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

// ResumeAttempt returns an in-progress attempt with its saved state.
// @Summary Resume quiz attempt
// @Tags attempts
// @Produce json
// @Param id path uint true "Attempt ID"
// @Success 200 {object} services.AttemptResponse
// @Failure 404 {object} ErrorResponse
// @Failure 409 {object} ErrorResponse
// @Router /attempts/{id}/resume [post]
func (h *AttemptHandler) ResumeAttempt(c *gin.Context) {
	id := h.parseIDParam(c, "id")
	if id == 0 {
		return
	}

	h.LogRequest(c, "Resuming quiz attempt", "attempt_id", id)

	userID := h.getUserID(c)
	if userID == "" {
		c.JSON(http.StatusUnauthorized, ErrorResponse{
			Message: "User not authenticated",
		})
		return
	}

	attempt, err := h.attemptService.Resume(c.Request.Context(), id, userID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, attempt)
}

// GetAttempt returns a single attempt owned by the authenticated user.
// @Summary Get quiz attempt
// @Tags attempts
// @Produce json
// @Param id path uint true "Attempt ID"
// @Success 200 {object} services.AttemptResponse
// @Failure 404 {object} ErrorResponse
// @Router /attempts/{id} [get]
func (h *AttemptHandler) GetAttempt(c *gin.Context) {
	id := h.parseIDParam(c, "id")
	if id == 0 {
		return
	}

	h.LogRequest(c, "Getting quiz attempt", "attempt_id", id)

	userID := h.getUserID(c)
	if userID == "" {
		c.JSON(http.StatusUnauthorized, ErrorResponse{
			Message: "User not authenticated",
		})
		return
	}

	attempt, err := h.attemptService.GetByID(c.Request.Context(), id, userID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, attempt)
}

// ListAttempts lists the authenticated user's attempts for a quiz.
// @Summary List quiz attempts
// @Tags attempts
// @Produce json
// @Param quiz_id query uint true "Quiz ID"
// @Param page query int false "Page number"
// @Param size query int false "Page size"
// @Success 200 {object} services.AttemptListResponse
// @Failure 400 {object} ErrorResponse
// @Router /attempts [get]
func (h *AttemptHandler) ListAttempts(c *gin.Context) {
	quizIDStr := c.Query("quiz_id")
	quizID, err := strconv.ParseUint(quizIDStr, 10, 32)
	if err != nil || quizID == 0 {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Message: "Invalid quiz_id",
		})
		return
	}

	page := h.parseIntQuery(c, "page", 1)
	size := h.parseIntQuery(c, "size", 20)

	h.LogRequest(c, "Listing quiz attempts", "quiz_id", quizID, "page", page, "size", size)

	userID := h.getUserID(c)
	if userID == "" {
		c.JSON(http.StatusUnauthorized, ErrorResponse{
			Message: "User not authenticated",
		})
		return
	}

	attempts, err := h.attemptService.ListByQuiz(c.Request.Context(), uint(quizID), userID, page, size)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, attempts)
}

// Helper methods

func (h *AttemptHandler) getUserID(c *gin.Context) string {
	userID, exists := c.Get("user_id")
	if !exists {
		return ""
	}
	if id, ok := userID.(string); ok {
		return id
	}
	return ""
}

func (h *AttemptHandler) parseIDParam(c *gin.Context, param string) uint {
	idStr := c.Param(param)
	id, err := strconv.ParseUint(idStr, 10, 32)
	if err != nil || id == 0 {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Message: "Invalid " + param,
		})
		return 0
	}
	return uint(id)
}

func (h *AttemptHandler) parseIntQuery(c *gin.Context, param string, defaultValue int) int {
	valueStr := c.Query(param)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func (h *AttemptHandler) handleServiceError(c *gin.Context, err error) {
	handleServiceError(c, err, &h.BaseHandler)
}

// handleServiceError maps service errors to HTTP responses. Shared by the
// attempt and status handlers.
func handleServiceError(c *gin.Context, err error, base *BaseHandler) {
	var validationErrors *services.ValidationErrors
	if errors.As(err, &validationErrors) {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Message: "Validation failed",
			Details: validationErrors.Errors,
		})
		return
	}

	var retakeDenied *services.RetakeDeniedError
	if errors.As(err, &retakeDenied) {
		status := http.StatusUnprocessableEntity
		if retakeDenied.Reason == services.RetakeReasonInProgress {
			status = http.StatusConflict
		}
		c.JSON(status, ErrorResponse{
			Message: "Retake not allowed",
			Details: map[string]any{
				"reason":             retakeDenied.Reason,
				"next_eligible_at":   retakeDenied.NextEligibleAt,
				"attempts_remaining": retakeDenied.AttemptsRemaining,
			},
		})
		return
	}

	switch {
	case errors.Is(err, services.ErrQuizNotFound):
		c.JSON(http.StatusNotFound, ErrorResponse{
			Message: "Quiz not found",
		})
	case errors.Is(err, services.ErrAttemptNotFound):
		c.JSON(http.StatusNotFound, ErrorResponse{
			Message: "Attempt not found",
		})
	case errors.Is(err, services.ErrAttemptInProgress):
		c.JSON(http.StatusConflict, ErrorResponse{
			Message: "An attempt is already in progress for this quiz",
		})
	case errors.Is(err, services.ErrAttemptAlreadyCompleted):
		c.JSON(http.StatusConflict, ErrorResponse{
			Message: "Attempt already completed",
		})
	case errors.Is(err, services.ErrAttemptNotInProgress):
		c.JSON(http.StatusConflict, ErrorResponse{
			Message: "Attempt is not in progress",
		})
	case errors.Is(err, services.ErrUnauthorized):
		c.JSON(http.StatusUnauthorized, ErrorResponse{
			Message: "Unauthorized access",
		})
	default:
		base.LogError(c, err, "Unexpected service error")
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Message: "Internal server error",
		})
	}
}
