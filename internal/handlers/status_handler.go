package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/quizdeck/attempt-service/internal/services"
	"github.com/quizdeck/attempt-service/internal/utils"
	"github.com/quizdeck/attempt-service/internal/validator"
)

type StatusHandler struct {
	BaseHandler
	statusService services.StatusService
	validator     *validator.Validator
}

func NewStatusHandler(
	statusService services.StatusService,
	validator *validator.Validator,
	logger utils.Logger,
) *StatusHandler {
	return &StatusHandler{
		BaseHandler:   NewBaseHandler(logger),
		statusService: statusService,
		validator:     validator,
	}
}

// AttemptStatuses returns per-quiz attempt summaries and retake
// eligibility for the authenticated user, in a single request.
// @Summary Bulk attempt statuses
// @Tags attempts
// @Accept json
// @Produce json
// @Param request body services.AttemptStatusRequest true "Quiz IDs"
// @Success 200 {object} services.AttemptStatusResponse
// @Failure 400 {object} ErrorResponse
// @Router /attempts/statuses [post]
func (h *StatusHandler) AttemptStatuses(c *gin.Context) {
	h.LogRequest(c, "Getting attempt statuses")

	var req services.AttemptStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Message: "Invalid request payload",
			Details: err.Error(),
		})
		return
	}

	if err := h.validator.Validate(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Message: "Validation failed",
			Details: err.Error(),
		})
		return
	}

	userID, exists := c.Get("user_id")
	if !exists {
		c.JSON(http.StatusUnauthorized, ErrorResponse{
			Message: "User not authenticated",
		})
		return
	}

	statuses, err := h.statusService.StatusFor(c.Request.Context(), req.QuizIDs, userID.(string))
	if err != nil {
		handleServiceError(c, err, &h.BaseHandler)
		return
	}

	c.JSON(http.StatusOK, statuses)
}
