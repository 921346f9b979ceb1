package handlers

import (
	"github.com/gin-gonic/gin"

	"github.com/quizdeck/attempt-service/internal/utils"
)

// ErrorResponse is the standard error payload for all endpoints.
type ErrorResponse struct {
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

// SuccessResponse wraps successful responses that carry a message.
type SuccessResponse struct {
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

// BaseHandler provides shared logging helpers for HTTP handlers.
type BaseHandler struct {
	logger utils.Logger
}

func NewBaseHandler(logger utils.Logger) BaseHandler {
	return BaseHandler{logger: logger}
}

// LogRequest logs an incoming request with the request-scoped logger.
func (h *BaseHandler) LogRequest(c *gin.Context, msg string, args ...any) {
	fields := append([]any{
		"method", c.Request.Method,
		"path", c.Request.URL.Path,
	}, args...)
	utils.GetLogger(c, h.logger).Info(msg, fields...)
}

// LogError logs an unexpected handler error.
func (h *BaseHandler) LogError(c *gin.Context, err error, msg string, args ...any) {
	fields := append([]any{
		"error", err,
		"method", c.Request.Method,
		"path", c.Request.URL.Path,
	}, args...)
	utils.GetLogger(c, h.logger).Error(msg, fields...)
}
