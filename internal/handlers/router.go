package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/quizdeck/attempt-service/internal/config"
	"github.com/quizdeck/attempt-service/internal/services"
	"github.com/quizdeck/attempt-service/internal/utils"
	"github.com/quizdeck/attempt-service/internal/validator"
)

type HandlerManager struct {
	attemptHandler *AttemptHandler
	statusHandler  *StatusHandler
	authMiddleware *CasdoorAuthMiddleware
}

func NewHandlerManager(
	serviceManager services.ServiceManager,
	validator *validator.Validator,
	logger utils.Logger,
	casdoorConfig config.CasdoorConfig,
) *HandlerManager {
	return &HandlerManager{
		attemptHandler: NewAttemptHandler(serviceManager.Attempt(), validator, logger),
		statusHandler:  NewStatusHandler(serviceManager.Status(), validator, logger),
		authMiddleware: NewCasdoorAuthMiddleware(casdoorConfig),
	}
}

// SetupRoutes sets up all API routes
func (hm *HandlerManager) SetupRoutes(router *gin.Engine) {
	router.GET("/health", HealthCheck)

	// API v1 routes with authentication
	v1 := router.Group("/api/v1")
	v1.Use(hm.authMiddleware.AuthMiddleware())
	{
		attempts := v1.Group("/attempts")
		{
			attempts.POST("/start", hm.attemptHandler.StartAttempt)
			attempts.POST("/statuses", hm.statusHandler.AttemptStatuses)
			attempts.GET("", hm.attemptHandler.ListAttempts)
			attempts.GET("/:id", hm.attemptHandler.GetAttempt)
			attempts.PATCH("/:id", hm.attemptHandler.CheckpointAttempt)
			attempts.POST("/:id/complete", hm.attemptHandler.CompleteAttempt)
			attempts.POST("/:id/resume", hm.attemptHandler.ResumeAttempt)
		}
	}
}

// HealthCheck endpoint
func HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "healthy",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"service":   "attempt-service",
	})
}
