package services

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/quizdeck/attempt-service/internal/events"
	"github.com/quizdeck/attempt-service/internal/repositories"
	"github.com/quizdeck/attempt-service/internal/validator"
)

// ServiceManagerConfig holds configuration for the service manager
type ServiceManagerConfig struct {
	EnableDebugLogging bool
	LogLevel           slog.Level

	Attempt ServiceConfig
	Grading ServiceConfig
	Status  ServiceConfig

	DefaultTimeout time.Duration
}

type ServiceConfig struct {
	Enabled      bool
	CacheEnabled bool
	CacheTTL     time.Duration
}

// serviceManager implements ServiceManager interface
type serviceManager struct {
	repo      repositories.Repository
	publisher events.EventPublisher
	logger    *slog.Logger
	validator *validator.Validator
	config    ServiceManagerConfig

	attemptService AttemptService
	gradingService GradingService
	statusService  StatusService

	initialized bool
	shutdown    bool
	mu          sync.RWMutex
}

// NewServiceManager creates a new service manager with all dependencies
func NewServiceManager(repo repositories.Repository, publisher events.EventPublisher, logger *slog.Logger, v *validator.Validator, config ServiceManagerConfig) ServiceManager {
	return &serviceManager{
		repo:      repo,
		publisher: publisher,
		logger:    logger,
		validator: v,
		config:    config,
	}
}

// NewDefaultServiceManager creates a service manager with default configuration
func NewDefaultServiceManager(repo repositories.Repository, publisher events.EventPublisher, logger *slog.Logger, v *validator.Validator) ServiceManager {
	config := ServiceManagerConfig{
		EnableDebugLogging: false,
		LogLevel:           slog.LevelInfo,

		Attempt: ServiceConfig{
			Enabled:      true,
			CacheEnabled: false, // Real-time data
		},
		Grading: ServiceConfig{
			Enabled: true,
		},
		Status: ServiceConfig{
			Enabled:      true,
			CacheEnabled: true,
			CacheTTL:     2 * time.Minute,
		},

		DefaultTimeout: 30 * time.Second,
	}

	return NewServiceManager(repo, publisher, logger, v, config)
}

// Initialize sets up all services and their dependencies
func (sm *serviceManager) Initialize(ctx context.Context) error {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	if sm.initialized {
		return nil
	}

	sm.logger.Info("Initializing service manager")

	sm.gradingService = NewGradingService(sm.logger)
	sm.logger.Info("Grading service initialized")

	if sm.config.Attempt.Enabled {
		sm.attemptService = NewAttemptService(sm.repo, sm.gradingService, sm.publisher, sm.logger, sm.validator)
		sm.logger.Info("Attempt service initialized")
	}

	if sm.config.Status.Enabled {
		sm.statusService = NewStatusService(sm.repo, sm.logger, sm.validator)
		sm.logger.Info("Status service initialized")
	}

	sm.initialized = true
	sm.logger.Info("Service manager initialized successfully")

	return nil
}

// Service getters
func (sm *serviceManager) Attempt() AttemptService {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	if !sm.initialized {
		panic("service manager not initialized")
	}

	if sm.config.Attempt.Enabled && sm.attemptService != nil {
		return sm.attemptService
	}

	panic("attempt service not enabled or not initialized")
}

func (sm *serviceManager) Grading() GradingService {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	if !sm.initialized {
		panic("service manager not initialized")
	}

	return sm.gradingService
}

func (sm *serviceManager) Status() StatusService {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	if !sm.initialized {
		panic("service manager not initialized")
	}

	if sm.config.Status.Enabled && sm.statusService != nil {
		return sm.statusService
	}

	panic("status service not enabled or not initialized")
}

// Health and lifecycle
func (sm *serviceManager) HealthCheck(ctx context.Context) error {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	if !sm.initialized {
		return fmt.Errorf("service manager not initialized")
	}

	if sm.shutdown {
		return fmt.Errorf("service manager is shut down")
	}

	if err := sm.repo.Ping(ctx); err != nil {
		return fmt.Errorf("repository health check failed: %w", err)
	}

	return nil
}

func (sm *serviceManager) Shutdown(ctx context.Context) error {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	if sm.shutdown {
		return nil
	}

	sm.logger.Info("Shutting down service manager")

	if sm.publisher != nil {
		if err := sm.publisher.Close(); err != nil {
			sm.logger.Error("Failed to close event publisher", "error", err)
		}
	}

	if err := sm.repo.Close(); err != nil {
		sm.logger.Error("Failed to close repository", "error", err)
	}

	sm.shutdown = true
	sm.logger.Info("Service manager shut down completed")

	return nil
}
