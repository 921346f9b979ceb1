package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"github.com/quizdeck/attempt-service/internal/cache"
	"github.com/quizdeck/attempt-service/internal/repositories"
)

// PostgreSQLRepository implements the main Repository interface
type PostgreSQLRepository struct {
	db           *gorm.DB
	redisClient  *redis.Client
	cacheManager *cache.CacheManager

	quiz    repositories.QuizRepository
	attempt repositories.AttemptRepository
}

// RepositoryConfig holds configuration for repository initialization
type RepositoryConfig struct {
	DB          *gorm.DB
	RedisClient *redis.Client
}

// NewPostgreSQLRepository creates a new repository with all sub-repositories
func NewPostgreSQLRepository(config RepositoryConfig) repositories.Repository {
	repo := &PostgreSQLRepository{
		db:           config.DB,
		redisClient:  config.RedisClient,
		cacheManager: cache.NewCacheManager(config.RedisClient),
	}

	repo.quiz = NewQuizPostgreSQL(config.DB, config.RedisClient)
	repo.attempt = NewAttemptPostgreSQL(config.DB, config.RedisClient)

	return repo
}

// Quiz returns the quiz repository
func (r *PostgreSQLRepository) Quiz() repositories.QuizRepository {
	return r.quiz
}

// Attempt returns the attempt repository
func (r *PostgreSQLRepository) Attempt() repositories.AttemptRepository {
	return r.attempt
}

// WithTransaction executes a function within a database transaction
func (r *PostgreSQLRepository) WithTransaction(ctx context.Context, fn func(repositories.Repository) error) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		txRepo := &PostgreSQLRepository{
			db:           tx,
			redisClient:  r.redisClient,
			cacheManager: r.cacheManager,
		}

		txRepo.quiz = NewQuizPostgreSQL(tx, r.redisClient)
		txRepo.attempt = NewAttemptPostgreSQL(tx, r.redisClient)

		return fn(txRepo)
	})
}

// Ping checks the health of database and cache connections
func (r *PostgreSQLRepository) Ping(ctx context.Context) error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return fmt.Errorf("failed to get database instance: %w", err)
	}

	if err := sqlDB.PingContext(ctx); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}

	if r.redisClient != nil {
		if err := r.cacheManager.HealthCheck(ctx); err != nil {
			return fmt.Errorf("cache ping failed: %w", err)
		}
	}

	return nil
}

// Close closes all connections
func (r *PostgreSQLRepository) Close() error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return fmt.Errorf("failed to get database instance: %w", err)
	}

	if err := sqlDB.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}

	if r.redisClient != nil {
		if err := r.redisClient.Close(); err != nil {
			return fmt.Errorf("failed to close Redis: %w", err)
		}
	}

	return nil
}

// Manager implements the RepositoryManager interface
type Manager struct {
	config RepositoryConfig
	repo   repositories.Repository
}

// NewRepositoryManager creates a new repository manager
func NewRepositoryManager(config RepositoryConfig) repositories.RepositoryManager {
	return &Manager{
		config: config,
	}
}

// Initialize validates connections and builds the repository
func (m *Manager) Initialize() error {
	if m.config.DB == nil {
		return fmt.Errorf("database connection is required")
	}

	sqlDB, err := m.config.DB.DB()
	if err != nil {
		return fmt.Errorf("failed to get database instance: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := sqlDB.PingContext(ctx); err != nil {
		return fmt.Errorf("database connection failed: %w", err)
	}

	if m.config.RedisClient != nil {
		if _, err := m.config.RedisClient.Ping(ctx).Result(); err != nil {
			return fmt.Errorf("Redis connection failed: %w", err)
		}
	}

	m.repo = NewPostgreSQLRepository(m.config)

	return nil
}

// GetRepository returns the repository instance
func (m *Manager) GetRepository() repositories.Repository {
	return m.repo
}

// HealthCheck checks the health of all repository connections
func (m *Manager) HealthCheck(ctx context.Context) error {
	if m.repo == nil {
		return fmt.Errorf("repository not initialized")
	}

	return m.repo.Ping(ctx)
}

// Shutdown gracefully shuts down all repository connections
func (m *Manager) Shutdown(ctx context.Context) error {
	if m.repo == nil {
		return nil
	}

	return m.repo.Close()
}
