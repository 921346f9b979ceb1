package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/quizdeck/attempt-service/internal/cache"
	"github.com/quizdeck/attempt-service/internal/models"
	"github.com/quizdeck/attempt-service/internal/repositories"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type AttemptPostgreSQL struct {
	db           *gorm.DB
	helpers      *SharedHelpers
	cacheManager *cache.CacheManager
}

func NewAttemptPostgreSQL(db *gorm.DB, redisClient *redis.Client) repositories.AttemptRepository {
	return &AttemptPostgreSQL{
		db:           db,
		helpers:      NewSharedHelpers(db),
		cacheManager: cache.NewCacheManager(redisClient),
	}
}

func (a *AttemptPostgreSQL) getDB(tx *gorm.DB) *gorm.DB {
	if tx != nil {
		return tx
	}
	return a.db
}

func (a *AttemptPostgreSQL) Create(ctx context.Context, tx *gorm.DB, attempt *models.QuizAttempt) error {
	db := a.getDB(tx)
	if err := db.WithContext(ctx).Create(attempt).Error; err != nil {
		return fmt.Errorf("failed to create attempt: %w", err)
	}
	cache.SafeInvalidatePattern(ctx, a.cacheManager.Status, fmt.Sprintf("user:%s:*", attempt.UserID))
	return nil
}

func (a *AttemptPostgreSQL) GetByID(ctx context.Context, tx *gorm.DB, id uint) (*models.QuizAttempt, error) {
	db := a.getDB(tx)
	var attempt models.QuizAttempt
	if err := db.WithContext(ctx).First(&attempt, id).Error; err != nil {
		return nil, err
	}
	return &attempt, nil
}

// GetByIDForUpdate takes a row lock; callers must be inside a transaction.
func (a *AttemptPostgreSQL) GetByIDForUpdate(ctx context.Context, tx *gorm.DB, id uint) (*models.QuizAttempt, error) {
	db := a.getDB(tx)
	var attempt models.QuizAttempt
	if err := db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&attempt, id).Error; err != nil {
		return nil, err
	}
	return &attempt, nil
}

func (a *AttemptPostgreSQL) Update(ctx context.Context, tx *gorm.DB, attempt *models.QuizAttempt) error {
	db := a.getDB(tx)
	if err := db.WithContext(ctx).Save(attempt).Error; err != nil {
		return fmt.Errorf("failed to update attempt: %w", err)
	}
	cache.InvalidateAttemptCache(ctx, a.cacheManager, attempt.ID, attempt.UserID)
	return nil
}

func (a *AttemptPostgreSQL) Delete(ctx context.Context, tx *gorm.DB, id uint) error {
	db := a.getDB(tx)
	if err := db.WithContext(ctx).Delete(&models.QuizAttempt{}, id).Error; err != nil {
		return err
	}
	cache.SafeDelete(ctx, a.cacheManager.Attempt, fmt.Sprintf("id:%d", id))
	return nil
}

// LockUserQuiz takes a transaction-scoped advisory lock on the pair.
// The active-attempt check, the attempt numbering, and the insert of a
// start all run behind it, so concurrent starts serialize even though the
// check matches no rows. Callers must be inside a transaction; the lock
// releases on commit or rollback.
func (a *AttemptPostgreSQL) LockUserQuiz(ctx context.Context, tx *gorm.DB, userID string, quizID uint) error {
	db := a.getDB(tx)
	key := fmt.Sprintf("attempt:%s:%d", userID, quizID)
	if err := db.WithContext(ctx).
		Exec("SELECT pg_advisory_xact_lock(hashtextextended(?, 0))", key).Error; err != nil {
		return fmt.Errorf("failed to acquire attempt lock: %w", err)
	}
	return nil
}

// GetActiveAttempt returns the open attempt for the pair, or
// gorm.ErrRecordNotFound when none exists. The row is locked for the
// surrounding transaction.
func (a *AttemptPostgreSQL) GetActiveAttempt(ctx context.Context, tx *gorm.DB, userID string, quizID uint) (*models.QuizAttempt, error) {
	db := a.getDB(tx)
	var attempt models.QuizAttempt
	if err := db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("user_id = ? AND quiz_id = ? AND in_progress = ?", userID, quizID, true).
		First(&attempt).Error; err != nil {
		return nil, err
	}
	return &attempt, nil
}

func (a *AttemptPostgreSQL) HasActiveAttempt(ctx context.Context, tx *gorm.DB, userID string, quizID uint) (bool, error) {
	db := a.getDB(tx)
	var count int64
	if err := db.WithContext(ctx).
		Model(&models.QuizAttempt{}).
		Where("user_id = ? AND quiz_id = ? AND in_progress = ?", userID, quizID, true).
		Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

func (a *AttemptPostgreSQL) GetCompletedByUserAndQuiz(ctx context.Context, tx *gorm.DB, userID string, quizID uint) ([]*models.QuizAttempt, error) {
	db := a.getDB(tx)
	var attempts []*models.QuizAttempt
	if err := db.WithContext(ctx).
		Where("user_id = ? AND quiz_id = ? AND in_progress = ?", userID, quizID, false).
		Order("attempt_number ASC").
		Find(&attempts).Error; err != nil {
		return nil, fmt.Errorf("failed to get completed attempts: %w", err)
	}
	return attempts, nil
}

// GetByUserAndQuizzes fetches every attempt the user has across the given
// quizzes in a single query so status summaries avoid per-quiz round trips.
func (a *AttemptPostgreSQL) GetByUserAndQuizzes(ctx context.Context, tx *gorm.DB, userID string, quizIDs []uint) ([]*models.QuizAttempt, error) {
	if len(quizIDs) == 0 {
		return nil, nil
	}

	db := a.getDB(tx)
	var attempts []*models.QuizAttempt
	if err := db.WithContext(ctx).
		Where("user_id = ? AND quiz_id IN ?", userID, quizIDs).
		Order("quiz_id ASC, attempt_number ASC").
		Find(&attempts).Error; err != nil {
		return nil, fmt.Errorf("failed to get attempts by quizzes: %w", err)
	}
	return attempts, nil
}

func (a *AttemptPostgreSQL) ListByUserAndQuiz(ctx context.Context, tx *gorm.DB, userID string, quizID uint, filters repositories.AttemptFilters) ([]*models.QuizAttempt, int64, error) {
	db := a.getDB(tx)
	var attempts []*models.QuizAttempt
	var total int64

	// apply filter first
	query := db.WithContext(ctx).
		Model(&models.QuizAttempt{}).
		Where("user_id = ? AND quiz_id = ?", userID, quizID)
	query = a.helpers.ApplyAttemptFilters(query, filters)

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	// then apply pagination and sorting
	query = a.helpers.ApplyPaginationAndSort(query, filters.SortBy, filters.SortOrder, filters.Limit, filters.Offset)

	if err := query.Find(&attempts).Error; err != nil {
		return nil, 0, err
	}

	return attempts, total, nil
}

func (a *AttemptPostgreSQL) MaxAttemptNumber(ctx context.Context, tx *gorm.DB, userID string, quizID uint) (int, error) {
	db := a.getDB(tx)
	var max *int
	if err := db.WithContext(ctx).
		Model(&models.QuizAttempt{}).
		Where("user_id = ? AND quiz_id = ?", userID, quizID).
		Select("MAX(attempt_number)").
		Scan(&max).Error; err != nil {
		return 0, err
	}
	if max == nil {
		return 0, nil
	}
	return *max, nil
}

// SetBestAttempt clears the best-score flag across the pair and sets it on
// the given attempt, keeping exactly one flagged attempt per (user, quiz).
func (a *AttemptPostgreSQL) SetBestAttempt(ctx context.Context, tx *gorm.DB, userID string, quizID uint, attemptID uint) error {
	db := a.getDB(tx)

	if err := db.WithContext(ctx).
		Model(&models.QuizAttempt{}).
		Where("user_id = ? AND quiz_id = ? AND is_best_score = ?", userID, quizID, true).
		Update("is_best_score", false).Error; err != nil {
		return fmt.Errorf("failed to clear best score flag: %w", err)
	}

	result := db.WithContext(ctx).
		Model(&models.QuizAttempt{}).
		Where("id = ?", attemptID).
		Update("is_best_score", true)
	if result.Error != nil {
		return fmt.Errorf("failed to set best score flag: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return errors.New("best score attempt not found")
	}

	cache.SafeInvalidatePattern(ctx, a.cacheManager.Status, fmt.Sprintf("user:%s:*", userID))
	return nil
}
