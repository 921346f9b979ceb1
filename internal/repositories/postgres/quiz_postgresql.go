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
)

type QuizPostgreSQL struct {
	db           *gorm.DB
	cacheManager *cache.CacheManager
}

func NewQuizPostgreSQL(db *gorm.DB, redisClient *redis.Client) repositories.QuizRepository {
	return &QuizPostgreSQL{
		db:           db,
		cacheManager: cache.NewCacheManager(redisClient),
	}
}

func (q *QuizPostgreSQL) getDB(tx *gorm.DB) *gorm.DB {
	if tx != nil {
		return tx
	}
	return q.db
}

// GetByID loads a quiz with its questions. Quiz definitions only change on
// upstream sync, so cached copies are safe for the attempt flows.
func (q *QuizPostgreSQL) GetByID(ctx context.Context, tx *gorm.DB, id uint) (*models.Quiz, error) {
	db := q.getDB(tx)
	cacheKey := fmt.Sprintf("id:%d", id)
	var quiz models.Quiz

	err := q.cacheManager.Quiz.CacheOrExecute(ctx, cacheKey, &quiz, cache.QuizCacheConfig.TTL, func() (interface{}, error) {
		var dbQuiz models.Quiz
		if err := db.WithContext(ctx).
			Preload("Questions").
			First(&dbQuiz, id).Error; err != nil {
			return nil, err
		}
		return &dbQuiz, nil
	})
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to get quiz: %w", err)
	}

	return &quiz, nil
}

func (q *QuizPostgreSQL) GetByIDs(ctx context.Context, tx *gorm.DB, ids []uint) ([]*models.Quiz, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	db := q.getDB(tx)
	var quizzes []*models.Quiz
	if err := db.WithContext(ctx).
		Preload("Questions").
		Where("id IN ?", ids).
		Find(&quizzes).Error; err != nil {
		return nil, fmt.Errorf("failed to get quizzes: %w", err)
	}

	return quizzes, nil
}

func (q *QuizPostgreSQL) Exists(ctx context.Context, tx *gorm.DB, id uint) (bool, error) {
	db := q.getDB(tx)
	var count int64
	if err := db.WithContext(ctx).
		Model(&models.Quiz{}).
		Where("id = ?", id).
		Count(&count).Error; err != nil {
		return false, err
	}

	return count > 0, nil
}
