package repositories

import (
	"context"
	"errors"

	"github.com/quizdeck/attempt-service/internal/models"
	"gorm.io/gorm"
)

// IsNotFoundError reports whether err is a record-not-found from any backend.
func IsNotFoundError(err error) bool {
	return errors.Is(err, gorm.ErrRecordNotFound)
}

// IsDuplicateError reports whether err is a unique-constraint violation.
func IsDuplicateError(err error) bool {
	return errors.Is(err, gorm.ErrDuplicatedKey)
}

// ===== QUIZ REPOSITORY (read-only for the attempt service) =====

type QuizRepository interface {
	GetByID(ctx context.Context, tx *gorm.DB, id uint) (*models.Quiz, error)
	GetByIDs(ctx context.Context, tx *gorm.DB, ids []uint) ([]*models.Quiz, error)
	Exists(ctx context.Context, tx *gorm.DB, id uint) (bool, error)
}

// ===== ATTEMPT REPOSITORY =====

type AttemptFilters struct {
	InProgress *bool
	SortBy     string
	SortOrder  string
	Limit      int
	Offset     int
}

type AttemptRepository interface {
	Create(ctx context.Context, tx *gorm.DB, attempt *models.QuizAttempt) error
	GetByID(ctx context.Context, tx *gorm.DB, id uint) (*models.QuizAttempt, error)
	// GetByIDForUpdate locks the attempt row for the duration of the
	// surrounding transaction.
	GetByIDForUpdate(ctx context.Context, tx *gorm.DB, id uint) (*models.QuizAttempt, error)
	Update(ctx context.Context, tx *gorm.DB, attempt *models.QuizAttempt) error
	Delete(ctx context.Context, tx *gorm.DB, id uint) error

	// LockUserQuiz serializes attempt starts for the pair for the duration
	// of the surrounding transaction.
	LockUserQuiz(ctx context.Context, tx *gorm.DB, userID string, quizID uint) error
	GetActiveAttempt(ctx context.Context, tx *gorm.DB, userID string, quizID uint) (*models.QuizAttempt, error)
	HasActiveAttempt(ctx context.Context, tx *gorm.DB, userID string, quizID uint) (bool, error)
	GetCompletedByUserAndQuiz(ctx context.Context, tx *gorm.DB, userID string, quizID uint) ([]*models.QuizAttempt, error)
	// GetByUserAndQuizzes fetches all attempts the user has on any of the
	// given quizzes in one query.
	GetByUserAndQuizzes(ctx context.Context, tx *gorm.DB, userID string, quizIDs []uint) ([]*models.QuizAttempt, error)
	ListByUserAndQuiz(ctx context.Context, tx *gorm.DB, userID string, quizID uint, filters AttemptFilters) ([]*models.QuizAttempt, int64, error)
	MaxAttemptNumber(ctx context.Context, tx *gorm.DB, userID string, quizID uint) (int, error)

	// SetBestAttempt flags exactly one completed attempt of the pair as the
	// best score.
	SetBestAttempt(ctx context.Context, tx *gorm.DB, userID string, quizID uint, attemptID uint) error
}
