package postgres

import (
	"context"

	"github.com/quizdeck/attempt-service/internal/models"
	"github.com/quizdeck/attempt-service/internal/repositories"
	"gorm.io/gorm"
)

// SharedHelpers contains common database operations
type SharedHelpers struct {
	db *gorm.DB
}

func NewSharedHelpers(db *gorm.DB) *SharedHelpers {
	return &SharedHelpers{db: db}
}

// CountAttemptsByUser counts a user's attempts on one quiz
func (h *SharedHelpers) CountAttemptsByUser(ctx context.Context, quizID uint, userID string) (int64, error) {
	var count int64
	err := h.db.WithContext(ctx).
		Model(&models.QuizAttempt{}).
		Where("quiz_id = ? AND user_id = ?", quizID, userID).
		Count(&count).Error
	return count, err
}

// ApplyAttemptFilters applies common filters to attempt queries
func (h *SharedHelpers) ApplyAttemptFilters(query *gorm.DB, filters repositories.AttemptFilters) *gorm.DB {
	if filters.InProgress != nil {
		query = query.Where("in_progress = ?", *filters.InProgress)
	}
	return query
}

// ApplyPaginationAndSort applies pagination and sorting with SQL injection protection
func (h *SharedHelpers) ApplyPaginationAndSort(query *gorm.DB, sortBy, sortOrder string, limit, offset int) *gorm.DB {
	// Whitelist allowed sort columns
	allowedSortColumns := map[string]bool{
		"created_at":     true,
		"updated_at":     true,
		"id":             true,
		"attempt_number": true,
		"started_at":     true,
		"completed_at":   true,
		"score":          true,
	}

	if sortBy == "" || !allowedSortColumns[sortBy] {
		sortBy = "attempt_number"
	}

	if sortOrder != "asc" && sortOrder != "ASC" {
		sortOrder = "DESC"
	} else {
		sortOrder = "ASC"
	}

	query = query.Order(sortBy + " " + sortOrder)

	if limit > 0 {
		query = query.Limit(limit)
	}
	if offset > 0 {
		query = query.Offset(offset)
	}

	return query
}
